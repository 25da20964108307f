// Package benchmarks holds benchmarks and stress tests for the session engine
package benchmarks

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/mcp-session-go/pkg/capability"
	"github.com/ajitpratap0/mcp-session-go/pkg/protocol"
	"github.com/ajitpratap0/mcp-session-go/pkg/registry"
	"github.com/ajitpratap0/mcp-session-go/pkg/server"
	"github.com/ajitpratap0/mcp-session-go/pkg/transport"
	"github.com/ajitpratap0/mcp-session-go/pkg/utils"
)

// StressConfig configures a stress run
type StressConfig struct {
	Sessions           int
	RequestsPerSession int
	// HangupRate is the chance that a client disconnects before sending
	// each request
	HangupRate float64
	Timeout    time.Duration
}

// StressResult summarizes a stress run
type StressResult struct {
	Completed int64
	Failed    int64
	HungUp    int64
}

func runStress(t *testing.T, cfg StressConfig) StressResult {
	t.Helper()
	tools := registry.NewTools(nil)
	resources := registry.NewResources(nil)
	prompts := registry.NewPrompts(nil)
	roots := registry.NewRoots(nil)

	entry, err := registry.NewTypedTool("work", "", func(ctx context.Context, args benchArgs) (*protocol.CallToolResult, error) {
		return &protocol.CallToolResult{Content: []protocol.Content{protocol.TextContent(args.Input)}}, nil
	})
	require.NoError(t, err)
	require.NoError(t, tools.Register(context.Background(), entry))

	var result StressResult
	var wg sync.WaitGroup
	for i := 0; i < cfg.Sessions; i++ {
		sess := server.NewSession(server.Config{Capabilities: capability.All()},
			server.WithRegistries(resources, tools, prompts, roots))
		serverEnd, clientEnd := transport.Pipe()
		served := make(chan struct{})
		go func() {
			defer close(served)
			_ = sess.Serve(context.Background(), serverEnd)
		}()

		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			defer func() { <-served }()
			defer clientEnd.Close()
			rng := rand.New(rand.NewSource(seed))
			runStressClient(cfg, clientEnd, rng, &result)
		}(int64(i))
	}

	// a registry mutation mid-run fans out to every live session
	require.NoError(t, tools.Register(context.Background(), registry.ToolEntry{
		Tool:    protocol.Tool{Name: "late"},
		Handler: func(context.Context, map[string]interface{}) (*protocol.CallToolResult, error) { return nil, nil },
	}))

	wg.Wait()
	return result
}

func runStressClient(cfg StressConfig, conn *transport.PipeConn, rng *rand.Rand, result *StressResult) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	call := func(id int64, method string, params interface{}) bool {
		req, err := protocol.NewRequest(protocol.IntID(id), method, params)
		if err != nil || conn.Write(ctx, req) != nil {
			return false
		}
		for {
			msg, err := conn.Read(ctx)
			if err != nil {
				return false
			}
			if resp, ok := msg.(*protocol.Response); ok && resp.ID == req.ID {
				return resp.Error == nil
			}
		}
	}

	if !call(0, protocol.MethodInitialize, &protocol.InitializeParams{
		ProtocolVersion: protocol.ProtocolRevision,
		ClientInfo:      protocol.Implementation{Name: "stress", Version: "1.0.0"},
	}) {
		atomic.AddInt64(&result.Failed, 1)
		return
	}
	note, _ := protocol.NewNotification(protocol.MethodInitialized, nil)
	if conn.Write(ctx, note) != nil {
		atomic.AddInt64(&result.Failed, 1)
		return
	}

	for i := 1; i <= cfg.RequestsPerSession; i++ {
		if rng.Float64() < cfg.HangupRate {
			atomic.AddInt64(&result.HungUp, 1)
			return
		}
		ok := call(int64(i), protocol.MethodCallTool, &protocol.CallToolParams{
			Name:      "work",
			Arguments: map[string]interface{}{"input": fmt.Sprintf("req-%d", i)},
		})
		if !ok {
			atomic.AddInt64(&result.Failed, 1)
			return
		}
		atomic.AddInt64(&result.Completed, 1)
	}
}

func TestStressSharedRegistries(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping stress test in short mode")
	}
	detector := utils.NewGoroutineLeakDetector(t).Start()

	cfg := StressConfig{
		Sessions:           25,
		RequestsPerSession: 40,
		HangupRate:         0.01,
		Timeout:            10 * time.Second,
	}
	result := runStress(t, cfg)

	t.Logf("completed=%d failed=%d hung_up=%d", result.Completed, result.Failed, result.HungUp)
	assert.Zero(t, result.Failed)
	assert.Positive(t, result.Completed)
	assert.LessOrEqual(t, result.HungUp, int64(cfg.Sessions))

	detector.Check()
}
