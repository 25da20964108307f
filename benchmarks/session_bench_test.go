package benchmarks

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/ajitpratap0/mcp-session-go/pkg/capability"
	"github.com/ajitpratap0/mcp-session-go/pkg/pagination"
	"github.com/ajitpratap0/mcp-session-go/pkg/protocol"
	"github.com/ajitpratap0/mcp-session-go/pkg/registry"
	"github.com/ajitpratap0/mcp-session-go/pkg/server"
)

type benchArgs struct {
	Input string `json:"input"`
}

// BenchmarkSessionOperations benchmarks request dispatch and notification fan-out
func BenchmarkSessionOperations(b *testing.B) {
	b.Run("Ping", func(b *testing.B) {
		benchmarkDispatch(b, protocol.MethodPing, nil)
	})

	b.Run("ToolCall", func(b *testing.B) {
		benchmarkDispatch(b, protocol.MethodCallTool, &protocol.CallToolParams{
			Name:      "bench_tool",
			Arguments: map[string]interface{}{"input": "test"},
		})
	})

	b.Run("ListTools/100", func(b *testing.B) {
		benchmarkListTools(b, 100)
	})

	b.Run("ConcurrentToolCalls", func(b *testing.B) {
		benchmarkConcurrentToolCalls(b)
	})

	b.Run("ResourceSubscribers/10", func(b *testing.B) {
		benchmarkResourceSubscribers(b, 10)
	})

	b.Run("ResourceSubscribers/100", func(b *testing.B) {
		benchmarkResourceSubscribers(b, 100)
	})
}

// readySession returns a session that has completed the handshake without a
// transport attached. List-changed capabilities stay off since nothing drains
// the outbox.
func readySession(b *testing.B) *server.Session {
	b.Helper()
	ctx := context.Background()
	sess := server.NewSession(server.Config{
		Capabilities: capability.New(capability.Resources, capability.Tools, capability.Prompts),
	})
	b.Cleanup(sess.Close)

	entry, err := registry.NewTypedTool("bench_tool", "Echo input", func(ctx context.Context, args benchArgs) (*protocol.CallToolResult, error) {
		return &protocol.CallToolResult{Content: []protocol.Content{protocol.TextContent(args.Input)}}, nil
	})
	if err != nil {
		b.Fatal(err)
	}
	if err := sess.Tools().Register(ctx, entry); err != nil {
		b.Fatal(err)
	}

	initReq, err := protocol.NewRequest(protocol.IntID(0), protocol.MethodInitialize, &protocol.InitializeParams{
		ProtocolVersion: protocol.ProtocolRevision,
		ClientInfo:      protocol.Implementation{Name: "bench", Version: "1.0.0"},
	})
	if err != nil {
		b.Fatal(err)
	}
	if resp := sess.Dispatch(ctx, initReq); resp.Error != nil {
		b.Fatal(resp.Error)
	}
	initialized, err := protocol.NewNotification(protocol.MethodInitialized, nil)
	if err != nil {
		b.Fatal(err)
	}
	sess.Dispatch(ctx, initialized)
	return sess
}

func benchmarkDispatch(b *testing.B, method string, params interface{}) {
	ctx := context.Background()
	sess := readySession(b)

	req, err := protocol.NewRequest(protocol.StringID("bench"), method, params)
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if resp := sess.Dispatch(ctx, req); resp.Error != nil {
			b.Fatal(resp.Error)
		}
	}
}

func benchmarkListTools(b *testing.B, count int) {
	ctx := context.Background()
	sess := readySession(b)
	for i := 0; i < count; i++ {
		entry, err := registry.NewTypedTool(fmt.Sprintf("tool_%03d", i), "", func(ctx context.Context, args benchArgs) (*protocol.CallToolResult, error) {
			return nil, nil
		})
		if err != nil {
			b.Fatal(err)
		}
		if err := sess.Tools().Register(ctx, entry); err != nil {
			b.Fatal(err)
		}
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		cursor := ""
		for {
			req, err := protocol.NewRequest(protocol.IntID(int64(i)), protocol.MethodListTools, &protocol.ListToolsParams{
				PaginatedParams: protocol.PaginatedParams{Cursor: cursor},
			})
			if err != nil {
				b.Fatal(err)
			}
			resp := sess.Dispatch(ctx, req)
			if resp.Error != nil {
				b.Fatal(resp.Error)
			}
			cursor = nextCursor(b, resp)
			if cursor == "" {
				break
			}
		}
	}
}

func nextCursor(b *testing.B, resp *protocol.Response) string {
	var page protocol.PaginatedResult
	if err := json.Unmarshal(resp.Result, &page); err != nil {
		b.Fatal(err)
	}
	if page.NextCursor != "" {
		if _, err := pagination.DecodeCursor(page.NextCursor); err != nil {
			b.Fatal(err)
		}
	}
	return page.NextCursor
}

func benchmarkConcurrentToolCalls(b *testing.B) {
	ctx := context.Background()
	sess := readySession(b)
	var next atomic.Int64

	b.ResetTimer()
	b.ReportAllocs()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			req, err := protocol.NewRequest(protocol.IntID(next.Add(1)), protocol.MethodCallTool, &protocol.CallToolParams{
				Name:      "bench_tool",
				Arguments: map[string]interface{}{"input": "test"},
			})
			if err != nil {
				b.Error(err)
				return
			}
			if resp := sess.Dispatch(ctx, req); resp.Error != nil {
				b.Error(resp.Error)
				return
			}
		}
	})
}

type countingSubscriber struct {
	id string
	n  atomic.Int64
}

func (c *countingSubscriber) SubscriberID() string { return c.id }

func (c *countingSubscriber) Notify(context.Context, string, interface{}) error {
	c.n.Add(1)
	return nil
}

func benchmarkResourceSubscribers(b *testing.B, count int) {
	ctx := context.Background()
	resources := registry.NewResources(nil)
	const uri = "file:///bench/resource.txt"
	for i := 0; i < count; i++ {
		if err := resources.Subscribe(uri, &countingSubscriber{id: fmt.Sprintf("sub-%d", i)}); err != nil {
			b.Fatal(err)
		}
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		resources.NotifyUpdated(ctx, uri)
	}
}
