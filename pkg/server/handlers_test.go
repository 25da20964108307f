package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/ajitpratap0/mcp-session-go/pkg/capability"
	mcperrors "github.com/ajitpratap0/mcp-session-go/pkg/errors"
	"github.com/ajitpratap0/mcp-session-go/pkg/observability"
	"github.com/ajitpratap0/mcp-session-go/pkg/progress"
	"github.com/ajitpratap0/mcp-session-go/pkg/protocol"
	"github.com/ajitpratap0/mcp-session-go/pkg/registry"
)

type echoArgs struct {
	Text string `json:"text"`
}

func registerEcho(t *testing.T, sess *Session) {
	t.Helper()
	entry, err := registry.NewTypedTool("echo", "Echo text back", func(ctx context.Context, args echoArgs) (*protocol.CallToolResult, error) {
		if args.Text == "fail" {
			return nil, errors.New("refusing to echo")
		}
		return &protocol.CallToolResult{Content: []protocol.Content{protocol.TextContent(args.Text)}}, nil
	})
	require.NoError(t, err)
	require.NoError(t, sess.Tools().Register(context.Background(), entry))
}

func TestToolCall(t *testing.T) {
	sess, client := newTestSession(t)
	client.initialize()
	client.sync()
	registerEcho(t, sess)

	t.Run("success", func(t *testing.T) {
		resp := client.call(protocol.MethodCallTool, &protocol.CallToolParams{
			Name:      "echo",
			Arguments: map[string]interface{}{"text": "hello"},
		})
		result := decodeResult[protocol.CallToolResult](t, resp)
		assert.False(t, result.IsError)
		require.Len(t, result.Content, 1)
		assert.Equal(t, "hello", result.Content[0].Text)
	})

	t.Run("invalid arguments", func(t *testing.T) {
		resp := client.call(protocol.MethodCallTool, &protocol.CallToolParams{
			Name:      "echo",
			Arguments: map[string]interface{}{"text": 42},
		})
		requireErrorCode(t, resp, mcperrors.CodeInvalidParams)
	})

	t.Run("handler error", func(t *testing.T) {
		resp := client.call(protocol.MethodCallTool, &protocol.CallToolParams{
			Name:      "echo",
			Arguments: map[string]interface{}{"text": "fail"},
		})
		result := decodeResult[protocol.CallToolResult](t, resp)
		assert.True(t, result.IsError)
		require.Len(t, result.Content, 1)
		assert.Equal(t, "refusing to echo", result.Content[0].Text)
	})

	t.Run("missing name", func(t *testing.T) {
		requireErrorCode(t, client.call(protocol.MethodCallTool, &protocol.CallToolParams{}), mcperrors.CodeInvalidParams)
	})
}

func TestProgressNotifications(t *testing.T) {
	sess, client := newTestSession(t)
	client.initialize()
	client.sync()

	require.NoError(t, sess.Tools().Register(context.Background(), registry.ToolEntry{
		Tool: protocol.Tool{Name: "count"},
		Handler: func(ctx context.Context, args map[string]interface{}) (*protocol.CallToolResult, error) {
			op := progress.FromContext(ctx)
			for i := 1; i <= 3; i++ {
				if err := op.Update(ctx, float64(i), fmt.Sprintf("step %d", i)); err != nil {
					return nil, err
				}
			}
			return &protocol.CallToolResult{}, nil
		},
	}))

	resp := client.call(protocol.MethodCallTool, json.RawMessage(
		`{"name":"count","_meta":{"progressToken":"job-1"}}`))
	require.Nil(t, resp.Error)

	notes := client.notifications(protocol.MethodProgress)
	require.Len(t, notes, 3)
	for i, n := range notes {
		var params protocol.ProgressParams
		require.NoError(t, json.Unmarshal(n.Params, &params))
		assert.Equal(t, protocol.StringID("job-1"), params.ProgressToken)
		assert.Equal(t, float64(i+1), params.Progress)
		assert.Equal(t, fmt.Sprintf("step %d", i+1), params.Message)
	}

	// the token is released with the response and may be reused
	assert.Equal(t, 0, sess.Tracker().Len())
	resp = client.call(protocol.MethodCallTool, json.RawMessage(
		`{"name":"count","_meta":{"progressToken":"job-1"}}`))
	assert.Nil(t, resp.Error)
}

func TestProgressTokenInUse(t *testing.T) {
	sess, client := newTestSession(t)
	client.initialize()
	client.sync()

	_, err := sess.Tracker().Create(protocol.IntID(9), nil)
	require.NoError(t, err)

	resp := client.call(protocol.MethodPing, json.RawMessage(`{"_meta":{"progressToken":9}}`))
	requireErrorCode(t, resp, mcperrors.CodeInvalidParams)
}

func TestCancellation(t *testing.T) {
	sess, client := newTestSession(t)
	client.initialize()
	client.sync()

	started := make(chan struct{})
	var sawFlag atomic.Bool
	require.NoError(t, sess.Tools().Register(context.Background(), registry.ToolEntry{
		Tool: protocol.Tool{Name: "slow"},
		Handler: func(ctx context.Context, args map[string]interface{}) (*protocol.CallToolResult, error) {
			close(started)
			<-ctx.Done()
			sawFlag.Store(progress.FromContext(ctx).Cancelled())
			return nil, ctx.Err()
		},
	}))

	req := client.send(protocol.MethodCallTool, json.RawMessage(
		`{"name":"slow","_meta":{"progressToken":"slow-1"}}`))
	select {
	case <-started:
	case <-time.After(testTimeout):
		t.Fatal("handler did not start")
	}
	assert.Equal(t, 1, sess.inflight.len())

	client.notify(protocol.MethodCancelled, &protocol.CancelledParams{RequestID: req.ID, Reason: "user abort"})

	resp := client.await(req.ID)
	requireErrorCode(t, resp, mcperrors.CodeCancelled)
	assert.True(t, sawFlag.Load())

	client.sync()
	assert.Equal(t, 0, sess.inflight.len())
}

func TestCancellationIsAdvisory(t *testing.T) {
	sess, client := newTestSession(t)
	client.initialize()
	client.sync()

	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, sess.Tools().Register(context.Background(), registry.ToolEntry{
		Tool: protocol.Tool{Name: "stubborn"},
		Handler: func(ctx context.Context, args map[string]interface{}) (*protocol.CallToolResult, error) {
			close(started)
			<-release
			return &protocol.CallToolResult{Content: []protocol.Content{protocol.TextContent("finished anyway")}}, nil
		},
	}))

	req := client.send(protocol.MethodCallTool, &protocol.CallToolParams{Name: "stubborn"})
	<-started
	client.notify(protocol.MethodCancelled, &protocol.CancelledParams{RequestID: req.ID})
	client.sync()
	close(release)

	result := decodeResult[protocol.CallToolResult](t, client.await(req.ID))
	require.Len(t, result.Content, 1)
	assert.Equal(t, "finished anyway", result.Content[0].Text)
}

func TestConcurrentRequestsDoNotBlockEachOther(t *testing.T) {
	sess, client := newTestSession(t)
	client.initialize()
	client.sync()

	release := make(chan struct{})
	require.NoError(t, sess.Tools().Register(context.Background(), registry.ToolEntry{
		Tool: protocol.Tool{Name: "wait"},
		Handler: func(ctx context.Context, args map[string]interface{}) (*protocol.CallToolResult, error) {
			<-release
			return &protocol.CallToolResult{}, nil
		},
	}))

	req := client.send(protocol.MethodCallTool, &protocol.CallToolParams{Name: "wait"})
	client.sync()
	close(release)
	assert.Nil(t, client.await(req.ID).Error)
}

func TestResourceHandlers(t *testing.T) {
	sess, client := newTestSession(t)
	client.initialize()
	client.sync()

	ctx := context.Background()
	require.NoError(t, sess.Resources().Register(ctx, registry.ResourceEntry{
		Resource: protocol.Resource{URI: "file:///notes.txt", Name: "notes"},
		Read: func(ctx context.Context, uri string) ([]protocol.ResourceContents, error) {
			return []protocol.ResourceContents{{URI: uri, Text: "remember the milk"}}, nil
		},
	}))
	require.NoError(t, sess.Resources().RegisterTemplate(ctx, registry.TemplateEntry{
		Template: protocol.ResourceTemplate{URITemplate: "users://{id}/profile", Name: "profile"},
		Read: func(ctx context.Context, uri string, vars map[string]string) ([]protocol.ResourceContents, error) {
			return []protocol.ResourceContents{{URI: uri, Text: "user " + vars["id"]}}, nil
		},
	}))

	list := decodeResult[protocol.ListResourcesResult](t, client.call(protocol.MethodListResources, nil))
	require.Len(t, list.Resources, 1)
	assert.Equal(t, "file:///notes.txt", list.Resources[0].URI)

	templates := decodeResult[protocol.ListResourceTemplatesResult](t, client.call(protocol.MethodListResourceTemplates, nil))
	require.Len(t, templates.ResourceTemplates, 1)

	read := decodeResult[protocol.ReadResourceResult](t, client.call(protocol.MethodReadResource,
		&protocol.ReadResourceParams{URI: "file:///notes.txt"}))
	require.Len(t, read.Contents, 1)
	assert.Equal(t, "remember the milk", read.Contents[0].Text)

	read = decodeResult[protocol.ReadResourceResult](t, client.call(protocol.MethodReadResource,
		&protocol.ReadResourceParams{URI: "users://42/profile"}))
	require.Len(t, read.Contents, 1)
	assert.Equal(t, "user 42", read.Contents[0].Text)

	requireErrorCode(t, client.call(protocol.MethodReadResource, &protocol.ReadResourceParams{URI: "file:///missing"}),
		mcperrors.CodeNotFound)
	requireErrorCode(t, client.call(protocol.MethodReadResource, &protocol.ReadResourceParams{}),
		mcperrors.CodeInvalidParams)
}

func TestResourceSubscriptions(t *testing.T) {
	sess, client := newTestSession(t)
	client.initialize()
	client.sync()

	ctx := context.Background()
	const uri = "file:///watched.txt"
	require.NoError(t, sess.Resources().Register(ctx, registry.ResourceEntry{
		Resource: protocol.Resource{URI: uri, Name: "watched"},
		Read: func(ctx context.Context, uri string) ([]protocol.ResourceContents, error) {
			return nil, nil
		},
	}))
	client.sync()
	client.notifications(protocol.MethodResourceListChanged)

	resp := client.call(protocol.MethodSubscribeResource, &protocol.SubscribeParams{URI: uri})
	require.Nil(t, resp.Error)
	assert.True(t, sess.Resources().Subscribed(uri, sess.ID()))

	sess.Resources().NotifyUpdated(ctx, uri)
	sess.Resources().NotifyUpdated(ctx, "file:///other.txt")
	client.sync()

	updates := client.notifications(protocol.MethodResourceUpdated)
	require.Len(t, updates, 1)
	var params protocol.ResourceUpdatedParams
	require.NoError(t, json.Unmarshal(updates[0].Params, &params))
	assert.Equal(t, uri, params.URI)

	resp = client.call(protocol.MethodUnsubscribeResource, &protocol.SubscribeParams{URI: uri})
	require.Nil(t, resp.Error)
	requireErrorCode(t, client.call(protocol.MethodUnsubscribeResource, &protocol.SubscribeParams{URI: uri}),
		mcperrors.CodeNotFound)

	sess.Resources().NotifyUpdated(ctx, uri)
	client.sync()
	assert.Empty(t, client.notifications(protocol.MethodResourceUpdated))
}

func TestListChangedFollowsCapability(t *testing.T) {
	t.Run("enabled", func(t *testing.T) {
		sess, client := newTestSession(t, WithCapabilities(capability.New(capability.ToolsListChanged)))
		client.initialize()
		client.sync()
		registerEcho(t, sess)
		client.sync()
		assert.Len(t, client.notifications(protocol.MethodToolListChanged), 1)
	})

	t.Run("disabled", func(t *testing.T) {
		sess, client := newTestSession(t, WithCapabilities(capability.New(capability.Tools)))
		client.initialize()
		client.sync()
		registerEcho(t, sess)
		client.sync()
		assert.Empty(t, client.notifications(protocol.MethodToolListChanged))
	})

	t.Run("not before ready", func(t *testing.T) {
		sess, client := newTestSession(t, WithCapabilities(capability.New(capability.ToolsListChanged)))
		registerEcho(t, sess)
		client.initialize()
		client.sync()
		assert.Empty(t, client.notifications(protocol.MethodToolListChanged))
	})
}

func TestPromptHandlers(t *testing.T) {
	sess, client := newTestSession(t)
	client.initialize()
	client.sync()

	require.NoError(t, sess.Prompts().Register(context.Background(), registry.PromptEntry{
		Prompt: protocol.Prompt{
			Name:      "greet",
			Arguments: []protocol.PromptArgument{{Name: "name", Required: true}},
		},
		Messages: []protocol.PromptMessage{{Role: "user", Content: protocol.TextContent("Hello {{name}}")}},
	}))

	list := decodeResult[protocol.ListPromptsResult](t, client.call(protocol.MethodListPrompts, nil))
	require.Len(t, list.Prompts, 1)

	got := decodeResult[protocol.GetPromptResult](t, client.call(protocol.MethodGetPrompt, &protocol.GetPromptParams{
		Name:      "greet",
		Arguments: map[string]string{"name": "Ada"},
	}))
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "Hello Ada", got.Messages[0].Content.Text)

	requireErrorCode(t, client.call(protocol.MethodGetPrompt, &protocol.GetPromptParams{Name: "greet"}),
		mcperrors.CodeInvalidParams)
	requireErrorCode(t, client.call(protocol.MethodGetPrompt, &protocol.GetPromptParams{Name: "nope"}),
		mcperrors.CodeNotFound)
}

func TestRootHandlers(t *testing.T) {
	sess, client := newTestSession(t)
	client.initialize()
	client.sync()

	empty := decodeResult[protocol.ListRootsResult](t, client.call(protocol.MethodListRoots, nil))
	assert.NotNil(t, empty.Roots)
	assert.Empty(t, empty.Roots)

	require.NoError(t, sess.Roots().Register(context.Background(), protocol.Root{URI: "file:///workspace", Name: "workspace"}))
	client.sync()
	assert.Len(t, client.notifications(protocol.MethodRootsListChanged), 1)

	roots := decodeResult[protocol.ListRootsResult](t, client.call(protocol.MethodListRoots, nil))
	require.Len(t, roots.Roots, 1)
	assert.Equal(t, "file:///workspace", roots.Roots[0].URI)
}

func TestClientLogging(t *testing.T) {
	sess, client := newTestSession(t)
	ctx := context.Background()

	// nothing is sent before the session is ready
	require.NoError(t, sess.Log(ctx, protocol.LoggingLevelError, "test", "early"))

	client.initialize()
	client.sync()
	assert.Equal(t, protocol.LoggingLevelInfo, sess.LogLevel())

	require.NoError(t, sess.Log(ctx, protocol.LoggingLevelDebug, "test", "hidden"))
	require.NoError(t, sess.Log(ctx, protocol.LoggingLevelInfo, "test", "shown"))
	client.sync()
	messages := client.notifications(protocol.MethodLogMessage)
	require.Len(t, messages, 1)
	var params protocol.LoggingMessageParams
	require.NoError(t, json.Unmarshal(messages[0].Params, &params))
	assert.Equal(t, protocol.LoggingLevelInfo, params.Level)
	assert.Equal(t, "test", params.Logger)
	assert.Equal(t, "shown", params.Data)

	resp := client.call(protocol.MethodSetLogLevel, &protocol.SetLevelParams{Level: protocol.LoggingLevelError})
	require.Nil(t, resp.Error)
	assert.Equal(t, protocol.LoggingLevelError, sess.LogLevel())

	require.NoError(t, sess.Log(ctx, protocol.LoggingLevelWarning, "test", "below"))
	require.NoError(t, sess.Log(ctx, protocol.LoggingLevelCritical, "test", "above"))
	client.sync()
	messages = client.notifications(protocol.MethodLogMessage)
	require.Len(t, messages, 1)
	require.NoError(t, json.Unmarshal(messages[0].Params, &params))
	assert.Equal(t, protocol.LoggingLevelCritical, params.Level)

	requireErrorCode(t, client.call(protocol.MethodSetLogLevel, json.RawMessage(`{"level":"verbose"}`)),
		mcperrors.CodeInvalidParams)
	requireErrorCode(t, client.call(protocol.MethodSetLogLevel, nil), mcperrors.CodeInvalidParams)
	assert.Error(t, sess.Log(ctx, protocol.LoggingLevel("verbose"), "test", nil))
}

func TestListPagination(t *testing.T) {
	sess, client := newTestSession(t, WithPageSize(2))
	client.initialize()
	client.sync()

	for i := 0; i < 5; i++ {
		require.NoError(t, sess.Tools().Register(context.Background(), registry.ToolEntry{
			Tool: protocol.Tool{Name: fmt.Sprintf("tool-%d", i)},
			Handler: func(ctx context.Context, args map[string]interface{}) (*protocol.CallToolResult, error) {
				return &protocol.CallToolResult{}, nil
			},
		}))
	}

	var names []string
	cursor := ""
	pages := 0
	for {
		resp := client.call(protocol.MethodListTools, &protocol.ListToolsParams{
			PaginatedParams: protocol.PaginatedParams{Cursor: cursor},
		})
		page := decodeResult[protocol.ListToolsResult](t, resp)
		pages++
		for _, tool := range page.Tools {
			names = append(names, tool.Name)
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	assert.Equal(t, 3, pages)
	assert.Equal(t, []string{"tool-0", "tool-1", "tool-2", "tool-3", "tool-4"}, names)

	resp := client.call(protocol.MethodListTools, &protocol.ListToolsParams{
		PaginatedParams: protocol.PaginatedParams{Cursor: "not-a-cursor"},
	})
	requireErrorCode(t, resp, mcperrors.CodeInvalidParams)
}

func TestDispatchRecordsMetricsAndSpans(t *testing.T) {
	metrics, err := observability.NewMetrics(observability.MetricsConfig{Registry: prometheus.NewRegistry()})
	require.NoError(t, err)
	exporter := tracetest.NewInMemoryExporter()
	tracer, err := observability.NewTracingProvider(observability.TracingConfig{Exporter: exporter, SampleRate: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tracer.Shutdown(context.Background()) })

	_, client := newTestSession(t, WithMetrics(metrics), WithTracer(tracer))
	client.initialize()
	client.sync()
	requireErrorCode(t, client.call("no/such/method", nil), mcperrors.CodeMethodNotFound)

	count, err := testutil.GatherAndCount(metrics.Registry(), "mcp_request_total")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, count, 3)
	count, err = testutil.GatherAndCount(metrics.Registry(), "mcp_error_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	names := map[string]bool{}
	for _, span := range exporter.GetSpans() {
		names[span.Name] = true
	}
	assert.True(t, names["mcp.initialize"])
	assert.True(t, names["mcp.ping"])
	assert.True(t, names["mcp.unknown"])
	assert.False(t, names["mcp.no/such/method"])
}

// labelValues collects the values of label across every series of the named
// metric family
func labelValues(t *testing.T, reg prometheus.Gatherer, family, label string) map[string]bool {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	values := map[string]bool{}
	for _, mf := range families {
		if mf.GetName() != family {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == label {
					values[lp.GetValue()] = true
				}
			}
		}
	}
	return values
}

func TestMetricLabelsAreBounded(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := observability.NewMetrics(observability.MetricsConfig{Registry: reg})
	require.NoError(t, err)

	sess, client := newTestSession(t, WithMetrics(metrics))
	client.initialize()
	client.sync()
	registerEcho(t, sess)

	for _, method := range []string{"no/such/method", "x-0f3a9c", "tools/call/extra"} {
		requireErrorCode(t, client.call(method, nil), mcperrors.CodeMethodNotFound)
	}
	client.notify("notifications/made-up", nil)
	resp := client.call(protocol.MethodCallTool, &protocol.CallToolParams{Name: "missing-7731"})
	assert.True(t, decodeResult[protocol.CallToolResult](t, resp).IsError)
	client.call(protocol.MethodCallTool, &protocol.CallToolParams{
		Name:      "echo",
		Arguments: map[string]interface{}{"text": "hi"},
	})
	client.sync()

	requests := labelValues(t, reg, "mcp_request_total", "method")
	assert.True(t, requests["unknown"])
	assert.True(t, requests[protocol.MethodPing])
	assert.False(t, requests["no/such/method"])
	assert.False(t, requests["x-0f3a9c"])

	errs := labelValues(t, reg, "mcp_error_total", "method")
	assert.Equal(t, map[string]bool{"unknown": true}, errs)

	notes := labelValues(t, reg, "mcp_incoming_notification_total", "method")
	assert.True(t, notes["unknown"])
	assert.False(t, notes["notifications/made-up"])

	tools := labelValues(t, reg, "mcp_tool_call_duration_milliseconds", "tool")
	assert.Equal(t, map[string]bool{"echo": true, "unknown": true}, tools)
}
