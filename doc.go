// Package mcp implements the server side of a Model Context Protocol session.
//
// A session speaks JSON-RPC 2.0 over any transport.Conn. It walks the
// initialize handshake, gates every method on the negotiated capabilities,
// and serves resources, tools, prompts and roots from registries that may be
// shared between sessions. Change notifications fan out from the registries
// to every subscribed session.
//
// # Packages
//
//   - pkg/protocol: wire types for JSON-RPC and MCP messages
//   - pkg/transport: newline delimited stdio framing and an in-memory pipe
//   - pkg/session: the lifecycle state machine
//   - pkg/capability: capability flags and their wire form
//   - pkg/registry: resource, tool, prompt and root registries
//   - pkg/progress: progress tokens and advisory cancellation
//   - pkg/pagination: opaque cursors
//   - pkg/server: the session engine
//   - pkg/config: MCP_* environment configuration
//   - pkg/fswatch: filesystem change notifications
//   - pkg/observability: Prometheus metrics and OpenTelemetry tracing
//
// # Serving over stdio
//
//	sess := mcp.NewSession(server.Config{},
//	    mcp.WithName("files"),
//	    mcp.WithCapabilities(mcp.Capabilities(mcp.CapabilityTools)),
//	)
//	err := sess.Tools().Register(ctx, registry.ToolEntry{
//	    Tool:    protocol.Tool{Name: "echo", InputSchema: schema},
//	    Handler: echo,
//	})
//	...
//	err = sess.Serve(ctx, mcp.NewStdioConn())
//
// Serve returns when the peer disconnects, after a shutdown request, or
// when Close is called. The session cannot be served again.
package mcp
