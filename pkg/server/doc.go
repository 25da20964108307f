// Package server composes the protocol engine of one MCP session.
//
// A Session owns a lifecycle machine, handler registries, a progress tracker,
// the client log level and the set of running requests. Serve binds it to a
// transport.Conn:
//
//	sess := server.NewSession(server.Config{
//	    Name:         "example",
//	    Version:      "1.0.0",
//	    Capabilities: capability.New(capability.Tools, capability.Logging),
//	})
//	entry, _ := registry.NewTypedTool("echo", "Echo text back",
//	    func(ctx context.Context, args struct {
//	        Text string `json:"text"`
//	    }) (*protocol.CallToolResult, error) {
//	        return &protocol.CallToolResult{Content: []protocol.Content{protocol.TextContent(args.Text)}}, nil
//	    })
//	_ = sess.Tools().Register(ctx, entry)
//	err := sess.Serve(ctx, transport.NewStdioConn())
//
// # Dispatch
//
// Every inbound request passes the phase check of the lifecycle machine, then
// the capability gate of its route, then its handler. Methods whose
// capability is disabled do not exist: they fail with MethodNotFound exactly
// like unknown methods. Requests run concurrently; all outbound messages leave
// through a single ordered writer.
//
// A request whose params carry _meta.progressToken gets a progress operation,
// reachable from the handler through progress.FromContext. The operation is
// released when the handler returns.
//
// # Cancellation
//
// notifications/cancelled cancels the context of the named request and flags
// its progress operation. Handlers decide whether to stop; a response is sent
// either way.
package server
