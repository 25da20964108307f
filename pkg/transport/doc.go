// Package transport defines the message channel a session is served over and
// provides two implementations: StreamConn for newline-delimited JSON over a
// byte stream (stdio) and Pipe for in-process peers and tests.
//
// Framing beyond newline-delimited JSON, reconnection and retries belong to
// the embedding application.
//
//	conn := transport.NewStdioConn()
//	defer conn.Close()
//	err := session.Serve(ctx, conn)
package transport
