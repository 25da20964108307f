// Package protocol defines the message model of the Model Context Protocol.
//
// The package has two layers:
//
//   - jsonrpc.go: the JSON-RPC 2.0 envelope. Message is a closed union of
//     *Request, *Response and *Notification; RequestID keeps the wire kind of a
//     correlation token (string or integer) so it can be echoed unchanged.
//   - mcp.go, resources.go, tools.go, prompts.go, roots.go: method names and
//     payload types exchanged once a session is established.
//
// # Decoding
//
// DecodeMessage classifies a single frame:
//
//	msg, id, err := protocol.DecodeMessage(frame)
//	switch {
//	case errors.Is(err, protocol.ErrParse):
//	    // reply with ParseError and a null id
//	case errors.Is(err, protocol.ErrInvalidEnvelope):
//	    // reply with InvalidRequest, echoing id if it was recovered
//	}
//
// # Progress
//
// Requests may carry params._meta.progressToken. RequestMeta extracts it
// without decoding the rest of the params.
package protocol
