package errors

import (
	"github.com/ajitpratap0/mcp-session-go/pkg/protocol"
)

// debugData is the error data attached to InternalError in debug mode
type debugData struct {
	Detail string `json:"detail"`
}

// ToWireError converts any error into the JSON-RPC error object sent to the
// peer. Errors outside the taxonomy become an opaque InternalError; their text
// is attached as data only when debug is set.
func ToWireError(err error, debug bool) *protocol.Error {
	if err == nil {
		return nil
	}

	mcpErr, ok := AsMCPError(err)
	if !ok {
		mcpErr = Internal(err)
	}

	wire := &protocol.Error{
		Code:    protocol.ErrorCode(mcpErr.Code()),
		Message: mcpErr.Message(),
		Data:    mcpErr.Data(),
	}
	if debug && wire.Data == nil && mcpErr.Code() == CodeInternalError {
		wire.Data = &debugData{Detail: mcpErr.Error()}
	} else if debug && wire.Data == nil && mcpErr.Details() != "" {
		wire.Data = &debugData{Detail: mcpErr.Details()}
	}
	return wire
}

// ToResponse builds the error response for a request
func ToResponse(id protocol.RequestID, err error, debug bool) *protocol.Response {
	return protocol.NewErrorResponse(id, ToWireError(err, debug))
}
