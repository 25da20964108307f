package errors

import (
	"fmt"
)

// VersionErrorData is attached to UnsupportedProtocolVersion errors
type VersionErrorData struct {
	Requested string   `json:"requested"`
	Supported []string `json:"supported"`
}

// RegistryErrorData identifies the registry entry a NotFound or Duplicate refers to
type RegistryErrorData struct {
	Kind       string `json:"kind"`
	Identifier string `json:"identifier"`
}

// ParseError reports a frame that is not valid JSON
func ParseError(detail string) MCPError {
	return NewError(CodeParseError, "parse error").WithDetail(detail)
}

// InvalidRequest reports a message that is valid JSON-RPC but not acceptable now
func InvalidRequest(message string) MCPError {
	return NewError(CodeInvalidRequest, message)
}

// NotInitialized is returned for requests that arrive before the handshake completes
func NotInitialized() MCPError {
	return NewError(CodeInvalidRequest, "server not initialized")
}

// MethodNotFound reports an unknown method or one whose capability is disabled
func MethodNotFound(method string) MCPError {
	return NewErrorf(CodeMethodNotFound, "method not found: %s", method)
}

// InvalidParams reports parameters that failed validation
func InvalidParams(message string) MCPError {
	return NewError(CodeInvalidParams, message)
}

// InvalidParamsf is InvalidParams with a formatted message
func InvalidParamsf(format string, args ...interface{}) MCPError {
	return NewErrorf(CodeInvalidParams, format, args...)
}

// Internal wraps an unexpected failure. The wire message stays opaque; cause is
// kept for local diagnostics.
func Internal(cause error) MCPError {
	return WrapError(cause, CodeInternalError, "internal error")
}

// UnsupportedProtocolVersion reports a protocol revision the session does not speak
func UnsupportedProtocolVersion(requested string, supported []string) MCPError {
	return NewErrorf(CodeUnsupportedProtocolVersion, "unsupported protocol version %q", requested).
		WithData(&VersionErrorData{Requested: requested, Supported: supported})
}

// NotFound reports an identifier missing from a registry
func NotFound(kind, identifier string) MCPError {
	return NewError(CodeNotFound, fmt.Sprintf("%s %q not found", kind, identifier)).
		WithData(&RegistryErrorData{Kind: kind, Identifier: identifier})
}

// Duplicate reports an identifier already present in a registry
func Duplicate(kind, identifier string) MCPError {
	return NewError(CodeDuplicate, fmt.Sprintf("%s %q already registered", kind, identifier)).
		WithData(&RegistryErrorData{Kind: kind, Identifier: identifier})
}

// Cancelled is returned by handlers that observed cancellation and stopped
func Cancelled(operation string) MCPError {
	return NewErrorf(CodeCancelled, "%s cancelled", operation)
}
