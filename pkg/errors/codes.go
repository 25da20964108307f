package errors

// JSON-RPC 2.0 standard error codes
const (
	// CodeParseError indicates invalid JSON was received
	CodeParseError int = -32700

	// CodeInvalidRequest indicates a structurally valid message that is not
	// acceptable, including requests issued in the wrong session phase
	CodeInvalidRequest int = -32600

	// CodeMethodNotFound indicates the method does not exist or its capability is disabled
	CodeMethodNotFound int = -32601

	// CodeInvalidParams indicates invalid method parameter(s)
	CodeInvalidParams int = -32602

	// CodeInternalError indicates an unexpected failure inside a handler
	CodeInternalError int = -32603
)

// Engine specific codes in the implementation-defined server error range
const (
	CodeNotFound                   int = -32002
	CodeDuplicate                  int = -32003
	CodeUnsupportedProtocolVersion int = -32004
	CodeCancelled                  int = -32800
)

// ErrorCodeInfo provides human-readable information about error codes
type ErrorCodeInfo struct {
	Code        int
	Name        string
	Description string
	Category    Category
	Severity    Severity
}

var errorCodeRegistry = map[int]ErrorCodeInfo{
	CodeParseError:     {CodeParseError, "ParseError", "Invalid JSON was received", CategoryProtocol, SeverityError},
	CodeInvalidRequest: {CodeInvalidRequest, "InvalidRequest", "Invalid Request object", CategoryProtocol, SeverityError},
	CodeMethodNotFound: {CodeMethodNotFound, "MethodNotFound", "Method does not exist", CategoryProtocol, SeverityWarning},
	CodeInvalidParams:  {CodeInvalidParams, "InvalidParams", "Invalid method parameters", CategoryValidation, SeverityWarning},
	CodeInternalError:  {CodeInternalError, "InternalError", "Internal error", CategoryInternal, SeverityError},

	CodeNotFound:                   {CodeNotFound, "NotFound", "Identifier not registered", CategoryNotFound, SeverityWarning},
	CodeDuplicate:                  {CodeDuplicate, "Duplicate", "Identifier already registered", CategoryConflict, SeverityWarning},
	CodeUnsupportedProtocolVersion: {CodeUnsupportedProtocolVersion, "UnsupportedProtocolVersion", "Protocol version not supported", CategoryProtocol, SeverityError},
	CodeCancelled:                  {CodeCancelled, "Cancelled", "Operation acknowledged cancellation", CategoryCancelled, SeverityInfo},
}

func codeInfo(code int) ErrorCodeInfo {
	if info, ok := errorCodeRegistry[code]; ok {
		return info
	}
	return ErrorCodeInfo{Code: code, Name: "UnknownError", Description: "Unknown error", Category: CategoryInternal, Severity: SeverityError}
}

// GetErrorCodeInfo returns information about an error code
func GetErrorCodeInfo(code int) (ErrorCodeInfo, bool) {
	info, exists := errorCodeRegistry[code]
	return info, exists
}

// CodeName returns the taxonomy name of an error code
func CodeName(code int) string {
	return codeInfo(code).Name
}
