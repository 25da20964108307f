package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

const (
	// JSONRPCVersion is the supported JSON-RPC version
	JSONRPCVersion = "2.0"
)

// ErrorCode represents a JSON-RPC 2.0 error code
type ErrorCode int

// Standard error codes as per JSON-RPC 2.0 specification
const (
	ParseError     ErrorCode = -32700
	InvalidRequest ErrorCode = -32600
	MethodNotFound ErrorCode = -32601
	InvalidParams  ErrorCode = -32602
	InternalError  ErrorCode = -32603
)

var (
	// ErrParse is returned by DecodeMessage when the payload is not valid JSON
	ErrParse = errors.New("parse error")

	// ErrInvalidEnvelope is returned by DecodeMessage when the payload is JSON but
	// not a JSON-RPC 2.0 request, response or notification
	ErrInvalidEnvelope = errors.New("invalid JSON-RPC envelope")
)

// RequestID is a JSON-RPC correlation token. It keeps the wire kind (string or
// integer) so that it can be echoed back exactly as received. The zero value is
// the absent id.
type RequestID struct {
	str   string
	num   int64
	isNum bool
	valid bool
}

// StringID returns a string request id
func StringID(s string) RequestID {
	return RequestID{str: s, valid: true}
}

// IntID returns an integer request id
func IntID(n int64) RequestID {
	return RequestID{num: n, isNum: true, valid: true}
}

// IsValid reports whether the id carries a value
func (id RequestID) IsValid() bool {
	return id.valid
}

// IsNumber reports whether the id was an integer on the wire
func (id RequestID) IsNumber() bool {
	return id.isNum
}

// Value returns the underlying string or int64, or nil for the absent id
func (id RequestID) Value() interface{} {
	switch {
	case !id.valid:
		return nil
	case id.isNum:
		return id.num
	default:
		return id.str
	}
}

// String returns a printable form of the id, used for logs and map keys
func (id RequestID) String() string {
	switch {
	case !id.valid:
		return ""
	case id.isNum:
		return strconv.FormatInt(id.num, 10)
	default:
		return id.str
	}
}

// MarshalJSON implements json.Marshaler
func (id RequestID) MarshalJSON() ([]byte, error) {
	switch {
	case !id.valid:
		return []byte("null"), nil
	case id.isNum:
		return []byte(strconv.FormatInt(id.num, 10)), nil
	default:
		return json.Marshal(id.str)
	}
}

// UnmarshalJSON implements json.Unmarshaler. Only strings and integers are
// accepted; null decodes to the absent id.
func (id *RequestID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = RequestID{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = StringID(s)
		return nil
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("JSON-RPC id must be a string or integer, got: %s", string(data))
	}
	*id = IntID(n)
	return nil
}

// Message is one of *Request, *Response or *Notification
type Message interface {
	isMessage()
}

// JSONRPCMessage represents a JSON-RPC 2.0 message
type JSONRPCMessage struct {
	JSONRPC string `json:"jsonrpc"`
}

// Request represents a JSON-RPC 2.0 request
type Request struct {
	JSONRPCMessage
	ID     RequestID       `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

func (*Request) isMessage() {}

// NewRequest creates a new JSON-RPC 2.0 request
func NewRequest(id RequestID, method string, params interface{}) (*Request, error) {
	paramsJSON, err := marshalOptional(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal params: %w", err)
	}

	return &Request{
		JSONRPCMessage: JSONRPCMessage{JSONRPC: JSONRPCVersion},
		ID:             id,
		Method:         method,
		Params:         paramsJSON,
	}, nil
}

// Response represents a JSON-RPC 2.0 response. Exactly one of Result and Error
// is set.
type Response struct {
	JSONRPCMessage
	ID     RequestID       `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *Error          `json:"error,omitempty"`
}

func (*Response) isMessage() {}

// NewResponse creates a new JSON-RPC 2.0 success response. A nil result is
// encoded as an empty object.
func NewResponse(id RequestID, result interface{}) (*Response, error) {
	resultJSON := json.RawMessage("{}")
	if result != nil {
		var err error
		resultJSON, err = json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal result: %w", err)
		}
	}

	return &Response{
		JSONRPCMessage: JSONRPCMessage{JSONRPC: JSONRPCVersion},
		ID:             id,
		Result:         resultJSON,
	}, nil
}

// NewErrorResponse creates a new JSON-RPC 2.0 error response
func NewErrorResponse(id RequestID, wireErr *Error) *Response {
	return &Response{
		JSONRPCMessage: JSONRPCMessage{JSONRPC: JSONRPCVersion},
		ID:             id,
		Error:          wireErr,
	}
}

// Notification represents a JSON-RPC 2.0 notification
type Notification struct {
	JSONRPCMessage
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

func (*Notification) isMessage() {}

// NewNotification creates a new JSON-RPC 2.0 notification
func NewNotification(method string, params interface{}) (*Notification, error) {
	paramsJSON, err := marshalOptional(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal params: %w", err)
	}

	return &Notification{
		JSONRPCMessage: JSONRPCMessage{JSONRPC: JSONRPCVersion},
		Method:         method,
		Params:         paramsJSON,
	}, nil
}

// Error represents a JSON-RPC 2.0 error object
type Error struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// envelope is the superset of all message fields used for classification
type envelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// DecodeMessage parses one JSON-RPC 2.0 message. Errors wrap ErrParse for
// malformed JSON and ErrInvalidEnvelope for structurally invalid messages. When
// the id could be recovered it is returned alongside the error so the caller can
// still answer the request.
func DecodeMessage(data []byte) (Message, RequestID, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, RequestID{}, fmt.Errorf("%w: %v", ErrParse, err)
	}

	var id RequestID
	if len(env.ID) > 0 {
		if err := id.UnmarshalJSON(env.ID); err != nil {
			return nil, RequestID{}, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
		}
	}

	if env.JSONRPC != JSONRPCVersion {
		return nil, id, fmt.Errorf("%w: jsonrpc must be %q", ErrInvalidEnvelope, JSONRPCVersion)
	}

	switch {
	case env.Method != "" && id.IsValid():
		return &Request{
			JSONRPCMessage: JSONRPCMessage{JSONRPC: env.JSONRPC},
			ID:             id,
			Method:         env.Method,
			Params:         env.Params,
		}, id, nil
	case env.Method != "":
		return &Notification{
			JSONRPCMessage: JSONRPCMessage{JSONRPC: env.JSONRPC},
			Method:         env.Method,
			Params:         env.Params,
		}, RequestID{}, nil
	case env.Result != nil || env.Error != nil:
		if env.Result != nil && env.Error != nil {
			return nil, id, fmt.Errorf("%w: response carries both result and error", ErrInvalidEnvelope)
		}
		return &Response{
			JSONRPCMessage: JSONRPCMessage{JSONRPC: env.JSONRPC},
			ID:             id,
			Result:         env.Result,
			Error:          env.Error,
		}, id, nil
	default:
		return nil, id, fmt.Errorf("%w: missing method", ErrInvalidEnvelope)
	}
}

func marshalOptional(v interface{}) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(v)
}
