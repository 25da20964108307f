package logging

import (
	"context"
)

// Well known field keys
const (
	SessionIDKey = "session_id"
	RequestIDKey = "request_id"
	ComponentKey = "component"
)

type contextKey string

const (
	sessionIDCtxKey contextKey = "session_id"
	requestIDCtxKey contextKey = "request_id"
)

// ContextWithSessionID returns a context carrying a session id
func ContextWithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDCtxKey, sessionID)
}

// SessionIDFromContext extracts the session id from a context
func SessionIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(sessionIDCtxKey).(string); ok {
		return id
	}
	return ""
}

// ContextWithRequestID returns a context carrying a JSON-RPC request id
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDCtxKey, requestID)
}

// RequestIDFromContext extracts the request id from a context
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDCtxKey).(string); ok {
		return id
	}
	return ""
}

// Component returns logger annotated with a component name
func Component(logger Logger, name string) Logger {
	return logger.WithFields(String(ComponentKey, name))
}
