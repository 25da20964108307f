package registry

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	mcperrors "github.com/ajitpratap0/mcp-session-go/pkg/errors"
	"github.com/ajitpratap0/mcp-session-go/pkg/logging"
	"github.com/ajitpratap0/mcp-session-go/pkg/protocol"
	"github.com/ajitpratap0/mcp-session-go/pkg/utils"
)

// ToolHandler runs a tool with validated arguments. A returned error is
// reported to the caller as a tool-error result, except Cancelled errors
// which become protocol errors.
type ToolHandler func(ctx context.Context, args map[string]interface{}) (*protocol.CallToolResult, error)

// ToolEntry is a registered tool descriptor plus its handler
type ToolEntry struct {
	Tool    protocol.Tool
	Handler ToolHandler

	schema *utils.Validator
}

// ToolErrorData is the structured content of the result returned for calls
// that never reached a handler
type ToolErrorData struct {
	Code int    `json:"code"`
	Kind string `json:"kind"`
}

// Tools is the tool registry
type Tools struct {
	mu    sync.RWMutex
	tools *store[ToolEntry]

	hub    *hub
	logger logging.Logger
}

// NewTools creates an empty tool registry
func NewTools(logger logging.Logger) *Tools {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Tools{
		tools:  newStore[ToolEntry]("tool"),
		hub:    newHub(logger),
		logger: logger,
	}
}

// Register adds a tool. The input schema is parsed up front so that every
// call can be validated without touching the raw document again.
func (t *Tools) Register(ctx context.Context, entry ToolEntry) error {
	name := entry.Tool.Name
	if name == "" {
		return mcperrors.InvalidParams("tool name is required")
	}
	if entry.Handler == nil {
		return mcperrors.InvalidParamsf("tool %q has no handler", name)
	}
	if len(entry.Tool.InputSchema) == 0 {
		entry.Tool.InputSchema = json.RawMessage(`{"type":"object"}`)
	}
	schema, err := utils.ParseSchema(entry.Tool.InputSchema)
	if err != nil {
		return mcperrors.InvalidParamsf("tool %q has an invalid input schema", name).WithDetail(err.Error())
	}
	entry.schema = schema

	t.mu.Lock()
	if err := t.tools.add(name, entry); err != nil {
		t.mu.Unlock()
		return err
	}
	t.hub.publish(ctx, t.mu.Unlock, t.listChangedEvent())
	t.logger.Debug("tool registered", logging.String("tool", name))
	return nil
}

// Unregister removes a tool
func (t *Tools) Unregister(ctx context.Context, name string) error {
	t.mu.Lock()
	if _, err := t.tools.remove(name); err != nil {
		t.mu.Unlock()
		return err
	}
	t.hub.publish(ctx, t.mu.Unlock, t.listChangedEvent())
	t.logger.Debug("tool unregistered", logging.String("tool", name))
	return nil
}

// Get returns the descriptor of a registered tool
func (t *Tools) Get(name string) (protocol.Tool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	entry, err := t.tools.get(name)
	if err != nil {
		return protocol.Tool{}, err
	}
	return entry.Tool, nil
}

// List returns all tools in registration order
func (t *Tools) List() []protocol.Tool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	entries := t.tools.values()
	out := make([]protocol.Tool, len(entries))
	for i, e := range entries {
		out[i] = e.Tool
	}
	return out
}

// Call validates args against the tool's input schema and runs its handler.
//
// An unknown tool yields an isError result whose structured content names the
// NotFound kind; the returned error is nil so the caller can tell it apart from
// protocol failures. Arguments that fail validation yield InvalidParams.
func (t *Tools) Call(ctx context.Context, name string, args map[string]interface{}) (*protocol.CallToolResult, error) {
	t.mu.RLock()
	entry, err := t.tools.get(name)
	t.mu.RUnlock()

	if err != nil {
		result := protocol.ToolError(err.Error())
		result.StructuredContent = &ToolErrorData{Code: mcperrors.CodeNotFound, Kind: "NotFound"}
		return result, nil
	}

	if err := utils.ValidateArguments(ctx, entry.schema, args); err != nil {
		return nil, mcperrors.InvalidParamsf("invalid arguments for tool %q", name).WithDetail(err.Error())
	}
	if args == nil {
		args = map[string]interface{}{}
	}

	result, err := entry.Handler(ctx, args)
	if err != nil {
		if mcperrors.IsCode(err, mcperrors.CodeCancelled) || (ctx.Err() != nil && errors.Is(err, ctx.Err())) {
			return nil, err
		}
		t.logger.Debug("tool failed", logging.String("tool", name), logging.ErrorField(err))
		msg := err.Error()
		if mcpErr, ok := mcperrors.AsMCPError(err); ok {
			msg = mcpErr.Message()
		}
		return protocol.ToolError(msg), nil
	}
	if result == nil {
		result = &protocol.CallToolResult{}
	}
	if result.Content == nil {
		result.Content = []protocol.Content{}
	}
	return result, nil
}

// Watch registers sub for tools/list_changed notifications
func (t *Tools) Watch(sub Subscriber) {
	t.hub.watch(sub)
}

// Drop forgets the watch held by subscriberID
func (t *Tools) Drop(subscriberID string) {
	t.hub.drop(subscriberID)
}

func (t *Tools) listChangedEvent() event {
	return event{
		targets: t.hub.watching(),
		method:  protocol.MethodToolListChanged,
	}
}

// NewTypedTool builds a ToolEntry whose input schema is reflected from A.
// Arguments are decoded into a fresh A before fn runs.
func NewTypedTool[A any](name, description string, fn func(ctx context.Context, args A) (*protocol.CallToolResult, error)) (ToolEntry, error) {
	schema, err := utils.MarshalSchema(utils.ReflectSchema(new(A)))
	if err != nil {
		return ToolEntry{}, err
	}
	return ToolEntry{
		Tool: protocol.Tool{
			Name:        name,
			Description: description,
			InputSchema: schema,
		},
		Handler: func(ctx context.Context, raw map[string]interface{}) (*protocol.CallToolResult, error) {
			var args A
			data, err := json.Marshal(raw)
			if err != nil {
				return nil, err
			}
			if err := json.Unmarshal(data, &args); err != nil {
				return nil, err
			}
			return fn(ctx, args)
		},
	}, nil
}
