package server

import (
	"context"
	"time"

	"github.com/ajitpratap0/mcp-session-go/pkg/capability"
	mcperrors "github.com/ajitpratap0/mcp-session-go/pkg/errors"
	"github.com/ajitpratap0/mcp-session-go/pkg/pagination"
	"github.com/ajitpratap0/mcp-session-go/pkg/protocol"
	"github.com/ajitpratap0/mcp-session-go/pkg/registry"
)

// emptyParams accepts any params object, including one carrying only _meta
type emptyParams struct{}

func (s *Session) buildRoutes() map[string]route {
	return map[string]route{
		protocol.MethodInitialize: {kindLifecycle, capability.None, typed(s.handleInitialize)},
		protocol.MethodPing:       {kindLifecycle, capability.None, typed(s.handlePing)},
		protocol.MethodShutdown:   {kindLifecycle, capability.None, typed(s.handleShutdown)},

		protocol.MethodListResources:         {kindResource, capability.Resources, typed(s.handleListResources)},
		protocol.MethodListResourceTemplates: {kindResource, capability.Resources, typed(s.handleListResourceTemplates)},
		protocol.MethodReadResource:          {kindResource, capability.Resources, typed(s.handleReadResource)},
		protocol.MethodSubscribeResource:     {kindResource, capability.ResourcesSubscribe, typed(s.handleSubscribe)},
		protocol.MethodUnsubscribeResource:   {kindResource, capability.ResourcesSubscribe, typed(s.handleUnsubscribe)},

		protocol.MethodListTools: {kindTool, capability.Tools, typed(s.handleListTools)},
		protocol.MethodCallTool:  {kindTool, capability.Tools, typed(s.handleCallTool)},

		protocol.MethodListPrompts: {kindPrompt, capability.Prompts, typed(s.handleListPrompts)},
		protocol.MethodGetPrompt:   {kindPrompt, capability.Prompts, typed(s.handleGetPrompt)},

		protocol.MethodListRoots: {kindRoot, capability.Roots, typed(s.handleListRoots)},

		protocol.MethodSetLogLevel: {kindLogging, capability.Logging, typed(s.handleSetLevel)},
	}
}

func (s *Session) handleInitialize(_ context.Context, params *protocol.InitializeParams) (interface{}, error) {
	return s.machine.Initialize(params)
}

func (s *Session) handlePing(_ context.Context, _ *emptyParams) (interface{}, error) {
	return &protocol.EmptyResult{}, nil
}

func (s *Session) handleShutdown(_ context.Context, _ *emptyParams) (interface{}, error) {
	s.requestShutdown()
	return &protocol.EmptyResult{}, nil
}

func (s *Session) handleListResources(_ context.Context, params *protocol.ListResourcesParams) (interface{}, error) {
	page, next, err := pagination.Page(s.resources.List(), params.Cursor, s.cfg.PageSize)
	if err != nil {
		return nil, err
	}
	return &protocol.ListResourcesResult{
		Resources:       page,
		PaginatedResult: protocol.PaginatedResult{NextCursor: next},
	}, nil
}

func (s *Session) handleListResourceTemplates(_ context.Context, params *protocol.ListResourceTemplatesParams) (interface{}, error) {
	page, next, err := pagination.Page(s.resources.Templates(), params.Cursor, s.cfg.PageSize)
	if err != nil {
		return nil, err
	}
	return &protocol.ListResourceTemplatesResult{
		ResourceTemplates: page,
		PaginatedResult:   protocol.PaginatedResult{NextCursor: next},
	}, nil
}

func (s *Session) handleReadResource(ctx context.Context, params *protocol.ReadResourceParams) (interface{}, error) {
	if params.URI == "" {
		return nil, mcperrors.InvalidParams("uri is required")
	}
	contents, err := s.resources.Read(ctx, params.URI)
	if err != nil {
		return nil, err
	}
	if contents == nil {
		contents = []protocol.ResourceContents{}
	}
	return &protocol.ReadResourceResult{Contents: contents}, nil
}

func (s *Session) handleSubscribe(_ context.Context, params *protocol.SubscribeParams) (interface{}, error) {
	if err := s.resources.Subscribe(params.URI, s); err != nil {
		return nil, err
	}
	return &protocol.EmptyResult{}, nil
}

func (s *Session) handleUnsubscribe(_ context.Context, params *protocol.SubscribeParams) (interface{}, error) {
	if params.URI == "" {
		return nil, mcperrors.InvalidParams("uri is required")
	}
	if err := s.resources.Unsubscribe(params.URI, s.ID()); err != nil {
		return nil, err
	}
	return &protocol.EmptyResult{}, nil
}

func (s *Session) handleListTools(_ context.Context, params *protocol.ListToolsParams) (interface{}, error) {
	page, next, err := pagination.Page(s.tools.List(), params.Cursor, s.cfg.PageSize)
	if err != nil {
		return nil, err
	}
	return &protocol.ListToolsResult{
		Tools:           page,
		PaginatedResult: protocol.PaginatedResult{NextCursor: next},
	}, nil
}

// handleCallTool reports tool failures inside the result; only malformed
// calls and cancellation surface as protocol errors
func (s *Session) handleCallTool(ctx context.Context, params *protocol.CallToolParams) (interface{}, error) {
	if params.Name == "" {
		return nil, mcperrors.InvalidParams("tool name is required")
	}

	start := time.Now()
	result, err := s.tools.Call(ctx, params.Name, params.Arguments)
	status := "ok"
	switch {
	case err != nil:
		status = "error"
	case result.IsError:
		status = "tool_error"
	}
	s.cfg.Metrics.RecordToolCall(toolLabel(params.Name, result), status, time.Since(start))
	if err != nil {
		return nil, err
	}
	return result, nil
}

// toolLabel is the metric label of a tool call; names that matched no tool
// share one label
func toolLabel(name string, result *protocol.CallToolResult) string {
	if result != nil && result.IsError {
		if data, ok := result.StructuredContent.(*registry.ToolErrorData); ok && data.Kind == "NotFound" {
			return unknownLabel
		}
	}
	return name
}

func (s *Session) handleListPrompts(_ context.Context, params *protocol.ListPromptsParams) (interface{}, error) {
	page, next, err := pagination.Page(s.prompts.List(), params.Cursor, s.cfg.PageSize)
	if err != nil {
		return nil, err
	}
	return &protocol.ListPromptsResult{
		Prompts:         page,
		PaginatedResult: protocol.PaginatedResult{NextCursor: next},
	}, nil
}

func (s *Session) handleGetPrompt(ctx context.Context, params *protocol.GetPromptParams) (interface{}, error) {
	if params.Name == "" {
		return nil, mcperrors.InvalidParams("prompt name is required")
	}
	return s.prompts.Render(ctx, params.Name, params.Arguments)
}

func (s *Session) handleListRoots(_ context.Context, _ *emptyParams) (interface{}, error) {
	roots := s.roots.List()
	if roots == nil {
		roots = []protocol.Root{}
	}
	return &protocol.ListRootsResult{Roots: roots}, nil
}
