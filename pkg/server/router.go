package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ajitpratap0/mcp-session-go/pkg/capability"
	mcperrors "github.com/ajitpratap0/mcp-session-go/pkg/errors"
	"github.com/ajitpratap0/mcp-session-go/pkg/logging"
	"github.com/ajitpratap0/mcp-session-go/pkg/observability"
	"github.com/ajitpratap0/mcp-session-go/pkg/progress"
	"github.com/ajitpratap0/mcp-session-go/pkg/protocol"
	"github.com/ajitpratap0/mcp-session-go/pkg/registry"
	"github.com/ajitpratap0/mcp-session-go/pkg/session"
)

// routeKind names the subsystem a method belongs to
type routeKind string

const (
	kindLifecycle routeKind = "lifecycle"
	kindResource  routeKind = "resource"
	kindTool      routeKind = "tool"
	kindPrompt    routeKind = "prompt"
	kindRoot      routeKind = "root"
	kindLogging   routeKind = "logging"
)

// unknownLabel stands in for client-chosen names in metric labels
const unknownLabel = "unknown"

type requestHandler func(ctx context.Context, params json.RawMessage) (interface{}, error)

// route is one entry of the method table. flag is the capability that must
// be enabled for the method to exist; capability.None means always present.
type route struct {
	kind   routeKind
	flag   capability.Flag
	handle requestHandler
}

// typed adapts a handler taking decoded params. Absent or null params decode
// to the zero value.
func typed[P any](fn func(ctx context.Context, params *P) (interface{}, error)) requestHandler {
	return func(ctx context.Context, raw json.RawMessage) (interface{}, error) {
		params := new(P)
		if len(raw) > 0 && !bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			if err := json.Unmarshal(raw, params); err != nil {
				return nil, mcperrors.InvalidParams("invalid params").WithDetail(err.Error())
			}
		}
		return fn(ctx, params)
	}
}

// Dispatch handles one inbound message. Requests yield their response;
// notifications and stray responses yield nil. Dispatch never blocks on
// other requests and may be called concurrently.
func (s *Session) Dispatch(ctx context.Context, msg protocol.Message) *protocol.Response {
	switch m := msg.(type) {
	case *protocol.Request:
		return s.handleRequest(ctx, m)
	case *protocol.Notification:
		s.handleNotification(ctx, m)
	case *protocol.Response:
		s.logger.Debug("ignoring response from client",
			logging.String(logging.RequestIDKey, m.ID.String()))
	}
	return nil
}

func (s *Session) handleRequest(ctx context.Context, req *protocol.Request) *protocol.Response {
	start := time.Now()
	s.cfg.Metrics.RequestStarted()
	defer s.cfg.Metrics.RequestFinished()

	ctx = logging.ContextWithSessionID(ctx, s.ID())
	ctx = logging.ContextWithRequestID(ctx, req.ID.String())
	logger := s.logger.WithFields(
		logging.String("method", req.Method),
		logging.String(logging.RequestIDKey, req.ID.String()))

	label := s.methodLabel(req.Method)
	ctx, span := s.cfg.Tracer.StartMethodSpan(ctx, label,
		attribute.String("mcp.request_id", req.ID.String()),
		attribute.String("mcp.session_id", s.ID()))

	result, err := s.call(ctx, req, logger)
	observability.EndSpan(span, err)

	var resp *protocol.Response
	if err == nil {
		resp, err = protocol.NewResponse(req.ID, result)
		if err != nil {
			err = mcperrors.Internal(err)
		}
	}
	if err != nil {
		resp = s.errorResponse(req, label, err, logger)
		s.cfg.Metrics.RecordRequest(label, "error", time.Since(start))
		return resp
	}
	s.cfg.Metrics.RecordRequest(label, "ok", time.Since(start))
	logger.Debug("request handled", logging.Duration("duration", time.Since(start)))
	return resp
}

// call runs the phase check, capability gate and handler of req. A panicking
// handler becomes an InternalError; the session keeps running.
func (s *Session) call(ctx context.Context, req *protocol.Request, logger logging.Logger) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("handler panicked",
				logging.Any("panic", r),
				logging.String("stack", string(debug.Stack())))
			result = nil
			err = mcperrors.Internal(fmt.Errorf("panic in %s handler: %v", req.Method, r))
		}
	}()

	caps, err := s.machine.Check(req.Method)
	if err != nil {
		return nil, err
	}
	rt, ok := s.routes[req.Method]
	if !ok || (rt.flag != capability.None && !caps.Has(rt.flag)) {
		return nil, mcperrors.MethodNotFound(req.Method)
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("mcp.kind", string(rt.kind)))

	if meta := protocol.RequestMeta(req.Params); meta.ProgressToken != nil {
		op, err := s.tracker.Create(*meta.ProgressToken, nil)
		if err != nil {
			return nil, err
		}
		defer op.Done()
		s.inflight.attach(req.ID, op)
		ctx = progress.WithOperation(ctx, op)
	}

	result, err = rt.handle(ctx, req.Params)
	if err != nil && isContextError(err) {
		return nil, mcperrors.Cancelled(req.Method)
	}
	return result, err
}

func (s *Session) errorResponse(req *protocol.Request, label string, err error, logger logging.Logger) *protocol.Response {
	mcpErr, ok := mcperrors.AsMCPError(err)
	if !ok {
		mcpErr = mcperrors.Internal(err)
	}
	mcpErr = mcpErr.WithContext(&mcperrors.Context{
		RequestID: req.ID.String(),
		Method:    req.Method,
		SessionID: s.ID(),
		Component: "server",
	})

	l := logger.WithError(mcpErr)
	switch {
	case mcperrors.IsCategory(mcpErr, mcperrors.CategoryCancelled):
		l.Info("request cancelled")
	case mcpErr.Code() == mcperrors.CodeInternalError, mcpErr.Severity() == mcperrors.SeverityCritical:
		l.Error("request failed")
	case mcpErr.Severity() == mcperrors.SeverityError:
		l.Warn("request rejected")
	default:
		l.Debug("request rejected")
	}
	s.cfg.Metrics.RecordError(mcperrors.CodeName(mcpErr.Code()), label)
	return mcperrors.ToResponse(req.ID, mcpErr, s.cfg.Debug)
}

// methodLabel is the metric and span label of a request method. Methods
// without a route share one label.
func (s *Session) methodLabel(method string) string {
	if _, ok := s.routes[method]; ok {
		return method
	}
	return unknownLabel
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// handleNotification processes client notifications in arrival order. Every
// notification other than the initialized acknowledgment is rejected until
// the handshake has started.
func (s *Session) handleNotification(ctx context.Context, n *protocol.Notification) {
	status := "ok"
	label := n.Method
	defer func() { s.cfg.Metrics.RecordIncomingNotification(label, status) }()

	logger := s.logger.WithFields(logging.String("method", n.Method))
	switch n.Method {
	case protocol.MethodInitialized, protocol.MethodInitializedLegacy:
		if err := s.acknowledge(); err != nil {
			status = "rejected"
			logger.Warn("unexpected initialized notification", logging.ErrorField(err))
		}
	case protocol.MethodCancelled:
		if s.machine.State() == session.Uninitialized {
			status = "rejected"
			logger.Warn("notification before initialize")
			return
		}
		var params protocol.CancelledParams
		if err := json.Unmarshal(n.Params, &params); err != nil || !params.RequestID.IsValid() {
			status = "invalid"
			logger.Warn("malformed cancellation")
			return
		}
		if !s.inflight.cancel(params.RequestID) {
			status = "unknown_request"
		}
	default:
		status = "ignored"
		label = unknownLabel
		logger.Debug("ignoring notification")
	}
}

// acknowledge completes the handshake and starts the list watches enabled by
// the negotiated capabilities
func (s *Session) acknowledge() error {
	if err := s.machine.Acknowledge(); err != nil {
		return err
	}
	caps := s.machine.Capabilities()
	if caps.Has(capability.ResourcesListChanged) {
		s.resources.Watch(s)
	}
	if caps.Has(capability.ToolsListChanged) {
		s.tools.Watch(s)
	}
	if caps.Has(capability.PromptsListChanged) {
		s.prompts.Watch(s)
	}
	if caps.Has(capability.RootsListChanged) {
		if err := s.roots.Subscribe(registry.Wildcard, s); err != nil {
			return err
		}
	}
	s.logger.Info("session ready", logging.String("capabilities", caps.String()))
	return nil
}
