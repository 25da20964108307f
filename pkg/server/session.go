package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	mcperrors "github.com/ajitpratap0/mcp-session-go/pkg/errors"
	"github.com/ajitpratap0/mcp-session-go/pkg/logging"
	"github.com/ajitpratap0/mcp-session-go/pkg/observability"
	"github.com/ajitpratap0/mcp-session-go/pkg/progress"
	"github.com/ajitpratap0/mcp-session-go/pkg/protocol"
	"github.com/ajitpratap0/mcp-session-go/pkg/registry"
	"github.com/ajitpratap0/mcp-session-go/pkg/session"
	"github.com/ajitpratap0/mcp-session-go/pkg/transport"
)

// ErrAlreadyServing is returned by Serve when the session is already bound to
// a connection
var ErrAlreadyServing = errors.New("session is already serving a connection")

// Session is one MCP conversation with one client. It owns the lifecycle
// machine, the progress tracker, the client log level and the set of running
// requests; registries are owned too unless the Config supplied shared ones.
type Session struct {
	cfg     Config
	machine *session.Machine
	logger  logging.Logger

	resources *registry.Resources
	tools     *registry.Tools
	prompts   *registry.Prompts
	roots     *registry.Roots

	tracker   *progress.Tracker
	clientLog *clientLog
	inflight  *inflight
	out       *outbox
	routes    map[string]route

	serving atomic.Bool

	mu                sync.Mutex
	stopRead          context.CancelFunc
	shutdownRequested bool

	closeOnce sync.Once
}

// NewSession builds an independent session from cfg
func NewSession(cfg Config, opts ...Option) *Session {
	cfg = cfg.Apply(opts...).withDefaults()

	machine := session.New(session.Config{
		ServerInfo:        protocol.Implementation{Name: cfg.Name, Version: cfg.Version},
		Instructions:      cfg.Instructions,
		Capabilities:      cfg.Capabilities,
		SupportedVersions: cfg.SupportedVersions,
		Logger:            cfg.Logger,
	})
	logger := logging.Component(cfg.Logger, "server").
		WithFields(logging.String(logging.SessionIDKey, machine.ID()))
	registryLogger := logging.Component(cfg.Logger, "registry")

	s := &Session{
		cfg:       cfg,
		machine:   machine,
		logger:    logger,
		resources: cfg.Resources,
		tools:     cfg.Tools,
		prompts:   cfg.Prompts,
		roots:     cfg.Roots,
		clientLog: newClientLog(),
		inflight:  newInflight(logger),
		out:       newOutbox(cfg.OutboxSize),
	}
	if s.resources == nil {
		s.resources = registry.NewResources(registryLogger)
	}
	if s.tools == nil {
		s.tools = registry.NewTools(registryLogger)
	}
	if s.prompts == nil {
		s.prompts = registry.NewPrompts(registryLogger)
	}
	if s.roots == nil {
		s.roots = registry.NewRoots(registryLogger)
	}
	s.tracker = progress.NewTracker(s, logging.Component(cfg.Logger, "progress"))
	s.routes = s.buildRoutes()
	return s
}

// ID returns the session id
func (s *Session) ID() string { return s.machine.ID() }

// State returns the lifecycle phase
func (s *Session) State() session.State { return s.machine.State() }

// Machine exposes the negotiated handshake state
func (s *Session) Machine() *session.Machine { return s.machine }

// Resources returns the resource registry served by this session
func (s *Session) Resources() *registry.Resources { return s.resources }

// Tools returns the tool registry served by this session
func (s *Session) Tools() *registry.Tools { return s.tools }

// Prompts returns the prompt registry served by this session
func (s *Session) Prompts() *registry.Prompts { return s.prompts }

// Roots returns the root registry served by this session
func (s *Session) Roots() *registry.Roots { return s.roots }

// Tracker returns the progress tracker
func (s *Session) Tracker() *progress.Tracker { return s.tracker }

// SubscriberID identifies the session to registries
func (s *Session) SubscriberID() string { return s.machine.ID() }

// Notify queues a server notification. Notifications raised before the
// session is ready are discarded. While shutting down they are still queued
// until the outbox closes, so handlers winding down can report progress; once
// closed Notify fails with transport.ErrClosed so registries forget the
// session.
func (s *Session) Notify(ctx context.Context, method string, params interface{}) error {
	switch s.machine.State() {
	case session.Ready, session.ShuttingDown:
	case session.Closed:
		return transport.ErrClosed
	default:
		return nil
	}

	n, err := protocol.NewNotification(method, params)
	if err != nil {
		return fmt.Errorf("build %s notification: %w", method, err)
	}
	if err := s.out.send(ctx, n); err != nil {
		s.cfg.Metrics.RecordNotification(method, "dropped")
		return err
	}
	s.cfg.Metrics.RecordNotification(method, "ok")
	return nil
}

// Serve runs the session over conn until the peer hangs up, the client sends
// shutdown, ctx ends or Close is called. Requests are handled concurrently, up
// to MaxConcurrentRequests; notifications are handled in arrival order. Serve
// closes conn and the session before returning.
func (s *Session) Serve(ctx context.Context, conn transport.Conn) error {
	if !s.serving.CompareAndSwap(false, true) {
		return ErrAlreadyServing
	}
	conn = observability.InstrumentConn(conn, s.cfg.Metrics)
	defer func() { _ = conn.Close() }()

	s.cfg.Metrics.RecordActiveSessions(1)
	defer s.cfg.Metrics.RecordActiveSessions(-1)

	g, gctx := errgroup.WithContext(ctx)
	readCtx, stopRead := context.WithCancel(gctx)
	defer stopRead()

	s.mu.Lock()
	s.stopRead = stopRead
	closed := s.machine.State() == session.Closed
	s.mu.Unlock()
	if closed {
		return transport.ErrClosed
	}

	s.logger.Info("session serving")

	g.Go(func() error {
		return s.out.run(gctx, conn)
	})
	g.Go(func() error {
		var handlers errgroup.Group
		sem := semaphore.NewWeighted(int64(s.cfg.MaxConcurrentRequests))

		err := s.readLoop(gctx, readCtx, conn, &handlers, sem)
		if !s.isShutdownRequested() {
			s.abort()
		}
		_ = handlers.Wait()
		s.out.close()
		return err
	})

	err := g.Wait()
	s.Close()
	if err != nil {
		s.logger.Warn("session ended with error", logging.ErrorField(err))
		return err
	}
	return nil
}

func (s *Session) readLoop(ctx, readCtx context.Context, conn transport.Conn, handlers *errgroup.Group, sem *semaphore.Weighted) error {
	for {
		msg, err := conn.Read(readCtx)
		if err != nil {
			var decodeErr *transport.DecodeError
			switch {
			case errors.As(err, &decodeErr):
				s.rejectFrame(ctx, decodeErr)
				continue
			case errors.Is(err, io.EOF), errors.Is(err, transport.ErrClosed):
				s.logger.Info("transport closed by peer")
				return nil
			case readCtx.Err() != nil && ctx.Err() == nil:
				return nil
			default:
				return err
			}
		}

		req, ok := msg.(*protocol.Request)
		if !ok {
			s.Dispatch(ctx, msg)
			continue
		}

		if err := sem.Acquire(readCtx, 1); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return nil
		}
		reqCtx, done, ok := s.inflight.begin(ctx, req.ID)
		if !ok {
			sem.Release(1)
			s.reply(ctx, mcperrors.ToResponse(req.ID,
				mcperrors.InvalidRequest("duplicate request id "+req.ID.String()), s.cfg.Debug))
			continue
		}
		handlers.Go(func() error {
			defer sem.Release(1)
			defer done()
			s.reply(ctx, s.Dispatch(reqCtx, req))
			return nil
		})
	}
}

func (s *Session) reply(ctx context.Context, resp *protocol.Response) {
	if resp == nil {
		return
	}
	if err := s.out.send(ctx, resp); err != nil {
		s.logger.Debug("dropping response",
			logging.String(logging.RequestIDKey, resp.ID.String()),
			logging.ErrorField(err))
	}
}

// rejectFrame answers a frame that could not be decoded
func (s *Session) rejectFrame(ctx context.Context, decodeErr *transport.DecodeError) {
	var err mcperrors.MCPError
	if errors.Is(decodeErr.Err, protocol.ErrParse) {
		err = mcperrors.ParseError(decodeErr.Err.Error())
	} else {
		err = mcperrors.InvalidRequest("invalid request").WithDetail(decodeErr.Err.Error())
	}
	s.logger.Warn("rejecting malformed message", logging.ErrorField(decodeErr.Err))
	s.cfg.Metrics.RecordError(mcperrors.CodeName(err.Code()), "")
	s.reply(ctx, mcperrors.ToResponse(decodeErr.ID, err, s.cfg.Debug))
}

// requestShutdown handles the client's shutdown request: reading stops,
// running requests are cancelled and every progress operation is flagged.
// Their late responses and progress notifications are still written.
func (s *Session) requestShutdown() {
	s.machine.Shutdown()
	s.mu.Lock()
	s.shutdownRequested = true
	stop := s.stopRead
	s.mu.Unlock()
	if stop != nil {
		stop()
	}
	s.inflight.cancelAll()
	s.tracker.CancelAll()
	s.logger.Info("shutdown requested", logging.Int("inflight", s.inflight.len()))
}

func (s *Session) isShutdownRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdownRequested
}

// abort handles loss of the transport: running requests are cancelled and
// every progress operation is flagged
func (s *Session) abort() {
	s.machine.Shutdown()
	s.inflight.cancelAll()
	s.tracker.CancelAll()
}

// Close ends the session. It is safe to call more than once and from any
// goroutine; a running Serve returns once queued output has been written.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.abort()

		id := s.ID()
		s.resources.Drop(id)
		s.tools.Drop(id)
		s.prompts.Drop(id)
		s.roots.Drop(id)

		s.mu.Lock()
		stop := s.stopRead
		s.mu.Unlock()
		if stop != nil {
			stop()
		}
		s.out.close()
		if !s.serving.Load() {
			s.out.stop()
		}

		s.machine.Close()
		s.logger.Info("session closed")
	})
}
