package server

import (
	"context"
	"sync"

	"github.com/ajitpratap0/mcp-session-go/pkg/capability"
	mcperrors "github.com/ajitpratap0/mcp-session-go/pkg/errors"
	"github.com/ajitpratap0/mcp-session-go/pkg/logging"
	"github.com/ajitpratap0/mcp-session-go/pkg/protocol"
	"github.com/ajitpratap0/mcp-session-go/pkg/session"
)

// clientLog holds the minimum level of log messages forwarded to the client
type clientLog struct {
	mu    sync.RWMutex
	level protocol.LoggingLevel
}

func newClientLog() *clientLog {
	return &clientLog{level: protocol.LoggingLevelInfo}
}

func (l *clientLog) setLevel(level protocol.LoggingLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

func (l *clientLog) threshold() protocol.LoggingLevel {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.level
}

func (l *clientLog) enabled(level protocol.LoggingLevel) bool {
	return level.Severity() >= l.threshold().Severity()
}

// LogLevel returns the level set by the client, info until it sends
// logging/setLevel
func (s *Session) LogLevel() protocol.LoggingLevel {
	return s.clientLog.threshold()
}

// Log sends a notifications/message to the client. Messages below the level
// set by the client, or sent while the logging capability is off or the
// session is not ready, are dropped without error.
func (s *Session) Log(ctx context.Context, level protocol.LoggingLevel, logger string, data interface{}) error {
	if !level.Valid() {
		return mcperrors.InvalidParamsf("unknown logging level %q", string(level))
	}
	if s.machine.State() != session.Ready || !s.machine.Capabilities().Has(capability.Logging) {
		return nil
	}
	if !s.clientLog.enabled(level) {
		return nil
	}
	return s.Notify(ctx, protocol.MethodLogMessage, &protocol.LoggingMessageParams{
		Level:  level,
		Logger: logger,
		Data:   data,
	})
}

func (s *Session) handleSetLevel(_ context.Context, params *protocol.SetLevelParams) (interface{}, error) {
	if params.Level == "" {
		return nil, mcperrors.InvalidParams("level is required")
	}
	s.clientLog.setLevel(params.Level)
	s.logger.Debug("client log level set", logging.String("level", string(params.Level)))
	return &protocol.EmptyResult{}, nil
}
