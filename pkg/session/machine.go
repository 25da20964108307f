// Package session implements the lifecycle state machine of one MCP session:
// the initialize handshake, version and capability negotiation, and the
// phase checks every dispatched message goes through.
package session

import (
	"sync"

	"github.com/google/uuid"

	"github.com/ajitpratap0/mcp-session-go/pkg/capability"
	mcperrors "github.com/ajitpratap0/mcp-session-go/pkg/errors"
	"github.com/ajitpratap0/mcp-session-go/pkg/logging"
	"github.com/ajitpratap0/mcp-session-go/pkg/protocol"
)

// Config holds what the server declares during the handshake
type Config struct {
	ServerInfo   protocol.Implementation
	Instructions string
	Capabilities capability.Set

	// SupportedVersions defaults to protocol.SupportedProtocolVersions
	SupportedVersions []string

	Logger logging.Logger
}

// Machine is the session state machine. All reads of negotiated state go
// through its lock, so capability checks never observe a half-written
// handshake.
type Machine struct {
	id     string
	cfg    Config
	logger logging.Logger

	mu              sync.RWMutex
	state           State
	protocolVersion string
	clientInfo      protocol.Implementation
	clientCaps      protocol.ClientCapabilities
	caps            capability.Set
}

// New creates a machine in the Uninitialized state with a fresh session id
func New(cfg Config) *Machine {
	if len(cfg.SupportedVersions) == 0 {
		cfg.SupportedVersions = protocol.SupportedProtocolVersions
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	id := uuid.NewString()
	return &Machine{
		id:     id,
		cfg:    cfg,
		logger: logging.Component(logger, "session").WithFields(logging.String(logging.SessionIDKey, id)),
	}
}

// ID returns the session id
func (m *Machine) ID() string {
	return m.id
}

// State returns the current lifecycle phase
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// ProtocolVersion returns the negotiated protocol version, empty before the handshake
func (m *Machine) ProtocolVersion() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.protocolVersion
}

// ClientInfo returns the identity the client sent in initialize
func (m *Machine) ClientInfo() protocol.Implementation {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.clientInfo
}

// ClientCapabilities returns the capabilities the client declared
func (m *Machine) ClientCapabilities() protocol.ClientCapabilities {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.clientCaps
}

// Capabilities returns the negotiated capability set. It is empty until
// initialize succeeds.
func (m *Machine) Capabilities() capability.Set {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.caps
}

// SupportsVersion reports whether version is in the supported set
func (m *Machine) SupportsVersion(version string) bool {
	for _, v := range m.cfg.SupportedVersions {
		if v == version {
			return true
		}
	}
	return false
}

// Initialize performs the server side of the handshake. On success the
// machine moves to Initializing; on failure it stays Uninitialized.
func (m *Machine) Initialize(params *protocol.InitializeParams) (*protocol.InitializeResult, error) {
	if params == nil || params.ProtocolVersion == "" {
		return nil, mcperrors.InvalidParams("protocolVersion is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != Uninitialized {
		return nil, mcperrors.InvalidRequest("session already initialized")
	}
	if !m.SupportsVersion(params.ProtocolVersion) {
		m.logger.Warn("unsupported protocol version",
			logging.String("requested", params.ProtocolVersion))
		return nil, mcperrors.UnsupportedProtocolVersion(params.ProtocolVersion, m.cfg.SupportedVersions)
	}

	m.protocolVersion = params.ProtocolVersion
	m.clientInfo = params.ClientInfo
	m.clientCaps = params.Capabilities
	m.caps = capability.Negotiate(m.cfg.Capabilities, params.Capabilities)
	m.transition(Initializing)

	m.logger.Info("session initializing",
		logging.String("client", params.ClientInfo.Name),
		logging.String("client_version", params.ClientInfo.Version),
		logging.String("protocol_version", params.ProtocolVersion),
		logging.String("capabilities", m.caps.String()))

	return &protocol.InitializeResult{
		ProtocolVersion: m.protocolVersion,
		Capabilities:    m.caps.Wire(),
		ServerInfo:      m.cfg.ServerInfo,
		Instructions:    m.cfg.Instructions,
	}, nil
}

// Acknowledge handles the client's initialized notification
func (m *Machine) Acknowledge() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Initializing {
		return mcperrors.InvalidRequest("initialized received in state " + m.state.String())
	}
	m.transition(Ready)
	return nil
}

// Check validates that a request for method may be dispatched now and returns
// the capability set to gate it with. initialize is only valid while
// Uninitialized; every other request requires Ready.
func (m *Machine) Check(method string) (capability.Set, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	switch m.state {
	case Uninitialized:
		if method == protocol.MethodInitialize {
			return m.caps, nil
		}
		return m.caps, mcperrors.NotInitialized()
	case Initializing:
		if method == protocol.MethodInitialize {
			return m.caps, mcperrors.InvalidRequest("session already initialized")
		}
		return m.caps, mcperrors.NotInitialized()
	case Ready:
		if method == protocol.MethodInitialize {
			return m.caps, mcperrors.InvalidRequest("session already initialized")
		}
		return m.caps, nil
	default:
		return m.caps, mcperrors.InvalidRequest("session is shutting down")
	}
}

// Shutdown moves the session to ShuttingDown. It reports false when the
// session was already shutting down or closed.
func (m *Machine) Shutdown() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state >= ShuttingDown {
		return false
	}
	m.transition(ShuttingDown)
	return true
}

// Close moves the session to the terminal Closed state
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Closed {
		m.transition(Closed)
	}
}

// transition must be called with mu held
func (m *Machine) transition(to State) {
	from := m.state
	m.state = to
	m.logger.Debug("session state changed",
		logging.String("from", from.String()),
		logging.String("to", to.String()))
}
