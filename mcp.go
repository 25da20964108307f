package mcp

import (
	"github.com/ajitpratap0/mcp-session-go/pkg/capability"
	"github.com/ajitpratap0/mcp-session-go/pkg/config"
	"github.com/ajitpratap0/mcp-session-go/pkg/protocol"
	"github.com/ajitpratap0/mcp-session-go/pkg/server"
	"github.com/ajitpratap0/mcp-session-go/pkg/transport"
)

// Version represents the current version of the engine
const Version = "1.0.0"

// Protocol revisions
const (
	ProtocolRevision       = protocol.ProtocolRevision
	ProtocolRevision202503 = protocol.ProtocolRevision202503
	ProtocolRevision202411 = protocol.ProtocolRevision202411
)

// Capability flags
const (
	CapabilityResources            = capability.Resources
	CapabilityResourcesSubscribe   = capability.ResourcesSubscribe
	CapabilityResourcesListChanged = capability.ResourcesListChanged
	CapabilityTools                = capability.Tools
	CapabilityToolsListChanged     = capability.ToolsListChanged
	CapabilityPrompts              = capability.Prompts
	CapabilityPromptsListChanged   = capability.PromptsListChanged
	CapabilityLogging              = capability.Logging
	CapabilityRoots                = capability.Roots
	CapabilityRootsListChanged     = capability.RootsListChanged
)

var (
	// NewSession creates a server session
	NewSession = server.NewSession

	// NewStdioConn frames messages over stdin and stdout
	NewStdioConn = transport.NewStdioConn

	// Pipe returns two connected in-memory connections
	Pipe = transport.Pipe

	// LoadConfig reads MCP_* environment variables
	LoadConfig = config.Load

	// Capabilities builds a capability set
	Capabilities = capability.New

	// AllCapabilities enables every capability
	AllCapabilities = capability.All
)

// Session options
var (
	WithName                  = server.WithName
	WithVersion               = server.WithVersion
	WithInstructions          = server.WithInstructions
	WithCapabilities          = server.WithCapabilities
	WithSupportedVersions     = server.WithSupportedVersions
	WithDebug                 = server.WithDebug
	WithMaxConcurrentRequests = server.WithMaxConcurrentRequests
	WithPageSize              = server.WithPageSize
	WithLogger                = server.WithLogger
	WithMetrics               = server.WithMetrics
	WithTracer                = server.WithTracer
	WithRegistries            = server.WithRegistries
)
