package server

import (
	"github.com/ajitpratap0/mcp-session-go/pkg/capability"
	"github.com/ajitpratap0/mcp-session-go/pkg/logging"
	"github.com/ajitpratap0/mcp-session-go/pkg/observability"
	"github.com/ajitpratap0/mcp-session-go/pkg/pagination"
	"github.com/ajitpratap0/mcp-session-go/pkg/registry"
)

const (
	defaultName                  = "mcp-session-go"
	defaultVersion               = "1.0.0"
	defaultMaxConcurrentRequests = 16
	defaultOutboxSize            = 64
)

// Config is everything a session needs. There is no package level state; two
// sessions built from different configs share nothing unless the config hands
// them the same registries.
type Config struct {
	Name         string
	Version      string
	Instructions string

	// Capabilities is the declared capability set
	Capabilities capability.Set

	// SupportedVersions defaults to protocol.SupportedProtocolVersions
	SupportedVersions []string

	// Debug attaches internal error text to InternalError responses
	Debug bool

	// MaxConcurrentRequests bounds the handlers running at once
	MaxConcurrentRequests int

	// PageSize is the number of entries per list page
	PageSize int

	// OutboxSize is the number of outbound messages buffered ahead of the writer
	OutboxSize int

	Logger  logging.Logger
	Metrics *observability.Metrics
	Tracer  *observability.TracingProvider

	// Optional registries. When nil the session creates private ones.
	Resources *registry.Resources
	Tools     *registry.Tools
	Prompts   *registry.Prompts
	Roots     *registry.Roots
}

// Option modifies a Config
type Option func(*Config)

// WithName sets the server name reported during initialize
func WithName(name string) Option {
	return func(c *Config) {
		c.Name = name
	}
}

// WithVersion sets the server version reported during initialize
func WithVersion(version string) Option {
	return func(c *Config) {
		c.Version = version
	}
}

// WithInstructions sets the instructions returned from initialize
func WithInstructions(instructions string) Option {
	return func(c *Config) {
		c.Instructions = instructions
	}
}

// WithCapabilities replaces the declared capability set
func WithCapabilities(caps capability.Set) Option {
	return func(c *Config) {
		c.Capabilities = caps
	}
}

// WithSupportedVersions restricts the protocol revisions the session accepts
func WithSupportedVersions(versions ...string) Option {
	return func(c *Config) {
		c.SupportedVersions = versions
	}
}

// WithDebug toggles debug error data
func WithDebug(debug bool) Option {
	return func(c *Config) {
		c.Debug = debug
	}
}

// WithMaxConcurrentRequests bounds concurrent handlers
func WithMaxConcurrentRequests(n int) Option {
	return func(c *Config) {
		c.MaxConcurrentRequests = n
	}
}

// WithPageSize sets the list page size
func WithPageSize(n int) Option {
	return func(c *Config) {
		c.PageSize = n
	}
}

// WithLogger sets the structured logger
func WithLogger(logger logging.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithMetrics records dispatch metrics into m
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Config) {
		c.Metrics = m
	}
}

// WithTracer traces dispatched methods with tp
func WithTracer(tp *observability.TracingProvider) Option {
	return func(c *Config) {
		c.Tracer = tp
	}
}

// WithRegistries makes the session serve the given registries instead of
// private ones. Nil arguments keep the private registry.
func WithRegistries(resources *registry.Resources, tools *registry.Tools, prompts *registry.Prompts, roots *registry.Roots) Option {
	return func(c *Config) {
		c.Resources = resources
		c.Tools = tools
		c.Prompts = prompts
		c.Roots = roots
	}
}

// Apply returns a copy of c with opts applied
func (c Config) Apply(opts ...Option) Config {
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = defaultName
	}
	if c.Version == "" {
		c.Version = defaultVersion
	}
	if c.MaxConcurrentRequests <= 0 {
		c.MaxConcurrentRequests = defaultMaxConcurrentRequests
	}
	c.PageSize = pagination.ClampLimit(c.PageSize)
	if c.OutboxSize <= 0 {
		c.OutboxSize = defaultOutboxSize
	}
	if c.Logger == nil {
		c.Logger = logging.Nop()
	}
	return c
}
