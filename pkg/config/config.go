// Package config loads session engine settings from MCP_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"

	"github.com/ajitpratap0/mcp-session-go/pkg/capability"
	"github.com/ajitpratap0/mcp-session-go/pkg/logging"
	"github.com/ajitpratap0/mcp-session-go/pkg/observability"
	"github.com/ajitpratap0/mcp-session-go/pkg/protocol"
	"github.com/ajitpratap0/mcp-session-go/pkg/server"
)

// Config mirrors the environment. List valued settings are comma separated.
type Config struct {
	// ENV: MCP_SERVER_NAME
	Name string `env:"MCP_SERVER_NAME,default=mcp-session-go"`
	// ENV: MCP_SERVER_VERSION
	Version string `env:"MCP_SERVER_VERSION,default=1.0.0"`
	// ENV: MCP_INSTRUCTIONS
	Instructions string `env:"MCP_INSTRUCTIONS"`

	// Capability names such as "tools,resources.subscribe". Empty or "all"
	// enables every capability. ENV: MCP_CAPABILITIES
	Capabilities string `env:"MCP_CAPABILITIES"`
	// Accepted protocol revisions; empty accepts every known revision.
	// ENV: MCP_PROTOCOL_VERSIONS
	ProtocolVersions string `env:"MCP_PROTOCOL_VERSIONS"`

	Debug                 bool `env:"MCP_DEBUG,default=false"`
	MaxConcurrentRequests int  `env:"MCP_MAX_CONCURRENT_REQUESTS,default=16"`
	PageSize              int  `env:"MCP_PAGE_SIZE,default=50"`

	LogLevel  string `env:"MCP_LOG_LEVEL,default=info"`
	LogFormat string `env:"MCP_LOG_FORMAT,default=text"`

	// MetricsAddr enables the Prometheus endpoint when set, e.g. ":9090"
	MetricsAddr string `env:"MCP_METRICS_ADDR"`
	MetricsPath string `env:"MCP_METRICS_PATH,default=/metrics"`

	TracingExporter   string  `env:"MCP_TRACING_EXPORTER,default=noop"`
	TracingEndpoint   string  `env:"MCP_TRACING_ENDPOINT"`
	TracingInsecure   bool    `env:"MCP_TRACING_INSECURE,default=false"`
	TracingSampleRate float64 `env:"MCP_TRACING_SAMPLE_RATE,default=1"`
	// Methods excluded from tracing. ENV: MCP_TRACING_SKIP_METHODS
	TracingSkipMethods string `env:"MCP_TRACING_SKIP_METHODS,default=ping"`

	// Directories exposed as roots and watched for changes. ENV: MCP_WATCH_PATHS
	WatchPaths string `env:"MCP_WATCH_PATHS"`

	ShutdownTimeout time.Duration `env:"MCP_SHUTDOWN_TIMEOUT,default=5s"`
}

// Load reads the environment. Unset variables take their defaults.
func Load() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that envdecode cannot
func (c *Config) Validate() error {
	if _, err := c.CapabilitySet(); err != nil {
		return err
	}
	for _, v := range c.Versions() {
		if !isKnownVersion(v) {
			return fmt.Errorf("MCP_PROTOCOL_VERSIONS: unknown protocol version %q", v)
		}
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("MCP_LOG_LEVEL: %w", err)
	}
	if _, err := logging.NewFormatter(c.LogFormat); err != nil {
		return fmt.Errorf("MCP_LOG_FORMAT: %w", err)
	}
	if c.MaxConcurrentRequests < 0 {
		return fmt.Errorf("MCP_MAX_CONCURRENT_REQUESTS must not be negative")
	}
	if c.TracingSampleRate < 0 || c.TracingSampleRate > 1 {
		return fmt.Errorf("MCP_TRACING_SAMPLE_RATE must be within [0, 1]")
	}
	return nil
}

// CapabilitySet parses Capabilities
func (c *Config) CapabilitySet() (capability.Set, error) {
	names := splitList(c.Capabilities)
	if len(names) == 0 {
		return capability.All(), nil
	}
	caps, err := capability.Parse(names...)
	if err != nil {
		return capability.Set{}, fmt.Errorf("MCP_CAPABILITIES: %w", err)
	}
	return caps, nil
}

// Versions returns the configured protocol revisions
func (c *Config) Versions() []string {
	return splitList(c.ProtocolVersions)
}

// Watch returns the configured watch directories
func (c *Config) Watch() []string {
	return splitList(c.WatchPaths)
}

// Logger builds the structured logger writing to w
func (c *Config) Logger(w io.Writer) (logging.Logger, error) {
	formatter, err := logging.NewFormatter(c.LogFormat)
	if err != nil {
		return nil, err
	}
	level, err := logging.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	logger := logging.New(w, formatter)
	logger.SetLevel(level)
	return logger, nil
}

// Tracing returns the tracing settings
func (c *Config) Tracing() observability.TracingConfig {
	return observability.TracingConfig{
		ServiceName:    c.Name,
		ServiceVersion: c.Version,
		ExporterType:   observability.ExporterType(c.TracingExporter),
		Endpoint:       c.TracingEndpoint,
		Insecure:       c.TracingInsecure,
		SampleRate:     c.TracingSampleRate,
		SkipMethods:    splitList(c.TracingSkipMethods),
	}
}

// Metrics returns the metrics settings
func (c *Config) Metrics() observability.MetricsConfig {
	return observability.MetricsConfig{
		ServiceName:    c.Name,
		ServiceVersion: c.Version,
	}
}

// Server maps the settings onto a session config. Logger, metrics, tracer
// and registries are left for the caller to attach.
func (c *Config) Server() (server.Config, error) {
	caps, err := c.CapabilitySet()
	if err != nil {
		return server.Config{}, err
	}
	return server.Config{
		Name:                  c.Name,
		Version:               c.Version,
		Instructions:          c.Instructions,
		Capabilities:          caps,
		SupportedVersions:     c.Versions(),
		Debug:                 c.Debug,
		MaxConcurrentRequests: c.MaxConcurrentRequests,
		PageSize:              c.PageSize,
	}, nil
}

func isKnownVersion(v string) bool {
	for _, known := range protocol.SupportedProtocolVersions {
		if v == known {
			return true
		}
	}
	return false
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
