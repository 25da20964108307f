package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsConfig configures the metrics provider
type MetricsConfig struct {
	// Service identification
	ServiceName    string
	ServiceVersion string

	// Namespace defaults to mcp
	Namespace        string
	Subsystem        string
	HistogramBuckets []float64 // latency buckets in milliseconds

	// Registry receives the collectors. A fresh registry is created when nil.
	Registry *prometheus.Registry

	// Labels to add to all metrics
	ConstLabels prometheus.Labels
}

// Metrics records dispatch activity of MCP sessions. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	config   MetricsConfig
	registry *prometheus.Registry
	server   *http.Server

	requestDuration  *prometheus.HistogramVec
	requestTotal     *prometheus.CounterVec
	notificationIn   *prometheus.CounterVec
	notificationOut  *prometheus.CounterVec
	messageTotal     *prometheus.CounterVec
	inflightRequests prometheus.Gauge
	activeSessions   prometheus.Gauge
	toolCallDuration *prometheus.HistogramVec
	errorTotal       *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them. Collectors that are
// already registered with an identical description are reused.
func NewMetrics(config MetricsConfig) (*Metrics, error) {
	if config.Namespace == "" {
		config.Namespace = "mcp"
	}
	if config.HistogramBuckets == nil {
		config.HistogramBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}
	}
	if config.ConstLabels == nil {
		config.ConstLabels = prometheus.Labels{}
	}
	if config.ServiceName != "" {
		config.ConstLabels["service"] = config.ServiceName
	}
	if config.ServiceVersion != "" {
		config.ConstLabels["version"] = config.ServiceVersion
	}
	registry := config.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{config: config, registry: registry}
	m.initializeMetrics()
	if err := m.registerMetrics(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	return m, nil
}

func (m *Metrics) initializeMetrics() {
	c := m.config
	m.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   c.Namespace,
			Subsystem:   c.Subsystem,
			Name:        "request_duration_milliseconds",
			Help:        "Duration of dispatched MCP requests in milliseconds",
			Buckets:     c.HistogramBuckets,
			ConstLabels: c.ConstLabels,
		},
		[]string{"method", "status"},
	)
	m.requestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   c.Namespace,
			Subsystem:   c.Subsystem,
			Name:        "request_total",
			Help:        "Total number of dispatched MCP requests",
			ConstLabels: c.ConstLabels,
		},
		[]string{"method", "status"},
	)
	m.notificationIn = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   c.Namespace,
			Subsystem:   c.Subsystem,
			Name:        "incoming_notification_total",
			Help:        "Total number of notifications received from the peer",
			ConstLabels: c.ConstLabels,
		},
		[]string{"method", "status"},
	)
	m.notificationOut = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   c.Namespace,
			Subsystem:   c.Subsystem,
			Name:        "notification_total",
			Help:        "Total number of notifications sent to the peer",
			ConstLabels: c.ConstLabels,
		},
		[]string{"method", "status"},
	)
	m.messageTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   c.Namespace,
			Subsystem:   c.Subsystem,
			Name:        "transport_message_total",
			Help:        "Messages crossing the transport by direction and kind",
			ConstLabels: c.ConstLabels,
		},
		[]string{"direction", "kind"},
	)
	m.inflightRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   c.Namespace,
			Subsystem:   c.Subsystem,
			Name:        "inflight_requests",
			Help:        "Requests currently being handled",
			ConstLabels: c.ConstLabels,
		},
	)
	m.activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   c.Namespace,
			Subsystem:   c.Subsystem,
			Name:        "active_sessions",
			Help:        "Number of sessions being served",
			ConstLabels: c.ConstLabels,
		},
	)
	m.toolCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   c.Namespace,
			Subsystem:   c.Subsystem,
			Name:        "tool_call_duration_milliseconds",
			Help:        "Duration of tool calls in milliseconds",
			Buckets:     c.HistogramBuckets,
			ConstLabels: c.ConstLabels,
		},
		[]string{"tool", "status"},
	)
	m.errorTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   c.Namespace,
			Subsystem:   c.Subsystem,
			Name:        "error_total",
			Help:        "Total number of errors returned to the peer",
			ConstLabels: c.ConstLabels,
		},
		[]string{"code", "method"},
	)
}

func (m *Metrics) registerMetrics() error {
	var err error
	if m.requestDuration, err = registerOrReuse(m.registry, m.requestDuration); err != nil {
		return err
	}
	if m.requestTotal, err = registerOrReuse(m.registry, m.requestTotal); err != nil {
		return err
	}
	if m.notificationIn, err = registerOrReuse(m.registry, m.notificationIn); err != nil {
		return err
	}
	if m.notificationOut, err = registerOrReuse(m.registry, m.notificationOut); err != nil {
		return err
	}
	if m.messageTotal, err = registerOrReuse(m.registry, m.messageTotal); err != nil {
		return err
	}
	if m.inflightRequests, err = registerOrReuse(m.registry, m.inflightRequests); err != nil {
		return err
	}
	if m.activeSessions, err = registerOrReuse(m.registry, m.activeSessions); err != nil {
		return err
	}
	if m.toolCallDuration, err = registerOrReuse(m.registry, m.toolCallDuration); err != nil {
		return err
	}
	if m.errorTotal, err = registerOrReuse(m.registry, m.errorTotal); err != nil {
		return err
	}
	return nil
}

// registerOrReuse registers c, returning the collector already registered
// under the same description when there is one
func registerOrReuse[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// Registry returns the registry holding the collectors
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordRequest records a dispatched request. status is "ok" or the name of
// the returned error code.
func (m *Metrics) RecordRequest(method, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(method, status).Observe(float64(duration.Milliseconds()))
	m.requestTotal.WithLabelValues(method, status).Inc()
}

// RecordIncomingNotification records a notification handled from the peer
func (m *Metrics) RecordIncomingNotification(method, status string) {
	if m == nil {
		return
	}
	m.notificationIn.WithLabelValues(method, status).Inc()
}

// RecordNotification records a notification sent to the peer
func (m *Metrics) RecordNotification(method, status string) {
	if m == nil {
		return
	}
	m.notificationOut.WithLabelValues(method, status).Inc()
}

// RecordMessage counts a message crossing the transport
func (m *Metrics) RecordMessage(direction, kind string) {
	if m == nil {
		return
	}
	m.messageTotal.WithLabelValues(direction, kind).Inc()
}

// RequestStarted and RequestFinished track in-flight requests
func (m *Metrics) RequestStarted() {
	if m != nil {
		m.inflightRequests.Inc()
	}
}

func (m *Metrics) RequestFinished() {
	if m != nil {
		m.inflightRequests.Dec()
	}
}

// RecordActiveSessions records the change in served sessions
func (m *Metrics) RecordActiveSessions(delta int) {
	if m != nil {
		m.activeSessions.Add(float64(delta))
	}
}

// RecordToolCall records a tool invocation
func (m *Metrics) RecordToolCall(tool, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.toolCallDuration.WithLabelValues(tool, status).Observe(float64(duration.Milliseconds()))
}

// RecordError counts an error response
func (m *Metrics) RecordError(code, method string) {
	if m == nil {
		return
	}
	m.errorTotal.WithLabelValues(code, method).Inc()
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Start serves Handler on addr at path in the background
func (m *Metrics) Start(addr, path string) error {
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	m.server = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		_ = m.server.ListenAndServe()
	}()
	return nil
}

// Shutdown gracefully shuts down the metrics server
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m != nil && m.server != nil {
		return m.server.Shutdown(ctx)
	}
	return nil
}
