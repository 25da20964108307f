// Package observability records Prometheus metrics and OpenTelemetry spans
// for dispatched MCP messages.
package observability

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "github.com/ajitpratap0/mcp-session-go"

	// MethodKey is the span attribute holding the MCP method
	MethodKey = attribute.Key("mcp.method")
)

// TracingConfig configures span export for a session engine process
type TracingConfig struct {
	ServiceName    string
	ServiceVersion string

	ExporterType ExporterType
	Endpoint     string // host:port of the OTLP collector
	Insecure     bool

	// Exporter overrides ExporterType when set. Its spans are exported
	// synchronously.
	Exporter sdktrace.SpanExporter

	// SampleRate is the fraction of methods traced, within [0, 1]
	SampleRate float64
	// SkipMethods are never traced, e.g. "ping"
	SkipMethods []string
}

// ExporterType selects where spans go
type ExporterType string

const (
	ExporterTypeOTLPGRPC ExporterType = "otlp-grpc"
	ExporterTypeOTLPHTTP ExporterType = "otlp-http"
	// ExporterTypeNoop records spans without exporting them
	ExporterTypeNoop ExporterType = "noop"
)

// TracingProvider creates spans for dispatched methods. A nil
// *TracingProvider is valid and produces non-recording spans.
type TracingProvider struct {
	serviceName string
	tracer      trace.Tracer

	mu       sync.Mutex
	shutdown func(context.Context) error
}

// NewTracingProvider builds the exporter and tracer provider described by
// config
func NewTracingProvider(config TracingConfig) (*TracingProvider, error) {
	if config.ServiceName == "" {
		config.ServiceName = "mcp-session"
	}
	if config.ServiceVersion == "" {
		config.ServiceVersion = "unknown"
	}
	if config.SampleRate == 0 {
		config.SampleRate = 1.0
	}

	processor, err := spanProcessor(config)
	if err != nil {
		return nil, err
	}
	res := resource.NewWithAttributes(semconv.SchemaURL,
		semconv.ServiceName(config.ServiceName),
		semconv.ServiceVersion(config.ServiceVersion),
	)
	tp := sdktrace.NewTracerProvider(
		processor,
		sdktrace.WithResource(res),
		sdktrace.WithSampler(newMethodSampler(config.SampleRate, config.SkipMethods)),
	)

	return &TracingProvider{
		serviceName: config.ServiceName,
		tracer:      tp.Tracer(instrumentationName),
		shutdown:    tp.Shutdown,
	}, nil
}

func spanProcessor(config TracingConfig) (sdktrace.TracerProviderOption, error) {
	if config.Exporter != nil {
		return sdktrace.WithSyncer(config.Exporter), nil
	}
	var (
		exporter sdktrace.SpanExporter
		err      error
	)
	switch config.ExporterType {
	case ExporterTypeOTLPGRPC:
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(config.Endpoint)}
		if config.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exporter, err = otlptrace.New(context.Background(), otlptracegrpc.NewClient(opts...))
	case ExporterTypeOTLPHTTP:
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(config.Endpoint)}
		if config.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		exporter, err = otlptrace.New(context.Background(), otlptracehttp.NewClient(opts...))
	case ExporterTypeNoop, "":
		exporter = discardExporter{}
	default:
		return nil, fmt.Errorf("unsupported exporter type: %s", config.ExporterType)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s exporter: %w", config.ExporterType, err)
	}
	return sdktrace.WithBatcher(exporter), nil
}

// StartMethodSpan starts a server span named "mcp.<method>"
func (tp *TracingProvider) StartMethodSpan(ctx context.Context, method string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if tp == nil {
		return ctx, trace.SpanFromContext(context.Background())
	}
	attrs = append(attrs,
		attribute.String("rpc.system", "jsonrpc"),
		MethodKey.String(method),
		attribute.String("mcp.service", tp.serviceName),
	)
	return tp.tracer.Start(ctx, "mcp."+method,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attrs...))
}

// EndSpan records err, if any, and ends span
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// Shutdown flushes pending spans. Later calls are no-ops.
func (tp *TracingProvider) Shutdown(ctx context.Context) error {
	if tp == nil {
		return nil
	}
	tp.mu.Lock()
	defer tp.mu.Unlock()

	if tp.shutdown == nil {
		return nil
	}
	err := tp.shutdown(ctx)
	tp.shutdown = nil
	return err
}

// methodSampler drops skipped methods and samples the rest by trace id
type methodSampler struct {
	skip  map[string]struct{}
	ratio sdktrace.Sampler
}

func newMethodSampler(rate float64, skip []string) sdktrace.Sampler {
	set := make(map[string]struct{}, len(skip))
	for _, m := range skip {
		set[m] = struct{}{}
	}
	var ratio sdktrace.Sampler
	switch {
	case rate >= 1:
		ratio = sdktrace.AlwaysSample()
	case rate <= 0:
		ratio = sdktrace.NeverSample()
	default:
		ratio = sdktrace.TraceIDRatioBased(rate)
	}
	return &methodSampler{skip: set, ratio: ratio}
}

func (ms *methodSampler) ShouldSample(params sdktrace.SamplingParameters) sdktrace.SamplingResult {
	for _, attr := range params.Attributes {
		if attr.Key != MethodKey {
			continue
		}
		if _, ok := ms.skip[attr.Value.AsString()]; ok {
			return sdktrace.SamplingResult{Decision: sdktrace.Drop}
		}
		break
	}
	return ms.ratio.ShouldSample(params)
}

func (ms *methodSampler) Description() string {
	return fmt.Sprintf("MethodSampler{skip=%d,%s}", len(ms.skip), ms.ratio.Description())
}

type discardExporter struct{}

func (discardExporter) ExportSpans(context.Context, []sdktrace.ReadOnlySpan) error { return nil }

func (discardExporter) Shutdown(context.Context) error { return nil }
