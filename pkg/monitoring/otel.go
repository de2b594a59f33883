package monitoring

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// TelemetryConfig configures the OpenTelemetry providers.
type TelemetryConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string        // gRPC endpoint, e.g. "localhost:4317"
	SampleRate     float64       // 0.0 to 1.0
	BatchTimeout   time.Duration // span batch flush interval
	Enabled        bool
	Insecure       bool // plaintext connection, dev only
}

// DefaultTelemetryConfig returns development defaults.
func DefaultTelemetryConfig() *TelemetryConfig {
	return &TelemetryConfig{
		ServiceName:    "som-core",
		ServiceVersion: "1.0.0",
		Environment:    "development",
		OTLPEndpoint:   "localhost:4317",
		SampleRate:     1.0,
		BatchTimeout:   5 * time.Second,
		Enabled:        true,
		Insecure:       false,
	}
}

// Provider manages the OpenTelemetry trace and metric providers and exports
// both over OTLP gRPC.
type Provider struct {
	cfg            *TelemetryConfig
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter
	logger         *slog.Logger
}

// NewProvider initializes tracing and metrics. A disabled config yields an
// inert provider whose tracer and meter are the global no-ops.
func NewProvider(ctx context.Context, cfg *TelemetryConfig) (*Provider, error) {
	if cfg == nil {
		cfg = DefaultTelemetryConfig()
	}

	p := &Provider{
		cfg:    cfg,
		logger: slog.Default().With("component", "monitoring"),
	}

	if !cfg.Enabled {
		p.logger.InfoContext(ctx, "telemetry disabled")
		return p, nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
			attribute.String("som.component", "core"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	if err := p.initTraceProvider(ctx, res); err != nil {
		return nil, fmt.Errorf("init trace provider: %w", err)
	}
	if err := p.initMetricProvider(ctx, res); err != nil {
		return nil, fmt.Errorf("init metric provider: %w", err)
	}

	p.tracer = otel.Tracer("som.core",
		trace.WithInstrumentationVersion(cfg.ServiceVersion),
	)
	p.meter = otel.Meter("som.core",
		metric.WithInstrumentationVersion(cfg.ServiceVersion),
	)

	p.logger.InfoContext(ctx, "telemetry initialized",
		"service", cfg.ServiceName,
		"environment", cfg.Environment,
		"endpoint", cfg.OTLPEndpoint,
		"sample_rate", cfg.SampleRate,
	)
	return p, nil
}

func (p *Provider) initTraceProvider(ctx context.Context, res *resource.Resource) error {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(p.cfg.OTLPEndpoint),
	}
	if p.cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("create trace exporter: %w", err)
	}

	var sampler sdktrace.Sampler
	switch {
	case p.cfg.SampleRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case p.cfg.SampleRate <= 0.0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(p.cfg.SampleRate)
	}

	p.tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter,
			sdktrace.WithBatchTimeout(p.cfg.BatchTimeout),
		),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(p.tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return nil
}

func (p *Provider) initMetricProvider(ctx context.Context, res *resource.Resource) error {
	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(p.cfg.OTLPEndpoint),
	}
	if p.cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}

	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("create metric exporter: %w", err)
	}

	p.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(15*time.Second),
		)),
	)

	otel.SetMeterProvider(p.meterProvider)
	return nil
}

// Shutdown flushes and stops both providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			p.logger.ErrorContext(ctx, "trace provider shutdown failed", "error", err)
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			p.logger.ErrorContext(ctx, "metric provider shutdown failed", "error", err)
		}
	}
	return nil
}

// Tracer returns the configured tracer.
func (p *Provider) Tracer() trace.Tracer {
	if p.tracer == nil {
		return otel.Tracer("som.core")
	}
	return p.tracer
}

// Meter returns the configured meter.
func (p *Provider) Meter() metric.Meter {
	if p.meter == nil {
		return otel.Meter("som.core")
	}
	return p.meter
}

// StartSpan starts a span on the provider's tracer.
func (p *Provider) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return p.Tracer().Start(ctx, name, opts...)
}

// Bridge builds the instrument set the monitor mirrors into.
func (p *Provider) Bridge() (*Bridge, error) {
	return NewBridge(p.Meter())
}

// Bridge mirrors monitor records into OpenTelemetry instruments. All
// methods are safe under the monitor's lock; instrument writes never block.
type Bridge struct {
	ingestionCount   metric.Int64Counter
	ingestionLatency metric.Float64Histogram
	queryCount       metric.Int64Counter
	queryLatency     metric.Float64Histogram
	holonCount       metric.Int64Counter
	relCount         metric.Int64Counter
	violationCount   metric.Int64Counter
	alertCount       metric.Int64Counter
}

// NewBridge registers the core's instruments on the meter.
func NewBridge(meter metric.Meter) (*Bridge, error) {
	b := &Bridge{}
	var err error

	b.ingestionCount, err = meter.Int64Counter("som.events.ingested.total",
		metric.WithDescription("Event submissions, accepted and rejected"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	b.ingestionLatency, err = meter.Float64Histogram("som.events.ingestion.duration",
		metric.WithDescription("Event submission latency in milliseconds"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000),
	)
	if err != nil {
		return nil, err
	}

	b.queryCount, err = meter.Int64Counter("som.queries.total",
		metric.WithDescription("Registry queries served"),
		metric.WithUnit("{query}"),
	)
	if err != nil {
		return nil, err
	}

	b.queryLatency, err = meter.Float64Histogram("som.queries.duration",
		metric.WithDescription("Registry query latency in milliseconds"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000),
	)
	if err != nil {
		return nil, err
	}

	b.holonCount, err = meter.Int64Counter("som.holons.created.total",
		metric.WithDescription("Holons created by type"),
		metric.WithUnit("{holon}"),
	)
	if err != nil {
		return nil, err
	}

	b.relCount, err = meter.Int64Counter("som.relationships.changed.total",
		metric.WithDescription("Relationship edges created or ended by type"),
		metric.WithUnit("{relationship}"),
	)
	if err != nil {
		return nil, err
	}

	b.violationCount, err = meter.Int64Counter("som.constraints.violations.total",
		metric.WithDescription("Constraint violations by constraint type"),
		metric.WithUnit("{violation}"),
	)
	if err != nil {
		return nil, err
	}

	b.alertCount, err = meter.Int64Counter("som.alerts.raised.total",
		metric.WithDescription("Alerts raised by type and severity"),
		metric.WithUnit("{alert}"),
	)
	if err != nil {
		return nil, err
	}

	return b, nil
}

func (b *Bridge) eventIngested(latencyMs float64, success bool) {
	ctx := context.Background()
	attrs := metric.WithAttributes(attribute.Bool("success", success))
	b.ingestionCount.Add(ctx, 1, attrs)
	b.ingestionLatency.Record(ctx, latencyMs, attrs)
}

func (b *Bridge) queryServed(queryType string, latencyMs float64, cacheHit, success bool) {
	ctx := context.Background()
	attrs := metric.WithAttributes(
		attribute.String("query.type", queryType),
		attribute.Bool("cache_hit", cacheHit),
		attribute.Bool("success", success),
	)
	b.queryCount.Add(ctx, 1, attrs)
	b.queryLatency.Record(ctx, latencyMs, attrs)
}

func (b *Bridge) holonCreated(holonType string) {
	b.holonCount.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("holon.type", holonType)))
}

func (b *Bridge) relationshipChanged(relType, action string) {
	b.relCount.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String("relationship.type", relType),
			attribute.String("action", action),
		))
}

func (b *Bridge) constraintViolated(constraintType string) {
	b.violationCount.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("constraint.type", constraintType)))
}

func (b *Bridge) alertRaised(alertType, severity string) {
	b.alertCount.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String("alert.type", alertType),
			attribute.String("alert.severity", severity),
		))
}
