// Package telemetry wires OpenTelemetry tracing and metrics for the ledger service:
// providers with OTLP gRPC exporters, service spans, ledger and database instruments.
package telemetry

import (
	"context"
	"fmt"
	"time"

	otelpyroscope "github.com/grafana/otel-profiling-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

// shutdownTimeout bounds the final flush of either provider
const shutdownTimeout = 10 * time.Second

// Config holds tracing configuration.
type Config struct {
	Enabled           bool
	CollectorEndpoint string
	SamplingRatio     float64 // >=1 samples everything, <=0 nothing
	ServiceName       string
	ServiceVersion    string
	Insecure          bool
}

// TracerProviderOption customizes NewTracerProvider
type TracerProviderOption func(*tracerProviderOptions)

type tracerProviderOptions struct {
	exporter     sdktrace.SpanExporter
	spanProfiles bool
}

// WithSpanExporter exports spans synchronously to exporter instead of the
// OTLP collector. The provider is then not installed as the global one.
func WithSpanExporter(exporter sdktrace.SpanExporter) TracerProviderOption {
	return func(o *tracerProviderOptions) {
		o.exporter = exporter
	}
}

// WithSpanProfiles tags profiler samples with the id of the span that was
// active, linking traces to CPU profiles. It only pays off with a running Profiler.
func WithSpanProfiles(enabled bool) TracerProviderOption {
	return func(o *tracerProviderOptions) {
		o.spanProfiles = enabled
	}
}

// TracerProvider owns the SDK tracer provider for the process lifetime.
// When tracing is disabled it hands out no-op tracers.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
	traced   trace.TracerProvider // provider, possibly wrapped for span profiles
	logger   *zap.Logger
	config   Config
}

// NewTracerProvider builds the tracer provider. With tracing enabled and no
// exporter option, spans are batched to the OTLP collector and the provider
// becomes the global one together with the W3C trace-context propagator.
func NewTracerProvider(ctx context.Context, cfg Config, logger *zap.Logger, opts ...TracerProviderOption) (*TracerProvider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	tp := &TracerProvider{logger: logger, config: cfg}

	if !cfg.Enabled {
		logger.Info("Tracing disabled, using no-op tracer provider")
		return tp, nil
	}

	var o tracerProviderOptions
	for _, opt := range opts {
		opt(&o)
	}

	res, err := newResource(cfg.ServiceName, cfg.ServiceVersion)
	if err != nil {
		return nil, err
	}
	providerOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(samplerFor(cfg.SamplingRatio)),
	}

	if o.exporter != nil {
		tp.provider = sdktrace.NewTracerProvider(append(providerOpts, sdktrace.WithSyncer(o.exporter))...)
		tp.traced = wrapForProfiles(tp.provider, o.spanProfiles)
		return tp, nil
	}

	exporterOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.CollectorEndpoint)}
	if cfg.Insecure {
		exporterOpts = append(exporterOpts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, exporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}

	tp.provider = sdktrace.NewTracerProvider(append(providerOpts, sdktrace.WithBatcher(exporter))...)
	tp.traced = wrapForProfiles(tp.provider, o.spanProfiles)
	otel.SetTracerProvider(tp.traced)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("Tracing enabled",
		zap.String("collector_endpoint", cfg.CollectorEndpoint),
		zap.Float64("sampling_ratio", cfg.SamplingRatio),
		zap.String("service_name", cfg.ServiceName),
		zap.Bool("span_profiles", o.spanProfiles),
	)
	return tp, nil
}

func wrapForProfiles(p *sdktrace.TracerProvider, enabled bool) trace.TracerProvider {
	if enabled {
		return otelpyroscope.NewTracerProvider(p)
	}
	return p
}

func samplerFor(ratio float64) sdktrace.Sampler {
	switch {
	case ratio >= 1.0:
		return sdktrace.AlwaysSample()
	case ratio <= 0.0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
	}
}

func newResource(serviceName, serviceVersion string) (*resource.Resource, error) {
	if serviceVersion == "" {
		serviceVersion = "dev"
	}
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}

// Provider returns the provider to hand to instrumentation such as otelgin
// and otelgorm. It is a no-op provider while tracing is disabled.
func (tp *TracerProvider) Provider() trace.TracerProvider {
	if tp.traced == nil {
		return noop.NewTracerProvider()
	}
	return tp.traced
}

// Tracer returns a named tracer from Provider.
func (tp *TracerProvider) Tracer(name string, opts ...trace.TracerOption) trace.Tracer {
	return tp.Provider().Tracer(name, opts...)
}

// IsEnabled returns whether spans are being recorded and exported.
func (tp *TracerProvider) IsEnabled() bool {
	return tp.config.Enabled && tp.provider != nil
}

// GetConfig returns a copy of the tracing configuration.
func (tp *TracerProvider) GetConfig() Config {
	return tp.config
}

// ForceFlush exports every span that has ended but not yet been exported.
func (tp *TracerProvider) ForceFlush(ctx context.Context) error {
	if tp.provider == nil {
		return nil
	}
	return tp.provider.ForceFlush(ctx)
}

// Shutdown flushes pending spans and stops the provider.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp.provider == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := tp.provider.Shutdown(ctx); err != nil {
		tp.logger.Error("Tracer provider shutdown failed", zap.Error(err))
		return fmt.Errorf("failed to shutdown tracer provider: %w", err)
	}
	tp.logger.Info("Tracer provider shut down")
	return nil
}
