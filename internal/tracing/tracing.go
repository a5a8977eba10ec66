// Package tracing sets up OpenTelemetry spans for outbound forward calls.
package tracing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"cors-wrapper-go/internal/config"
)

// InstrumentationName names the tracer that emits forward spans.
const InstrumentationName = "cors-wrapper-go/internal/service"

const exportTimeout = 10 * time.Second

// Tracer wraps an OpenTelemetry tracer and the provider that owns it.
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// New builds a Tracer from the tracing config. When tracing is disabled the
// returned Tracer records nothing.
func New(cfg *config.Config, logger *slog.Logger) (*Tracer, error) {
	tc := cfg.Tracing
	if !tc.Enabled {
		return Noop(), nil
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sdktrace.ParentBased(sampler(tc.SamplingRate))),
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(attribute.String("service.name", tc.ServiceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("tracing: resource: %w", err)
	}
	opts = append(opts, sdktrace.WithResource(res))

	if tc.Endpoint != "" {
		exporter, err := newExporter(context.Background(), tc.Endpoint)
		if err != nil {
			return nil, fmt.Errorf("tracing: exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	provider := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("tracing enabled",
		"endpoint", tc.Endpoint,
		"service", tc.ServiceName,
	)

	return &Tracer{
		provider: provider,
		tracer:   provider.Tracer(InstrumentationName),
	}, nil
}

// Noop returns a Tracer that records nothing.
func Noop() *Tracer {
	return &Tracer{tracer: noop.NewTracerProvider().Tracer(InstrumentationName)}
}

// WithProvider wraps an existing provider, e.g. one backed by a span recorder in tests.
func WithProvider(provider *sdktrace.TracerProvider) *Tracer {
	return &Tracer{
		provider: provider,
		tracer:   provider.Tracer(InstrumentationName),
	}
}

// Start opens a span.
func (t *Tracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// Shutdown flushes and stops the provider, if any.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

func newExporter(ctx context.Context, endpoint string) (*otlptrace.Exporter, error) {
	return otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
		otlptracegrpc.WithTimeout(exportTimeout),
	)
}

func sampler(rate *float64) sdktrace.Sampler {
	r := 1.0
	if rate != nil {
		r = *rate
	}
	switch {
	case r >= 1.0:
		return sdktrace.AlwaysSample()
	case r <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(r)
	}
}
