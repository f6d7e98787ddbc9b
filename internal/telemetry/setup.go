package telemetry

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Providers are the SDK trace and meter providers of one process.
type Providers struct {
	Tracer *sdktrace.TracerProvider
	Meter  *sdkmetric.MeterProvider
}

// Setup installs OTLP/gRPC trace and metric providers as the globals. It
// returns nil when endpoint is empty. The exporters read the standard
// OTEL_EXPORTER_OTLP_* variables for endpoint, headers and TLS.
func Setup(ctx context.Context, endpoint, service string) (*Providers, error) {
	if endpoint == "" {
		return nil, nil
	}

	res, err := resource.New(ctx, resource.WithAttributes(attribute.String("service.name", service)))
	if err != nil {
		return nil, errors.Wrap(err, "otel resource")
	}
	spans, err := otlptracegrpc.New(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "otlp trace exporter")
	}
	metrics, err := otlpmetricgrpc.New(ctx)
	if err != nil {
		_ = spans.Shutdown(ctx)
		return nil, errors.Wrap(err, "otlp metric exporter")
	}

	p := &Providers{
		Tracer: sdktrace.NewTracerProvider(sdktrace.WithBatcher(spans), sdktrace.WithResource(res)),
		Meter:  sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metrics)), sdkmetric.WithResource(res)),
	}
	otel.SetTracerProvider(p.Tracer)
	otel.SetMeterProvider(p.Meter)
	return p, nil
}

// Shutdown flushes and stops both providers.
func (p *Providers) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	return errors.CombineErrors(
		errors.Wrap(p.Tracer.Shutdown(ctx), "shutdown tracer provider"),
		errors.Wrap(p.Meter.Shutdown(ctx), "shutdown meter provider"),
	)
}
