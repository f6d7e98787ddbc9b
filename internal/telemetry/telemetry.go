// Package telemetry holds the OpenTelemetry instruments of the ingest engine.
// Without Setup the global providers are no-ops.
package telemetry

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const scope = "powerdata/internal/fixture"

// EndSpan records err on span (if any) and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Recorder traces fixture loads and counts their outcomes and rows. A nil
// Recorder records nothing.
type Recorder struct {
	tracer   trace.Tracer
	outcomes metric.Int64Counter
	rows     metric.Int64Counter
	dropped  metric.Int64Counter
	duration metric.Float64Histogram
}

// NewRecorder builds the instruments on mp and tp. A nil provider means the
// global one.
func NewRecorder(mp metric.MeterProvider, tp trace.TracerProvider) (*Recorder, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	m := mp.Meter(scope)

	outcomes, err := m.Int64Counter("powerdata.fixture.outcomes",
		metric.WithDescription("Fixture loads by terminal state"))
	if err != nil {
		return nil, errors.Wrap(err, "outcome counter")
	}
	rows, err := m.Int64Counter("powerdata.rows.written",
		metric.WithDescription("Rows upserted per table family"))
	if err != nil {
		return nil, errors.Wrap(err, "row counter")
	}
	dropped, err := m.Int64Counter("powerdata.rows.dropped",
		metric.WithDescription("Rows dropped before write, by reason"))
	if err != nil {
		return nil, errors.Wrap(err, "drop counter")
	}
	duration, err := m.Float64Histogram("powerdata.fixture.duration",
		metric.WithDescription("Fixture load duration"), metric.WithUnit("s"))
	if err != nil {
		return nil, errors.Wrap(err, "duration histogram")
	}
	return &Recorder{
		tracer:   tp.Tracer(scope),
		outcomes: outcomes,
		rows:     rows,
		dropped:  dropped,
		duration: duration,
	}, nil
}

// StartSpan opens a span under the engine's tracer.
func (r *Recorder) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if r == nil {
		return ctx, tracenoop.Span{}
	}
	return r.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// Outcome records one finished fixture.
func (r *Recorder) Outcome(ctx context.Context, outcome, category string, d time.Duration) {
	if r == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome), attribute.String("category", category))
	r.outcomes.Add(ctx, 1, attrs)
	r.duration.Record(ctx, d.Seconds(), attrs)
}

// Rows records n rows written for a table family.
func (r *Recorder) Rows(ctx context.Context, kind string, n int) {
	if r == nil || n == 0 {
		return
	}
	r.rows.Add(ctx, int64(n), metric.WithAttributes(attribute.String("kind", kind)))
}

// Dropped records n rows discarded for reason.
func (r *Recorder) Dropped(ctx context.Context, reason string, n int) {
	if r == nil || n == 0 {
		return
	}
	r.dropped.Add(ctx, int64(n), metric.WithAttributes(attribute.String("reason", reason)))
}
