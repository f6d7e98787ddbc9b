package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRecorder(t *testing.T) (*Recorder, *sdkmetric.ManualReader, *tracetest.InMemoryExporter) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	spans := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(spans))
	t.Cleanup(func() {
		_ = mp.Shutdown(context.Background())
		_ = tp.Shutdown(context.Background())
	})

	r, err := NewRecorder(mp, tp)
	require.NoError(t, err)
	return r, reader, spans
}

// counters flattens every int64 sum into "name{attrs}" -> value.
func counters(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				out[m.Name+"{"+dp.Attributes.Encoded(attribute.DefaultEncoder())+"}"] += dp.Value
			}
		}
	}
	return out
}

func TestRecorderCounts(t *testing.T) {
	r, reader, _ := newRecorder(t)
	ctx := context.Background()

	r.Outcome(ctx, "committed", "afl mens", time.Second)
	r.Outcome(ctx, "committed", "afl mens", 2*time.Second)
	r.Outcome(ctx, "rolled_back_broken", "afl mens", time.Second)
	r.Rows(ctx, "match", 10)
	r.Rows(ctx, "match", 5)
	r.Rows(ctx, "period", 0)
	r.Dropped(ctx, "unresolved_player", 2)

	assert.Equal(t, map[string]int64{
		"powerdata.fixture.outcomes{category=afl mens,outcome=committed}":          2,
		"powerdata.fixture.outcomes{category=afl mens,outcome=rolled_back_broken}": 1,
		"powerdata.rows.written{kind=match}":                                       15,
		"powerdata.rows.dropped{reason=unresolved_player}":                         2,
	}, counters(t, reader))
}

func TestRecorderDuration(t *testing.T) {
	r, reader, _ := newRecorder(t)
	r.Outcome(context.Background(), "committed", "netball", 1500*time.Millisecond)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	var found bool
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "powerdata.fixture.duration" {
				continue
			}
			h, ok := m.Data.(metricdata.Histogram[float64])
			require.True(t, ok)
			require.Len(t, h.DataPoints, 1)
			assert.Equal(t, uint64(1), h.DataPoints[0].Count)
			assert.InDelta(t, 1.5, h.DataPoints[0].Sum, 1e-9)
			found = true
		}
	}
	assert.True(t, found)
}

func TestSpans(t *testing.T) {
	r, _, spans := newRecorder(t)

	_, ok := r.StartSpan(context.Background(), "fixture.load", attribute.String("fixture_id", "10343"))
	EndSpan(ok, nil)
	_, failed := r.StartSpan(context.Background(), "fixture.load", attribute.String("fixture_id", "10400"))
	EndSpan(failed, errors.New("sport batch failed"))

	got := spans.GetSpans()
	require.Len(t, got, 2)
	assert.Equal(t, "fixture.load", got[0].Name)
	assert.Contains(t, got[0].Attributes, attribute.String("fixture_id", "10343"))
	assert.Equal(t, codes.Unset, got[0].Status.Code)
	assert.Equal(t, codes.Error, got[1].Status.Code)
	assert.Equal(t, "sport batch failed", got[1].Status.Description)
	require.Len(t, got[1].Events, 1)
	assert.Equal(t, "exception", got[1].Events[0].Name)
}

func TestNilRecorderIsSafe(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		ctx, span := r.StartSpan(context.Background(), "fixture.load")
		EndSpan(span, errors.New("boom"))
		r.Outcome(ctx, "committed", "", 0)
		r.Rows(ctx, "match", 1)
		r.Dropped(ctx, "x", 1)
	})
}

func TestSetupWithoutEndpoint(t *testing.T) {
	p, err := Setup(context.Background(), "", "powerdata")
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.NoError(t, p.Shutdown(context.Background()))
}
