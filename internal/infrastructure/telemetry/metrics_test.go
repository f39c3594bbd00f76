package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/edgesync/backend/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMeter(t *testing.T) (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	return reader, mp
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumOf(t *testing.T, m metricdata.Metrics, kv attribute.KeyValue) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is not an int64 sum", m.Name)
	var total int64
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(kv.Key); ok && v == kv.Value {
			total += dp.Value
		}
	}
	return total
}

func TestMetricHelpers(t *testing.T) {
	reader, mp := newTestMeter(t)
	meter := mp.Meter("test")
	ctx := context.Background()

	counter, err := telemetry.NewCounter(meter, "test_total", "test counter", "{op}")
	require.NoError(t, err)
	counter.Inc(ctx, telemetry.AttrTenantID.String("t1"))
	counter.Add(ctx, 4, telemetry.AttrTenantID.String("t1"))
	counter.Inc(ctx, telemetry.AttrTenantID.String("t2"))

	hist, err := telemetry.NewHistogram(meter, telemetry.HistogramOpts{
		Name:       "test_duration_seconds",
		Unit:       "s",
		Boundaries: telemetry.HTTPDurationBuckets,
	})
	require.NoError(t, err)
	hist.RecordDuration(ctx, 150*time.Millisecond)
	hist.Record(ctx, 2)

	gauge, err := telemetry.NewGauge(meter, "test_gauge", "test gauge", "{item}")
	require.NoError(t, err)
	gauge.Record(ctx, 7)

	metrics := collect(t, reader)
	assert.Equal(t, int64(5), sumOf(t, metrics["test_total"], telemetry.AttrTenantID.String("t1")))
	assert.Equal(t, int64(1), sumOf(t, metrics["test_total"], telemetry.AttrTenantID.String("t2")))

	h, ok := metrics["test_duration_seconds"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, h.DataPoints, 1)
	assert.Equal(t, uint64(2), h.DataPoints[0].Count)
	assert.InDelta(t, 2.15, h.DataPoints[0].Sum, 1e-9)

	g, ok := metrics["test_gauge"].Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, g.DataPoints, 1)
	assert.Equal(t, int64(7), g.DataPoints[0].Value)
}
