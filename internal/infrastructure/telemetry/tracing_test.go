package telemetry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/edgesync/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// setupTestTracer installs a recording tracer provider for the duration of the test.
func setupTestTracer(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	original := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(original)
		_ = tp.Shutdown(context.Background())
	})
	return sr
}

func attrMap(attrs []attribute.KeyValue) map[string]attribute.Value {
	out := make(map[string]attribute.Value, len(attrs))
	for _, kv := range attrs {
		out[string(kv.Key)] = kv.Value
	}
	return out
}

func TestStartProcessorSpan(t *testing.T) {
	sr := setupTestTracer(t)
	id := uuid.New()

	_, span := telemetry.StartProcessorSpan(context.Background(), "ENTITY_VIEW", "ENTITY_UPDATED_RPC_MESSAGE", id)
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "sync.entity_view.process", spans[0].Name())
	assert.Equal(t, trace.SpanKindConsumer, spans[0].SpanKind())
	assert.Equal(t, telemetry.TracerName, spans[0].InstrumentationScope().Name)

	attrs := attrMap(spans[0].Attributes())
	assert.Equal(t, "ENTITY_VIEW", attrs[telemetry.SpanAttrEntityType].AsString())
	assert.Equal(t, id.String(), attrs[telemetry.SpanAttrEntityID].AsString())
	assert.Equal(t, "ENTITY_UPDATED_RPC_MESSAGE", attrs[telemetry.SpanAttrMsgType].AsString())
}

func TestStartSpan_Internal(t *testing.T) {
	sr := setupTestTracer(t)

	_, span := telemetry.StartSpan(context.Background(), "sync.follow_up",
		attribute.String(telemetry.SpanAttrPipeline, "user_credentials"))
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, trace.SpanKindInternal, spans[0].SpanKind())
	assert.Equal(t, "user_credentials", attrMap(spans[0].Attributes())["pipeline"].AsString())
}

func TestRecordError(t *testing.T) {
	sr := setupTestTracer(t)

	_, span := telemetry.StartSpan(context.Background(), "sync.user.process")
	telemetry.RecordError(span, errors.New("lock timeout"))
	telemetry.RecordError(span, nil)
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "lock timeout", spans[0].Status().Description)
	require.Len(t, spans[0].Events(), 1)
	assert.Equal(t, "exception", spans[0].Events()[0].Name)
}

func TestAddEvent(t *testing.T) {
	sr := setupTestTracer(t)

	_, span := telemetry.StartSpan(context.Background(), "sync.asset.process")
	telemetry.AddEvent(span, "uplink_emitted",
		attribute.String(telemetry.SpanAttrRequestType, "ATTRIBUTES"),
		attribute.Int("attempt", 2),
	)
	span.End()

	events := sr.Ended()[0].Events()
	require.Len(t, events, 1)
	assert.Equal(t, "uplink_emitted", events[0].Name)
	attrs := attrMap(events[0].Attributes)
	assert.Equal(t, "ATTRIBUTES", attrs["request_type"].AsString())
	assert.Equal(t, int64(2), attrs["attempt"].AsInt64())
}
