package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestContextFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	base := zap.New(core)

	ctx := context.Background()
	assert.NotNil(t, FromContext(ctx))

	assert.Empty(t, Fields(ctx))

	ctx = WithContext(ctx, base)
	ctx = WithRequestID(ctx, "req-1")
	ctx = WithTenantID(ctx, "tenant-a")
	ctx = WithDownlinkMsgID(ctx, 7)
	assert.Len(t, Fields(ctx), 3)

	FromContext(ctx).Info("applied")
	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "tenant-a", fields["tenant_id"])
	assert.Equal(t, int32(7), fields["downlink_msg_id"])
}

func TestWithContext_KeepsBoundIDs(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)

	ctx := WithTenantID(context.Background(), "tenant-b")
	ctx = WithContext(ctx, zap.New(core))
	FromContext(ctx).Info("rebased")

	require.Equal(t, 1, logs.Len())
	assert.NotContains(t, logs.All()[0].ContextMap(), "tenant_id")
	assert.Len(t, Fields(ctx), 1)
}

func TestL_AddsTraceContext(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	ctx := WithContext(context.Background(), zap.New(core))

	L(ctx).Info("no span")

	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	ctx, span := tp.Tracer("test").Start(ctx, "sync.user.process")
	L(ctx).Info("with span")
	span.End()

	require.Equal(t, 2, logs.Len())
	assert.NotContains(t, logs.All()[0].ContextMap(), "trace_id")
	fields := logs.All()[1].ContextMap()
	assert.Equal(t, span.SpanContext().TraceID().String(), fields["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), fields["span_id"])
}
