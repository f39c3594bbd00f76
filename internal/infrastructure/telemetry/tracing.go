package telemetry

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope of application spans.
const TracerName = "edgesync"

// Span attribute keys used by the sync pipeline.
const (
	SpanAttrTenantID      = "tenant_id"
	SpanAttrDownlinkMsgID = "downlink_msg_id"
	SpanAttrEntityType    = "entity_type"
	SpanAttrEntityID      = "entity_id"
	SpanAttrMsgType       = "msg_type"
	SpanAttrRequestType   = "request_type"
	SpanAttrPipeline      = "pipeline"
)

// StartSpan starts an internal span on the global tracer. The caller ends it.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// StartProcessorSpan starts the consumer span covering one change message.
// An ENTITY_VIEW message is traced as "sync.entity_view.process".
func StartProcessorSpan(ctx context.Context, entityType, msgType string, entityID uuid.UUID) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, "sync."+strings.ToLower(entityType)+".process",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String(SpanAttrEntityType, entityType),
			attribute.String(SpanAttrEntityID, entityID.String()),
			attribute.String(SpanAttrMsgType, msgType),
		),
	)
}

// RecordError records err on span and marks it failed. A nil err is ignored.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// AddEvent adds a named event to span.
func AddEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
