package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type scopeKey struct{}

// scope is what a request carries through the sync path: the logger with the
// identifiers bound so far, and the identifiers themselves.
type scope struct {
	logger        *zap.Logger
	requestID     string
	tenantID      string
	downlinkMsgID *int32
}

func scopeOf(ctx context.Context) scope {
	if s, ok := ctx.Value(scopeKey{}).(scope); ok {
		return s
	}
	return scope{logger: zap.NewNop()}
}

func (s scope) into(ctx context.Context) context.Context {
	return context.WithValue(ctx, scopeKey{}, s)
}

// WithContext makes logger the base logger of ctx. Identifiers already bound
// to ctx are kept but not re-added to logger.
func WithContext(ctx context.Context, logger *zap.Logger) context.Context {
	s := scopeOf(ctx)
	s.logger = logger
	return s.into(ctx)
}

// FromContext returns the logger of ctx, or a no-op logger.
func FromContext(ctx context.Context) *zap.Logger {
	return scopeOf(ctx).logger
}

// WithRequestID binds the HTTP request id.
func WithRequestID(ctx context.Context, id string) context.Context {
	s := scopeOf(ctx)
	s.requestID = id
	s.logger = s.logger.With(zap.String("request_id", id))
	return s.into(ctx)
}

// WithTenantID binds the tenant a downlink belongs to.
func WithTenantID(ctx context.Context, id string) context.Context {
	s := scopeOf(ctx)
	s.tenantID = id
	s.logger = s.logger.With(zap.String("tenant_id", id))
	return s.into(ctx)
}

// WithDownlinkMsgID binds the id of the downlink batch being applied.
func WithDownlinkMsgID(ctx context.Context, id int32) context.Context {
	s := scopeOf(ctx)
	s.downlinkMsgID = &id
	s.logger = s.logger.With(zap.Int32("downlink_msg_id", id))
	return s.into(ctx)
}

// Fields returns the identifiers bound to ctx as zap fields, for loggers that
// do not come from ctx.
func Fields(ctx context.Context) []zap.Field {
	s := scopeOf(ctx)
	var fields []zap.Field
	if s.requestID != "" {
		fields = append(fields, zap.String("request_id", s.requestID))
	}
	if s.tenantID != "" {
		fields = append(fields, zap.String("tenant_id", s.tenantID))
	}
	if s.downlinkMsgID != nil {
		fields = append(fields, zap.Int32("downlink_msg_id", *s.downlinkMsgID))
	}
	return fields
}

// L returns the logger of ctx with the ids of the active span, if any.
func L(ctx context.Context) *zap.Logger {
	return WithTraceContext(ctx, FromContext(ctx))
}

// WithTraceContext adds trace_id and span_id of the span in ctx.
func WithTraceContext(ctx context.Context, logger *zap.Logger) *zap.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return logger
	}
	return logger.With(
		zap.Stringer("trace_id", sc.TraceID()),
		zap.Stringer("span_id", sc.SpanID()),
	)
}
