package middleware

import (
	"net/http"
	"slices"

	"github.com/edgesync/backend/internal/infrastructure/telemetry"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TenantParam is the route parameter holding the tenant id
const TenantParam = "tenantId"

// Tracing starts a server span per request, continuing the caller's trace.
// Requests for untraced paths, typically probes, get no span.
func Tracing(serviceName string, untraced ...string) gin.HandlerFunc {
	return otelgin.Middleware(serviceName, otelgin.WithFilter(func(r *http.Request) bool {
		return !slices.Contains(untraced, r.URL.Path)
	}))
}

// SpanEnricher runs after Tracing and RequestID. It tags the request span with
// the request and tenant ids, and fails it on a 5xx.
func SpanEnricher() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() {
			c.Next()
			return
		}

		var attrs []attribute.KeyValue
		if id := GetRequestID(c); id != "" {
			attrs = append(attrs, attribute.String("request_id", id))
		}
		if tenant := c.Param(TenantParam); tenant != "" {
			attrs = append(attrs, attribute.String(telemetry.SpanAttrTenantID, tenant))
		}
		span.SetAttributes(attrs...)

		c.Next()

		if status := c.Writer.Status(); status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}
