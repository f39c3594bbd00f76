package handler

import (
	"context"
	"net/http"

	"github.com/edgesync/backend/internal/domain/edge"
	"github.com/edgesync/backend/internal/infrastructure/logger"
	"github.com/edgesync/backend/internal/infrastructure/telemetry"
	"github.com/edgesync/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// DownlinkProcessor applies one downlink batch for a tenant
type DownlinkProcessor interface {
	Process(ctx context.Context, tenantID uuid.UUID, msg *edge.DownlinkMsg) edge.DownlinkResponse
}

// EdgeHandler receives downlink batches from the cloud link
type EdgeHandler struct {
	BaseHandler
	dispatcher DownlinkProcessor
}

// NewEdgeHandler creates an EdgeHandler
func NewEdgeHandler(dispatcher DownlinkProcessor) *EdgeHandler {
	return &EdgeHandler{dispatcher: dispatcher}
}

type tenantURI struct {
	TenantID string `uri:"tenantId" binding:"required,uuid"`
}

// Downlink applies a batch and answers with its acknowledgement.
// A batch that fails to apply is still a 200: the failure travels in the
// response body so the link can redeliver it.
func (h *EdgeHandler) Downlink(c *gin.Context) {
	var uri tenantURI
	if err := c.ShouldBindUri(&uri); err != nil {
		h.ValidationError(c, err)
		return
	}
	var msg edge.DownlinkMsg
	if err := c.ShouldBindJSON(&msg); err != nil {
		h.BadRequest(c, "Malformed downlink message")
		return
	}
	tenantID := uuid.MustParse(uri.TenantID)

	ctx := logger.WithDownlinkMsgID(logger.WithTenantID(c.Request.Context(), uri.TenantID), msg.DownlinkMsgID)
	log := logger.L(ctx)
	telemetry.AddEvent(trace.SpanFromContext(ctx), "downlink.received",
		attribute.Int(telemetry.SpanAttrDownlinkMsgID, int(msg.DownlinkMsgID)))

	resp := h.dispatcher.Process(ctx, tenantID, &msg)
	if !resp.Success {
		log.Warn("Downlink rejected", zap.String("error", resp.ErrorMsg))
	}
	c.JSON(http.StatusOK, resp)
}

// RegisterRoutes mounts the downlink endpoint
func (h *EdgeHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/edge/:"+middleware.TenantParam+"/downlink", h.Downlink)
}
