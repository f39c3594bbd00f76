package handler

import (
	"context"

	"github.com/edgesync/backend/internal/application/outbox"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// OutboxOperations is what operators can do with the uplink outbox
type OutboxOperations interface {
	GetDeadLetterEntries(ctx context.Context, filter outbox.Filter) (*outbox.ListResult, error)
	GetEntry(ctx context.Context, id uuid.UUID) (*outbox.EntryDTO, error)
	RetryDeadEntry(ctx context.Context, id uuid.UUID) (*outbox.EntryDTO, error)
	RetryAllDeadEntries(ctx context.Context) (int64, error)
	GetStats(ctx context.Context) (*outbox.StatsDTO, error)
}

var _ OutboxOperations = (*outbox.Service)(nil)

// OutboxHandler exposes the uplink outbox to operators: backlog stats, dead
// letter inspection and requeueing.
type OutboxHandler struct {
	BaseHandler
	outbox OutboxOperations
}

func NewOutboxHandler(ops OutboxOperations) *OutboxHandler {
	return &OutboxHandler{outbox: ops}
}

// RetryAllResponse reports how many dead letters were requeued
type RetryAllResponse struct {
	Count int64 `json:"count"`
}

// entryURI is the :id segment of the per-entry routes.
type entryURI struct {
	ID string `uri:"id" binding:"required,uuid"`
}

// respond answers v, or maps err to its status.
func respond[T any](h BaseHandler, c *gin.Context, v T, err error) {
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, v)
}

// withEntry parses the entry id and hands it to fn. A malformed id is a 400.
func (h *OutboxHandler) withEntry(fn func(context.Context, uuid.UUID) (*outbox.EntryDTO, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		var uri entryURI
		if err := c.ShouldBindUri(&uri); err != nil {
			h.BadRequest(c, "Invalid entry ID")
			return
		}
		entry, err := fn(c.Request.Context(), uuid.MustParse(uri.ID))
		respond(h.BaseHandler, c, entry, err)
	}
}

func (h *OutboxHandler) GetStats(c *gin.Context) {
	stats, err := h.outbox.GetStats(c.Request.Context())
	respond(h.BaseHandler, c, stats, err)
}

// GetDeadLetterEntries lists dead letters page by page
func (h *OutboxHandler) GetDeadLetterEntries(c *gin.Context) {
	var filter outbox.Filter
	if err := c.ShouldBindQuery(&filter); err != nil {
		h.ValidationError(c, err)
		return
	}
	page, err := h.outbox.GetDeadLetterEntries(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, page.Entries, page.Total, page.Page, page.PageSize)
}

func (h *OutboxHandler) GetEntry(c *gin.Context) {
	h.withEntry(h.outbox.GetEntry)(c)
}

// RetryDeadEntry moves one dead letter back to pending. Live entries are rejected.
func (h *OutboxHandler) RetryDeadEntry(c *gin.Context) {
	h.withEntry(h.outbox.RetryDeadEntry)(c)
}

func (h *OutboxHandler) RetryAllDeadEntries(c *gin.Context) {
	n, err := h.outbox.RetryAllDeadEntries(c.Request.Context())
	respond(h.BaseHandler, c, RetryAllResponse{Count: n}, err)
}

// RegisterRoutes mounts the outbox endpoints under /system/outbox. The static
// /dead routes win over /:id in gin's tree.
func (h *OutboxHandler) RegisterRoutes(rg *gin.RouterGroup) {
	routes := []struct {
		method, path string
		handle       gin.HandlerFunc
	}{
		{"GET", "/stats", h.GetStats},
		{"GET", "/dead", h.GetDeadLetterEntries},
		{"POST", "/dead/retry-all", h.RetryAllDeadEntries},
		{"GET", "/:id", h.GetEntry},
		{"POST", "/:id/retry", h.RetryDeadEntry},
	}
	g := rg.Group("/system/outbox")
	for _, r := range routes {
		g.Handle(r.method, r.path, r.handle)
	}
}
