package event

import (
	"context"
	"time"

	"github.com/edgesync/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// IdempotentHandler runs the wrapped handler at most once per event key within
// the TTL, so a redelivered credentials request does not emit twice. The key
// is the event id unless WithEventKey says otherwise.
type IdempotentHandler struct {
	next    shared.EventHandler
	store   shared.IdempotencyStore
	enabled bool
	ttl     time.Duration
	keyOf   func(shared.DomainEvent) string
	logger  *zap.Logger
}

// IdempotentHandlerOption configures an IdempotentHandler
type IdempotentHandlerOption func(*IdempotentHandler)

// WithIdempotencyConfig switches the check on or off and sets the TTL
func WithIdempotencyConfig(cfg shared.IdempotencyConfig) IdempotentHandlerOption {
	return func(h *IdempotentHandler) {
		h.enabled, h.ttl = cfg.Enabled, cfg.TTL
	}
}

// WithKeyPrefix replaces the "event:" prefix of the stored keys
func WithKeyPrefix(prefix string) IdempotentHandlerOption {
	return func(h *IdempotentHandler) {
		h.keyOf = func(e shared.DomainEvent) string { return prefix + e.EventID().String() }
	}
}

// WithEventKey derives the stored key from the event
func WithEventKey(fn func(shared.DomainEvent) string) IdempotentHandlerOption {
	return func(h *IdempotentHandler) { h.keyOf = fn }
}

// WithHandlerLogger sets the logger
func WithHandlerLogger(logger *zap.Logger) IdempotentHandlerOption {
	return func(h *IdempotentHandler) { h.logger = logger }
}

// NewIdempotentHandler wraps next with a check against store
func NewIdempotentHandler(next shared.EventHandler, store shared.IdempotencyStore, opts ...IdempotentHandlerOption) *IdempotentHandler {
	cfg := shared.DefaultIdempotencyConfig()
	h := &IdempotentHandler{
		next:    next,
		store:   store,
		enabled: cfg.Enabled,
		ttl:     cfg.TTL,
		logger:  zap.NewNop(),
	}
	WithKeyPrefix("event:")(h)
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// EventTypes returns the event types of the wrapped handler
func (h *IdempotentHandler) EventTypes() []string {
	return h.next.EventTypes()
}

// Handle claims the event key, then runs the wrapped handler. A key that is
// already claimed skips the event. When the store fails the event is handled
// anyway. A handler failure leaves the key claimed until it expires.
func (h *IdempotentHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	if !h.enabled {
		return h.next.Handle(ctx, event)
	}

	key := h.keyOf(event)
	log := h.logger.With(zap.String("key", key), zap.String("event_type", event.EventType()))
	claimed, err := h.store.MarkProcessed(ctx, key, h.ttl)
	switch {
	case err != nil:
		log.Warn("Idempotency store unavailable, handling event unchecked", zap.Error(err))
	case !claimed:
		log.Debug("Duplicate event skipped")
		return nil
	}
	return h.next.Handle(ctx, event)
}

var _ shared.EventHandler = (*IdempotentHandler)(nil)
