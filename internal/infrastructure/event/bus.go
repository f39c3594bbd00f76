// Package event delivers domain events such as credential requests to in-process handlers.
package event

import (
	"context"
	"errors"
	"fmt"

	"github.com/edgesync/backend/internal/domain/shared"
	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"
)

// InMemoryEventBus dispatches events synchronously to the subscribed handlers.
// Every handler sees the event even when an earlier one fails; Publish returns the
// joined handler errors so that callers can retry.
type InMemoryEventBus struct {
	handlers *handlerTable
	logger   *zap.Logger
}

// BusOption configures an InMemoryEventBus
type BusOption func(*InMemoryEventBus)

// WithBusLogger sets the logger
func WithBusLogger(logger *zap.Logger) BusOption {
	return func(b *InMemoryEventBus) {
		b.logger = logger
	}
}

// NewInMemoryEventBus creates a new in-memory event bus
func NewInMemoryEventBus(opts ...BusOption) *InMemoryEventBus {
	b := &InMemoryEventBus{
		handlers: newHandlerTable(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish hands every event to its handlers
func (b *InMemoryEventBus) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	var errs []error
	for _, event := range events {
		for _, handler := range b.handlers.lookup(event.EventType()) {
			if err := b.dispatch(ctx, handler, event); err != nil {
				b.logger.Error("Handler failed to process event",
					zap.String("event_type", event.EventType()),
					zap.String("event_id", event.EventID().String()),
					zap.Error(err),
				)
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Subscribe registers handler for eventTypes, or for the types it declares itself
func (b *InMemoryEventBus) Subscribe(handler shared.EventHandler, eventTypes ...string) {
	if len(eventTypes) == 0 {
		eventTypes = handler.EventTypes()
	}
	b.handlers.add(handler, eventTypes...)
	b.logger.Debug("Handler subscribed", zap.Strings("event_types", eventTypes))
}

// Unsubscribe removes a handler
func (b *InMemoryEventBus) Unsubscribe(handler shared.EventHandler) {
	b.handlers.remove(handler)
}

// dispatch turns a handler panic into an error
func (b *InMemoryEventBus) dispatch(ctx context.Context, handler shared.EventHandler, event shared.DomainEvent) error {
	var (
		err error
		pc  panics.Catcher
	)
	pc.Try(func() {
		err = handler.Handle(ctx, event)
	})
	if r := pc.Recovered(); r != nil {
		return fmt.Errorf("handler panicked on %s: %w", event.EventType(), r.AsError())
	}
	return err
}

var _ shared.EventBus = (*InMemoryEventBus)(nil)
