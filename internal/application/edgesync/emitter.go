package edgesync

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/edgesync/backend/internal/domain/edge"
	"github.com/edgesync/backend/internal/domain/shared"
	"github.com/edgesync/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RequestEmitter turns a request descriptor into an uplink message queued for the transport
type RequestEmitter interface {
	Emit(ctx context.Context, tenantID uuid.UUID, req edge.RequestDescriptor) (*edge.UplinkMsg, error)
}

// OutboxEmitter queues uplink messages in the outbox. Delivery is left to the outbox processor.
type OutboxEmitter struct {
	outbox  shared.OutboxRepository
	nextID  atomic.Int32
	metrics *telemetry.SyncMetrics
	logger  *zap.Logger
	now     func() time.Time
}

// EmitterOption configures an OutboxEmitter
type EmitterOption func(*OutboxEmitter)

// WithEmitterLogger sets the logger
func WithEmitterLogger(logger *zap.Logger) EmitterOption {
	return func(e *OutboxEmitter) {
		e.logger = logger
	}
}

// WithEmitterMetrics sets the metrics collector
func WithEmitterMetrics(metrics *telemetry.SyncMetrics) EmitterOption {
	return func(e *OutboxEmitter) {
		e.metrics = metrics
	}
}

// NewOutboxEmitter creates an emitter backed by outbox
func NewOutboxEmitter(outbox shared.OutboxRepository, opts ...EmitterOption) *OutboxEmitter {
	e := &OutboxEmitter{
		outbox: outbox,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Emit assigns the next uplink message id and stores the message in the outbox
func (e *OutboxEmitter) Emit(ctx context.Context, tenantID uuid.UUID, req edge.RequestDescriptor) (*edge.UplinkMsg, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrInvalidInput, err)
	}

	msg := &edge.UplinkMsg{
		UplinkMsgID: e.nextUplinkMsgID(),
		TenantID:    tenantID,
		Request:     req,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode uplink message: %w", err)
	}

	entry := shared.NewOutboxEntry(tenantID, msg.UplinkMsgID, string(req.Type), string(req.Entity.Type), req.Entity.ID, payload)
	if err := e.outbox.Save(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to queue uplink message: %w", err)
	}

	var latency time.Duration
	if req.QueueStartTs > 0 {
		latency = e.now().Sub(time.UnixMilli(req.QueueStartTs))
	}
	if e.metrics != nil {
		e.metrics.RecordUplinkMsg(ctx, string(req.Type), latency)
	}

	e.logger.Debug("Uplink message queued",
		zap.Int32("uplink_msg_id", msg.UplinkMsgID),
		zap.String("request_type", string(req.Type)),
		zap.String("entity", req.Entity.String()),
		zap.Duration("queue_latency", latency),
	)
	return msg, nil
}

// nextUplinkMsgID returns a positive id, wrapping to 1 on overflow
func (e *OutboxEmitter) nextUplinkMsgID() int32 {
	for {
		cur := e.nextID.Load()
		next := cur + 1
		if next <= 0 {
			next = 1
		}
		if e.nextID.CompareAndSwap(cur, next) {
			return next
		}
	}
}

// requestStage emits req and appends the uplink message to the stage result
func requestStage(emitter RequestEmitter, tenantID uuid.UUID, req edge.RequestDescriptor) Stage {
	return func(ctx context.Context, prev StageResult) (StageResult, error) {
		msg, err := emitter.Emit(ctx, tenantID, req)
		if err != nil {
			return prev, fmt.Errorf("failed to request %s for %s: %w", req.Type, req.Entity, err)
		}
		return prev.WithUplink(msg), nil
	}
}

var _ RequestEmitter = (*OutboxEmitter)(nil)
