package edgesync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/edgesync/backend/internal/domain/edge"
	"github.com/edgesync/backend/internal/domain/shared"
	"github.com/edgesync/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Option configures a processor
type Option func(*processorBase)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(p *processorBase) {
		p.logger = logger
	}
}

// WithMetrics sets the metrics collector
func WithMetrics(metrics *telemetry.SyncMetrics) Option {
	return func(p *processorBase) {
		p.metrics = metrics
	}
}

// processorBase carries what every kind-specific processor shares
type processorBase struct {
	kind     edge.EntityType
	locks    LockRegistry
	emitter  RequestEmitter
	executor *Executor
	metrics  *telemetry.SyncMetrics
	logger   *zap.Logger
}

func newProcessorBase(kind edge.EntityType, locks LockRegistry, emitter RequestEmitter, executor *Executor, opts []Option) processorBase {
	p := processorBase{
		kind:     kind,
		locks:    locks,
		emitter:  emitter,
		executor: executor,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&p)
	}
	p.logger = p.logger.With(zap.String("entity_type", string(kind)))
	return p
}

func (p *processorBase) begin(ctx context.Context, msgType edge.UpdateMsgType, id uuid.UUID) (context.Context, trace.Span) {
	return telemetry.StartProcessorSpan(ctx, string(p.kind), string(msgType), id)
}

func (p *processorBase) finish(ctx context.Context, span trace.Span, msgType edge.UpdateMsgType, id uuid.UUID, start time.Time, err error) {
	outcome := telemetry.OutcomeSuccess
	if err != nil {
		outcome = telemetry.OutcomeFailed
		telemetry.RecordError(span, err)
		p.logger.Warn("Failed to apply change message",
			zap.String("entity_id", id.String()),
			zap.String("msg_type", string(msgType)),
			zap.Error(err),
		)
	}
	if p.metrics != nil {
		p.metrics.RecordDownlinkMsg(ctx, string(p.kind), string(msgType), outcome, time.Since(start))
	}
	span.End()
}

// followUp runs stages in the background
func (p *processorBase) followUp(ctx context.Context, name string, stages ...Stage) *FollowUp {
	f := p.executor.Run(ctx, NewPipeline(name, stages...))
	if p.metrics == nil {
		return f
	}
	metrics, kind := p.metrics, string(p.kind)
	go func() {
		<-f.Done()
		outcome := telemetry.OutcomeSuccess
		if f.err != nil {
			outcome = telemetry.OutcomeFailed
		}
		metrics.RecordFollowUp(context.WithoutCancel(ctx), kind, outcome)
	}()
	return f
}

// requests builds one request stage per request type for ref
func (p *processorBase) requests(tenantID uuid.UUID, ref edge.EntityID, queueStartTs int64, types ...edge.RequestType) []Stage {
	stages := make([]Stage, 0, len(types))
	for _, t := range types {
		stages = append(stages, requestStage(p.emitter, tenantID, edge.NewEntityRequest(t, ref, queueStartTs)))
	}
	return stages
}

// unsupported reports a message type no processor can apply
func unsupported(msgType edge.UpdateMsgType) error {
	return fmt.Errorf("%w: %s", shared.ErrUnsupportedMsgType, string(msgType))
}

// upsert runs the find-or-create decision for one record under the creation lock.
// The lock is released on every exit path, including a failed save.
type upsert[R any] struct {
	find   func(ctx context.Context) (R, error)
	create func() R
	apply  func(R)
	save   func(ctx context.Context, rec R, created bool) (R, error)
}

func (u upsert[R]) run(ctx context.Context, locks LockRegistry, kind edge.EntityType, id uuid.UUID) (R, bool, error) {
	var zero R

	release, err := locks.Acquire(ctx, kind, id)
	if err != nil {
		return zero, false, err
	}
	defer release()

	created := false
	rec, err := u.find(ctx)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		rec = u.create()
		created = true
	case err != nil:
		return zero, false, fmt.Errorf("failed to find %s %s: %w", kind, id, err)
	}

	u.apply(rec)

	saved, err := u.save(ctx, rec, created)
	if err != nil {
		return zero, false, fmt.Errorf("failed to save %s %s: %w", kind, id, err)
	}
	return saved, created, nil
}

// deleteIfPresent looks the record up outside any lock and deletes it if it exists.
// An absent record is not an error.
func deleteIfPresent(ctx context.Context, kind edge.EntityType, id uuid.UUID, find func(ctx context.Context) error, del func(ctx context.Context) error) (bool, error) {
	err := find(ctx)
	if errors.Is(err, shared.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to find %s %s: %w", kind, id, err)
	}
	if err := del(ctx); err != nil {
		return false, fmt.Errorf("failed to delete %s %s: %w", kind, id, err)
	}
	return true, nil
}
