package edgesync

import (
	"context"
	"fmt"
	"time"

	"github.com/edgesync/backend/internal/domain/edge"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EntityViewProcessor applies entity view change messages
type EntityViewProcessor struct {
	processorBase
	repo   edge.EntityViewRepository
	lookup edge.EntityLookup
}

// NewEntityViewProcessor creates an EntityViewProcessor. lookup decides whether the
// entity a view is bound to has already been synchronized.
func NewEntityViewProcessor(repo edge.EntityViewRepository, lookup edge.EntityLookup, locks LockRegistry, emitter RequestEmitter, executor *Executor, opts ...Option) *EntityViewProcessor {
	return &EntityViewProcessor{
		processorBase: newProcessorBase(edge.EntityTypeEntityView, locks, emitter, executor, opts),
		repo:          repo,
		lookup:        lookup,
	}
}

// Process applies msg for tenantID. Besides attributes and relations of the view, the
// follow-up requests the bound entity when it is not known locally.
func (p *EntityViewProcessor) Process(ctx context.Context, tenantID uuid.UUID, msg *edge.EntityViewUpdateMsg, queueStartTs int64) (_ *FollowUp, err error) {
	start := time.Now()
	ctx, span := p.begin(ctx, msg.MsgType, msg.ID)
	defer func() { p.finish(ctx, span, msg.MsgType, msg.ID, start, err) }()

	switch {
	case msg.MsgType.IsCreateOrUpdate():
		view, created, err := upsert[*edge.EntityView]{
			find: func(ctx context.Context) (*edge.EntityView, error) {
				return p.repo.FindByID(ctx, tenantID, msg.ID)
			},
			create: func() *edge.EntityView {
				return edge.NewEntityView(tenantID, msg.ID)
			},
			apply: func(v *edge.EntityView) {
				v.Apply(msg)
			},
			save: func(ctx context.Context, v *edge.EntityView, _ bool) (*edge.EntityView, error) {
				return p.repo.Save(ctx, v, false)
			},
		}.run(ctx, p.locks, p.kind, msg.ID)
		if err != nil {
			return nil, err
		}
		p.logger.Debug("Entity view applied",
			zap.String("entity_view_id", view.ID.String()),
			zap.Bool("created", created),
		)

		stages := p.requests(tenantID, view.EntityID(), queueStartTs, edge.RequestAttributes, edge.RequestRelations)
		if view.Entity != nil {
			stages = append(stages, p.linkedEntityStage(tenantID, *view.Entity, queueStartTs))
		}
		return p.followUp(ctx, "entity_view", stages...), nil

	case msg.MsgType.IsDelete():
		deleted, err := deleteIfPresent(ctx, p.kind, msg.ID,
			func(ctx context.Context) error {
				_, err := p.repo.FindByID(ctx, tenantID, msg.ID)
				return err
			},
			func(ctx context.Context) error {
				return p.repo.Delete(ctx, tenantID, msg.ID)
			},
		)
		if err != nil {
			return nil, err
		}
		p.logger.Debug("Entity view delete applied",
			zap.String("entity_view_id", msg.ID.String()),
			zap.Bool("deleted", deleted),
		)
		return CompletedFollowUp(StageResult{}), nil

	default:
		return nil, unsupported(msg.MsgType)
	}
}

// linkedEntityStage requests the bound entity unless it already exists locally
func (p *EntityViewProcessor) linkedEntityStage(tenantID uuid.UUID, target edge.EntityID, queueStartTs int64) Stage {
	return func(ctx context.Context, prev StageResult) (StageResult, error) {
		exists, err := p.lookup.Exists(ctx, tenantID, target)
		if err != nil {
			return prev, fmt.Errorf("failed to look up %s: %w", target, err)
		}
		if exists {
			return prev, nil
		}
		return requestStage(p.emitter, tenantID, edge.NewEntityRequest(edge.RequestEntity, target, queueStartTs))(ctx, prev)
	}
}
