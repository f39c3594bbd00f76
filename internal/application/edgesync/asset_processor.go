package edgesync

import (
	"context"
	"time"

	"github.com/edgesync/backend/internal/domain/edge"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AssetProcessor applies asset change messages
type AssetProcessor struct {
	processorBase
	repo edge.AssetRepository
}

// NewAssetProcessor creates an AssetProcessor
func NewAssetProcessor(repo edge.AssetRepository, locks LockRegistry, emitter RequestEmitter, executor *Executor, opts ...Option) *AssetProcessor {
	return &AssetProcessor{
		processorBase: newProcessorBase(edge.EntityTypeAsset, locks, emitter, executor, opts),
		repo:          repo,
	}
}

// Process applies msg for tenantID. The returned error is the outcome of the storage
// mutation; the FollowUp tracks the attribute, relation and entity view requests.
func (p *AssetProcessor) Process(ctx context.Context, tenantID uuid.UUID, msg *edge.AssetUpdateMsg, queueStartTs int64) (_ *FollowUp, err error) {
	start := time.Now()
	ctx, span := p.begin(ctx, msg.MsgType, msg.ID)
	defer func() { p.finish(ctx, span, msg.MsgType, msg.ID, start, err) }()

	switch {
	case msg.MsgType.IsCreateOrUpdate():
		asset, created, err := upsert[*edge.Asset]{
			find: func(ctx context.Context) (*edge.Asset, error) {
				return p.repo.FindByID(ctx, tenantID, msg.ID)
			},
			create: func() *edge.Asset {
				return edge.NewAsset(tenantID, msg.ID)
			},
			apply: func(a *edge.Asset) {
				a.Apply(msg)
			},
			save: func(ctx context.Context, a *edge.Asset, _ bool) (*edge.Asset, error) {
				return p.repo.Save(ctx, a, false)
			},
		}.run(ctx, p.locks, p.kind, msg.ID)
		if err != nil {
			return nil, err
		}

		p.logger.Debug("Asset applied",
			zap.String("asset_id", asset.ID.String()),
			zap.Bool("created", created),
		)
		return p.followUp(ctx, "asset",
			p.requests(tenantID, asset.EntityID(), queueStartTs,
				edge.RequestAttributes, edge.RequestRelations, edge.RequestEntityViews)...,
		), nil

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
		p.logger.Debug("Asset delete applied",
			zap.String("asset_id", msg.ID.String()),
			zap.Bool("deleted", deleted),
		)
		return CompletedFollowUp(StageResult{}), nil

	default:
		return nil, unsupported(msg.MsgType)
	}
}
