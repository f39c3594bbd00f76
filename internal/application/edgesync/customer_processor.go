package edgesync

import (
	"context"
	"time"

	"github.com/edgesync/backend/internal/domain/edge"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CustomerProcessor applies customer change messages. Customers carry all their
// data in the message, so no follow-up requests are issued.
type CustomerProcessor struct {
	processorBase
	repo edge.CustomerRepository
}

// NewCustomerProcessor creates a CustomerProcessor
func NewCustomerProcessor(repo edge.CustomerRepository, locks LockRegistry, emitter RequestEmitter, executor *Executor, opts ...Option) *CustomerProcessor {
	return &CustomerProcessor{
		processorBase: newProcessorBase(edge.EntityTypeCustomer, locks, emitter, executor, opts),
		repo:          repo,
	}
}

// Process applies msg for tenantID
func (p *CustomerProcessor) Process(ctx context.Context, tenantID uuid.UUID, msg *edge.CustomerUpdateMsg, _ int64) (_ *FollowUp, err error) {
	start := time.Now()
	ctx, span := p.begin(ctx, msg.MsgType, msg.ID)
	defer func() { p.finish(ctx, span, msg.MsgType, msg.ID, start, err) }()

	switch {
	case msg.MsgType.IsCreateOrUpdate():
		customer, created, err := upsert[*edge.Customer]{
			find: func(ctx context.Context) (*edge.Customer, error) {
				return p.repo.FindByID(ctx, tenantID, msg.ID)
			},
			create: func() *edge.Customer {
				return edge.NewCustomer(tenantID, msg.ID)
			},
			apply: func(c *edge.Customer) {
				c.Apply(msg)
			},
			save: func(ctx context.Context, c *edge.Customer, _ bool) (*edge.Customer, error) {
				return p.repo.Save(ctx, c, false)
			},
		}.run(ctx, p.locks, p.kind, msg.ID)
		if err != nil {
			return nil, err
		}
		p.logger.Debug("Customer applied",
			zap.String("customer_id", customer.ID.String()),
			zap.Bool("created", created),
		)
		return CompletedFollowUp(StageResult{}), nil

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
		p.logger.Debug("Customer delete applied",
			zap.String("customer_id", msg.ID.String()),
			zap.Bool("deleted", deleted),
		)
		return CompletedFollowUp(StageResult{}), nil

	default:
		return nil, unsupported(msg.MsgType)
	}
}
