package edgesync

import (
	"context"
	"fmt"
	"sync"

	"github.com/edgesync/backend/internal/domain/edge"
	"github.com/edgesync/backend/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultDispatchWorkers is the number of entity kinds applied concurrently
const DefaultDispatchWorkers = 4

// Dispatcher applies a downlink batch through the per-kind processors and produces the
// acknowledgement for the transport. Kinds run concurrently; messages of one kind run
// in delivery order.
type Dispatcher struct {
	assets    *AssetProcessor
	customers *CustomerProcessor
	views     *EntityViewProcessor
	users     *UserProcessor

	workers     int
	idempotency shared.IdempotencyStore
	idemConfig  shared.IdempotencyConfig
	logger      *zap.Logger
}

// DispatcherOption configures a Dispatcher
type DispatcherOption func(*Dispatcher)

// WithDispatchWorkers sets how many kinds are applied at once
func WithDispatchWorkers(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithIdempotencyStore skips downlink batches that were already acknowledged
func WithIdempotencyStore(store shared.IdempotencyStore, cfg shared.IdempotencyConfig) DispatcherOption {
	return func(d *Dispatcher) {
		d.idempotency = store
		d.idemConfig = cfg
	}
}

// WithDispatcherLogger sets the logger
func WithDispatcherLogger(logger *zap.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// NewDispatcher creates a Dispatcher
func NewDispatcher(assets *AssetProcessor, customers *CustomerProcessor, views *EntityViewProcessor, users *UserProcessor, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		assets:    assets,
		customers: customers,
		views:     views,
		users:     users,
		workers:   DefaultDispatchWorkers,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Process applies msg and returns the acknowledgement. Follow-up failures never
// change the response.
func (d *Dispatcher) Process(ctx context.Context, tenantID uuid.UUID, msg *edge.DownlinkMsg) edge.DownlinkResponse {
	resp, _ := d.Apply(ctx, tenantID, msg)
	return resp
}

// Apply is Process that also hands back the follow-up handles of the applied messages
func (d *Dispatcher) Apply(ctx context.Context, tenantID uuid.UUID, msg *edge.DownlinkMsg) (edge.DownlinkResponse, []*FollowUp) {
	resp := edge.DownlinkResponse{DownlinkMsgID: msg.DownlinkMsgID}
	key := downlinkKey(tenantID, msg.DownlinkMsgID)

	if d.dedupeEnabled() {
		processed, err := d.idempotency.IsProcessed(ctx, key)
		if err != nil {
			d.logger.Warn("Idempotency check failed, applying downlink anyway",
				zap.String("key", key),
				zap.Error(err),
			)
		} else if processed {
			d.logger.Debug("Downlink already acknowledged", zap.String("key", key))
			resp.Success = true
			return resp, nil
		}
	}

	var (
		mu        sync.Mutex
		followUps []*FollowUp
	)
	collect := func(f *FollowUp) {
		mu.Lock()
		followUps = append(followUps, f)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)

	if len(msg.CustomerUpdateMsgs) > 0 {
		g.Go(func() error {
			for i := range msg.CustomerUpdateMsgs {
				f, err := d.customers.Process(gctx, tenantID, &msg.CustomerUpdateMsgs[i], msg.QueueStartTs)
				if err != nil {
					return err
				}
				collect(f)
			}
			return nil
		})
	}
	if len(msg.AssetUpdateMsgs) > 0 {
		g.Go(func() error {
			for i := range msg.AssetUpdateMsgs {
				f, err := d.assets.Process(gctx, tenantID, &msg.AssetUpdateMsgs[i], msg.QueueStartTs)
				if err != nil {
					return err
				}
				collect(f)
			}
			return nil
		})
	}
	if len(msg.EntityViewUpdateMsgs) > 0 {
		g.Go(func() error {
			for i := range msg.EntityViewUpdateMsgs {
				f, err := d.views.Process(gctx, tenantID, &msg.EntityViewUpdateMsgs[i], msg.QueueStartTs)
				if err != nil {
					return err
				}
				collect(f)
			}
			return nil
		})
	}
	if len(msg.UserUpdateMsgs) > 0 || len(msg.UserCredentialsUpdateMsg) > 0 {
		// credentials follow the users of the same batch
		g.Go(func() error {
			for i := range msg.UserUpdateMsgs {
				f, err := d.users.Process(gctx, tenantID, &msg.UserUpdateMsgs[i], msg.QueueStartTs)
				if err != nil {
					return err
				}
				collect(f)
			}
			for i := range msg.UserCredentialsUpdateMsg {
				if err := d.users.ProcessCredentials(gctx, tenantID, &msg.UserCredentialsUpdateMsg[i]); err != nil {
					return err
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		d.logger.Warn("Downlink rejected",
			zap.Int32("downlink_msg_id", msg.DownlinkMsgID),
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err),
		)
		resp.ErrorMsg = err.Error()
		return resp, followUps
	}

	if d.dedupeEnabled() {
		if _, err := d.idempotency.MarkProcessed(ctx, key, d.idemConfig.TTL); err != nil {
			d.logger.Warn("Failed to mark downlink as processed",
				zap.String("key", key),
				zap.Error(err),
			)
		}
	}

	resp.Success = true
	return resp, followUps
}

func (d *Dispatcher) dedupeEnabled() bool {
	return d.idempotency != nil && d.idemConfig.Enabled
}

func downlinkKey(tenantID uuid.UUID, downlinkMsgID int32) string {
	return fmt.Sprintf("downlink:%s:%d", tenantID, downlinkMsgID)
}
