package edgesync

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/edgesync/backend/internal/domain/edge"
	"github.com/edgesync/backend/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UserProcessor applies user and user credentials change messages
type UserProcessor struct {
	processorBase
	repo      edge.UserRepository
	publisher shared.EventPublisher
}

// NewUserProcessor creates a UserProcessor. publisher receives the credentials request
// raised for users created by a change message.
func NewUserProcessor(repo edge.UserRepository, publisher shared.EventPublisher, locks LockRegistry, emitter RequestEmitter, executor *Executor, opts ...Option) *UserProcessor {
	return &UserProcessor{
		processorBase: newProcessorBase(edge.EntityTypeUser, locks, emitter, executor, opts),
		repo:          repo,
		publisher:     publisher,
	}
}

// Process applies msg for tenantID. A user created by this call gets disabled credentials
// with a fresh activation token, and once its attributes and relations have been
// requested, a UserCredentialsRequestedEvent is published.
func (p *UserProcessor) Process(ctx context.Context, tenantID uuid.UUID, msg *edge.UserUpdateMsg, queueStartTs int64) (_ *FollowUp, err error) {
	start := time.Now()
	ctx, span := p.begin(ctx, msg.MsgType, msg.ID)
	defer func() { p.finish(ctx, span, msg.MsgType, msg.ID, start, err) }()

	switch {
	case msg.MsgType.IsCreateOrUpdate():
		if authority, ok := msg.Authority.Get(); ok {
			if err := authority.Validate(); err != nil {
				return nil, fmt.Errorf("%w: %w", shared.ErrInvalidInput, err)
			}
		}

		user, created, err := upsert[*edge.User]{
			find: func(ctx context.Context) (*edge.User, error) {
				return p.repo.FindByID(ctx, tenantID, msg.ID)
			},
			create: func() *edge.User {
				return edge.NewUser(tenantID, msg.ID)
			},
			apply: func(u *edge.User) {
				u.Apply(msg)
			},
			save: p.saveUser,
		}.run(ctx, p.locks, p.kind, msg.ID)
		if err != nil {
			return nil, err
		}
		p.logger.Debug("User applied",
			zap.String("user_id", user.ID.String()),
			zap.Bool("created", created),
		)

		stages := p.requests(tenantID, user.EntityID(), queueStartTs, edge.RequestAttributes, edge.RequestRelations)
		if created {
			stages = append(stages, p.credentialsRequestStage(tenantID, user.ID, queueStartTs))
		}
		return p.followUp(ctx, "user", stages...), nil

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
		p.logger.Debug("User delete applied",
			zap.String("user_id", msg.ID.String()),
			zap.Bool("deleted", deleted),
		)
		return CompletedFollowUp(StageResult{}), nil

	default:
		return nil, unsupported(msg.MsgType)
	}
}

// saveUser persists the user. A new user is stored together with its pending
// credentials, or not at all. It runs inside the creation lock.
func (p *UserProcessor) saveUser(ctx context.Context, u *edge.User, created bool) (*edge.User, error) {
	if !created {
		return p.repo.Save(ctx, u, false)
	}
	saved, err := p.repo.SaveWithCredentials(ctx, u, edge.NewPendingCredentials(u.ID, rand.Text()), false)
	if err != nil {
		return nil, fmt.Errorf("failed to save user with credentials: %w", err)
	}
	return saved, nil
}

func (p *UserProcessor) credentialsRequestStage(tenantID, userID uuid.UUID, queueStartTs int64) Stage {
	return func(ctx context.Context, prev StageResult) (StageResult, error) {
		event := edge.NewUserCredentialsRequestedEvent(tenantID, userID, queueStartTs)
		if err := p.publisher.Publish(ctx, event); err != nil {
			return prev, fmt.Errorf("failed to publish credentials request: %w", err)
		}
		return prev.WithEvent(event), nil
	}
}

// ProcessCredentials takes over credentials activated on the other side of the link.
// Credentials of unknown users are ignored.
func (p *UserProcessor) ProcessCredentials(ctx context.Context, tenantID uuid.UUID, msg *edge.UserCredentialsUpdateMsg) (err error) {
	start := time.Now()
	const msgType = edge.UpdateMsgType("CREDENTIALS_UPDATE")
	ctx, span := p.begin(ctx, msgType, msg.UserID)
	defer func() { p.finish(ctx, span, msgType, msg.UserID, start, err) }()

	if _, err := p.repo.FindByID(ctx, tenantID, msg.UserID); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			p.logger.Debug("Credentials for unknown user ignored", zap.String("user_id", msg.UserID.String()))
			return nil
		}
		return fmt.Errorf("failed to find user %s: %w", msg.UserID, err)
	}

	creds, err := p.repo.FindCredentialsByUserID(ctx, tenantID, msg.UserID)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		creds = &edge.UserCredentials{ID: edge.NewTimeUUID(), UserID: msg.UserID}
	case err != nil:
		return fmt.Errorf("failed to find credentials of user %s: %w", msg.UserID, err)
	}

	creds.Apply(msg)
	if _, err := p.repo.SaveCredentials(ctx, tenantID, creds); err != nil {
		return fmt.Errorf("failed to save credentials of user %s: %w", msg.UserID, err)
	}
	return nil
}

// CredentialsRequestHandler queues a CREDENTIALS uplink request for every
// UserCredentialsRequestedEvent
type CredentialsRequestHandler struct {
	emitter RequestEmitter
	logger  *zap.Logger
}

// NewCredentialsRequestHandler creates a CredentialsRequestHandler
func NewCredentialsRequestHandler(emitter RequestEmitter, logger *zap.Logger) *CredentialsRequestHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CredentialsRequestHandler{emitter: emitter, logger: logger}
}

// EventTypes returns the handled event types
func (h *CredentialsRequestHandler) EventTypes() []string {
	return []string{edge.EventTypeUserCredentialsRequested}
}

// Handle emits the credentials request
func (h *CredentialsRequestHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	e, ok := event.(*edge.UserCredentialsRequestedEvent)
	if !ok {
		return fmt.Errorf("unexpected event %T", event)
	}
	req := edge.NewEntityRequest(edge.RequestCredentials, edge.NewEntityID(edge.EntityTypeUser, e.UserID), e.QueueStartTs)
	msg, err := h.emitter.Emit(ctx, e.TenantID(), req)
	if err != nil {
		return err
	}
	h.logger.Debug("Credentials requested",
		zap.String("user_id", e.UserID.String()),
		zap.Int32("uplink_msg_id", msg.UplinkMsgID),
	)
	return nil
}

var _ shared.EventHandler = (*CredentialsRequestHandler)(nil)
