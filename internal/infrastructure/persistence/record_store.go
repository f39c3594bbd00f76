package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/edgesync/backend/internal/domain/edge"
	"github.com/edgesync/backend/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// tenantScope restricts a query to the records of one tenant
func tenantScope(tenantID uuid.UUID) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("tenant_id = ?", tenantID)
	}
}

// RepositoryOption configures a GORM record repository
type RepositoryOption func(*repositoryOptions)

type repositoryOptions struct {
	publisher shared.EventPublisher
	logger    *zap.Logger
}

// WithEventPublisher publishes change notifications for writes made with notify set
func WithEventPublisher(publisher shared.EventPublisher) RepositoryOption {
	return func(o *repositoryOptions) {
		o.publisher = publisher
	}
}

// WithRepositoryLogger sets the logger
func WithRepositoryLogger(logger *zap.Logger) RepositoryOption {
	return func(o *repositoryOptions) {
		o.logger = logger
	}
}

// recordMapping converts one synchronized kind between domain and model
type recordMapping[D any, M any] struct {
	kind       edge.EntityType
	toDomain   func(*M) *D
	fromDomain func(*D) *M
	key        func(*D) (tenantID, id uuid.UUID)
}

// recordStore is the GORM implementation shared by the per-kind repositories.
// Records never change tenant; Delete of a missing record is not an error.
type recordStore[D any, M any] struct {
	db        *gorm.DB
	mapping   recordMapping[D, M]
	publisher shared.EventPublisher
	logger    *zap.Logger
}

func newRecordStore[D any, M any](db *gorm.DB, mapping recordMapping[D, M], opts []RepositoryOption) *recordStore[D, M] {
	o := repositoryOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return &recordStore[D, M]{
		db:        db,
		mapping:   mapping,
		publisher: o.publisher,
		logger:    o.logger,
	}
}

// FindByID returns shared.ErrNotFound when no record matches
func (s *recordStore[D, M]) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*D, error) {
	var model M
	if err := s.db.WithContext(ctx).
		Scopes(tenantScope(tenantID)).
		Where("id = ?", id).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find %s %s: %w", s.mapping.kind, id, err)
	}
	return s.mapping.toDomain(&model), nil
}

// immutableColumns keep the values of the first write of a record
var immutableColumns = []string{"id", "tenant_id", "created_time", "created_at"}

// Save creates the record or updates the mutable columns of an existing one.
// An id already owned by another tenant is rejected with shared.ErrInvalidInput.
func (s *recordStore[D, M]) Save(ctx context.Context, record *D, notify bool) (*D, error) {
	var (
		saved   *D
		created bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		saved, created, err = s.save(tx, record)
		return err
	})
	if err != nil {
		return nil, err
	}
	if notify {
		tenantID, id := s.mapping.key(saved)
		s.publish(ctx, edge.NewEntitySavedEvent(tenantID, edge.NewEntityID(s.mapping.kind, id), created))
	}
	return saved, nil
}

// save writes record inside tx and reports whether it was created
func (s *recordStore[D, M]) save(tx *gorm.DB, record *D) (*D, bool, error) {
	tenantID, id := s.mapping.key(record)
	model := s.mapping.fromDomain(record)

	var owners []uuid.UUID
	if err := tx.Model(new(M)).Where("id = ?", id).Limit(1).Pluck("tenant_id", &owners).Error; err != nil {
		return nil, false, fmt.Errorf("failed to save %s %s: %w", s.mapping.kind, id, err)
	}
	if len(owners) == 0 {
		if err := tx.Create(model).Error; err != nil {
			return nil, false, fmt.Errorf("failed to save %s %s: %w", s.mapping.kind, id, err)
		}
		return s.mapping.toDomain(model), true, nil
	}
	if owners[0] != tenantID {
		return nil, false, fmt.Errorf("%w: %s %s belongs to another tenant", shared.ErrInvalidInput, s.mapping.kind, id)
	}

	if err := tx.Model(model).
		Scopes(tenantScope(tenantID)).
		Select("*").
		Omit(immutableColumns...).
		Updates(model).Error; err != nil {
		return nil, false, fmt.Errorf("failed to save %s %s: %w", s.mapping.kind, id, err)
	}
	var stored M
	if err := tx.Scopes(tenantScope(tenantID)).Where("id = ?", id).First(&stored).Error; err != nil {
		return nil, false, fmt.Errorf("failed to reload %s %s: %w", s.mapping.kind, id, err)
	}
	return s.mapping.toDomain(&stored), false, nil
}

// Delete removes the record without notification
func (s *recordStore[D, M]) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	_, err := s.DeleteWithNotify(ctx, tenantID, id, false)
	return err
}

// DeleteWithNotify removes the record and reports whether it existed.
// The deleted notification only fires for a record that was actually removed.
func (s *recordStore[D, M]) DeleteWithNotify(ctx context.Context, tenantID, id uuid.UUID, notify bool) (bool, error) {
	result := s.db.WithContext(ctx).
		Scopes(tenantScope(tenantID)).
		Where("id = ?", id).
		Delete(new(M))
	if result.Error != nil {
		return false, fmt.Errorf("failed to delete %s %s: %w", s.mapping.kind, id, result.Error)
	}
	deleted := result.RowsAffected > 0
	if deleted && notify {
		s.publish(ctx, edge.NewEntityDeletedEvent(tenantID, edge.NewEntityID(s.mapping.kind, id)))
	}
	return deleted, nil
}

// Count returns the number of records of the tenant
func (s *recordStore[D, M]) Count(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(new(M)).Scopes(tenantScope(tenantID)).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", s.mapping.kind, err)
	}
	return n, nil
}

// Kind returns the entity kind stored
func (s *recordStore[D, M]) Kind() edge.EntityType {
	return s.mapping.kind
}

// publish delivers a notification after the write committed; failures are logged only
func (s *recordStore[D, M]) publish(ctx context.Context, event shared.DomainEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("Failed to publish change notification",
			zap.String("event_type", event.EventType()),
			zap.String("entity_type", string(s.mapping.kind)),
			zap.String("entity_id", event.SubjectID().String()),
			zap.Error(err),
		)
	}
}
