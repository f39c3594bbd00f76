package edgesync

import (
	"context"
	"errors"

	"github.com/edgesync/backend/internal/domain/edge"
	"github.com/edgesync/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// FindFunc looks up one entity and returns shared.ErrNotFound when it is absent
type FindFunc func(ctx context.Context, tenantID, id uuid.UUID) error

// RepositoryLookup answers existence checks through the per-kind repositories.
// Kinds without a registered finder are never known locally.
type RepositoryLookup struct {
	finders map[edge.EntityType]FindFunc
}

// NewRepositoryLookup creates a lookup over the synchronized repositories
func NewRepositoryLookup(assets edge.AssetRepository, customers edge.CustomerRepository, views edge.EntityViewRepository, users edge.UserRepository) *RepositoryLookup {
	l := &RepositoryLookup{finders: make(map[edge.EntityType]FindFunc)}
	if assets != nil {
		l.Register(edge.EntityTypeAsset, func(ctx context.Context, tenantID, id uuid.UUID) error {
			_, err := assets.FindByID(ctx, tenantID, id)
			return err
		})
	}
	if customers != nil {
		l.Register(edge.EntityTypeCustomer, func(ctx context.Context, tenantID, id uuid.UUID) error {
			_, err := customers.FindByID(ctx, tenantID, id)
			return err
		})
	}
	if views != nil {
		l.Register(edge.EntityTypeEntityView, func(ctx context.Context, tenantID, id uuid.UUID) error {
			_, err := views.FindByID(ctx, tenantID, id)
			return err
		})
	}
	if users != nil {
		l.Register(edge.EntityTypeUser, func(ctx context.Context, tenantID, id uuid.UUID) error {
			_, err := users.FindByID(ctx, tenantID, id)
			return err
		})
	}
	return l
}

// Register sets the finder for kind
func (l *RepositoryLookup) Register(kind edge.EntityType, find FindFunc) {
	l.finders[kind] = find
}

// Exists reports whether ref is stored locally
func (l *RepositoryLookup) Exists(ctx context.Context, tenantID uuid.UUID, ref edge.EntityID) (bool, error) {
	find, ok := l.finders[ref.Type]
	if !ok {
		return false, nil
	}
	err := find(ctx, tenantID, ref.ID)
	if errors.Is(err, shared.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

var _ edge.EntityLookup = (*RepositoryLookup)(nil)
