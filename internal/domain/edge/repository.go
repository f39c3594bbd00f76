package edge

import (
	"context"

	"github.com/google/uuid"
)

// AssetRepository is the authoritative store for assets.
// FindByID returns shared.ErrNotFound when the asset does not exist.
// notify controls whether change notifications fire after the write.
type AssetRepository interface {
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*Asset, error)
	Save(ctx context.Context, asset *Asset, notify bool) (*Asset, error)
	Delete(ctx context.Context, tenantID, id uuid.UUID) error
}

// CustomerRepository is the authoritative store for customers
type CustomerRepository interface {
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*Customer, error)
	Save(ctx context.Context, customer *Customer, notify bool) (*Customer, error)
	Delete(ctx context.Context, tenantID, id uuid.UUID) error
}

// EntityViewRepository is the authoritative store for entity views
type EntityViewRepository interface {
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*EntityView, error)
	Save(ctx context.Context, view *EntityView, notify bool) (*EntityView, error)
	Delete(ctx context.Context, tenantID, id uuid.UUID) error
}

// UserRepository is the authoritative store for users and their credentials.
// Deleting a user removes its credentials.
type UserRepository interface {
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*User, error)
	Save(ctx context.Context, user *User, notify bool) (*User, error)
	Delete(ctx context.Context, tenantID, id uuid.UUID) error

	FindCredentialsByUserID(ctx context.Context, tenantID, userID uuid.UUID) (*UserCredentials, error)
	SaveCredentials(ctx context.Context, tenantID uuid.UUID, creds *UserCredentials) (*UserCredentials, error)
	// SaveWithCredentials stores a user and its credentials atomically
	SaveWithCredentials(ctx context.Context, user *User, creds *UserCredentials, notify bool) (*User, error)
}

// EntityLookup answers whether an entity of any synchronized kind exists locally
type EntityLookup interface {
	Exists(ctx context.Context, tenantID uuid.UUID, ref EntityID) (bool, error)
}
