package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/edgesync/backend/internal/domain/edge"
	"github.com/edgesync/backend/internal/domain/shared"
	"github.com/edgesync/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormAssetRepository implements edge.AssetRepository using GORM
type GormAssetRepository struct {
	*recordStore[edge.Asset, models.AssetModel]
}

// NewGormAssetRepository creates a new GormAssetRepository
func NewGormAssetRepository(db *gorm.DB, opts ...RepositoryOption) *GormAssetRepository {
	return &GormAssetRepository{newRecordStore(db, recordMapping[edge.Asset, models.AssetModel]{
		kind:       edge.EntityTypeAsset,
		toDomain:   (*models.AssetModel).ToDomain,
		fromDomain: models.AssetModelFromDomain,
		key:        func(a *edge.Asset) (uuid.UUID, uuid.UUID) { return a.TenantID, a.ID },
	}, opts)}
}

// GormCustomerRepository implements edge.CustomerRepository using GORM
type GormCustomerRepository struct {
	*recordStore[edge.Customer, models.CustomerModel]
}

// NewGormCustomerRepository creates a new GormCustomerRepository
func NewGormCustomerRepository(db *gorm.DB, opts ...RepositoryOption) *GormCustomerRepository {
	return &GormCustomerRepository{newRecordStore(db, recordMapping[edge.Customer, models.CustomerModel]{
		kind:       edge.EntityTypeCustomer,
		toDomain:   (*models.CustomerModel).ToDomain,
		fromDomain: models.CustomerModelFromDomain,
		key:        func(c *edge.Customer) (uuid.UUID, uuid.UUID) { return c.TenantID, c.ID },
	}, opts)}
}

// GormEntityViewRepository implements edge.EntityViewRepository using GORM
type GormEntityViewRepository struct {
	*recordStore[edge.EntityView, models.EntityViewModel]
}

// NewGormEntityViewRepository creates a new GormEntityViewRepository
func NewGormEntityViewRepository(db *gorm.DB, opts ...RepositoryOption) *GormEntityViewRepository {
	return &GormEntityViewRepository{newRecordStore(db, recordMapping[edge.EntityView, models.EntityViewModel]{
		kind:       edge.EntityTypeEntityView,
		toDomain:   (*models.EntityViewModel).ToDomain,
		fromDomain: models.EntityViewModelFromDomain,
		key:        func(v *edge.EntityView) (uuid.UUID, uuid.UUID) { return v.TenantID, v.ID },
	}, opts)}
}

// GormUserRepository implements edge.UserRepository using GORM
type GormUserRepository struct {
	*recordStore[edge.User, models.UserModel]
}

// NewGormUserRepository creates a new GormUserRepository
func NewGormUserRepository(db *gorm.DB, opts ...RepositoryOption) *GormUserRepository {
	return &GormUserRepository{newRecordStore(db, recordMapping[edge.User, models.UserModel]{
		kind:       edge.EntityTypeUser,
		toDomain:   (*models.UserModel).ToDomain,
		fromDomain: models.UserModelFromDomain,
		key:        func(u *edge.User) (uuid.UUID, uuid.UUID) { return u.TenantID, u.ID },
	}, opts)}
}

// Delete removes the user together with its credentials
func (r *GormUserRepository) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	_, err := r.DeleteWithNotify(ctx, tenantID, id, false)
	return err
}

// DeleteWithNotify removes the user together with its credentials
func (r *GormUserRepository) DeleteWithNotify(ctx context.Context, tenantID, id uuid.UUID, notify bool) (bool, error) {
	var deleted bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Scopes(tenantScope(tenantID)).Where("user_id = ?", id).
			Delete(&models.UserCredentialsModel{}).Error; err != nil {
			return err
		}
		result := tx.Scopes(tenantScope(tenantID)).Where("id = ?", id).Delete(&models.UserModel{})
		deleted = result.RowsAffected > 0
		return result.Error
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete USER %s: %w", id, err)
	}
	if deleted && notify {
		r.publish(ctx, edge.NewEntityDeletedEvent(tenantID, edge.NewEntityID(edge.EntityTypeUser, id)))
	}
	return deleted, nil
}

// FindCredentialsByUserID returns shared.ErrNotFound when the user has no credentials
func (r *GormUserRepository) FindCredentialsByUserID(ctx context.Context, tenantID, userID uuid.UUID) (*edge.UserCredentials, error) {
	var model models.UserCredentialsModel
	if err := r.db.WithContext(ctx).
		Scopes(tenantScope(tenantID)).
		Where("user_id = ?", userID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find credentials of user %s: %w", userID, err)
	}
	return model.ToDomain(), nil
}

// SaveCredentials creates or replaces the credentials of a user.
// A user has at most one credentials record.
func (r *GormUserRepository) SaveCredentials(ctx context.Context, tenantID uuid.UUID, creds *edge.UserCredentials) (*edge.UserCredentials, error) {
	if err := saveCredentials(r.db.WithContext(ctx), tenantID, creds); err != nil {
		return nil, err
	}
	return r.FindCredentialsByUserID(ctx, tenantID, creds.UserID)
}

// SaveWithCredentials writes the user and its credentials in one transaction.
// Neither is stored when either write fails.
func (r *GormUserRepository) SaveWithCredentials(ctx context.Context, user *edge.User, creds *edge.UserCredentials, notify bool) (*edge.User, error) {
	var (
		saved   *edge.User
		created bool
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if saved, created, err = r.save(tx, user); err != nil {
			return err
		}
		return saveCredentials(tx, saved.TenantID, creds)
	})
	if err != nil {
		return nil, err
	}
	if notify {
		r.publish(ctx, edge.NewEntitySavedEvent(saved.TenantID, saved.EntityID(), created))
	}
	return saved, nil
}

func saveCredentials(tx *gorm.DB, tenantID uuid.UUID, creds *edge.UserCredentials) error {
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		UpdateAll: true,
	}).Create(models.UserCredentialsModelFromDomain(tenantID, creds)).Error
	if err != nil {
		return fmt.Errorf("failed to save credentials of user %s: %w", creds.UserID, err)
	}
	return nil
}

var (
	_ edge.AssetRepository      = (*GormAssetRepository)(nil)
	_ edge.CustomerRepository   = (*GormCustomerRepository)(nil)
	_ edge.EntityViewRepository = (*GormEntityViewRepository)(nil)
	_ edge.UserRepository       = (*GormUserRepository)(nil)
)
