package persistence

import (
	"context"

	"github.com/edgesync/backend/internal/domain/edge"
	"github.com/edgesync/backend/internal/infrastructure/cache"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// recordRepository is the authoritative store behind a CachedRepository
type recordRepository[D any] interface {
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*D, error)
	Save(ctx context.Context, record *D, notify bool) (*D, error)
	Delete(ctx context.Context, tenantID, id uuid.UUID) error
	Count(ctx context.Context, tenantID uuid.UUID) (int64, error)
}

// CachedRepository decorates a record store with a version-coherent read-through cache.
// Cache failures never fail a call; the store stays authoritative.
type CachedRepository[D any] struct {
	inner  recordRepository[D]
	kind   edge.EntityType
	key    func(*D) cache.EntityKey
	cache  *cache.VersionedCache[cache.EntityKey, *D]
	counts *cache.VersionedCache[cache.EntityCountKey, int64]
	logger *zap.Logger
}

// CachedRepositoryOption configures a CachedRepository
type CachedRepositoryOption func(*cachedRepositoryOptions)

type cachedRepositoryOptions struct {
	counts *cache.VersionedCache[cache.EntityCountKey, int64]
	logger *zap.Logger
}

// WithCountCache keeps per-tenant record counts in counts
func WithCountCache(counts *cache.VersionedCache[cache.EntityCountKey, int64]) CachedRepositoryOption {
	return func(o *cachedRepositoryOptions) {
		o.counts = counts
	}
}

// WithCachedRepositoryLogger sets the logger
func WithCachedRepositoryLogger(logger *zap.Logger) CachedRepositoryOption {
	return func(o *cachedRepositoryOptions) {
		o.logger = logger
	}
}

func newCachedRepository[D any](inner recordRepository[D], kind edge.EntityType, key func(*D) cache.EntityKey, c *cache.VersionedCache[cache.EntityKey, *D], opts []CachedRepositoryOption) *CachedRepository[D] {
	o := cachedRepositoryOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return &CachedRepository[D]{
		inner:  inner,
		kind:   kind,
		key:    key,
		cache:  c,
		counts: o.counts,
		logger: o.logger.With(zap.String("entity_type", string(kind))),
	}
}

// NewCachedAssetRepository wraps an asset store with the cache built on backend
func NewCachedAssetRepository(inner *GormAssetRepository, backend cache.Backend, cacheOpts []cache.VersionedCacheOption, opts ...CachedRepositoryOption) *CachedRepository[edge.Asset] {
	return newCachedRepository(inner, edge.EntityTypeAsset,
		func(a *edge.Asset) cache.EntityKey { return cache.EntityKey{TenantID: a.TenantID, ID: a.ID} },
		cache.NewEntityCache[edge.Asset](edge.EntityTypeAsset, backend, cacheOpts...), opts)
}

// NewCachedCustomerRepository wraps a customer store with the cache built on backend
func NewCachedCustomerRepository(inner *GormCustomerRepository, backend cache.Backend, cacheOpts []cache.VersionedCacheOption, opts ...CachedRepositoryOption) *CachedRepository[edge.Customer] {
	return newCachedRepository(inner, edge.EntityTypeCustomer,
		func(c *edge.Customer) cache.EntityKey { return cache.EntityKey{TenantID: c.TenantID, ID: c.ID} },
		cache.NewEntityCache[edge.Customer](edge.EntityTypeCustomer, backend, cacheOpts...), opts)
}

// NewCachedEntityViewRepository wraps an entity view store with the cache built on backend
func NewCachedEntityViewRepository(inner *GormEntityViewRepository, backend cache.Backend, cacheOpts []cache.VersionedCacheOption, opts ...CachedRepositoryOption) *CachedRepository[edge.EntityView] {
	return newCachedRepository(inner, edge.EntityTypeEntityView,
		func(v *edge.EntityView) cache.EntityKey { return cache.EntityKey{TenantID: v.TenantID, ID: v.ID} },
		cache.NewEntityCache[edge.EntityView](edge.EntityTypeEntityView, backend, cacheOpts...), opts)
}

// FindByID serves hits from the cache and refreshes it after a store read.
// Not-found results are not cached.
func (r *CachedRepository[D]) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*D, error) {
	key := cache.EntityKey{TenantID: tenantID, ID: id}
	lookup := r.cache.Get(ctx, key)
	if lookup.Found() {
		return lookup.Value, nil
	}

	record, err := r.inner.FindByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	// a failed backend read has no trustworthy version to compare against
	if lookup.Err == nil || lookup.State == cache.Corrupt {
		if _, _, err := r.cache.PutIfVersion(ctx, key, record, lookup.Version); err != nil {
			r.logger.Warn("Failed to refresh cache after read", zap.String("id", id.String()), zap.Error(err))
		}
	}
	return record, nil
}

// Save writes through to the store, then refreshes the cache if nobody else
// touched the key meanwhile and evicts it otherwise
func (r *CachedRepository[D]) Save(ctx context.Context, record *D, notify bool) (*D, error) {
	return r.writeThrough(ctx, record, func() (*D, error) {
		return r.inner.Save(ctx, record, notify)
	})
}

func (r *CachedRepository[D]) writeThrough(ctx context.Context, record *D, write func() (*D, error)) (*D, error) {
	key := r.key(record)
	before := r.cache.Get(ctx, key)

	saved, err := write()
	if err != nil {
		return nil, err
	}

	if before.Err != nil && before.State != cache.Corrupt {
		r.evict(ctx, key)
	} else {
		accepted, _, err := r.cache.PutIfVersion(ctx, key, saved, before.Version)
		if err != nil || !accepted {
			r.evict(ctx, key)
		}
	}

	if !before.Found() {
		// the record may be new; counts are recomputed lazily
		r.evictCount(ctx, key.TenantID)
	}
	return saved, nil
}

// Delete removes the record from the store and evicts it
func (r *CachedRepository[D]) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	if err := r.inner.Delete(ctx, tenantID, id); err != nil {
		return err
	}
	r.evict(ctx, cache.EntityKey{TenantID: tenantID, ID: id})
	r.evictCount(ctx, tenantID)
	return nil
}

// Count returns the number of records of the tenant, served from the count cache when present
func (r *CachedRepository[D]) Count(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	if r.counts == nil {
		return r.inner.Count(ctx, tenantID)
	}

	key := cache.EntityCountKey{TenantID: tenantID, Kind: r.kind}
	lookup := r.counts.Get(ctx, key)
	if lookup.Found() {
		return lookup.Value, nil
	}

	n, err := r.inner.Count(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	if lookup.Err == nil || lookup.State == cache.Corrupt {
		if _, _, err := r.counts.PutIfVersion(ctx, key, n, lookup.Version); err != nil {
			r.logger.Warn("Failed to refresh count cache", zap.Error(err))
		}
	}
	return n, nil
}

func (r *CachedRepository[D]) evict(ctx context.Context, key cache.EntityKey) {
	if _, err := r.cache.Evict(ctx, key); err != nil {
		r.logger.Warn("Failed to evict cache entry", zap.String("id", key.ID.String()), zap.Error(err))
	}
}

func (r *CachedRepository[D]) evictCount(ctx context.Context, tenantID uuid.UUID) {
	if r.counts == nil {
		return
	}
	if _, err := r.counts.Evict(ctx, cache.EntityCountKey{TenantID: tenantID, Kind: r.kind}); err != nil {
		r.logger.Warn("Failed to evict count cache entry", zap.Error(err))
	}
}

// CachedUserRepository adds the credentials operations to a cached user store.
// Credentials are not cached.
type CachedUserRepository struct {
	*CachedRepository[edge.User]
	users *GormUserRepository
}

// NewCachedUserRepository wraps a user store with the cache built on backend
func NewCachedUserRepository(inner *GormUserRepository, backend cache.Backend, cacheOpts []cache.VersionedCacheOption, opts ...CachedRepositoryOption) *CachedUserRepository {
	return &CachedUserRepository{
		CachedRepository: newCachedRepository(inner, edge.EntityTypeUser,
			func(u *edge.User) cache.EntityKey { return cache.EntityKey{TenantID: u.TenantID, ID: u.ID} },
			cache.NewEntityCache[edge.User](edge.EntityTypeUser, backend, cacheOpts...), opts),
		users: inner,
	}
}

// FindCredentialsByUserID implements edge.UserRepository
func (r *CachedUserRepository) FindCredentialsByUserID(ctx context.Context, tenantID, userID uuid.UUID) (*edge.UserCredentials, error) {
	return r.users.FindCredentialsByUserID(ctx, tenantID, userID)
}

// SaveWithCredentials writes through like Save
func (r *CachedUserRepository) SaveWithCredentials(ctx context.Context, user *edge.User, creds *edge.UserCredentials, notify bool) (*edge.User, error) {
	return r.writeThrough(ctx, user, func() (*edge.User, error) {
		return r.users.SaveWithCredentials(ctx, user, creds, notify)
	})
}

// SaveCredentials implements edge.UserRepository
func (r *CachedUserRepository) SaveCredentials(ctx context.Context, tenantID uuid.UUID, creds *edge.UserCredentials) (*edge.UserCredentials, error) {
	return r.users.SaveCredentials(ctx, tenantID, creds)
}

var (
	_ edge.AssetRepository      = (*CachedRepository[edge.Asset])(nil)
	_ edge.CustomerRepository   = (*CachedRepository[edge.Customer])(nil)
	_ edge.EntityViewRepository = (*CachedRepository[edge.EntityView])(nil)
	_ edge.UserRepository       = (*CachedUserRepository)(nil)
)
