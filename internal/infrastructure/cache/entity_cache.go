package cache

import (
	"github.com/edgesync/backend/internal/domain/edge"
	"github.com/google/uuid"
)

// EntityKey identifies one cached record of a tenant
type EntityKey struct {
	TenantID uuid.UUID
	ID       uuid.UUID
}

// EntityCountKey identifies the record count of one kind within a tenant
type EntityCountKey struct {
	TenantID uuid.UUID
	Kind     edge.EntityType
}

// NewEntityCache creates a JSON-encoded record cache for one entity kind
func NewEntityCache[V any](kind edge.EntityType, backend Backend, opts ...VersionedCacheOption) *VersionedCache[EntityKey, *V] {
	prefix := "entity:" + string(kind) + ":"
	return NewVersionedCache(
		"entity_"+string(kind),
		backend,
		JSONSerializer[*V]{},
		func(k EntityKey) string {
			return prefix + k.TenantID.String() + ":" + k.ID.String()
		},
		opts...,
	)
}

// NewEntityCountCache creates the per-tenant, per-kind record count cache
func NewEntityCountCache(backend Backend, opts ...VersionedCacheOption) *VersionedCache[EntityCountKey, int64] {
	return NewVersionedCache(
		"entity_count",
		backend,
		Int64ProtoSerializer{},
		func(k EntityCountKey) string {
			return "count:" + k.TenantID.String() + ":" + string(k.Kind)
		},
		opts...,
	)
}
