// Package edge holds the domain model synchronized between edge installations and the cloud.
package edge

import (
	"fmt"

	"github.com/google/uuid"
)

// EntityType is the kind of a synchronized domain object
type EntityType string

const (
	EntityTypeAsset      EntityType = "ASSET"
	EntityTypeCustomer   EntityType = "CUSTOMER"
	EntityTypeDevice     EntityType = "DEVICE"
	EntityTypeEntityView EntityType = "ENTITY_VIEW"
	EntityTypeUser       EntityType = "USER"
	EntityTypeTenant     EntityType = "TENANT"
)

// NullUUID marks an unset reference, e.g. a record not assigned to any customer
var NullUUID = uuid.Nil

// IsValid reports whether t is a known entity type
func (t EntityType) IsValid() bool {
	switch t {
	case EntityTypeAsset, EntityTypeCustomer, EntityTypeDevice,
		EntityTypeEntityView, EntityTypeUser, EntityTypeTenant:
		return true
	}
	return false
}

// ParseEntityType converts a wire name to an EntityType
func ParseEntityType(s string) (EntityType, error) {
	t := EntityType(s)
	if !t.IsValid() {
		return "", fmt.Errorf("unknown entity type: %q", s)
	}
	return t, nil
}

// EntityID references one entity of a given kind
type EntityID struct {
	Type EntityType `json:"entityType"`
	ID   uuid.UUID  `json:"id"`
}

// NewEntityID creates an entity reference
func NewEntityID(t EntityType, id uuid.UUID) EntityID {
	return EntityID{Type: t, ID: id}
}

// String returns "TYPE:uuid"
func (e EntityID) String() string {
	return string(e.Type) + ":" + e.ID.String()
}

// IsNull reports whether the reference points at nothing
func (e EntityID) IsNull() bool {
	return e.ID == NullUUID
}

// CreatedTimeFromUUID returns the creation time in milliseconds since the Unix epoch
// embedded in a time-based UUID (versions 1, 6 and 7). Other versions yield 0.
func CreatedTimeFromUUID(id uuid.UUID) int64 {
	switch id.Version() {
	case 1, 6, 7:
		sec, nsec := id.Time().UnixTime()
		return sec*1000 + nsec/1_000_000
	default:
		return 0
	}
}

// NewTimeUUID generates a time-based identifier whose creation time can be recovered
// with CreatedTimeFromUUID
func NewTimeUUID() uuid.UUID {
	id, err := uuid.NewUUID()
	if err != nil {
		return uuid.Must(uuid.NewV7())
	}
	return id
}
