package edge

import (
	"encoding/json"

	"github.com/google/uuid"
)

// EntityView is the authoritative record of an entity view.
// Entity is nil while the view is not bound to any device or asset.
type EntityView struct {
	ID             uuid.UUID       `json:"id"`
	TenantID       uuid.UUID       `json:"tenantId"`
	CustomerID     uuid.UUID       `json:"customerId"`
	CreatedTime    int64           `json:"createdTime"`
	Name           string          `json:"name"`
	Type           string          `json:"type"`
	Entity         *EntityID       `json:"entity,omitempty"`
	AdditionalInfo json.RawMessage `json:"additionalInfo,omitempty"`
}

// NewEntityView materializes an entity view first seen in a change message
func NewEntityView(tenantID, id uuid.UUID) *EntityView {
	return &EntityView{
		ID:          id,
		TenantID:    tenantID,
		CustomerID:  NullUUID,
		CreatedTime: CreatedTimeFromUUID(id),
	}
}

// EntityID returns the entity view reference
func (v *EntityView) EntityID() EntityID {
	return NewEntityID(EntityTypeEntityView, v.ID)
}

// Apply merges the fields present in msg. A linked entity of a kind that cannot
// back a view clears the link.
func (v *EntityView) Apply(msg *EntityViewUpdateMsg) {
	msg.Name.ApplyTo(&v.Name)
	msg.Type.ApplyTo(&v.Type)
	if linked, ok := msg.Entity.Get(); ok {
		v.Entity = ResolveViewTarget(linked)
	}
	msg.AdditionalInfo.ApplyTo(&v.AdditionalInfo)
}

// ResolveViewTarget validates the relation carried by a view message.
// Only devices and assets can back a view; anything else resolves to nil.
func ResolveViewTarget(linked LinkedEntity) *EntityID {
	switch EntityType(linked.EntityType) {
	case EntityTypeDevice, EntityTypeAsset:
		ref := NewEntityID(EntityType(linked.EntityType), linked.ID)
		return &ref
	default:
		return nil
	}
}
