package edge

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Asset is the authoritative record of an asset
type Asset struct {
	ID             uuid.UUID       `json:"id"`
	TenantID       uuid.UUID       `json:"tenantId"`
	CustomerID     uuid.UUID       `json:"customerId"`
	CreatedTime    int64           `json:"createdTime"`
	Name           string          `json:"name"`
	Type           string          `json:"type"`
	Label          string          `json:"label"`
	AdditionalInfo json.RawMessage `json:"additionalInfo,omitempty"`
}

// NewAsset materializes an asset first seen in a change message.
// The created time is taken from the identifier.
func NewAsset(tenantID, id uuid.UUID) *Asset {
	return &Asset{
		ID:          id,
		TenantID:    tenantID,
		CustomerID:  NullUUID,
		CreatedTime: CreatedTimeFromUUID(id),
	}
}

// EntityID returns the asset reference
func (a *Asset) EntityID() EntityID {
	return NewEntityID(EntityTypeAsset, a.ID)
}

// Apply merges the fields present in msg
func (a *Asset) Apply(msg *AssetUpdateMsg) {
	msg.CustomerID.ApplyTo(&a.CustomerID)
	msg.Name.ApplyTo(&a.Name)
	msg.Type.ApplyTo(&a.Type)
	msg.Label.ApplyTo(&a.Label)
	msg.AdditionalInfo.ApplyTo(&a.AdditionalInfo)
}
