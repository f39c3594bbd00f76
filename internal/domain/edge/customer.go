package edge

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Customer is the authoritative record of a customer
type Customer struct {
	ID             uuid.UUID       `json:"id"`
	TenantID       uuid.UUID       `json:"tenantId"`
	CreatedTime    int64           `json:"createdTime"`
	Title          string          `json:"title"`
	Country        string          `json:"country"`
	State          string          `json:"state"`
	City           string          `json:"city"`
	Address        string          `json:"address"`
	Address2       string          `json:"address2"`
	Zip            string          `json:"zip"`
	Phone          string          `json:"phone"`
	Email          string          `json:"email"`
	AdditionalInfo json.RawMessage `json:"additionalInfo,omitempty"`
}

// NewCustomer materializes a customer first seen in a change message
func NewCustomer(tenantID, id uuid.UUID) *Customer {
	return &Customer{
		ID:          id,
		TenantID:    tenantID,
		CreatedTime: CreatedTimeFromUUID(id),
	}
}

// EntityID returns the customer reference
func (c *Customer) EntityID() EntityID {
	return NewEntityID(EntityTypeCustomer, c.ID)
}

// Apply merges the fields present in msg
func (c *Customer) Apply(msg *CustomerUpdateMsg) {
	msg.Title.ApplyTo(&c.Title)
	msg.Country.ApplyTo(&c.Country)
	msg.State.ApplyTo(&c.State)
	msg.City.ApplyTo(&c.City)
	msg.Address.ApplyTo(&c.Address)
	msg.Address2.ApplyTo(&c.Address2)
	msg.Zip.ApplyTo(&c.Zip)
	msg.Phone.ApplyTo(&c.Phone)
	msg.Email.ApplyTo(&c.Email)
	msg.AdditionalInfo.ApplyTo(&c.AdditionalInfo)
}
