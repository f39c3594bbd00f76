package edge

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Authority is the role of a user
type Authority string

const (
	AuthoritySysAdmin     Authority = "SYS_ADMIN"
	AuthorityTenantAdmin  Authority = "TENANT_ADMIN"
	AuthorityCustomerUser Authority = "CUSTOMER_USER"
)

// Validate checks that the authority is known
func (a Authority) Validate() error {
	switch a {
	case AuthoritySysAdmin, AuthorityTenantAdmin, AuthorityCustomerUser:
		return nil
	}
	return fmt.Errorf("unknown authority: %q", string(a))
}

// User is the authoritative record of a user
type User struct {
	ID             uuid.UUID       `json:"id"`
	TenantID       uuid.UUID       `json:"tenantId"`
	CustomerID     uuid.UUID       `json:"customerId"`
	CreatedTime    int64           `json:"createdTime"`
	Email          string          `json:"email"`
	Authority      Authority       `json:"authority"`
	FirstName      string          `json:"firstName"`
	LastName       string          `json:"lastName"`
	AdditionalInfo json.RawMessage `json:"additionalInfo,omitempty"`
}

// NewUser materializes a user first seen in a change message
func NewUser(tenantID, id uuid.UUID) *User {
	return &User{
		ID:          id,
		TenantID:    tenantID,
		CustomerID:  NullUUID,
		CreatedTime: CreatedTimeFromUUID(id),
	}
}

// EntityID returns the user reference
func (u *User) EntityID() EntityID {
	return NewEntityID(EntityTypeUser, u.ID)
}

// Apply merges the fields present in msg
func (u *User) Apply(msg *UserUpdateMsg) {
	msg.CustomerID.ApplyTo(&u.CustomerID)
	msg.Email.ApplyTo(&u.Email)
	msg.Authority.ApplyTo(&u.Authority)
	msg.FirstName.ApplyTo(&u.FirstName)
	msg.LastName.ApplyTo(&u.LastName)
	msg.AdditionalInfo.ApplyTo(&u.AdditionalInfo)
}

// UserCredentials holds the login state of a user
type UserCredentials struct {
	ID            uuid.UUID `json:"id"`
	UserID        uuid.UUID `json:"userId"`
	Enabled       bool      `json:"enabled"`
	Password      string    `json:"password,omitempty"`
	ActivateToken string    `json:"activateToken,omitempty"`
	ResetToken    string    `json:"resetToken,omitempty"`
}

// NewPendingCredentials creates disabled credentials awaiting activation
func NewPendingCredentials(userID uuid.UUID, activateToken string) *UserCredentials {
	return &UserCredentials{
		ID:            NewTimeUUID(),
		UserID:        userID,
		Enabled:       false,
		ActivateToken: activateToken,
	}
}

// Apply takes over credentials activated on the other side of the link
func (c *UserCredentials) Apply(msg *UserCredentialsUpdateMsg) {
	c.Enabled = msg.Enabled
	c.Password = msg.Password
	c.ActivateToken = ""
	c.ResetToken = ""
}
