package edge

import (
	"encoding/json"

	"github.com/google/uuid"
)

// UpdateMsgType is the action carried by a change message
type UpdateMsgType string

const (
	EntityCreatedMsg UpdateMsgType = "ENTITY_CREATED_RPC_MESSAGE"
	EntityUpdatedMsg UpdateMsgType = "ENTITY_UPDATED_RPC_MESSAGE"
	EntityDeletedMsg UpdateMsgType = "ENTITY_DELETED_RPC_MESSAGE"
	UnrecognizedMsg  UpdateMsgType = "UNRECOGNIZED"
)

// IsCreateOrUpdate reports whether the message asks to create or merge a record
func (t UpdateMsgType) IsCreateOrUpdate() bool {
	return t == EntityCreatedMsg || t == EntityUpdatedMsg
}

// IsDelete reports whether the message asks to delete a record
func (t UpdateMsgType) IsDelete() bool {
	return t == EntityDeletedMsg
}

// AssetUpdateMsg is a change message for an asset
type AssetUpdateMsg struct {
	MsgType        UpdateMsgType             `json:"msgType"`
	ID             uuid.UUID                 `json:"id"`
	CustomerID     Optional[uuid.UUID]       `json:"customerId"`
	Name           Optional[string]          `json:"name"`
	Type           Optional[string]          `json:"type"`
	Label          Optional[string]          `json:"label"`
	AdditionalInfo Optional[json.RawMessage] `json:"additionalInfo"`
}

// CustomerUpdateMsg is a change message for a customer
type CustomerUpdateMsg struct {
	MsgType        UpdateMsgType             `json:"msgType"`
	ID             uuid.UUID                 `json:"id"`
	Title          Optional[string]          `json:"title"`
	Country        Optional[string]          `json:"country"`
	State          Optional[string]          `json:"state"`
	City           Optional[string]          `json:"city"`
	Address        Optional[string]          `json:"address"`
	Address2       Optional[string]          `json:"address2"`
	Zip            Optional[string]          `json:"zip"`
	Phone          Optional[string]          `json:"phone"`
	Email          Optional[string]          `json:"email"`
	AdditionalInfo Optional[json.RawMessage] `json:"additionalInfo"`
}

// LinkedEntity is the raw relation carried by an entity view message.
// EntityType is kept as a string so that unknown kinds survive decoding.
type LinkedEntity struct {
	EntityType string    `json:"entityType"`
	ID         uuid.UUID `json:"id"`
}

// EntityViewUpdateMsg is a change message for an entity view
type EntityViewUpdateMsg struct {
	MsgType        UpdateMsgType             `json:"msgType"`
	ID             uuid.UUID                 `json:"id"`
	Name           Optional[string]          `json:"name"`
	Type           Optional[string]          `json:"type"`
	Entity         Optional[LinkedEntity]    `json:"entity"`
	AdditionalInfo Optional[json.RawMessage] `json:"additionalInfo"`
}

// UserUpdateMsg is a change message for a user
type UserUpdateMsg struct {
	MsgType        UpdateMsgType             `json:"msgType"`
	ID             uuid.UUID                 `json:"id"`
	CustomerID     Optional[uuid.UUID]       `json:"customerId"`
	Email          Optional[string]          `json:"email"`
	Authority      Optional[Authority]       `json:"authority"`
	FirstName      Optional[string]          `json:"firstName"`
	LastName       Optional[string]          `json:"lastName"`
	AdditionalInfo Optional[json.RawMessage] `json:"additionalInfo"`
}

// UserCredentialsUpdateMsg carries credentials activated on the other side of the link
type UserCredentialsUpdateMsg struct {
	UserID   uuid.UUID `json:"userId"`
	Enabled  bool      `json:"enabled"`
	Password string    `json:"password"`
}

// DownlinkMsg is one delivery from the link: a batch of change messages
type DownlinkMsg struct {
	DownlinkMsgID            int32                      `json:"downlinkMsgId"`
	QueueStartTs             int64                      `json:"queueStartTs"`
	CustomerUpdateMsgs       []CustomerUpdateMsg        `json:"customerUpdateMsg,omitempty"`
	AssetUpdateMsgs          []AssetUpdateMsg           `json:"assetUpdateMsg,omitempty"`
	EntityViewUpdateMsgs     []EntityViewUpdateMsg      `json:"entityViewUpdateMsg,omitempty"`
	UserUpdateMsgs           []UserUpdateMsg            `json:"userUpdateMsg,omitempty"`
	UserCredentialsUpdateMsg []UserCredentialsUpdateMsg `json:"userCredentialsUpdateMsg,omitempty"`
}

// DownlinkResponse acknowledges a DownlinkMsg to the transport
type DownlinkResponse struct {
	DownlinkMsgID int32  `json:"downlinkMsgId"`
	Success       bool   `json:"success"`
	ErrorMsg      string `json:"errorMsg,omitempty"`
}
