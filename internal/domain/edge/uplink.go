package edge

import (
	"fmt"

	"github.com/google/uuid"
)

// RequestType is the kind of additional data asked for from the edge
type RequestType string

const (
	RequestAttributes  RequestType = "ATTRIBUTES"
	RequestRelations   RequestType = "RELATIONS"
	RequestEntityViews RequestType = "ENTITY_VIEWS"
	RequestEntity      RequestType = "ENTITY"
	RequestCredentials RequestType = "CREDENTIALS"
	RequestAllOfKind   RequestType = "ALL_OF_KIND"
)

// RequestDescriptor names the data a follow-up request asks for.
// Entity.ID is ignored for ALL_OF_KIND requests.
type RequestDescriptor struct {
	Type         RequestType `json:"type"`
	Entity       EntityID    `json:"entity"`
	QueueStartTs int64       `json:"queueStartTs,omitempty"`
}

// NewEntityRequest builds a request about a single entity
func NewEntityRequest(t RequestType, ref EntityID, queueStartTs int64) RequestDescriptor {
	return RequestDescriptor{Type: t, Entity: ref, QueueStartTs: queueStartTs}
}

// NewAllOfKindRequest builds a request for every entity of a kind
func NewAllOfKindRequest(kind EntityType, queueStartTs int64) RequestDescriptor {
	return RequestDescriptor{
		Type:         RequestAllOfKind,
		Entity:       NewEntityID(kind, uuid.Nil),
		QueueStartTs: queueStartTs,
	}
}

// Validate checks that the descriptor can be turned into an uplink message
func (d RequestDescriptor) Validate() error {
	switch d.Type {
	case RequestAttributes, RequestRelations, RequestEntityViews, RequestEntity, RequestCredentials:
		if d.Entity.IsNull() {
			return fmt.Errorf("%s request requires an entity id", d.Type)
		}
	case RequestAllOfKind:
	default:
		return fmt.Errorf("unknown request type: %q", string(d.Type))
	}
	if !d.Entity.Type.IsValid() {
		return fmt.Errorf("unknown entity type: %q", string(d.Entity.Type))
	}
	return nil
}

// UplinkMsg is an outbound message ready for the transport to enqueue
type UplinkMsg struct {
	UplinkMsgID int32             `json:"uplinkMsgId"`
	TenantID    uuid.UUID         `json:"tenantId"`
	Request     RequestDescriptor `json:"request"`
}
