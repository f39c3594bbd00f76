package edge

import (
	"github.com/edgesync/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// Event types
const (
	EventTypeEntitySaved              = "EntitySaved"
	EventTypeEntityDeleted            = "EntityDeleted"
	EventTypeUserCredentialsRequested = "UserCredentialsRequested"
)

// EntitySavedEvent fires after a record is written with notifications enabled
type EntitySavedEvent struct {
	shared.EventHeader
	Entity  EntityID `json:"entity"`
	Created bool     `json:"created"`
}

// NewEntitySavedEvent creates an EntitySavedEvent
func NewEntitySavedEvent(tenantID uuid.UUID, ref EntityID, created bool) *EntitySavedEvent {
	return &EntitySavedEvent{
		EventHeader: shared.NewEventHeader(EventTypeEntitySaved, tenantID, string(ref.Type), ref.ID),
		Entity:      ref,
		Created:     created,
	}
}

// EntityDeletedEvent fires after a record is deleted with notifications enabled
type EntityDeletedEvent struct {
	shared.EventHeader
	Entity EntityID `json:"entity"`
}

// NewEntityDeletedEvent creates an EntityDeletedEvent
func NewEntityDeletedEvent(tenantID uuid.UUID, ref EntityID) *EntityDeletedEvent {
	return &EntityDeletedEvent{
		EventHeader: shared.NewEventHeader(EventTypeEntityDeleted, tenantID, string(ref.Type), ref.ID),
		Entity:      ref,
	}
}

// UserCredentialsRequestedEvent asks for the credentials of a user created from an edge message
type UserCredentialsRequestedEvent struct {
	shared.EventHeader
	UserID       uuid.UUID `json:"userId"`
	QueueStartTs int64     `json:"queueStartTs"`
}

// NewUserCredentialsRequestedEvent creates a UserCredentialsRequestedEvent
func NewUserCredentialsRequestedEvent(tenantID, userID uuid.UUID, queueStartTs int64) *UserCredentialsRequestedEvent {
	return &UserCredentialsRequestedEvent{
		EventHeader:  shared.NewEventHeader(EventTypeUserCredentialsRequested, tenantID, string(EntityTypeUser), userID),
		UserID:       userID,
		QueueStartTs: queueStartTs,
	}
}
