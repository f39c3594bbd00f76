package shared

import (
	"time"

	"github.com/google/uuid"
)

// DomainEvent is a fact about one synchronized entity of a tenant
type DomainEvent interface {
	EventID() uuid.UUID
	EventType() string
	OccurredAt() time.Time
	TenantID() uuid.UUID
	// SubjectType and SubjectID name the entity the event is about
	SubjectType() string
	SubjectID() uuid.UUID
}

// EventHeader carries the fields every event shares. Embed it to satisfy DomainEvent.
type EventHeader struct {
	ID          uuid.UUID `json:"eventId"`
	Type        string    `json:"eventType"`
	At          time.Time `json:"occurredAt"`
	Tenant      uuid.UUID `json:"tenantId"`
	SubjectKind string    `json:"subjectType"`
	Subject     uuid.UUID `json:"subjectId"`
}

// NewEventHeader stamps a fresh event id and the current time
func NewEventHeader(eventType string, tenantID uuid.UUID, subjectType string, subjectID uuid.UUID) EventHeader {
	return EventHeader{
		ID:          uuid.New(),
		Type:        eventType,
		At:          time.Now().UTC(),
		Tenant:      tenantID,
		SubjectKind: subjectType,
		Subject:     subjectID,
	}
}

func (h *EventHeader) EventID() uuid.UUID    { return h.ID }
func (h *EventHeader) EventType() string     { return h.Type }
func (h *EventHeader) OccurredAt() time.Time { return h.At }
func (h *EventHeader) TenantID() uuid.UUID   { return h.Tenant }
func (h *EventHeader) SubjectType() string   { return h.SubjectKind }
func (h *EventHeader) SubjectID() uuid.UUID  { return h.Subject }
