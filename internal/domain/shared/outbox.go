package shared

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

// OutboxStatus is the delivery state of a queued uplink message
type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "PENDING"
	OutboxStatusProcessing OutboxStatus = "PROCESSING"
	OutboxStatusSent       OutboxStatus = "SENT"
	OutboxStatusFailed     OutboxStatus = "FAILED"
	OutboxStatusDead       OutboxStatus = "DEAD"
)

const (
	DefaultMaxRetries  = 5
	DefaultBaseBackoff = time.Second
	MaxBackoff         = 5 * time.Minute
)

// outboxTransitions lists the states each state may move to
var outboxTransitions = map[OutboxStatus][]OutboxStatus{
	OutboxStatusPending:    {OutboxStatusProcessing},
	OutboxStatusFailed:     {OutboxStatusProcessing},
	OutboxStatusProcessing: {OutboxStatusSent, OutboxStatusFailed, OutboxStatusDead},
	OutboxStatusDead:       {OutboxStatusPending},
}

// OutboxEntry is one serialized uplink message waiting for the transport.
// Entries of a tenant are delivered independently; ordering is not kept.
type OutboxEntry struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	UplinkMsgID int32
	RequestType string
	EntityType  string
	EntityID    uuid.UUID
	Payload     []byte
	Status      OutboxStatus
	RetryCount  int
	MaxRetries  int
	LastError   string
	NextRetryAt *time.Time
	ProcessedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewOutboxEntry queues payload as a pending uplink message
func NewOutboxEntry(tenantID uuid.UUID, uplinkMsgID int32, requestType, entityType string, entityID uuid.UUID, payload []byte) *OutboxEntry {
	now := time.Now()
	return &OutboxEntry{
		ID:          uuid.New(),
		TenantID:    tenantID,
		UplinkMsgID: uplinkMsgID,
		RequestType: requestType,
		EntityType:  entityType,
		EntityID:    entityID,
		Payload:     payload,
		Status:      OutboxStatusPending,
		MaxRetries:  DefaultMaxRetries,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// RetryBackoff returns the wait before delivery attempt n+1, doubling from
// DefaultBaseBackoff and capped at MaxBackoff.
func RetryBackoff(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	if attempt > 20 {
		return MaxBackoff
	}
	return min(DefaultBaseBackoff<<(attempt-1), MaxBackoff)
}

func (e *OutboxEntry) moveTo(next OutboxStatus) error {
	if !slices.Contains(outboxTransitions[e.Status], next) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, e.Status, next)
	}
	e.Status = next
	e.UpdatedAt = time.Now()
	return nil
}

// CanRetry reports whether a failed entry still has attempts left
func (e *OutboxEntry) CanRetry() bool {
	return e.Status == OutboxStatusFailed && e.RetryCount < e.MaxRetries
}

// IsDead reports whether the entry exhausted its attempts
func (e *OutboxEntry) IsDead() bool {
	return e.Status == OutboxStatusDead
}

// MarkProcessing claims a pending or failed entry for delivery
func (e *OutboxEntry) MarkProcessing() error {
	return e.moveTo(OutboxStatusProcessing)
}

// MarkSent records the hand-over to the transport
func (e *OutboxEntry) MarkSent() {
	e.Status = OutboxStatusSent
	now := time.Now()
	e.ProcessedAt = &now
	e.UpdatedAt = now
}

// MarkFailed counts a failed attempt. The entry is scheduled for another
// attempt, or becomes dead once MaxRetries is reached.
func (e *OutboxEntry) MarkFailed(errMsg string) {
	e.RetryCount++
	e.LastError = errMsg
	e.UpdatedAt = time.Now()
	if e.RetryCount >= e.MaxRetries {
		e.Status = OutboxStatusDead
		e.NextRetryAt = nil
		return
	}
	e.Status = OutboxStatusFailed
	next := e.UpdatedAt.Add(RetryBackoff(e.RetryCount))
	e.NextRetryAt = &next
}

// ResetForRetry puts a dead entry back in the queue with a fresh attempt budget
func (e *OutboxEntry) ResetForRetry() error {
	if err := e.moveTo(OutboxStatusPending); err != nil {
		return err
	}
	e.RetryCount = 0
	e.LastError = ""
	e.NextRetryAt = nil
	return nil
}

// OutboxRepository persists uplink outbox entries
type OutboxRepository interface {
	Save(ctx context.Context, entries ...*OutboxEntry) error
	FindPending(ctx context.Context, limit int) ([]*OutboxEntry, error)
	// FindRetryable returns failed entries whose next attempt is due before the given time
	FindRetryable(ctx context.Context, before time.Time, limit int) ([]*OutboxEntry, error)
	// FindDead pages through dead entries, oldest first
	FindDead(ctx context.Context, page, pageSize int) ([]*OutboxEntry, int64, error)
	// FindByID returns ErrNotFound when the entry does not exist
	FindByID(ctx context.Context, id uuid.UUID) (*OutboxEntry, error)
	// MarkProcessing claims the entries that are still claimable and returns them
	MarkProcessing(ctx context.Context, ids []uuid.UUID) ([]*OutboxEntry, error)
	Update(ctx context.Context, entry *OutboxEntry) error
	// DeleteOlderThan purges sent entries processed before the given time
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
	CountByStatus(ctx context.Context) (map[OutboxStatus]int64, error)
}
