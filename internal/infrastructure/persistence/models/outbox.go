package models

import (
	"time"

	"github.com/edgesync/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// OutboxEntryModel is the persistence model for uplink messages stored in the outbox
type OutboxEntryModel struct {
	ID          uuid.UUID           `gorm:"type:uuid;primaryKey"`
	TenantID    uuid.UUID           `gorm:"type:uuid;not null;index:idx_uplink_outbox_tenant_status,priority:1"`
	UplinkMsgID int32               `gorm:"not null"`
	RequestType string              `gorm:"type:varchar(32);not null"`
	EntityType  string              `gorm:"type:varchar(32);not null"`
	EntityID    uuid.UUID           `gorm:"type:uuid;not null"`
	Payload     []byte              `gorm:"not null"`
	Status      shared.OutboxStatus `gorm:"type:varchar(20);default:PENDING;index:idx_uplink_outbox_tenant_status,priority:2;index:idx_uplink_outbox_status_created,priority:1"`
	RetryCount  int                 `gorm:"default:0"`
	MaxRetries  int                 `gorm:"default:5"`
	LastError   string              `gorm:"type:text"`
	NextRetryAt *time.Time          `gorm:"index:idx_uplink_outbox_next_retry"`
	ProcessedAt *time.Time
	CreatedAt   time.Time `gorm:"not null;index:idx_uplink_outbox_status_created,priority:2"`
	UpdatedAt   time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (OutboxEntryModel) TableName() string {
	return "uplink_outbox"
}

// ToDomain converts the persistence model to a domain OutboxEntry
func (m *OutboxEntryModel) ToDomain() *shared.OutboxEntry {
	return &shared.OutboxEntry{
		ID:          m.ID,
		TenantID:    m.TenantID,
		UplinkMsgID: m.UplinkMsgID,
		RequestType: m.RequestType,
		EntityType:  m.EntityType,
		EntityID:    m.EntityID,
		Payload:     m.Payload,
		Status:      m.Status,
		RetryCount:  m.RetryCount,
		MaxRetries:  m.MaxRetries,
		LastError:   m.LastError,
		NextRetryAt: m.NextRetryAt,
		ProcessedAt: m.ProcessedAt,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

// OutboxEntryModelFromDomain creates a new persistence model from a domain OutboxEntry
func OutboxEntryModelFromDomain(e *shared.OutboxEntry) *OutboxEntryModel {
	return &OutboxEntryModel{
		ID:          e.ID,
		TenantID:    e.TenantID,
		UplinkMsgID: e.UplinkMsgID,
		RequestType: e.RequestType,
		EntityType:  e.EntityType,
		EntityID:    e.EntityID,
		Payload:     e.Payload,
		Status:      e.Status,
		RetryCount:  e.RetryCount,
		MaxRetries:  e.MaxRetries,
		LastError:   e.LastError,
		NextRetryAt: e.NextRetryAt,
		ProcessedAt: e.ProcessedAt,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

// AllModels lists every model for schema migration in sqlite mode and tests
func AllModels() []any {
	return []any{
		&AssetModel{},
		&CustomerModel{},
		&EntityViewModel{},
		&UserModel{},
		&UserCredentialsModel{},
		&OutboxEntryModel{},
	}
}
