// Package outbox exposes the uplink outbox for operators: backlog statistics and
// the dead letters that ran out of delivery attempts.
package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/edgesync/backend/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service handles uplink outbox management operations
type Service struct {
	repo   shared.OutboxRepository
	logger *zap.Logger
}

// NewService creates a new outbox service
func NewService(repo shared.OutboxRepository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, logger: logger}
}

// EntryDTO is an uplink outbox entry as shown to operators
type EntryDTO struct {
	ID          uuid.UUID  `json:"id"`
	TenantID    uuid.UUID  `json:"tenant_id"`
	UplinkMsgID int32      `json:"uplink_msg_id"`
	RequestType string     `json:"request_type"`
	EntityType  string     `json:"entity_type"`
	EntityID    uuid.UUID  `json:"entity_id"`
	Status      string     `json:"status"`
	RetryCount  int        `json:"retry_count"`
	MaxRetries  int        `json:"max_retries"`
	LastError   string     `json:"last_error,omitempty"`
	NextRetryAt *time.Time `json:"next_retry_at,omitempty"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Filter pages through dead letters
type Filter struct {
	Page     int `form:"page,omitempty" binding:"omitempty,min=1"`
	PageSize int `form:"page_size,omitempty" binding:"omitempty,min=1,max=100"`
}

// ListResult is one page of entries
type ListResult struct {
	Entries    []EntryDTO `json:"entries"`
	Total      int64      `json:"total"`
	Page       int        `json:"page"`
	PageSize   int        `json:"page_size"`
	TotalPages int        `json:"total_pages"`
}

// StatsDTO is the outbox backlog per status
type StatsDTO struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Sent       int64 `json:"sent"`
	Failed     int64 `json:"failed"`
	Dead       int64 `json:"dead"`
	Total      int64 `json:"total"`
}

// Errors returned to the HTTP layer
var (
	ErrEntryNotFound = shared.NewDomainError("ENTRY_NOT_FOUND", "Outbox entry not found")
	ErrInvalidStatus = shared.NewDomainError("INVALID_STATUS", "Only dead letter entries can be retried")
	ErrInternal      = shared.NewDomainError("INTERNAL_ERROR", "Outbox storage failure")
)

// GetDeadLetterEntries lists dead letters, most recently failed first
func (s *Service) GetDeadLetterEntries(ctx context.Context, filter Filter) (*ListResult, error) {
	page := max(filter.Page, 1)
	pageSize := filter.PageSize
	if pageSize < 1 {
		pageSize = 20
	}
	pageSize = min(pageSize, 100)

	entries, total, err := s.repo.FindDead(ctx, page, pageSize)
	if err != nil {
		s.logger.Error("Failed to find dead letter entries", zap.Error(err))
		return nil, ErrInternal
	}

	dtos := make([]EntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toEntryDTO(e)
	}
	return &ListResult{
		Entries:    dtos,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: int((total + int64(pageSize) - 1) / int64(pageSize)),
	}, nil
}

// GetEntry returns one entry
func (s *Service) GetEntry(ctx context.Context, id uuid.UUID) (*EntryDTO, error) {
	entry, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := toEntryDTO(entry)
	return &dto, nil
}

// RetryDeadEntry puts a dead letter back in the delivery queue
func (s *Service) RetryDeadEntry(ctx context.Context, id uuid.UUID) (*EntryDTO, error) {
	entry, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := entry.ResetForRetry(); err != nil {
		return nil, ErrInvalidStatus
	}
	if err := s.repo.Update(ctx, entry); err != nil {
		s.logger.Error("Failed to update outbox entry", zap.String("id", id.String()), zap.Error(err))
		return nil, ErrInternal
	}

	s.logger.Info("Dead letter reset for retry",
		zap.String("id", id.String()),
		zap.Int32("uplink_msg_id", entry.UplinkMsgID),
		zap.String("request_type", entry.RequestType),
	)
	dto := toEntryDTO(entry)
	return &dto, nil
}

// RetryAllDeadEntries puts every dead letter back in the delivery queue.
// Reset entries leave the dead set, so the first page is read until it is empty.
func (s *Service) RetryAllDeadEntries(ctx context.Context) (int64, error) {
	const pageSize = 100
	var count int64
	for {
		entries, _, err := s.repo.FindDead(ctx, 1, pageSize)
		if err != nil {
			s.logger.Error("Failed to find dead letter entries", zap.Error(err))
			return count, ErrInternal
		}

		reset := 0
		for _, entry := range entries {
			if err := entry.ResetForRetry(); err != nil {
				continue
			}
			if err := s.repo.Update(ctx, entry); err != nil {
				s.logger.Error("Failed to update outbox entry", zap.String("id", entry.ID.String()), zap.Error(err))
				continue
			}
			reset++
		}
		count += int64(reset)
		if len(entries) < pageSize || reset == 0 {
			break
		}
	}

	s.logger.Info("Retried dead letter entries", zap.Int64("count", count))
	return count, nil
}

// GetStats returns the backlog per status
func (s *Service) GetStats(ctx context.Context) (*StatsDTO, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		s.logger.Error("Failed to get outbox stats", zap.Error(err))
		return nil, ErrInternal
	}

	var total int64
	for _, n := range counts {
		total += n
	}
	return &StatsDTO{
		Pending:    counts[shared.OutboxStatusPending],
		Processing: counts[shared.OutboxStatusProcessing],
		Sent:       counts[shared.OutboxStatusSent],
		Failed:     counts[shared.OutboxStatusFailed],
		Dead:       counts[shared.OutboxStatusDead],
		Total:      total,
	}, nil
}

// CountByStatus reports the backlog keyed by status name for the metrics collector
func (s *Service) CountByStatus(ctx context.Context) (map[string]int64, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(counts))
	for status, n := range counts {
		out[string(status)] = n
	}
	return out, nil
}

func (s *Service) find(ctx context.Context, id uuid.UUID) (*shared.OutboxEntry, error) {
	entry, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		s.logger.Error("Failed to find outbox entry", zap.String("id", id.String()), zap.Error(err))
		return nil, ErrInternal
	}
	return entry, nil
}

func toEntryDTO(e *shared.OutboxEntry) EntryDTO {
	return EntryDTO{
		ID:          e.ID,
		TenantID:    e.TenantID,
		UplinkMsgID: e.UplinkMsgID,
		RequestType: e.RequestType,
		EntityType:  e.EntityType,
		EntityID:    e.EntityID,
		Status:      string(e.Status),
		RetryCount:  e.RetryCount,
		MaxRetries:  e.MaxRetries,
		LastError:   e.LastError,
		NextRetryAt: e.NextRetryAt,
		ProcessedAt: e.ProcessedAt,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}
