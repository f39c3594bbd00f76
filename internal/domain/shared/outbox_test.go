package shared

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOutboxEntry(t *testing.T) {
	tenantID := uuid.New()
	entityID := uuid.New()

	entry := NewOutboxEntry(tenantID, 42, "ATTRIBUTES", "ASSET", entityID, []byte(`{}`))

	assert.NotEqual(t, uuid.Nil, entry.ID)
	assert.Equal(t, tenantID, entry.TenantID)
	assert.Equal(t, int32(42), entry.UplinkMsgID)
	assert.Equal(t, "ATTRIBUTES", entry.RequestType)
	assert.Equal(t, "ASSET", entry.EntityType)
	assert.Equal(t, entityID, entry.EntityID)
	assert.Equal(t, OutboxStatusPending, entry.Status)
	assert.Equal(t, DefaultMaxRetries, entry.MaxRetries)
}

func TestOutboxEntry_MarkProcessing(t *testing.T) {
	t.Run("pending entry can be claimed", func(t *testing.T) {
		entry := &OutboxEntry{Status: OutboxStatusPending}
		require.NoError(t, entry.MarkProcessing())
		assert.Equal(t, OutboxStatusProcessing, entry.Status)
	})

	t.Run("sent entry cannot be claimed", func(t *testing.T) {
		entry := &OutboxEntry{Status: OutboxStatusSent}
		assert.ErrorIs(t, entry.MarkProcessing(), ErrInvalidTransition)
		assert.Equal(t, OutboxStatusSent, entry.Status)
	})
}

func TestOutboxEntry_ResetForRetry(t *testing.T) {
	t.Run("resets dead letter entry for retry", func(t *testing.T) {
		entry := &OutboxEntry{
			ID:         uuid.New(),
			Status:     OutboxStatusDead,
			RetryCount: 5,
			MaxRetries: 5,
			LastError:  "link down",
			CreatedAt:  time.Now().Add(-time.Hour),
			UpdatedAt:  time.Now().Add(-time.Minute),
		}

		err := entry.ResetForRetry()
		assert.NoError(t, err)
		assert.Equal(t, OutboxStatusPending, entry.Status)
		assert.Equal(t, 0, entry.RetryCount)
		assert.Empty(t, entry.LastError)
		assert.Nil(t, entry.NextRetryAt)
	})

	t.Run("fails for non-dead entry", func(t *testing.T) {
		for _, status := range []OutboxStatus{
			OutboxStatusPending,
			OutboxStatusProcessing,
			OutboxStatusSent,
			OutboxStatusFailed,
		} {
			entry := &OutboxEntry{Status: status}
			err := entry.ResetForRetry()
			assert.ErrorIs(t, err, ErrInvalidTransition)
			assert.Equal(t, status, entry.Status)
		}
	})
}

func TestOutboxEntry_MarkFailed_MovesToDeadAfterMaxRetries(t *testing.T) {
	entry := &OutboxEntry{
		ID:         uuid.New(),
		Status:     OutboxStatusProcessing,
		RetryCount: 4,
		MaxRetries: 5,
	}

	entry.MarkFailed("final error")

	assert.Equal(t, OutboxStatusDead, entry.Status)
	assert.Equal(t, 5, entry.RetryCount)
	assert.Equal(t, "final error", entry.LastError)
	assert.True(t, entry.IsDead())
	assert.False(t, entry.CanRetry())
	assert.Nil(t, entry.NextRetryAt)
}

func TestRetryBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 0},
		{1, time.Second},
		{2, 2 * time.Second},
		{5, 16 * time.Second},
		{9, 256 * time.Second},
		{10, MaxBackoff},
		{64, MaxBackoff},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RetryBackoff(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestOutboxEntry_MarkFailed_ExponentialBackoff(t *testing.T) {
	entry := &OutboxEntry{
		ID:         uuid.New(),
		Status:     OutboxStatusProcessing,
		MaxRetries: 5,
	}

	entry.MarkFailed("error 1")
	assert.Equal(t, OutboxStatusFailed, entry.Status)
	assert.True(t, entry.CanRetry())
	require.NotNil(t, entry.NextRetryAt)
	firstBackoff := time.Until(*entry.NextRetryAt)
	assert.True(t, firstBackoff > 0 && firstBackoff <= 2*time.Second)

	entry.Status = OutboxStatusProcessing
	entry.MarkFailed("error 2")
	secondBackoff := time.Until(*entry.NextRetryAt)
	assert.True(t, secondBackoff > time.Second && secondBackoff <= 3*time.Second)
}

func TestOutboxEntry_MarkSent(t *testing.T) {
	entry := &OutboxEntry{Status: OutboxStatusProcessing}
	entry.MarkSent()

	assert.Equal(t, OutboxStatusSent, entry.Status)
	assert.NotNil(t, entry.ProcessedAt)
}
