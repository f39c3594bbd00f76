package shared

import (
	"context"
	"time"
)

// DefaultIdempotencyTTL bounds how long a handled key is remembered
const DefaultIdempotencyTTL = 24 * time.Hour

// IdempotencyStore remembers keys of downlinks and events that were already
// handled, so redelivery becomes a no-op until the key expires.
type IdempotencyStore interface {
	// MarkProcessed records key and reports false when it was already present
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)
	IsProcessed(ctx context.Context, key string) (bool, error)
	Close() error
}

// IdempotencyConfig switches deduplication on and sets the key lifetime
type IdempotencyConfig struct {
	Enabled bool
	TTL     time.Duration
}

// DefaultIdempotencyConfig enables deduplication with DefaultIdempotencyTTL
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{Enabled: true, TTL: DefaultIdempotencyTTL}
}
