package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/edgesync/backend/internal/domain/shared"
	"github.com/redis/go-redis/v9"
)

const defaultIdempotencyPrefix = "edgesync:downlink:"

// RedisIdempotencyStore keeps acknowledged downlink keys in Redis, so every
// node behind the cloud link sees the same redelivery state. Keys expire
// through the Redis TTL.
type RedisIdempotencyStore struct {
	rdb    *redis.Client
	prefix string
	owned  bool
}

// NewRedisIdempotencyStore connects to Redis. Close closes the connection.
func NewRedisIdempotencyStore(cfg RedisConfig) (*RedisIdempotencyStore, error) {
	rdb, err := NewRedisClient(cfg)
	if err != nil {
		return nil, err
	}
	s := NewRedisIdempotencyStoreWithClient(rdb, "")
	s.owned = true
	return s, nil
}

// NewRedisIdempotencyStoreWithClient creates a store on a shared client. An
// empty prefix means "edgesync:downlink:".
func NewRedisIdempotencyStoreWithClient(rdb *redis.Client, prefix string) *RedisIdempotencyStore {
	if prefix == "" {
		prefix = defaultIdempotencyPrefix
	}
	return &RedisIdempotencyStore{rdb: rdb, prefix: prefix}
}

// MarkProcessed claims key with SET NX and the given TTL
func (s *RedisIdempotencyStore) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	err := s.rdb.SetArgs(ctx, s.prefix+key, 1, redis.SetArgs{Mode: "NX", TTL: ttl}).Err()
	switch {
	case errors.Is(err, redis.Nil):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("failed to claim downlink key %s: %w", key, err)
	}
	return true, nil
}

// IsProcessed reports whether key is claimed
func (s *RedisIdempotencyStore) IsProcessed(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Exists(ctx, s.prefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check downlink key %s: %w", key, err)
	}
	return n == 1, nil
}

// Close closes the client when the store opened it
func (s *RedisIdempotencyStore) Close() error {
	if s.owned {
		return s.rdb.Close()
	}
	return nil
}

var _ shared.IdempotencyStore = (*RedisIdempotencyStore)(nil)
