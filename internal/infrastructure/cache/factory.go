package cache

import (
	"fmt"

	"github.com/edgesync/backend/internal/domain/shared"
	"github.com/edgesync/backend/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Factory builds cache backends and idempotency stores from configuration.
// Redis-backed products share one client.
type Factory struct {
	cacheConfig config.CacheConfig
	redisConfig config.RedisConfig
	logger      *zap.Logger
	client      *redis.Client
	ownsClient  bool
}

// FactoryOption is a functional option for configuring the factory
type FactoryOption func(*Factory)

// WithFactoryLogger sets the logger for the factory
func WithFactoryLogger(logger *zap.Logger) FactoryOption {
	return func(f *Factory) {
		f.logger = logger
	}
}

// WithRedisClient reuses an existing client instead of dialing one
func WithRedisClient(client *redis.Client) FactoryOption {
	return func(f *Factory) {
		f.client = client
	}
}

// NewFactory creates a new factory
func NewFactory(cacheCfg config.CacheConfig, redisCfg config.RedisConfig, opts ...FactoryOption) *Factory {
	f := &Factory{
		cacheConfig: cacheCfg,
		redisConfig: redisCfg,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// NewBackend creates the backend named by cache.type
func (f *Factory) NewBackend() (Backend, error) {
	cfg := f.cacheConfig
	switch cfg.Type {
	case "", "memory":
		f.logger.Info("Using in-process cache backend", zap.Int("max_entries", cfg.MaxEntries))
		return NewMemoryBackend(cfg.MaxEntries,
			WithMemoryTTL(cfg.TTL),
			WithMemoryTombstoneTTL(cfg.TombstoneTTL),
		)
	case "redis":
		client, err := f.redisClient()
		if err != nil {
			return nil, fmt.Errorf("failed to create redis cache backend: %w", err)
		}
		f.logger.Info("Using redis cache backend", zap.String("prefix", cfg.KeyPrefix))
		return NewRedisBackendWithClient(client, cfg.KeyPrefix,
			WithRedisTTL(cfg.TTL),
			WithRedisTombstoneTTL(cfg.TombstoneTTL),
		), nil
	case "badger":
		f.logger.Info("Using badger cache backend", zap.String("path", cfg.BadgerPath))
		return NewBadgerBackend(BadgerBackendOptions{
			Path:         cfg.BadgerPath,
			TTL:          cfg.TTL,
			TombstoneTTL: cfg.TombstoneTTL,
		})
	default:
		return nil, fmt.Errorf("unknown cache type: %q", cfg.Type)
	}
}

// NewIdempotencyStore creates the downlink de-duplication store: "redis" or "memory".
// The in-memory store does not share state across nodes.
func (f *Factory) NewIdempotencyStore(kind string) (shared.IdempotencyStore, error) {
	switch kind {
	case "", "memory":
		return NewInMemoryIdempotencyStore(), nil
	case "redis":
		client, err := f.redisClient()
		if err != nil {
			return nil, fmt.Errorf("failed to create Redis idempotency store: %w", err)
		}
		return NewRedisIdempotencyStoreWithClient(client, ""), nil
	default:
		return nil, fmt.Errorf("unknown idempotency store: %q", kind)
	}
}

// Close closes the shared Redis client if the factory dialed it itself
func (f *Factory) Close() error {
	if f.client == nil || !f.ownsClient {
		return nil
	}
	return f.client.Close()
}

func (f *Factory) redisClient() (*redis.Client, error) {
	if f.client != nil {
		return f.client, nil
	}
	client, err := NewRedisClient(RedisConfig{
		Host:     f.redisConfig.Host,
		Port:     f.redisConfig.Port,
		Password: f.redisConfig.Password,
		DB:       f.redisConfig.DB,
	})
	if err != nil {
		return nil, err
	}
	f.client = client
	f.ownsClient = true
	return client, nil
}
