package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Each key is a hash: v holds the value, ver the version and d marks an evicted value.
const (
	fieldValue   = "v"
	fieldVersion = "ver"
	fieldDeleted = "d"
)

// seqSuffix names the version sequence under the key prefix
const seqSuffix = "~seq"

// nextVersion draws from the sequence in KEYS[2], never below the writer's clock
// in microseconds (ARGV[1]). A sequence lost with a Redis restart thus resumes
// above every version issued before it.
const nextVersion = `
local ver = redis.call('INCR', KEYS[2])
if ver < tonumber(ARGV[1]) then
  redis.call('SET', KEYS[2], ARGV[1])
  ver = tonumber(ARGV[1])
end
local verField = string.format('%d', ver)
`

const storeValue = `
redis.call('HSET', KEYS[1], 'v', ARGV[2], 'ver', verField)
redis.call('HDEL', KEYS[1], 'd')
if tonumber(ARGV[3]) > 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[3])
else
  redis.call('PERSIST', KEYS[1])
end
`

var (
	// KEYS[1] key, KEYS[2] sequence, ARGV[1] clock, ARGV[2] value, ARGV[3] ttl ms
	setScript = redis.NewScript(nextVersion + storeValue + `
return ver
`)

	// as setScript, ARGV[4] expected version
	casScript = redis.NewScript(`
local cur = tonumber(redis.call('HGET', KEYS[1], 'ver') or '0')
if cur ~= tonumber(ARGV[4]) then
  return {0, cur}
end
` + nextVersion + storeValue + `
return {1, ver}
`)

	// KEYS[1] key, KEYS[2] sequence, ARGV[1] clock, ARGV[2] tombstone ttl ms
	deleteScript = redis.NewScript(nextVersion + `
redis.call('HDEL', KEYS[1], 'v')
redis.call('HSET', KEYS[1], 'ver', verField, 'd', '1')
if tonumber(ARGV[2]) > 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return ver
`)
)

// RedisBackend is a Backend shared by every application node through Redis.
// Conditional writes run as Lua scripts so the version check and the write are atomic.
type RedisBackend struct {
	client       *redis.Client
	keyPrefix    string
	clock        func() int64
	ttl          time.Duration
	tombstoneTTL time.Duration
	ownsClient   bool
}

// RedisBackendOption configures a RedisBackend
type RedisBackendOption func(*RedisBackend)

// WithRedisTTL expires values after ttl. Zero keeps them until evicted.
func WithRedisTTL(ttl time.Duration) RedisBackendOption {
	return func(b *RedisBackend) {
		b.ttl = ttl
	}
}

// WithRedisTombstoneTTL sets how long an evicted key keeps its version
func WithRedisTombstoneTTL(ttl time.Duration) RedisBackendOption {
	return func(b *RedisBackend) {
		b.tombstoneTTL = ttl
	}
}

// NewRedisBackend connects to Redis and creates a backend owning the client
func NewRedisBackend(cfg RedisConfig, keyPrefix string, opts ...RedisBackendOption) (*RedisBackend, error) {
	client, err := NewRedisClient(cfg)
	if err != nil {
		return nil, err
	}
	b := NewRedisBackendWithClient(client, keyPrefix, opts...)
	b.ownsClient = true
	return b, nil
}

// NewRedisBackendWithClient creates a backend on an existing client.
// The client is not closed by Close.
func NewRedisBackendWithClient(client *redis.Client, keyPrefix string, opts ...RedisBackendOption) *RedisBackend {
	if keyPrefix == "" {
		keyPrefix = "edgesync:cache:"
	}
	b := &RedisBackend{
		client:       client,
		keyPrefix:    keyPrefix,
		clock:        func() int64 { return time.Now().UnixMicro() },
		tombstoneTTL: DefaultTombstoneTTL,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Get implements Backend
func (b *RedisBackend) Get(ctx context.Context, key string) (Entry, error) {
	vals, err := b.client.HMGet(ctx, b.keyPrefix+key, fieldValue, fieldVersion, fieldDeleted).Result()
	if err != nil {
		return Entry{}, fmt.Errorf("failed to read cache entry: %w", err)
	}

	var e Entry
	if s, ok := vals[1].(string); ok {
		e.Version, err = strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Entry{}, fmt.Errorf("invalid cache entry version %q: %w", s, err)
		}
	}
	if s, ok := vals[0].(string); ok && vals[2] == nil {
		e.Value = []byte(s)
		e.Present = true
	}
	return e, nil
}

// Set implements Backend
func (b *RedisBackend) Set(ctx context.Context, key string, value []byte) (int64, error) {
	ver, err := setScript.Run(ctx, b.client, b.keys(key), b.clock(), value, b.ttl.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("failed to write cache entry: %w", err)
	}
	return ver, nil
}

// CompareAndSet implements Backend
func (b *RedisBackend) CompareAndSet(ctx context.Context, key string, value []byte, expected int64) (bool, int64, error) {
	res, err := casScript.Run(ctx, b.client, b.keys(key), b.clock(), value, b.ttl.Milliseconds(), expected).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("failed to write cache entry: %w", err)
	}
	if len(res) != 2 {
		return false, 0, errors.New("unexpected compare-and-set reply")
	}
	return res[0] == 1, res[1], nil
}

// Delete implements Backend
func (b *RedisBackend) Delete(ctx context.Context, key string) (int64, error) {
	ver, err := deleteScript.Run(ctx, b.client, b.keys(key), b.clock(), b.tombstoneTTL.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("failed to evict cache entry: %w", err)
	}
	return ver, nil
}

// keys are the script keys for key: the entry and the version sequence
func (b *RedisBackend) keys(key string) []string {
	return []string{b.keyPrefix + key, b.keyPrefix + seqSuffix}
}

// Close implements Backend
func (b *RedisBackend) Close() error {
	if !b.ownsClient {
		return nil
	}
	return b.client.Close()
}

var _ Backend = (*RedisBackend)(nil)
