package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// InitialVersion is the version of a key the backend holds nothing for, either
// because it was never written or because its entry was pushed out or expired.
const InitialVersion int64 = 0

// DefaultTombstoneTTL is how long an evicted key remembers its version
const DefaultTombstoneTTL = time.Hour

// ErrVersionConflict is returned when a conditional write lost against a concurrent writer
var ErrVersionConflict = errors.New("cache version conflict")

// Entry is what a Backend holds for one key. An evicted key keeps its version
// without a value so that a stale conditional write cannot resurrect it.
type Entry struct {
	Value   []byte
	Version int64
	Present bool
}

// Backend is the byte-oriented store behind a VersionedCache.
// Every accepted write, including an eviction, takes a version from a sequence
// shared by all keys of the backend. Versions therefore grow per key and are never
// reissued once an entry is lost, so a stale conditional write cannot match again.
type Backend interface {
	// Get returns the entry for key; a key never written has Version InitialVersion
	Get(ctx context.Context, key string) (Entry, error)
	// Set writes value unconditionally and returns the new version
	Set(ctx context.Context, key string, value []byte) (int64, error)
	// CompareAndSet writes value only if the current version equals expected.
	// It returns whether the write was accepted and the version after the call.
	CompareAndSet(ctx context.Context, key string, value []byte, expected int64) (bool, int64, error)
	// Delete drops the value of key and returns the new version
	Delete(ctx context.Context, key string) (int64, error)
	// Close releases the backend
	Close() error
}

// LookupState is the outcome of a cache read
type LookupState int

const (
	// Miss means no value is cached
	Miss LookupState = iota
	// Hit means Value holds the cached value
	Hit
	// Corrupt means the cached bytes could not be decoded; the entry has been evicted
	Corrupt
)

// String returns the metric label of the state
func (s LookupState) String() string {
	switch s {
	case Hit:
		return "hit"
	case Corrupt:
		return "corrupt"
	default:
		return "miss"
	}
}

// Lookup is the result of VersionedCache.Get. Version is the version to pass to
// PutIfVersion when refreshing the key from the authoritative store.
type Lookup[V any] struct {
	State   LookupState
	Value   V
	Version int64
	Err     error
}

// Found reports whether Value holds a cached value
func (l Lookup[V]) Found() bool {
	return l.State == Hit
}

// LookupObserver is notified of every cache read and write outcome
type LookupObserver interface {
	RecordCacheLookup(ctx context.Context, cacheName, result string)
}

// VersionedCache maps keys to serialized values guarded by a monotonic version
type VersionedCache[K any, V any] struct {
	name       string
	backend    Backend
	serializer Serializer[V]
	keyFunc    func(K) string
	observer   LookupObserver
	logger     *zap.Logger
}

// VersionedCacheOption configures a VersionedCache
type VersionedCacheOption func(*versionedCacheOptions)

type versionedCacheOptions struct {
	observer LookupObserver
	logger   *zap.Logger
}

// WithObserver reports lookup outcomes to observer
func WithObserver(observer LookupObserver) VersionedCacheOption {
	return func(o *versionedCacheOptions) {
		o.observer = observer
	}
}

// WithCacheLogger sets the logger
func WithCacheLogger(logger *zap.Logger) VersionedCacheOption {
	return func(o *versionedCacheOptions) {
		o.logger = logger
	}
}

// NewVersionedCache creates a cache named name. keyFunc maps a key to its backend key
// and must include name or another namespace when backends are shared.
func NewVersionedCache[K any, V any](name string, backend Backend, serializer Serializer[V], keyFunc func(K) string, opts ...VersionedCacheOption) *VersionedCache[K, V] {
	o := versionedCacheOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return &VersionedCache[K, V]{
		name:       name,
		backend:    backend,
		serializer: serializer,
		keyFunc:    keyFunc,
		observer:   o.observer,
		logger:     o.logger.With(zap.String("cache", name)),
	}
}

// Name returns the cache name
func (c *VersionedCache[K, V]) Name() string {
	return c.name
}

// Get returns the most recently accepted value for key. Backend failures are reported
// as a Miss with Err set; undecodable bytes are evicted and reported as Corrupt.
func (c *VersionedCache[K, V]) Get(ctx context.Context, key K) Lookup[V] {
	k := c.keyFunc(key)
	entry, err := c.backend.Get(ctx, k)
	if err != nil {
		c.logger.Warn("Cache read failed", zap.String("key", k), zap.Error(err))
		c.observe(ctx, "error")
		return Lookup[V]{State: Miss, Err: fmt.Errorf("failed to read cache key %s: %w", k, err)}
	}
	if !entry.Present {
		c.observe(ctx, Miss.String())
		return Lookup[V]{State: Miss, Version: entry.Version}
	}

	value, err := c.serializer.Decode(entry.Value)
	if err != nil {
		c.logger.Warn("Evicting undecodable cache entry", zap.String("key", k), zap.Error(err))
		c.observe(ctx, Corrupt.String())
		version, evictErr := c.backend.Delete(ctx, k)
		if evictErr != nil {
			return Lookup[V]{State: Corrupt, Err: errors.Join(err, evictErr)}
		}
		return Lookup[V]{State: Corrupt, Version: version, Err: err}
	}

	c.observe(ctx, Hit.String())
	return Lookup[V]{State: Hit, Value: value, Version: entry.Version}
}

// Put overwrites key unconditionally and returns the new version
func (c *VersionedCache[K, V]) Put(ctx context.Context, key K, value V) (int64, error) {
	data, err := c.serializer.Encode(value)
	if err != nil {
		return 0, fmt.Errorf("failed to encode cache value: %w", err)
	}
	version, err := c.backend.Set(ctx, c.keyFunc(key), data)
	if err != nil {
		return 0, fmt.Errorf("failed to write cache key: %w", err)
	}
	return version, nil
}

// PutIfVersion writes value only if the current version of key equals expected.
// A rejected write leaves the stored value untouched; the returned version is the
// current one so the caller can re-read and retry or give up.
func (c *VersionedCache[K, V]) PutIfVersion(ctx context.Context, key K, value V, expected int64) (bool, int64, error) {
	data, err := c.serializer.Encode(value)
	if err != nil {
		return false, 0, fmt.Errorf("failed to encode cache value: %w", err)
	}
	accepted, version, err := c.backend.CompareAndSet(ctx, c.keyFunc(key), data, expected)
	if err != nil {
		return false, 0, fmt.Errorf("failed to write cache key: %w", err)
	}
	if !accepted {
		c.observe(ctx, "rejected")
	}
	return accepted, version, nil
}

// Evict drops the cached value of key and returns the new version
func (c *VersionedCache[K, V]) Evict(ctx context.Context, key K) (int64, error) {
	version, err := c.backend.Delete(ctx, c.keyFunc(key))
	if err != nil {
		return 0, fmt.Errorf("failed to evict cache key: %w", err)
	}
	return version, nil
}

func (c *VersionedCache[K, V]) observe(ctx context.Context, result string) {
	if c.observer != nil {
		c.observer.RecordCacheLookup(ctx, c.name, result)
	}
}
