package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMaxEntries bounds the in-process backend
const DefaultMaxEntries = 100000

type memoryEntry struct {
	value     []byte
	version   int64
	present   bool
	expiresAt time.Time
}

// MemoryBackend is a bounded in-process Backend. Versions come from one counter
// for the whole backend, so a key pushed out by the LRU policy or expired by TTL
// is never handed a version some writer still holds.
type MemoryBackend struct {
	mu           sync.Mutex
	seq          int64
	entries      *lru.Cache[string, memoryEntry]
	ttl          time.Duration
	tombstoneTTL time.Duration
	now          func() time.Time
}

// MemoryBackendOption configures a MemoryBackend
type MemoryBackendOption func(*MemoryBackend)

// WithMemoryTTL expires values after ttl. Zero keeps them until evicted.
func WithMemoryTTL(ttl time.Duration) MemoryBackendOption {
	return func(b *MemoryBackend) {
		b.ttl = ttl
	}
}

// WithMemoryTombstoneTTL sets how long an evicted key keeps its version
func WithMemoryTombstoneTTL(ttl time.Duration) MemoryBackendOption {
	return func(b *MemoryBackend) {
		b.tombstoneTTL = ttl
	}
}

// NewMemoryBackend creates an in-process backend holding at most maxEntries keys
func NewMemoryBackend(maxEntries int, opts ...MemoryBackendOption) (*MemoryBackend, error) {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	entries, err := lru.New[string, memoryEntry](maxEntries)
	if err != nil {
		return nil, fmt.Errorf("failed to create lru cache: %w", err)
	}
	b := &MemoryBackend{
		entries:      entries,
		tombstoneTTL: DefaultTombstoneTTL,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// load returns the live entry of key; callers hold mu
func (b *MemoryBackend) load(key string) memoryEntry {
	e, ok := b.entries.Get(key)
	if !ok {
		return memoryEntry{}
	}
	if !e.expiresAt.IsZero() && !b.now().Before(e.expiresAt) {
		b.entries.Remove(key)
		return memoryEntry{}
	}
	return e
}

func (b *MemoryBackend) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return b.now().Add(ttl)
}

// Get implements Backend
func (b *MemoryBackend) Get(_ context.Context, key string) (Entry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.load(key)
	return Entry{Value: cloneBytes(e.value), Version: e.version, Present: e.present}, nil
}

// Set implements Backend
func (b *MemoryBackend) Set(_ context.Context, key string, value []byte) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.write(key, value), nil
}

// CompareAndSet implements Backend
func (b *MemoryBackend) CompareAndSet(_ context.Context, key string, value []byte, expected int64) (bool, int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cur := b.load(key).version
	if cur != expected {
		return false, cur, nil
	}
	return true, b.write(key, value), nil
}

// Delete implements Backend
func (b *MemoryBackend) Delete(_ context.Context, key string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	b.entries.Add(key, memoryEntry{version: b.seq, expiresAt: b.expiry(b.tombstoneTTL)})
	return b.seq, nil
}

// write stores value under the next version; callers hold mu
func (b *MemoryBackend) write(key string, value []byte) int64 {
	b.seq++
	next := b.seq
	b.entries.Add(key, memoryEntry{
		value:     cloneBytes(value),
		version:   next,
		present:   true,
		expiresAt: b.expiry(b.ttl),
	})
	return next
}

// Len returns the number of keys held, tombstones included
func (b *MemoryBackend) Len() int {
	return b.entries.Len()
}

// Close implements Backend
func (b *MemoryBackend) Close() error {
	b.entries.Purge()
	return nil
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte{}, b...)
}

var _ Backend = (*MemoryBackend)(nil)
