// Package edgesync applies change messages received from edge installations
// to the authoritative store and requests the data they did not carry.
package edgesync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/edgesync/backend/internal/domain/edge"
	"github.com/edgesync/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/semaphore"
)

// Lock modes
const (
	LockModeKind    = "kind"
	LockModeSharded = "sharded"
)

// DefaultLockTimeout bounds lock acquisition when the caller's context has no deadline
const DefaultLockTimeout = 30 * time.Second

// ReleaseFunc releases an acquired creation lock. Calling it more than once is a no-op.
type ReleaseFunc func()

// LockRegistry serializes the find-or-create decision of concurrent
// create-or-update messages
type LockRegistry interface {
	Acquire(ctx context.Context, kind edge.EntityType, id uuid.UUID) (ReleaseFunc, error)
}

// KindLockRegistry holds one exclusive lock per entity kind
type KindLockRegistry struct {
	locks   *xsync.MapOf[edge.EntityType, *semaphore.Weighted]
	timeout time.Duration
}

// NewKindLockRegistry creates a registry with one lock per entity kind
func NewKindLockRegistry(timeout time.Duration) *KindLockRegistry {
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	return &KindLockRegistry{
		locks:   xsync.NewMapOf[edge.EntityType, *semaphore.Weighted](),
		timeout: timeout,
	}
}

// Acquire takes the lock of kind. id is ignored.
func (r *KindLockRegistry) Acquire(ctx context.Context, kind edge.EntityType, _ uuid.UUID) (ReleaseFunc, error) {
	sem, _ := r.locks.LoadOrCompute(kind, func() *semaphore.Weighted {
		return semaphore.NewWeighted(1)
	})
	return acquire(ctx, sem, r.timeout, string(kind))
}

// ShardedLockRegistry holds a fixed table of locks selected by a hash of kind and id.
// Messages for the same identifier always land on the same shard.
type ShardedLockRegistry struct {
	shards  []*semaphore.Weighted
	timeout time.Duration
}

// NewShardedLockRegistry creates a registry with n shards
func NewShardedLockRegistry(n int, timeout time.Duration) *ShardedLockRegistry {
	if n <= 0 {
		n = 1
	}
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	shards := make([]*semaphore.Weighted, n)
	for i := range shards {
		shards[i] = semaphore.NewWeighted(1)
	}
	return &ShardedLockRegistry{shards: shards, timeout: timeout}
}

// Acquire takes the shard lock owning (kind, id)
func (r *ShardedLockRegistry) Acquire(ctx context.Context, kind edge.EntityType, id uuid.UUID) (ReleaseFunc, error) {
	idx := r.shardIndex(kind, id)
	return acquire(ctx, r.shards[idx], r.timeout, fmt.Sprintf("%s#%d", kind, idx))
}

func (r *ShardedLockRegistry) shardIndex(kind edge.EntityType, id uuid.UUID) int {
	h := xxhash.New()
	_, _ = h.WriteString(string(kind))
	_, _ = h.Write(id[:])
	return int(h.Sum64() % uint64(len(r.shards)))
}

// NewLockRegistry builds the registry selected by mode
func NewLockRegistry(mode string, shards int, timeout time.Duration) (LockRegistry, error) {
	switch mode {
	case "", LockModeKind:
		return NewKindLockRegistry(timeout), nil
	case LockModeSharded:
		return NewShardedLockRegistry(shards, timeout), nil
	default:
		return nil, fmt.Errorf("unknown lock mode: %s", mode)
	}
}

func acquire(ctx context.Context, sem *semaphore.Weighted, timeout time.Duration, name string) (ReleaseFunc, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", shared.ErrLockUnavailable, name, err)
	}
	var once sync.Once
	return func() {
		once.Do(func() { sem.Release(1) })
	}, nil
}

var (
	_ LockRegistry = (*KindLockRegistry)(nil)
	_ LockRegistry = (*ShardedLockRegistry)(nil)
)
