package cache

import (
	"context"
	"sync"
	"time"

	"github.com/edgesync/backend/internal/domain/shared"
	"github.com/puzpuzpuz/xsync/v3"
)

const idempotencySweepInterval = 5 * time.Minute

// InMemoryIdempotencyStore keeps acknowledged downlink keys in process memory.
// Redelivery state is lost on restart and not shared between nodes. Expired
// keys are dropped by a background sweep.
type InMemoryIdempotencyStore struct {
	expiry *xsync.MapOf[string, time.Time]
	stop   func()
}

// NewInMemoryIdempotencyStore creates the store and starts its sweep
func NewInMemoryIdempotencyStore() *InMemoryIdempotencyStore {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s := &InMemoryIdempotencyStore{expiry: xsync.NewMapOf[string, time.Time]()}
	s.stop = sync.OnceFunc(func() {
		cancel()
		<-done
	})

	go func() {
		defer close(done)
		tick := time.NewTicker(idempotencySweepInterval)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				s.sweep()
			}
		}
	}()
	return s
}

// MarkProcessed claims key for ttl. Only one of any number of concurrent
// callers gets true.
func (s *InMemoryIdempotencyStore) MarkProcessed(_ context.Context, key string, ttl time.Duration) (bool, error) {
	now := time.Now()
	claimed := false
	s.expiry.Compute(key, func(until time.Time, loaded bool) (time.Time, bool) {
		if loaded && now.Before(until) {
			return until, false
		}
		claimed = true
		return now.Add(ttl), false
	})
	return claimed, nil
}

// IsProcessed reports whether key is claimed and not expired
func (s *InMemoryIdempotencyStore) IsProcessed(_ context.Context, key string) (bool, error) {
	until, ok := s.expiry.Load(key)
	return ok && time.Now().Before(until), nil
}

// Close stops the sweep. Safe to call more than once.
func (s *InMemoryIdempotencyStore) Close() error {
	s.stop()
	return nil
}

// sweep drops keys that were already expired when it started.
func (s *InMemoryIdempotencyStore) sweep() {
	now := time.Now()
	s.expiry.Range(func(key string, until time.Time) bool {
		if now.Before(until) {
			return true
		}
		s.expiry.Compute(key, func(cur time.Time, loaded bool) (time.Time, bool) {
			return cur, loaded && !now.Before(cur)
		})
		return true
	})
}

// Size returns the number of keys held, expired ones included until the next sweep
func (s *InMemoryIdempotencyStore) Size() int {
	return s.expiry.Size()
}

var _ shared.IdempotencyStore = (*InMemoryIdempotencyStore)(nil)
