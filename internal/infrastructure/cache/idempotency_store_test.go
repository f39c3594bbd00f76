package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/edgesync/backend/internal/domain/shared"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniredisClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestIdempotencyStores(t *testing.T) {
	_, client := newMiniredisClient(t)

	stores := map[string]shared.IdempotencyStore{
		"memory": NewInMemoryIdempotencyStore(),
		"redis":  NewRedisIdempotencyStoreWithClient(client, ""),
	}

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			defer store.Close()
			ctx := context.Background()

			processed, err := store.IsProcessed(ctx, "downlink:t1:1")
			require.NoError(t, err)
			assert.False(t, processed)

			isNew, err := store.MarkProcessed(ctx, "downlink:t1:1", time.Hour)
			require.NoError(t, err)
			assert.True(t, isNew)

			isNew, err = store.MarkProcessed(ctx, "downlink:t1:1", time.Hour)
			require.NoError(t, err)
			assert.False(t, isNew, "second mark is a duplicate")

			processed, err = store.IsProcessed(ctx, "downlink:t1:1")
			require.NoError(t, err)
			assert.True(t, processed)

			processed, err = store.IsProcessed(ctx, "downlink:t1:2")
			require.NoError(t, err)
			assert.False(t, processed)
		})
	}
}

func TestRedisIdempotencyStore_Expiry(t *testing.T) {
	mr, client := newMiniredisClient(t)
	store := NewRedisIdempotencyStoreWithClient(client, "")
	ctx := context.Background()

	_, err := store.MarkProcessed(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, mr.Exists(defaultIdempotencyPrefix+"k"))

	mr.FastForward(2 * time.Minute)

	processed, err := store.IsProcessed(ctx, "k")
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestInMemoryIdempotencyStore_Expiry(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	defer store.Close()
	ctx := context.Background()

	_, _ = store.MarkProcessed(ctx, "short-1", 10*time.Millisecond)
	_, _ = store.MarkProcessed(ctx, "short-2", 10*time.Millisecond)
	_, _ = store.MarkProcessed(ctx, "long", time.Hour)
	assert.Equal(t, 3, store.Size())

	time.Sleep(20 * time.Millisecond)

	processed, err := store.IsProcessed(ctx, "short-1")
	require.NoError(t, err)
	assert.False(t, processed)

	isNew, err := store.MarkProcessed(ctx, "short-1", time.Hour)
	require.NoError(t, err)
	assert.True(t, isNew, "expired key can be marked again")

	store.sweep()
	assert.Equal(t, 2, store.Size())
}

func TestInMemoryIdempotencyStore_ConcurrentMark(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	defer store.Close()

	const n = 100
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		fresh int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			isNew, err := store.MarkProcessed(context.Background(), "same", time.Hour)
			if err == nil && isNew {
				mu.Lock()
				fresh++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, fresh)
}

func TestInMemoryIdempotencyStore_CloseTwice(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	assert.NoError(t, store.Close())
	assert.NoError(t, store.Close())
}
