package cache

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Stored badger values are [8-byte big-endian version][flag][value]
const (
	badgerHeaderLen   = 9
	badgerFlagPresent = 1
	badgerMaxAttempts = 5
	badgerSeqLease    = 1000
)

// badgerSeqKey holds the version sequence. Cache keys never start with '!'.
var badgerSeqKey = []byte("!edgesync:version-seq")

// BadgerBackendOptions configures a BadgerBackend
type BadgerBackendOptions struct {
	// Path of the database directory. Empty runs in memory.
	Path         string
	TTL          time.Duration
	TombstoneTTL time.Duration
	// Logger for badger itself. Nil disables badger logging.
	Logger badger.Logger
}

// BadgerBackend is a node-local persistent Backend. It keeps cached values across
// restarts of a single node without a network hop. Versions come from a badger
// sequence, which survives both expired entries and restarts.
type BadgerBackend struct {
	db           *badger.DB
	seq          *badger.Sequence
	ttl          time.Duration
	tombstoneTTL time.Duration
}

// NewBadgerBackend opens the database described by opts
func NewBadgerBackend(opts BadgerBackendOptions) (*BadgerBackend, error) {
	badgerOpts := badger.DefaultOptions(opts.Path)
	if opts.Path == "" {
		badgerOpts = badgerOpts.WithInMemory(true)
	}
	badgerOpts = badgerOpts.WithLogger(opts.Logger)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	seq, err := db.GetSequence(badgerSeqKey, badgerSeqLease)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open version sequence: %w", err)
	}

	tombstoneTTL := opts.TombstoneTTL
	if tombstoneTTL == 0 {
		tombstoneTTL = DefaultTombstoneTTL
	}
	return &BadgerBackend{db: db, seq: seq, ttl: opts.TTL, tombstoneTTL: tombstoneTTL}, nil
}

// nextVersion draws from the sequence, which starts at 0
func (b *BadgerBackend) nextVersion() (int64, error) {
	n, err := b.seq.Next()
	if err != nil {
		return 0, fmt.Errorf("failed to draw cache version: %w", err)
	}
	return int64(n) + 1, nil
}

// Get implements Backend
func (b *BadgerBackend) Get(_ context.Context, key string) (Entry, error) {
	var e Entry
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		e, err = readBadgerEntry(txn, []byte(key))
		return err
	})
	if err != nil {
		return Entry{}, fmt.Errorf("failed to read cache entry: %w", err)
	}
	return e, nil
}

// Set implements Backend
func (b *BadgerBackend) Set(ctx context.Context, key string, value []byte) (int64, error) {
	var next int64
	err := b.update(ctx, func(txn *badger.Txn) error {
		// the read makes concurrent writers of key conflict, so versions commit in order
		if _, err := readBadgerEntry(txn, []byte(key)); err != nil {
			return err
		}
		var err error
		if next, err = b.nextVersion(); err != nil {
			return err
		}
		return writeBadgerEntry(txn, []byte(key), next, true, value, b.ttl)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to write cache entry: %w", err)
	}
	return next, nil
}

// CompareAndSet implements Backend
func (b *BadgerBackend) CompareAndSet(ctx context.Context, key string, value []byte, expected int64) (bool, int64, error) {
	var (
		accepted bool
		version  int64
	)
	err := b.update(ctx, func(txn *badger.Txn) error {
		cur, err := readBadgerEntry(txn, []byte(key))
		if err != nil {
			return err
		}
		if cur.Version != expected {
			accepted, version = false, cur.Version
			return nil
		}
		if version, err = b.nextVersion(); err != nil {
			return err
		}
		accepted = true
		return writeBadgerEntry(txn, []byte(key), version, true, value, b.ttl)
	})
	if err != nil {
		return false, 0, fmt.Errorf("failed to write cache entry: %w", err)
	}
	return accepted, version, nil
}

// Delete implements Backend
func (b *BadgerBackend) Delete(ctx context.Context, key string) (int64, error) {
	var next int64
	err := b.update(ctx, func(txn *badger.Txn) error {
		// the read makes concurrent writers of key conflict, so versions commit in order
		if _, err := readBadgerEntry(txn, []byte(key)); err != nil {
			return err
		}
		var err error
		if next, err = b.nextVersion(); err != nil {
			return err
		}
		return writeBadgerEntry(txn, []byte(key), next, false, nil, b.tombstoneTTL)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to evict cache entry: %w", err)
	}
	return next, nil
}

// Close implements Backend
func (b *BadgerBackend) Close() error {
	return errors.Join(b.seq.Release(), b.db.Close())
}

// update runs fn in a read-write transaction, retrying when a concurrent
// transaction touched the same key
func (b *BadgerBackend) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < badgerMaxAttempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = b.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

func readBadgerEntry(txn *badger.Txn, key []byte) (Entry, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Entry{Version: InitialVersion}, nil
	}
	if err != nil {
		return Entry{}, err
	}

	var e Entry
	err = item.Value(func(val []byte) error {
		if len(val) < badgerHeaderLen {
			return fmt.Errorf("truncated cache entry: %d bytes", len(val))
		}
		e.Version = int64(binary.BigEndian.Uint64(val[:8]))
		if val[8] == badgerFlagPresent {
			e.Present = true
			e.Value = cloneBytes(val[badgerHeaderLen:])
		}
		return nil
	})
	return e, err
}

func writeBadgerEntry(txn *badger.Txn, key []byte, version int64, present bool, value []byte, ttl time.Duration) error {
	buf := make([]byte, badgerHeaderLen+len(value))
	binary.BigEndian.PutUint64(buf[:8], uint64(version))
	if present {
		buf[8] = badgerFlagPresent
	}
	copy(buf[badgerHeaderLen:], value)

	entry := badger.NewEntry(key, buf)
	if ttl > 0 {
		entry = entry.WithTTL(ttl)
	}
	return txn.SetEntry(entry)
}

var _ Backend = (*BadgerBackend)(nil)
