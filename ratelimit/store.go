// ABOUTME: Counter stores backing the send rate limiter
// ABOUTME: Store is satisfied by the SQLite counter table and by an embedded BadgerDB with TTL keys
package ratelimit

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v3"
)

// Store keeps expiring integer counters. Incr must be atomic.
type Store interface {
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Get(ctx context.Context, key string) (int64, error)
	Set(ctx context.Context, key string, value int64, ttl time.Duration) error
}

const maxTxnRetries = 50

// BadgerStore keeps counters in an embedded BadgerDB. Expiry uses badger's native TTL.
//
// Badger holds an exclusive lock on its directory, so a BadgerStore serves one process
// only. When the sender, the worker and the MCP server run as separate processes they
// must share the SQLite counter store instead.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens (or creates) a store under dir. An empty dir gives an in-memory store.
// It fails while another process, or another store in this one, has dir open.
func OpenBadgerStore(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger store (single process only, is it in use?): %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func (s *BadgerStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	var value int64
	err := s.update(ctx, func(txn *badger.Txn) error {
		current, err := readCounter(txn, key)
		if err != nil {
			return err
		}
		value = current + 1
		return writeCounter(txn, key, value, ttl)
	})
	return value, err
}

func (s *BadgerStore) Get(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var value int64
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		value, err = readCounter(txn, key)
		return err
	})
	return value, err
}

func (s *BadgerStore) Set(ctx context.Context, key string, value int64, ttl time.Duration) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		return writeCounter(txn, key, value, ttl)
	})
}

// update retries read-modify-write transactions that lost a conflict to a concurrent writer.
func (s *BadgerStore) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	var err error
	for i := 0; i < maxTxnRetries; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

func readCounter(txn *badger.Txn, key string) (int64, error) {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	raw, err := item.ValueCopy(nil)
	if err != nil {
		return 0, err
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("corrupt counter %q", key)
	}
	return int64(binary.BigEndian.Uint64(raw)), nil
}

func writeCounter(txn *badger.Txn, key string, value int64, ttl time.Duration) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(value))
	entry := badger.NewEntry([]byte(key), buf)
	if ttl > 0 {
		entry = entry.WithTTL(ttl)
	}
	return txn.SetEntry(entry)
}
