// ABOUTME: SQLite-backed counter store for the send rate limiter
// ABOUTME: Single-statement upserts keep increments atomic across processes sharing the database file
package db

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// CounterStore keeps expiring integer counters in the rate_counters table.
type CounterStore struct {
	db  DBTX
	now func() time.Time
}

// NewCounterStore returns a store over q. Pass the *sql.DB, not a transaction, so each
// increment commits on its own.
func NewCounterStore(q DBTX) *CounterStore {
	return &CounterStore{db: q, now: time.Now}
}

func (s *CounterStore) expiry(ttl time.Duration) *time.Time {
	if ttl <= 0 {
		return nil
	}
	t := s.now().UTC().Add(ttl)
	return &t
}

// Incr adds one to key and returns the new value. An expired counter restarts at one.
func (s *CounterStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	now := s.now().UTC()
	var value int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO rate_counters (key, value, expires_at) VALUES (?, 1, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = CASE WHEN rate_counters.expires_at IS NOT NULL AND rate_counters.expires_at <= ?
				THEN 1 ELSE rate_counters.value + 1 END,
			expires_at = excluded.expires_at
		RETURNING value
	`, key, s.expiry(ttl), now).Scan(&value)
	return value, err
}

// Get returns the counter value, or zero when missing or expired.
func (s *CounterStore) Get(ctx context.Context, key string) (int64, error) {
	var value int64
	err := s.db.QueryRowContext(ctx, `
		SELECT value FROM rate_counters WHERE key = ? AND (expires_at IS NULL OR expires_at > ?)
	`, key, s.now().UTC()).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return value, err
}

// Set overwrites the counter.
func (s *CounterStore) Set(ctx context.Context, key string, value int64, ttl time.Duration) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rate_counters (key, value, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at
	`, key, value, s.expiry(ttl))
	return err
}

// PurgeExpiredCounters deletes counters past their expiry.
func PurgeExpiredCounters(ctx context.Context, q DBTX) (int64, error) {
	res, err := q.ExecContext(ctx, `DELETE FROM rate_counters WHERE expires_at IS NOT NULL AND expires_at <= ?`, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
