// ABOUTME: Key/value configuration rows
// ABOUTME: Backs the config store layer that overrides file defaults at runtime
package db

import (
	"context"
	"time"
)

// SetConfigEntry upserts one configuration row.
func SetConfigEntry(ctx context.Context, q DBTX, key, value string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO config_entries (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().UTC())
	return err
}

// DeleteConfigEntry removes a configuration row.
func DeleteConfigEntry(ctx context.Context, q DBTX, key string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM config_entries WHERE key = ?`, key)
	return err
}

// ConfigEntries returns every configuration row.
func ConfigEntries(ctx context.Context, q DBTX) (map[string]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT key, value FROM config_entries ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	entries := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		entries[k] = v
	}
	return entries, rows.Err()
}
