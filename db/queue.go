// ABOUTME: Queue item database operations
// ABOUTME: Idempotent inserts keyed by (contact, date, action), status updates and per-day reads
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/cadence/models"
)

const queueColumns = `id, contact_id, queue_date, action_type, status, message, snooze_until,
	executed_at, result, created_at, updated_at`

func scanQueueItem(s rowScanner) (*models.QueueItem, error) {
	var item models.QueueItem
	var idStr, contactStr string
	var message, snoozeUntil, result sql.NullString
	var executedAt sql.NullTime

	if err := s.Scan(&idStr, &contactStr, &item.QueueDate, &item.ActionType, &item.Status,
		&message, &snoozeUntil, &executedAt, &result, &item.CreatedAt, &item.UpdatedAt); err != nil {
		return nil, err
	}

	var err error
	if item.ID, err = uuid.Parse(idStr); err != nil {
		return nil, fmt.Errorf("failed to parse queue item ID: %w", err)
	}
	if item.ContactID, err = uuid.Parse(contactStr); err != nil {
		return nil, fmt.Errorf("failed to parse contact ID: %w", err)
	}
	item.Message = message.String
	item.Result = result.String
	item.ExecutedAt = nullTimePtr(executedAt)
	if snoozeUntil.Valid {
		s := snoozeUntil.String
		item.SnoozeUntil = &s
	}
	return &item, nil
}

// InsertQueueItem adds an item unless one already exists for (contact, date, action).
// It reports whether a row was inserted.
func InsertQueueItem(ctx context.Context, q DBTX, item *models.QueueItem) (bool, error) {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if item.Status == "" {
		item.Status = models.QueuePending
	}
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now

	res, err := q.ExecContext(ctx, `
		INSERT INTO queue_items (id, contact_id, queue_date, action_type, status, message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(contact_id, queue_date, action_type) DO NOTHING
	`, item.ID.String(), item.ContactID.String(), item.QueueDate, item.ActionType, item.Status,
		nullString(item.Message), now, now)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ClearPendingQueueItems deletes unreviewed items for a date so the day can be rebuilt.
// Approved items survive regeneration.
func ClearPendingQueueItems(ctx context.Context, q DBTX, queueDate string) (int64, error) {
	res, err := q.ExecContext(ctx, `
		DELETE FROM queue_items WHERE queue_date = ? AND status = ?
	`, queueDate, models.QueuePending)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteOpenQueueItemsForContact drops a contact's pending and approved items on every date.
func DeleteOpenQueueItemsForContact(ctx context.Context, q DBTX, contactID uuid.UUID) error {
	_, err := q.ExecContext(ctx, `
		DELETE FROM queue_items WHERE contact_id = ? AND status IN (?, ?)
	`, contactID.String(), models.QueuePending, models.QueueApproved)
	return err
}

// GetQueueItem returns a queue item, or nil if missing.
func GetQueueItem(ctx context.Context, q DBTX, id uuid.UUID) (*models.QueueItem, error) {
	row := q.QueryRowContext(ctx, `SELECT `+queueColumns+` FROM queue_items WHERE id = ?`, id.String())
	item, err := scanQueueItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return item, err
}

// ListQueueItems returns a date's items, optionally filtered by status, in action then
// creation order. Items whose contact was soft-deleted are excluded.
func ListQueueItems(ctx context.Context, q DBTX, queueDate string, statuses ...string) ([]models.QueueItem, error) {
	query := `
		SELECT q.id, q.contact_id, q.queue_date, q.action_type, q.status, q.message, q.snooze_until,
			q.executed_at, q.result, q.created_at, q.updated_at
		FROM queue_items q
		JOIN contacts c ON c.id = q.contact_id
		WHERE q.queue_date = ? AND c.deleted_at IS NULL`
	args := []any{queueDate}
	if len(statuses) > 0 {
		query += ` AND q.status IN (` + placeholders(len(statuses)) + `)`
		for _, s := range statuses {
			args = append(args, s)
		}
	}
	query += `
		ORDER BY CASE q.action_type
			WHEN 'connection_request' THEN 0 WHEN 'follow_up' THEN 1 ELSE 2 END,
			q.created_at, q.id`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var items []models.QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// UpdateQueueItemStatus moves an item to a new status with optional result text and times.
func UpdateQueueItemStatus(ctx context.Context, q DBTX, id uuid.UUID, status, result string, executedAt *time.Time, snoozeUntil *string) error {
	var snooze sql.NullString
	if snoozeUntil != nil {
		snooze = sql.NullString{String: *snoozeUntil, Valid: true}
	}
	res, err := q.ExecContext(ctx, `
		UPDATE queue_items
		SET status = ?, result = COALESCE(?, result), executed_at = COALESCE(?, executed_at),
			snooze_until = COALESCE(?, snooze_until), updated_at = ?
		WHERE id = ?
	`, status, nullString(result), utcPtr(executedAt), snooze, time.Now().UTC(), id.String())
	if err != nil {
		return err
	}
	return requireRow(res, "queue item", id.String())
}

// ContactsBlockedOn returns contacts that must not be queued for actionType on queueDate:
// those snoozed past the date, and those with an open item of the same type on another date.
func ContactsBlockedOn(ctx context.Context, q DBTX, queueDate, actionType string) (map[uuid.UUID]bool, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT DISTINCT contact_id FROM queue_items
		WHERE (status = ? AND snooze_until IS NOT NULL AND snooze_until > ?)
		   OR (action_type = ? AND queue_date != ? AND status IN (?, ?))
	`, models.QueueSnoozed, queueDate, actionType, queueDate, models.QueuePending, models.QueueApproved)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	blocked := make(map[uuid.UUID]bool)
	for rows.Next() {
		var idStr string
		if err := rows.Scan(&idStr); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse contact ID: %w", err)
		}
		blocked[id] = true
	}
	return blocked, rows.Err()
}

// CountQueueItems returns counts for a date keyed by action type then status.
func CountQueueItems(ctx context.Context, q DBTX, queueDate string) (map[string]map[string]int, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT action_type, status, COUNT(*) FROM queue_items WHERE queue_date = ? GROUP BY action_type, status
	`, queueDate)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[string]map[string]int)
	for rows.Next() {
		var action, status string
		var n int
		if err := rows.Scan(&action, &status, &n); err != nil {
			return nil, err
		}
		if counts[action] == nil {
			counts[action] = make(map[string]int)
		}
		counts[action][status] = n
	}
	return counts, rows.Err()
}
