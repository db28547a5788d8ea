// ABOUTME: Status and score history ledgers
// ABOUTME: Append-only audit rows plus the snapshot lookups used by going-cold detection
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

// CreateStatusHistory appends one status change.
func CreateStatusHistory(ctx context.Context, q DBTX, h *models.StatusHistory) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now().UTC()
	}

	var from sql.NullString
	if h.FromStatus != nil {
		from = sql.NullString{String: *h.FromStatus, Valid: true}
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO status_history (id, contact_id, from_status, to_status, trigger_type, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, h.ID.String(), h.ContactID.String(), from, h.ToStatus, h.Trigger, nullString(h.Reason), utc(h.CreatedAt))
	return err
}

// ListStatusHistory returns status changes for one contact, or for all contacts when
// contactID is uuid.Nil, oldest first.
func ListStatusHistory(ctx context.Context, q DBTX, contactID uuid.UUID) ([]models.StatusHistory, error) {
	query := `SELECT id, contact_id, from_status, to_status, trigger_type, reason, created_at FROM status_history`
	var args []any
	if contactID != uuid.Nil {
		query += ` WHERE contact_id = ?`
		args = append(args, contactID.String())
	}
	query += ` ORDER BY created_at, id`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var history []models.StatusHistory
	for rows.Next() {
		var h models.StatusHistory
		var idStr, contactStr string
		var from, reason sql.NullString
		if err := rows.Scan(&idStr, &contactStr, &from, &h.ToStatus, &h.Trigger, &reason, &h.CreatedAt); err != nil {
			return nil, err
		}
		if h.ID, err = uuid.Parse(idStr); err != nil {
			return nil, fmt.Errorf("failed to parse status history ID: %w", err)
		}
		if h.ContactID, err = uuid.Parse(contactStr); err != nil {
			return nil, fmt.Errorf("failed to parse contact ID: %w", err)
		}
		if from.Valid {
			s := from.String
			h.FromStatus = &s
		}
		h.Reason = reason.String
		history = append(history, h)
	}
	return history, rows.Err()
}

// TransitionCount is the number of status changes along one edge.
type TransitionCount struct {
	From  string
	To    string
	Count int
}

// CountTransitions aggregates the status history by edge. Creation rows have an empty From.
func CountTransitions(ctx context.Context, q DBTX) ([]TransitionCount, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT COALESCE(from_status, ''), to_status, COUNT(*)
		FROM status_history
		GROUP BY COALESCE(from_status, ''), to_status
		ORDER BY 1, 2
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var counts []TransitionCount
	for rows.Next() {
		var tc TransitionCount
		if err := rows.Scan(&tc.From, &tc.To, &tc.Count); err != nil {
			return nil, err
		}
		counts = append(counts, tc)
	}
	return counts, rows.Err()
}

// CreateScoreSnapshot appends a score snapshot.
func CreateScoreSnapshot(ctx context.Context, q DBTX, s *models.ScoreHistory) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.RecordedAt.IsZero() {
		s.RecordedAt = time.Now().UTC()
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO score_history (id, contact_id, score_type, score_value, recorded_at)
		VALUES (?, ?, ?, ?, ?)
	`, s.ID.String(), s.ContactID.String(), s.ScoreType, s.ScoreValue, utc(s.RecordedAt))
	return err
}

// EarliestSnapshotSince returns the oldest snapshot of scoreType recorded at or after since,
// or nil if there is none.
func EarliestSnapshotSince(ctx context.Context, q DBTX, contactID uuid.UUID, scoreType string, since time.Time) (*models.ScoreHistory, error) {
	var s models.ScoreHistory
	var idStr string
	err := q.QueryRowContext(ctx, `
		SELECT id, score_type, score_value, recorded_at FROM score_history
		WHERE contact_id = ? AND score_type = ? AND recorded_at >= ?
		ORDER BY recorded_at, id
		LIMIT 1
	`, contactID.String(), scoreType, utc(since)).Scan(&idStr, &s.ScoreType, &s.ScoreValue, &s.RecordedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if s.ID, err = uuid.Parse(idStr); err != nil {
		return nil, fmt.Errorf("failed to parse score history ID: %w", err)
	}
	s.ContactID = contactID
	return &s, nil
}

// ListScoreHistory returns every snapshot of scoreType for a contact, oldest first.
func ListScoreHistory(ctx context.Context, q DBTX, contactID uuid.UUID, scoreType string) ([]models.ScoreHistory, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, score_value, recorded_at FROM score_history
		WHERE contact_id = ? AND score_type = ?
		ORDER BY recorded_at, id
	`, contactID.String(), scoreType)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var snapshots []models.ScoreHistory
	for rows.Next() {
		s := models.ScoreHistory{ContactID: contactID, ScoreType: scoreType}
		var idStr string
		if err := rows.Scan(&idStr, &s.ScoreValue, &s.RecordedAt); err != nil {
			return nil, err
		}
		if s.ID, err = uuid.Parse(idStr); err != nil {
			return nil, fmt.Errorf("failed to parse score history ID: %w", err)
		}
		snapshots = append(snapshots, s)
	}
	return snapshots, rows.Err()
}
