// ABOUTME: Duplicate pair and merge history database operations
// ABOUTME: Pairs are stored in canonical order and are unique per contact pair
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

const pairColumns = `id, contact_a_id, contact_b_id, match_type, confidence, status, created_at, resolved_at`

func scanPair(s rowScanner) (*models.DuplicatePair, error) {
	var p models.DuplicatePair
	var idStr, aStr, bStr string
	var resolvedAt sql.NullTime
	if err := s.Scan(&idStr, &aStr, &bStr, &p.MatchType, &p.Confidence, &p.Status, &p.CreatedAt, &resolvedAt); err != nil {
		return nil, err
	}
	var err error
	if p.ID, err = uuid.Parse(idStr); err != nil {
		return nil, fmt.Errorf("failed to parse pair ID: %w", err)
	}
	if p.ContactAID, err = uuid.Parse(aStr); err != nil {
		return nil, fmt.Errorf("failed to parse contact ID: %w", err)
	}
	if p.ContactBID, err = uuid.Parse(bStr); err != nil {
		return nil, fmt.Errorf("failed to parse contact ID: %w", err)
	}
	p.ResolvedAt = nullTimePtr(resolvedAt)
	return &p, nil
}

// CreateDuplicatePair stores a pair in canonical order. It reports false when a pair for
// the same two contacts already exists, whatever its status.
func CreateDuplicatePair(ctx context.Context, q DBTX, p *models.DuplicatePair) (bool, error) {
	p.ContactAID, p.ContactBID = models.CanonicalPair(p.ContactAID, p.ContactBID)
	if p.ContactAID == p.ContactBID {
		return false, models.NewValidationError("pair", "a contact cannot duplicate itself")
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Status == "" {
		p.Status = models.PairPending
	}
	p.CreatedAt = time.Now().UTC()

	res, err := q.ExecContext(ctx, `
		INSERT INTO duplicate_pairs (id, contact_a_id, contact_b_id, match_type, confidence, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(contact_a_id, contact_b_id) DO NOTHING
	`, p.ID.String(), p.ContactAID.String(), p.ContactBID.String(), p.MatchType, p.Confidence, p.Status, p.CreatedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// GetDuplicatePair returns a pair by ID, or nil if missing.
func GetDuplicatePair(ctx context.Context, q DBTX, id uuid.UUID) (*models.DuplicatePair, error) {
	row := q.QueryRowContext(ctx, `SELECT `+pairColumns+` FROM duplicate_pairs WHERE id = ?`, id.String())
	p, err := scanPair(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

// FindDuplicatePair returns the pair for two contacts in either order, or nil.
func FindDuplicatePair(ctx context.Context, q DBTX, a, b uuid.UUID) (*models.DuplicatePair, error) {
	a, b = models.CanonicalPair(a, b)
	row := q.QueryRowContext(ctx, `
		SELECT `+pairColumns+` FROM duplicate_pairs WHERE contact_a_id = ? AND contact_b_id = ?
	`, a.String(), b.String())
	p, err := scanPair(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

// ListDuplicatePairs returns pairs with the given status ("" for all), strongest first.
func ListDuplicatePairs(ctx context.Context, q DBTX, status string) ([]models.DuplicatePair, error) {
	query := `SELECT ` + pairColumns + ` FROM duplicate_pairs`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY CASE confidence WHEN 'high' THEN 0 WHEN 'medium' THEN 1 ELSE 2 END, created_at, id`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var pairs []models.DuplicatePair
	for rows.Next() {
		p, err := scanPair(rows)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, *p)
	}
	return pairs, rows.Err()
}

// ResolveDuplicatePair marks a pair merged or dismissed.
func ResolveDuplicatePair(ctx context.Context, q DBTX, id uuid.UUID, status string) error {
	res, err := q.ExecContext(ctx, `
		UPDATE duplicate_pairs SET status = ?, resolved_at = ? WHERE id = ?
	`, status, time.Now().UTC(), id.String())
	if err != nil {
		return err
	}
	return requireRow(res, "duplicate pair", id.String())
}

// DismissPairsReferencing dismisses every other pending pair that involves contactID.
func DismissPairsReferencing(ctx context.Context, q DBTX, contactID uuid.UUID) (int64, error) {
	res, err := q.ExecContext(ctx, `
		UPDATE duplicate_pairs SET status = ?, resolved_at = ?
		WHERE status = ? AND (contact_a_id = ? OR contact_b_id = ?)
	`, models.PairDismissed, time.Now().UTC(), models.PairPending, contactID.String(), contactID.String())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CreateMergeHistory records a merge and the discarded record's snapshot.
func CreateMergeHistory(ctx context.Context, q DBTX, m *models.MergeHistory) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.MergedAt.IsZero() {
		m.MergedAt = time.Now().UTC()
	}
	var pairID sql.NullString
	if m.PairID != nil {
		pairID = sql.NullString{String: m.PairID.String(), Valid: true}
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO merge_history (id, primary_id, secondary_id, pair_id, secondary_snapshot, merged_by, merged_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, m.ID.String(), m.PrimaryID.String(), m.SecondaryID.String(), pairID, m.SecondarySnapshot, m.MergedBy, utc(m.MergedAt))
	return err
}

// ListMergeHistory returns merges into primaryID, or all merges when primaryID is uuid.Nil.
func ListMergeHistory(ctx context.Context, q DBTX, primaryID uuid.UUID) ([]models.MergeHistory, error) {
	query := `SELECT id, primary_id, secondary_id, pair_id, secondary_snapshot, merged_by, merged_at FROM merge_history`
	var args []any
	if primaryID != uuid.Nil {
		query += ` WHERE primary_id = ?`
		args = append(args, primaryID.String())
	}
	query += ` ORDER BY merged_at, id`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var history []models.MergeHistory
	for rows.Next() {
		var m models.MergeHistory
		var idStr, primaryStr, secondaryStr string
		var pairStr sql.NullString
		if err := rows.Scan(&idStr, &primaryStr, &secondaryStr, &pairStr, &m.SecondarySnapshot, &m.MergedBy, &m.MergedAt); err != nil {
			return nil, err
		}
		if m.ID, err = uuid.Parse(idStr); err != nil {
			return nil, fmt.Errorf("failed to parse merge ID: %w", err)
		}
		if m.PrimaryID, err = uuid.Parse(primaryStr); err != nil {
			return nil, fmt.Errorf("failed to parse contact ID: %w", err)
		}
		if m.SecondaryID, err = uuid.Parse(secondaryStr); err != nil {
			return nil, fmt.Errorf("failed to parse contact ID: %w", err)
		}
		if pairStr.Valid {
			pid, err := uuid.Parse(pairStr.String)
			if err != nil {
				return nil, fmt.Errorf("failed to parse pair ID: %w", err)
			}
			m.PairID = &pid
		}
		history = append(history, m)
	}
	return history, rows.Err()
}
