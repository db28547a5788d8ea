// ABOUTME: Interaction ledger database operations
// ABOUTME: Append-only inserts and time-bounded reads used by relationship scoring
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/cadence/models"
)

// CreateInteraction appends a ledger entry. Entries are never updated afterwards.
func CreateInteraction(ctx context.Context, q DBTX, in *models.Interaction) error {
	if in.ID == uuid.Nil {
		in.ID = uuid.New()
	}
	in.CreatedAt = time.Now().UTC()
	in.OccurredAt = utc(in.OccurredAt)

	_, err := q.ExecContext(ctx, `
		INSERT INTO interactions (id, contact_id, type, source, occurred_at, points_value, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, in.ID.String(), in.ContactID.String(), in.Type, in.Source, in.OccurredAt,
		in.PointsValue, nullString(in.Metadata), in.CreatedAt)
	return err
}

// ledgerOf resolves a contact to itself plus every contact merged into it, directly or
// through earlier merges. Ledger rows keep the contact_id they were written with.
const ledgerOf = `
	WITH RECURSIVE ledger(id) AS (
		SELECT ?
		UNION
		SELECT m.secondary_id FROM merge_history m JOIN ledger l ON m.primary_id = l.id
	)`

// ListInteractionsSince returns a contact's interactions that occurred at or after since,
// newest first, including those of contacts merged into it. A zero since returns the
// whole ledger.
func ListInteractionsSince(ctx context.Context, q DBTX, contactID uuid.UUID, since time.Time) ([]models.Interaction, error) {
	query := ledgerOf + `
		SELECT id, contact_id, type, source, occurred_at, points_value, metadata, created_at
		FROM interactions WHERE contact_id IN (SELECT id FROM ledger)`
	args := []any{contactID.String()}
	if !since.IsZero() {
		query += ` AND occurred_at >= ?`
		args = append(args, utc(since))
	}
	query += ` ORDER BY occurred_at DESC, id`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var interactions []models.Interaction
	for rows.Next() {
		var in models.Interaction
		var idStr, contactStr string
		var metadata sql.NullString
		if err := rows.Scan(&idStr, &contactStr, &in.Type, &in.Source, &in.OccurredAt,
			&in.PointsValue, &metadata, &in.CreatedAt); err != nil {
			return nil, err
		}
		if in.ID, err = uuid.Parse(idStr); err != nil {
			return nil, fmt.Errorf("failed to parse interaction ID: %w", err)
		}
		if in.ContactID, err = uuid.Parse(contactStr); err != nil {
			return nil, fmt.Errorf("failed to parse contact ID: %w", err)
		}
		in.Metadata = metadata.String
		interactions = append(interactions, in)
	}
	return interactions, rows.Err()
}

// CountInteractions returns how many ledger entries a contact has, merged contacts
// included, optionally of one type.
func CountInteractions(ctx context.Context, q DBTX, contactID uuid.UUID, interactionType string) (int, error) {
	query := ledgerOf + ` SELECT COUNT(*) FROM interactions WHERE contact_id IN (SELECT id FROM ledger)`
	args := []any{contactID.String()}
	if interactionType != "" {
		query += ` AND type = ?`
		args = append(args, interactionType)
	}
	var n int
	err := q.QueryRowContext(ctx, query, args...).Scan(&n)
	return n, err
}
