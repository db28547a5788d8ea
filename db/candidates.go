// ABOUTME: Ranked contact selections used by the daily queue generator
// ABOUTME: Every query reads the active-contact view and orders deterministically
package db

import (
	"context"
	"time"

	"github.com/harperreed/cadence/models"
)

// ListTargetsByPriority returns active target contacts, highest priority first.
func ListTargetsByPriority(ctx context.Context, q DBTX) ([]models.Contact, error) {
	return queryContacts(ctx, q, `
		SELECT `+contactColumns+` FROM contacts
		WHERE `+ActiveContacts+` AND status = ?
		ORDER BY priority_score DESC, created_at, id
	`, models.StatusTarget)
}

// ListStaleConnections returns connected-or-beyond contacts whose last interaction is
// before staleBefore (or who have none), with a relationship score in [minScore, maxScore].
// The longest-neglected come first.
func ListStaleConnections(ctx context.Context, q DBTX, staleBefore time.Time, minScore, maxScore int) ([]models.Contact, error) {
	return queryContacts(ctx, q, `
		SELECT `+contactColumns+` FROM contacts
		WHERE `+ActiveContacts+` AND status IN (?, ?, ?)
		  AND (last_interaction_at IS NULL OR last_interaction_at < ?)
		  AND relationship_score BETWEEN ? AND ?
		ORDER BY last_interaction_at IS NOT NULL, last_interaction_at, created_at, id
	`, models.StatusConnected, models.StatusEngaged, models.StatusRelationship,
		utc(staleBefore), minScore, maxScore)
}

// ListGoingCold returns connected-or-beyond contacts flagged as going cold, earliest flag first.
func ListGoingCold(ctx context.Context, q DBTX) ([]models.Contact, error) {
	return queryContacts(ctx, q, `
		SELECT `+contactColumns+` FROM contacts
		WHERE `+ActiveContacts+` AND status IN (?, ?, ?) AND going_cold_at IS NOT NULL
		ORDER BY going_cold_at, id
	`, models.StatusConnected, models.StatusEngaged, models.StatusRelationship)
}
