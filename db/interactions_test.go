// ABOUTME: Tests for interaction ledger reads
// ABOUTME: Verifies merged contacts share a ledger without rows being rewritten
package db

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/cadence/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerFollowsMergeHistory(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Date(2026, 6, 3, 12, 0, 0, 0, time.UTC)

	a := &models.Contact{Name: "A"}
	b := &models.Contact{Name: "B"}
	c := &models.Contact{Name: "C"}
	other := &models.Contact{Name: "Other"}
	for _, contact := range []*models.Contact{a, b, c, other} {
		require.NoError(t, CreateContact(ctx, db, contact))
		require.NoError(t, CreateInteraction(ctx, db, &models.Interaction{
			ContactID:   contact.ID,
			Type:        models.InteractionCall,
			Source:      models.SourceManual,
			OccurredAt:  now.Add(-time.Hour),
			PointsValue: 6,
		}))
	}
	require.NoError(t, CreateInteraction(ctx, db, &models.Interaction{
		ContactID:   a.ID,
		Type:        models.InteractionMessageReceived,
		Source:      models.SourceManual,
		OccurredAt:  now.AddDate(0, 0, -400),
		PointsValue: 3,
	}))

	merge := func(primary, secondary uuid.UUID) {
		require.NoError(t, CreateMergeHistory(ctx, db, &models.MergeHistory{
			PrimaryID:         primary,
			SecondaryID:       secondary,
			SecondarySnapshot: "{}",
			MergedBy:          models.MergedByManual,
		}))
	}
	merge(b.ID, a.ID)
	merge(c.ID, b.ID)

	ledger, err := ListInteractionsSince(ctx, db, c.ID, time.Time{})
	require.NoError(t, err)
	require.Len(t, ledger, 4)
	owners := map[uuid.UUID]int{}
	for _, in := range ledger {
		owners[in.ContactID]++
	}
	assert.Equal(t, map[uuid.UUID]int{a.ID: 2, b.ID: 1, c.ID: 1}, owners)
	assert.True(t, ledger[3].OccurredAt.Equal(now.AddDate(0, 0, -400)), "newest first")

	recent, err := ListInteractionsSince(ctx, db, c.ID, now.AddDate(0, 0, -180))
	require.NoError(t, err)
	assert.Len(t, recent, 3)

	n, err := CountInteractions(ctx, db, c.ID, models.InteractionCall)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = CountInteractions(ctx, db, b.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 3, n, "b still sees a's rows")

	n, err = CountInteractions(ctx, db, a.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 2, n, "merges never flow upwards")

	n, err = CountInteractions(ctx, db, other.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
