// ABOUTME: Tests for duplicate scans and merges against a real SQLite database
// ABOUTME: Covers URL auto-merge, pending pairs, scan idempotence, manual merge and dismissal
package dedupe

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/cadence/config"
	"github.com/harperreed/cadence/db"
	"github.com/harperreed/cadence/logging"
	"github.com/harperreed/cadence/models"
	"github.com/harperreed/cadence/scoring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := db.OpenDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	return database
}

var mergeTime = time.Date(2026, 6, 3, 12, 0, 0, 0, time.UTC)

func newDetector(database *sql.DB) *Detector {
	engine := scoring.NewEngine(database, config.DefaultScoring(), scoring.WithLogger(logging.Nop()))
	return NewDetector(database, engine, WithLogger(logging.Nop()), WithClock(func() time.Time { return mergeTime }))
}

func create(t *testing.T, database *sql.DB, c *models.Contact) *models.Contact {
	t.Helper()
	require.NoError(t, db.CreateContact(context.Background(), database, c))
	return c
}

func TestScanAutoMergesURLMatch(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()
	d := newDetector(database)

	rich := create(t, database, &models.Contact{
		Name:              "Ada Lovelace",
		ProfileURL:        "https://www.linkedin.com/in/ada/",
		Company:           "Analytical Engines",
		Title:             "Programmer",
		Status:            models.StatusConnected,
		RelationshipScore: 12,
	})
	sparse := create(t, database, &models.Contact{
		Name:                   "Ada L.",
		ProfileURL:             "linkedin.com/in/ada",
		Email:                  "ada@example.com",
		Status:                 models.StatusEngaged,
		RelationshipScore:      30,
		MutualConnectionsCount: 0,
	})
	logged := &models.Interaction{
		ContactID:   sparse.ID,
		Type:        models.InteractionMessageReceived,
		Source:      models.SourceManual,
		OccurredAt:  mergeTime.Add(-time.Hour),
		PointsValue: 3,
	}
	require.NoError(t, db.CreateInteraction(ctx, database, logged))

	summary, err := d.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Scanned)
	assert.Equal(t, 1, summary.AutoMerged)
	assert.Equal(t, 0, summary.Pending)
	assert.NotEmpty(t, summary.RunID)

	gone, err := db.GetContact(ctx, database, sparse.ID)
	require.NoError(t, err)
	assert.Nil(t, gone, "secondary should be soft-deleted")

	primary, err := db.MustGetContact(ctx, database, rich.ID)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", primary.Email, "empty field backfilled")
	assert.Equal(t, "Programmer", primary.Title)
	assert.Equal(t, models.StatusEngaged, primary.Status)
	assert.Equal(t, 3, primary.RelationshipScore, "score comes from the combined ledger, not the larger stored value")

	ledger, err := db.ListInteractionsSince(ctx, database, rich.ID, time.Time{})
	require.NoError(t, err)
	require.Len(t, ledger, 1, "secondary's interactions count for the primary")
	assert.Equal(t, logged.ID, ledger[0].ID)
	assert.Equal(t, sparse.ID, ledger[0].ContactID, "ledger rows keep their original contact")

	snapshots, err := db.ListScoreHistory(ctx, database, rich.ID, models.ScoreTypeRelationship)
	require.NoError(t, err)
	require.Len(t, snapshots, 1)
	assert.Equal(t, 3.0, snapshots[0].ScoreValue)

	history, err := db.ListMergeHistory(ctx, database, rich.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, sparse.ID, history[0].SecondaryID)
	assert.Equal(t, models.MergedByAuto, history[0].MergedBy)
	assert.Contains(t, history[0].SecondarySnapshot, "ada@example.com")

	pair, err := db.FindDuplicatePair(ctx, database, rich.ID, sparse.ID)
	require.NoError(t, err)
	require.NotNil(t, pair)
	assert.Equal(t, models.PairMerged, pair.Status)

	run, err := db.GetJobRun(ctx, database, summary.RunID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, run.Status)
}

func TestScanIsIdempotentForPendingPairs(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()
	d := newDetector(database)

	create(t, database, &models.Contact{Name: "Grace Hopper", Company: "Navy"})
	create(t, database, &models.Contact{Name: "Grace Hopper", Company: "navy"})

	first, err := d.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Pending)
	assert.Equal(t, 0, first.AutoMerged)

	second, err := d.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Pending)
	assert.Equal(t, 1, second.Skipped)

	pending, err := d.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, models.MatchNameCompany, pending[0].MatchType)
	assert.True(t, pending[0].ContactAID.String() < pending[0].ContactBID.String())
}

func TestDismissedPairIsNotProposedAgain(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()
	d := newDetector(database)

	create(t, database, &models.Contact{Name: "Jon Smith", Company: "Acme"})
	create(t, database, &models.Contact{Name: "Jonathan Smith", Company: "Acme"})

	_, err := d.Scan(ctx)
	require.NoError(t, err)
	pending, err := d.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, d.Dismiss(ctx, pending[0].ID))
	err = d.Dismiss(ctx, pending[0].ID)
	assert.True(t, models.IsValidation(err), "dismissing twice is rejected")

	summary, err := d.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Pending)

	pending, err = d.ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestMergePairWithChosenPrimary(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()
	d := newDetector(database)

	a := create(t, database, &models.Contact{Name: "Grace Hopper", Company: "Navy", Title: "Admiral"})
	b := create(t, database, &models.Contact{Name: "Grace Hopper", Company: "Navy", Phone: "555-0199"})

	_, err := d.Scan(ctx)
	require.NoError(t, err)
	pending, err := d.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	res, err := d.MergePair(ctx, pending[0].ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, res.Primary.ID)
	assert.Equal(t, a.ID, res.SecondaryID)
	assert.Equal(t, "Admiral", res.Primary.Title)
	assert.Equal(t, models.MergedByManual, res.History.MergedBy)

	_, err = d.MergePair(ctx, pending[0].ID, uuid.Nil)
	assert.True(t, models.IsValidation(err), "merged pair cannot be merged again")
}

func TestMergeRejectsSelfAndMissing(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()
	d := newDetector(database)

	a := create(t, database, &models.Contact{Name: "Solo"})

	_, err := d.Merge(ctx, a.ID, a.ID, "")
	assert.True(t, models.IsValidation(err))

	_, err = d.Merge(ctx, a.ID, uuid.New(), "")
	assert.True(t, models.IsNotFound(err))
}

func TestMergeWithoutPairRecordsOne(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()
	d := newDetector(database)

	a := create(t, database, &models.Contact{Name: "Alan Turing"})
	b := create(t, database, &models.Contact{Name: "A. M. Turing", ProfileURL: "linkedin.com/in/turing"})

	res, err := d.Merge(ctx, a.ID, b.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "linkedin.com/in/turing", res.Primary.ProfileURL, "profile URL moves to the primary")

	pair, err := db.FindDuplicatePair(ctx, database, a.ID, b.ID)
	require.NoError(t, err)
	require.NotNil(t, pair)
	assert.Equal(t, models.PairMerged, pair.Status)
}

func TestMergeChainKeepsWholeLedger(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()
	d := newDetector(database)

	a := create(t, database, &models.Contact{Name: "Katherine Johnson", Status: models.StatusConnected})
	b := create(t, database, &models.Contact{Name: "K. Johnson", Status: models.StatusConnected})
	c := create(t, database, &models.Contact{Name: "Katherine G. Johnson", Status: models.StatusConnected})
	for _, id := range []uuid.UUID{a.ID, b.ID, c.ID} {
		require.NoError(t, db.CreateInteraction(ctx, database, &models.Interaction{
			ContactID:   id,
			Type:        models.InteractionCall,
			Source:      models.SourceManual,
			OccurredAt:  mergeTime.Add(-time.Hour),
			PointsValue: 6,
		}))
	}

	_, err := d.Merge(ctx, b.ID, a.ID, "")
	require.NoError(t, err)
	res, err := d.Merge(ctx, c.ID, b.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 18, res.Primary.RelationshipScore)

	n, err := db.CountInteractions(ctx, database, c.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 3, n, "merges resolve transitively")

	n, err = db.CountInteractions(ctx, database, a.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 1, n, "the merged-away contact still owns its own rows")
}

func TestChoosePrimary(t *testing.T) {
	older := &models.Contact{ID: uuid.New(), Name: "A", CreatedAt: time.Now().Add(-time.Hour)}
	newer := &models.Contact{ID: uuid.New(), Name: "B", CreatedAt: time.Now()}

	p, s := ChoosePrimary(newer, older)
	assert.Equal(t, older.ID, p.ID, "ties go to the older record")
	assert.Equal(t, newer.ID, s.ID)

	newer.Email = "b@example.com"
	p, _ = ChoosePrimary(older, newer)
	assert.Equal(t, newer.ID, p.ID, "completeness wins over age")
}
