// ABOUTME: Tests for daily queue generation
// ABOUTME: Covers ranking, caps, rate-limit skips, idempotence, uniqueness, snoozes and templates
package queue

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
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2026, 6, 3, 9, 0, 0, 0, time.UTC)

const date = "2026-06-03"

type fixedBudget int

func (b fixedBudget) Budget(context.Context, time.Time) (int, error) { return int(b), nil }

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := db.OpenDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	return database
}

func newGenerator(database *sql.DB, cfg config.Scoring, budget Budgeter) *Generator {
	return NewGenerator(database, cfg, budget, WithLogger(logging.Nop()), WithLocation(time.UTC))
}

func target(t *testing.T, database *sql.DB, name string, priority float64) *models.Contact {
	t.Helper()
	c := &models.Contact{Name: name, Status: models.StatusTarget, PriorityScore: priority}
	require.NoError(t, db.CreateContact(context.Background(), database, c))
	return c
}

func connected(t *testing.T, database *sql.DB, name string, score int, lastInteraction time.Time) *models.Contact {
	t.Helper()
	c := &models.Contact{
		Name:              name,
		Status:            models.StatusConnected,
		RelationshipScore: score,
		LastInteractionAt: &lastInteraction,
	}
	require.NoError(t, db.CreateContact(context.Background(), database, c))
	return c
}

func itemsByAction(items []models.QueueItem) map[string][]uuid.UUID {
	out := make(map[string][]uuid.UUID)
	for _, it := range items {
		out[it.ActionType] = append(out[it.ActionType], it.ContactID)
	}
	return out
}

func TestGenerateRanksTargetsByPriority(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()

	low := target(t, database, "Low", 2.5)
	high := target(t, database, "High", 9.1)
	mid := target(t, database, "Mid", 6.0)

	cfg := config.DefaultScoring()
	cfg.Queue.MaxConnectionRequests = 2
	g := newGenerator(database, cfg, fixedBudget(20))

	summary, err := g.Generate(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, date, summary.QueueDate)
	assert.Equal(t, 2, summary.Generated[models.ActionConnectionRequest])
	assert.Equal(t, 0, summary.RateLimited, "safety cap is not a rate limit")

	items, err := db.ListQueueItems(ctx, database, date)
	require.NoError(t, err)
	got := itemsByAction(items)[models.ActionConnectionRequest]
	assert.ElementsMatch(t, []uuid.UUID{high.ID, mid.ID}, got)
	assert.NotContains(t, got, low.ID)
}

func TestGenerateCountsRateLimitedContacts(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()

	var targets []*models.Contact
	for i := 0; i < 5; i++ {
		targets = append(targets, target(t, database, "T", float64(i)))
	}
	g := newGenerator(database, config.DefaultScoring(), fixedBudget(2))

	summary, err := g.Generate(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Generated[models.ActionConnectionRequest])
	assert.Equal(t, 3, summary.RateLimited)
	assert.Equal(t, 2, summary.Budget)
	assert.Equal(t, []uuid.UUID{targets[2].ID, targets[1].ID, targets[0].ID}, summary.RateLimitedContacts)
}

func TestGenerateBudgetEqualToCapIsNotRateLimited(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		target(t, database, "T", float64(i))
	}
	cfg := config.DefaultScoring()
	cfg.Queue.MaxConnectionRequests = 3
	g := newGenerator(database, cfg, fixedBudget(3))

	summary, err := g.Generate(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Generated[models.ActionConnectionRequest])
	assert.Equal(t, 0, summary.RateLimited, "the cap stopped the pass, not the budget")
	assert.Empty(t, summary.RateLimitedContacts)
}

func TestGenerateFollowUpCutoffIgnoresTimeOfDay(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()

	stale := connected(t, database, "Stale", 40, time.Date(2026, 5, 3, 20, 0, 0, 0, time.UTC))
	borderline := connected(t, database, "Borderline", 40, time.Date(2026, 5, 4, 15, 0, 0, 0, time.UTC))
	g := newGenerator(database, config.DefaultScoring(), fixedBudget(20))

	morning := time.Date(2026, 6, 3, 9, 0, 0, 0, time.UTC)
	_, err := g.Generate(ctx, morning)
	require.NoError(t, err)
	first, err := db.ListQueueItems(ctx, database, date, models.QueuePending)
	require.NoError(t, err)

	evening := time.Date(2026, 6, 3, 16, 0, 0, 0, time.UTC)
	_, err = g.Generate(ctx, evening)
	require.NoError(t, err)
	second, err := db.ListQueueItems(ctx, database, date, models.QueuePending)
	require.NoError(t, err)

	assert.Equal(t, itemsByAction(first), itemsByAction(second))
	got := itemsByAction(second)[models.ActionFollowUp]
	assert.Equal(t, []uuid.UUID{stale.ID}, got)
	assert.NotContains(t, got, borderline.ID, "30 days are counted from midnight")
}

func TestGenerateIsIdempotent(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		target(t, database, "T", float64(i))
	}
	connected(t, database, "Stale", 40, day.AddDate(0, 0, -60))
	g := newGenerator(database, config.DefaultScoring(), fixedBudget(20))

	_, err := g.Generate(ctx, day)
	require.NoError(t, err)
	first, err := db.ListQueueItems(ctx, database, date, models.QueuePending)
	require.NoError(t, err)

	second, err := g.Generate(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, int64(len(first)), second.Cleared)

	again, err := db.ListQueueItems(ctx, database, date, models.QueuePending)
	require.NoError(t, err)
	assert.Equal(t, len(first), len(again))
	before, after := itemsByAction(first), itemsByAction(again)
	for _, action := range models.ActionTypes {
		assert.ElementsMatch(t, before[action], after[action], action)
	}
}

func TestGenerateKeepsReviewedItemsAndNeverDuplicates(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()

	a := target(t, database, "A", 9)
	target(t, database, "B", 8)
	target(t, database, "C", 7)

	cfg := config.DefaultScoring()
	cfg.Queue.MaxConnectionRequests = 2
	g := newGenerator(database, cfg, fixedBudget(20))

	_, err := g.Generate(ctx, day)
	require.NoError(t, err)
	items, err := db.ListQueueItems(ctx, database, date)
	require.NoError(t, err)
	var approved uuid.UUID
	for _, it := range items {
		if it.ContactID == a.ID {
			approved = it.ID
		}
	}
	require.NotEqual(t, uuid.Nil, approved)
	require.NoError(t, db.UpdateQueueItemStatus(ctx, database, approved, models.QueueApproved, "", nil, nil))

	summary, err := g.Generate(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Kept)
	assert.Equal(t, 1, summary.Generated[models.ActionConnectionRequest], "approved item uses one cap slot")

	items, err = db.ListQueueItems(ctx, database, date)
	require.NoError(t, err)
	seen := make(map[string]bool)
	for _, it := range items {
		key := it.ContactID.String() + it.ActionType
		assert.False(t, seen[key], "duplicate (contact, action) on one date")
		seen[key] = true
	}
	assert.Len(t, items, 2)
}

func TestGenerateFollowUpsAndReEngagements(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()

	stale := connected(t, database, "Stale", 40, day.AddDate(0, 0, -45))
	connected(t, database, "Fresh", 40, day.AddDate(0, 0, -3))
	connected(t, database, "TooCold", 5, day.AddDate(0, 0, -90))

	cold := connected(t, database, "Cold", 95, day.AddDate(0, 0, -2))
	coldAt := day.AddDate(0, 0, -1)
	require.NoError(t, db.SetGoingCold(ctx, database, cold.ID, &coldAt))
	// Stale and going cold: follow-up wins, no re-engagement.
	require.NoError(t, db.SetGoingCold(ctx, database, stale.ID, &coldAt))

	g := newGenerator(database, config.DefaultScoring(), fixedBudget(20))
	summary, err := g.Generate(ctx, day)
	require.NoError(t, err)

	items, err := db.ListQueueItems(ctx, database, date)
	require.NoError(t, err)
	got := itemsByAction(items)
	assert.Equal(t, []uuid.UUID{stale.ID}, got[models.ActionFollowUp])
	assert.Equal(t, []uuid.UUID{cold.ID}, got[models.ActionReEngagement])
	assert.Equal(t, 2, summary.Total())
}

func TestGenerateSkipsSnoozedAndOpenElsewhere(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()

	snoozed := target(t, database, "Snoozed", 9)
	pendingYesterday := target(t, database, "Yesterday", 8)
	free := target(t, database, "Free", 1)

	until := "2026-06-10"
	item := &models.QueueItem{ContactID: snoozed.ID, QueueDate: "2026-06-01", ActionType: models.ActionConnectionRequest}
	_, err := db.InsertQueueItem(ctx, database, item)
	require.NoError(t, err)
	require.NoError(t, db.UpdateQueueItemStatus(ctx, database, item.ID, models.QueueSnoozed, "", nil, &until))

	_, err = db.InsertQueueItem(ctx, database, &models.QueueItem{
		ContactID: pendingYesterday.ID, QueueDate: "2026-06-02", ActionType: models.ActionConnectionRequest,
	})
	require.NoError(t, err)

	g := newGenerator(database, config.DefaultScoring(), fixedBudget(20))
	_, err = g.Generate(ctx, day)
	require.NoError(t, err)

	items, err := db.ListQueueItems(ctx, database, date)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{free.ID}, itemsByAction(items)[models.ActionConnectionRequest])
}

func TestGenerateRendersTemplates(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()

	c := &models.Contact{Name: "Ada Lovelace", Company: "Analytical", Status: models.StatusTarget, PriorityScore: 5}
	require.NoError(t, db.CreateContact(ctx, database, c))

	cat := &models.Category{Name: "founders", RelevanceWeight: 8}
	require.NoError(t, db.CreateCategory(ctx, database, cat))
	require.NoError(t, db.AssignCategory(ctx, database, c.ID, cat.ID, models.ConfidenceHigh))

	require.NoError(t, db.CreateTemplate(ctx, database, &models.OutreachTemplate{
		Name: "generic", ActionType: models.ActionConnectionRequest, Body: "Hi {{firstName}}", IsActive: true,
	}))
	require.NoError(t, db.CreateTemplate(ctx, database, &models.OutreachTemplate{
		Name: "founders", ActionType: models.ActionConnectionRequest, CategoryID: &cat.ID, IsActive: true,
		Body: "Hi {{firstName}}, fellow {{category}} at {{company}}{{title}}",
	}))

	g := newGenerator(database, config.DefaultScoring(), fixedBudget(20))
	_, err := g.Generate(ctx, day)
	require.NoError(t, err)

	items, err := db.ListQueueItems(ctx, database, date)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Hi Ada, fellow founders at Analytical", items[0].Message)
}

func TestGenerateRecordsJobRun(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()
	target(t, database, "T", 1)

	g := newGenerator(database, config.DefaultScoring(), fixedBudget(20))
	summary, err := g.Generate(ctx, day)
	require.NoError(t, err)

	run, err := db.GetJobRun(ctx, database, summary.RunID)
	require.NoError(t, err)
	assert.Equal(t, models.JobQueueGeneration, run.JobType)
	assert.Equal(t, models.JobCompleted, run.Status)
	assert.Equal(t, 1, run.Updated)
}
