// ABOUTME: Tests for the MCP tool and resource handlers
// ABOUTME: Runs each handler against a real SQLite database with the full service stack
package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/harperreed/cadence/config"
	"github.com/harperreed/cadence/db"
	"github.com/harperreed/cadence/dedupe"
	"github.com/harperreed/cadence/lifecycle"
	"github.com/harperreed/cadence/logging"
	"github.com/harperreed/cadence/models"
	"github.com/harperreed/cadence/queue"
	"github.com/harperreed/cadence/ratelimit"
	"github.com/harperreed/cadence/scoring"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	db        *sql.DB
	contacts  *ContactHandlers
	queue     *QueueHandlers
	limits    *LimitHandlers
	dedupe    *DedupeHandlers
	resources *ResourceHandlers
	viz       *VizHandlers
}

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := db.OpenDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	return database
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	database := setupTestDB(t)
	cfg := config.DefaultScoring()
	nop := logging.Nop()

	engine := scoring.NewEngine(database, cfg, scoring.WithLogger(nop))
	machine := lifecycle.NewMachine(database, engine, lifecycle.WithLogger(nop))
	limiter := ratelimit.NewLimiter(db.NewCounterStore(database), cfg.Limits,
		ratelimit.WithLocation(time.UTC), ratelimit.WithLogger(nop))
	generator := queue.NewGenerator(database, cfg, limiter,
		queue.WithLogger(nop), queue.WithLocation(time.UTC), queue.WithPriorityRefresh(engine))
	items := queue.NewService(database, machine, limiter, queue.WithServiceLogger(nop))

	return &testEnv{
		db:        database,
		contacts:  NewContactHandlers(database, machine),
		queue:     NewQueueHandlers(generator, items, time.UTC),
		limits:    NewLimitHandlers(limiter, engine),
		dedupe:    NewDedupeHandlers(dedupe.NewDetector(database, engine, dedupe.WithLogger(nop))),
		resources: NewResourceHandlers(database, limiter, time.UTC),
		viz:       NewVizHandlers(database),
	}
}

func (e *testEnv) addContact(t *testing.T, in AddContactInput) ContactOutput {
	t.Helper()
	_, out, err := e.contacts.AddContact(context.Background(), nil, in)
	require.NoError(t, err)
	return out
}

func TestAddAndFindContacts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	added := env.addContact(t, AddContactInput{
		Name:                   "Ada Lovelace",
		Company:                "Analytical Engines",
		ProfileURL:             "https://example.com/in/ada",
		Seniority:              models.SeniorityVP,
		MutualConnectionsCount: 6,
	})
	assert.Equal(t, models.StatusTarget, added.Status)
	assert.Greater(t, added.PriorityScore, 0.0)

	_, found, err := env.contacts.FindContacts(ctx, nil, FindContactsInput{Query: "Analytical"})
	require.NoError(t, err)
	require.Len(t, found.Contacts, 1)
	assert.Equal(t, added.ID, found.Contacts[0].ID)

	_, _, err = env.contacts.AddContact(ctx, nil, AddContactInput{Name: "Ada Again", ProfileURL: "https://example.com/in/ada"})
	assert.Error(t, err, "profile URL is unique")

	_, _, err = env.contacts.AddContact(ctx, nil, AddContactInput{Name: "  "})
	assert.Error(t, err)
}

func TestLogInteractionAcceptedConnects(t *testing.T) {
	env := newTestEnv(t)
	added := env.addContact(t, AddContactInput{Name: "Grace Hopper"})

	_, out, err := env.contacts.LogInteraction(context.Background(), nil, LogInteractionInput{
		ContactID: added.ID,
		Type:      models.InteractionConnectionAccepted,
	})
	require.NoError(t, err)
	require.NotEmpty(t, out.Transitions)
	assert.Equal(t, models.StatusConnected, out.Transitions[0].ToStatus)
	assert.Equal(t, models.StatusTarget, out.Transitions[0].FromStatus)
	assert.NotEmpty(t, out.InteractionID)
}

func TestLogInteractionValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, _, err := env.contacts.LogInteraction(ctx, nil, LogInteractionInput{ContactID: "not-a-uuid", Type: models.InteractionCall})
	assert.Error(t, err)

	added := env.addContact(t, AddContactInput{Name: "Grace Hopper"})
	_, _, err = env.contacts.LogInteraction(ctx, nil, LogInteractionInput{
		ContactID:  added.ID,
		Type:       models.InteractionCall,
		OccurredAt: "yesterday",
	})
	assert.Error(t, err)
}

func TestSetStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	added := env.addContact(t, AddContactInput{Name: "Grace Hopper"})

	_, out, err := env.contacts.SetStatus(ctx, nil, SetStatusInput{ContactID: added.ID, Status: models.StatusConnected, Reason: "met at conference"})
	require.NoError(t, err)
	assert.True(t, out.Changed)
	require.NotNil(t, out.Transition)
	assert.Equal(t, models.TriggerManual, out.Transition.Trigger)
	assert.NotNil(t, out.RelationshipScore)

	_, out, err = env.contacts.SetStatus(ctx, nil, SetStatusInput{ContactID: added.ID, Status: models.StatusConnected})
	require.NoError(t, err)
	assert.False(t, out.Changed)
}

func TestUpdateContactFieldConflict(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	added := env.addContact(t, AddContactInput{Name: "Grace Hopper", Title: "Rear Admiral"})

	_, out, err := env.contacts.UpdateContactField(ctx, nil, UpdateContactFieldInput{
		ContactID: added.ID, Field: "title", Value: "Commodore", Source: models.SourceLinkedIn,
	})
	require.NoError(t, err)
	assert.Equal(t, db.UpdateConflict, out.Outcome)
	assert.NotEmpty(t, out.ConflictID)

	_, out, err = env.contacts.UpdateContactField(ctx, nil, UpdateContactFieldInput{
		ContactID: added.ID, Field: "company", Value: "US Navy",
	})
	require.NoError(t, err)
	assert.Equal(t, db.UpdateApplied, out.Outcome)
}

func TestQueueGenerateListAndDone(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	added := env.addContact(t, AddContactInput{Name: "Ada Lovelace", Seniority: models.SeniorityDirector})

	_, gen, err := env.queue.GenerateQueue(ctx, nil, GenerateQueueInput{})
	require.NoError(t, err)
	assert.Equal(t, 1, gen.Generated[models.ActionConnectionRequest])
	assert.Empty(t, gen.RateLimitedContacts)

	_, list, err := env.queue.ListQueue(ctx, nil, ListQueueInput{Date: gen.QueueDate})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	item := list.Items[0]
	assert.Equal(t, added.ID, item.ContactID)
	assert.Equal(t, models.QueuePending, item.Status)

	_, approved, err := env.queue.ApproveQueueItem(ctx, nil, QueueItemInput{ID: item.ID})
	require.NoError(t, err)
	assert.Equal(t, models.QueueApproved, approved.Status)

	_, done, err := env.queue.MarkQueueItemDone(ctx, nil, MarkQueueItemDoneInput{ID: item.ID, Notes: "sent with note"})
	require.NoError(t, err)
	assert.Equal(t, models.QueueExecuted, done.Item.Status)
	require.NotNil(t, done.Transition)
	assert.Equal(t, models.StatusRequested, done.Transition.ToStatus)
	assert.NotEmpty(t, done.Interaction.InteractionID)

	_, st, err := env.limits.RateLimitStatus(ctx, nil, RateLimitStatusInput{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.SentToday)
	assert.Equal(t, 19, st.RemainingToday)

	_, _, err = env.queue.MarkQueueItemDone(ctx, nil, MarkQueueItemDoneInput{ID: item.ID})
	assert.Error(t, err, "closed items cannot be executed again")
}

func TestQueueSkipAndSnooze(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addContact(t, AddContactInput{Name: "Ada Lovelace"})
	env.addContact(t, AddContactInput{Name: "Grace Hopper"})

	_, gen, err := env.queue.GenerateQueue(ctx, nil, GenerateQueueInput{})
	require.NoError(t, err)
	_, list, err := env.queue.ListQueue(ctx, nil, ListQueueInput{Date: gen.QueueDate})
	require.NoError(t, err)
	require.Len(t, list.Items, 2)

	_, skipped, err := env.queue.SkipQueueItem(ctx, nil, SkipQueueItemInput{ID: list.Items[0].ID, Reason: "wrong team"})
	require.NoError(t, err)
	assert.Equal(t, models.QueueSkipped, skipped.Status)
	assert.Equal(t, "wrong team", skipped.Result)

	until := time.Now().UTC().AddDate(0, 0, 14).Format(models.QueueDateFormat)
	_, snoozed, err := env.queue.SnoozeQueueItem(ctx, nil, SnoozeQueueItemInput{ID: list.Items[1].ID, Until: until})
	require.NoError(t, err)
	assert.Equal(t, models.QueueSnoozed, snoozed.Status)
	require.NotNil(t, snoozed.SnoozeUntil)
	assert.Equal(t, until, *snoozed.SnoozeUntil)

	_, pending, err := env.queue.ListQueue(ctx, nil, ListQueueInput{Date: gen.QueueDate, Status: models.QueuePending})
	require.NoError(t, err)
	assert.Empty(t, pending.Items)
}

func TestListQueueRejectsBadDate(t *testing.T) {
	env := newTestEnv(t)
	_, _, err := env.queue.ListQueue(context.Background(), nil, ListQueueInput{Date: "06/03/2026"})
	var verr *models.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestEnterCooldownBlocksSending(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, cd, err := env.limits.EnterCooldown(ctx, nil, EnterCooldownInput{Days: 3})
	require.NoError(t, err)
	assert.NotEmpty(t, cd.CooldownUntil)

	_, st, err := env.limits.RateLimitStatus(ctx, nil, RateLimitStatusInput{})
	require.NoError(t, err)
	assert.False(t, st.CanSend)
	assert.Equal(t, ratelimit.ReasonCooldown, st.Reason)
	assert.NotNil(t, st.CooldownUntil)
}

func TestRecalculateScores(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addContact(t, AddContactInput{Name: "Ada Lovelace"})

	_, out, err := env.limits.RecalculateScores(ctx, nil, RecalculateScoresInput{Kind: "priority"})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Processed)
	assert.NotEmpty(t, out.RunID)

	_, _, err = env.limits.RecalculateScores(ctx, nil, RecalculateScoresInput{Kind: "vibes"})
	assert.Error(t, err)
}

func TestDedupeFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.addContact(t, AddContactInput{Name: "Ada Lovelace", Company: "Analytical Engines", Title: "Analyst"})
	env.addContact(t, AddContactInput{Name: "Ada Lovelace", Company: "Analytical Engines"})

	_, scan, err := env.dedupe.FindDuplicates(ctx, nil, FindDuplicatesInput{})
	require.NoError(t, err)
	assert.Equal(t, 2, scan.Scanned)
	assert.Equal(t, 1, scan.Pending)
	assert.Zero(t, scan.AutoMerged, "name and company alone is not enough to merge")

	_, list, err := env.dedupe.ListDuplicates(ctx, nil, ListDuplicatesInput{})
	require.NoError(t, err)
	require.Len(t, list.Pairs, 1)
	assert.Equal(t, models.MatchNameCompany, list.Pairs[0].MatchType)

	_, merged, err := env.dedupe.MergeDuplicates(ctx, nil, MergeDuplicatesInput{PairID: list.Pairs[0].ID, PrimaryID: a.ID})
	require.NoError(t, err)
	assert.Equal(t, a.ID, merged.Primary.ID)
	assert.NotEqual(t, a.ID, merged.SecondaryID)

	_, _, err = env.dedupe.DismissDuplicate(ctx, nil, DismissDuplicateInput{PairID: list.Pairs[0].ID})
	assert.Error(t, err, "merged pair is no longer pending")
}

func readJSON(t *testing.T, env *testEnv, uri string) map[string]any {
	t.Helper()
	res, err := env.resources.ReadResource(context.Background(), &mcp.ReadResourceRequest{
		Params: &mcp.ReadResourceParams{URI: uri},
	})
	require.NoError(t, err)
	require.Len(t, res.Contents, 1)
	assert.Equal(t, "application/json", res.Contents[0].MIMEType)

	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(res.Contents[0].Text), &out))
	return out
}

func TestResources(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	added := env.addContact(t, AddContactInput{Name: "Ada Lovelace"})
	_, _, err := env.queue.GenerateQueue(ctx, nil, GenerateQueueInput{})
	require.NoError(t, err)

	q := readJSON(t, env, "cadence://queue/today")
	assert.Len(t, q["items"], 1)

	limits := readJSON(t, env, "cadence://limits")
	assert.EqualValues(t, 20, limits["daily_limit"])

	funnel := readJSON(t, env, "cadence://funnel")
	assert.NotNil(t, funnel["contacts_by_status"])

	contact := readJSON(t, env, "cadence://contacts/"+added.ID)
	history, ok := contact["status_history"].([]any)
	require.True(t, ok)
	assert.Len(t, history, 1, "creation is recorded")

	_, err = env.resources.ReadResource(ctx, &mcp.ReadResourceRequest{Params: &mcp.ReadResourceParams{URI: "crm://contacts"}})
	assert.Error(t, err)
	_, err = env.resources.ReadResource(ctx, &mcp.ReadResourceRequest{Params: &mcp.ReadResourceParams{URI: "cadence://deals"}})
	assert.Error(t, err)
}

func TestFunnelGraph(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	added := env.addContact(t, AddContactInput{Name: "Ada Lovelace"})
	_, _, err := env.contacts.SetStatus(ctx, nil, SetStatusInput{ContactID: added.ID, Status: models.StatusConnected})
	require.NoError(t, err)
	_, _, err = env.contacts.SetStatus(ctx, nil, SetStatusInput{ContactID: added.ID, Status: models.StatusTarget})
	require.NoError(t, err)

	_, out, err := env.viz.FunnelGraph(ctx, nil, FunnelGraphInput{})
	require.NoError(t, err)
	assert.Contains(t, out.DOTSource, "digraph")
	assert.Equal(t, 3, out.Transitions)
	assert.Equal(t, 1, out.Demotions)
	assert.Equal(t, 1, out.Contacts[models.StatusTarget])
}
