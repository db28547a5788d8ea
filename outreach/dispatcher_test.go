// ABOUTME: Tests for the dispatch loop and soft-ban detection
// ABOUTME: Drives a scripted sender against a real queue, limiter and database
package outreach

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/cadence/config"
	"github.com/harperreed/cadence/db"
	"github.com/harperreed/cadence/lifecycle"
	"github.com/harperreed/cadence/logging"
	"github.com/harperreed/cadence/models"
	"github.com/harperreed/cadence/queue"
	"github.com/harperreed/cadence/ratelimit"
	"github.com/harperreed/cadence/scoring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const date = "2026-06-03"

type scriptedSender struct {
	calls     []SendRequest
	responses map[string]func() (SendResponse, error)
}

func (s *scriptedSender) Send(_ context.Context, req SendRequest) (SendResponse, error) {
	s.calls = append(s.calls, req)
	if fn, ok := s.responses[req.ProfileURL]; ok {
		return fn()
	}
	return SendResponse{Text: "ok"}, nil
}

type harness struct {
	db         *sql.DB
	limiter    *ratelimit.Limiter
	dispatcher *Dispatcher
	sender     *scriptedSender
}

func newHarness(t *testing.T, limits config.Limits) *harness {
	t.Helper()
	database, err := db.OpenDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	cfg := config.DefaultScoring()
	limiter := ratelimit.NewLimiter(db.NewCounterStore(database), limits, ratelimit.WithLogger(logging.Nop()))
	engine := scoring.NewEngine(database, cfg, scoring.WithLogger(logging.Nop()))
	machine := lifecycle.NewMachine(database, engine, lifecycle.WithLogger(logging.Nop()))
	items := queue.NewService(database, machine, limiter, queue.WithServiceLogger(logging.Nop()))

	sender := &scriptedSender{responses: map[string]func() (SendResponse, error){}}
	pacer := ratelimit.NewPacer(config.Limits{})
	return &harness{
		db:         database,
		limiter:    limiter,
		sender:     sender,
		dispatcher: NewDispatcher(database, items, sender, limiter, pacer, WithLogger(logging.Nop())),
	}
}

func (h *harness) approved(t *testing.T, profileURL string) *models.QueueItem {
	t.Helper()
	ctx := context.Background()
	c := &models.Contact{Name: "Contact " + profileURL, ProfileURL: profileURL}
	require.NoError(t, db.CreateContact(ctx, h.db, c))
	item := &models.QueueItem{ContactID: c.ID, QueueDate: date, ActionType: models.ActionConnectionRequest, Status: models.QueueApproved}
	_, err := db.InsertQueueItem(ctx, h.db, item)
	require.NoError(t, err)
	return item
}

func (h *harness) status(t *testing.T, id uuid.UUID) string {
	t.Helper()
	item, err := db.GetQueueItem(context.Background(), h.db, id)
	require.NoError(t, err)
	return item.Status
}

func TestRunSendsApprovedRequests(t *testing.T) {
	h := newHarness(t, config.DefaultScoring().Limits)
	ctx := context.Background()

	a := h.approved(t, "linkedin.com/in/a")
	b := h.approved(t, "linkedin.com/in/b")

	summary, err := h.dispatcher.Run(ctx, date, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Sent)
	assert.False(t, summary.Halted)
	assert.Len(t, h.sender.calls, 2)
	assert.Equal(t, models.QueueExecuted, h.status(t, a.ID))
	assert.Equal(t, models.QueueExecuted, h.status(t, b.ID))

	st, err := h.limiter.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), st.SentToday)
}

func TestRunSkipsPendingUnlessAsked(t *testing.T) {
	h := newHarness(t, config.DefaultScoring().Limits)
	ctx := context.Background()

	c := &models.Contact{Name: "Pending", ProfileURL: "linkedin.com/in/p"}
	require.NoError(t, db.CreateContact(ctx, h.db, c))
	_, err := db.InsertQueueItem(ctx, h.db, &models.QueueItem{ContactID: c.ID, QueueDate: date, ActionType: models.ActionConnectionRequest})
	require.NoError(t, err)

	summary, err := h.dispatcher.Run(ctx, date, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Sent)

	summary, err = h.dispatcher.Run(ctx, date, RunOptions{IncludePending: true})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Sent)
}

func TestRunHaltsAtDailyLimit(t *testing.T) {
	limits := config.DefaultScoring().Limits
	limits.Daily = 1
	h := newHarness(t, limits)

	h.approved(t, "linkedin.com/in/a")
	second := h.approved(t, "linkedin.com/in/b")

	summary, err := h.dispatcher.Run(context.Background(), date, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Sent)
	assert.True(t, summary.Halted)
	assert.Equal(t, ratelimit.ReasonDailyLimit, summary.HaltReason)
	assert.Positive(t, summary.WaitMs)
	assert.Equal(t, models.QueueApproved, h.status(t, second.ID), "left for the next run")
}

func TestRunSoftBanEntersCooldownAndHalts(t *testing.T) {
	h := newHarness(t, config.DefaultScoring().Limits)
	ctx := context.Background()

	banned := h.approved(t, "linkedin.com/in/a")
	untouched := h.approved(t, "linkedin.com/in/b")
	h.sender.responses["linkedin.com/in/a"] = func() (SendResponse, error) {
		return SendResponse{Text: "You've reached the weekly invitation limit"}, nil
	}

	summary, err := h.dispatcher.Run(ctx, date, RunOptions{})
	require.NoError(t, err)
	assert.True(t, summary.Halted)
	assert.Equal(t, ratelimit.ReasonCooldown, summary.HaltReason)
	require.NotNil(t, summary.CooldownUntil)
	assert.Equal(t, 0, summary.Sent)
	assert.Equal(t, 1, summary.Skipped)
	assert.Len(t, h.sender.calls, 1)

	assert.Equal(t, models.QueueSkipped, h.status(t, banned.ID))
	assert.Equal(t, models.QueueApproved, h.status(t, untouched.ID))

	d, err := h.limiter.CanSend(ctx)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ratelimit.ReasonCooldown, d.Reason)
}

func TestRunSoftBanSentinel(t *testing.T) {
	h := newHarness(t, config.DefaultScoring().Limits)
	h.approved(t, "linkedin.com/in/a")
	h.sender.responses["linkedin.com/in/a"] = func() (SendResponse, error) {
		return SendResponse{}, models.ErrSoftBan
	}

	summary, err := h.dispatcher.Run(context.Background(), date, RunOptions{})
	require.NoError(t, err)
	assert.True(t, summary.Halted)
	assert.Equal(t, ratelimit.ReasonCooldown, summary.HaltReason)
}

func TestRunFailureContinues(t *testing.T) {
	h := newHarness(t, config.DefaultScoring().Limits)

	failed := h.approved(t, "linkedin.com/in/a")
	h.approved(t, "linkedin.com/in/b")
	h.sender.responses["linkedin.com/in/a"] = func() (SendResponse, error) {
		return SendResponse{}, errors.New("profile not found")
	}

	summary, err := h.dispatcher.Run(context.Background(), date, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Sent)
	assert.False(t, summary.Halted)

	item, err := db.GetQueueItem(context.Background(), h.db, failed.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueSkipped, item.Status)
	assert.Contains(t, item.Result, "profile not found")
}

func TestRunRateLimitedBySender(t *testing.T) {
	h := newHarness(t, config.DefaultScoring().Limits)
	h.approved(t, "linkedin.com/in/a")
	h.sender.responses["linkedin.com/in/a"] = func() (SendResponse, error) {
		return SendResponse{}, &models.RateLimitedError{Reason: "busy", WaitMs: int64(time.Minute / time.Millisecond)}
	}

	summary, err := h.dispatcher.Run(context.Background(), date, RunOptions{})
	require.NoError(t, err)
	assert.True(t, summary.Halted)
	assert.Equal(t, "busy", summary.HaltReason)
	assert.Equal(t, int64(60000), summary.WaitMs)
}

func TestRunSkipsContactsWithoutProfileURL(t *testing.T) {
	h := newHarness(t, config.DefaultScoring().Limits)
	item := h.approved(t, "")

	summary, err := h.dispatcher.Run(context.Background(), date, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)
	assert.Empty(t, h.sender.calls)
	assert.Equal(t, models.QueueSkipped, h.status(t, item.ID))
}

func TestDetectSoftBan(t *testing.T) {
	tests := []struct {
		text     string
		expected bool
	}{
		{"Invitation sent", false},
		{"", false},
		{"We've noticed UNUSUAL ACTIVITY on your account", true},
		{"Your account is temporarily restricted", true},
		{"Please complete this security verification", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, DetectSoftBan(tt.text), tt.text)
	}
}
