// ABOUTME: Tests for queue item actions
// ABOUTME: Executing a connection request advances the contact, logs one interaction and counts a send
package queue

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/cadence/config"
	"github.com/harperreed/cadence/db"
	"github.com/harperreed/cadence/lifecycle"
	"github.com/harperreed/cadence/logging"
	"github.com/harperreed/cadence/models"
	"github.com/harperreed/cadence/ratelimit"
	"github.com/harperreed/cadence/scoring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sendCounter struct{ n int }

func (s *sendCounter) RecordSend(context.Context) error {
	s.n++
	return nil
}

func newService(database *sql.DB, sends SendRecorder) *Service {
	cfg := config.DefaultScoring()
	engine := scoring.NewEngine(database, cfg, scoring.WithLogger(logging.Nop()))
	machine := lifecycle.NewMachine(database, engine, lifecycle.WithLogger(logging.Nop()))
	return NewService(database, machine, sends, WithServiceLogger(logging.Nop()))
}

func queueItem(t *testing.T, database *sql.DB, contactID uuid.UUID, action string) *models.QueueItem {
	t.Helper()
	item := &models.QueueItem{ContactID: contactID, QueueDate: date, ActionType: action}
	inserted, err := db.InsertQueueItem(context.Background(), database, item)
	require.NoError(t, err)
	require.True(t, inserted)
	return item
}

func TestMarkExecutedConnectionRequest(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()
	sends := &sendCounter{}
	s := newService(database, sends)

	c := target(t, database, "Ada", 7.7)
	item := queueItem(t, database, c.ID, models.ActionConnectionRequest)

	res, err := s.MarkExecuted(ctx, item.ID, "sent with note")
	require.NoError(t, err)
	assert.Equal(t, models.QueueExecuted, res.Item.Status)
	assert.Equal(t, "sent with note", res.Item.Result)
	require.NotNil(t, res.Item.ExecutedAt)
	require.NotNil(t, res.Transition)
	assert.Equal(t, models.StatusRequested, res.Transition.ToStatus)
	assert.Equal(t, 1, res.Log.Score.Score)

	found, err := db.MustGetContact(ctx, database, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRequested, found.Status)
	assert.Equal(t, 1, found.RelationshipScore)

	n, err := db.CountInteractions(ctx, database, c.ID, models.InteractionConnectionSent)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, sends.n)

	_, err = s.MarkExecuted(ctx, item.ID, "")
	assert.True(t, models.IsValidation(err), "executed items are closed")
}

func TestMarkExecutedCountsAgainstLimiter(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()

	limits := config.DefaultScoring().Limits
	limits.Daily = 1
	limiter := ratelimit.NewLimiter(db.NewCounterStore(database), limits, ratelimit.WithLogger(logging.Nop()))
	s := newService(database, limiter)

	c := target(t, database, "Ada", 5)
	item := queueItem(t, database, c.ID, models.ActionConnectionRequest)
	_, err := s.MarkExecuted(ctx, item.ID, "")
	require.NoError(t, err)

	d, err := limiter.CanSend(ctx)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ratelimit.ReasonDailyLimit, d.Reason)
}

func TestMarkExecutedFollowUpLeavesStatus(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()
	sends := &sendCounter{}
	s := newService(database, sends)

	c := connected(t, database, "Grace", 20, time.Now().AddDate(0, 0, -40))
	item := queueItem(t, database, c.ID, models.ActionFollowUp)

	res, err := s.MarkExecuted(ctx, item.ID, "")
	require.NoError(t, err)
	assert.Nil(t, res.Transition)
	assert.Equal(t, models.InteractionMessageSent, res.Log.Interaction.Type)
	assert.Equal(t, 0, sends.n, "only connection requests are rate limited")

	found, err := db.MustGetContact(ctx, database, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConnected, found.Status)
}

func TestApproveSkipSnooze(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()
	s := newService(database, nil)
	s.now = func() time.Time { return day }

	a := target(t, database, "A", 1)
	b := target(t, database, "B", 1)
	c := target(t, database, "C", 1)
	ia := queueItem(t, database, a.ID, models.ActionConnectionRequest)
	ib := queueItem(t, database, b.ID, models.ActionConnectionRequest)
	ic := queueItem(t, database, c.ID, models.ActionConnectionRequest)

	approved, err := s.Approve(ctx, ia.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueApproved, approved.Status)
	_, err = s.Approve(ctx, ia.ID)
	assert.True(t, models.IsValidation(err))

	skipped, err := s.MarkSkipped(ctx, ib.ID, "not relevant")
	require.NoError(t, err)
	assert.Equal(t, models.QueueSkipped, skipped.Status)
	assert.Equal(t, "not relevant", skipped.Result)

	_, err = s.Snooze(ctx, ic.ID, date)
	assert.True(t, models.IsValidation(err), "snooze must be in the future")
	snoozed, err := s.Snooze(ctx, ic.ID, "2026-06-10")
	require.NoError(t, err)
	assert.Equal(t, models.QueueSnoozed, snoozed.Status)
	require.NotNil(t, snoozed.SnoozeUntil)
	assert.Equal(t, "2026-06-10", *snoozed.SnoozeUntil)

	_, err = s.MarkSkipped(ctx, uuid.New(), "")
	assert.True(t, models.IsNotFound(err))

	pending, err := s.List(ctx, date, models.QueueApproved)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, ia.ID, pending[0].ID)

	_, err = s.List(ctx, "June 3", "")
	assert.True(t, models.IsValidation(err))
}
