// ABOUTME: Queue item actions: approve, execute, skip, snooze and list
// ABOUTME: Executing an item logs the matching interaction and advances the contact in one transaction
package queue

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/cadence/db"
	"github.com/harperreed/cadence/lifecycle"
	"github.com/harperreed/cadence/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SendRecorder counts a completed send against the rate limits.
type SendRecorder interface {
	RecordSend(ctx context.Context) error
}

type Service struct {
	db      *sql.DB
	machine *lifecycle.Machine
	sends   SendRecorder
	now     func() time.Time
	log     zerolog.Logger
}

type ServiceOption func(*Service)

func WithServiceLogger(l zerolog.Logger) ServiceOption {
	return func(s *Service) { s.log = l }
}

func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

func NewService(database *sql.DB, machine *lifecycle.Machine, sends SendRecorder, opts ...ServiceOption) *Service {
	s := &Service{db: database, machine: machine, sends: sends, now: time.Now, log: log.Logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ExecuteResult carries the effects of completing a queue item.
type ExecuteResult struct {
	Item       models.QueueItem      `json:"item"`
	Log        *lifecycle.LogResult  `json:"log"`
	Transition *models.StatusHistory `json:"transition,omitempty"`
}

// List returns a date's items, optionally only those in status.
func (s *Service) List(ctx context.Context, date, status string) ([]models.QueueItem, error) {
	if _, err := time.Parse(models.QueueDateFormat, date); err != nil {
		return nil, models.NewValidationError("date", "expected YYYY-MM-DD, got %q", date)
	}
	if status == "" {
		return db.ListQueueItems(ctx, s.db, date)
	}
	return db.ListQueueItems(ctx, s.db, date, status)
}

// Approve marks a pending item as reviewed and ready to send.
func (s *Service) Approve(ctx context.Context, id uuid.UUID) (*models.QueueItem, error) {
	var out *models.QueueItem
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		item, err := openItem(ctx, tx, id)
		if err != nil {
			return err
		}
		if item.Status != models.QueuePending {
			return models.NewValidationError("status", "only pending items can be approved, item is %s", item.Status)
		}
		if err := db.UpdateQueueItemStatus(ctx, tx, id, models.QueueApproved, "", nil, nil); err != nil {
			return err
		}
		out, err = db.GetQueueItem(ctx, tx, id)
		return err
	})
	return out, err
}

// MarkExecuted records a manually completed action.
func (s *Service) MarkExecuted(ctx context.Context, id uuid.UUID, notes string) (*ExecuteResult, error) {
	return s.MarkExecutedFrom(ctx, id, notes, models.SourceManual)
}

// MarkExecutedFrom completes an item with the interaction attributed to source. A connection
// request logs connection_request_sent and advances target to requested; follow-ups and
// re-engagements log message_sent. The score is recomputed either way. Connection requests
// are counted against the rate limits after commit.
func (s *Service) MarkExecutedFrom(ctx context.Context, id uuid.UUID, notes, source string) (*ExecuteResult, error) {
	now := s.now()
	res := &ExecuteResult{}

	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		item, err := openItem(ctx, tx, id)
		if err != nil {
			return err
		}

		interaction := models.InteractionMessageSent
		if item.ActionType == models.ActionConnectionRequest {
			interaction = models.InteractionConnectionSent
			res.Transition, err = s.machine.AdvanceToRequested(ctx, tx, item.ContactID)
			if err != nil {
				return err
			}
		}

		res.Log, err = s.machine.LogInteractionTx(ctx, tx, lifecycle.LogRequest{
			ContactID:  item.ContactID,
			Type:       interaction,
			Source:     source,
			OccurredAt: now,
			Metadata:   notes,
		})
		if err != nil {
			return err
		}

		if err := db.UpdateQueueItemStatus(ctx, tx, id, models.QueueExecuted, notes, &now, nil); err != nil {
			return err
		}
		updated, err := db.GetQueueItem(ctx, tx, id)
		if err != nil {
			return err
		}
		res.Item = *updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	if res.Item.ActionType == models.ActionConnectionRequest && s.sends != nil {
		if err := s.sends.RecordSend(ctx); err != nil {
			s.log.Error().Err(err).Str("queue_item_id", id.String()).Msg("failed to count send")
		}
	}

	s.log.Info().
		Str("queue_item_id", id.String()).
		Str("contact_id", res.Item.ContactID.String()).
		Str("action", res.Item.ActionType).
		Msg("queue item executed")
	return res, nil
}

// MarkSkipped closes an item without acting on it.
func (s *Service) MarkSkipped(ctx context.Context, id uuid.UUID, reason string) (*models.QueueItem, error) {
	return s.close(ctx, id, models.QueueSkipped, reason, nil)
}

// Snooze hides the item and keeps the contact out of the queue until the given date.
func (s *Service) Snooze(ctx context.Context, id uuid.UUID, until string) (*models.QueueItem, error) {
	day, err := time.Parse(models.QueueDateFormat, until)
	if err != nil {
		return nil, models.NewValidationError("until", "expected YYYY-MM-DD, got %q", until)
	}
	today := s.now().Format(models.QueueDateFormat)
	if day.Format(models.QueueDateFormat) <= today {
		return nil, models.NewValidationError("until", "must be after today")
	}
	return s.close(ctx, id, models.QueueSnoozed, "", &until)
}

func (s *Service) close(ctx context.Context, id uuid.UUID, status, result string, snoozeUntil *string) (*models.QueueItem, error) {
	var out *models.QueueItem
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := openItem(ctx, tx, id); err != nil {
			return err
		}
		if err := db.UpdateQueueItemStatus(ctx, tx, id, status, result, nil, snoozeUntil); err != nil {
			return err
		}
		var err error
		out, err = db.GetQueueItem(ctx, tx, id)
		return err
	})
	return out, err
}

// openItem loads an item that can still be acted on: pending or approved, with an active contact.
func openItem(ctx context.Context, q db.DBTX, id uuid.UUID) (*models.QueueItem, error) {
	item, err := db.GetQueueItem(ctx, q, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load queue item: %w", err)
	}
	if item == nil {
		return nil, &models.NotFoundError{Entity: "queue item", ID: id.String()}
	}
	if item.Status != models.QueuePending && item.Status != models.QueueApproved {
		return nil, models.NewValidationError("status", "item is already %s", item.Status)
	}
	if _, err := db.MustGetContact(ctx, q, item.ContactID); err != nil {
		return nil, err
	}
	return item, nil
}
