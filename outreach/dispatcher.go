// ABOUTME: Dispatch loop that hands approved connection requests to the execution collaborator
// ABOUTME: Maps send outcomes to queue actions, cooling down and halting on soft-ban signals
package outreach

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/cadence/db"
	"github.com/harperreed/cadence/models"
	"github.com/harperreed/cadence/queue"
	"github.com/harperreed/cadence/ratelimit"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SendRequest is what the execution side needs to send one connection request.
type SendRequest struct {
	QueueItemID uuid.UUID `json:"queue_item_id"`
	ContactID   uuid.UUID `json:"contact_id"`
	ProfileURL  string    `json:"profile_url"`
	Message     string    `json:"message,omitempty"`
}

// SendResponse is the execution side's report. Text is scanned for soft-ban wording.
type SendResponse struct {
	Text string `json:"text,omitempty"`
}

// Sender performs the actual send. Returning models.ErrSoftBan halts the run.
type Sender interface {
	Send(ctx context.Context, req SendRequest) (SendResponse, error)
}

// Gate is the part of the rate limiter the dispatcher consults.
type Gate interface {
	CanSend(ctx context.Context) (ratelimit.Decision, error)
	EnterCooldown(ctx context.Context, d time.Duration) (time.Time, error)
}

// Waiter paces consecutive sends.
type Waiter interface {
	Wait(ctx context.Context) error
}

// RunOptions tune one dispatch run.
type RunOptions struct {
	IncludePending bool
	// Max stops after this many sends; zero means no limit beyond the rate limiter.
	Max int
}

// RunSummary is the structured result of a dispatch run.
type RunSummary struct {
	QueueDate     string     `json:"queue_date"`
	Sent          int        `json:"sent"`
	Failed        int        `json:"failed"`
	Skipped       int        `json:"skipped"`
	Halted        bool       `json:"halted"`
	HaltReason    string     `json:"halt_reason,omitempty"`
	WaitMs        int64      `json:"wait_ms,omitempty"`
	CooldownUntil *time.Time `json:"cooldown_until,omitempty"`
}

type Dispatcher struct {
	items  *queue.Service
	db     db.DBTX
	sender Sender
	gate   Gate
	pacer  Waiter
	log    zerolog.Logger
}

type Option func(*Dispatcher)

func WithLogger(l zerolog.Logger) Option {
	return func(d *Dispatcher) { d.log = l }
}

func NewDispatcher(q db.DBTX, items *queue.Service, sender Sender, gate Gate, pacer Waiter, opts ...Option) *Dispatcher {
	d := &Dispatcher{items: items, db: q, sender: sender, gate: gate, pacer: pacer, log: log.Logger}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run sends the date's approved connection requests (and pending ones when asked) until
// the queue is empty, the limiter refuses, or a soft ban is detected. Refusals and soft bans
// halt the run without an error; only storage failures and cancellation return one.
func (d *Dispatcher) Run(ctx context.Context, date string, opts RunOptions) (*RunSummary, error) {
	statuses := []string{models.QueueApproved}
	if opts.IncludePending {
		statuses = append(statuses, models.QueuePending)
	}

	var items []models.QueueItem
	for _, status := range statuses {
		batch, err := d.items.List(ctx, date, status)
		if err != nil {
			return nil, err
		}
		for _, item := range batch {
			if item.ActionType == models.ActionConnectionRequest {
				items = append(items, item)
			}
		}
	}

	summary := &RunSummary{QueueDate: date}
	for _, item := range items {
		if opts.Max > 0 && summary.Sent >= opts.Max {
			break
		}
		halt, err := d.dispatch(ctx, item, summary)
		if err != nil {
			return summary, err
		}
		if halt {
			break
		}
	}

	d.log.Info().
		Str("queue_date", date).
		Int("sent", summary.Sent).
		Int("failed", summary.Failed).
		Int("skipped", summary.Skipped).
		Bool("halted", summary.Halted).
		Str("halt_reason", summary.HaltReason).
		Msg("dispatch run finished")
	return summary, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, item models.QueueItem, summary *RunSummary) (bool, error) {
	logger := d.log.With().Str("queue_item_id", item.ID.String()).Str("contact_id", item.ContactID.String()).Logger()

	decision, err := d.gate.CanSend(ctx)
	if err != nil {
		return false, err
	}
	if !decision.Allowed {
		summary.Halted = true
		summary.HaltReason = decision.Reason
		summary.WaitMs = decision.WaitMs
		return true, nil
	}

	contact, err := db.GetContact(ctx, d.db, item.ContactID)
	if err != nil {
		return false, fmt.Errorf("failed to load contact: %w", err)
	}
	if contact == nil || contact.ProfileURL == "" {
		if _, err := d.items.MarkSkipped(ctx, item.ID, "no profile url"); err != nil && !models.IsNotFound(err) {
			return false, err
		}
		summary.Skipped++
		return false, nil
	}

	if err := d.pacer.Wait(ctx); err != nil {
		return false, err
	}

	resp, sendErr := d.sender.Send(ctx, SendRequest{
		QueueItemID: item.ID,
		ContactID:   item.ContactID,
		ProfileURL:  contact.ProfileURL,
		Message:     item.Message,
	})

	if rl, ok := models.AsRateLimited(sendErr); ok {
		summary.Halted = true
		summary.HaltReason = rl.Reason
		summary.WaitMs = rl.WaitMs
		return true, nil
	}

	if errors.Is(sendErr, models.ErrSoftBan) || DetectSoftBan(resp.Text) || (sendErr != nil && DetectSoftBan(sendErr.Error())) {
		until, err := d.gate.EnterCooldown(ctx, 0)
		if err != nil {
			return false, err
		}
		reason := "soft ban detected"
		if resp.Text != "" {
			reason += ": " + resp.Text
		}
		if _, err := d.items.MarkSkipped(ctx, item.ID, reason); err != nil {
			return false, err
		}
		summary.Skipped++
		summary.Halted = true
		summary.HaltReason = ratelimit.ReasonCooldown
		summary.CooldownUntil = &until
		logger.Warn().Time("cooldown_until", until).Msg("soft ban detected, halting run")
		return true, nil
	}

	if sendErr != nil {
		if _, err := d.items.MarkSkipped(ctx, item.ID, "send failed: "+sendErr.Error()); err != nil {
			return false, err
		}
		summary.Failed++
		logger.Warn().Err(sendErr).Msg("send failed")
		return false, nil
	}

	if _, err := d.items.MarkExecutedFrom(ctx, item.ID, resp.Text, models.SourceLinkedIn); err != nil {
		return false, err
	}
	summary.Sent++
	logger.Info().Msg("connection request sent")
	return false, nil
}

var softBanPhrases = []string{
	"weekly invitation limit",
	"invitation limit reached",
	"unusual activity",
	"temporarily restricted",
	"account has been restricted",
	"account restricted",
	"too many requests",
	"security verification",
	"verify you're a human",
	"captcha",
}

// DetectSoftBan reports whether execution-side text indicates the channel is throttled.
func DetectSoftBan(text string) bool {
	if text == "" {
		return false
	}
	lower := strings.ToLower(text)
	for _, phrase := range softBanPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
