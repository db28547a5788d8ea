// ABOUTME: Contact lifecycle state machine and interaction ledger entry point
// ABOUTME: Every status change writes history atomically with the status field and any score effects
package lifecycle

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/cadence/db"
	"github.com/harperreed/cadence/metrics"
	"github.com/harperreed/cadence/models"
	"github.com/harperreed/cadence/scoring"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Machine applies interactions and status transitions.
type Machine struct {
	db      *sql.DB
	engine  *scoring.Engine
	log     zerolog.Logger
	metrics *metrics.Manager
	now     func() time.Time
}

// Option configures a Machine.
type Option func(*Machine)

func WithLogger(l zerolog.Logger) Option {
	return func(m *Machine) { m.log = l }
}

func WithMetrics(mm *metrics.Manager) Option {
	return func(m *Machine) { m.metrics = mm }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

func NewMachine(database *sql.DB, engine *scoring.Engine, opts ...Option) *Machine {
	m := &Machine{db: database, engine: engine, log: log.Logger, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// LogRequest describes one interaction to append to the ledger.
type LogRequest struct {
	ContactID  uuid.UUID
	Type       string
	Source     string
	OccurredAt time.Time
	Metadata   string
}

// LogResult carries every effect of logging an interaction.
type LogResult struct {
	Interaction models.Interaction          `json:"interaction"`
	Score       *scoring.RelationshipResult `json:"score"`
	Transitions []models.StatusHistory      `json:"transitions,omitempty"`
}

// TransitionResult carries a status change and, when it entered connected, the new score.
type TransitionResult struct {
	History models.StatusHistory        `json:"history"`
	Score   *scoring.RelationshipResult `json:"score,omitempty"`
}

func (m *Machine) validateLog(req *LogRequest) error {
	if req.ContactID == uuid.Nil {
		return models.NewValidationError("contact_id", "is required")
	}
	if !models.ValidInteractionType(req.Type) {
		return models.NewValidationError("type", "unknown interaction type %q", req.Type)
	}
	if req.Source == "" {
		req.Source = models.SourceManual
	}
	if !models.ValidSource(req.Source) {
		return models.NewValidationError("source", "unknown source %q", req.Source)
	}
	if req.OccurredAt.IsZero() {
		req.OccurredAt = m.now()
	}
	return nil
}

// LogInteraction appends an interaction and applies its effects in one transaction.
func (m *Machine) LogInteraction(ctx context.Context, req LogRequest) (*LogResult, error) {
	if err := m.validateLog(&req); err != nil {
		return nil, err
	}
	var res *LogResult
	err := db.WithTx(ctx, m.db, func(tx *sql.Tx) error {
		var err error
		res, err = m.LogInteractionTx(ctx, tx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// LogInteractionTx is LogInteraction inside the caller's transaction. An accepted connection
// request moves target or requested contacts to connected, then the relationship score is
// recomputed and threshold promotions are applied.
func (m *Machine) LogInteractionTx(ctx context.Context, q db.DBTX, req LogRequest) (*LogResult, error) {
	if err := m.validateLog(&req); err != nil {
		return nil, err
	}

	contact, err := db.MustGetContact(ctx, q, req.ContactID)
	if err != nil {
		return nil, err
	}

	in := models.Interaction{
		ContactID:   contact.ID,
		Type:        req.Type,
		Source:      req.Source,
		OccurredAt:  req.OccurredAt,
		PointsValue: m.engine.Config().PointsFor(req.Type),
		Metadata:    req.Metadata,
	}
	if err := db.CreateInteraction(ctx, q, &in); err != nil {
		return nil, fmt.Errorf("failed to create interaction: %w", err)
	}
	if err := db.TouchLastInteraction(ctx, q, contact.ID, in.OccurredAt); err != nil {
		return nil, fmt.Errorf("failed to update last interaction: %w", err)
	}

	res := &LogResult{Interaction: in}

	if req.Type == models.InteractionConnectionAccepted &&
		(contact.Status == models.StatusTarget || contact.Status == models.StatusRequested) {
		h, err := m.changeStatus(ctx, q, contact, models.StatusConnected, models.TriggerAutomatedPromotion, "connection request accepted")
		if err != nil {
			return nil, err
		}
		res.Transitions = append(res.Transitions, *h)
	}

	res.Score, err = m.engine.RecalculateRelationship(ctx, q, contact.ID, m.now())
	if err != nil {
		return nil, err
	}
	contact.RelationshipScore = res.Score.Score

	promoted, err := m.Promote(ctx, q, contact)
	if err != nil {
		return nil, err
	}
	res.Transitions = append(res.Transitions, promoted...)

	m.log.Debug().
		Str("contact_id", contact.ID.String()).
		Str("type", in.Type).
		Int("score", res.Score.Score).
		Msg("interaction logged")
	return res, nil
}

// Transition moves a contact to a new status. Moving to the current status is a no-op
// that returns (nil, nil).
func (m *Machine) Transition(ctx context.Context, contactID uuid.UUID, to, trigger, reason string) (*TransitionResult, error) {
	var res *TransitionResult
	err := db.WithTx(ctx, m.db, func(tx *sql.Tx) error {
		var err error
		res, err = m.TransitionTx(ctx, tx, contactID, to, trigger, reason)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// TransitionTx is Transition inside the caller's transaction. Entering connected also logs
// an accepted connection request and recomputes the relationship score.
func (m *Machine) TransitionTx(ctx context.Context, q db.DBTX, contactID uuid.UUID, to, trigger, reason string) (*TransitionResult, error) {
	if !models.ValidStatus(to) {
		return nil, models.NewValidationError("status", "unknown status %q", to)
	}
	if !validTrigger(trigger) {
		return nil, models.NewValidationError("trigger", "unknown trigger %q", trigger)
	}

	contact, err := db.MustGetContact(ctx, q, contactID)
	if err != nil {
		return nil, err
	}
	if contact.Status == to {
		return nil, nil
	}

	h, err := m.changeStatus(ctx, q, contact, to, trigger, reason)
	if err != nil {
		return nil, err
	}
	res := &TransitionResult{History: *h}

	if to == models.StatusConnected {
		now := m.now()
		in := models.Interaction{
			ContactID:   contact.ID,
			Type:        models.InteractionConnectionAccepted,
			Source:      models.SourceInferred,
			OccurredAt:  now,
			PointsValue: m.engine.Config().PointsFor(models.InteractionConnectionAccepted),
		}
		if err := db.CreateInteraction(ctx, q, &in); err != nil {
			return nil, fmt.Errorf("failed to create interaction: %w", err)
		}
		if err := db.TouchLastInteraction(ctx, q, contact.ID, now); err != nil {
			return nil, fmt.Errorf("failed to update last interaction: %w", err)
		}
		res.Score, err = m.engine.RecalculateRelationship(ctx, q, contact.ID, now)
		if err != nil {
			return nil, err
		}
	}
	return res, nil
}

// AdvanceToRequested moves a target contact to requested. Contacts already past target
// are left alone and nil is returned.
func (m *Machine) AdvanceToRequested(ctx context.Context, q db.DBTX, contactID uuid.UUID) (*models.StatusHistory, error) {
	contact, err := db.MustGetContact(ctx, q, contactID)
	if err != nil {
		return nil, err
	}
	if contact.Status != models.StatusTarget {
		return nil, nil
	}
	return m.changeStatus(ctx, q, contact, models.StatusRequested, models.TriggerAutomatedPromotion, "connection request sent")
}

// Promote applies the configured score thresholds: connected to engaged, then engaged to
// relationship. A zero threshold disables that edge.
func (m *Machine) Promote(ctx context.Context, q db.DBTX, contact *models.Contact) ([]models.StatusHistory, error) {
	p := m.engine.Config().Promotion
	var out []models.StatusHistory

	if contact.Status == models.StatusConnected && p.EngagedScore > 0 && contact.RelationshipScore >= p.EngagedScore {
		h, err := m.changeStatus(ctx, q, contact, models.StatusEngaged, models.TriggerAutomatedPromotion,
			fmt.Sprintf("score %d reached %d", contact.RelationshipScore, p.EngagedScore))
		if err != nil {
			return nil, err
		}
		out = append(out, *h)
	}
	if contact.Status == models.StatusEngaged && p.RelationshipScore > 0 && contact.RelationshipScore >= p.RelationshipScore {
		h, err := m.changeStatus(ctx, q, contact, models.StatusRelationship, models.TriggerAutomatedPromotion,
			fmt.Sprintf("score %d reached %d", contact.RelationshipScore, p.RelationshipScore))
		if err != nil {
			return nil, err
		}
		out = append(out, *h)
	}
	return out, nil
}

// changeStatus writes the status field and its history row; contact is updated in place.
func (m *Machine) changeStatus(ctx context.Context, q db.DBTX, contact *models.Contact, to, trigger, reason string) (*models.StatusHistory, error) {
	from := contact.Status
	if err := db.SetContactStatus(ctx, q, contact.ID, to); err != nil {
		return nil, fmt.Errorf("failed to update status: %w", err)
	}
	h := &models.StatusHistory{
		ContactID:  contact.ID,
		FromStatus: &from,
		ToStatus:   to,
		Trigger:    trigger,
		Reason:     reason,
		CreatedAt:  m.now().UTC(),
	}
	if err := db.CreateStatusHistory(ctx, q, h); err != nil {
		return nil, fmt.Errorf("failed to record status history: %w", err)
	}
	contact.Status = to

	m.log.Info().
		Str("contact_id", contact.ID.String()).
		Str("from", from).
		Str("to", to).
		Str("trigger", trigger).
		Msg("status changed")
	return h, nil
}

func validTrigger(t string) bool {
	switch t {
	case models.TriggerManual, models.TriggerAutomatedPromotion, models.TriggerAutomatedDemotion, models.TriggerImport:
		return true
	}
	return false
}
