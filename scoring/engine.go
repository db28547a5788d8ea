// ABOUTME: Scoring engine that persists relationship and priority scores
// ABOUTME: Single-contact recalculation inside a caller's transaction plus the nightly batch jobs
package scoring

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/cadence/config"
	"github.com/harperreed/cadence/db"
	"github.com/harperreed/cadence/metrics"
	"github.com/harperreed/cadence/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Engine computes and stores scores using one Scoring config for its lifetime.
type Engine struct {
	db      *sql.DB
	cfg     config.Scoring
	log     zerolog.Logger
	metrics *metrics.Manager
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

func WithMetrics(m *metrics.Manager) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine returns an Engine over database.
func NewEngine(database *sql.DB, cfg config.Scoring, opts ...Option) *Engine {
	e := &Engine{db: database, cfg: cfg, log: log.Logger}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the scoring configuration in use.
func (e *Engine) Config() config.Scoring {
	return e.cfg
}

// RelationshipResult reports a relationship recomputation.
type RelationshipResult struct {
	Previous int  `json:"previous"`
	Score    int  `json:"score"`
	Changed  bool `json:"changed"`
}

// RecalculateRelationship recomputes and stores a contact's relationship score inside q.
// A snapshot is written when the score changes.
func (e *Engine) RecalculateRelationship(ctx context.Context, q db.DBTX, contactID uuid.UUID, asOf time.Time) (*RelationshipResult, error) {
	contact, err := db.MustGetContact(ctx, q, contactID)
	if err != nil {
		return nil, err
	}
	return e.recalculateRelationship(ctx, q, contact, asOf, false)
}

// SnapshotRelationship recomputes c's relationship score inside q and records a snapshot
// whether or not it moved. c is updated in place.
func (e *Engine) SnapshotRelationship(ctx context.Context, q db.DBTX, c *models.Contact, asOf time.Time) (*RelationshipResult, error) {
	return e.recalculateRelationship(ctx, q, c, asOf, true)
}

func (e *Engine) recalculateRelationship(ctx context.Context, q db.DBTX, contact *models.Contact, asOf time.Time, alwaysSnapshot bool) (*RelationshipResult, error) {
	interactions, err := db.ListInteractionsSince(ctx, q, contact.ID, LookbackStart(e.cfg, asOf))
	if err != nil {
		return nil, fmt.Errorf("failed to load interactions: %w", err)
	}

	res := &RelationshipResult{
		Previous: contact.RelationshipScore,
		Score:    RelationshipScore(interactions, e.cfg, asOf),
	}
	res.Changed = res.Score != res.Previous

	if res.Changed {
		if err := db.SetRelationshipScore(ctx, q, contact.ID, res.Score); err != nil {
			return nil, fmt.Errorf("failed to store relationship score: %w", err)
		}
		contact.RelationshipScore = res.Score
	}
	if res.Changed || alwaysSnapshot {
		if err := db.CreateScoreSnapshot(ctx, q, &models.ScoreHistory{
			ContactID:  contact.ID,
			ScoreType:  models.ScoreTypeRelationship,
			ScoreValue: float64(res.Score),
			RecordedAt: asOf,
		}); err != nil {
			return nil, fmt.Errorf("failed to record score snapshot: %w", err)
		}
	}
	return res, nil
}

// PriorityResult reports a priority recomputation.
type PriorityResult struct {
	Breakdown PriorityBreakdown `json:"breakdown"`
	Previous  float64           `json:"previous"`
	Updated   bool              `json:"updated"`
}

// RecalculatePriority recomputes a contact's priority score inside q. The stored value only
// changes for target contacts and only when it moves by more than the configured epsilon.
func (e *Engine) RecalculatePriority(ctx context.Context, q db.DBTX, contactID uuid.UUID) (*PriorityResult, error) {
	contact, err := db.MustGetContact(ctx, q, contactID)
	if err != nil {
		return nil, err
	}
	return e.recalculatePriority(ctx, q, contact)
}

func (e *Engine) recalculatePriority(ctx context.Context, q db.DBTX, contact *models.Contact) (*PriorityResult, error) {
	weight, _, err := db.MaxCategoryWeight(ctx, q, contact.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load category weight: %w", err)
	}

	res := &PriorityResult{
		Breakdown: Priority(InputFor(contact, weight), e.cfg),
		Previous:  contact.PriorityScore,
	}
	if contact.Status != models.StatusTarget {
		return res, nil
	}
	if math.Abs(res.Breakdown.Total-contact.PriorityScore) <= e.cfg.Batch.Epsilon {
		return res, nil
	}

	if err := db.SetPriorityScore(ctx, q, contact.ID, res.Breakdown.Total); err != nil {
		return nil, fmt.Errorf("failed to store priority score: %w", err)
	}
	if err := db.CreateScoreSnapshot(ctx, q, &models.ScoreHistory{
		ContactID:  contact.ID,
		ScoreType:  models.ScoreTypePriority,
		ScoreValue: res.Breakdown.Total,
	}); err != nil {
		return nil, fmt.Errorf("failed to record score snapshot: %w", err)
	}
	contact.PriorityScore = res.Breakdown.Total
	res.Updated = true
	return res, nil
}

// Runner returns a batch runner configured like the engine.
func (e *Engine) Runner() BatchRunner {
	return BatchRunner{DB: e.db, PageSize: e.cfg.Batch.PageSize, Log: e.log, Metrics: e.metrics}
}

// BatchPriority recomputes priority for every active target contact.
func (e *Engine) BatchPriority(ctx context.Context) (*BatchSummary, error) {
	return e.Runner().Run(ctx, models.JobPriorityBatch, []string{models.StatusTarget},
		func(ctx context.Context, tx *sql.Tx, c *models.Contact) (bool, error) {
			res, err := e.recalculatePriority(ctx, tx, c)
			if err != nil {
				return false, err
			}
			return res.Updated, nil
		})
}

// BatchRelationship recomputes relationship scores for connected and later contacts and
// snapshots every one of them, which is what going-cold detection compares against.
func (e *Engine) BatchRelationship(ctx context.Context, asOf time.Time) (*BatchSummary, error) {
	return e.Runner().Run(ctx, models.JobRelationshipBatch, models.ConnectedStatuses,
		func(ctx context.Context, tx *sql.Tx, c *models.Contact) (bool, error) {
			res, err := e.recalculateRelationship(ctx, tx, c, asOf, true)
			if err != nil {
				return false, err
			}
			return res.Changed, nil
		})
}
