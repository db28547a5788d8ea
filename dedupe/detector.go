// ABOUTME: Duplicate scan, auto-merge of high-confidence pairs and human merge/dismiss actions
// ABOUTME: Merges backfill the primary, rescore it over the combined ledger and soft-delete the secondary atomically
package dedupe

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
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

type Detector struct {
	db      *sql.DB
	engine  *scoring.Engine
	now     func() time.Time
	log     zerolog.Logger
	metrics *metrics.Manager
}

type Option func(*Detector)

func WithLogger(l zerolog.Logger) Option {
	return func(d *Detector) { d.log = l }
}

func WithMetrics(m *metrics.Manager) Option {
	return func(d *Detector) { d.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(d *Detector) { d.now = now }
}

// NewDetector returns a Detector. engine rescores the surviving contact of every merge.
func NewDetector(database *sql.DB, engine *scoring.Engine, opts ...Option) *Detector {
	d := &Detector{db: database, engine: engine, now: time.Now, log: log.Logger}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ScanSummary is the structured result of a duplicate scan.
type ScanSummary struct {
	RunID      string              `json:"run_id"`
	Scanned    int                 `json:"scanned"`
	Candidates int                 `json:"candidates"`
	Pending    int                 `json:"pending"`
	AutoMerged int                 `json:"auto_merged"`
	Skipped    int                 `json:"skipped"`
	Errors     []models.BatchError `json:"errors,omitempty"`
}

// errStale marks a candidate whose contacts changed earlier in the same scan.
var errStale = errors.New("candidate no longer applies")

// Scan indexes all active contacts, auto-merges high-confidence pairs and records the rest
// as pending. Existing pairs in any status are left alone, so a second scan over unchanged
// data creates nothing.
func (d *Detector) Scan(ctx context.Context) (*ScanSummary, error) {
	start := time.Now()
	run, err := db.StartJobRun(ctx, d.db, models.JobDuplicateScan)
	if err != nil {
		return nil, fmt.Errorf("failed to start job run: %w", err)
	}
	summary := &ScanSummary{RunID: run.ID}

	scanErr := d.scan(ctx, summary)

	switch {
	case scanErr == nil:
		run.Status = models.JobCompleted
	case errors.Is(scanErr, context.Canceled) || errors.Is(scanErr, context.DeadlineExceeded):
		run.Status = models.JobCancelled
		run.ErrorMessage = scanErr.Error()
	default:
		run.Status = models.JobFailed
		run.ErrorMessage = scanErr.Error()
	}
	run.Processed = summary.Candidates
	run.Updated = summary.Pending + summary.AutoMerged
	run.Errors = len(summary.Errors)
	if err := db.FinishJobRun(context.WithoutCancel(ctx), d.db, run); err != nil {
		d.log.Error().Err(err).Msg("failed to finish job run")
	}
	d.metrics.ObserveBatch(models.JobDuplicateScan, run.Status, summary.Candidates, run.Updated, run.Errors, time.Since(start))

	d.log.Info().
		Str("run_id", run.ID).
		Int("scanned", summary.Scanned).
		Int("candidates", summary.Candidates).
		Int("pending", summary.Pending).
		Int("auto_merged", summary.AutoMerged).
		Int("skipped", summary.Skipped).
		Int("errors", len(summary.Errors)).
		Msg("duplicate scan finished")
	return summary, scanErr
}

func (d *Detector) scan(ctx context.Context, summary *ScanSummary) error {
	contacts, err := db.ListActiveContacts(ctx, d.db)
	if err != nil {
		return fmt.Errorf("failed to list contacts: %w", err)
	}
	summary.Scanned = len(contacts)

	candidates := NewContactMatcher(contacts).Candidates()
	summary.Candidates = len(candidates)

	for _, cand := range candidates {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := db.WithTx(ctx, d.db, func(tx *sql.Tx) error {
			return d.apply(ctx, tx, cand, summary)
		})
		switch {
		case errors.Is(err, errStale):
			summary.Skipped++
		case err != nil:
			summary.Errors = append(summary.Errors, models.NewBatchError(cand.A.String()+":"+cand.B.String(), err))
		}
	}
	return nil
}

func (d *Detector) apply(ctx context.Context, tx *sql.Tx, cand Candidate, summary *ScanSummary) error {
	existing, err := db.FindDuplicatePair(ctx, tx, cand.A, cand.B)
	if err != nil {
		return fmt.Errorf("failed to look up pair: %w", err)
	}
	if existing != nil {
		return errStale
	}

	a, err := db.GetContact(ctx, tx, cand.A)
	if err != nil {
		return err
	}
	b, err := db.GetContact(ctx, tx, cand.B)
	if err != nil {
		return err
	}
	if a == nil || b == nil {
		return errStale
	}

	pair := &models.DuplicatePair{
		ContactAID: cand.A,
		ContactBID: cand.B,
		MatchType:  cand.MatchType,
		Confidence: cand.Confidence,
		Status:     models.PairPending,
	}
	if _, err := db.CreateDuplicatePair(ctx, tx, pair); err != nil {
		return fmt.Errorf("failed to create pair: %w", err)
	}
	d.metrics.RecordDuplicatePair(cand.Confidence)

	if cand.Confidence != models.ConfidenceHigh {
		summary.Pending++
		return nil
	}

	primary, secondary := ChoosePrimary(a, b)
	if _, err := d.mergeTx(ctx, tx, primary, secondary, models.MergedByAuto, pair); err != nil {
		return err
	}
	summary.AutoMerged++
	return nil
}

// ChoosePrimary picks the more complete record; ties go to the older one, then the smaller ID.
func ChoosePrimary(a, b *models.Contact) (primary, secondary *models.Contact) {
	ca, cb := a.Completeness(), b.Completeness()
	switch {
	case ca > cb:
		return a, b
	case cb > ca:
		return b, a
	case a.CreatedAt.Before(b.CreatedAt):
		return a, b
	case b.CreatedAt.Before(a.CreatedAt):
		return b, a
	case a.ID.String() < b.ID.String():
		return a, b
	}
	return b, a
}

// MergeResult reports a completed merge.
type MergeResult struct {
	Primary     *models.Contact     `json:"primary"`
	SecondaryID uuid.UUID           `json:"secondary_id"`
	History     models.MergeHistory `json:"history"`
}

// Merge folds secondary into primary on a human's choice.
func (d *Detector) Merge(ctx context.Context, primaryID, secondaryID uuid.UUID, mergedBy string) (*MergeResult, error) {
	if primaryID == secondaryID {
		return nil, models.NewValidationError("secondary_id", "cannot merge a contact into itself")
	}
	if mergedBy == "" {
		mergedBy = models.MergedByManual
	}

	var res *MergeResult
	err := db.WithTx(ctx, d.db, func(tx *sql.Tx) error {
		primary, err := db.MustGetContact(ctx, tx, primaryID)
		if err != nil {
			return err
		}
		secondary, err := db.MustGetContact(ctx, tx, secondaryID)
		if err != nil {
			return err
		}
		pair, err := db.FindDuplicatePair(ctx, tx, primaryID, secondaryID)
		if err != nil {
			return fmt.Errorf("failed to look up pair: %w", err)
		}
		res, err = d.mergeTx(ctx, tx, primary, secondary, mergedBy, pair)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// MergePair resolves a pending pair by merging it. A nil primaryID lets the completeness
// rule choose.
func (d *Detector) MergePair(ctx context.Context, pairID uuid.UUID, primaryID uuid.UUID) (*MergeResult, error) {
	var res *MergeResult
	err := db.WithTx(ctx, d.db, func(tx *sql.Tx) error {
		pair, err := d.pendingPair(ctx, tx, pairID)
		if err != nil {
			return err
		}
		if primaryID != uuid.Nil && primaryID != pair.ContactAID && primaryID != pair.ContactBID {
			return models.NewValidationError("primary_id", "must be one of the pair's contacts")
		}

		a, err := db.MustGetContact(ctx, tx, pair.ContactAID)
		if err != nil {
			return err
		}
		b, err := db.MustGetContact(ctx, tx, pair.ContactBID)
		if err != nil {
			return err
		}

		var primary, secondary *models.Contact
		switch primaryID {
		case uuid.Nil:
			primary, secondary = ChoosePrimary(a, b)
		case a.ID:
			primary, secondary = a, b
		default:
			primary, secondary = b, a
		}
		res, err = d.mergeTx(ctx, tx, primary, secondary, models.MergedByManual, pair)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Dismiss marks a pending pair as not a duplicate so scans never propose it again.
func (d *Detector) Dismiss(ctx context.Context, pairID uuid.UUID) error {
	return db.WithTx(ctx, d.db, func(tx *sql.Tx) error {
		if _, err := d.pendingPair(ctx, tx, pairID); err != nil {
			return err
		}
		return db.ResolveDuplicatePair(ctx, tx, pairID, models.PairDismissed)
	})
}

// ListPending returns pairs awaiting a human decision.
func (d *Detector) ListPending(ctx context.Context) ([]models.DuplicatePair, error) {
	return db.ListDuplicatePairs(ctx, d.db, models.PairPending)
}

func (d *Detector) pendingPair(ctx context.Context, q db.DBTX, pairID uuid.UUID) (*models.DuplicatePair, error) {
	pair, err := db.GetDuplicatePair(ctx, q, pairID)
	if err != nil {
		return nil, fmt.Errorf("failed to load pair: %w", err)
	}
	if pair == nil {
		return nil, &models.NotFoundError{Entity: "duplicate pair", ID: pairID.String()}
	}
	if pair.Status != models.PairPending {
		return nil, models.NewValidationError("pair", "already %s", pair.Status)
	}
	return pair, nil
}

// mergeTx performs the merge inside tx. pair may be nil, in which case a merged pair
// record is created for the two contacts.
func (d *Detector) mergeTx(ctx context.Context, tx *sql.Tx, primary, secondary *models.Contact, mergedBy string, pair *models.DuplicatePair) (*MergeResult, error) {
	snapshot, err := json.Marshal(secondary)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot contact: %w", err)
	}

	fromStatus := primary.Status
	Backfill(primary, secondary)

	// The secondary goes first so its profile URL is free for the primary.
	if err := db.SoftDeleteContact(ctx, tx, secondary.ID, d.now()); err != nil {
		return nil, fmt.Errorf("failed to delete secondary: %w", err)
	}
	if err := db.SaveContact(ctx, tx, primary); err != nil {
		return nil, fmt.Errorf("failed to save primary: %w", err)
	}

	if primary.Status != fromStatus {
		trigger := models.TriggerManual
		if mergedBy == models.MergedByAuto {
			trigger = models.TriggerAutomatedPromotion
		}
		if err := db.CreateStatusHistory(ctx, tx, &models.StatusHistory{
			ContactID:  primary.ID,
			FromStatus: &fromStatus,
			ToStatus:   primary.Status,
			Trigger:    trigger,
			Reason:     "merged with " + secondary.ID.String(),
		}); err != nil {
			return nil, fmt.Errorf("failed to record status history: %w", err)
		}
	}

	if err := db.ReassignCategories(ctx, tx, secondary.ID, primary.ID); err != nil {
		return nil, fmt.Errorf("failed to move categories: %w", err)
	}
	if err := db.DeleteOpenQueueItemsForContact(ctx, tx, secondary.ID); err != nil {
		return nil, fmt.Errorf("failed to drop queue items: %w", err)
	}

	if pair == nil {
		pair = &models.DuplicatePair{
			ContactAID: primary.ID,
			ContactBID: secondary.ID,
			MatchType:  models.MatchFuzzy,
			Confidence: models.ConfidenceLow,
			Status:     models.PairMerged,
		}
		if _, err := db.CreateDuplicatePair(ctx, tx, pair); err != nil {
			return nil, fmt.Errorf("failed to record pair: %w", err)
		}
	}
	if err := db.ResolveDuplicatePair(ctx, tx, pair.ID, models.PairMerged); err != nil {
		return nil, fmt.Errorf("failed to resolve pair: %w", err)
	}
	if _, err := db.DismissPairsReferencing(ctx, tx, secondary.ID); err != nil {
		return nil, fmt.Errorf("failed to dismiss stale pairs: %w", err)
	}

	pairID := pair.ID
	history := models.MergeHistory{
		PrimaryID:         primary.ID,
		SecondaryID:       secondary.ID,
		PairID:            &pairID,
		SecondarySnapshot: string(snapshot),
		MergedBy:          mergedBy,
	}
	if err := db.CreateMergeHistory(ctx, tx, &history); err != nil {
		return nil, fmt.Errorf("failed to record merge history: %w", err)
	}

	// The merge history row links the secondary's ledger to the primary, so the score
	// below covers both.
	if _, err := d.engine.SnapshotRelationship(ctx, tx, primary, d.now()); err != nil {
		return nil, fmt.Errorf("failed to rescore primary: %w", err)
	}

	d.metrics.RecordMerge(mergedBy)
	d.log.Info().
		Str("primary_id", primary.ID.String()).
		Str("secondary_id", secondary.ID.String()).
		Str("merged_by", mergedBy).
		Msg("contacts merged")

	return &MergeResult{Primary: primary, SecondaryID: secondary.ID, History: history}, nil
}

// Backfill copies everything primary lacks from secondary. Scores, counts and recency take
// the larger value, signals are OR-ed and the more advanced status wins.
func Backfill(primary, secondary *models.Contact) {
	for _, field := range db.ConflictFields() {
		pv, _ := db.FieldValue(primary, field)
		sv, _ := db.FieldValue(secondary, field)
		if pv != "" || sv == "" {
			continue
		}
		source := secondary.FieldSources[field]
		if source == "" {
			source = models.SourceInferred
		}
		_ = db.SetField(primary, field, sv, source)
	}

	if secondary.RelationshipScore > primary.RelationshipScore {
		primary.RelationshipScore = secondary.RelationshipScore
	}
	if secondary.PriorityScore > primary.PriorityScore {
		primary.PriorityScore = secondary.PriorityScore
	}
	if secondary.MutualConnectionsCount > primary.MutualConnectionsCount {
		primary.MutualConnectionsCount = secondary.MutualConnectionsCount
	}
	primary.IsActiveOnProfile = primary.IsActiveOnProfile || secondary.IsActiveOnProfile
	primary.HasOpenToConnectSignal = primary.HasOpenToConnectSignal || secondary.HasOpenToConnectSignal
	primary.NeedsReview = primary.NeedsReview || secondary.NeedsReview

	if secondary.LastInteractionAt != nil &&
		(primary.LastInteractionAt == nil || secondary.LastInteractionAt.After(*primary.LastInteractionAt)) {
		t := *secondary.LastInteractionAt
		primary.LastInteractionAt = &t
	}
	if models.StatusRank(secondary.Status) > models.StatusRank(primary.Status) {
		primary.Status = secondary.Status
	}
}
