// ABOUTME: Paged, per-contact-transaction batch runner shared by scoring and lifecycle jobs
// ABOUTME: Records a job run, isolates per-contact failures and stops cleanly on cancellation
package scoring

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/harperreed/cadence/db"
	"github.com/harperreed/cadence/metrics"
	"github.com/harperreed/cadence/models"
	"github.com/rs/zerolog"
)

// ErrSkip tells the runner a contact needed no work.
var ErrSkip = errors.New("skip contact")

// BatchSummary is the structured result of a batch job.
type BatchSummary struct {
	RunID     string              `json:"run_id"`
	JobType   string              `json:"job_type"`
	Status    string              `json:"status"`
	Processed int                 `json:"processed"`
	Updated   int                 `json:"updated"`
	Skipped   int                 `json:"skipped"`
	Errors    []models.BatchError `json:"errors,omitempty"`
}

// ContactFunc does one contact's work inside its own transaction. The contact is re-read
// inside that transaction. Returning ErrSkip counts the contact as skipped.
type ContactFunc func(ctx context.Context, tx *sql.Tx, c *models.Contact) (updated bool, err error)

// BatchRunner walks active contacts in keyset pages ordered by creation time.
type BatchRunner struct {
	DB       *sql.DB
	PageSize int
	Log      zerolog.Logger
	Metrics  *metrics.Manager
}

// Run applies fn to every active contact in statuses. Per-contact failures are collected
// in the summary. Cancellation stops between contacts and returns the partial summary
// with ctx.Err(); only whole-operation failures such as a failed page read also return an error.
func (r BatchRunner) Run(ctx context.Context, jobType string, statuses []string, fn ContactFunc) (*BatchSummary, error) {
	start := time.Now()
	run, err := db.StartJobRun(ctx, r.DB, jobType)
	if err != nil {
		return nil, fmt.Errorf("failed to start job run: %w", err)
	}

	summary := &BatchSummary{RunID: run.ID, JobType: jobType}
	logger := r.Log.With().Str("job", jobType).Str("run_id", run.ID).Logger()

	runErr := r.walk(ctx, statuses, summary, logger, fn)

	switch {
	case runErr == nil:
		run.Status = models.JobCompleted
	case errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded):
		run.Status = models.JobCancelled
		run.ErrorMessage = runErr.Error()
	default:
		run.Status = models.JobFailed
		run.ErrorMessage = runErr.Error()
	}
	summary.Status = run.Status
	run.Processed = summary.Processed
	run.Updated = summary.Updated
	run.Errors = len(summary.Errors)

	// The job context may already be cancelled; the final write must still land.
	if err := db.FinishJobRun(context.WithoutCancel(ctx), r.DB, run); err != nil {
		logger.Error().Err(err).Msg("failed to finish job run")
	}

	r.Metrics.ObserveBatch(jobType, run.Status, summary.Processed, summary.Updated, len(summary.Errors), time.Since(start))
	logger.Info().
		Str("status", run.Status).
		Int("processed", summary.Processed).
		Int("updated", summary.Updated).
		Int("skipped", summary.Skipped).
		Int("errors", len(summary.Errors)).
		Dur("elapsed", time.Since(start)).
		Msg("batch finished")

	return summary, runErr
}

func (r BatchRunner) walk(ctx context.Context, statuses []string, summary *BatchSummary, logger zerolog.Logger, fn ContactFunc) error {
	pageSize := r.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}

	var cursor *db.PageCursor
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		contacts, err := db.ListContactsPage(ctx, r.DB, statuses, cursor, pageSize)
		if err != nil {
			return fmt.Errorf("failed to list contacts: %w", err)
		}
		if len(contacts) == 0 {
			return nil
		}

		for i := range contacts {
			if err := ctx.Err(); err != nil {
				return err
			}
			r.one(ctx, &contacts[i], summary, fn)
		}

		last := contacts[len(contacts)-1]
		cursor = &db.PageCursor{CreatedAt: last.CreatedAt, ID: last.ID}
		logger.Debug().Int("page", page).Int("size", len(contacts)).Int("processed", summary.Processed).Msg("page done")

		if len(contacts) < pageSize {
			return nil
		}
	}
}

func (r BatchRunner) one(ctx context.Context, listed *models.Contact, summary *BatchSummary, fn ContactFunc) {
	var updated bool
	err := db.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		c, err := db.GetContact(ctx, tx, listed.ID)
		if err != nil {
			return fmt.Errorf("failed to reload contact: %w", err)
		}
		if c == nil {
			return ErrSkip
		}
		updated, err = fn(ctx, tx, c)
		return err
	})

	switch {
	case errors.Is(err, ErrSkip):
		summary.Skipped++
	case err != nil:
		summary.Processed++
		summary.Errors = append(summary.Errors, models.NewBatchError(listed.ID.String(), err))
	default:
		summary.Processed++
		if updated {
			summary.Updated++
		}
	}
}
