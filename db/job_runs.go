// ABOUTME: Persistent job-run records for batch jobs
// ABOUTME: Tracks status and progress counts so interrupted runs are visible and resumable
package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/harperreed/cadence/models"
	"github.com/oklog/ulid/v2"
)

// StartJobRun inserts a running job record with a sortable ID.
func StartJobRun(ctx context.Context, q DBTX, jobType string) (*models.JobRun, error) {
	run := &models.JobRun{
		ID:        ulid.Make().String(),
		JobType:   jobType,
		Status:    models.JobRunning,
		StartedAt: time.Now().UTC(),
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO job_runs (id, job_type, status, started_at) VALUES (?, ?, ?, ?)
	`, run.ID, run.JobType, run.Status, run.StartedAt)
	if err != nil {
		return nil, err
	}
	return run, nil
}

// FinishJobRun stores the final status and counts.
func FinishJobRun(ctx context.Context, q DBTX, run *models.JobRun) error {
	now := time.Now().UTC()
	run.FinishedAt = &now
	_, err := q.ExecContext(ctx, `
		UPDATE job_runs
		SET status = ?, processed = ?, updated = ?, errors = ?, error_message = ?, finished_at = ?
		WHERE id = ?
	`, run.Status, run.Processed, run.Updated, run.Errors, nullString(run.ErrorMessage), now, run.ID)
	return err
}

// GetJobRun returns a job run, or nil if missing.
func GetJobRun(ctx context.Context, q DBTX, id string) (*models.JobRun, error) {
	rows, err := listJobRuns(ctx, q, `WHERE id = ?`, id)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return &rows[0], nil
}

// ListJobRuns returns the most recent runs, optionally of one type.
func ListJobRuns(ctx context.Context, q DBTX, jobType string, limit int) ([]models.JobRun, error) {
	if limit <= 0 {
		limit = 20
	}
	if jobType == "" {
		return listJobRuns(ctx, q, `ORDER BY id DESC LIMIT ?`, limit)
	}
	return listJobRuns(ctx, q, `WHERE job_type = ? ORDER BY id DESC LIMIT ?`, jobType, limit)
}

func listJobRuns(ctx context.Context, q DBTX, tail string, args ...any) ([]models.JobRun, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, job_type, status, processed, updated, errors, error_message, started_at, finished_at
		FROM job_runs `+tail, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var runs []models.JobRun
	for rows.Next() {
		var r models.JobRun
		var msg sql.NullString
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.JobType, &r.Status, &r.Processed, &r.Updated, &r.Errors, &msg, &r.StartedAt, &finished); err != nil {
			return nil, err
		}
		r.ErrorMessage = msg.String
		r.FinishedAt = nullTimePtr(finished)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return runs, nil
}
