package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"lecturebook/internal/services"
	"lecturebook/internal/stage"
)

// Create inserts job and one progress row per item.
func (s *Store) Create(ctx context.Context, job *Job) error {
	itemsJSON, err := json.Marshal(job.Items)
	if err != nil {
		return fmt.Errorf("encode items: %w", err)
	}
	optionsJSON, err := json.Marshal(job.Options)
	if err != nil {
		return fmt.Errorf("encode options: %w", err)
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = s.now().UTC()
	}
	job.UpdatedAt = job.CreatedAt
	if job.Status == "" {
		job.Status = StatusQueued
	}
	created := formatTime(job.CreatedAt)

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO jobs (
                id, parent_job_id, status, title, speaker, items_json, options_json,
                resume_from, current_stage, progress_percent, cancel_requested,
                created_at, updated_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL, 0, 0, ?, ?)`,
			job.ID,
			nullableString(job.ParentJobID),
			job.Status,
			nullableString(job.Title),
			nullableString(job.Speaker),
			string(itemsJSON),
			string(optionsJSON),
			nullableString(string(job.ResumeFrom)),
			created,
			created,
		); err != nil {
			return err
		}
		for _, item := range job.Items {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO job_items (job_id, item_index, source, updated_at) VALUES (?, ?, ?, ?)`,
				job.ID, item.Index, item.Source, created,
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// Get returns the job with id or an error wrapping services.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+jobColumns+" FROM jobs WHERE id = ?", id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// List returns jobs in creation order, optionally filtered by status.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Job, error) {
	query := "SELECT " + jobColumns + " FROM jobs"
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += " WHERE status IN (" + makePlaceholders(len(statuses)) + ")"
		for _, st := range statuses {
			args = append(args, st)
		}
	}
	query += " ORDER BY created_at, rowid"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// MarkRunning moves a queued job to running. It reports false when the job
// is no longer queued.
func (s *Store) MarkRunning(ctx context.Context, id string) (bool, error) {
	now := s.timestamp()
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET status = ?, started_at = ?, updated_at = ?, error_code = NULL, error_message = NULL
         WHERE id = ? AND status = ?`,
		StatusRunning, now, now, id, StatusQueued,
	)
	if err != nil {
		return false, fmt.Errorf("mark job running: %w", err)
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// Finish records the terminal status of a running job.
func (s *Store) Finish(ctx context.Context, id string, status Status, code services.CauseCode, message, outputPath string) error {
	if !status.Terminal() {
		return fmt.Errorf("finish job: %s is not a terminal status", status)
	}
	now := s.timestamp()
	if _, err := s.execWithRetry(ctx,
		`UPDATE jobs SET status = ?, error_code = ?, error_message = ?, output_path = ?,
             finished_at = ?, updated_at = ?
         WHERE id = ?`,
		status, nullableString(string(code)), nullableString(message), nullableString(outputPath),
		now, now, id,
	); err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	return nil
}

// CancelQueued cancels a job that has not started. It reports false when the
// job is no longer queued.
func (s *Store) CancelQueued(ctx context.Context, id string) (bool, error) {
	now := s.timestamp()
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET status = ?, cancel_requested = 1, error_code = ?, error_message = ?,
             finished_at = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusCancelled, services.CauseCancelled, "cancelled before start", now, now, id, StatusQueued,
	)
	if err != nil {
		return false, fmt.Errorf("cancel queued job: %w", err)
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// RequestCancel flags a job for cooperative cancellation.
func (s *Store) RequestCancel(ctx context.Context, id string) error {
	if _, err := s.execWithRetry(ctx,
		`UPDATE jobs SET cancel_requested = 1, updated_at = ? WHERE id = ?`,
		s.timestamp(), id,
	); err != nil {
		return fmt.Errorf("request cancel: %w", err)
	}
	return nil
}

// CancelRequested reports whether a job carries the cancellation flag.
func (s *Store) CancelRequested(ctx context.Context, id string) (bool, error) {
	var flag int
	err := s.db.QueryRowContext(ctx, `SELECT cancel_requested FROM jobs WHERE id = ?`, id).Scan(&flag)
	if errors.Is(err, sql.ErrNoRows) {
		return false, notFound(id)
	}
	if err != nil {
		return false, fmt.Errorf("read cancel flag: %w", err)
	}
	return flag != 0, nil
}

// UpdateProgress records the stage and percentage a running job reached.
func (s *Store) UpdateProgress(ctx context.Context, id string, current stage.Stage, percent float64) error {
	if _, err := s.execWithRetry(ctx,
		`UPDATE jobs SET current_stage = ?, progress_percent = ?, updated_at = ? WHERE id = ?`,
		nullableString(string(current)), percent, s.timestamp(), id,
	); err != nil {
		return fmt.Errorf("update job progress: %w", err)
	}
	return nil
}

// FailInterrupted fails every job left running, returning their ids.
func (s *Store) FailInterrupted(ctx context.Context) ([]string, error) {
	running, err := s.List(ctx, StatusRunning)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(running))
	for _, job := range running {
		if err := s.Finish(ctx, job.ID, StatusFailed, services.CauseInterrupted, InterruptedMessage, ""); err != nil {
			return ids, err
		}
		ids = append(ids, job.ID)
	}
	return ids, nil
}

// Delete removes a job with its items and progress log.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.execWithRetry(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound(id)
	}
	return nil
}

// Stats returns a count of jobs grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}
