package jobs

import (
	"context"
	"fmt"

	"lecturebook/internal/stage"
)

// Items returns the per-item progress rows of a job in submission order.
func (s *Store) Items(ctx context.Context, jobID string) ([]ItemProgress, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT job_id, item_index, source, stage, failed_stage, error_code, error_message, updated_at
         FROM job_items WHERE job_id = ? ORDER BY item_index`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list job items: %w", err)
	}
	defer rows.Close()

	var out []ItemProgress
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// MarkItemStage records the last stage an item completed.
func (s *Store) MarkItemStage(ctx context.Context, jobID string, index int, st stage.Stage) error {
	if _, err := s.execWithRetry(ctx,
		`UPDATE job_items SET stage = ?, updated_at = ? WHERE job_id = ? AND item_index = ?`,
		string(st), s.timestamp(), jobID, index,
	); err != nil {
		return fmt.Errorf("mark item stage: %w", err)
	}
	return nil
}

// SaveItem writes the final state of one item.
func (s *Store) SaveItem(ctx context.Context, item ItemProgress) error {
	if _, err := s.execWithRetry(ctx,
		`UPDATE job_items SET stage = ?, failed_stage = ?, error_code = ?, error_message = ?, updated_at = ?
         WHERE job_id = ? AND item_index = ?`,
		nullableString(string(item.Stage)),
		nullableString(string(item.FailedStage)),
		nullableString(string(item.ErrorCode)),
		nullableString(item.ErrorMessage),
		s.timestamp(),
		item.JobID,
		item.Index,
	); err != nil {
		return fmt.Errorf("save item %d: %w", item.Index, err)
	}
	return nil
}

// AppendEvent adds an entry to a job's progress log.
func (s *Store) AppendEvent(ctx context.Context, ev Event) error {
	created := ev.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO job_events (job_id, item_index, stage, message, percent, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		ev.JobID, ev.Item, nullableString(string(ev.Stage)), ev.Message, ev.Percent, formatTime(created),
	); err != nil {
		return fmt.Errorf("append job event: %w", err)
	}
	return nil
}

// Events returns the last limit entries of a job's progress log, oldest
// first. A limit <= 0 returns the whole log.
func (s *Store) Events(ctx context.Context, jobID string, limit int) ([]Event, error) {
	query := `SELECT id, job_id, item_index, stage, message, percent, created_at FROM job_events WHERE job_id = ? ORDER BY id DESC`
	args := []any{jobID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list job events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			ev         Event
			stageStr   *string
			createdRaw string
		)
		if err := rows.Scan(&ev.ID, &ev.JobID, &ev.Item, &stageStr, &ev.Message, &ev.Percent, &createdRaw); err != nil {
			return nil, err
		}
		if stageStr != nil {
			ev.Stage = stage.Stage(*stageStr)
		}
		ev.CreatedAt, _ = parseTimeString(createdRaw)
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
