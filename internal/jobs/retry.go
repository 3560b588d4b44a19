package jobs

import (
	"context"
	"fmt"

	"lecturebook/internal/checkpoint"
	"lecturebook/internal/events"
	"lecturebook/internal/logging"
	"lecturebook/internal/services"
	"lecturebook/internal/stage"
)

// Retry creates a new job that reuses the checkpoints of a failed or
// cancelled job up to from. A nil from resumes at the earliest stage any item
// still has to run.
func (s *Supervisor) Retry(ctx context.Context, id string, from *stage.Stage) (string, error) {
	job, err := s.store.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if !job.Status.Retryable() {
		return "", services.Wrap(services.ErrValidation, "jobs", "retry", fmt.Sprintf("job %s is %s; only failed or cancelled jobs can be retried", id, job.Status), nil)
	}
	if s.checkpoints == nil {
		return "", services.Wrap(services.ErrConfiguration, "jobs", "retry", "checkpoint store not configured", nil)
	}

	var target stage.Stage
	if from != nil {
		if !from.Valid() {
			return "", services.Wrap(services.ErrValidation, "jobs", "retry", fmt.Sprintf("cannot resume from %q", *from), nil)
		}
		target = *from
	} else {
		target, err = s.ResumePoint(ctx, job)
		if err != nil {
			return "", err
		}
	}

	newID := s.newID()
	copied := 0
	if target != stage.Download {
		copied, err = s.checkpoints.CopyForward(ctx, job.ID, newID, target)
		if err != nil {
			return "", services.Wrap(services.ErrCheckpoint, "jobs", "retry", "copy checkpoints of "+job.ID, err)
		}
	}

	retry := &Job{
		ID:          newID,
		ParentJobID: job.ID,
		Status:      StatusQueued,
		Title:       job.Title,
		Speaker:     job.Speaker,
		Items:       job.Items,
		Options:     job.Options,
		CreatedAt:   s.now().UTC(),
	}
	if target != stage.Download {
		retry.ResumeFrom = target
	}
	if err := s.store.Create(ctx, retry); err != nil {
		return "", err
	}
	s.logger.Info("job retried",
		logging.String(logging.FieldEventType, "job_retried"),
		logging.String(logging.FieldJobID, newID),
		logging.String("parent_job_id", job.ID),
		logging.String("resume_from", string(target)),
		logging.Int("checkpoints_copied", copied),
	)
	s.publish(ctx, events.Event{
		Type:     events.JobRetried,
		JobID:    newID,
		ParentID: job.ID,
		Status:   string(StatusQueued),
		Stage:    string(target),
	})
	s.dispatch(retry)
	return newID, nil
}

// ResumePoint picks the stage a retry of job should start at: the earliest
// stage any item failed at or has not reached, never later than the first
// stage whose predecessors are all checkpointed. Validation failures resume
// at Transcribe so the item is transcribed again.
func (s *Supervisor) ResumePoint(ctx context.Context, job *Job) (stage.Stage, error) {
	items, err := s.store.Items(ctx, job.ID)
	if err != nil {
		return "", err
	}
	failedAt := make(map[int]stage.Stage, len(items))
	for _, it := range items {
		if it.Failed() {
			failedAt[it.Index] = it.FailedStage
		}
	}

	target := stage.Compile
	for _, item := range job.Items {
		candidate := stage.Download
		if last, ok := s.checkpoints.LastValid(ctx, job.ID, item.Index); ok {
			candidate = last.Next()
		}
		if failed, ok := failedAt[item.Index]; ok {
			if failed == stage.Validate {
				failed = stage.Transcribe
			}
			if failed.PerItem() && failed.Before(candidate) {
				candidate = failed
			}
		}
		if candidate.Before(target) {
			target = candidate
		}
	}
	if target == stage.Compile && s.checkpoints.Has(ctx, checkpoint.JobKey(job.ID, stage.Compile)) {
		target = stage.Render
	}
	return target, nil
}
