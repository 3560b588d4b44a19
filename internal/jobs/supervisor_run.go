package jobs

import (
	"context"
	"errors"

	"lecturebook/internal/contracts"
	"lecturebook/internal/events"
	"lecturebook/internal/logging"
	"lecturebook/internal/pipeline"
	"lecturebook/internal/services"
	"lecturebook/internal/stage"
)

const stoppedMessage = "supervisor stopped while the job was running"

// dispatch registers job and starts its worker goroutine. It is a no-op when
// the Supervisor is not started or already tracks the job.
func (s *Supervisor) dispatch(job *Job) {
	s.mu.Lock()
	if !s.running || s.active[job.ID] != nil {
		s.mu.Unlock()
		return
	}
	h := newHandle()
	s.active[job.ID] = h
	ctx := s.baseCtx
	s.wg.Add(1)
	s.mu.Unlock()

	go s.work(ctx, job, h)
}

func (s *Supervisor) work(ctx context.Context, job *Job, h *handle) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.active, job.ID)
		s.mu.Unlock()
		close(h.done)
	}()

	select {
	case s.sem <- struct{}{}:
	case <-h.cancelCh:
		return
	case <-ctx.Done():
		return
	}
	defer func() { <-s.sem }()

	started, err := s.store.MarkRunning(ctx, job.ID)
	if err != nil {
		s.logger.Error("failed to start job",
			logging.Error(err),
			logging.String(logging.FieldJobID, job.ID),
			logging.String(logging.FieldEventType, "job_start_failed"),
			logging.String(logging.FieldErrorHint, "check job database access"),
		)
		return
	}
	if !started {
		// Cancelled or claimed elsewhere while waiting for a worker.
		return
	}
	s.publish(ctx, events.Event{Type: events.JobStarted, JobID: job.ID, Status: string(StatusRunning)})
	s.execute(ctx, job, h)
}

func (s *Supervisor) execute(ctx context.Context, job *Job, h *handle) {
	persistCtx := context.WithoutCancel(ctx)
	teed, closeLog := s.jobLogger(job.ID)
	defer closeLog()
	base := s.logger
	if teed != nil {
		base = logging.NewComponentLogger(teed, "jobs")
	}
	logger := base.With(logging.String(logging.FieldJobID, job.ID))
	logger.Info("job started",
		logging.String(logging.FieldEventType, "job_start"),
		logging.Int("items", len(job.Items)),
		logging.String("resume_from", string(job.ResumeFrom)),
		logging.String("parent_job_id", job.ParentJobID),
	)

	var current stage.Stage
	req := pipeline.RunRequest{
		JobID:      job.ID,
		Items:      job.Items,
		Title:      job.Title,
		Speaker:    job.Speaker,
		Options:    job.Options,
		CreatedAt:  job.CreatedAt,
		ResumeFrom: job.ResumeFrom,
		Progress: func(ev pipeline.ProgressEvent) {
			if ev.Stage.Valid() {
				current = ev.Stage
			}
			s.recordProgress(persistCtx, ev, current)
		},
		Cancelled: func() bool {
			return s.cancelRequested(persistCtx, job.ID, h)
		},
		Logger: teed,
	}

	result, runErr := s.runner.Run(ctx, req)
	if result != nil {
		s.saveItems(persistCtx, result)
	}

	status, code, message, output := StatusCompleted, services.CauseCode(""), "", ""
	switch {
	case runErr == nil:
		if result != nil && result.Render != nil {
			output = result.Render.Primary()
		}
	case errors.Is(runErr, services.ErrCancelled) && ctx.Err() != nil && !h.cancelled.Load():
		status, code, message = StatusFailed, services.CauseInterrupted, stoppedMessage
	case errors.Is(runErr, services.ErrCancelled):
		status, code, message = StatusCancelled, services.CauseCancelled, "cancelled by request"
	default:
		details := services.Details(runErr)
		status, code, message = StatusFailed, details.Code, details.Message
	}

	if err := s.store.Finish(persistCtx, job.ID, status, code, message, output); err != nil {
		logger.Error("failed to record job outcome",
			logging.Error(err),
			logging.String(logging.FieldEventType, "job_finish_failed"),
			logging.String(logging.FieldErrorHint, "check job database access"),
		)
	}

	ev := events.Event{JobID: job.ID, Status: string(status), ErrorCode: string(code), Message: message}
	switch status {
	case StatusCompleted:
		ev.Type = events.JobCompleted
		ev.Message = output
		logger.Info("job completed",
			logging.String(logging.FieldEventType, "job_completed"),
			logging.String("output", output),
		)
	case StatusCancelled:
		ev.Type = events.JobCancelled
		logger.Info("job cancelled", logging.String(logging.FieldEventType, "job_cancelled"))
	default:
		ev.Type = events.JobFailed
		logging.ErrorWithContext(logger, "job failed", "job_failed",
			logging.String(logging.FieldErrorCode, string(code)),
			logging.String(logging.FieldErrorHint, services.Details(runErr).Hint),
			logging.String(logging.FieldImpact, "no book was rendered; checkpoints remain for retry"),
			logging.Error(runErr),
		)
	}
	s.publish(persistCtx, ev)
}

// cancelRequested checks the in-process flag first and falls back to the
// store flag set by other processes.
func (s *Supervisor) cancelRequested(ctx context.Context, id string, h *handle) bool {
	if h.cancelled.Load() {
		return true
	}
	flagged, err := s.store.CancelRequested(ctx, id)
	if err != nil {
		s.logger.Debug("cancel flag unreadable", logging.String(logging.FieldJobID, id), logging.Error(err))
		return false
	}
	if flagged {
		h.cancelled.Store(true)
	}
	return flagged
}

func (s *Supervisor) recordProgress(ctx context.Context, ev pipeline.ProgressEvent, current stage.Stage) {
	var errs []error
	errs = append(errs, s.store.AppendEvent(ctx, Event{
		JobID:   ev.JobID,
		Item:    ev.Item,
		Stage:   ev.Stage,
		Message: ev.Message,
		Percent: ev.Percent,
	}))
	if ev.Completed && ev.Item != contracts.JobLevel {
		errs = append(errs, s.store.MarkItemStage(ctx, ev.JobID, ev.Item, ev.Stage))
	}
	errs = append(errs, s.store.UpdateProgress(ctx, ev.JobID, current, ev.Percent))
	if err := errors.Join(errs...); err != nil {
		logging.WarnWithContext(s.logger, "job progress not recorded", "job_progress_failed",
			logging.String(logging.FieldJobID, ev.JobID),
			logging.String(logging.FieldErrorHint, "check job database access"),
			logging.String(logging.FieldImpact, "status output may lag behind the pipeline"),
			logging.Error(err),
		)
	}

	out := events.Event{
		Type:    events.JobProgress,
		JobID:   ev.JobID,
		Status:  string(StatusRunning),
		Stage:   string(ev.Stage),
		Message: ev.Message,
		Percent: ev.Percent,
	}
	if ev.Item != contracts.JobLevel {
		item := ev.Item
		out.Item = &item
	}
	s.publish(ctx, out)
}

func (s *Supervisor) saveItems(ctx context.Context, result *pipeline.Result) {
	for _, it := range result.Items {
		if it == nil {
			continue
		}
		err := s.store.SaveItem(ctx, ItemProgress{
			JobID:        result.JobID,
			Index:        it.Index,
			Source:       it.Source,
			Stage:        it.Stage,
			FailedStage:  it.FailedStage,
			ErrorCode:    it.Cause,
			ErrorMessage: it.Message,
		})
		if err != nil {
			logging.WarnWithContext(s.logger, "item outcome not recorded", "job_item_save_failed",
				logging.String(logging.FieldJobID, result.JobID),
				logging.Int(logging.FieldItemIndex, it.Index),
				logging.String(logging.FieldImpact, "status output shows the last reported stage"),
				logging.Error(err),
			)
		}
	}
}
