package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"lecturebook/internal/checkpoint"
	"lecturebook/internal/contracts"
	"lecturebook/internal/logging"
	"lecturebook/internal/services"
	"lecturebook/internal/stage"
)

const defaultStageTimeout = 2 * time.Hour

// Settings bound how the orchestrator runs a job.
type Settings struct {
	ItemConcurrency int
	StageTimeout    time.Duration
	WorkDir         string
}

// Orchestrator executes jobs against a checkpoint store.
type Orchestrator struct {
	store    *checkpoint.Store
	runners  Runners
	settings Settings
	logger   *slog.Logger
}

// New constructs an orchestrator. Zero settings fall back to one item at a
// time and a two hour stage timeout.
func New(store *checkpoint.Store, runners Runners, settings Settings, logger *slog.Logger) *Orchestrator {
	if settings.ItemConcurrency <= 0 {
		settings.ItemConcurrency = 1
	}
	if settings.StageTimeout <= 0 {
		settings.StageTimeout = defaultStageTimeout
	}
	return &Orchestrator{
		store:    store,
		runners:  runners,
		settings: settings,
		logger:   logging.NewComponentLogger(logger, "pipeline"),
	}
}

// run carries the mutable state of one Run call.
type run struct {
	o        *Orchestrator
	req      RunRequest
	logger   *slog.Logger
	mu       sync.Mutex
	done     int
	total    int
	progress func(ProgressEvent)
}

// Run executes the job described by req. Item failures are recorded in the
// result; the returned error is reserved for failures of the whole job:
// configuration errors, checkpoint store failures, zero surviving items, and
// cancellation.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest) (*Result, error) {
	if err := o.check(req); err != nil {
		return nil, err
	}
	ctx = services.WithJobID(ctx, req.JobID)
	base := o.logger
	if req.Logger != nil {
		base = logging.NewComponentLogger(req.Logger, "pipeline")
	}
	r := &run{
		o:        o,
		req:      req,
		logger:   base.With(logging.String(logging.FieldJobID, req.JobID)),
		total:    len(req.Items)*len(stage.ItemStages()) + 2,
		progress: req.Progress,
	}
	result := &Result{JobID: req.JobID, Items: make([]*ItemState, len(req.Items))}
	for i, item := range req.Items {
		result.Items[i] = &ItemState{Index: item.Index, Source: item.Source}
	}

	r.logger.Info("job run started",
		logging.String(logging.FieldEventType, "job_run_start"),
		logging.Int("items", len(req.Items)),
		logging.String("resume_from", string(req.ResumeFrom)),
		logging.Int("item_concurrency", o.settings.ItemConcurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.settings.ItemConcurrency)
	for i := range req.Items {
		item := req.Items[i]
		state := result.Items[i]
		g.Go(func() error {
			return r.runItem(gctx, item, state)
		})
	}
	err := g.Wait()
	if err == nil && r.cancelled(ctx) {
		err = services.Wrap(services.ErrCancelled, "pipeline", "run", "job cancelled", ctx.Err())
	}
	if err != nil {
		return result, r.jobFailure(ctx, err)
	}

	if err := r.runJobStages(ctx, result); err != nil {
		return result, r.jobFailure(ctx, err)
	}
	r.logger.Info("job run completed",
		logging.String(logging.FieldEventType, "job_run_complete"),
		logging.Int("survivors", len(result.Survivors())),
		logging.String("output", result.Render.Primary()),
	)
	return result, nil
}

func (o *Orchestrator) check(req RunRequest) error {
	if o.store == nil {
		return services.Wrap(services.ErrConfiguration, "pipeline", "run", "checkpoint store not configured", nil)
	}
	if strings.TrimSpace(req.JobID) == "" {
		return services.Wrap(services.ErrValidation, "pipeline", "run", "job id is empty", nil)
	}
	if len(req.Items) == 0 {
		return services.Wrap(services.ErrValidation, "pipeline", "run", "job has no source items", nil)
	}
	if req.ResumeFrom != "" && !req.ResumeFrom.Valid() {
		return services.Wrap(services.ErrValidation, "pipeline", "run", fmt.Sprintf("cannot resume from %q", req.ResumeFrom), nil)
	}
	for _, s := range stage.All() {
		if o.runners.lookup(s) == nil {
			return services.Wrap(services.ErrConfiguration, "pipeline", "run", fmt.Sprintf("no runner for stage %s", s), nil)
		}
	}
	return nil
}

// cancelled reports a cancelled context or a cancellation flag.
func (r *run) cancelled(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	return r.req.Cancelled != nil && r.req.Cancelled()
}

func (r *run) jobFailure(ctx context.Context, err error) error {
	if r.cancelled(ctx) && !errors.Is(err, services.ErrCancelled) {
		err = services.Wrap(services.ErrCancelled, "pipeline", "run", "job cancelled", err)
	}
	details := services.Details(err)
	if details.Code == services.CauseCancelled {
		r.logger.Info("job run cancelled", logging.String(logging.FieldEventType, "job_run_cancelled"))
		return err
	}
	logging.ErrorWithContext(r.logger, "job run failed", "job_run_failure",
		logging.String(logging.FieldErrorCode, string(details.Code)),
		logging.String(logging.FieldErrorHint, details.Hint),
		logging.String(logging.FieldImpact, "job stopped; written checkpoints remain valid"),
		logging.Error(err),
	)
	return err
}

// execute runs one stage with the stage timeout applied.
func (r *run) execute(ctx context.Context, s stage.Stage, in *StageInput) (contracts.Payload, error) {
	runner := r.o.runners.lookup(s)
	stageCtx, cancel := context.WithTimeout(services.WithStage(ctx, string(s)), r.o.settings.StageTimeout)
	defer cancel()
	stageCtx = services.WithCorrelationID(stageCtx, uuid.NewString())

	logger := logging.WithContext(stageCtx, r.o.logger)
	started := time.Now()
	logger.Info("stage started", logging.String(logging.FieldEventType, "stage_start"))

	payload, err := runner.Run(stageCtx, in)
	if err == nil && payload == nil {
		err = services.Wrap(services.ErrValidation, string(s), "run", "stage produced no output", nil)
	}
	if err == nil {
		if verr := payload.Validate(); verr != nil {
			err = services.Wrap(services.ErrValidation, string(s), "run", "stage output failed its contract", verr)
		}
	}
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			err = services.Wrap(services.ErrTimeout, string(s), "run", fmt.Sprintf("exceeded %s", r.o.settings.StageTimeout), err)
		}
		return nil, err
	}
	logger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Duration("stage_duration", time.Since(started)),
	)
	return payload, nil
}

func (r *run) put(ctx context.Context, key checkpoint.Key, payload contracts.Payload) error {
	if err := r.o.store.Put(ctx, key, payload); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return services.Wrap(services.ErrCheckpoint, string(key.Stage), "write checkpoint", key.String(), err)
	}
	return nil
}

// report advances the progress counter by steps and calls the progress
// callback.
func (r *run) report(item int, s stage.Stage, message string, steps int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.done += steps
	if r.progress == nil {
		return
	}
	percent := 100 * float64(r.done) / float64(r.total)
	r.progress(ProgressEvent{
		JobID:     r.req.JobID,
		Item:      item,
		Stage:     s,
		Message:   message,
		Percent:   percent,
		Completed: steps > 0 && s != stage.Failed,
	})
}

func (r *run) itemWorkDir(index int) string {
	return filepath.Join(r.o.settings.WorkDir, r.req.JobID, fmt.Sprintf("item_%03d", index))
}
