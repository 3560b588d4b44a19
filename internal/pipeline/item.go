package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"lecturebook/internal/checkpoint"
	"lecturebook/internal/contracts"
	"lecturebook/internal/logging"
	"lecturebook/internal/services"
	"lecturebook/internal/stage"
)

// runItem drives one item through the per-item stages. Only errors that
// must stop the whole job are returned; anything else fails the item. A
// cancelled item stops quietly so sibling items finish their current call;
// Run reports the cancellation once every item has returned.
func (r *run) runItem(ctx context.Context, item contracts.SourceItem, st *ItemState) error {
	ctx = services.WithItemIndex(ctx, item.Index)
	logger := logging.WithContext(ctx, r.o.logger)

	start := r.resumeItem(ctx, item, st)
	if start == "" {
		// Every per-item checkpoint was loaded.
		return nil
	}

	for s := start; s.PerItem(); s = s.Next() {
		if r.cancelled(ctx) {
			r.stopItem(logger, s)
			return nil
		}
		if st.Stage != "" && !stage.CanTransition(st.Stage, s) {
			return fmt.Errorf("item %d: illegal transition %s -> %s", item.Index, st.Stage, s)
		}
		r.report(item.Index, s, s.Label()+" started", 0)

		in := &StageInput{
			JobID:     r.req.JobID,
			Item:      item,
			WorkDir:   r.itemWorkDir(item.Index),
			Options:   r.req.Options,
			Title:     r.req.Title,
			Speaker:   r.req.Speaker,
			CreatedAt: r.req.CreatedAt,
			Outputs:   st.Outputs,
		}
		payload, err := r.execute(ctx, s, in)
		if err != nil {
			if r.cancelled(ctx) {
				r.stopItem(logger, s)
				return nil
			}
			r.failItem(ctx, st, s, err)
			if services.FatalToJob(err) {
				return err
			}
			return nil
		}
		if err := r.put(ctx, checkpoint.ItemKey(r.req.JobID, item.Index, s), payload); err != nil {
			r.failItem(ctx, st, s, err)
			return err
		}
		st.Outputs.set(payload)

		if s == stage.Validate && !st.Outputs.Validation.OverallPass {
			critical := st.Outputs.Validation.Failed(contracts.SeverityCritical)
			names := make([]string, 0, len(critical))
			for _, f := range critical {
				names = append(names, f.Check)
			}
			err := services.Wrap(services.ErrValidation, string(s), "validate item",
				"critical findings: "+strings.Join(names, ", "), nil)
			r.failItem(ctx, st, s, err)
			return nil
		}
		st.Stage = s
		r.report(item.Index, s, s.Label()+" completed", 1)
	}
	logger.Info("item completed",
		logging.String(logging.FieldEventType, "item_complete"),
		logging.String("source", item.Source),
	)
	return nil
}

// resumeItem loads stored checkpoints when the run resumes and returns the
// first stage the item still has to execute. It returns "" when the item is
// complete through Validate, and stage.Download when the prerequisites of
// the requested resume stage are missing or invalid.
func (r *run) resumeItem(ctx context.Context, item contracts.SourceItem, st *ItemState) stage.Stage {
	target := r.req.ResumeFrom
	if target == "" || target == stage.Download {
		return stage.Download
	}
	if !target.PerItem() {
		// Job-level resume needs every item stage.
		target = stage.Compile
	}
	entry, ok := stage.Resume(target)
	if !ok {
		return stage.Download
	}

	var loaded ItemOutputs
	for _, s := range stage.ItemStages() {
		if !s.Before(entry.Stage) {
			break
		}
		payload, err := r.o.store.Get(ctx, checkpoint.ItemKey(r.req.JobID, item.Index, s))
		if err != nil {
			logging.WarnWithContext(logging.WithContext(ctx, r.o.logger), "resume checkpoint unavailable; restarting item", "resume_fallback",
				logging.String("missing_stage", string(s)),
				logging.String("requested_stage", string(r.req.ResumeFrom)),
				logging.String(logging.FieldErrorHint, "the item is processed again from download"),
				logging.String(logging.FieldImpact, "earlier stages are repeated for this item"),
				logging.Error(err),
			)
			return stage.Download
		}
		loaded.set(payload)
	}
	st.Outputs = loaded
	st.Stage = entry.Requires
	for _, s := range stage.ItemStages() {
		if s.Before(entry.Stage) {
			r.report(item.Index, s, s.Label()+" restored", 1)
		}
	}

	if entry.Stage == stage.Compile {
		if !loaded.Validation.OverallPass {
			r.failItem(ctx, st, stage.Validate, services.Wrap(services.ErrValidation, string(stage.Validate), "resume item", "stored validation report did not pass", nil))
		}
		return ""
	}
	return entry.Stage
}

func (r *run) failItem(ctx context.Context, st *ItemState, s stage.Stage, err error) {
	details := services.Details(err)
	st.FailedStage = s
	st.Cause = details.Code
	st.Message = details.Message
	st.Stage = stage.Failed
	logging.ErrorWithContext(logging.WithContext(services.WithStage(ctx, string(s)), r.o.logger), "stage failed", "stage_failure",
		logging.String(logging.FieldErrorCode, string(details.Code)),
		logging.String(logging.FieldErrorHint, details.Hint),
		logging.String(logging.FieldImpact, "item excluded from the compiled book"),
		logging.Error(err),
	)
	// The stages the item will never run still count toward progress.
	skipped := 0
	if s.PerItem() {
		skipped = stage.Validate.Index() - s.Index() + 1
	}
	r.report(st.Index, stage.Failed, fmt.Sprintf("%s failed: %s", s.Label(), details.Code), skipped)
}

// runJobStages compiles the surviving items and renders the book.
func (r *run) runJobStages(ctx context.Context, result *Result) error {
	var book *contracts.CompileOutput
	if r.req.ResumeFrom == stage.Render {
		payload, err := r.o.store.Get(ctx, checkpoint.JobKey(r.req.JobID, stage.Compile))
		if err == nil {
			book = payload.(*contracts.CompileOutput)
			r.report(contracts.JobLevel, stage.Compile, "Compile restored", 1)
		} else if !errors.Is(err, checkpoint.ErrMissing) {
			return services.Wrap(services.ErrCheckpoint, string(stage.Compile), "load checkpoint", "compile", err)
		}
	}

	if book == nil {
		if len(result.Survivors()) == 0 {
			return services.Wrap(services.ErrNoSurvivors, string(stage.Compile), "select items", "no item passed validation", nil)
		}
		payload, err := r.jobStage(ctx, stage.Compile, &StageInput{Items: result.Items})
		if err != nil {
			return err
		}
		book = payload.(*contracts.CompileOutput)
	}
	result.Book = book

	payload, err := r.jobStage(ctx, stage.Render, &StageInput{Book: book})
	if err != nil {
		return err
	}
	result.Render = payload.(*contracts.RenderOutput)
	return nil
}

func (r *run) stopItem(logger *slog.Logger, next stage.Stage) {
	logger.Info("item stopped for cancellation",
		logging.String(logging.FieldEventType, "item_cancelled"),
		logging.String("next_stage", string(next)),
	)
}

func (r *run) jobStage(ctx context.Context, s stage.Stage, in *StageInput) (contracts.Payload, error) {
	if r.cancelled(ctx) {
		return nil, services.Wrap(services.ErrCancelled, string(s), "run", "job cancelled", ctx.Err())
	}
	in.JobID = r.req.JobID
	in.Options = r.req.Options
	in.Title = r.req.Title
	in.Speaker = r.req.Speaker
	in.CreatedAt = r.req.CreatedAt
	in.WorkDir = r.o.settings.WorkDir
	r.report(contracts.JobLevel, s, s.Label()+" started", 0)

	payload, err := r.execute(ctx, s, in)
	if err != nil {
		return nil, err
	}
	if err := r.put(ctx, checkpoint.JobKey(r.req.JobID, s), payload); err != nil {
		return nil, err
	}
	r.report(contracts.JobLevel, s, s.Label()+" completed", 1)
	return payload, nil
}
