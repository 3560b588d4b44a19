package pipeline

import (
	"context"
	"log/slog"
	"time"

	"lecturebook/internal/contracts"
	"lecturebook/internal/services"
	"lecturebook/internal/stage"
)

// Options are the per-job feature toggles.
type Options struct {
	Enrich          bool     `json:"enrich"`
	Verify          bool     `json:"verify"`
	ModelExtraction bool     `json:"model_extraction"`
	FuzzyMatching   bool     `json:"fuzzy_matching"`
	RenderFormats   []string `json:"render_formats,omitempty"`
	Instructions    string   `json:"instructions,omitempty"`
}

// DefaultOptions enables enrichment, verification, and model extraction.
func DefaultOptions() Options {
	return Options{Enrich: true, Verify: true, ModelExtraction: true}
}

// ItemOutputs holds the stage payloads produced or loaded for one item.
type ItemOutputs struct {
	Download   *contracts.DownloadOutput
	Transcript *contracts.TranscriptOutput
	Enrichment *contracts.EnrichmentOutput
	Validation *contracts.ValidationOutput
}

func (o *ItemOutputs) set(payload contracts.Payload) {
	switch p := payload.(type) {
	case *contracts.DownloadOutput:
		o.Download = p
	case *contracts.TranscriptOutput:
		o.Transcript = p
	case *contracts.EnrichmentOutput:
		o.Enrichment = p
	case *contracts.ValidationOutput:
		o.Validation = p
	}
}

// ItemState tracks one source item during a run. Stage is the last stage the
// item completed, or stage.Failed with FailedStage and Cause set.
type ItemState struct {
	Index       int
	Source      string
	Stage       stage.Stage
	FailedStage stage.Stage
	Cause       services.CauseCode
	Message     string
	Outputs     ItemOutputs
}

// Passed reports whether the item reached Validate with a passing report.
func (s *ItemState) Passed() bool {
	return s.Stage == stage.Validate && s.Outputs.Validation != nil && s.Outputs.Validation.OverallPass
}

// ProgressEvent reports forward motion of a job. Item is contracts.JobLevel
// for Compile and Render. Completed is set when Stage finished or was
// restored from a checkpoint.
type ProgressEvent struct {
	JobID     string
	Item      int
	Stage     stage.Stage
	Message   string
	Percent   float64
	Completed bool
}

// RunRequest describes one execution of a job.
type RunRequest struct {
	JobID   string
	Items   []contracts.SourceItem
	Title   string
	Speaker string
	Options Options
	// CreatedAt is the job creation time; compiled books carry it instead of
	// the wall clock.
	CreatedAt time.Time
	// ResumeFrom re-enters the pipeline at this stage using stored
	// checkpoints. Empty means a fresh run.
	ResumeFrom stage.Stage
	// Progress is called serially as stages start and finish.
	Progress func(ProgressEvent)
	// Cancelled is polled at every stage boundary.
	Cancelled func() bool
	// Logger replaces the orchestrator's logger for this run when set.
	Logger *slog.Logger
}

// Result is the outcome of a run. Items is always populated, even when the
// run returns an error.
type Result struct {
	JobID  string
	Items  []*ItemState
	Book   *contracts.CompileOutput
	Render *contracts.RenderOutput
}

// Survivors returns the items that passed validation, in submission order.
func (r *Result) Survivors() []*ItemState {
	var out []*ItemState
	for _, it := range r.Items {
		if it.Passed() {
			out = append(out, it)
		}
	}
	return out
}

// StageInput is what a runner sees. Per-item stages use Item and Outputs;
// Compile uses Items; Render uses Book.
type StageInput struct {
	JobID     string
	Item      contracts.SourceItem
	WorkDir   string
	Options   Options
	Title     string
	Speaker   string
	CreatedAt time.Time
	Outputs   ItemOutputs
	Items     []*ItemState
	Book      *contracts.CompileOutput
}

// StageRunner executes one stage and returns its checkpoint payload.
type StageRunner interface {
	Stage() stage.Stage
	Run(ctx context.Context, in *StageInput) (contracts.Payload, error)
}

// Runners is the full stage set an Orchestrator drives.
type Runners struct {
	Download   StageRunner
	Transcribe StageRunner
	Enrich     StageRunner
	Validate   StageRunner
	Compile    StageRunner
	Render     StageRunner
}

func (r Runners) lookup(s stage.Stage) StageRunner {
	switch s {
	case stage.Download:
		return r.Download
	case stage.Transcribe:
		return r.Transcribe
	case stage.Enrich:
		return r.Enrich
	case stage.Validate:
		return r.Validate
	case stage.Compile:
		return r.Compile
	case stage.Render:
		return r.Render
	}
	return nil
}
