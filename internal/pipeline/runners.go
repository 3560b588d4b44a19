package pipeline

import (
	"context"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"lecturebook/internal/chunker"
	"lecturebook/internal/compile"
	"lecturebook/internal/contracts"
	"lecturebook/internal/download"
	"lecturebook/internal/enrich"
	"lecturebook/internal/logging"
	"lecturebook/internal/render"
	"lecturebook/internal/services"
	"lecturebook/internal/stage"
	"lecturebook/internal/validation"
	"lecturebook/internal/verify"
)

// Downloader fetches and normalizes one source.
type Downloader interface {
	Download(ctx context.Context, req download.Request) (*contracts.DownloadOutput, error)
}

// Transcriber turns normalized audio into a transcript.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, workDir string, durationHint float64) (*contracts.TranscriptOutput, error)
}

// BatchVerifier resolves a batch of citations.
type BatchVerifier interface {
	BatchVerify(ctx context.Context, citations []verify.Citation) (map[verify.Key]verify.Outcome, error)
}

func missingInput(s stage.Stage, what string) error {
	return services.Wrap(services.ErrCheckpoint, string(s), "load input", what+" output missing", nil)
}

// DownloadRunner runs the download stage.
type DownloadRunner struct {
	Downloader Downloader
}

func (*DownloadRunner) Stage() stage.Stage { return stage.Download }

func (r *DownloadRunner) Run(ctx context.Context, in *StageInput) (contracts.Payload, error) {
	out, err := r.Downloader.Download(ctx, download.Request{
		Source:  in.Item.Source,
		Order:   in.Item.Index,
		Dir:     in.WorkDir,
		Title:   in.Item.Title,
		Speaker: in.Item.Speaker,
	})
	if err != nil {
		return nil, err
	}
	if out.UploadDate == "" {
		out.UploadDate = in.Item.Date
	}
	return out, nil
}

// TranscribeRunner runs the transcribe stage.
type TranscribeRunner struct {
	Transcriber Transcriber
}

func (*TranscribeRunner) Stage() stage.Stage { return stage.Transcribe }

func (r *TranscribeRunner) Run(ctx context.Context, in *StageInput) (contracts.Payload, error) {
	d := in.Outputs.Download
	if d == nil {
		return nil, missingInput(stage.Transcribe, "download")
	}
	return r.Transcriber.Transcribe(ctx, d.AudioPath, filepath.Join(in.WorkDir, "transcript"), d.DurationSeconds)
}

// EnrichRunner identifies and verifies citations, chunks the transcript, and
// writes notes for it.
type EnrichRunner struct {
	Identifier *verify.Identifier
	Verifier   BatchVerifier
	Writer     *enrich.Writer
	Bounds     chunker.Bounds
	Weights    chunker.Weights
	Logger     *slog.Logger
}

func (*EnrichRunner) Stage() stage.Stage { return stage.Enrich }

func (r *EnrichRunner) Run(ctx context.Context, in *StageInput) (contracts.Payload, error) {
	t := in.Outputs.Transcript
	if t == nil {
		return nil, missingInput(stage.Enrich, "transcript")
	}
	logger := logging.WithContext(ctx, logging.NewComponentLogger(r.Logger, "enrich"))

	id := verify.Identifier{}
	if r.Identifier != nil {
		id = *r.Identifier
	}
	if !in.Options.ModelExtraction {
		id.Model = nil
	}
	if !in.Options.FuzzyMatching {
		id.Fuzzy = nil
	}
	set, err := id.Identify(ctx, t.FullText, t.SegmentTexts())
	if err != nil {
		return nil, err
	}
	citations := set.Citations()

	outcomes, err := r.verify(ctx, in.Options, citations)
	if err != nil {
		return nil, err
	}

	chunks := chunker.Split(t.Segments, citations, outcomes, r.Bounds, r.Weights)
	plan := chunker.Summarize(chunks, r.Bounds)
	logger.Info("chunk plan", logging.Args(plan.LogAttrs()...)...)

	out := &contracts.EnrichmentOutput{
		Source:    sourceOf(in),
		Citations: citations,
		Outcomes:  outcomes,
		Themes:    themes(chunks),
	}
	out.Verification = contracts.Summarize(outcomes)

	if !in.Options.Enrich {
		out.Markdown = plainNotes(in, t)
		out.Chunking = contracts.ChunkingSummary{Chunked: len(chunks) > 1, ChunkCount: len(chunks)}
		return out, nil
	}
	if r.Writer == nil {
		return nil, services.Wrap(services.ErrConfiguration, string(stage.Enrich), "write notes", "text generator not configured", nil)
	}
	w := *r.Writer
	if strings.TrimSpace(in.Options.Instructions) != "" {
		w.Instructions = in.Options.Instructions
	}
	if w.Logger == nil {
		w.Logger = logger
	}
	notes, err := w.Write(ctx, chunks)
	if err != nil {
		return nil, err
	}
	out.Markdown = notes.Markdown
	out.Chunking = notes.Chunking
	return out, nil
}

func (r *EnrichRunner) verify(ctx context.Context, opts Options, citations []verify.Citation) ([]verify.Outcome, error) {
	if !opts.Verify || r.Verifier == nil || len(citations) == 0 {
		outcomes := make([]verify.Outcome, len(citations))
		for i, c := range citations {
			outcomes[i] = verify.Outcome{Key: c.Key(), Kind: verify.OutcomeUnresolved, Source: verify.ResolutionUnresolved, Error: "verification disabled"}
		}
		return outcomes, nil
	}
	results, err := r.Verifier.BatchVerify(ctx, citations)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, services.Wrap(services.ErrExternalTool, string(stage.Enrich), "verify citations", "verse cache unavailable", err)
	}
	return verify.OrderedOutcomes(citations, results), nil
}

func sourceOf(in *StageInput) string {
	if d := in.Outputs.Download; d != nil && d.SourceURL != "" {
		return d.SourceURL
	}
	return in.Item.Source
}

// themes returns the distinct chunk themes in scripture priority order.
func themes(chunks []chunker.Chunk) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, c := range chunks {
		for _, theme := range c.Themes {
			if _, ok := seen[theme]; ok {
				continue
			}
			seen[theme] = struct{}{}
			out = append(out, theme)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return priority(out[i]) < priority(out[j])
	})
	return out
}

func priority(theme string) int {
	if s, ok := verify.ParseScripture(theme); ok {
		return s.Priority()
	}
	return len(verify.Scriptures())
}

// plainNotes is the markdown carried forward when enrichment is switched off.
func plainNotes(in *StageInput, t *contracts.TranscriptOutput) string {
	title := in.Item.Title
	if d := in.Outputs.Download; title == "" && d != nil {
		title = d.Title
	}
	if title == "" {
		title = "Lecture Transcript"
	}
	var b strings.Builder
	b.WriteString("# " + title + "\n\n## Transcript\n\n")
	speaker := ""
	for i, seg := range t.Segments {
		if i > 0 && seg.Speaker != speaker {
			b.WriteString("\n\n")
		} else if i > 0 {
			b.WriteByte(' ')
		}
		speaker = seg.Speaker
		b.WriteString(strings.TrimSpace(seg.Text))
	}
	b.WriteString("\n")
	return b.String()
}

// ValidateRunner runs the post-hoc quality checks.
type ValidateRunner struct {
	Validator *validation.Validator
}

func (*ValidateRunner) Stage() stage.Stage { return stage.Validate }

func (r *ValidateRunner) Run(_ context.Context, in *StageInput) (contracts.Payload, error) {
	if in.Outputs.Transcript == nil {
		return nil, missingInput(stage.Validate, "transcript")
	}
	return r.Validator.Validate(validation.Input{
		Download:   in.Outputs.Download,
		Transcript: in.Outputs.Transcript,
		Enrichment: in.Outputs.Enrichment,
	}), nil
}

// CompileRunner assembles the surviving items into a book.
type CompileRunner struct {
	Compiler *compile.Compiler
}

func (*CompileRunner) Stage() stage.Stage { return stage.Compile }

func (r *CompileRunner) Run(_ context.Context, in *StageInput) (contracts.Payload, error) {
	req := compile.Request{
		Title:      in.Title,
		Speaker:    in.Speaker,
		CompiledAt: in.CreatedAt,
		Sources:    make(map[int]string, len(in.Items)),
	}
	for _, it := range in.Items {
		req.Sources[it.Index] = it.Source
		if it.Passed() {
			req.Items = append(req.Items, compile.Item{
				Index:      it.Index,
				Download:   it.Outputs.Download,
				Transcript: it.Outputs.Transcript,
				Enrichment: it.Outputs.Enrichment,
				Validation: it.Outputs.Validation,
			})
			continue
		}
		req.Failed = append(req.Failed, compile.FailedItem{
			Index:  it.Index,
			Source: it.Source,
			Stage:  it.FailedStage,
			Cause:  it.Cause,
		})
	}
	return r.Compiler.Compile(req)
}

// RenderRunner writes the compiled book.
type RenderRunner struct {
	Renderer *render.Renderer
}

func (*RenderRunner) Stage() stage.Stage { return stage.Render }

func (r *RenderRunner) Run(ctx context.Context, in *StageInput) (contracts.Payload, error) {
	return r.Renderer.Render(ctx, in.JobID, in.Book, in.Options.RenderFormats)
}
