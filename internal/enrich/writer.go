package enrich

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"lecturebook/internal/chunker"
	"lecturebook/internal/contracts"
	"lecturebook/internal/llm"
	"lecturebook/internal/logging"
	"lecturebook/internal/services"
)

const defaultMaxTokens = 16000

// Writer generates lecture notes for chunks through a text generator.
type Writer struct {
	Generator    llm.Generator
	MaxTokens    int
	Temperature  float64
	Instructions string
	Logger       *slog.Logger
}

// Notes is the merged enrichment markdown and how it was produced.
type Notes struct {
	Markdown string
	Chunking contracts.ChunkingSummary
	Results  []chunker.ChunkResult
}

// Write generates notes for each chunk in order and merges them. A chunk
// whose generation fails or returns nothing becomes a placeholder section;
// the call fails only when every chunk fails or ctx is cancelled.
func (w *Writer) Write(ctx context.Context, chunks []chunker.Chunk) (Notes, error) {
	if w == nil || w.Generator == nil {
		return Notes{}, services.Wrap(services.ErrConfiguration, "enrich", "write notes", "text generator not configured", nil)
	}
	if len(chunks) == 0 {
		return Notes{}, services.Wrap(services.ErrValidation, "enrich", "write notes", "no transcript content", nil)
	}
	logger := w.logger().With(logging.String("generator", w.Generator.Name()))

	chunked := len(chunks) > 1
	results := make([]chunker.ChunkResult, 0, len(chunks))
	var failed []int
	var lastErr error
	for _, c := range chunks {
		if err := ctx.Err(); err != nil {
			return Notes{}, err
		}
		var prompt string
		if chunked {
			prompt = ChunkMessage(c, len(chunks), w.Instructions)
		} else {
			prompt = DocumentMessage(c.Text, c.Outcomes, w.Instructions)
		}

		started := time.Now()
		text, err := w.Generator.Generate(ctx, llm.Request{
			System:      NotesPrompt,
			Prompt:      prompt,
			MaxTokens:   w.maxTokens(),
			Temperature: w.Temperature,
		})
		if err != nil && ctx.Err() != nil {
			return Notes{}, ctx.Err()
		}
		result := chunker.ChunkResult{Index: c.Index}
		switch {
		case err != nil:
			result.Failure = err.Error()
			lastErr = err
		default:
			result.Markdown = llm.StripCodeFence(text)
			if result.Markdown == "" {
				result.Failure = "empty output"
			}
		}
		if result.Failed() {
			failed = append(failed, c.Index)
			logging.WarnWithContext(logger, "chunk generation failed", "chunk_failed",
				logging.Int("chunk", c.Index+1),
				logging.Int("chunks", len(chunks)),
				logging.String("reason", result.Failure),
				logging.String(logging.FieldImpact, "section is replaced by a placeholder"),
			)
		} else {
			logger.Info("chunk generated",
				logging.String(logging.FieldEventType, "chunk_generated"),
				logging.Int("chunk", c.Index+1),
				logging.Int("chunks", len(chunks)),
				logging.Int("citations", len(c.Citations)),
				logging.Int("output_chars", len(result.Markdown)),
				logging.Duration("elapsed", time.Since(started)),
			)
		}
		results = append(results, result)
	}

	if len(failed) == len(chunks) {
		if lastErr == nil {
			lastErr = errors.New("empty output")
		}
		return Notes{}, services.Wrap(services.ErrExternalTool, "enrich", "write notes", "all chunks failed", lastErr)
	}
	return Notes{
		Markdown: strings.TrimSpace(chunker.Merge(results)),
		Chunking: contracts.ChunkingSummary{
			Chunked:      chunked,
			ChunkCount:   len(chunks),
			FailedChunks: failed,
		},
		Results: results,
	}, nil
}

func (w *Writer) maxTokens() int {
	if w.MaxTokens > 0 {
		return w.MaxTokens
	}
	return defaultMaxTokens
}

func (w *Writer) logger() *slog.Logger {
	if w.Logger == nil {
		return logging.NewNop()
	}
	return w.Logger
}
