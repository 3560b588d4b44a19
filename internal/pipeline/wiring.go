package pipeline

import (
	"context"
	"log/slog"
	"time"

	"lecturebook/internal/checkpoint"
	"lecturebook/internal/chunker"
	"lecturebook/internal/compile"
	"lecturebook/internal/config"
	"lecturebook/internal/download"
	"lecturebook/internal/enrich"
	"lecturebook/internal/llm"
	"lecturebook/internal/logging"
	"lecturebook/internal/render"
	"lecturebook/internal/services"
	"lecturebook/internal/transcribe"
	"lecturebook/internal/validation"
	"lecturebook/internal/verify"
)

// OptionsFromConfig returns the default job options for cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	opts := DefaultOptions()
	opts.ModelExtraction = cfg.Verification.ModelExtraction
	opts.FuzzyMatching = cfg.Verification.FuzzyMatching
	return opts
}

// Built is an orchestrator wired from configuration together with the
// resources it holds open.
type Built struct {
	Orchestrator *Orchestrator
	Store        *checkpoint.Store
	closers      []func() error
}

// Close releases long-lived collaborator sessions.
func (b *Built) Close() error {
	var first error
	for _, c := range b.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// NewFromConfig wires every stage runner to its production collaborator.
func NewFromConfig(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Built, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	store, err := checkpoint.Open(cfg.Paths.CheckpointDir, logger)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "open checkpoints", cfg.Paths.CheckpointDir, err)
	}
	built := &Built{Store: store}

	gen, err := llm.New(ctx, llm.ConfigFrom(cfg.LLM))
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "build text generator", cfg.LLM.Provider, err)
	}

	opener := NewSessionOpener(cfg.Verification, logger)
	fuzzyCache := verify.NewCache(cfg.Verification.CachePath, logger)
	if err := fuzzyCache.Load(ctx); err != nil {
		logging.WarnWithContext(logger, "verse cache unavailable for fuzzy matching", "cache_load",
			logging.Error(err),
			logging.String(logging.FieldImpact, "recitations are matched only against the verse server"),
		)
	}
	fuzzy := verify.MultiFuzzyMatcher{&verify.CacheFuzzyMatcher{Cache: fuzzyCache, TopN: 3}}
	if opener.Command != "" {
		session := &verify.SessionFuzzyMatcher{Opener: opener, TopN: 3}
		fuzzy = verify.MultiFuzzyMatcher{session, fuzzy[0]}
		built.closers = append(built.closers, session.Close)
	}

	bounds, weights := chunker.FromConfig(cfg.Chunking)
	runners := Runners{
		Download: &DownloadRunner{Downloader: download.New(download.FromConfig(cfg.Download), logger)},
		Transcribe: &TranscribeRunner{
			Transcriber: transcribe.NewService(transcribe.FromConfig(cfg.Transcription), logger),
		},
		Enrich: &EnrichRunner{
			Identifier: &verify.Identifier{
				Model:         &enrich.ModelExtractor{Generator: gen, Logger: logger},
				Fuzzy:         fuzzy,
				MinFuzzyScore: cfg.Verification.FuzzyMinScore,
				Logger:        logger,
			},
			Verifier: &cacheVerifier{cfg: cfg.Verification, opener: opener, logger: logger},
			Writer:   &enrich.Writer{Generator: gen, Logger: logger},
			Bounds:   bounds,
			Weights:  weights,
			Logger:   logger,
		},
		Validate: &ValidateRunner{Validator: validation.New(validation.FromConfig(cfg.Validation), logger)},
		Compile:  &CompileRunner{Compiler: &compile.Compiler{Logger: logger}},
		Render:   &RenderRunner{Renderer: &render.Renderer{OutputDir: cfg.Paths.OutputDir, Logger: logger}},
	}
	built.Orchestrator = New(store, runners, Settings{
		ItemConcurrency: cfg.Pipeline.ItemConcurrency,
		StageTimeout:    cfg.StageTimeout(),
		WorkDir:         cfg.Paths.WorkDir,
	}, logger)
	return built, nil
}

// cacheVerifier builds a verifier with its own cache instance per batch, so
// items running side by side each load, merge, and save independently.
type cacheVerifier struct {
	cfg    config.Verification
	opener *verify.MCPSessionOpener
	logger *slog.Logger
}

func (c *cacheVerifier) BatchVerify(ctx context.Context, citations []verify.Citation) (map[verify.Key]verify.Outcome, error) {
	return NewVerifier(c.cfg, c.opener, c.logger).BatchVerify(ctx, citations)
}

// NewVerifier builds a verifier from the verification config section.
func NewVerifier(cfg config.Verification, opener verify.SessionOpener, logger *slog.Logger) *verify.Verifier {
	opts := []verify.VerifierOption{
		verify.WithRequestDelay(time.Duration(cfg.RequestDelayMS) * time.Millisecond),
		verify.WithRetryPolicy(verify.RetryPolicy{
			MaxAttempts:  cfg.MaxAttempts,
			InitialDelay: time.Duration(cfg.InitialBackoffMS) * time.Millisecond,
			MaxDelay:     time.Duration(cfg.MaxBackoffMS) * time.Millisecond,
		}),
		verify.WithLogger(logger),
	}
	if cfg.FastPathCommand != "" && opener != nil {
		opts = append(opts, verify.WithSessionOpener(opener))
	}
	cache := verify.NewCache(cfg.CachePath, logger)
	fetcher := verify.NewVedabaseFetcher(cfg.BaseURL, time.Duration(cfg.HTTPTimeoutSeconds)*time.Second)
	return verify.NewVerifier(cache, fetcher, opts...)
}

// NewSessionOpener returns the fast-path verse server launcher. Its Command
// is empty when no fast path is configured.
func NewSessionOpener(cfg config.Verification, logger *slog.Logger) *verify.MCPSessionOpener {
	return &verify.MCPSessionOpener{
		Command:    cfg.FastPathCommand,
		Args:       cfg.FastPathArgs,
		Scriptures: parseScriptures(cfg.FastPathScriptures),
		Logger:     logger,
	}
}

func parseScriptures(values []string) []verify.Scripture {
	out := make([]verify.Scripture, 0, len(values))
	for _, v := range values {
		if s, ok := verify.ParseScripture(v); ok {
			out = append(out, s)
		}
	}
	return out
}
