package transcribe

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/language"

	"lecturebook/internal/contracts"
	"lecturebook/internal/logging"
	"lecturebook/internal/services"
)

// Service provides WhisperX transcription.
type Service struct {
	cfg           Config
	logger        *slog.Logger
	commandRunner func(ctx context.Context, name string, args ...string) error
}

// NewService creates a WhisperX service with the given configuration.
func NewService(cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{cfg: cfg, logger: logger}
}

// WithCommandRunner replaces process execution, for tests.
func (s *Service) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) {
	s.commandRunner = runner
}

// Model returns the WhisperX model in use.
func (s *Service) Model() string { return s.cfg.model() }

func (s *Service) run(ctx context.Context, name string, args ...string) error {
	if s.commandRunner != nil {
		return s.commandRunner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	// pyannote checkpoints do not load under torch's weights_only default.
	if _, set := os.LookupEnv("TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD"); !set {
		cmd.Env = append(os.Environ(), "TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD=1")
	}
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, tail(string(output), 2000))
	}
	return nil
}

// Transcribe runs WhisperX over audioPath, writing its output under workDir.
// durationHint, when positive, is the source duration reported by the
// download stage.
func (s *Service) Transcribe(ctx context.Context, audioPath, workDir string, durationHint float64) (*contracts.TranscriptOutput, error) {
	if strings.TrimSpace(audioPath) == "" {
		return nil, services.Wrap(services.ErrValidation, "transcribe", "whisperx", "audio path required", nil)
	}
	if _, err := os.Stat(audioPath); err != nil {
		return nil, services.Wrap(services.ErrNotFound, "transcribe", "whisperx", "audio file missing", err)
	}
	if workDir == "" {
		workDir = filepath.Dir(audioPath)
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "transcribe", "whisperx", "ensure output dir", err)
	}

	started := time.Now()
	s.logger.Info("transcription started",
		logging.String(logging.FieldEventType, "transcription_started"),
		logging.String("audio", audioPath),
		logging.String("model", s.Model()),
		logging.Bool("diarize", s.cfg.diarize()),
	)
	if err := s.run(ctx, Launcher, s.buildArgs(audioPath, workDir)...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, services.Wrap(services.ErrExternalTool, "transcribe", "whisperx", "whisperx failed", err)
	}

	jsonPath := OutputPath(audioPath, workDir)
	payload, err := LoadPayload(jsonPath)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "transcribe", "load output", "whisperx produced no readable json", err)
	}
	out := Convert(payload, audioPath, s.Model(), durationHint)
	if out.Language == "" {
		out.Language = isoLanguage(s.cfg.Language)
	}
	if err := out.Validate(); err != nil {
		return nil, services.Wrap(services.ErrValidation, "transcribe", "convert output", "transcript is unusable", err)
	}
	s.logger.Info("transcription complete",
		logging.String(logging.FieldEventType, "transcription_complete"),
		logging.Int("segments", len(out.Segments)),
		logging.Int("speakers", out.SpeakersDetected),
		logging.String("language", out.Language),
		logging.Float64("duration_seconds", out.DurationSeconds),
		logging.Duration("elapsed", time.Since(started)),
	)
	return out, nil
}

// OutputPath is where WhisperX writes the JSON for audioPath.
func OutputPath(audioPath, workDir string) string {
	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	return filepath.Join(workDir, base+".json")
}

// buildArgs assembles the uvx invocation: package index, WhisperX with its
// decoding flags, VAD and diarization, then the device.
func (s *Service) buildArgs(source, outputDir string) []string {
	cfg := s.cfg
	var args []string
	if cfg.CUDAEnabled {
		args = append(args, "--index-url", torchCUDAIndex, "--extra-index-url", pypiIndex)
	} else {
		args = append(args, "--index-url", pypiIndex)
	}
	args = append(args, "whisperx", source, "--model", cfg.model(), "--output_dir", outputDir)
	args = append(args, decodeFlags...)

	args = append(args, "--vad_method", cfg.vad())
	if cfg.HFToken != "" && (cfg.vad() == vadPyannote || cfg.diarize()) {
		args = append(args, "--hf_token", cfg.HFToken)
	}
	if cfg.diarize() {
		args = append(args, "--diarize", "--min_speakers", "1")
	}
	if lang := isoLanguage(cfg.Language); lang != "" {
		args = append(args, "--language", lang)
	}
	if cfg.CUDAEnabled {
		return append(args, "--device", "cuda")
	}
	return append(args, "--device", "cpu", "--compute_type", "float32")
}

// isoLanguage reduces a language tag to its two-letter base ("en-US" -> "en").
func isoLanguage(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	tag, err := language.Parse(value)
	if err != nil {
		return ""
	}
	base, _ := tag.Base()
	return base.String()
}

func tail(text string, limit int) string {
	text = strings.TrimSpace(text)
	if len(text) <= limit {
		return text
	}
	return "..." + text[len(text)-limit:]
}
