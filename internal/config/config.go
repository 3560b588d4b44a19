package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir       string `toml:"data_dir"`
	CheckpointDir string `toml:"checkpoint_dir"`
	OutputDir     string `toml:"output_dir"`
	WorkDir       string `toml:"work_dir"`
	LogDir        string `toml:"log_dir"`
}

// Pipeline contains orchestrator settings.
type Pipeline struct {
	ItemConcurrency     int `toml:"item_concurrency"`
	StageTimeoutSeconds int `toml:"stage_timeout_seconds"`
}

// Jobs contains job supervisor settings.
type Jobs struct {
	MaxConcurrent int    `toml:"max_concurrent"`
	DBPath        string `toml:"db_path"`
}

// Chunking contains the content chunker bounds and break weights.
type Chunking struct {
	ActivationThreshold     int     `toml:"activation_threshold"`
	MinSize                 int     `toml:"min_size"`
	MaxSize                 int     `toml:"max_size"`
	GapThresholdSeconds     float64 `toml:"gap_threshold_seconds"`
	GapWeight               float64 `toml:"gap_weight"`
	SpeakerChangeWeight     float64 `toml:"speaker_change_weight"`
	ReferenceBoundaryWeight float64 `toml:"reference_boundary_weight"`
}

// Verification contains reference lookup, cache, and rate limit settings.
type Verification struct {
	CachePath          string   `toml:"cache_path"`
	BaseURL            string   `toml:"base_url"`
	RequestDelayMS     int      `toml:"request_delay_ms"`
	MaxAttempts        int      `toml:"max_attempts"`
	InitialBackoffMS   int      `toml:"initial_backoff_ms"`
	MaxBackoffMS       int      `toml:"max_backoff_ms"`
	HTTPTimeoutSeconds int      `toml:"http_timeout_seconds"`
	FuzzyMinScore      float64  `toml:"fuzzy_min_score"`
	ModelExtraction    bool     `toml:"model_extraction"`
	FuzzyMatching      bool     `toml:"fuzzy_matching"`
	FastPathCommand    string   `toml:"fast_path_command"`
	FastPathArgs       []string `toml:"fast_path_args"`
	FastPathScriptures []string `toml:"fast_path_scriptures"`
}

// LLM contains text generation connection settings.
type LLM struct {
	Provider       string `toml:"provider"`
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Transcription contains WhisperX settings.
type Transcription struct {
	Model       string `toml:"model"`
	CUDAEnabled bool   `toml:"cuda_enabled"`
	VADMethod   string `toml:"vad_method"`
	HFToken     string `toml:"hf_token"`
	Diarize     bool   `toml:"diarize"`
	Language    string `toml:"language"`
}

// Download contains source retrieval settings.
type Download struct {
	YtDlpBinary        string `toml:"ytdlp_binary"`
	FFmpegBinary       string `toml:"ffmpeg_binary"`
	FFprobeBinary      string `toml:"ffprobe_binary"`
	HTTPTimeoutSeconds int    `toml:"http_timeout_seconds"`
}

// Validation contains post-hoc check thresholds.
type Validation struct {
	MinWordsPerMinute   float64 `toml:"min_words_per_minute"`
	RepetitionWindow    int     `toml:"repetition_window"`
	RepetitionThreshold int     `toml:"repetition_threshold"`
	MaxGapSeconds       float64 `toml:"max_gap_seconds"`
	MinConfidence       float64 `toml:"min_confidence"`
	MinVerificationRate float64 `toml:"min_verification_rate"`
	ExpectedLanguage    string  `toml:"expected_language"`
}

// Events contains job event publishing settings.
type Events struct {
	NATSURL       string `toml:"nats_url"`
	SubjectPrefix string `toml:"subject_prefix"`
	// NtfyTopic is the full ntfy topic URL; empty disables push notifications.
	NtfyTopic          string `toml:"ntfy_topic"`
	NtfyTimeoutSeconds int    `toml:"ntfy_timeout_seconds"`
}

// Watch contains inbox watcher settings for the serve command.
type Watch struct {
	InboxDir   string   `toml:"inbox_dir"`
	Extensions []string `toml:"extensions"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for lecturebook.
//
// Configuration sections by subsystem:
//   - Paths: data, checkpoint, output, work, and log directories
//   - Pipeline: per-job item concurrency and collaborator timeouts
//   - Jobs: supervisor concurrency and job database location
//   - Chunking: enrichment chunk bounds and break weights
//   - Verification: reference cache, lookup rate limits, fast path session
//   - LLM: text generation provider settings
//   - Transcription: WhisperX model and diarization
//   - Download: yt-dlp and ffmpeg binaries
//   - Validation: post-hoc check thresholds
//   - Events: NATS event publishing and ntfy notifications
//   - Watch: inbox directory watched by serve
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Pipeline      Pipeline      `toml:"pipeline"`
	Jobs          Jobs          `toml:"jobs"`
	Chunking      Chunking      `toml:"chunking"`
	Verification  Verification  `toml:"verification"`
	LLM           LLM           `toml:"llm"`
	Transcription Transcription `toml:"transcription"`
	Download      Download      `toml:"download"`
	Validation    Validation    `toml:"validation"`
	Events        Events        `toml:"events"`
	Watch         Watch         `toml:"watch"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("lecturebook.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for pipeline operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Paths.DataDir,
		c.Paths.CheckpointDir,
		c.Paths.OutputDir,
		c.Paths.WorkDir,
		c.Paths.LogDir,
		filepath.Dir(c.Jobs.DBPath),
		filepath.Dir(c.Verification.CachePath),
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// JobLogDir returns the directory holding one log file per job.
func (c *Config) JobLogDir() string {
	return filepath.Join(c.Paths.LogDir, "jobs")
}

// StageTimeout returns the per-collaborator call timeout.
func (c *Config) StageTimeout() time.Duration {
	return time.Duration(c.Pipeline.StageTimeoutSeconds) * time.Second
}

// Encode renders the configuration as TOML.
func (c *Config) Encode() ([]byte, error) {
	return toml.Marshal(c)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
