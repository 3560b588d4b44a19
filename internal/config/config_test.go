package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"lecturebook/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("LECTUREBOOK_NATS_URL", "nats://127.0.0.1:4222")
	t.Setenv("LECTUREBOOK_NTFY_TOPIC", "")

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantCheckpoints := filepath.Join(tempHome, ".local", "share", "lecturebook", "checkpoints")
	if cfg.Paths.CheckpointDir != wantCheckpoints {
		t.Fatalf("unexpected checkpoint dir: got %q want %q", cfg.Paths.CheckpointDir, wantCheckpoints)
	}
	if cfg.Paths.OutputDir != filepath.Join(tempHome, "lecturebook", "output") {
		t.Fatalf("unexpected output dir: %q", cfg.Paths.OutputDir)
	}
	if cfg.Jobs.MaxConcurrent != 2 {
		t.Fatalf("expected max_concurrent 2, got %d", cfg.Jobs.MaxConcurrent)
	}
	if cfg.Chunking.ActivationThreshold != 30000 || cfg.Chunking.MinSize != 5000 || cfg.Chunking.MaxSize != 40000 {
		t.Fatalf("unexpected chunking bounds: %+v", cfg.Chunking)
	}
	if cfg.Verification.MaxAttempts != 3 || cfg.Verification.InitialBackoffMS != 2000 {
		t.Fatalf("unexpected verification retry defaults: %+v", cfg.Verification)
	}
	if len(cfg.Verification.FastPathScriptures) != 1 || cfg.Verification.FastPathScriptures[0] != "BG" {
		t.Fatalf("unexpected fast path scriptures: %v", cfg.Verification.FastPathScriptures)
	}
	if cfg.Events.NATSURL != "nats://127.0.0.1:4222" {
		t.Fatalf("expected NATS url from env, got %q", cfg.Events.NATSURL)
	}
	if cfg.Events.NtfyTopic != "" || cfg.Events.NtfyTimeoutSeconds != 10 {
		t.Fatalf("unexpected ntfy defaults: %+v", cfg.Events)
	}
	if cfg.StageTimeout().Minutes() != 30 {
		t.Fatalf("unexpected stage timeout: %s", cfg.StageTimeout())
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.CheckpointDir, cfg.Paths.OutputDir, cfg.Paths.WorkDir, cfg.Paths.LogDir, filepath.Dir(cfg.Verification.CachePath)} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "lecturebook.toml")

	type payload struct {
		Chunking struct {
			ActivationThreshold int `toml:"activation_threshold"`
			MinSize             int `toml:"min_size"`
			MaxSize             int `toml:"max_size"`
		} `toml:"chunking"`
		LLM struct {
			Provider string `toml:"provider"`
			APIKey   string `toml:"api_key"`
		} `toml:"llm"`
		Verification struct {
			FastPathScriptures []string `toml:"fast_path_scriptures"`
		} `toml:"verification"`
	}
	custom := payload{}
	custom.Chunking.ActivationThreshold = 800
	custom.Chunking.MinSize = 100
	custom.Chunking.MaxSize = 900
	custom.LLM.Provider = "Gemini"
	custom.LLM.APIKey = "file-key"
	custom.Verification.FastPathScriptures = []string{"bg", " sb ", "BG"}
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Chunking.MinSize != 100 || cfg.Chunking.MaxSize != 900 {
		t.Fatalf("expected chunking overrides, got %+v", cfg.Chunking)
	}
	if cfg.LLM.Provider != "gemini" {
		t.Fatalf("expected provider to be normalized, got %q", cfg.LLM.Provider)
	}
	if cfg.LLM.Model != "gemini-2.5-flash" {
		t.Fatalf("expected gemini default model, got %q", cfg.LLM.Model)
	}
	if got := strings.Join(cfg.Verification.FastPathScriptures, ","); got != "BG,SB" {
		t.Fatalf("expected deduplicated scriptures, got %q", got)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "lecturebook.toml")
	if err := os.WriteFile(configPath, []byte("[chunking]\nmystery = 1\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(configPath); err == nil {
		t.Fatal("expected unknown field to be rejected")
	}
}

func TestEnvFallbackOnlyFillsEmptyKeys(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "lecturebook.toml")
	contents := "[llm]\napi_key = \"file-key\"\n"
	if err := os.WriteFile(configPath, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("OPENROUTER_API_KEY", "env-key")
	t.Setenv("HF_TOKEN", "env-hf")

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.LLM.APIKey != "file-key" {
		t.Errorf("expected file key to win, got %q", cfg.LLM.APIKey)
	}
	if cfg.Transcription.HFToken != "env-hf" {
		t.Errorf("expected HF token from env, got %q", cfg.Transcription.HFToken)
	}
	if err := cfg.RequireLLM(); err != nil {
		t.Errorf("expected llm key to satisfy RequireLLM: %v", err)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "[verification]") {
		t.Fatalf("sample config missing verification section: %s", contents)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("load sample: %v", err)
	}
	if !exists {
		t.Fatal("expected sample to exist")
	}
	if !strings.Contains(cfg.Paths.CheckpointDir, "lecturebook") {
		t.Fatalf("expected checkpoint dir to contain lecturebook, got %q", cfg.Paths.CheckpointDir)
	}
	if cfg.Chunking != config.Default().Chunking {
		t.Fatalf("sample chunking differs from defaults: %+v", cfg.Chunking)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"min size", func(c *config.Config) { c.Chunking.MinSize = 0 }, "chunking.min_size must be positive"},
		{"min above max", func(c *config.Config) { c.Chunking.MinSize = c.Chunking.MaxSize + 1 }, "must not exceed"},
		{"activation above max", func(c *config.Config) { c.Chunking.ActivationThreshold = c.Chunking.MaxSize + 1 }, "chunking.activation_threshold"},
		{"item concurrency", func(c *config.Config) { c.Pipeline.ItemConcurrency = 0 }, "pipeline.item_concurrency"},
		{"attempts", func(c *config.Config) { c.Verification.MaxAttempts = 0 }, "verification.max_attempts"},
		{"fuzzy score", func(c *config.Config) { c.Verification.FuzzyMinScore = 1.5 }, "fuzzy_min_score"},
		{"provider", func(c *config.Config) { c.LLM.Provider = "other" }, "llm.provider"},
		{"log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"repetition", func(c *config.Config) { c.Validation.RepetitionThreshold = 1 }, "repetition_threshold"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q in %q", tc.want, err.Error())
			}
		})
	}

	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestRequireLLMMentionsEnvVar(t *testing.T) {
	cfg := config.Default()
	cfg.LLM.APIKey = ""
	err := cfg.RequireLLM()
	if err == nil || !strings.Contains(err.Error(), "OPENROUTER_API_KEY") {
		t.Fatalf("expected env hint, got %v", err)
	}
}
