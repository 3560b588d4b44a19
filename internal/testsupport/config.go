package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"lecturebook/internal/config"
)

// ConfigOption adjusts a test configuration after the temp layout is set.
type ConfigOption func(testing.TB, *config.Config)

// NewConfig returns defaults rooted in a fresh temp directory. The fast
// path, NATS and request delays are off and verse retries back off in
// milliseconds.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	cfg := config.Default()
	base := t.TempDir()
	under := func(parts ...string) string { return filepath.Join(append([]string{base}, parts...)...) }

	cfg.Paths.DataDir = base
	cfg.Paths.CheckpointDir = under("checkpoints")
	cfg.Paths.OutputDir = under("output")
	cfg.Paths.WorkDir = under("work")
	cfg.Paths.LogDir = under("logs")
	cfg.Jobs.DBPath = under("jobs.db")

	v := &cfg.Verification
	v.CachePath = under("cache", "verses.json")
	v.FastPathCommand = ""
	v.RequestDelayMS, v.InitialBackoffMS, v.MaxBackoffMS = 0, 1, 4

	cfg.LLM.APIKey = "test"
	cfg.Events.NATSURL = ""

	for _, opt := range opts {
		opt(t, &cfg)
	}
	return &cfg
}

// WithStubbedBinaries puts no-op executables named names (the download and
// transcription tools when empty) at the front of PATH.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(t testing.TB, cfg *config.Config) {
		if len(names) == 0 {
			names = []string{"yt-dlp", "ffmpeg", "ffprobe", "uvx"}
		}
		binDir := filepath.Join(BaseDir(cfg), "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			t.Fatalf("mkdir bin dir: %v", err)
		}
		for _, name := range names {
			if err := os.WriteFile(filepath.Join(binDir, name), []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
				t.Fatalf("write stub %s: %v", name, err)
			}
		}
		t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
	}
}

// BaseDir returns the temp root of a config built by NewConfig.
func BaseDir(cfg *config.Config) string {
	return cfg.Paths.DataDir
}
