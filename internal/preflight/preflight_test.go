package preflight

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"lecturebook/internal/config"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckBinary(t *testing.T) {
	present := filepath.Join(t.TempDir(), "present")
	if err := os.WriteFile(present, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	if r := CheckBinary(Binary{Name: "Present", Command: present}); !r.Passed || r.Detail != present {
		t.Fatalf("expected present binary to pass, got %+v", r)
	}
	missing := CheckBinary(Binary{Name: "Missing", Command: "clearly-not-present-binary", Purpose: "does things"})
	if missing.Passed || !strings.Contains(missing.Detail, "does things") {
		t.Fatalf("expected missing binary with purpose, got %+v", missing)
	}
	if r := CheckBinary(Binary{Name: "Blank", Command: " "}); r.Detail != "command not configured" {
		t.Fatalf("unexpected blank command detail %q", r.Detail)
	}
}

func TestRunAllReportsMissingDirectoriesAndBinaries(t *testing.T) {
	base := t.TempDir()
	binDir := filepath.Join(base, "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"yt-dlp", "ffmpeg", "ffprobe", "uvx"} {
		if err := os.WriteFile(filepath.Join(binDir, name), []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	t.Setenv("PATH", binDir)

	cfg := config.Default()
	cfg.Paths.DataDir = base
	cfg.Paths.CheckpointDir = base
	cfg.Paths.OutputDir = filepath.Join(base, "missing")
	cfg.Paths.WorkDir = base
	cfg.Paths.LogDir = base
	cfg.Verification.FastPathCommand = "verse-server-not-installed"

	results := RunAll(context.Background(), &cfg)
	failed := Failed(results)
	if len(failed) != 1 || failed[0].Name != "Output directory" {
		t.Fatalf("expected only the output directory to fail, got %+v", failed)
	}
	var optional bool
	for _, r := range results {
		if r.Name == "Verse server" {
			optional = r.Optional && !r.Passed
		}
	}
	if !optional {
		t.Fatal("missing verse server should be an optional failure")
	}
	if Summary(failed) == "" {
		t.Fatal("expected a summary")
	}
}

func TestCheckLLM(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"content": `{"ok":true}`}}},
		})
	}))
	defer srv.Close()

	result := CheckLLM(context.Background(), config.LLM{Provider: "openrouter", APIKey: "k", BaseURL: srv.URL, Model: "m"})
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
	if missing := CheckLLM(context.Background(), config.LLM{Provider: "openrouter"}); missing.Passed {
		t.Fatal("expected failure without an API key")
	}
}

func TestCheckVerseSite(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/en/library/bg/" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if result := CheckVerseSite(context.Background(), srv.URL+"/en/library/"); !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
	if result := CheckVerseSite(context.Background(), ""); result.Passed {
		t.Fatal("expected failure for empty url")
	}
}

func TestCheckNATSDisabled(t *testing.T) {
	result := CheckNATS(config.Events{})
	if !result.Passed || !result.Optional || result.Detail != "Disabled" {
		t.Fatalf("unexpected result %+v", result)
	}
}
