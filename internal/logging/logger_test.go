package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"lecturebook/internal/logging"
	"lecturebook/internal/services"
)

func TestConsoleLoggerOmitsCallerForInfo(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-info.log")
	logger, err := logging.New(logging.Options{
		Format: "console",
		Level:  "info",
		// same path twice is opened once
		OutputPaths: []string{logPath, logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("message without caller")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if strings.Contains(string(content), ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", content)
	}
	if strings.Count(string(content), "message without caller") != 1 {
		t.Fatalf("expected exactly one line, got %q", content)
	}
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-debug.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "debug", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("message with caller")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), ".go:") {
		t.Fatalf("expected caller information in debug logs, got %q", content)
	}
}

func TestConsoleSubjectFromJobFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "subject.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger = logging.NewComponentLogger(logger, "pipeline")
	logger.Info("stage complete",
		logging.String(logging.FieldJobID, "0f8fad5b-d9cb-469f-a165-70867728950e"),
		logging.Int(logging.FieldItemIndex, 2),
		logging.String(logging.FieldStage, "enrich"),
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Int("citations", 7),
	)

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	text := string(content)
	for _, want := range []string{"[pipeline]", "Job 0f8fad5b · Item #3 (enrich)", "stage complete", "    citations=7\n"} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in %q", want, text)
		}
	}
	if strings.Contains(text, "stage_complete") {
		t.Fatalf("expected event_type hidden at info level, got %q", text)
	}
}

func TestConsoleWarningSeparatesFailureContext(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "warn.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logging.WarnWithContext(logger, "verse lookup failed", "verse_lookup_failed",
		logging.String("ref", "BG 2.47"),
		logging.Error(errors.New("site unreachable")),
		logging.String(logging.FieldImpact, "reference stays unverified"),
	)

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	text := string(content)
	for _, want := range []string{
		"WARN",
		"verse lookup failed",
		"    ref=\"BG 2.47\" error_code=internal\n",
		"    ! error: site unreachable\n",
		"    ! impact: reference stays unverified\n",
		"    ! error_hint: check logs for details\n",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in %q", want, text)
		}
	}
}

func TestNewJSONLogger(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("json message", logging.String("k", "v"), logging.Duration("stage_duration", 1500*time.Millisecond))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var record map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(content), &record); err != nil {
		t.Fatalf("decode json log: %v", err)
	}
	if record["msg"] != "json message" || record["level"] != "info" || record["k"] != "v" {
		t.Fatalf("unexpected record: %v", record)
	}
	if record["stage_duration"] != 1.5 {
		t.Fatalf("expected duration in seconds, got %v", record["stage_duration"])
	}
	if _, err := time.Parse(time.RFC3339, record["ts"].(string)); err != nil {
		t.Fatalf("expected RFC3339 ts: %v", err)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestWithContextAddsFields(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithJobID(ctx, "job-1")
	ctx = services.WithItemIndex(ctx, 3)
	ctx = services.WithStage(ctx, "transcribe")
	ctx = services.WithCorrelationID(ctx, "req-xyz")

	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))
	logging.WithContext(ctx, base).Info("contextual log")

	var record map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &record); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if record[logging.FieldJobID] != "job-1" {
		t.Fatalf("job id = %v", record[logging.FieldJobID])
	}
	if record[logging.FieldItemIndex] != float64(3) {
		t.Fatalf("item index = %v", record[logging.FieldItemIndex])
	}
	if record[logging.FieldStage] != "transcribe" {
		t.Fatalf("stage = %v", record[logging.FieldStage])
	}
	if record[logging.FieldCorrelationID] != "req-xyz" {
		t.Fatalf("correlation id = %v", record[logging.FieldCorrelationID])
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	logging.WarnWithContext(logger, "cache save failed", "cache_save")

	var record map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &record); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, key := range []string{logging.FieldEventType, logging.FieldErrorHint, logging.FieldImpact} {
		if _, ok := record[key]; !ok {
			t.Fatalf("expected %s in %v", key, record)
		}
	}
}

func TestErrorWithContextDerivesCauseFromError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	err := services.Wrap(services.ErrValidation, "validate", "findings", "2 critical", nil)
	logging.ErrorWithContext(logger, "item rejected", "item_rejected", logging.Error(err))

	var record map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &record); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if record[logging.FieldErrorCode] != "validation_failed" {
		t.Fatalf("expected validation_failed code, got %v", record[logging.FieldErrorCode])
	}
	if record[logging.FieldErrorHint] != services.Details(err).Hint {
		t.Fatalf("expected cause hint, got %v", record[logging.FieldErrorHint])
	}
}

func TestFailureCarriesCauseCode(t *testing.T) {
	err := services.Wrap(services.ErrTimeout, "transcribe", "whisperx", "slow", errors.New("deadline"))
	attrs := logging.Failure(err)
	if !logging.HasAttrKey(attrs, logging.FieldErrorCode) {
		t.Fatalf("expected error code attr in %v", attrs)
	}
	for _, attr := range attrs {
		if attr.Key == logging.FieldErrorCode && attr.Value.String() != "timeout" {
			t.Fatalf("unexpected code %q", attr.Value.String())
		}
	}
	if logging.Failure(nil) != nil {
		t.Fatal("expected nil attrs for nil error")
	}
}

func TestTeeLoggerWritesToBothHandlers(t *testing.T) {
	var a, b bytes.Buffer
	base := slog.New(slog.NewTextHandler(&a, nil))
	logger := logging.TeeLogger(base, slog.NewTextHandler(&b, nil))
	logger.Info("mirrored")
	if !strings.Contains(a.String(), "mirrored") || !strings.Contains(b.String(), "mirrored") {
		t.Fatalf("expected both outputs, got %q / %q", a.String(), b.String())
	}
}

func TestNewFileHandlerAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs", "abc.log")
	handler, closer, err := logging.NewFileHandler(path, "json", "info")
	if err != nil {
		t.Fatalf("NewFileHandler: %v", err)
	}
	slog.New(handler).Info("first")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(content), "first") {
		t.Fatalf("expected record in file, got %q", content)
	}
}

func TestProgressSamplerBuckets(t *testing.T) {
	sampler := logging.NewProgressSampler(25)
	if !sampler.ShouldLog(0, "download", 0) {
		t.Fatal("expected first event to log")
	}
	if sampler.ShouldLog(0, "download", 10) {
		t.Fatal("expected same bucket to be suppressed")
	}
	if !sampler.ShouldLog(0, "download", 30) {
		t.Fatal("expected new bucket to log")
	}
	if !sampler.ShouldLog(0, "transcribe", 30) {
		t.Fatal("expected stage change to log")
	}
}

func TestProgressSamplerTracksItemsSeparately(t *testing.T) {
	sampler := logging.NewProgressSampler(25)
	if !sampler.ShouldLog(0, "transcribe", 50) {
		t.Fatal("expected item 0 to log")
	}
	if !sampler.ShouldLog(1, "transcribe", 10) {
		t.Fatal("expected item 1 to log independently of item 0")
	}
	if sampler.ShouldLog(0, "transcribe", 60) {
		t.Fatal("expected item 0 same bucket to be suppressed")
	}
	sampler.Reset()
	if !sampler.ShouldLog(0, "transcribe", 60) {
		t.Fatal("expected reset to forget item state")
	}
}

func TestCleanupOldLogsRemovesExpired(t *testing.T) {
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "old.log")
	newPath := filepath.Join(dir, "new.log")
	for _, p := range []string{oldPath, newPath} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	past := time.Now().AddDate(0, 0, -10)
	if err := os.Chtimes(oldPath, past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	removed := logging.CleanupOldLogs(logging.NewNop(), 5, logging.RetentionTarget{Dir: dir, Pattern: "*.log"})
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}

	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Fatalf("expected old log removed, stat err=%v", err)
	}
	if _, err := os.Stat(newPath); err != nil {
		t.Fatalf("expected new log kept: %v", err)
	}
}
