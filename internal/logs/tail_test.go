package logs_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"lecturebook/internal/logs"
)

func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lecturebook.log")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	return path
}

func appendLog(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open append: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("append log: %v", err)
	}
}

func TestLastReturnsFinalLines(t *testing.T) {
	path := writeLog(t, "a\nb\nc\nd\n")

	chunk, err := logs.Last(path, 2, nil)
	if err != nil {
		t.Fatalf("Last: %v", err)
	}
	if len(chunk.Lines) != 2 || chunk.Lines[0] != "c" || chunk.Lines[1] != "d" {
		t.Fatalf("unexpected lines: %#v", chunk.Lines)
	}
	if chunk.Offset != 8 {
		t.Fatalf("expected offset at end of file, got %d", chunk.Offset)
	}

	chunk, err = logs.Last(path, 10, nil)
	if err != nil {
		t.Fatalf("Last: %v", err)
	}
	if len(chunk.Lines) != 4 || chunk.Lines[0] != "a" {
		t.Fatalf("expected every line, got %#v", chunk.Lines)
	}
}

func TestLastAppliesFilter(t *testing.T) {
	path := writeLog(t, "job_id=one start\njob_id=two start\njob_id=one done\n")
	chunk, err := logs.Last(path, 5, logs.JobFilter("one"))
	if err != nil {
		t.Fatalf("Last: %v", err)
	}
	if len(chunk.Lines) != 2 || chunk.Lines[1] != "job_id=one done" {
		t.Fatalf("unexpected filtered lines: %#v", chunk.Lines)
	}
}

func TestLastMissingFile(t *testing.T) {
	chunk, err := logs.Last(filepath.Join(t.TempDir(), "absent.log"), 5, nil)
	if err != nil {
		t.Fatalf("Last: %v", err)
	}
	if len(chunk.Lines) != 0 || chunk.Offset != 0 {
		t.Fatalf("expected empty chunk, got %+v", chunk)
	}
}

func TestReadFromSkipsPartialLineAndRestartsAfterTruncation(t *testing.T) {
	path := writeLog(t, "one\ntw")

	chunk, err := logs.ReadFrom(path, 0, nil)
	if err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}
	if len(chunk.Lines) != 1 || chunk.Offset != 4 {
		t.Fatalf("expected the complete line only, got %+v", chunk)
	}

	appendLog(t, path, "o\n")
	chunk, err = logs.ReadFrom(path, chunk.Offset, nil)
	if err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}
	if len(chunk.Lines) != 1 || chunk.Lines[0] != "two" {
		t.Fatalf("expected completed line, got %#v", chunk.Lines)
	}

	if err := os.WriteFile(path, []byte("new\n"), 0o644); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	chunk, err = logs.ReadFrom(path, chunk.Offset, nil)
	if err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}
	if len(chunk.Lines) != 1 || chunk.Lines[0] != "new" {
		t.Fatalf("expected read from start after truncation, got %#v", chunk.Lines)
	}
}

func TestFollowEmitsAppendedLines(t *testing.T) {
	path := writeLog(t, "start\n")
	start, err := logs.Last(path, 0, nil)
	if err != nil {
		t.Fatalf("Last: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var got []string
	done := make(chan error, 1)
	go func() {
		done <- logs.Follow(ctx, path, start.Offset, 10*time.Millisecond, nil, func(lines []string) error {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, lines...)
			if len(got) >= 1 {
				cancel()
			}
			return nil
		})
	}()

	appendLog(t, path, "later\n")

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Follow: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("follow did not return")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0] != "later" {
		t.Fatalf("unexpected followed lines: %#v", got)
	}
}

func TestJobFilterMatchesConsoleAndJSON(t *testing.T) {
	filter := logs.JobFilter("0123456789abcdef")
	cases := map[string]bool{
		`2025-03-14T09:30:00Z INFO [jobs] Job 01234567 · job started`: true,
		`{"level":"INFO","job_id":"0123456789abcdef"}`:                 true,
		`job_id=0123456789abcdef event_type=job_start`:                 true,
		`job_id=fedcba9876543210`:                                      false,
	}
	for line, want := range cases {
		if got := filter(line); got != want {
			t.Fatalf("filter(%q) = %v, want %v", line, got, want)
		}
	}
	if logs.JobFilter("  ") != nil {
		t.Fatal("expected nil filter for empty id")
	}
}
