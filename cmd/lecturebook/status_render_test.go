package main

import (
	"io"
	"strings"
	"testing"

	"lecturebook/internal/preflight"
)

func TestCheckLinePadsNameAndTag(t *testing.T) {
	got := checkLine("Verse site", stateFail, "unreachable", false)
	want := "  Verse site" + strings.Repeat(" ", checkNameWidth-len("Verse site")) + " fail  unreachable"
	if got != want {
		t.Fatalf("checkLine mismatch\n got: %q\nwant: %q", got, want)
	}
	if got := checkLine("NATS", stateOK, "", false); strings.HasSuffix(got, " ") {
		t.Fatalf("trailing space in %q", got)
	}
}

func TestCheckLineColor(t *testing.T) {
	got := checkLine("NATS", stateOK, "", true)
	if !strings.HasPrefix(got, stateOK.color) || !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("expected green line, got %q", got)
	}
}

func TestCheckLines(t *testing.T) {
	results := []preflight.Result{
		{Name: "yt-dlp", Detail: "not found in PATH"},
		{Name: "FFmpeg", Passed: true, Detail: "ffmpeg"},
		{Name: "NATS", Optional: true, Detail: "connection refused"},
	}
	lines := checkLines(results, false)
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d: %q", len(lines), lines)
	}
	requireContains(t, lines[0], "fail  not found in PATH")
	requireContains(t, lines[1], "ok    ffmpeg")
	requireContains(t, lines[2], "warn  connection refused")
	requireContains(t, lines[3], "required: yt-dlp: not found in PATH")
}

func TestCheckLinesAllPassed(t *testing.T) {
	lines := checkLines([]preflight.Result{{Name: "Data directory", Passed: true}}, false)
	if len(lines) != 2 || lines[1] != "  1 of 1 checks passed" {
		t.Fatalf("unexpected lines %q", lines)
	}
}

func TestSectionTitle(t *testing.T) {
	if got := sectionTitle(" Local ", false); got != "LOCAL" {
		t.Fatalf("sectionTitle = %q", got)
	}
}

func TestShouldColorizeNonFile(t *testing.T) {
	if shouldColorize(io.Discard) {
		t.Fatalf("expected non-file writer to disable color")
	}
}
