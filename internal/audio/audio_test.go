package audio

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseProbeHelpers(t *testing.T) {
	raw := []byte(`{
		"streams": [
			{"index": 0, "codec_type": "video"},
			{"index": 1, "codec_type": "audio", "codec_name": "aac", "duration": "61.5", "sample_rate": "44100", "channels": 2}
		],
		"format": {"duration": "", "size": "2048", "format_name": "mov,mp4", "tags": {"TITLE": " Morning class "}}
	}`)
	result, err := ParseProbe(raw)
	if err != nil {
		t.Fatalf("ParseProbe returned error: %v", err)
	}
	if result.AudioStreamCount() != 1 {
		t.Fatalf("expected 1 audio stream, got %d", result.AudioStreamCount())
	}
	if result.DurationSeconds() != 61.5 {
		t.Fatalf("expected stream duration fallback, got %v", result.DurationSeconds())
	}
	if result.SizeBytes() != 2048 {
		t.Fatalf("unexpected size %d", result.SizeBytes())
	}
	if result.Tag("title") != "Morning class" {
		t.Fatalf("unexpected title tag %q", result.Tag("title"))
	}
}

func TestParseProbeRejectsGarbage(t *testing.T) {
	if _, err := ParseProbe([]byte("not json")); err == nil {
		t.Fatal("expected parse error")
	}
	if d := (ProbeResult{Format: Format{Duration: "bad", Size: "-1"}}); d.DurationSeconds() != 0 || d.SizeBytes() != 0 {
		t.Fatalf("expected zero values for invalid numbers, got %v %d", d.DurationSeconds(), d.SizeBytes())
	}
}

func TestProbeUsesRunner(t *testing.T) {
	var gotName string
	var gotArgs []string
	run := func(_ context.Context, name string, args ...string) ([]byte, error) {
		gotName, gotArgs = name, args
		return []byte(`{"format":{"duration":"12.0"}}`), nil
	}
	result, err := Probe(context.Background(), run, "", "/tmp/a.mp3")
	if err != nil {
		t.Fatalf("Probe returned error: %v", err)
	}
	if gotName != "ffprobe" || gotArgs[len(gotArgs)-1] != "/tmp/a.mp3" {
		t.Fatalf("unexpected invocation %s %v", gotName, gotArgs)
	}
	if result.DurationSeconds() != 12 {
		t.Fatalf("unexpected duration %v", result.DurationSeconds())
	}
}

func TestNormalizeRenamesOutput(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "out", "audio.wav")
	var args []string
	n := Normalizer{FFmpeg: "ffmpeg-test", Run: func(_ context.Context, name string, a ...string) ([]byte, error) {
		args = a
		return nil, os.WriteFile(a[len(a)-1], []byte("RIFF"), 0o644)
	}}
	if err := n.Normalize(context.Background(), "/src/lecture.mp3", dest); err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if diff := cmp.Diff(NormalizeArgs("/src/lecture.mp3", dest+".partial.wav"), args); diff != "" {
		t.Fatalf("args mismatch (-want +got):\n%s", diff)
	}
	data, err := os.ReadFile(dest)
	if err != nil || string(data) != "RIFF" {
		t.Fatalf("expected normalized file at dest, got %q %v", data, err)
	}
}

func TestNormalizeCleansUpOnFailure(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "audio.wav")
	n := Normalizer{Run: func(_ context.Context, _ string, a ...string) ([]byte, error) {
		_ = os.WriteFile(a[len(a)-1], []byte("partial"), 0o644)
		return nil, errors.New("invalid data found")
	}}
	if err := n.Normalize(context.Background(), "/src/x.mp3", dest); err == nil {
		t.Fatal("expected error")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("expected no leftovers, found %d entries", len(entries))
	}
}
