package transcribe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"lecturebook/internal/services"
)

const whisperxJSON = `{
  "language": "en",
  "segments": [
    {"text": " Today we read BG 2.47. ", "start": 0.0, "end": 5.5, "speaker": "SPEAKER_00",
     "words": [{"word": "Today", "score": 0.9}, {"word": "we", "score": 0.7}]},
    {"text": "   ", "start": 5.5, "end": 6.0},
    {"text": "Hare Krishna", "start": 6.0, "end": 9.0, "avg_logprob": -0.105,
     "words": [{"word": "Hare", "speaker": "SPEAKER_01"}, {"word": "Krishna", "speaker": "SPEAKER_01"}]}
  ]
}`

func writeFixture(t *testing.T, dir, audio string) string {
	t.Helper()
	path := filepath.Join(dir, audio)
	if err := os.WriteFile(path, []byte("RIFF"), 0o644); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	return path
}

func TestTranscribeRunsWhisperXAndConverts(t *testing.T) {
	dir := t.TempDir()
	audio := writeFixture(t, dir, "lecture.wav")
	workDir := filepath.Join(dir, "work")

	var gotName string
	var gotArgs []string
	svc := NewService(Config{Model: "medium", Diarize: true, HFToken: "hf", Language: "en-US"}, nil)
	svc.WithCommandRunner(func(_ context.Context, name string, args ...string) error {
		gotName, gotArgs = name, args
		return os.WriteFile(filepath.Join(workDir, "lecture.json"), []byte(whisperxJSON), 0o644)
	})

	out, err := svc.Transcribe(context.Background(), audio, workDir, 0)
	if err != nil {
		t.Fatalf("Transcribe returned error: %v", err)
	}
	if gotName != Launcher {
		t.Fatalf("expected %s, got %s", Launcher, gotName)
	}
	for _, flag := range []string{"--diarize", "--hf_token", "--device"} {
		if !slices.Contains(gotArgs, flag) {
			t.Fatalf("expected %s in args %v", flag, gotArgs)
		}
	}
	if i := slices.Index(gotArgs, "--language"); i < 0 || gotArgs[i+1] != "en" {
		t.Fatalf("expected --language en, got %v", gotArgs)
	}
	if len(out.Segments) != 2 {
		t.Fatalf("expected 2 segments after dropping blanks, got %d", len(out.Segments))
	}
	if out.Segments[1].Index != 1 || out.Segments[1].Speaker != "SPEAKER_01" {
		t.Fatalf("unexpected second segment %+v", out.Segments[1])
	}
	if out.Segments[0].Confidence != 0.8 {
		t.Fatalf("expected mean word score 0.8, got %v", out.Segments[0].Confidence)
	}
	if c := out.Segments[1].Confidence; c < 0.89 || c > 0.91 {
		t.Fatalf("expected exp(avg_logprob) near 0.9, got %v", c)
	}
	if out.FullText != "Today we read BG 2.47. Hare Krishna" {
		t.Fatalf("unexpected full text %q", out.FullText)
	}
	if out.DurationSeconds != 9 || out.SpeakersDetected != 2 || out.Language != "en" || out.Model != "medium" {
		t.Fatalf("unexpected transcript metadata %+v", out)
	}
}

func TestTranscribeWithoutTokenSkipsDiarization(t *testing.T) {
	svc := NewService(Config{Diarize: true}, nil)
	args := svc.buildArgs("/a.wav", "/out")
	if slices.Contains(args, "--diarize") || slices.Contains(args, "--hf_token") {
		t.Fatalf("diarization requires a token, got %v", args)
	}
	if i := slices.Index(args, "--vad_method"); args[i+1] != vadSilero {
		t.Fatalf("expected default vad method, got %v", args)
	}
	if !slices.Contains(args, "float32") {
		t.Fatalf("expected cpu compute type, got %v", args)
	}
}

func TestTranscribeFailures(t *testing.T) {
	dir := t.TempDir()
	audio := writeFixture(t, dir, "lecture.wav")

	svc := NewService(Config{}, nil)
	if _, err := svc.Transcribe(context.Background(), filepath.Join(dir, "missing.wav"), dir, 0); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	svc.WithCommandRunner(func(context.Context, string, ...string) error { return errors.New("CUDA out of memory") })
	_, err := svc.Transcribe(context.Background(), audio, dir, 0)
	if !errors.Is(err, services.ErrExternalTool) || !strings.Contains(err.Error(), "CUDA out of memory") {
		t.Fatalf("expected external tool error, got %v", err)
	}

	svc.WithCommandRunner(func(context.Context, string, ...string) error {
		return os.WriteFile(filepath.Join(dir, "lecture.json"), []byte(`{"segments":[{"text":"  "}]}`), 0o644)
	})
	if _, err := svc.Transcribe(context.Background(), audio, dir, 0); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for empty transcript, got %v", err)
	}
}

func TestConvertPrefersDurationHint(t *testing.T) {
	out := Convert(Payload{Segments: []Segment{{Text: "a", Start: 2, End: 1}}}, "/a.wav", DefaultModel, 30)
	if out.DurationSeconds != 30 {
		t.Fatalf("expected hint duration, got %v", out.DurationSeconds)
	}
	if out.Segments[0].End != 2 {
		t.Fatalf("expected end clamped to start, got %v", out.Segments[0].End)
	}
	if out.Segments[0].Confidence != 0 {
		t.Fatalf("expected unknown confidence, got %v", out.Segments[0].Confidence)
	}
}

func TestIsoLanguage(t *testing.T) {
	cases := map[string]string{"en-US": "en", "HI": "hi", "": "", "not a tag!": ""}
	for in, want := range cases {
		if got := isoLanguage(in); got != want {
			t.Fatalf("isoLanguage(%q) = %q, want %q", in, got, want)
		}
	}
}
