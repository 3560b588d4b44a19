package download

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"lecturebook/internal/contracts"
	"lecturebook/internal/services"
)

// fakeTools emulates yt-dlp, ffmpeg, and ffprobe.
type fakeTools struct {
	duration float64
	tags     string
	calls    []string
}

func (f *fakeTools) run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, name)
	last := args[len(args)-1]
	switch name {
	case "yt-dlp":
		var template string
		for i, a := range args {
			if a == "--output" {
				template = args[i+1]
			}
		}
		path := strings.Replace(template, "%(ext)s", "opus", 1)
		if err := os.WriteFile(path, []byte("opus"), 0o644); err != nil {
			return nil, err
		}
		return []byte("[download] done\n" + `{"title":"Bhagavad-gita 2.47 class","uploader":"Temple","upload_date":"20240101"}` + "\n"), nil
	case "ffmpeg":
		return nil, os.WriteFile(last, []byte("RIFF-normalized"), 0o644)
	case "ffprobe":
		tags := ""
		if !strings.HasSuffix(last, ".wav") || strings.Contains(last, "downloads") {
			tags = f.tags
		}
		return []byte(fmt.Sprintf(`{"format":{"duration":"%.1f","tags":{%s}}}`, f.duration, tags)), nil
	}
	return nil, errors.New("unexpected tool " + name)
}

func TestDetectSourceType(t *testing.T) {
	cases := map[string]contracts.SourceType{
		"/music/class.mp3":                       contracts.SourceLocalFile,
		"file:///music/class.mp3":                contracts.SourceLocalFile,
		"https://www.youtube.com/watch?v=abc":    contracts.SourceYouTube,
		"https://archive.org/download/x/a.mp3":   contracts.SourceYouTube,
		"https://cdn.example.com/a/class.MP3?x=1": contracts.SourceDirectHTTP,
		"https://example.com/lecture-page":       contracts.SourceYouTube,
	}
	for in, want := range cases {
		if got := DetectSourceType(in); got != want {
			t.Fatalf("DetectSourceType(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestDownloadYtDlp(t *testing.T) {
	dir := t.TempDir()
	tools := &fakeTools{duration: 3600}
	d := New(Config{}, nil, WithRunner(tools.run))

	out, err := d.Download(context.Background(), Request{Source: "https://youtu.be/abc", Order: 2, Dir: dir})
	if err != nil {
		t.Fatalf("Download returned error: %v", err)
	}
	if out.SourceType != contracts.SourceYouTube || out.Title != "Bhagavad-gita 2.47 class" || out.Channel != "Temple" {
		t.Fatalf("unexpected metadata %+v", out)
	}
	if out.AudioPath != filepath.Join(dir, "audio", "lecture_002.wav") {
		t.Fatalf("unexpected audio path %s", out.AudioPath)
	}
	if out.OriginalPath != filepath.Join(dir, "downloads", "source.opus") {
		t.Fatalf("unexpected original path %s", out.OriginalPath)
	}
	if out.SizeBytes != int64(len("RIFF-normalized")) || len(out.SHA256) != 64 {
		t.Fatalf("unexpected size or hash %+v", out)
	}
	if err := out.Validate(); err != nil {
		t.Fatalf("output failed validation: %v", err)
	}
}

func TestDownloadHTTPUsesTagsForTitle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ID3 audio bytes"))
	}))
	defer server.Close()

	dir := t.TempDir()
	tools := &fakeTools{duration: 90, tags: `"title":"Evening Class","artist":"HH Speaker"`}
	d := New(Config{}, nil, WithRunner(tools.run), WithHTTPClient(server.Client()))

	out, err := d.Download(context.Background(), Request{Source: server.URL + "/files/evening%20class.mp3", Dir: dir})
	if err != nil {
		t.Fatalf("Download returned error: %v", err)
	}
	if out.SourceType != contracts.SourceDirectHTTP {
		t.Fatalf("unexpected source type %s", out.SourceType)
	}
	if out.OriginalPath != filepath.Join(dir, "downloads", "evening class.mp3") {
		t.Fatalf("unexpected original path %s", out.OriginalPath)
	}
	if out.Title != "Evening Class" || out.Speaker != "HH Speaker" {
		t.Fatalf("expected tag metadata, got title=%q speaker=%q", out.Title, out.Speaker)
	}
}

func TestDownloadHTTPStatusErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	d := New(Config{}, nil, WithRunner((&fakeTools{duration: 90}).run), WithHTTPClient(server.Client()))
	_, err := d.Download(context.Background(), Request{Source: server.URL + "/gone.mp3", Dir: t.TempDir()})
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDownloadLocalFileAndHints(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "morning_class-2024.mp3")
	if err := os.WriteFile(src, []byte("mp3"), 0o644); err != nil {
		t.Fatal(err)
	}
	d := New(Config{}, nil, WithRunner((&fakeTools{duration: 120}).run))

	out, err := d.Download(context.Background(), Request{Source: "file://" + src, Dir: filepath.Join(dir, "work")})
	if err != nil {
		t.Fatalf("Download returned error: %v", err)
	}
	if out.Title != "morning class 2024" || out.OriginalPath != src {
		t.Fatalf("unexpected local metadata %+v", out)
	}

	out, err = d.Download(context.Background(), Request{Source: src, Dir: filepath.Join(dir, "work"), Title: "Given", Speaker: "Someone"})
	if err != nil {
		t.Fatalf("Download returned error: %v", err)
	}
	if out.Title != "Given" || out.Speaker != "Someone" {
		t.Fatalf("expected hints to win, got %+v", out)
	}
}

func TestDownloadRejectsShortAudioAndMissingFiles(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "clip.mp3")
	if err := os.WriteFile(src, []byte("mp3"), 0o644); err != nil {
		t.Fatal(err)
	}
	d := New(Config{}, nil, WithRunner((&fakeTools{duration: 12}).run))
	if _, err := d.Download(context.Background(), Request{Source: src, Dir: dir}); !errors.Is(err, services.ErrValidation) || !strings.Contains(err.Error(), "too short") {
		t.Fatalf("expected too-short validation error, got %v", err)
	}
	if _, err := d.Download(context.Background(), Request{Source: filepath.Join(dir, "nope.mp3"), Dir: dir}); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
