package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"lecturebook/internal/audio"
	"lecturebook/internal/config"
	"lecturebook/internal/contracts"
	"lecturebook/internal/logging"
	"lecturebook/internal/services"
)

// Limits applied to every retrieved source.
const (
	MinDurationSeconds = 30
	MaxDurationSeconds = 4 * 3600
	MaxSizeBytes       = 2 << 30
	WarnSizeBytes      = 500 << 20
)

// Config holds the binaries and timeouts used for retrieval.
type Config struct {
	YtDlp       string
	FFmpeg      string
	FFprobe     string
	HTTPTimeout time.Duration
}

// FromConfig converts the download configuration section.
func FromConfig(cfg config.Download) Config {
	return Config{
		YtDlp:       cfg.YtDlpBinary,
		FFmpeg:      cfg.FFmpegBinary,
		FFprobe:     cfg.FFprobeBinary,
		HTTPTimeout: time.Duration(cfg.HTTPTimeoutSeconds) * time.Second,
	}
}

// Request describes one source item to retrieve.
type Request struct {
	Source  string
	Order   int
	Dir     string
	Title   string
	Speaker string
}

// Downloader retrieves source audio and normalizes it for transcription.
type Downloader struct {
	cfg        Config
	httpClient *http.Client
	run        audio.Runner
	logger     *slog.Logger
}

// Option customizes a Downloader.
type Option func(*Downloader)

// WithHTTPClient overrides the client used for direct downloads.
func WithHTTPClient(client *http.Client) Option {
	return func(d *Downloader) { d.httpClient = client }
}

// WithRunner overrides how yt-dlp, ffmpeg, and ffprobe are executed.
func WithRunner(run audio.Runner) Option {
	return func(d *Downloader) { d.run = run }
}

// New constructs a Downloader.
func New(cfg Config, logger *slog.Logger, opts ...Option) *Downloader {
	if cfg.YtDlp == "" {
		cfg.YtDlp = "yt-dlp"
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 120 * time.Second
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	d := &Downloader{cfg: cfg, logger: logger, run: audio.ExecRunner}
	for _, opt := range opts {
		opt(d)
	}
	if d.httpClient == nil {
		d.httpClient = &http.Client{Timeout: cfg.HTTPTimeout}
	}
	return d
}

type fetched struct {
	path     string
	title    string
	uploader string
	date     string
}

// Download retrieves req.Source, normalizes it to lecture_NNN.wav under
// req.Dir, and checks the result against the duration and size limits.
func (d *Downloader) Download(ctx context.Context, req Request) (*contracts.DownloadOutput, error) {
	source := strings.TrimSpace(req.Source)
	if source == "" {
		return nil, services.Wrap(services.ErrValidation, "download", "detect source", "empty source", nil)
	}
	if err := os.MkdirAll(req.Dir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "download", "prepare dir", req.Dir, err)
	}
	kind := DetectSourceType(source)
	logger := d.logger.With(logging.String("source", source), logging.String("source_type", string(kind)))

	started := time.Now()
	var got fetched
	var err error
	switch kind {
	case contracts.SourceLocalFile:
		got, err = d.local(source)
	case contracts.SourceDirectHTTP:
		got, err = d.fetchHTTP(ctx, source, filepath.Join(req.Dir, "downloads"))
	default:
		got, err = d.fetchYtDlp(ctx, source, filepath.Join(req.Dir, "downloads"))
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}

	wavPath := filepath.Join(req.Dir, "audio", fmt.Sprintf("lecture_%03d.wav", req.Order))
	normalizer := audio.Normalizer{FFmpeg: d.cfg.FFmpeg, Run: d.run}
	if err := normalizer.Normalize(ctx, got.path, wavPath); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, services.Wrap(services.ErrExternalTool, "download", "normalize", "ffmpeg normalization failed", err)
	}

	probe, err := audio.Probe(ctx, d.run, d.cfg.FFprobe, wavPath)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "download", "probe", "ffprobe failed", err)
	}
	duration := probe.DurationSeconds()
	switch {
	case duration < MinDurationSeconds:
		return nil, services.Wrap(services.ErrValidation, "download", "check duration",
			fmt.Sprintf("audio too short: %.1fs (minimum %ds)", duration, MinDurationSeconds), nil)
	case duration > MaxDurationSeconds:
		return nil, services.Wrap(services.ErrValidation, "download", "check duration",
			fmt.Sprintf("audio too long: %.1fh (maximum %dh)", duration/3600, MaxDurationSeconds/3600), nil)
	}

	sum, size, err := hashFile(wavPath)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "download", "hash", "read normalized audio", err)
	}
	switch {
	case size == 0:
		return nil, services.Wrap(services.ErrValidation, "download", "check size", "normalized audio is empty", nil)
	case size > MaxSizeBytes:
		return nil, services.Wrap(services.ErrValidation, "download", "check size",
			fmt.Sprintf("normalized audio exceeds %d MB", MaxSizeBytes>>20), nil)
	case size > WarnSizeBytes:
		logging.WarnWithContext(logger, "large audio file", "large_audio",
			logging.Int64("size_bytes", size),
			logging.String(logging.FieldImpact, "transcription will be slow"),
		)
	}

	out := &contracts.DownloadOutput{
		SourceURL:       source,
		SourceType:      kind,
		AudioPath:       wavPath,
		OriginalPath:    got.path,
		SHA256:          sum,
		Title:           d.title(ctx, req, got),
		DurationSeconds: duration,
		SizeBytes:       size,
		UploadDate:      got.date,
		Channel:         got.uploader,
		Speaker:         d.speaker(ctx, req, got),
	}
	logger.Info("source downloaded",
		logging.String(logging.FieldEventType, "download_complete"),
		logging.String("audio_path", wavPath),
		logging.Float64("duration_seconds", duration),
		logging.Int64("size_bytes", size),
		logging.Duration("elapsed", time.Since(started)),
	)
	return out, nil
}

func (d *Downloader) local(source string) (fetched, error) {
	p := LocalPath(source)
	info, err := os.Stat(p)
	if err != nil {
		return fetched{}, services.Wrap(services.ErrNotFound, "download", "local file", "local file not found: "+p, err)
	}
	if info.IsDir() {
		return fetched{}, services.Wrap(services.ErrValidation, "download", "local file", p+" is a directory", nil)
	}
	return fetched{path: p}, nil
}

func (d *Downloader) fetchHTTP(ctx context.Context, source, dir string) (fetched, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fetched{}, services.Wrap(services.ErrConfiguration, "download", "http", "prepare dir", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return fetched{}, services.Wrap(services.ErrValidation, "download", "http", "build request", err)
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fetched{}, services.Wrap(services.ErrTransient, "download", "http", "request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		marker := services.ErrExternalTool
		if resp.StatusCode == http.StatusNotFound {
			marker = services.ErrNotFound
		} else if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			marker = services.ErrTransient
		}
		return fetched{}, services.Wrap(marker, "download", "http", fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}
	if resp.ContentLength > MaxSizeBytes {
		return fetched{}, services.Wrap(services.ErrValidation, "download", "http",
			fmt.Sprintf("file too large: %d bytes", resp.ContentLength), nil)
	}

	dest := filepath.Join(dir, fileNameFromURL(source))
	f, err := os.Create(dest)
	if err != nil {
		return fetched{}, services.Wrap(services.ErrConfiguration, "download", "http", "create file", err)
	}
	n, copyErr := io.Copy(f, io.LimitReader(resp.Body, MaxSizeBytes+1))
	closeErr := f.Close()
	switch {
	case copyErr != nil:
		_ = os.Remove(dest)
		return fetched{}, services.Wrap(services.ErrTransient, "download", "http", "read body", copyErr)
	case closeErr != nil:
		_ = os.Remove(dest)
		return fetched{}, services.Wrap(services.ErrExternalTool, "download", "http", "close file", closeErr)
	case n > MaxSizeBytes:
		_ = os.Remove(dest)
		return fetched{}, services.Wrap(services.ErrValidation, "download", "http",
			fmt.Sprintf("download exceeded %d MB limit", MaxSizeBytes>>20), nil)
	}
	return fetched{path: dest}, nil
}

type ytdlpInfo struct {
	Title      string  `json:"title"`
	Uploader   string  `json:"uploader"`
	UploadDate string  `json:"upload_date"`
	Duration   float64 `json:"duration"`
	Filename   string  `json:"_filename"`
}

func (d *Downloader) fetchYtDlp(ctx context.Context, source, dir string) (fetched, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fetched{}, services.Wrap(services.ErrConfiguration, "download", "yt-dlp", "prepare dir", err)
	}
	template := filepath.Join(dir, "source.%(ext)s")
	output, err := d.run(ctx, d.cfg.YtDlp,
		"--format", "bestaudio/best",
		"--extract-audio",
		"--audio-format", "wav",
		"--audio-quality", "0",
		"--no-playlist",
		"--no-warnings",
		"--no-simulate",
		"--dump-json",
		"--output", template,
		source,
	)
	if err != nil {
		return fetched{}, services.Wrap(services.ErrExternalTool, "download", "yt-dlp", "yt-dlp failed", err)
	}
	var info ytdlpInfo
	if line := lastJSONLine(output); line != "" {
		if err := json.Unmarshal([]byte(line), &info); err != nil {
			d.logger.Debug("yt-dlp metadata unreadable", logging.Error(err))
		}
	}
	path, err := findDownloaded(dir, "source")
	if err != nil {
		return fetched{}, services.Wrap(services.ErrExternalTool, "download", "yt-dlp", "downloaded file not found", err)
	}
	return fetched{path: path, title: info.Title, uploader: info.Uploader, date: info.UploadDate}, nil
}

// findDownloaded prefers the post-processed WAV and falls back to any audio file.
func findDownloaded(dir, stem string) (string, error) {
	wav := filepath.Join(dir, stem+".wav")
	if _, err := os.Stat(wav); err == nil {
		return wav, nil
	}
	matches, err := filepath.Glob(filepath.Join(dir, stem+".*"))
	if err != nil {
		return "", err
	}
	for _, m := range matches {
		if _, ok := audioExtensions[strings.ToLower(filepath.Ext(m))]; ok {
			return m, nil
		}
	}
	return "", errors.New("no audio file named " + stem + ".* in " + dir)
}

func lastJSONLine(output []byte) string {
	lines := strings.Split(strings.TrimSpace(string(output)), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); strings.HasPrefix(line, "{") {
			return line
		}
	}
	return ""
}

// title resolves the item title: caller hint, then platform metadata, then
// the original file's tags, then its file name.
func (d *Downloader) title(ctx context.Context, req Request, got fetched) string {
	if t := strings.TrimSpace(req.Title); t != "" {
		return t
	}
	if got.title != "" {
		return got.title
	}
	if t := d.tag(ctx, got.path, "title"); t != "" {
		return t
	}
	if t := titleFromPath(got.path); t != "" {
		return t
	}
	return "Unknown"
}

func (d *Downloader) speaker(ctx context.Context, req Request, got fetched) string {
	if s := strings.TrimSpace(req.Speaker); s != "" {
		return s
	}
	return d.tag(ctx, got.path, "artist")
}

func (d *Downloader) tag(ctx context.Context, path, name string) string {
	probe, err := audio.Probe(ctx, d.run, d.cfg.FFprobe, path)
	if err != nil {
		return ""
	}
	return probe.Tag(name)
}

func hashFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()
	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}
