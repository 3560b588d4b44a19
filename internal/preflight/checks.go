package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"lecturebook/internal/config"
	"lecturebook/internal/events"
	"lecturebook/internal/llm"
	"lecturebook/internal/transcribe"
	"lecturebook/internal/verify"
)

const (
	llmCheckTimeout  = 30 * time.Second
	siteCheckTimeout = 10 * time.Second
)

// Binary is an external program a stage shells out to.
type Binary struct {
	Name     string
	Command  string
	Purpose  string
	Optional bool
}

// Binaries lists the programs the configured pipeline calls. The verse
// server appears only when a fast-path command is set.
func Binaries(cfg *config.Config) []Binary {
	bins := []Binary{
		{Name: "yt-dlp", Command: cfg.Download.YtDlpBinary, Purpose: "downloads from video sites"},
		{Name: "FFmpeg", Command: cfg.Download.FFmpegBinary, Purpose: "normalizes audio to 16 kHz mono"},
		{Name: "FFprobe", Command: cfg.Download.FFprobeBinary, Purpose: "probes source duration"},
		{Name: "uvx", Command: transcribe.Launcher, Purpose: "launches WhisperX"},
	}
	if cmd := strings.TrimSpace(cfg.Verification.FastPathCommand); cmd != "" {
		bins = append(bins, Binary{Name: "Verse server", Command: cmd, Purpose: "fast-path verse lookup", Optional: true})
	}
	return bins
}

// CheckBinary resolves b on PATH. A passing result carries the resolved path.
func CheckBinary(b Binary) Result {
	r := Result{Name: b.Name, Optional: b.Optional}
	cmd := strings.TrimSpace(b.Command)
	if cmd == "" {
		r.Detail = "command not configured"
		return r
	}
	path, err := exec.LookPath(cmd)
	if err != nil {
		r.Detail = fmt.Sprintf("%q not found; needed because it %s", cmd, b.Purpose)
		return r
	}
	r.Passed, r.Detail = true, path
	return r
}

// CheckDirectoryAccess passes when path is a directory the process can
// read, write and traverse.
func CheckDirectoryAccess(name, path string) Result {
	fail := func(format string, args ...any) Result {
		return Result{Name: name, Detail: path + ": " + fmt.Sprintf(format, args...)}
	}
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return fail("does not exist")
	case err != nil:
		return fail("stat: %v", err)
	case !info.IsDir():
		return fail("not a directory")
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return fail("insufficient permissions: %v", err)
	}
	return Result{Name: name, Passed: true, Detail: path}
}

type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

// CheckLLM sends one request to the configured provider, without retries.
func CheckLLM(ctx context.Context, cfg config.LLM) Result {
	name := "LLM (" + cfg.Provider + ")"
	if strings.TrimSpace(cfg.APIKey) == "" {
		return Result{Name: name, Detail: "API key missing"}
	}
	ctx, cancel := context.WithTimeout(ctx, llmCheckTimeout)
	defer cancel()

	gen, err := llm.New(ctx, llm.ConfigFrom(cfg), llm.WithRetryMaxAttempts(1))
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	if hc, ok := gen.(healthChecker); ok {
		err = hc.HealthCheck(ctx)
	} else {
		_, err = gen.Generate(ctx, llm.Request{Prompt: "Reply with the single word OK.", MaxTokens: 8})
	}
	if err != nil {
		return Result{Name: name, Detail: describeTimeout(err)}
	}
	return Result{Name: name, Passed: true, Detail: gen.Name() + " reachable"}
}

// CheckVerseSite fetches the Bhagavad-gita index under the library root.
func CheckVerseSite(ctx context.Context, baseURL string) Result {
	const name = "Verse site"
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return Result{Name: name, Detail: "missing url"}
	}
	ctx, cancel := context.WithTimeout(ctx, siteCheckTimeout)
	defer cancel()

	target := base + "/" + strings.ToLower(string(verify.BG)) + "/"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return Result{Name: name, Detail: "unreachable: " + describeTimeout(err)}
	}
	resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return Result{Name: name, Detail: fmt.Sprintf("%s returned %d", target, resp.StatusCode)}
	}
	return Result{Name: name, Passed: true, Detail: target}
}

// CheckNATS dials the event broker. Events are optional, so the result never is.
func CheckNATS(cfg config.Events) Result {
	r := Result{Name: "NATS", Optional: true}
	if strings.TrimSpace(cfg.NATSURL) == "" {
		r.Passed, r.Detail = true, "Disabled"
		return r
	}
	pub, err := events.Connect(cfg.NATSURL, cfg.SubjectPrefix, nil)
	if err != nil {
		r.Detail = err.Error()
		return r
	}
	_ = pub.Close()
	r.Passed, r.Detail = true, cfg.NATSURL
	return r
}

func describeTimeout(err error) string {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return "timed out"
	}
	return err.Error()
}
