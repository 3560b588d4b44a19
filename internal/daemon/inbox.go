package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"lecturebook/internal/contracts"
	"lecturebook/internal/jobs"
	"lecturebook/internal/logging"
)

const (
	acceptedDirName    = "accepted"
	defaultSettleDelay = 2 * time.Second
)

// settleDelay is how long a file in the inbox must go without writes before
// it is submitted.
var settleDelay = defaultSettleDelay

func (d *Daemon) watchInbox(ctx context.Context) error {
	dir := d.cfg.Watch.InboxDir
	if err := os.MkdirAll(filepath.Join(dir, acceptedDirName), 0o755); err != nil {
		return fmt.Errorf("create inbox: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return err
	}
	d.watcher = w

	// Files dropped while no server was running.
	pending := make(map[string]time.Time)
	entries, err := os.ReadDir(dir)
	if err != nil {
		_ = w.Close()
		return err
	}
	for _, entry := range entries {
		if !entry.IsDir() && d.acceptsExtension(entry.Name()) {
			pending[filepath.Join(dir, entry.Name())] = time.Time{}
		}
	}

	d.wg.Add(1)
	go d.inboxLoop(ctx, w, pending)
	return nil
}

func (d *Daemon) inboxLoop(ctx context.Context, w *fsnotify.Watcher, pending map[string]time.Time) {
	defer d.wg.Done()
	ticker := time.NewTicker(settleDelay / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if filepath.Dir(ev.Name) != filepath.Clean(d.cfg.Watch.InboxDir) || !d.acceptsExtension(ev.Name) {
				continue
			}
			pending[ev.Name] = time.Now()
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			logging.WarnWithContext(d.logger, "inbox watcher error", "inbox_watch_error",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the inbox directory still exists"),
				logging.String(logging.FieldImpact, "dropped files may be missed until the server restarts"),
			)
		case now := <-ticker.C:
			for path, last := range pending {
				if now.Sub(last) < settleDelay {
					continue
				}
				delete(pending, path)
				if _, err := d.AddFile(ctx, path); err != nil && ctx.Err() == nil {
					logging.WarnWithContext(d.logger, "inbox file not submitted", "inbox_submit_failed",
						logging.String("path", path),
						logging.Error(err),
						logging.String(logging.FieldErrorHint, "check the file is a readable audio or video file"),
						logging.String(logging.FieldImpact, "the file stays in the inbox"),
					)
				}
			}
		}
	}
}

// AddFile submits a single-item job for a local audio or video file. Files
// inside the inbox are moved to its accepted directory first so they are
// submitted once.
func (d *Daemon) AddFile(ctx context.Context, sourcePath string) (string, error) {
	trimmed := strings.TrimSpace(sourcePath)
	if trimmed == "" {
		return "", errors.New("source path is required")
	}
	absPath, err := filepath.Abs(trimmed)
	if err != nil {
		return "", fmt.Errorf("resolve source path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("stat source file: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("source path %q is a directory", absPath)
	}
	if !d.acceptsExtension(absPath) {
		return "", fmt.Errorf("unsupported file extension %q", filepath.Ext(absPath))
	}

	source := absPath
	moved := false
	if inbox := strings.TrimSpace(d.cfg.Watch.InboxDir); inbox != "" {
		if inboxAbs, err := filepath.Abs(inbox); err == nil && filepath.Dir(absPath) == inboxAbs {
			source, err = acceptedPath(inboxAbs, info.Name())
			if err != nil {
				return "", err
			}
			if err := os.Rename(absPath, source); err != nil {
				return "", fmt.Errorf("move into accepted: %w", err)
			}
			moved = true
		}
	}

	id, err := d.supervisor.Submit(ctx, jobs.SubmitRequest{
		Items:   []contracts.SourceItem{{Source: source}},
		Title:   titleFromFilename(info.Name()),
		Options: d.options,
	})
	if err != nil {
		if moved {
			_ = os.Rename(source, absPath)
		}
		return "", fmt.Errorf("submit %s: %w", info.Name(), err)
	}
	d.logger.Info("inbox file queued",
		logging.String(logging.FieldEventType, "inbox_file_queued"),
		logging.String(logging.FieldJobID, id),
		logging.String("source", source),
	)
	return id, nil
}

func (d *Daemon) acceptsExtension(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return false
	}
	for _, allowed := range d.cfg.Watch.Extensions {
		if strings.ToLower(strings.TrimSpace(allowed)) == ext {
			return true
		}
	}
	return false
}

func acceptedPath(inbox, name string) (string, error) {
	dir := filepath.Join(inbox, acceptedDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create accepted dir: %w", err)
	}
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	candidate := filepath.Join(dir, name)
	for n := 1; ; n++ {
		if _, err := os.Stat(candidate); errors.Is(err, os.ErrNotExist) {
			return candidate, nil
		}
		candidate = filepath.Join(dir, fmt.Sprintf("%s-%d%s", base, n, ext))
	}
}

func titleFromFilename(name string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	base = strings.NewReplacer("_", " ", "-", " ").Replace(base)
	return strings.Join(strings.Fields(base), " ")
}
