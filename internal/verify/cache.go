package verify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"lecturebook/internal/fileutil"
	"lecturebook/internal/logging"
)

const cacheLockDelay = 100 * time.Millisecond

// Cache is the persistent map of verse records keyed SCRIPTURE_chapter_verse.
// It is loaded once per batch and saved once at the end; Save merges with the
// file on disk so entries written by concurrent jobs survive.
type Cache struct {
	path   string
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]Record
	dirty   bool
}

// CacheStats summarizes the cache contents.
type CacheStats struct {
	Path        string         `json:"path"`
	Entries     int            `json:"entries"`
	Verified    int            `json:"verified"`
	ByScripture map[string]int `json:"by_scripture"`
	SizeBytes   int64          `json:"size_bytes"`
}

// NewCache returns an unloaded cache backed by path.
func NewCache(path string, logger *slog.Logger) *Cache {
	return &Cache{
		path:    path,
		logger:  logging.NewComponentLogger(logger, "verse-cache"),
		entries: make(map[string]Record),
	}
}

// Path returns the backing file.
func (c *Cache) Path() string { return c.path }

func (c *Cache) lock() *flock.Flock { return flock.New(c.path + ".lock") }

// Load replaces the in-memory entries with the file contents. A missing file
// is an empty cache; an unreadable JSON body is logged and treated as empty.
func (c *Cache) Load(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	fl := c.lock()
	locked, err := fl.TryRLockContext(ctx, cacheLockDelay)
	if err != nil || !locked {
		return lockFailure("load", err)
	}
	defer func() { _ = fl.Unlock() }()

	entries, err := c.readDisk()
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.entries = entries
	c.dirty = false
	c.mu.Unlock()
	c.logger.Debug("verse cache loaded", logging.Int("entries", len(entries)), logging.String("path", c.path))
	return nil
}

func (c *Cache) readDisk() (map[string]Record, error) {
	entries := make(map[string]Record)
	data, err := os.ReadFile(c.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return entries, nil
		}
		return nil, fmt.Errorf("read verse cache: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		logging.WarnWithContext(c.logger, "verse cache unreadable; starting empty", "cache_load",
			logging.String("path", c.path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "delete the cache file; it is rebuilt from the reference source"),
			logging.String(logging.FieldImpact, "cached verses are refetched"),
		)
		return make(map[string]Record), nil
	}
	return entries, nil
}

// Lookup returns the verified record stored for citation. Unverified entries
// are misses so they get another fetch.
func (c *Cache) Lookup(citation Citation) (Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.entries[citation.CacheKey()]
	if !ok || !rec.Verified {
		return Record{}, false
	}
	return rec, true
}

// Store records rec for citation. It never replaces a verified record with an
// unverified one and reports whether the cache changed.
func (c *Cache) Store(citation Citation, rec Record) bool {
	key := citation.CacheKey()
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.entries[key]; ok && existing.Verified && !rec.Verified {
		return false
	}
	c.entries[key] = rec
	c.dirty = true
	return true
}

// Dirty reports whether Store changed anything since the last Load or Save.
func (c *Cache) Dirty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dirty
}

// Save merges the in-memory entries with the file on disk and writes the
// result atomically under an exclusive lock. It is a no-op when nothing changed.
func (c *Cache) Save(ctx context.Context) error {
	if !c.Dirty() {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	fl := c.lock()
	locked, err := fl.TryLockContext(ctx, cacheLockDelay)
	if err != nil || !locked {
		return lockFailure("save", err)
	}
	defer func() { _ = fl.Unlock() }()

	disk, err := c.readDisk()
	if err != nil {
		return err
	}

	c.mu.Lock()
	for key, onDisk := range disk {
		mine, ok := c.entries[key]
		if !ok || (onDisk.Verified && !mine.Verified) {
			c.entries[key] = onDisk
		}
	}
	data, err := json.MarshalIndent(c.entries, "", "  ")
	count := len(c.entries)
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("encode verse cache: %w", err)
	}
	if err := fileutil.WriteFileAtomic(c.path, data, 0o644); err != nil {
		return fmt.Errorf("write verse cache: %w", err)
	}

	c.mu.Lock()
	c.dirty = false
	c.mu.Unlock()
	c.logger.Info("verse cache saved",
		logging.String(logging.FieldEventType, "cache_save"),
		logging.Int("entries", count),
		logging.String("path", c.path),
	)
	return nil
}

// Stats reports the loaded entries and the size of the backing file.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	stats := CacheStats{Path: c.path, Entries: len(c.entries), ByScripture: make(map[string]int)}
	for key, rec := range c.entries {
		if rec.Verified {
			stats.Verified++
		}
		scripture, _, _ := strings.Cut(key, "_")
		stats.ByScripture[scripture]++
	}
	if info, err := os.Stat(c.path); err == nil {
		stats.SizeBytes = info.Size()
	}
	return stats
}

// Keys returns the stored cache keys in sorted order.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.entries))
	for key := range c.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Records returns a copy of the verified entries.
func (c *Cache) Records() map[string]Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]Record, len(c.entries))
	for key, rec := range c.entries {
		if rec.Verified {
			out[key] = rec
		}
	}
	return out
}

// Clear deletes the backing file and empties the cache.
func (c *Cache) Clear(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	fl := c.lock()
	locked, err := fl.TryLockContext(ctx, cacheLockDelay)
	if err != nil || !locked {
		return lockFailure("clear", err)
	}
	defer func() { _ = fl.Unlock() }()
	if err := os.Remove(c.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove verse cache: %w", err)
	}
	c.mu.Lock()
	c.entries = make(map[string]Record)
	c.dirty = false
	c.mu.Unlock()
	c.logger.Info("verse cache cleared", logging.String("path", c.path))
	return nil
}

func lockFailure(op string, err error) error {
	if err == nil {
		err = errors.New("lock not acquired")
	}
	return fmt.Errorf("verse cache %s: %w", op, err)
}
