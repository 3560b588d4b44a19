package checkpoint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"lecturebook/internal/contracts"
	"lecturebook/internal/fileutil"
	"lecturebook/internal/logging"
	"lecturebook/internal/stage"
)

var (
	// ErrMissing is returned for absent checkpoints and for stored envelopes
	// that are corrupt, stale, or fail their payload checks.
	ErrMissing = errors.New("checkpoint missing")
	// ErrPrerequisite is returned by Put when an earlier stage has no valid checkpoint.
	ErrPrerequisite = errors.New("checkpoint prerequisite missing")
)

const (
	manifestName   = "manifest.json"
	lockName       = ".lock"
	lockRetryDelay = 50 * time.Millisecond
)

// Envelope is the on-disk wrapper of a stage payload.
type Envelope struct {
	SchemaVersion int             `json:"schema_version"`
	Kind          stage.Stage     `json:"kind"`
	JobID         string          `json:"job_id"`
	ItemIndex     int             `json:"item_index"`
	WrittenAt     time.Time       `json:"written_at"`
	Payload       json.RawMessage `json:"payload"`
}

// ManifestEntry describes one written checkpoint.
type ManifestEntry struct {
	ItemIndex int         `json:"item_index"`
	Stage     stage.Stage `json:"stage"`
	File      string      `json:"file"`
	SHA256    string      `json:"sha256"`
	WrittenAt time.Time   `json:"written_at"`
}

// Manifest lists the checkpoints written for one job.
type Manifest struct {
	JobID     string          `json:"job_id"`
	UpdatedAt time.Time       `json:"updated_at"`
	Entries   []ManifestEntry `json:"entries"`
}

// Store is a filesystem-backed checkpoint store.
type Store struct {
	root   string
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	jobLocks map[string]*sync.Mutex
}

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the timestamp source used for envelopes and manifests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Open prepares a store rooted at dir, creating it when absent.
func Open(dir string, logger *slog.Logger, opts ...Option) (*Store, error) {
	if dir == "" {
		return nil, errors.New("checkpoint root is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint root: %w", err)
	}
	s := &Store{
		root:     dir,
		logger:   logging.NewComponentLogger(logger, "checkpoint"),
		now:      time.Now,
		jobLocks: make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Root returns the store directory.
func (s *Store) Root() string { return s.root }

func (s *Store) jobDir(jobID string) string { return filepath.Join(s.root, jobID) }

func (s *Store) path(key Key) string { return filepath.Join(s.jobDir(key.JobID), key.filename()) }

// Put validates payload, checks prerequisites, and writes it atomically under key.
// A second Put of the same key replaces the first (last writer wins).
func (s *Store) Put(ctx context.Context, key Key, payload contracts.Payload) error {
	if err := key.validate(); err != nil {
		return err
	}
	if payload == nil {
		return fmt.Errorf("put %s: nil payload", key)
	}
	if payload.Stage() != key.Stage {
		return fmt.Errorf("put %s: payload is for stage %s", key, payload.Stage())
	}
	if err := payload.Validate(); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("put %s: encode payload: %w", key, err)
	}

	unlock, err := s.lockJob(ctx, key.JobID)
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.checkPrerequisites(ctx, key); err != nil {
		return err
	}

	env := Envelope{
		SchemaVersion: contracts.SchemaVersion,
		Kind:          key.Stage,
		JobID:         key.JobID,
		ItemIndex:     key.ItemIndex,
		WrittenAt:     s.now().UTC(),
		Payload:       raw,
	}
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("put %s: encode envelope: %w", key, err)
	}
	if err := fileutil.WriteFileAtomic(s.path(key), data, 0o644); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	sum := sha256.Sum256(data)
	if err := s.recordManifest(key, hex.EncodeToString(sum[:]), env.WrittenAt); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}

	s.logger.Debug("checkpoint written",
		logging.String(logging.FieldJobID, key.JobID),
		logging.Int(logging.FieldItemIndex, key.ItemIndex),
		logging.String(logging.FieldStage, string(key.Stage)),
		logging.Int("bytes", len(data)),
	)
	return nil
}

// Get returns the payload stored under key. Absent, corrupt, or invalid
// envelopes all return an error wrapping ErrMissing.
func (s *Store) Get(ctx context.Context, key Key) (contracts.Payload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := key.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissing, err)
	}
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrMissing, key)
		}
		return nil, fmt.Errorf("%w: read %s: %v", ErrMissing, key, err)
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, s.invalid(key, fmt.Errorf("decode envelope: %w", err))
	}
	switch {
	case env.SchemaVersion != contracts.SchemaVersion:
		return nil, s.invalid(key, fmt.Errorf("schema version %d", env.SchemaVersion))
	case env.Kind != key.Stage:
		return nil, s.invalid(key, fmt.Errorf("kind %q", env.Kind))
	case env.JobID != key.JobID || env.ItemIndex != key.ItemIndex:
		return nil, s.invalid(key, fmt.Errorf("envelope addressed to %s/%d", env.JobID, env.ItemIndex))
	}
	payload, err := contracts.Decode(key.Stage, env.Payload)
	if err != nil {
		return nil, s.invalid(key, err)
	}
	return payload, nil
}

func (s *Store) invalid(key Key, err error) error {
	s.logger.Debug("checkpoint treated as missing",
		logging.String(logging.FieldJobID, key.JobID),
		logging.Int(logging.FieldItemIndex, key.ItemIndex),
		logging.String(logging.FieldStage, string(key.Stage)),
		logging.Error(err),
	)
	return fmt.Errorf("%w: %s: %v", ErrMissing, key, err)
}

// Has reports whether a valid checkpoint exists for key.
func (s *Store) Has(ctx context.Context, key Key) bool {
	_, err := s.Get(ctx, key)
	return err == nil
}

// Purge deletes every checkpoint of a job. It is never invoked implicitly.
func (s *Store) Purge(ctx context.Context, jobID string) error {
	if err := (Key{JobID: jobID, ItemIndex: contracts.JobLevel, Stage: stage.Compile}).validate(); err != nil {
		return err
	}
	dir := s.jobDir(jobID)
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	unlock, err := s.lockJob(ctx, jobID)
	if err != nil {
		return err
	}
	defer unlock()
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("purge %s: %w", jobID, err)
	}
	s.logger.Info("checkpoints purged", logging.String(logging.FieldJobID, jobID))
	return nil
}

// Manifest returns the manifest of a job; a job without checkpoints has an empty manifest.
func (s *Store) Manifest(ctx context.Context, jobID string) (Manifest, error) {
	if err := ctx.Err(); err != nil {
		return Manifest{}, err
	}
	return s.readManifest(jobID)
}

// Keys lists the keys present on disk for a job, ordered by stage then item.
func (s *Store) Keys(jobID string) ([]Key, error) {
	entries, err := os.ReadDir(s.jobDir(jobID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	keys := make([]Key, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if key, ok := parseFilename(jobID, entry.Name()); ok {
			keys = append(keys, key)
		}
	}
	sortKeys(keys)
	return keys, nil
}

// CopyForward copies every valid checkpoint of src whose stage precedes
// before into dst, returning the number copied. Invalid source checkpoints
// are skipped.
func (s *Store) CopyForward(ctx context.Context, src, dst string, before stage.Stage) (int, error) {
	if src == dst {
		return 0, errors.New("copy forward: source and destination are the same job")
	}
	keys, err := s.Keys(src)
	if err != nil {
		return 0, err
	}
	copied := 0
	for _, key := range keys {
		if !key.Stage.Before(before) {
			continue
		}
		payload, err := s.Get(ctx, key)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return copied, ctxErr
			}
			continue
		}
		target := key
		target.JobID = dst
		if err := s.Put(ctx, target, payload); err != nil {
			if errors.Is(err, ErrPrerequisite) {
				continue
			}
			return copied, err
		}
		copied++
	}
	s.logger.Info("checkpoints copied forward",
		logging.String("source_job", src),
		logging.String(logging.FieldJobID, dst),
		logging.String("before", string(before)),
		logging.Int("copied", copied),
	)
	return copied, nil
}

// LastValid returns the latest item stage with a valid checkpoint for one item,
// walking forward from Download and stopping at the first gap.
func (s *Store) LastValid(ctx context.Context, jobID string, index int) (stage.Stage, bool) {
	var last stage.Stage
	for _, st := range stage.ItemStages() {
		if !s.Has(ctx, ItemKey(jobID, index, st)) {
			break
		}
		last = st
	}
	return last, last != ""
}

func (s *Store) checkPrerequisites(ctx context.Context, key Key) error {
	switch key.Stage {
	case stage.Download:
		return nil
	case stage.Compile:
		keys, err := s.Keys(key.JobID)
		if err != nil {
			return err
		}
		for _, k := range keys {
			if k.Stage == stage.Validate && s.passed(ctx, k) {
				return nil
			}
		}
		return fmt.Errorf("%w: %s needs at least one validated item", ErrPrerequisite, key)
	case stage.Render:
		if !s.Has(ctx, JobKey(key.JobID, stage.Compile)) {
			return fmt.Errorf("%w: %s needs a compile checkpoint", ErrPrerequisite, key)
		}
		return nil
	}
	for _, st := range stage.ItemStages() {
		if !st.Before(key.Stage) {
			break
		}
		if !s.Has(ctx, ItemKey(key.JobID, key.ItemIndex, st)) {
			return fmt.Errorf("%w: %s needs %s", ErrPrerequisite, key, st)
		}
	}
	return nil
}

// passed reports whether a Validate checkpoint exists and has no critical findings.
func (s *Store) passed(ctx context.Context, key Key) bool {
	payload, err := s.Get(ctx, key)
	if err != nil {
		return false
	}
	report, ok := payload.(*contracts.ValidationOutput)
	return ok && report.OverallPass
}

func (s *Store) readManifest(jobID string) (Manifest, error) {
	m := Manifest{JobID: jobID}
	data, err := os.ReadFile(filepath.Join(s.jobDir(jobID), manifestName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return m, nil
		}
		return m, fmt.Errorf("read manifest: %w", err)
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{JobID: jobID}, fmt.Errorf("decode manifest: %w", err)
	}
	return m, nil
}

// recordManifest upserts key into the manifest. Callers hold the job lock.
func (s *Store) recordManifest(key Key, sum string, writtenAt time.Time) error {
	m, err := s.readManifest(key.JobID)
	if err != nil {
		// A corrupt manifest is rebuilt from the files on disk.
		m = Manifest{JobID: key.JobID}
	}
	entry := ManifestEntry{ItemIndex: key.ItemIndex, Stage: key.Stage, File: key.filename(), SHA256: sum, WrittenAt: writtenAt}
	replaced := false
	for i := range m.Entries {
		if m.Entries[i].ItemIndex == key.ItemIndex && m.Entries[i].Stage == key.Stage {
			m.Entries[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		m.Entries = append(m.Entries, entry)
	}
	sort.Slice(m.Entries, func(i, j int) bool {
		a, b := m.Entries[i], m.Entries[j]
		if a.Stage.Index() != b.Stage.Index() {
			return a.Stage.Index() < b.Stage.Index()
		}
		return a.ItemIndex < b.ItemIndex
	})
	m.UpdatedAt = writtenAt
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return fileutil.WriteFileAtomic(filepath.Join(s.jobDir(key.JobID), manifestName), data, 0o644)
}

// lockJob serializes writers to one job across goroutines and processes.
func (s *Store) lockJob(ctx context.Context, jobID string) (func(), error) {
	s.mu.Lock()
	mu, ok := s.jobLocks[jobID]
	if !ok {
		mu = &sync.Mutex{}
		s.jobLocks[jobID] = mu
	}
	s.mu.Unlock()
	mu.Lock()

	dir := s.jobDir(jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		mu.Unlock()
		return nil, fmt.Errorf("create job checkpoint dir: %w", err)
	}
	fl := flock.New(filepath.Join(dir, lockName))
	locked, err := fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil || !locked {
		mu.Unlock()
		if err == nil {
			err = errors.New("lock not acquired")
		}
		return nil, fmt.Errorf("lock job %s checkpoints: %w", jobID, err)
	}
	return func() {
		if err := fl.Unlock(); err != nil {
			s.logger.Warn("checkpoint lock release failed",
				logging.String(logging.FieldJobID, jobID),
				logging.Error(err),
				logging.String(logging.FieldEventType, "checkpoint_unlock_failed"),
				logging.String(logging.FieldErrorHint, "remove the stale .lock file if writes block"),
				logging.String(logging.FieldImpact, "other writers may wait for the lock"),
			)
		}
		mu.Unlock()
	}, nil
}

func sortKeys(keys []Key) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Stage.Index() != keys[j].Stage.Index() {
			return keys[i].Stage.Index() < keys[j].Stage.Index()
		}
		return keys[i].ItemIndex < keys[j].ItemIndex
	})
}
