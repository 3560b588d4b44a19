package testsupport

import (
	"context"
	"testing"
	"time"

	"lecturebook/internal/checkpoint"
	"lecturebook/internal/config"
	"lecturebook/internal/jobs"
	"lecturebook/internal/logging"
)

// MustOpenJobStore opens a jobs.Store for tests and registers cleanup.
func MustOpenJobStore(t testing.TB, cfg *config.Config) *jobs.Store {
	t.Helper()

	store, err := jobs.Open(cfg)
	if err != nil {
		t.Fatalf("jobs.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustOpenCheckpoints opens the checkpoint store under cfg with FixedTime as
// its clock.
func MustOpenCheckpoints(t testing.TB, cfg *config.Config) *checkpoint.Store {
	t.Helper()

	store, err := checkpoint.Open(cfg.Paths.CheckpointDir, logging.NewNop(), checkpoint.WithClock(func() time.Time { return FixedTime }))
	if err != nil {
		t.Fatalf("checkpoint.Open: %v", err)
	}
	return store
}

// CreateJob inserts job into store.
func CreateJob(t testing.TB, store *jobs.Store, job *jobs.Job) *jobs.Job {
	t.Helper()

	if err := store.Create(context.Background(), job); err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return job
}
