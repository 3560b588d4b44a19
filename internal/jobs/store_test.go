package jobs_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"lecturebook/internal/contracts"
	"lecturebook/internal/jobs"
	"lecturebook/internal/pipeline"
	"lecturebook/internal/services"
	"lecturebook/internal/stage"
	"lecturebook/internal/testsupport"
)

func newJob(id string, sources ...string) *jobs.Job {
	items := make([]contracts.SourceItem, len(sources))
	for i, src := range sources {
		items[i] = contracts.SourceItem{Index: i, Source: src}
	}
	return &jobs.Job{
		ID:        id,
		Title:     "Collected Lectures",
		Items:     items,
		Options:   pipeline.DefaultOptions(),
		CreatedAt: testsupport.FixedTime,
	}
}

func TestOpenAppliesMigrations(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenJobStore(t, cfg)
	ctx := context.Background()

	version, err := store.SchemaVersion(ctx)
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if version != "0001_init" {
		t.Fatalf("unexpected schema version %q", version)
	}

	testsupport.CreateJob(t, store, newJob("job-1", "https://example.com/a.mp3", "https://example.com/b.mp3"))
	fetched, err := store.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if fetched.Status != jobs.StatusQueued || fetched.Title != "Collected Lectures" || len(fetched.Items) != 2 {
		t.Fatalf("unexpected job %+v", fetched)
	}
	if !fetched.Options.Enrich || !fetched.CreatedAt.Equal(testsupport.FixedTime) {
		t.Fatalf("options or creation time not persisted: %+v", fetched)
	}
	items, err := store.Items(ctx, "job-1")
	if err != nil {
		t.Fatalf("Items: %v", err)
	}
	if len(items) != 2 || items[1].Source != "https://example.com/b.mp3" || items[1].Stage != "" {
		t.Fatalf("unexpected items %+v", items)
	}

	// Reopening must not re-run applied migrations.
	reopened, err := jobs.OpenPath(store.Path())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	reopened.Close()
}

func TestGetMissingJob(t *testing.T) {
	store := testsupport.MustOpenJobStore(t, testsupport.NewConfig(t))
	_, err := store.Get(context.Background(), "nope")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListFiltersByStatus(t *testing.T) {
	store := testsupport.MustOpenJobStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		testsupport.CreateJob(t, store, newJob(fmt.Sprintf("job-%d", i), "a.mp3"))
	}
	if ok, err := store.MarkRunning(ctx, "job-1"); err != nil || !ok {
		t.Fatalf("MarkRunning: %v %v", ok, err)
	}

	all, err := store.List(ctx)
	if err != nil || len(all) != 3 {
		t.Fatalf("List all: %d %v", len(all), err)
	}
	queued, err := store.List(ctx, jobs.StatusQueued)
	if err != nil {
		t.Fatalf("List queued: %v", err)
	}
	if len(queued) != 2 || queued[0].ID != "job-0" || queued[1].ID != "job-2" {
		t.Fatalf("unexpected queued jobs %v", queued)
	}
	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats[jobs.StatusQueued] != 2 || stats[jobs.StatusRunning] != 1 {
		t.Fatalf("unexpected stats %v", stats)
	}
}

func TestMarkRunningOnlyFromQueued(t *testing.T) {
	store := testsupport.MustOpenJobStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	testsupport.CreateJob(t, store, newJob("job-1", "a.mp3"))

	if ok, _ := store.CancelQueued(ctx, "job-1"); !ok {
		t.Fatal("queued job should cancel")
	}
	if ok, err := store.MarkRunning(ctx, "job-1"); err != nil || ok {
		t.Fatalf("cancelled job must not start: %v %v", ok, err)
	}
	job, _ := store.Get(ctx, "job-1")
	if job.Status != jobs.StatusCancelled || !job.CancelRequested || job.FinishedAt == nil {
		t.Fatalf("unexpected job after cancel %+v", job)
	}
}

func TestFailInterrupted(t *testing.T) {
	store := testsupport.MustOpenJobStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	testsupport.CreateJob(t, store, newJob("running", "a.mp3"))
	testsupport.CreateJob(t, store, newJob("queued", "a.mp3"))
	if _, err := store.MarkRunning(ctx, "running"); err != nil {
		t.Fatalf("MarkRunning: %v", err)
	}

	ids, err := store.FailInterrupted(ctx)
	if err != nil {
		t.Fatalf("FailInterrupted: %v", err)
	}
	if len(ids) != 1 || ids[0] != "running" {
		t.Fatalf("unexpected interrupted ids %v", ids)
	}
	job, _ := store.Get(ctx, "running")
	if job.Status != jobs.StatusFailed || job.ErrorCode != services.CauseInterrupted {
		t.Fatalf("unexpected interrupted job %+v", job)
	}
	queued, _ := store.Get(ctx, "queued")
	if queued.Status != jobs.StatusQueued {
		t.Fatalf("queued job touched: %s", queued.Status)
	}
}

func TestEventsReturnsTailOldestFirst(t *testing.T) {
	store := testsupport.MustOpenJobStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	testsupport.CreateJob(t, store, newJob("job-1", "a.mp3"))
	for i := 0; i < 5; i++ {
		if err := store.AppendEvent(ctx, jobs.Event{JobID: "job-1", Item: 0, Stage: stage.Download, Message: fmt.Sprintf("step %d", i)}); err != nil {
			t.Fatalf("AppendEvent: %v", err)
		}
	}
	tail, err := store.Events(ctx, "job-1", 3)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(tail) != 3 || tail[0].Message != "step 2" || tail[2].Message != "step 4" {
		t.Fatalf("unexpected tail %+v", tail)
	}
	all, _ := store.Events(ctx, "job-1", 0)
	if len(all) != 5 {
		t.Fatalf("expected full log, got %d entries", len(all))
	}
}

func TestDeleteCascades(t *testing.T) {
	store := testsupport.MustOpenJobStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	testsupport.CreateJob(t, store, newJob("job-1", "a.mp3"))
	if err := store.AppendEvent(ctx, jobs.Event{JobID: "job-1", Item: contracts.JobLevel, Message: "queued"}); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}
	if err := store.Delete(ctx, "job-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	items, _ := store.Items(ctx, "job-1")
	log, _ := store.Events(ctx, "job-1", 0)
	if len(items) != 0 || len(log) != 0 {
		t.Fatalf("rows left after delete: %d items, %d events", len(items), len(log))
	}
	if err := store.Delete(ctx, "job-1"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}
