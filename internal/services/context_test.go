package services_test

import (
	"context"
	"testing"

	"lecturebook/internal/services"
)

func TestScopeAccumulatesFields(t *testing.T) {
	ctx := services.WithJobID(context.Background(), "job-1")
	ctx = services.WithItemIndex(ctx, 0)
	ctx = services.WithStage(ctx, "enrich")
	ctx = services.WithCorrelationID(ctx, "req-123")

	want := services.Scope{JobID: "job-1", ItemIndex: 0, HasItem: true, Stage: "enrich", CorrelationID: "req-123"}
	if got := services.ScopeFrom(ctx); got != want {
		t.Fatalf("ScopeFrom = %+v, want %+v", got, want)
	}
}

func TestScopeIsCopiedPerContext(t *testing.T) {
	parent := services.WithStage(services.WithJobID(context.Background(), "job-1"), "download")
	child := services.WithStage(parent, "transcribe")

	if got := services.ScopeFrom(parent).Stage; got != "download" {
		t.Fatalf("parent stage = %q, want download", got)
	}
	if got := services.ScopeFrom(child); got.Stage != "transcribe" || got.JobID != "job-1" {
		t.Fatalf("child scope = %+v", got)
	}
}

func TestBlankValuesLeaveScopeUnchanged(t *testing.T) {
	ctx := services.WithStage(context.Background(), "")
	ctx = services.WithJobID(ctx, "")
	if got := services.ScopeFrom(ctx); got != (services.Scope{}) {
		t.Fatalf("expected empty scope, got %+v", got)
	}
	if services.ScopeFrom(ctx).HasItem {
		t.Fatal("item must be unset")
	}
}
