package stage_test

import (
	"testing"

	"lecturebook/internal/stage"
)

func TestOrderIsTotal(t *testing.T) {
	all := stage.All()
	if len(all) != 6 {
		t.Fatalf("expected 6 stages, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if !all[i-1].Before(all[i]) {
			t.Fatalf("expected %s before %s", all[i-1], all[i])
		}
		if prev, ok := all[i].Previous(); !ok || prev != all[i-1] {
			t.Fatalf("unexpected previous for %s: %s", all[i], prev)
		}
	}
	if _, ok := stage.Download.Previous(); ok {
		t.Fatal("download has no previous stage")
	}
	if stage.Render.Next() != stage.Done {
		t.Fatalf("render should lead to done, got %s", stage.Render.Next())
	}
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to stage.Stage
		want     bool
	}{
		{stage.Download, stage.Transcribe, true},
		{stage.Transcribe, stage.Validate, false},
		{stage.Validate, stage.Compile, true},
		{stage.Render, stage.Done, true},
		{stage.Enrich, stage.Failed, true},
		{stage.Failed, stage.Download, false},
		{stage.Done, stage.Failed, false},
		{stage.Enrich, stage.Transcribe, false},
	}
	for _, tc := range cases {
		if got := stage.CanTransition(tc.from, tc.to); got != tc.want {
			t.Fatalf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestResumeRequiresPreviousCheckpoint(t *testing.T) {
	entry, ok := stage.Resume(stage.Enrich)
	if !ok || entry.Requires != stage.Transcribe {
		t.Fatalf("unexpected resume entry: %+v %v", entry, ok)
	}
	entry, ok = stage.Resume(stage.Download)
	if !ok || entry.Requires != "" {
		t.Fatalf("download should need no checkpoint: %+v", entry)
	}
	if _, ok := stage.Resume(stage.Failed); ok {
		t.Fatal("cannot resume into failed")
	}
}

func TestParseAndLabel(t *testing.T) {
	s, err := stage.Parse(" Enrich ")
	if err != nil || s != stage.Enrich {
		t.Fatalf("Parse returned %q, %v", s, err)
	}
	if _, err := stage.Parse("encode"); err == nil {
		t.Fatal("expected error for unknown stage")
	}
	if stage.Transcribe.Label() != "Transcribe" {
		t.Fatalf("unexpected label %q", stage.Transcribe.Label())
	}
	if !stage.Validate.PerItem() || stage.Compile.PerItem() {
		t.Fatal("unexpected per-item classification")
	}
}
