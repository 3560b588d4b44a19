package services_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"lecturebook/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "transcribe", "whisperx", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"transcribe", "whisperx", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected fallback detail, got %q", err.Error())
	}
}

func TestCauseMapping(t *testing.T) {
	cases := []struct {
		err  error
		want services.CauseCode
	}{
		{nil, ""},
		{services.Wrap(services.ErrValidation, "validate", "report", "critical findings", nil), services.CauseValidation},
		{services.Wrap(services.ErrConfiguration, "", "", "bad", nil), services.CauseConfiguration},
		{services.Wrap(services.ErrCheckpoint, "enrich", "put", "", errors.New("disk")), services.CauseCheckpoint},
		{fmt.Errorf("run: %w", context.Canceled), services.CauseCancelled},
		{fmt.Errorf("call: %w", context.DeadlineExceeded), services.CauseTimeout},
		{services.ErrNoSurvivors, services.CauseNoItemsValidated},
		{errors.New("raw"), services.CauseInternal},
	}
	for _, tc := range cases {
		if got := services.Cause(tc.err); got != tc.want {
			t.Fatalf("Cause(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestFatalToJob(t *testing.T) {
	if !services.FatalToJob(services.Wrap(services.ErrConfiguration, "", "", "missing", nil)) {
		t.Fatal("expected configuration errors to be fatal to the job")
	}
	if services.FatalToJob(services.Wrap(services.ErrExternalTool, "download", "", "", nil)) {
		t.Fatal("expected external tool errors to be fatal to the item only")
	}
}

func TestDetailsCarriesHint(t *testing.T) {
	details := services.Details(services.Wrap(services.ErrTimeout, "transcribe", "", "slow", nil))
	if details.Code != services.CauseTimeout {
		t.Fatalf("unexpected code %q", details.Code)
	}
	if details.Hint == "" || details.Message == "" {
		t.Fatalf("expected hint and message, got %+v", details)
	}
}
