package contracts_test

import (
	"encoding/json"
	"errors"
	"testing"

	"lecturebook/internal/contracts"
	"lecturebook/internal/stage"
	"lecturebook/internal/verify"
)

func sampleTranscript() *contracts.TranscriptOutput {
	segs := []contracts.Segment{
		{Index: 0, Start: 0, End: 4, Text: "Today we discuss BG 2.47.", Speaker: "SPEAKER_00", Confidence: 0.9},
		{Index: 1, Start: 4, End: 9, Text: "Work without attachment to results.", Speaker: "SPEAKER_00", Confidence: 0.8},
	}
	return &contracts.TranscriptOutput{
		SourceAudio:     "/tmp/a.wav",
		Segments:        segs,
		FullText:        contracts.JoinSegments(segs),
		DurationSeconds: 9,
		Language:        "en",
		Model:           "large-v3",
	}
}

func TestDecodeRoundTripsTranscript(t *testing.T) {
	raw, err := json.Marshal(sampleTranscript())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	payload, err := contracts.Decode(stage.Transcribe, raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	out, ok := payload.(*contracts.TranscriptOutput)
	if !ok {
		t.Fatalf("unexpected payload type %T", payload)
	}
	if out.FullText != "Today we discuss BG 2.47. Work without attachment to results." {
		t.Fatalf("unexpected full text %q", out.FullText)
	}
}

func TestDecodeRejectsInvalidShapes(t *testing.T) {
	broken := sampleTranscript()
	broken.Segments[1].End = 1
	raw, _ := json.Marshal(broken)
	if _, err := contracts.Decode(stage.Transcribe, raw); !errors.Is(err, contracts.ErrInvalid) {
		t.Fatalf("expected ErrInvalid for end before start, got %v", err)
	}

	if _, err := contracts.Decode(stage.Download, []byte(`{"source_url":`)); !errors.Is(err, contracts.ErrInvalid) {
		t.Fatalf("expected ErrInvalid for truncated json, got %v", err)
	}
	if _, err := contracts.Decode(stage.Failed, []byte(`{}`)); !errors.Is(err, contracts.ErrInvalid) {
		t.Fatalf("expected ErrInvalid for non-pipeline stage, got %v", err)
	}
}

func TestTranscriptDurationTolerance(t *testing.T) {
	tr := sampleTranscript()
	tr.DurationSeconds = 8.5
	if err := tr.Validate(); err != nil {
		t.Fatalf("expected drift within 10%% to pass: %v", err)
	}
	tr.DurationSeconds = 5
	if err := tr.Validate(); err == nil {
		t.Fatal("expected segment past duration to fail")
	}
}

func TestEnrichmentRequiresOneOutcomePerCitation(t *testing.T) {
	c, err := verify.ParseReference("BG 2.47", verify.OriginPattern)
	if err != nil {
		t.Fatalf("ParseReference: %v", err)
	}
	rec := verify.Record{Verified: true, Translation: "You have a right to perform your prescribed duty", URL: "https://vedabase.io/en/library/bg/2/47/"}
	out := &contracts.EnrichmentOutput{
		Markdown:  "# Notes",
		Citations: []verify.Citation{c},
		Outcomes:  []verify.Outcome{{Key: c.Key(), Kind: verify.OutcomeVerified, Source: verify.ResolutionCache, Record: &rec}},
	}
	out.Verification = contracts.Summarize(out.Outcomes)
	if err := out.Validate(); err != nil {
		t.Fatalf("expected valid enrichment: %v", err)
	}
	if keys := out.VerifiedKeys(); len(keys) != 1 || keys[0] != "BG 2.47" {
		t.Fatalf("unexpected verified keys %v", keys)
	}

	out.Outcomes = nil
	if err := out.Validate(); err == nil {
		t.Fatal("expected missing outcome to fail")
	}
}

func TestValidationTallyAndConsistency(t *testing.T) {
	report := &contracts.ValidationOutput{
		TranscriptChecks: []contracts.Finding{
			{Check: "content_density", Passed: false, Severity: contracts.SeverityCritical, Message: "too sparse"},
			{Check: "segment_gap_analysis", Passed: false, Severity: contracts.SeverityWarning, Message: "gap"},
		},
		Summary: "1 critical, 1 warning",
	}
	if err := report.Validate(); err == nil {
		t.Fatal("expected untallied report to fail")
	}
	report.Tally()
	if report.Critical != 1 || report.Warnings != 1 || report.OverallPass {
		t.Fatalf("unexpected tally %+v", report)
	}
	if err := report.Validate(); err != nil {
		t.Fatalf("expected tallied report to validate: %v", err)
	}
	if got := report.Failed(contracts.SeverityCritical); len(got) != 1 || got[0].Check != "content_density" {
		t.Fatalf("unexpected critical findings %v", got)
	}
}

func TestCompileChapterCountMatchesReport(t *testing.T) {
	out := &contracts.CompileOutput{
		Title:        "Lectures",
		Chapters:     []contracts.Chapter{{Number: 1, Title: "One", ContentMarkdown: "body"}},
		Report:       contracts.CompileReport{TotalChapters: 2},
		FullMarkdown: "# Lectures",
	}
	if err := out.Validate(); err == nil {
		t.Fatal("expected mismatch to fail")
	}
	out.Report.TotalChapters = 1
	if err := out.Validate(); err != nil {
		t.Fatalf("expected valid compile output: %v", err)
	}
}

func TestRenderRequiresFiles(t *testing.T) {
	out := &contracts.RenderOutput{}
	if err := out.Validate(); err == nil {
		t.Fatal("expected empty render output to fail")
	}
	out.Files = []contracts.RenderedFile{{Format: "markdown", Path: "/tmp/book.md"}}
	if err := out.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Primary() != "/tmp/book.md" {
		t.Fatalf("unexpected primary %q", out.Primary())
	}
}
