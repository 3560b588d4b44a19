package compile_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"lecturebook/internal/compile"
	"lecturebook/internal/contracts"
	"lecturebook/internal/services"
	"lecturebook/internal/stage"
	"lecturebook/internal/testsupport"
)

func item(index int, pass bool) compile.Item {
	return compile.Item{
		Index:      index,
		Download:   testsupport.DownloadFixture(index),
		Transcript: testsupport.TranscriptFixture(),
		Enrichment: testsupport.EnrichmentFixture(),
		Validation: testsupport.ValidationFixture(pass),
	}
}

func TestCompileSingleItem(t *testing.T) {
	c := &compile.Compiler{}
	out, err := c.Compile(compile.Request{CompiledAt: testsupport.FixedTime, Items: []compile.Item{item(0, true)}})
	if err != nil {
		t.Fatalf("Compile returned error: %v", err)
	}
	if out.Title != "Lecture 1" {
		t.Fatalf("expected title from download, got %q", out.Title)
	}
	if len(out.Chapters) != 1 || out.Chapters[0].Number != 1 {
		t.Fatalf("unexpected chapters %+v", out.Chapters)
	}
	if !strings.Contains(out.FullMarkdown, "*Compiled on March 14, 2025*") {
		t.Fatalf("missing compile date in markdown:\n%s", out.FullMarkdown)
	}
	if strings.Contains(out.FullMarkdown, "# Chapter 1:") {
		t.Fatalf("single item book should not carry chapter headers:\n%s", out.FullMarkdown)
	}
	if diff := cmp.Diff(map[string][]int{"BG 2.47": {1}}, out.VerseIndex); diff != "" {
		t.Fatalf("verse index mismatch (-want +got):\n%s", diff)
	}
	if out.Report.VerifiedVerseCount != 1 || out.Report.UnverifiedVerseCount != 0 {
		t.Fatalf("unexpected report %+v", out.Report)
	}
	if err := out.Validate(); err != nil {
		t.Fatalf("compile output failed validation: %v", err)
	}
}

func TestCompileMultipleItemsReportsFailures(t *testing.T) {
	c := &compile.Compiler{}
	req := compile.Request{
		Title:      "Summer Retreat",
		Speaker:    "Guest",
		CompiledAt: testsupport.FixedTime,
		Items:      []compile.Item{item(2, true), item(0, true), item(1, false)},
		Failed: []compile.FailedItem{
			{Index: 3, Source: "https://example.com/broken.mp3", Stage: stage.Transcribe, Cause: services.CauseExternalTool},
		},
	}
	out, err := c.Compile(req)
	if err != nil {
		t.Fatalf("Compile returned error: %v", err)
	}

	if len(out.Chapters) != 2 {
		t.Fatalf("expected 2 chapters, got %d", len(out.Chapters))
	}
	if out.Chapters[0].ItemIndex != 0 || out.Chapters[1].ItemIndex != 2 || out.Chapters[1].Number != 2 {
		t.Fatalf("chapters out of order: %+v", out.Chapters)
	}
	if !strings.HasPrefix(out.Chapters[1].ContentMarkdown, "# Chapter 2: Lecture 3") {
		t.Fatalf("expected chapter header, got %q", out.Chapters[1].ContentMarkdown)
	}
	if !strings.Contains(out.Chapters[0].ContentMarkdown, "\n## Lecture Notes") {
		t.Fatalf("expected demoted headings, got %q", out.Chapters[0].ContentMarkdown)
	}
	if diff := cmp.Diff(map[string][]int{"BG 2.47": {1, 2}}, out.VerseIndex); diff != "" {
		t.Fatalf("verse index mismatch (-want +got):\n%s", diff)
	}

	var statuses []string
	for _, ref := range out.SourceReferences {
		statuses = append(statuses, string(ref.Status)+":"+ref.FailedStage)
	}
	want := []string{"success:", "failed:validate", "success:", "failed:transcribe"}
	if diff := cmp.Diff(want, statuses); diff != "" {
		t.Fatalf("source references mismatch (-want +got):\n%s", diff)
	}
	if out.SourceReferences[3].Status != contracts.SourceFailed || out.SourceReferences[1].ErrorCode != string(services.CauseValidation) {
		t.Fatalf("expected validation cause, got %+v", out.SourceReferences[1])
	}

	var failedWarnings int
	for _, w := range out.Report.Warnings {
		if strings.HasPrefix(w, "Source ") {
			failedWarnings++
		}
	}
	if failedWarnings != 2 {
		t.Fatalf("expected two failed-source warnings, got %v", out.Report.Warnings)
	}
	for _, section := range []string{"# Summer Retreat", "*By Guest*", "# Scripture Index", "- **BG 2.47**: Ch. 1, Ch. 2", "# Source References"} {
		if !strings.Contains(out.FullMarkdown, section) {
			t.Fatalf("markdown missing %q", section)
		}
	}
}

func TestCompileNoSurvivors(t *testing.T) {
	c := &compile.Compiler{}
	_, err := c.Compile(compile.Request{CompiledAt: testsupport.FixedTime, Items: []compile.Item{item(0, false)}})
	if !errors.Is(err, services.ErrNoSurvivors) {
		t.Fatalf("expected ErrNoSurvivors, got %v", err)
	}
}

func TestCompileIsDeterministic(t *testing.T) {
	c := &compile.Compiler{}
	req := compile.Request{CompiledAt: testsupport.FixedTime, Items: []compile.Item{item(0, true), item(1, true)}}
	first, err := c.Compile(req)
	if err != nil {
		t.Fatal(err)
	}
	second, err := c.Compile(req)
	if err != nil {
		t.Fatal(err)
	}
	if first.FullMarkdown != second.FullMarkdown {
		t.Fatal("compile output differs between identical runs")
	}
}

func TestCompileFallsBackToTranscript(t *testing.T) {
	it := item(0, true)
	it.Enrichment = nil
	out, err := (&compile.Compiler{}).Compile(compile.Request{CompiledAt: testsupport.FixedTime, Items: []compile.Item{it}})
	if err != nil {
		t.Fatalf("Compile returned error: %v", err)
	}
	body := out.Chapters[0].ContentMarkdown
	if !strings.HasPrefix(body, "# Lecture 1\n\n") {
		t.Fatalf("expected title heading, got %q", body)
	}
	if strings.Count(body, "\n\n") != 2 {
		t.Fatalf("expected two paragraphs split at the speaker change, got %q", body)
	}
}

func TestDemoteHeadings(t *testing.T) {
	in := "# Top\ntext\n```\n# not a heading\n```\n###### deep\n#hashtag"
	want := "## Top\ntext\n```\n# not a heading\n```\n###### deep\n#hashtag"
	if got := compile.DemoteHeadings(in); got != want {
		t.Fatalf("DemoteHeadings mismatch:\n%s", cmp.Diff(want, got))
	}
}
