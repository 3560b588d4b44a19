package chunker_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"lecturebook/internal/chunker"
)

func TestMergeStripsFramingAndMarksFailures(t *testing.T) {
	results := []chunker.ChunkResult{
		{Index: 1, Markdown: "# Lecture Notes: Part Two\nAll glories to Srila Prabhupada\n\n## Theme\nBody two"},
		{Index: 0, Markdown: "# Lecture Notes\n\nIntro\n"},
		{Index: 2, Failure: "rate limited\nby provider"},
	}
	want := "# Lecture Notes\n\nIntro" +
		"\n\n---\n\n## Continued: Section 2\n\n## Theme\nBody two" +
		"\n\n---\n\n> Section 3 could not be generated: rate limited by provider"
	if diff := cmp.Diff(want, chunker.Merge(results)); diff != "" {
		t.Fatalf("merged markdown mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeSingleChunkIsVerbatim(t *testing.T) {
	got := chunker.Merge([]chunker.ChunkResult{{Index: 0, Markdown: "  # Notes\n\nBody\n"}})
	if got != "# Notes\n\nBody" {
		t.Fatalf("unexpected merge %q", got)
	}
}

func TestMergeOnlyChecksLeadingLinesForFraming(t *testing.T) {
	body := "Intro line\n1\n2\n3\n4\n5\n6\n7\n8\n9\n## Version 2 of the argument"
	got := chunker.Merge([]chunker.ChunkResult{
		{Index: 0, Markdown: "first"},
		{Index: 1, Markdown: body},
	})
	want := "first\n\n---\n\n## Continued: Section 2\n\n" + body
	if got != want {
		t.Fatalf("unexpected merge:\n%s", got)
	}
}
