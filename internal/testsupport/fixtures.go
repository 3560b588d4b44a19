package testsupport

import (
	"fmt"
	"time"

	"lecturebook/internal/contracts"
	"lecturebook/internal/verify"
)

// FixedTime is the timestamp used by fixtures that need one.
var FixedTime = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

// DownloadFixture returns a valid download output for item index.
func DownloadFixture(index int) *contracts.DownloadOutput {
	return &contracts.DownloadOutput{
		SourceURL:       fmt.Sprintf("https://example.com/lecture-%d.mp3", index),
		SourceType:      contracts.SourceDirectHTTP,
		AudioPath:       fmt.Sprintf("/work/item-%d/audio.wav", index),
		Title:           fmt.Sprintf("Lecture %d", index+1),
		DurationSeconds: 20,
		SizeBytes:       640000,
	}
}

// TranscriptFixture returns a short valid transcript that cites BG 2.47.
func TranscriptFixture() *contracts.TranscriptOutput {
	segs := []contracts.Segment{
		{Index: 0, Start: 0, End: 6, Text: "Today we read BG 2.47 together.", Speaker: "SPEAKER_00", Confidence: 0.92},
		{Index: 1, Start: 6, End: 13, Text: "You have a right to perform your prescribed duty.", Speaker: "SPEAKER_00", Confidence: 0.88},
		{Index: 2, Start: 13, End: 20, Text: "But you are not entitled to the fruits of action.", Speaker: "SPEAKER_01", Confidence: 0.9},
	}
	return &contracts.TranscriptOutput{
		SourceAudio:      "/work/item-0/audio.wav",
		Segments:         segs,
		FullText:         contracts.JoinSegments(segs),
		DurationSeconds:  20,
		Language:         "en",
		Model:            "large-v3",
		SpeakersDetected: 2,
	}
}

// VerifiedBG247 returns a verified record for BG 2.47.
func VerifiedBG247() verify.Record {
	return verify.Record{
		Verified:    true,
		URL:         "https://vedabase.io/en/library/bg/2/47/",
		Devanagari:  "कर्मण्येवाधिकारस्ते मा फलेषु कदाचन",
		VerseText:   "karmaṇy evādhikāras te mā phaleṣu kadācana",
		Translation: "You have a right to perform your prescribed duty, but you are not entitled to the fruits of action.",
	}
}

// EnrichmentFixture returns a valid enrichment output with one verified citation.
func EnrichmentFixture() *contracts.EnrichmentOutput {
	c, err := verify.ParseReference("BG 2.47", verify.OriginPattern)
	if err != nil {
		panic(err)
	}
	rec := VerifiedBG247()
	out := &contracts.EnrichmentOutput{
		Markdown:  "# Lecture Notes\n\n## Duty without attachment\n\nBG 2.47 teaches action without claim to results.\n",
		Source:    "https://example.com/lecture-0.mp3",
		Citations: []verify.Citation{c},
		Outcomes:  []verify.Outcome{{Key: c.Key(), Kind: verify.OutcomeVerified, Source: verify.ResolutionCache, Record: &rec}},
		Themes:    []string{string(verify.BG)},
	}
	out.Verification = contracts.Summarize(out.Outcomes)
	return out
}

// ValidationFixture returns a tallied report; pass=false adds one critical finding.
func ValidationFixture(pass bool) *contracts.ValidationOutput {
	out := &contracts.ValidationOutput{
		TranscriptChecks: []contracts.Finding{
			{Check: "content_density", Passed: pass, Severity: contracts.SeverityCritical, Message: "words per minute checked"},
		},
		EnrichmentChecks: []contracts.Finding{
			{Check: "verification_rate", Passed: true, Severity: contracts.SeverityWarning, Message: "all citations verified"},
		},
		Summary: "fixture report",
	}
	out.Tally()
	return out
}

// CompileFixture returns a one-chapter compile output.
func CompileFixture() *contracts.CompileOutput {
	return &contracts.CompileOutput{
		Title:      "Collected Lectures",
		CompiledAt: FixedTime,
		Chapters: []contracts.Chapter{
			{Number: 1, ItemIndex: 0, Title: "Lecture 1", ContentMarkdown: "BG 2.47 teaches action."},
		},
		VerseIndex:   map[string][]int{"BG 2.47": {1}},
		ThemeIndex:   map[string][]int{"BG": {1}},
		Report:       contracts.CompileReport{TotalChapters: 1, TotalWords: 4, TotalVersesReferenced: 1, VerifiedVerseCount: 1},
		FullMarkdown: "# Collected Lectures\n\n## Chapter 1: Lecture 1\n\nBG 2.47 teaches action.\n",
	}
}

// RenderFixture returns a render output naming one markdown file.
func RenderFixture() *contracts.RenderOutput {
	return &contracts.RenderOutput{
		OutputDir: "/out",
		Files:     []contracts.RenderedFile{{Format: "markdown", Path: "/out/book.md", SizeBytes: 64}},
	}
}
