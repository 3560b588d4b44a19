package validation_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"lecturebook/internal/config"
	"lecturebook/internal/contracts"
	"lecturebook/internal/testsupport"
	"lecturebook/internal/validation"
	"lecturebook/internal/verify"
)

func finding(t *testing.T, report *contracts.ValidationOutput, check string) contracts.Finding {
	t.Helper()
	for _, f := range report.Findings() {
		if f.Check == check {
			return f
		}
	}
	t.Fatalf("report has no %s finding", check)
	return contracts.Finding{}
}

func failedChecks(report *contracts.ValidationOutput) []string {
	var out []string
	for _, f := range report.Findings() {
		if !f.Passed {
			out = append(out, f.Check)
		}
	}
	return out
}

func transcript(duration float64, texts ...string) *contracts.TranscriptOutput {
	segs := make([]contracts.Segment, len(texts))
	step := duration / float64(len(texts))
	for i, text := range texts {
		segs[i] = contracts.Segment{Index: i, Start: float64(i) * step, End: float64(i+1) * step, Text: text}
	}
	return &contracts.TranscriptOutput{
		SourceAudio:     "/work/audio.wav",
		Segments:        segs,
		FullText:        contracts.JoinSegments(segs),
		DurationSeconds: duration,
		Language:        "en",
	}
}

func citations(t *testing.T, verified map[string]bool, refs ...string) ([]verify.Citation, []verify.Outcome) {
	t.Helper()
	var cs []verify.Citation
	var os []verify.Outcome
	for _, ref := range refs {
		c, err := verify.ParseReference(ref, verify.OriginPattern)
		require.NoError(t, err)
		cs = append(cs, c)
		if verified[ref] {
			rec := verify.Record{Verified: true, Translation: "translation of " + ref}
			os = append(os, verify.Outcome{Key: c.Key(), Kind: verify.OutcomeVerified, Source: verify.ResolutionFresh, Record: &rec})
		} else {
			os = append(os, verify.Outcome{Key: c.Key(), Kind: verify.OutcomeUnresolved, Source: verify.ResolutionUnresolved, Error: "not found"})
		}
	}
	return cs, os
}

func TestCleanItemPassesEveryCheck(t *testing.T) {
	v := validation.New(validation.DefaultThresholds(), nil)
	report := v.Validate(validation.Input{
		Download:   testsupport.DownloadFixture(0),
		Transcript: testsupport.TranscriptFixture(),
		Enrichment: testsupport.EnrichmentFixture(),
	})

	require.Empty(t, failedChecks(report))
	require.True(t, report.OverallPass)
	require.Zero(t, report.Critical)
	require.Zero(t, report.Warnings)
	require.Len(t, report.TranscriptChecks, 7)
	require.Len(t, report.EnrichmentChecks, 7)
	require.Equal(t, "All 14 validation checks passed.", report.Summary)
	require.NoError(t, report.Validate())
}

func TestLoopingTranscriptIsCritical(t *testing.T) {
	loop := "thank you for watching please subscribe to the channel"
	tr := transcript(25, loop, loop, loop, loop, loop)

	report := validation.New(validation.DefaultThresholds(), nil).Validate(validation.Input{Transcript: tr, Enrichment: testsupport.EnrichmentFixture()})

	f := finding(t, report, "sliding_window_repetition")
	require.False(t, f.Passed)
	require.Equal(t, contracts.SeverityCritical, f.Severity)
	require.Equal(t, 5, f.Details["max_repetitions"])
	require.False(t, report.OverallPass)
	require.Equal(t, 1, report.Critical)
	require.Contains(t, report.Summary, "sliding_window_repetition")
	require.NoError(t, report.Validate())
}

func TestRepetitionBelowThresholdPasses(t *testing.T) {
	loop := "thank you for watching please subscribe to the channel"
	tr := transcript(25, loop, loop, loop, "and now the lecture begins in earnest")

	report := validation.New(validation.DefaultThresholds(), nil).Validate(validation.Input{Transcript: tr})
	require.True(t, finding(t, report, "sliding_window_repetition").Passed)
}

func TestSparseTranscriptFailsContentDensity(t *testing.T) {
	tr := transcript(120, "om tat sat", "hari bol hari bol", "jaya jaya jaya")

	report := validation.New(validation.DefaultThresholds(), nil).Validate(validation.Input{Transcript: tr})

	f := finding(t, report, "content_density")
	require.False(t, f.Passed)
	require.Equal(t, contracts.SeverityCritical, f.Severity)
	require.InDelta(t, 5.0, f.Details["words_per_minute"], 0.001)
	require.False(t, report.OverallPass)
}

func TestShortAudioSkipsContentDensity(t *testing.T) {
	tr := transcript(20, "om")
	report := validation.New(validation.DefaultThresholds(), nil).Validate(validation.Input{Transcript: tr})
	f := finding(t, report, "content_density")
	require.True(t, f.Passed)
	require.True(t, strings.HasPrefix(f.Message, "Skipped"))
}

func TestMissingTranscriptIsEmpty(t *testing.T) {
	report := validation.New(validation.DefaultThresholds(), nil).Validate(validation.Input{})

	require.False(t, finding(t, report, "empty_transcript").Passed)
	require.False(t, report.OverallPass)
	require.NoError(t, report.Validate())
}

func TestWeakEnrichmentRaisesWarningsOnly(t *testing.T) {
	cs, os := citations(t, map[string]bool{"BG 2.47": true}, "BG 2.47", "SB 1.2.6", "CC Adi 1.1")
	repeated := "The same paragraph repeated over and over."
	markdown := strings.Join([]string{
		"Intro paragraph that is long enough to count here.",
		"Arguably the verse SB 1.2.6 describes the supreme occupation.",
		"Presumably, and it is possible that, the speaker meant more.",
		repeated, repeated, repeated,
	}, "\n\n")
	en := &contracts.EnrichmentOutput{
		Markdown:     markdown,
		Source:       "https://example.com/lecture.mp3",
		Citations:    cs,
		Outcomes:     os,
		Themes:       []string{"BG", "SB", "CC"},
		Verification: contracts.Summarize(os),
	}

	report := validation.New(validation.DefaultThresholds(), nil).Validate(validation.Input{
		Transcript: testsupport.TranscriptFixture(),
		Enrichment: en,
	})

	require.ElementsMatch(t, []string{
		"verification_rate",
		"unverified_refs_in_markdown",
		"markdown_repetition",
		"speculative_content",
		"markdown_sections",
	}, failedChecks(report))
	require.True(t, report.OverallPass)
	require.Equal(t, 5, report.Warnings)
	require.Contains(t, report.Summary, "passed with warnings")
	require.Equal(t, []string{"SB 1.2.6"}, finding(t, report, "unverified_refs_in_markdown").Details["references"])
	require.NoError(t, report.Validate())
}

func TestNearDuplicateParagraphsCountAsRepetition(t *testing.T) {
	first := "Krishna explains that duty must be performed without attachment."
	markdown := strings.Join([]string{
		"Intro paragraph that is long enough to count here.",
		first,
		"The second half of the lecture turns to devotional service.",
		"Krishna explains that duty must be performed without attachment!",
		"KRISHNA explains, that duty must be performed without attachment.",
	}, "\n\n")
	en := &contracts.EnrichmentOutput{Markdown: markdown, Source: "https://example.com/lecture.mp3"}

	report := validation.New(validation.DefaultThresholds(), nil).Validate(validation.Input{
		Transcript: testsupport.TranscriptFixture(),
		Enrichment: en,
	})

	f := finding(t, report, "markdown_repetition")
	require.False(t, f.Passed)
	require.Equal(t, 3, f.Details["max_repetition"])
	require.Equal(t, first, f.Details["repeated_text"])
}

func TestCrossReferenceConsistency(t *testing.T) {
	cs, os := citations(t, map[string]bool{"BG 2.47": true}, "BG 2.47")
	os[0].Record.CrossRefs = []string{"BG 3.9", "SB 1.2.6"}
	en := &contracts.EnrichmentOutput{
		Markdown:     "# Notes\n\n## Duty\n\nBG 2.47 and, from the purport, Bg. 3.9.",
		Citations:    cs,
		Outcomes:     os,
		Themes:       []string{"BG", "SB"},
		Verification: contracts.Summarize(os),
	}

	report := validation.New(validation.DefaultThresholds(), nil).Validate(validation.Input{
		Transcript: testsupport.TranscriptFixture(),
		Enrichment: en,
	})

	f := finding(t, report, "cross_reference_consistency")
	require.False(t, f.Passed)
	require.Equal(t, []string{"BG 3.9"}, f.Details["orphaned_references"])
	require.Equal(t, []string{"SB"}, f.Details["unsupported_themes"])
}

func TestLanguageComparesBaseLanguage(t *testing.T) {
	th := validation.DefaultThresholds()
	th.ExpectedLanguage = "en"
	v := validation.New(th, nil)

	tr := testsupport.TranscriptFixture()
	tr.Language = "en-US"
	require.True(t, finding(t, v.Validate(validation.Input{Transcript: tr}), "language_consistency").Passed)

	tr.Language = "hi"
	f := finding(t, v.Validate(validation.Input{Transcript: tr}), "language_consistency")
	require.False(t, f.Passed)
	require.Equal(t, contracts.SeverityWarning, f.Severity)
}

func TestDurationMismatchUsesDownloadDuration(t *testing.T) {
	dl := testsupport.DownloadFixture(0)
	dl.DurationSeconds = 100

	report := validation.New(validation.DefaultThresholds(), nil).Validate(validation.Input{
		Download:   dl,
		Transcript: testsupport.TranscriptFixture(),
		Enrichment: testsupport.EnrichmentFixture(),
	})

	f := finding(t, report, "metadata_duration_consistency")
	require.False(t, f.Passed)
	require.InDelta(t, 0.8, f.Details["mismatch_ratio"], 0.0001)
}

func TestSegmentGapsAndConfidence(t *testing.T) {
	tr := testsupport.TranscriptFixture()
	tr.Segments[2].Start, tr.Segments[2].End = 60, 70
	tr.DurationSeconds = 70
	for i := range tr.Segments {
		tr.Segments[i].Confidence = 0.3
	}

	report := validation.New(validation.DefaultThresholds(), nil).Validate(validation.Input{Transcript: tr})

	gaps := finding(t, report, "segment_gap_analysis")
	require.False(t, gaps.Passed)
	require.Equal(t, 1, gaps.Details["gap_count"])
	require.False(t, finding(t, report, "low_confidence").Passed)
}

func TestMarkdownReferences(t *testing.T) {
	got := validation.MarkdownReferences("See Bg. 2.47, SB 1.2.6 and CC Ādi-līlā? No: CC Ādi 1.1. Again BG 2.47; ISO 99 is not a verse.")
	require.Equal(t, []verify.Key{"BG 2.47", "SB 1.2.6", "CC Adi 1.1"}, got)
}

func TestFromConfigFallsBackOnZeroValues(t *testing.T) {
	th := validation.FromConfig(config.Validation{MinConfidence: 0.7, ExpectedLanguage: "en"})
	require.Equal(t, 0.7, th.MinConfidence)
	require.Equal(t, "en", th.ExpectedLanguage)
	require.Equal(t, 8, th.RepetitionWindow)
	require.Equal(t, 4, th.RepetitionThreshold)
	require.Equal(t, 30.0, th.MinWordsPerMinute)
}
