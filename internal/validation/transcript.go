package validation

import (
	"fmt"
	"math"
	"strings"
	"unicode"

	"golang.org/x/text/language"

	"lecturebook/internal/contracts"
)

const (
	checkEmptyTranscriptName = "empty_transcript"
	checkRepetitionName      = "sliding_window_repetition"
	checkDensityName         = "content_density"
	checkGapsName            = "segment_gap_analysis"
	checkConfidenceName      = "low_confidence"
	checkLanguageName        = "language_consistency"
	checkDurationName        = "metadata_duration_consistency"
)

// words splits text into lowercase words, dropping tokens with no letters or
// digits so punctuation-only recognizer output does not count as speech.
func words(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	out := fields[:0]
	for _, f := range fields {
		f = strings.TrimFunc(f, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

func checkEmptyTranscript(tr *contracts.TranscriptOutput) contracts.Finding {
	count := len(words(tr.FullText))
	details := map[string]any{"word_count": count, "segment_count": len(tr.Segments)}
	if count == 0 {
		return fail(checkEmptyTranscriptName, contracts.SeverityCritical, "transcript contains no words", details)
	}
	return pass(checkEmptyTranscriptName, contracts.SeverityCritical, fmt.Sprintf("OK: %d words", count), details)
}

// checkSlidingWindowRepetition counts every run of RepetitionWindow
// consecutive words. A run seen RepetitionThreshold or more times is the
// looping signature of a recognizer hallucination.
func checkSlidingWindowRepetition(tr *contracts.TranscriptOutput, th Thresholds) contracts.Finding {
	ws := words(tr.FullText)
	window := th.RepetitionWindow
	if len(ws) < window {
		return pass(checkRepetitionName, contracts.SeverityCritical,
			fmt.Sprintf("Skipped: only %d words (< window %d)", len(ws), window), nil)
	}
	counts := make(map[string]int)
	worst, worstCount, worstPos := "", 0, 0
	for i := 0; i+window <= len(ws); i++ {
		phrase := strings.Join(ws[i:i+window], " ")
		counts[phrase]++
		if n := counts[phrase]; n > worstCount {
			worst, worstCount, worstPos = phrase, n, i
		}
	}
	details := map[string]any{
		"max_repetitions": worstCount,
		"phrase":          truncate(worst, 120),
		"word_position":   worstPos,
		"threshold":       th.RepetitionThreshold,
	}
	if worstCount >= th.RepetitionThreshold {
		return fail(checkRepetitionName, contracts.SeverityCritical,
			fmt.Sprintf("Repetition detected: %q appears %d times", truncate(worst, 80), worstCount), details)
	}
	return pass(checkRepetitionName, contracts.SeverityCritical,
		fmt.Sprintf("OK: max %d-word phrase repetition %dx", window, worstCount), details)
}

func transcriptDuration(tr *contracts.TranscriptOutput) float64 {
	if tr.DurationSeconds > 0 {
		return tr.DurationSeconds
	}
	return lastSegmentEnd(tr)
}

func lastSegmentEnd(tr *contracts.TranscriptOutput) float64 {
	end := 0.0
	for _, seg := range tr.Segments {
		end = math.Max(end, seg.End)
	}
	return end
}

func checkContentDensity(tr *contracts.TranscriptOutput, th Thresholds) contracts.Finding {
	minutes := transcriptDuration(tr) / 60
	if minutes < 0.5 {
		return pass(checkDensityName, contracts.SeverityCritical,
			fmt.Sprintf("Skipped: audio too short (%.1f min)", minutes), nil)
	}
	count := len(words(tr.FullText))
	wpm := float64(count) / minutes
	details := map[string]any{
		"words_per_minute": round(wpm, 2),
		"word_count":       count,
		"duration_minutes": round(minutes, 2),
		"threshold":        th.MinWordsPerMinute,
	}
	if wpm < th.MinWordsPerMinute {
		return fail(checkDensityName, contracts.SeverityCritical,
			fmt.Sprintf("Low content density: %.1f words/min (%d words in %.1f min), expected >= %.0f",
				wpm, count, minutes, th.MinWordsPerMinute), details)
	}
	return pass(checkDensityName, contracts.SeverityCritical,
		fmt.Sprintf("OK: %.0f words/min", wpm), details)
}

type gap struct {
	Position int     `json:"position"`
	Seconds  float64 `json:"gap_seconds"`
}

func checkSegmentGaps(tr *contracts.TranscriptOutput, th Thresholds) contracts.Finding {
	if len(tr.Segments) < 2 {
		return pass(checkGapsName, contracts.SeverityWarning, "Skipped: fewer than 2 segments", nil)
	}
	var gaps []gap
	for i := 1; i < len(tr.Segments); i++ {
		if g := tr.Segments[i].Start - tr.Segments[i-1].End; g > th.MaxGapSeconds {
			gaps = append(gaps, gap{Position: i, Seconds: round(g, 2)})
		}
	}
	count := len(gaps)
	details := map[string]any{"gap_count": count, "threshold_seconds": th.MaxGapSeconds}
	if count == 0 {
		return pass(checkGapsName, contracts.SeverityWarning, "OK: no large gaps detected", details)
	}
	if len(gaps) > 10 {
		gaps = gaps[:10]
	}
	details["gaps"] = gaps
	return fail(checkGapsName, contracts.SeverityWarning,
		fmt.Sprintf("%d gap(s) longer than %.0fs", count, th.MaxGapSeconds), details)
}

func checkConfidence(tr *contracts.TranscriptOutput, th Thresholds) contracts.Finding {
	sum, n := 0.0, 0
	for _, seg := range tr.Segments {
		if seg.Confidence > 0 {
			sum += seg.Confidence
			n++
		}
	}
	if n == 0 {
		return pass(checkConfidenceName, contracts.SeverityWarning, "Skipped: no confidence scores available", nil)
	}
	mean := sum / float64(n)
	details := map[string]any{
		"average_confidence":       round(mean, 4),
		"segments_with_confidence": n,
		"threshold":                th.MinConfidence,
	}
	if mean < th.MinConfidence {
		return fail(checkConfidenceName, contracts.SeverityWarning,
			fmt.Sprintf("Low confidence: average %.2f (threshold %.2f)", mean, th.MinConfidence), details)
	}
	return pass(checkConfidenceName, contracts.SeverityWarning, fmt.Sprintf("OK: average confidence %.2f", mean), details)
}

// checkLanguage compares base languages, so "en-US" satisfies "en".
func checkLanguage(tr *contracts.TranscriptOutput, th Thresholds) contracts.Finding {
	expected := strings.TrimSpace(th.ExpectedLanguage)
	detected := strings.TrimSpace(tr.Language)
	if expected == "" || detected == "" {
		return pass(checkLanguageName, contracts.SeverityWarning, "Skipped: no language to compare", nil)
	}
	details := map[string]any{"expected": expected, "detected": detected}
	if sameBase(expected, detected) {
		return pass(checkLanguageName, contracts.SeverityWarning, fmt.Sprintf("OK: transcript language %s", detected), details)
	}
	return fail(checkLanguageName, contracts.SeverityWarning,
		fmt.Sprintf("Transcript language %q differs from expected %q", detected, expected), details)
}

func sameBase(a, b string) bool {
	ta, errA := language.Parse(a)
	tb, errB := language.Parse(b)
	if errA != nil || errB != nil {
		return strings.EqualFold(a, b)
	}
	ba, _ := ta.Base()
	bb, _ := tb.Base()
	return ba == bb
}

// checkDurationConsistency compares where speech ends with the duration the
// source reported; the downloaded duration wins when it is known.
func checkDurationConsistency(tr *contracts.TranscriptOutput, dl *contracts.DownloadOutput, th Thresholds) contracts.Finding {
	if len(tr.Segments) == 0 {
		return pass(checkDurationName, contracts.SeverityWarning, "Skipped: no segments", nil)
	}
	reported := tr.DurationSeconds
	if dl != nil && dl.DurationSeconds > 0 {
		reported = dl.DurationSeconds
	}
	if reported <= 0 {
		return pass(checkDurationName, contracts.SeverityWarning, "Skipped: no duration reported", nil)
	}
	end := lastSegmentEnd(tr)
	mismatch := math.Abs(end-reported) / reported
	details := map[string]any{
		"last_segment_end":  round(end, 2),
		"reported_duration": round(reported, 2),
		"mismatch_ratio":    round(mismatch, 4),
		"threshold":         th.MaxDurationMismatch,
	}
	if mismatch > th.MaxDurationMismatch {
		return fail(checkDurationName, contracts.SeverityWarning,
			fmt.Sprintf("Duration mismatch: speech ends at %.0fs but source runs %.0fs (%.0f%%)", end, reported, mismatch*100), details)
	}
	return pass(checkDurationName, contracts.SeverityWarning,
		fmt.Sprintf("OK: speech ends at %.0fs of %.0fs", end, reported), details)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
