package validation

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"lecturebook/internal/contracts"
	"lecturebook/internal/textutil"
	"lecturebook/internal/verify"
)

const (
	checkVerificationRateName = "verification_rate"
	checkUnverifiedRefsName   = "unverified_refs_in_markdown"
	checkMarkdownRepeatName   = "markdown_repetition"
	checkEmptyEnrichmentName  = "empty_enrichment"
	checkSpeculativeName      = "speculative_content"
	checkSectionsName         = "markdown_sections"
	checkCrossRefsName        = "cross_reference_consistency"

	nearDuplicateScore = 0.9
)

// speculativePhrases are hedges that signal commentary not grounded in the
// lecture or the verified verse data.
var speculativePhrases = []string{
	"it could be argued",
	"one might speculate",
	"it is possible that",
	"some scholars believe",
	"some scholars suggest",
	"arguably",
	"presumably",
	"it seems likely",
	"we can imagine",
	"in my opinion",
	"my interpretation",
	"perhaps the speaker meant",
}

// markdownRef matches canonical references in folded (lowercase, unaccented) text.
var markdownRef = regexp.MustCompile(`\b(bg|sb|noi|iso|bs|cc\s+(?:adi|madhya|antya))\.?\s+(\d{1,2}(?:\.\d{1,3}){0,2}(?:\s*-\s*\d{1,3})?)\b`)

// MarkdownReferences returns the canonical references mentioned in markdown,
// deduplicated in order of first appearance.
func MarkdownReferences(markdown string) []verify.Key {
	var out []verify.Key
	seen := make(map[verify.Key]struct{})
	for _, m := range markdownRef.FindAllStringSubmatch(textutil.Fold(markdown), -1) {
		c, err := verify.ParseReference(m[1]+" "+m[2], verify.OriginPattern)
		if err != nil {
			continue
		}
		key := c.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}

func checkVerificationRate(en *contracts.EnrichmentOutput, th Thresholds) contracts.Finding {
	s := en.Verification
	if s.Total == 0 {
		return pass(checkVerificationRateName, contracts.SeverityWarning, "Skipped: no references to verify", nil)
	}
	rate := s.Rate()
	details := map[string]any{
		"verification_rate": round(rate, 4),
		"verified":          s.Verified,
		"total":             s.Total,
		"unresolved":        s.Unresolved,
		"errors":            s.Errors,
		"threshold":         th.MinVerificationRate,
	}
	if rate < th.MinVerificationRate {
		return fail(checkVerificationRateName, contracts.SeverityWarning,
			fmt.Sprintf("Low verification rate: %.0f%% (%d of %d), threshold %.0f%%",
				rate*100, s.Verified, s.Total, th.MinVerificationRate*100), details)
	}
	return pass(checkVerificationRateName, contracts.SeverityWarning,
		fmt.Sprintf("OK: %.0f%% verified (%d of %d)", rate*100, s.Verified, s.Total), details)
}

// checkUnverifiedRefs reports references the notes mention without a
// verified record. They stay in the notes; the finding only surfaces them.
func checkUnverifiedRefs(en *contracts.EnrichmentOutput) contracts.Finding {
	if strings.TrimSpace(en.Markdown) == "" {
		return pass(checkUnverifiedRefsName, contracts.SeverityWarning, "Skipped: no markdown present", nil)
	}
	verified := en.VerifiedKeys()
	var unverified []string
	for _, key := range MarkdownReferences(en.Markdown) {
		if !slices.Contains(verified, key) {
			unverified = append(unverified, string(key))
		}
	}
	details := map[string]any{"count": len(unverified), "verified_count": len(verified)}
	if len(unverified) == 0 {
		return pass(checkUnverifiedRefsName, contracts.SeverityWarning, "OK: every reference in the notes is verified", details)
	}
	details["references"] = head(unverified, 20)
	return fail(checkUnverifiedRefsName, contracts.SeverityWarning,
		fmt.Sprintf("%d reference(s) in the notes are not verified: %s", len(unverified), strings.Join(head(unverified, 5), ", ")), details)
}

func checkMarkdownRepetition(en *contracts.EnrichmentOutput, th Thresholds) contracts.Finding {
	if strings.TrimSpace(en.Markdown) == "" {
		return pass(checkMarkdownRepeatName, contracts.SeverityWarning, "Skipped: no markdown present", nil)
	}
	var paragraphs []string
	for _, p := range strings.Split(en.Markdown, "\n\n") {
		if p = strings.TrimSpace(p); len(p) > 20 {
			paragraphs = append(paragraphs, p)
		}
	}
	if len(paragraphs) < 4 {
		return pass(checkMarkdownRepeatName, contracts.SeverityWarning,
			fmt.Sprintf("OK: only %d paragraphs", len(paragraphs)), nil)
	}
	worst, worstCount := repeatedParagraph(paragraphs)
	details := map[string]any{
		"max_repetition":   worstCount,
		"total_paragraphs": len(paragraphs),
		"threshold":        th.MarkdownRepeatLimit,
	}
	if worstCount > th.MarkdownRepeatLimit {
		details["repeated_text"] = truncate(worst, 200)
		return fail(checkMarkdownRepeatName, contracts.SeverityWarning,
			fmt.Sprintf("One paragraph repeated %dx (limit %dx): %q", worstCount, th.MarkdownRepeatLimit, truncate(worst, 80)), details)
	}
	return pass(checkMarkdownRepeatName, contracts.SeverityWarning,
		fmt.Sprintf("OK: max paragraph repetition %dx", worstCount), details)
}

// repeatedParagraph groups paragraphs that are identical or whose word
// fingerprints are at least nearDuplicateScore similar, and returns the first
// paragraph of the largest group with its size.
func repeatedParagraph(paragraphs []string) (string, int) {
	type group struct {
		text  string
		fp    *textutil.Fingerprint
		count int
	}
	var groups []*group
	worst, worstCount := "", 0
	for _, p := range paragraphs {
		fp := textutil.NewFingerprint(p)
		var match *group
		for _, g := range groups {
			if g.text == p || textutil.CosineSimilarity(g.fp, fp) >= nearDuplicateScore {
				match = g
				break
			}
		}
		if match == nil {
			match = &group{text: p, fp: fp}
			groups = append(groups, match)
		}
		match.count++
		if match.count > worstCount {
			worst, worstCount = match.text, match.count
		}
	}
	return worst, worstCount
}

func checkEmptyEnrichment(en *contracts.EnrichmentOutput) contracts.Finding {
	hasMarkdown := strings.TrimSpace(en.Markdown) != ""
	details := map[string]any{
		"citations":    len(en.Citations),
		"themes":       len(en.Themes),
		"has_markdown": hasMarkdown,
	}
	if !hasMarkdown && len(en.Citations) == 0 && len(en.Themes) == 0 {
		return fail(checkEmptyEnrichmentName, contracts.SeverityWarning, "Enrichment produced no notes and no references", details)
	}
	return pass(checkEmptyEnrichmentName, contracts.SeverityWarning,
		fmt.Sprintf("OK: %d references, markdown=%t", len(en.Citations), hasMarkdown), details)
}

func checkSpeculativeContent(en *contracts.EnrichmentOutput, th Thresholds) contracts.Finding {
	if strings.TrimSpace(en.Markdown) == "" {
		return pass(checkSpeculativeName, contracts.SeverityWarning, "Skipped: no markdown present", nil)
	}
	lower := strings.ToLower(en.Markdown)
	var found []string
	for _, phrase := range speculativePhrases {
		if strings.Contains(lower, phrase) {
			found = append(found, phrase)
		}
	}
	details := map[string]any{"count": len(found), "threshold": th.MaxSpeculativePhrases}
	if len(found) > 0 {
		details["phrases"] = found
	}
	if len(found) > th.MaxSpeculativePhrases {
		return fail(checkSpeculativeName, contracts.SeverityWarning,
			fmt.Sprintf("Speculative content: %d hedging phrases (limit %d): %s", len(found), th.MaxSpeculativePhrases, strings.Join(head(found, 5), ", ")), details)
	}
	return pass(checkSpeculativeName, contracts.SeverityWarning,
		fmt.Sprintf("OK: %d speculative phrase(s)", len(found)), details)
}

func checkMarkdownSections(en *contracts.EnrichmentOutput, th Thresholds) contracts.Finding {
	if strings.TrimSpace(en.Markdown) == "" {
		return pass(checkSectionsName, contracts.SeverityWarning, "Skipped: no markdown present", nil)
	}
	var headings []string
	inFence := false
	for _, line := range strings.Split(en.Markdown, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "```") {
			inFence = !inFence
			continue
		}
		if !inFence && strings.HasPrefix(line, "#") {
			headings = append(headings, truncate(line, 80))
		}
	}
	details := map[string]any{"section_count": len(headings), "threshold": th.MinMarkdownSections}
	if len(headings) < th.MinMarkdownSections {
		return fail(checkSectionsName, contracts.SeverityWarning,
			fmt.Sprintf("Notes have %d heading(s), expected at least %d", len(headings), th.MinMarkdownSections), details)
	}
	details["headings"] = head(headings, 20)
	return pass(checkSectionsName, contracts.SeverityWarning, fmt.Sprintf("OK: %d sections", len(headings)), details)
}

// checkCrossReferences flags two kinds of drift: purport cross references
// the notes repeat without citing them, and themes no citation supports.
func checkCrossReferences(en *contracts.EnrichmentOutput) contracts.Finding {
	cited := make(map[verify.Key]struct{}, len(en.Citations))
	scriptures := make(map[string]struct{})
	for _, c := range en.Citations {
		cited[c.Key()] = struct{}{}
		scriptures[string(c.Scripture)] = struct{}{}
	}
	mentioned := MarkdownReferences(en.Markdown)

	var orphaned []string
	seen := make(map[string]struct{})
	for _, o := range en.Outcomes {
		if !o.Verified() {
			continue
		}
		for _, ref := range o.Record.CrossRefs {
			key := verify.Key(ref)
			if _, ok := cited[key]; ok || !slices.Contains(mentioned, key) {
				continue
			}
			if _, dup := seen[ref]; !dup {
				seen[ref] = struct{}{}
				orphaned = append(orphaned, ref)
			}
		}
	}
	var themes []string
	for _, theme := range en.Themes {
		if _, ok := scriptures[theme]; !ok {
			themes = append(themes, theme)
		}
	}

	details := map[string]any{"orphaned_count": len(orphaned), "unsupported_theme_count": len(themes)}
	if len(orphaned) == 0 && len(themes) == 0 {
		return pass(checkCrossRefsName, contracts.SeverityWarning, "OK: cross references and themes are backed by citations", details)
	}
	var parts []string
	if len(orphaned) > 0 {
		details["orphaned_references"] = head(orphaned, 20)
		parts = append(parts, fmt.Sprintf("%d purport cross reference(s) used but not cited: %s", len(orphaned), strings.Join(head(orphaned, 5), ", ")))
	}
	if len(themes) > 0 {
		details["unsupported_themes"] = themes
		parts = append(parts, fmt.Sprintf("themes without citations: %s", strings.Join(themes, ", ")))
	}
	return fail(checkCrossRefsName, contracts.SeverityWarning, strings.Join(parts, "; "), details)
}

func head(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	return items[:n]
}
