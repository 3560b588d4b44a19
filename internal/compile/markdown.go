package compile

import (
	"fmt"
	"sort"
	"strings"

	"lecturebook/internal/contracts"
)

// chapterMarkdown returns the enriched notes for a chapter, falling back to
// transcript paragraphs when enrichment was skipped. In a multi-chapter book
// each chapter gets its own top-level heading and the notes move down a level.
func chapterMarkdown(ch contracts.Chapter, it Item, multi bool) string {
	body := ""
	if it.Enrichment != nil {
		body = strings.TrimSpace(it.Enrichment.Markdown)
	}
	if body == "" && it.Transcript != nil {
		body = transcriptParagraphs(it.Transcript)
	}
	if !multi {
		if it.Enrichment != nil && body != "" {
			return body
		}
		return fmt.Sprintf("# %s\n\n%s", ch.Title, body)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# Chapter %d: %s\n\n", ch.Number, ch.Title)
	if ch.DurationSeconds >= 60 {
		fmt.Fprintf(&b, "*%.0f minutes*\n\n", ch.DurationSeconds/60)
	}
	b.WriteString(DemoteHeadings(body))
	return b.String()
}

// transcriptParagraphs groups segments into paragraphs at speaker changes.
func transcriptParagraphs(t *contracts.TranscriptOutput) string {
	var paras []string
	var cur []string
	speaker := ""
	for i, seg := range t.Segments {
		if i > 0 && seg.Speaker != speaker && len(cur) > 0 {
			paras = append(paras, strings.Join(cur, " "))
			cur = nil
		}
		speaker = seg.Speaker
		cur = append(cur, strings.TrimSpace(seg.Text))
	}
	if len(cur) > 0 {
		paras = append(paras, strings.Join(cur, " "))
	}
	return strings.Join(paras, "\n\n")
}

// DemoteHeadings pushes every ATX heading down one level, leaving fenced
// code blocks untouched. Level six headings stay at six.
func DemoteHeadings(markdown string) string {
	lines := strings.Split(markdown, "\n")
	fenced := false
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			fenced = !fenced
			continue
		}
		if fenced || !strings.HasPrefix(line, "#") {
			continue
		}
		level := len(line) - len(strings.TrimLeft(line, "#"))
		if level >= 6 || (len(line) > level && line[level] != ' ') {
			continue
		}
		lines[i] = "#" + line
	}
	return strings.Join(lines, "\n")
}

func assemble(out *contracts.CompileOutput) string {
	parts := []string{frontMatter(out)}
	for _, ch := range out.Chapters {
		parts = append(parts, ch.ContentMarkdown)
	}
	parts = append(parts, backMatter(out))
	return strings.Join(parts, "\n\n") + "\n"
}

func frontMatter(out *contracts.CompileOutput) string {
	lines := []string{"# " + out.Title}
	if out.Speaker != "" {
		lines = append(lines, "*By "+out.Speaker+"*")
	}
	lines = append(lines, "")
	for _, ref := range out.SourceReferences {
		if ref.Status != contracts.SourceSucceeded {
			continue
		}
		var info []string
		if ref.URL != "" {
			info = append(info, fmt.Sprintf("**Source:** [%s](%s)", ref.URL, ref.URL))
		}
		if ref.DurationSeconds >= 60 {
			info = append(info, fmt.Sprintf("**Duration:** %.0f minutes", ref.DurationSeconds/60))
		}
		if ref.Date != "" {
			info = append(info, "**Date:** "+ref.Date)
		}
		if len(info) > 0 {
			lines = append(lines, strings.Join(info, " | "))
		}
	}
	lines = append(lines, "", "*Compiled on "+out.CompiledAt.Format("January 2, 2006")+"*")
	return strings.Join(lines, "\n")
}

func backMatter(out *contracts.CompileOutput) string {
	lines := []string{"---", ""}
	if len(out.VerseIndex) > 0 {
		lines = append(lines, "# Scripture Index", "")
		for _, ref := range sortedKeys(out.VerseIndex) {
			lines = append(lines, fmt.Sprintf("- **%s**: %s", ref, chapterList(out.VerseIndex[ref])))
		}
		lines = append(lines, "")
	}
	if len(out.ThemeIndex) > 0 {
		lines = append(lines, "# Thematic Index", "")
		for _, theme := range sortedKeys(out.ThemeIndex) {
			lines = append(lines, fmt.Sprintf("- **%s**: %s", theme, chapterList(out.ThemeIndex[theme])))
		}
		lines = append(lines, "")
	}
	if len(out.SourceReferences) > 0 {
		lines = append(lines, "# Source References", "", "| # | Title | URL | Status |", "|---|-------|-----|--------|")
		for _, ref := range out.SourceReferences {
			status := string(ref.Status)
			if ref.Status == contracts.SourceFailed {
				status = fmt.Sprintf("failed at %s (%s)", ref.FailedStage, ref.ErrorCode)
			}
			link := ref.URL
			if link != "" {
				link = fmt.Sprintf("[%s](%s)", ref.URL, ref.URL)
			}
			lines = append(lines, fmt.Sprintf("| %d | %s | %s | %s |", ref.Order, ref.Title, link, status))
		}
		lines = append(lines, "")
	}
	lines = append(lines, "---", "",
		"*All scripture references verified against [vedabase.io](https://vedabase.io) unless marked otherwise.*")
	return strings.Join(lines, "\n")
}

func chapterList(chapters []int) string {
	parts := make([]string, len(chapters))
	for i, n := range chapters {
		parts[i] = fmt.Sprintf("Ch. %d", n)
	}
	return strings.Join(parts, ", ")
}

func sortedKeys(m map[string][]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
