package chunker

import (
	"fmt"
	"sort"
	"strings"
)

// framingLines is checked only within the first lines of a continuation.
const framingLines = 10

var framingPrefixes = []string{
	"all glories to",
	"# lecture notes",
	"# all glories",
	"## version",
}

// ChunkResult is the enrichment output of one chunk. A result with a
// non-empty Failure is rendered as a placeholder section.
type ChunkResult struct {
	Index    int
	Markdown string
	Failure  string
}

// Failed reports whether the chunk produced no usable markdown.
func (r ChunkResult) Failed() bool {
	return r.Failure != "" || strings.TrimSpace(r.Markdown) == ""
}

// Merge reassembles chunk outputs in chunk order into one markdown document.
// The first chunk is kept verbatim; later chunks lose repeated framing headers
// and are introduced by a divider and a "Continued" heading.
func Merge(results []ChunkResult) string {
	sorted := append([]ChunkResult(nil), results...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })
	if len(sorted) == 1 && !sorted[0].Failed() {
		return strings.TrimSpace(sorted[0].Markdown)
	}

	var b strings.Builder
	for pos, r := range sorted {
		section := r.Index + 1
		if r.Failed() {
			reason := r.Failure
			if reason == "" {
				reason = "empty output"
			}
			if pos > 0 {
				b.WriteString("\n\n---\n\n")
			}
			fmt.Fprintf(&b, "> Section %d could not be generated: %s", section, oneLine(reason))
			continue
		}
		if pos == 0 {
			b.WriteString(strings.TrimSpace(r.Markdown))
			continue
		}
		fmt.Fprintf(&b, "\n\n---\n\n## Continued: Section %d\n\n", section)
		b.WriteString(stripFraming(r.Markdown))
	}
	return b.String()
}

// stripFraming drops everything up to the last framing header found in the
// first lines of a continuation chunk.
func stripFraming(markdown string) string {
	lines := strings.Split(strings.TrimSpace(markdown), "\n")
	start := 0
	for i := 0; i < len(lines) && i < framingLines; i++ {
		lower := strings.ToLower(strings.TrimSpace(lines[i]))
		for _, prefix := range framingPrefixes {
			if strings.HasPrefix(lower, prefix) {
				start = i + 1
				break
			}
		}
	}
	return strings.TrimSpace(strings.Join(lines[start:], "\n"))
}

func oneLine(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
