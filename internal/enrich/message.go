package enrich

import (
	"fmt"
	"strings"

	"lecturebook/internal/chunker"
	"lecturebook/internal/verify"
)

const (
	verifiedHeader = "## Verified Verses from Vedabase.io\n\n" +
		"Use ONLY this data for translations, purports, and Sanskrit text. " +
		"Do NOT generate scripture content from memory or training data.\n\n"
	unverifiedNote = "## Note on Verse References\n\n" +
		"No verified verse data is available for this section. " +
		"Identify verses discussed by the speaker from context and mark them as " +
		"[From Lecture - Verify Against Vedabase.io].\n\n"
)

// groupThreshold is the verse count at which verse data is grouped by scripture.
const groupThreshold = 3

var displayNames = map[verify.Scripture]string{
	verify.BG:  "Bhagavad-gita",
	verify.SB:  "Srimad-Bhagavatam",
	verify.CC:  "Caitanya-caritamrita",
	verify.NOI: "Nectar of Instruction",
	verify.ISO: "Sri Isopanisad",
	verify.BS:  "Brahma-samhita",
}

// DocumentMessage builds the user message for an unchunked transcript.
func DocumentMessage(text string, outcomes []verify.Outcome, instructions string) string {
	var b strings.Builder
	b.WriteString("## Lecture Transcript\n\n")
	b.WriteString(strings.TrimSpace(text))
	b.WriteString("\n\n---\n\n")

	verified := verifiedOnly(outcomes)
	if len(verified) == 0 {
		b.WriteString(unverifiedNote)
	} else {
		b.WriteString(verifiedHeader)
		writeGroupedVerses(&b, verified)
	}
	b.WriteString("## Instructions\n\n" +
		"Generate structured lecture notes following the system prompt format. " +
		"Use verified vedabase.io data where available. " +
		"For unverified references, present the speaker's explanation only.\n")
	writeInstructions(&b, instructions)
	return b.String()
}

// ChunkMessage builds the user message for one chunk of total.
func ChunkMessage(c chunker.Chunk, total int, instructions string) string {
	section := c.Index + 1
	var b strings.Builder
	fmt.Fprintf(&b, "## Context\n\nThis is section %d of %d from a lecture transcript.\n", section, total)
	fmt.Fprintf(&b, "Time range: %s - %s\n\n", formatClock(c.Start), formatClock(c.End))
	fmt.Fprintf(&b, "## Lecture Transcript (Section %d)\n\n", section)
	b.WriteString(strings.TrimSpace(c.Text))
	b.WriteString("\n\n---\n\n")

	verified := c.VerifiedOutcomes()
	if len(verified) == 0 {
		b.WriteString(unverifiedNote)
	} else {
		b.WriteString(verifiedHeader)
		for _, o := range verified {
			writeVerse(&b, o)
		}
	}
	b.WriteString("## Instructions\n\n" +
		"Generate structured lecture notes for this section following the system prompt format. " +
		"Use verified vedabase.io data where available. " +
		"For unverified references, present the speaker's explanation only.\n")
	writeInstructions(&b, instructions)
	return b.String()
}

// ExtractionMessage builds the user message for model citation extraction,
// keeping at most maxWords words of text.
func ExtractionMessage(text string, maxWords int) string {
	words := strings.Fields(text)
	if maxWords > 0 && len(words) > maxWords {
		text = strings.Join(words[:maxWords], " ")
	}
	return "Identify all scripture references in this lecture transcript:\n\n" + strings.TrimSpace(text)
}

func writeInstructions(b *strings.Builder, instructions string) {
	if extra := strings.TrimSpace(instructions); extra != "" {
		b.WriteString("\n\n## Additional Instructions from User\n\n")
		b.WriteString(extra)
		b.WriteString("\n")
	}
}

// writeGroupedVerses groups verse blocks under scripture headings once there
// are enough verses from more than one scripture.
func writeGroupedVerses(b *strings.Builder, verified []verify.Outcome) {
	groups := make(map[verify.Scripture][]verify.Outcome)
	for _, o := range verified {
		s := scriptureOf(o.Key)
		groups[s] = append(groups[s], o)
	}
	if len(verified) < groupThreshold || len(groups) < 2 {
		for _, o := range verified {
			writeVerse(b, o)
		}
		return
	}
	for _, s := range verify.Scriptures() {
		members := groups[s]
		if len(members) == 0 {
			continue
		}
		fmt.Fprintf(b, "### %s References\n\n", displayNames[s])
		for _, o := range members {
			writeVerse(b, o)
		}
	}
}

func writeVerse(b *strings.Builder, o verify.Outcome) {
	rec := o.Record
	fmt.Fprintf(b, "#### %s\n\n", o.Key)
	if rec.URL != "" {
		fmt.Fprintf(b, "**Vedabase URL:** %s\n\n", rec.URL)
	}
	field := func(label, value string) {
		if value = strings.TrimSpace(value); value != "" {
			fmt.Fprintf(b, "**%s:**\n%s\n\n", label, value)
		}
	}
	field("Devanagari", rec.Devanagari)
	field("IAST Transliteration", rec.VerseText)
	field("Synonyms", rec.Synonyms)
	field("Translation", rec.Translation)
	field("Purport (excerpt)", rec.PurportExcerpt)
	if len(rec.CrossRefs) > 0 {
		fmt.Fprintf(b, "**Cross-references in purport:** %s\n\n", strings.Join(rec.CrossRefs, ", "))
	}
	b.WriteString("---\n\n")
}

func verifiedOnly(outcomes []verify.Outcome) []verify.Outcome {
	var out []verify.Outcome
	for _, o := range outcomes {
		if o.Verified() {
			out = append(out, o)
		}
	}
	return out
}

func scriptureOf(key verify.Key) verify.Scripture {
	code, _, _ := strings.Cut(string(key), " ")
	s, _ := verify.ParseScripture(code)
	return s
}

// formatClock renders seconds as m:ss, or h:mm:ss past the hour.
func formatClock(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
