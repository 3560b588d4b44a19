package enrich

import (
	"fmt"
	"strings"

	"lecturebook/internal/verify"
)

// NotesPrompt is the system prompt for lecture note generation.
const NotesPrompt = `You are a scholarly Vaishnava educator creating structured lecture notes.
You receive a raw lecture transcript, which may contain badly transcribed
Sanskrit, and optionally verified verse data from vedabase.io.

Transform the transcript into thematic study notes that capture the lecture
as a whole: its central message, teachings, stories, analogies and practical
instructions.

Output structure (markdown):
# <descriptive title inferred from the content>
## Summary
One paragraph with the central message and conclusion.
## Key Teachings
3-7 principles, each with a bold name, two or three sentences in the
speaker's voice, and supporting evidence (a quote, story or verse).
## Stories & Illustrations
For each story: title, source, setup, key moment, teaching extracted.
## Analogies & Metaphors
For each analogy: the comparison and what it teaches.
## Verse References & Analysis
For each verse discussed: reference, why the speaker quoted it, key phrase.
Verified verses carry the official translation marked [Vedabase Verified].
Unverified verses carry only the speaker's explanation marked
[From Lecture - Verify Against Vedabase.io].
End with a table: | Verse | Topic | Status |
## Practical Instructions
What to do, what to avoid, how to practice.
## Q&A Summary
Only when the lecture has questions and answers; omit otherwise.
## Summary & Cross-References
Key points, core message, verse table, related topics, glossary of terms
actually used in the lecture.

Rules:
- Group content by theme, not by timestamp.
- Correct obvious Sanskrit transcription errors and mark them [Corrected]. Never invent verses.
- Preserve the speaker's voice; use direct quotes in > blockquotes.
- Use ONLY the provided vedabase.io data for translations, synonyms and purports. Never produce them from memory.
- Ignore transcription artifacts: repeated phrases, strings of dots, subtitle credits.
- Present only parampara teachings. No speculation or unauthorized interpretation.
- Use # for the title, ## for sections, ### for subsections, markdown tables, and --- between major sections.
- Return the markdown only, without code fences.`

// referencePromptTemplate asks for references the pattern matcher missed.
// The single verb receives the already-found references.
const referencePromptTemplate = `You are an expert in Gaudiya Vaishnava scriptures. Identify scripture references in a lecture transcript that an automated pattern matcher may have missed.

Supported scriptures and reference formats:
- BG (Bhagavad-gita): chapter.verse, e.g. BG 2.47
- SB (Srimad-Bhagavatam): canto.chapter.verse, e.g. SB 1.2.6
- CC (Caitanya-caritamrta): Adi|Madhya|Antya chapter.verse, e.g. CC Madhya 20.108
- NOI (Nectar of Instruction): verse, e.g. NOI 1
- ISO (Sri Isopanisad): verse, e.g. ISO 1
- BS (Brahma-samhita): chapter.verse, e.g. BS 5.1

Rules:
1. Only report references you are confident the speaker is citing.
2. Do not report vague mentions such as "the Gita says" without an identifiable verse.
3. Do not guess verse numbers.
4. A paraphrase counts only when the verse is clearly identifiable.
5. Respond with a JSON array only.

ALREADY FOUND BY REGEX (do not duplicate these):
%s

Each element has this shape:
[{"scripture":"SB","chapter":"3.25","verse":"21","canonical_ref":"SB 3.25.21","context_text":"exact words from the transcript"}]

Return an empty array [] if none.`

// ReferencePrompt renders the extraction system prompt for the given known keys.
func ReferencePrompt(known []verify.Key) string {
	list := "(none)"
	if len(known) > 0 {
		refs := make([]string, len(known))
		for i, k := range known {
			refs[i] = string(k)
		}
		list = strings.Join(refs, ", ")
	}
	return fmt.Sprintf(referencePromptTemplate, list)
}
