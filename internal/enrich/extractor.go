package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"lecturebook/internal/llm"
	"lecturebook/internal/logging"
	"lecturebook/internal/verify"
)

const defaultExtractionWords = 60000

// ModelExtractor proposes citations through a text generator. It satisfies
// verify.ModelExtractor.
type ModelExtractor struct {
	Generator llm.Generator
	MaxWords  int
	Logger    *slog.Logger
}

type extractedReference struct {
	Scripture    string `json:"scripture"`
	Chapter      string `json:"chapter"`
	Verse        string `json:"verse"`
	CanonicalRef string `json:"canonical_ref"`
	ContextText  string `json:"context_text"`
}

// ExtractCitations asks the model for references missing from known. Entries
// with an unknown scripture, missing fields, or a duplicate key are dropped.
func (m *ModelExtractor) ExtractCitations(ctx context.Context, text string, known []verify.Key) ([]verify.Candidate, error) {
	if m == nil || m.Generator == nil {
		return nil, nil
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	maxWords := m.MaxWords
	if maxWords <= 0 {
		maxWords = defaultExtractionWords
	}
	content, err := m.Generator.Generate(ctx, llm.Request{
		System: ReferencePrompt(known),
		Prompt: ExtractionMessage(text, maxWords),
		JSON:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("extract citations: %w", err)
	}
	var refs []extractedReference
	if err := llm.DecodeReply(content, &refs); err != nil {
		return nil, fmt.Errorf("extract citations: parse response: %w", err)
	}

	seen := make(map[verify.Key]struct{}, len(known)+len(refs))
	for _, k := range known {
		seen[k] = struct{}{}
	}
	var out []verify.Candidate
	for _, ref := range refs {
		c, ok := ref.citation()
		if !ok {
			m.logger().Debug("model reference dropped", logging.String("reference", ref.CanonicalRef), logging.String("scripture", ref.Scripture))
			continue
		}
		key := c.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, verify.Candidate{
			Reference: string(key),
			Context:   strings.TrimSpace(ref.ContextText),
		})
	}
	return out, nil
}

// citation resolves the entry to a citation, preferring the structured
// fields over canonical_ref.
func (r extractedReference) citation() (verify.Citation, bool) {
	scripture, ok := verify.ParseScripture(r.Scripture)
	if !ok {
		if c, err := verify.ParseReference(r.CanonicalRef, verify.OriginModel); err == nil {
			return c, true
		}
		return verify.Citation{}, false
	}
	verse := strings.TrimSpace(r.Verse)
	chapter := strings.TrimSpace(r.Chapter)
	if verse == "" {
		return verify.Citation{}, false
	}
	locator := verse
	switch scripture {
	case verify.NOI, verify.ISO:
	case verify.CC:
		if chapter == "" {
			return verify.Citation{}, false
		}
		division, number, found := strings.Cut(strings.ReplaceAll(chapter, ".", " "), " ")
		if !found {
			return verify.Citation{}, false
		}
		locator = division + " " + strings.TrimSpace(number) + "." + verse
	default:
		if chapter == "" {
			return verify.Citation{}, false
		}
		locator = chapter + "." + verse
	}
	c, err := verify.NewCitation(scripture, locator, verify.OriginModel)
	if err != nil {
		if fallback, perr := verify.ParseReference(r.CanonicalRef, verify.OriginModel); perr == nil && fallback.Scripture == scripture {
			return fallback, true
		}
		return verify.Citation{}, false
	}
	return c, true
}

func (m *ModelExtractor) logger() *slog.Logger {
	if m.Logger == nil {
		return logging.NewNop()
	}
	return m.Logger
}
