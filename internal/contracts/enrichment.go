package contracts

import (
	"lecturebook/internal/stage"
	"lecturebook/internal/verify"
)

// ChunkingSummary describes how the enrichment input was partitioned.
type ChunkingSummary struct {
	Chunked      bool  `json:"chunked"`
	ChunkCount   int   `json:"chunk_count"`
	FailedChunks []int `json:"failed_chunks,omitempty"`
}

// VerificationSummary counts verification outcomes.
type VerificationSummary struct {
	Total      int `json:"total"`
	Verified   int `json:"verified"`
	Unresolved int `json:"unresolved"`
	Errors     int `json:"errors"`
}

// Rate returns the verified fraction, or 1 when there was nothing to verify.
func (s VerificationSummary) Rate() float64 {
	if s.Total == 0 {
		return 1
	}
	return float64(s.Verified) / float64(s.Total)
}

// EnrichmentOutput holds the generated notes and reference verification for one item.
type EnrichmentOutput struct {
	Markdown     string              `json:"markdown"`
	Source       string              `json:"source"`
	Citations    []verify.Citation   `json:"citations"`
	Outcomes     []verify.Outcome    `json:"outcomes"`
	Chunking     ChunkingSummary     `json:"chunking"`
	Themes       []string            `json:"themes,omitempty"`
	Verification VerificationSummary `json:"verification"`
}

func (*EnrichmentOutput) Stage() stage.Stage { return stage.Enrich }

func (e *EnrichmentOutput) Validate() error {
	if blank(e.Markdown) {
		return invalid(stage.Enrich, "markdown is empty")
	}
	if len(e.Outcomes) != len(e.Citations) {
		return invalid(stage.Enrich, "%d outcomes for %d citations", len(e.Outcomes), len(e.Citations))
	}
	seen := make(map[verify.Key]struct{}, len(e.Citations))
	for i, c := range e.Citations {
		key := c.Key()
		if _, dup := seen[key]; dup {
			return invalid(stage.Enrich, "duplicate citation %s", key)
		}
		seen[key] = struct{}{}
		if e.Outcomes[i].Key != key {
			return invalid(stage.Enrich, "outcome %d is for %s, want %s", i, e.Outcomes[i].Key, key)
		}
	}
	if got := Summarize(e.Outcomes); got != e.Verification {
		return invalid(stage.Enrich, "verification summary %+v does not match outcomes %+v", e.Verification, got)
	}
	if e.Chunking.Chunked && e.Chunking.ChunkCount < 1 {
		return invalid(stage.Enrich, "chunked output without chunks")
	}
	return nil
}

// VerifiedKeys returns the keys of citations with a verified record, in citation order.
func (e *EnrichmentOutput) VerifiedKeys() []verify.Key {
	out := make([]verify.Key, 0, len(e.Outcomes))
	for _, o := range e.Outcomes {
		if o.Verified() {
			out = append(out, o.Key)
		}
	}
	return out
}

// Summarize counts outcomes by kind.
func Summarize(outcomes []verify.Outcome) VerificationSummary {
	s := VerificationSummary{Total: len(outcomes)}
	for _, o := range outcomes {
		switch {
		case o.Verified():
			s.Verified++
		case o.Kind == verify.OutcomeError:
			s.Errors++
		default:
			s.Unresolved++
		}
	}
	return s
}
