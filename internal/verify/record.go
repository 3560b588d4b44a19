package verify

// Record is the canonical content of a verse as published by the reference source.
type Record struct {
	Verified       bool     `json:"verified"`
	URL            string   `json:"url,omitempty"`
	Devanagari     string   `json:"devanagari,omitempty"`
	VerseText      string   `json:"verse_text,omitempty"`
	Synonyms       string   `json:"synonyms,omitempty"`
	Translation    string   `json:"translation,omitempty"`
	PurportExcerpt string   `json:"purport_excerpt,omitempty"`
	CrossRefs      []string `json:"cross_refs,omitempty"`
}

// Resolution names where a verification outcome came from.
type Resolution string

const (
	ResolutionCache      Resolution = "cache"
	ResolutionFresh      Resolution = "fresh-fetch"
	ResolutionFastPath   Resolution = "fast-path"
	ResolutionUnresolved Resolution = "unresolved"
)

// OutcomeKind classifies a terminal verification result.
type OutcomeKind string

const (
	OutcomeVerified   OutcomeKind = "verified"
	OutcomeUnresolved OutcomeKind = "unresolved"
	OutcomeError      OutcomeKind = "error"
)

// Outcome is the single terminal verification result for one citation.
type Outcome struct {
	Key      Key         `json:"key"`
	Kind     OutcomeKind `json:"kind"`
	Source   Resolution  `json:"source"`
	Record   *Record     `json:"record,omitempty"`
	Error    string      `json:"error,omitempty"`
	Attempts int         `json:"attempts,omitempty"`
}

// Verified reports whether the outcome carries a verified record. Citations
// without one are never treated as verified.
func (o Outcome) Verified() bool {
	return o.Kind == OutcomeVerified && o.Record != nil && o.Record.Verified
}

func verifiedOutcome(key Key, source Resolution, rec Record, attempts int) Outcome {
	return Outcome{Key: key, Kind: OutcomeVerified, Source: source, Record: &rec, Attempts: attempts}
}

func unresolvedOutcome(key Key, reason string, attempts int) Outcome {
	return Outcome{Key: key, Kind: OutcomeUnresolved, Source: ResolutionUnresolved, Error: reason, Attempts: attempts}
}

func errorOutcome(key Key, reason string) Outcome {
	return Outcome{Key: key, Kind: OutcomeError, Source: ResolutionUnresolved, Error: reason}
}
