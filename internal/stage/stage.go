package stage

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Stage is one step of the fixed pipeline. Stages are totally ordered.
type Stage string

const (
	Download   Stage = "download"
	Transcribe Stage = "transcribe"
	Enrich     Stage = "enrich"
	Validate   Stage = "validate"
	Compile    Stage = "compile"
	Render     Stage = "render"
)

// Terminal per-item states that sit outside the ordered stage list.
const (
	Failed Stage = "failed"
	Done   Stage = "done"
)

var ordered = []Stage{Download, Transcribe, Enrich, Validate, Compile, Render}

// All returns the pipeline stages in execution order.
func All() []Stage {
	out := make([]Stage, len(ordered))
	copy(out, ordered)
	return out
}

// ItemStages returns the stages evaluated once per source item.
func ItemStages() []Stage {
	return All()[:4]
}

// Index returns the position of s in the pipeline, or -1 for non-pipeline states.
func (s Stage) Index() int {
	for i, candidate := range ordered {
		if candidate == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is one of the six pipeline stages.
func (s Stage) Valid() bool {
	return s.Index() >= 0
}

// Terminal reports whether s is Failed or Done.
func (s Stage) Terminal() bool {
	return s == Failed || s == Done
}

// PerItem reports whether s runs once per source item rather than once per job.
func (s Stage) PerItem() bool {
	idx := s.Index()
	return idx >= 0 && idx <= Validate.Index()
}

// Before reports whether s executes strictly earlier than other.
func (s Stage) Before(other Stage) bool {
	a, b := s.Index(), other.Index()
	return a >= 0 && b >= 0 && a < b
}

// Previous returns the stage immediately before s.
func (s Stage) Previous() (Stage, bool) {
	idx := s.Index()
	if idx <= 0 {
		return "", false
	}
	return ordered[idx-1], true
}

// Next returns the state that follows s on success. Render is followed by Done.
func (s Stage) Next() Stage {
	idx := s.Index()
	switch {
	case idx < 0:
		return s
	case idx == len(ordered)-1:
		return Done
	default:
		return ordered[idx+1]
	}
}

// Label returns a human readable stage name.
func (s Stage) Label() string {
	return cases.Title(language.English).String(string(s))
}

func (s Stage) String() string {
	return string(s)
}

// Parse converts user input into a Stage.
func Parse(value string) (Stage, error) {
	candidate := Stage(strings.ToLower(strings.TrimSpace(value)))
	if candidate.Valid() || candidate.Terminal() {
		return candidate, nil
	}
	return "", fmt.Errorf("unknown stage %q", value)
}
