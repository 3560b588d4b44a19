package contracts

import "lecturebook/internal/stage"

// Severity is the impact of a failed validation check.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
)

// Finding is the result of one validation check.
type Finding struct {
	Check    string         `json:"check"`
	Passed   bool           `json:"passed"`
	Severity Severity       `json:"severity"`
	Message  string         `json:"message"`
	Details  map[string]any `json:"details,omitempty"`
}

// ValidationOutput is the post-hoc quality report for one item.
type ValidationOutput struct {
	TranscriptChecks []Finding `json:"transcript_checks"`
	EnrichmentChecks []Finding `json:"enrichment_checks"`
	Critical         int       `json:"critical"`
	Warnings         int       `json:"warnings"`
	OverallPass      bool      `json:"overall_pass"`
	Summary          string    `json:"summary"`
}

func (*ValidationOutput) Stage() stage.Stage { return stage.Validate }

func (v *ValidationOutput) Validate() error {
	critical, warnings := v.count()
	if critical != v.Critical || warnings != v.Warnings {
		return invalid(stage.Validate, "counts %d/%d do not match findings %d/%d", v.Critical, v.Warnings, critical, warnings)
	}
	if v.OverallPass != (critical == 0) {
		return invalid(stage.Validate, "overall_pass inconsistent with %d critical findings", critical)
	}
	for _, f := range v.Findings() {
		if blank(f.Check) || blank(f.Message) {
			return invalid(stage.Validate, "finding missing check name or message")
		}
		if f.Severity != SeverityCritical && f.Severity != SeverityWarning {
			return invalid(stage.Validate, "finding %s has severity %q", f.Check, f.Severity)
		}
	}
	if blank(v.Summary) {
		return invalid(stage.Validate, "summary is empty")
	}
	return nil
}

// Findings returns transcript checks followed by enrichment checks.
func (v *ValidationOutput) Findings() []Finding {
	out := make([]Finding, 0, len(v.TranscriptChecks)+len(v.EnrichmentChecks))
	out = append(out, v.TranscriptChecks...)
	return append(out, v.EnrichmentChecks...)
}

// Failed returns the failed findings of the given severity.
func (v *ValidationOutput) Failed(sev Severity) []Finding {
	var out []Finding
	for _, f := range v.Findings() {
		if !f.Passed && f.Severity == sev {
			out = append(out, f)
		}
	}
	return out
}

// Tally recomputes the counts and pass flag from the findings.
func (v *ValidationOutput) Tally() {
	v.Critical, v.Warnings = v.count()
	v.OverallPass = v.Critical == 0
}

func (v *ValidationOutput) count() (critical, warnings int) {
	for _, f := range v.Findings() {
		if f.Passed {
			continue
		}
		if f.Severity == SeverityCritical {
			critical++
		} else {
			warnings++
		}
	}
	return critical, warnings
}
