package validation

import (
	"fmt"
	"log/slog"
	"strings"

	"lecturebook/internal/config"
	"lecturebook/internal/contracts"
	"lecturebook/internal/logging"
)

// Thresholds bounds every check. Zero fields fall back to the defaults.
type Thresholds struct {
	MinWordsPerMinute   float64
	RepetitionWindow    int
	RepetitionThreshold int
	MaxGapSeconds       float64
	MinConfidence       float64
	MinVerificationRate float64
	ExpectedLanguage    string

	MarkdownRepeatLimit   int
	MinMarkdownSections   int
	MaxSpeculativePhrases int
	MaxDurationMismatch   float64
}

// DefaultThresholds mirrors the configuration defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinWordsPerMinute:     30,
		RepetitionWindow:      8,
		RepetitionThreshold:   4,
		MaxGapSeconds:         30,
		MinConfidence:         0.5,
		MinVerificationRate:   0.5,
		MarkdownRepeatLimit:   2,
		MinMarkdownSections:   2,
		MaxSpeculativePhrases: 2,
		MaxDurationMismatch:   0.10,
	}
}

// FromConfig builds thresholds from the validation config section.
func FromConfig(cfg config.Validation) Thresholds {
	th := DefaultThresholds()
	th.MinWordsPerMinute = cfg.MinWordsPerMinute
	th.RepetitionWindow = cfg.RepetitionWindow
	th.RepetitionThreshold = cfg.RepetitionThreshold
	th.MaxGapSeconds = cfg.MaxGapSeconds
	th.MinConfidence = cfg.MinConfidence
	th.MinVerificationRate = cfg.MinVerificationRate
	th.ExpectedLanguage = cfg.ExpectedLanguage
	return th.withDefaults()
}

func (th Thresholds) withDefaults() Thresholds {
	def := DefaultThresholds()
	if th.MinWordsPerMinute <= 0 {
		th.MinWordsPerMinute = def.MinWordsPerMinute
	}
	if th.RepetitionWindow <= 0 {
		th.RepetitionWindow = def.RepetitionWindow
	}
	if th.RepetitionThreshold <= 1 {
		th.RepetitionThreshold = def.RepetitionThreshold
	}
	if th.MaxGapSeconds <= 0 {
		th.MaxGapSeconds = def.MaxGapSeconds
	}
	if th.MinConfidence <= 0 {
		th.MinConfidence = def.MinConfidence
	}
	if th.MinVerificationRate <= 0 {
		th.MinVerificationRate = def.MinVerificationRate
	}
	if th.MarkdownRepeatLimit <= 0 {
		th.MarkdownRepeatLimit = def.MarkdownRepeatLimit
	}
	if th.MinMarkdownSections <= 0 {
		th.MinMarkdownSections = def.MinMarkdownSections
	}
	if th.MaxSpeculativePhrases < 0 {
		th.MaxSpeculativePhrases = def.MaxSpeculativePhrases
	}
	if th.MaxDurationMismatch <= 0 {
		th.MaxDurationMismatch = def.MaxDurationMismatch
	}
	return th
}

// Input carries the stage outputs a report is computed from. Download may
// be nil; the duration check then uses the transcript's own duration.
type Input struct {
	Download   *contracts.DownloadOutput
	Transcript *contracts.TranscriptOutput
	Enrichment *contracts.EnrichmentOutput
}

// Validator runs the rule-based quality checks.
type Validator struct {
	thresholds Thresholds
	logger     *slog.Logger
}

// New constructs a validator. A nil logger discards output.
func New(th Thresholds, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Validator{thresholds: th.withDefaults(), logger: logger}
}

// Validate computes the report. It never fails: missing inputs surface as
// findings. A report with any failed critical finding does not pass.
func (v *Validator) Validate(in Input) *contracts.ValidationOutput {
	th := v.thresholds
	tr := in.Transcript
	if tr == nil {
		tr = &contracts.TranscriptOutput{}
	}
	en := in.Enrichment
	if en == nil {
		en = &contracts.EnrichmentOutput{}
	}

	report := &contracts.ValidationOutput{
		TranscriptChecks: []contracts.Finding{
			checkEmptyTranscript(tr),
			checkSlidingWindowRepetition(tr, th),
			checkContentDensity(tr, th),
			checkSegmentGaps(tr, th),
			checkConfidence(tr, th),
			checkLanguage(tr, th),
			checkDurationConsistency(tr, in.Download, th),
		},
		EnrichmentChecks: []contracts.Finding{
			checkVerificationRate(en, th),
			checkUnverifiedRefs(en),
			checkMarkdownRepetition(en, th),
			checkEmptyEnrichment(en),
			checkSpeculativeContent(en, th),
			checkMarkdownSections(en, th),
			checkCrossReferences(en),
		},
	}
	report.Tally()
	report.Summary = summarize(report)

	for _, f := range report.Findings() {
		if f.Passed {
			v.logger.Debug("validation check passed", logging.String("check", f.Check), logging.String("message", f.Message))
			continue
		}
		attrs := []logging.Attr{
			logging.String("check", f.Check),
			logging.String("severity", string(f.Severity)),
			logging.String("message", f.Message),
		}
		if f.Severity == contracts.SeverityCritical {
			attrs = append(attrs, logging.String(logging.FieldImpact, "compilation blocked until the source is fixed"))
		}
		logging.WarnWithContext(v.logger, "validation check failed", "validation_finding", attrs...)
	}
	v.logger.Info("validation complete",
		logging.String(logging.FieldEventType, "validation_report"),
		logging.Int("critical", report.Critical),
		logging.Int("warnings", report.Warnings),
		logging.Bool("overall_pass", report.OverallPass),
	)
	return report
}

func summarize(r *contracts.ValidationOutput) string {
	total := len(r.TranscriptChecks) + len(r.EnrichmentChecks)
	if r.Critical == 0 && r.Warnings == 0 {
		return fmt.Sprintf("All %d validation checks passed.", total)
	}
	var parts []string
	if failed := r.Failed(contracts.SeverityCritical); len(failed) > 0 {
		parts = append(parts, fmt.Sprintf("%d critical: %s", len(failed), checkNames(failed)))
	}
	if failed := r.Failed(contracts.SeverityWarning); len(failed) > 0 {
		parts = append(parts, fmt.Sprintf("%d warning: %s", len(failed), checkNames(failed)))
	}
	verdict := "passed with warnings"
	if !r.OverallPass {
		verdict = "failed"
	}
	return fmt.Sprintf("Validation %s (%s).", verdict, strings.Join(parts, "; "))
}

func checkNames(findings []contracts.Finding) string {
	names := make([]string, len(findings))
	for i, f := range findings {
		names[i] = f.Check
	}
	return strings.Join(names, ", ")
}

func pass(check string, sev contracts.Severity, msg string, details map[string]any) contracts.Finding {
	return contracts.Finding{Check: check, Passed: true, Severity: sev, Message: msg, Details: details}
}

func fail(check string, sev contracts.Severity, msg string, details map[string]any) contracts.Finding {
	return contracts.Finding{Check: check, Severity: sev, Message: msg, Details: details}
}

func truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "…"
}
