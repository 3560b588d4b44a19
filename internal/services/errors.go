package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
	ErrCheckpoint    = errors.New("checkpoint error")
	ErrCancelled     = errors.New("cancelled")
	ErrNoSurvivors   = errors.New("no items validated")
	ErrInterrupted   = errors.New("interrupted")
)

// CauseCode is the stable, user-facing classification of a failure.
type CauseCode string

const (
	CauseExternalTool     CauseCode = "external_tool"
	CauseValidation       CauseCode = "validation_failed"
	CauseConfiguration    CauseCode = "configuration"
	CauseNotFound         CauseCode = "not_found"
	CauseTimeout          CauseCode = "timeout"
	CauseTransient        CauseCode = "transient"
	CauseCheckpoint       CauseCode = "checkpoint_corrupt"
	CauseCancelled        CauseCode = "cancelled"
	CauseNoItemsValidated CauseCode = "no_items_validated"
	CauseInterrupted      CauseCode = "interrupted"
	CauseInternal         CauseCode = "internal"
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Cause maps an error to its stable cause code. Unknown errors map to
// CauseInternal so callers never see raw internal failures as codes.
func Cause(err error) CauseCode {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return CauseCancelled
	case errors.Is(err, ErrNoSurvivors):
		return CauseNoItemsValidated
	case errors.Is(err, ErrInterrupted):
		return CauseInterrupted
	case errors.Is(err, ErrCheckpoint):
		return CauseCheckpoint
	case errors.Is(err, ErrConfiguration):
		return CauseConfiguration
	case errors.Is(err, ErrValidation):
		return CauseValidation
	case errors.Is(err, ErrNotFound):
		return CauseNotFound
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return CauseTimeout
	case errors.Is(err, ErrExternalTool):
		return CauseExternalTool
	case errors.Is(err, ErrTransient):
		return CauseTransient
	default:
		return CauseInternal
	}
}

// FatalToJob reports whether the failure prevents every item from proceeding.
func FatalToJob(err error) bool {
	switch Cause(err) {
	case CauseConfiguration, CauseCheckpoint, CauseNoItemsValidated, CauseCancelled:
		return true
	default:
		return false
	}
}

// ErrorDetails is the structured view of a failure used by logs and the job API.
type ErrorDetails struct {
	Code    CauseCode
	Message string
	Hint    string
	Cause   error
}

// Details extracts a structured description from err.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	code := Cause(err)
	return ErrorDetails{
		Code:    code,
		Message: strings.TrimSpace(err.Error()),
		Hint:    hintFor(code),
		Cause:   errors.Unwrap(err),
	}
}

func hintFor(code CauseCode) string {
	switch code {
	case CauseExternalTool:
		return "check that the external tool is installed and its output is well formed"
	case CauseValidation:
		return "inspect the validation report for critical findings"
	case CauseConfiguration:
		return "review the configuration file and environment variables"
	case CauseNotFound:
		return "verify the source item exists"
	case CauseTimeout:
		return "increase pipeline.stage_timeout_seconds or retry later"
	case CauseTransient:
		return "retry the job"
	case CauseCheckpoint:
		return "purge the job checkpoints and retry from download"
	case CauseCancelled:
		return "retry the job to resume from its checkpoints"
	case CauseNoItemsValidated:
		return "every item failed before validation; inspect per-item errors"
	case CauseInterrupted:
		return "the process stopped while the job was running; retry the job"
	default:
		return "check logs for details"
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
