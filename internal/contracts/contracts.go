package contracts

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"lecturebook/internal/stage"
)

// SchemaVersion is the current checkpoint envelope version.
const SchemaVersion = 1

// JobLevel is the item index used for stages that run once per job.
const JobLevel = -1

// ErrInvalid marks a payload that fails its shape checks.
var ErrInvalid = errors.New("invalid stage payload")

// Payload is implemented by every stage output.
type Payload interface {
	Stage() stage.Stage
	Validate() error
}

// SourceItem is one input of a job: a URL or local path plus optional hints.
type SourceItem struct {
	Index   int    `json:"index"`
	Source  string `json:"source"`
	Title   string `json:"title,omitempty"`
	Speaker string `json:"speaker,omitempty"`
	Date    string `json:"date,omitempty"`
}

// Decode unmarshals raw into the payload type registered for s and validates it.
func Decode(s stage.Stage, raw []byte) (Payload, error) {
	var payload Payload
	switch s {
	case stage.Download:
		payload = &DownloadOutput{}
	case stage.Transcribe:
		payload = &TranscriptOutput{}
	case stage.Enrich:
		payload = &EnrichmentOutput{}
	case stage.Validate:
		payload = &ValidationOutput{}
	case stage.Compile:
		payload = &CompileOutput{}
	case stage.Render:
		payload = &RenderOutput{}
	default:
		return nil, fmt.Errorf("%w: no payload registered for stage %q", ErrInvalid, s)
	}
	if err := json.Unmarshal(raw, payload); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrInvalid, s, err)
	}
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	return payload, nil
}

func invalid(s stage.Stage, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalid, s, fmt.Sprintf(format, args...))
}

func blank(value string) bool {
	return strings.TrimSpace(value) == ""
}
