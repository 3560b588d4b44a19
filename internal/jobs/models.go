package jobs

import (
	"time"

	"lecturebook/internal/contracts"
	"lecturebook/internal/pipeline"
	"lecturebook/internal/services"
	"lecturebook/internal/stage"
)

// Status represents the lifecycle of a job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// InterruptedMessage is recorded on jobs a dead process left running.
const InterruptedMessage = "process exited while the job was running"

var allStatuses = []Status{StatusQueued, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled}

// AllStatuses returns every job status in lifecycle order.
func AllStatuses() []Status {
	return append([]Status(nil), allStatuses...)
}

// ParseStatus converts user input into a Status.
func ParseStatus(value string) (Status, bool) {
	for _, s := range allStatuses {
		if string(s) == value {
			return s, true
		}
	}
	return "", false
}

// Terminal reports whether the job can no longer change.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Retryable reports whether Retry accepts a job in this status.
func (s Status) Retryable() bool {
	return s == StatusFailed || s == StatusCancelled
}

// Job is one persisted request.
type Job struct {
	ID              string
	ParentJobID     string
	Status          Status
	Title           string
	Speaker         string
	Items           []contracts.SourceItem
	Options         pipeline.Options
	ResumeFrom      stage.Stage
	CurrentStage    stage.Stage
	ProgressPercent float64
	CancelRequested bool
	ErrorCode       services.CauseCode
	ErrorMessage    string
	OutputPath      string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	StartedAt       *time.Time
	FinishedAt      *time.Time
}

// ItemProgress mirrors one pipeline item. Stage is the last stage the item
// completed, or stage.Failed.
type ItemProgress struct {
	JobID        string
	Index        int
	Source       string
	Stage        stage.Stage
	FailedStage  stage.Stage
	ErrorCode    services.CauseCode
	ErrorMessage string
	UpdatedAt    time.Time
}

// Failed reports whether the item stopped at FailedStage.
func (p ItemProgress) Failed() bool {
	return p.Stage == stage.Failed
}

// Event is one entry of a job's progress log. Item is contracts.JobLevel for
// job-wide entries.
type Event struct {
	ID        int64
	JobID     string
	Item      int
	Stage     stage.Stage
	Message   string
	Percent   float64
	CreatedAt time.Time
}

// Snapshot is the status view of a job.
type Snapshot struct {
	Job   *Job
	Items []ItemProgress
	Log   []Event
}

// SubmitRequest describes a new job.
type SubmitRequest struct {
	Items   []contracts.SourceItem
	Title   string
	Speaker string
	Options pipeline.Options
}
