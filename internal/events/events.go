package events

import (
	"context"
	"errors"
	"time"
)

// Type names a job event.
type Type string

const (
	JobSubmitted Type = "job_submitted"
	JobStarted   Type = "job_started"
	JobProgress  Type = "job_progress"
	JobCompleted Type = "job_completed"
	JobFailed    Type = "job_failed"
	JobCancelled Type = "job_cancelled"
	JobRetried   Type = "job_retried"
	JobPurged    Type = "job_purged"
)

// Event is one job lifecycle notification.
type Event struct {
	Type      Type      `json:"type"`
	JobID     string    `json:"job_id"`
	Status    string    `json:"status,omitempty"`
	Stage     string    `json:"stage,omitempty"`
	Item      *int      `json:"item,omitempty"`
	Message   string    `json:"message,omitempty"`
	Percent   float64   `json:"percent,omitempty"`
	ErrorCode string    `json:"error_code,omitempty"`
	ParentID  string    `json:"parent_job_id,omitempty"`
	Time      time.Time `json:"time"`
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// Fanout delivers every event to each publisher in order.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f Fanout) Close() error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
