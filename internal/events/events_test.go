package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"lecturebook/internal/events"
	"lecturebook/internal/services"
)

func TestSubjects(t *testing.T) {
	pub := events.NewNATSPublisher(nil, " talks. ", nil)
	if got := pub.Subject(events.JobCompleted); got != "talks.events.job_completed" {
		t.Fatalf("unexpected subject %q", got)
	}
	if got := events.SubmitSubject(""); got != "lecturebook.submit" {
		t.Fatalf("unexpected default submit subject %q", got)
	}
}

func TestConnectRequiresURL(t *testing.T) {
	_, err := events.Connect("  ", "lecturebook", nil)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestNopDiscards(t *testing.T) {
	var pub events.Publisher = events.Nop{}
	if err := pub.Publish(context.Background(), events.Event{Type: events.JobSubmitted, JobID: "j"}); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
}

func TestEventOmitsJobLevelItem(t *testing.T) {
	data, err := json.Marshal(events.Event{Type: events.JobProgress, JobID: "j", Stage: "compile"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(data), `"item"`) {
		t.Fatalf("job-level event should not carry an item: %s", data)
	}
	zero := 0
	data, _ = json.Marshal(events.Event{Type: events.JobProgress, JobID: "j", Item: &zero})
	if !strings.Contains(string(data), `"item":0`) {
		t.Fatalf("item zero must be kept: %s", data)
	}
}

type countingPublisher struct {
	published int
	closed    bool
	err       error
}

func (c *countingPublisher) Publish(context.Context, events.Event) error {
	c.published++
	return c.err
}

func (c *countingPublisher) Close() error {
	c.closed = true
	return nil
}

func TestFanoutDeliversToEveryPublisher(t *testing.T) {
	failing := &countingPublisher{err: errors.New("broker down")}
	healthy := &countingPublisher{}
	fan := events.Fanout{failing, nil, healthy}

	err := fan.Publish(context.Background(), events.Event{Type: events.JobProgress, JobID: "j"})
	if err == nil || !strings.Contains(err.Error(), "broker down") {
		t.Fatalf("expected the failing publisher's error, got %v", err)
	}
	if failing.published != 1 || healthy.published != 1 {
		t.Fatal("every publisher should see the event")
	}
	if err := fan.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !failing.closed || !healthy.closed {
		t.Fatal("every publisher should be closed")
	}
}
