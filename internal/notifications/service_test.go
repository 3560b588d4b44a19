package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"lecturebook/internal/config"
	"lecturebook/internal/events"
	"lecturebook/internal/notifications"
)

func TestNewPublisherReturnsNopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Events.NtfyTopic = ""
	pub := notifications.NewPublisher(cfg.Events)
	if _, ok := pub.(events.Nop); !ok {
		t.Fatalf("expected Nop publisher, got %T", pub)
	}
	if err := pub.Publish(context.Background(), events.Event{Type: events.JobCompleted, JobID: "x"}); err != nil {
		t.Fatalf("expected nop publisher to return nil, got %v", err)
	}
}

func TestNtfyFormatsTerminalEvents(t *testing.T) {
	tests := []struct {
		name           string
		event          events.Event
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name: "completed",
			event: events.Event{
				Type:    events.JobCompleted,
				JobID:   "0123456789abcdef",
				Message: "/books/out/nectar-of-instruction.md",
			},
			expectTitle:   "Lecturebook - Book Ready",
			expectMessage: "Job 01234567 finished\nBook: nectar-of-instruction.md",
			expectTags:    "lecturebook,job,completed",
		},
		{
			name: "failed",
			event: events.Event{
				Type:      events.JobFailed,
				JobID:     "abc",
				Stage:     "validate",
				ErrorCode: "validation_failed",
				Message:   "2 critical findings",
			},
			expectTitle:    "Lecturebook - Job Failed",
			expectMessage:  "Job abc failed during validate [validation_failed]: 2 critical findings",
			expectTags:     "lecturebook,job,error",
			expectPriority: "high",
		},
		{
			name:           "cancelled retry",
			event:          events.Event{Type: events.JobCancelled, JobID: "child-job-id", ParentID: "parent-job-id"},
			expectTitle:    "Lecturebook - Job Cancelled",
			expectMessage:  "Job child-jo (retry of parent-j) was cancelled",
			expectTags:     "lecturebook,job,cancelled",
			expectPriority: "low",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var captured struct {
				title    string
				tags     string
				priority string
				body     string
			}

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("unexpected method: %s", r.Method)
				}
				captured.title = r.Header.Get("Title")
				captured.tags = r.Header.Get("Tags")
				captured.priority = r.Header.Get("Priority")
				body, err := io.ReadAll(r.Body)
				if err != nil {
					t.Errorf("read body: %v", err)
				}
				captured.body = string(body)
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := config.Default()
			cfg.Events.NtfyTopic = server.URL
			cfg.Events.NtfyTimeoutSeconds = 5

			pub := notifications.NewPublisher(cfg.Events)
			defer pub.Close()
			if err := pub.Publish(context.Background(), tc.event); err != nil {
				t.Fatalf("publish returned error: %v", err)
			}

			if captured.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, captured.title)
			}
			if captured.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, captured.body)
			}
			if captured.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, captured.tags)
			}
			if captured.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, captured.priority)
			}
		})
	}
}

func TestNtfyIgnoresProgressEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected call for ignored event: %s", r.URL.String())
	}))
	defer server.Close()

	pub := notifications.NewNtfy(server.URL, server.Client())
	for _, typ := range []events.Type{events.JobSubmitted, events.JobStarted, events.JobProgress, events.JobRetried, events.JobPurged} {
		if err := pub.Publish(context.Background(), events.Event{Type: typ, JobID: "x"}); err != nil {
			t.Fatalf("expected no error for %s, got %v", typ, err)
		}
	}
}

func TestNtfyReportsServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic is reserved", http.StatusForbidden)
	}))
	defer server.Close()

	pub := notifications.NewNtfy(server.URL, server.Client())
	err := pub.Publish(context.Background(), events.Event{Type: events.JobCompleted, JobID: "x"})
	if err == nil || !strings.Contains(err.Error(), "ntfy returned 403: topic is reserved") {
		t.Fatalf("expected 403 error, got %v", err)
	}
}
