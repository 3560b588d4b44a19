package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"lecturebook/internal/config"
	"lecturebook/internal/events"
)

const userAgent = "lecturebook/0.1.0"

const defaultTimeout = 10 * time.Second

// NewPublisher returns an ntfy publisher when a topic is configured and a
// no-op publisher otherwise.
func NewPublisher(cfg config.Events) events.Publisher {
	topic := strings.TrimSpace(cfg.NtfyTopic)
	if topic == "" {
		return events.Nop{}
	}
	timeout := time.Duration(cfg.NtfyTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return NewNtfy(topic, &http.Client{Timeout: timeout})
}

// Ntfy posts terminal job events to an ntfy topic. Other event types are
// ignored.
type Ntfy struct {
	endpoint string
	client   *http.Client
}

// NewNtfy builds a publisher posting to endpoint with client.
func NewNtfy(endpoint string, client *http.Client) *Ntfy {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &Ntfy{endpoint: endpoint, client: client}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

// Publish sends a notification for completed, failed and cancelled jobs.
func (n *Ntfy) Publish(ctx context.Context, event events.Event) error {
	data, ok := format(event)
	if !ok {
		return nil
	}
	return n.send(ctx, data)
}

func (n *Ntfy) Close() error {
	if n != nil && n.client != nil {
		n.client.CloseIdleConnections()
	}
	return nil
}

func format(event events.Event) (payload, bool) {
	subject := "Job " + shortID(event.JobID)
	if event.ParentID != "" {
		subject += " (retry of " + shortID(event.ParentID) + ")"
	}
	switch event.Type {
	case events.JobCompleted:
		message := subject + " finished"
		if output := strings.TrimSpace(event.Message); output != "" {
			message = fmt.Sprintf("%s\nBook: %s", message, filepath.Base(output))
		}
		return payload{
			title:   "Lecturebook - Book Ready",
			message: message,
			tags:    []string{"lecturebook", "job", "completed"},
		}, true
	case events.JobFailed:
		var b strings.Builder
		b.WriteString(subject)
		b.WriteString(" failed")
		if event.Stage != "" {
			b.WriteString(" during ")
			b.WriteString(event.Stage)
		}
		if event.ErrorCode != "" {
			fmt.Fprintf(&b, " [%s]", event.ErrorCode)
		}
		if msg := strings.TrimSpace(event.Message); msg != "" {
			b.WriteString(": ")
			b.WriteString(msg)
		}
		return payload{
			title:    "Lecturebook - Job Failed",
			message:  b.String(),
			tags:     []string{"lecturebook", "job", "error"},
			priority: "high",
		}, true
	case events.JobCancelled:
		return payload{
			title:    "Lecturebook - Job Cancelled",
			message:  subject + " was cancelled",
			tags:     []string{"lecturebook", "job", "cancelled"},
			priority: "low",
		}, true
	default:
		return payload{}, false
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func (n *Ntfy) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
