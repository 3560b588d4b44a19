package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"lecturebook/internal/logging"
	"lecturebook/internal/services"
)

const (
	defaultSubjectPrefix = "lecturebook"
	handlerTimeout       = 30 * time.Second
)

// NATSPublisher publishes events to a NATS server.
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
	logger *slog.Logger
}

// Connect dials url and returns a publisher rooted at prefix.
func Connect(url, prefix string, logger *slog.Logger) (*NATSPublisher, error) {
	if strings.TrimSpace(url) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "events", "connect", "nats url is empty", nil)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "events")
	nc, err := nats.Connect(url,
		nats.Name("lecturebook"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logging.WarnWithContext(logger, "nats disconnected", "nats_disconnect",
					logging.Error(err),
					logging.String(logging.FieldImpact, "events are buffered until the connection returns"),
				)
			}
		}),
	)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "events", "connect", url, err)
	}
	return NewNATSPublisher(nc, prefix, logger), nil
}

// NewNATSPublisher wraps an existing connection.
func NewNATSPublisher(nc *nats.Conn, prefix string, logger *slog.Logger) *NATSPublisher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &NATSPublisher{nc: nc, prefix: normalizePrefix(prefix), logger: logger}
}

// Conn exposes the underlying connection for subscriptions.
func (p *NATSPublisher) Conn() *nats.Conn { return p.nc }

// Subject returns the subject an event type is published on.
func (p *NATSPublisher) Subject(t Type) string {
	return p.prefix + ".events." + string(t)
}

// Publish sends event as JSON.
func (p *NATSPublisher) Publish(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if event.Time.IsZero() {
		event.Time = time.Now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := p.nc.Publish(p.Subject(event.Type), data); err != nil {
		return services.Wrap(services.ErrTransient, "events", "publish", string(event.Type), err)
	}
	return nil
}

// Close drains the connection.
func (p *NATSPublisher) Close() error {
	if p.nc == nil {
		return nil
	}
	return p.nc.Drain()
}

// Submission is the message accepted on the submit subject.
type Submission struct {
	Sources []string `json:"sources"`
	Title   string   `json:"title,omitempty"`
	Speaker string   `json:"speaker,omitempty"`
}

// SubmitSubject returns the subject job submissions arrive on.
func SubmitSubject(prefix string) string {
	return normalizePrefix(prefix) + ".submit"
}

// SubscribeSubmissions decodes submissions on the submit subject and hands
// them to handler. Requests that carry a reply subject receive the job id or
// an error message.
func SubscribeSubmissions(nc *nats.Conn, prefix string, logger *slog.Logger, handler func(ctx context.Context, sub Submission) (string, error)) (*nats.Subscription, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	return nc.Subscribe(SubmitSubject(prefix), func(msg *nats.Msg) {
		ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
		defer cancel()

		var sub Submission
		reply := map[string]string{}
		if err := json.Unmarshal(msg.Data, &sub); err != nil {
			reply["error"] = "invalid submission: " + err.Error()
		} else if id, err := handler(ctx, sub); err != nil {
			details := services.Details(err)
			reply["error"] = details.Message
			reply["code"] = string(details.Code)
		} else {
			reply["job_id"] = id
		}
		if errMsg, ok := reply["error"]; ok {
			logging.WarnWithContext(logger, "submission rejected", "submission_rejected",
				logging.String("subject", msg.Subject),
				logging.String("reason", errMsg),
				logging.String(logging.FieldImpact, "no job was created"),
			)
		}
		if msg.Reply == "" {
			return
		}
		data, _ := json.Marshal(reply)
		if err := msg.Respond(data); err != nil {
			logger.Debug("submission reply failed", logging.Error(err))
		}
	})
}

func normalizePrefix(prefix string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		return defaultSubjectPrefix
	}
	return prefix
}
