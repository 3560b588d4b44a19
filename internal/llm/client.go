package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"lecturebook/internal/services"
)

const (
	jsonResponseType  = "json_object"
	defaultOpenRouter = "https://openrouter.ai/api/v1/chat/completions"
	// snippetLimit bounds how much of a bad response body ends up in errors.
	snippetLimit = 240
)

// Client generates text through an OpenRouter-compatible chat completions
// endpoint.
type Client struct {
	cfg        Config
	httpClient *http.Client
	retry      retrier
}

// NewClient constructs an OpenRouter client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	o := buildOptions(cfg, opts)
	cfg.Provider = "openrouter"
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.Model = strings.TrimSpace(cfg.Model)
	cfg.Referer = strings.TrimSpace(cfg.Referer)
	cfg.Title = strings.TrimSpace(cfg.Title)
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOpenRouter
	}
	return &Client{cfg: cfg, httpClient: o.httpClient, retry: o.retry}
}

// Name identifies the provider and model in logs.
func (c *Client) Name() string {
	return "openrouter:" + c.cfg.Model
}

// statusError is a non-2xx reply. It unwraps to the services marker that
// matches the status so the pipeline classifies it without string checks.
type statusError struct {
	code       int
	body       string
	retryAfter time.Duration
}

func (e *statusError) Error() string {
	return fmt.Sprintf("llm: http %d: %s", e.code, e.body)
}

func (e *statusError) Unwrap() error {
	switch {
	case e.code == http.StatusUnauthorized, e.code == http.StatusForbidden, e.code == http.StatusPaymentRequired:
		return services.ErrConfiguration
	case e.code == http.StatusNotFound:
		return services.ErrNotFound
	case e.code == http.StatusRequestTimeout, e.code == http.StatusTooManyRequests, e.code >= http.StatusInternalServerError:
		return services.ErrTransient
	default:
		return services.ErrExternalTool
	}
}

func (e *statusError) retryable() (time.Duration, bool) {
	if errors.Is(e.Unwrap(), services.ErrTransient) {
		return e.retryAfter, true
	}
	return 0, false
}

// emptyReplyError is a 2xx reply without usable text. Models occasionally
// return these under load, so they are retried.
type emptyReplyError struct {
	finishReason string
	refusal      string
	snippet      string
}

func (e *emptyReplyError) Error() string {
	msg := fmt.Sprintf("llm generate: empty content (finish_reason=%q", e.finishReason)
	if e.refusal != "" {
		msg += fmt.Sprintf(", refusal=%q", e.refusal)
	}
	return msg + ", response_snippet=" + e.snippet + ")"
}

func (e *emptyReplyError) Unwrap() error                    { return services.ErrExternalTool }
func (e *emptyReplyError) retryable() (time.Duration, bool) { return 0, true }

// Generate issues a chat completion for req and returns the model's text.
func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	if err := validateRequest("llm generate", req, c.cfg.APIKey); err != nil {
		return "", err
	}
	body := completionRequest{
		Model:       c.cfg.Model,
		Messages:    buildMessages(req),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.JSON {
		body.ResponseFormat = &responseFormat{Type: jsonResponseType}
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("llm request: encode body: %w", err)
	}
	return c.retry.do(ctx, "llm generate", func() (string, error) {
		return c.complete(ctx, encoded)
	})
}

// HealthCheck issues a tiny JSON prompt to confirm the key and model work.
func (c *Client) HealthCheck(ctx context.Context) error {
	content, err := c.Generate(ctx, Request{
		System: "You must respond with JSON only.",
		Prompt: `Respond with {"ok":true}`,
		JSON:   true,
	})
	if err != nil {
		return fmt.Errorf("llm health: %w", err)
	}
	var parsed struct {
		OK bool `json:"ok"`
	}
	if err := DecodeReply(content, &parsed); err != nil {
		return fmt.Errorf("llm health: parse payload: %w", err)
	}
	if !parsed.OK {
		return errors.New("llm health: unexpected response")
	}
	return nil
}

func buildMessages(req Request) []message {
	messages := make([]message, 0, 2)
	if system := strings.TrimSpace(req.System); system != "" {
		messages = append(messages, message{Role: "system", Content: system})
	}
	return append(messages, message{Role: "user", Content: strings.TrimSpace(req.Prompt)})
}

type completionRequest struct {
	Model          string          `json:"model"`
	Messages       []message       `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionResponse struct {
	Choices []struct {
		Message replyMessage `json:"message"`
		// Some providers send the streaming shape even with stream=false.
		Delta        replyMessage `json:"delta"`
		Text         string       `json:"text"`
		FinishReason string       `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type replyMessage struct {
	Content string `json:"content"`
	Refusal string `json:"refusal"`
}

// text returns the first non-empty reply plus the finish reason and refusal
// seen along the way.
func (r completionResponse) text() (content, finishReason, refusal string) {
	for _, choice := range r.Choices {
		if finishReason == "" {
			finishReason = strings.TrimSpace(choice.FinishReason)
		}
		if refusal == "" {
			refusal = firstNonEmpty(choice.Message.Refusal, choice.Delta.Refusal)
		}
		if content = firstNonEmpty(choice.Message.Content, choice.Delta.Content, choice.Text); content != "" {
			return content, finishReason, refusal
		}
	}
	return "", finishReason, refusal
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func (c *Client) complete(ctx context.Context, encoded []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("llm request: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Referer != "" {
		req.Header.Set("HTTP-Referer", c.cfg.Referer)
	}
	if c.cfg.Title != "" {
		req.Header.Set("X-Title", c.cfg.Title)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm request: http error (timeout=%s): %w", c.timeout(), err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("llm request: read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"))
		return "", &statusError{code: resp.StatusCode, body: snippet(string(body)), retryAfter: retryAfter}
	}

	var parsed completionResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", services.Wrap(services.ErrExternalTool, "enrich", "llm request", "decode response", err)
	}
	if parsed.Error != nil {
		return "", services.Wrap(services.ErrExternalTool, "enrich", "llm request", "api error: "+strings.TrimSpace(parsed.Error.Message), nil)
	}
	content, finishReason, refusal := parsed.text()
	if content == "" {
		return "", &emptyReplyError{finishReason: finishReason, refusal: refusal, snippet: snippet(string(body))}
	}
	return content, nil
}

func (c *Client) timeout() time.Duration {
	if c.httpClient == nil || c.httpClient.Timeout <= 0 {
		return defaultHTTPTimeout
	}
	return c.httpClient.Timeout
}

func snippet(body string) string {
	body = strings.Join(strings.Fields(body), " ")
	if body == "" {
		return "<empty>"
	}
	if len(body) > snippetLimit {
		return body[:snippetLimit] + "..."
	}
	return body
}

func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		if delay := time.Until(when); delay >= 0 {
			return delay, true
		}
	}
	return 0, false
}
