package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"lecturebook/internal/config"
	"lecturebook/internal/services"
)

// Request is one prompt to a text generation model.
type Request struct {
	System string
	Prompt string
	// JSON asks the provider for a JSON-only response.
	JSON        bool
	MaxTokens   int
	Temperature float64
}

// Generator produces text for a prompt. Implementations retry transient
// provider failures themselves; a returned error is final for the request.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
	Name() string
}

// Config captures the runtime settings required to talk to a provider.
type Config struct {
	Provider       string
	APIKey         string
	BaseURL        string
	Model          string
	Referer        string
	Title          string
	TimeoutSeconds int
}

// ConfigFrom maps the llm config section.
func ConfigFrom(cfg config.LLM) Config {
	return Config{
		Provider:       cfg.Provider,
		APIKey:         cfg.APIKey,
		BaseURL:        cfg.BaseURL,
		Model:          cfg.Model,
		Referer:        cfg.Referer,
		Title:          cfg.Title,
		TimeoutSeconds: cfg.TimeoutSeconds,
	}
}

// New builds the generator for cfg.Provider.
func New(ctx context.Context, cfg Config, opts ...Option) (Generator, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "openrouter":
		return NewClient(cfg, opts...), nil
	case "gemini":
		return NewGeminiClient(ctx, cfg, opts...)
	default:
		return nil, fmt.Errorf("llm: unsupported provider %q", cfg.Provider)
	}
}

type options struct {
	httpClient *http.Client
	retry      retrier
}

// Option customizes a client.
type Option func(*options)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		if client != nil {
			o.httpClient = client
		}
	}
}

// WithRetryMaxAttempts overrides the default retry count (defaults to 5).
func WithRetryMaxAttempts(attempts int) Option {
	return func(o *options) {
		o.retry.maxAttempts = attempts
	}
}

// WithRetryBackoff overrides the retry backoff delays.
func WithRetryBackoff(baseDelay, maxDelay time.Duration) Option {
	return func(o *options) {
		o.retry.baseDelay = baseDelay
		o.retry.maxDelay = maxDelay
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(o *options) {
		o.retry.sleeper = sleeper
	}
}

func buildOptions(cfg Config, opts []Option) options {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	o := options{
		httpClient: &http.Client{Timeout: timeout},
		retry: retrier{
			maxAttempts: defaultRetryAttempts,
			baseDelay:   defaultRetryBaseDelay,
			maxDelay:    defaultRetryMaxDelay,
		},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// DefaultHTTPTimeout returns the default timeout used for LLM requests.
func DefaultHTTPTimeout() time.Duration {
	return defaultHTTPTimeout
}

func validateRequest(op string, req Request, apiKey string) error {
	if strings.TrimSpace(req.Prompt) == "" {
		return fmt.Errorf("%s: prompt required", op)
	}
	if strings.TrimSpace(apiKey) == "" {
		return services.Wrap(services.ErrConfiguration, "enrich", op, "api key required", nil)
	}
	return nil
}
