package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"lecturebook/internal/services"
)

// GeminiClient generates text through the Gemini API.
type GeminiClient struct {
	client *genai.Client
	model  string
	retry  retrier
}

// NewGeminiClient creates a Gemini client. BaseURL, when set, overrides the
// API endpoint.
func NewGeminiClient(ctx context.Context, cfg Config, opts ...Option) (*GeminiClient, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, services.Wrap(services.ErrConfiguration, "enrich", "gemini", "api key required", nil)
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gemini-2.5-flash"
	}
	o := buildOptions(cfg, opts)
	clientCfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: o.httpClient,
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: base}
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &GeminiClient{client: client, model: model, retry: o.retry}, nil
}

// Name identifies the provider and model in logs.
func (g *GeminiClient) Name() string {
	return "gemini:" + g.model
}

// Generate sends req as a single-turn generateContent call.
func (g *GeminiClient) Generate(ctx context.Context, req Request) (string, error) {
	const op = "gemini generate"
	if strings.TrimSpace(req.Prompt) == "" {
		return "", fmt.Errorf("%s: prompt required", op)
	}
	genCfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if system := strings.TrimSpace(req.System); system != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if req.JSON {
		genCfg.ResponseMIMEType = "application/json"
	}
	if req.MaxTokens > 0 {
		genCfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	contents := []*genai.Content{genai.NewContentFromText(strings.TrimSpace(req.Prompt), genai.RoleUser)}

	return g.retry.do(ctx, op, func() (string, error) {
		resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, genCfg)
		if err != nil {
			return "", classifyGeminiError(err)
		}
		if text := strings.TrimSpace(resp.Text()); text != "" {
			return text, nil
		}
		finish := ""
		if len(resp.Candidates) > 0 {
			finish = string(resp.Candidates[0].FinishReason)
		}
		return "", &emptyReplyError{finishReason: finish, snippet: "<empty>"}
	})
}

func classifyGeminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &statusError{code: apiErr.Code, body: snippet(apiErr.Message)}
	}
	return fmt.Errorf("gemini: %w", err)
}
