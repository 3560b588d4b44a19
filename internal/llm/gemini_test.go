package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"google.golang.org/genai"
)

func TestGeminiGenerate(t *testing.T) {
	var path, apiKey string
	var body map[string]any
	server := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		apiKey = r.Header.Get("x-goog-api-key")
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []any{map[string]any{
				"content":      map[string]any{"role": "model", "parts": []any{map[string]any{"text": "# Lecture Notes"}}},
				"finishReason": "STOP",
			}},
		})
	})

	client, err := New(context.Background(), Config{Provider: "gemini", APIKey: "gem-key", BaseURL: server.URL, Model: "gemini-test"})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if client.Name() != "gemini:gemini-test" {
		t.Fatalf("unexpected name %q", client.Name())
	}
	text, err := client.Generate(context.Background(), Request{System: "You write notes.", Prompt: "Transcript"})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if text != "# Lecture Notes" {
		t.Fatalf("unexpected text %q", text)
	}
	if !strings.HasSuffix(path, "models/gemini-test:generateContent") {
		t.Fatalf("unexpected path %q", path)
	}
	if apiKey != "gem-key" {
		t.Fatalf("unexpected api key header %q", apiKey)
	}
	if _, ok := body["systemInstruction"]; !ok {
		t.Fatalf("expected systemInstruction in request body, got %v", body)
	}
}

func TestGeminiRequiresAPIKey(t *testing.T) {
	if _, err := NewGeminiClient(context.Background(), Config{Model: "gemini-test"}); err == nil {
		t.Fatal("expected error without api key")
	}
}

func TestClassifyGeminiError(t *testing.T) {
	r := retrier{maxAttempts: 3, baseDelay: time.Second, maxDelay: 10 * time.Second}
	limited := classifyGeminiError(genai.APIError{Code: http.StatusTooManyRequests, Message: "quota"})
	if delay, ok := r.delay(context.Background(), limited, 1, 3); !ok || delay != time.Second {
		t.Fatalf("expected retry after 1s for 429, got %s %v", delay, ok)
	}
	denied := classifyGeminiError(genai.APIError{Code: http.StatusForbidden, Message: "denied"})
	if _, ok := r.delay(context.Background(), denied, 1, 3); ok {
		t.Fatal("403 must not be retried")
	}
	other := classifyGeminiError(errors.New("boom"))
	if !strings.HasPrefix(other.Error(), "gemini: ") {
		t.Fatalf("unexpected wrap %q", other.Error())
	}
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	if _, err := New(context.Background(), Config{Provider: "nope"}); err == nil {
		t.Fatal("expected error")
	}
}
