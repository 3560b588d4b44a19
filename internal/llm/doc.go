// Package llm provides the text generation clients used by enrichment.
//
// Two providers implement Generator: Client talks to the OpenRouter chat
// completion API over plain HTTP, and GeminiClient talks to the Gemini API
// through the genai SDK. New selects one from the llm config section.
//
// # Entry Points
//
// New: construct the configured provider.
// Generator.Generate: send a system/user prompt pair, receive text or JSON.
// Client.HealthCheck: verify API key and model availability (doctor).
// DecodeReply: decode JSON from a reply, tolerating code fences and prose.
//
// # Retry Behaviour
//
// Both providers retry on HTTP 408/429/5xx, empty content, and network
// timeouts with exponential backoff (base 1s, max 10s, up to 5 attempts by
// default). Retry-After is honoured when the provider sends it. Context
// cancellation aborts retries immediately.
package llm
