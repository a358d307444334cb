// Package llm talks to the OpenAI-compatible endpoint of a local model server
// (Ollama's /v1) and turns scouting notes into a structured summary.
package llm

import (
	"context"
)

// LLMClient defines the interface for chat completions.
// Use this interface for dependency injection to enable mocking in tests.
type LLMClient interface {
	// GenerateResponse generates a chat completion response.
	GenerateResponse(ctx context.Context, req *GenerateRequest) (*GenerateResponseResult, error)

	// GetModel returns the configured model name.
	GetModel() string

	// GetEndpoint returns the configured endpoint.
	GetEndpoint() string
}

// Ensure Client implements LLMClient at compile time.
var _ LLMClient = (*Client)(nil)
