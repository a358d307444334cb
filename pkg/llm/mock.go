package llm

import (
	"context"
	"sync"
)

// MockLLMClient is a configurable mock for testing LLM functionality.
// Set the function fields to control behavior in tests.
type MockLLMClient struct {
	// GenerateResponseFunc is called when GenerateResponse is invoked.
	// If nil, returns an empty result and nil error.
	GenerateResponseFunc func(ctx context.Context, req *GenerateRequest) (*GenerateResponseResult, error)

	Model    string
	Endpoint string

	mu       sync.Mutex
	requests []*GenerateRequest
}

// NewMockLLMClient creates a new mock with sensible defaults.
func NewMockLLMClient() *MockLLMClient {
	return &MockLLMClient{
		Model:    "mock-model",
		Endpoint: "http://mock-endpoint",
	}
}

// GenerateResponse implements LLMClient.
func (m *MockLLMClient) GenerateResponse(ctx context.Context, req *GenerateRequest) (*GenerateResponseResult, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if m.GenerateResponseFunc != nil {
		return m.GenerateResponseFunc(ctx, req)
	}
	return &GenerateResponseResult{}, nil
}

// Requests returns every request received so far.
func (m *MockLLMClient) Requests() []*GenerateRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*GenerateRequest(nil), m.requests...)
}

// Calls returns the number of GenerateResponse calls.
func (m *MockLLMClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// GetModel implements LLMClient.
func (m *MockLLMClient) GetModel() string {
	return m.Model
}

// GetEndpoint implements LLMClient.
func (m *MockLLMClient) GetEndpoint() string {
	return m.Endpoint
}

var _ LLMClient = (*MockLLMClient)(nil)

// MockSummarizer returns a fixed summary or error.
type MockSummarizer struct {
	Summary *Summary
	Err     error

	mu     sync.Mutex
	inputs []SummaryInput
}

// Summarize implements Summarizer.
func (m *MockSummarizer) Summarize(_ context.Context, in SummaryInput) (*Summary, error) {
	m.mu.Lock()
	m.inputs = append(m.inputs, in)
	m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Summary == nil {
		return &Summary{}, nil
	}
	return m.Summary, nil
}

// Inputs returns the inputs received so far.
func (m *MockSummarizer) Inputs() []SummaryInput {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SummaryInput(nil), m.inputs...)
}

var _ Summarizer = (*MockSummarizer)(nil)
