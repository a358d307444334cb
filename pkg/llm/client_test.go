package llm

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeModelServer answers /v1/chat/completions with handler.
func fakeModelServer(t *testing.T, handler func(w http.ResponseWriter, body map[string]any)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		handler(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func chatReply(content string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "llama3",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
		"usage": map[string]any{"prompt_tokens": 12, "completion_tokens": 5, "total_tokens": 17},
	}
}

func TestNewClient_RequiresEndpointAndModel(t *testing.T) {
	_, err := NewClient(&Config{Model: "llama3"}, zap.NewNop())
	assert.Error(t, err)

	_, err = NewClient(&Config{Endpoint: "http://localhost:11434/v1"}, zap.NewNop())
	assert.Error(t, err)

	c, err := NewClient(&Config{Endpoint: "http://localhost:11434/v1/", Model: "llama3"}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "llama3", c.GetModel())
	assert.Equal(t, "http://localhost:11434/v1/", c.GetEndpoint())
}

func TestClient_GenerateResponse(t *testing.T) {
	var received map[string]any
	srv := fakeModelServer(t, func(w http.ResponseWriter, body map[string]any) {
		received = body
		_ = json.NewEncoder(w).Encode(chatReply(`{"fortalezas":["rápido"]}`))
	})

	c, err := NewClient(&Config{Endpoint: srv.URL + "/v1", Model: "llama3"}, zap.NewNop())
	require.NoError(t, err)

	result, err := c.GenerateResponse(t.Context(), &GenerateRequest{
		SystemMessage: "sys",
		Prompt:        "hola",
		Temperature:   0.2,
		JSONMode:      true,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"fortalezas":["rápido"]}`, result.Content)
	assert.Equal(t, 12, result.PromptTokens)
	assert.Equal(t, 5, result.CompletionTokens)
	assert.Equal(t, 17, result.TotalTokens)

	assert.Equal(t, "llama3", received["model"])
	messages, ok := received["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])
	assert.Equal(t, "hola", messages[1].(map[string]any)["content"])
	format, ok := received["response_format"].(map[string]any)
	require.True(t, ok, "json mode sets response_format")
	assert.Equal(t, "json_object", format["type"])
}

func TestClient_GenerateResponse_NoChoices(t *testing.T) {
	srv := fakeModelServer(t, func(w http.ResponseWriter, _ map[string]any) {
		reply := chatReply("")
		reply["choices"] = []any{}
		_ = json.NewEncoder(w).Encode(reply)
	})
	c, err := NewClient(&Config{Endpoint: srv.URL + "/v1", Model: "llama3"}, zap.NewNop())
	require.NoError(t, err)

	_, err = c.GenerateResponse(t.Context(), &GenerateRequest{Prompt: "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedResponse))
}

func TestClient_GenerateResponse_ServerError(t *testing.T) {
	srv := fakeModelServer(t, func(w http.ResponseWriter, _ map[string]any) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
	})
	c, err := NewClient(&Config{Endpoint: srv.URL + "/v1", Model: "llama3"}, zap.NewNop())
	require.NoError(t, err)

	_, err = c.GenerateResponse(t.Context(), &GenerateRequest{Prompt: "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrServiceUnavailable))

	var llmErr *Error
	require.True(t, errors.As(err, &llmErr))
	assert.Equal(t, ErrorTypeEndpoint, llmErr.Type)
	assert.True(t, llmErr.Retryable)
	assert.Equal(t, "llama3", llmErr.Model)
}

func TestClient_GenerateResponse_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := NewClient(&Config{Endpoint: url + "/v1", Model: "llama3"}, zap.NewNop())
	require.NoError(t, err)

	_, err = c.GenerateResponse(t.Context(), &GenerateRequest{Prompt: "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrServiceUnavailable))
	assert.False(t, errors.Is(err, ErrMalformedResponse))
}
