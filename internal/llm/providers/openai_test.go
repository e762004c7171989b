package providers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dockhardman/General-LLM-Stack/internal/domain"
	"github.com/dockhardman/General-LLM-Stack/internal/llm/configuration"
	llmerrors "github.com/dockhardman/General-LLM-Stack/internal/llm/errors"
	"github.com/dockhardman/General-LLM-Stack/internal/llm/transport"
)

func floatPtr(f float64) *float64 { return &f }

func TestOpenAIAdapter_Build_ChatCompletion(t *testing.T) {
	adapter := NewOpenAIAdapter(configuration.ProviderConfig{
		APIKey:  "test-key",
		Headers: map[string]string{"X-Org": "acme"},
	})

	req := &transport.Request{
		Operation: transport.OpChatCompletion,
		Provider:  ProviderOpenAI,
		Model:     "gpt-4o-mini",
		Messages: []domain.ChatMessage{
			{Role: domain.RoleSystem, Content: "You are helpful."},
			{Role: domain.RoleUser, Content: "Hello"},
		},
		MaxTokens:      256,
		Temperature:    floatPtr(0.3),
		IdempotencyKey: "idem-123",
	}

	httpReq, err := adapter.Build(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, httpReq.Method)
	assert.Equal(t, "https://api.openai.com/v1/chat/completions", httpReq.URL.String())
	assert.Equal(t, "Bearer test-key", httpReq.Header.Get("Authorization"))
	assert.Equal(t, "idem-123", httpReq.Header.Get("Idempotency-Key"))
	assert.Equal(t, "acme", httpReq.Header.Get("X-Org"))

	var body map[string]any
	require.NoError(t, json.NewDecoder(httpReq.Body).Decode(&body))
	assert.Equal(t, "gpt-4o-mini", body["model"])
	assert.Equal(t, float64(256), body["max_tokens"])
	assert.Equal(t, 0.3, body["temperature"])

	messages, ok := body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)
}

func TestOpenAIAdapter_Build_Completion(t *testing.T) {
	adapter := NewOpenAIAdapter(configuration.ProviderConfig{APIKey: "test-key"})

	req := &transport.Request{
		Operation: transport.OpCompletion,
		Provider:  ProviderOpenAI,
		Model:     "gpt-3.5-turbo-instruct",
		Prompt:    "Once upon a time",
	}

	httpReq, err := adapter.Build(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "https://api.openai.com/v1/completions", httpReq.URL.String())

	var body map[string]any
	require.NoError(t, json.NewDecoder(httpReq.Body).Decode(&body))
	assert.Equal(t, "Once upon a time", body["prompt"])
}

func TestOpenAIAdapter_Build_Embedding(t *testing.T) {
	adapter := NewOpenAIAdapter(configuration.ProviderConfig{APIKey: "test-key"})

	req := &transport.Request{
		Operation:      transport.OpEmbedding,
		Provider:       ProviderOpenAI,
		Model:          "text-embedding-3-small",
		Input:          []string{"alpha", "beta"},
		EncodingFormat: "float",
		Temperature:    floatPtr(0.9), // sampling params are not embedding params
	}

	httpReq, err := adapter.Build(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "https://api.openai.com/v1/embeddings", httpReq.URL.String())

	var body map[string]any
	require.NoError(t, json.NewDecoder(httpReq.Body).Decode(&body))
	assert.Equal(t, []any{"alpha", "beta"}, body["input"])
	assert.Equal(t, "float", body["encoding_format"])
	assert.NotContains(t, body, "temperature")
}

func TestOpenAIAdapter_Parse_ChatSuccess(t *testing.T) {
	adapter := NewOpenAIAdapter(configuration.ProviderConfig{})

	respBody := `{
		"id": "chatcmpl-abc",
		"model": "gpt-4o-mini",
		"choices": [{"index": 0, "message": {"role": "assistant", "content": "Hi there"}, "finish_reason": "stop"}],
		"usage": {"prompt_tokens": 12, "completion_tokens": 4, "total_tokens": 16}
	}`
	header := http.Header{}
	header.Set("x-request-id", "req-42")

	resp, err := adapter.Parse(transport.OpChatCompletion, &http.Response{
		StatusCode: http.StatusOK,
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(respBody)),
	})
	require.NoError(t, err)

	assert.Equal(t, "Hi there", resp.Content)
	assert.Equal(t, domain.FinishStop, resp.FinishReason)
	assert.Equal(t, int64(16), resp.Usage.TotalTokens)
	assert.Equal(t, []string{"req-42"}, resp.ProviderRequestIDs)
}

func TestOpenAIAdapter_Parse_Embeddings(t *testing.T) {
	adapter := NewOpenAIAdapter(configuration.ProviderConfig{})

	// Data arrives out of index order; Parse must restore it.
	respBody := `{
		"model": "text-embedding-3-small",
		"data": [
			{"index": 1, "embedding": [0.3, 0.4]},
			{"index": 0, "embedding": [0.1, 0.2]}
		],
		"usage": {"prompt_tokens": 5, "total_tokens": 5}
	}`

	resp, err := adapter.Parse(transport.OpEmbedding, &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader(respBody)),
	})
	require.NoError(t, err)

	require.Len(t, resp.Embeddings, 2)
	assert.Equal(t, []float64{0.1, 0.2}, resp.Embeddings[0])
	assert.Equal(t, []float64{0.3, 0.4}, resp.Embeddings[1])
}

func TestOpenAIAdapter_Parse_Error(t *testing.T) {
	adapter := NewOpenAIAdapter(configuration.ProviderConfig{})

	respBody := `{"error": {"message": "Rate limit reached", "type": "rate_limit_error", "code": "rate_limit_exceeded"}}`
	header := http.Header{}
	header.Set("Retry-After", "30")

	_, err := adapter.Parse(transport.OpChatCompletion, &http.Response{
		StatusCode: http.StatusTooManyRequests,
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(respBody)),
	})
	require.Error(t, err)

	var provErr *llmerrors.ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, ProviderOpenAI, provErr.Provider)
	assert.Equal(t, http.StatusTooManyRequests, provErr.StatusCode)
	assert.Equal(t, llmerrors.ErrorTypeRateLimit, provErr.Type)
	assert.Equal(t, 30, provErr.RetryAfter)
	assert.True(t, provErr.IsRetryable())
}

func TestMapOpenAIFinishReason(t *testing.T) {
	tests := []struct {
		reason string
		want   domain.FinishReason
	}{
		{"stop", domain.FinishStop},
		{"length", domain.FinishLength},
		{"content_filter", domain.FinishContentFilter},
		{"tool_calls", domain.FinishToolUse},
		{"", domain.FinishStop},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, mapOpenAIFinishReason(tt.reason), tt.reason)
	}
}
