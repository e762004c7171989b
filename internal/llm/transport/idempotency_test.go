package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dockhardman/General-LLM-Stack/internal/domain"
)

func chatRequest() *Request {
	return &Request{
		Operation: OpChatCompletion,
		Provider:  "openai",
		Model:     "gpt-3.5-turbo",
		Messages: []domain.ChatMessage{
			{Role: domain.RoleSystem, Content: "You are a helpful assistant."},
			{Role: domain.RoleUser, Content: "Hello!"},
		},
		MaxTokens: 100,
	}
}

func TestGenerateIdemKey_Deterministic(t *testing.T) {
	first, err := GenerateIdemKey(chatRequest())
	require.NoError(t, err)

	second, err := GenerateIdemKey(chatRequest())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first.String(), 64, "sha256 hex digest")
}

func TestGenerateIdemKey_WhitespaceInsensitive(t *testing.T) {
	base, err := GenerateIdemKey(chatRequest())
	require.NoError(t, err)

	noisy := chatRequest()
	noisy.Provider = "  OpenAI "
	noisy.Model = " gpt-3.5-turbo "
	noisy.Messages[1].Content = "  Hello! \r\n"

	key, err := GenerateIdemKey(noisy)
	require.NoError(t, err)
	assert.Equal(t, base, key)
}

func TestGenerateIdemKey_SensitiveToLogicalChanges(t *testing.T) {
	base, err := GenerateIdemKey(chatRequest())
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(r *Request)
	}{
		{name: "different_model", mutate: func(r *Request) { r.Model = "gpt-4" }},
		{name: "different_provider", mutate: func(r *Request) { r.Provider = "anthropic" }},
		{name: "different_content", mutate: func(r *Request) { r.Messages[1].Content = "Goodbye!" }},
		{name: "different_max_tokens", mutate: func(r *Request) { r.MaxTokens = 200 }},
		{name: "temperature_set", mutate: func(r *Request) { temp := 0.5; r.Temperature = &temp }},
		{name: "seed_set", mutate: func(r *Request) { seed := int64(7); r.Seed = &seed }},
		{name: "stop_set", mutate: func(r *Request) { r.Stop = []string{"\n"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := chatRequest()
			tt.mutate(req)

			key, err := GenerateIdemKey(req)
			require.NoError(t, err)
			assert.NotEqual(t, base, key)
		})
	}
}

func TestGenerateIdemKey_OperationsDoNotCollide(t *testing.T) {
	completion := &Request{
		Operation: OpCompletion,
		Provider:  "openai",
		Model:     "gpt-3.5-turbo-instruct",
		Prompt:    "Hello!",
	}
	embedding := &Request{
		Operation: OpEmbedding,
		Provider:  "openai",
		Model:     "gpt-3.5-turbo-instruct",
		Input:     []string{"Hello!"},
	}

	completionKey, err := GenerateIdemKey(completion)
	require.NoError(t, err)
	embeddingKey, err := GenerateIdemKey(embedding)
	require.NoError(t, err)

	assert.NotEqual(t, completionKey, embeddingKey)
}

func TestBuildCanonicalPayload_Validation(t *testing.T) {
	tests := []struct {
		name    string
		req     *Request
		wantErr error
	}{
		{
			name:    "missing_operation",
			req:     &Request{Provider: "openai", Model: "gpt-4"},
			wantErr: ErrOperationRequired,
		},
		{
			name:    "missing_provider",
			req:     &Request{Operation: OpChatCompletion, Model: "gpt-4"},
			wantErr: ErrProviderRequired,
		},
		{
			name:    "missing_model",
			req:     &Request{Operation: OpChatCompletion, Provider: "openai"},
			wantErr: ErrModelRequired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildCanonicalPayload(tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
