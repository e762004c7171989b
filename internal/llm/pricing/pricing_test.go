package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dockhardman/General-LLM-Stack/internal/llm/transport"
)

func TestRegistry_Estimate(t *testing.T) {
	registry := NewRegistry()

	// 1M prompt + 1M completion tokens of gpt-4o-mini.
	cost, ok := registry.Estimate("openai", "gpt-4o-mini", transport.NormalizedUsage{
		PromptTokens:     1_000_000,
		CompletionTokens: 1_000_000,
	})
	require.True(t, ok)
	assert.Equal(t, int64(75_000), cost)

	// Embeddings price prompt tokens only.
	cost, ok = registry.Estimate("openai", "text-embedding-3-small", transport.NormalizedUsage{
		PromptTokens: 500_000,
	})
	require.True(t, ok)
	assert.Equal(t, int64(1_000), cost)

	// Provider and model lookup is case-insensitive.
	_, ok = registry.Estimate("OpenAI", "GPT-4o-Mini", transport.NormalizedUsage{})
	assert.True(t, ok)
}

func TestRegistry_EstimateUnknownModel(t *testing.T) {
	registry := NewRegistry()

	cost, ok := registry.Estimate("openai", "gpt-imaginary", transport.NormalizedUsage{
		PromptTokens: 1000,
	})
	assert.False(t, ok)
	assert.Zero(t, cost)
}

func TestRegistry_Set(t *testing.T) {
	registry := NewRegistry()
	before := registry.LastUpdated()

	registry.Set("openai", "gpt-5", Rate{PromptMilliCents: 1_000_000, CompletionMilliCents: 2_000_000})

	cost, ok := registry.Estimate("openai", "gpt-5", transport.NormalizedUsage{
		PromptTokens:     2_000_000,
		CompletionTokens: 1_000_000,
	})
	require.True(t, ok)
	assert.Equal(t, int64(4_000_000), cost)
	assert.False(t, registry.LastUpdated().Before(before))
}
