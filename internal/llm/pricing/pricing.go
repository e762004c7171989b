// Package pricing estimates the cost of LLM requests from their token
// usage. Rates are static per provider:model and expressed in milli-cents
// per million tokens, so estimates stay in integer arithmetic.
package pricing

import (
	"strings"
	"sync"
	"time"

	"github.com/dockhardman/General-LLM-Stack/internal/llm/transport"
)

const tokensPerUnit = 1_000_000

// Rate prices one model, in milli-cents per million tokens.
type Rate struct {
	PromptMilliCents     int64
	CompletionMilliCents int64
}

// Registry maps provider:model to a Rate. Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	rates     map[string]Rate
	updatedAt time.Time
}

// NewRegistry returns a registry seeded with list prices for the commonly
// routed models. Unknown models estimate to nothing rather than guessing.
func NewRegistry() *Registry {
	return &Registry{
		rates: map[string]Rate{
			key("openai", "gpt-4o"):                 {PromptMilliCents: 250_000, CompletionMilliCents: 1_000_000},
			key("openai", "gpt-4o-mini"):            {PromptMilliCents: 15_000, CompletionMilliCents: 60_000},
			key("openai", "gpt-3.5-turbo-instruct"): {PromptMilliCents: 150_000, CompletionMilliCents: 200_000},
			key("openai", "text-embedding-3-small"): {PromptMilliCents: 2_000},
			key("openai", "text-embedding-3-large"): {PromptMilliCents: 13_000},
			key("anthropic", "claude-3-5-sonnet"):   {PromptMilliCents: 300_000, CompletionMilliCents: 1_500_000},
			key("anthropic", "claude-3-5-haiku"):    {PromptMilliCents: 80_000, CompletionMilliCents: 400_000},
			key("google", "gemini-1.5-flash"):       {PromptMilliCents: 7_500, CompletionMilliCents: 30_000},
			key("google", "gemini-1.5-pro"):         {PromptMilliCents: 125_000, CompletionMilliCents: 500_000},
		},
		updatedAt: time.Now(),
	}
}

// Estimate returns the cost of usage in milli-cents. The second return is
// false when no rate is known for the model.
func (r *Registry) Estimate(provider, model string, usage transport.NormalizedUsage) (int64, bool) {
	r.mu.RLock()
	rate, ok := r.rates[key(provider, model)]
	r.mu.RUnlock()
	if !ok {
		return 0, false
	}

	cost := usage.PromptTokens*rate.PromptMilliCents/tokensPerUnit +
		usage.CompletionTokens*rate.CompletionMilliCents/tokensPerUnit
	return cost, true
}

// Set installs or replaces the rate for a model.
func (r *Registry) Set(provider, model string, rate Rate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rates[key(provider, model)] = rate
	r.updatedAt = time.Now()
}

// LastUpdated reports when a rate last changed.
func (r *Registry) LastUpdated() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.updatedAt
}

func key(provider, model string) string {
	return strings.ToLower(provider) + ":" + strings.ToLower(model)
}
