// Package transport defines the normalized request pipeline shared by all
// LLM providers. A Request is the provider-agnostic form of one API
// operation; handlers and middleware compose around it for resilience
// concerns like caching, rate limiting, retries, and circuit breaking.
package transport

import (
	"context"
	"net/http"
	"time"

	"github.com/dockhardman/General-LLM-Stack/internal/domain"
)

// OperationType identifies which API operation a request performs.
// Affects provider endpoint selection, cache key namespacing, and
// rate limit accounting.
type OperationType string

const (
	// OpChatCompletion is a chat conversation completion.
	OpChatCompletion OperationType = "chat.completion"

	// OpCompletion is a legacy text completion.
	OpCompletion OperationType = "completion"

	// OpEmbedding is an embeddings computation.
	OpEmbedding OperationType = "embedding"
)

// Request represents a normalized request across all LLM providers.
// Exactly one of Messages, Prompt, or Input is populated, matching the
// operation type.
type Request struct {
	// Operation type affects routing, caching, and rate limiting.
	Operation OperationType `json:"operation"`

	// Provider identifies which LLM service to use.
	Provider string `json:"provider"` // "openai"|"anthropic"|"google"

	// Model is the provider-side model identifier, already resolved from
	// the public deploy name.
	Model string `json:"model"`

	// Messages is the conversation for chat completion operations.
	Messages []domain.ChatMessage `json:"messages,omitempty"`

	// Prompt is the input for text completion operations.
	Prompt string `json:"prompt,omitempty"`

	// Input holds the texts for embedding operations.
	Input []string `json:"input,omitempty"`

	// Generation parameters control model behavior.
	MaxTokens   int64    `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	Stop        []string `json:"stop,omitempty"`
	Seed        *int64   `json:"seed,omitempty"`

	// EncodingFormat applies to embedding operations ("float"|"base64").
	EncodingFormat string `json:"encoding_format,omitempty"`

	// Control fields for resilience and observability.
	Timeout        time.Duration `json:"timeout"`
	IdempotencyKey string        `json:"idempotency_key"`
	TraceID        string        `json:"trace_id"`
	User           string        `json:"user,omitempty"`
}

// Response represents normalized output from any LLM provider.
// Content carries generated text for completion operations; Embeddings
// carries vectors for embedding operations.
type Response struct {
	// Content is the generated text for completion operations.
	Content string `json:"content"`

	// Embeddings holds one vector per input text for embedding operations.
	Embeddings [][]float64 `json:"embeddings,omitempty"`

	// Model is the provider-reported model that actually served the call.
	Model string `json:"model,omitempty"`

	// FinishReason indicates why generation stopped.
	FinishReason domain.FinishReason `json:"finish_reason"`

	// ProviderRequestIDs enables cross-system correlation.
	ProviderRequestIDs []string `json:"provider_request_ids,omitempty"`

	// Usage tracks resource consumption.
	Usage NormalizedUsage `json:"usage"`

	// CachedAt is set by the cache middleware on stored entries.
	CachedAt int64 `json:"cached_at,omitempty"`

	// Headers preserves raw response headers for debugging.
	Headers http.Header `json:"-"`

	// RawBody preserves the original response for audit.
	RawBody []byte `json:"raw_body,omitempty"`
}

// NormalizedUsage provides consistent usage metrics across all providers.
type NormalizedUsage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
	LatencyMs        int64 `json:"latency_ms"`
}

// traceIDKey is the context key carrying the request trace identifier.
type traceIDKey struct{}

// WithTraceID stores a trace identifier in the context for correlation
// across the middleware chain.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, traceID)
}

// ExtractTraceID returns the trace identifier from the context, or empty.
func ExtractTraceID(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey{}).(string); ok {
		return v
	}
	return ""
}
