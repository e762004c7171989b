// Package domain provides the core request and response types for the
// OpenAI-compatible API surface. It defines chat completions, text
// completions, embeddings, and model registry records shared by the HTTP
// server, the provider client, and the agent proxy. Types carry validation
// tags so every entry point enforces the same constraints.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// FinishReason indicates why a model stopped generating tokens.
// Provider-specific reasons are normalized to this set.
type FinishReason string

const (
	// FinishStop indicates natural completion or a stop sequence hit.
	FinishStop FinishReason = "stop"

	// FinishLength indicates the token limit was reached.
	FinishLength FinishReason = "length"

	// FinishContentFilter indicates content was blocked by safety filters.
	FinishContentFilter FinishReason = "content_filter"

	// FinishToolUse indicates the model requested a tool invocation.
	FinishToolUse FinishReason = "tool_calls"
)

// Chat message roles accepted on the wire.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ChatMessage is a single turn in a chat conversation.
type ChatMessage struct {
	Role    string `json:"role" validate:"required,oneof=system user assistant tool"`
	Content string `json:"content"`

	// Name optionally identifies the author of this message.
	Name string `json:"name,omitempty"`
}

// ChatCompletionRequest is the body of POST /v1/chat/completions.
// Field names and semantics follow the OpenAI chat completions API so that
// existing SDKs work unchanged against this server.
type ChatCompletionRequest struct {
	Model    string        `json:"model" validate:"required,min=1"`
	Messages []ChatMessage `json:"messages" validate:"required,min=1,dive"`

	MaxTokens   int64    `json:"max_tokens,omitempty" validate:"omitempty,min=1"`
	Temperature *float64 `json:"temperature,omitempty" validate:"omitempty,min=0,max=2"`
	TopP        *float64 `json:"top_p,omitempty" validate:"omitempty,gt=0,max=1"`
	N           int      `json:"n,omitempty" validate:"omitempty,min=1,max=8"`
	Stop        []string `json:"stop,omitempty" validate:"omitempty,max=4"`
	Seed        *int64   `json:"seed,omitempty"`
	User        string   `json:"user,omitempty"`

	// Stream is accepted for wire compatibility but streaming responses
	// are not implemented; requests with Stream set are rejected.
	Stream bool `json:"stream,omitempty"`
}

// Validate checks the request against wire constraints.
// Returns nil if valid, or the first constraint violation.
func (r *ChatCompletionRequest) Validate() error { return validate.Struct(r) }

// ChatChoice is one generated alternative within a chat completion.
type ChatChoice struct {
	Index        int          `json:"index"`
	Message      ChatMessage  `json:"message"`
	FinishReason FinishReason `json:"finish_reason"`
}

// ChatCompletion is the body of a successful chat completions response.
type ChatCompletion struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Usage   Usage        `json:"usage"`

	SystemFingerprint string `json:"system_fingerprint,omitempty"`
}

// NewChatCompletion returns an empty chat completion envelope for model,
// stamped with a fresh identifier and the current time.
func NewChatCompletion(model string) *ChatCompletion {
	return &ChatCompletion{
		ID:      "chatcmpl-" + uuid.NewString(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
	}
}

// Usage reports token consumption for a single API call.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}
