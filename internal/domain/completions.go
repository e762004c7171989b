package domain

import (
	"time"

	"github.com/google/uuid"
)

// CompletionRequest is the body of POST /v1/completions.
// The legacy text-completion surface; prompt in, continuation out.
type CompletionRequest struct {
	Model  string `json:"model" validate:"required,min=1"`
	Prompt string `json:"prompt" validate:"required,min=1"`

	MaxTokens   int64    `json:"max_tokens,omitempty" validate:"omitempty,min=1"`
	Temperature *float64 `json:"temperature,omitempty" validate:"omitempty,min=0,max=2"`
	TopP        *float64 `json:"top_p,omitempty" validate:"omitempty,gt=0,max=1"`
	Stop        []string `json:"stop,omitempty" validate:"omitempty,max=4"`
	Seed        *int64   `json:"seed,omitempty"`
	User        string   `json:"user,omitempty"`
	Stream      bool     `json:"stream,omitempty"`
}

// Validate checks the request against wire constraints.
func (r *CompletionRequest) Validate() error { return validate.Struct(r) }

// CompletionChoice is one generated alternative within a text completion.
type CompletionChoice struct {
	Index        int          `json:"index"`
	Text         string       `json:"text"`
	FinishReason FinishReason `json:"finish_reason"`
}

// Completion is the body of a successful text completions response.
type Completion struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Model   string             `json:"model"`
	Choices []CompletionChoice `json:"choices"`
	Usage   Usage              `json:"usage"`
}

// NewCompletion returns an empty text completion envelope for model,
// stamped with a fresh identifier and the current time.
func NewCompletion(model string) *Completion {
	return &Completion{
		ID:      "cmpl-" + uuid.NewString(),
		Object:  "text_completion",
		Created: time.Now().Unix(),
		Model:   model,
	}
}
