package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Embedding encoding formats accepted on the wire.
const (
	EncodingFloat  = "float"
	EncodingBase64 = "base64"
)

// ErrEmptyInput indicates an embeddings request with no input texts.
var ErrEmptyInput = errors.New("embeddings input is empty")

// EmbeddingInput carries the texts to embed. The OpenAI wire format accepts
// either a single string or an array of strings; both decode into the same
// slice so downstream code handles one shape.
type EmbeddingInput []string

// UnmarshalJSON decodes either a JSON string or a JSON array of strings.
func (in *EmbeddingInput) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*in = EmbeddingInput{single}
		return nil
	}

	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("embeddings input must be a string or array of strings: %w", err)
	}
	*in = EmbeddingInput(many)
	return nil
}

// MarshalJSON encodes a single-element input as a bare string to round-trip
// the common case, and an array otherwise.
func (in EmbeddingInput) MarshalJSON() ([]byte, error) {
	if len(in) == 1 {
		return json.Marshal(in[0])
	}
	return json.Marshal([]string(in))
}

// EmbeddingRequest is the body of POST /v1/embeddings.
type EmbeddingRequest struct {
	Model string         `json:"model" validate:"required,min=1"`
	Input EmbeddingInput `json:"input" validate:"required,min=1"`

	EncodingFormat string `json:"encoding_format,omitempty" validate:"omitempty,oneof=float base64"`
	Dimensions     int    `json:"dimensions,omitempty" validate:"omitempty,min=1"`
	User           string `json:"user,omitempty"`
}

// Validate checks the request against wire constraints.
// Rejects requests whose input contains only empty strings.
func (r *EmbeddingRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return err
	}
	for _, text := range r.Input {
		if text != "" {
			return nil
		}
	}
	return ErrEmptyInput
}

// Embedding is a single embedding vector within a response.
type Embedding struct {
	Object    string    `json:"object"`
	Index     int       `json:"index"`
	Embedding []float64 `json:"embedding"`
}

// CreateEmbeddingResponse is the body of a successful embeddings response.
type CreateEmbeddingResponse struct {
	Object string      `json:"object"`
	Data   []Embedding `json:"data"`
	Model  string      `json:"model"`
	Usage  Usage       `json:"usage"`
}
