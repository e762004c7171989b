package transport

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// CurrentCanonicalVersion defines the canonicalization format version.
// Increment when canonicalization logic changes to invalidate stale cache
// entries and prevent hash collisions between formats.
const CurrentCanonicalVersion = "v1"

// Validation errors for canonical payloads.
var (
	ErrOperationRequired = errors.New("operation is required")
	ErrProviderRequired  = errors.New("provider is required")
	ErrModelRequired     = errors.New("model is required")
)

// CanonicalPayload is the normalized, stable form of a logical LLM request.
// It is the sole input to idempotency key hashing and must be deterministic
// across equivalent requests: all text undergoes whitespace normalization
// and only non-default parameters are included.
type CanonicalPayload struct {
	Version   string             `json:"version"`
	Operation OperationType      `json:"operation"`
	Provider  string             `json:"provider"`
	Model     string             `json:"model"`
	Messages  []CanonicalMessage `json:"messages,omitempty"`
	Prompt    string             `json:"prompt,omitempty"`
	Input     []string           `json:"input,omitempty"`
	Params    map[string]any     `json:"params,omitempty"`
	Seed      *int64             `json:"seed,omitempty"`
}

// CanonicalMessage represents a normalized message in the conversation.
type CanonicalMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// IdemKey is a deterministic SHA-256 hex identifier for a canonical payload.
type IdemKey string

// String returns the string representation of the idempotency key.
func (k IdemKey) String() string { return string(k) }

// BuildCanonicalPayload transforms an LLM request into normalized canonical
// form. Equivalent requests produce identical canonical representations
// regardless of whitespace variation or zero-value parameter noise.
func BuildCanonicalPayload(req *Request) (*CanonicalPayload, error) {
	switch {
	case req.Operation == "":
		return nil, ErrOperationRequired
	case strings.TrimSpace(req.Provider) == "":
		return nil, ErrProviderRequired
	case strings.TrimSpace(req.Model) == "":
		return nil, ErrModelRequired
	}

	payload := &CanonicalPayload{
		Version:   CurrentCanonicalVersion,
		Operation: req.Operation,
		Provider:  strings.ToLower(strings.TrimSpace(req.Provider)),
		Model:     strings.TrimSpace(req.Model),
		Seed:      req.Seed,
	}

	switch req.Operation {
	case OpChatCompletion:
		messages := make([]CanonicalMessage, 0, len(req.Messages))
		for _, m := range req.Messages {
			messages = append(messages, CanonicalMessage{
				Role:    m.Role,
				Content: normalizeText(m.Content),
			})
		}
		payload.Messages = messages
	case OpCompletion:
		payload.Prompt = normalizeText(req.Prompt)
	case OpEmbedding:
		input := make([]string, 0, len(req.Input))
		for _, text := range req.Input {
			input = append(input, normalizeText(text))
		}
		payload.Input = input
	}

	// Only non-default parameters participate in the key to minimize
	// cache key variations.
	params := make(map[string]any)
	if req.MaxTokens > 0 {
		params["max_tokens"] = req.MaxTokens
	}
	if req.Temperature != nil {
		params["temperature"] = *req.Temperature
	}
	if req.TopP != nil {
		params["top_p"] = *req.TopP
	}
	if len(req.Stop) > 0 {
		params["stop"] = req.Stop
	}
	if req.EncodingFormat != "" {
		params["encoding_format"] = req.EncodingFormat
	}
	if len(params) > 0 {
		payload.Params = params
	}

	return payload, nil
}

// BuildIdemKey generates a deterministic SHA-256 idempotency key from a
// canonical payload. encoding/json sorts map keys, so serialization is
// stable for identical payloads.
func BuildIdemKey(payload *CanonicalPayload) (IdemKey, error) {
	jsonBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal canonical payload: %w", err)
	}

	hash := sha256.Sum256(jsonBytes)
	return IdemKey(hex.EncodeToString(hash[:])), nil
}

// GenerateIdemKey builds the canonical payload and generates the
// idempotency key in one step.
func GenerateIdemKey(req *Request) (IdemKey, error) {
	payload, err := BuildCanonicalPayload(req)
	if err != nil {
		return "", fmt.Errorf("failed to build canonical payload: %w", err)
	}
	return BuildIdemKey(payload)
}

// normalizeText normalizes text content for consistent hash generation.
// Trims boundaries, normalizes CRLF to LF, and collapses runs of
// whitespace so equivalent text hashes identically.
func normalizeText(text string) string {
	text = strings.TrimSpace(text)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.Join(strings.Fields(text), " ")
}
