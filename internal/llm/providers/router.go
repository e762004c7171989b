// Package providers implements the HTTP adapters for each supported LLM
// provider. Each adapter translates the normalized transport request into
// the provider's wire format and parses responses back, including
// provider-specific error payloads.
package providers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dockhardman/General-LLM-Stack/internal/llm/configuration"
	llmerrors "github.com/dockhardman/General-LLM-Stack/internal/llm/errors"
	"github.com/dockhardman/General-LLM-Stack/internal/llm/transport"
)

// Router selects the appropriate provider adapter for request routing.
type Router interface {
	// Pick selects the adapter for the specified provider and model.
	// Returns an error if the provider is not configured or unknown.
	Pick(provider, model string) (ProviderAdapter, error)
}

// ProviderAdapter abstracts provider-specific HTTP communication patterns.
// Each provider (OpenAI, Anthropic, Google) implements this interface to
// handle its API format, authentication scheme, and response structure.
type ProviderAdapter interface {
	// Build constructs a provider-specific HTTP request from a normalized
	// transport request.
	Build(ctx context.Context, req *transport.Request) (*http.Request, error)

	// Parse extracts normalized data from the provider's HTTP response for
	// the given operation.
	Parse(op transport.OperationType, httpResp *http.Response) (*transport.Response, error)

	// Name returns the canonical provider identifier.
	Name() string
}

// Supported LLM provider identifiers.
// These constants must match the provider names used in configuration.
const (
	ProviderOpenAI    = "openai"    // OpenAI GPT models
	ProviderAnthropic = "anthropic" // Anthropic Claude models
	ProviderGoogle    = "google"    // Google Gemini models
)

// NewRouter creates a router with configured provider adapters.
func NewRouter(configs map[string]configuration.ProviderConfig) (Router, error) {
	adapters := make(map[string]ProviderAdapter)

	for name, cfg := range configs {
		var adapter ProviderAdapter
		switch name {
		case ProviderOpenAI:
			adapter = NewOpenAIAdapter(cfg)
		case ProviderAnthropic:
			adapter = NewAnthropicAdapter(cfg)
		case ProviderGoogle:
			adapter = NewGoogleAdapter(cfg)
		default:
			return nil, fmt.Errorf("%w: %s", llmerrors.ErrUnknownProvider, name)
		}
		adapters[name] = adapter
	}

	return &router{adapters: adapters}, nil
}

type router struct {
	adapters map[string]ProviderAdapter
}

// Pick selects the adapter for the given provider name.
func (r *router) Pick(provider, _ string) (ProviderAdapter, error) {
	adapter, ok := r.adapters[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", llmerrors.ErrUnknownProvider, provider)
	}
	return adapter, nil
}
