// Package llm provides a unified, resilient HTTP client for Large Language
// Model providers. It implements idempotency, caching, rate limiting,
// circuit breaking, and retry logic for OpenAI, Anthropic, and Google
// providers behind an OpenAI-shaped API.
//
// Architecture:
//   - Provider-agnostic interface with adapter pattern for each provider
//   - Middleware chain for composable resilience and observability
//   - Request/response only (no streaming in this implementation)
//   - Success-only caching with idempotency support
//   - Graceful degradation when Redis is unavailable
package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/dockhardman/General-LLM-Stack/internal/domain"
	"github.com/dockhardman/General-LLM-Stack/internal/llm/cache"
	"github.com/dockhardman/General-LLM-Stack/internal/llm/circuitbreaker"
	"github.com/dockhardman/General-LLM-Stack/internal/llm/configuration"
	"github.com/dockhardman/General-LLM-Stack/internal/llm/providers"
	"github.com/dockhardman/General-LLM-Stack/internal/llm/ratelimit"
	"github.com/dockhardman/General-LLM-Stack/internal/llm/retry"
	"github.com/dockhardman/General-LLM-Stack/internal/llm/transport"
)

// routerAdapter bridges providers.Router to transport.Router. The concrete
// adapters satisfy both interfaces, so Pick passes them through unchanged.
type routerAdapter struct {
	router providers.Router
}

func (r *routerAdapter) Pick(provider, model string) (transport.ProviderAdapter, error) {
	adapter, err := r.router.Pick(provider, model)
	if err != nil {
		return nil, err
	}
	return adapter, nil
}

// Client provides high-level LLM operations with resilience patterns.
// It maps OpenAI-shaped domain types to provider-specific requests while
// handling caching, circuit breaking, rate limiting, and retry logic.
type Client interface {
	// ChatCompletion generates chat responses for the routed model.
	ChatCompletion(ctx context.Context, req *domain.ChatCompletionRequest) (*domain.ChatCompletion, error)

	// Completion generates a legacy text completion for the routed model.
	Completion(ctx context.Context, req *domain.CompletionRequest) (*domain.Completion, error)

	// Embeddings produces one vector per input text for the routed model.
	Embeddings(ctx context.Context, req *domain.EmbeddingRequest) (*domain.CreateEmbeddingResponse, error)

	// Routes lists the deploy names this client can serve.
	Routes() []string

	// Close releases background resources held by the middleware stack.
	Close()
}

type client struct {
	config  *configuration.Config
	router  providers.Router
	handler transport.Handler
	stop    []func()
}

// NewClient creates an LLM client with the full middleware pipeline:
// logging, caching, and circuit breaking at the call level, retry wrapping
// rate limiting and the HTTP core at the attempt level.
func NewClient(cfg *configuration.Config) (Client, error) {
	if cfg == nil {
		cfg = configuration.DefaultConfig()
	}

	router, err := providers.NewRouter(cfg.Providers)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize router: %w", err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				MaxIdleConns:          configuration.DefaultMaxIdleConns,
				IdleConnTimeout:       configuration.DefaultIdleTimeoutSeconds * time.Second,
				TLSHandshakeTimeout:   configuration.DefaultTLSTimeoutSeconds * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
			},
			Timeout: cfg.HTTPTimeout,
		}
	}

	coreHandler := transport.NewHTTPHandler(httpClient, &routerAdapter{router: router})

	c := &client{config: cfg, router: router}

	// Attempt-level middleware runs once per retry attempt.
	var attemptMiddlewares []transport.Middleware
	if cfg.RateLimit.Local.Enabled || cfg.RateLimit.Global.Enabled {
		rlMiddleware, stopRL, err := ratelimit.NewMiddlewareWithRedis(&cfg.RateLimit, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize rate limiter: %w", err)
		}
		c.stop = append(c.stop, stopRL)
		attemptMiddlewares = append(attemptMiddlewares, rlMiddleware)
	}
	attemptHandler := transport.Chain(coreHandler, attemptMiddlewares...)

	retryMiddleware, err := retry.NewMiddleware(cfg.Retry)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize retry middleware: %w", err)
	}
	retryHandler := retryMiddleware(attemptHandler)

	// Call-level middleware runs once per logical call.
	callMiddlewares := []transport.Middleware{
		NewLoggingMiddleware(cfg.Observability, nil, nil),
	}
	if cfg.Cache.Enabled {
		cacheMiddleware, err := cache.NewMiddlewareWithRedis(context.Background(), cfg.Cache, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize cache: %w", err)
		}
		callMiddlewares = append(callMiddlewares, cacheMiddleware)
	}
	if cfg.CircuitBreaker.Enabled {
		callMiddlewares = append(callMiddlewares, circuitbreaker.NewMiddleware(cfg.CircuitBreaker))
	}

	c.handler = transport.Chain(retryHandler, callMiddlewares...)
	return c, nil
}

// ChatCompletion implements Client.ChatCompletion. The request's N choices
// are generated sequentially; partial failures fail the whole call.
func (c *client) ChatCompletion(ctx context.Context, req *domain.ChatCompletionRequest) (*domain.ChatCompletion, error) {
	route, err := c.resolveRoute(req.Model)
	if err != nil {
		return nil, err
	}

	n := req.N
	if n <= 0 {
		n = 1
	}

	completion := domain.NewChatCompletion(req.Model)
	for i := range n {
		treq := &transport.Request{
			Operation:   transport.OpChatCompletion,
			Provider:    route.Provider,
			Model:       route.Model,
			Messages:    req.Messages,
			MaxTokens:   req.MaxTokens,
			Temperature: req.Temperature,
			TopP:        req.TopP,
			Stop:        req.Stop,
			Seed:        req.Seed,
			User:        req.User,
			Timeout:     c.config.HTTPTimeout,
			TraceID:     transport.ExtractTraceID(ctx),
		}
		if err := c.stampIdempotencyKey(treq, i); err != nil {
			return nil, err
		}

		resp, err := c.handler.Handle(ctx, treq)
		if err != nil {
			return nil, err
		}

		completion.Choices = append(completion.Choices, domain.ChatChoice{
			Index: i,
			Message: domain.ChatMessage{
				Role:    domain.RoleAssistant,
				Content: resp.Content,
			},
			FinishReason: resp.FinishReason,
		})
		accumulateUsage(&completion.Usage, resp.Usage)
	}

	return completion, nil
}

// Completion implements Client.Completion.
func (c *client) Completion(ctx context.Context, req *domain.CompletionRequest) (*domain.Completion, error) {
	route, err := c.resolveRoute(req.Model)
	if err != nil {
		return nil, err
	}

	treq := &transport.Request{
		Operation:   transport.OpCompletion,
		Provider:    route.Provider,
		Model:       route.Model,
		Prompt:      req.Prompt,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stop:        req.Stop,
		Seed:        req.Seed,
		User:        req.User,
		Timeout:     c.config.HTTPTimeout,
		TraceID:     transport.ExtractTraceID(ctx),
	}
	if err := c.stampIdempotencyKey(treq, 0); err != nil {
		return nil, err
	}

	resp, err := c.handler.Handle(ctx, treq)
	if err != nil {
		return nil, err
	}

	completion := domain.NewCompletion(req.Model)
	completion.Choices = []domain.CompletionChoice{{
		Index:        0,
		Text:         resp.Content,
		FinishReason: resp.FinishReason,
	}}
	accumulateUsage(&completion.Usage, resp.Usage)
	return completion, nil
}

// Embeddings implements Client.Embeddings.
func (c *client) Embeddings(ctx context.Context, req *domain.EmbeddingRequest) (*domain.CreateEmbeddingResponse, error) {
	route, err := c.resolveRoute(req.Model)
	if err != nil {
		return nil, err
	}

	treq := &transport.Request{
		Operation:      transport.OpEmbedding,
		Provider:       route.Provider,
		Model:          route.Model,
		Input:          req.Input,
		EncodingFormat: req.EncodingFormat,
		User:           req.User,
		Timeout:        c.config.HTTPTimeout,
		TraceID:        transport.ExtractTraceID(ctx),
	}
	if err := c.stampIdempotencyKey(treq, 0); err != nil {
		return nil, err
	}

	resp, err := c.handler.Handle(ctx, treq)
	if err != nil {
		return nil, err
	}

	out := &domain.CreateEmbeddingResponse{
		Object: "list",
		Model:  req.Model,
		Data:   make([]domain.Embedding, 0, len(resp.Embeddings)),
	}
	for i, vector := range resp.Embeddings {
		out.Data = append(out.Data, domain.Embedding{
			Object:    "embedding",
			Index:     i,
			Embedding: vector,
		})
	}
	out.Usage.PromptTokens = resp.Usage.PromptTokens
	out.Usage.TotalTokens = resp.Usage.TotalTokens
	return out, nil
}

// Routes implements Client.Routes.
func (c *client) Routes() []string {
	routes := make([]string, 0, len(c.config.Routes))
	for name := range c.config.Routes {
		routes = append(routes, name)
	}
	return routes
}

// Close implements Client.Close.
func (c *client) Close() {
	for _, stop := range c.stop {
		stop()
	}
}

// stampIdempotencyKey derives the deterministic request key. Choice indexes
// beyond the first get a suffix so multi-choice requests are not collapsed
// by the cache.
func (c *client) stampIdempotencyKey(treq *transport.Request, choice int) error {
	key, err := transport.GenerateIdemKey(treq)
	if err != nil {
		return fmt.Errorf("failed to generate idempotency key: %w", err)
	}
	treq.IdempotencyKey = key.String()
	if choice > 0 {
		treq.IdempotencyKey = fmt.Sprintf("%s-%d", key, choice)
	}
	return nil
}

func accumulateUsage(total *domain.Usage, usage transport.NormalizedUsage) {
	total.PromptTokens += usage.PromptTokens
	total.CompletionTokens += usage.CompletionTokens
	total.TotalTokens += usage.TotalTokens
}
