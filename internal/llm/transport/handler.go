package transport

import (
	"context"
	"fmt"
	"net/http"
	"time"

	llmerrors "github.com/dockhardman/General-LLM-Stack/internal/llm/errors"
)

// Router selects the appropriate provider adapter for request routing.
// Implemented by the providers package.
type Router interface {
	Pick(provider, model string) (ProviderAdapter, error)
}

// ProviderAdapter abstracts provider-specific HTTP communication patterns.
// Implemented by the providers package.
type ProviderAdapter interface {
	Build(ctx context.Context, req *Request) (*http.Request, error)
	Parse(op OperationType, httpResp *http.Response) (*Response, error)
	Name() string
}

// Handler processes LLM requests through a composable middleware pipeline.
// Core abstraction enabling request preprocessing, response postprocessing,
// and cross-cutting concerns like caching, rate limiting, and retries.
type Handler interface {
	Handle(ctx context.Context, req *Request) (*Response, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(context.Context, *Request) (*Response, error)

// Handle implements the Handler interface.
func (f HandlerFunc) Handle(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Middleware transforms a Handler into an enhanced Handler.
type Middleware func(Handler) Handler

// Chain builds a middleware pipeline around a core handler.
// Middleware executes in the order provided with the first middleware
// outermost.
func Chain(h Handler, middlewares ...Middleware) Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// NewHTTPHandler creates the core handler that performs provider HTTP
// exchanges: adapter selection, request build, HTTP round trip, and
// response parse.
func NewHTTPHandler(client *http.Client, router Router) Handler {
	return &httpHandler{client: client, router: router}
}

type httpHandler struct {
	client *http.Client
	router Router
}

// Handle implements Handler by making HTTP requests to providers.
func (h *httpHandler) Handle(ctx context.Context, req *Request) (*Response, error) {
	adapter, err := h.router.Pick(req.Provider, req.Model)
	if err != nil {
		return nil, fmt.Errorf("failed to select provider: %w", err)
	}

	// Per-request timeout when specified.
	reqCtx := ctx
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := adapter.Build(reqCtx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	start := time.Now()
	httpResp, err := h.client.Do(httpReq)
	latency := time.Since(start)

	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	resp, err := adapter.Parse(req.Operation, httpResp)
	if err != nil {
		return nil, err
	}

	resp.Usage.LatencyMs = latency.Milliseconds()

	if err := validateResponse(req, resp); err != nil {
		return nil, err
	}

	return resp, nil
}

// validateResponse rejects parsed responses that cannot satisfy the
// operation: completions without content, embeddings without a vector per
// input.
func validateResponse(req *Request, resp *Response) error {
	switch req.Operation {
	case OpChatCompletion, OpCompletion:
		if resp.Content == "" {
			return fmt.Errorf("%w: empty completion content", llmerrors.ErrInvalidResponse)
		}
	case OpEmbedding:
		if len(resp.Embeddings) == 0 {
			return fmt.Errorf("%w: no embeddings returned", llmerrors.ErrInvalidResponse)
		}
		if len(req.Input) > 0 && len(resp.Embeddings) != len(req.Input) {
			return fmt.Errorf("%w: %d embeddings for %d inputs",
				llmerrors.ErrInvalidResponse, len(resp.Embeddings), len(req.Input))
		}
	}
	return nil
}
