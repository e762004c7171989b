package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dockhardman/General-LLM-Stack/internal/llm/configuration"
	llmerrors "github.com/dockhardman/General-LLM-Stack/internal/llm/errors"
	"github.com/dockhardman/General-LLM-Stack/internal/llm/transport"
)

// defaultMaxBreakers caps tracked provider:model pairs when unconfigured.
const defaultMaxBreakers = 1000

// ErrBreakerLimitReached is returned when the configured breaker cap
// prevents tracking another provider:model pair.
var ErrBreakerLimitReached = errors.New("circuit breaker limit reached")

// breakerMiddleware maintains one circuit breaker per provider:model pair.
type breakerMiddleware struct {
	mu       sync.Mutex
	breakers map[string]*circuitBreaker
	config   configuration.CircuitBreakerConfig
	logger   *slog.Logger
}

// NewMiddleware creates circuit breaker middleware with per provider:model
// failure isolation.
func NewMiddleware(cfg configuration.CircuitBreakerConfig) transport.Middleware {
	bm := &breakerMiddleware{
		breakers: make(map[string]*circuitBreaker),
		config:   cfg,
		logger:   slog.Default().With("component", "circuit_breaker"),
	}
	return bm.middleware()
}

func (c *breakerMiddleware) middleware() transport.Middleware {
	return func(next transport.Handler) transport.Handler {
		return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			breaker, err := c.getOrCreateBreaker(c.buildKey(req))
			if err != nil {
				return nil, err
			}

			cleanup, err := breaker.allow()
			if err != nil {
				var cbErr *llmerrors.CircuitBreakerError
				if errors.As(err, &cbErr) {
					cbErr.Provider = req.Provider
					cbErr.Model = req.Model
				}
				return nil, err
			}
			defer cleanup()

			resp, err := next.Handle(ctx, req)
			if err != nil {
				breaker.recordFailure()
				return nil, err
			}

			breaker.recordSuccess()
			return resp, nil
		})
	}
}

func (c *breakerMiddleware) buildKey(req *transport.Request) string {
	return fmt.Sprintf("%s:%s", req.Provider, req.Model)
}

// getOrCreateBreaker returns the breaker for the key, honoring MaxBreakers.
func (c *breakerMiddleware) getOrCreateBreaker(key string) (*circuitBreaker, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if breaker, ok := c.breakers[key]; ok {
		return breaker, nil
	}

	maxBreakers := c.config.MaxBreakers
	if maxBreakers == 0 {
		maxBreakers = defaultMaxBreakers
	}
	if len(c.breakers) >= maxBreakers {
		c.logger.Warn("circuit breaker limit reached", "key", key, "limit", maxBreakers)
		return nil, fmt.Errorf("%w: %d", ErrBreakerLimitReached, maxBreakers)
	}

	breaker := newCircuitBreaker(c.config)
	c.breakers[key] = breaker
	return breaker, nil
}
