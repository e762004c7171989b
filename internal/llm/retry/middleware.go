// Package retry implements transparent retry of transient provider failures
// with exponential backoff, full jitter, and respect for provider
// Retry-After guidance.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dockhardman/General-LLM-Stack/internal/llm/configuration"
	llmerrors "github.com/dockhardman/General-LLM-Stack/internal/llm/errors"
	"github.com/dockhardman/General-LLM-Stack/internal/llm/transport"
)

var (
	// Configuration validation errors.
	errMaxAttemptsInvalid     = errors.New("maxAttempts must be greater than 0")
	errInitialIntervalInvalid = errors.New("initialInterval must be greater than 0")
	errMaxIntervalInvalid     = errors.New("maxInterval must be >= initialInterval")
	errMultiplierInvalid      = errors.New("multiplier must be >= 1.0")

	// Runtime errors.
	errContextCancelledBeforeRetry = errors.New("context cancelled before retry")
	errContextCancelledDuringRetry = errors.New("context cancelled during retry")
)

// retryMiddleware retries transient failures with configurable backoff.
type retryMiddleware struct {
	config configuration.RetryConfig
	logger *slog.Logger
	stats  *retryStats
}

// NewMiddleware creates retry middleware after validating the configuration.
func NewMiddleware(cfg configuration.RetryConfig) (transport.Middleware, error) {
	if cfg.MaxAttempts <= 0 {
		return nil, fmt.Errorf("%w, got %d", errMaxAttemptsInvalid, cfg.MaxAttempts)
	}
	if cfg.InitialInterval <= 0 {
		return nil, fmt.Errorf("%w, got %v", errInitialIntervalInvalid, cfg.InitialInterval)
	}
	if cfg.MaxInterval < cfg.InitialInterval {
		return nil, fmt.Errorf("%w, MaxInterval: %v, InitialInterval: %v",
			errMaxIntervalInvalid, cfg.MaxInterval, cfg.InitialInterval)
	}
	if cfg.Multiplier < 1.0 {
		return nil, fmt.Errorf("%w, got %f", errMultiplierInvalid, cfg.Multiplier)
	}

	rm := &retryMiddleware{
		config: cfg,
		logger: slog.Default().With("component", "retry"),
		stats:  &retryStats{},
	}
	return rm.middleware(), nil
}

func (r *retryMiddleware) middleware() transport.Middleware {
	return func(next transport.Handler) transport.Handler {
		return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			var lastErr error
			startTime := time.Now()

			// Fail fast if the context is already cancelled.
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %w", errContextCancelledBeforeRetry, ctx.Err())
			default:
			}

			for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
				if r.config.MaxElapsedTime > 0 && time.Since(startTime) > r.config.MaxElapsedTime {
					r.logger.Warn("max elapsed time exceeded",
						"elapsed", time.Since(startTime),
						"attempts", attempt-1,
						"last_error", lastErr)
					break
				}

				resp, err := next.Handle(ctx, req)
				r.stats.totalAttempts.Add(1)

				if err == nil {
					if attempt > 1 {
						r.stats.successfulRetries.Add(1)
						r.logger.Info("request succeeded after retry",
							"attempt", attempt,
							"provider", req.Provider,
							"model", req.Model)
					} else {
						r.stats.successfulFirstAttempts.Add(1)
					}
					return resp, nil
				}

				if !llmerrors.IsRetryableError(err) {
					r.logger.Debug("non-retryable error",
						"error", err,
						"attempt", attempt,
						"provider", req.Provider)
					return nil, err
				}

				lastErr = err

				if attempt == r.config.MaxAttempts {
					break
				}

				backoff := r.calculateBackoff(attempt, err)

				// Never let backoff push past the overall time budget.
				if r.config.MaxElapsedTime > 0 && time.Since(startTime)+backoff > r.config.MaxElapsedTime {
					r.logger.Warn("max elapsed time exceeded",
						"elapsed", time.Since(startTime),
						"attempts", attempt,
						"last_error", err)
					break
				}

				r.logger.Debug("retrying after backoff",
					"attempt", attempt,
					"backoff", backoff,
					"error", err,
					"provider", req.Provider)

				select {
				case <-time.After(backoff):
				case <-ctx.Done():
					return nil, fmt.Errorf("%w: %w", errContextCancelledDuringRetry, ctx.Err())
				}
			}

			r.stats.failedRetries.Add(1)
			return nil, fmt.Errorf("%w after %d attempts: %w",
				llmerrors.ErrMaxRetriesExceeded, r.config.MaxAttempts, lastErr)
		})
	}
}
