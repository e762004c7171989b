package retry

import (
	"errors"
	"math/rand/v2"
	"time"

	"github.com/dockhardman/General-LLM-Stack/internal/llm/configuration"
	llmerrors "github.com/dockhardman/General-LLM-Stack/internal/llm/errors"
)

// calculateBackoff computes the retry delay for the given attempt.
// Provider Retry-After guidance takes precedence over exponential backoff.
func (r *retryMiddleware) calculateBackoff(attempt int, err error) time.Duration {
	if retryAfter := extractRetryAfter(err); retryAfter > 0 {
		return retryAfter
	}
	return ExponentialBackoff(attempt, r.config)
}

// extractRetryAfter reads a provider-specified retry delay from the error
// chain, preferring explicit rate limit errors over generic provider errors.
func extractRetryAfter(err error) time.Duration {
	var rateLimitErr *llmerrors.RateLimitError
	if errors.As(err, &rateLimitErr) && rateLimitErr.RetryAfter > 0 {
		return time.Duration(rateLimitErr.RetryAfter) * time.Second
	}

	var providerErr *llmerrors.ProviderError
	if errors.As(err, &providerErr) && providerErr.RetryAfter > 0 {
		return time.Duration(providerErr.RetryAfter) * time.Second
	}

	return 0
}

// ExponentialBackoff calculates the delay before the given attempt using
// exponential growth capped at MaxInterval, with optional full jitter.
// Thread-safe via math/rand/v2. Returns zero for non-positive attempts.
func ExponentialBackoff(attempt int, config configuration.RetryConfig) time.Duration {
	if attempt <= 0 {
		return 0
	}

	backoff := config.InitialInterval
	if backoff <= 0 {
		backoff = time.Millisecond
	}
	for i := 1; i < attempt; i++ {
		multiplier := config.Multiplier
		if multiplier < 1.0 {
			multiplier = 1.0
		}
		backoff = time.Duration(float64(backoff) * multiplier)
		if backoff > config.MaxInterval {
			backoff = config.MaxInterval
			break
		}
	}

	if config.UseJitter {
		// Full jitter: uniform in [0, backoff].
		jitterMs := rand.Int64N(backoff.Milliseconds() + 1) // #nosec G404 -- non-cryptographic jitter is appropriate here
		return time.Duration(jitterMs) * time.Millisecond
	}

	return backoff
}
