package ratelimit

import (
	"math"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	llmerrors "github.com/dockhardman/General-LLM-Stack/internal/llm/errors"
)

// timedLimiter wraps a token bucket with an atomic last-use timestamp so
// stale limiters can be swept without holding locks across the map.
type timedLimiter struct {
	limiter  *rate.Limiter
	lastUsed atomic.Int64
}

// checkLocalLimit enforces the per-key token bucket. On rejection it
// computes a retry delay without consuming a token.
func (r *rateLimitMiddleware) checkLocalLimit(key string) error {
	limiter := r.getOrCreateLimiter(key)

	if !limiter.Allow() {
		reservation := limiter.Reserve()
		delay := reservation.Delay()
		reservation.Cancel() // do not leak bucket capacity for rejected requests

		retryAfter := int(math.Ceil(delay.Seconds()))
		if retryAfter < 1 {
			retryAfter = 1
		}

		return &llmerrors.RateLimitError{
			Provider:   "local",
			Limit:      int(r.localConfig.TokensPerSecond),
			RetryAfter: retryAfter,
			LocalLimit: true,
		}
	}

	return nil
}

// getOrCreateLimiter returns the token bucket for key, creating it on first
// use. Double-checked locking keeps the hot path on the read lock.
func (r *rateLimitMiddleware) getOrCreateLimiter(key string) *rate.Limiter {
	now := time.Now().UnixNano()

	r.localMu.RLock()
	if tl, ok := r.localLimiters[key]; ok {
		tl.lastUsed.Store(now)
		lim := tl.limiter
		r.localMu.RUnlock()
		return lim
	}
	r.localMu.RUnlock()

	r.localMu.Lock()
	defer r.localMu.Unlock()
	if tl, ok := r.localLimiters[key]; ok {
		tl.lastUsed.Store(now)
		return tl.limiter
	}

	tl := &timedLimiter{
		limiter: rate.NewLimiter(rate.Limit(r.localConfig.TokensPerSecond), r.localConfig.BurstSize),
	}
	tl.lastUsed.Store(now)
	r.localLimiters[key] = tl
	return tl.limiter
}
