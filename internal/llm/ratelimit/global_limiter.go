package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	llmerrors "github.com/dockhardman/General-LLM-Stack/internal/llm/errors"
)

const (
	millisecondsPerSecond = 1000
	minRetryAfterSeconds  = 1
	maxRetryAfterSeconds  = 3600
)

// globalLimitScript implements a fixed 1-second window counter atomically.
// Counter initialization, increment, and TTL management happen in a single
// Redis operation to avoid race conditions between instances.
var globalLimitScript = redis.NewScript(`
	local key = KEYS[1]
	local window = tonumber(ARGV[1])
	local limit = tonumber(ARGV[2])

	local current = redis.call('GET', key)
	if current == false then
		redis.call('SET', key, 1, 'PX', window)
		return {1, limit - 1}
	end

	local count = tonumber(current)
	if count < limit then
		local newCount = redis.call('INCR', key)
		local ttl = redis.call('PTTL', key)
		if ttl == -1 then
			redis.call('PEXPIRE', key, window)
		end
		return {1, limit - newCount}
	else
		local ttl = redis.call('PTTL', key)
		return {0, ttl}
	end
`)

// checkGlobalLimit enforces the distributed fixed-window limit. On rejection
// the returned RateLimitError carries retry timing derived from the window
// TTL. Malformed Redis responses switch the middleware into degraded mode.
func (r *rateLimitMiddleware) checkGlobalLimit(ctx context.Context, key string) error {
	if r.globalClient == nil {
		return nil
	}

	limit := int64(r.globalConfig.RequestsPerSecond)
	if limit <= 0 {
		return nil
	}

	globalKey := fmt.Sprintf("rl:global:%s", key)
	result, err := globalLimitScript.Run(ctx, r.globalClient, []string{globalKey},
		int64(millisecondsPerSecond), limit).Result()
	if err != nil {
		return fmt.Errorf("global rate limit check failed: %w", err)
	}

	res, ok := result.([]any)
	if !ok || len(res) < 2 {
		r.logger.Warn("invalid redis response format, switching to degraded mode", "response", result)
		r.globalConfig.DegradedMode.Store(true)
		return nil
	}

	allowed, ok := res[0].(int64)
	if !ok {
		r.logger.Warn("invalid redis allowed value, switching to degraded mode", "allowed", res[0])
		r.globalConfig.DegradedMode.Store(true)
		return nil
	}

	if allowed == 0 {
		retryAfterMs, ok := res[1].(int64)
		if !ok || retryAfterMs <= 0 {
			retryAfterMs = int64(time.Second / time.Millisecond)
		}

		retryAfterSecs := int(retryAfterMs / millisecondsPerSecond)
		if retryAfterSecs < minRetryAfterSeconds {
			retryAfterSecs = minRetryAfterSeconds
		}
		if retryAfterSecs > maxRetryAfterSeconds {
			retryAfterSecs = maxRetryAfterSeconds
		}

		return &llmerrors.RateLimitError{
			Provider:   "global",
			Limit:      int(limit),
			RetryAfter: retryAfterSecs,
		}
	}

	return nil
}
