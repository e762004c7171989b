// Package cache provides Redis-based caching middleware for LLM responses.
// It implements atomic check-and-lease to prevent duplicate work across
// instances, with graceful degradation when Redis is unavailable and
// staleness protection through configurable TTL policies.
package cache

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dockhardman/General-LLM-Stack/internal/llm/configuration"
	"github.com/dockhardman/General-LLM-Stack/internal/llm/transport"
)

const (
	defaultPoolSize   = 10
	connectionTimeout = 5 * time.Second

	leaseTimeout       = 30 * time.Second
	retryCheckInterval = 100 * time.Millisecond
	cleanupTimeout     = 5 * time.Second
)

// cacheMiddleware implements Redis-based caching for successful LLM
// responses. Misses trigger atomic lease acquisition so only one instance
// performs the upstream call; Redis failures bypass the cache.
type cacheMiddleware struct {
	client  *redis.Client
	ttl     time.Duration
	maxAge  time.Duration
	enabled bool

	logger *slog.Logger

	hits   atomic.Int64
	misses atomic.Int64
	errors atomic.Int64
}

// NewMiddlewareWithRedis creates caching middleware. If client is nil and
// caching is enabled, a Redis client is created from cfg; connection
// failures disable caching rather than returning an error.
func NewMiddlewareWithRedis(ctx context.Context, cfg configuration.CacheConfig, client *redis.Client) (transport.Middleware, error) {
	if client == nil && cfg.Enabled {
		client = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			PoolSize: defaultPoolSize,
		})

		timeoutCtx, cancel := context.WithTimeout(ctx, connectionTimeout)
		defer cancel()
		if err := client.Ping(timeoutCtx).Err(); err != nil {
			slog.Warn("redis connection failed, cache disabled", "error", err)
			cfg.Enabled = false
		}
	}

	cm := &cacheMiddleware{
		client:  client,
		ttl:     cfg.TTL,
		maxAge:  cfg.MaxAge,
		enabled: cfg.Enabled,
		logger:  slog.Default().With("component", "cache"),
	}

	return cm.middleware(), nil
}

func (c *cacheMiddleware) middleware() transport.Middleware {
	return func(next transport.Handler) transport.Handler {
		return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			if !c.enabled || req.IdempotencyKey == "" {
				return next.Handle(ctx, req)
			}

			key, keyErr := c.buildKey(req)
			if keyErr != nil {
				c.logger.Warn("cache key validation failed", "error", keyErr)
				return next.Handle(ctx, req)
			}

			leaseKey := key + ":lease"
			status, cached, acquired, err := c.atomicCheckAndLease(ctx, key, leaseKey, leaseTimeout)

			switch status {
			case cacheHit:
				c.hits.Add(1)
				c.logger.Debug("cache hit",
					"key", key,
					"provider", req.Provider,
					"model", req.Model,
					"operation", req.Operation)
				return cached, nil

			case leaseAcquired:
				c.misses.Add(1)

			case leaseFailed:
				c.misses.Add(1)
				// A lease error means Redis itself failed; degrade to an
				// uncached upstream call without waiting on a lease nobody
				// holds.
				if err != nil {
					break
				}
				// Another instance holds the lease; wait briefly and retry once.
				select {
				case <-time.After(retryCheckInterval):
					if retryResp, retryErr := c.get(ctx, key); retryErr == nil && retryResp != nil {
						c.hits.Add(1)
						c.logger.Debug("cache hit after lease wait", "key", key)
						return retryResp, nil
					}
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			}

			if err != nil {
				c.errors.Add(1)
				c.logger.Warn("cache lease operation error", "error", err, "key", key)
			}

			// Release the lease even if the request context was cancelled.
			defer func() {
				if acquired && c.client != nil {
					cleanupCtx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
					defer cancel()
					if delErr := c.client.Del(cleanupCtx, leaseKey).Err(); delErr != nil {
						c.logger.Warn("lease cleanup error", "error", delErr, "key", leaseKey)
					}
				}
			}()

			resp, err := next.Handle(ctx, req)
			if err != nil {
				// Only successful responses are cached.
				return nil, err
			}

			if resp != nil {
				if cacheErr := c.set(ctx, key, resp, req); cacheErr != nil {
					c.logger.Warn("cache set error", "error", cacheErr, "key", key)
				}
			}

			return resp, nil
		})
	}
}
