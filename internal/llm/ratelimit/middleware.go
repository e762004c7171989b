// Package ratelimit provides dual-layer rate limiting for LLM request
// processing: a local token-bucket limiter backed by an optional Redis
// fixed-window limiter shared across instances. When Redis is unreachable
// the middleware degrades to local-only limiting rather than failing open.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dockhardman/General-LLM-Stack/internal/llm/configuration"
	"github.com/dockhardman/General-LLM-Stack/internal/llm/transport"
)

const (
	// cleanupInterval determines how often stale local limiters are swept.
	cleanupInterval = 1 * time.Hour

	// limiterTTL is the time-to-live for unused local limiters.
	limiterTTL = 1 * time.Hour

	redisReadTimeout  = 5 * time.Second
	redisWriteTimeout = 5 * time.Second
	redisPoolSize     = 10
)

var (
	errNilConfig                 = errors.New("rate limit config must not be nil")
	errNegativeTokensPerSecond   = errors.New("tokensPerSecond must not be negative")
	errNegativeBurstSize         = errors.New("burstSize must not be negative")
	errNegativeRequestsPerSecond = errors.New("requestsPerSecond must not be negative")
)

// rateLimitMiddleware combines local token buckets with an optional
// distributed fixed-window limiter.
type rateLimitMiddleware struct {
	localMu       sync.RWMutex
	localLimiters map[string]*timedLimiter
	localConfig   configuration.LocalRateLimitConfig

	globalClient *redis.Client
	globalConfig *configuration.GlobalRateLimitConfig

	cleanupStop chan struct{}
	cleanupDone sync.WaitGroup

	logger *slog.Logger
}

// NewMiddlewareWithRedis creates rate limiting middleware. If global limiting
// is enabled and client is nil, a Redis client is created from the
// configuration; connection failures switch the middleware into degraded
// local-only mode instead of returning an error.
//
// A background goroutine sweeps stale local limiters every hour for the
// lifetime of the middleware. Call the returned stop function on shutdown.
func NewMiddlewareWithRedis(
	cfg *configuration.RateLimitConfig,
	client *redis.Client,
) (transport.Middleware, func(), error) {
	if err := validateConfig(cfg); err != nil {
		return nil, nil, err
	}

	rlm := &rateLimitMiddleware{
		localLimiters: make(map[string]*timedLimiter),
		localConfig:   cfg.Local,
		globalConfig:  &cfg.Global,
		cleanupStop:   make(chan struct{}),
		logger:        slog.Default().With("component", "ratelimit"),
	}

	if cfg.Global.Enabled {
		if client == nil {
			client = redis.NewClient(&redis.Options{
				Addr:         cfg.Global.RedisAddr,
				Password:     cfg.Global.RedisPassword,
				DB:           cfg.Global.RedisDB,
				DialTimeout:  cfg.Global.ConnectTimeout,
				ReadTimeout:  redisReadTimeout,
				WriteTimeout: redisWriteTimeout,
				PoolSize:     redisPoolSize,
			})

			ctx, cancel := context.WithTimeout(context.Background(), cfg.Global.ConnectTimeout)
			defer cancel()
			if err := client.Ping(ctx).Err(); err != nil {
				rlm.logger.Warn("redis connection failed, using local-only rate limiting", "error", err)
				rlm.globalConfig.DegradedMode.Store(true)
			}
		}
		rlm.globalClient = client
	}

	rlm.startCleanup()

	return rlm.middleware(), rlm.stopCleanup, nil
}

func validateConfig(cfg *configuration.RateLimitConfig) error {
	if cfg == nil {
		return errNilConfig
	}
	if cfg.Local.TokensPerSecond < 0 {
		return fmt.Errorf("%w (got %f)", errNegativeTokensPerSecond, cfg.Local.TokensPerSecond)
	}
	if cfg.Local.BurstSize < 0 {
		return fmt.Errorf("%w (got %d)", errNegativeBurstSize, cfg.Local.BurstSize)
	}
	if cfg.Global.RequestsPerSecond < 0 {
		return fmt.Errorf("%w (got %d)", errNegativeRequestsPerSecond, cfg.Global.RequestsPerSecond)
	}
	return nil
}

func (r *rateLimitMiddleware) middleware() transport.Middleware {
	return func(next transport.Handler) transport.Handler {
		return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			key := r.buildKey(req)

			// Fast path: local token bucket.
			if r.localConfig.Enabled {
				if err := r.checkLocalLimit(key); err != nil {
					return nil, err
				}
			}

			// Distributed fixed window, skipped while degraded.
			if r.globalConfig.Enabled && !r.globalConfig.DegradedMode.Load() {
				if err := r.handleGlobalLimit(ctx, key); err != nil {
					return nil, err
				}
			}

			return next.Handle(ctx, req)
		})
	}
}

// buildKey constructs a provider:model:operation rate limiting key.
func (r *rateLimitMiddleware) buildKey(req *transport.Request) string {
	return fmt.Sprintf("%s:%s:%s", req.Provider, req.Model, req.Operation)
}

// handleGlobalLimit runs the distributed check, switching to degraded mode
// on Redis connectivity errors instead of failing the request.
func (r *rateLimitMiddleware) handleGlobalLimit(ctx context.Context, key string) error {
	err := r.checkGlobalLimit(ctx, key)
	if err == nil {
		return nil
	}

	if !isRedisError(err) {
		return err
	}

	r.logger.Warn("redis error, switching to degraded mode", "error", err)
	r.globalConfig.DegradedMode.Store(true)
	return nil
}

// isRedisError reports whether err is a Redis connectivity failure rather
// than a rate limit rejection.
func isRedisError(err error) bool {
	if errors.Is(err, redis.ErrClosed) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func (r *rateLimitMiddleware) startCleanup() {
	r.cleanupDone.Add(1)
	go func() {
		defer r.cleanupDone.Done()
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.cleanupStale()
			case <-r.cleanupStop:
				return
			}
		}
	}()
}

func (r *rateLimitMiddleware) stopCleanup() {
	close(r.cleanupStop)
	r.cleanupDone.Wait()
}

// cleanupStale removes local limiters that have been idle past their TTL.
func (r *rateLimitMiddleware) cleanupStale() {
	cutoff := time.Now().Add(-limiterTTL).UnixNano()

	r.localMu.Lock()
	defer r.localMu.Unlock()
	for key, tl := range r.localLimiters {
		if tl.lastUsed.Load() < cutoff {
			delete(r.localLimiters, key)
		}
	}
}
