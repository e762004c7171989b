package configuration

import "time"

// HTTP and connection constants.
const (
	DefaultMaxIdleConns       = 100
	DefaultIdleTimeoutSeconds = 90
	DefaultTLSTimeoutSeconds  = 10
	DefaultHTTPTimeoutSeconds = 60
)

// Retry and circuit breaker constants.
const (
	DefaultMaxAttempts       = 3
	DefaultMaxElapsedTime    = 45 * time.Second
	DefaultInitialInterval   = 250 * time.Millisecond
	DefaultMaxInterval       = 5 * time.Second
	DefaultBackoffMultiplier = 2.0
	DefaultFailureThreshold  = 5
	DefaultSuccessThreshold  = 2
	DefaultOpenTimeout       = 30 * time.Second
	DefaultMaxBreakers       = 1000
)

// Rate limiting constants.
const (
	DefaultTokensPerSecond = 10
	DefaultBurstSize       = 20
	DefaultConnectTimeout  = 5 * time.Second
)

// Cache constants.
const (
	DefaultCacheTTL         = 24 * time.Hour
	DefaultCacheMaxAgeRatio = 7 // MaxAge = 7x TTL for staleness protection
)

// DefaultConfig returns production-ready configuration with sensible
// defaults. Providers and routes must be supplied by the caller.
func DefaultConfig() *Config {
	return &Config{
		HTTPTimeout: DefaultHTTPTimeoutSeconds * time.Second,
		Retry: RetryConfig{
			MaxAttempts:     DefaultMaxAttempts,
			MaxElapsedTime:  DefaultMaxElapsedTime,
			InitialInterval: DefaultInitialInterval,
			MaxInterval:     DefaultMaxInterval,
			Multiplier:      DefaultBackoffMultiplier,
			UseJitter:       true,
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:          true,
			FailureThreshold: DefaultFailureThreshold,
			SuccessThreshold: DefaultSuccessThreshold,
			OpenTimeout:      DefaultOpenTimeout,
			HalfOpenProbes:   1,
			MaxBreakers:      DefaultMaxBreakers,
		},
		RateLimit: RateLimitConfig{
			Local: LocalRateLimitConfig{
				Enabled:         true,
				TokensPerSecond: DefaultTokensPerSecond,
				BurstSize:       DefaultBurstSize,
			},
			Global: GlobalRateLimitConfig{
				Enabled:           false,
				RequestsPerSecond: DefaultTokensPerSecond,
				ConnectTimeout:    DefaultConnectTimeout,
			},
		},
		Cache: CacheConfig{
			Enabled: false,
			TTL:     DefaultCacheTTL,
			MaxAge:  DefaultCacheMaxAgeRatio * DefaultCacheTTL,
		},
		Observability: ObservabilityConfig{
			LogLevel:      "info",
			RedactPrompts: true,
		},
	}
}
