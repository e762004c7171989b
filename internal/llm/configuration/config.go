// Package configuration holds the settings for the resilient LLM provider
// client: provider endpoints and credentials, model routing, and the knobs
// for retry, rate limiting, caching, and circuit breaking.
package configuration

import (
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// Config holds comprehensive configuration for the LLM client.
type Config struct {
	// HTTP client configuration.
	HTTPTimeout time.Duration `json:"http_timeout"`
	HTTPClient  *http.Client  `json:"-"`

	// Provider configurations keyed by provider name.
	Providers map[string]ProviderConfig `json:"providers"`

	// Routes maps public deploy names to provider models. Requests name a
	// deploy; the client resolves it to a provider and model before routing.
	Routes map[string]ModelRoute `json:"routes"`

	// Retry configuration.
	Retry RetryConfig `json:"retry"`

	// Circuit breaker configuration.
	CircuitBreaker CircuitBreakerConfig `json:"circuit_breaker"`

	// Rate limiting configuration.
	RateLimit RateLimitConfig `json:"rate_limit"`

	// Cache configuration.
	Cache CacheConfig `json:"cache"`

	// Observability configuration.
	Observability ObservabilityConfig `json:"observability"`
}

// ModelRoute resolves a deploy name to a concrete provider model.
type ModelRoute struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// ParseRoute parses a "provider/model" route value. The model part may
// itself contain slashes (org-scoped model identifiers).
func ParseRoute(value string) (ModelRoute, error) {
	provider, model, ok := strings.Cut(value, "/")
	if !ok || provider == "" || model == "" {
		return ModelRoute{}, fmt.Errorf("invalid model route %q, want provider/model", value)
	}
	return ModelRoute{Provider: provider, Model: model}, nil
}

// ProviderConfig holds provider-specific configuration and authentication.
type ProviderConfig struct {
	Endpoint  string            `json:"endpoint"`
	APIKey    string            `json:"-"` // Sensitive, not serialized
	APIKeyEnv string            `json:"api_key_env"`
	Timeout   time.Duration     `json:"timeout"`
	Headers   map[string]string `json:"headers"`
}

// RetryConfig controls retry behavior for failed LLM operations.
// Exponential backoff with jitter, bounded by attempts and elapsed time.
type RetryConfig struct {
	MaxAttempts     int           `json:"max_attempts"`     // Maximum attempts including the first
	MaxElapsedTime  time.Duration `json:"max_elapsed_time"` // Total time budget for all attempts
	InitialInterval time.Duration `json:"initial_interval"` // Starting backoff duration
	MaxInterval     time.Duration `json:"max_interval"`     // Maximum backoff duration
	Multiplier      float64       `json:"multiplier"`       // Exponential backoff multiplier
	UseJitter       bool          `json:"use_jitter"`       // Enable full jitter randomization
}

// CircuitBreakerConfig controls circuit breaker behavior for provider protection.
type CircuitBreakerConfig struct {
	Enabled          bool          `json:"enabled"`
	FailureThreshold int           `json:"failure_threshold"`
	SuccessThreshold int           `json:"success_threshold"`
	OpenTimeout      time.Duration `json:"open_timeout"`
	HalfOpenProbes   int           `json:"half_open_probes"`
	MaxBreakers      int           `json:"max_breakers"` // Cap on tracked provider:model breakers
}

// RateLimitConfig combines in-memory token buckets with an optional
// Redis-backed fixed-window global limit.
type RateLimitConfig struct {
	Local  LocalRateLimitConfig  `json:"local"`
	Global GlobalRateLimitConfig `json:"global"`
}

// LocalRateLimitConfig for in-memory token buckets.
type LocalRateLimitConfig struct {
	Enabled         bool    `json:"enabled"`
	TokensPerSecond float64 `json:"tokens_per_second"`
	BurstSize       int     `json:"burst_size"`
}

// GlobalRateLimitConfig for Redis-based fixed-window rate limiting.
// DegradedMode flips when Redis becomes unreachable; the limiter then falls
// back to local-only enforcement until Redis recovers.
type GlobalRateLimitConfig struct {
	Enabled           bool          `json:"enabled"`
	RequestsPerSecond int           `json:"requests_per_second"`
	RedisAddr         string        `json:"redis_addr"`
	RedisPassword     string        `json:"-"` // Sensitive
	RedisDB           int           `json:"redis_db"`
	ConnectTimeout    time.Duration `json:"connect_timeout"`
	DegradedMode      atomic.Bool   `json:"-"`
}

// CacheConfig controls Redis-based response caching.
// Successful responses only; keyed by idempotency key with TTL and a
// max-age ceiling for staleness protection.
type CacheConfig struct {
	Enabled       bool          `json:"enabled"`
	TTL           time.Duration `json:"ttl"`
	MaxAge        time.Duration `json:"max_age"`
	RedisAddr     string        `json:"redis_addr"`
	RedisPassword string        `json:"-"` // Sensitive
	RedisDB       int           `json:"redis_db"`
}

// ObservabilityConfig controls request logging detail.
type ObservabilityConfig struct {
	LogLevel      string `json:"log_level"`
	RedactPrompts bool   `json:"redact_prompts"`
}
