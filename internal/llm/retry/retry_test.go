package retry

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dockhardman/General-LLM-Stack/internal/llm/configuration"
	llmerrors "github.com/dockhardman/General-LLM-Stack/internal/llm/errors"
	"github.com/dockhardman/General-LLM-Stack/internal/llm/transport"
)

func testConfig() configuration.RetryConfig {
	return configuration.RetryConfig{
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      2.0,
	}
}

func retryableErr() error {
	return &llmerrors.ProviderError{
		Provider:   "openai",
		StatusCode: 503,
		Message:    "service unavailable",
		Type:       llmerrors.ErrorTypeProvider,
	}
}

func TestNewMiddleware_ValidatesConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*configuration.RetryConfig)
	}{
		{"zero attempts", func(c *configuration.RetryConfig) { c.MaxAttempts = 0 }},
		{"zero initial interval", func(c *configuration.RetryConfig) { c.InitialInterval = 0 }},
		{"max below initial", func(c *configuration.RetryConfig) { c.MaxInterval = time.Microsecond }},
		{"multiplier below one", func(c *configuration.RetryConfig) { c.Multiplier = 0.5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			_, err := NewMiddleware(cfg)
			require.Error(t, err)
		})
	}
}

func TestRetryMiddleware_SuccessFirstAttempt(t *testing.T) {
	mw, err := NewMiddleware(testConfig())
	require.NoError(t, err)

	var calls atomic.Int32
	handler := mw(transport.HandlerFunc(func(_ context.Context, _ *transport.Request) (*transport.Response, error) {
		calls.Add(1)
		return &transport.Response{Content: "ok"}, nil
	}))

	resp, err := handler.Handle(context.Background(), &transport.Request{Provider: "openai", Model: "gpt-4o-mini"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRetryMiddleware_RetriesTransientFailure(t *testing.T) {
	mw, err := NewMiddleware(testConfig())
	require.NoError(t, err)

	var calls atomic.Int32
	handler := mw(transport.HandlerFunc(func(_ context.Context, _ *transport.Request) (*transport.Response, error) {
		if calls.Add(1) < 3 {
			return nil, retryableErr()
		}
		return &transport.Response{Content: "recovered"}, nil
	}))

	resp, err := handler.Handle(context.Background(), &transport.Request{Provider: "openai", Model: "gpt-4o-mini"})
	require.NoError(t, err)
	assert.Equal(t, "recovered", resp.Content)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetryMiddleware_ExhaustsAttempts(t *testing.T) {
	mw, err := NewMiddleware(testConfig())
	require.NoError(t, err)

	var calls atomic.Int32
	handler := mw(transport.HandlerFunc(func(_ context.Context, _ *transport.Request) (*transport.Response, error) {
		calls.Add(1)
		return nil, retryableErr()
	}))

	_, err = handler.Handle(context.Background(), &transport.Request{Provider: "openai", Model: "gpt-4o-mini"})
	require.ErrorIs(t, err, llmerrors.ErrMaxRetriesExceeded)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetryMiddleware_NonRetryableFailsFast(t *testing.T) {
	mw, err := NewMiddleware(testConfig())
	require.NoError(t, err)

	authErr := &llmerrors.ProviderError{
		Provider:   "openai",
		StatusCode: 401,
		Message:    "invalid api key",
		Type:       llmerrors.ErrorTypeAuth,
	}

	var calls atomic.Int32
	handler := mw(transport.HandlerFunc(func(_ context.Context, _ *transport.Request) (*transport.Response, error) {
		calls.Add(1)
		return nil, authErr
	}))

	_, err = handler.Handle(context.Background(), &transport.Request{Provider: "openai", Model: "gpt-4o-mini"})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())

	var provErr *llmerrors.ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, llmerrors.ErrorTypeAuth, provErr.Type)
}

func TestRetryMiddleware_ContextCancelledBeforeStart(t *testing.T) {
	mw, err := NewMiddleware(testConfig())
	require.NoError(t, err)

	handler := mw(transport.HandlerFunc(func(_ context.Context, _ *transport.Request) (*transport.Response, error) {
		t.Fatal("handler must not be called")
		return nil, nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = handler.Handle(ctx, &transport.Request{Provider: "openai", Model: "gpt-4o-mini"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestExponentialBackoff(t *testing.T) {
	cfg := configuration.RetryConfig{
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     time.Second,
		Multiplier:      2.0,
	}

	assert.Equal(t, time.Duration(0), ExponentialBackoff(0, cfg))
	assert.Equal(t, 100*time.Millisecond, ExponentialBackoff(1, cfg))
	assert.Equal(t, 200*time.Millisecond, ExponentialBackoff(2, cfg))
	assert.Equal(t, 400*time.Millisecond, ExponentialBackoff(3, cfg))
	// Growth caps at MaxInterval.
	assert.Equal(t, time.Second, ExponentialBackoff(10, cfg))
}

func TestExponentialBackoff_JitterBounds(t *testing.T) {
	cfg := configuration.RetryConfig{
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     time.Second,
		Multiplier:      2.0,
		UseJitter:       true,
	}

	for range 50 {
		backoff := ExponentialBackoff(3, cfg)
		assert.GreaterOrEqual(t, backoff, time.Duration(0))
		assert.LessOrEqual(t, backoff, 400*time.Millisecond)
	}
}

func TestExtractRetryAfter(t *testing.T) {
	assert.Equal(t, time.Duration(0), extractRetryAfter(errors.New("plain")))

	provErr := &llmerrors.ProviderError{Provider: "openai", StatusCode: 429, RetryAfter: 7}
	assert.Equal(t, 7*time.Second, extractRetryAfter(provErr))

	rlErr := &llmerrors.RateLimitError{Provider: "openai", RetryAfter: 3}
	assert.Equal(t, 3*time.Second, extractRetryAfter(rlErr))
}
