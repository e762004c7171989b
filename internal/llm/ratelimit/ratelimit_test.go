package ratelimit

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dockhardman/General-LLM-Stack/internal/llm/configuration"
	llmerrors "github.com/dockhardman/General-LLM-Stack/internal/llm/errors"
	"github.com/dockhardman/General-LLM-Stack/internal/llm/transport"
)

func localOnlyConfig(tokensPerSecond float64, burst int) *configuration.RateLimitConfig {
	return &configuration.RateLimitConfig{
		Local: configuration.LocalRateLimitConfig{
			Enabled:         true,
			TokensPerSecond: tokensPerSecond,
			BurstSize:       burst,
		},
	}
}

func okHandler(calls *atomic.Int32) transport.Handler {
	return transport.HandlerFunc(func(_ context.Context, _ *transport.Request) (*transport.Response, error) {
		calls.Add(1)
		return &transport.Response{Content: "ok"}, nil
	})
}

func TestNewMiddlewareWithRedis_ValidatesConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  *configuration.RateLimitConfig
	}{
		{"nil config", nil},
		{"negative tokens per second", &configuration.RateLimitConfig{
			Local: configuration.LocalRateLimitConfig{TokensPerSecond: -1},
		}},
		{"negative burst", &configuration.RateLimitConfig{
			Local: configuration.LocalRateLimitConfig{BurstSize: -1},
		}},
		{"negative global rps", &configuration.RateLimitConfig{
			Global: configuration.GlobalRateLimitConfig{RequestsPerSecond: -1},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := NewMiddlewareWithRedis(tt.cfg, nil)
			require.Error(t, err)
		})
	}
}

func TestLocalLimit_AllowsBurstThenRejects(t *testing.T) {
	mw, stop, err := NewMiddlewareWithRedis(localOnlyConfig(1, 2), nil)
	require.NoError(t, err)
	defer stop()

	var calls atomic.Int32
	handler := mw(okHandler(&calls))
	req := &transport.Request{Operation: transport.OpChatCompletion, Provider: "openai", Model: "gpt-4o-mini"}

	for range 2 {
		_, err := handler.Handle(context.Background(), req)
		require.NoError(t, err)
	}

	_, err = handler.Handle(context.Background(), req)
	require.Error(t, err)

	var rlErr *llmerrors.RateLimitError
	require.ErrorAs(t, err, &rlErr)
	assert.True(t, rlErr.LocalLimit)
	assert.GreaterOrEqual(t, rlErr.RetryAfter, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestLocalLimit_KeysAreIndependent(t *testing.T) {
	mw, stop, err := NewMiddlewareWithRedis(localOnlyConfig(1, 1), nil)
	require.NoError(t, err)
	defer stop()

	var calls atomic.Int32
	handler := mw(okHandler(&calls))

	_, err = handler.Handle(context.Background(), &transport.Request{
		Operation: transport.OpChatCompletion, Provider: "openai", Model: "gpt-4o-mini",
	})
	require.NoError(t, err)

	// A different model owns its own bucket.
	_, err = handler.Handle(context.Background(), &transport.Request{
		Operation: transport.OpChatCompletion, Provider: "openai", Model: "gpt-4o",
	})
	require.NoError(t, err)

	assert.Equal(t, int32(2), calls.Load())
}

func TestLocalLimit_DisabledPassesThrough(t *testing.T) {
	mw, stop, err := NewMiddlewareWithRedis(&configuration.RateLimitConfig{}, nil)
	require.NoError(t, err)
	defer stop()

	var calls atomic.Int32
	handler := mw(okHandler(&calls))
	req := &transport.Request{Operation: transport.OpChatCompletion, Provider: "openai", Model: "gpt-4o-mini"}

	for range 10 {
		_, err := handler.Handle(context.Background(), req)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(10), calls.Load())
}

func TestCleanupStale_RemovesIdleLimiters(t *testing.T) {
	rlm := &rateLimitMiddleware{
		localLimiters: make(map[string]*timedLimiter),
		localConfig: configuration.LocalRateLimitConfig{
			Enabled:         true,
			TokensPerSecond: 1,
			BurstSize:       1,
		},
		globalConfig: &configuration.GlobalRateLimitConfig{},
	}

	rlm.getOrCreateLimiter("stale-key")
	rlm.getOrCreateLimiter("fresh-key")

	// Age one limiter past the TTL.
	rlm.localMu.Lock()
	rlm.localLimiters["stale-key"].lastUsed.Store(time.Now().Add(-2 * limiterTTL).UnixNano())
	rlm.localMu.Unlock()

	rlm.cleanupStale()

	rlm.localMu.RLock()
	defer rlm.localMu.RUnlock()
	assert.NotContains(t, rlm.localLimiters, "stale-key")
	assert.Contains(t, rlm.localLimiters, "fresh-key")
}

func TestBuildKey(t *testing.T) {
	rlm := &rateLimitMiddleware{}
	key := rlm.buildKey(&transport.Request{
		Operation: transport.OpEmbedding,
		Provider:  "openai",
		Model:     "text-embedding-3-small",
	})
	assert.Equal(t, "openai:text-embedding-3-small:embedding", key)
}
