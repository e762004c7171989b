package configuration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRoute(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		want    ModelRoute
		wantErr bool
	}{
		{
			name:  "simple_route",
			value: "openai/gpt-3.5-turbo",
			want:  ModelRoute{Provider: "openai", Model: "gpt-3.5-turbo"},
		},
		{
			name:  "org_scoped_model",
			value: "google/models/gemini-1.5-flash",
			want:  ModelRoute{Provider: "google", Model: "models/gemini-1.5-flash"},
		},
		{
			name:    "missing_separator",
			value:   "gpt-4",
			wantErr: true,
		},
		{
			name:    "empty_provider",
			value:   "/gpt-4",
			wantErr: true,
		},
		{
			name:    "empty_model",
			value:   "openai/",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			route, err := ParseRoute(tt.value)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, route)
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, DefaultHTTPTimeoutSeconds*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, DefaultMaxAttempts, cfg.Retry.MaxAttempts)
	assert.True(t, cfg.Retry.UseJitter)
	assert.True(t, cfg.CircuitBreaker.Enabled)
	assert.Equal(t, DefaultFailureThreshold, cfg.CircuitBreaker.FailureThreshold)
	assert.True(t, cfg.RateLimit.Local.Enabled)
	assert.False(t, cfg.RateLimit.Global.Enabled, "global limit requires Redis, off by default")
	assert.False(t, cfg.Cache.Enabled, "cache requires Redis, off by default")
	assert.Equal(t, DefaultCacheMaxAgeRatio*DefaultCacheTTL, cfg.Cache.MaxAge)
	assert.Empty(t, cfg.Providers)
}
