package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_TypedErrors(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantType      ErrorType
		wantCode      string
		wantRetryable bool
	}{
		{
			name: "provider_error_rate_limit",
			err: &ProviderError{
				Provider:   "openai",
				StatusCode: http.StatusTooManyRequests,
				Message:    "Rate limit reached",
				Code:       "rate_limit_exceeded",
				Type:       ErrorTypeRateLimit,
				RetryAfter: 30,
			},
			wantType:      ErrorTypeRateLimit,
			wantCode:      "rate_limit_exceeded",
			wantRetryable: true,
		},
		{
			name: "provider_error_auth",
			err: &ProviderError{
				Provider:   "anthropic",
				StatusCode: http.StatusUnauthorized,
				Message:    "invalid x-api-key",
				Type:       ErrorTypeAuth,
			},
			wantType:      ErrorTypeAuth,
			wantRetryable: false,
		},
		{
			name:          "rate_limit_error",
			err:           &RateLimitError{Provider: "local", RetryAfter: 2, LocalLimit: true},
			wantType:      ErrorTypeRateLimit,
			wantCode:      "RATE_LIMIT",
			wantRetryable: true,
		},
		{
			name:          "circuit_breaker_error",
			err:           &CircuitBreakerError{Provider: "openai", Model: "gpt-4", State: "open"},
			wantType:      ErrorTypeCircuitBreaker,
			wantCode:      "CIRCUIT_BREAKER",
			wantRetryable: true,
		},
		{
			name:          "validation_error",
			err:           &ValidationError{Field: "model", Message: "required"},
			wantType:      ErrorTypeValidation,
			wantCode:      "VALIDATION",
			wantRetryable: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classified := Classify(tt.err)
			require.NotNil(t, classified)
			assert.Equal(t, tt.wantType, classified.Type)
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, classified.Code)
			}
			assert.Equal(t, tt.wantRetryable, classified.Retryable)
			assert.ErrorIs(t, classified, tt.err)
		})
	}
}

func TestClassify_SentinelErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantType ErrorType
	}{
		{name: "rate_limit", err: ErrRateLimitExceeded, wantType: ErrorTypeRateLimit},
		{name: "circuit_breaker", err: ErrCircuitBreakerOpen, wantType: ErrorTypeCircuitBreaker},
		{name: "provider_unavailable", err: ErrProviderUnavailable, wantType: ErrorTypeProvider},
		{name: "unknown_model", err: ErrUnknownModel, wantType: ErrorTypeNotFound},
		{name: "unknown_provider", err: ErrUnknownProvider, wantType: ErrorTypeNotFound},
		{name: "unsupported_operation", err: ErrUnsupportedOperation, wantType: ErrorTypeValidation},
		{name: "wrapped_sentinel", err: fmt.Errorf("embeddings: %w", ErrUnknownModel), wantType: ErrorTypeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classified := Classify(tt.err)
			require.NotNil(t, classified)
			assert.Equal(t, tt.wantType, classified.Type)
		})
	}
}

func TestClassify_StringPatterns(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantType ErrorType
	}{
		{name: "timeout", err: errors.New("context deadline exceeded"), wantType: ErrorTypeTimeout},
		{name: "auth", err: errors.New("401 Unauthorized"), wantType: ErrorTypeAuth},
		{name: "quota", err: errors.New("monthly quota exhausted"), wantType: ErrorTypeQuota},
		{name: "network", err: errors.New("connection refused"), wantType: ErrorTypeNetwork},
		{name: "unknown", err: errors.New("something odd"), wantType: ErrorTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classified := Classify(tt.err)
			require.NotNil(t, classified)
			assert.Equal(t, tt.wantType, classified.Type)
		})
	}
}

func TestClassify_Idempotent(t *testing.T) {
	original := Classify(ErrRateLimitExceeded)
	again := Classify(original)
	assert.Same(t, original, again)
}

func TestClassify_NilError(t *testing.T) {
	assert.Nil(t, Classify(nil))
}

func TestClassifiedError_HTTPStatus(t *testing.T) {
	tests := []struct {
		errType ErrorType
		want    int
	}{
		{ErrorTypeValidation, http.StatusUnprocessableEntity},
		{ErrorTypeNotFound, http.StatusNotFound},
		{ErrorTypeAuth, http.StatusUnauthorized},
		{ErrorTypePermission, http.StatusForbidden},
		{ErrorTypeRateLimit, http.StatusTooManyRequests},
		{ErrorTypeQuota, http.StatusTooManyRequests},
		{ErrorTypeTimeout, http.StatusGatewayTimeout},
		{ErrorTypeProvider, http.StatusBadGateway},
		{ErrorTypeCircuitBreaker, http.StatusBadGateway},
		{ErrorTypeUnknown, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.errType), func(t *testing.T) {
			ce := &ClassifiedError{Type: tt.errType}
			assert.Equal(t, tt.want, ce.HTTPStatus())
		})
	}
}

func TestIsRetryableError(t *testing.T) {
	assert.False(t, IsRetryableError(nil))
	assert.True(t, IsRetryableError(ErrRateLimitExceeded))
	assert.True(t, IsRetryableError(ErrCircuitBreakerOpen))
	assert.True(t, IsRetryableError(&ProviderError{Type: ErrorTypeTimeout}))
	assert.False(t, IsRetryableError(&ProviderError{Type: ErrorTypeAuth}))
	assert.False(t, IsRetryableError(errors.New("arbitrary")))
}

func TestGetRetryAfter(t *testing.T) {
	assert.Equal(t, 0, GetRetryAfter(nil))
	assert.Equal(t, 7, GetRetryAfter(&RateLimitError{RetryAfter: 7}))
	assert.Equal(t, 12, GetRetryAfter(&ProviderError{RetryAfter: 12}))
	assert.Equal(t, 0, GetRetryAfter(errors.New("plain")))
}
