package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ClassifiedError is the normalized form of any LLM operation failure.
// It carries the classified type, a stable machine code, retry guidance, and
// structured details, and maps onto the HTTP error envelope returned by the
// API server.
type ClassifiedError struct {
	Type      ErrorType      `json:"type"`
	Message   string         `json:"message"`
	Code      string         `json:"code"`
	Retryable bool           `json:"retryable"`
	Details   map[string]any `json:"details,omitempty"`
	Cause     error          `json:"-"`
}

// Error returns the classified message with its machine code.
func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is / errors.As chains.
func (e *ClassifiedError) Unwrap() error { return e.Cause }

// HTTPStatus maps the classified type to the status code the API server
// should answer with.
func (e *ClassifiedError) HTTPStatus() int {
	switch e.Type {
	case ErrorTypeValidation:
		return http.StatusUnprocessableEntity
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeAuth:
		return http.StatusUnauthorized
	case ErrorTypePermission:
		return http.StatusForbidden
	case ErrorTypeRateLimit, ErrorTypeQuota:
		return http.StatusTooManyRequests
	case ErrorTypeTimeout:
		return http.StatusGatewayTimeout
	case ErrorTypeProvider, ErrorTypeNetwork, ErrorTypeCircuitBreaker:
		return http.StatusBadGateway
	case ErrorTypeContent:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Classify transforms LLM operation errors into a ClassifiedError with retry
// guidance. Examines error types, sentinel errors, and message patterns to
// determine classification, retry behavior, and structured context.
func Classify(err error) *ClassifiedError {
	if err == nil {
		return nil
	}

	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified
	}

	if ce := classifyTypedErrors(err); ce != nil {
		return ce
	}

	if ce := classifySentinelErrors(err); ce != nil {
		return ce
	}

	return classifyStringPatternErrors(err)
}

// classifyTypedErrors handles strongly-typed error classification.
func classifyTypedErrors(err error) *ClassifiedError {
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return &ClassifiedError{
			Type:      providerErr.Type,
			Message:   providerErr.Message,
			Code:      providerErr.Code,
			Retryable: providerErr.IsRetryable(),
			Details: map[string]any{
				"provider":    providerErr.Provider,
				"status_code": providerErr.StatusCode,
			},
			Cause: err,
		}
	}

	var rateLimitErr *RateLimitError
	if errors.As(err, &rateLimitErr) {
		return &ClassifiedError{
			Type:      ErrorTypeRateLimit,
			Message:   rateLimitErr.Error(),
			Code:      "RATE_LIMIT",
			Retryable: true,
			Details: map[string]any{
				"provider":    rateLimitErr.Provider,
				"retry_after": rateLimitErr.RetryAfter,
			},
			Cause: err,
		}
	}

	var cbErr *CircuitBreakerError
	if errors.As(err, &cbErr) {
		return &ClassifiedError{
			Type:      ErrorTypeCircuitBreaker,
			Message:   cbErr.Error(),
			Code:      "CIRCUIT_BREAKER",
			Retryable: true,
			Details: map[string]any{
				"provider": cbErr.Provider,
				"model":    cbErr.Model,
				"state":    cbErr.State,
			},
			Cause: err,
		}
	}

	var valErr *ValidationError
	if errors.As(err, &valErr) {
		return &ClassifiedError{
			Type:      ErrorTypeValidation,
			Message:   valErr.Error(),
			Code:      "VALIDATION",
			Retryable: false,
			Details: map[string]any{
				"field": valErr.Field,
				"value": valErr.Value,
			},
			Cause: err,
		}
	}

	return nil
}

// classifySentinelErrors handles sentinel error classification via errors.Is.
func classifySentinelErrors(err error) *ClassifiedError {
	switch {
	case errors.Is(err, ErrRateLimitExceeded):
		return &ClassifiedError{
			Type:      ErrorTypeRateLimit,
			Message:   err.Error(),
			Code:      "RATE_LIMIT",
			Retryable: true,
			Cause:     err,
		}
	case errors.Is(err, ErrCircuitBreakerOpen):
		return &ClassifiedError{
			Type:      ErrorTypeCircuitBreaker,
			Message:   err.Error(),
			Code:      "CIRCUIT_BREAKER",
			Retryable: true,
			Cause:     err,
		}
	case errors.Is(err, ErrProviderUnavailable):
		return &ClassifiedError{
			Type:      ErrorTypeProvider,
			Message:   err.Error(),
			Code:      "PROVIDER_UNAVAILABLE",
			Retryable: true,
			Cause:     err,
		}
	case errors.Is(err, ErrUnknownModel), errors.Is(err, ErrUnknownProvider):
		return &ClassifiedError{
			Type:      ErrorTypeNotFound,
			Message:   err.Error(),
			Code:      "MODEL_NOT_FOUND",
			Retryable: false,
			Cause:     err,
		}
	case errors.Is(err, ErrUnsupportedOperation):
		return &ClassifiedError{
			Type:      ErrorTypeValidation,
			Message:   err.Error(),
			Code:      "UNSUPPORTED_OPERATION",
			Retryable: false,
			Cause:     err,
		}
	case errors.Is(err, ErrMaxRetriesExceeded):
		return &ClassifiedError{
			Type:      ErrorTypeProvider,
			Message:   err.Error(),
			Code:      "MAX_RETRIES",
			Retryable: false,
			Details:   map[string]any{"original_error": err.Error()},
			Cause:     err,
		}
	}

	return nil
}

// classifyStringPatternErrors handles untyped error classification through
// message pattern matching. Last resort for errors that reach the boundary
// without structure.
func classifyStringPatternErrors(err error) *ClassifiedError {
	errMsg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(errMsg, "rate limit"):
		return &ClassifiedError{
			Type:      ErrorTypeRateLimit,
			Message:   "Rate limit exceeded",
			Code:      "RATE_LIMIT",
			Retryable: true,
			Details:   map[string]any{"original_error": err.Error()},
			Cause:     err,
		}
	case strings.Contains(errMsg, "timeout") || strings.Contains(errMsg, "deadline"):
		return &ClassifiedError{
			Type:      ErrorTypeTimeout,
			Message:   "Request timeout",
			Code:      "TIMEOUT",
			Retryable: true,
			Details:   map[string]any{"original_error": err.Error()},
			Cause:     err,
		}
	case strings.Contains(errMsg, "unauthorized") || strings.Contains(errMsg, "authentication"):
		return &ClassifiedError{
			Type:      ErrorTypeAuth,
			Message:   "Authentication failed",
			Code:      "AUTH_FAILED",
			Retryable: false,
			Details:   map[string]any{"original_error": err.Error()},
			Cause:     err,
		}
	case strings.Contains(errMsg, "forbidden") || strings.Contains(errMsg, "permission"):
		return &ClassifiedError{
			Type:      ErrorTypePermission,
			Message:   "Permission denied",
			Code:      "PERMISSION_DENIED",
			Retryable: false,
			Details:   map[string]any{"original_error": err.Error()},
			Cause:     err,
		}
	case strings.Contains(errMsg, "quota"):
		return &ClassifiedError{
			Type:      ErrorTypeQuota,
			Message:   "Quota exceeded",
			Code:      "QUOTA_EXCEEDED",
			Retryable: false,
			Details:   map[string]any{"original_error": err.Error()},
			Cause:     err,
		}
	case strings.Contains(errMsg, "not found"):
		return &ClassifiedError{
			Type:      ErrorTypeNotFound,
			Message:   err.Error(),
			Code:      "NOT_FOUND",
			Retryable: false,
			Cause:     err,
		}
	case strings.Contains(errMsg, "network") || strings.Contains(errMsg, "connection"):
		return &ClassifiedError{
			Type:      ErrorTypeNetwork,
			Message:   "Network error",
			Code:      "NETWORK_ERROR",
			Retryable: true,
			Details:   map[string]any{"original_error": err.Error()},
			Cause:     err,
		}
	default:
		return &ClassifiedError{
			Type:      ErrorTypeUnknown,
			Message:   "Unknown error",
			Code:      "UNKNOWN",
			Retryable: false,
			Details:   map[string]any{"original_error": err.Error()},
			Cause:     err,
		}
	}
}
