package providers

import (
	"net/http"
	"strings"

	llmerrors "github.com/dockhardman/General-LLM-Stack/internal/llm/errors"
)

// ServerErrorStatusThreshold defines the HTTP status code threshold for
// server errors.
const ServerErrorStatusThreshold = 500

// classifyErrorType determines ErrorType from HTTP status and provider error
// codes. Provider-specific error codes take precedence over status codes.
func classifyErrorType(statusCode int, errorCode string) llmerrors.ErrorType {
	lowerCode := strings.ToLower(errorCode)
	if strings.Contains(lowerCode, "rate") || strings.Contains(lowerCode, "limit") {
		return llmerrors.ErrorTypeRateLimit
	}
	if strings.Contains(lowerCode, "timeout") {
		return llmerrors.ErrorTypeTimeout
	}
	if strings.Contains(lowerCode, "auth") || strings.Contains(lowerCode, "unauthorized") {
		return llmerrors.ErrorTypeAuth
	}
	if strings.Contains(lowerCode, "permission") || strings.Contains(lowerCode, "forbidden") {
		return llmerrors.ErrorTypePermission
	}
	if strings.Contains(lowerCode, "quota") {
		return llmerrors.ErrorTypeQuota
	}
	if strings.Contains(lowerCode, "not_found") {
		return llmerrors.ErrorTypeNotFound
	}

	switch statusCode {
	case http.StatusTooManyRequests:
		return llmerrors.ErrorTypeRateLimit
	case http.StatusUnauthorized:
		return llmerrors.ErrorTypeAuth
	case http.StatusForbidden:
		return llmerrors.ErrorTypePermission
	case http.StatusNotFound:
		return llmerrors.ErrorTypeNotFound
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return llmerrors.ErrorTypeTimeout
	case http.StatusBadRequest:
		return llmerrors.ErrorTypeValidation
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
		return llmerrors.ErrorTypeProvider
	default:
		if statusCode >= ServerErrorStatusThreshold {
			return llmerrors.ErrorTypeProvider
		}
		return llmerrors.ErrorTypeUnknown
	}
}

// retryAfterSeconds extracts a Retry-After header value in whole seconds.
func retryAfterSeconds(httpHeader http.Header) int {
	value := httpHeader.Get("Retry-After")
	if value == "" {
		return 0
	}
	seconds := 0
	for _, c := range value {
		if c < '0' || c > '9' {
			return 0
		}
		seconds = seconds*10 + int(c-'0')
	}
	return seconds
}
