package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	llmerrors "github.com/dockhardman/General-LLM-Stack/internal/llm/errors"
)

// apiError is the OpenAI-style error envelope.
type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
}

type errorResponse struct {
	Error apiError `json:"error"`
}

// writeError classifies err and answers with the matching status and
// envelope. Rate limit rejections carry a Retry-After header.
func writeError(c *gin.Context, err error) {
	classified := llmerrors.Classify(err)

	if classified.Type == llmerrors.ErrorTypeRateLimit {
		if retryAfter, ok := classified.Details["retry_after"].(int); ok && retryAfter > 0 {
			c.Header("Retry-After", strconv.Itoa(retryAfter))
		}
	}

	c.AbortWithStatusJSON(classified.HTTPStatus(), errorResponse{Error: apiError{
		Message: classified.Message,
		Type:    envelopeType(classified.HTTPStatus()),
		Code:    classified.Code,
	}})
}

// writeInvalidRequest answers a request-shape problem without running it
// through error classification.
func writeInvalidRequest(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, errorResponse{Error: apiError{
		Message: message,
		Type:    envelopeType(status),
	}})
}

func writeModelNotFound(c *gin.Context, model string) {
	c.AbortWithStatusJSON(http.StatusNotFound, errorResponse{Error: apiError{
		Message: "The model '" + model + "' does not exist or is not available.",
		Type:    "invalid_request_error",
		Code:    "model_not_found",
	}})
}

func envelopeType(status int) string {
	switch {
	case status == http.StatusTooManyRequests:
		return "rate_limit_error"
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return "authentication_error"
	case status >= 400 && status < 500:
		return "invalid_request_error"
	default:
		return "api_error"
	}
}
