package domain

import "errors"

// Common domain errors returned by API operations.
var (
	// ErrModelNotFound indicates the requested model has no live deployment.
	ErrModelNotFound = errors.New("model not found")

	// ErrInvalidRequest indicates a request failed wire validation.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrStreamingUnsupported indicates a streaming response was requested.
	ErrStreamingUnsupported = errors.New("streaming responses are not supported")
)
