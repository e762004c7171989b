package cache

import (
	"fmt"

	"github.com/dockhardman/General-LLM-Stack/internal/llm/transport"
)

const (
	maxIdempotencyKeyLength = 256
	minIdempotencyKeyLength = 8
)

// buildKey constructs a cache key "llm:{operation}:{idemkey}" after
// validating the request fields it depends on.
func (c *cacheMiddleware) buildKey(req *transport.Request) (string, error) {
	if err := validateCacheKeyFields(req); err != nil {
		return "", fmt.Errorf("invalid request for cache key: %w", err)
	}
	return fmt.Sprintf("llm:%s:%s", req.Operation, req.IdempotencyKey), nil
}

func validateCacheKeyFields(req *transport.Request) error {
	if req.Operation == "" {
		return fmt.Errorf("operation is required")
	}
	if req.IdempotencyKey == "" {
		return fmt.Errorf("idempotency key is required for caching")
	}
	if len(req.IdempotencyKey) > maxIdempotencyKeyLength {
		return fmt.Errorf("idempotency key too long (max %d chars): %d", maxIdempotencyKeyLength, len(req.IdempotencyKey))
	}
	if len(req.IdempotencyKey) < minIdempotencyKeyLength {
		return fmt.Errorf("idempotency key too short (min %d chars): %d", minIdempotencyKeyLength, len(req.IdempotencyKey))
	}

	switch req.Operation {
	case transport.OpChatCompletion, transport.OpCompletion, transport.OpEmbedding:
	default:
		return fmt.Errorf("invalid operation: %s", req.Operation)
	}

	return nil
}
