package retry

import "sync/atomic"

// retryStats tracks retry middleware behavior with atomic counters.
type retryStats struct {
	totalAttempts           atomic.Int64
	successfulFirstAttempts atomic.Int64
	successfulRetries       atomic.Int64
	failedRetries           atomic.Int64
}
