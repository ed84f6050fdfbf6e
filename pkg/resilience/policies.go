package resilience

import (
	"context"
	"time"
)

// RetryPolicy defines retry behavior
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       float64
}

// TimeoutPolicy defines timeout behavior
type TimeoutPolicy struct {
	Timeout time.Duration
}

// BulkheadPolicy defines bulkhead behavior
type BulkheadPolicy struct {
	MaxConcurrent int
	QueueSize     int
	Timeout       time.Duration
}

// Breaker is the subset of CircuitBreaker behavior a caller that only
// needs to gate a side-effecting call depends on.
type Breaker interface {
	Execute(ctx context.Context, fn func() (interface{}, error)) (interface{}, error)
	Reset()
}
