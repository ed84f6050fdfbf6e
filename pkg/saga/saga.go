// Package saga runs an ordered list of steps with per-step retry and
// timeout, and rolls back previously-succeeded steps in reverse order
// when a later step exhausts its retries.
package saga

import (
	"context"
	"time"

	"github.com/adverant/nexus-memory/pkg/memerr"
	"github.com/adverant/nexus-memory/pkg/observability"
	"github.com/google/uuid"
)

// RetryPolicy configures per-step retry. A zero value means no retry:
// a single attempt.
type RetryPolicy struct {
	MaxAttempts int
	BackoffMs   int
}

// Step is one unit of saga work. Execute must be safe to retry when
// Idempotent is true. Compensate must be safe to call even when Execute
// never ran or only partially completed.
type Step struct {
	Name       string
	Execute    func(ctx context.Context) (any, error)
	Compensate func(ctx context.Context) error
	Idempotent bool
	Timeout    time.Duration
	Retry      RetryPolicy
}

// Result is the outcome of running a saga. It is always returned, never
// replaced by a panic or a bare error — callers branch on Success.
type Result struct {
	SagaID            string
	Success           bool
	Context           map[string]any
	FailedStep        string
	Error             error
	CompensationError error
}

// Coordinator executes steps and performs rollback on failure.
type Coordinator struct {
	logger  observability.Logger
	metrics observability.MetricsClient
}

// New builds a Coordinator.
func New(logger observability.Logger, metrics observability.MetricsClient) *Coordinator {
	if logger == nil {
		logger = observability.NewLogger("saga")
	}
	if metrics == nil {
		metrics = observability.NewMetricsClient()
	}
	return &Coordinator{logger: logger, metrics: metrics}
}

// Run executes steps strictly sequentially. On a step's retry exhaustion
// it rolls back every previously-succeeded step in reverse order, each
// compensation run with a timeout of 1.5x that step's forward timeout.
func (c *Coordinator) Run(ctx context.Context, steps []Step) Result {
	sagaID := uuid.NewString()
	resultCtx := make(map[string]any, len(steps))
	var succeeded []Step

	for _, step := range steps {
		output, err := c.runStepWithRetry(ctx, sagaID, step)
		if err != nil {
			c.logger.Error("saga step failed after retries, rolling back", map[string]interface{}{
				"saga_id": sagaID,
				"step":    step.Name,
				"error":   err.Error(),
			})
			compErr := c.rollback(ctx, sagaID, succeeded)
			return Result{
				SagaID:            sagaID,
				Success:           false,
				Context:           resultCtx,
				FailedStep:        step.Name,
				Error:             memerr.Backing("saga.run", sagaID, step.Name, err),
				CompensationError: compErr,
			}
		}
		resultCtx[step.Name] = sanitizePreview(output)
		succeeded = append(succeeded, step)
	}

	return Result{SagaID: sagaID, Success: true, Context: resultCtx}
}

func (c *Coordinator) runStepWithRetry(ctx context.Context, sagaID string, step Step) (any, error) {
	maxAttempts := step.Retry.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		start := time.Now()
		output, err := c.runOnce(ctx, step)
		duration := time.Since(start)

		c.logger.Info("saga step attempt", map[string]interface{}{
			"saga_id":  sagaID,
			"step":     step.Name,
			"attempt":  attempt,
			"duration": duration.String(),
			"success":  err == nil,
		})
		c.metrics.RecordOperation("saga", step.Name, err == nil, duration.Seconds(), map[string]string{"saga_id": sagaID})

		if err == nil {
			return output, nil
		}
		lastErr = err
		if attempt < maxAttempts && step.Retry.BackoffMs > 0 {
			select {
			case <-time.After(time.Duration(step.Retry.BackoffMs) * time.Millisecond):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, lastErr
}

func (c *Coordinator) runOnce(ctx context.Context, step Step) (any, error) {
	stepCtx := ctx
	var cancel context.CancelFunc
	if step.Timeout > 0 {
		stepCtx, cancel = context.WithTimeout(ctx, step.Timeout)
		defer cancel()
	}

	type outcome struct {
		output any
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		output, err := step.Execute(stepCtx)
		done <- outcome{output, err}
	}()

	select {
	case o := <-done:
		return o.output, o.err
	case <-stepCtx.Done():
		return nil, stepCtx.Err()
	}
}

// rollback invokes Compensate on every succeeded step in reverse order.
// A compensation failure is logged and does not abort the remaining
// compensations; the first such error is returned to the caller.
//
// Compensations run detached from ctx's cancellation: Run is called to
// clean up after a step failed OR after the caller canceled mid-saga,
// and in the cancellation case ctx is already Done, which would make
// every compensation fail instantly instead of running. Each
// compensation instead gets its own timeout rooted in a
// context.WithoutCancel of ctx, so request-scoped values survive but
// the caller's cancellation does not.
func (c *Coordinator) rollback(ctx context.Context, sagaID string, succeeded []Step) error {
	var firstErr error
	for i := len(succeeded) - 1; i >= 0; i-- {
		step := succeeded[i]
		if step.Compensate == nil {
			continue
		}

		timeout := time.Duration(float64(step.Timeout) * 1.5)
		compCtx := context.WithoutCancel(ctx)
		var cancel context.CancelFunc
		if timeout > 0 {
			compCtx, cancel = context.WithTimeout(compCtx, timeout)
		}

		err := step.Compensate(compCtx)
		if cancel != nil {
			cancel()
		}

		if err != nil {
			c.logger.Error("saga compensation failed, continuing rollback", map[string]interface{}{
				"saga_id": sagaID,
				"step":    step.Name,
				"error":   err.Error(),
			})
			if firstErr == nil {
				firstErr = memerr.Compensation("saga.rollback", sagaID, step.Name, err)
			}
			continue
		}
		c.logger.Info("saga compensation succeeded", map[string]interface{}{"saga_id": sagaID, "step": step.Name})
	}
	return firstErr
}

// sanitizePreview bounds a step's result to at most 5 keys with string
// values truncated to 100 chars, for safe inclusion in saga context.
func sanitizePreview(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return truncateValue(v)
	}

	out := make(map[string]any, 5)
	count := 0
	for k, val := range m {
		if count >= 5 {
			break
		}
		out[k] = truncateValue(val)
		count++
	}
	return out
}

func truncateValue(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	if len(s) <= 100 {
		return s
	}
	return s[:100]
}
