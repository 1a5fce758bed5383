package retry

import (
	"context"
	"fmt"

	"fedialt/pkg/federr"
	"fedialt/pkg/logger"
)

// Operation performs one attempt of a retryable operation.
type Operation func(ctx context.Context) error

// OperationWithResult performs one attempt and produces a result.
type OperationWithResult[T any] func(ctx context.Context) (T, error)

// ExhaustedError reports that every attempt failed with a retryable
// error. Err is the last underlying error.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("max retry attempts (%d) exceeded: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Retrier wraps operations with bounded retry and backoff. Failures are
// classified once per attempt into retryable or terminal; terminal
// failures short-circuit immediately.
type Retrier struct {
	maxAttempts int
	backoff     BackoffStrategy
	classify    func(error) federr.Class
	log         logger.Logger
}

// New creates a Retrier. A nil classify falls back to federr.Classify.
func New(maxAttempts int, backoff BackoffStrategy, log logger.Logger) *Retrier {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Retrier{
		maxAttempts: maxAttempts,
		backoff:     backoff,
		classify:    federr.Classify,
		log:         log,
	}
}

// Do runs op until it succeeds, fails terminally, or the attempt budget is
// spent. It never makes more than maxAttempts invocations. For rate-limit
// responses carrying a server reset hint the next delay is the larger of
// the backoff delay and the hint.
func (r *Retrier) Do(ctx context.Context, op Operation) error {
	var lastErr error

	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		err := op(ctx)
		if err == nil {
			if attempt > 1 {
				r.log.DebugWithFields("operation succeeded after retry", map[string]interface{}{
					"attempt": attempt,
				})
			}
			return nil
		}
		lastErr = err

		if r.classify(err) == federr.ClassTerminal {
			r.log.DebugWithFields("error is terminal, not retrying", map[string]interface{}{
				"error": err.Error(),
			})
			return err
		}

		if attempt == r.maxAttempts {
			break
		}

		delay := r.backoff.NextDelay(attempt)
		if hint := federr.RetryAfter(err); hint > delay {
			delay = hint
		}

		r.log.WarnWithFields("retrying operation", map[string]interface{}{
			"attempt":      attempt,
			"max_attempts": r.maxAttempts,
			"error":        err.Error(),
			"delay_ms":     delay.Milliseconds(),
		})

		if err := Sleep(ctx, delay); err != nil {
			// Cancelled mid-backoff: abandon without counting an attempt.
			return fmt.Errorf("retry cancelled: %w", err)
		}
	}

	r.log.ErrorWithFields("max retry attempts exceeded", map[string]interface{}{
		"attempts":   r.maxAttempts,
		"last_error": lastErr.Error(),
	})
	return &ExhaustedError{Attempts: r.maxAttempts, Err: lastErr}
}

// DoWithResult runs an operation that returns a result with retry logic.
func DoWithResult[T any](ctx context.Context, r *Retrier, op OperationWithResult[T]) (T, error) {
	var result T
	err := r.Do(ctx, func(ctx context.Context) error {
		var opErr error
		result, opErr = op(ctx)
		return opErr
	})
	return result, err
}

// MaxAttempts exposes the configured attempt budget.
func (r *Retrier) MaxAttempts() int { return r.maxAttempts }

// WithBackoff returns a Retrier using a different backoff strategy.
func (r *Retrier) WithBackoff(b BackoffStrategy) *Retrier {
	nr := *r
	nr.backoff = b
	return &nr
}
