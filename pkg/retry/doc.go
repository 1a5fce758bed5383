// Package retry wraps operations with bounded retry and exponential
// backoff.
//
// Each failure is classified once, before the loop decides: network-level
// failures and 5xx responses are retryable, 4xx responses are terminal
// and short-circuit immediately. HTTP 429 is the exception among 4xx: it
// is retried, and when the response carried a Retry-After or rate-limit
// reset hint the next delay is the larger of the backoff delay and the
// hint.
//
// After the attempt budget is spent the last underlying error is surfaced
// inside an ExhaustedError carrying the attempt count. The loop never
// exceeds its budget, and cancellation during a backoff wait abandons the
// operation without counting an attempt.
package retry
