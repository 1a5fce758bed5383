// Package federr defines the error taxonomy for the platform client layer
// and the retryable/terminal classification the retry loop relies on.
package federr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// ErrPlatform is the family root. Every error produced by this layer
// matches it under errors.Is, so callers can catch broadly or narrowly.
var ErrPlatform = errors.New("platform error")

// Kind categorizes what went wrong at the wire or protocol level.
type Kind string

const (
	KindNetwork   Kind = "network"
	KindRateLimit Kind = "rate_limit"
	KindAuth      Kind = "auth"
	KindParsing   Kind = "parsing"
	KindNotFound  Kind = "not_found"
	KindServer    Kind = "server_error"
	KindClient    Kind = "client_error"
	KindUnknown   Kind = "unknown"
)

// Class is the explicit retry classification computed once, before the
// retry loop decides, instead of re-inspecting raw errors at each layer.
type Class int

const (
	// ClassTerminal failures cannot be resolved by retrying.
	ClassTerminal Class = iota
	// ClassRetryable failures are presumed transient.
	ClassRetryable
)

// HTTPError is a non-2xx response mapped into the taxonomy. RetryAfter
// carries the server's reset hint when one was present (429/503).
type HTTPError struct {
	Kind       Kind
	StatusCode int
	Message    string
	RetryAfter time.Duration
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s error (status %d): %s", e.Kind, e.StatusCode, e.Message)
}

func (e *HTTPError) Is(target error) bool { return target == ErrPlatform }

// AdapterError wraps an operation failure with enough context for callers
// to log and decide on messaging: operation name, target id, platform, and
// how many attempts were made.
type AdapterError struct {
	Op       string
	Target   string
	Platform string
	Attempts int
	Err      error
}

func (e *AdapterError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Target != "" {
		fmt.Fprintf(&b, " %q", e.Target)
	}
	if e.Platform != "" {
		fmt.Fprintf(&b, " on %s", e.Platform)
	}
	b.WriteString(" failed")
	if e.Attempts > 1 {
		fmt.Fprintf(&b, " after %d attempts", e.Attempts)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *AdapterError) Unwrap() error { return e.Err }

func (e *AdapterError) Is(target error) bool { return target == ErrPlatform }

// UnsupportedPlatformError means the factory could not resolve an
// explicitly requested platform type.
type UnsupportedPlatformError struct {
	Requested  string
	Registered []string
}

func (e *UnsupportedPlatformError) Error() string {
	return fmt.Sprintf("unsupported platform %q (registered: %s)",
		e.Requested, strings.Join(e.Registered, ", "))
}

func (e *UnsupportedPlatformError) Is(target error) bool { return target == ErrPlatform }

// DetectionError means platform auto-detection was inconclusive where a
// result was required.
type DetectionError struct {
	InstanceURL string
	Reason      string
}

func (e *DetectionError) Error() string {
	return fmt.Sprintf("could not detect platform for %q: %s", e.InstanceURL, e.Reason)
}

func (e *DetectionError) Is(target error) bool { return target == ErrPlatform }

// ClassifyStatus classifies an HTTP status code. 5xx and 429 are
// retryable; all other 4xx are terminal since retrying a malformed or
// unauthorized request cannot succeed.
func ClassifyStatus(statusCode int) Class {
	switch {
	case statusCode == 429:
		return ClassRetryable
	case statusCode >= 500:
		return ClassRetryable
	default:
		return ClassTerminal
	}
}

// KindForStatus maps an HTTP status code to a Kind.
func KindForStatus(statusCode int) Kind {
	switch {
	case statusCode == 401 || statusCode == 403:
		return KindAuth
	case statusCode == 404:
		return KindNotFound
	case statusCode == 429:
		return KindRateLimit
	case statusCode >= 500:
		return KindServer
	case statusCode >= 400:
		return KindClient
	default:
		return KindUnknown
	}
}

// Classify computes the retry class of an error. Network-level failures
// and retryable HTTP statuses are retryable; context cancellation and
// everything else is terminal.
func Classify(err error) Class {
	if err == nil {
		return ClassTerminal
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ClassTerminal
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch httpErr.Kind {
		case KindNetwork:
			return ClassRetryable
		case KindParsing:
			// A malformed body won't parse better on the next attempt.
			return ClassTerminal
		default:
			return ClassifyStatus(httpErr.StatusCode)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ClassRetryable
	}

	return ClassTerminal
}

// IsRetryable reports whether an error is worth retrying.
func IsRetryable(err error) bool {
	return Classify(err) == ClassRetryable
}

// RetryAfter extracts a server-provided reset hint from an error chain, or
// zero when there is none.
func RetryAfter(err error) time.Duration {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.RetryAfter
	}
	return 0
}
