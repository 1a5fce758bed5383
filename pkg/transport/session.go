// Package transport provides the shared HTTP session used by every
// platform adapter. It owns the default headers, maps response statuses
// into the error taxonomy, and exposes a single post-response hook so the
// caller can observe rate-limit headers uniformly. The same pipeline is
// available as an http.RoundTripper for API libraries that own their own
// request construction.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"fedialt/pkg/config"
	"fedialt/pkg/federr"
	"fedialt/pkg/logger"
)

// ErrSessionClosed is returned by operations invoked after Close.
var ErrSessionClosed = errors.New("http session is closed")

// Session is a shared HTTP session. It is safe for concurrent use by
// multiple logical operations.
type Session struct {
	httpClient *http.Client
	pipeline   *http.Client
	headers    map[string]string
	log        logger.Logger
	closed     atomic.Bool

	// onResponse, when set, is invoked with every response's headers,
	// including error responses. Used for rate-limit reconciliation.
	onResponse func(http.Header)
}

// NewSession creates a session from the HTTP configuration.
func NewSession(cfg config.HTTPConfig, log logger.Logger) *Session {
	if log == nil {
		log = logger.GetLogger()
	}

	s := &Session{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		headers: map[string]string{
			"User-Agent": cfg.UserAgent,
			"Accept":     "application/json",
		},
		log: log,
	}
	s.pipeline = &http.Client{
		Transport: sessionRoundTripper{s: s},
		Timeout:   cfg.Timeout,
	}
	return s
}

// SetHeader sets a default header sent on every request.
func (s *Session) SetHeader(key, value string) {
	s.headers[key] = value
}

// SetTransport replaces the underlying round tripper. Intended for tests
// that intercept requests.
func (s *Session) SetTransport(rt http.RoundTripper) {
	s.httpClient.Transport = rt
}

// Timeout returns the session's request timeout.
func (s *Session) Timeout() time.Duration {
	return s.httpClient.Timeout
}

// OnResponse registers the post-response hook. Must be set before the
// session is used concurrently.
func (s *Session) OnResponse(hook func(http.Header)) {
	s.onResponse = hook
}

// Close releases the session. Further operations fail fast with
// ErrSessionClosed. Close is idempotent.
func (s *Session) Close() {
	if s.closed.CompareAndSwap(false, true) {
		s.httpClient.CloseIdleConnections()
	}
}

// Closed reports whether the session has been closed.
func (s *Session) Closed() bool { return s.closed.Load() }

// RoundTripper exposes the session's request pipeline for API clients
// that build their own requests. Every call still honors the closed flag,
// default headers, the response hook, and status-to-taxonomy mapping, and
// follows transport replacements made through SetTransport.
func (s *Session) RoundTripper() http.RoundTripper {
	return sessionRoundTripper{s: s}
}

type sessionRoundTripper struct {
	s *Session
}

func (rt sessionRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return rt.s.roundTrip(req)
}

// roundTrip runs one request through the session pipeline. Non-2xx
// responses come back as taxonomy errors; transport failures are returned
// raw so context cancellation stays visible in the chain.
func (s *Session) roundTrip(req *http.Request) (*http.Response, error) {
	if s.closed.Load() {
		return nil, ErrSessionClosed
	}

	for key, value := range s.headers {
		if req.Header.Get(key) == "" {
			req.Header.Set(key, value)
		}
	}

	base := s.httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}

	start := time.Now()
	s.log.DebugWithFields("sending HTTP request", map[string]interface{}{
		"method": req.Method,
		"url":    req.URL.String(),
	})

	resp, err := base.RoundTrip(req)
	duration := time.Since(start)

	if err != nil {
		s.log.ErrorWithFields("HTTP request failed", map[string]interface{}{
			"method":   req.Method,
			"url":      req.URL.String(),
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, err
	}

	s.log.DebugWithFields("HTTP request completed", map[string]interface{}{
		"method":   req.Method,
		"url":      req.URL.String(),
		"status":   resp.StatusCode,
		"duration": duration,
	})

	if s.onResponse != nil {
		s.onResponse(resp.Header)
	}

	if err := s.checkStatus(req, resp); err != nil {
		resp.Body.Close()
		return nil, err
	}

	return resp, nil
}

// Do performs a request through the session pipeline. Network failures are
// mapped into the taxonomy as retryable network errors; non-2xx responses
// surface as taxonomy errors rather than responses. Taxonomy errors are
// unwrapped out of the http.Client's url.Error envelope.
func (s *Session) Do(req *http.Request) (*http.Response, error) {
	resp, err := s.pipeline.Do(req)
	if err == nil {
		return resp, nil
	}

	var httpErr *federr.HTTPError
	if errors.As(err, &httpErr) {
		return nil, httpErr
	}
	if errors.Is(err, ErrSessionClosed) {
		return nil, ErrSessionClosed
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}
	return nil, &federr.HTTPError{
		Kind:    federr.KindNetwork,
		Message: fmt.Sprintf("request failed: %v", err),
	}
}

// GetJSON performs a GET and decodes the JSON response into target.
func (s *Session) GetJSON(ctx context.Context, url string, target interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &federr.HTTPError{
			Kind:    federr.KindUnknown,
			Message: fmt.Sprintf("failed to create request: %v", err),
		}
	}
	return s.doJSON(req, target)
}

// SendJSON performs a request with a JSON body and decodes the JSON
// response into target. A nil body sends no payload; a nil target
// discards the response body.
func (s *Session) SendJSON(ctx context.Context, method, url string, body, target interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return &federr.HTTPError{
				Kind:    federr.KindParsing,
				Message: fmt.Sprintf("failed to encode request body: %v", err),
			}
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return &federr.HTTPError{
			Kind:    federr.KindUnknown,
			Message: fmt.Sprintf("failed to create request: %v", err),
		}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return s.doJSON(req, target)
}

func (s *Session) doJSON(req *http.Request, target interface{}) error {
	resp, err := s.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if target == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &federr.HTTPError{
			Kind:       federr.KindNetwork,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("failed to read response body: %v", err),
		}
	}

	if err := json.Unmarshal(data, target); err != nil {
		preview := string(data)
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		s.log.ErrorWithFields("failed to parse JSON response", map[string]interface{}{
			"url":          req.URL.String(),
			"status":       resp.StatusCode,
			"error":        err.Error(),
			"body_preview": preview,
		})
		return &federr.HTTPError{
			Kind:       federr.KindParsing,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("failed to parse JSON: %v", err),
		}
	}

	return nil
}

// checkStatus maps 4xx/5xx responses into the error taxonomy. Redirects
// pass through so the owning http.Client can follow them. Rate-limit and
// service-unavailable responses carry the server's reset hint.
func (s *Session) checkStatus(req *http.Request, resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	kind := federr.KindForStatus(resp.StatusCode)
	httpErr := &federr.HTTPError{
		Kind:       kind,
		StatusCode: resp.StatusCode,
		Message:    http.StatusText(resp.StatusCode),
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
		httpErr.RetryAfter = parseRetryAfter(resp.Header)
	}

	level := s.log.WarnWithFields
	if resp.StatusCode >= 500 {
		level = s.log.ErrorWithFields
	}
	level("request rejected by server", map[string]interface{}{
		"status": resp.StatusCode,
		"kind":   string(kind),
		"url":    req.URL.String(),
	})

	return httpErr
}

// parseRetryAfter reads a reset hint from Retry-After (seconds or
// HTTP-date) or X-RateLimit-Reset (RFC3339 or epoch seconds). Returns
// zero when no usable hint is present.
func parseRetryAfter(headers http.Header) time.Duration {
	if v := headers.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
		if at, err := http.ParseTime(v); err == nil {
			if d := time.Until(at); d > 0 {
				return d
			}
		}
	}

	if v := headers.Get("X-RateLimit-Reset"); v != "" {
		if at, err := time.Parse(time.RFC3339, v); err == nil {
			if d := time.Until(at); d > 0 {
				return d
			}
		}
		if epoch, err := strconv.ParseInt(v, 10, 64); err == nil {
			if d := time.Until(time.Unix(epoch, 0)); d > 0 {
				return d
			}
		}
	}

	return 0
}
