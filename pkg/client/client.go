// Package client exposes the one object application code touches: a
// Client that composes rate limiting, retry, and a resolved platform
// adapter behind the uniform operation surface, plus session lifecycle.
package client

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/google/uuid"

	"fedialt/pkg/config"
	"fedialt/pkg/federr"
	"fedialt/pkg/logger"
	"fedialt/pkg/platform"
	"fedialt/pkg/ratelimit"
	"fedialt/pkg/retry"
	"fedialt/pkg/transport"
)

// ErrClientClosed is returned by operations invoked after Close.
var ErrClientClosed = errors.New("client is closed")

// Endpoint scope tags derived per operation and fed to the rate limiter.
const (
	endpointAccounts = "accounts"
	endpointStatuses = "statuses"
	endpointMedia    = "media"
)

// Client is safe for concurrent use: many logical operations may run in
// parallel sharing the one rate limiter and HTTP session.
type Client struct {
	cfg     *config.Config
	session *transport.Session
	limiter *ratelimit.Limiter
	retrier *retry.Retrier
	adapter platform.Adapter
	log     logger.Logger
	closed  atomic.Bool
}

// New validates the configuration, resolves the platform adapter through
// the default factory, and assembles the client. All configuration errors
// surface here, never mid-operation.
func New(cfg *config.Config, log logger.Logger) (*Client, error) {
	return NewWithFactory(cfg, platform.NewFactory(), log)
}

// NewWithFactory assembles a client using a caller-supplied factory, for
// configurations carrying additional registered platforms.
func NewWithFactory(cfg *config.Config, factory *platform.Factory, log logger.Logger) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}
	if log == nil {
		log = logger.GetLogger()
	}

	session := transport.NewSession(cfg.HTTP, log)

	adapter, err := factory.NewAdapter(cfg.Platform, session, log)
	if err != nil {
		session.Close()
		return nil, err
	}

	limiter := ratelimit.New(cfg.RateLimit, log)
	retrier := retry.New(cfg.Retry.MaxAttempts, retry.FromConfig(cfg.Retry), log)

	// Single post-call hook: every response's headers reconcile the
	// limiter, including responses seen mid-retry.
	session.OnResponse(func(h http.Header) {
		limiter.UpdateFromHeaders(h, adapter.Name())
	})

	c := &Client{
		cfg:     cfg,
		session: session,
		limiter: limiter,
		retrier: retrier,
		adapter: adapter,
		log:     log.WithField("platform", adapter.Name()),
	}

	c.log.InfoWithFields("client ready", map[string]interface{}{
		"instance_url": cfg.Platform.InstanceURL,
	})

	return c, nil
}

// Close releases the HTTP session and the adapter's resources. It is
// idempotent and safe on every exit path; operations after Close fail
// fast with ErrClientClosed.
func (c *Client) Close() {
	if c.closed.CompareAndSwap(false, true) {
		c.session.Close()
		c.adapter.Cleanup()
		c.log.Debug("client closed")
	}
}

// PlatformName returns the resolved adapter's name.
func (c *Client) PlatformName() string { return c.adapter.Name() }

// PlatformInfo describes the resolved platform.
func (c *Client) PlatformInfo() map[string]interface{} {
	return map[string]interface{}{
		"platform":                c.adapter.Name(),
		"instance_url":            c.cfg.Platform.InstanceURL,
		"supports_direct_caption": c.adapter.SupportsDirectCaption(),
	}
}

// RateLimiterStats exposes the limiter's cumulative per-scope counters.
func (c *Client) RateLimiterStats() map[string]ratelimit.ScopeStats {
	return c.limiter.Stats()
}

// do runs one logical operation: wait for the rate limit, invoke the
// adapter under the retry policy, and wrap any failure with operation
// context. Cancellation while suspended consumes no token and counts no
// attempt.
func (c *Client) do(ctx context.Context, op, target, endpoint string, fn retry.Operation) error {
	if c.closed.Load() {
		return ErrClientClosed
	}

	opLog := c.log.WithFields(map[string]interface{}{
		"op":    op,
		"op_id": uuid.NewString(),
	})

	waited, err := c.limiter.Wait(ctx, endpoint, c.adapter.Name())
	if err != nil {
		return &federr.AdapterError{
			Op:       op,
			Target:   target,
			Platform: c.adapter.Name(),
			Err:      err,
		}
	}
	if waited > 0 {
		opLog.DebugWithFields("rate limit wait finished", map[string]interface{}{
			"waited": waited,
		})
	}

	if err := c.retrier.Do(ctx, fn); err != nil {
		attempts := 1
		var exhausted *retry.ExhaustedError
		if errors.As(err, &exhausted) {
			attempts = exhausted.Attempts
		}
		opLog.ErrorWithFields("operation failed", map[string]interface{}{
			"target":   target,
			"attempts": attempts,
			"error":    err.Error(),
		})
		return &federr.AdapterError{
			Op:       op,
			Target:   target,
			Platform: c.adapter.Name(),
			Attempts: attempts,
			Err:      err,
		}
	}

	return nil
}

// GetUserPosts fetches the most recent posts for an account, newest
// first, bounded by limit.
func (c *Client) GetUserPosts(ctx context.Context, userID string, limit int) ([]platform.Post, error) {
	var posts []platform.Post
	err := c.do(ctx, "get_user_posts", userID, endpointAccounts, func(ctx context.Context) error {
		var opErr error
		posts, opErr = c.adapter.GetUserPosts(ctx, userID, limit)
		return opErr
	})
	if err != nil {
		return nil, err
	}
	return posts, nil
}

// GetPostByID fetches a single post.
func (c *Client) GetPostByID(ctx context.Context, postID string) (*platform.Post, error) {
	var post *platform.Post
	err := c.do(ctx, "get_post_by_id", postID, endpointStatuses, func(ctx context.Context) error {
		var opErr error
		post, opErr = c.adapter.GetPostByID(ctx, postID)
		return opErr
	})
	if err != nil {
		return nil, err
	}
	return post, nil
}

// UpdateMediaCaption sets accessibility text on a single attachment.
func (c *Client) UpdateMediaCaption(ctx context.Context, imageID, caption string) (bool, error) {
	var ok bool
	err := c.do(ctx, "update_media_caption", imageID, endpointMedia, func(ctx context.Context) error {
		var opErr error
		ok, opErr = c.adapter.UpdateMediaCaption(ctx, imageID, caption)
		return opErr
	})
	if err != nil {
		return false, err
	}
	return ok, nil
}

// UpdatePost re-submits a whole post, carrying attachment alt text inside
// the update for platforms without a direct per-media caption endpoint.
func (c *Client) UpdatePost(ctx context.Context, postID string, post *platform.Post) (bool, error) {
	var ok bool
	err := c.do(ctx, "update_post", postID, endpointStatuses, func(ctx context.Context) error {
		var opErr error
		ok, opErr = c.adapter.UpdatePost(ctx, postID, post)
		return opErr
	})
	if err != nil {
		return false, err
	}
	return ok, nil
}

// ExtractImagesFromPost is a pure delegation to the adapter. It performs
// no I/O and is the only operation that touches neither the rate limiter
// nor the retry policy.
func (c *Client) ExtractImagesFromPost(post *platform.Post) []platform.ExtractedImage {
	return c.adapter.ExtractImagesFromPost(post)
}
