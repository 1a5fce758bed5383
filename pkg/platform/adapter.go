// Package platform defines the uniform adapter contract for ActivityPub
// platforms and the concrete Mastodon, Pixelfed, and Pleroma adapters.
// Callers never branch on platform type: each adapter encapsulates its
// platform's authentication shape, endpoint paths, JSON field names, and
// pagination conventions behind the same capability set.
package platform

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Adapter is the capability set every platform implementation satisfies.
// All methods performing I/O take a context; ExtractImagesFromPost and
// RateLimitInfo are pure.
type Adapter interface {
	// Name returns the platform's registered name.
	Name() string

	// GetUserPosts fetches the most recent posts for an account, newest
	// first, bounded by limit.
	GetUserPosts(ctx context.Context, userID string, limit int) ([]Post, error)

	// GetPostByID fetches a single post.
	GetPostByID(ctx context.Context, postID string) (*Post, error)

	// UpdateMediaCaption sets accessibility text on a single attachment
	// and reports whether the platform acknowledged the update.
	UpdateMediaCaption(ctx context.Context, imageID, caption string) (bool, error)

	// UpdatePost re-submits a whole post. Used when a platform has no
	// direct per-attachment caption endpoint and alt text must travel
	// inside a full post update.
	UpdatePost(ctx context.Context, postID string, post *Post) (bool, error)

	// ExtractImagesFromPost returns the post's captionable images. Pure.
	ExtractImagesFromPost(post *Post) []ExtractedImage

	// RateLimitInfo extracts limit/remaining/reset from the platform's
	// header dialect. Returns an empty map when absent; never fails.
	RateLimitInfo(headers http.Header) map[string]int

	// SupportsDirectCaption reports whether UpdateMediaCaption works on
	// attachments already bound to a post, or whether callers should
	// prefer UpdatePost.
	SupportsDirectCaption() bool

	// Cleanup releases adapter-held resources.
	Cleanup()
}

// DetectFunc pattern-matches an instance URL against a platform family.
// Pure, no I/O.
type DetectFunc func(instanceURL string) bool

// parseRateLimitHeaders reads the X-RateLimit-Limit/Remaining/Reset
// convention. Mastodon and Pixelfed send an RFC3339 reset timestamp;
// Pleroma sends epoch seconds. Both are normalized to epoch seconds.
// Absent or malformed headers are simply omitted from the result.
func parseRateLimitHeaders(headers http.Header) map[string]int {
	info := make(map[string]int)

	if v := headers.Get("X-RateLimit-Limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			info["limit"] = n
		}
	}
	if v := headers.Get("X-RateLimit-Remaining"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			info["remaining"] = n
		}
	}
	if v := headers.Get("X-RateLimit-Reset"); v != "" {
		if at, err := time.Parse(time.RFC3339, v); err == nil {
			info["reset"] = int(at.Unix())
		} else if epoch, err := strconv.ParseInt(v, 10, 64); err == nil {
			info["reset"] = int(epoch)
		}
	}

	return info
}

// clampLimit bounds a caller-supplied page size to the platform's range.
func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

// instanceHost extracts the lowercase hostname from an instance URL for
// detection pattern matching. A bare hostname is accepted as-is.
func instanceHost(instanceURL string) string {
	s := strings.TrimSpace(strings.ToLower(instanceURL))
	if s == "" {
		return ""
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
