package platform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"fedialt/pkg/config"
	"fedialt/pkg/federr"
	"fedialt/pkg/logger"
	"fedialt/pkg/transport"
)

const (
	pleromaDefaultPageSize = 20
	pleromaMaxPageSize     = 40
)

var pleromaKnownHosts = map[string]bool{
	"pleroma.social":  true,
	"shitposter.club": true,
	"poa.st":          true,
}

// DetectPleroma pattern-matches known Pleroma hostnames. Pure, no I/O.
// Akkoma forks keep "pleroma"-compatible hostnames rarely, so detection
// here is conservative; explicit configuration wins for everything else.
func DetectPleroma(instanceURL string) bool {
	host := instanceHost(instanceURL)
	if host == "" {
		return false
	}
	return strings.Contains(host, "pleroma") || pleromaKnownHosts[host]
}

// PleromaAdapter speaks Pleroma's Mastodon-compatible REST API. Pleroma
// does not reliably honor the per-media description endpoint once media is
// attached to a status. UpdateMediaCaption issues only the direct PUT;
// SupportsDirectCaption reports false so callers carry alt text inside a
// full status edit through UpdatePost instead.
type PleromaAdapter struct {
	baseURL string
	session *transport.Session
	log     logger.Logger
}

// NewPleroma validates the configuration and constructs the adapter.
func NewPleroma(cfg config.PlatformConfig, session *transport.Session, log logger.Logger) (Adapter, error) {
	if err := validateBaseConfig("pleroma", cfg); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.GetLogger()
	}

	session.SetHeader("Authorization", "Bearer "+cfg.AccessToken)

	return &PleromaAdapter{
		baseURL: strings.TrimRight(cfg.InstanceURL, "/"),
		session: session,
		log:     log.WithField("platform", "pleroma"),
	}, nil
}

func (p *PleromaAdapter) Name() string { return "pleroma" }

func (p *PleromaAdapter) GetUserPosts(ctx context.Context, userID string, limit int) ([]Post, error) {
	limit = clampLimit(limit, pleromaDefaultPageSize, pleromaMaxPageSize)
	u := fmt.Sprintf("%s/api/v1/accounts/%s/statuses?limit=%d",
		p.baseURL, url.PathEscape(userID), limit)

	var posts []Post
	if err := p.session.GetJSON(ctx, u, &posts); err != nil {
		return nil, err
	}
	if len(posts) > limit {
		posts = posts[:limit]
	}
	return posts, nil
}

func (p *PleromaAdapter) GetPostByID(ctx context.Context, postID string) (*Post, error) {
	u := fmt.Sprintf("%s/api/v1/statuses/%s", p.baseURL, url.PathEscape(postID))

	var post Post
	if err := p.session.GetJSON(ctx, u, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

// UpdateMediaCaption issues the direct per-media PUT. The adapter holds no
// owning-post reference, so it never falls back on its own; callers
// consult SupportsDirectCaption and route alt text through UpdatePost.
func (p *PleromaAdapter) UpdateMediaCaption(ctx context.Context, imageID, caption string) (bool, error) {
	u := fmt.Sprintf("%s/api/v1/media/%s", p.baseURL, url.PathEscape(imageID))
	body := map[string]string{"description": caption}

	var updated Attachment
	if err := p.session.SendJSON(ctx, http.MethodPut, u, body, &updated); err != nil {
		return false, err
	}
	return updated.ID != "", nil
}

func (p *PleromaAdapter) UpdatePost(ctx context.Context, postID string, post *Post) (bool, error) {
	if post == nil {
		return false, &federr.AdapterError{
			Op:       "update_post",
			Target:   postID,
			Platform: p.Name(),
			Err:      errors.New("nil post"),
		}
	}

	u := fmt.Sprintf("%s/api/v1/statuses/%s", p.baseURL, url.PathEscape(postID))

	var updated Post
	if err := p.session.SendJSON(ctx, http.MethodPut, u, statusEditPayload(post), &updated); err != nil {
		return false, err
	}
	return updated.ID != "", nil
}

func (p *PleromaAdapter) ExtractImagesFromPost(post *Post) []ExtractedImage {
	return extractImages(post)
}

// RateLimitInfo handles Pleroma's header dialect, which uses the same
// names as Mastodon but epoch-seconds reset values.
func (p *PleromaAdapter) RateLimitInfo(headers http.Header) map[string]int {
	return parseRateLimitHeaders(headers)
}

func (p *PleromaAdapter) SupportsDirectCaption() bool { return false }

func (p *PleromaAdapter) Cleanup() {}
