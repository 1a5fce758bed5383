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
	pixelfedDefaultPageSize = 20
	pixelfedMaxPageSize     = 24
)

var pixelfedKnownHosts = map[string]bool{
	"pixelfed.social": true,
	"pixelfed.de":     true,
	"pixey.org":       true,
	"pxlmo.com":       true,
	"metapixl.com":    true,
}

// DetectPixelfed pattern-matches known Pixelfed hostnames. Pure, no I/O.
func DetectPixelfed(instanceURL string) bool {
	host := instanceHost(instanceURL)
	if host == "" {
		return false
	}
	return strings.Contains(host, "pixelfed") || pixelfedKnownHosts[host]
}

// PixelfedAdapter speaks Pixelfed's Mastodon-compatible REST API. Pixelfed
// additionally requires OAuth application credentials alongside the access
// token, and serves smaller status pages.
type PixelfedAdapter struct {
	baseURL string
	session *transport.Session
	log     logger.Logger
}

// NewPixelfed validates the configuration, including the OAuth client
// key/secret Pixelfed requires, and constructs the adapter.
func NewPixelfed(cfg config.PlatformConfig, session *transport.Session, log logger.Logger) (Adapter, error) {
	if err := validateBaseConfig("pixelfed", cfg); err != nil {
		return nil, err
	}

	var missing []string
	if strings.TrimSpace(cfg.ClientKey) == "" {
		missing = append(missing, "client key")
	}
	if strings.TrimSpace(cfg.ClientSecret) == "" {
		missing = append(missing, "client secret")
	}
	if len(missing) > 0 {
		return nil, &federr.AdapterError{
			Op:       "configure",
			Platform: "pixelfed",
			Err:      errors.New("missing " + strings.Join(missing, " and ")),
		}
	}

	if log == nil {
		log = logger.GetLogger()
	}

	session.SetHeader("Authorization", "Bearer "+cfg.AccessToken)

	return &PixelfedAdapter{
		baseURL: strings.TrimRight(cfg.InstanceURL, "/"),
		session: session,
		log:     log.WithField("platform", "pixelfed"),
	}, nil
}

func (p *PixelfedAdapter) Name() string { return "pixelfed" }

func (p *PixelfedAdapter) GetUserPosts(ctx context.Context, userID string, limit int) ([]Post, error) {
	limit = clampLimit(limit, pixelfedDefaultPageSize, pixelfedMaxPageSize)
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

func (p *PixelfedAdapter) GetPostByID(ctx context.Context, postID string) (*Post, error) {
	u := fmt.Sprintf("%s/api/v1/statuses/%s", p.baseURL, url.PathEscape(postID))

	var post Post
	if err := p.session.GetJSON(ctx, u, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

func (p *PixelfedAdapter) UpdateMediaCaption(ctx context.Context, imageID, caption string) (bool, error) {
	u := fmt.Sprintf("%s/api/v1/media/%s", p.baseURL, url.PathEscape(imageID))
	body := map[string]string{"description": caption}

	var updated Attachment
	if err := p.session.SendJSON(ctx, http.MethodPut, u, body, &updated); err != nil {
		return false, err
	}
	return updated.ID != "", nil
}

func (p *PixelfedAdapter) UpdatePost(ctx context.Context, postID string, post *Post) (bool, error) {
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

func (p *PixelfedAdapter) ExtractImagesFromPost(post *Post) []ExtractedImage {
	return extractImages(post)
}

func (p *PixelfedAdapter) RateLimitInfo(headers http.Header) map[string]int {
	return parseRateLimitHeaders(headers)
}

func (p *PixelfedAdapter) SupportsDirectCaption() bool { return true }

func (p *PixelfedAdapter) Cleanup() {}
