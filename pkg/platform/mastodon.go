package platform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	mastodonapi "github.com/mattn/go-mastodon"

	"fedialt/pkg/config"
	"fedialt/pkg/federr"
	"fedialt/pkg/logger"
	"fedialt/pkg/transport"
)

const (
	mastodonDefaultPageSize = 20
	mastodonMaxPageSize     = 40
)

// mastodonKnownHosts are instances that do not carry "mastodon" in their
// hostname but are known to run it.
var mastodonKnownHosts = map[string]bool{
	"mstdn.social":     true,
	"mstdn.jp":         true,
	"mas.to":           true,
	"fosstodon.org":    true,
	"hachyderm.io":     true,
	"infosec.exchange": true,
}

// DetectMastodon pattern-matches known Mastodon hostnames. Pure, no I/O.
func DetectMastodon(instanceURL string) bool {
	host := instanceHost(instanceURL)
	if host == "" {
		return false
	}
	return strings.Contains(host, "mastodon") || mastodonKnownHosts[host]
}

// MastodonAdapter speaks the Mastodon REST API through go-mastodon, with
// the session supplying the transport so every call flows through the
// shared pipeline. Status edits carrying media_attributes and per-media
// caption updates go over the session directly: go-mastodon's Toot has no
// media_attributes field and no media update call.
type MastodonAdapter struct {
	baseURL string
	api     *mastodonapi.Client
	session *transport.Session
	log     logger.Logger
}

// NewMastodon validates the configuration and constructs the adapter.
// Configuration errors surface here, never mid-operation.
func NewMastodon(cfg config.PlatformConfig, session *transport.Session, log logger.Logger) (Adapter, error) {
	if err := validateBaseConfig("mastodon", cfg); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.GetLogger()
	}

	baseURL := strings.TrimRight(cfg.InstanceURL, "/")

	session.SetHeader("Authorization", "Bearer "+cfg.AccessToken)

	api := mastodonapi.NewClient(&mastodonapi.Config{
		Server:       baseURL,
		AccessToken:  cfg.AccessToken,
		ClientID:     cfg.ClientKey,
		ClientSecret: cfg.ClientSecret,
	})
	api.Transport = session.RoundTripper()
	api.Timeout = session.Timeout()

	return &MastodonAdapter{
		baseURL: baseURL,
		api:     api,
		session: session,
		log:     log.WithField("platform", "mastodon"),
	}, nil
}

// validateBaseConfig checks the minimum every adapter needs: an instance
// URL and an access credential.
func validateBaseConfig(name string, cfg config.PlatformConfig) error {
	var missing []string
	if strings.TrimSpace(cfg.InstanceURL) == "" {
		missing = append(missing, "instance URL")
	}
	if strings.TrimSpace(cfg.AccessToken) == "" {
		missing = append(missing, "access token")
	}
	if len(missing) > 0 {
		return &federr.AdapterError{
			Op:       "configure",
			Platform: name,
			Err:      errors.New("missing " + strings.Join(missing, " and ")),
		}
	}
	return nil
}

func (m *MastodonAdapter) Name() string { return "mastodon" }

func (m *MastodonAdapter) GetUserPosts(ctx context.Context, userID string, limit int) ([]Post, error) {
	limit = clampLimit(limit, mastodonDefaultPageSize, mastodonMaxPageSize)

	statuses, err := m.api.GetAccountStatuses(ctx, mastodonapi.ID(userID), &mastodonapi.Pagination{
		Limit: int64(limit),
	})
	if err != nil {
		return nil, err
	}

	posts := make([]Post, 0, len(statuses))
	for _, status := range statuses {
		posts = append(posts, fromMastodonStatus(status))
	}
	if len(posts) > limit {
		posts = posts[:limit]
	}
	return posts, nil
}

func (m *MastodonAdapter) GetPostByID(ctx context.Context, postID string) (*Post, error) {
	status, err := m.api.GetStatus(ctx, mastodonapi.ID(postID))
	if err != nil {
		return nil, err
	}
	post := fromMastodonStatus(status)
	return &post, nil
}

func (m *MastodonAdapter) UpdateMediaCaption(ctx context.Context, imageID, caption string) (bool, error) {
	u := fmt.Sprintf("%s/api/v1/media/%s", m.baseURL, url.PathEscape(imageID))
	body := map[string]string{"description": caption}

	var updated Attachment
	if err := m.session.SendJSON(ctx, http.MethodPut, u, body, &updated); err != nil {
		return false, err
	}
	return updated.ID != "", nil
}

func (m *MastodonAdapter) UpdatePost(ctx context.Context, postID string, post *Post) (bool, error) {
	if post == nil {
		return false, &federr.AdapterError{
			Op:       "update_post",
			Target:   postID,
			Platform: m.Name(),
			Err:      errors.New("nil post"),
		}
	}

	u := fmt.Sprintf("%s/api/v1/statuses/%s", m.baseURL, url.PathEscape(postID))
	body := statusEditPayload(post)

	var updated Post
	if err := m.session.SendJSON(ctx, http.MethodPut, u, body, &updated); err != nil {
		return false, err
	}
	return updated.ID != "", nil
}

func (m *MastodonAdapter) ExtractImagesFromPost(post *Post) []ExtractedImage {
	return extractImages(post)
}

func (m *MastodonAdapter) RateLimitInfo(headers http.Header) map[string]int {
	return parseRateLimitHeaders(headers)
}

func (m *MastodonAdapter) SupportsDirectCaption() bool { return true }

func (m *MastodonAdapter) Cleanup() {}

// fromMastodonStatus converts a go-mastodon status into the shared model.
func fromMastodonStatus(status *mastodonapi.Status) Post {
	attachments := make([]Attachment, 0, len(status.MediaAttachments))
	for _, att := range status.MediaAttachments {
		attachments = append(attachments, Attachment{
			ID:          string(att.ID),
			Type:        att.Type,
			URL:         att.URL,
			PreviewURL:  att.PreviewURL,
			Description: att.Description,
		})
	}

	return Post{
		ID:          string(status.ID),
		Content:     status.Content,
		CreatedAt:   status.CreatedAt,
		URL:         status.URL,
		Visibility:  status.Visibility,
		Attachments: attachments,
	}
}

// statusEditPayload builds the Mastodon-family status edit body,
// re-submitting the text and carrying alt text in media_attributes.
func statusEditPayload(post *Post) map[string]interface{} {
	mediaIDs := make([]string, 0, len(post.Attachments))
	attrs := make([]map[string]string, 0, len(post.Attachments))
	for _, att := range post.Attachments {
		mediaIDs = append(mediaIDs, att.ID)
		attrs = append(attrs, map[string]string{
			"id":          att.ID,
			"description": att.AltText(),
		})
	}

	return map[string]interface{}{
		"status":           post.Content,
		"media_ids":        mediaIDs,
		"media_attributes": attrs,
	}
}
