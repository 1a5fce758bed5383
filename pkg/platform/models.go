package platform

import (
	"strings"
	"time"
)

// Post is a platform-supplied status. It is immutable once fetched; this
// layer never owns it. The JSON shape follows the Mastodon API family,
// which Pixelfed and Pleroma both speak.
type Post struct {
	ID          string       `json:"id"`
	Type        string       `json:"type,omitempty"`
	Content     string       `json:"content"`
	CreatedAt   time.Time    `json:"created_at"`
	URL         string       `json:"url,omitempty"`
	Visibility  string       `json:"visibility,omitempty"`
	Attachments []Attachment `json:"media_attachments"`
}

// Attachment is a single media item on a post.
type Attachment struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	URL         string `json:"url"`
	PreviewURL  string `json:"preview_url,omitempty"`
	Description string `json:"description"`
	// Name is the raw ActivityPub alt-text field; some forks emit it
	// instead of description.
	Name string `json:"name,omitempty"`
}

// AltText returns the attachment's accessibility text, whichever field the
// platform delivered it in.
func (a Attachment) AltText() string {
	if a.Description != "" {
		return a.Description
	}
	return a.Name
}

// IsImage reports whether the attachment is a still image.
func (a Attachment) IsImage() bool {
	return a.Type == "image"
}

// ExtractedImage is a transient view over an attachment selected for
// captioning. It has no independent lifecycle.
type ExtractedImage struct {
	URL             string
	MediaType       string
	AttachmentID    string
	AttachmentIndex int
	Attachment      Attachment
	PostCreatedAt   time.Time
}

// extractImages returns the post's image attachments whose accessibility
// text is empty or whitespace-only, preserving original attachment order
// via AttachmentIndex. Pure: no I/O, deterministic.
func extractImages(post *Post) []ExtractedImage {
	if post == nil {
		return nil
	}

	var images []ExtractedImage
	for i, att := range post.Attachments {
		if !att.IsImage() {
			continue
		}
		if strings.TrimSpace(att.AltText()) != "" {
			continue
		}
		images = append(images, ExtractedImage{
			URL:             att.URL,
			MediaType:       att.Type,
			AttachmentID:    att.ID,
			AttachmentIndex: i,
			Attachment:      att,
			PostCreatedAt:   post.CreatedAt,
		})
	}
	return images
}
