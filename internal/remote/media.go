package remote

import (
	"net/url"
	"strings"

	"github.com/vidfriends/reelfeed/internal/models"
)

// MediaURLs builds URLs on the media server for uploaded media ids.
type MediaURLs struct {
	base string
}

// NewMediaURLs returns a builder rooted at the media server base URL.
func NewMediaURLs(base string) MediaURLs {
	return MediaURLs{base: strings.TrimRight(strings.TrimSpace(base), "/")}
}

// Video returns the streaming URL of a video.
func (m MediaURLs) Video(mediaID string) string {
	return m.base + "/stream/" + url.PathEscape(mediaID)
}

// Image returns the URL of a full-size image.
func (m MediaURLs) Image(mediaID string) string {
	return m.base + "/media/" + url.PathEscape(mediaID)
}

// Thumb returns the thumbnail URL of any media object.
func (m MediaURLs) Thumb(mediaID string) string {
	return m.Image(mediaID) + "?thumb=true"
}

// Primary returns the URL of a post's first media reference, or "" when the
// post has none.
func (m MediaURLs) Primary(post models.Post) string {
	ref, ok := post.PrimaryMedia()
	if !ok {
		return ""
	}
	if ref.Kind == models.MediaVideo {
		return m.Video(ref.ID)
	}
	return m.Image(ref.ID)
}
