package models

import (
	"time"
	"unicode/utf8"
)

// MediaKind distinguishes the two media reference types a post may carry.
type MediaKind string

const (
	MediaVideo MediaKind = "video"
	MediaImage MediaKind = "image"
)

// PostStatus tracks the server-side lifecycle of a post.
type PostStatus string

const (
	PostStatusPending PostStatus = "pending"
	PostStatusPosted  PostStatus = "posted"
)

// MediaRef points at a single uploaded media object.
type MediaRef struct {
	Kind MediaKind `json:"type"`
	ID   string    `json:"id"`
}

// Author identifies who published a post.
type Author struct {
	UserID    string `json:"userId"`
	Username  string `json:"username,omitempty"`
	AvatarURL string `json:"profilePhoto,omitempty"`
}

// Post is a single feed item. A posted item carries at least one media
// reference and never mixes videos with images.
type Post struct {
	ID          string     `json:"id"`
	Media       []MediaRef `json:"media"`
	Caption     string     `json:"caption"`
	Description string     `json:"description"`
	Tags        []string   `json:"tags"`
	Author      Author     `json:"author"`
	CreatedAt   time.Time  `json:"createdAt"`
	Status      PostStatus `json:"status"`
}

// IsVideo reports whether the post's primary media is a video.
func (p Post) IsVideo() bool {
	return len(p.Media) > 0 && p.Media[0].Kind == MediaVideo
}

// PrimaryMedia returns the first media reference, if any.
func (p Post) PrimaryMedia() (MediaRef, bool) {
	if len(p.Media) == 0 {
		return MediaRef{}, false
	}
	return p.Media[0], true
}

// Title derives a short display title from the caption.
func (p Post) Title() string {
	if p.Caption == "" {
		return "Post"
	}
	if utf8.RuneCountInString(p.Caption) <= 24 {
		return p.Caption
	}
	return string([]rune(p.Caption)[:24])
}

// PostStats holds the engagement counters for a post. It is cached
// independently of the post itself.
type PostStats struct {
	PostID   string `json:"postId"`
	Likes    int    `json:"likes"`
	Comments int    `json:"comments"`
}

// Comment is a single text reply attached to a post.
type Comment struct {
	ID        string    `json:"id"`
	PostID    string    `json:"postId"`
	UserID    string    `json:"userId"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// PostPage is one page of posts echoed back with its pagination window.
type PostPage struct {
	Items []Post `json:"items"`
	Take  int    `json:"take"`
	Skip  int    `json:"skip"`
	Total *int   `json:"total,omitempty"`
}

// CommentPage is one page of comments for a post.
type CommentPage struct {
	Items []Comment `json:"items"`
	Take  int       `json:"take"`
	Skip  int       `json:"skip"`
}

// LikeResult is the authoritative outcome of a like toggle.
type LikeResult struct {
	PostID string `json:"postId"`
	Liked  bool   `json:"liked"`
	Likes  int    `json:"likes"`
}

// NewPost describes a post to be created from already-uploaded media.
type NewPost struct {
	Media        []MediaRef `json:"media"`
	Caption      string     `json:"caption"`
	Description  string     `json:"description"`
	Tags         []string   `json:"tags"`
	Username     string     `json:"username,omitempty"`
	ProfilePhoto string     `json:"profilePhoto,omitempty"`
}
