package feed

import (
	"context"

	"github.com/vidfriends/reelfeed/internal/models"
)

// PostSource fetches pages of the remote feed.
type PostSource interface {
	ListPosts(ctx context.Context, take, skip int) (models.PostPage, error)
}

// EngagementAPI covers the remote stats, comment and like endpoints.
type EngagementAPI interface {
	GetStats(ctx context.Context, postID string) (models.PostStats, error)
	ListComments(ctx context.Context, postID string, take, skip int) (models.CommentPage, error)
	ToggleLike(ctx context.Context, token, postID string) (models.LikeResult, error)
	AddComment(ctx context.Context, token, postID, text string) (models.Comment, error)
}

// PostCache is the subset of the local cache the pagination path uses.
type PostCache interface {
	ListPosts(ctx context.Context, limit int) ([]models.Post, error)
	UpsertPosts(ctx context.Context, posts []models.Post) error
}

// EngagementCache is the subset of the local cache the stats and comment
// paths use.
type EngagementCache interface {
	GetStats(ctx context.Context, postID string) (models.PostStats, error)
	UpsertStats(ctx context.Context, stats models.PostStats) error
	ListComments(ctx context.Context, postID string, limit int) ([]models.Comment, error)
	UpsertComment(ctx context.Context, comment models.Comment) error
	UpsertComments(ctx context.Context, comments []models.Comment) error
}

// Credentials supplies the bearer credential of the signed-in user.
type Credentials interface {
	Token(ctx context.Context) (string, error)
	UserID(ctx context.Context) (string, error)
}
