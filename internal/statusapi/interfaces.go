package statusapi

import (
	"context"

	"github.com/vidfriends/reelfeed/internal/feed"
	"github.com/vidfriends/reelfeed/internal/models"
	"github.com/vidfriends/reelfeed/internal/playback"
)

// FeedState exposes the session state container.
type FeedState interface {
	Snapshot() feed.State
	Window() []feed.RenderConfig
	Dispatch(action feed.Action) feed.State
	Subscribe(l feed.Listener) func()
}

// VisibilityObserver turns viewport visibility reports into index updates.
type VisibilityObserver interface {
	Observe(entries []feed.Visibility) []int
}

// PageLoader grows the feed on demand.
type PageLoader interface {
	LoadMore(ctx context.Context) (bool, error)
}

// Mutations applies engagement changes to posts.
type Mutations interface {
	ToggleLike(ctx context.Context, postID string) (models.LikeResult, error)
	AddComment(ctx context.Context, postID, text string) (models.Comment, error)
	LoadComments(ctx context.Context, postID string) []models.Comment
}

// PlaybackStatus reports and drives the mounted media controllers.
type PlaybackStatus interface {
	Status() map[string]playback.ControllerStatus
	Toggle(ctx context.Context)
}

// PlaceholderURL resolves the thumbnail URL of a media id.
type PlaceholderURL func(mediaID string) string
