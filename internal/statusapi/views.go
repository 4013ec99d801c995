package statusapi

import (
	"github.com/vidfriends/reelfeed/internal/feed"
	"github.com/vidfriends/reelfeed/internal/models"
)

type stateView struct {
	Version        uint64        `json:"version"`
	Phase          feed.Phase    `json:"phase"`
	Cursor         int           `json:"cursor"`
	HasMore        bool          `json:"hasMore"`
	CurrentIndex   int           `json:"currentIndex"`
	InitialLoading bool          `json:"initialLoading"`
	LoadingMore    bool          `json:"loadingMore"`
	ActivePostID   string        `json:"activePostId,omitempty"`
	Muted          bool          `json:"muted"`
	DrawerOpen     bool          `json:"drawerOpen"`
	DrawerPostID   string        `json:"drawerPostId,omitempty"`
	Posts          []postSummary `json:"posts"`
}

type postSummary struct {
	ID       string            `json:"id"`
	Title    string            `json:"title"`
	Kind     models.MediaKind  `json:"kind,omitempty"`
	Status   models.PostStatus `json:"status,omitempty"`
	Liked    bool              `json:"liked"`
	Likes    int               `json:"likes"`
	Comments int               `json:"comments"`
}

func newStateView(s feed.State) stateView {
	view := stateView{
		Version:        s.Version,
		Phase:          s.Phase,
		Cursor:         s.Cursor,
		HasMore:        s.HasMore,
		CurrentIndex:   s.CurrentIndex,
		InitialLoading: s.InitialLoading,
		LoadingMore:    s.LoadingMore,
		ActivePostID:   s.ActivePostID,
		Muted:          s.Muted,
		DrawerOpen:     s.DrawerOpen,
		DrawerPostID:   s.DrawerPostID,
		Posts:          make([]postSummary, 0, len(s.Posts)),
	}
	for _, p := range s.Posts {
		stats := s.StatsFor(p.ID)
		summary := postSummary{
			ID:       p.ID,
			Title:    p.Title(),
			Status:   p.Status,
			Liked:    s.IsLiked(p.ID),
			Likes:    stats.Likes,
			Comments: stats.Comments,
		}
		if ref, ok := p.PrimaryMedia(); ok {
			summary.Kind = ref.Kind
		}
		view.Posts = append(view.Posts, summary)
	}
	return view
}

// windowView mirrors the "Current / Mounted" overlay of the feed.
type windowView struct {
	Version uint64      `json:"version"`
	Current int         `json:"current"`
	Mounted []int       `json:"mounted"`
	Items   []windowRow `json:"items"`
}

type windowRow struct {
	Index       int                  `json:"index"`
	PostID      string               `json:"postId"`
	Distance    int                  `json:"distance"`
	Mounted     bool                 `json:"mounted"`
	Strategy    feed.PreloadStrategy `json:"strategy"`
	Active      bool                 `json:"active,omitempty"`
	NextUp      bool                 `json:"nextUp,omitempty"`
	OnDeck      bool                 `json:"onDeck,omitempty"`
	Placeholder string               `json:"placeholder,omitempty"`
}

func newWindowView(s feed.State, window []feed.RenderConfig, placeholder PlaceholderURL) windowView {
	mounted := feed.MountedIndices(window)
	if mounted == nil {
		mounted = []int{}
	}
	view := windowView{
		Version: s.Version,
		Current: s.CurrentIndex,
		Mounted: mounted,
		Items:   make([]windowRow, 0, len(window)),
	}
	for i, cfg := range window {
		row := windowRow{
			Index:    cfg.Index,
			PostID:   cfg.Post.ID,
			Distance: cfg.Distance,
			Mounted:  cfg.Mounted,
			Strategy: cfg.Strategy,
			Active:   cfg.Active,
			NextUp:   cfg.NextUp,
			OnDeck:   cfg.OnDeck,
		}
		if ref, ok := feed.Placeholder(window, i); ok && placeholder != nil {
			row.Placeholder = placeholder(ref.ID)
		}
		view.Items = append(view.Items, row)
	}
	return view
}
