package feed

import "github.com/vidfriends/reelfeed/internal/models"

// Phase is the pagination state of a feed session.
type Phase string

const (
	PhaseInitialLoading Phase = "initial-loading"
	PhaseReady          Phase = "ready"
	PhaseLoadingMore    Phase = "loading-more"
	PhaseExhausted      Phase = "exhausted"
)

// State is the single feed session state. Values are treated as immutable:
// Reduce always returns a new State and never mutates the one it was given.
type State struct {
	// Version increases by one with every dispatched action.
	Version uint64

	Posts        []models.Post
	Cursor       int
	HasMore      bool
	Phase        Phase
	CurrentIndex int

	InitialLoading bool
	LoadingMore    bool

	Liked    map[string]bool
	Stats    map[string]models.PostStats
	Comments map[string][]models.Comment

	ActivePostID string
	Muted        bool
	DrawerOpen   bool
	DrawerPostID string
}

// NewState returns the state of a session that has not fetched anything yet.
func NewState() State {
	return State{
		HasMore:        true,
		Phase:          PhaseInitialLoading,
		InitialLoading: true,
		Liked:          map[string]bool{},
		Stats:          map[string]models.PostStats{},
		Comments:       map[string][]models.Comment{},
		Muted:          true,
	}
}

// IsLiked reports whether the current user is known to like the post.
func (s State) IsLiked(postID string) bool {
	return s.Liked[postID]
}

// StatsFor returns the known stats for a post, zero-valued when unknown.
func (s State) StatsFor(postID string) models.PostStats {
	if st, ok := s.Stats[postID]; ok {
		return st
	}
	return models.PostStats{PostID: postID}
}

// IndexOf returns the position of a post in the feed, or -1.
func (s State) IndexOf(postID string) int {
	for i, p := range s.Posts {
		if p.ID == postID {
			return i
		}
	}
	return -1
}

// Action is a tagged state transition.
type Action interface {
	Kind() string
}

type (
	// SetCurrentIndex records the post the viewport is focused on.
	SetCurrentIndex struct{ Index int }
	// PageRequested marks a page fetch as in flight.
	PageRequested struct{ Initial bool }
	// CachedSnapshot shows cached posts while the first page is still loading.
	CachedSnapshot struct{ Posts []models.Post }
	// PageLoaded applies a successfully fetched page.
	PageLoaded struct {
		Initial   bool
		Posts     []models.Post
		Requested int
	}
	// PageFailed clears loading flags without moving the cursor.
	PageFailed struct{ Initial bool }
	// StatsLoaded overwrites a post's stats with a fetched or cached value.
	StatsLoaded struct{ Stats models.PostStats }
	// LikeToggled flips the liked membership and adjusts the count by one.
	LikeToggled struct{ PostID string }
	// LikeConfirmed overwrites membership and count with authoritative values.
	LikeConfirmed struct {
		PostID string
		Liked  bool
		Likes  int
	}
	// CommentsLoaded replaces the visible comment list of a post.
	CommentsLoaded struct {
		PostID   string
		Comments []models.Comment
	}
	// CommentPrepended adds a comment to the top of the visible list and
	// bumps the comment count.
	CommentPrepended struct{ Comment models.Comment }
	// SetActivePost records the post currently owning playback. A post that
	// is in the feed but not at the current index is ignored.
	SetActivePost struct{ PostID string }
	// SetMuted sets the process-wide mute flag.
	SetMuted struct{ Muted bool }
	// ToggleMute flips the process-wide mute flag.
	ToggleMute struct{}
	// OpenDrawer opens the comment drawer for a post.
	OpenDrawer struct{ PostID string }
	// CloseDrawer closes the comment drawer.
	CloseDrawer struct{}
)

func (SetCurrentIndex) Kind() string  { return "feed/setCurrentIndex" }
func (PageRequested) Kind() string    { return "feed/pageRequested" }
func (CachedSnapshot) Kind() string   { return "feed/cachedSnapshot" }
func (PageLoaded) Kind() string       { return "feed/pageLoaded" }
func (PageFailed) Kind() string       { return "feed/pageFailed" }
func (StatsLoaded) Kind() string      { return "feed/statsLoaded" }
func (LikeToggled) Kind() string      { return "feed/likeToggled" }
func (LikeConfirmed) Kind() string    { return "feed/likeConfirmed" }
func (CommentsLoaded) Kind() string   { return "feed/commentsLoaded" }
func (CommentPrepended) Kind() string { return "feed/commentPrepended" }
func (SetActivePost) Kind() string    { return "ui/setActivePost" }
func (SetMuted) Kind() string         { return "ui/setMuted" }
func (ToggleMute) Kind() string       { return "ui/toggleMute" }
func (OpenDrawer) Kind() string       { return "ui/openDrawer" }
func (CloseDrawer) Kind() string      { return "ui/closeDrawer" }

// Reduce applies an action to a state and returns the next state.
// Unknown actions return the state unchanged.
func Reduce(s State, action Action) State {
	switch a := action.(type) {
	case SetCurrentIndex:
		if a.Index >= 0 {
			s.CurrentIndex = a.Index
		}
	case PageRequested:
		if a.Initial {
			s.InitialLoading = true
			s.Phase = PhaseInitialLoading
		} else {
			s.LoadingMore = true
			s.Phase = PhaseLoadingMore
		}
	case CachedSnapshot:
		if len(s.Posts) == 0 && len(a.Posts) > 0 {
			s.Posts = appendUnique(nil, a.Posts)
		}
	case PageLoaded:
		s = applyPage(s, a)
	case PageFailed:
		if a.Initial {
			s.InitialLoading = false
			s.Phase = PhaseInitialLoading
		} else {
			s.LoadingMore = false
			if s.HasMore {
				s.Phase = PhaseReady
			} else {
				s.Phase = PhaseExhausted
			}
		}
	case StatsLoaded:
		s.Stats = copyStats(s.Stats)
		s.Stats[a.Stats.PostID] = a.Stats
	case LikeToggled:
		st := s.StatsFor(a.PostID)
		s.Liked = copyLiked(s.Liked)
		if s.Liked[a.PostID] {
			delete(s.Liked, a.PostID)
			st.Likes = max(st.Likes-1, 0)
		} else {
			s.Liked[a.PostID] = true
			st.Likes++
		}
		s.Stats = copyStats(s.Stats)
		s.Stats[a.PostID] = st
	case LikeConfirmed:
		st := s.StatsFor(a.PostID)
		st.Likes = max(a.Likes, 0)
		s.Stats = copyStats(s.Stats)
		s.Stats[a.PostID] = st
		s.Liked = copyLiked(s.Liked)
		if a.Liked {
			s.Liked[a.PostID] = true
		} else {
			delete(s.Liked, a.PostID)
		}
	case CommentsLoaded:
		s.Comments = copyComments(s.Comments)
		s.Comments[a.PostID] = append([]models.Comment(nil), a.Comments...)
	case CommentPrepended:
		postID := a.Comment.PostID
		s.Comments = copyComments(s.Comments)
		list := make([]models.Comment, 0, len(s.Comments[postID])+1)
		list = append(list, a.Comment)
		s.Comments[postID] = append(list, s.Comments[postID]...)
		st := s.StatsFor(postID)
		st.Comments++
		s.Stats = copyStats(s.Stats)
		s.Stats[postID] = st
	case SetActivePost:
		if i := s.IndexOf(a.PostID); i < 0 || i == s.CurrentIndex {
			s.ActivePostID = a.PostID
		}
	case SetMuted:
		s.Muted = a.Muted
	case ToggleMute:
		s.Muted = !s.Muted
	case OpenDrawer:
		s.DrawerOpen = true
		s.DrawerPostID = a.PostID
	case CloseDrawer:
		s.DrawerOpen = false
	}
	return s
}

func applyPage(s State, a PageLoaded) State {
	if a.Initial {
		// A fresh first page replaces any cached snapshot.
		s.Posts = appendUnique(nil, a.Posts)
		s.Cursor = len(a.Posts)
		s.InitialLoading = false
		s.HasMore = a.Requested > 0 && len(a.Posts) >= a.Requested
		s.Phase = PhaseReady
		return s
	}

	s.Posts = appendUnique(s.Posts, a.Posts)
	s.Cursor += len(a.Posts)
	s.LoadingMore = false
	if len(a.Posts) < a.Requested {
		s.HasMore = false
		s.Phase = PhaseExhausted
	} else {
		s.Phase = PhaseReady
	}
	return s
}

// appendUnique returns a new slice holding existing followed by every post of
// incoming whose id is not already present.
func appendUnique(existing, incoming []models.Post) []models.Post {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	out := make([]models.Post, 0, len(existing)+len(incoming))
	for _, p := range existing {
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}
	for _, p := range incoming {
		if _, ok := seen[p.ID]; ok {
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}
	return out
}

func copyLiked(in map[string]bool) map[string]bool {
	out := make(map[string]bool, len(in)+1)
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyStats(in map[string]models.PostStats) map[string]models.PostStats {
	out := make(map[string]models.PostStats, len(in)+1)
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyComments(in map[string][]models.Comment) map[string][]models.Comment {
	out := make(map[string][]models.Comment, len(in)+1)
	for k, v := range in {
		out[k] = v
	}
	return out
}
