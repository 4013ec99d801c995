package statusapi

import (
	"net/http"

	"github.com/vidfriends/reelfeed/internal/feed"
	"github.com/vidfriends/reelfeed/internal/logging"
	"github.com/vidfriends/reelfeed/internal/remote"
)

// FeedHandler reports the feed state and accepts scroll input.
type FeedHandler struct {
	Feed        FeedState
	Tracker     VisibilityObserver
	Pages       PageLoader
	Placeholder PlaceholderURL
}

// State handles GET /api/v1/feed.
func (h FeedHandler) State(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()
	if h.Feed == nil {
		respondJSON(ctx, w, http.StatusServiceUnavailable, errorBody("feed unavailable"))
		return
	}

	respondJSON(ctx, w, http.StatusOK, newStateView(h.Feed.Snapshot()))
}

// Window handles GET /api/v1/feed/window.
func (h FeedHandler) Window(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()
	if h.Feed == nil {
		respondJSON(ctx, w, http.StatusServiceUnavailable, errorBody("feed unavailable"))
		return
	}

	respondJSON(ctx, w, http.StatusOK, newWindowView(h.Feed.Snapshot(), h.Feed.Window(), h.Placeholder))
}

type scrollRequest struct {
	Entries []feed.Visibility `json:"entries"`
}

type scrollResponse struct {
	Emitted      []int `json:"emitted"`
	CurrentIndex int   `json:"currentIndex"`
}

// Scroll handles POST /api/v1/feed/scroll. The body carries one batch of
// visibility observations in the order the viewport reported them.
func (h FeedHandler) Scroll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Feed == nil || h.Tracker == nil {
		respondJSON(ctx, w, http.StatusServiceUnavailable, errorBody("feed unavailable"))
		return
	}

	var req scrollRequest
	if err := decodeJSON(w, r, &req); err != nil {
		logger.Warn("invalid scroll payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, errorBody("invalid request body"))
		return
	}

	emitted := h.Tracker.Observe(req.Entries)
	if emitted == nil {
		emitted = []int{}
	}
	respondJSON(ctx, w, http.StatusOK, scrollResponse{
		Emitted:      emitted,
		CurrentIndex: h.Feed.Snapshot().CurrentIndex,
	})
}

type moreResponse struct {
	Fetched bool       `json:"fetched"`
	Cursor  int        `json:"cursor"`
	HasMore bool       `json:"hasMore"`
	Phase   feed.Phase `json:"phase"`
}

// More handles POST /api/v1/feed/more.
func (h FeedHandler) More(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()

	if h.Feed == nil || h.Pages == nil {
		respondJSON(ctx, w, http.StatusServiceUnavailable, errorBody("feed unavailable"))
		return
	}

	fetched, err := h.Pages.LoadMore(ctx)
	if err != nil {
		if remote.IsTransient(err) {
			w.Header().Set("Retry-After", "1")
			respondJSON(ctx, w, http.StatusServiceUnavailable, errorBody("posts service unavailable, retry later"))
			return
		}
		respondJSON(ctx, w, http.StatusBadGateway, errorBody("failed to load more posts"))
		return
	}

	state := h.Feed.Snapshot()
	respondJSON(ctx, w, http.StatusOK, moreResponse{
		Fetched: fetched,
		Cursor:  state.Cursor,
		HasMore: state.HasMore,
		Phase:   state.Phase,
	})
}
