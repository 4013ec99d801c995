package statusapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/vidfriends/reelfeed/internal/feed"
	"github.com/vidfriends/reelfeed/internal/logging"
	"github.com/vidfriends/reelfeed/internal/models"
	"github.com/vidfriends/reelfeed/internal/remote"
)

// PostHandler applies likes and comments to posts in the feed.
type PostHandler struct {
	Feed      FeedState
	Mutations Mutations
	Limiter   RateLimiter
}

type likeResponse struct {
	PostID string `json:"postId"`
	Liked  bool   `json:"liked"`
	Likes  int    `json:"likes"`
}

// Like handles POST /api/v1/posts/{id}/like.
func (h PostHandler) Like(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()
	postID := strings.TrimSpace(r.PathValue("id"))
	logger := logging.FromContext(ctx).With("postId", postID)

	if h.Mutations == nil || h.Feed == nil {
		logger.Error("like dependencies unavailable", "hasMutations", h.Mutations != nil, "hasFeed", h.Feed != nil)
		respondJSON(ctx, w, http.StatusServiceUnavailable, errorBody("mutations unavailable"))
		return
	}
	if postID == "" {
		respondJSON(ctx, w, http.StatusBadRequest, errorBody("post id is required"))
		return
	}
	if !allowRequest(h.Limiter, r, "like") {
		respondJSON(ctx, w, http.StatusTooManyRequests, errorBody("too many requests"))
		return
	}

	if _, err := h.Mutations.ToggleLike(ctx, postID); err != nil {
		status, msg := mutationError(err)
		respondJSON(ctx, w, status, errorBody(msg))
		return
	}

	state := h.Feed.Snapshot()
	respondJSON(ctx, w, http.StatusOK, likeResponse{
		PostID: postID,
		Liked:  state.IsLiked(postID),
		Likes:  state.StatsFor(postID).Likes,
	})
}

type commentRequest struct {
	Text string `json:"text"`
}

type commentsResponse struct {
	PostID   string           `json:"postId"`
	Comments []models.Comment `json:"comments"`
	Count    int              `json:"count"`
}

// Comments handles GET and POST /api/v1/posts/{id}/comments.
func (h PostHandler) Comments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()
	postID := strings.TrimSpace(r.PathValue("id"))
	logger := logging.FromContext(ctx).With("postId", postID)

	if h.Mutations == nil || h.Feed == nil {
		logger.Error("comment dependencies unavailable", "hasMutations", h.Mutations != nil, "hasFeed", h.Feed != nil)
		respondJSON(ctx, w, http.StatusServiceUnavailable, errorBody("mutations unavailable"))
		return
	}
	if postID == "" {
		respondJSON(ctx, w, http.StatusBadRequest, errorBody("post id is required"))
		return
	}

	if r.Method == http.MethodGet {
		comments := h.Mutations.LoadComments(ctx, postID)
		if comments == nil {
			comments = []models.Comment{}
		}
		respondJSON(ctx, w, http.StatusOK, commentsResponse{
			PostID:   postID,
			Comments: comments,
			Count:    h.Feed.Snapshot().StatsFor(postID).Comments,
		})
		return
	}

	if !allowRequest(h.Limiter, r, "comment") {
		respondJSON(ctx, w, http.StatusTooManyRequests, errorBody("too many requests"))
		return
	}

	var req commentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		logger.Warn("invalid comment payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, errorBody("invalid request body"))
		return
	}

	created, err := h.Mutations.AddComment(ctx, postID, req.Text)
	if err != nil {
		status, msg := mutationError(err)
		respondJSON(ctx, w, status, errorBody(msg))
		return
	}

	respondJSON(ctx, w, http.StatusCreated, created)
}

type drawerRequest struct {
	PostID string `json:"postId"`
}

// Drawer handles POST /api/v1/drawer. An empty post id closes the drawer.
func (h PostHandler) Drawer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()
	if h.Feed == nil {
		respondJSON(ctx, w, http.StatusServiceUnavailable, errorBody("feed unavailable"))
		return
	}

	var req drawerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, errorBody("invalid request body"))
		return
	}

	var state feed.State
	if postID := strings.TrimSpace(req.PostID); postID != "" {
		state = h.Feed.Dispatch(feed.OpenDrawer{PostID: postID})
	} else {
		state = h.Feed.Dispatch(feed.CloseDrawer{})
	}
	respondJSON(ctx, w, http.StatusOK, map[string]any{
		"open":   state.DrawerOpen,
		"postId": state.DrawerPostID,
	})
}

func mutationError(err error) (int, string) {
	switch {
	case errors.Is(err, feed.ErrAuthRequired), errors.Is(err, remote.ErrUnauthorized):
		return http.StatusUnauthorized, "sign in required"
	case errors.Is(err, feed.ErrEmptyComment):
		return http.StatusBadRequest, "comment text is required"
	case errors.Is(err, remote.ErrNotFound):
		return http.StatusNotFound, "post not found"
	case errors.Is(err, feed.ErrEngagementUnavailable):
		return http.StatusServiceUnavailable, "mutations unavailable"
	default:
		return http.StatusBadGateway, "posts service request failed"
	}
}
