package statusapi

import (
	"errors"
	"io"
	"net/http"

	"github.com/vidfriends/reelfeed/internal/feed"
	"github.com/vidfriends/reelfeed/internal/playback"
)

// PlaybackHandler reports mounted controllers and drives the mute flag.
type PlaybackHandler struct {
	Feed     FeedState
	Playback PlaybackStatus
}

type playbackResponse struct {
	ActivePostID string                               `json:"activePostId,omitempty"`
	Muted        bool                                 `json:"muted"`
	Controllers  map[string]playback.ControllerStatus `json:"controllers"`
}

// Status handles GET /api/v1/playback.
func (h PlaybackHandler) Status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()
	if h.Feed == nil || h.Playback == nil {
		respondJSON(ctx, w, http.StatusServiceUnavailable, errorBody("playback unavailable"))
		return
	}

	respondJSON(ctx, w, http.StatusOK, h.view(h.Feed.Snapshot()))
}

type muteRequest struct {
	Muted *bool `json:"muted"`
}

// Mute handles POST /api/v1/playback/mute. Without a muted field, or with
// no body at all, the flag is toggled.
func (h PlaybackHandler) Mute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()
	if h.Feed == nil {
		respondJSON(ctx, w, http.StatusServiceUnavailable, errorBody("playback unavailable"))
		return
	}

	var req muteRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		respondJSON(ctx, w, http.StatusBadRequest, errorBody("invalid request body"))
		return
	}

	var state feed.State
	if req.Muted != nil {
		state = h.Feed.Dispatch(feed.SetMuted{Muted: *req.Muted})
	} else {
		state = h.Feed.Dispatch(feed.ToggleMute{})
	}
	respondJSON(ctx, w, http.StatusOK, map[string]bool{"muted": state.Muted})
}

// Toggle handles POST /api/v1/playback/toggle, flipping play and pause on
// the active post.
func (h PlaybackHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()
	if h.Feed == nil || h.Playback == nil {
		respondJSON(ctx, w, http.StatusServiceUnavailable, errorBody("playback unavailable"))
		return
	}

	h.Playback.Toggle(ctx)
	respondJSON(ctx, w, http.StatusOK, h.view(h.Feed.Snapshot()))
}

func (h PlaybackHandler) view(state feed.State) playbackResponse {
	return playbackResponse{
		ActivePostID: state.ActivePostID,
		Muted:        state.Muted,
		Controllers:  h.Playback.Status(),
	}
}
