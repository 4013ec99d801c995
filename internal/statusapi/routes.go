// Package statusapi is the local control surface of a running feed session.
// It reports the feed state and render window and accepts the inputs a
// renderer would otherwise deliver: visibility reports, likes, comments and
// the mute toggle.
package statusapi

import "net/http"

// RegisterRoutes wires HTTP handlers into the provided ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	health := HealthHandler{}
	feeds := FeedHandler{Feed: deps.Feed, Tracker: deps.Tracker, Pages: deps.Pages, Placeholder: deps.Placeholder}
	posts := PostHandler{Feed: deps.Feed, Mutations: deps.Mutations, Limiter: deps.Limiter}
	player := PlaybackHandler{Feed: deps.Feed, Playback: deps.Playback}
	stream := StreamHandler{Feed: deps.Feed, Placeholder: deps.Placeholder, AllowedOrigins: deps.AllowedOrigins}

	mux.HandleFunc("/healthz", health.Handle)
	mux.HandleFunc("/api/v1/feed", feeds.State)
	mux.HandleFunc("/api/v1/feed/window", feeds.Window)
	mux.HandleFunc("/api/v1/feed/scroll", feeds.Scroll)
	mux.HandleFunc("/api/v1/feed/more", feeds.More)
	mux.HandleFunc("/api/v1/feed/stream", stream.Serve)
	mux.HandleFunc("/api/v1/posts/{id}/like", posts.Like)
	mux.HandleFunc("/api/v1/posts/{id}/comments", posts.Comments)
	mux.HandleFunc("/api/v1/drawer", posts.Drawer)
	mux.HandleFunc("/api/v1/playback", player.Status)
	mux.HandleFunc("/api/v1/playback/mute", player.Mute)
	mux.HandleFunc("/api/v1/playback/toggle", player.Toggle)
}

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Feed        FeedState
	Tracker     VisibilityObserver
	Pages       PageLoader
	Mutations   Mutations
	Playback    PlaybackStatus
	Limiter     RateLimiter
	Placeholder PlaceholderURL
	// AllowedOrigins restricts websocket upgrades; empty allows same-origin only.
	AllowedOrigins []string
}
