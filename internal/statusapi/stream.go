package statusapi

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vidfriends/reelfeed/internal/feed"
	"github.com/vidfriends/reelfeed/internal/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// StreamHandler pushes the feed state and render window to websocket
// clients after every change.
type StreamHandler struct {
	Feed           FeedState
	Placeholder    PlaceholderURL
	AllowedOrigins []string
}

type streamFrame struct {
	Type   string     `json:"type"`
	State  stateView  `json:"state"`
	Window windowView `json:"window"`
}

// Serve handles GET /api/v1/feed/stream. Slow clients skip intermediate
// states and only ever receive the newest one.
func (h StreamHandler) Serve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Feed == nil {
		respondJSON(ctx, w, http.StatusServiceUnavailable, errorBody("feed unavailable"))
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	latest := &latestFrame{signal: make(chan struct{}, 1)}
	latest.offer(h.Feed.Snapshot(), h.Feed.Window())
	unsubscribe := h.Feed.Subscribe(latest.offer)
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(maxMessageSize)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Warn("feed stream closed unexpectedly", "error", err)
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	var sent uint64
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(writeWait))
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-latest.signal:
			state, window := latest.take()
			if sent != 0 && state.Version <= sent {
				continue
			}
			sent = state.Version
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(streamFrame{
				Type:   "state",
				State:  newStateView(state),
				Window: newWindowView(state, window, h.Placeholder),
			}); err != nil {
				logger.Warn("write feed stream frame", "error", err)
				return
			}
		}
	}
}

func (h StreamHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if len(h.AllowedOrigins) == 0 {
		return strings.EqualFold(strings.TrimPrefix(strings.TrimPrefix(origin, "http://"), "https://"), r.Host)
	}
	for _, allowed := range h.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// latestFrame keeps only the newest notification by state version.
type latestFrame struct {
	mu     sync.Mutex
	state  feed.State
	window []feed.RenderConfig
	signal chan struct{}
}

func (l *latestFrame) offer(state feed.State, window []feed.RenderConfig) {
	l.mu.Lock()
	if state.Version < l.state.Version {
		l.mu.Unlock()
		return
	}
	l.state = state
	l.window = window
	l.mu.Unlock()

	select {
	case l.signal <- struct{}{}:
	default:
	}
}

func (l *latestFrame) take() (feed.State, []feed.RenderConfig) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state, l.window
}
