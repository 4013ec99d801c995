package playback

import (
	"context"
	"log/slog"
	"sync"

	"github.com/vidfriends/reelfeed/internal/feed"
	"github.com/vidfriends/reelfeed/internal/models"
)

// State is the playback state of one mounted post.
type State string

const (
	StateIdle      State = "idle"
	StateBuffering State = "buffering"
	StatePlaying   State = "playing"
	StatePaused    State = "paused"
)

// EventType enumerates the notifications a media element raises.
type EventType string

const (
	// EventCanPlay means enough data is buffered to play without stalling.
	EventCanPlay EventType = "canplay"
	// EventWaiting means playback stalled waiting for data.
	EventWaiting EventType = "waiting"
	// EventPlaying means playback started or resumed.
	EventPlaying EventType = "playing"
	// EventProgress reports a new buffered fraction.
	EventProgress EventType = "progress"
)

// Event is one notification from a media element.
type Event struct {
	Type EventType
	// Buffered is the downloaded fraction of the media duration, in [0, 1].
	Buffered float64
}

// Element is the media backend driven by a Controller.
type Element interface {
	// Preload applies a buffering strategy. Strategies that need content start
	// fetching in the background and report progress through events.
	Preload(strategy feed.PreloadStrategy)
	// Play attempts to start playback. A rejected attempt returns an error.
	Play(ctx context.Context) error
	Pause()
	SetMuted(muted bool)
	// Close tears the element down, stopping any transfer.
	Close()
}

// Controller owns the play, pause and buffering lifecycle of one post.
// Events for a single controller are applied in the order they arrive.
type Controller struct {
	post    models.Post
	element Element
	logger  *slog.Logger

	mu       sync.Mutex
	state    State
	cfg      feed.RenderConfig
	ready    bool
	wantPlay bool
	buffered float64
	mounted  bool
}

// NewController constructs an idle controller for a post.
func NewController(post models.Post, element Element, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		post:    post,
		element: element,
		logger:  logger.With("postId", post.ID),
		state:   StateIdle,
		ready:   !post.IsVideo(),
	}
}

// Mount applies the initial render configuration and mute flag.
func (c *Controller) Mount(ctx context.Context, cfg feed.RenderConfig, muted bool) {
	c.mu.Lock()
	c.mounted = true
	c.mu.Unlock()

	c.SetMuted(muted)
	c.Update(ctx, cfg)
}

// Update applies a new render configuration. Gaining the active role always
// attempts playback; losing it always pauses.
func (c *Controller) Update(ctx context.Context, cfg feed.RenderConfig) {
	c.mu.Lock()
	if !c.mounted {
		c.mu.Unlock()
		return
	}
	prev := c.cfg
	c.cfg = cfg
	isVideo := c.post.IsVideo()

	preload := isVideo && c.element != nil && (prev.Strategy != cfg.Strategy || prev.Post.ID == "")
	if preload && cfg.Strategy == feed.PreloadFull && c.state == StateIdle && !c.ready {
		c.state = StateBuffering
	}

	becameActive := cfg.Active && !prev.Active
	lostActive := !cfg.Active && prev.Active
	c.mu.Unlock()

	if preload {
		c.element.Preload(cfg.Strategy)
	}

	switch {
	case becameActive:
		c.play(ctx)
	case lostActive:
		c.pause()
	}
}

// Toggle flips between playing and paused for the active post. It is a no-op
// for inactive posts and for images.
func (c *Controller) Toggle(ctx context.Context) {
	c.mu.Lock()
	active := c.cfg.Active && c.mounted
	state := c.state
	c.mu.Unlock()

	if !active || !c.post.IsVideo() {
		return
	}
	if state == StatePlaying || (state == StateBuffering && c.wantsPlay()) {
		c.pause()
		return
	}
	c.play(ctx)
}

// HandleEvent applies a media element notification.
func (c *Controller) HandleEvent(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.mounted || !c.post.IsVideo() {
		return
	}

	switch ev.Type {
	case EventCanPlay:
		c.ready = true
		if c.state == StateBuffering {
			if c.wantPlay {
				c.state = StatePlaying
			} else {
				c.state = StatePaused
			}
		}
	case EventWaiting:
		if c.state == StatePlaying {
			c.state = StateBuffering
		}
	case EventPlaying:
		if c.wantPlay {
			c.state = StatePlaying
		}
	case EventProgress:
		c.buffered = clamp01(ev.Buffered)
		if c.cfg.NextUp {
			c.logger.Debug("buffering next-up post", "index", c.cfg.Index, "buffered", c.buffered)
		}
	}
}

// SetMuted applies the process-wide mute flag to the element.
func (c *Controller) SetMuted(muted bool) {
	if c.element != nil && c.post.IsVideo() {
		c.element.SetMuted(muted)
	}
}

// Unmount tears the element down and returns the controller to idle.
func (c *Controller) Unmount() {
	c.mu.Lock()
	if !c.mounted {
		c.mu.Unlock()
		return
	}
	c.mounted = false
	c.state = StateIdle
	c.wantPlay = false
	element := c.element
	c.mu.Unlock()

	if element != nil {
		element.Close()
	}
}

func (c *Controller) setElement(element Element) {
	c.mu.Lock()
	c.element = element
	c.mu.Unlock()
}

// State returns the current playback state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// BufferProgress returns the buffered fraction. It is only exposed while the
// post holds the next-up role.
func (c *Controller) BufferProgress() (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.cfg.NextUp || !c.post.IsVideo() {
		return 0, false
	}
	return c.buffered, true
}

// Config returns the last applied render configuration.
func (c *Controller) Config() feed.RenderConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

func (c *Controller) play(ctx context.Context) {
	if !c.post.IsVideo() || c.element == nil {
		return
	}

	c.mu.Lock()
	c.wantPlay = true
	c.mu.Unlock()

	if err := c.element.Play(ctx); err != nil {
		c.logger.Warn("playback rejected", "error", err)
		c.mu.Lock()
		c.wantPlay = false
		if c.mounted {
			c.state = StatePaused
		}
		c.mu.Unlock()
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.mounted || !c.wantPlay {
		return
	}
	if c.ready {
		c.state = StatePlaying
	} else {
		c.state = StateBuffering
	}
}

func (c *Controller) pause() {
	if !c.post.IsVideo() || c.element == nil {
		return
	}
	c.element.Pause()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.wantPlay = false
	if c.mounted && c.state != StateIdle {
		c.state = StatePaused
	}
}

func (c *Controller) wantsPlay() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wantPlay
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
