package playback

import (
	"context"
	"log/slog"
	"sync"

	"github.com/vidfriends/reelfeed/internal/feed"
	"github.com/vidfriends/reelfeed/internal/models"
)

// ElementFactory creates the media element for a newly mounted post. The
// sink receives the element's events.
type ElementFactory interface {
	NewElement(post models.Post, sink func(Event)) (Element, error)
}

// ElementFactoryFunc adapts a function to ElementFactory.
type ElementFactoryFunc func(post models.Post, sink func(Event)) (Element, error)

// NewElement implements ElementFactory.
func (f ElementFactoryFunc) NewElement(post models.Post, sink func(Event)) (Element, error) {
	return f(post, sink)
}

// Director keeps one Controller per mounted post in step with the feed's
// render window and the process-wide mute flag.
type Director struct {
	store   *feed.Store
	factory ElementFactory
	logger  *slog.Logger

	// apply serializes whole Sync passes so a stale window can never be
	// applied after a newer one.
	apply sync.Mutex

	mu          sync.Mutex
	controllers map[string]*Controller
	muted       bool
	version     uint64
	activeID    string
	unsubscribe func()
}

// NewDirector constructs a Director. Call Attach to start following a store.
func NewDirector(store *feed.Store, factory ElementFactory, logger *slog.Logger) *Director {
	if logger == nil {
		logger = slog.Default()
	}
	return &Director{
		store:       store,
		factory:     factory,
		logger:      logger,
		controllers: make(map[string]*Controller),
		muted:       true,
	}
}

// Attach applies the store's current window and subscribes to later changes.
func (d *Director) Attach(ctx context.Context) {
	d.Sync(ctx, d.store.Snapshot(), d.store.Window())
	unsubscribe := d.store.Subscribe(func(state feed.State, window []feed.RenderConfig) {
		d.Sync(ctx, state, window)
	})
	d.mu.Lock()
	d.unsubscribe = unsubscribe
	d.mu.Unlock()
}

// Sync mounts, updates and unmounts controllers to match a render window.
// Notifications older than the last applied state version are ignored.
// Concurrent calls apply one at a time.
func (d *Director) Sync(ctx context.Context, state feed.State, window []feed.RenderConfig) {
	d.apply.Lock()
	activeID, announce := d.applyWindow(ctx, state, window)
	d.apply.Unlock()

	if announce {
		d.store.Dispatch(feed.SetActivePost{PostID: activeID})
	}
}

// applyWindow runs with d.apply held. It reports the active post and whether
// the store should be told about it.
func (d *Director) applyWindow(ctx context.Context, state feed.State, window []feed.RenderConfig) (string, bool) {
	d.mu.Lock()
	if state.Version != 0 && state.Version < d.version {
		d.mu.Unlock()
		return "", false
	}
	d.version = state.Version

	muteChanged := d.muted != state.Muted
	d.muted = state.Muted

	mounted := make(map[string]feed.RenderConfig, 4)
	activeID := ""
	for _, cfg := range window {
		if !cfg.Mounted {
			continue
		}
		mounted[cfg.Post.ID] = cfg
		if cfg.Active {
			activeID = cfg.Post.ID
		}
	}

	var removed []*Controller
	for id, ctrl := range d.controllers {
		if _, ok := mounted[id]; !ok {
			removed = append(removed, ctrl)
			delete(d.controllers, id)
		}
	}

	type pending struct {
		ctrl  *Controller
		cfg   feed.RenderConfig
		fresh bool
	}
	var updates []pending
	for id, cfg := range mounted {
		if ctrl, ok := d.controllers[id]; ok {
			updates = append(updates, pending{ctrl: ctrl, cfg: cfg})
			continue
		}
		ctrl := d.newController(cfg.Post)
		d.controllers[id] = ctrl
		updates = append(updates, pending{ctrl: ctrl, cfg: cfg, fresh: true})
	}

	controllers := make([]*Controller, 0, len(d.controllers))
	for _, ctrl := range d.controllers {
		controllers = append(controllers, ctrl)
	}
	muted := d.muted
	activeChanged := activeID != "" && activeID != d.activeID
	if activeID != "" {
		d.activeID = activeID
	}
	d.mu.Unlock()

	for _, ctrl := range removed {
		ctrl.Unmount()
	}
	// Demotions first so the previous active post pauses before the next starts.
	for _, u := range updates {
		if !u.fresh && !u.cfg.Active {
			u.ctrl.Update(ctx, u.cfg)
		}
	}
	for _, u := range updates {
		switch {
		case u.fresh:
			u.ctrl.Mount(ctx, u.cfg, muted)
		case u.cfg.Active:
			u.ctrl.Update(ctx, u.cfg)
		}
	}
	if muteChanged {
		for _, ctrl := range controllers {
			ctrl.SetMuted(muted)
		}
	}

	return activeID, activeChanged && state.ActivePostID != activeID
}

// Toggle flips playback of the active post.
func (d *Director) Toggle(ctx context.Context) {
	d.mu.Lock()
	ctrl := d.controllers[d.activeID]
	d.mu.Unlock()
	if ctrl != nil {
		ctrl.Toggle(ctx)
	}
}

// Controller returns the controller of a mounted post.
func (d *Director) Controller(postID string) (*Controller, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ctrl, ok := d.controllers[postID]
	return ctrl, ok
}

// Status summarizes the mounted controllers keyed by post id.
func (d *Director) Status() map[string]ControllerStatus {
	d.mu.Lock()
	controllers := make(map[string]*Controller, len(d.controllers))
	for id, ctrl := range d.controllers {
		controllers[id] = ctrl
	}
	d.mu.Unlock()

	out := make(map[string]ControllerStatus, len(controllers))
	for id, ctrl := range controllers {
		cfg := ctrl.Config()
		status := ControllerStatus{
			Index:    cfg.Index,
			State:    ctrl.State(),
			Strategy: cfg.Strategy,
			Active:   cfg.Active,
			NextUp:   cfg.NextUp,
			OnDeck:   cfg.OnDeck,
		}
		if progress, ok := ctrl.BufferProgress(); ok {
			status.Buffered = &progress
		}
		out[id] = status
	}
	return out
}

// Close unmounts every controller and stops following the store.
func (d *Director) Close() {
	d.apply.Lock()
	defer d.apply.Unlock()

	d.mu.Lock()
	unsubscribe := d.unsubscribe
	d.unsubscribe = nil
	controllers := d.controllers
	d.controllers = make(map[string]*Controller)
	d.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	for _, ctrl := range controllers {
		ctrl.Unmount()
	}
}

// ControllerStatus is a read-only view of one mounted controller.
type ControllerStatus struct {
	Index    int                  `json:"index"`
	State    State                `json:"state"`
	Strategy feed.PreloadStrategy `json:"strategy"`
	Active   bool                 `json:"active"`
	NextUp   bool                 `json:"nextUp"`
	OnDeck   bool                 `json:"onDeck"`
	Buffered *float64             `json:"buffered,omitempty"`
}

func (d *Director) newController(post models.Post) *Controller {
	ctrl := NewController(post, nil, d.logger)
	if d.factory == nil || !post.IsVideo() {
		return ctrl
	}
	element, err := d.factory.NewElement(post, ctrl.HandleEvent)
	if err != nil {
		d.logger.Warn("create media element", "postId", post.ID, "error", err)
		return ctrl
	}
	ctrl.setElement(element)
	return ctrl
}
