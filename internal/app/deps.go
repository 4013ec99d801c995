package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/vidfriends/reelfeed/internal/auth"
	"github.com/vidfriends/reelfeed/internal/cache"
	"github.com/vidfriends/reelfeed/internal/config"
	"github.com/vidfriends/reelfeed/internal/feed"
	"github.com/vidfriends/reelfeed/internal/middleware"
	"github.com/vidfriends/reelfeed/internal/playback"
	"github.com/vidfriends/reelfeed/internal/remote"
	"github.com/vidfriends/reelfeed/internal/statusapi"
)

// session is one running feed: the state container and every component
// that reads or writes it.
type session struct {
	cfg    config.Config
	logger *slog.Logger

	cache      cache.Store
	client     *remote.Client
	identity   *auth.Provider
	media      remote.MediaURLs
	store      *feed.Store
	tracker    *feed.Tracker
	paginator  *feed.Paginator
	reconciler *feed.Reconciler
	director   *playback.Director

	unfollow func()
	wg       sync.WaitGroup
}

// buildSession wires together the concrete implementations behind a feed.
func buildSession(ctx context.Context, cfg config.Config, logger *slog.Logger) (*session, error) {
	store, err := cache.Open(ctx, cfg.CacheDSN)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}

	client, err := remote.NewClient(cfg.APIBaseURL,
		remote.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
		remote.WithRateLimit(cfg.APIRate, cfg.APIBurst),
	)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	identity, err := signIn(ctx, cfg.Identity)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	media := remote.NewMediaURLs(cfg.MediaBaseURL)
	feedStore := feed.NewStore()
	s := &session{
		cfg:        cfg,
		logger:     logger,
		cache:      store,
		client:     client,
		identity:   identity,
		media:      media,
		store:      feedStore,
		tracker:    feed.NewTracker(cfg.VisibilityThreshold, feedStore),
		paginator:  feed.NewPaginator(feedStore, client, store, cfg.PageSize, logger),
		reconciler: feed.NewReconciler(feedStore, client, store, identity, logger),
	}
	s.director = playback.NewDirector(feedStore, playback.NewHTTPElementFactory(playback.HTTPElementConfig{
		Client:    &http.Client{},
		StreamURL: media.Primary,
		Logger:    logger,
	}), logger)
	return s, nil
}

// signIn seeds the identity provider from configuration. Without a token the
// provider stays signed out and mutations report that a sign-in is needed.
func signIn(ctx context.Context, cfg config.IdentityConfig) (*auth.Provider, error) {
	provider := auth.NewProvider(cfg.TokenTTL, auth.NewInMemorySessionStore())
	if cfg.AccessToken == "" {
		return provider, nil
	}
	if _, err := provider.SignIn(ctx, cfg.UserID, cfg.AccessToken); err != nil {
		return nil, fmt.Errorf("sign in: %w", err)
	}
	return provider, nil
}

// routes exposes the session to the status API.
func (s *session) routes() statusapi.Dependencies {
	return statusapi.Dependencies{
		Feed:           s.store,
		Tracker:        s.tracker,
		Pages:          s.paginator,
		Mutations:      s.reconciler,
		Playback:       s.director,
		Limiter:        middleware.NewKeyedRateLimiter(5, 10, 10*time.Minute),
		Placeholder:    s.media.Thumb,
		AllowedOrigins: s.cfg.CORSOrigins,
	}
}

// start loads the first page, attaches playback and begins following the
// tracked index. It returns once the first page attempt has finished.
func (s *session) start(ctx context.Context) {
	if err := s.paginator.LoadInitial(ctx); err != nil {
		s.logger.Warn("initial feed load failed", "error", err)
	}
	s.follow(ctx)
	s.director.Attach(ctx)
}

// follow fetches the next page as the tracked index nears the tail and
// refreshes the stats of each newly active post.
func (s *session) follow(ctx context.Context) {
	var (
		mu         sync.Mutex
		lastIndex  = -1
		lastActive string
	)
	s.unfollow = s.store.Subscribe(func(state feed.State, _ []feed.RenderConfig) {
		mu.Lock()
		indexChanged := state.CurrentIndex != lastIndex
		lastIndex = state.CurrentIndex
		activeChanged := state.ActivePostID != "" && state.ActivePostID != lastActive
		if activeChanged {
			lastActive = state.ActivePostID
		}
		mu.Unlock()

		if indexChanged {
			s.background(func() {
				if _, err := s.paginator.MaybeLoadMore(ctx); err != nil && !errors.Is(err, context.Canceled) {
					s.logger.Warn("load more failed", "error", err)
				}
			})
		}
		if activeChanged {
			postID := state.ActivePostID
			s.background(func() { s.reconciler.LoadStats(ctx, postID) })
		}
	})
}

func (s *session) background(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

// Close stops playback, waits for background fetches and closes the cache.
func (s *session) Close() error {
	if s.unfollow != nil {
		s.unfollow()
	}
	s.director.Close()
	s.wg.Wait()
	return s.cache.Close()
}
