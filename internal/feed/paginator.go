package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/vidfriends/reelfeed/internal/logging"
	"github.com/vidfriends/reelfeed/internal/models"
)

// DefaultPageSize is the number of posts requested per page.
const DefaultPageSize = 20

// ErrSourceUnavailable indicates the paginator has no remote source.
var ErrSourceUnavailable = errors.New("feed source unavailable")

// Paginator grows the feed page by page as the tracked index approaches the
// tail. At most one page fetch is in flight at a time.
type Paginator struct {
	store    *Store
	source   PostSource
	cache    PostCache
	pageSize int
	logger   *slog.Logger

	mu       sync.Mutex
	inFlight bool
}

// NewPaginator constructs a Paginator. The cache may be nil.
func NewPaginator(store *Store, source PostSource, cache PostCache, pageSize int, logger *slog.Logger) *Paginator {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Paginator{
		store:    store,
		source:   source,
		cache:    cache,
		pageSize: pageSize,
		logger:   logger,
	}
}

// LoadInitial fetches the first page. Cached posts are shown first when the
// feed is still empty, then replaced by the fetched page. On failure the
// cursor stays put and the cached snapshot, if any, remains visible.
func (p *Paginator) LoadInitial(ctx context.Context) error {
	if p.source == nil {
		return ErrSourceUnavailable
	}
	if !p.acquire() {
		return nil
	}
	defer p.release()
	return p.loadFirstPage(ctx)
}

// loadFirstPage runs with the in-flight guard held.
func (p *Paginator) loadFirstPage(ctx context.Context) error {
	ctx, span := logging.StartSpan(logging.WithLogger(ctx, p.logger), "feed.load_initial")
	defer span.End()
	logger := logging.FromContext(ctx)

	p.store.Dispatch(PageRequested{Initial: true})

	if p.cache != nil && len(p.store.Snapshot().Posts) == 0 {
		cached, err := p.cache.ListPosts(ctx, p.pageSize)
		if err != nil {
			logger.Warn("read cached posts", "error", err)
		} else if len(cached) > 0 {
			p.store.Dispatch(CachedSnapshot{Posts: cached})
		}
	}

	page, err := p.source.ListPosts(ctx, p.pageSize, 0)
	if err != nil {
		p.store.Dispatch(PageFailed{Initial: true})
		span.Fail(err)
		return fmt.Errorf("fetch first page: %w", err)
	}

	p.store.Dispatch(PageLoaded{Initial: true, Posts: page.Items, Requested: p.pageSize})
	p.writeThrough(ctx, page.Items)
	logger.Info("initial page loaded", "count", len(page.Items))
	return nil
}

// MaybeLoadMore fetches the next page when the tracked index is within one
// of the tail and more data is available. A first page that previously
// failed is retried on any trigger. It reports whether a fetch ran.
func (p *Paginator) MaybeLoadMore(ctx context.Context) (bool, error) {
	state := p.store.Snapshot()
	if firstPageFailed(state) {
		return p.LoadMore(ctx)
	}
	if len(state.Posts) == 0 || state.CurrentIndex < len(state.Posts)-2 {
		return false, nil
	}
	return p.LoadMore(ctx)
}

// LoadMore fetches the page at the current cursor. When the first page
// failed it retries that page at skip 0 instead. Calls made while a fetch is
// in flight, before the first load was attempted, or after the feed is
// exhausted return false without contacting the source.
func (p *Paginator) LoadMore(ctx context.Context) (bool, error) {
	if p.source == nil {
		return false, ErrSourceUnavailable
	}

	if !p.acquire() {
		return false, nil
	}
	defer p.release()

	state := p.store.Snapshot()
	if firstPageFailed(state) {
		return true, p.loadFirstPage(ctx)
	}
	if state.Phase != PhaseReady || !state.HasMore {
		return false, nil
	}

	ctx, span := logging.StartSpan(logging.WithLogger(ctx, p.logger), "feed.load_more")
	defer span.End()
	logger := logging.FromContext(ctx)

	skip := p.store.Dispatch(PageRequested{}).Cursor

	page, err := p.source.ListPosts(ctx, p.pageSize, skip)
	logger = logger.With("skip", skip)
	if err != nil {
		p.store.Dispatch(PageFailed{})
		span.Fail(err)
		return true, fmt.Errorf("fetch page at %d: %w", skip, err)
	}

	next := p.store.Dispatch(PageLoaded{Posts: page.Items, Requested: p.pageSize})
	p.writeThrough(ctx, page.Items)
	logger.Info("page loaded", "count", len(page.Items), "cursor", next.Cursor, "hasMore", next.HasMore)
	return true, nil
}

// firstPageFailed reports a session whose first page fetch was attempted and
// did not succeed.
func firstPageFailed(s State) bool {
	return s.Phase == PhaseInitialLoading && !s.InitialLoading
}

func (p *Paginator) acquire() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inFlight {
		return false
	}
	p.inFlight = true
	return true
}

func (p *Paginator) release() {
	p.mu.Lock()
	p.inFlight = false
	p.mu.Unlock()
}

func (p *Paginator) writeThrough(ctx context.Context, posts []models.Post) {
	if p.cache == nil || len(posts) == 0 {
		return
	}
	if err := p.cache.UpsertPosts(ctx, posts); err != nil {
		logging.FromContext(ctx).Warn("cache posts", "count", len(posts), "error", err)
	}
}
