package feed

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/vidfriends/reelfeed/internal/cache"
	"github.com/vidfriends/reelfeed/internal/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// pageSource serves slices of a fixed post list.
type pageSource struct {
	posts []models.Post

	mu    sync.Mutex
	skips []int
	err   error
	gate  chan struct{}
	ready chan struct{}
}

func (s *pageSource) ListPosts(ctx context.Context, take, skip int) (models.PostPage, error) {
	s.mu.Lock()
	s.skips = append(s.skips, skip)
	err := s.err
	gate, ready := s.gate, s.ready
	s.mu.Unlock()

	if ready != nil {
		close(ready)
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return models.PostPage{}, ctx.Err()
		}
	}
	if err != nil {
		return models.PostPage{}, err
	}

	end := min(skip+take, len(s.posts))
	if skip > end {
		skip = end
	}
	return models.PostPage{Items: s.posts[skip:end], Take: take, Skip: skip}, nil
}

func (s *pageSource) calls() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.skips...)
}

func TestPaginatorLoadsUntilExhausted(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	source := &pageSource{posts: makePosts(27)}
	local := cache.NewMemoryStore()
	p := NewPaginator(store, source, local, 20, discardLogger())

	if err := p.LoadInitial(ctx); err != nil {
		t.Fatalf("load initial: %v", err)
	}
	s := store.Snapshot()
	if len(s.Posts) != 20 || s.Cursor != 20 || !s.HasMore || s.Phase != PhaseReady {
		t.Fatalf("unexpected state after first page: posts=%d cursor=%d hasMore=%v phase=%s", len(s.Posts), s.Cursor, s.HasMore, s.Phase)
	}

	fetched, err := p.LoadMore(ctx)
	if err != nil || !fetched {
		t.Fatalf("expected second page fetch, got %v %v", fetched, err)
	}
	s = store.Snapshot()
	if len(s.Posts) != 27 || s.Cursor != 27 || s.HasMore || s.Phase != PhaseExhausted {
		t.Fatalf("unexpected state after second page: posts=%d cursor=%d hasMore=%v phase=%s", len(s.Posts), s.Cursor, s.HasMore, s.Phase)
	}

	fetched, err = p.LoadMore(ctx)
	if err != nil || fetched {
		t.Fatalf("expected no fetch once exhausted, got %v %v", fetched, err)
	}
	if got := source.calls(); len(got) != 2 || got[0] != 0 || got[1] != 20 {
		t.Fatalf("expected fetches at skip 0 and 20, got %v", got)
	}

	cached, err := local.ListPosts(ctx, 0)
	if err != nil || len(cached) != 27 {
		t.Fatalf("expected every fetched post cached, got %d (%v)", len(cached), err)
	}
}

func TestPaginatorSingleFlight(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	source := &pageSource{posts: makePosts(60)}
	p := NewPaginator(store, source, nil, 20, discardLogger())
	if err := p.LoadInitial(ctx); err != nil {
		t.Fatalf("load initial: %v", err)
	}

	source.mu.Lock()
	source.gate = make(chan struct{})
	source.ready = make(chan struct{})
	gate, ready := source.gate, source.ready
	source.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		_, err := p.LoadMore(ctx)
		done <- err
	}()
	<-ready

	for i := 0; i < 5; i++ {
		if fetched, err := p.LoadMore(ctx); fetched || err != nil {
			t.Fatalf("expected overlapping request to be ignored, got %v %v", fetched, err)
		}
	}
	if s := store.Snapshot(); !s.LoadingMore || s.Phase != PhaseLoadingMore {
		t.Fatalf("expected loading-more while in flight, got %+v", s.Phase)
	}

	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("load more: %v", err)
	}
	if got := source.calls(); len(got) != 2 {
		t.Fatalf("expected exactly one page fetch after the first, got %v", got)
	}
	if s := store.Snapshot(); s.Cursor != 40 || s.LoadingMore {
		t.Fatalf("unexpected state %+v", s)
	}
}

func TestPaginatorFailureKeepsCursor(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	source := &pageSource{posts: makePosts(40)}
	p := NewPaginator(store, source, nil, 20, discardLogger())
	if err := p.LoadInitial(ctx); err != nil {
		t.Fatalf("load initial: %v", err)
	}

	source.mu.Lock()
	source.err = errors.New("service unavailable")
	source.mu.Unlock()

	fetched, err := p.LoadMore(ctx)
	if err == nil || !fetched {
		t.Fatalf("expected failed fetch, got %v %v", fetched, err)
	}
	s := store.Snapshot()
	if s.Cursor != 20 || len(s.Posts) != 20 || s.LoadingMore || s.Phase != PhaseReady {
		t.Fatalf("expected unchanged feed after failure, got cursor=%d posts=%d phase=%s", s.Cursor, len(s.Posts), s.Phase)
	}

	source.mu.Lock()
	source.err = nil
	source.mu.Unlock()

	if _, err := p.LoadMore(ctx); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if got := source.calls(); got[len(got)-1] != 20 || got[len(got)-2] != 20 {
		t.Fatalf("expected retry at the same cursor, got %v", got)
	}
	if store.Snapshot().Cursor != 40 {
		t.Fatalf("expected cursor 40 after retry, got %d", store.Snapshot().Cursor)
	}
}

func TestPaginatorInitialFailureShowsCache(t *testing.T) {
	ctx := context.Background()
	local := cache.NewMemoryStore()
	if err := local.UpsertPosts(ctx, makePosts(3)); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	store := NewStore()
	source := &pageSource{err: errors.New("offline")}
	p := NewPaginator(store, source, local, 20, discardLogger())

	if err := p.LoadInitial(ctx); err == nil {
		t.Fatal("expected initial load error")
	}
	s := store.Snapshot()
	if len(s.Posts) != 3 || s.Cursor != 0 {
		t.Fatalf("expected cached snapshot with cursor 0, got posts=%d cursor=%d", len(s.Posts), s.Cursor)
	}
	if s.InitialLoading || s.Phase != PhaseInitialLoading {
		t.Fatalf("expected initial-loading with flag cleared, got %+v", s)
	}

	fetched, err := p.LoadMore(ctx)
	if !fetched || err == nil {
		t.Fatalf("expected a failed retry of the first page, got %v %v", fetched, err)
	}
	if s := store.Snapshot(); len(s.Posts) != 3 || s.Phase != PhaseInitialLoading || s.InitialLoading {
		t.Fatalf("expected cached snapshot to survive a failed retry, got %+v", s)
	}

	source.mu.Lock()
	source.err = nil
	source.posts = makePosts(5)
	source.mu.Unlock()

	store.SetCurrentIndex(2)
	if fetched, err := p.MaybeLoadMore(ctx); !fetched || err != nil {
		t.Fatalf("expected scroll to retry the first page, got %v %v", fetched, err)
	}
	if got := source.calls(); len(got) != 3 || got[0] != 0 || got[1] != 0 || got[2] != 0 {
		t.Fatalf("expected every first page attempt at skip 0, got %v", got)
	}
	if s := store.Snapshot(); len(s.Posts) != 5 || s.Cursor != 5 || s.HasMore || s.Phase != PhaseReady {
		t.Fatalf("unexpected state after retry: posts=%d cursor=%d hasMore=%v phase=%s", len(s.Posts), s.Cursor, s.HasMore, s.Phase)
	}
}

func TestPaginatorRetriesFirstPageWithoutCache(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	source := &pageSource{posts: makePosts(30), err: errors.New("offline")}
	p := NewPaginator(store, source, nil, 20, discardLogger())

	if fetched, _ := p.MaybeLoadMore(ctx); fetched {
		t.Fatal("expected no fetch before the first load was attempted")
	}
	if err := p.LoadInitial(ctx); err == nil {
		t.Fatal("expected initial load error")
	}

	source.mu.Lock()
	source.err = nil
	source.mu.Unlock()

	if fetched, err := p.MaybeLoadMore(ctx); !fetched || err != nil {
		t.Fatalf("expected empty feed to retry the first page, got %v %v", fetched, err)
	}
	if s := store.Snapshot(); len(s.Posts) != 20 || s.Phase != PhaseReady || !s.HasMore {
		t.Fatalf("unexpected state after retry: posts=%d phase=%s", len(s.Posts), s.Phase)
	}
}

func TestPaginatorMaybeLoadMore(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	source := &pageSource{posts: makePosts(45)}
	p := NewPaginator(store, source, nil, 20, discardLogger())
	if err := p.LoadInitial(ctx); err != nil {
		t.Fatalf("load initial: %v", err)
	}

	store.SetCurrentIndex(17)
	if fetched, _ := p.MaybeLoadMore(ctx); fetched {
		t.Fatal("expected no fetch away from the tail")
	}

	store.SetCurrentIndex(18)
	if fetched, err := p.MaybeLoadMore(ctx); !fetched || err != nil {
		t.Fatalf("expected fetch near the tail, got %v %v", fetched, err)
	}
	if store.Snapshot().Cursor != 40 {
		t.Fatalf("expected cursor 40, got %d", store.Snapshot().Cursor)
	}
}

func TestPaginatorWithoutSource(t *testing.T) {
	p := NewPaginator(NewStore(), nil, nil, 0, nil)
	if err := p.LoadInitial(context.Background()); !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
	if p.pageSize != DefaultPageSize {
		t.Fatalf("expected default page size, got %d", p.pageSize)
	}
}
