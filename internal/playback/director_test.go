package playback

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/vidfriends/reelfeed/internal/feed"
	"github.com/vidfriends/reelfeed/internal/models"
)

type recordingFactory struct {
	mu       sync.Mutex
	elements map[string]*fakeElement
	sinks    map[string]func(Event)
	fail     map[string]bool
}

func newRecordingFactory() *recordingFactory {
	return &recordingFactory{
		elements: make(map[string]*fakeElement),
		sinks:    make(map[string]func(Event)),
		fail:     make(map[string]bool),
	}
}

func (f *recordingFactory) NewElement(post models.Post, sink func(Event)) (Element, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[post.ID] {
		return nil, errors.New("no stream")
	}
	el := &fakeElement{}
	f.elements[post.ID] = el
	f.sinks[post.ID] = sink
	return el, nil
}

func (f *recordingFactory) element(id string) *fakeElement {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.elements[id]
}

func (f *recordingFactory) sink(id string) func(Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sinks[id]
}

func videoPosts(ids ...string) []models.Post {
	posts := make([]models.Post, len(ids))
	for i, id := range ids {
		posts[i] = videoPost(id)
	}
	return posts
}

func loadedStore(ids ...string) *feed.Store {
	store := feed.NewStore()
	store.Dispatch(feed.PageLoaded{Initial: true, Posts: videoPosts(ids...), Requested: 20})
	return store
}

func mountedIDs(d *Director) []string {
	var ids []string
	for id := range d.Status() {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func TestDirectorFollowsWindow(t *testing.T) {
	ctx := context.Background()
	store := loadedStore("p0", "p1", "p2", "p3", "p4")
	factory := newRecordingFactory()
	d := NewDirector(store, factory, discardLogger())
	d.Attach(ctx)
	defer d.Close()

	if diff := cmp.Diff([]string{"p0", "p1", "p2"}, mountedIDs(d)); diff != "" {
		t.Fatalf("mounted mismatch (-want +got):\n%s", diff)
	}
	if got := store.Snapshot().ActivePostID; got != "p0" {
		t.Fatalf("expected active post p0, got %q", got)
	}
	if calls := factory.element("p0").Calls(); !contains(calls, "play") {
		t.Fatalf("expected active post to play, got %v", calls)
	}
	if calls := factory.element("p1").Calls(); contains(calls, "play") {
		t.Fatalf("expected next-up post not to play, got %v", calls)
	}

	store.SetCurrentIndex(3)

	if diff := cmp.Diff([]string{"p2", "p3", "p4"}, mountedIDs(d)); diff != "" {
		t.Fatalf("mounted mismatch after scroll (-want +got):\n%s", diff)
	}
	for _, id := range []string{"p0", "p1"} {
		if !factory.element(id).IsClosed() {
			t.Fatalf("expected %s torn down", id)
		}
	}
	if got := store.Snapshot().ActivePostID; got != "p3" {
		t.Fatalf("expected active post p3, got %q", got)
	}
	if ctrl, ok := d.Controller("p3"); !ok || ctrl.State() != StateBuffering {
		t.Fatalf("expected p3 buffering toward playback, got %v", ok)
	}
}

func TestDirectorActivePostChangePausesPrevious(t *testing.T) {
	ctx := context.Background()
	store := loadedStore("p0", "p1", "p2")
	factory := newRecordingFactory()
	d := NewDirector(store, factory, discardLogger())
	d.Attach(ctx)
	defer d.Close()

	factory.sink("p0")(Event{Type: EventCanPlay})
	store.SetCurrentIndex(1)

	prev, _ := d.Controller("p0")
	if got := prev.State(); got != StatePaused {
		t.Fatalf("expected previous active post paused, got %s", got)
	}
	factory.sink("p1")(Event{Type: EventCanPlay})
	next, _ := d.Controller("p1")
	if got := next.State(); got != StatePlaying {
		t.Fatalf("expected new active post playing, got %s", got)
	}
}

func TestDirectorMutePropagates(t *testing.T) {
	ctx := context.Background()
	store := loadedStore("p0", "p1", "p2")
	factory := newRecordingFactory()
	d := NewDirector(store, factory, discardLogger())
	d.Attach(ctx)
	defer d.Close()

	for _, id := range []string{"p0", "p1", "p2"} {
		if !factory.element(id).IsMuted() {
			t.Fatalf("expected %s muted by default", id)
		}
	}

	store.Dispatch(feed.ToggleMute{})
	for _, id := range []string{"p0", "p1", "p2"} {
		if factory.element(id).IsMuted() {
			t.Fatalf("expected %s unmuted", id)
		}
	}

	store.SetCurrentIndex(1)
	store.SetCurrentIndex(2)
	if factory.element("p2").IsMuted() {
		t.Fatal("expected mute flag to stay process wide across scrolling")
	}
}

func TestDirectorStatusAndToggle(t *testing.T) {
	ctx := context.Background()
	store := loadedStore("p0", "p1", "p2", "p3")
	factory := newRecordingFactory()
	d := NewDirector(store, factory, discardLogger())
	d.Attach(ctx)
	defer d.Close()

	factory.sink("p0")(Event{Type: EventCanPlay})
	factory.sink("p1")(Event{Type: EventProgress, Buffered: 0.25})

	status := d.Status()
	if !status["p0"].Active || status["p0"].State != StatePlaying {
		t.Fatalf("unexpected active status %+v", status["p0"])
	}
	if b := status["p1"].Buffered; b == nil || *b != 0.25 {
		t.Fatalf("expected next-up buffer progress, got %v", b)
	}
	if status["p2"].Buffered != nil || !status["p2"].OnDeck || status["p2"].Strategy != feed.PreloadMetadata {
		t.Fatalf("unexpected on-deck status %+v", status["p2"])
	}

	d.Toggle(ctx)
	if got := d.Status()["p0"].State; got != StatePaused {
		t.Fatalf("expected toggle to pause the active post, got %s", got)
	}
}

func TestDirectorIgnoresStaleVersions(t *testing.T) {
	ctx := context.Background()
	store := loadedStore("p0", "p1", "p2", "p3", "p4")
	d := NewDirector(store, newRecordingFactory(), discardLogger())

	stale := store.Snapshot()
	staleWindow := store.Window()
	store.SetCurrentIndex(3)
	d.Sync(ctx, store.Snapshot(), store.Window())
	d.Sync(ctx, stale, staleWindow)

	if diff := cmp.Diff([]string{"p2", "p3", "p4"}, mountedIDs(d)); diff != "" {
		t.Fatalf("expected stale window ignored (-want +got):\n%s", diff)
	}
}

func TestDirectorConcurrentSyncsApplyNewestLast(t *testing.T) {
	ctx := context.Background()
	store := loadedStore("p0", "p1", "p2", "p3")
	factory := newRecordingFactory()
	d := NewDirector(store, factory, discardLogger())
	d.Sync(ctx, store.Snapshot(), store.Window())
	defer d.Close()

	started, release := factory.element("p1").holdPlay()

	store.SetCurrentIndex(1)
	older, olderWindow := store.Snapshot(), store.Window()
	store.SetCurrentIndex(2)
	newer, newerWindow := store.Snapshot(), store.Window()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		d.Sync(ctx, older, olderWindow)
	}()
	<-started
	go func() {
		defer wg.Done()
		d.Sync(ctx, newer, newerWindow)
	}()
	release()
	wg.Wait()

	p1, _ := d.Controller("p1")
	if p1.Config().Active || p1.State() != StatePaused {
		t.Fatalf("expected p1 demoted and paused, got active=%v state=%s", p1.Config().Active, p1.State())
	}
	p2, _ := d.Controller("p2")
	if !p2.Config().Active || p2.State() != StateBuffering {
		t.Fatalf("expected p2 active and buffering toward playback, got active=%v state=%s", p2.Config().Active, p2.State())
	}
	if got := store.Snapshot().ActivePostID; got != "p2" {
		t.Fatalf("expected active post p2, got %q", got)
	}
}

func TestDirectorElementFailureStillMounts(t *testing.T) {
	ctx := context.Background()
	store := loadedStore("p0", "p1")
	factory := newRecordingFactory()
	factory.fail["p1"] = true
	d := NewDirector(store, factory, discardLogger())
	d.Attach(ctx)
	defer d.Close()

	ctrl, ok := d.Controller("p1")
	if !ok {
		t.Fatal("expected p1 mounted without an element")
	}
	if got := ctrl.State(); got != StateIdle {
		t.Fatalf("expected elementless controller idle, got %s", got)
	}
}

func TestDirectorCloseUnmountsAll(t *testing.T) {
	store := loadedStore("p0", "p1")
	factory := newRecordingFactory()
	d := NewDirector(store, factory, discardLogger())
	d.Attach(context.Background())

	d.Close()
	if len(d.Status()) != 0 {
		t.Fatal("expected no controllers after close")
	}
	for _, id := range []string{"p0", "p1"} {
		if !factory.element(id).IsClosed() {
			t.Fatalf("expected %s closed", id)
		}
	}

	store.SetCurrentIndex(1)
	if len(d.Status()) != 0 {
		t.Fatal("expected closed director to stop following the store")
	}
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
