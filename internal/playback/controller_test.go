package playback

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/vidfriends/reelfeed/internal/feed"
	"github.com/vidfriends/reelfeed/internal/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeElement struct {
	mu       sync.Mutex
	calls    []string
	playErr  error
	muted    bool
	closed   bool
	preloads []feed.PreloadStrategy

	// playGate, when set, holds Play until closed; playStarted is signalled
	// on entry.
	playGate    chan struct{}
	playStarted chan struct{}
}

func (f *fakeElement) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeElement) Preload(strategy feed.PreloadStrategy) {
	f.mu.Lock()
	f.preloads = append(f.preloads, strategy)
	f.mu.Unlock()
	f.record("preload:" + string(strategy))
}

func (f *fakeElement) Play(context.Context) error {
	f.record("play")
	f.mu.Lock()
	gate, started, err := f.playGate, f.playStarted, f.playErr
	f.mu.Unlock()
	if gate != nil {
		started <- struct{}{}
		<-gate
	}
	return err
}

func (f *fakeElement) holdPlay() (started <-chan struct{}, release func()) {
	gate := make(chan struct{})
	ch := make(chan struct{}, 1)
	f.mu.Lock()
	f.playGate, f.playStarted = gate, ch
	f.mu.Unlock()
	return ch, func() { close(gate) }
}

func (f *fakeElement) Pause() { f.record("pause") }

func (f *fakeElement) SetMuted(muted bool) {
	f.mu.Lock()
	f.muted = muted
	f.mu.Unlock()
}

func (f *fakeElement) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	f.record("close")
}

func (f *fakeElement) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeElement) IsMuted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.muted
}

func (f *fakeElement) IsClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func videoPost(id string) models.Post {
	return models.Post{ID: id, Media: []models.MediaRef{{Kind: models.MediaVideo, ID: "m-" + id}}}
}

func imagePost(id string) models.Post {
	return models.Post{ID: id, Media: []models.MediaRef{{Kind: models.MediaImage, ID: "i-" + id}}}
}

// configAt plans a five post window in which post sits at the given
// distance from the current index.
func configAt(post models.Post, distance int) feed.RenderConfig {
	posts := []models.Post{videoPost("x0"), videoPost("x1"), post, videoPost("x3"), videoPost("x4")}
	return feed.PlanWindow(posts, 2-distance)[2]
}

func TestControllerActivePostBuffersThenPlays(t *testing.T) {
	element := &fakeElement{}
	ctrl := NewController(videoPost("p1"), element, discardLogger())

	ctrl.Mount(context.Background(), configAt(videoPost("p1"), 0), true)
	if got := ctrl.State(); got != StateBuffering {
		t.Fatalf("expected buffering before canplay, got %s", got)
	}
	if !element.IsMuted() {
		t.Fatal("expected element muted on mount")
	}

	ctrl.HandleEvent(Event{Type: EventCanPlay})
	if got := ctrl.State(); got != StatePlaying {
		t.Fatalf("expected playing after canplay, got %s", got)
	}

	ctrl.HandleEvent(Event{Type: EventWaiting})
	if got := ctrl.State(); got != StateBuffering {
		t.Fatalf("expected buffering after stall, got %s", got)
	}
	ctrl.HandleEvent(Event{Type: EventPlaying})
	if got := ctrl.State(); got != StatePlaying {
		t.Fatalf("expected playing after resume, got %s", got)
	}

	ctrl.Update(context.Background(), configAt(videoPost("p1"), -1))
	if got := ctrl.State(); got != StatePaused {
		t.Fatalf("expected paused after losing active role, got %s", got)
	}

	want := []string{"preload:full", "play", "preload:metadata", "pause"}
	if diff := cmp.Diff(want, element.Calls()); diff != "" {
		t.Fatalf("element calls mismatch (-want +got):\n%s", diff)
	}
}

func TestControllerRejectedPlayLeavesPaused(t *testing.T) {
	element := &fakeElement{playErr: errors.New("autoplay blocked")}
	ctrl := NewController(videoPost("p1"), element, discardLogger())

	ctrl.Mount(context.Background(), configAt(videoPost("p1"), 0), true)
	if got := ctrl.State(); got != StatePaused {
		t.Fatalf("expected paused after rejected play, got %s", got)
	}

	ctrl.HandleEvent(Event{Type: EventCanPlay})
	if got := ctrl.State(); got != StatePaused {
		t.Fatalf("expected canplay not to start playback, got %s", got)
	}
}

func TestControllerToggle(t *testing.T) {
	element := &fakeElement{}
	ctrl := NewController(videoPost("p1"), element, discardLogger())
	ctrl.Mount(context.Background(), configAt(videoPost("p1"), 0), false)
	ctrl.HandleEvent(Event{Type: EventCanPlay})

	ctrl.Toggle(context.Background())
	if got := ctrl.State(); got != StatePaused {
		t.Fatalf("expected paused after toggle, got %s", got)
	}
	ctrl.Toggle(context.Background())
	if got := ctrl.State(); got != StatePlaying {
		t.Fatalf("expected playing after second toggle, got %s", got)
	}

	inactive := NewController(videoPost("p2"), &fakeElement{}, discardLogger())
	inactive.Mount(context.Background(), configAt(videoPost("p2"), 1), false)
	inactive.Toggle(context.Background())
	if got := inactive.State(); got == StatePlaying {
		t.Fatal("expected toggle to be ignored for an inactive post")
	}
}

func TestControllerBufferProgressOnlyWhenNextUp(t *testing.T) {
	element := &fakeElement{}
	ctrl := NewController(videoPost("p1"), element, discardLogger())
	ctrl.Mount(context.Background(), configAt(videoPost("p1"), 1), true)

	ctrl.HandleEvent(Event{Type: EventProgress, Buffered: 0.4})
	if got, ok := ctrl.BufferProgress(); !ok || got != 0.4 {
		t.Fatalf("expected progress 0.4 while next up, got %v %v", got, ok)
	}
	ctrl.HandleEvent(Event{Type: EventProgress, Buffered: 3})
	if got, _ := ctrl.BufferProgress(); got != 1 {
		t.Fatalf("expected progress clamped to 1, got %v", got)
	}

	ctrl.Update(context.Background(), configAt(videoPost("p1"), 2))
	if _, ok := ctrl.BufferProgress(); ok {
		t.Fatal("expected no progress once the post is on deck")
	}
}

func TestControllerUnmountClosesElement(t *testing.T) {
	element := &fakeElement{}
	ctrl := NewController(videoPost("p1"), element, discardLogger())
	ctrl.Mount(context.Background(), configAt(videoPost("p1"), 0), true)
	ctrl.HandleEvent(Event{Type: EventCanPlay})

	ctrl.Unmount()
	if !element.IsClosed() {
		t.Fatal("expected element closed on unmount")
	}
	if got := ctrl.State(); got != StateIdle {
		t.Fatalf("expected idle after unmount, got %s", got)
	}

	ctrl.HandleEvent(Event{Type: EventPlaying})
	ctrl.Update(context.Background(), configAt(videoPost("p1"), 0))
	if got := ctrl.State(); got != StateIdle {
		t.Fatalf("expected events after unmount to be ignored, got %s", got)
	}
}

func TestControllerImagePostNeverPlays(t *testing.T) {
	ctrl := NewController(imagePost("p1"), nil, discardLogger())
	ctrl.Mount(context.Background(), configAt(imagePost("p1"), 0), true)
	ctrl.Toggle(context.Background())
	ctrl.HandleEvent(Event{Type: EventPlaying})

	if got := ctrl.State(); got != StateIdle {
		t.Fatalf("expected image post to stay idle, got %s", got)
	}
	if _, ok := ctrl.BufferProgress(); ok {
		t.Fatal("expected no buffer progress for images")
	}
}
