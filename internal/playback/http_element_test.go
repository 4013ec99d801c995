package playback

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/vidfriends/reelfeed/internal/feed"
	"github.com/vidfriends/reelfeed/internal/models"
)

type streamServer struct {
	*httptest.Server

	mu      sync.Mutex
	methods []string
	ranges  []string
}

func newStreamServer(t *testing.T, size int) *streamServer {
	t.Helper()
	content := bytes.Repeat([]byte{0x42}, size)
	s := &streamServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.methods = append(s.methods, r.Method)
		s.ranges = append(s.ranges, r.Header.Get("Range"))
		s.mu.Unlock()
		w.Header().Set("Content-Type", "video/mp4")
		http.ServeContent(w, r, "clip.mp4", time.Time{}, bytes.NewReader(content))
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *streamServer) requests() ([]string, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.methods...), append([]string(nil), s.ranges...)
}

type eventLog struct {
	mu      sync.Mutex
	events  []Event
	canPlay chan struct{}
}

func newEventLog() *eventLog {
	return &eventLog{canPlay: make(chan struct{}, 1)}
}

func (l *eventLog) sink(ev Event) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
	if ev.Type == EventCanPlay {
		l.canPlay <- struct{}{}
	}
}

func (l *eventLog) snapshot() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.events...)
}

func newTestElement(t *testing.T, srv *streamServer, log *eventLog) *HTTPElement {
	t.Helper()
	factory := NewHTTPElementFactory(HTTPElementConfig{
		Client:     srv.Client(),
		StreamURL:  func(post models.Post) string { return srv.URL + "/media/" + post.ID },
		Budget:     256 << 10,
		ReadyBytes: 64 << 10,
		Logger:     discardLogger(),
	})
	el, err := factory.NewElement(videoPost("p1"), log.sink)
	if err != nil {
		t.Fatalf("new element: %v", err)
	}
	t.Cleanup(el.Close)
	return el.(*HTTPElement)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHTTPElementFullPreloadFetchesBudget(t *testing.T) {
	srv := newStreamServer(t, 1<<20)
	log := newEventLog()
	el := newTestElement(t, srv, log)

	el.Preload(feed.PreloadFull)

	select {
	case <-log.canPlay:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for canplay")
	}

	waitFor(t, "prefetch to finish", func() bool {
		events := log.snapshot()
		last := events[len(events)-1]
		return last.Type == EventProgress && last.Buffered == 0.25
	})

	methods, ranges := srv.requests()
	if len(methods) != 1 || methods[0] != http.MethodGet || ranges[0] != "bytes=0-262143" {
		t.Fatalf("expected one ranged GET, got %v %v", methods, ranges)
	}

	var canPlay int
	for _, ev := range log.snapshot() {
		if ev.Type == EventCanPlay {
			canPlay++
		}
	}
	if canPlay != 1 {
		t.Fatalf("expected exactly one canplay, got %d", canPlay)
	}
}

func TestHTTPElementDowngradeStopsAndResumes(t *testing.T) {
	const size = 1 << 20
	content := bytes.Repeat([]byte{0x42}, size)
	cancelled := make(chan struct{})
	var (
		mu     sync.Mutex
		ranges []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		ranges = append(ranges, r.Header.Get("Range"))
		first := len(ranges) == 1
		mu.Unlock()

		if !first {
			http.ServeContent(w, r, "clip.mp4", time.Time{}, bytes.NewReader(content))
			return
		}
		// Send the first 64 KiB of the range, then stall until the client
		// gives up on the transfer.
		w.Header().Set("Content-Range", fmt.Sprintf("bytes 0-262143/%d", size))
		w.Header().Set("Content-Length", "262144")
		w.WriteHeader(http.StatusPartialContent)
		w.Write(content[:64<<10])
		w.(http.Flusher).Flush()
		<-r.Context().Done()
		close(cancelled)
	}))
	t.Cleanup(srv.Close)

	log := newEventLog()
	el := newTestElement(t, &streamServer{Server: srv}, log)

	el.Preload(feed.PreloadFull)
	select {
	case <-log.canPlay:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for canplay")
	}

	el.Preload(feed.PreloadMetadata)
	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("expected the ranged download to stop on downgrade")
	}
	if got := el.Received(); got != 64<<10 {
		t.Fatalf("expected 64 KiB kept after downgrade, got %d", got)
	}

	el.Preload(feed.PreloadFull)
	waitFor(t, "resumed prefetch", func() bool { return el.Received() == 256<<10 })

	mu.Lock()
	defer mu.Unlock()
	if len(ranges) != 2 || ranges[1] != "bytes=65536-262143" {
		t.Fatalf("expected resume after the received bytes, got %v", ranges)
	}
}

func TestHTTPElementMetadataHead(t *testing.T) {
	srv := newStreamServer(t, 1<<20)
	el := newTestElement(t, srv, newEventLog())

	el.Preload(feed.PreloadMetadata)
	waitFor(t, "metadata size", func() bool { return el.Size() == 1<<20 })

	methods, _ := srv.requests()
	if len(methods) != 1 || methods[0] != http.MethodHead {
		t.Fatalf("expected a single HEAD request, got %v", methods)
	}
}

func TestHTTPElementPlaybackFlags(t *testing.T) {
	srv := newStreamServer(t, 1024)
	el := newTestElement(t, srv, newEventLog())

	if err := el.Play(context.Background()); err != nil {
		t.Fatalf("play: %v", err)
	}
	el.SetMuted(true)
	if !el.Playing() || !el.Muted() {
		t.Fatal("expected element playing and muted")
	}
	el.Pause()
	if el.Playing() {
		t.Fatal("expected element paused")
	}

	el.Close()
	if err := el.Play(context.Background()); !errors.Is(err, ErrElementClosed) {
		t.Fatalf("expected ErrElementClosed after close, got %v", err)
	}
}

func TestHTTPElementFactoryRequiresStreamURL(t *testing.T) {
	if _, err := NewHTTPElementFactory(HTTPElementConfig{}).NewElement(videoPost("p1"), nil); err == nil {
		t.Fatal("expected error without a stream url resolver")
	}

	factory := NewHTTPElementFactory(HTTPElementConfig{StreamURL: func(models.Post) string { return " " }})
	if _, err := factory.NewElement(videoPost("p1"), nil); err == nil {
		t.Fatal("expected error for a blank stream url")
	}
}
