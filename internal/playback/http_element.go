package playback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/vidfriends/reelfeed/internal/feed"
	"github.com/vidfriends/reelfeed/internal/models"
)

const (
	defaultPrefetchBudget = 4 << 20
	defaultReadyBytes     = 512 << 10
	prefetchChunk         = 64 << 10
)

// ErrElementClosed indicates the element was torn down.
var ErrElementClosed = errors.New("media element closed")

// HTTPElementConfig tunes the headless prefetching element.
type HTTPElementConfig struct {
	Client *http.Client
	// StreamURL maps a post to the URL of its primary video stream.
	StreamURL func(post models.Post) string
	// Budget caps the bytes fetched under the full strategy.
	Budget int64
	// ReadyBytes is how much must be buffered before the element reports it
	// can play.
	ReadyBytes int64
	Logger     *slog.Logger
}

// NewHTTPElementFactory returns a factory producing elements that warm the
// media stream over HTTP. Full preloading downloads up to the budget with a
// ranged GET; metadata preloading issues a HEAD request.
func NewHTTPElementFactory(cfg HTTPElementConfig) ElementFactory {
	if cfg.Client == nil {
		cfg.Client = http.DefaultClient
	}
	if cfg.Budget <= 0 {
		cfg.Budget = defaultPrefetchBudget
	}
	if cfg.ReadyBytes <= 0 || cfg.ReadyBytes > cfg.Budget {
		cfg.ReadyBytes = min(int64(defaultReadyBytes), cfg.Budget)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return ElementFactoryFunc(func(post models.Post, sink func(Event)) (Element, error) {
		if cfg.StreamURL == nil {
			return nil, errors.New("http element: stream url resolver is required")
		}
		url := cfg.StreamURL(post)
		if strings.TrimSpace(url) == "" {
			return nil, fmt.Errorf("http element: no stream url for post %s", post.ID)
		}
		ctx, cancel := context.WithCancel(context.Background())
		return &HTTPElement{
			cfg:    cfg,
			url:    url,
			sink:   sink,
			logger: cfg.Logger.With("postId", post.ID),
			ctx:    ctx,
			cancel: cancel,
		}, nil
	})
}

// HTTPElement is a headless media element. It has no renderer; playing only
// marks the element as playing, while buffering performs real transfers.
type HTTPElement struct {
	cfg    HTTPElementConfig
	url    string
	sink   func(Event)
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	strategy    feed.PreloadStrategy
	fetchCancel context.CancelFunc
	fetchDone   bool
	fetchGen    uint64
	// received counts contiguous bytes fetched from the start of the stream.
	received int64
	ready       bool
	playing     bool
	muted       bool
	size        int64
}

// Preload implements Element.
func (e *HTTPElement) Preload(strategy feed.PreloadStrategy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ctx.Err() != nil || strategy == e.strategy {
		return
	}
	prev := e.strategy
	e.strategy = strategy

	switch strategy {
	case feed.PreloadFull:
		if e.fetchDone {
			return
		}
		e.stopFetchLocked()
		ctx, cancel := context.WithCancel(e.ctx)
		e.fetchCancel = cancel
		e.fetchGen++
		go e.fetchContent(ctx, e.fetchGen, e.received)
	case feed.PreloadMetadata:
		// A downgrade stops the transfer; received bytes are kept and a
		// later full preload resumes after them.
		if prev == feed.PreloadFull {
			e.stopFetchLocked()
			return
		}
		if e.size > 0 || e.received > 0 {
			return
		}
		go e.fetchHeaders(e.ctx)
	default:
		e.stopFetchLocked()
	}
}

// Play implements Element.
func (e *HTTPElement) Play(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ctx.Err() != nil {
		return ErrElementClosed
	}
	e.playing = true
	return nil
}

// Pause implements Element.
func (e *HTTPElement) Pause() {
	e.mu.Lock()
	e.playing = false
	e.mu.Unlock()
}

// SetMuted implements Element.
func (e *HTTPElement) SetMuted(muted bool) {
	e.mu.Lock()
	e.muted = muted
	e.mu.Unlock()
}

// Close implements Element. It cancels in-flight transfers without waiting.
func (e *HTTPElement) Close() {
	e.cancel()
}

func (e *HTTPElement) stopFetchLocked() {
	if e.fetchCancel != nil {
		e.fetchCancel()
		e.fetchCancel = nil
	}
}

func (e *HTTPElement) fetchHeaders(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, e.url, nil)
	if err != nil {
		e.logger.Warn("build metadata request", "error", err)
		return
	}
	resp, err := e.cfg.Client.Do(req)
	if err != nil {
		if ctx.Err() == nil {
			e.logger.Warn("metadata request failed", "error", err)
		}
		return
	}
	resp.Body.Close()

	if resp.ContentLength > 0 {
		e.mu.Lock()
		e.size = resp.ContentLength
		e.mu.Unlock()
	}
}

func (e *HTTPElement) fetchContent(ctx context.Context, gen uint64, offset int64) {
	if offset >= e.cfg.Budget {
		e.finishFetch(gen)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.url, nil)
	if err != nil {
		e.logger.Warn("build prefetch request", "error", err)
		return
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", offset, e.cfg.Budget-1))

	resp, err := e.cfg.Client.Do(req)
	if err != nil {
		if ctx.Err() == nil {
			e.logger.Warn("prefetch failed", "error", err)
		}
		return
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusPartialContent:
	case http.StatusOK:
		// The server ignored the range and sends from the first byte.
		offset = 0
	default:
		e.logger.Warn("prefetch rejected", "status", resp.StatusCode)
		return
	}

	total := totalSize(resp)
	target := min(e.cfg.Budget, total)
	if target <= 0 {
		target = e.cfg.Budget
	}
	readyAt := min(e.cfg.ReadyBytes, target)

	received := offset
	buf := make([]byte, prefetchChunk)
	for received < target {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			received += int64(n)
			if !e.recordReceived(gen, received) {
				return
			}
			e.emit(Event{Type: EventProgress, Buffered: fraction(received, total)})
			if received >= readyAt {
				e.markReady()
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			if ctx.Err() == nil {
				e.logger.Warn("prefetch interrupted", "received", received, "error", err)
			}
			return
		}
	}

	e.finishFetch(gen)
}

// recordReceived stores progress for the current transfer. It reports false
// once the transfer was superseded or stopped.
func (e *HTTPElement) recordReceived(gen uint64, received int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.fetchGen || e.fetchCancel == nil {
		return false
	}
	e.received = received
	return true
}

func (e *HTTPElement) finishFetch(gen uint64) {
	e.mu.Lock()
	current := gen == e.fetchGen && e.fetchCancel != nil
	if current {
		e.fetchDone = true
	}
	e.mu.Unlock()
	if current {
		e.markReady()
	}
}

func (e *HTTPElement) markReady() {
	e.mu.Lock()
	already := e.ready
	e.ready = true
	e.mu.Unlock()
	if !already {
		e.emit(Event{Type: EventCanPlay})
	}
}

func (e *HTTPElement) emit(ev Event) {
	if e.sink == nil || e.ctx.Err() != nil {
		return
	}
	e.sink(ev)
}

// totalSize reads the full resource size from Content-Range, falling back to
// Content-Length. It returns -1 when unknown.
func totalSize(resp *http.Response) int64 {
	if cr := resp.Header.Get("Content-Range"); cr != "" {
		if idx := strings.LastIndex(cr, "/"); idx >= 0 {
			if n, err := strconv.ParseInt(strings.TrimSpace(cr[idx+1:]), 10, 64); err == nil {
				return n
			}
		}
	}
	if resp.ContentLength > 0 {
		return resp.ContentLength
	}
	return -1
}

func fraction(received, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return clamp01(float64(received) / float64(total))
}

// Playing reports whether the element was last told to play.
func (e *HTTPElement) Playing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playing
}

// Muted reports the mute flag last applied to the element.
func (e *HTTPElement) Muted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.muted
}

// Received returns the contiguous bytes buffered from the start of the stream.
func (e *HTTPElement) Received() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.received
}

// Size returns the resource size learned from a metadata request, or 0.
func (e *HTTPElement) Size() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.size
}
