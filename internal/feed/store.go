package feed

import "sync"

// Listener is notified after every dispatched action with the new state and
// the render window derived from it. Concurrent dispatches may notify out of
// order; listeners compare State.Version to drop stale notifications.
type Listener func(state State, window []RenderConfig)

// Store owns the feed session state. Dispatches are serialized and the
// render window is recomputed synchronously whenever the post list or the
// tracked index changes, so readers never observe a stale window.
type Store struct {
	mu        sync.Mutex
	state     State
	window    []RenderConfig
	listeners map[int]Listener
	nextID    int
}

// NewStore constructs a Store seeded with NewState.
func NewStore() *Store {
	return NewStoreWithState(NewState())
}

// NewStoreWithState constructs a Store seeded with the given state.
func NewStoreWithState(initial State) *Store {
	return &Store{
		state:     initial,
		window:    PlanWindow(initial.Posts, initial.CurrentIndex),
		listeners: make(map[int]Listener),
	}
}

// Dispatch applies an action and notifies listeners. It returns the new state.
func (s *Store) Dispatch(action Action) State {
	s.mu.Lock()
	prev := s.state
	next := Reduce(prev, action)
	next.Version = prev.Version + 1
	s.state = next
	if windowChanged(prev, next) {
		s.window = PlanWindow(next.Posts, next.CurrentIndex)
	}
	window := s.window
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	for _, l := range listeners {
		l(next, window)
	}
	return next
}

// SetCurrentIndex implements IndexSink.
func (s *Store) SetCurrentIndex(index int) {
	s.Dispatch(SetCurrentIndex{Index: index})
}

// Snapshot returns the latest committed state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Window returns the render window for the latest committed state.
func (s *Store) Window() []RenderConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.window
}

// Subscribe registers a listener and returns a function that removes it.
func (s *Store) Subscribe(l Listener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func windowChanged(prev, next State) bool {
	if prev.CurrentIndex != next.CurrentIndex || len(prev.Posts) != len(next.Posts) {
		return true
	}
	for i := range prev.Posts {
		if prev.Posts[i].ID != next.Posts[i].ID {
			return true
		}
	}
	return false
}
