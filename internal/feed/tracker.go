package feed

import (
	"strconv"
	"strings"
)

// DefaultVisibilityThreshold is the visible area fraction a post must reach
// before it is considered the current one.
const DefaultVisibilityThreshold = 0.5

// Visibility is one observation of a post element relative to the viewport.
// Tag carries the element's sequence index as text.
type Visibility struct {
	Tag          string  `json:"tag"`
	Intersecting bool    `json:"intersecting"`
	Ratio        float64 `json:"ratio"`
}

// IndexSink receives the tracked index.
type IndexSink interface {
	SetCurrentIndex(index int)
}

// Tracker turns visibility observations into current index updates.
type Tracker struct {
	threshold float64
	sink      IndexSink
}

// NewTracker constructs a Tracker. Thresholds outside (0, 1] fall back to
// DefaultVisibilityThreshold.
func NewTracker(threshold float64, sink IndexSink) *Tracker {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultVisibilityThreshold
	}
	return &Tracker{threshold: threshold, sink: sink}
}

// Observe processes a batch of observations in the order they were reported
// and emits one update per qualifying crossing. Entries whose tag does not
// parse as a non-negative index are dropped. It returns the emitted indices.
func (t *Tracker) Observe(entries []Visibility) []int {
	var emitted []int
	for _, entry := range entries {
		if !entry.Intersecting || entry.Ratio < t.threshold {
			continue
		}
		index, err := strconv.Atoi(strings.TrimSpace(entry.Tag))
		if err != nil || index < 0 {
			continue
		}
		if t.sink != nil {
			t.sink.SetCurrentIndex(index)
		}
		emitted = append(emitted, index)
	}
	return emitted
}
