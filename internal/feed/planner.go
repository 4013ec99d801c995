package feed

import "github.com/vidfriends/reelfeed/internal/models"

// PreloadStrategy controls how aggressively a mounted post buffers media.
type PreloadStrategy string

const (
	// PreloadFull eagerly fetches enough content to play immediately.
	PreloadFull PreloadStrategy = "full"
	// PreloadMetadata fetches only duration and dimensions.
	PreloadMetadata PreloadStrategy = "metadata"
	// PreloadNone leaves the post unmounted.
	PreloadNone PreloadStrategy = "none"
)

// Mount window bounds relative to the tracked index.
const (
	windowBehind = 1
	windowAhead  = 2
)

// RenderConfig is the per-post projection of the feed around the tracked index.
type RenderConfig struct {
	Post     models.Post
	Index    int
	Distance int
	Mounted  bool
	Strategy PreloadStrategy
	Active   bool
	NextUp   bool
	OnDeck   bool
}

// PlanWindow maps the ordered post list and tracked index to one RenderConfig
// per post. Only posts with distance in [-1, 2] are mounted.
func PlanWindow(posts []models.Post, current int) []RenderConfig {
	configs := make([]RenderConfig, len(posts))
	for i, post := range posts {
		distance := i - current
		configs[i] = RenderConfig{
			Post:     post,
			Index:    i,
			Distance: distance,
			Mounted:  distance >= -windowBehind && distance <= windowAhead,
			Strategy: strategyFor(distance),
			Active:   distance == 0,
			NextUp:   distance == 1,
			OnDeck:   distance == 2,
		}
	}
	return configs
}

func strategyFor(distance int) PreloadStrategy {
	switch distance {
	case 0, 1:
		return PreloadFull
	case -1, 2:
		return PreloadMetadata
	default:
		return PreloadNone
	}
}

// MountedIndices returns the indices of mounted posts in feed order.
func MountedIndices(configs []RenderConfig) []int {
	var out []int
	for _, cfg := range configs {
		if cfg.Mounted {
			out = append(out, cfg.Index)
		}
	}
	return out
}

// Placeholder returns the thumbnail media reference used in place of an
// unmounted post. It reports false for mounted posts or posts without media.
func Placeholder(configs []RenderConfig, index int) (models.MediaRef, bool) {
	if index < 0 || index >= len(configs) {
		return models.MediaRef{}, false
	}
	cfg := configs[index]
	if cfg.Mounted {
		return models.MediaRef{}, false
	}
	return cfg.Post.PrimaryMedia()
}
