package cache

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/vidfriends/reelfeed/internal/models"
)

// MemoryStore keeps every table in process memory. It is safe for concurrent
// use and is what tests and ephemeral sessions use.
type MemoryStore struct {
	mu       sync.RWMutex
	posts    map[string]models.Post
	stats    map[string]models.PostStats
	comments map[string]models.Comment
}

// NewMemoryStore constructs an empty in-memory cache.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		posts:    make(map[string]models.Post),
		stats:    make(map[string]models.PostStats),
		comments: make(map[string]models.Comment),
	}
}

// GetPost implements Store.
func (s *MemoryStore) GetPost(_ context.Context, id string) (models.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	post, ok := s.posts[id]
	if !ok {
		return models.Post{}, ErrNotFound
	}
	return clonePost(post), nil
}

// ListPosts implements Store.
func (s *MemoryStore) ListPosts(_ context.Context, limit int) ([]models.Post, error) {
	s.mu.RLock()
	posts := make([]models.Post, 0, len(s.posts))
	for _, post := range s.posts {
		posts = append(posts, clonePost(post))
	}
	s.mu.RUnlock()

	sort.SliceStable(posts, func(i, j int) bool {
		if posts[i].CreatedAt.Equal(posts[j].CreatedAt) {
			return posts[i].ID > posts[j].ID
		}
		return posts[i].CreatedAt.After(posts[j].CreatedAt)
	})
	if limit > 0 && len(posts) > limit {
		posts = posts[:limit]
	}
	return posts, nil
}

// UpsertPost implements Store.
func (s *MemoryStore) UpsertPost(ctx context.Context, post models.Post) error {
	return s.UpsertPosts(ctx, []models.Post{post})
}

// UpsertPosts implements Store. The batch is validated before any write.
func (s *MemoryStore) UpsertPosts(_ context.Context, posts []models.Post) error {
	for _, post := range posts {
		if err := validatePost(post); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, post := range posts {
		s.posts[post.ID] = clonePost(post)
	}
	return nil
}

// GetStats implements Store.
func (s *MemoryStore) GetStats(_ context.Context, postID string) (models.PostStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats, ok := s.stats[postID]
	if !ok {
		return models.PostStats{}, ErrNotFound
	}
	return stats, nil
}

// UpsertStats implements Store.
func (s *MemoryStore) UpsertStats(_ context.Context, stats models.PostStats) error {
	if err := validateStats(stats); err != nil {
		return err
	}

	s.mu.Lock()
	s.stats[stats.PostID] = stats
	s.mu.Unlock()
	return nil
}

// GetComment implements Store.
func (s *MemoryStore) GetComment(_ context.Context, id string) (models.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	comment, ok := s.comments[id]
	if !ok {
		return models.Comment{}, ErrNotFound
	}
	return comment, nil
}

// ListComments implements Store.
func (s *MemoryStore) ListComments(_ context.Context, postID string, limit int) ([]models.Comment, error) {
	s.mu.RLock()
	var comments []models.Comment
	for _, comment := range s.comments {
		if comment.PostID == postID {
			comments = append(comments, comment)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(comments, func(i, j int) bool {
		if comments[i].CreatedAt.Equal(comments[j].CreatedAt) {
			return comments[i].ID > comments[j].ID
		}
		return comments[i].CreatedAt.After(comments[j].CreatedAt)
	})
	if limit > 0 && len(comments) > limit {
		comments = comments[:limit]
	}
	return comments, nil
}

// UpsertComment implements Store.
func (s *MemoryStore) UpsertComment(ctx context.Context, comment models.Comment) error {
	return s.UpsertComments(ctx, []models.Comment{comment})
}

// UpsertComments implements Store. The batch is validated before any write.
func (s *MemoryStore) UpsertComments(_ context.Context, comments []models.Comment) error {
	for _, comment := range comments {
		if err := validateComment(comment); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, comment := range comments {
		s.comments[comment.ID] = comment
	}
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}

func clonePost(post models.Post) models.Post {
	post.Media = slices.Clone(post.Media)
	post.Tags = slices.Clone(post.Tags)
	return post
}

var _ Store = (*MemoryStore)(nil)
