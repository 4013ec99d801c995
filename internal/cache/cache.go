// Package cache persists posts, engagement stats and comments locally so the
// feed can render a stale snapshot before the remote service answers.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vidfriends/reelfeed/internal/models"
)

// ErrNotFound indicates the requested record is not cached.
var ErrNotFound = errors.New("cache: record not found")

// Store is a local key-value cache with three independently keyed tables.
// Writes are upserts with last-write-wins semantics and nothing is evicted.
// Batch upserts are all-or-nothing: an error means the whole batch may be
// missing and can be retried as is.
type Store interface {
	GetPost(ctx context.Context, id string) (models.Post, error)
	// ListPosts returns up to limit posts, newest first. A limit of zero or
	// less returns every cached post.
	ListPosts(ctx context.Context, limit int) ([]models.Post, error)
	UpsertPost(ctx context.Context, post models.Post) error
	UpsertPosts(ctx context.Context, posts []models.Post) error

	GetStats(ctx context.Context, postID string) (models.PostStats, error)
	UpsertStats(ctx context.Context, stats models.PostStats) error

	GetComment(ctx context.Context, id string) (models.Comment, error)
	// ListComments returns up to limit comments of one post, newest first.
	ListComments(ctx context.Context, postID string, limit int) ([]models.Comment, error)
	UpsertComment(ctx context.Context, comment models.Comment) error
	UpsertComments(ctx context.Context, comments []models.Comment) error

	Close() error
}

// Open selects a cache implementation from a DSN:
//
//	memory:                  in-process maps
//	sqlite:///path/cache.db  SQLite file (also sqlite:relative.db)
//	postgres://...           PostgreSQL or CockroachDB
func Open(ctx context.Context, dsn string) (Store, error) {
	dsn = strings.TrimSpace(dsn)
	switch {
	case dsn == "" || dsn == "memory:" || dsn == "memory":
		return NewMemoryStore(), nil
	case strings.HasPrefix(dsn, "sqlite://"):
		return OpenSQLite(ctx, strings.TrimPrefix(dsn, "sqlite://"))
	case strings.HasPrefix(dsn, "sqlite:"):
		return OpenSQLite(ctx, strings.TrimPrefix(dsn, "sqlite:"))
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return OpenPostgres(ctx, dsn)
	default:
		return nil, fmt.Errorf("cache: unsupported dsn %q", dsn)
	}
}

func validatePost(post models.Post) error {
	if strings.TrimSpace(post.ID) == "" {
		return errors.New("cache: post id is required")
	}
	return nil
}

func validateStats(stats models.PostStats) error {
	if strings.TrimSpace(stats.PostID) == "" {
		return errors.New("cache: stats post id is required")
	}
	return nil
}

func validateComment(comment models.Comment) error {
	if strings.TrimSpace(comment.ID) == "" {
		return errors.New("cache: comment id is required")
	}
	if strings.TrimSpace(comment.PostID) == "" {
		return errors.New("cache: comment post id is required")
	}
	return nil
}
