package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vidfriends/reelfeed/internal/db"
	"github.com/vidfriends/reelfeed/internal/models"
)

// PostgresStore persists the cache in PostgreSQL or CockroachDB so several
// client processes can share one warm cache.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgresStore constructs a cache backed by an existing pool. The schema
// must already be applied with MigratePostgres.
func NewPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// OpenPostgres connects to databaseURL and applies pending cache migrations.
func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if _, err := MigratePostgres(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return NewPostgresStore(pool), nil
}

// GetPost implements Store.
func (s *PostgresStore) GetPost(ctx context.Context, id string) (models.Post, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return models.Post{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var payload []byte
	if err := conn.QueryRow(ctx, `SELECT payload FROM feed_posts WHERE id = $1`, id).Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Post{}, ErrNotFound
		}
		return models.Post{}, fmt.Errorf("select post: %w", err)
	}

	var post models.Post
	if err := json.Unmarshal(payload, &post); err != nil {
		return models.Post{}, fmt.Errorf("decode post %s: %w", id, err)
	}
	return post, nil
}

// ListPosts implements Store.
func (s *PostgresStore) ListPosts(ctx context.Context, limit int) ([]models.Post, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var limitArg any
	if limit > 0 {
		limitArg = limit
	}
	rows, err := conn.Query(ctx, `
        SELECT payload FROM feed_posts
        ORDER BY created_at DESC, id DESC
        LIMIT $1
    `, limitArg)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	var posts []models.Post
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		var post models.Post
		if err := json.Unmarshal(payload, &post); err != nil {
			return nil, fmt.Errorf("decode post: %w", err)
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return posts, nil
}

// UpsertPost implements Store.
func (s *PostgresStore) UpsertPost(ctx context.Context, post models.Post) error {
	return s.UpsertPosts(ctx, []models.Post{post})
}

// UpsertPosts implements Store.
func (s *PostgresStore) UpsertPosts(ctx context.Context, posts []models.Post) error {
	if len(posts) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, post := range posts {
		if err := validatePost(post); err != nil {
			return err
		}
		payload, err := json.Marshal(post)
		if err != nil {
			return fmt.Errorf("encode post %s: %w", post.ID, err)
		}
		batch.Queue(`
            INSERT INTO feed_posts (id, created_at, payload) VALUES ($1, $2, $3)
            ON CONFLICT (id) DO UPDATE SET created_at = excluded.created_at, payload = excluded.payload
        `, post.ID, post.CreatedAt, payload)
	}
	return s.sendBatch(ctx, "posts", batch)
}

// GetStats implements Store.
func (s *PostgresStore) GetStats(ctx context.Context, postID string) (models.PostStats, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return models.PostStats{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	stats := models.PostStats{PostID: postID}
	err = conn.QueryRow(ctx, `SELECT likes, comments FROM feed_post_stats WHERE post_id = $1`, postID).
		Scan(&stats.Likes, &stats.Comments)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.PostStats{}, ErrNotFound
		}
		return models.PostStats{}, fmt.Errorf("select stats: %w", err)
	}
	return stats, nil
}

// UpsertStats implements Store.
func (s *PostgresStore) UpsertStats(ctx context.Context, stats models.PostStats) error {
	if err := validateStats(stats); err != nil {
		return err
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO feed_post_stats (post_id, likes, comments) VALUES ($1, $2, $3)
        ON CONFLICT (post_id) DO UPDATE SET likes = excluded.likes, comments = excluded.comments
    `, stats.PostID, stats.Likes, stats.Comments)
	if err != nil {
		return fmt.Errorf("upsert stats %s: %w", stats.PostID, err)
	}
	return nil
}

// GetComment implements Store.
func (s *PostgresStore) GetComment(ctx context.Context, id string) (models.Comment, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return models.Comment{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var payload []byte
	if err := conn.QueryRow(ctx, `SELECT payload FROM feed_comments WHERE id = $1`, id).Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Comment{}, ErrNotFound
		}
		return models.Comment{}, fmt.Errorf("select comment: %w", err)
	}

	var comment models.Comment
	if err := json.Unmarshal(payload, &comment); err != nil {
		return models.Comment{}, fmt.Errorf("decode comment %s: %w", id, err)
	}
	return comment, nil
}

// ListComments implements Store.
func (s *PostgresStore) ListComments(ctx context.Context, postID string, limit int) ([]models.Comment, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var limitArg any
	if limit > 0 {
		limitArg = limit
	}
	rows, err := conn.Query(ctx, `
        SELECT payload FROM feed_comments
        WHERE post_id = $1
        ORDER BY created_at DESC, id DESC
        LIMIT $2
    `, postID, limitArg)
	if err != nil {
		return nil, fmt.Errorf("query comments: %w", err)
	}
	defer rows.Close()

	var comments []models.Comment
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		var comment models.Comment
		if err := json.Unmarshal(payload, &comment); err != nil {
			return nil, fmt.Errorf("decode comment: %w", err)
		}
		comments = append(comments, comment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return comments, nil
}

// UpsertComment implements Store.
func (s *PostgresStore) UpsertComment(ctx context.Context, comment models.Comment) error {
	return s.UpsertComments(ctx, []models.Comment{comment})
}

// UpsertComments implements Store.
func (s *PostgresStore) UpsertComments(ctx context.Context, comments []models.Comment) error {
	if len(comments) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, comment := range comments {
		if err := validateComment(comment); err != nil {
			return err
		}
		payload, err := json.Marshal(comment)
		if err != nil {
			return fmt.Errorf("encode comment %s: %w", comment.ID, err)
		}
		batch.Queue(`
            INSERT INTO feed_comments (id, post_id, created_at, payload) VALUES ($1, $2, $3, $4)
            ON CONFLICT (id) DO UPDATE SET post_id = excluded.post_id, created_at = excluded.created_at, payload = excluded.payload
        `, comment.ID, comment.PostID, comment.CreatedAt, payload)
	}
	return s.sendBatch(ctx, "comments", batch)
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// sendBatch runs every queued statement in one transaction.
func (s *PostgresStore) sendBatch(ctx context.Context, table string, batch *pgx.Batch) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin %s batch: %w", table, err)
	}

	results := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			_ = tx.Rollback(ctx)
			return fmt.Errorf("upsert %s batch item %d: %w", table, i, err)
		}
	}
	if err := results.Close(); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("close %s batch: %w", table, err)
	}
	if err := tx.Commit(ctx); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("commit %s batch: %w", table, err)
	}
	return nil
}

var (
	_ Store   = (*PostgresStore)(nil)
	_ db.Pool = (*pgxpool.Pool)(nil)
)
