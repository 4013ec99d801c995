package cache

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/vidfriends/reelfeed/internal/db"
	"github.com/vidfriends/reelfeed/internal/models"
)

//go:embed migrations/sqlite/*.sql
var sqliteMigrations embed.FS

// SQLiteStore persists the cache in a SQLite file. Posts and comments are
// stored as JSON documents next to the columns used for ordering.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens the database at path and creates any missing tables.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	conn, err := db.OpenSQLite(path)
	if err != nil {
		return nil, err
	}
	if err := migrateSQLite(conn); err != nil {
		conn.Close()
		return nil, err
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping sqlite cache: %w", err)
	}
	return &SQLiteStore{db: conn}, nil
}

// migrateSQLite applies the embedded migrations. The migrate instance is not
// closed because that would close the shared connection.
func migrateSQLite(conn *sql.DB) error {
	source, err := iofs.New(sqliteMigrations, "migrations/sqlite")
	if err != nil {
		return fmt.Errorf("load sqlite migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(conn, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("init sqlite migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("init sqlite migrations: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply sqlite migrations: %w", err)
	}
	return nil
}

// GetPost implements Store.
func (s *SQLiteStore) GetPost(ctx context.Context, id string) (models.Post, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM posts WHERE id = ?`, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Post{}, ErrNotFound
		}
		return models.Post{}, fmt.Errorf("select post: %w", err)
	}

	var post models.Post
	if err := json.Unmarshal([]byte(payload), &post); err != nil {
		return models.Post{}, fmt.Errorf("decode post %s: %w", id, err)
	}
	return post, nil
}

// ListPosts implements Store.
func (s *SQLiteStore) ListPosts(ctx context.Context, limit int) ([]models.Post, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT payload FROM posts
        ORDER BY created_at DESC, id DESC
        LIMIT ?
    `, limit)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	var posts []models.Post
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		var post models.Post
		if err := json.Unmarshal([]byte(payload), &post); err != nil {
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
func (s *SQLiteStore) UpsertPost(ctx context.Context, post models.Post) error {
	return s.UpsertPosts(ctx, []models.Post{post})
}

// UpsertPosts implements Store.
func (s *SQLiteStore) UpsertPosts(ctx context.Context, posts []models.Post) error {
	if len(posts) == 0 {
		return nil
	}
	return s.inTx(ctx, "posts", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
            INSERT INTO posts (id, created_at, payload) VALUES (?, ?, ?)
            ON CONFLICT (id) DO UPDATE SET created_at = excluded.created_at, payload = excluded.payload
        `)
		if err != nil {
			return fmt.Errorf("prepare post upsert: %w", err)
		}
		defer stmt.Close()

		for _, post := range posts {
			if err := validatePost(post); err != nil {
				return err
			}
			payload, err := json.Marshal(post)
			if err != nil {
				return fmt.Errorf("encode post %s: %w", post.ID, err)
			}
			if _, err := stmt.ExecContext(ctx, post.ID, unixNano(post.CreatedAt), string(payload)); err != nil {
				return fmt.Errorf("upsert post %s: %w", post.ID, err)
			}
		}
		return nil
	})
}

// GetStats implements Store.
func (s *SQLiteStore) GetStats(ctx context.Context, postID string) (models.PostStats, error) {
	stats := models.PostStats{PostID: postID}
	err := s.db.QueryRowContext(ctx, `SELECT likes, comments FROM post_stats WHERE post_id = ?`, postID).
		Scan(&stats.Likes, &stats.Comments)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.PostStats{}, ErrNotFound
		}
		return models.PostStats{}, fmt.Errorf("select stats: %w", err)
	}
	return stats, nil
}

// UpsertStats implements Store.
func (s *SQLiteStore) UpsertStats(ctx context.Context, stats models.PostStats) error {
	if err := validateStats(stats); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO post_stats (post_id, likes, comments) VALUES (?, ?, ?)
        ON CONFLICT (post_id) DO UPDATE SET likes = excluded.likes, comments = excluded.comments
    `, stats.PostID, stats.Likes, stats.Comments)
	if err != nil {
		return fmt.Errorf("upsert stats %s: %w", stats.PostID, err)
	}
	return nil
}

// GetComment implements Store.
func (s *SQLiteStore) GetComment(ctx context.Context, id string) (models.Comment, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM comments WHERE id = ?`, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Comment{}, ErrNotFound
		}
		return models.Comment{}, fmt.Errorf("select comment: %w", err)
	}

	var comment models.Comment
	if err := json.Unmarshal([]byte(payload), &comment); err != nil {
		return models.Comment{}, fmt.Errorf("decode comment %s: %w", id, err)
	}
	return comment, nil
}

// ListComments implements Store.
func (s *SQLiteStore) ListComments(ctx context.Context, postID string, limit int) ([]models.Comment, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT payload FROM comments
        WHERE post_id = ?
        ORDER BY created_at DESC, id DESC
        LIMIT ?
    `, postID, limit)
	if err != nil {
		return nil, fmt.Errorf("query comments: %w", err)
	}
	defer rows.Close()

	var comments []models.Comment
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		var comment models.Comment
		if err := json.Unmarshal([]byte(payload), &comment); err != nil {
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
func (s *SQLiteStore) UpsertComment(ctx context.Context, comment models.Comment) error {
	return s.UpsertComments(ctx, []models.Comment{comment})
}

// UpsertComments implements Store.
func (s *SQLiteStore) UpsertComments(ctx context.Context, comments []models.Comment) error {
	if len(comments) == 0 {
		return nil
	}
	return s.inTx(ctx, "comments", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
            INSERT INTO comments (id, post_id, created_at, payload) VALUES (?, ?, ?, ?)
            ON CONFLICT (id) DO UPDATE SET post_id = excluded.post_id, created_at = excluded.created_at, payload = excluded.payload
        `)
		if err != nil {
			return fmt.Errorf("prepare comment upsert: %w", err)
		}
		defer stmt.Close()

		for _, comment := range comments {
			if err := validateComment(comment); err != nil {
				return err
			}
			payload, err := json.Marshal(comment)
			if err != nil {
				return fmt.Errorf("encode comment %s: %w", comment.ID, err)
			}
			if _, err := stmt.ExecContext(ctx, comment.ID, comment.PostID, unixNano(comment.CreatedAt), string(payload)); err != nil {
				return fmt.Errorf("upsert comment %s: %w", comment.ID, err)
			}
		}
		return nil
	})
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) inTx(ctx context.Context, table string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s batch: %w", table, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s batch: %w", table, err)
	}
	return nil
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

var _ Store = (*SQLiteStore)(nil)
