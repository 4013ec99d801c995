package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/cockroachdb/cockroach-go/v2/testserver"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vidfriends/reelfeed/internal/models"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	if os.Getenv("REELFEED_PG_INTEGRATION") != "1" {
		os.Exit(m.Run())
	}

	server, err := testserver.NewTestServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "start cockroach test server: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, server.PGURL().String())
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect to cockroach test server: %v\n", err)
		server.Stop()
		os.Exit(1)
	}

	if _, err := MigratePostgres(ctx, pool); err != nil {
		fmt.Fprintf(os.Stderr, "apply migrations: %v\n", err)
		pool.Close()
		server.Stop()
		os.Exit(1)
	}

	testPool = pool

	code := m.Run()

	pool.Close()
	server.Stop()

	os.Exit(code)
}

func requirePostgres(t *testing.T) *PostgresStore {
	t.Helper()
	if testPool == nil {
		t.Skip("set REELFEED_PG_INTEGRATION=1 to run against a cockroach test server")
	}

	ctx := context.Background()
	for _, table := range []string{"feed_posts", "feed_post_stats", "feed_comments"} {
		if _, err := testPool.Exec(ctx, "DELETE FROM "+table); err != nil {
			t.Fatalf("reset %s: %v", table, err)
		}
	}
	return NewPostgresStore(testPool)
}

func TestPostgresStore_PostsRoundTripAndOrder(t *testing.T) {
	ctx := context.Background()
	store := requirePostgres(t)

	base := time.Now().UTC().Truncate(time.Microsecond)
	older := samplePost(uuid.NewString(), base.Add(-time.Hour))
	newer := samplePost(uuid.NewString(), base)

	if err := store.UpsertPosts(ctx, []models.Post{older, newer}); err != nil {
		t.Fatalf("upsert posts: %v", err)
	}
	if err := store.UpsertPosts(ctx, []models.Post{older, newer}); err != nil {
		t.Fatalf("repeat upsert posts: %v", err)
	}

	got, err := store.GetPost(ctx, older.ID)
	if err != nil {
		t.Fatalf("get post: %v", err)
	}
	if diff := cmp.Diff(older, got); diff != "" {
		t.Fatalf("post mismatch (-want +got):\n%s", diff)
	}

	list, err := store.ListPosts(ctx, 10)
	if err != nil {
		t.Fatalf("list posts: %v", err)
	}
	if len(list) != 2 || list[0].ID != newer.ID || list[1].ID != older.ID {
		t.Fatalf("expected newest first, got %+v", list)
	}

	if _, err := store.GetPost(ctx, uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresStore_StatsAndComments(t *testing.T) {
	ctx := context.Background()
	store := requirePostgres(t)

	if err := store.UpsertStats(ctx, models.PostStats{PostID: "p1", Likes: 1, Comments: 0}); err != nil {
		t.Fatalf("upsert stats: %v", err)
	}
	if err := store.UpsertStats(ctx, models.PostStats{PostID: "p1", Likes: 2, Comments: 1}); err != nil {
		t.Fatalf("overwrite stats: %v", err)
	}
	stats, err := store.GetStats(ctx, "p1")
	if err != nil {
		t.Fatalf("get stats: %v", err)
	}
	if stats.Likes != 2 || stats.Comments != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	base := time.Now().UTC().Truncate(time.Microsecond)
	comments := []models.Comment{
		{ID: "c1", PostID: "p1", UserID: "u1", Text: "first", CreatedAt: base.Add(-time.Minute)},
		{ID: "c99", PostID: "p1", UserID: "u2", Text: "hi", CreatedAt: base},
	}
	if err := store.UpsertComments(ctx, comments); err != nil {
		t.Fatalf("upsert comments: %v", err)
	}

	got, err := store.ListComments(ctx, "p1", 0)
	if err != nil {
		t.Fatalf("list comments: %v", err)
	}
	if len(got) != 2 || got[0].ID != "c99" {
		t.Fatalf("expected newest comment first, got %+v", got)
	}
}

func TestMigratePostgres_IsIdempotent(t *testing.T) {
	requirePostgres(t)

	ran, err := MigratePostgres(context.Background(), testPool)
	if err != nil {
		t.Fatalf("re-run migrations: %v", err)
	}
	if len(ran) != 0 {
		t.Fatalf("expected no pending migrations, applied %v", ran)
	}

	states, err := PostgresMigrationStatus(context.Background(), testPool)
	if err != nil {
		t.Fatalf("migration status: %v", err)
	}
	for _, state := range states {
		if !state.Applied {
			t.Fatalf("expected %s to be applied", state.Name)
		}
	}
}

func TestShouldRetryMigration(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "deadline", err: context.DeadlineExceeded, want: true},
		{name: "serialization failure", err: &pgconn.PgError{Code: "40001"}, want: true},
		{name: "wrapped deadlock", err: fmt.Errorf("exec: %w", &pgconn.PgError{Code: "40P01"}), want: true},
		{name: "syntax error", err: &pgconn.PgError{Code: "42601"}, want: false},
		{name: "plain", err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := shouldRetryMigration(tt.err); got != tt.want {
				t.Fatalf("shouldRetryMigration(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
