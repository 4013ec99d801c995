package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/vidfriends/reelfeed/internal/cache"
	"github.com/vidfriends/reelfeed/internal/config"
	"github.com/vidfriends/reelfeed/internal/db"
	"github.com/vidfriends/reelfeed/internal/feed"
	"github.com/vidfriends/reelfeed/internal/httpserver"
	"github.com/vidfriends/reelfeed/internal/logging"
	"github.com/vidfriends/reelfeed/internal/middleware"
	"github.com/vidfriends/reelfeed/internal/remote"
	"github.com/vidfriends/reelfeed/internal/statusapi"
	"github.com/vidfriends/reelfeed/internal/upload"
)

// Run dispatches a reelfeed command.
func Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("expected command: serve, migrate, upload, window, or user")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.New(os.Stdout, cfg.LogLevel)
	slog.SetDefault(logger)
	ctx = logging.WithLogger(ctx, logger)

	switch args[0] {
	case "serve":
		return serve(ctx, cfg, logger)
	case "migrate":
		return runMigrations(ctx, cfg, args[1:], os.Stdout)
	case "upload":
		return runUpload(ctx, cfg, args[1:], os.Stderr)
	case "window":
		return printWindow(ctx, cfg, args[1:], os.Stdout)
	case "user":
		return printUserPosts(ctx, cfg, args[1:], os.Stdout)
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := buildSession(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Close(); err != nil {
			logger.Warn("close session", "error", err)
		}
	}()

	s.start(ctx)

	mux := http.NewServeMux()
	statusapi.RegisterRoutes(mux, s.routes())
	handler := middleware.RequestLogger(logger)(middleware.CORS(cfg.CORSOrigins)(mux))

	srv := httpserver.New(cfg.StatusPort, handler)
	logger.Info("starting status api", "port", cfg.StatusPort, "api", cfg.APIBaseURL)
	return srv.Run(ctx, nil)
}

// runMigrations reports or applies the cache schema. SQLite files are
// migrated whenever they are opened, so only PostgreSQL has pending state.
func runMigrations(ctx context.Context, cfg config.Config, args []string, out io.Writer) error {
	command := "up"
	if len(args) > 0 {
		command = args[0]
	}
	if command != "up" && command != "status" {
		return fmt.Errorf("unknown migrate command %q", command)
	}

	dsn := strings.TrimSpace(cfg.CacheDSN)
	if !strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://") {
		store, err := cache.Open(ctx, dsn)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "cache schema is current for %s\n", dsn)
		return store.Close()
	}

	pool, err := db.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer pool.Close()

	if command == "status" {
		states, err := cache.PostgresMigrationStatus(ctx, pool)
		if err != nil {
			return err
		}
		for _, st := range states {
			mark := " "
			if st.Applied {
				mark = "x"
			}
			fmt.Fprintf(out, "[%s] %s\n", mark, st.Name)
		}
		return nil
	}

	applied, err := cache.MigratePostgres(ctx, pool)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		fmt.Fprintln(out, "no migrations to apply")
	}
	for _, name := range applied {
		fmt.Fprintf(out, "applied migration %s\n", name)
	}
	return nil
}

func runUpload(ctx context.Context, cfg config.Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("upload", flag.ContinueOnError)
	fs.SetOutput(out)
	caption := fs.String("caption", "", "post caption")
	description := fs.String("description", "", "post description")
	tags := fs.String("tags", "", "comma separated tags")
	staged := fs.Bool("s3", false, "stage media in the configured bucket before creating the post")
	if err := fs.Parse(args); err != nil {
		return err
	}

	req := upload.Request{Caption: *caption, Description: *description, Tags: *tags}
	for _, path := range fs.Args() {
		f, err := upload.FileFromPath(path)
		if err != nil {
			return err
		}
		req.Files = append(req.Files, f)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT)
	defer stop()

	publisher, err := buildPublisher(ctx, cfg, *staged)
	if err != nil {
		return err
	}

	post, err := publisher.Publish(ctx, req, func(pct float64) {
		fmt.Fprintf(out, "\ruploading %3.0f%%", pct)
	})
	fmt.Fprintln(out)
	if err != nil {
		if errors.Is(err, remote.ErrUploadAborted) {
			return errors.New("upload cancelled")
		}
		return err
	}

	fmt.Fprintf(out, "created post %s (%s)\n", post.ID, post.Status)
	return nil
}

func buildPublisher(ctx context.Context, cfg config.Config, staged bool) (upload.Publisher, error) {
	// Uploads can run far longer than a feed request, so no client timeout.
	client, err := remote.NewClient(cfg.APIBaseURL,
		remote.WithHTTPClient(&http.Client{}),
		remote.WithRateLimit(cfg.APIRate, cfg.APIBurst),
	)
	if err != nil {
		return nil, err
	}
	identity, err := signIn(ctx, cfg.Identity)
	if err != nil {
		return nil, err
	}

	if !staged {
		return upload.NewDirect(client, identity), nil
	}
	uploader, err := upload.NewS3Uploader(ctx, cfg.ObjectStore)
	if err != nil {
		return nil, err
	}
	stager, err := upload.NewS3Stager(uploader, cfg.ObjectStore, client, identity)
	if err != nil {
		return nil, err
	}
	return stager, nil
}

// printWindow prints the render plan of the cached feed around an index.
func printWindow(ctx context.Context, cfg config.Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("window", flag.ContinueOnError)
	fs.SetOutput(out)
	index := fs.Int("index", 0, "tracked index")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := cache.Open(ctx, cfg.CacheDSN)
	if err != nil {
		return err
	}
	defer store.Close()

	posts, err := store.ListPosts(ctx, 0)
	if err != nil {
		return err
	}
	if len(posts) == 0 {
		fmt.Fprintln(out, "no cached posts")
		return nil
	}

	writeWindow(out, feed.PlanWindow(posts, *index), remote.NewMediaURLs(cfg.MediaBaseURL))
	return nil
}

// printUserPosts lists one page of posts authored by a user.
func printUserPosts(ctx context.Context, cfg config.Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("user", flag.ContinueOnError)
	fs.SetOutput(out)
	userID := fs.String("id", "", "author user id")
	take := fs.Int("take", cfg.PageSize, "page size")
	skip := fs.Int("skip", 0, "posts to skip")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*userID) == "" {
		return errors.New("user: -id is required")
	}

	client, err := remote.NewClient(cfg.APIBaseURL,
		remote.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
		remote.WithRateLimit(cfg.APIRate, cfg.APIBurst),
	)
	if err != nil {
		return err
	}
	page, err := client.ListUserPosts(ctx, *userID, *take, *skip)
	if err != nil {
		return fmt.Errorf("list posts of %s: %w", *userID, err)
	}
	if len(page.Items) == 0 {
		fmt.Fprintln(out, "no posts")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "POST\tSTATUS\tCREATED\tCAPTION")
	for _, post := range page.Items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", post.ID, post.Status, post.CreatedAt.Format(time.RFC3339), post.Caption)
	}
	return tw.Flush()
}

func writeWindow(out io.Writer, window []feed.RenderConfig, media remote.MediaURLs) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tPOST\tDISTANCE\tMOUNTED\tSTRATEGY\tROLE\tSOURCE")
	for i, cfg := range window {
		role := "-"
		switch {
		case cfg.Active:
			role = "active"
		case cfg.NextUp:
			role = "next-up"
		case cfg.OnDeck:
			role = "on-deck"
		}
		source := media.Primary(cfg.Post)
		if !cfg.Mounted {
			source = ""
			if ref, ok := feed.Placeholder(window, i); ok {
				source = media.Thumb(ref.ID)
			}
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%t\t%s\t%s\t%s\n", cfg.Index, cfg.Post.ID, cfg.Distance, cfg.Mounted, cfg.Strategy, role, source)
	}
	_ = tw.Flush()
}
