package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vidfriends/reelfeed/internal/logging"
	"github.com/vidfriends/reelfeed/internal/models"
)

var (
	// ErrAuthRequired indicates a mutation was attempted without a credential.
	ErrAuthRequired = errors.New("authentication required")
	// ErrEmptyComment indicates the comment text was blank after trimming.
	ErrEmptyComment = errors.New("comment text is empty")
	// ErrEngagementUnavailable indicates the reconciler has no remote API.
	ErrEngagementUnavailable = errors.New("engagement api unavailable")
)

// LocalCommentPrefix marks comment ids fabricated before the server replied.
const LocalCommentPrefix = "local-"

// commentPageSize is the number of comments fetched when opening a post.
const commentPageSize = 20

// Reconciler applies like and comment mutations optimistically, then
// overwrites them with authoritative values once the remote call returns.
// Failed remote calls leave the optimistic state in place.
type Reconciler struct {
	store       *Store
	api         EngagementAPI
	cache       EngagementCache
	credentials Credentials
	logger      *slog.Logger
	NowFunc     func() time.Time

	mu      sync.Mutex
	likeSeq map[string]uint64
}

// NewReconciler constructs a Reconciler. The cache may be nil.
func NewReconciler(store *Store, api EngagementAPI, cache EngagementCache, credentials Credentials, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		store:       store,
		api:         api,
		cache:       cache,
		credentials: credentials,
		logger:      logger,
		NowFunc:     time.Now,
		likeSeq:     make(map[string]uint64),
	}
}

// ToggleLike flips the like on a post. The local membership and count change
// before the remote call; only the response to the most recent toggle of a
// post is applied, so overlapping toggles settle on the last server answer.
func (r *Reconciler) ToggleLike(ctx context.Context, postID string) (models.LikeResult, error) {
	if r.api == nil {
		return models.LikeResult{}, ErrEngagementUnavailable
	}
	token, err := r.token(ctx)
	if err != nil {
		return models.LikeResult{}, err
	}

	ctx, span := logging.StartSpan(logging.WithLogger(ctx, r.logger), "feed.toggle_like")
	defer span.End()
	logger := logging.FromContext(ctx).With("postId", postID)

	seq := r.nextLikeSeq(postID)
	state := r.store.Dispatch(LikeToggled{PostID: postID})
	r.cacheStats(ctx, state.StatsFor(postID))

	result, err := r.api.ToggleLike(ctx, token, postID)
	if err != nil {
		span.Fail(err)
		return models.LikeResult{}, fmt.Errorf("toggle like %s: %w", postID, err)
	}

	if !r.isLatestLike(postID, seq) {
		logger.Debug("dropping superseded like response", "liked", result.Liked, "likes", result.Likes)
		return result, nil
	}

	state = r.store.Dispatch(LikeConfirmed{PostID: postID, Liked: result.Liked, Likes: result.Likes})
	r.cacheStats(ctx, state.StatsFor(postID))
	return result, nil
}

// AddComment prepends a placeholder comment and bumps the comment count, then
// posts the comment. The server's comment is written to the cache; the
// visible placeholder is left as is. On remote failure the placeholder is
// returned along with the error.
func (r *Reconciler) AddComment(ctx context.Context, postID, text string) (models.Comment, error) {
	if r.api == nil {
		return models.Comment{}, ErrEngagementUnavailable
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Comment{}, ErrEmptyComment
	}
	token, err := r.token(ctx)
	if err != nil {
		return models.Comment{}, err
	}

	ctx, span := logging.StartSpan(logging.WithLogger(ctx, r.logger), "feed.add_comment")
	defer span.End()
	logger := logging.FromContext(ctx).With("postId", postID)

	userID, err := r.credentials.UserID(ctx)
	if err != nil {
		logger.Debug("resolve user id for placeholder comment", "error", err)
	}
	placeholder := models.Comment{
		ID:        LocalCommentPrefix + uuid.NewString(),
		PostID:    postID,
		UserID:    userID,
		Text:      text,
		CreatedAt: r.now(),
	}
	state := r.store.Dispatch(CommentPrepended{Comment: placeholder})
	r.cacheStats(ctx, state.StatsFor(postID))

	created, err := r.api.AddComment(ctx, token, postID, text)
	if err != nil {
		span.Fail(err)
		return placeholder, fmt.Errorf("add comment to %s: %w", postID, err)
	}

	if r.cache != nil {
		if err := r.cache.UpsertComment(ctx, created); err != nil {
			logger.Warn("cache comment", "commentId", created.ID, "error", err)
		}
	}
	return created, nil
}

// LoadStats shows cached stats for a post, then replaces them with the
// remote value. When nothing is available the post shows zero counts.
func (r *Reconciler) LoadStats(ctx context.Context, postID string) models.PostStats {
	logger := r.logger.With("postId", postID)

	if r.cache != nil {
		cached, err := r.cache.GetStats(ctx, postID)
		if err == nil {
			r.store.Dispatch(StatsLoaded{Stats: cached})
		} else {
			logger.Debug("no cached stats", "error", err)
		}
	}

	if r.api == nil {
		return r.store.Snapshot().StatsFor(postID)
	}

	stats, err := r.api.GetStats(ctx, postID)
	if err != nil {
		logger.Warn("fetch stats failed", "error", err)
		return r.store.Snapshot().StatsFor(postID)
	}
	stats.PostID = postID
	r.store.Dispatch(StatsLoaded{Stats: stats})
	r.cacheStats(ctx, stats)
	return stats
}

// LoadComments shows cached comments for a post, newest first, then replaces
// them with the first remote page, which is also written to the cache.
func (r *Reconciler) LoadComments(ctx context.Context, postID string) []models.Comment {
	logger := r.logger.With("postId", postID)

	if r.cache != nil {
		cached, err := r.cache.ListComments(ctx, postID, commentPageSize)
		if err != nil {
			logger.Warn("read cached comments", "error", err)
		} else if len(cached) > 0 {
			r.store.Dispatch(CommentsLoaded{PostID: postID, Comments: cached})
		}
	}

	if r.api == nil {
		return r.store.Snapshot().Comments[postID]
	}

	page, err := r.api.ListComments(ctx, postID, commentPageSize, 0)
	if err != nil {
		logger.Warn("fetch comments failed", "error", err)
		return r.store.Snapshot().Comments[postID]
	}

	r.store.Dispatch(CommentsLoaded{PostID: postID, Comments: page.Items})
	if r.cache != nil && len(page.Items) > 0 {
		if err := r.cache.UpsertComments(ctx, page.Items); err != nil {
			logger.Warn("cache comments", "count", len(page.Items), "error", err)
		}
	}
	return page.Items
}

func (r *Reconciler) token(ctx context.Context) (string, error) {
	if r.credentials == nil {
		return "", ErrAuthRequired
	}
	token, err := r.credentials.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuthRequired, err)
	}
	if strings.TrimSpace(token) == "" {
		return "", ErrAuthRequired
	}
	return token, nil
}

func (r *Reconciler) nextLikeSeq(postID string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.likeSeq[postID]++
	return r.likeSeq[postID]
}

func (r *Reconciler) isLatestLike(postID string, seq uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.likeSeq[postID] == seq
}

func (r *Reconciler) cacheStats(ctx context.Context, stats models.PostStats) {
	if r.cache == nil {
		return
	}
	if err := r.cache.UpsertStats(ctx, stats); err != nil {
		logging.FromContext(ctx).Warn("cache stats", "postId", stats.PostID, "error", err)
	}
}

func (r *Reconciler) now() time.Time {
	if r.NowFunc != nil {
		return r.NowFunc().UTC()
	}
	return time.Now().UTC()
}
