// Package remote is the HTTP client for the posts service: paginated posts,
// stats, comments, likes, post creation and media upload.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/vidfriends/reelfeed/internal/logging"
	"github.com/vidfriends/reelfeed/internal/models"
)

const defaultTimeout = 15 * time.Second

// Client talks to the posts service. Outgoing requests share one token
// bucket so a fast scroll cannot flood the service.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	limiter *rate.Limiter
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithRateLimit caps outgoing requests per second with the given burst. A
// non-positive rate disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// NewClient constructs a client for the service rooted at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse api base url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("api base url must be http or https, got %q", baseURL)
	}

	c := &Client{
		baseURL: parsed,
		http:    &http.Client{Timeout: defaultTimeout},
		limiter: rate.NewLimiter(rate.Inf, 0),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ListPosts fetches one page of the global feed.
func (c *Client) ListPosts(ctx context.Context, take, skip int) (models.PostPage, error) {
	var page models.PostPage
	err := c.doJSON(ctx, http.MethodGet, "/api/posts", pageQuery(take, skip), "", nil, &page)
	return page, err
}

// ListUserPosts fetches one page of posts authored by userID.
func (c *Client) ListUserPosts(ctx context.Context, userID string, take, skip int) (models.PostPage, error) {
	var page models.PostPage
	err := c.doJSON(ctx, http.MethodGet, "/api/posts/user/"+url.PathEscape(userID), pageQuery(take, skip), "", nil, &page)
	return page, err
}

// GetPost fetches a single post.
func (c *Client) GetPost(ctx context.Context, postID string) (models.Post, error) {
	var post models.Post
	err := c.doJSON(ctx, http.MethodGet, "/api/posts/"+url.PathEscape(postID), nil, "", nil, &post)
	return post, err
}

// GetStats fetches the like and comment counters of a post.
func (c *Client) GetStats(ctx context.Context, postID string) (models.PostStats, error) {
	var resp struct {
		Stats models.PostStats `json:"stats"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/posts/"+url.PathEscape(postID)+"/stats", nil, "", nil, &resp); err != nil {
		return models.PostStats{}, err
	}
	if resp.Stats.PostID == "" {
		resp.Stats.PostID = postID
	}
	return resp.Stats, nil
}

// ListComments fetches one page of comments on a post, newest first.
func (c *Client) ListComments(ctx context.Context, postID string, take, skip int) (models.CommentPage, error) {
	var page models.CommentPage
	err := c.doJSON(ctx, http.MethodGet, "/api/posts/"+url.PathEscape(postID)+"/comments", pageQuery(take, skip), "", nil, &page)
	return page, err
}

// ToggleLike flips the caller's like on a post and returns the
// authoritative result.
func (c *Client) ToggleLike(ctx context.Context, token, postID string) (models.LikeResult, error) {
	if strings.TrimSpace(token) == "" {
		return models.LikeResult{}, ErrUnauthorized
	}
	var result models.LikeResult
	if err := c.doJSON(ctx, http.MethodPost, "/api/posts/"+url.PathEscape(postID)+"/like", nil, token, nil, &result); err != nil {
		return models.LikeResult{}, err
	}
	if result.PostID == "" {
		result.PostID = postID
	}
	return result, nil
}

// AddComment posts a comment and returns it with its server-assigned id.
func (c *Client) AddComment(ctx context.Context, token, postID, text string) (models.Comment, error) {
	if strings.TrimSpace(token) == "" {
		return models.Comment{}, ErrUnauthorized
	}
	body := map[string]string{"text": text}
	var comment models.Comment
	if err := c.doJSON(ctx, http.MethodPost, "/api/posts/"+url.PathEscape(postID)+"/comments", nil, token, body, &comment); err != nil {
		return models.Comment{}, err
	}
	if comment.PostID == "" {
		comment.PostID = postID
	}
	return comment, nil
}

// CreatePost creates a post from media that is already uploaded.
func (c *Client) CreatePost(ctx context.Context, token string, input models.NewPost) (models.Post, error) {
	if strings.TrimSpace(token) == "" {
		return models.Post{}, ErrUnauthorized
	}
	var post models.Post
	err := c.doJSON(ctx, http.MethodPost, "/api/posts", nil, token, input, &post)
	return post, err
}

func pageQuery(take, skip int) url.Values {
	q := url.Values{}
	q.Set("take", strconv.Itoa(take))
	q.Set("skip", strconv.Itoa(skip))
	return q
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s request: %w", method, path, err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), body)
	if err != nil {
		return fmt.Errorf("build %s %s request: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.send(ctx, req, token)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

// send waits for the limiter, attaches the bearer credential and turns
// non-2xx responses into a *StatusError. The caller closes the body.
func (c *Client) send(ctx context.Context, req *http.Request, token string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wait for rate limiter: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	logging.FromContext(ctx).Debug("remote request completed",
		"method", req.Method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, newStatusError(resp)
	}
	return resp, nil
}

// IsTransient reports whether err is worth retrying later: transport
// failures and 5xx responses.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= 500 || statusErr.StatusCode == http.StatusTooManyRequests
	}
	return !errors.Is(err, ErrUnauthorized) && !errors.Is(err, ErrUploadAborted)
}
