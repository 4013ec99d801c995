package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"github.com/vidfriends/reelfeed/internal/config"
	"github.com/vidfriends/reelfeed/internal/logging"
	"github.com/vidfriends/reelfeed/internal/models"
	"github.com/vidfriends/reelfeed/internal/remote"
)

// ObjectUploader is the subset of the S3 transfer manager the stager uses.
type ObjectUploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// PostCreator creates a post from media that is already stored.
type PostCreator interface {
	CreatePost(ctx context.Context, token string, input models.NewPost) (models.Post, error)
}

// NewS3Uploader configures a multipart uploader for an S3-compatible service.
func NewS3Uploader(ctx context.Context, cfg config.ObjectStoreConfig) (*manager.Uploader, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("s3 staging: bucket is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
		if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	return manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = 5 * 1024 * 1024
		u.LeavePartsOnError = false
	}), nil
}

// S3Stager uploads each file to a bucket and then creates the post from the
// stored media ids. It suits large videos that should not pass through the
// posts service.
type S3Stager struct {
	uploader ObjectUploader
	bucket   string
	baseURL  string
	api      PostCreator
	tokens   TokenSource

	// NewID overrides media id generation in tests.
	NewID func() string
}

// NewS3Stager constructs a staging Publisher.
func NewS3Stager(uploader ObjectUploader, cfg config.ObjectStoreConfig, api PostCreator, tokens TokenSource) (*S3Stager, error) {
	if uploader == nil {
		return nil, errors.New("s3 staging: uploader is required")
	}
	if !cfg.Enabled() {
		return nil, errors.New("s3 staging: bucket is required")
	}
	if api == nil {
		return nil, errors.New("s3 staging: post creator is required")
	}
	return &S3Stager{
		uploader: uploader,
		bucket:   cfg.Bucket,
		baseURL:  strings.TrimSuffix(cfg.PublicBaseURL, "/"),
		api:      api,
		tokens:   tokens,
	}, nil
}

// Publish implements Publisher.
func (s *S3Stager) Publish(ctx context.Context, req Request, onProgress remote.ProgressFunc) (models.Post, error) {
	ctx, span := logging.StartSpan(ctx, "upload.s3")
	defer span.End()

	prepared, err := prepare(ctx, s.tokens, req)
	if err != nil {
		span.Fail(err)
		return models.Post{}, err
	}

	progress := newProgress(req.Files, onProgress)
	media := make([]models.MediaRef, 0, len(req.Files))
	for _, f := range req.Files {
		ref, err := s.stage(ctx, f, progress)
		if err != nil {
			span.Fail(err)
			if errors.Is(ctx.Err(), context.Canceled) {
				return models.Post{}, fmt.Errorf("%w: %v", remote.ErrUploadAborted, err)
			}
			return models.Post{}, err
		}
		media = append(media, ref)
	}

	post, err := s.api.CreatePost(ctx, prepared.token, models.NewPost{
		Media:        media,
		Caption:      prepared.caption,
		Description:  prepared.description,
		Tags:         prepared.tags,
		Username:     req.Username,
		ProfilePhoto: req.ProfilePhoto,
	})
	if err != nil {
		span.Fail(err)
		return models.Post{}, fmt.Errorf("create post: %w", err)
	}

	logging.FromContext(ctx).Info("post staged", "postId", post.ID, "media", len(media), "kind", prepared.kind)
	return post, nil
}

func (s *S3Stager) stage(ctx context.Context, f File, progress *progress) (models.MediaRef, error) {
	kind, _ := Classify(f.Name, f.ContentType)
	id := s.newID()
	key := path.Join("media", id+strings.ToLower(path.Ext(f.Name)))

	rc, err := f.Open()
	if err != nil {
		return models.MediaRef{}, fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()

	contentType := f.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        progress.wrap(rc),
		ContentType: aws.String(contentType),
		ACL:         s3types.ObjectCannedACLPublicRead,
	})
	if err != nil {
		return models.MediaRef{}, fmt.Errorf("s3 staging upload %s: %w", key, err)
	}

	logging.FromContext(ctx).Debug("media staged", "key", key, "location", s.location(key))
	return models.MediaRef{Kind: kind, ID: id}, nil
}

func (s *S3Stager) location(key string) string {
	if s.baseURL == "" {
		return key
	}
	return fmt.Sprintf("%s/%s", s.baseURL, key)
}

func (s *S3Stager) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}

// progress aggregates bytes read across all files of one publish.
type progress struct {
	report remote.ProgressFunc
	total  int64

	mu   sync.Mutex
	sent int64
}

func newProgress(files []File, report remote.ProgressFunc) *progress {
	p := &progress{report: report}
	for _, f := range files {
		if f.Size < 0 {
			p.total = -1
			break
		}
		p.total += f.Size
	}
	return p
}

func (p *progress) wrap(r io.Reader) io.Reader {
	if p.report == nil || p.total <= 0 {
		return r
	}
	return &countingReader{r: r, p: p}
}

func (p *progress) add(n int) {
	p.mu.Lock()
	p.sent += int64(n)
	pct := remote.ClampPercent(float64(p.sent) / float64(p.total) * 100)
	p.mu.Unlock()
	p.report(pct)
}

type countingReader struct {
	r io.Reader
	p *progress
}

func (c *countingReader) Read(b []byte) (int, error) {
	n, err := c.r.Read(b)
	if n > 0 {
		c.p.add(n)
	}
	return n, err
}
