package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/vidfriends/reelfeed/internal/logging"
	"github.com/vidfriends/reelfeed/internal/models"
	"github.com/vidfriends/reelfeed/internal/remote"
)

// ErrSignInRequired indicates no credential was available to publish.
var ErrSignInRequired = errors.New("sign in required to post")

// File is one selected media file.
type File struct {
	Name        string
	ContentType string
	// Size is the byte length, or -1 when unknown.
	Size int64
	Open func() (io.ReadCloser, error)
}

// Request is a post to publish from local files.
type Request struct {
	Files        []File
	Caption      string
	Description  string
	Tags         string
	Username     string
	ProfilePhoto string
}

// Publisher turns a Request into a created post, reporting progress as a
// percentage in [0, 100].
type Publisher interface {
	Publish(ctx context.Context, req Request, onProgress remote.ProgressFunc) (models.Post, error)
}

// TokenSource supplies the bearer credential of the signed-in user.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// MediaUploader is the multipart upload endpoint of the posts service.
type MediaUploader interface {
	UploadMedia(ctx context.Context, token string, files []remote.UploadFile, meta *remote.UploadMetadata, onProgress remote.ProgressFunc) (models.Post, error)
}

// Direct sends files to the posts service in a single multipart request.
type Direct struct {
	api    MediaUploader
	tokens TokenSource
}

// NewDirect constructs a Publisher that uploads through the posts service.
func NewDirect(api MediaUploader, tokens TokenSource) *Direct {
	return &Direct{api: api, tokens: tokens}
}

// Publish implements Publisher.
func (d *Direct) Publish(ctx context.Context, req Request, onProgress remote.ProgressFunc) (models.Post, error) {
	ctx, span := logging.StartSpan(ctx, "upload.direct")
	defer span.End()

	prepared, err := prepare(ctx, d.tokens, req)
	if err != nil {
		span.Fail(err)
		return models.Post{}, err
	}

	files := make([]remote.UploadFile, 0, len(req.Files))
	for _, f := range req.Files {
		rc, err := f.Open()
		if err != nil {
			span.Fail(err)
			return models.Post{}, fmt.Errorf("open %s: %w", f.Name, err)
		}
		defer rc.Close()
		files = append(files, remote.UploadFile{
			Name:        f.Name,
			ContentType: f.ContentType,
			Size:        f.Size,
			Content:     rc,
		})
	}

	post, err := d.api.UploadMedia(ctx, prepared.token, files, &remote.UploadMetadata{
		Caption:      prepared.caption,
		Description:  prepared.description,
		Tags:         prepared.tags,
		Username:     req.Username,
		ProfilePhoto: req.ProfilePhoto,
	}, onProgress)
	if err != nil {
		span.Fail(err)
		return models.Post{}, err
	}

	logging.FromContext(ctx).Info("post uploaded", "postId", post.ID, "files", len(files), "kind", prepared.kind)
	return post, nil
}

type prepared struct {
	token       string
	kind        models.MediaKind
	caption     string
	description string
	tags        []string
}

func prepare(ctx context.Context, tokens TokenSource, req Request) (prepared, error) {
	kind, err := ValidateSelection(req.Files)
	if err != nil {
		return prepared{}, err
	}
	for _, f := range req.Files {
		if f.Open == nil {
			return prepared{}, fmt.Errorf("file %s has no content", f.Name)
		}
	}

	if tokens == nil {
		return prepared{}, ErrSignInRequired
	}
	token, err := tokens.Token(ctx)
	if err != nil {
		return prepared{}, fmt.Errorf("%w: %v", ErrSignInRequired, err)
	}
	if strings.TrimSpace(token) == "" {
		return prepared{}, ErrSignInRequired
	}

	return prepared{
		token:       token,
		kind:        kind,
		caption:     strings.TrimSpace(req.Caption),
		description: strings.TrimSpace(req.Description),
		tags:        ParseTags(req.Tags),
	}, nil
}
