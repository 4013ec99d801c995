// Package upload validates media selections and publishes them as posts,
// either straight to the posts service or staged through an object store.
package upload

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/vidfriends/reelfeed/internal/models"
)

// maxTags caps how many tags a post keeps.
const maxTags = 20

var (
	// ErrNoFiles indicates an empty selection.
	ErrNoFiles = errors.New("no file selected")
	// ErrMultipleVideos indicates more than one video was selected.
	ErrMultipleVideos = errors.New("only one video is allowed per post")
	// ErrMixedMedia indicates videos and images were selected together.
	ErrMixedMedia = errors.New("cannot mix videos and images in one post")
)

// UnsupportedFileError names a file that is neither an image nor an MP4.
type UnsupportedFileError struct {
	Name string
}

func (e *UnsupportedFileError) Error() string {
	return fmt.Sprintf("file %s is not a valid image or MP4 video", e.Name)
}

// Classify reports the media kind of a file from its content type and name.
func Classify(name, contentType string) (models.MediaKind, bool) {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	switch {
	case contentType == "video/mp4" || strings.HasSuffix(strings.ToLower(name), ".mp4"):
		return models.MediaVideo, true
	case strings.HasPrefix(contentType, "image/"):
		return models.MediaImage, true
	default:
		return "", false
	}
}

// ValidateSelection enforces the post media rules: at least one file, at
// most one video, and never videos mixed with images.
func ValidateSelection(files []File) (models.MediaKind, error) {
	if len(files) == 0 {
		return "", ErrNoFiles
	}

	var videos, images int
	for _, f := range files {
		kind, ok := Classify(f.Name, f.ContentType)
		if !ok {
			return "", &UnsupportedFileError{Name: f.Name}
		}
		if kind == models.MediaVideo {
			videos++
		} else {
			images++
		}
	}

	switch {
	case videos > 1:
		return "", ErrMultipleVideos
	case videos > 0 && images > 0:
		return "", ErrMixedMedia
	case videos == 1:
		return models.MediaVideo, nil
	default:
		return models.MediaImage, nil
	}
}

// ParseTags splits a comma separated tag list, dropping blanks and keeping
// at most the first twenty.
func ParseTags(raw string) []string {
	var tags []string
	for _, part := range strings.Split(raw, ",") {
		tag := strings.TrimSpace(part)
		if tag == "" {
			continue
		}
		tags = append(tags, tag)
		if len(tags) == maxTags {
			break
		}
	}
	return tags
}

// FileFromPath describes a file on disk, guessing its content type from the
// extension.
func FileFromPath(path string) (File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return File{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return File{}, fmt.Errorf("%s is a directory", path)
	}

	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = contentType[:i]
	}
	return File{
		Name:        filepath.Base(path),
		ContentType: contentType,
		Size:        info.Size(),
		Open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}, nil
}
