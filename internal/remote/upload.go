package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"sync"

	"github.com/vidfriends/reelfeed/internal/models"
)

// UploadFile is one media file sent in a multipart upload. Size is the byte
// length of Content, or -1 when unknown; progress is only reported when
// every size is known.
type UploadFile struct {
	Name        string
	ContentType string
	Size        int64
	Content     io.Reader
}

// UploadMetadata describes the post created from an upload.
type UploadMetadata struct {
	Caption      string
	Description  string
	Tags         []string
	Username     string
	ProfilePhoto string
}

// ProgressFunc receives upload progress as a percentage in [0, 100].
type ProgressFunc func(percent float64)

// UploadMedia streams files to the service as multipart form data and
// returns the resulting post. Cancelling ctx aborts the transfer with an
// error matching ErrUploadAborted.
func (c *Client) UploadMedia(ctx context.Context, token string, files []UploadFile, meta *UploadMetadata, onProgress ProgressFunc) (models.Post, error) {
	if len(files) == 0 {
		return models.Post{}, errors.New("upload: at least one file is required")
	}
	if err := ctx.Err(); err != nil {
		return models.Post{}, abortedOr(ctx, err)
	}

	boundary := multipart.NewWriter(io.Discard).Boundary()
	total := multipartLength(boundary, files, meta)

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(writeMultipart(pw, boundary, files, meta))
	}()

	var body io.Reader = pr
	if total > 0 && onProgress != nil {
		body = &progressReader{r: pr, total: total, report: onProgress}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/api/posts/upload", nil), body)
	if err != nil {
		pr.CloseWithError(err)
		return models.Post{}, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", "multipart/form-data; boundary="+boundary)
	req.Header.Set("Accept", "application/json")
	if total > 0 {
		req.ContentLength = total
	}

	resp, err := c.send(ctx, req, token)
	// Unblocks the writer goroutine when the transport stopped reading early.
	pr.CloseWithError(io.ErrClosedPipe)
	if err != nil {
		if ctx.Err() != nil {
			return models.Post{}, abortedOr(ctx, err)
		}
		return models.Post{}, fmt.Errorf("upload media: %w", err)
	}
	defer resp.Body.Close()

	var post models.Post
	if err := json.NewDecoder(resp.Body).Decode(&post); err != nil && !errors.Is(err, io.EOF) {
		return models.Post{}, fmt.Errorf("decode upload response: %w", err)
	}
	return post, nil
}

func abortedOr(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return fmt.Errorf("%w: %v", ErrUploadAborted, err)
	}
	return err
}

func writeMultipart(w io.Writer, boundary string, files []UploadFile, meta *UploadMetadata) error {
	mw := multipart.NewWriter(w)
	if err := mw.SetBoundary(boundary); err != nil {
		return err
	}

	for _, file := range files {
		part, err := mw.CreatePart(fileHeader(file))
		if err != nil {
			return fmt.Errorf("create part for %s: %w", file.Name, err)
		}
		if file.Content != nil {
			if _, err := io.Copy(part, file.Content); err != nil {
				return fmt.Errorf("copy %s: %w", file.Name, err)
			}
		}
	}

	for _, field := range metadataFields(meta) {
		if err := mw.WriteField(field[0], field[1]); err != nil {
			return fmt.Errorf("write field %s: %w", field[0], err)
		}
	}
	return mw.Close()
}

// multipartLength computes the encoded size of the form by writing the part
// headers and fields and adding the declared file sizes. It returns -1 when
// any file size is unknown.
func multipartLength(boundary string, files []UploadFile, meta *UploadMetadata) int64 {
	cw := &countingWriter{}
	mw := multipart.NewWriter(cw)
	if err := mw.SetBoundary(boundary); err != nil {
		return -1
	}
	for _, file := range files {
		if file.Size < 0 {
			return -1
		}
		if _, err := mw.CreatePart(fileHeader(file)); err != nil {
			return -1
		}
		cw.n += file.Size
	}
	for _, field := range metadataFields(meta) {
		if err := mw.WriteField(field[0], field[1]); err != nil {
			return -1
		}
	}
	if err := mw.Close(); err != nil {
		return -1
	}
	return cw.n
}

func metadataFields(meta *UploadMetadata) [][2]string {
	if meta == nil {
		return nil
	}
	fields := [][2]string{
		{"caption", meta.Caption},
		{"description", meta.Description},
		{"tags", strings.Join(meta.Tags, ",")},
	}
	if meta.Username != "" {
		fields = append(fields, [2]string{"username", meta.Username})
	}
	if meta.ProfilePhoto != "" {
		fields = append(fields, [2]string{"profilePhoto", meta.ProfilePhoto})
	}
	return fields
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func fileHeader(file UploadFile) textproto.MIMEHeader {
	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename="%s"`, quoteEscaper.Replace(file.Name)))
	h.Set("Content-Type", contentType)
	return h
}

type countingWriter struct {
	n int64
}

func (w *countingWriter) Write(p []byte) (int, error) {
	w.n += int64(len(p))
	return len(p), nil
}

type progressReader struct {
	r      io.Reader
	total  int64
	report ProgressFunc

	mu   sync.Mutex
	sent int64
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.mu.Lock()
		p.sent += int64(n)
		pct := ClampPercent(float64(p.sent) / float64(p.total) * 100)
		p.mu.Unlock()
		p.report(pct)
	}
	return n, err
}

// ClampPercent bounds a progress percentage to [0, 100].
func ClampPercent(pct float64) float64 {
	switch {
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	default:
		return pct
	}
}
