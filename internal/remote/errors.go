package remote

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var (
	// ErrUnauthorized indicates the credential was missing or rejected.
	ErrUnauthorized = errors.New("remote: unauthorized")
	// ErrNotFound indicates the requested resource does not exist.
	ErrNotFound = errors.New("remote: not found")
	// ErrUploadAborted indicates the caller cancelled an in-flight upload.
	ErrUploadAborted = errors.New("remote: upload aborted")
)

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 64 << 10

// StatusError is returned for any non-2xx response.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote: status %d: %s", e.StatusCode, e.Message)
}

// Unwrap maps auth and missing-resource statuses onto the package sentinels.
func (e *StatusError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	default:
		return nil
	}
}

// newStatusError reads the message from a failed response. JSON bodies carry
// it in detail or message; anything else is used as text.
func newStatusError(resp *http.Response) *StatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	message := fmt.Sprintf("request failed with status %d", resp.StatusCode)

	var payload struct {
		Detail  any    `json:"detail"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		switch detail := payload.Detail.(type) {
		case string:
			if detail != "" {
				message = detail
			}
		case nil:
			if payload.Message != "" {
				message = payload.Message
			}
		default:
			if encoded, err := json.Marshal(detail); err == nil {
				message = string(encoded)
			}
		}
	} else if text := strings.TrimSpace(string(body)); text != "" {
		message = text
	}

	return &StatusError{StatusCode: resp.StatusCode, Message: message}
}
