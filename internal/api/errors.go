package api

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNotFound is matched by errors.Is for 404 responses.
var ErrNotFound = errors.New("review not found")

// Error is a non-2xx response from the review backend.
type Error struct {
	StatusCode int
	// Message is the "error" field of the response body, if any.
	Message   string
	RequestID string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("review api: %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("review api: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

func (e *Error) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// ServerMessage returns the backend-supplied message carried by err, or ""
// when err is not an *Error or the body had no message.
func ServerMessage(err error) string {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return ""
}
