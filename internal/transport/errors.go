package transport

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNotReady is returned when an operation targets a provisional-id
// entity. No network call is made and no state changes; callers surface
// it as a non-destructive notice, not a failure.
var ErrNotReady = errors.New("target is not yet confirmed by the server")

// APIError is a non-2xx response: the status code plus the server's error
// message (may be empty when the server sent none).
type APIError struct {
	Status  int
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("server returned %d", e.Status)
}

// IsNotReady reports whether err is the provisional-target guard outcome.
func IsNotReady(err error) bool {
	return errors.Is(err, ErrNotReady)
}

// IsPermissionDenied reports whether err is a 403 response. Used to show
// creator-only messages for group rename and member removal.
func IsPermissionDenied(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Status == http.StatusForbidden
}

// IsNotFound reports whether err is a 404 response, e.g. reacting to an
// entity someone else deleted.
func IsNotFound(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Status == http.StatusNotFound
}

// UserMessage derives the user-facing message for a failed call: the
// server's error field when present, the fallback otherwise.
func UserMessage(err error, fallback string) string {
	var ae *APIError
	if errors.As(err, &ae) && ae.Message != "" {
		return ae.Message
	}
	return fallback
}
