package api

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedResponse is returned when a 2xx body cannot be decoded or lacks required fields.
	ErrMalformedResponse = errors.New("malformed response body")
	// ErrInvalidBaseURL is returned by NewClient for unusable base URLs.
	ErrInvalidBaseURL = errors.New("invalid api base url")
	// ErrEmptyToken is returned by Me when called without a bearer token.
	ErrEmptyToken = errors.New("empty bearer token")
)

// Error is a non-2xx backend response.
type Error struct {
	StatusCode int
	Detail     string
}

func (e *Error) Error() string {
	return fmt.Sprintf("api: status %d: %s", e.StatusCode, e.Detail)
}

// IsUnauthorized reports whether err is a 401 backend response.
func IsUnauthorized(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == 401
}
