package sessionkit

import "errors"

var (
	// ErrInvalidConfig is returned when a Config fails validation.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrStorageRequired is returned by Build when no storage was supplied.
	ErrStorageRequired = errors.New("storage is required")
	// ErrBuilderUsed is returned when Build is called twice on one Builder.
	ErrBuilderUsed = errors.New("builder already used")
	// ErrEmptyToken is returned by SignIn for blank tokens.
	ErrEmptyToken = errors.New("empty bearer token")
	// ErrStorageWrite wraps storage failures surfaced by SignIn and SignOut.
	ErrStorageWrite = errors.New("token storage write failed")
	// ErrStoreClosed is returned when listeners are requested after Close.
	ErrStoreClosed = errors.New("session store closed")
	// ErrWatchUnavailable wraps failures starting an external-change listener.
	ErrWatchUnavailable = errors.New("external change listener unavailable")
	// ErrRedirectNotConfigured is returned when a redirect target is empty.
	ErrRedirectNotConfigured = errors.New("redirect target not configured")
)
