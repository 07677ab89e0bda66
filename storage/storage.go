package storage

import (
	"context"
	"errors"
)

const (
	// CanonicalTokenKey is the key current sign-in flows write the bearer token under.
	CanonicalTokenKey = "access_token"
	// LegacyTokenKey is the key earlier releases used. It is read as a fallback and
	// cleared on every mutation.
	LegacyTokenKey = "token"
)

var (
	// ErrBackendUnavailable wraps transport or filesystem failures of a backend.
	ErrBackendUnavailable = errors.New("storage backend unavailable")
	// ErrEmptyKey is returned when a key argument is blank.
	ErrEmptyKey = errors.New("storage key is empty")
)

// Storage is a string key-value store shared by every execution context of one origin.
type Storage interface {
	// Get returns the value stored under key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error
	// Remove deletes every given key. Absent keys are ignored.
	Remove(ctx context.Context, keys ...string) error
}

// ConditionalRemover removes keys in one step with a check of key's value.
//
// RemoveIf deletes key and every key in also when key holds expected or is absent, and
// reports whether it did. A write to key that lands between the check and the delete
// makes RemoveIf leave everything in place.
type ConditionalRemover interface {
	RemoveIf(ctx context.Context, key, expected string, also ...string) (bool, error)
}

// Watcher delivers changes made by other execution contexts.
//
// The returned channel is closed once ctx is done or the backend stops watching.
type Watcher interface {
	Watch(ctx context.Context) (<-chan Change, error)
}

// Change describes one key written or removed by another execution context.
type Change struct {
	Key    string `json:"key"`
	Origin string `json:"origin"`
}

// IsTokenKey reports whether key is the canonical or the legacy token key.
func IsTokenKey(key string) bool {
	return key == CanonicalTokenKey || key == LegacyTokenKey
}

func validKey(key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	return nil
}
