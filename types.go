package sessionkit

import (
	"context"

	"github.com/aification/sessionkit/api"
)

// User is the signed-in identity derived from a successful hydration.
// It is never persisted.
type User struct {
	Email      string
	AuthMethod string
}

// Status is the hydration lifecycle of a SessionStore.
type Status uint8

const (
	// StatusIdle holds only before the first hydration attempt.
	StatusIdle Status = iota
	// StatusLoading holds while the most recently started hydration is in flight.
	StatusLoading
	// StatusReady holds once the most recently started hydration has resolved.
	StatusReady
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Snapshot is an immutable view of a SessionStore.
type Snapshot struct {
	User   *User
	Status Status
	// Seq is the sequence number of the latest hydration or sign-out started.
	Seq uint64
}

// SignedIn reports whether the snapshot carries a user.
func (s Snapshot) SignedIn() bool {
	return s.User != nil
}

// ProfileFetcher resolves a bearer token to the profile it belongs to.
// *api.Client implements it.
type ProfileFetcher interface {
	Me(ctx context.Context, token string) (api.Profile, error)
}

// Navigator performs full-page navigations.
type Navigator interface {
	// Replace navigates to url without leaving a history entry behind.
	Replace(url string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(url string)

func (f NavigatorFunc) Replace(url string) { f(url) }

type noopNavigator struct{}

func (noopNavigator) Replace(string) {}
