package identity

import (
	"context"
	"errors"
	"strings"
	"time"
)

const (
	// LoginPollInterval and LoginMaxPolls bound SDK polling on the login page.
	LoginPollInterval = 150 * time.Millisecond
	LoginMaxPolls     = 66
	// SignupPollInterval and SignupMaxPolls bound SDK polling on the signup page.
	SignupPollInterval = 125 * time.Millisecond
	SignupMaxPolls     = 80
)

// State is the lifecycle of an identity button mount.
type State uint8

const (
	StatePending State = iota
	StateReady
	StateUnavailable
	StateMisconfigured
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateReady:
		return "ready"
	case StateUnavailable:
		return "unavailable"
	case StateMisconfigured:
		return "misconfigured"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Status is the outcome of Mount together with the message shown under the button.
type Status struct {
	State   State
	Message string
}

// Loader waits for the SDK to become ready.
type Loader struct {
	Probe    Probe
	ClientID string
	Interval time.Duration
	MaxPolls int
}

// NewLoader returns a Loader polling every interval at most maxPolls times. Zero values
// fall back to the login page bounds.
func NewLoader(clientID string, probe Probe, interval time.Duration, maxPolls int) *Loader {
	if interval <= 0 {
		interval = LoginPollInterval
	}
	if maxPolls <= 0 {
		maxPolls = LoginMaxPolls
	}
	return &Loader{Probe: probe, ClientID: clientID, Interval: interval, MaxPolls: maxPolls}
}

// NewLoginLoader returns a Loader using the login page bounds.
func NewLoginLoader(clientID string, probe Probe) *Loader {
	return NewLoader(clientID, probe, LoginPollInterval, LoginMaxPolls)
}

// NewSignupLoader returns a Loader using the signup page bounds.
func NewSignupLoader(clientID string, probe Probe) *Loader {
	return NewLoader(clientID, probe, SignupPollInterval, SignupMaxPolls)
}

// Load probes once immediately, then once per Interval. It gives up with
// ErrUnavailable when the probe has failed more than MaxPolls times after the
// initial check.
func (l *Loader) Load(ctx context.Context) (IdentitySignInProvider, error) {
	if strings.TrimSpace(l.ClientID) == "" {
		return nil, ErrMissingClientID
	}
	if l.Probe == nil {
		return nil, ErrNilProbe
	}
	if p, ok := l.Probe(); ok {
		return p, nil
	}

	interval := l.Interval
	if interval <= 0 {
		interval = LoginPollInterval
	}
	maxPolls := l.MaxPolls
	if maxPolls <= 0 {
		maxPolls = LoginMaxPolls
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	tries := 0
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			if p, ok := l.Probe(); ok {
				return p, nil
			}
			tries++
			if tries > maxPolls {
				return nil, ErrUnavailable
			}
		}
	}
}

// Mount waits for the SDK, then initializes it and renders the button into target.
// onCredential receives the credential string when the user completes sign-in.
func (l *Loader) Mount(ctx context.Context, target string, button ButtonOptions, onCredential func(string)) Status {
	p, err := l.Load(ctx)
	switch {
	case errors.Is(err, ErrMissingClientID), errors.Is(err, ErrNilProbe):
		return Status{State: StateMisconfigured, Message: "Missing identity provider client id."}
	case errors.Is(err, ErrUnavailable):
		return Status{State: StateUnavailable, Message: "Identity provider script didn't load. Check the page setup and ad-blockers."}
	case err != nil:
		return Status{State: StatePending}
	}

	p.DisableAutoSelect()
	err = p.Initialize(InitOptions{
		ClientID:           l.ClientID,
		Callback:           onCredential,
		AutoSelect:         false,
		CancelOnTapOutside: true,
		ITPSupport:         true,
		UseFedCMForPrompt:  false,
	})
	if err == nil {
		err = p.RenderButton(target, button)
	}
	if err != nil {
		return Status{State: StateFailed, Message: "Failed to initialize identity sign-in."}
	}
	return Status{State: StateReady}
}
