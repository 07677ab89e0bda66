package signin

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/aification/sessionkit"
	"github.com/aification/sessionkit/api"
)

var (
	// ErrInvalidCredentials is returned when the email or password fails local checks.
	ErrInvalidCredentials = errors.New("invalid credentials input")
	// ErrEmptyCredential is returned for a blank identity-provider credential.
	ErrEmptyCredential = errors.New("empty identity credential")
	// ErrSessionNotEstablished is returned when the backend issued a token but hydration
	// did not produce a user.
	ErrSessionNotEstablished = errors.New("session not established")
)

// Backend is the part of *api.Client the flows use.
type Backend interface {
	Login(ctx context.Context, email, password string) (api.TokenResponse, error)
	Signup(ctx context.Context, email, password string) (string, error)
	GoogleSignIn(ctx context.Context, credential string) (api.TokenResponse, error)
}

// SessionSink persists an issued token and reports the resulting view.
// *sessionkit.SessionStore implements it.
type SessionSink interface {
	SignIn(ctx context.Context, token string) (sessionkit.Snapshot, error)
}

type credentials struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
}

// Flows wires the backend to a session store.
type Flows struct {
	API       Backend
	Store     SessionSink
	Validator *validator.Validate
	Logger    *zap.Logger
}

// New returns Flows with a fresh validator and a no-op logger.
func New(backend Backend, store SessionSink) *Flows {
	return &Flows{
		API:       backend,
		Store:     store,
		Validator: validator.New(validator.WithRequiredStructEnabled()),
		Logger:    zap.NewNop(),
	}
}

// Login exchanges email and password for a token and signs in with it.
func (f *Flows) Login(ctx context.Context, email, password string) (sessionkit.Snapshot, error) {
	email = strings.TrimSpace(email)
	if err := f.check(email, password); err != nil {
		return sessionkit.Snapshot{}, err
	}

	resp, err := f.API.Login(ctx, email, password)
	if err != nil {
		f.logger().Info("signin: login rejected", zap.Error(err))
		return sessionkit.Snapshot{}, err
	}
	return f.establish(ctx, resp.AccessToken, "password")
}

// Signup creates an account. No token is issued; the caller proceeds to Login. The
// returned string is the backend's confirmation message.
func (f *Flows) Signup(ctx context.Context, email, password string) (string, error) {
	email = strings.TrimSpace(email)
	if err := f.check(email, password); err != nil {
		return "", err
	}

	msg, err := f.API.Signup(ctx, email, password)
	if err != nil {
		f.logger().Info("signin: signup rejected", zap.Error(err))
		return "", err
	}
	return msg, nil
}

// IdentityCredential exchanges an identity-provider credential for a token and signs in
// with it.
func (f *Flows) IdentityCredential(ctx context.Context, credential string) (sessionkit.Snapshot, error) {
	if strings.TrimSpace(credential) == "" {
		return sessionkit.Snapshot{}, ErrEmptyCredential
	}

	resp, err := f.API.GoogleSignIn(ctx, credential)
	if err != nil {
		f.logger().Info("signin: identity credential rejected", zap.Error(err))
		return sessionkit.Snapshot{}, err
	}
	return f.establish(ctx, resp.AccessToken, "google")
}

// CredentialHandler adapts IdentityCredential to the callback taken by identity.Loader.Mount.
// onResult, when non-nil, receives the outcome of every exchange.
func (f *Flows) CredentialHandler(ctx context.Context, onResult func(sessionkit.Snapshot, error)) func(string) {
	return func(credential string) {
		snap, err := f.IdentityCredential(ctx, credential)
		if onResult != nil {
			onResult(snap, err)
		}
	}
}

func (f *Flows) establish(ctx context.Context, token, method string) (sessionkit.Snapshot, error) {
	snap, err := f.Store.SignIn(ctx, token)
	if err != nil {
		return snap, err
	}
	if !snap.SignedIn() {
		f.logger().Warn("signin: token issued but session not established", zap.String("method", method))
		return snap, ErrSessionNotEstablished
	}
	f.logger().Info("signin: signed in", zap.String("method", method), zap.String("auth", snap.User.AuthMethod))
	return snap, nil
}

func (f *Flows) check(email, password string) error {
	v := f.Validator
	if v == nil {
		v = validator.New()
	}
	if err := v.Struct(credentials{Email: email, Password: password}); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: %s failed %q", ErrInvalidCredentials, strings.ToLower(verrs[0].Field()), verrs[0].Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	return nil
}

func (f *Flows) logger() *zap.Logger {
	if f.Logger == nil {
		return zap.NewNop()
	}
	return f.Logger
}
