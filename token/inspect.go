package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrNotJWT is returned for tokens that are not compact JWS strings.
	ErrNotJWT = errors.New("token is not a jwt")
	// ErrInvalidLeeway is returned by NewInspector for leeway outside [0, 2m].
	ErrInvalidLeeway = errors.New("invalid leeway configuration")
)

// MaxLeeway bounds the clock skew tolerated when checking expiry.
const MaxLeeway = 2 * time.Minute

// Claims holds the fields the client cares about.
type Claims struct {
	Subject    string
	AuthMethod string
	Type       string
	ExpiresAt  time.Time
	IssuedAt   time.Time
}

type accessClaims struct {
	Auth string `json:"auth,omitempty"`
	Type string `json:"type,omitempty"`
	jwt.RegisteredClaims
}

// Inspect parses raw without checking its signature.
func Inspect(raw string) (Claims, error) {
	raw = strings.TrimSpace(raw)
	if strings.Count(raw, ".") != 2 {
		return Claims{}, ErrNotJWT
	}

	var c accessClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &c); err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrNotJWT, err)
	}

	out := Claims{
		Subject:    c.Subject,
		AuthMethod: c.Auth,
		Type:       c.Type,
	}
	if c.ExpiresAt != nil {
		out.ExpiresAt = c.ExpiresAt.Time
	}
	if c.IssuedAt != nil {
		out.IssuedAt = c.IssuedAt.Time
	}
	return out, nil
}

// Expired reports whether the token's exp lies more than leeway before now.
// Tokens without exp never expire.
func (c Claims) Expired(now time.Time, leeway time.Duration) bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return now.After(c.ExpiresAt.Add(leeway))
}

// Inspector checks bearer tokens for local expiry.
type Inspector struct {
	leeway time.Duration
	now    func() time.Time
}

// NewInspector returns an Inspector tolerating leeway of clock skew.
func NewInspector(leeway time.Duration) (*Inspector, error) {
	if leeway < 0 || leeway > MaxLeeway {
		return nil, ErrInvalidLeeway
	}
	return &Inspector{leeway: leeway, now: time.Now}, nil
}

// Expired reports whether raw is a JWT whose expiry has passed. Opaque tokens and
// tokens that fail to parse report false, leaving the decision to the backend.
func (i *Inspector) Expired(raw string) bool {
	c, err := Inspect(raw)
	if err != nil {
		return false
	}
	if c.Type != "" && c.Type != "access" {
		return false
	}
	return c.Expired(i.now(), i.leeway)
}
