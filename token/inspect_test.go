package token

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signTest(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("dev_secret_change_me"))
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	return s
}

func TestInspectReadsBackendClaims(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	raw := signTest(t, jwt.MapClaims{
		"sub":  "a@b.com",
		"auth": "google",
		"type": "access",
		"exp":  exp.Unix(),
	})

	c, err := Inspect(raw)
	if err != nil {
		t.Fatalf("inspect failed: %v", err)
	}
	if c.Subject != "a@b.com" || c.AuthMethod != "google" || c.Type != "access" {
		t.Fatalf("unexpected claims %+v", c)
	}
	if !c.ExpiresAt.Equal(exp) {
		t.Fatalf("expected exp %v, got %v", exp, c.ExpiresAt)
	}
}

func TestInspectOpaqueToken(t *testing.T) {
	for _, raw := range []string{"", "opaque-token", "a.b", "not.a.jwt"} {
		if _, err := Inspect(raw); !errors.Is(err, ErrNotJWT) {
			t.Fatalf("expected ErrNotJWT for %q, got %v", raw, err)
		}
	}
}

func TestInspectDoesNotVerifySignature(t *testing.T) {
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "x"}).SignedString([]byte("other-key"))
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	c, err := Inspect(raw)
	if err != nil {
		t.Fatalf("inspect failed: %v", err)
	}
	if c.Subject != "x" {
		t.Fatalf("expected subject x, got %q", c.Subject)
	}
}

func TestInspectorExpiry(t *testing.T) {
	ins, err := NewInspector(30 * time.Second)
	if err != nil {
		t.Fatalf("new inspector failed: %v", err)
	}
	now := time.Unix(1_700_000_000, 0)
	ins.now = func() time.Time { return now }

	expired := signTest(t, jwt.MapClaims{"sub": "a", "exp": now.Add(-time.Minute).Unix()})
	withinLeeway := signTest(t, jwt.MapClaims{"sub": "a", "exp": now.Add(-10 * time.Second).Unix()})
	noExp := signTest(t, jwt.MapClaims{"sub": "a"})
	refresh := signTest(t, jwt.MapClaims{"sub": "a", "type": "refresh", "exp": now.Add(-time.Hour).Unix()})

	if !ins.Expired(expired) {
		t.Fatal("expected expired token")
	}
	if ins.Expired(withinLeeway) {
		t.Fatal("token within leeway must not be expired")
	}
	if ins.Expired(noExp) {
		t.Fatal("token without exp must not be expired")
	}
	if ins.Expired(refresh) {
		t.Fatal("non-access token type is left to the backend")
	}
	if ins.Expired("opaque") {
		t.Fatal("opaque token must not be reported expired")
	}
}

func TestNewInspectorRejectsBadLeeway(t *testing.T) {
	for _, l := range []time.Duration{-time.Second, 3 * time.Minute} {
		if _, err := NewInspector(l); !errors.Is(err, ErrInvalidLeeway) {
			t.Fatalf("expected ErrInvalidLeeway for %v, got %v", l, err)
		}
	}
}
