package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultTimeout bounds every request made with NewHTTPClient.
	DefaultTimeout = 15 * time.Second

	maxBodyBytes = 1 << 20
)

// Profile is the body of GET /me.
type Profile struct {
	Email string `json:"email"`
	Auth  string `json:"auth"`
}

// TokenResponse is the body returned by /login and /auth/google.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
}

type errorBody struct {
	Detail  json.RawMessage `json:"detail"`
	Message string          `json:"message"`
}

// Client talks to the auth backend. It is safe for concurrent use.
type Client struct {
	base *url.URL
	http *http.Client
}

// NewHTTPClient returns an http.Client with a cookie jar, so cookies set by the
// backend are sent back on later calls.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	jar, _ := cookiejar.New(nil)
	return &http.Client{Timeout: timeout, Jar: jar}
}

// NewClient returns a client for baseURL. A nil hc uses NewHTTPClient(DefaultTimeout).
func NewClient(baseURL string, hc *http.Client) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBaseURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, baseURL)
	}
	if hc == nil {
		hc = NewHTTPClient(DefaultTimeout)
	}
	return &Client{base: u, http: hc}, nil
}

// BaseURL returns the backend root the client was built with.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// Me fetches the profile the bearer token belongs to.
func (c *Client) Me(ctx context.Context, token string) (Profile, error) {
	if token == "" {
		return Profile{}, ErrEmptyToken
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("me"), nil)
	if err != nil {
		return Profile{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	var p Profile
	if err := c.do(req, "Unauthorized", &p); err != nil {
		return Profile{}, err
	}
	if strings.TrimSpace(p.Email) == "" {
		return Profile{}, fmt.Errorf("%w: missing email", ErrMalformedResponse)
	}
	return p, nil
}

// Login exchanges email and password for an access token. The backend reads the
// email from the OAuth2 form field "username".
func (c *Client) Login(ctx context.Context, email, password string) (TokenResponse, error) {
	form := url.Values{}
	form.Set("username", email)
	form.Set("password", password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("login"), strings.NewReader(form.Encode()))
	if err != nil {
		return TokenResponse{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return c.token(req, "Invalid email or password")
}

// Signup creates an email account. No token is issued; the caller logs in afterwards.
// The returned string is the backend's confirmation message, possibly empty.
func (c *Client) Signup(ctx context.Context, email, password string) (string, error) {
	req, err := c.jsonRequest(ctx, "signup", map[string]string{"email": email, "password": password})
	if err != nil {
		return "", err
	}
	var out struct {
		Msg string `json:"msg"`
	}
	if err := c.do(req, "Signup failed", &out); err != nil {
		return "", err
	}
	return out.Msg, nil
}

// GoogleSignIn exchanges an identity-provider credential for an access token.
func (c *Client) GoogleSignIn(ctx context.Context, credential string) (TokenResponse, error) {
	req, err := c.jsonRequest(ctx, "auth/google", map[string]string{"credential": credential})
	if err != nil {
		return TokenResponse{}, err
	}
	return c.token(req, "Google sign-in failed")
}

func (c *Client) token(req *http.Request, fallback string) (TokenResponse, error) {
	var out TokenResponse
	if err := c.do(req, fallback, &out); err != nil {
		return TokenResponse{}, err
	}
	if out.AccessToken == "" {
		return TokenResponse{}, fmt.Errorf("%w: missing access_token", ErrMalformedResponse)
	}
	return out, nil
}

func (c *Client) jsonRequest(ctx context.Context, path string, body any) (*http.Request, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path), bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (c *Client) endpoint(path string) string {
	return c.base.JoinPath(path).String()
}

func (c *Client) do(req *http.Request, fallback string, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{StatusCode: resp.StatusCode, Detail: detail(body, fallback)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

// detail extracts a human-readable message from an error body. FastAPI validation
// errors carry a list in "detail"; only string details are used verbatim.
func detail(body []byte, fallback string) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return fallback
	}
	if len(eb.Detail) > 0 {
		var s string
		if err := json.Unmarshal(eb.Detail, &s); err == nil && s != "" {
			return s
		}
	}
	if eb.Message != "" {
		return eb.Message
	}
	return fallback
}
