package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/praktikumlab/go-praktikum/logger"
)

// SignOutScope selects which sessions a sign-out affects.
type SignOutScope string

const (
	// ScopeLocal signs out the current session only.
	ScopeLocal SignOutScope = "local"
	// ScopeGlobal signs out every device session for the identity.
	ScopeGlobal SignOutScope = "global"
)

// Credentials are the sign-in/sign-up inputs.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResult is the outcome of a successful auth operation.
type AuthResult struct {
	Session *Session
	User    *User
}

// AuthClient is the boundary to the hosted auth service.
type AuthClient interface {
	SignIn(ctx context.Context, creds Credentials) (AuthResult, error)
	SignUp(ctx context.Context, creds Credentials) (AuthResult, error)
	// RefreshToken exchanges a refresh token for a new token pair.
	RefreshToken(ctx context.Context, refreshToken string) (AuthResult, error)
	SignOut(ctx context.Context, scope SignOutScope) error
	UpdatePassword(ctx context.Context, newPassword string) error
}

// AuthError carries the failing request context for an auth call.
type AuthError struct {
	URL    string
	Method string
	Status int
	Body   string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth request %s %s failed with status %d: %s", e.Method, e.URL, e.Status, e.Body)
}

// HTTPAuthClient talks to the hosted auth endpoints over REST.
type HTTPAuthClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	log     logger.Logger

	accessToken string
}

var _ AuthClient = (*HTTPAuthClient)(nil)

// NewHTTPAuthClient targets the auth service at baseURL (e.g.
// "https://backend.example.com/auth/v1"). apiKey is the service's anon key.
func NewHTTPAuthClient(baseURL, apiKey string, log logger.Logger) *HTTPAuthClient {
	return &HTTPAuthClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  http.DefaultClient,
		log:     log.With(map[string]interface{}{"component": "auth"}),
	}
}

// tokenResponse is the wire shape of a token grant.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
	User         *User  `json:"user"`
}

func (r tokenResponse) result() AuthResult {
	return AuthResult{
		Session: &Session{
			AccessToken:  r.AccessToken,
			RefreshToken: r.RefreshToken,
			ExpiresAt:    time.Unix(r.ExpiresAt, 0),
		},
		User: r.User,
	}
}

func (c *HTTPAuthClient) do(ctx context.Context, method, path string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return errors.Wrap(err, "encoding auth request")
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return errors.Wrap(err, "building auth request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.apiKey)
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "auth request %s %s", method, path)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "reading auth response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &AuthError{
			URL:    c.baseURL + path,
			Method: method,
			Status: resp.StatusCode,
			Body:   string(data),
		}
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return errors.Wrap(err, "decoding auth response")
		}
	}
	return nil
}

func (c *HTTPAuthClient) SignIn(ctx context.Context, creds Credentials) (AuthResult, error) {
	var tok tokenResponse
	if err := c.do(ctx, http.MethodPost, "/token?grant_type=password", creds, &tok); err != nil {
		return AuthResult{}, err
	}
	c.accessToken = tok.AccessToken
	return tok.result(), nil
}

func (c *HTTPAuthClient) SignUp(ctx context.Context, creds Credentials) (AuthResult, error) {
	var tok tokenResponse
	if err := c.do(ctx, http.MethodPost, "/signup", creds, &tok); err != nil {
		return AuthResult{}, err
	}
	c.accessToken = tok.AccessToken
	return tok.result(), nil
}

func (c *HTTPAuthClient) RefreshToken(ctx context.Context, refreshToken string) (AuthResult, error) {
	var tok tokenResponse
	payload := map[string]string{"refresh_token": refreshToken}
	if err := c.do(ctx, http.MethodPost, "/token?grant_type=refresh_token", payload, &tok); err != nil {
		return AuthResult{}, err
	}
	c.accessToken = tok.AccessToken
	return tok.result(), nil
}

func (c *HTTPAuthClient) SignOut(ctx context.Context, scope SignOutScope) error {
	err := c.do(ctx, http.MethodPost, "/logout?scope="+string(scope), nil, nil)
	if err == nil {
		c.accessToken = ""
	}
	return err
}

func (c *HTTPAuthClient) UpdatePassword(ctx context.Context, newPassword string) error {
	payload := map[string]string{"password": newPassword}
	return c.do(ctx, http.MethodPut, "/user", payload, nil)
}
