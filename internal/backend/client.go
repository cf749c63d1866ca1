// Package backend wraps the ISP core REST API consumed by the session
// gateway: login, permission listing, impersonation and logout.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"nusalink.id/internal/rbac"
	"nusalink.id/internal/session"
)

const defaultTimeout = 15 * time.Second

// Error is an API-level rejection reported by the backend (explicit
// status:false / success:false or an HTTP error status). Transport
// failures are returned as-is, not wrapped in Error.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend: %s", e.Message)
	}
	return fmt.Sprintf("backend: request failed with status %d", e.StatusCode)
}

// Client talks to the backend over JSON/HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client (tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-request timeout on the default client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// New constructs a Client for the given base URL.
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("backend: base URL is required")
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// envelope is the common response wrapper. Either status or success may
// be present; both absent means the HTTP status decides.
type envelope struct {
	Status  *bool           `json:"status"`
	Success *bool           `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (e *envelope) failed() bool {
	if e.Status != nil && !*e.Status {
		return true
	}
	if e.Success != nil && !*e.Success {
		return true
	}
	return false
}

// LoginResult carries the token pair and normalized profile returned by
// login and impersonation calls.
type LoginResult struct {
	User         session.Profile
	AccessToken  string
	RefreshToken string
}

type sessionPayload struct {
	User         session.Profile `json:"user"`
	AccessToken  string          `json:"accessToken"`
	RefreshToken string          `json:"refreshToken"`
}

// Login exchanges credentials for a token pair and profile.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	body := map[string]string{"email": email, "password": password}
	data, err := c.postJSON(ctx, "/auth/login", body, "")
	if err != nil {
		return nil, err
	}
	return decodeSessionPayload(data)
}

// Impersonate asks the backend for a token pair acting as targetUserID.
func (c *Client) Impersonate(ctx context.Context, accessToken, targetUserID string) (*LoginResult, error) {
	targetUserID = strings.TrimSpace(targetUserID)
	if targetUserID == "" {
		return nil, errors.New("backend: target user id is required")
	}
	path := "/auth/impersonate/" + url.PathEscape(targetUserID)
	data, err := c.postJSON(ctx, path, nil, accessToken)
	if err != nil {
		return nil, err
	}
	return decodeSessionPayload(data)
}

// Permissions fetches the full flat permission listing.
func (c *Client) Permissions(ctx context.Context, accessToken string) ([]rbac.Record, error) {
	data, err := c.getJSON(ctx, "/settings/permissions/find-all?paginate=false", accessToken)
	if err != nil {
		return nil, err
	}
	var payload struct {
		Items []rbac.Record `json:"items"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("backend: decode permissions: %w", err)
	}
	return payload.Items, nil
}

// Logout invalidates the session server-side. Callers treat failures as
// best-effort; the gateway clears local state regardless.
func (c *Client) Logout(ctx context.Context, accessToken string) error {
	_, err := c.postJSON(ctx, "/auth/logout", nil, accessToken)
	return err
}

func decodeSessionPayload(data json.RawMessage) (*LoginResult, error) {
	var payload sessionPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("backend: decode session payload: %w", err)
	}
	if payload.AccessToken == "" {
		return nil, errors.New("backend: response missing access token")
	}
	return &LoginResult{
		User:         payload.User,
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
	}, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body any, accessToken string) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("backend: encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	return c.do(req, accessToken)
}

func (c *Client) getJSON(ctx context.Context, path, accessToken string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req, accessToken)
}

func (c *Client) do(req *http.Request, accessToken string) (json.RawMessage, error) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("backend: read response: %w", err)
	}

	var env envelope
	if len(raw) > 0 {
		// A non-JSON body on an error status still maps to Error below.
		_ = json.Unmarshal(raw, &env)
	}

	if resp.StatusCode >= 400 || env.failed() {
		msg := strings.TrimSpace(env.Message)
		return nil, &Error{StatusCode: resp.StatusCode, Message: msg}
	}
	return env.Data, nil
}
