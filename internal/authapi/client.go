// Package authapi is the HTTP client for the remote auth service: it exchanges
// credentials for tokens and refresh tokens for new access tokens.
package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kurun/runcheck/internal/config"
	"github.com/kurun/runcheck/internal/session"
	rcerr "github.com/kurun/runcheck/pkg/errors"
)

const (
	// defaultTimeout is the default HTTP request timeout.
	defaultTimeout = 10 * time.Second

	// maxErrorBody bounds how much of an error response is read.
	maxErrorBody = 4 << 10
)

// Logger is the logging surface the client needs.
type Logger interface {
	Debug(format string, args ...any)
	Error(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Error(string, ...any) {}

// Client talks to the auth endpoints of the backend.
type Client struct {
	baseURL     string
	loginPath   string
	refreshPath string
	userAgent   string
	httpClient  *http.Client
	retry       RetryConfig
	logger      Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithPaths overrides the login and refresh endpoint paths.
func WithPaths(login, refresh string) Option {
	return func(c *Client) {
		if login != "" {
			c.loginPath = login
		}
		if refresh != "" {
			c.refreshPath = refresh
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithRetryConfig sets the login retry policy.
func WithRetryConfig(cfg RetryConfig) Option {
	return func(c *Client) { c.retry = cfg }
}

// WithLogger sets the logger.
func WithLogger(l Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a client for the backend at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		loginPath:   "/api/users/login",
		refreshPath: "/api/users/refresh",
		httpClient:  &http.Client{Timeout: defaultTimeout},
		retry:       DefaultRetryConfig(),
		logger:      nopLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FromConfig creates a client from the api config section.
func FromConfig(cfg config.APIConfig, logger Logger) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return New(cfg.BaseURL,
		WithPaths(cfg.LoginPath, cfg.RefreshPath),
		WithUserAgent(cfg.UserAgent),
		WithHTTPClient(&http.Client{Timeout: timeout}),
		WithLogger(logger),
	)
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() string { return c.baseURL }

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// Login exchanges credentials for a session. Rejected credentials return
// ErrLoginFailed; rate limiting and server errors are retried.
func (c *Client) Login(ctx context.Context, email, password string) (*session.LoginResponse, error) {
	payload := loginRequest{Email: email, Password: password}

	return RetryWithConfig(ctx, c.retry, func() (*session.LoginResponse, error) {
		var resp session.LoginResponse
		if err := c.post(ctx, c.loginPath, payload, &resp); err != nil {
			return nil, err
		}
		if resp.AccessToken == "" {
			return nil, rcerr.WithDetails(rcerr.ErrMalformedResponse, map[string]string{"field": "access_token"})
		}
		c.logger.Debug("login succeeded for %s", email)
		return &resp, nil
	})
}

// Refresh exchanges a refresh token for a new access token. It makes a single
// attempt; the session manager decides what a failure means.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*session.TokenResponse, error) {
	var resp session.TokenResponse
	if err := c.post(ctx, c.refreshPath, refreshRequest{RefreshToken: refreshToken}, &resp); err != nil {
		c.logger.Error("refresh request failed: %v", err)
		return nil, rcerr.WithCause(rcerr.ErrRefreshFailed, err)
	}
	if resp.AccessToken == "" {
		return nil, rcerr.WithDetails(rcerr.ErrMalformedResponse, map[string]string{"field": "access_token"})
	}
	return &resp, nil
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return rcerr.WithCause(rcerr.ErrNetworkError, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return rcerr.WithCause(rcerr.ErrMalformedResponse, err)
	}
	return nil
}

// statusError maps a non-2xx response onto the error taxonomy.
func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	details := map[string]string{"status": fmt.Sprintf("%d", resp.StatusCode)}
	if msg := serverMessage(raw); msg != "" {
		details["server"] = msg
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusBadRequest:
		return rcerr.WithDetails(rcerr.ErrLoginFailed, details)
	case resp.StatusCode == http.StatusTooManyRequests:
		return &retryAfterError{
			err:   rcerr.WithDetails(rcerr.ErrRateLimited, details),
			after: ParseRetryAfter(resp.Header.Get("Retry-After")),
		}
	case resp.StatusCode >= 500:
		return rcerr.WithDetails(rcerr.ErrRetryable, details)
	default:
		return rcerr.WithDetails(rcerr.ErrGeneral, details)
	}
}

func serverMessage(raw []byte) string {
	var eb errorBody
	if err := json.Unmarshal(raw, &eb); err != nil {
		return ""
	}
	if eb.Message != "" {
		return eb.Message
	}
	return eb.Error
}

// IsRejected reports whether err means the server refused the credentials.
func IsRejected(err error) bool {
	return errors.Is(err, rcerr.ErrLoginFailed)
}
