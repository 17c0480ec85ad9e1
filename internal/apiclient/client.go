// Package apiclient issues authenticated requests against the backend. It
// attaches the session's bearer token and recovers from a single 401 by
// refreshing the session and retrying once.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kurun/runcheck/internal/config"
	"github.com/kurun/runcheck/internal/metrics"
	rcerr "github.com/kurun/runcheck/pkg/errors"
)

const (
	// defaultTimeout is the default HTTP request timeout.
	defaultTimeout = 10 * time.Second

	// maxResponseBody bounds how much of a response body is buffered.
	maxResponseBody = 10 << 20

	// HeaderRequestID carries the correlation id of a logical request.
	HeaderRequestID = "X-Request-ID"
)

// Session is the part of the session manager the client depends on.
type Session interface {
	AccessToken() string
	RefreshAccessToken(ctx context.Context) bool
	Logout()
}

// Logger is the logging surface the client needs.
type Logger interface {
	Debug(format string, args ...any)
	Error(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Error(string, ...any) {}

// Response is a fully buffered HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	RequestID  string
	Retried    bool
}

// OK reports whether the status is 2xx.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode <= 299
}

// JSON decodes the body into v.
func (r *Response) JSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return rcerr.WithCause(rcerr.ErrMalformedResponse, err)
	}
	return nil
}

// Client issues requests on behalf of a session.
type Client struct {
	baseURL    string
	session    Session
	httpClient *http.Client
	limiter    *RateLimiter
	userAgent  string
	metrics    *metrics.Metrics
	logger     Logger
	onExpired  func()
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

// WithRateLimiter sets the per-host limiter. Nil disables limiting.
func WithRateLimiter(rl *RateLimiter) Option {
	return func(c *Client) { c.limiter = rl }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithMetrics records request outcomes into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// OnSessionExpired registers fn to run when a 401 cannot be recovered. It is
// the point where an interactive consumer sends the user back to login.
func OnSessionExpired(fn func()) Option {
	return func(c *Client) { c.onExpired = fn }
}

// New creates a client that resolves relative endpoints against baseURL.
func New(baseURL string, s Session, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		session:    s,
		httpClient: &http.Client{Timeout: defaultTimeout},
		limiter:    DefaultRateLimiter(),
		logger:     nopLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FromConfig creates a client from the api config section.
func FromConfig(cfg config.APIConfig, s Session, opts ...Option) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	base := []Option{
		WithHTTPClient(&http.Client{Timeout: timeout}),
		WithRateLimiter(NewRateLimiter(cfg.RatePerSecond, cfg.Burst)),
		WithUserAgent(cfg.UserAgent),
	}
	return New(cfg.BaseURL, s, append(base, opts...)...)
}

type requestOptions struct {
	skipAuth    bool
	skipRefresh bool
	headers     http.Header
}

// RequestOption adjusts a single request.
type RequestOption func(*requestOptions)

// SkipAuth sends the request without an Authorization header.
func SkipAuth() RequestOption {
	return func(o *requestOptions) { o.skipAuth = true }
}

// SkipRefresh returns a 401 response as-is instead of refreshing and retrying.
func SkipRefresh() RequestOption {
	return func(o *requestOptions) { o.skipRefresh = true }
}

// WithHeader sets an extra request header.
func WithHeader(key, value string) RequestOption {
	return func(o *requestOptions) { o.headers.Set(key, value) }
}

// Get issues a GET request.
func (c *Client) Get(ctx context.Context, endpoint string, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, http.MethodGet, endpoint, nil, opts...)
}

// Post issues a POST request with body encoded as JSON.
func (c *Client) Post(ctx context.Context, endpoint string, body any, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, http.MethodPost, endpoint, body, opts...)
}

// Put issues a PUT request with body encoded as JSON.
func (c *Client) Put(ctx context.Context, endpoint string, body any, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, http.MethodPut, endpoint, body, opts...)
}

// Patch issues a PATCH request with body encoded as JSON.
func (c *Client) Patch(ctx context.Context, endpoint string, body any, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, http.MethodPatch, endpoint, body, opts...)
}

// Delete issues a DELETE request.
func (c *Client) Delete(ctx context.Context, endpoint string, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, http.MethodDelete, endpoint, nil, opts...)
}

// Do issues a request. A 401 triggers at most one session refresh and one
// retry. If the refresh fails the session is logged out, the expiry hook runs
// and ErrSessionExpired is returned. If ctx ends while waiting for the refresh,
// ctx.Err() is returned and the session is left alone. Any other status is
// returned as a Response, not an error.
func (c *Client) Do(ctx context.Context, method, endpoint string, body any, opts ...RequestOption) (*Response, error) {
	o := requestOptions{headers: make(http.Header)}
	for _, opt := range opts {
		opt(&o)
	}

	target, err := c.resolve(endpoint)
	if err != nil {
		return nil, err
	}
	payload, err := encodeBody(body)
	if err != nil {
		return nil, err
	}
	reqID := uuid.NewString()

	resp, err := c.send(ctx, method, target, payload, &o, reqID)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || o.skipRefresh || c.session == nil {
		return resp, nil
	}

	c.metrics.RecordUnauthorizedRetry()
	c.logger.Debug("request %s %s got 401, refreshing session", method, target)
	if !c.session.RefreshAccessToken(ctx) {
		// The caller stopped waiting; the shared refresh may still succeed.
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c.session.Logout()
		if c.onExpired != nil {
			c.onExpired()
		}
		return nil, rcerr.WithDetails(rcerr.ErrSessionExpired, map[string]string{"request_id": reqID})
	}

	resp, err = c.send(ctx, method, target, payload, &o, reqID)
	if err != nil {
		return nil, err
	}
	resp.Retried = true
	return resp, nil
}

func (c *Client) send(ctx context.Context, method string, target *url.URL, payload []byte, o *requestOptions, reqID string) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, target.Host); err != nil {
			return nil, fmt.Errorf("waiting for rate limiter: %w", err)
		}
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	for k, vs := range o.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	req.Header.Set(HeaderRequestID, reqID)
	if !o.skipAuth && c.session != nil {
		if token := c.session.AccessToken(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.RecordAPIRequest(method, 0)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, rcerr.WithCause(rcerr.ErrNetworkError, err)
	}
	defer func() { _ = resp.Body.Close() }()
	c.metrics.RecordAPIRequest(method, resp.StatusCode)

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, rcerr.WithCause(rcerr.ErrNetworkError, err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
		RequestID:  reqID,
	}, nil
}

// resolve prefixes relative endpoints with the base URL. Absolute http(s)
// URLs pass through unchanged.
func (c *Client) resolve(endpoint string) (*url.URL, error) {
	raw := endpoint
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		if !strings.HasPrefix(endpoint, "/") {
			endpoint = "/" + endpoint
		}
		raw = c.baseURL + endpoint
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return nil, rcerr.WithDetails(rcerr.ErrInvalidInput, map[string]string{"endpoint": endpoint})
	}
	return u, nil
}

// encodeBody buffers the request body so a retry can resend it. Byte slices,
// raw JSON and strings are sent verbatim; anything else is JSON encoded.
func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	case string:
		return []byte(b), nil
	case io.Reader:
		data, err := io.ReadAll(b)
		if err != nil {
			return nil, fmt.Errorf("reading request body: %w", err)
		}
		return data, nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		return data, nil
	}
}
