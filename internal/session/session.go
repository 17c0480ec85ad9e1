// Package session owns the authentication state of a runcheck client: the access
// token, refresh token, expiry and user profile. It persists that state to a
// credential store, refreshes the access token shortly before it expires and
// exposes the state to observers.
package session

import (
	"context"
	"time"
)

// Default timings.
const (
	// DefaultExpiresIn is the token lifetime assumed when the server omits expires_in.
	DefaultExpiresIn = 3600 * time.Second

	// DefaultExpiryBuffer is subtracted from expiry before a token is treated as expired.
	DefaultExpiryBuffer = 60 * time.Second

	// DefaultRefreshLead is how long before expiry the scheduled refresh fires.
	DefaultRefreshLead = 120 * time.Second

	// DefaultRefreshTimeout bounds a single refresh call.
	DefaultRefreshTimeout = 15 * time.Second
)

// Credential store keys.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token" // #nosec G101 -- key name, not a credential
	KeyTokenExpiry  = "token_expiry"
	KeyUserInfo     = "user_info"
)

// Keys lists every key the manager persists.
//
//nolint:gochecknoglobals // Fixed key set
var Keys = []string{KeyAccessToken, KeyRefreshToken, KeyTokenExpiry, KeyUserInfo}

// UserProfile holds the identity claims returned at login.
type UserProfile struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// LoginResponse is the body returned by the login endpoint.
type LoginResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	UserID       int64  `json:"user_id"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	Role         string `json:"role"`
}

// Profile extracts the user profile from the response.
func (r *LoginResponse) Profile() *UserProfile {
	return &UserProfile{
		ID:    r.UserID,
		Email: r.Email,
		Name:  r.Name,
		Role:  r.Role,
	}
}

// TokenResponse is the body returned by the refresh endpoint.
// The identity fields are optional; some backends echo them on refresh.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	UserID       int64  `json:"user_id,omitempty"`
	Email        string `json:"email,omitempty"`
	Name         string `json:"name,omitempty"`
	Role         string `json:"role,omitempty"`
}

func (r *TokenResponse) profile() *UserProfile {
	if r.UserID == 0 && r.Email == "" {
		return nil
	}
	return &UserProfile{ID: r.UserID, Email: r.Email, Name: r.Name, Role: r.Role}
}

// State is a snapshot of the session.
type State struct {
	AccessToken  string       `json:"-"`
	RefreshToken string       `json:"-"`
	TokenExpiry  time.Time    `json:"token_expiry,omitzero"`
	User         *UserProfile `json:"user,omitempty"`
}

// IsAuthenticated reports whether an access token is held.
func (s State) IsAuthenticated() bool {
	return s.AccessToken != ""
}

// HasRefreshToken reports whether a refresh token is held.
func (s State) HasRefreshToken() bool {
	return s.RefreshToken != ""
}

func (s State) clone() State {
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}

// Store is a durable key-value capability for credentials.
// When Available reports false every other method is a no-op.
type Store interface {
	Available() bool
	Get(key string) (string, bool)
	Set(key, value string) error
	Remove(key string) error
}

// Refresher exchanges a refresh token for a new access token.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error)
}

// RefresherFunc adapts a function to the Refresher interface.
type RefresherFunc func(ctx context.Context, refreshToken string) (*TokenResponse, error)

// Refresh calls f.
func (f RefresherFunc) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	return f(ctx, refreshToken)
}

// Logger is the logging surface the manager needs.
type Logger interface {
	Debug(format string, args ...any)
	Error(format string, args ...any)
}

// Timer is a cancellable one-shot timer.
type Timer interface {
	Stop() bool
}

// Scheduler arms a timer that calls f once after d.
type Scheduler func(d time.Duration, f func()) Timer

func afterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Error(string, ...any) {}

// nopStore is selected when no store is supplied.
type nopStore struct{}

func (nopStore) Available() bool { return false }

func (nopStore) Get(string) (string, bool) { return "", false }

func (nopStore) Set(string, string) error { return nil }

func (nopStore) Remove(string) error { return nil }
