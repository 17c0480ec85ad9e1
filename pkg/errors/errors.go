// Package errors provides structured error handling for runcheck.
// It defines sentinel errors, exit codes, and helpers for adding
// context, details, and suggestions to errors.
//
//nolint:revive // Package name intentionally shadows stdlib for domain-specific error handling
package errors

import (
	"errors"
	"fmt"
	"sort"
)

// Exit codes returned by the runcheck binary.
const (
	ExitSuccess    = 0 // Successful execution
	ExitGeneral    = 1 // General/unknown error
	ExitInput      = 2 // Invalid input
	ExitAuth       = 3 // Authentication failed or session expired
	ExitNotFound   = 4 // Resource not found
	ExitPermission = 5 // Permission denied
)

// RunError is the structured error type for runcheck.
type RunError struct {
	Code       string            // Machine-readable error code
	Message    string            // Human-readable message
	Details    map[string]string // Additional context
	Suggestion string            // Actionable suggestion for user
	Cause      error             // Underlying error
	ExitCode   int               // Exit code for CLI
}

func (e *RunError) Error() string {
	msg := e.Message

	// Details are sorted for deterministic output
	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			msg = fmt.Sprintf("%s (%s: %s)", msg, k, e.Details[k])
		}
	}

	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *RunError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is for RunError by comparing codes.
func (e *RunError) Is(target error) bool {
	var t *RunError
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// Sentinel errors.
var (
	ErrGeneral = &RunError{
		Code:     "GENERAL_ERROR",
		Message:  "an error occurred",
		ExitCode: ExitGeneral,
	}

	ErrInvalidInput = &RunError{
		Code:     "INVALID_INPUT",
		Message:  "invalid input",
		ExitCode: ExitInput,
	}

	ErrAuthentication = &RunError{
		Code:     "AUTHENTICATION_FAILED",
		Message:  "authentication failed",
		ExitCode: ExitAuth,
	}

	ErrNotFound = &RunError{
		Code:     "NOT_FOUND",
		Message:  "resource not found",
		ExitCode: ExitNotFound,
	}

	ErrPermission = &RunError{
		Code:     "PERMISSION_DENIED",
		Message:  "permission denied",
		ExitCode: ExitPermission,
	}

	// Session errors.
	ErrSessionExpired = &RunError{
		Code:       "SESSION_EXPIRED",
		Message:    "session expired, please login again",
		Suggestion: "run 'runcheck login' to start a new session",
		ExitCode:   ExitAuth,
	}

	ErrNotAuthenticated = &RunError{
		Code:       "NOT_AUTHENTICATED",
		Message:    "not logged in",
		Suggestion: "run 'runcheck login' first",
		ExitCode:   ExitAuth,
	}

	ErrLoginFailed = &RunError{
		Code:     "LOGIN_FAILED",
		Message:  "login rejected by server",
		ExitCode: ExitAuth,
	}

	ErrRefreshFailed = &RunError{
		Code:     "REFRESH_FAILED",
		Message:  "token refresh failed",
		ExitCode: ExitAuth,
	}

	ErrNoRefreshToken = &RunError{
		Code:     "NO_REFRESH_TOKEN",
		Message:  "no refresh token available",
		ExitCode: ExitAuth,
	}

	ErrMalformedResponse = &RunError{
		Code:     "MALFORMED_RESPONSE",
		Message:  "malformed response from server",
		ExitCode: ExitGeneral,
	}

	// Storage errors.
	ErrStoreUnavailable = &RunError{
		Code:     "STORE_UNAVAILABLE",
		Message:  "credential store unavailable",
		ExitCode: ExitGeneral,
	}

	ErrStoreCorrupted = &RunError{
		Code:     "STORE_CORRUPTED",
		Message:  "credential store is corrupted",
		ExitCode: ExitGeneral,
	}

	// Transport errors.
	ErrNetworkError = &RunError{
		Code:     "NETWORK_ERROR",
		Message:  "network communication failed",
		ExitCode: ExitGeneral,
	}

	ErrTimeout = &RunError{
		Code:     "TIMEOUT",
		Message:  "request timed out",
		ExitCode: ExitGeneral,
	}

	ErrRateLimited = &RunError{
		Code:     "RATE_LIMITED",
		Message:  "rate limited",
		ExitCode: ExitGeneral,
	}

	ErrRetryable = &RunError{
		Code:     "RETRYABLE_ERROR",
		Message:  "retryable error",
		ExitCode: ExitGeneral,
	}

	// Config errors.
	ErrConfigNotFound = &RunError{
		Code:     "CONFIG_NOT_FOUND",
		Message:  "configuration file not found",
		ExitCode: ExitNotFound,
	}

	ErrConfigInvalid = &RunError{
		Code:     "CONFIG_INVALID",
		Message:  "configuration file is invalid",
		ExitCode: ExitInput,
	}

	ErrUnknownConfigKey = &RunError{
		Code:     "UNKNOWN_CONFIG_KEY",
		Message:  "unknown config key",
		ExitCode: ExitInput,
	}

	ErrInvalidFormat = &RunError{
		Code:     "INVALID_FORMAT",
		Message:  "invalid format",
		ExitCode: ExitInput,
	}
)

// New creates a new RunError with the given code and message.
func New(code, message string) *RunError {
	return &RunError{
		Code:     code,
		Message:  message,
		ExitCode: ExitGeneral,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}

	msg := fmt.Sprintf(format, args...)

	var re *RunError
	if errors.As(err, &re) {
		return &RunError{
			Code:       re.Code,
			Message:    fmt.Sprintf("%s: %s", msg, re.Message),
			Details:    re.Details,
			Suggestion: re.Suggestion,
			Cause:      err,
			ExitCode:   re.ExitCode,
		}
	}

	return &RunError{
		Code:     "GENERAL_ERROR",
		Message:  msg,
		Cause:    err,
		ExitCode: ExitGeneral,
	}
}

// WithCause returns a copy of the sentinel carrying cause as its underlying error.
func WithCause(sentinel *RunError, cause error) error {
	return &RunError{
		Code:       sentinel.Code,
		Message:    sentinel.Message,
		Details:    sentinel.Details,
		Suggestion: sentinel.Suggestion,
		Cause:      cause,
		ExitCode:   sentinel.ExitCode,
	}
}

// WithDetails adds details to an error.
func WithDetails(err error, details map[string]string) error {
	if err == nil {
		return nil
	}

	var re *RunError
	if errors.As(err, &re) {
		return &RunError{
			Code:       re.Code,
			Message:    re.Message,
			Details:    details,
			Suggestion: re.Suggestion,
			Cause:      re.Cause,
			ExitCode:   re.ExitCode,
		}
	}

	return &RunError{
		Code:     "GENERAL_ERROR",
		Message:  err.Error(),
		Details:  details,
		Cause:    err,
		ExitCode: ExitGeneral,
	}
}

// WithSuggestion adds a suggestion to an error.
func WithSuggestion(err error, suggestion string) error {
	if err == nil {
		return nil
	}

	var re *RunError
	if errors.As(err, &re) {
		return &RunError{
			Code:       re.Code,
			Message:    re.Message,
			Details:    re.Details,
			Suggestion: suggestion,
			Cause:      re.Cause,
			ExitCode:   re.ExitCode,
		}
	}

	return &RunError{
		Code:       "GENERAL_ERROR",
		Message:    err.Error(),
		Suggestion: suggestion,
		Cause:      err,
		ExitCode:   ExitGeneral,
	}
}

// ExitCode returns the appropriate exit code for an error.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var re *RunError
	if errors.As(err, &re) {
		return re.ExitCode
	}

	return ExitGeneral
}

// Code returns the error code for an error.
func Code(err error) string {
	var re *RunError
	if errors.As(err, &re) {
		return re.Code
	}
	return "GENERAL_ERROR"
}

// Is wraps errors.Is for convenience.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience.
func As(err error, target any) bool {
	return errors.As(err, target)
}
