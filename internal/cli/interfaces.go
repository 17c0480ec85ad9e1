package cli

import (
	"context"
	"io"

	"github.com/kurun/runcheck/internal/authapi"
	"github.com/kurun/runcheck/internal/config"
	"github.com/kurun/runcheck/internal/output"
	"github.com/kurun/runcheck/internal/session"
)

// Compile-time interface checks.
var (
	_ ConfigProvider = (*config.Config)(nil)
	_ LogWriter      = (*config.Logger)(nil)
	_ FormatProvider = (*output.Formatter)(nil)
	_ AuthService    = (*authapi.Client)(nil)
)

// ConfigProvider provides read access to configuration values.
type ConfigProvider interface {
	// GetHome returns the runcheck home directory path.
	GetHome() string

	// GetAPIBaseURL returns the backend base URL.
	GetAPIBaseURL() string

	// GetStoreBackend returns the credential store backend name.
	GetStoreBackend() string

	// GetLoggingLevel returns the configured logging level.
	GetLoggingLevel() string

	// GetOutputFormat returns the default output format.
	GetOutputFormat() string

	// IsVerbose returns true if verbose output is enabled.
	IsVerbose() bool
}

// LogWriter provides logging capabilities.
type LogWriter interface {
	Debug(format string, args ...any)
	Error(format string, args ...any)
	Close() error
}

// FormatProvider renders command results in the active output format.
type FormatProvider interface {
	Format() output.Format
	Emit(w io.Writer, v any, text func(io.Writer) error) error
}

// AuthService is the remote auth service: it logs in and refreshes tokens.
type AuthService interface {
	session.Refresher
	Login(ctx context.Context, email, password string) (*session.LoginResponse, error)
}
