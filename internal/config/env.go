package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/mrz1836/go-sanitize"
)

// Base URL validation errors.
var (
	ErrInvalidBaseURL  = errors.New("invalid base URL")
	ErrInsecureBaseURL = errors.New("plain http is only allowed for loopback hosts")
)

// Environment variable names.
const (
	EnvHome          = "RUNCHECK_HOME"
	EnvAPIURL        = "RUNCHECK_API_URL"
	EnvStore         = "RUNCHECK_STORE"
	EnvRedisAddr     = "RUNCHECK_REDIS_ADDR"
	EnvRedisPassword = "RUNCHECK_REDIS_PASSWORD" // #nosec G101 -- false positive, this is a const name not a credential
	EnvOutputFormat  = "RUNCHECK_OUTPUT_FORMAT"
	EnvVerbose       = "RUNCHECK_VERBOSE"
	EnvLogLevel      = "RUNCHECK_LOG_LEVEL"
	EnvRearm         = "RUNCHECK_REARM_ON_STARTUP"
	EnvNoColor       = "NO_COLOR"
)

// ApplyEnvironment applies environment variable overrides to the configuration.
//
//nolint:gocyclo // Environment variable overrides require sequential checks
func ApplyEnvironment(cfg *Config) {
	if v := os.Getenv(EnvHome); v != "" {
		cfg.Home = v
	}

	if v := os.Getenv(EnvAPIURL); v != "" {
		u := SanitizeURL(v)
		err := ValidateBaseURL(u)
		if err != nil {
			cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("%s: %v", EnvAPIURL, err))
		}
		if err == nil || errors.Is(err, ErrInsecureBaseURL) {
			cfg.API.BaseURL = u
		}
	}

	if v := os.Getenv(EnvStore); v != "" {
		backend := strings.ToLower(strings.TrimSpace(v))
		if IsStoreBackend(backend) {
			cfg.Store.Backend = backend
		} else {
			cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("%s: unknown backend %q", EnvStore, backend))
		}
	}

	if v := os.Getenv(EnvRedisAddr); v != "" {
		cfg.Store.Redis.Addr = strings.TrimSpace(v)
	}

	if v := os.Getenv(EnvRedisPassword); v != "" {
		cfg.Store.Redis.Password = v
	}

	if v := os.Getenv(EnvOutputFormat); v != "" {
		cfg.Output.DefaultFormat = strings.ToLower(v)
	}

	if v := os.Getenv(EnvVerbose); v != "" {
		cfg.Output.Verbose = parseBool(v)
	}

	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}

	if v := os.Getenv(EnvRearm); v != "" {
		cfg.Session.RearmOnStartup = parseBool(v)
	}

	if _, ok := os.LookupEnv(EnvNoColor); ok {
		cfg.Output.Color = "never"
	}
}

// parseBool parses a boolean string value.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "1" || s == "true" || s == "yes" || s == "on" {
		return true
	}
	b, _ := strconv.ParseBool(s)
	return b
}

// SanitizeURL cleans a URL string by removing invalid characters and trimming
// whitespace and trailing slashes, so endpoint paths can be appended directly.
func SanitizeURL(url string) string {
	return strings.TrimRight(sanitize.URL(strings.TrimSpace(url)), "/")
}

// ValidateBaseURL checks that a backend URL is absolute http(s).
// Plain http to a non-loopback host returns ErrInsecureBaseURL, which callers
// treat as a warning rather than a rejection.
func ValidateBaseURL(raw string) error {
	if raw == "" {
		return nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidBaseURL, err)
	}

	switch u.Scheme {
	case "https":
	case "http":
		if !isLoopback(u.Hostname()) {
			return ErrInsecureBaseURL
		}
	default:
		return fmt.Errorf("%w: scheme %q", ErrInvalidBaseURL, u.Scheme)
	}

	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidBaseURL)
	}
	return nil
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
