// Package config provides configuration management for runcheck.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kurun/runcheck/internal/fileutil"
)

// Config represents the application configuration.
type Config struct {
	Version int           `yaml:"version"`
	Home    string        `yaml:"home"`
	API     APIConfig     `yaml:"api"`
	Session SessionConfig `yaml:"session"`
	Store   StoreConfig   `yaml:"store"`
	Output  OutputConfig  `yaml:"output"`
	Logging LoggingConfig `yaml:"logging"`

	// Warnings collects non-fatal problems found while applying overrides.
	Warnings []string `yaml:"-"`
}

// APIConfig defines the backend endpoints and client behavior.
type APIConfig struct {
	BaseURL        string  `yaml:"base_url"`
	LoginPath      string  `yaml:"login_path"`
	RefreshPath    string  `yaml:"refresh_path"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	RatePerSecond  float64 `yaml:"rate_per_second"`
	Burst          int     `yaml:"burst"`
	UserAgent      string  `yaml:"user_agent"`
}

// SessionConfig defines token lifecycle timings.
type SessionConfig struct {
	DefaultExpiresInSeconds int  `yaml:"default_expires_in_seconds"`
	ExpiryBufferSeconds     int  `yaml:"expiry_buffer_seconds"`
	RefreshLeadSeconds      int  `yaml:"refresh_lead_seconds"`
	RefreshTimeoutSeconds   int  `yaml:"refresh_timeout_seconds"`
	RearmOnStartup          bool `yaml:"rearm_on_startup"`
}

// StoreConfig selects and configures the credential store backend.
type StoreConfig struct {
	Backend        string      `yaml:"backend"`
	File           string      `yaml:"file"`
	IdentityFile   string      `yaml:"identity_file"`
	KeyringService string      `yaml:"keyring_service"`
	Redis          RedisConfig `yaml:"redis"`
}

// RedisConfig defines the redis credential store connection.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// OutputConfig defines output formatting settings.
type OutputConfig struct {
	DefaultFormat string `yaml:"default_format"`
	Color         string `yaml:"color"`
	Verbose       bool   `yaml:"verbose"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Load reads configuration from the specified file.
// Missing keys keep their default values.
func Load(path string) (*Config, error) {
	// #nosec G304 -- config file path is from validated user input
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes configuration to the specified file.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return fileutil.WriteAtomic(path, data, 0o600)
}

// Path returns the default config file path.
func Path(home string) string {
	return filepath.Join(ExpandHome(home), "config.yaml")
}

// DefaultHome returns the default runcheck home directory.
func DefaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".runcheck"
	}
	return filepath.Join(home, ".runcheck")
}

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

// GetHome returns the runcheck home directory path.
func (c *Config) GetHome() string {
	return c.Home
}

// GetAPIBaseURL returns the backend base URL.
func (c *Config) GetAPIBaseURL() string {
	return c.API.BaseURL
}

// GetAPITimeout returns the HTTP client timeout.
func (c *Config) GetAPITimeout() time.Duration {
	return seconds(c.API.TimeoutSeconds)
}

// GetStoreBackend returns the configured credential store backend name.
func (c *Config) GetStoreBackend() string {
	return c.Store.Backend
}

// GetLoggingLevel returns the configured logging level.
func (c *Config) GetLoggingLevel() string {
	return c.Logging.Level
}

// GetLoggingFile returns the configured log file path.
func (c *Config) GetLoggingFile() string {
	return c.Logging.File
}

// GetOutputFormat returns the default output format.
func (c *Config) GetOutputFormat() string {
	return c.Output.DefaultFormat
}

// IsVerbose returns true if verbose output is enabled.
func (c *Config) IsVerbose() bool {
	return c.Output.Verbose
}

// GetSession returns the session timing configuration.
func (c *Config) GetSession() SessionConfig {
	return c.Session
}

// DefaultExpiresIn returns the lifetime assumed when the server omits expires_in.
func (s SessionConfig) DefaultExpiresIn() time.Duration {
	return seconds(s.DefaultExpiresInSeconds)
}

// ExpiryBuffer returns the margin subtracted from expiry before a token is unusable.
func (s SessionConfig) ExpiryBuffer() time.Duration {
	return seconds(s.ExpiryBufferSeconds)
}

// RefreshLead returns how long before expiry the proactive refresh fires.
func (s SessionConfig) RefreshLead() time.Duration {
	return seconds(s.RefreshLeadSeconds)
}

// RefreshTimeout returns the deadline for a single refresh call.
func (s SessionConfig) RefreshTimeout() time.Duration {
	return seconds(s.RefreshTimeoutSeconds)
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
