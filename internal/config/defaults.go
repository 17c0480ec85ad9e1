package config

import "slices"

// DefaultAPIBaseURL is the backend used when nothing else is configured.
const DefaultAPIBaseURL = "http://localhost:8080"

// Store backend names.
const (
	StoreKeyring = "keyring"
	StoreFile    = "file"
	StoreRedis   = "redis"
	StoreMemory  = "memory"
	StoreNone    = "none"
)

// StoreBackends lists every accepted store.backend value.
//
//nolint:gochecknoglobals // Configuration constant list
var StoreBackends = []string{StoreKeyring, StoreFile, StoreRedis, StoreMemory, StoreNone}

// IsStoreBackend reports whether name is an accepted store.backend value.
func IsStoreBackend(name string) bool {
	return slices.Contains(StoreBackends, name)
}

// Defaults returns the default configuration.
func Defaults() *Config {
	return &Config{
		Version: 1,
		Home:    "~/.runcheck",
		API: APIConfig{
			BaseURL:        DefaultAPIBaseURL,
			LoginPath:      "/api/users/login",
			RefreshPath:    "/api/users/refresh",
			TimeoutSeconds: 10,
			RatePerSecond:  5,
			Burst:          10,
			UserAgent:      "runcheck-cli",
		},
		Session: SessionConfig{
			DefaultExpiresInSeconds: 3600,
			ExpiryBufferSeconds:     60,
			RefreshLeadSeconds:      120,
			RefreshTimeoutSeconds:   15,
			RearmOnStartup:          true,
		},
		Store: StoreConfig{
			Backend:        StoreFile,
			File:           "~/.runcheck/credentials.age",
			IdentityFile:   "~/.runcheck/identity.age",
			KeyringService: "runcheck",
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				DB:     0,
				Prefix: "runcheck:",
			},
		},
		Output: OutputConfig{
			DefaultFormat: "auto",
			Color:         "auto",
			Verbose:       false,
		},
		Logging: LoggingConfig{
			Level: "error",
			File:  "~/.runcheck/runcheck.log",
		},
	}
}
