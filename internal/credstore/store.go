// Package credstore provides the credential store backends used by the session
// manager: the OS keyring, an age-encrypted file, redis and in-memory stores.
package credstore

import (
	"errors"
	"io"
)

// Store is a durable key-value capability for credentials.
// When Available reports false every other method is a no-op.
type Store interface {
	Available() bool
	Get(key string) (string, bool)
	Set(key, value string) error
	Remove(key string) error
}

// Store errors.
var (
	// ErrUnavailable indicates an operation on a store that failed its availability check.
	ErrUnavailable = errors.New("credential store unavailable")

	// ErrCorrupted indicates stored data that cannot be decoded.
	ErrCorrupted = errors.New("credential store corrupted")

	// ErrUnknownBackend indicates an unsupported store.backend value.
	ErrUnknownBackend = errors.New("unknown credential store backend")
)

// Logger is the logging surface the stores need.
type Logger interface {
	Debug(format string, args ...any)
	Error(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Error(string, ...any) {}

// Close releases resources held by s, if any.
func Close(s Store) error {
	if c, ok := s.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
