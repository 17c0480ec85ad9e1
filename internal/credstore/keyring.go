package credstore

import (
	"errors"
	"fmt"
	"time"

	"github.com/zalando/go-keyring"
)

// DefaultCheckTimeout bounds the keyring availability check. Some platform
// keyrings block on an unlock prompt.
const DefaultCheckTimeout = 3 * time.Second

const checkKey = "runcheck-availability"

// Keyring is the subset of the OS keyring API used by KeyringStore.
type Keyring interface {
	Set(service, user, password string) error
	Get(service, user string) (string, error)
	Delete(service, user string) error
}

// OSKeyring implements Keyring using github.com/zalando/go-keyring.
type OSKeyring struct{}

// Set stores a secret in the OS keyring.
func (OSKeyring) Set(service, user, password string) error {
	return keyring.Set(service, user, password)
}

// Get retrieves a secret from the OS keyring.
func (OSKeyring) Get(service, user string) (string, error) {
	return keyring.Get(service, user)
}

// Delete removes a secret from the OS keyring.
func (OSKeyring) Delete(service, user string) error {
	return keyring.Delete(service, user)
}

// CheckKeyring reports whether the keyring accepts a set, get and delete
// round trip within timeout.
func CheckKeyring(ring Keyring, service string, timeout time.Duration) bool {
	if ring == nil {
		return false
	}
	if timeout <= 0 {
		timeout = DefaultCheckTimeout
	}

	result := make(chan bool, 1)
	go func() {
		result <- checkKeyring(ring, service)
	}()

	select {
	case ok := <-result:
		return ok
	case <-time.After(timeout):
		return false
	}
}

func checkKeyring(ring Keyring, service string) bool {
	const value = "ok"
	if err := ring.Set(service, checkKey, value); err != nil {
		return false
	}
	got, err := ring.Get(service, checkKey)
	_ = ring.Delete(service, checkKey)
	return err == nil && got == value
}

// KeyringStore stores each credential as its own keyring entry under service.
type KeyringStore struct {
	ring      Keyring
	service   string
	available bool
	logger    Logger
}

// NewKeyringStore checks ring and returns a store bound to service.
// A failed check yields a store whose Available reports false.
func NewKeyringStore(ring Keyring, service string, timeout time.Duration, logger Logger) *KeyringStore {
	if logger == nil {
		logger = nopLogger{}
	}
	s := &KeyringStore{
		ring:    ring,
		service: service,
		logger:  logger,
	}
	s.available = CheckKeyring(ring, service, timeout)
	if !s.available {
		logger.Error("keyring availability check failed for service %q", service)
	}
	return s
}

// Available reports whether the availability check succeeded.
func (s *KeyringStore) Available() bool { return s.available }

// Get returns the keyring entry for key.
func (s *KeyringStore) Get(key string) (string, bool) {
	if !s.available {
		return "", false
	}
	v, err := s.ring.Get(s.service, key)
	if err != nil {
		if !errors.Is(err, keyring.ErrNotFound) {
			s.logger.Error("keyring get %s: %v", key, err)
		}
		return "", false
	}
	return v, true
}

// Set writes the keyring entry for key.
func (s *KeyringStore) Set(key, value string) error {
	if !s.available {
		return nil
	}
	if err := s.ring.Set(s.service, key, value); err != nil {
		return fmt.Errorf("keyring set %s: %w", key, err)
	}
	return nil
}

// Remove deletes the keyring entry for key. A missing entry is not an error.
func (s *KeyringStore) Remove(key string) error {
	if !s.available {
		return nil
	}
	if err := s.ring.Delete(s.service, key); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("keyring delete %s: %w", key, err)
	}
	return nil
}
