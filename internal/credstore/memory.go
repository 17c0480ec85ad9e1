package credstore

import "sync"

// MemoryStore keeps credentials in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]string)}
}

// Available always returns true.
func (s *MemoryStore) Available() bool { return true }

// Get returns the value for key.
func (s *MemoryStore) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

// Set stores value under key.
func (s *MemoryStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

// Remove deletes key.
func (s *MemoryStore) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// Keys returns the number of stored keys.
func (s *MemoryStore) Keys() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// NopStore is a store that is never available. The session manager then keeps
// credentials in memory only.
type NopStore struct{}

// Available always returns false.
func (NopStore) Available() bool { return false }

// Get always reports the key as absent.
func (NopStore) Get(string) (string, bool) { return "", false }

// Set does nothing.
func (NopStore) Set(string, string) error { return nil }

// Remove does nothing.
func (NopStore) Remove(string) error { return nil }
