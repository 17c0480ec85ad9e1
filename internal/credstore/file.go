package credstore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"filippo.io/age"

	"github.com/kurun/runcheck/internal/fileutil"
)

// ErrNoIdentity indicates a missing or unreadable age identity.
var ErrNoIdentity = errors.New("age identity unavailable")

// FileStore keeps all credentials in one age-encrypted JSON file.
// The X25519 identity lives next to it and is created on first use.
type FileStore struct {
	mu       sync.Mutex
	path     string
	identity *age.X25519Identity
	logger   Logger
}

// NewFileStore opens the store at path, loading or creating the identity at
// identityPath.
func NewFileStore(path, identityPath string, logger Logger) (*FileStore, error) {
	if logger == nil {
		logger = nopLogger{}
	}
	if path == "" || identityPath == "" {
		return nil, fileutil.ErrEmptyPath
	}

	id, err := loadOrCreateIdentity(identityPath)
	if err != nil {
		return nil, err
	}

	return &FileStore{path: path, identity: id, logger: logger}, nil
}

func loadOrCreateIdentity(path string) (*age.X25519Identity, error) {
	data, err := fileutil.ReadIfExists(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoIdentity, err)
	}

	if data != nil {
		ids, err := age.ParseIdentities(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNoIdentity, err)
		}
		for _, id := range ids {
			if x, ok := id.(*age.X25519Identity); ok {
				return x, nil
			}
		}
		return nil, fmt.Errorf("%w: no X25519 identity in %s", ErrNoIdentity, path)
	}

	id, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generating identity: %w", err)
	}
	content := "# runcheck credential store identity\n" + id.String() + "\n"
	if err := fileutil.WriteAtomic(path, []byte(content), 0o600); err != nil {
		return nil, fmt.Errorf("writing identity: %w", err)
	}
	return id, nil
}

// Path returns the encrypted file location.
func (s *FileStore) Path() string { return s.path }

// Available always returns true once the identity is loaded.
func (s *FileStore) Available() bool { return true }

// Get returns the value for key.
func (s *FileStore) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		s.logger.Error("credential file read: %v", err)
		return "", false
	}
	v, ok := entries[key]
	return v, ok
}

// Set stores value under key and rewrites the file.
func (s *FileStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.loadOrEmpty()
	entries[key] = value
	return s.save(entries)
}

// Remove deletes key. The file is removed once no entries remain.
func (s *FileStore) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.loadOrEmpty()
	if _, ok := entries[key]; !ok && len(entries) > 0 {
		return nil
	}
	delete(entries, key)
	if len(entries) == 0 {
		return fileutil.RemoveIfExists(s.path)
	}
	return s.save(entries)
}

// loadOrEmpty treats a corrupt file as empty so the next write replaces it.
func (s *FileStore) loadOrEmpty() map[string]string {
	entries, err := s.load()
	if err != nil {
		s.logger.Error("credential file discarded: %v", err)
		return make(map[string]string)
	}
	return entries
}

func (s *FileStore) load() (map[string]string, error) {
	data, err := fileutil.ReadIfExists(s.path)
	if err != nil {
		return nil, err
	}
	entries := make(map[string]string)
	if data == nil {
		return entries, nil
	}

	r, err := age.Decrypt(bytes.NewReader(data), s.identity)
	if err != nil {
		return nil, fmt.Errorf("%w: decrypting: %w", ErrCorrupted, err)
	}
	plain, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: reading: %w", ErrCorrupted, err)
	}
	if err := json.Unmarshal(plain, &entries); err != nil {
		return nil, fmt.Errorf("%w: decoding: %w", ErrCorrupted, err)
	}
	return entries, nil
}

func (s *FileStore) save(entries map[string]string) error {
	plain, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encoding credentials: %w", err)
	}

	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, s.identity.Recipient())
	if err != nil {
		return fmt.Errorf("creating encryptor: %w", err)
	}
	if _, err := w.Write(plain); err != nil {
		return fmt.Errorf("encrypting credentials: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing encryption: %w", err)
	}

	return fileutil.WriteAtomic(s.path, buf.Bytes(), 0o600)
}
