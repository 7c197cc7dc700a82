package sessionstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/medhcloud/passkey/pkg/cryptox"
)

// FileStore persists entries in a single file, sealed with a key derived
// from a passphrase. The random KDF salt is stored in clear at the head of
// the file; everything after it is AES-256-GCM ciphertext over the JSON
// entry map.
//
// Writes go through a temp file and rename, so a crash mid-write leaves the
// previous contents intact. The file is created with mode 0600.
type FileStore struct {
	path string
	key  []byte
	salt []byte

	mu      sync.Mutex
	entries map[string][]byte
}

// OpenFileStore opens (or creates) the sealed store at path. The passphrase
// must match the one the file was created with; a mismatch surfaces as a
// decryption error, not silently empty contents.
func OpenFileStore(path, passphrase string) (*FileStore, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		salt, err := cryptox.GenerateBytes(cryptox.SaltSize)
		if err != nil {
			return nil, fmt.Errorf("sessionstore: generate salt: %w", err)
		}
		key, err := cryptox.DeriveKey(passphrase, salt)
		if err != nil {
			return nil, fmt.Errorf("sessionstore: derive key: %w", err)
		}
		s := &FileStore{path: path, key: key, salt: salt, entries: make(map[string][]byte)}
		if err := s.flushLocked(); err != nil {
			return nil, err
		}
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sessionstore: read %s: %w", path, err)
	}
	if len(raw) < cryptox.SaltSize {
		return nil, fmt.Errorf("sessionstore: %s is truncated", path)
	}

	salt := raw[:cryptox.SaltSize]
	key, err := cryptox.DeriveKey(passphrase, salt)
	if err != nil {
		return nil, fmt.Errorf("sessionstore: derive key: %w", err)
	}

	plaintext, err := cryptox.Open(key, raw[cryptox.SaltSize:])
	if err != nil {
		return nil, fmt.Errorf("sessionstore: unseal %s: %w", path, err)
	}

	var entries map[string][]byte
	if err := json.Unmarshal(plaintext, &entries); err != nil {
		return nil, fmt.Errorf("sessionstore: decode %s: %w", path, err)
	}
	if entries == nil {
		entries = make(map[string][]byte)
	}

	return &FileStore{path: path, key: key, salt: salt, entries: entries}, nil
}

func (s *FileStore) Get(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, ok := s.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (s *FileStore) Set(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)
	s.entries[key] = stored
	return s.flushLocked()
}

func (s *FileStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return s.flushLocked()
}

func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string][]byte)
	return s.flushLocked()
}

// flushLocked seals and atomically rewrites the file.
func (s *FileStore) flushLocked() error {
	plaintext, err := json.Marshal(s.entries)
	if err != nil {
		return fmt.Errorf("sessionstore: encode entries: %w", err)
	}

	sealed, err := cryptox.Seal(s.key, plaintext)
	if err != nil {
		return fmt.Errorf("sessionstore: seal: %w", err)
	}

	payload := make([]byte, 0, len(s.salt)+len(sealed))
	payload = append(payload, s.salt...)
	payload = append(payload, sealed...)

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".session-*")
	if err != nil {
		return fmt.Errorf("sessionstore: create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sessionstore: write temp file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sessionstore: chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("sessionstore: close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("sessionstore: replace %s: %w", s.path, err)
	}
	return nil
}
