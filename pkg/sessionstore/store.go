// Package sessionstore persists the authenticated session produced by a
// passkey ceremony: the token pair, the resolved identity, and the role-based
// landing path. Backends range from in-memory (tests) to an encrypted file
// and sqlite.
package sessionstore

import (
	"errors"
	"sync"
)

// ErrNotFound is returned when a key has no stored value.
var ErrNotFound = errors.New("sessionstore: not found")

// Store is a small keyed blob store. Implementations must be safe for
// concurrent use. Get returns ErrNotFound for missing keys; Set overwrites.
type Store interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Delete(key string) error
	Clear() error
}

// Well-known keys shared by the SDK and the agent.
const (
	KeySession            = "session"
	KeyAuthenticatorState = "authenticator_state"
)

// MemStore is an in-memory Store. Contents are lost on process exit; it
// backs tests and ephemeral sessions.
type MemStore struct {
	mu      sync.Mutex
	entries map[string][]byte
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{entries: make(map[string][]byte)}
}

func (s *MemStore) Get(key string) ([]byte, error) {
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

func (s *MemStore) Set(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)
	s.entries[key] = stored
	return nil
}

func (s *MemStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

func (s *MemStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string][]byte)
	return nil
}
