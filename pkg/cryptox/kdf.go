package cryptox

import (
	"fmt"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters for deriving store encryption keys from passphrases.
// These match the RFC 9106 second recommended option (64 MiB, 3 passes),
// which keeps unlock under ~100ms on laptop hardware.
const (
	kdfTime    = 3
	kdfMemory  = 64 * 1024 // KiB
	kdfThreads = 4
)

// SaltSize is the salt length DeriveKey expects.
const SaltSize = 16

// DeriveKey derives a 32-byte AES-256 key from a passphrase and salt using
// Argon2id. The salt must be SaltSize random bytes, generated once per store
// and persisted next to the sealed data (the salt is not secret).
func DeriveKey(passphrase string, salt []byte) ([]byte, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("cryptox: passphrase must not be empty")
	}
	if len(salt) != SaltSize {
		return nil, fmt.Errorf("cryptox: salt must be %d bytes, got %d", SaltSize, len(salt))
	}

	return argon2.IDKey([]byte(passphrase), salt, kdfTime, kdfMemory, kdfThreads, KeySize), nil
}
