package cryptox

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"fmt"
)

// GenerateES256Key generates a new ECDSA P-256 private key.
// ES256 uses the P-256 curve (also known as secp256r1 or prime256v1).
func GenerateES256Key() (*ecdsa.PrivateKey, error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("cryptox: failed to generate ECDSA key: %w", err)
	}
	return privateKey, nil
}

// SignES256 signs data with an ECDSA P-256 key. The data is hashed with
// SHA-256 and the signature is returned in ASN.1 DER form, which is the
// encoding WebAuthn relying parties expect for ES256 assertions.
func SignES256(key *ecdsa.PrivateKey, data []byte) ([]byte, error) {
	if key == nil {
		return nil, fmt.Errorf("cryptox: nil ECDSA key")
	}

	digest := sha256.Sum256(data)
	sig, err := ecdsa.SignASN1(rand.Reader, key, digest[:])
	if err != nil {
		return nil, fmt.Errorf("cryptox: failed to sign with ECDSA: %w", err)
	}
	return sig, nil
}

// GenerateEd25519Key generates a new Ed25519 private key.
// Ed25519 keys are always 256 bits and don't require a size parameter.
func GenerateEd25519Key() (ed25519.PrivateKey, error) {
	_, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("cryptox: failed to generate Ed25519 key: %w", err)
	}
	return privateKey, nil
}

// SignEd25519 signs data with an Ed25519 key. Ed25519 signs the message
// directly (no pre-hash), matching the COSE EdDSA algorithm.
func SignEd25519(key ed25519.PrivateKey, data []byte) ([]byte, error) {
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("cryptox: invalid Ed25519 key length %d", len(key))
	}
	return ed25519.Sign(key, data), nil
}

// MarshalPrivateKeyPEM marshals an ECDSA or Ed25519 private key to PKCS8 PEM
// for persistence of softtoken credentials.
func MarshalPrivateKeyPEM(key any) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("cryptox: failed to marshal PKCS8 key: %w", err)
	}

	block := &pem.Block{
		Type:  "PRIVATE KEY",
		Bytes: der,
	}
	return pem.EncodeToMemory(block), nil
}

// ParsePrivateKeyPEM parses a PKCS8 PEM private key produced by
// MarshalPrivateKeyPEM.
func ParsePrivateKeyPEM(pemData []byte) (any, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, fmt.Errorf("cryptox: no PEM block found")
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("cryptox: failed to parse PKCS8 key: %w", err)
	}
	return key, nil
}
