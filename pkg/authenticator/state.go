package authenticator

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/protocol/webauthncose"
	"github.com/medhcloud/passkey/pkg/cryptox"
)

// credentialState is the serialized form of a resident credential. Private
// keys are PKCS8 PEM; callers are expected to seal the exported blob before
// writing it anywhere (the agent stores it through its encrypted store).
type credentialState struct {
	ID         []byte    `json:"id"`
	RPID       string    `json:"rp_id"`
	UserHandle []byte    `json:"user_handle,omitempty"`
	UserName   string    `json:"user_name,omitempty"`
	Algorithm  int       `json:"alg"`
	PrivateKey []byte    `json:"private_key"`
	SignCount  uint32    `json:"sign_count"`
	CreatedAt  time.Time `json:"created_at"`
}

type tokenState struct {
	Credentials []credentialState `json:"credentials"`
}

// ExportState serializes the token's resident credentials, private keys
// included. Seal the result before persisting it.
func (t *SoftToken) ExportState() ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state := tokenState{Credentials: make([]credentialState, 0, len(t.creds))}
	for _, cred := range t.creds {
		keyPEM, err := cryptox.MarshalPrivateKeyPEM(cred.Key)
		if err != nil {
			return nil, fmt.Errorf("authenticator: export credential: %w", err)
		}
		state.Credentials = append(state.Credentials, credentialState{
			ID:         cred.ID,
			RPID:       cred.RPID,
			UserHandle: cred.UserHandle,
			UserName:   cred.UserName,
			Algorithm:  int(cred.Algorithm),
			PrivateKey: keyPEM,
			SignCount:  cred.SignCount,
			CreatedAt:  cred.CreatedAt,
		})
	}

	return json.Marshal(state)
}

// ImportState replaces the token's resident credentials with a previously
// exported set.
func (t *SoftToken) ImportState(data []byte) error {
	var state tokenState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("authenticator: decode state: %w", err)
	}

	creds := make([]*softCredential, 0, len(state.Credentials))
	for _, cs := range state.Credentials {
		key, err := cryptox.ParsePrivateKeyPEM(cs.PrivateKey)
		if err != nil {
			return fmt.Errorf("authenticator: import credential: %w", err)
		}

		switch key.(type) {
		case *ecdsa.PrivateKey, ed25519.PrivateKey:
		default:
			return fmt.Errorf("authenticator: import credential: unsupported key type %T", key)
		}

		creds = append(creds, &softCredential{
			ID:         cs.ID,
			RPID:       cs.RPID,
			UserHandle: cs.UserHandle,
			UserName:   cs.UserName,
			Algorithm:  webauthncose.COSEAlgorithmIdentifier(cs.Algorithm),
			Key:        key,
			SignCount:  cs.SignCount,
			CreatedAt:  cs.CreatedAt,
		})
	}

	t.mu.Lock()
	t.creds = creds
	t.mu.Unlock()
	return nil
}
