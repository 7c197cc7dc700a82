package authenticator

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"
	"github.com/medhcloud/passkey/pkg/cryptox"
)

// ErrCredentialExists reports that registration was asked to create a
// credential the relying party already knows about (excludeCredentials match).
var ErrCredentialExists = errors.New("authenticator: credential already registered")

// PromptKind identifies which ceremony a gesture prompt belongs to.
type PromptKind string

const (
	PromptRegistration PromptKind = "registration"
	PromptAssertion    PromptKind = "assertion"
)

// PromptFunc stands in for the user gesture. Returning nil approves the
// ceremony; returning ErrCancelled (or any error) aborts it. A nil PromptFunc
// approves instantly, which is what headless agents and tests want.
type PromptFunc func(ctx context.Context, kind PromptKind, rpID string) error

// SoftTokenConfig configures a SoftToken.
type SoftTokenConfig struct {
	// Origin is reported in collected client data, e.g. "https://app.medh.co".
	// Required.
	Origin string

	// Prompt simulates the user gesture. Optional; nil approves instantly.
	Prompt PromptFunc

	// AAGUID identifies the authenticator model. Optional; zero is valid
	// and expected for "none" attestation.
	AAGUID [16]byte
}

// softCredential is a discoverable credential held by the token.
type softCredential struct {
	ID         []byte
	RPID       string
	UserHandle []byte
	UserName   string
	Algorithm  webauthncose.COSEAlgorithmIdentifier
	Key        any // *ecdsa.PrivateKey or ed25519.PrivateKey
	SignCount  uint32
	CreatedAt  time.Time
}

// SoftToken is a software authenticator with resident-key storage. All
// credentials it creates are discoverable, so assertion requests without an
// allow-list (conditional / autofill ceremonies) still find them.
//
// SoftToken is safe for concurrent use. Cancel aborts in-flight prompts.
type SoftToken struct {
	origin string
	prompt PromptFunc
	aaguid [16]byte

	mu    sync.Mutex
	creds []*softCredential

	cancelMu sync.Mutex
	cancels  map[uint64]context.CancelCauseFunc
	nextID   uint64
}

// NewSoftToken creates a software authenticator for the given origin.
func NewSoftToken(cfg SoftTokenConfig) (*SoftToken, error) {
	if cfg.Origin == "" {
		return nil, fmt.Errorf("authenticator: origin is required")
	}

	return &SoftToken{
		origin:  cfg.Origin,
		prompt:  cfg.Prompt,
		aaguid:  cfg.AAGUID,
		cancels: make(map[uint64]context.CancelCauseFunc),
	}, nil
}

// Capabilities reports the software token's feature set. Everything runs in
// process, so there is no biometric hardware and no hybrid (cross-device QR)
// transport, but credentials are discoverable and treated as synced passkeys.
func (t *SoftToken) Capabilities() Capabilities {
	return Capabilities{
		WebAuthn:                           true,
		UserVerifyingPlatformAuthenticator: true,
		ConditionalMediation:               true,
		HybridTransport:                    false,
		MultiDevice:                        true,
		Biometrics:                         false,
	}
}

// Cancel aborts every in-flight prompt with ErrCancelled.
func (t *SoftToken) Cancel() {
	t.cancelMu.Lock()
	defer t.cancelMu.Unlock()
	for id, cancel := range t.cancels {
		cancel(ErrCancelled)
		delete(t.cancels, id)
	}
}

// RequestRegistration implements Authenticator.
func (t *SoftToken) RequestRegistration(ctx context.Context, opts *protocol.CredentialCreation) (*protocol.CredentialCreationResponse, error) {
	if opts == nil {
		return nil, fmt.Errorf("authenticator: creation options are required")
	}

	rpID := opts.Response.RelyingParty.ID
	if rpID == "" {
		return nil, fmt.Errorf("authenticator: relying party id is missing")
	}

	alg, err := pickAlgorithm(opts.Response.Parameters)
	if err != nil {
		return nil, err
	}

	userHandle := decodeUserHandle(opts.Response.User.ID)

	// Excluded credentials mean the RP already holds a passkey from this
	// authenticator for the user.
	t.mu.Lock()
	for _, desc := range opts.Response.CredentialExcludeList {
		for _, cred := range t.creds {
			if bytes.Equal(cred.ID, desc.CredentialID) {
				t.mu.Unlock()
				return nil, ErrCredentialExists
			}
		}
	}
	t.mu.Unlock()

	if err := t.awaitGesture(ctx, PromptRegistration, rpID, opts.Response.Timeout); err != nil {
		return nil, err
	}

	key, pub, err := generateKey(alg)
	if err != nil {
		return nil, err
	}

	credentialID, err := cryptox.GenerateBytes(32)
	if err != nil {
		return nil, fmt.Errorf("authenticator: generate credential id: %w", err)
	}

	clientDataJSON, err := buildClientDataJSON("webauthn.create", opts.Response.Challenge, t.origin)
	if err != nil {
		return nil, err
	}

	cosePublicKey, err := encodeCOSEPublicKey(pub, alg)
	if err != nil {
		return nil, err
	}

	attestedData, err := buildAttestedCredentialData(t.aaguid, credentialID, cosePublicKey)
	if err != nil {
		return nil, err
	}

	flags := flagUserPresent | flagUserVerified | flagAttestedData | flagBackupEligible | flagBackupState
	authData := buildAuthenticatorData(rpID, flags, 0, attestedData)

	attestationObject, err := encodeAttestationObject(authData)
	if err != nil {
		return nil, fmt.Errorf("authenticator: encode attestation object: %w", err)
	}

	cred := &softCredential{
		ID:         credentialID,
		RPID:       rpID,
		UserHandle: userHandle,
		UserName:   opts.Response.User.Name,
		Algorithm:  alg,
		Key:        key,
		CreatedAt:  time.Now().UTC(),
	}

	t.mu.Lock()
	t.creds = append(t.creds, cred)
	t.mu.Unlock()

	return &protocol.CredentialCreationResponse{
		PublicKeyCredential: protocol.PublicKeyCredential{
			Credential: protocol.Credential{
				ID:   base64.RawURLEncoding.EncodeToString(credentialID),
				Type: string(protocol.PublicKeyCredentialType),
			},
			RawID:                   credentialID,
			AuthenticatorAttachment: "platform",
		},
		AttestationResponse: protocol.AuthenticatorAttestationResponse{
			AuthenticatorResponse: protocol.AuthenticatorResponse{
				ClientDataJSON: clientDataJSON,
			},
			AttestationObject: attestationObject,
			Transports:        []string{"internal"},
		},
	}, nil
}

// RequestAssertion implements Authenticator.
func (t *SoftToken) RequestAssertion(ctx context.Context, opts *protocol.CredentialAssertion) (*protocol.CredentialAssertionResponse, error) {
	if opts == nil {
		return nil, fmt.Errorf("authenticator: assertion options are required")
	}

	rpID := opts.Response.RelyingPartyID
	if rpID == "" {
		return nil, fmt.Errorf("authenticator: relying party id is missing")
	}

	cred := t.selectCredential(rpID, opts.Response.AllowedCredentials)
	if cred == nil {
		return nil, ErrNoCredentials
	}

	if err := t.awaitGesture(ctx, PromptAssertion, rpID, opts.Response.Timeout); err != nil {
		return nil, err
	}

	clientDataJSON, err := buildClientDataJSON("webauthn.get", opts.Response.Challenge, t.origin)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	cred.SignCount++
	signCount := cred.SignCount
	t.mu.Unlock()

	flags := flagUserPresent | flagUserVerified | flagBackupEligible | flagBackupState
	authData := buildAuthenticatorData(rpID, flags, signCount, nil)

	clientDataHash := sha256.Sum256(clientDataJSON)
	signed := append(append([]byte{}, authData...), clientDataHash[:]...)

	signature, err := signWithCredential(cred, signed)
	if err != nil {
		return nil, err
	}

	return &protocol.CredentialAssertionResponse{
		PublicKeyCredential: protocol.PublicKeyCredential{
			Credential: protocol.Credential{
				ID:   base64.RawURLEncoding.EncodeToString(cred.ID),
				Type: string(protocol.PublicKeyCredentialType),
			},
			RawID:                   cred.ID,
			AuthenticatorAttachment: "platform",
		},
		AssertionResponse: protocol.AuthenticatorAssertionResponse{
			AuthenticatorResponse: protocol.AuthenticatorResponse{
				ClientDataJSON: clientDataJSON,
			},
			AuthenticatorData: authData,
			Signature:         signature,
			UserHandle:        cred.UserHandle,
		},
	}, nil
}

// CredentialCount reports how many resident credentials the token holds.
func (t *SoftToken) CredentialCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.creds)
}

// selectCredential picks the credential to assert with. With an allow-list the
// first match wins; without one (discoverable flow) the most recently created
// credential for the relying party is used.
func (t *SoftToken) selectCredential(rpID string, allowed []protocol.CredentialDescriptor) *softCredential {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(allowed) > 0 {
		for _, desc := range allowed {
			for _, cred := range t.creds {
				if cred.RPID == rpID && bytes.Equal(cred.ID, desc.CredentialID) {
					return cred
				}
			}
		}
		return nil
	}

	var latest *softCredential
	for _, cred := range t.creds {
		if cred.RPID != rpID {
			continue
		}
		if latest == nil || cred.CreatedAt.After(latest.CreatedAt) {
			latest = cred
		}
	}
	return latest
}

// awaitGesture runs the prompt hook under the ceremony's timeout and the
// token's cancellation. It maps outcomes onto the platform sentinels.
func (t *SoftToken) awaitGesture(ctx context.Context, kind PromptKind, rpID string, timeoutMS int) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	if timeoutMS > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, time.Duration(timeoutMS)*time.Millisecond)
		defer cancelTimeout()
	}

	id := t.registerCancel(cancel)
	defer t.unregisterCancel(id)

	done := make(chan error, 1)
	go func() {
		if t.prompt == nil {
			done <- nil
			return
		}
		done <- t.prompt(ctx, kind, rpID)
	}()

	select {
	case err := <-done:
		if err != nil {
			switch {
			case errors.Is(err, ErrCancelled), errors.Is(err, ErrTimeout):
				return err
			case errors.Is(err, context.DeadlineExceeded):
				return ErrTimeout
			case errors.Is(err, context.Canceled):
				if ctxErr := classifyContextErr(ctx); ctxErr != nil {
					return ctxErr
				}
				return ErrCancelled
			default:
				// Anything else from the prompt hook means the gesture was
				// denied; treat it as a user dismissal.
				return fmt.Errorf("%w: %v", ErrCancelled, err)
			}
		}
		// The prompt may have raced with cancellation.
		if ctxErr := classifyContextErr(ctx); ctxErr != nil {
			return ctxErr
		}
		return nil
	case <-ctx.Done():
		return classifyContextErr(ctx)
	}
}

func classifyContextErr(ctx context.Context) error {
	switch cause := context.Cause(ctx); {
	case cause == nil:
		return nil
	case errors.Is(cause, ErrCancelled):
		return ErrCancelled
	case errors.Is(cause, context.DeadlineExceeded):
		return ErrTimeout
	case errors.Is(cause, context.Canceled):
		return ErrCancelled
	default:
		return cause
	}
}

func (t *SoftToken) registerCancel(cancel context.CancelCauseFunc) uint64 {
	t.cancelMu.Lock()
	defer t.cancelMu.Unlock()
	t.nextID++
	id := t.nextID
	t.cancels[id] = cancel
	return id
}

func (t *SoftToken) unregisterCancel(id uint64) {
	t.cancelMu.Lock()
	defer t.cancelMu.Unlock()
	delete(t.cancels, id)
}

// pickAlgorithm chooses the first relying-party requested algorithm the token
// supports. An empty parameter list defaults to ES256 per the WebAuthn spec's
// recommendation for clients.
func pickAlgorithm(params []protocol.CredentialParameter) (webauthncose.COSEAlgorithmIdentifier, error) {
	if len(params) == 0 {
		return webauthncose.AlgES256, nil
	}

	for _, p := range params {
		switch p.Algorithm {
		case webauthncose.AlgES256, webauthncose.AlgEdDSA:
			return p.Algorithm, nil
		}
	}
	return 0, ErrUnsupportedAlgorithm
}

func generateKey(alg webauthncose.COSEAlgorithmIdentifier) (key any, pub any, err error) {
	switch alg {
	case webauthncose.AlgES256:
		ecKey, err := cryptox.GenerateES256Key()
		if err != nil {
			return nil, nil, err
		}
		return ecKey, &ecKey.PublicKey, nil
	case webauthncose.AlgEdDSA:
		edKey, err := cryptox.GenerateEd25519Key()
		if err != nil {
			return nil, nil, err
		}
		return edKey, edKey.Public().(ed25519.PublicKey), nil
	default:
		return nil, nil, ErrUnsupportedAlgorithm
	}
}

func signWithCredential(cred *softCredential, data []byte) ([]byte, error) {
	switch key := cred.Key.(type) {
	case *ecdsa.PrivateKey:
		return cryptox.SignES256(key, data)
	case ed25519.PrivateKey:
		return cryptox.SignEd25519(key, data)
	default:
		return nil, fmt.Errorf("authenticator: unsupported credential key type %T", cred.Key)
	}
}
