// Package authenticator abstracts the platform credential API the passkey SDK
// drives. The real cryptographic ceremony work happens behind the
// Authenticator interface; the SDK only orchestrates challenges and responses.
//
// SoftToken is the bundled implementation: a software authenticator holding
// discoverable credentials in process, good enough for headless agents, CI and
// tests. Hardware or OS keystore backed implementations satisfy the same
// interface.
package authenticator

import (
	"context"
	"errors"

	"github.com/go-webauthn/webauthn/protocol"
)

// Platform-level failures. The SDK maps these into its caller-facing error
// taxonomy at the orchestrator boundary; they never reach UI code raw.
var (
	// ErrCancelled reports that the user dismissed the prompt or the
	// ceremony was cancelled before the gesture completed.
	ErrCancelled = errors.New("authenticator: ceremony cancelled")

	// ErrTimeout reports that the ceremony did not complete within the
	// window requested by the relying party.
	ErrTimeout = errors.New("authenticator: ceremony timed out")

	// ErrNoCredentials reports that the authenticator holds no credential
	// matching the assertion request.
	ErrNoCredentials = errors.New("authenticator: no matching credentials")

	// ErrUnsupportedAlgorithm reports that none of the relying party's
	// requested algorithms are supported.
	ErrUnsupportedAlgorithm = errors.New("authenticator: no supported algorithm")
)

// Capabilities is an immutable snapshot of what an authenticator (or the
// runtime as a whole) can do. Compute on demand, never mutate.
type Capabilities struct {
	WebAuthn                           bool `json:"webauthn"`
	UserVerifyingPlatformAuthenticator bool `json:"userVerifyingPlatformAuthenticator"`
	ConditionalMediation               bool `json:"conditionalMediation"`
	HybridTransport                    bool `json:"hybridTransport"`
	MultiDevice                        bool `json:"multiDevice"`
	Biometrics                         bool `json:"biometrics"`
}

// Authenticator is the platform credential provider the SDK binds to.
//
// RequestRegistration and RequestAssertion block until the user gesture
// resolves, the context is cancelled, or the relying party timeout elapses.
// Both honour context cancellation and return ErrCancelled / ErrTimeout
// accordingly. Cancel aborts any in-flight prompt from another goroutine.
type Authenticator interface {
	// Capabilities reports what this authenticator supports.
	Capabilities() Capabilities

	// RequestRegistration creates a new credential for the relying party
	// described in the creation options and returns the signed attestation.
	RequestRegistration(ctx context.Context, opts *protocol.CredentialCreation) (*protocol.CredentialCreationResponse, error)

	// RequestAssertion proves possession of an existing credential matching
	// the request options and returns the signed assertion.
	RequestAssertion(ctx context.Context, opts *protocol.CredentialAssertion) (*protocol.CredentialAssertionResponse, error)

	// Cancel aborts any in-flight prompt. Safe to call concurrently and
	// when nothing is pending.
	Cancel()
}

// DetectCapabilities probes the given authenticators and merges their
// capability snapshots. It never fails: a nil or panicking authenticator
// simply contributes nothing, leaving the affected flags false. With no
// authenticators every flag is false, which callers read as "WebAuthn
// unavailable".
func DetectCapabilities(auths ...Authenticator) Capabilities {
	var merged Capabilities
	for _, a := range auths {
		caps := probe(a)
		merged.WebAuthn = merged.WebAuthn || caps.WebAuthn
		merged.UserVerifyingPlatformAuthenticator = merged.UserVerifyingPlatformAuthenticator || caps.UserVerifyingPlatformAuthenticator
		merged.ConditionalMediation = merged.ConditionalMediation || caps.ConditionalMediation
		merged.HybridTransport = merged.HybridTransport || caps.HybridTransport
		merged.MultiDevice = merged.MultiDevice || caps.MultiDevice
		merged.Biometrics = merged.Biometrics || caps.Biometrics
	}
	return merged
}

// probe isolates a single authenticator's Capabilities call so a misbehaving
// implementation degrades its own flags instead of failing detection.
func probe(a Authenticator) (caps Capabilities) {
	if a == nil {
		return Capabilities{}
	}
	defer func() {
		if r := recover(); r != nil {
			caps = Capabilities{}
		}
	}()
	return a.Capabilities()
}
