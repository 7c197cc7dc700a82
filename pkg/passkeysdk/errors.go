package passkeysdk

import (
	"context"
	"errors"
	"fmt"

	"github.com/medhcloud/passkey/pkg/authenticator"
)

// ============================================================================
// Error kinds
// ============================================================================

// ErrorKind classifies every failure the SDK surfaces. UI layers branch on
// the kind to decide whether to alarm the user or quietly offer a retry;
// they never see raw platform or transport errors.
type ErrorKind string

const (
	// KindNotSupported: the runtime lacks WebAuthn entirely. Never retry.
	KindNotSupported ErrorKind = "not_supported"

	// KindUserCancelled: the user dismissed the prompt or the ceremony was
	// superseded. Safe to retry, never alarming.
	KindUserCancelled ErrorKind = "user_cancelled"

	// KindTimeout: the ceremony did not complete within the platform
	// window. Safe to retry.
	KindTimeout ErrorKind = "timeout"

	// KindServerRejected: the backend refused the challenge or assertion.
	// Surface the message; do not retry automatically.
	KindServerRejected ErrorKind = "server_rejected"

	// KindNetworkError: transient transport failure. Caller may retry.
	KindNetworkError ErrorKind = "network_error"

	// KindInvalidLabel: a passkey label failed local validation. No network
	// call was made.
	KindInvalidLabel ErrorKind = "invalid_label"
)

// ============================================================================
// CeremonyError
// ============================================================================

// CeremonyError is the single error type the SDK returns. Message is short
// and user-presentable; the wrapped cause carries technical detail for logs.
type CeremonyError struct {
	Kind    ErrorKind
	Message string

	cause error
}

// Error implements the error interface.
func (e *CeremonyError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the technical cause for errors.Is/As chains.
func (e *CeremonyError) Unwrap() error { return e.cause }

// Retryable reports whether the caller may simply try again.
func (e *CeremonyError) Retryable() bool {
	switch e.Kind {
	case KindUserCancelled, KindTimeout, KindNetworkError:
		return true
	default:
		return false
	}
}

// Alarming reports whether the failure should be presented as an error.
// Cancellations and timeouts are part of normal passkey UX and stay quiet.
func (e *CeremonyError) Alarming() bool {
	switch e.Kind {
	case KindUserCancelled, KindTimeout:
		return false
	default:
		return true
	}
}

// KindOf extracts the kind from any error returned by this package.
// It returns the empty string for foreign errors.
func KindOf(err error) ErrorKind {
	var ce *CeremonyError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

// ============================================================================
// Constructors and boundary mapping
// ============================================================================

func newError(kind ErrorKind, message string, cause error) *CeremonyError {
	return &CeremonyError{Kind: kind, Message: message, cause: cause}
}

func errNotSupported() *CeremonyError {
	return newError(KindNotSupported, "passkeys are not supported on this device", nil)
}

func errInvalidLabel(label string) *CeremonyError {
	return newError(KindInvalidLabel, "passkey name cannot be empty", fmt.Errorf("rejected label %q", label))
}

func errServerRejected(message string, cause error) *CeremonyError {
	if message == "" {
		message = "the server rejected the request"
	}
	return newError(KindServerRejected, message, cause)
}

// mapAuthenticatorErr converts platform-level sentinels into the caller
// taxonomy. This is the only place authenticator errors cross the boundary.
func mapAuthenticatorErr(err error) *CeremonyError {
	switch {
	case errors.Is(err, authenticator.ErrCancelled):
		return newError(KindUserCancelled, "sign-in was cancelled", err)
	case errors.Is(err, authenticator.ErrTimeout):
		return newError(KindTimeout, "the passkey prompt timed out", err)
	case errors.Is(err, authenticator.ErrNoCredentials):
		return newError(KindUserCancelled, "no passkey available on this device", err)
	case errors.Is(err, authenticator.ErrCredentialExists):
		return newError(KindUserCancelled, "a passkey is already registered on this device", err)
	case errors.Is(err, authenticator.ErrUnsupportedAlgorithm):
		return newError(KindNotSupported, "this device cannot create the requested passkey type", err)
	case errors.Is(err, context.DeadlineExceeded):
		return newError(KindTimeout, "the passkey prompt timed out", err)
	case errors.Is(err, context.Canceled):
		return newError(KindUserCancelled, "sign-in was cancelled", err)
	default:
		return newError(KindNotSupported, "the passkey operation failed on this device", err)
	}
}

// mapTransportErr converts HTTP transport failures. Context cancellation
// during a network hop means the ceremony itself was abandoned.
func mapTransportErr(err error) *CeremonyError {
	switch {
	case errors.Is(err, context.Canceled):
		return newError(KindUserCancelled, "sign-in was cancelled", err)
	case errors.Is(err, context.DeadlineExceeded):
		return newError(KindTimeout, "the server took too long to respond", err)
	default:
		return newError(KindNetworkError, "could not reach the server", err)
	}
}
