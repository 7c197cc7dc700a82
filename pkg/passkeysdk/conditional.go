package passkeysdk

import (
	"context"
	"sync"

	"github.com/medhcloud/passkey/pkg/authenticator"
)

// ConditionalOutcome is the single result a conditional ceremony delivers.
type ConditionalOutcome struct {
	Result *AuthResult
	Err    error
}

// ConditionalHandle represents an attached conditional (autofill-style)
// authentication ceremony: the authenticator offers matching credentials
// opportunistically rather than behind an explicit button press.
//
// Exactly one outcome is ever delivered, including after Cancel. Dropping the
// handle without reading the outcome is safe; delivery never blocks.
type ConditionalHandle struct {
	outcome chan ConditionalOutcome
	once    sync.Once
	cancel  func()
}

// Outcome returns the channel the ceremony's single outcome arrives on.
func (h *ConditionalHandle) Outcome() <-chan ConditionalOutcome {
	return h.outcome
}

// Cancel detaches the conditional ceremony: the platform prompt is withdrawn
// and the outcome resolves as user-cancelled. Call it when the user switches
// to another sign-in method or the hosting surface goes away. Safe to call
// more than once.
func (h *ConditionalHandle) Cancel() {
	h.cancel()
}

func (h *ConditionalHandle) deliver(out ConditionalOutcome) {
	h.once.Do(func() {
		h.outcome <- out
	})
}

// AuthenticateConditional attaches a conditional authentication ceremony.
// It fails fast with KindNotSupported when the authenticator cannot offer
// conditional mediation. The ceremony obeys the same single-flight rule as
// the explicit methods: starting any other ceremony cancels it first.
func (o *Orchestrator) AuthenticateConditional(ctx context.Context, identifier string) (*ConditionalHandle, error) {
	caps := authenticator.DetectCapabilities(o.auth)
	if !caps.WebAuthn {
		return nil, errNotSupported()
	}
	if !caps.ConditionalMediation {
		return nil, newError(KindNotSupported, "this device cannot offer passkeys automatically", nil)
	}

	attempt, cctx, finish := o.begin(ctx)

	handle := &ConditionalHandle{
		outcome: make(chan ConditionalOutcome, 1),
	}
	handle.cancel = func() {
		o.mu.Lock()
		if o.attempt == attempt && o.cancelPending != nil {
			o.cancelPending(authenticator.ErrCancelled)
			o.cancelPending = nil
		}
		o.mu.Unlock()
	}

	go func() {
		defer finish()

		result, err := o.authenticate(cctx, attempt, identifier)
		if err != nil {
			handle.deliver(ConditionalOutcome{Err: err})
			return
		}
		handle.deliver(ConditionalOutcome{Result: result})
	}()

	return handle, nil
}
