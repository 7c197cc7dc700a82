package passkeysdk

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/medhcloud/passkey/pkg/authenticator"
	"github.com/medhcloud/passkey/pkg/idx"
	"github.com/medhcloud/passkey/pkg/slogx"
)

// State is the orchestrator's position in the current ceremony.
type State string

const (
	StateIdle                State = "idle"
	StateRequestingChallenge State = "requesting_challenge"
	StateAwaitingUserGesture State = "awaiting_user_gesture"
	StateVerifyingWithServer State = "verifying_with_server"
	StateSucceeded           State = "succeeded"
	StateFailed              State = "failed"
)

// Orchestrator drives passkey ceremonies: it fetches server challenges,
// invokes the platform authenticator, and forwards signed responses back for
// verification.
//
// Only one ceremony may be in flight per Orchestrator. Starting a new one
// first cancels the pending one, and a response from a superseded attempt is
// never applied. All methods are safe for concurrent use.
type Orchestrator struct {
	client *Client
	auth   authenticator.Authenticator

	// OnStateChange, when set, is invoked synchronously on every state
	// transition. Intended for UI progress display.
	OnStateChange func(State)

	mu            sync.Mutex
	state         State
	attempt       uint64
	cancelPending context.CancelCauseFunc
}

// NewOrchestrator creates a ceremony orchestrator over the given API client
// and authenticator.
func NewOrchestrator(client *Client, auth authenticator.Authenticator) *Orchestrator {
	return &Orchestrator{
		client: client,
		auth:   auth,
		state:  StateIdle,
	}
}

// State returns the orchestrator's current ceremony state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// CancelPending aborts any in-flight ceremony. The pending ceremony resolves
// with a user-cancelled result; calling this with nothing pending is a no-op.
func (o *Orchestrator) CancelPending() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancelPending != nil {
		o.cancelPending(authenticator.ErrCancelled)
		o.cancelPending = nil
	}
}

// Register runs a registration ceremony. label names the new passkey; when
// blank, a generated name is used so the inventory can always distinguish
// credentials. The returned AuthResult carries the created record.
func (o *Orchestrator) Register(ctx context.Context, label string) (*AuthResult, error) {
	if err := o.checkSupport(); err != nil {
		return nil, err
	}

	label = strings.TrimSpace(label)
	if label == "" {
		label = generatedLabel()
	}

	attempt, cctx, finish := o.begin(ctx)
	defer finish()

	logger := slogx.FromContext(cctx).With("ceremony", "registration")

	o.setState(attempt, StateRequestingChallenge)
	var challenge registerChallengeData
	if _, err := o.client.doJSON(cctx, http.MethodPost, "/passkey/register/challenge", registerChallengeRequest{Name: label}, &challenge); err != nil {
		return nil, o.fail(logger, attempt, err)
	}

	o.setState(attempt, StateAwaitingUserGesture)
	credential, err := o.auth.RequestRegistration(cctx, &challenge.Options)
	if err != nil {
		return nil, o.fail(logger, attempt, mapAuthenticatorErr(err))
	}

	o.setState(attempt, StateVerifyingWithServer)
	var verified registerVerifyData
	message, err := o.client.doJSON(cctx, http.MethodPost, "/passkey/register/verify", registerVerifyRequest{
		SessionID:  challenge.SessionID,
		Name:       label,
		Credential: credential,
	}, &verified)
	if err != nil {
		return nil, o.fail(logger, attempt, err)
	}

	if !o.isCurrent(attempt) {
		// A newer ceremony superseded us while the verify response was in
		// flight; its outcome wins, ours is discarded.
		return nil, o.fail(logger, attempt, newError(KindUserCancelled, "sign-in was cancelled", errSuperseded))
	}

	o.setState(attempt, StateSucceeded)
	logger.Info("passkey_registered", "passkey_id", verified.Passkey.ID)
	return &AuthResult{
		Success: true,
		Message: message,
		Passkey: &verified.Passkey,
	}, nil
}

// Authenticate runs an explicit authentication ceremony. identifier optionally
// scopes the challenge to an account (email or user ID); leave it empty for a
// discoverable-credential sign-in.
func (o *Orchestrator) Authenticate(ctx context.Context, identifier string) (*AuthResult, error) {
	if err := o.checkSupport(); err != nil {
		return nil, err
	}

	attempt, cctx, finish := o.begin(ctx)
	defer finish()

	return o.authenticate(cctx, attempt, identifier)
}

// CompleteStepUp finishes an authentication the server paused for additional
// verification, submitting a one-time code for the given method.
func (o *Orchestrator) CompleteStepUp(ctx context.Context, verificationToken, method, code string) (*AuthResult, error) {
	result := &AuthResult{}
	message, err := o.client.doJSON(ctx, http.MethodPost, "/passkey/authenticate/step-up", stepUpVerifyRequest{
		VerificationToken: verificationToken,
		Method:            method,
		Code:              code,
	}, result)
	if err != nil {
		return nil, err
	}

	result.Success = true
	result.Message = message
	return result, nil
}

// authenticate is the shared path behind Authenticate and conditional mode.
// The caller owns begin/finish; cctx is already bound to the attempt.
func (o *Orchestrator) authenticate(cctx context.Context, attempt uint64, identifier string) (*AuthResult, error) {
	logger := slogx.FromContext(cctx).With("ceremony", "authentication")

	o.setState(attempt, StateRequestingChallenge)
	var challenge authenticateChallengeData
	if _, err := o.client.doJSON(cctx, http.MethodPost, "/passkey/authenticate/challenge", authenticateChallengeRequest{Identifier: identifier}, &challenge); err != nil {
		return nil, o.fail(logger, attempt, err)
	}

	o.setState(attempt, StateAwaitingUserGesture)
	credential, err := o.auth.RequestAssertion(cctx, &challenge.Options)
	if err != nil {
		return nil, o.fail(logger, attempt, mapAuthenticatorErr(err))
	}

	o.setState(attempt, StateVerifyingWithServer)
	result := &AuthResult{}
	message, err := o.client.doJSON(cctx, http.MethodPost, "/passkey/authenticate/verify", authenticateVerifyRequest{
		SessionID:  challenge.SessionID,
		Credential: credential,
	}, result)
	if err != nil {
		return nil, o.fail(logger, attempt, err)
	}

	if !o.isCurrent(attempt) {
		return nil, o.fail(logger, attempt, newError(KindUserCancelled, "sign-in was cancelled", errSuperseded))
	}

	o.setState(attempt, StateSucceeded)
	result.Success = true
	result.Message = message
	logger.Info("passkey_authenticated",
		"new_device", result.IsNewDevice,
		"step_up_required", result.RequiresAdditionalVerification,
	)
	return result, nil
}

// errSuperseded marks a result discarded because a newer ceremony took over.
var errSuperseded = fmt.Errorf("ceremony superseded by a newer attempt")

// checkSupport gates every ceremony on basic WebAuthn availability.
func (o *Orchestrator) checkSupport() error {
	caps := authenticator.DetectCapabilities(o.auth)
	if !caps.WebAuthn {
		return errNotSupported()
	}
	return nil
}

// begin claims the single ceremony slot: any pending ceremony is cancelled,
// the attempt counter is bumped, and a context bound to the new attempt is
// returned along with its release func.
func (o *Orchestrator) begin(ctx context.Context) (uint64, context.Context, func()) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.cancelPending != nil {
		o.cancelPending(authenticator.ErrCancelled)
	}

	o.attempt++
	attempt := o.attempt

	cctx, cancel := context.WithCancelCause(ctx)
	o.cancelPending = cancel
	cctx = slogx.WithAttempt(cctx, idx.New().String())

	finish := func() {
		o.mu.Lock()
		if o.attempt == attempt {
			o.cancelPending = nil
		}
		o.mu.Unlock()
		cancel(nil)
	}
	return attempt, cctx, finish
}

// isCurrent reports whether attempt is still the newest ceremony.
func (o *Orchestrator) isCurrent(attempt uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.attempt == attempt
}

// setState records a transition on behalf of attempt. Transitions from a
// superseded attempt are dropped, so a ceremony that resolves late can never
// overwrite the state (or fire OnStateChange) for the ceremony that replaced
// it.
func (o *Orchestrator) setState(attempt uint64, s State) {
	o.mu.Lock()
	if o.attempt != attempt {
		o.mu.Unlock()
		return
	}
	o.state = s
	hook := o.OnStateChange
	o.mu.Unlock()

	if hook != nil {
		hook(s)
	}
}

// fail moves the machine to Failed and logs the technical detail. err is
// already a *CeremonyError by the time it gets here.
func (o *Orchestrator) fail(logger *slog.Logger, attempt uint64, err error) error {
	o.setState(attempt, StateFailed)
	logger.Debug("ceremony_failed", "kind", string(KindOf(err)), "error", err)
	return err
}

// generatedLabel names a passkey when the user supplies no label.
func generatedLabel() string {
	return "passkey-" + strings.ToLower(idx.New().String())
}
