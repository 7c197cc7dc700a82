/*
Package passkeysdk provides a client SDK for passkey sign-in against the
Medh platform API.

# Overview

The package drives the two WebAuthn ceremonies (registration and
authentication) end to end: it fetches a challenge from the server, hands it
to a platform authenticator, and posts the signed response back for
verification. Callers never touch raw WebAuthn payloads or platform errors;
every failure surfaces as a *CeremonyError with a stable kind and a short,
user-presentable message.

# Client, Orchestrator and Inventory

The package is organized around three types:

  - Client: the raw API client (base URL, bearer token source, transport)
  - Orchestrator: runs ceremonies over a Client and an authenticator
  - Inventory: manages the signed-in user's registered passkeys

Create a Client, then an Orchestrator over it:

	client := passkeysdk.NewClient("https://api.medh.co/api/v1/auth")
	orch := passkeysdk.NewOrchestrator(client, auth)

	// Register a new passkey (requires an authenticated client).
	result, err := orch.Register(ctx, "Work laptop")

	// Explicit passkey sign-in.
	result, err := orch.Authenticate(ctx, "student@medh.co")

Conditional sign-in attaches a pending ceremony that resolves when the user
picks a credential from an autofill-style surface:

	handle, err := orch.AuthenticateConditional(ctx, "")
	if err == nil {
		out := <-handle.Outcome()
		// out.Result or out.Err, exactly one delivery
	}

# Single ceremony at a time

An Orchestrator holds at most one ceremony in flight. Starting a new one
cancels the pending one, and a response arriving for a superseded attempt is
discarded rather than applied. The pending ceremony always resolves as
user-cancelled, never as a stray success.

# Step-up verification

When the server flags RequiresAdditionalVerification on an AuthResult, full
tokens are withheld until a second factor is confirmed:

	if result.RequiresAdditionalVerification {
		result, err = orch.CompleteStepUp(ctx, result.VerificationToken, "totp", code)
	}

# Inventory management

Inventory calls require an authenticated Client (set AuthToken):

	inv := passkeysdk.NewInventory(client)
	passkeys, err := inv.List(ctx)
	_, err = inv.Rename(ctx, id, "Personal phone")
	err = inv.Revoke(ctx, id)

A failed List never masquerades as an empty inventory, and Rename validates
the label locally before any request goes out.

# Error handling

All errors are *CeremonyError. Branch on the kind, or use the helpers:

	var ce *passkeysdk.CeremonyError
	if errors.As(err, &ce) {
		if ce.Retryable() {
			// offer a retry button
		}
		if !ce.Alarming() {
			// cancellation or timeout: stay quiet
		}
	}
*/
package passkeysdk
