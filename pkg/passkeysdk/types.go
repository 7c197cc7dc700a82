package passkeysdk

import (
	"time"

	"github.com/go-webauthn/webauthn/protocol"
)

// ============================================================================
// Server-owned records
// ============================================================================

// Credential is a server-owned passkey record. The client never caches these
// beyond the current view; they are fetched fresh and discarded.
type Credential struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	DeviceType string   `json:"deviceType"`
	Transports []string `json:"transports,omitempty"`

	// Counter is the authenticator's signature counter, used server-side
	// for clone detection. Reported here for display only.
	Counter uint32 `json:"counter"`

	BackedUp    bool `json:"backedUp"`
	MultiDevice bool `json:"multiDevice"`

	UsageCount       int        `json:"usageCount"`
	LastUsedAt       *time.Time `json:"lastUsedAt,omitempty"`
	LastUsedIP       string     `json:"lastUsedIP,omitempty"`
	LastUsedLocation string     `json:"lastUsedLocation,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// User is the minimal identity returned from a successful ceremony.
type User struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"fullName,omitempty"`
	Role     string `json:"role,omitempty"`
}

// TokenPair is the issued access/refresh token pair.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`

	// ExpiresIn is the access token lifetime in seconds.
	ExpiresIn int `json:"expiresIn"`
}

// AuthResult is the uniform outcome of a completed ceremony.
type AuthResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`

	User   *User      `json:"user,omitempty"`
	Tokens *TokenPair `json:"tokens,omitempty"`

	// Passkey is set for registration ceremonies: the record the server
	// just created.
	Passkey *Credential `json:"passkey,omitempty"`

	// Device-trust flags reported by the server.
	IsNewDevice     bool `json:"isNewDevice"`
	IsTrustedDevice bool `json:"isTrustedDevice"`

	// RequiresAdditionalVerification is set when the server wants a
	// step-up (e.g. TOTP) before issuing full tokens. VerificationToken
	// and VerificationMethods describe the pending step.
	RequiresAdditionalVerification bool     `json:"requiresAdditionalVerification"`
	VerificationToken              string   `json:"verificationToken,omitempty"`
	VerificationMethods            []string `json:"verificationMethods,omitempty"`
}

// ============================================================================
// Wire payloads
// ============================================================================

type registerChallengeRequest struct {
	Name string `json:"name,omitempty"`
}

type registerChallengeData struct {
	SessionID string                      `json:"sessionId"`
	Options   protocol.CredentialCreation `json:"options"`
}

type registerVerifyRequest struct {
	SessionID  string                              `json:"sessionId"`
	Name       string                              `json:"name,omitempty"`
	Credential *protocol.CredentialCreationResponse `json:"credential"`
}

type registerVerifyData struct {
	Passkey Credential `json:"passkey"`
}

type authenticateChallengeRequest struct {
	// Identifier optionally scopes the challenge (email or user ID).
	// Empty means a discoverable-credential challenge.
	Identifier string `json:"identifier,omitempty"`
}

type authenticateChallengeData struct {
	SessionID string                       `json:"sessionId"`
	Options   protocol.CredentialAssertion `json:"options"`
}

type authenticateVerifyRequest struct {
	SessionID  string                                `json:"sessionId"`
	Credential *protocol.CredentialAssertionResponse `json:"credential"`
}

type listData struct {
	Passkeys []Credential `json:"passkeys"`
}

type renameRequest struct {
	Name string `json:"name"`
}

type renameData struct {
	Passkey Credential `json:"passkey"`
}

type stepUpVerifyRequest struct {
	VerificationToken string `json:"verificationToken"`
	Method            string `json:"method"`
	Code              string `json:"code"`
}
