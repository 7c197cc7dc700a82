package sessionstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/medhcloud/passkey/pkg/jwtx"
	"github.com/medhcloud/passkey/pkg/passkeysdk"
)

// Session is the materialized outcome of a successful ceremony: everything
// the app needs to act on the signed-in user without going back to the
// server.
type Session struct {
	UserID   string `json:"userId"`
	Email    string `json:"email"`
	FullName string `json:"fullName,omitempty"`
	Role     string `json:"role"`

	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`

	// LandingPath is where the UI sends the user after sign-in, resolved
	// from the role.
	LandingPath string `json:"landingPath"`

	IsTrustedDevice bool `json:"isTrustedDevice"`
}

// DefaultRole is assumed when neither the auth result nor the access token
// carries a usable role.
const DefaultRole = "student"

// DefaultLandingPaths maps roles to their post-login dashboards. The empty
// key is the fallback for unknown roles, so lookup is total.
var DefaultLandingPaths = map[string]string{
	"admin":       "/dashboards/admin",
	"super-admin": "/dashboards/admin",
	"instructor":  "/dashboards/instructor",
	"student":     "/dashboards/student",
	"parent":      "/dashboards/parent",
	"corporate":   "/dashboards/corporate",
	"":            "/dashboards/student",
}

// Materializer turns ceremony results into persisted sessions. Materializing
// the same result again overwrites with identical contents, so retries after
// a partial failure are safe.
type Materializer struct {
	store Store

	// LandingPaths overrides DefaultLandingPaths when non-nil.
	LandingPaths map[string]string
}

// NewMaterializer creates a materializer persisting into store.
func NewMaterializer(store Store) *Materializer {
	return &Materializer{store: store}
}

// Materialize converts a successful auth result into a Session and persists
// it. Results that carry no tokens (a failed ceremony, or one paused for
// step-up verification) are rejected; partial sessions are never stored.
func (m *Materializer) Materialize(result *passkeysdk.AuthResult) (*Session, error) {
	if result == nil || !result.Success {
		return nil, fmt.Errorf("sessionstore: cannot materialize a failed result")
	}
	if result.RequiresAdditionalVerification {
		return nil, fmt.Errorf("sessionstore: result is pending step-up verification")
	}
	if result.Tokens == nil || result.Tokens.AccessToken == "" {
		return nil, fmt.Errorf("sessionstore: result carries no tokens")
	}

	session := &Session{
		AccessToken:     result.Tokens.AccessToken,
		RefreshToken:    result.Tokens.RefreshToken,
		ExpiresAt:       expiry(result.Tokens),
		IsTrustedDevice: result.IsTrustedDevice,
	}

	if result.User != nil {
		session.UserID = result.User.ID
		session.Email = result.User.Email
		session.FullName = result.User.FullName
		session.Role = result.User.Role
	}

	// The access token often carries identity the result body omits.
	// Decode failures never block materialization.
	expFromToken := false
	if claims, err := jwtx.DecodeUnverified(result.Tokens.AccessToken); err == nil {
		if session.UserID == "" {
			session.UserID = claims.Subject
		}
		if session.Email == "" {
			session.Email = claims.Email
		}
		if session.FullName == "" {
			session.FullName = claims.FullName
		}
		if session.Role == "" {
			session.Role = claims.Role
		}
		if claims.ExpiresAt != nil {
			session.ExpiresAt = claims.ExpiresAt.Time
			expFromToken = true
		}
	}

	// expiresIn is relative to receipt, so without a decodable exp claim a
	// repeat materialization would restart the clock. Keeping the stored
	// deadline for the same token makes the operation idempotent.
	if !expFromToken {
		if prev, err := m.Current(); err == nil && prev.AccessToken == session.AccessToken {
			session.ExpiresAt = prev.ExpiresAt
		}
	}

	if session.Role == "" {
		session.Role = DefaultRole
	}
	session.LandingPath = m.landingPath(session.Role)

	payload, err := json.Marshal(session)
	if err != nil {
		return nil, fmt.Errorf("sessionstore: encode session: %w", err)
	}
	if err := m.store.Set(KeySession, payload); err != nil {
		return nil, fmt.Errorf("sessionstore: persist session: %w", err)
	}
	return session, nil
}

// Current loads the persisted session. ErrNotFound means signed out.
func (m *Materializer) Current() (*Session, error) {
	payload, err := m.store.Get(KeySession)
	if err != nil {
		return nil, err
	}

	var session Session
	if err := json.Unmarshal(payload, &session); err != nil {
		return nil, fmt.Errorf("sessionstore: decode session: %w", err)
	}
	return &session, nil
}

// Clear removes the persisted session. Clearing an absent session is a
// no-op.
func (m *Materializer) Clear() error {
	return m.store.Delete(KeySession)
}

func (m *Materializer) landingPath(role string) string {
	paths := m.LandingPaths
	if paths == nil {
		paths = DefaultLandingPaths
	}
	if path, ok := paths[role]; ok {
		return path
	}
	return paths[""]
}

func expiry(tokens *passkeysdk.TokenPair) time.Time {
	if tokens.ExpiresIn > 0 {
		return time.Now().Add(time.Duration(tokens.ExpiresIn) * time.Second).UTC()
	}
	return time.Time{}
}
