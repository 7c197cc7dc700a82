// Package jwtx holds the access-token claim shapes the Medh backend issues
// and helpers to read them client-side.
package jwtx

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the access-token claims issued by the Medh backend. We keep
// changes additive to preserve compatibility with older tokens.
type Claims struct {
	jwt.RegisteredClaims

	/* Cross-service custom fields */

	// Role is the user's platform role ("student", "instructor", ...).
	Role string `json:"role,omitempty"`

	// Email for the authenticated user
	Email string `json:"email,omitempty"`

	// FullName is the display name for the user
	FullName string `json:"full_name,omitempty"`

	// Authentication Methods Reference ["passkey","otp"]
	//		"passkey": WebAuthn assertion
	//		"otp": One-time password step-up
	// Mainly for debugging but lets callers require step-up for admin tasks.
	AMR []string `json:"amr,omitempty"`
}

// DecodeUnverified decodes the claims of a JWT without verifying its
// signature. The client holds no relying-party keys; the token was just
// handed to us over TLS by the issuer, so we only read claims from it,
// we never make trust decisions based on them.
func DecodeUnverified(token string) (*Claims, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("jwtx: empty token")
	}

	claims := &Claims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("jwtx: failed to decode token: %w", err)
	}

	return claims, nil
}
