package jwtx_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/medhcloud/passkey/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, claims jwtx.Claims) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

func TestDecodeUnverified(t *testing.T) {
	t.Parallel()

	token := signedToken(t, jwtx.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user_123",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role:     "instructor",
		Email:    "teacher@medh.co",
		FullName: "Test Instructor",
		AMR:      []string{"passkey"},
	})

	claims, err := jwtx.DecodeUnverified(token)
	require.NoError(t, err)
	require.Equal(t, "user_123", claims.Subject)
	require.Equal(t, "instructor", claims.Role)
	require.Equal(t, "teacher@medh.co", claims.Email)
	require.Equal(t, []string{"passkey"}, claims.AMR)
}

func TestDecodeUnverifiedIgnoresSignature(t *testing.T) {
	t.Parallel()

	token := signedToken(t, jwtx.Claims{Role: "student"})

	// Corrupt the signature segment; decode should still succeed because we
	// only read claims, we never verify.
	tampered := token[:len(token)-4] + "AAAA"
	claims, err := jwtx.DecodeUnverified(tampered)
	require.NoError(t, err)
	require.Equal(t, "student", claims.Role)
}

func TestDecodeUnverifiedRejectsMalformed(t *testing.T) {
	t.Parallel()

	_, err := jwtx.DecodeUnverified("")
	require.Error(t, err)

	_, err = jwtx.DecodeUnverified("not.a.jwt!!!")
	require.Error(t, err)

	_, err = jwtx.DecodeUnverified("only-one-segment")
	require.Error(t, err)
}
