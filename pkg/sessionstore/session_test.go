package sessionstore

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/medhcloud/passkey/pkg/jwtx"
	"github.com/medhcloud/passkey/pkg/passkeysdk"
)

func signedToken(t *testing.T, claims jwtx.Claims) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

func successResult(t *testing.T, role string) *passkeysdk.AuthResult {
	t.Helper()

	access := signedToken(t, jwtx.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user_1",
			ExpiresAt: jwt.NewNumericDate(time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)),
		},
		Role:  role,
		Email: "student@medh.co",
		AMR:   []string{"passkey"},
	})

	return &passkeysdk.AuthResult{
		Success: true,
		User:    &passkeysdk.User{ID: "user_1", Email: "student@medh.co", Role: role},
		Tokens:  &passkeysdk.TokenPair{AccessToken: access, RefreshToken: "refresh_1", ExpiresIn: 900},
	}
}

func TestMaterialize(t *testing.T) {
	t.Parallel()

	t.Run("persists a complete session", func(t *testing.T) {
		t.Parallel()

		store := NewMemStore()
		m := NewMaterializer(store)

		session, err := m.Materialize(successResult(t, "instructor"))
		require.NoError(t, err)
		require.Equal(t, "user_1", session.UserID)
		require.Equal(t, "instructor", session.Role)
		require.Equal(t, "/dashboards/instructor", session.LandingPath)
		require.Equal(t, time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC), session.ExpiresAt)

		loaded, err := m.Current()
		require.NoError(t, err)
		require.Equal(t, session, loaded)
	})

	t.Run("materializing twice is idempotent", func(t *testing.T) {
		t.Parallel()

		m := NewMaterializer(NewMemStore())
		result := successResult(t, "student")

		first, err := m.Materialize(result)
		require.NoError(t, err)
		second, err := m.Materialize(result)
		require.NoError(t, err)
		require.Equal(t, first, second)

		loaded, err := m.Current()
		require.NoError(t, err)
		require.Equal(t, first, loaded)
	})

	t.Run("idempotent for tokens without an exp claim", func(t *testing.T) {
		t.Parallel()

		store := NewMemStore()
		m := NewMaterializer(store)
		result := &passkeysdk.AuthResult{
			Success: true,
			User:    &passkeysdk.User{ID: "user_1", Email: "student@medh.co", Role: "student"},
			Tokens:  &passkeysdk.TokenPair{AccessToken: "opaque-access-token", RefreshToken: "refresh_1", ExpiresIn: 900},
		}

		first, err := m.Materialize(result)
		require.NoError(t, err)
		firstPayload, err := store.Get(KeySession)
		require.NoError(t, err)

		// With no exp claim the deadline is derived from expiresIn once;
		// a retry must not restart the clock.
		time.Sleep(10 * time.Millisecond)
		second, err := m.Materialize(result)
		require.NoError(t, err)
		require.Equal(t, first.ExpiresAt, second.ExpiresAt)
		require.Equal(t, first, second)

		secondPayload, err := store.Get(KeySession)
		require.NoError(t, err)
		require.Equal(t, firstPayload, secondPayload)
	})

	t.Run("role falls back through token then default", func(t *testing.T) {
		t.Parallel()

		m := NewMaterializer(NewMemStore())

		// Result body omits the role; the token carries it.
		result := successResult(t, "admin")
		result.User.Role = ""
		session, err := m.Materialize(result)
		require.NoError(t, err)
		require.Equal(t, "admin", session.Role)
		require.Equal(t, "/dashboards/admin", session.LandingPath)

		// Neither carries a role; neither does an undecodable token.
		session, err = m.Materialize(&passkeysdk.AuthResult{
			Success: true,
			Tokens:  &passkeysdk.TokenPair{AccessToken: "not-a-jwt", ExpiresIn: 900},
		})
		require.NoError(t, err)
		require.Equal(t, DefaultRole, session.Role)
		require.Equal(t, "/dashboards/student", session.LandingPath)
	})

	t.Run("unknown role lands on the fallback path", func(t *testing.T) {
		t.Parallel()

		m := NewMaterializer(NewMemStore())
		session, err := m.Materialize(successResult(t, "auditor"))
		require.NoError(t, err)
		require.Equal(t, "auditor", session.Role)
		require.Equal(t, "/dashboards/student", session.LandingPath)
	})

	t.Run("custom landing paths", func(t *testing.T) {
		t.Parallel()

		m := NewMaterializer(NewMemStore())
		m.LandingPaths = map[string]string{"student": "/home", "": "/"}

		session, err := m.Materialize(successResult(t, "student"))
		require.NoError(t, err)
		require.Equal(t, "/home", session.LandingPath)
	})

	t.Run("rejects incomplete results", func(t *testing.T) {
		t.Parallel()

		store := NewMemStore()
		m := NewMaterializer(store)

		_, err := m.Materialize(nil)
		require.Error(t, err)

		_, err = m.Materialize(&passkeysdk.AuthResult{Success: false})
		require.Error(t, err)

		_, err = m.Materialize(&passkeysdk.AuthResult{Success: true})
		require.Error(t, err, "no tokens")

		_, err = m.Materialize(&passkeysdk.AuthResult{
			Success:                        true,
			Tokens:                         &passkeysdk.TokenPair{AccessToken: "a"},
			RequiresAdditionalVerification: true,
		})
		require.Error(t, err, "pending step-up must not materialize")

		_, err = store.Get(KeySession)
		require.ErrorIs(t, err, ErrNotFound, "nothing may be stored for rejected results")
	})
}

func TestMaterializerClear(t *testing.T) {
	t.Parallel()

	m := NewMaterializer(NewMemStore())
	_, err := m.Materialize(successResult(t, "student"))
	require.NoError(t, err)

	require.NoError(t, m.Clear())
	_, err = m.Current()
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.Clear(), "clearing twice is a no-op")
}
