package sqlite

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/medhcloud/passkey/pkg/sessionstore"
)

func openTestStore(t *testing.T, dsn string) *Store {
	t.Helper()

	store, err := NewStore(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreRoundtrip(t *testing.T) {
	t.Parallel()

	store := openTestStore(t, filepath.Join(t.TempDir(), "agent.db"))

	_, err := store.Get("missing")
	require.ErrorIs(t, err, sessionstore.ErrNotFound)

	require.NoError(t, store.Set("session", []byte(`{"userId":"user_1"}`)))
	value, err := store.Get("session")
	require.NoError(t, err)
	require.Equal(t, []byte(`{"userId":"user_1"}`), value)

	// Upsert overwrites.
	require.NoError(t, store.Set("session", []byte(`{"userId":"user_2"}`)))
	value, err = store.Get("session")
	require.NoError(t, err)
	require.Equal(t, []byte(`{"userId":"user_2"}`), value)

	require.NoError(t, store.Delete("session"))
	_, err = store.Get("session")
	require.ErrorIs(t, err, sessionstore.ErrNotFound)

	require.NoError(t, store.Set("a", []byte("1")))
	require.NoError(t, store.Set("b", []byte("2")))
	require.NoError(t, store.Clear())
	_, err = store.Get("a")
	require.ErrorIs(t, err, sessionstore.ErrNotFound)
}

func TestMigrationsAreIdempotent(t *testing.T) {
	t.Parallel()

	dsn := filepath.Join(t.TempDir(), "agent.db")

	store := openTestStore(t, dsn)
	require.NoError(t, store.Set("k", []byte("v")))
	require.NoError(t, store.Close())

	// Reopening runs migrations again; existing data must survive.
	reopened := openTestStore(t, dsn)
	value, err := reopened.Get("k")
	require.NoError(t, err)
	require.Equal(t, []byte("v"), value)
}
