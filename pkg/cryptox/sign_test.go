package cryptox_test

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/sha256"
	"testing"

	"github.com/medhcloud/passkey/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func TestES256SignAndVerify(t *testing.T) {
	key, err := cryptox.GenerateES256Key()
	require.NoError(t, err)

	data := []byte("authenticator-data||client-data-hash")
	sig, err := cryptox.SignES256(key, data)
	require.NoError(t, err)

	digest := sha256.Sum256(data)
	require.True(t, ecdsa.VerifyASN1(&key.PublicKey, digest[:], sig))
}

func TestES256RejectsNilKey(t *testing.T) {
	_, err := cryptox.SignES256(nil, []byte("data"))
	require.Error(t, err)
}

func TestEd25519SignAndVerify(t *testing.T) {
	key, err := cryptox.GenerateEd25519Key()
	require.NoError(t, err)

	data := []byte("authenticator-data||client-data-hash")
	sig, err := cryptox.SignEd25519(key, data)
	require.NoError(t, err)

	pub := key.Public().(ed25519.PublicKey)
	require.True(t, ed25519.Verify(pub, data, sig))
}

func TestPrivateKeyPEMRoundtrip(t *testing.T) {
	ecKey, err := cryptox.GenerateES256Key()
	require.NoError(t, err)

	pemData, err := cryptox.MarshalPrivateKeyPEM(ecKey)
	require.NoError(t, err)

	parsed, err := cryptox.ParsePrivateKeyPEM(pemData)
	require.NoError(t, err)

	parsedEC, ok := parsed.(*ecdsa.PrivateKey)
	require.True(t, ok)
	require.True(t, parsedEC.Equal(ecKey))

	edKey, err := cryptox.GenerateEd25519Key()
	require.NoError(t, err)

	pemData, err = cryptox.MarshalPrivateKeyPEM(edKey)
	require.NoError(t, err)

	parsed, err = cryptox.ParsePrivateKeyPEM(pemData)
	require.NoError(t, err)

	parsedEd, ok := parsed.(ed25519.PrivateKey)
	require.True(t, ok)
	require.True(t, parsedEd.Equal(edKey))
}

func TestParsePrivateKeyPEMRejectsGarbage(t *testing.T) {
	_, err := cryptox.ParsePrivateKeyPEM([]byte("not pem at all"))
	require.Error(t, err)
}
