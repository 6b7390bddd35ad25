package atvcrypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEd25519GenerateKeySizes(t *testing.T) {
	seed, pub, err := Ed25519GenerateKey()
	require.NoError(t, err)
	assert.Len(t, seed, 32)
	assert.Len(t, pub, 32)
}

func TestEd25519SignAndVerifyRoundTrip(t *testing.T) {
	seed, pub, err := Ed25519GenerateKey()
	require.NoError(t, err)

	sig, err := Ed25519Sign(seed, []byte("hello"))
	require.NoError(t, err)
	assert.Len(t, sig, 64)

	ok, err := Ed25519Verify(pub, []byte("hello"), sig)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEd25519SignRejectsEmptyMessage(t *testing.T) {
	seed, _, err := Ed25519GenerateKey()
	require.NoError(t, err)
	_, err = Ed25519Sign(seed, nil)
	assert.Error(t, err)
}

func TestEd25519SignRejectsWrongSizedKey(t *testing.T) {
	_, err := Ed25519Sign(make([]byte, 16), []byte("hello"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Private key must be 32 bytes")
}

func TestEd25519VerifyRejectsTamperedSignature(t *testing.T) {
	seed, pub, err := Ed25519GenerateKey()
	require.NoError(t, err)
	sig, err := Ed25519Sign(seed, []byte("hello"))
	require.NoError(t, err)
	sig[0] ^= 0xFF

	ok, err := Ed25519Verify(pub, []byte("hello"), sig)
	require.NoError(t, err)
	assert.False(t, ok)
}
