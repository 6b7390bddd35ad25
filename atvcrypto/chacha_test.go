package atvcrypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChaCha20Poly1305RoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, 32)
	nonce := bytes.Repeat([]byte{0x24}, 12)
	plaintext := []byte("Hello, World!")

	ct, err := ChaCha20Poly1305Encrypt(key, nonce, plaintext, nil)
	require.NoError(t, err)
	assert.Len(t, ct, len(plaintext)+16)

	pt, err := ChaCha20Poly1305Decrypt(key, nonce, ct, nil)
	require.NoError(t, err)
	assert.Equal(t, plaintext, pt)
}

func TestChaCha20Poly1305DecryptFailsWithWrongKey(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, 32)
	otherKey := bytes.Repeat([]byte{0x24}, 32)
	nonce := bytes.Repeat([]byte{0x24}, 12)

	ct, err := ChaCha20Poly1305Encrypt(key, nonce, []byte("Hello, World!"), nil)
	require.NoError(t, err)

	_, err = ChaCha20Poly1305Decrypt(otherKey, nonce, ct, nil)
	assert.Error(t, err)
}

func TestChaCha20Poly1305RejectsWrongKeySize(t *testing.T) {
	_, err := ChaCha20Poly1305Encrypt(make([]byte, 16), bytes.Repeat([]byte{0x24}, 12), []byte("x"), nil)
	assert.Error(t, err)
}

func TestChaCha20Poly1305RejectsWrongNonceSize(t *testing.T) {
	_, err := ChaCha20Poly1305Encrypt(bytes.Repeat([]byte{0x42}, 32), make([]byte, 8), []byte("x"), nil)
	assert.Error(t, err)
}

func TestChaCha20Poly1305DecryptRejectsUndersizedCiphertext(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, 32)
	nonce := bytes.Repeat([]byte{0x24}, 12)
	_, err := ChaCha20Poly1305Decrypt(key, nonce, []byte{0x01, 0x02}, nil)
	assert.Error(t, err)
}
