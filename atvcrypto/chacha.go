package atvcrypto

import (
	"crypto/cipher"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/navin772/appium-ios-remotexpc/ioserr"
)

// ChaCha20Poly1305Encrypt seals plaintext under key and nonce, appending
// the 16-byte Poly1305 tag to the returned ciphertext. additionalData
// may be nil.
func ChaCha20Poly1305Encrypt(key, nonce, plaintext, additionalData []byte) ([]byte, error) {
	aead, err := newChaCha20Poly1305(key, nonce)
	if err != nil {
		return nil, err
	}
	return aead.Seal(nil, nonce, plaintext, additionalData), nil
}

// ChaCha20Poly1305Decrypt opens ciphertext (which must end in the
// 16-byte tag) under key and nonce.
func ChaCha20Poly1305Decrypt(key, nonce, ciphertext, additionalData []byte) ([]byte, error) {
	aead, err := newChaCha20Poly1305(key, nonce)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < chacha20poly1305.Overhead {
		return nil, &ioserr.ParseError{Msg: "ciphertext shorter than the AEAD tag"}
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, additionalData)
	if err != nil {
		return nil, &ioserr.CryptographyError{Msg: "chacha20poly1305 authentication failed", Err: err}
	}
	return plaintext, nil
}

func newChaCha20Poly1305(key, nonce []byte) (cipher.AEAD, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, &ioserr.ParseError{Msg: "key must be 32 bytes"}
	}
	if len(nonce) != chacha20poly1305.NonceSize {
		return nil, &ioserr.ParseError{Msg: "nonce must be 12 bytes"}
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, &ioserr.CryptographyError{Msg: "construct chacha20poly1305 AEAD", Err: err}
	}
	return aead, nil
}
