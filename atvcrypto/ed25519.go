package atvcrypto

import (
	"crypto/rand"

	"golang.org/x/crypto/ed25519"

	"github.com/navin772/appium-ios-remotexpc/ioserr"
)

// Ed25519GenerateKey produces a fresh 32-byte seed and 32-byte public
// key.
func Ed25519GenerateKey() (seed, public []byte, err error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, &ioserr.CryptographyError{Msg: "generate ed25519 key", Err: err}
	}
	return append([]byte(nil), priv.Seed()...), append([]byte(nil), pub...), nil
}

// Ed25519Sign signs data with the 32-byte seed, producing a 64-byte
// signature.
func Ed25519Sign(seed, data []byte) ([]byte, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, &ioserr.ParseError{Msg: "Private key must be 32 bytes"}
	}
	if len(data) == 0 {
		return nil, &ioserr.ParseError{Msg: "data to sign must not be empty"}
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return ed25519.Sign(priv, data), nil
}

// Ed25519Verify checks sig against data under the given 32-byte public
// key.
func Ed25519Verify(public, data, sig []byte) (bool, error) {
	if len(public) != ed25519.PublicKeySize {
		return false, &ioserr.ParseError{Msg: "Public key must be 32 bytes"}
	}
	if len(data) == 0 {
		return false, &ioserr.ParseError{Msg: "data to verify must not be empty"}
	}
	return ed25519.Verify(public, data, sig), nil
}
