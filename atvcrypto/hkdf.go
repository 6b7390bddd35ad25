package atvcrypto

import (
	"crypto/sha512"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/navin772/appium-ios-remotexpc/ioserr"
)

// MaxHKDFOutputLength is 255 times the SHA-512 output size, the largest
// output RFC 5869 expand permits for this hash.
const MaxHKDFOutputLength = 255 * sha512.Size

// HKDFSHA512 runs RFC 5869 extract-then-expand over secret, salt and
// info with SHA-512, returning length bytes of output. info is required;
// an empty salt is treated as RFC 5869's all-zero default.
func HKDFSHA512(secret, salt, info []byte, length int) ([]byte, error) {
	if len(secret) == 0 {
		return nil, &ioserr.ParseError{Msg: "Input key material (IKM) cannot be empty"}
	}
	if len(info) == 0 {
		return nil, &ioserr.ParseError{Msg: "HKDF info parameter is required"}
	}
	if length <= 0 {
		return nil, &ioserr.ParseError{Msg: "Output length must be positive"}
	}
	if length > MaxHKDFOutputLength {
		return nil, &ioserr.ParseError{Msg: fmt.Sprintf("Output length cannot exceed %d bytes", MaxHKDFOutputLength)}
	}

	out := make([]byte, length)
	if _, err := io.ReadFull(hkdf.New(sha512.New, secret, salt, info), out); err != nil {
		return nil, &ioserr.CryptographyError{Msg: "hkdf expand", Err: err}
	}
	return out, nil
}
