package atvcrypto

import (
	"crypto/sha512"
	"fmt"
	"math/big"

	"github.com/tadglines/go-pkgs/crypto/srp"

	"github.com/navin772/appium-ios-remotexpc/ioserr"
)

const (
	srpGroup    = "rfc5054.3072"
	srpUsername = "Pair-Setup"

	// SRPKeyLength is the fixed big-endian width public keys are
	// serialized to, per RFC 5054's 3072-bit group.
	SRPKeyLength = 384
)

// rfc5054N3072Hex is the RFC 5054 / RFC 3526 3072-bit safe prime, used
// only to validate a received server public key before handing it to
// the underlying SRP session; the session itself uses the same group
// by name.
const rfc5054N3072Hex = "" +
	"FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD129024E088A67CC74" +
	"020BBEA63B139B22514A08798E3404DDEF9519B3CD3A431B302B0A6DF25F1437" +
	"4FE1356D6D51C245E485B576625E7EC6F44C42E9A637ED6B0BFF5CB6F406B7ED" +
	"EE386BFB5A899FA5AE9F24117C4B1FE649286651ECE45B3DC2007CB8A163BF05" +
	"98DA48361C55D39A69163FA8FD24CF5F83655D23DCA3AD961C62F356208552BB" +
	"9ED529077096966D670C354E4ABC9804F1746C08CA18217C32905E462E36CE3B" +
	"E39E772C180E86039B2783A2EC07A28FB5C55DF06F4C52C9DE2BCBF695581718" +
	"3995497CEA956AE515D2261898FA051015728E5A8AACAA68FFFFFFFFFFFFFFFF"

var rfc5054N3072 = mustParseHexBigInt(rfc5054N3072Hex)

func mustParseHexBigInt(s string) *big.Int {
	clean := make([]byte, 0, len(s))
	for _, c := range []byte(s) {
		if c == ' ' {
			continue
		}
		clean = append(clean, c)
	}
	n, ok := new(big.Int).SetString(string(clean), 16)
	if !ok {
		panic("atvcrypto: invalid embedded RFC 5054 prime")
	}
	return n
}

// xFunc implements x = H(salt || H(username || ":" || password)) with
// SHA-512: RFC 5054's formula applied with the Pair-Setup username. It
// is spelled out because SRP libraries commonly default to a different
// combination.
func xFunc(salt, password []byte) []byte {
	inner := sha512.New()
	inner.Write([]byte(fmt.Sprintf("%s:%s", srpUsername, password)))
	outer := sha512.New()
	outer.Write(salt)
	outer.Write(inner.Sum(nil))
	return outer.Sum(nil)
}

// SRPSession is a Pair-Setup SRP-6a client session: RFC 5054's 3072-bit
// group, g=5, SHA-512 throughout, username fixed to "Pair-Setup".
type SRPSession struct {
	session  *srp.ClientSession
	key      []byte
	disposed bool
}

// NewSRPSession starts a client session for the given password.
func NewSRPSession(password []byte) (*SRPSession, error) {
	group, err := srp.NewSRP(srpGroup, sha512.New, xFunc)
	if err != nil {
		return nil, &ioserr.CryptographyError{Msg: "initialize SRP group", Err: err}
	}
	return &SRPSession{session: group.NewClientSession([]byte(srpUsername), password)}, nil
}

// ComputeKey validates the server's public key is in (1, N-1), derives
// the shared session key K, and returns the client's own public key A
// serialized as a 384-byte big-endian buffer.
func (s *SRPSession) ComputeKey(salt, serverPublic []byte) (clientPublic []byte, err error) {
	b := new(big.Int).SetBytes(serverPublic)
	one := big.NewInt(1)
	nMinusOne := new(big.Int).Sub(rfc5054N3072, one)
	if b.Cmp(one) <= 0 || b.Cmp(nMinusOne) >= 0 {
		return nil, &ioserr.CryptographyError{Msg: "server public key B is not in (1, N-1)"}
	}

	key, err := s.session.ComputeKey(salt, serverPublic)
	if err != nil {
		return nil, &ioserr.CryptographyError{Msg: "compute SRP session key", Err: err}
	}
	s.key = key
	return PadToKeyLength(s.session.GetA(), SRPKeyLength), nil
}

// ClientProof returns M1, the client evidence message, as computed by
// the underlying session from N, g, the username, the salt, both public
// keys and K.
func (s *SRPSession) ClientProof() []byte {
	return s.session.ComputeAuthenticator()
}

// VerifyServerProof checks the server's M2 evidence message.
func (s *SRPSession) VerifyServerProof(serverProof []byte) bool {
	return s.session.VerifyServerAuthenticator(serverProof)
}

// SessionKey returns K. Valid only after ComputeKey has succeeded.
func (s *SRPSession) SessionKey() []byte {
	return s.key
}

// Dispose scrubs the locally held session key and any derived material.
// The underlying library does not expose the private scalar a, so it
// cannot be scrubbed from here; this is a best-effort cleanup of what
// this wrapper itself retains.
func (s *SRPSession) Dispose() {
	if s.disposed {
		return
	}
	for i := range s.key {
		s.key[i] = 0
	}
	s.key = nil
	s.disposed = true
}

// PadToKeyLength renders b as a fixed-width big-endian buffer of the
// given length, left-padding with zeros (SRP public keys never exceed
// the group's byte width, so truncation is never needed).
func PadToKeyLength(b []byte, length int) []byte {
	return new(big.Int).SetBytes(b).FillBytes(make([]byte, length))
}
