package atvcrypto

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPadToKeyLengthPadsShortInput(t *testing.T) {
	got := PadToKeyLength([]byte{0x01, 0x02}, 8)
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0x01, 0x02}, got)
}

func TestPadToKeyLengthExactWidth(t *testing.T) {
	in := make([]byte, SRPKeyLength)
	in[0] = 0xAB
	got := PadToKeyLength(in, SRPKeyLength)
	assert.Equal(t, in, got)
}

func TestNewSRPSessionSucceeds(t *testing.T) {
	s, err := NewSRPSession([]byte("000000"))
	require.NoError(t, err)
	require.NotNil(t, s)
}

func TestComputeKeyRejectsZeroServerPublic(t *testing.T) {
	s, err := NewSRPSession([]byte("000000"))
	require.NoError(t, err)

	salt := []byte("0123456789abcdef")
	_, err = s.ComputeKey(salt, big.NewInt(0).Bytes())
	assert.Error(t, err)
}

func TestComputeKeyRejectsServerPublicEqualToNMinusOne(t *testing.T) {
	s, err := NewSRPSession([]byte("000000"))
	require.NoError(t, err)

	nMinusOne := new(big.Int).Sub(rfc5054N3072, big.NewInt(1))
	_, err = s.ComputeKey([]byte("salt"), nMinusOne.Bytes())
	assert.Error(t, err)
}

func TestDisposeScrubsSessionKey(t *testing.T) {
	s := &SRPSession{key: []byte{0x01, 0x02, 0x03}}
	s.Dispose()
	assert.Nil(t, s.key)
	assert.True(t, s.disposed)
	s.Dispose() // idempotent
}
