package atvcrypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeTLV8SingleRecord(t *testing.T) {
	got := EncodeTLV8([]Item{{Type: 0x01, Data: []byte{0x42, 0x43, 0x44}}})
	assert.Equal(t, []byte{0x01, 0x03, 0x42, 0x43, 0x44}, got)
}

func TestEncodeTLV8SplitsOversizedItem(t *testing.T) {
	data := bytes.Repeat([]byte{0x7A}, 300)
	got := EncodeTLV8([]Item{{Type: 0x05, Data: data}})

	require.Equal(t, byte(0x05), got[0])
	require.Equal(t, byte(255), got[1])
	rest := got[2+255:]
	require.Equal(t, byte(0x05), rest[0])
	require.Equal(t, byte(45), rest[1])
}

func TestDecodeTLV8MapCoalescesFragments(t *testing.T) {
	data := bytes.Repeat([]byte{0x99}, 300)
	encoded := EncodeTLV8([]Item{{Type: 0x05, Data: data}})

	m, err := DecodeTLV8Map(encoded)
	require.NoError(t, err)
	assert.Equal(t, data, m[0x05])
}

func TestDecodeTLV8MapKeepsDistinctTypesSeparate(t *testing.T) {
	encoded := EncodeTLV8([]Item{
		{Type: 0x06, Data: []byte{0x01}},
		{Type: 0x04, Data: []byte{0xAA, 0xBB}},
	})

	m, err := DecodeTLV8Map(encoded)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01}, m[0x06])
	assert.Equal(t, []byte{0xAA, 0xBB}, m[0x04])
}

func TestDecodeTLV8FailsOnTruncatedHeader(t *testing.T) {
	_, err := DecodeTLV8([]byte{0x01})
	assert.Error(t, err)
}

func TestDecodeTLV8FailsOnTruncatedPayload(t *testing.T) {
	_, err := DecodeTLV8([]byte{0x01, 0x05, 0x01, 0x02})
	assert.Error(t, err)
}

func TestDecodeTLV8RoundTrip(t *testing.T) {
	items := []Item{
		{Type: 0x06, Data: []byte{0x03}},
		{Type: 0x03, Data: bytes.Repeat([]byte{0x11}, 384)},
	}
	decoded, err := DecodeTLV8(EncodeTLV8(items))
	require.NoError(t, err)
	require.Len(t, decoded, 3) // second item split into two fragments
	assert.Equal(t, items[0], decoded[0])
}
