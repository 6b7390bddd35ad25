package plist_test

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/navin772/appium-ios-remotexpc/plist"
)

func TestBinaryRoundTripScalarKinds(t *testing.T) {
	cases := map[string]plist.Value{
		"null":      plist.Null(),
		"trueBool":  plist.Bool(true),
		"falseBool": plist.Bool(false),
		"posInt":    plist.Int(12345),
		"negInt":    plist.Int(-98765),
		"real":      plist.Real(3.14159),
		"date":      plist.Date(time.Date(2020, 6, 15, 12, 0, 0, 0, time.UTC)),
		"data":      plist.Data([]byte{0x00, 0x01, 0xFF, 0x10}),
		"asciiStr":  plist.String("hello world"),
		"unicodeStr": plist.String("héllo wörld 日本語"),
	}
	for name, v := range cases {
		t.Run(name, func(t *testing.T) {
			encoded, err := plist.ToBinary(v)
			require.NoError(t, err)
			decoded, err := plist.DecodeBinary(encoded)
			require.NoError(t, err)
			assert.True(t, v.Equal(decoded), "round trip mismatch for %s", name)
		})
	}
}

func TestBinaryRoundTripContainers(t *testing.T) {
	d := plist.NewDict()
	d.Set("name", plist.String("appium"))
	d.Set("count", plist.Int(7))
	d.Set("children", plist.Array(plist.Int(1), plist.Int(2), plist.Int(3)))
	v := plist.DictValue(d)

	encoded, err := plist.ToBinary(v)
	require.NoError(t, err)
	decoded, err := plist.DecodeBinary(encoded)
	require.NoError(t, err)
	assert.True(t, v.Equal(decoded))
}

func TestBinaryRoundTripSharedSubstructure(t *testing.T) {
	shared := plist.Array(plist.Int(1), plist.Int(2))
	v := plist.Array(shared, shared, plist.String("tail"))

	encoded, err := plist.ToBinary(v)
	require.NoError(t, err)
	decoded, err := plist.DecodeBinary(encoded)
	require.NoError(t, err)
	assert.True(t, v.Equal(decoded))
}

func TestBinaryRoundTripBigIntBeyondInt64(t *testing.T) {
	big64 := new(big.Int).SetUint64(1<<63 + 100)
	v := plist.BigInt(big64)

	encoded, err := plist.ToBinary(v)
	require.NoError(t, err)
	decoded, err := plist.DecodeBinary(encoded)
	require.NoError(t, err)
	assert.True(t, v.Equal(decoded))
}

func TestBinaryEncodeRejectsOutOfRangeNegativeBigInt(t *testing.T) {
	negBeyondInt64 := new(big.Int).Neg(new(big.Int).SetUint64(1<<63 + 100))
	v := plist.BigInt(negBeyondInt64)

	_, err := plist.ToBinary(v)
	assert.Error(t, err)
}

func TestDecodeBinaryRejectsMissingMagic(t *testing.T) {
	_, err := plist.DecodeBinary([]byte("not a plist at all"))
	assert.Error(t, err)
}

func TestParsePlistAutoDetectsBinary(t *testing.T) {
	v := plist.String("auto-detected")
	encoded, err := plist.ToBinary(v)
	require.NoError(t, err)
	decoded, err := plist.ParsePlist(encoded)
	require.NoError(t, err)
	assert.True(t, v.Equal(decoded))
}

func TestParsePlistAutoDetectsXML(t *testing.T) {
	v := plist.String("auto-detected")
	encoded := plist.ToXML(v)
	decoded, err := plist.ParsePlist(encoded)
	require.NoError(t, err)
	assert.True(t, v.Equal(decoded))
}
