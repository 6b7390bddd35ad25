package plist_test

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/navin772/appium-ios-remotexpc/plist"
)

func TestDictPreservesInsertionOrderAcrossOverwrite(t *testing.T) {
	d := plist.NewDict()
	d.Set("b", plist.Int(2))
	d.Set("a", plist.Int(1))
	d.Set("b", plist.Int(20))

	assert.Equal(t, []string{"b", "a"}, d.Keys())
	v, ok := d.Get("b")
	assert.True(t, ok)
	i, _ := v.Int()
	assert.EqualValues(t, 20, i)
}

func TestBigIntDowngradesWhenItFits(t *testing.T) {
	v := plist.BigInt(big.NewInt(42))
	assert.Equal(t, plist.KindInt, v.Kind())
	i, ok := v.Int()
	assert.True(t, ok)
	assert.EqualValues(t, 42, i)
}

func TestBigIntKeepsArbitraryPrecisionBeyondInt64(t *testing.T) {
	huge := new(big.Int).Lsh(big.NewInt(1), 100)
	v := plist.BigInt(huge)
	_, ok := v.Int()
	assert.False(t, ok)
	bi, ok := v.BigIntValue()
	assert.True(t, ok)
	assert.Equal(t, huge, bi)
}

func TestValueEqualDeepStructural(t *testing.T) {
	d1 := plist.NewDict()
	d1.Set("x", plist.Array(plist.Int(1), plist.String("y")))
	d2 := plist.NewDict()
	d2.Set("x", plist.Array(plist.Int(1), plist.String("y")))

	assert.True(t, plist.DictValue(d1).Equal(plist.DictValue(d2)))
}

func TestDateRoundTripsThroughUTC(t *testing.T) {
	local := time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 3600))
	v := plist.Date(local)
	got, ok := v.Date()
	assert.True(t, ok)
	assert.True(t, got.Equal(local))
	assert.Equal(t, time.UTC, got.Location())
}
