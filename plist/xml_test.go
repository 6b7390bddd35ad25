package plist_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/navin772/appium-ios-remotexpc/plist"
)

func buildSampleDict() plist.Value {
	d := plist.NewDict()
	d.Set("x", plist.Int(42))
	d.Set("name", plist.String(`quote " amp & <tag>`))
	d.Set("flag", plist.Bool(true))
	d.Set("items", plist.Array(plist.Int(1), plist.Int(2), plist.String("three")))
	return plist.DictValue(d)
}

func TestXMLRoundTrip(t *testing.T) {
	v := buildSampleDict()
	encoded := plist.ToXML(v)
	decoded, err := plist.DecodeXML(encoded)
	require.NoError(t, err)
	assert.True(t, v.Equal(decoded))
}

func TestXMLDecodeSimpleDict(t *testing.T) {
	input := []byte(`<?xml version="1.0" encoding="UTF-8"?><plist><dict><key>x</key><integer>42</integer></dict></plist>`)
	v, err := plist.DecodeXML(input)
	require.NoError(t, err)
	d, ok := v.Dict()
	require.True(t, ok)
	x, ok := d.Get("x")
	require.True(t, ok)
	i, _ := x.Int()
	assert.EqualValues(t, 42, i)
}

func TestXMLDecodeWithLeadingU2FFFD(t *testing.T) {
	input := []byte("�<?xml version=\"1.0\" encoding=\"UTF-8\"?><plist><dict><key>x</key><integer>42</integer></dict></plist>")
	v, err := plist.DecodeXML(input)
	require.NoError(t, err)
	d, _ := v.Dict()
	x, _ := d.Get("x")
	i, _ := x.Int()
	assert.EqualValues(t, 42, i)
}

func TestXMLDecodeDropsLeadingGarbageBeforeDeclaration(t *testing.T) {
	input := append([]byte("garbage garbage garbage"), []byte(`<?xml version="1.0"?><plist><string>ok</string></plist>`)...)
	v, err := plist.DecodeXML(input)
	require.NoError(t, err)
	assert.Equal(t, "ok", v.String())
}

func TestXMLDecodeCollapsesRepeatedDeclarations(t *testing.T) {
	input := []byte(`<?xml version="1.0"?><?xml version="1.0"?><plist><string>ok</string></plist>`)
	v, err := plist.DecodeXML(input)
	require.NoError(t, err)
	assert.Equal(t, "ok", v.String())
}

func TestXMLDecodeFailsWithoutRootElement(t *testing.T) {
	_, err := plist.DecodeXML([]byte("   "))
	assert.Error(t, err)
}

func TestXMLDecodeFailsWhenRootIsNotPlist(t *testing.T) {
	_, err := plist.DecodeXML([]byte(`<?xml version="1.0"?><dict><key>x</key><integer>1</integer></dict>`))
	assert.Error(t, err)
}

func TestXMLDecodeFailsOnUnclosedTag(t *testing.T) {
	_, err := plist.DecodeXML([]byte(`<?xml version="1.0"?><plist><dict><key>x</key><integer>1</integer></plist>`))
	assert.Error(t, err)
}

func TestXMLDecodeAcceptsCDATAAndComments(t *testing.T) {
	input := []byte(`<?xml version="1.0"?><!-- a comment --><plist><string><![CDATA[raw & text]]></string></plist>`)
	v, err := plist.DecodeXML(input)
	require.NoError(t, err)
	assert.Equal(t, "raw & text", v.String())
}
