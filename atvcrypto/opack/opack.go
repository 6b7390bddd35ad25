// Package opack implements OPACK2, the compact type-tagged encoding
// Apple-TV pairing messages are wrapped in. It lives apart from
// atvcrypto because its marshaling loses precision on integers that
// overflow int32 (see Marshal), a caller-visible boundary worth its own
// import path rather than a buried detail of the crypto package.
package opack

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/navin772/appium-ios-remotexpc/ioserr"
)

const (
	tagNull    = 0x03
	tagTrue    = 0x01
	tagFalse   = 0x02
	tagUint8   = 0x30
	tagInt32   = 0x32
	tagFloat32 = 0x35

	stringShortBase = 0x40
	stringLongBase  = 0x60
	bufferShortBase = 0x70
	bufferLongBase  = 0x90

	arrayShortBase = 0xD0
	arrayLong      = 0xDF
	objectShortBase = 0xE0
	objectLong      = 0xEF

	terminator = 0x03
)

// Marshal renders v as OPACK2. Supported Go types are nil, bool, any
// integer kind, string, []byte, []any and map[string]any; anything else
// is rejected.
//
// Integers outside the int32 range, and all negative integers, are
// encoded as an IEEE-754 float32, matching Apple's documented lossy
// promotion; round-tripping such a value through Unmarshal does not
// recover the original integer exactly.
func Marshal(v interface{}) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	if err := encode(buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encode(buf *bytes.Buffer, v interface{}) error {
	switch t := v.(type) {
	case nil:
		buf.WriteByte(tagNull)
	case bool:
		if t {
			buf.WriteByte(tagTrue)
		} else {
			buf.WriteByte(tagFalse)
		}
	case int:
		return encodeInt(buf, int64(t))
	case int8:
		return encodeInt(buf, int64(t))
	case int16:
		return encodeInt(buf, int64(t))
	case int32:
		return encodeInt(buf, int64(t))
	case int64:
		return encodeInt(buf, t)
	case uint:
		return encodeInt(buf, int64(t))
	case uint8:
		return encodeInt(buf, int64(t))
	case uint16:
		return encodeInt(buf, int64(t))
	case uint32:
		return encodeInt(buf, int64(t))
	case string:
		encodeLengthTagged(buf, stringShortBase, stringLongBase, []byte(t))
	case []byte:
		encodeLengthTagged(buf, bufferShortBase, bufferLongBase, t)
	case []interface{}:
		return encodeArray(buf, t)
	case map[string]interface{}:
		return encodeObject(buf, t)
	default:
		return &ioserr.ProtocolError{Msg: fmt.Sprintf("opack: unsupported type %T", v)}
	}
	return nil
}

func encodeInt(buf *bytes.Buffer, n int64) error {
	switch {
	case n >= 0 && n <= 39:
		buf.WriteByte(0x08 + byte(n))
	case n >= 40 && n <= 255:
		buf.WriteByte(tagUint8)
		buf.WriteByte(byte(n))
	case n >= 0 && n <= math.MaxInt32:
		buf.WriteByte(tagInt32)
		tmp := make([]byte, 4)
		binary.LittleEndian.PutUint32(tmp, uint32(n))
		buf.Write(tmp)
	default:
		buf.WriteByte(tagFloat32)
		tmp := make([]byte, 4)
		binary.LittleEndian.PutUint32(tmp, math.Float32bits(float32(n)))
		buf.Write(tmp)
	}
	return nil
}

// encodeLengthTagged writes the short single-byte-length form when the
// payload is under 0x20 bytes, else a long form: base+0x20+width marker,
// width little-endian length bytes, then the payload.
func encodeLengthTagged(buf *bytes.Buffer, shortBase, longBase byte, data []byte) {
	n := len(data)
	if n < 0x20 {
		buf.WriteByte(shortBase + byte(n))
		buf.Write(data)
		return
	}
	width := lengthWidth(n)
	buf.WriteByte(longBase + byte(width))
	tmp := make([]byte, 8)
	binary.LittleEndian.PutUint64(tmp, uint64(n))
	buf.Write(tmp[:width])
	buf.Write(data)
}

func lengthWidth(n int) int {
	switch {
	case n <= math.MaxUint8:
		return 1
	case n <= math.MaxUint16:
		return 2
	case n <= math.MaxUint32:
		return 4
	default:
		return 8
	}
}

func encodeArray(buf *bytes.Buffer, items []interface{}) error {
	if len(items) <= 14 {
		buf.WriteByte(arrayShortBase + byte(len(items)))
	} else {
		buf.WriteByte(arrayLong)
	}
	for _, item := range items {
		if err := encode(buf, item); err != nil {
			return err
		}
	}
	if len(items) > 14 {
		buf.WriteByte(terminator)
	}
	return nil
}

func encodeObject(buf *bytes.Buffer, m map[string]interface{}) error {
	keys := make([]string, 0, len(m))
	for k, v := range m {
		if v == nil {
			continue
		}
		keys = append(keys, k)
	}
	if len(keys) <= 14 {
		buf.WriteByte(objectShortBase + byte(len(keys)))
	} else {
		buf.WriteByte(objectLong)
	}
	for _, k := range keys {
		if err := encode(buf, k); err != nil {
			return err
		}
		if err := encode(buf, m[k]); err != nil {
			return err
		}
	}
	if len(keys) > 14 {
		buf.WriteByte(terminator)
		buf.WriteByte(terminator)
	}
	return nil
}

// Unmarshal parses OPACK2-encoded data, returning nil, bool, int64,
// float64 (for the float32 tag), string, []byte, []interface{} or
// map[string]interface{} depending on the tag encountered.
func Unmarshal(data []byte) (interface{}, error) {
	v, rest, err := decode(data)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, &ioserr.ParseError{Msg: "opack: trailing bytes after top-level value"}
	}
	return v, nil
}

func decode(data []byte) (interface{}, []byte, error) {
	if len(data) == 0 {
		return nil, nil, &ioserr.ParseError{Msg: "opack: unexpected end of buffer"}
	}
	tag := data[0]
	rest := data[1:]

	switch {
	case tag == tagNull:
		return nil, rest, nil
	case tag == tagTrue:
		return true, rest, nil
	case tag == tagFalse:
		return false, rest, nil
	case tag >= 0x08 && tag <= 0x08+39:
		return int64(tag - 0x08), rest, nil
	case tag == tagUint8:
		if len(rest) < 1 {
			return nil, nil, &ioserr.ParseError{Msg: "opack: truncated uint8"}
		}
		return int64(rest[0]), rest[1:], nil
	case tag == tagInt32:
		if len(rest) < 4 {
			return nil, nil, &ioserr.ParseError{Msg: "opack: truncated int32"}
		}
		return int64(int32(binary.LittleEndian.Uint32(rest[:4]))), rest[4:], nil
	case tag == tagFloat32:
		if len(rest) < 4 {
			return nil, nil, &ioserr.ParseError{Msg: "opack: truncated float32"}
		}
		f := math.Float32frombits(binary.LittleEndian.Uint32(rest[:4]))
		return float64(f), rest[4:], nil
	case tag >= stringShortBase && tag < stringShortBase+0x20:
		return decodeInline(rest, int(tag-stringShortBase), true)
	case tag >= stringLongBase && tag < stringLongBase+0x10:
		return decodeLong(rest, int(tag-stringLongBase), true)
	case tag >= bufferShortBase && tag < bufferShortBase+0x20:
		return decodeInline(rest, int(tag-bufferShortBase), false)
	case tag >= bufferLongBase && tag < bufferLongBase+0x10:
		return decodeLong(rest, int(tag-bufferLongBase), false)
	case tag >= arrayShortBase && tag <= arrayShortBase+14:
		return decodeArray(rest, int(tag-arrayShortBase), false)
	case tag == arrayLong:
		return decodeArray(rest, 0, true)
	case tag >= objectShortBase && tag <= objectShortBase+14:
		return decodeObject(rest, int(tag-objectShortBase), false)
	case tag == objectLong:
		return decodeObject(rest, 0, true)
	default:
		return nil, nil, &ioserr.ProtocolError{Msg: fmt.Sprintf("opack: unknown tag 0x%02x", tag)}
	}
}

func decodeInline(rest []byte, n int, asString bool) (interface{}, []byte, error) {
	if len(rest) < n {
		return nil, nil, &ioserr.ParseError{Msg: "opack: truncated inline payload"}
	}
	payload := rest[:n]
	rest = rest[n:]
	if asString {
		if !utf8.Valid(payload) {
			return nil, nil, &ioserr.ParseError{Msg: "opack: string payload is not valid utf-8"}
		}
		return string(payload), rest, nil
	}
	return append([]byte(nil), payload...), rest, nil
}

func decodeLong(rest []byte, width int, asString bool) (interface{}, []byte, error) {
	if len(rest) < width {
		return nil, nil, &ioserr.ParseError{Msg: "opack: truncated length prefix"}
	}
	tmp := make([]byte, 8)
	copy(tmp, rest[:width])
	n := int(binary.LittleEndian.Uint64(tmp))
	rest = rest[width:]
	return decodeInline(rest, n, asString)
}

func decodeArray(rest []byte, n int, long bool) (interface{}, []byte, error) {
	items := make([]interface{}, 0, n)
	if !long {
		for i := 0; i < n; i++ {
			var (
				v   interface{}
				err error
			)
			v, rest, err = decode(rest)
			if err != nil {
				return nil, nil, err
			}
			items = append(items, v)
		}
		return items, rest, nil
	}
	for {
		if len(rest) == 0 {
			return nil, nil, &ioserr.ParseError{Msg: "opack: unterminated array"}
		}
		if rest[0] == terminator {
			return items, rest[1:], nil
		}
		var (
			v   interface{}
			err error
		)
		v, rest, err = decode(rest)
		if err != nil {
			return nil, nil, err
		}
		items = append(items, v)
	}
}

func decodeObject(rest []byte, n int, long bool) (interface{}, []byte, error) {
	m := make(map[string]interface{}, n)
	if !long {
		for i := 0; i < n; i++ {
			var (
				k, v interface{}
				err  error
			)
			k, rest, err = decode(rest)
			if err != nil {
				return nil, nil, err
			}
			v, rest, err = decode(rest)
			if err != nil {
				return nil, nil, err
			}
			key, ok := k.(string)
			if !ok {
				return nil, nil, &ioserr.ParseError{Msg: "opack: object key is not a string"}
			}
			m[key] = v
		}
		return m, rest, nil
	}
	for {
		if len(rest) == 0 {
			return nil, nil, &ioserr.ParseError{Msg: "opack: unterminated object"}
		}
		if rest[0] == terminator {
			rest = rest[1:]
			if len(rest) == 0 || rest[0] != terminator {
				return nil, nil, &ioserr.ParseError{Msg: "opack: object missing trailing-key terminator"}
			}
			return m, rest[1:], nil
		}
		var (
			k, v interface{}
			err  error
		)
		k, rest, err = decode(rest)
		if err != nil {
			return nil, nil, err
		}
		v, rest, err = decode(rest)
		if err != nil {
			return nil, nil, err
		}
		key, ok := k.(string)
		if !ok {
			return nil, nil, &ioserr.ParseError{Msg: "opack: object key is not a string"}
		}
		m[key] = v
	}
}
