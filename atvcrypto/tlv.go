// Package atvcrypto implements the cryptographic and encoding primitives
// used during Apple-TV pair-setup and pair-verify: TLV8, OPACK2, SRP-6a,
// HKDF, Ed25519, ChaCha20-Poly1305, Bonjour discovery (in the bonjour
// subpackage) and host-id derivation. These are self-contained and do
// not depend on the plist, usbmux, lockdown, rsd or servicefabric layers.
package atvcrypto

import (
	"bytes"
	"math"

	"github.com/navin772/appium-ios-remotexpc/ioserr"
)

// Item is one TLV8 record: a type tag and its data.
type Item struct {
	Type byte
	Data []byte
}

const maxChunk = math.MaxUint8

// EncodeTLV8 renders items as back-to-back type/length/value records.
// An item whose data exceeds 255 bytes is split into multiple records of
// the same type, each holding at most 255 bytes, so the fragments can be
// reassembled by DecodeTLV8Map.
func EncodeTLV8(items []Item) []byte {
	buf := bytes.NewBuffer(nil)
	for _, it := range items {
		writeChunked(buf, it.Type, it.Data)
	}
	return buf.Bytes()
}

func writeChunked(buf *bytes.Buffer, t byte, data []byte) {
	if len(data) <= maxChunk {
		buf.WriteByte(t)
		buf.WriteByte(byte(len(data)))
		buf.Write(data)
		return
	}
	buf.WriteByte(t)
	buf.WriteByte(byte(maxChunk))
	buf.Write(data[:maxChunk])
	writeChunked(buf, t, data[maxChunk:])
}

// DecodeTLV8 parses data into its constituent records, in order, without
// coalescing fragments. It fails if a type/length header or its payload
// runs past the end of the buffer.
func DecodeTLV8(data []byte) ([]Item, error) {
	var items []Item
	for len(data) > 0 {
		if len(data) < 2 {
			return nil, &ioserr.ParseError{Msg: "tlv8 record truncated before length byte"}
		}
		t, length := data[0], int(data[1])
		data = data[2:]
		if len(data) < length {
			return nil, &ioserr.ParseError{Msg: "tlv8 record truncated before end of data"}
		}
		items = append(items, Item{Type: t, Data: append([]byte(nil), data[:length]...)})
		data = data[length:]
	}
	return items, nil
}

// DecodeTLV8Map decodes data and coalesces consecutive records of the
// same type into a single byte string per type, reversing the
// fragmentation EncodeTLV8 performs on oversized items.
func DecodeTLV8Map(data []byte) (map[byte][]byte, error) {
	items, err := DecodeTLV8(data)
	if err != nil {
		return nil, err
	}
	out := make(map[byte][]byte)
	var lastType byte
	have := false
	for _, it := range items {
		if have && it.Type == lastType {
			out[it.Type] = append(out[it.Type], it.Data...)
		} else {
			out[it.Type] = append([]byte(nil), it.Data...)
		}
		lastType = it.Type
		have = true
	}
	return out, nil
}
