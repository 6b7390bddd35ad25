package plist

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/big"
	"time"
	"unicode/utf16"

	"github.com/navin772/appium-ios-remotexpc/ioserr"
)

const binaryMagic = "bplist00"

const trailerSize = 32

// object table marker nibbles, high nibble of the marker byte
const (
	markerSingleton = 0x0 // null/false/true/fill, low nibble distinguishes
	markerInt       = 0x1
	markerReal      = 0x2
	markerDate      = 0x3
	markerData      = 0x4
	markerASCII     = 0x5
	markerUTF16     = 0x6
	markerUID       = 0x8
	markerArray     = 0xA
	markerDict      = 0xD

	singletonNull  = 0x00
	singletonFalse = 0x08
	singletonTrue  = 0x09
	singletonFill  = 0x0F

	extLength = 0x0F
)

// EncodeBinary renders a Value as a "bplist00" binary property list.
// It returns an error if v contains an integer outside the range a
// bplist00 integer object can represent (a signed or unsigned 64-bit
// value).
func EncodeBinary(v Value) ([]byte, error) {
	var objs []encNode
	top := collectObjects(v, &objs)

	refSize := byteWidthFor(uint64(len(objs)))

	buf := make([]byte, 0, 256)
	buf = append(buf, binaryMagic...)

	offsets := make([]uint64, len(objs))
	for i, node := range objs {
		offsets[i] = uint64(len(buf))
		var err error
		buf, err = writeObject(buf, node, refSize)
		if err != nil {
			return nil, err
		}
	}

	offsetTableOffset := uint64(len(buf))
	var maxOffset uint64
	for _, off := range offsets {
		if off > maxOffset {
			maxOffset = off
		}
	}
	offsetIntSize := byteWidthFor(maxOffset)
	for _, off := range offsets {
		buf = appendUint(buf, off, offsetIntSize)
	}

	trailer := make([]byte, trailerSize)
	trailer[6] = byte(offsetIntSize)
	trailer[7] = byte(refSize)
	binary.BigEndian.PutUint64(trailer[8:16], uint64(len(objs)))
	binary.BigEndian.PutUint64(trailer[16:24], uint64(top))
	binary.BigEndian.PutUint64(trailer[24:32], offsetTableOffset)
	buf = append(buf, trailer...)

	return buf, nil
}

// encNode is a flattened object-table entry. Containers reference their
// children by index into the shared objects slice, computed up front so
// the object table can be written in a single left-to-right pass.
type encNode struct {
	v        Value
	children []int // KindArray: item indices
	keys     []int // KindDict: key-string indices, parallel to vals
	vals     []int // KindDict: value indices
}

func collectObjects(v Value, objs *[]encNode) int {
	switch v.Kind() {
	case KindArray:
		idx := len(*objs)
		*objs = append(*objs, encNode{v: v})
		items, _ := v.Array()
		children := make([]int, len(items))
		for i, item := range items {
			children[i] = collectObjects(item, objs)
		}
		(*objs)[idx].children = children
		return idx
	case KindDict:
		idx := len(*objs)
		*objs = append(*objs, encNode{v: v})
		d, _ := v.Dict()
		keys := d.Keys()
		keyIdx := make([]int, len(keys))
		valIdx := make([]int, len(keys))
		for i, k := range keys {
			keyIdx[i] = collectObjects(String(k), objs)
			val, _ := d.Get(k)
			valIdx[i] = collectObjects(val, objs)
		}
		(*objs)[idx].keys = keyIdx
		(*objs)[idx].vals = valIdx
		return idx
	default:
		idx := len(*objs)
		*objs = append(*objs, encNode{v: v})
		return idx
	}
}

func byteWidthFor(max uint64) int {
	switch {
	case max <= 0xFF:
		return 1
	case max <= 0xFFFF:
		return 2
	case max <= 0xFFFFFFFF:
		return 4
	default:
		return 8
	}
}

func appendUint(buf []byte, val uint64, width int) []byte {
	tmp := make([]byte, 8)
	binary.BigEndian.PutUint64(tmp, val)
	return append(buf, tmp[8-width:]...)
}

func writeLength(buf []byte, marker byte, n int) []byte {
	if n < extLength {
		return append(buf, marker|byte(n))
	}
	buf = append(buf, marker|extLength)
	return writeIntObject(buf, uint64(n))
}

// writeIntObject writes a self-contained integer object (marker + bytes)
// using the smallest of the four supported widths.
func writeIntObject(buf []byte, val uint64) []byte {
	switch {
	case val <= math.MaxInt8:
		return append(buf, byte(markerInt<<4), byte(val))
	case val <= math.MaxInt16:
		buf = append(buf, byte(markerInt<<4)|0x1)
		return appendUint(buf, val, 2)
	case val <= math.MaxInt32:
		buf = append(buf, byte(markerInt<<4)|0x2)
		return appendUint(buf, val, 4)
	default:
		buf = append(buf, byte(markerInt<<4)|0x3)
		return appendUint(buf, val, 8)
	}
}

func writeObject(buf []byte, node encNode, refSize int) ([]byte, error) {
	v := node.v
	switch v.Kind() {
	case KindNull:
		return append(buf, byte(markerSingleton<<4)|singletonFill), nil
	case KindBool:
		b, _ := v.Bool()
		if b {
			return append(buf, byte(markerSingleton<<4)|singletonTrue), nil
		}
		return append(buf, byte(markerSingleton<<4)|singletonFalse), nil
	case KindInt:
		bi, _ := v.BigIntValue()
		return writeIntValue(buf, bi)
	case KindReal:
		f, _ := v.Real()
		buf = append(buf, byte(markerReal<<4)|0x3)
		bits := math.Float64bits(f)
		return appendUint(buf, bits, 8), nil
	case KindDate:
		t, _ := v.Date()
		buf = append(buf, byte(markerDate<<4)|0x3)
		seconds := t.Sub(AppleEpoch).Seconds()
		bits := math.Float64bits(seconds)
		return appendUint(buf, bits, 8), nil
	case KindData:
		d, _ := v.Data()
		buf = writeLength(buf, byte(markerData<<4), len(d))
		return append(buf, d...), nil
	case KindString:
		s := v.String()
		if isASCII(s) {
			buf = writeLength(buf, byte(markerASCII<<4), len(s))
			return append(buf, s...), nil
		}
		units := utf16.Encode([]rune(s))
		buf = writeLength(buf, byte(markerUTF16<<4), len(units))
		for _, u := range units {
			buf = appendUint(buf, uint64(u), 2)
		}
		return buf, nil
	case KindArray:
		buf = writeLength(buf, byte(markerArray<<4), len(node.children))
		for _, idx := range node.children {
			buf = appendUint(buf, uint64(idx), refSize)
		}
		return buf, nil
	case KindDict:
		buf = writeLength(buf, byte(markerDict<<4), len(node.keys))
		for _, idx := range node.keys {
			buf = appendUint(buf, uint64(idx), refSize)
		}
		for _, idx := range node.vals {
			buf = appendUint(buf, uint64(idx), refSize)
		}
		return buf, nil
	default:
		return buf, nil
	}
}

func writeIntValue(buf []byte, bi *big.Int) ([]byte, error) {
	if bi.IsInt64() {
		i := bi.Int64()
		switch {
		case i >= math.MinInt8 && i <= math.MaxInt8:
			return append(buf, byte(markerInt<<4), byte(i)), nil
		case i >= math.MinInt16 && i <= math.MaxInt16:
			buf = append(buf, byte(markerInt<<4)|0x1)
			return appendUint(buf, uint64(uint16(i)), 2), nil
		case i >= math.MinInt32 && i <= math.MaxInt32:
			buf = append(buf, byte(markerInt<<4)|0x2)
			return appendUint(buf, uint64(uint32(i)), 4), nil
		default:
			buf = append(buf, byte(markerInt<<4)|0x3)
			return appendUint(buf, uint64(i), 8), nil
		}
	}
	// magnitude exceeds int64: must be a non-negative value representable
	// in 64 unsigned bits (bplist has no wider native integer width).
	if bi.Sign() >= 0 && bi.IsUint64() {
		buf = append(buf, byte(markerInt<<4)|0x3)
		return appendUint(buf, bi.Uint64(), 8), nil
	}
	return nil, &ioserr.ParseError{Msg: fmt.Sprintf("integer %s is out of range for a bplist00 integer object", bi.String())}
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

// DecodeBinary parses a "bplist00" binary property list into a Value.
func DecodeBinary(data []byte) (Value, error) {
	if len(data) < 8+trailerSize || string(data[:8]) != binaryMagic {
		return Value{}, &ioserr.ParseError{Msg: "not a bplist00 document"}
	}
	trailer := data[len(data)-trailerSize:]
	offsetIntSize := int(trailer[6])
	objectRefSize := int(trailer[7])
	numObjects := binary.BigEndian.Uint64(trailer[8:16])
	topObject := binary.BigEndian.Uint64(trailer[16:24])
	offsetTableOffset := binary.BigEndian.Uint64(trailer[24:32])

	if offsetIntSize == 0 || objectRefSize == 0 {
		return Value{}, &ioserr.ParseError{Msg: "bplist00 trailer has zero-width offset or ref size"}
	}

	d := &binaryDecoder{
		data:       data,
		refSize:    objectRefSize,
		resolved:   make(map[uint64]Value),
		resolving:  make(map[uint64]bool),
	}

	offsetTable := make([]uint64, numObjects)
	pos := offsetTableOffset
	for i := range offsetTable {
		v, err := readUint(data, pos, offsetIntSize)
		if err != nil {
			return Value{}, err
		}
		offsetTable[i] = v
		pos += uint64(offsetIntSize)
	}
	d.offsetTable = offsetTable

	if topObject >= numObjects {
		return Value{}, &ioserr.ParseError{Msg: "bplist00 top object index out of range"}
	}
	return d.decodeAt(topObject)
}

type binaryDecoder struct {
	data        []byte
	offsetTable []uint64
	refSize     int
	resolved    map[uint64]Value
	resolving   map[uint64]bool
}

func readUint(data []byte, pos uint64, width int) (uint64, error) {
	if pos+uint64(width) > uint64(len(data)) {
		return 0, &ioserr.ParseError{Msg: "bplist00 read past end of buffer"}
	}
	var v uint64
	for i := 0; i < width; i++ {
		v = v<<8 | uint64(data[pos+uint64(i)])
	}
	return v, nil
}

func (d *binaryDecoder) decodeAt(idx uint64) (Value, error) {
	if v, ok := d.resolved[idx]; ok {
		return v, nil
	}
	if d.resolving[idx] {
		return Value{}, &ioserr.ParseError{Msg: "bplist00 cyclic object reference"}
	}
	if idx >= uint64(len(d.offsetTable)) {
		return Value{}, &ioserr.ParseError{Msg: "bplist00 object reference out of range"}
	}
	d.resolving[idx] = true
	v, err := d.decodeObject(d.offsetTable[idx])
	delete(d.resolving, idx)
	if err != nil {
		return Value{}, err
	}
	d.resolved[idx] = v
	return v, nil
}

func (d *binaryDecoder) decodeObject(pos uint64) (Value, error) {
	if pos >= uint64(len(d.data)) {
		return Value{}, &ioserr.ParseError{Msg: "bplist00 object offset out of range"}
	}
	marker := d.data[pos]
	high := marker >> 4
	low := marker & 0x0F
	pos++

	switch high {
	case markerSingleton:
		switch low {
		case singletonNull, singletonFill:
			return Null(), nil
		case singletonFalse:
			return Bool(false), nil
		case singletonTrue:
			return Bool(true), nil
		default:
			return Value{}, &ioserr.ParseError{Msg: fmt.Sprintf("unknown singleton marker 0x%02x", marker)}
		}
	case markerInt:
		width := 1 << low
		raw, err := readUint(d.data, pos, width)
		if err != nil {
			return Value{}, err
		}
		if width >= 8 {
			if raw <= math.MaxInt64 {
				return Int(int64(raw)), nil
			}
			return BigInt(new(big.Int).SetUint64(raw)), nil
		}
		return Int(signExtend(raw, width)), nil
	case markerUID:
		width := int(low) + 1
		raw, err := readUint(d.data, pos, width)
		if err != nil {
			return Value{}, err
		}
		return BigInt(new(big.Int).SetUint64(raw)), nil
	case markerReal:
		width := 1 << low
		raw, err := readUint(d.data, pos, width)
		if err != nil {
			return Value{}, err
		}
		if width == 4 {
			return Real(float64(math.Float32frombits(uint32(raw)))), nil
		}
		return Real(math.Float64frombits(raw)), nil
	case markerDate:
		raw, err := readUint(d.data, pos, 8)
		if err != nil {
			return Value{}, err
		}
		seconds := math.Float64frombits(raw)
		return Date(AppleEpoch.Add(time.Duration(seconds * float64(time.Second)))), nil
	case markerData:
		length, newPos, err := d.readLength(pos, low)
		if err != nil {
			return Value{}, err
		}
		if newPos+uint64(length) > uint64(len(d.data)) {
			return Value{}, &ioserr.ParseError{Msg: "bplist00 data payload out of range"}
		}
		return Data(d.data[newPos : newPos+uint64(length)]), nil
	case markerASCII:
		length, newPos, err := d.readLength(pos, low)
		if err != nil {
			return Value{}, err
		}
		if newPos+uint64(length) > uint64(len(d.data)) {
			return Value{}, &ioserr.ParseError{Msg: "bplist00 ASCII string out of range"}
		}
		return String(string(d.data[newPos : newPos+uint64(length)])), nil
	case markerUTF16:
		length, newPos, err := d.readLength(pos, low)
		if err != nil {
			return Value{}, err
		}
		byteLen := uint64(length) * 2
		if newPos+byteLen > uint64(len(d.data)) {
			return Value{}, &ioserr.ParseError{Msg: "bplist00 UTF-16 string out of range"}
		}
		units := make([]uint16, length)
		for i := 0; i < length; i++ {
			units[i] = uint16(d.data[newPos+uint64(i)*2])<<8 | uint16(d.data[newPos+uint64(i)*2+1])
		}
		return String(string(utf16.Decode(units))), nil
	case markerArray:
		count, newPos, err := d.readLength(pos, low)
		if err != nil {
			return Value{}, err
		}
		items := make([]Value, count)
		for i := 0; i < count; i++ {
			refPos := newPos + uint64(i*d.refSize)
			ref, err := readUint(d.data, refPos, d.refSize)
			if err != nil {
				return Value{}, err
			}
			items[i], err = d.decodeAt(ref)
			if err != nil {
				return Value{}, err
			}
		}
		return Array(items...), nil
	case markerDict:
		count, newPos, err := d.readLength(pos, low)
		if err != nil {
			return Value{}, err
		}
		keyRefs := make([]uint64, count)
		for i := 0; i < count; i++ {
			ref, err := readUint(d.data, newPos+uint64(i*d.refSize), d.refSize)
			if err != nil {
				return Value{}, err
			}
			keyRefs[i] = ref
		}
		valStart := newPos + uint64(count*d.refSize)
		dict := NewDict()
		for i := 0; i < count; i++ {
			valRef, err := readUint(d.data, valStart+uint64(i*d.refSize), d.refSize)
			if err != nil {
				return Value{}, err
			}
			keyVal, err := d.decodeAt(keyRefs[i])
			if err != nil {
				return Value{}, err
			}
			if keyVal.kind != KindString {
				return Value{}, &ioserr.ParseError{Msg: "bplist00 dict key is not a string"}
			}
			key := keyVal.s
			val, err := d.decodeAt(valRef)
			if err != nil {
				return Value{}, err
			}
			dict.Set(key, val)
		}
		return DictValue(dict), nil
	default:
		return Value{}, &ioserr.ParseError{Msg: fmt.Sprintf("unknown bplist00 type marker 0x%02x", marker)}
	}
}

// readLength interprets the low nibble of a container/string/data marker,
// following the 0x0F extended-length-follows convention.
func (d *binaryDecoder) readLength(pos uint64, low byte) (length int, newPos uint64, err error) {
	if low != extLength {
		return int(low), pos, nil
	}
	if pos >= uint64(len(d.data)) {
		return 0, 0, &ioserr.ParseError{Msg: "bplist00 truncated extended length"}
	}
	lenMarker := d.data[pos]
	if lenMarker>>4 != markerInt {
		return 0, 0, &ioserr.ParseError{Msg: fmt.Sprintf("bplist00 extended length marker 0x%02x is not an integer", lenMarker)}
	}
	width := 1 << (lenMarker & 0x0F)
	raw, err := readUint(d.data, pos+1, width)
	if err != nil {
		return 0, 0, err
	}
	return int(raw), pos + 1 + uint64(width), nil
}

func signExtend(raw uint64, width int) int64 {
	bits := uint(width * 8)
	shift := 64 - bits
	return int64(raw<<shift) >> shift
}
