// Package plist implements Apple's property list format: the XML dialect
// and the binary "bplist00" dialect, plus a stream splitter that turns an
// arbitrary byte stream (as produced by usbmuxd, lockdownd and friends)
// into individual plist messages.
package plist

import (
	"fmt"
	"math/big"
	"time"
)

// Kind identifies which alternative of the PlistValue tagged union is held.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindReal
	KindDate
	KindData
	KindString
	KindDict
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindReal:
		return "real"
	case KindDate:
		return "date"
	case KindData:
		return "data"
	case KindString:
		return "string"
	case KindDict:
		return "dict"
	case KindArray:
		return "array"
	default:
		return "unknown"
	}
}

// AppleEpoch is the reference instant for plist <date> and binary date
// values: 2001-01-01 00:00:00 UTC.
var AppleEpoch = time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)

// Value is the tagged-union value type for a decoded or hand-built plist
// node. Values are immutable once constructed; the zero Value is Null.
type Value struct {
	kind   Kind
	b      bool
	i      int64
	bigInt *big.Int // set only when the integer does not fit in int64
	f      float64
	t      time.Time
	data   []byte
	s      string
	dict   *Dict
	arr    []Value
}

// Null is the plist null/fill value.
func Null() Value { return Value{kind: KindNull} }

// Bool constructs a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int constructs a signed 64-bit integer value.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// BigInt constructs an integer value that may exceed the signed 64-bit
// range, as produced by 64-bit unsigned values stored in binary plists.
func BigInt(i *big.Int) Value {
	if i.IsInt64() {
		return Int(i.Int64())
	}
	return Value{kind: KindInt, bigInt: i}
}

// Real constructs an IEEE-754 double value.
func Real(f float64) Value { return Value{kind: KindReal, f: f} }

// Date constructs an absolute-instant value.
func Date(t time.Time) Value { return Value{kind: KindDate, t: t.UTC()} }

// Data constructs an opaque byte-string value. The given slice is copied.
func Data(b []byte) Value {
	cp := make([]byte, len(b))
	copy(cp, b)
	return Value{kind: KindData, data: cp}
}

// String constructs a UTF-8 string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// DictValue constructs a dict value from an already-built ordered Dict.
func DictValue(d *Dict) Value { return Value{kind: KindDict, dict: d} }

// Array constructs an ordered sequence value.
func Array(items ...Value) Value {
	cp := make([]Value, len(items))
	copy(cp, items)
	return Value{kind: KindArray, arr: cp}
}

// Kind returns the tag of this value.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether this value is the null alternative.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Bool returns the bool payload; ok is false if v is not a bool.
func (v Value) Bool() (b, ok bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

// Int returns the integer payload as an int64. ok is false if v is not an
// integer or if it overflows int64 (see BigIntValue for that case).
func (v Value) Int() (i int64, ok bool) {
	if v.kind != KindInt || v.bigInt != nil {
		return 0, false
	}
	return v.i, true
}

// BigIntValue returns the integer payload as an arbitrary-precision
// integer. Always succeeds for integer values, including ones that fit
// in int64.
func (v Value) BigIntValue() (*big.Int, bool) {
	if v.kind != KindInt {
		return nil, false
	}
	if v.bigInt != nil {
		return new(big.Int).Set(v.bigInt), true
	}
	return big.NewInt(v.i), true
}

// Real returns the float payload.
func (v Value) Real() (f float64, ok bool) {
	if v.kind != KindReal {
		return 0, false
	}
	return v.f, true
}

// Date returns the date payload as an absolute instant in UTC.
func (v Value) Date() (t time.Time, ok bool) {
	if v.kind != KindDate {
		return time.Time{}, false
	}
	return v.t, true
}

// Data returns the opaque byte-string payload.
func (v Value) Data() (b []byte, ok bool) {
	if v.kind != KindData {
		return nil, false
	}
	return v.data, true
}

// String returns the UTF-8 string payload.
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindInt:
		if v.bigInt != nil {
			return v.bigInt.String()
		}
		return fmt.Sprintf("%d", v.i)
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	default:
		return fmt.Sprintf("<plist %s>", v.kind)
	}
}

// Dict returns the ordered mapping payload.
func (v Value) Dict() (*Dict, bool) {
	if v.kind != KindDict {
		return nil, false
	}
	return v.dict, true
}

// Array returns the ordered sequence payload.
func (v Value) Array() ([]Value, bool) {
	if v.kind != KindArray {
		return nil, false
	}
	return v.arr, true
}

// Equal reports deep structural equality, used by the round-trip tests.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == other.b
	case KindInt:
		a, _ := v.BigIntValue()
		b, _ := other.BigIntValue()
		return a.Cmp(b) == 0
	case KindReal:
		return v.f == other.f
	case KindDate:
		return v.t.Equal(other.t)
	case KindData:
		if len(v.data) != len(other.data) {
			return false
		}
		for i := range v.data {
			if v.data[i] != other.data[i] {
				return false
			}
		}
		return true
	case KindString:
		return v.s == other.s
	case KindDict:
		if v.dict.Len() != other.dict.Len() {
			return false
		}
		for _, k := range v.dict.Keys() {
			a, ok := v.dict.Get(k)
			b, ok2 := other.dict.Get(k)
			if !ok || !ok2 || !a.Equal(b) {
				return false
			}
		}
		return true
	case KindArray:
		if len(v.arr) != len(other.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(other.arr[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// Dict is an insertion-order-preserving string-keyed mapping. Plist dict
// keys must be strings; this type enforces that at construction.
type Dict struct {
	keys   []string
	values map[string]Value
}

// NewDict creates an empty ordered dict.
func NewDict() *Dict {
	return &Dict{values: make(map[string]Value)}
}

// Set inserts or overwrites a key, preserving the position of the key on
// overwrite and appending it on first insertion.
func (d *Dict) Set(key string, v Value) *Dict {
	if _, exists := d.values[key]; !exists {
		d.keys = append(d.keys, key)
	}
	d.values[key] = v
	return d
}

// Get looks up a key.
func (d *Dict) Get(key string) (Value, bool) {
	v, ok := d.values[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (d *Dict) Keys() []string {
	return d.keys
}

// Len returns the number of keys.
func (d *Dict) Len() int {
	return len(d.keys)
}
