package plist

import "bytes"

// ParsePlist auto-detects the wire form (binary "bplist00" vs. XML) and
// decodes it: a buffer beginning with the binary magic is binary,
// anything else is treated as UTF-8 XML.
func ParsePlist(data []byte) (Value, error) {
	if bytes.HasPrefix(data, []byte(binaryMagic)) {
		return DecodeBinary(data)
	}
	return DecodeXML(data)
}

// ToXML renders v as an XML property list document.
func ToXML(v Value) []byte {
	return EncodeXML(v)
}

// ToBinary renders v as a "bplist00" binary property list.
func ToBinary(v Value) ([]byte, error) {
	return EncodeBinary(v)
}
