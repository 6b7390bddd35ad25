package plist

import "bytes"

// defaultMaxFrameLength bounds a single framed message; generous enough
// for a full IORegistry snapshot without letting a corrupt length field
// make the splitter buffer unboundedly.
const defaultMaxFrameLength = 32 * 1024 * 1024

// SplitterOptions configures the binary/framed half of Splitter. The
// defaults match lockdown's 4-byte big-endian length prefix.
type SplitterOptions struct {
	LengthPrefixOffset int
	LengthPrefixSize   int
	BigEndian          bool
	LengthAdjustment   int
	MaxFrameLength     int
}

// DefaultSplitterOptions returns lockdown-style framing: a bare 4-byte
// big-endian length prefix immediately followed by the payload.
func DefaultSplitterOptions() SplitterOptions {
	return SplitterOptions{
		LengthPrefixOffset: 0,
		LengthPrefixSize:   4,
		BigEndian:          true,
		LengthAdjustment:   0,
		MaxFrameLength:     defaultMaxFrameLength,
	}
}

// Splitter turns an arbitrary byte stream into individual plist
// messages. It is re-entrant: Feed can be called with chunks of any
// size, in any number of calls, and Next drains whatever complete
// messages have accumulated so far. It never drops a complete message;
// it may drop leading garbage up to the first recognizable start.
//
// Each call to Next re-examines the current buffer rather than sticking
// to a committed mode: if an XML marker appears anywhere in the
// buffered bytes, that takes priority over length-prefix framing, since
// a numeric length that happens to look plausible is far more likely to
// be misread garbage than a legitimate multi-megabyte frame sharing a
// stream with XML messages.
type Splitter struct {
	opts SplitterOptions
	buf  []byte
}

// NewSplitter creates a splitter with the given options, filling in
// zero fields from DefaultSplitterOptions.
func NewSplitter(opts SplitterOptions) *Splitter {
	def := DefaultSplitterOptions()
	if opts.LengthPrefixSize == 0 {
		opts.LengthPrefixSize = def.LengthPrefixSize
	}
	if opts.MaxFrameLength == 0 {
		opts.MaxFrameLength = def.MaxFrameLength
	}
	return &Splitter{opts: opts}
}

// Feed appends newly received bytes to the splitter's internal buffer.
func (s *Splitter) Feed(data []byte) {
	s.buf = append(s.buf, data...)
}

// Next extracts the next complete plist message, if one is available.
// ok is false when more data is needed; it is not an error condition.
func (s *Splitter) Next() (msg []byte, ok bool, err error) {
	for {
		if len(s.buf) == 0 {
			return nil, false, nil
		}

		if containsXMLMarker(s.buf) {
			m, rest, extracted := extractXMLMessage(s.buf)
			if !extracted {
				return nil, false, nil
			}
			s.buf = rest
			return m, true, nil
		}

		m, consumed, dropOne, needMore := s.extractFramedMessage()
		switch {
		case needMore:
			return nil, false, nil
		case dropOne:
			s.buf = s.buf[1:]
			continue
		default:
			s.buf = s.buf[consumed:]
			return m, true, nil
		}
	}
}

func containsXMLMarker(b []byte) bool {
	return bytes.Contains(b, []byte("<?xml")) || bytes.Contains(b, []byte("<plist"))
}

func extractXMLMessage(buf []byte) (msg []byte, rest []byte, ok bool) {
	startXML := bytes.Index(buf, []byte("<?xml"))
	startPlist := bytes.Index(buf, []byte("<plist"))
	start := firstNonNegative(startXML, startPlist)
	if start < 0 {
		return nil, buf, false
	}
	end := bytes.Index(buf[start:], []byte("</plist>"))
	if end < 0 {
		return nil, buf, false
	}
	end += start + len("</plist>")
	return buf[start:end], buf[end:], true
}

func firstNonNegative(a, b int) int {
	switch {
	case a < 0:
		return b
	case b < 0:
		return a
	case a < b:
		return a
	default:
		return b
	}
}

// extractFramedMessage attempts to pull one length-prefixed binary frame
// off the front of the buffer. The caller has already established that
// the buffer contains no XML marker, so a payload peek for "<?xml"/
// "<plist" is unnecessary here: it can never match.
func (s *Splitter) extractFramedMessage() (msg []byte, consumed int, dropOne, needMore bool) {
	buf := s.buf
	opts := s.opts

	if bytes.HasPrefix(buf, []byte(binaryMagic)) && opts.LengthPrefixOffset == 0 {
		// A bare binary plist with no length framing: the caller is
		// expected to feed one discrete read per message in this mode.
		return buf, len(buf), false, false
	}

	need := opts.LengthPrefixOffset + opts.LengthPrefixSize
	if len(buf) < need {
		return nil, 0, false, true
	}
	raw := buf[opts.LengthPrefixOffset : opts.LengthPrefixOffset+opts.LengthPrefixSize]

	length, plausible := decodePlausibleLength(raw, opts.BigEndian, opts.LengthAdjustment, opts.MaxFrameLength)
	if !plausible {
		length, plausible = decodePlausibleLength(raw, !opts.BigEndian, opts.LengthAdjustment, opts.MaxFrameLength)
	}
	if !plausible {
		return nil, 0, true, false
	}

	total := need + length
	if total > len(buf) {
		return nil, 0, false, true
	}

	return buf[need:total], total, false, false
}

func decodePlausibleLength(raw []byte, bigEndian bool, adjustment, max int) (int, bool) {
	var v uint32
	if bigEndian {
		for _, b := range raw {
			v = v<<8 | uint32(b)
		}
	} else {
		for i := len(raw) - 1; i >= 0; i-- {
			v = v<<8 | uint32(raw[i])
		}
	}
	length := int(v) + adjustment
	if length < 0 || length > max {
		return 0, false
	}
	return length, true
}
