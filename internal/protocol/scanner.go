package protocol

import (
	"bytes"
	"encoding/binary"
)

// Scanner locates complete frames in an assembler window. It is stateless
// apart from configuration: every call re-derives its decision from the
// window alone, so callers may retry with a grown window after more bytes
// arrive.
type Scanner struct {
	// MaxFrameSize is the sanity ceiling on total frame size. A declared
	// length that would exceed it is treated as a corrupt header rather
	// than an instruction to buffer forever. Values below MinFrameSize
	// fall back to DefaultMaxFrameSize.
	MaxFrameSize int
}

// Scan inspects window and reports the next action:
//
//	consumed > 0, frame != nil  a complete frame; frame is the trailing
//	                            len(frame) bytes of the consumed span, and
//	                            anything before it was noise
//	consumed > 0, frame == nil  noise or a corrupt header byte to discard
//	consumed == 0               nothing actionable; wait for more bytes
//
// frame aliases window and must be copied if retained past the matching
// Advance. Bytes before a marker are noise, except that a trailing lone
// 0x55 is kept back in case its 0xAA partner arrives in the next chunk.
func (s *Scanner) Scan(window []byte) (consumed int, frame []byte) {
	maxSize := s.MaxFrameSize
	if maxSize < MinFrameSize {
		maxSize = DefaultMaxFrameSize
	}

	start := indexMarker(window)
	if start < 0 {
		n := len(window)
		if n > 0 && window[n-1] == Marker1 {
			n--
		}
		return n, nil
	}

	rest := window[start:]
	if len(rest) < HeaderSize {
		return start, nil
	}
	total := HeaderSize + int(binary.BigEndian.Uint16(rest[4:6])) + 1
	if total > maxSize {
		// Corrupt length field. Skip the first marker byte and let the
		// next pass resynchronise on whatever follows.
		return start + 1, nil
	}
	if len(rest) < total {
		return start, nil
	}
	return start + total, rest[:total:total]
}

// indexMarker returns the index of the first 0x55 0xAA pair in b, or -1 if
// none is complete. A 0x55 as the final byte does not count: it may be the
// first half of a marker split across chunks.
func indexMarker(b []byte) int {
	for i := 0; ; {
		j := bytes.IndexByte(b[i:], Marker1)
		if j < 0 {
			return -1
		}
		k := i + j
		if k+1 >= len(b) {
			return -1
		}
		if b[k+1] == Marker2 {
			return k
		}
		i = k + 1
	}
}
