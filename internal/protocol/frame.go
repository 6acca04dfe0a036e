package protocol

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Frame layout constants.
const (
	Marker1 = 0x55 // first header marker byte
	Marker2 = 0xAA // second header marker byte

	// HeaderSize is the fixed frame header: two marker bytes, version,
	// command, and the big-endian payload length.
	HeaderSize = 6

	// MinFrameSize is a header plus the trailing checksum byte.
	MinFrameSize = HeaderSize + 1

	// DefaultMaxFrameSize is the sanity ceiling on total frame size used
	// when a Scanner is not configured with its own. Real traffic stays
	// well under it; declared lengths that blow past it are treated as
	// corrupt and resynchronised over.
	DefaultMaxFrameSize = 1024

	// MaxPayloadSize is the largest payload the length field can declare.
	MaxPayloadSize = 0xFFFF
)

// Direction identifies which side of the UART link transmitted a byte.
type Direction uint8

const (
	// DirModule is traffic transmitted by the Tuya WiFi module.
	DirModule Direction = iota
	// DirMCU is traffic transmitted by the appliance MCU.
	DirMCU
)

// String returns the short lowercase name used in capture files and logs.
func (d Direction) String() string {
	switch d {
	case DirModule:
		return "module"
	case DirMCU:
		return "mcu"
	default:
		return fmt.Sprintf("direction(%d)", uint8(d))
	}
}

// ParseDirection maps the names written by String back to a Direction.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "module":
		return DirModule, nil
	case "mcu":
		return DirMCU, nil
	default:
		return 0, fmt.Errorf("unknown direction %q", s)
	}
}

// Opposite returns the other side of the link.
func (d Direction) Opposite() Direction {
	if d == DirModule {
		return DirMCU
	}
	return DirModule
}

// Frame is one decoded protocol frame.
//
// ChecksumValid is data, not an error condition: frames with bad checksums
// decode normally so corruption on the wire can be observed and counted.
// Raw holds the complete frame bytes including markers and checksum, and
// Payload aliases the payload region of Raw.
type Frame struct {
	Direction     Direction
	Time          time.Time
	Version       byte
	Command       Command
	Payload       []byte
	Checksum      byte
	ChecksumValid bool
	Raw           []byte
}

// Checksum computes the protocol checksum over data: the byte sum modulo 256.
// For a complete frame the covered range is everything before the final byte.
func Checksum(data []byte) byte {
	var sum uint32
	for _, b := range data {
		sum += uint32(b)
	}
	return byte(sum)
}

// DecodeFrame decodes one complete frame from raw, which must contain exactly
// the frame bytes as extracted by a Scanner. It fails only on structural
// impossibilities (wrong markers, size not matching the declared length);
// checksum mismatches and unknown commands decode fine and are reported via
// the returned Frame.
func DecodeFrame(dir Direction, t time.Time, raw []byte) (*Frame, error) {
	if len(raw) < MinFrameSize {
		return nil, fmt.Errorf("frame too short: %d bytes, need at least %d", len(raw), MinFrameSize)
	}
	if raw[0] != Marker1 || raw[1] != Marker2 {
		return nil, fmt.Errorf("bad frame markers % X, want 55 AA", raw[:2])
	}
	declared := int(binary.BigEndian.Uint16(raw[4:6]))
	if want := HeaderSize + declared + 1; len(raw) != want {
		return nil, fmt.Errorf("frame size %d does not match declared payload length %d (want %d)", len(raw), declared, want)
	}
	return &Frame{
		Direction:     dir,
		Time:          t,
		Version:       raw[2],
		Command:       Command(raw[3]),
		Payload:       raw[HeaderSize : HeaderSize+declared],
		Checksum:      raw[len(raw)-1],
		ChecksumValid: Checksum(raw[:len(raw)-1]) == raw[len(raw)-1],
		Raw:           raw,
	}, nil
}

// BuildFrame encodes a frame with the given version, command and payload,
// computing the length field and checksum. A nil payload encodes a zero
// length frame, as used by heartbeats and acks.
func BuildFrame(version byte, cmd Command, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("payload %d bytes exceeds maximum %d", len(payload), MaxPayloadSize)
	}
	frame := make([]byte, 0, HeaderSize+len(payload)+1)
	frame = append(frame, Marker1, Marker2, version, byte(cmd))
	frame = binary.BigEndian.AppendUint16(frame, uint16(len(payload)))
	frame = append(frame, payload...)
	return append(frame, Checksum(frame)), nil
}

// String renders a one line summary suitable for logs.
func (f *Frame) String() string {
	status := "ok"
	if !f.ChecksumValid {
		status = "BAD CHECKSUM"
	}
	return fmt.Sprintf("[%s] %s v%d len=%d %s", f.Direction, f.Command, f.Version, len(f.Payload), status)
}
