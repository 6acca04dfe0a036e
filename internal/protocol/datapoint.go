package protocol

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// DPType is the declared type tag of a data point record.
type DPType byte

// Data point types from the Tuya serial protocol.
const (
	TypeBoolean DPType = 0x01
	TypeValue   DPType = 0x02
	TypeString  DPType = 0x03
	TypeEnum    DPType = 0x04
	TypeFault   DPType = 0x05
)

var dpTypeNames = map[DPType]string{
	TypeBoolean: "Boolean",
	TypeValue:   "Value",
	TypeString:  "String",
	TypeEnum:    "Enum",
	TypeFault:   "Fault",
}

// String returns the type name, or a generic label with the numeric tag for
// types outside the known set.
func (t DPType) String() string {
	if name, ok := dpTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Unknown (0x%02X)", byte(t))
}

// Value is the decoded form of a data point's value bytes. The concrete
// types are the closed set Bool, Integer, Text, Enum, Bitmap and Opaque;
// switch over them to consume a value.
type Value interface {
	fmt.Stringer
	dpValue()
}

// Bool is a decoded Boolean data point.
type Bool bool

func (Bool) dpValue() {}

func (b Bool) String() string {
	return strconv.FormatBool(bool(b))
}

// Integer is a decoded Value data point. The wire format does not declare
// signedness, so both readings of the big-endian bytes are kept: Signed is
// the two's-complement interpretation at the value's declared width,
// Unsigned the plain one. They agree whenever the top bit is clear.
type Integer struct {
	Signed   int64
	Unsigned uint64
}

func (Integer) dpValue() {}

func (v Integer) String() string {
	if v.Signed < 0 {
		return fmt.Sprintf("%d (unsigned %d)", v.Signed, v.Unsigned)
	}
	return strconv.FormatInt(v.Signed, 10)
}

// Text is a decoded String data point.
type Text string

func (Text) dpValue() {}

func (s Text) String() string {
	return string(s)
}

// Enum is a decoded Enum data point.
type Enum uint64

func (Enum) dpValue() {}

func (e Enum) String() string {
	return strconv.FormatUint(uint64(e), 10)
}

// Bitmap is a decoded Fault data point. Each set bit is one active fault.
type Bitmap uint64

func (Bitmap) dpValue() {}

func (m Bitmap) String() string {
	return fmt.Sprintf("0b%b", uint64(m))
}

// Opaque holds the value bytes of a data point that has no decoded form:
// an unknown type tag, or an integer wider than eight bytes.
type Opaque []byte

func (Opaque) dpValue() {}

func (o Opaque) String() string {
	return fmt.Sprintf("% X", []byte(o))
}

// DataPoint is one decoded data point record.
type DataPoint struct {
	ID     byte
	Type   DPType
	Length uint16 // declared value length from the record header
	Raw    []byte // value bytes, always retained
	Value  Value  // decoded value, nil when the record carries none
}

// String renders a one line summary suitable for logs.
func (dp DataPoint) String() string {
	if dp.Value == nil {
		return fmt.Sprintf("DP %d (%s) raw=% X", dp.ID, dp.Type, dp.Raw)
	}
	return fmt.Sprintf("DP %d (%s) = %s", dp.ID, dp.Type, dp.Value)
}

// ParseDataPoints decodes the sequence of data point records in payload.
// Records are a four byte header (id, type, big-endian value length)
// followed by that many value bytes, packed back to back. Parsing stops
// silently at the first record whose declared length runs past the payload
// end; complete records before it are still returned. A payload with no
// complete record yields nil.
func ParseDataPoints(payload []byte) []DataPoint {
	var dps []DataPoint
	for i := 0; i+4 <= len(payload); {
		vlen := int(binary.BigEndian.Uint16(payload[i+2 : i+4]))
		if i+4+vlen > len(payload) {
			break
		}
		typ := DPType(payload[i+1])
		raw := payload[i+4 : i+4+vlen : i+4+vlen]
		dps = append(dps, DataPoint{
			ID:     payload[i],
			Type:   typ,
			Length: uint16(vlen),
			Raw:    raw,
			Value:  decodeValue(typ, raw),
		})
		i += 4 + vlen
	}
	return dps
}

func decodeValue(t DPType, raw []byte) Value {
	switch t {
	case TypeBoolean:
		if len(raw) == 0 {
			return nil
		}
		return Bool(raw[0] != 0)
	case TypeValue:
		u, s, ok := bigEndianInt(raw)
		if !ok {
			return Opaque(raw)
		}
		return Integer{Signed: s, Unsigned: u}
	case TypeString:
		return Text(asciiLossy(raw))
	case TypeEnum:
		u, _, ok := bigEndianInt(raw)
		if !ok {
			return Opaque(raw)
		}
		return Enum(u)
	case TypeFault:
		u, _, ok := bigEndianInt(raw)
		if !ok {
			return Opaque(raw)
		}
		return Bitmap(u)
	default:
		return Opaque(raw)
	}
}

// bigEndianInt reads raw as a big-endian integer of its own width, returning
// the unsigned value and the sign-extended two's-complement one. Widths over
// eight bytes do not fit either reading and report ok false.
func bigEndianInt(raw []byte) (u uint64, s int64, ok bool) {
	if len(raw) > 8 {
		return 0, 0, false
	}
	for _, b := range raw {
		u = u<<8 | uint64(b)
	}
	if len(raw) == 0 || len(raw) == 8 {
		return u, int64(u), true
	}
	shift := uint(64 - 8*len(raw))
	return u, int64(u<<shift) >> shift, true
}

// asciiLossy renders raw as text, passing ASCII bytes through unchanged and
// substituting the Unicode replacement character for anything above 0x7F.
// The result is always valid UTF-8.
func asciiLossy(raw []byte) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, c := range raw {
		if c < utf8.RuneSelf {
			b.WriteByte(c)
		} else {
			b.WriteRune(utf8.RuneError)
		}
	}
	return b.String()
}
