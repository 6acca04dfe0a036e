package capture

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/muurk/tuyatap/internal/protocol"
)

// Record type discriminators, stored in the "type" field of every line.
const (
	recordTypeSession = "session"
	recordTypeChunk   = "chunk"
)

// SessionInfo is the header line of a capture file.
type SessionInfo struct {
	Type       string    `json:"type"`
	SessionID  string    `json:"session_id"`
	Started    time.Time `json:"started"`
	ModulePort string    `json:"module_port,omitempty"`
	MCUPort    string    `json:"mcu_port,omitempty"`
	Baud       int       `json:"baud,omitempty"`
}

// NewSessionInfo builds a header for a capture starting now, with a fresh
// session ID.
func NewSessionInfo(modulePort, mcuPort string, baud int) SessionInfo {
	return SessionInfo{
		Type:       recordTypeSession,
		SessionID:  uuid.New().String(),
		Started:    time.Now().UTC(),
		ModulePort: modulePort,
		MCUPort:    mcuPort,
		Baud:       baud,
	}
}

// Record is one serial read as stored in a capture file. Len, Hex and ASCII
// all describe the same bytes; ASCII is a lossy rendering kept so captures
// stay greppable without a decoder.
type Record struct {
	Type   string    `json:"type"`
	Time   time.Time `json:"time"`
	TimeMS int64     `json:"time_ms"`
	Source string    `json:"source"`
	Len    int       `json:"len"`
	Hex    string    `json:"hex"`
	ASCII  string    `json:"ascii"`
}

// NewRecord builds the stored form of one read.
func NewRecord(dir protocol.Direction, t time.Time, data []byte) Record {
	return Record{
		Type:   recordTypeChunk,
		Time:   t,
		TimeMS: t.UnixMilli(),
		Source: dir.String(),
		Len:    len(data),
		Hex:    hex.EncodeToString(data),
		ASCII:  printableASCII(data),
	}
}

// Chunk decodes the record back into the bytes and direction it stored.
func (r Record) Chunk() (protocol.Chunk, error) {
	dir, err := protocol.ParseDirection(r.Source)
	if err != nil {
		return protocol.Chunk{}, fmt.Errorf("record at %s: %w", r.Time.Format(time.RFC3339Nano), err)
	}
	data, err := hex.DecodeString(r.Hex)
	if err != nil {
		return protocol.Chunk{}, fmt.Errorf("record at %s: bad hex: %w", r.Time.Format(time.RFC3339Nano), err)
	}
	return protocol.Chunk{Direction: dir, Time: r.Time, Data: data}, nil
}

// DefaultFileName returns the conventional capture file name for a session
// started at t, capture-YYYYMMDD-HHMMSS.jsonl.
func DefaultFileName(t time.Time) string {
	return "capture-" + t.Format("20060102-150405") + ".jsonl"
}

func printableASCII(data []byte) string {
	out := make([]byte, len(data))
	for i, b := range data {
		if b >= 32 && b <= 126 {
			out[i] = b
		} else {
			out[i] = '.'
		}
	}
	return string(out)
}
