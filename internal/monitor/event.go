package monitor

import (
	"encoding/hex"
	"time"

	"github.com/muurk/tuyatap/internal/profile"
	"github.com/muurk/tuyatap/internal/protocol"
)

// Event is the JSON document sent to clients for one decoded frame.
type Event struct {
	Type        string      `json:"type"` // always "frame"
	Time        time.Time   `json:"time"`
	TimeMS      int64       `json:"time_ms"`
	Source      string      `json:"source"`
	Command     byte        `json:"command"`
	CommandName string      `json:"command_name"`
	Version     byte        `json:"version"`
	PayloadLen  int         `json:"payload_len"`
	ChecksumOK  bool        `json:"checksum_ok"`
	Hex         string      `json:"hex"` // complete raw frame
	DataPoints  []DataPoint `json:"data_points,omitempty"`
}

// DataPoint is the wire form of one decoded data point. Value records carry
// both integer readings so consumers never have to re-guess signedness.
type DataPoint struct {
	ID       byte    `json:"id"`
	Label    string  `json:"label,omitempty"` // from the profile, when loaded
	Type     byte    `json:"type"`
	TypeName string  `json:"type_name"`
	Value    string  `json:"value,omitempty"`
	Signed   *int64  `json:"signed,omitempty"`
	Unsigned *uint64 `json:"unsigned,omitempty"`
	Raw      string  `json:"raw"`
}

// NewEvent renders a decoded pipeline event into its wire form. The profile
// may be nil; when present it only adds labels and display hints.
func NewEvent(ev protocol.Event, prof *profile.Profile) Event {
	frame := ev.Frame
	e := Event{
		Type:        "frame",
		Time:        frame.Time,
		TimeMS:      frame.Time.UnixMilli(),
		Source:      frame.Direction.String(),
		Command:     byte(frame.Command),
		CommandName: frame.Command.String(),
		Version:     frame.Version,
		PayloadLen:  len(frame.Payload),
		ChecksumOK:  frame.ChecksumValid,
		Hex:         hex.EncodeToString(frame.Raw),
	}

	for _, dp := range ev.DataPoints {
		wire := DataPoint{
			ID:       dp.ID,
			Type:     byte(dp.Type),
			TypeName: dp.Type.String(),
			Raw:      hex.EncodeToString(dp.Raw),
		}
		if meta := prof.Meta(dp.ID); meta != nil && meta.Label != "" {
			wire.Label = meta.Label
		}
		if dp.Value != nil {
			wire.Value = prof.Describe(dp.ID, dp.Value)
		}
		if iv, ok := dp.Value.(protocol.Integer); ok {
			s, u := iv.Signed, iv.Unsigned
			wire.Signed = &s
			wire.Unsigned = &u
		}
		e.DataPoints = append(e.DataPoints, wire)
	}
	return e
}
