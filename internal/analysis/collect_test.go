package analysis

import (
	"fmt"
	"testing"
	"time"

	"github.com/muurk/tuyatap/internal/protocol"
)

func frameEvent(dir protocol.Direction, at time.Time, cmd protocol.Command, valid bool, dps ...protocol.DataPoint) protocol.Event {
	return protocol.Event{
		Frame:      &protocol.Frame{Direction: dir, Time: at, Command: cmd, ChecksumValid: valid},
		DataPoints: dps,
	}
}

func TestCollectorSummary(t *testing.T) {
	t0 := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

	boolTrue := protocol.DataPoint{ID: 1, Type: protocol.TypeBoolean, Length: 1, Raw: []byte{0x01}, Value: protocol.Bool(true)}
	boolFalse := protocol.DataPoint{ID: 1, Type: protocol.TypeBoolean, Length: 1, Raw: []byte{0x00}, Value: protocol.Bool(false)}
	val100 := protocol.DataPoint{ID: 106, Type: protocol.TypeValue, Length: 4, Raw: []byte{0, 0, 0, 0x64}, Value: protocol.Integer{Signed: 100, Unsigned: 100}}

	events := []protocol.Event{
		frameEvent(protocol.DirModule, t0, protocol.CmdHeartbeat, true),
		frameEvent(protocol.DirMCU, t0.Add(3*time.Millisecond), protocol.CmdHeartbeat, true),
		frameEvent(protocol.DirModule, t0.Add(15*time.Second), protocol.CmdHeartbeat, true),
		frameEvent(protocol.DirMCU, t0.Add(15*time.Second+4*time.Millisecond), protocol.CmdHeartbeat, true),
		frameEvent(protocol.DirMCU, t0.Add(20*time.Second), protocol.CmdReportDPStatus, true, boolTrue),
		frameEvent(protocol.DirModule, t0.Add(20*time.Second+2*time.Millisecond), protocol.CmdDPStatusAck, true),
		frameEvent(protocol.DirMCU, t0.Add(25*time.Second), protocol.CmdReportDPStatus, true, boolFalse, val100),
		frameEvent(protocol.DirModule, t0.Add(26*time.Second), protocol.CmdSendDP, false),
	}

	c := NewCollector()
	c.SetSession("abc-123", t0.Add(-time.Second))
	c.AddChunk(protocol.DirModule, 7)
	c.AddChunk(protocol.DirMCU, 12)
	c.AddChunk(protocol.DirMCU, 3)
	c.AddEvents(events)
	c.SetDropped(protocol.DirMCU, 5)

	s := c.Summary()

	if s.SessionID != "abc-123" {
		t.Errorf("SessionID = %q, want abc-123", s.SessionID)
	}
	if !s.FirstFrame.Equal(t0) || !s.LastFrame.Equal(t0.Add(26*time.Second)) {
		t.Errorf("frame span = %v .. %v, want %v .. %v", s.FirstFrame, s.LastFrame, t0, t0.Add(26*time.Second))
	}
	if s.Span() != 26*time.Second {
		t.Errorf("Span() = %v, want 26s", s.Span())
	}

	if s.Module.Frames != 4 || s.MCU.Frames != 4 {
		t.Errorf("frames module=%d mcu=%d, want 4 and 4", s.Module.Frames, s.MCU.Frames)
	}
	if s.Module.ChecksumFailures != 1 || s.MCU.ChecksumFailures != 0 {
		t.Errorf("checksum failures module=%d mcu=%d, want 1 and 0", s.Module.ChecksumFailures, s.MCU.ChecksumFailures)
	}
	if s.Module.Chunks != 1 || s.Module.Bytes != 7 {
		t.Errorf("module chunks=%d bytes=%d, want 1 and 7", s.Module.Chunks, s.Module.Bytes)
	}
	if s.MCU.Chunks != 2 || s.MCU.Bytes != 15 {
		t.Errorf("mcu chunks=%d bytes=%d, want 2 and 15", s.MCU.Chunks, s.MCU.Bytes)
	}
	if s.MCU.DroppedBytes != 5 {
		t.Errorf("mcu dropped = %d, want 5", s.MCU.DroppedBytes)
	}
	if s.Module.Commands[protocol.CmdHeartbeat] != 2 || s.MCU.Commands[protocol.CmdReportDPStatus] != 2 {
		t.Errorf("command histogram = %v / %v", s.Module.Commands, s.MCU.Commands)
	}

	// One interval between the two module heartbeats.
	if s.Heartbeat.Count != 1 || s.Heartbeat.Min != 15*time.Second || s.Heartbeat.Max != 15*time.Second {
		t.Errorf("heartbeat cadence = %+v, want one 15s interval", s.Heartbeat)
	}

	byPair := make(map[string]ExchangeStats)
	for _, ex := range s.Exchanges {
		byPair[fmt.Sprintf("%s>%s", ex.Request, ex.Response)] = ex
	}

	hb := byPair["Heartbeat>Heartbeat"]
	if hb.Matched != 2 || hb.Unmatched != 0 {
		t.Errorf("heartbeat exchange = %+v, want 2 matched", hb)
	}
	if hb.Latency.Min != 3*time.Millisecond || hb.Latency.Max != 4*time.Millisecond {
		t.Errorf("heartbeat latency = %+v, want min 3ms max 4ms", hb.Latency)
	}

	report := byPair["Report DP Status>DP Status Ack"]
	if report.Matched != 1 || report.Unmatched != 1 {
		t.Errorf("report exchange = %+v, want 1 matched 1 unmatched", report)
	}
	if report.Latency.Min != 2*time.Millisecond {
		t.Errorf("report latency min = %v, want 2ms", report.Latency.Min)
	}

	send := byPair["Send DP>Send DP Ack"]
	if send.Matched != 0 || send.Unmatched != 1 {
		t.Errorf("send exchange = %+v, want 0 matched 1 unmatched", send)
	}

	if len(s.DataPoints) != 2 {
		t.Fatalf("DataPoints = %d ids, want 2", len(s.DataPoints))
	}
	dp1 := s.DataPoints[0]
	if dp1.ID != 1 || dp1.Count != 2 {
		t.Errorf("dp1 = %+v, want id 1 count 2", dp1)
	}
	if dp1.Values["true"] != 1 || dp1.Values["false"] != 1 {
		t.Errorf("dp1 values = %v, want true x1 false x1", dp1.Values)
	}
	if dp1.Sources["mcu"] != 2 {
		t.Errorf("dp1 sources = %v, want mcu x2", dp1.Sources)
	}
	if !dp1.FirstSeen.Equal(t0.Add(20*time.Second)) || !dp1.LastSeen.Equal(t0.Add(25*time.Second)) {
		t.Errorf("dp1 seen = %v .. %v", dp1.FirstSeen, dp1.LastSeen)
	}
	if dp1.LastValue != protocol.Bool(false) {
		t.Errorf("dp1 last value = %v, want false", dp1.LastValue)
	}

	dp106 := s.DataPoints[1]
	if dp106.ID != 106 || dp106.Count != 1 {
		t.Errorf("dp106 = %+v, want id 106 count 1", dp106)
	}
	if dp106.LastValue != (protocol.Integer{Signed: 100, Unsigned: 100}) {
		t.Errorf("dp106 last value = %v", dp106.LastValue)
	}
	if dp106.MinSigned == nil || *dp106.MinSigned != 100 || *dp106.MaxSigned != 100 {
		t.Errorf("dp106 range = %v .. %v, want 100 .. 100", dp106.MinSigned, dp106.MaxSigned)
	}

	// Boolean DPs never get a numeric range.
	if dp1.MinSigned != nil || dp1.MaxSigned != nil {
		t.Errorf("dp1 range = %v .. %v, want none", dp1.MinSigned, dp1.MaxSigned)
	}
}

func TestCollectorSignedRange(t *testing.T) {
	t0 := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	c := NewCollector()

	for i, v := range []protocol.Integer{
		{Signed: 5, Unsigned: 5},
		{Signed: -100, Unsigned: 4294967196},
		{Signed: 42, Unsigned: 42},
	} {
		dp := protocol.DataPoint{ID: 9, Type: protocol.TypeValue, Length: 4, Raw: []byte{0, 0, 0, 0}, Value: v}
		c.AddEvent(frameEvent(protocol.DirMCU, t0.Add(time.Duration(i)*time.Second), protocol.CmdReportDPStatus, true, dp))
	}

	s := c.Summary()
	obs := s.DataPoints[0]
	if obs.MinSigned == nil || *obs.MinSigned != -100 {
		t.Errorf("MinSigned = %v, want -100", obs.MinSigned)
	}
	if obs.MaxSigned == nil || *obs.MaxSigned != 42 {
		t.Errorf("MaxSigned = %v, want 42", obs.MaxSigned)
	}
}

func TestCollectorValueTruncation(t *testing.T) {
	t0 := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	c := NewCollector()

	for i := 0; i < maxDistinctValues+6; i++ {
		dp := protocol.DataPoint{
			ID: 9, Type: protocol.TypeValue, Length: 4,
			Raw:   []byte{0, 0, 0, byte(i)},
			Value: protocol.Integer{Signed: int64(i), Unsigned: uint64(i)},
		}
		c.AddEvent(frameEvent(protocol.DirMCU, t0.Add(time.Duration(i)*time.Second), protocol.CmdReportDPStatus, true, dp))
	}

	s := c.Summary()
	if len(s.DataPoints) != 1 {
		t.Fatalf("DataPoints = %d, want 1", len(s.DataPoints))
	}
	obs := s.DataPoints[0]
	if obs.Count != int64(maxDistinctValues+6) {
		t.Errorf("Count = %d, want %d", obs.Count, maxDistinctValues+6)
	}
	if len(obs.Values) != maxDistinctValues {
		t.Errorf("distinct values = %d, want capped at %d", len(obs.Values), maxDistinctValues)
	}
	if !obs.ValuesTruncated {
		t.Error("ValuesTruncated = false, want true")
	}
}

func TestCollectorRepeatedSummary(t *testing.T) {
	t0 := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	c := NewCollector()
	c.AddEvent(frameEvent(protocol.DirModule, t0, protocol.CmdSendDP, true))

	first := c.Summary()
	second := c.Summary()
	if first.Exchanges[2].Unmatched != 1 || second.Exchanges[2].Unmatched != 1 {
		t.Errorf("pending request double counted across Summary calls: %d then %d",
			first.Exchanges[2].Unmatched, second.Exchanges[2].Unmatched)
	}
}
