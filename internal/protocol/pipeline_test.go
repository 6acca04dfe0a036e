package protocol

import (
	"bytes"
	"testing"
	"time"
)

var (
	testHeartbeat = []byte{0x55, 0xAA, 0x00, 0x00, 0x00, 0x00, 0xFF}
	testDPReport  = []byte{0x55, 0xAA, 0x00, 0x06, 0x00, 0x05, 0x01, 0x01, 0x00, 0x01, 0x01, 0x0E}
)

func mustFrame(t *testing.T, version byte, cmd Command, payload []byte) []byte {
	t.Helper()
	raw, err := BuildFrame(version, cmd, payload)
	if err != nil {
		t.Fatalf("BuildFrame() error = %v", err)
	}
	return raw
}

func TestPipelineSingleFrame(t *testing.T) {
	p := NewPipeline(DirMCU)
	t0 := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

	events := p.Feed(t0, testDPReport)
	if len(events) != 1 {
		t.Fatalf("Feed() returned %d events, want 1", len(events))
	}

	frame := events[0].Frame
	if frame.Command != CmdReportDPStatus {
		t.Errorf("Command = %v, want %v", frame.Command, CmdReportDPStatus)
	}
	if !frame.Time.Equal(t0) {
		t.Errorf("Time = %v, want %v", frame.Time, t0)
	}
	if !frame.ChecksumValid {
		t.Error("ChecksumValid = false for well-formed frame")
	}

	dps := events[0].DataPoints
	if len(dps) != 1 {
		t.Fatalf("DataPoints = %v, want exactly one", dps)
	}
	if dps[0].ID != 1 || dps[0].Type != TypeBoolean || dps[0].Value != Bool(true) {
		t.Errorf("DataPoints[0] = %v, want DP 1 Boolean true", dps[0])
	}

	if p.Frames() != 1 || p.Dropped() != 0 || p.Pending() != 0 {
		t.Errorf("counters Frames=%d Dropped=%d Pending=%d, want 1, 0, 0", p.Frames(), p.Dropped(), p.Pending())
	}
	if p.BytesFed() != int64(len(testDPReport)) {
		t.Errorf("BytesFed() = %d, want %d", p.BytesFed(), len(testDPReport))
	}
}

func TestPipelineFragmentationInvariance(t *testing.T) {
	// A frame fed byte by byte decodes identically to the same frame fed
	// whole, and nothing is emitted before the final byte arrives.
	whole := NewPipeline(DirMCU)
	wholeEvents := whole.Feed(time.Unix(0, 0), testDPReport)

	split := NewPipeline(DirMCU)
	t0 := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	var splitEvents []Event
	for i, b := range testDPReport {
		events := split.Feed(t0.Add(time.Duration(i)*time.Millisecond), []byte{b})
		if i < len(testDPReport)-1 && len(events) != 0 {
			t.Fatalf("events emitted after byte %d, want none before final byte", i)
		}
		splitEvents = append(splitEvents, events...)
	}

	if len(wholeEvents) != 1 || len(splitEvents) != 1 {
		t.Fatalf("events: whole=%d split=%d, want 1 and 1", len(wholeEvents), len(splitEvents))
	}
	w, s := wholeEvents[0].Frame, splitEvents[0].Frame
	if w.Command != s.Command || w.Version != s.Version || !bytes.Equal(w.Payload, s.Payload) || w.ChecksumValid != s.ChecksumValid {
		t.Errorf("split decode %+v differs from whole decode %+v", s, w)
	}
	// The frame is stamped with the arrival time of its first header byte.
	if !s.Time.Equal(t0) {
		t.Errorf("Time = %v, want %v", s.Time, t0)
	}
	if split.Dropped() != 0 {
		t.Errorf("Dropped() = %d, want 0", split.Dropped())
	}
}

func TestPipelineMarkerSplitAcrossChunks(t *testing.T) {
	p := NewPipeline(DirModule)
	t1 := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	t2 := t1.Add(30 * time.Millisecond)

	// First chunk ends in a lone 0x55: noise before it is dropped, the
	// possible marker half is held back.
	if events := p.Feed(t1, []byte{0xEE, 0x55}); len(events) != 0 {
		t.Fatalf("events after partial marker = %d, want 0", len(events))
	}
	if p.Dropped() != 1 || p.Pending() != 1 {
		t.Fatalf("Dropped=%d Pending=%d after partial marker, want 1, 1", p.Dropped(), p.Pending())
	}

	events := p.Feed(t2, testHeartbeat[1:])
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	frame := events[0].Frame
	if frame.Command != CmdHeartbeat {
		t.Errorf("Command = %v, want %v", frame.Command, CmdHeartbeat)
	}
	if !frame.Time.Equal(t1) {
		t.Errorf("Time = %v, want %v (arrival of the held marker byte)", frame.Time, t1)
	}
}

func TestPipelineConcatenatedFrames(t *testing.T) {
	var chunk []byte
	chunk = append(chunk, 0x0D, 0x0A)
	chunk = append(chunk, testHeartbeat...)
	chunk = append(chunk, 0x42)
	chunk = append(chunk, testDPReport...)

	p := NewPipeline(DirMCU)
	events := p.Feed(time.Unix(1700000000, 0), chunk)
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	if events[0].Frame.Command != CmdHeartbeat {
		t.Errorf("events[0].Command = %v, want %v", events[0].Frame.Command, CmdHeartbeat)
	}
	if events[1].Frame.Command != CmdReportDPStatus {
		t.Errorf("events[1].Command = %v, want %v", events[1].Frame.Command, CmdReportDPStatus)
	}
	if p.Dropped() != 3 {
		t.Errorf("Dropped() = %d, want 3 noise bytes", p.Dropped())
	}
}

func TestPipelineBadChecksumSkipsDataPoints(t *testing.T) {
	corrupt := append([]byte(nil), testDPReport...)
	corrupt[len(corrupt)-1] ^= 0xFF

	p := NewPipeline(DirMCU)
	events := p.Feed(time.Unix(0, 0), corrupt)
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	if events[0].Frame.ChecksumValid {
		t.Error("ChecksumValid = true for corrupted frame")
	}
	if events[0].DataPoints != nil {
		t.Errorf("DataPoints = %v, want nil for corrupted frame", events[0].DataPoints)
	}
	if p.ChecksumFailures() != 1 {
		t.Errorf("ChecksumFailures() = %d, want 1", p.ChecksumFailures())
	}
}

func TestPipelineDPCommandSet(t *testing.T) {
	dpPayload := []byte{0x01, 0x01, 0x00, 0x01, 0x01}

	tests := []struct {
		name    string
		opts    []Option
		frame   func(t *testing.T) []byte
		wantDPs int
	}{
		{
			name:    "heartbeat carries no data points",
			frame:   func(t *testing.T) []byte { return testHeartbeat },
			wantDPs: 0,
		},
		{
			name:    "send dp parsed by default",
			frame:   func(t *testing.T) []byte { return mustFrame(t, 0x00, CmdSendDP, dpPayload) },
			wantDPs: 1,
		},
		{
			name:    "send dp ack excluded even when configured in",
			opts:    []Option{WithDPCommands(NewCommandSet(CmdSendDPAck))},
			frame:   func(t *testing.T) []byte { return mustFrame(t, 0x00, CmdSendDPAck, dpPayload) },
			wantDPs: 0,
		},
		{
			name:    "custom set drops report dp status",
			opts:    []Option{WithDPCommands(NewCommandSet(CmdSendDP))},
			frame:   func(t *testing.T) []byte { return testDPReport },
			wantDPs: 0,
		},
		{
			name:    "custom set admits vendor command",
			opts:    []Option{WithDPCommands(NewCommandSet(Command(0x34)))},
			frame:   func(t *testing.T) []byte { return mustFrame(t, 0x00, Command(0x34), dpPayload) },
			wantDPs: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPipeline(DirModule, tt.opts...)
			events := p.Feed(time.Unix(0, 0), tt.frame(t))
			if len(events) != 1 {
				t.Fatalf("events = %d, want 1", len(events))
			}
			if got := len(events[0].DataPoints); got != tt.wantDPs {
				t.Errorf("DataPoints = %d records, want %d", got, tt.wantDPs)
			}
		})
	}
}

func TestPipelineCorruptLengthResync(t *testing.T) {
	var chunk []byte
	chunk = append(chunk, 0x55, 0xAA, 0x00, 0x06, 0xFF, 0xFF) // implausible declared length
	chunk = append(chunk, testHeartbeat...)

	p := NewPipeline(DirMCU)
	events := p.Feed(time.Unix(0, 0), chunk)
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1 after resync", len(events))
	}
	if events[0].Frame.Command != CmdHeartbeat {
		t.Errorf("Command = %v, want %v", events[0].Frame.Command, CmdHeartbeat)
	}
	if p.Dropped() != 6 {
		t.Errorf("Dropped() = %d, want 6", p.Dropped())
	}
}

func TestPipelineFlush(t *testing.T) {
	p := NewPipeline(DirMCU)

	if events := p.Feed(time.Unix(0, 0), testDPReport[:8]); len(events) != 0 {
		t.Fatalf("events = %d for incomplete frame, want 0", len(events))
	}
	if tail := p.Flush(); tail != 8 {
		t.Errorf("Flush() = %d, want 8", tail)
	}
	if p.Pending() != 0 {
		t.Errorf("Pending() = %d after Flush, want 0", p.Pending())
	}
	if p.Dropped() != 8 {
		t.Errorf("Dropped() = %d, want 8", p.Dropped())
	}

	// A clean end of stream flushes nothing.
	p2 := NewPipeline(DirMCU)
	p2.Feed(time.Unix(0, 0), testHeartbeat)
	if tail := p2.Flush(); tail != 0 {
		t.Errorf("Flush() = %d after complete frame, want 0", tail)
	}
}

func TestMergeEvents(t *testing.T) {
	t0 := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	ev := func(dir Direction, offset time.Duration) Event {
		return Event{Frame: &Frame{Direction: dir, Time: t0.Add(offset), Command: CmdHeartbeat}}
	}

	module := []Event{ev(DirModule, 0), ev(DirModule, 20*time.Millisecond), ev(DirModule, 50*time.Millisecond)}
	mcu := []Event{ev(DirMCU, 10*time.Millisecond), ev(DirMCU, 20*time.Millisecond)}

	merged := MergeEvents(module, mcu)
	if len(merged) != 5 {
		t.Fatalf("merged %d events, want 5", len(merged))
	}

	wantDirs := []Direction{DirModule, DirMCU, DirModule, DirMCU, DirModule}
	for i, want := range wantDirs {
		if merged[i].Frame.Direction != want {
			t.Errorf("merged[%d].Direction = %v, want %v", i, merged[i].Frame.Direction, want)
		}
	}
	for i := 1; i < len(merged); i++ {
		if merged[i].Frame.Time.Before(merged[i-1].Frame.Time) {
			t.Errorf("merged[%d] out of order: %v before %v", i, merged[i].Frame.Time, merged[i-1].Frame.Time)
		}
	}

	if got := MergeEvents(nil, mcu); len(got) != len(mcu) {
		t.Errorf("MergeEvents(nil, mcu) = %d events, want %d", len(got), len(mcu))
	}
	if got := MergeEvents(module, nil); len(got) != len(module) {
		t.Errorf("MergeEvents(module, nil) = %d events, want %d", len(got), len(module))
	}
}
