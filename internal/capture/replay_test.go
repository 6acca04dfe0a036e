package capture

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/muurk/tuyatap/internal/protocol"
)

func testSession(t *testing.T) *Session {
	t.Helper()
	t0 := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	return &Session{
		Info: NewSessionInfo("/dev/ttyUSB0", "/dev/ttyUSB1", 9600),
		Records: []Record{
			NewRecord(protocol.DirModule, t0, []byte{0x55, 0xAA, 0x00, 0x00, 0x00, 0x00, 0xFF}),
			NewRecord(protocol.DirMCU, t0.Add(5*time.Millisecond), []byte{0x55, 0xAA, 0x03, 0x00}),
			NewRecord(protocol.DirMCU, t0.Add(9*time.Millisecond), []byte{0x00, 0x01, 0x01, 0x04}),
		},
	}
}

func TestReplayOrderAndPayloads(t *testing.T) {
	session := testSession(t)

	var got []protocol.Chunk
	skipped, err := NewReplayer(session).Replay(context.Background(), func(dir protocol.Direction, ts time.Time, data []byte) {
		got = append(got, protocol.Chunk{Direction: dir, Time: ts, Data: data})
	})
	if err != nil {
		t.Fatalf("Replay() error = %v", err)
	}
	if skipped != 0 {
		t.Errorf("skipped = %d, want 0", skipped)
	}
	if len(got) != len(session.Records) {
		t.Fatalf("sink saw %d chunks, want %d", len(got), len(session.Records))
	}
	for i, c := range got {
		want, err := session.Records[i].Chunk()
		if err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
		if c.Direction != want.Direction || !c.Time.Equal(want.Time) || !bytes.Equal(c.Data, want.Data) {
			t.Errorf("chunk %d = %+v, want %+v", i, c, want)
		}
	}
}

func TestReplaySkipsUndecodableRecords(t *testing.T) {
	session := testSession(t)
	session.Records[1].Hex = "not hex"

	var got int
	skipped, err := NewReplayer(session).Replay(context.Background(), func(protocol.Direction, time.Time, []byte) {
		got++
	})
	if err != nil {
		t.Fatalf("Replay() error = %v", err)
	}
	if skipped != 1 || got != 2 {
		t.Errorf("skipped = %d, delivered = %d, want 1 and 2", skipped, got)
	}
}

func TestReplayHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewReplayer(testSession(t)).Replay(ctx, func(protocol.Direction, time.Time, []byte) {
		t.Fatal("sink called after cancellation")
	})
	if err != context.Canceled {
		t.Errorf("Replay() error = %v, want context.Canceled", err)
	}
}

func TestReplayPacingClampsGaps(t *testing.T) {
	t0 := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	session := &Session{
		Info: NewSessionInfo("", "", 9600),
		Records: []Record{
			NewRecord(protocol.DirMCU, t0, []byte{0x01}),
			// Recorded an hour later; the clamp keeps replay fast.
			NewRecord(protocol.DirMCU, t0.Add(time.Hour), []byte{0x02}),
		},
	}

	start := time.Now()
	var got int
	_, err := NewReplayer(session).WithPacing(10 * time.Millisecond).Replay(context.Background(), func(protocol.Direction, time.Time, []byte) {
		got++
	})
	if err != nil {
		t.Fatalf("Replay() error = %v", err)
	}
	if got != 2 {
		t.Fatalf("delivered = %d, want 2", got)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("paced replay took %v, clamp did not apply", elapsed)
	}
}
