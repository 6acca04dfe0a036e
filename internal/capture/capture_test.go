package capture

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/muurk/tuyatap/internal/protocol"
)

func TestWriteReadRoundTrip(t *testing.T) {
	t0 := time.Date(2025, 3, 14, 9, 26, 53, 123456000, time.UTC)
	info := NewSessionInfo("/dev/ttyUSB0", "/dev/ttyUSB1", 9600)

	var buf bytes.Buffer
	w, err := NewWriter(&buf, info)
	if err != nil {
		t.Fatalf("NewWriter() error = %v", err)
	}

	chunks := []protocol.Chunk{
		{Direction: protocol.DirModule, Time: t0, Data: []byte{0x55, 0xAA, 0x00, 0x00, 0x00, 0x00, 0xFF}},
		{Direction: protocol.DirMCU, Time: t0.Add(40 * time.Millisecond), Data: []byte{0x55, 0xAA, 0x03, 0x00, 0x00, 0x01, 0x01, 0x04}},
		{Direction: protocol.DirMCU, Time: t0.Add(90 * time.Millisecond), Data: []byte{0x01}},
	}
	for _, c := range chunks {
		if err := w.WriteChunk(c.Direction, c.Time, c.Data); err != nil {
			t.Fatalf("WriteChunk() error = %v", err)
		}
	}
	if w.Records() != int64(len(chunks)) {
		t.Errorf("Records() = %d, want %d", w.Records(), len(chunks))
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	session, err := Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if session.Info.SessionID != info.SessionID {
		t.Errorf("SessionID = %q, want %q", session.Info.SessionID, info.SessionID)
	}
	if session.Info.ModulePort != "/dev/ttyUSB0" || session.Info.MCUPort != "/dev/ttyUSB1" || session.Info.Baud != 9600 {
		t.Errorf("session header = %+v, want ports and baud preserved", session.Info)
	}
	if session.Skipped != 0 {
		t.Errorf("Skipped = %d, want 0", session.Skipped)
	}
	if len(session.Records) != len(chunks) {
		t.Fatalf("Records = %d, want %d", len(session.Records), len(chunks))
	}

	for i, rec := range session.Records {
		chunk, err := rec.Chunk()
		if err != nil {
			t.Fatalf("record %d: Chunk() error = %v", i, err)
		}
		if chunk.Direction != chunks[i].Direction {
			t.Errorf("record %d: Direction = %v, want %v", i, chunk.Direction, chunks[i].Direction)
		}
		if !chunk.Time.Equal(chunks[i].Time) {
			t.Errorf("record %d: Time = %v, want %v", i, chunk.Time, chunks[i].Time)
		}
		if !bytes.Equal(chunk.Data, chunks[i].Data) {
			t.Errorf("record %d: Data = % X, want % X", i, chunk.Data, chunks[i].Data)
		}
		if rec.TimeMS != chunks[i].Time.UnixMilli() {
			t.Errorf("record %d: TimeMS = %d, want %d", i, rec.TimeMS, chunks[i].Time.UnixMilli())
		}
	}
}

func TestCreateAndReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture-test.jsonl")
	info := NewSessionInfo("", "/dev/ttyUSB1", 115200)

	w, err := Create(path, info)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := w.WriteChunk(protocol.DirMCU, time.Now(), []byte{0x55, 0xAA}); err != nil {
		t.Fatalf("WriteChunk() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	session, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if len(session.Records) != 1 {
		t.Fatalf("Records = %d, want 1", len(session.Records))
	}
	if session.Info.Baud != 115200 {
		t.Errorf("Baud = %d, want 115200", session.Info.Baud)
	}
}

func TestReadTolerance(t *testing.T) {
	lines := []string{
		`{"type":"session","session_id":"abc","started":"2025-03-14T09:26:53Z"}`,
		`{"type":"chunk","time":"2025-03-14T09:26:54Z","source":"mcu","len":2,"hex":"55aa","ascii":"U."}`,
		`{"type":"comment","note":"operator unplugged the adapter"}`,
		`this is not json`,
		``,
		`{"type":"chunk","time":"2025-03-14T09:26:55Z","source":"module","len":1,"hex":"00","asc`, // torn final line
	}

	session, err := Read(strings.NewReader(strings.Join(lines, "\n")))
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(session.Records) != 1 {
		t.Errorf("Records = %d, want 1", len(session.Records))
	}
	if session.Skipped != 3 {
		t.Errorf("Skipped = %d, want 3", session.Skipped)
	}
}

func TestReadRejectsNonCapture(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty input", ""},
		{"plain text", "hello\nworld\n"},
		{"chunk before header", `{"type":"chunk","time":"2025-03-14T09:26:54Z","source":"mcu","len":0,"hex":""}`},
		{"json but wrong shape", `{"frames":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(strings.NewReader(tt.input))
			if !errors.Is(err, ErrNotCapture) {
				t.Errorf("Read() error = %v, want ErrNotCapture", err)
			}
		})
	}
}

func TestRecordChunkErrors(t *testing.T) {
	tests := []struct {
		name string
		rec  Record
	}{
		{"unknown source", Record{Source: "pc", Hex: "55aa"}},
		{"bad hex", Record{Source: "mcu", Hex: "zz"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.rec.Chunk(); err == nil {
				t.Error("Chunk() expected error")
			}
		})
	}
}

func TestDefaultFileName(t *testing.T) {
	ts := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	if got, want := DefaultFileName(ts), "capture-20250314-092653.jsonl"; got != want {
		t.Errorf("DefaultFileName() = %q, want %q", got, want)
	}
}
