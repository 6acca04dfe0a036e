package capture

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/muurk/tuyatap/internal/protocol"
)

// Writer streams capture records to an output as JSON lines, flushing after
// every record so an interrupted capture keeps everything up to its last
// complete read. Writer is safe for concurrent use: live taps write from one
// goroutine per direction.
type Writer struct {
	mu    sync.Mutex
	buf   *bufio.Writer
	enc   *json.Encoder
	file  io.Closer
	count int64
}

// NewWriter wraps w and immediately writes the session header line.
func NewWriter(w io.Writer, info SessionInfo) (*Writer, error) {
	buf := bufio.NewWriter(w)
	cw := &Writer{buf: buf, enc: json.NewEncoder(buf)}
	info.Type = recordTypeSession
	if err := cw.enc.Encode(info); err != nil {
		return nil, fmt.Errorf("writing session header: %w", err)
	}
	if err := buf.Flush(); err != nil {
		return nil, fmt.Errorf("writing session header: %w", err)
	}
	return cw, nil
}

// Create opens path for writing and returns a Writer that owns the file.
// An existing file is truncated.
func Create(path string, info SessionInfo) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating capture file: %w", err)
	}
	w, err := NewWriter(f, info)
	if err != nil {
		f.Close()
		return nil, err
	}
	w.file = f
	return w, nil
}

// WriteChunk appends one read to the capture.
func (w *Writer) WriteChunk(dir protocol.Direction, t time.Time, data []byte) error {
	return w.WriteRecord(NewRecord(dir, t, data))
}

// WriteRecord appends an already built record.
func (w *Writer) WriteRecord(rec Record) error {
	rec.Type = recordTypeChunk
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enc.Encode(rec); err != nil {
		return fmt.Errorf("writing capture record: %w", err)
	}
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("writing capture record: %w", err)
	}
	w.count++
	return nil
}

// Records returns the number of chunk records written so far.
func (w *Writer) Records() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Close flushes buffered output and closes the file when the Writer owns
// one. It is a no-op on a Writer wrapping a caller-owned io.Writer beyond
// the flush.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.buf.Flush(); err != nil {
		return err
	}
	if w.file != nil {
		return w.file.Close()
	}
	return nil
}
