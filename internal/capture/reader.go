package capture

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrNotCapture is returned when a file does not begin with a session header
// line.
var ErrNotCapture = errors.New("not a capture session file")

// Session is a fully read capture file.
type Session struct {
	Info    SessionInfo
	Records []Record

	// Skipped counts lines that were present but unusable: unknown record
	// types, malformed JSON mid-file, or the torn final line of an
	// interrupted capture.
	Skipped int
}

// ReadFile reads and parses the capture session at path.
func ReadFile(path string) (*Session, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening capture file: %w", err)
	}
	defer f.Close()
	s, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Read parses a capture session from r. The first line must be a session
// header; afterwards malformed or unknown lines are counted in Skipped
// rather than failing the whole session, since a capture cut off mid-write
// is still worth analysing.
func Read(r io.Reader) (*Session, error) {
	sc := bufio.NewScanner(r)
	// Hex encoding doubles chunk sizes; allow for large reads.
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNotCapture
	}

	var info SessionInfo
	if err := json.Unmarshal(sc.Bytes(), &info); err != nil || info.Type != recordTypeSession {
		return nil, ErrNotCapture
	}

	session := &Session{Info: info}
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var env struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(line, &env); err != nil {
			session.Skipped++
			continue
		}
		if env.Type != recordTypeChunk {
			session.Skipped++
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			session.Skipped++
			continue
		}
		session.Records = append(session.Records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return session, nil
}
