package protocol

import "time"

// Chunk is one timestamped read from a serial tap or capture file. Chunk
// boundaries carry no protocol meaning; they only record when bytes arrived.
type Chunk struct {
	Direction Direction
	Time      time.Time
	Data      []byte
}

// timeMark records the arrival time of the bytes starting at an absolute
// stream offset. Marks are strictly increasing in offset.
type timeMark struct {
	off int64
	t   time.Time
}

// Assembler accumulates one direction's byte stream across chunk boundaries
// and tracks which arrival timestamp covers each buffered byte. It never
// inspects frame structure; a Scanner decides how much of the window to
// consume.
type Assembler struct {
	dir      Direction
	buf      []byte
	base     int64 // absolute stream offset of buf[0]
	marks    []timeMark
	appended int64
}

// NewAssembler returns an empty assembler for one direction.
func NewAssembler(dir Direction) *Assembler {
	return &Assembler{dir: dir}
}

// Direction returns the direction this assembler buffers.
func (a *Assembler) Direction() Direction {
	return a.dir
}

// Append adds one chunk's bytes to the tail of the window, recording t as
// the arrival time of every byte in it. Empty chunks are ignored.
func (a *Assembler) Append(t time.Time, data []byte) {
	if len(data) == 0 {
		return
	}
	a.marks = append(a.marks, timeMark{off: a.base + int64(len(a.buf)), t: t})
	a.buf = append(a.buf, data...)
	a.appended += int64(len(data))
}

// Window returns the buffered, not yet consumed bytes. The slice is only
// valid until the next Append or Advance.
func (a *Assembler) Window() []byte {
	return a.buf
}

// Pending returns the number of buffered bytes.
func (a *Assembler) Pending() int {
	return len(a.buf)
}

// BytesAppended returns the total number of bytes ever appended.
func (a *Assembler) BytesAppended() int64 {
	return a.appended
}

// TimeAt returns the arrival time of the window byte at index i: the
// timestamp of the chunk that delivered it. It returns the zero time when i
// is outside the window.
func (a *Assembler) TimeAt(i int) time.Time {
	if i < 0 || i >= len(a.buf) {
		return time.Time{}
	}
	target := a.base + int64(i)
	lo, hi := 0, len(a.marks)
	for lo < hi {
		mid := (lo + hi) / 2
		if a.marks[mid].off <= target {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	// lo is the first mark past target; the one before it covers the byte.
	// Appends always lay down a mark, so a non-empty window has lo >= 1.
	return a.marks[lo-1].t
}

// Advance consumes n bytes from the head of the window and drops timestamp
// marks that no longer cover any buffered byte. Advancing past the window
// end consumes the whole window.
func (a *Assembler) Advance(n int) {
	if n <= 0 {
		return
	}
	if n > len(a.buf) {
		n = len(a.buf)
	}
	a.base += int64(n)
	a.buf = a.buf[n:]
	if len(a.buf) == 0 {
		a.buf = nil
		a.marks = a.marks[:0]
		return
	}
	drop := 0
	for drop+1 < len(a.marks) && a.marks[drop+1].off <= a.base {
		drop++
	}
	if drop > 0 {
		a.marks = a.marks[drop:]
	}
}
