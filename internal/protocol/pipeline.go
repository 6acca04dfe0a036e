package protocol

import "time"

// Event is one decoded frame together with the data points extracted from
// its payload. DataPoints is nil for commands outside the pipeline's data
// point set and for frames whose checksum failed.
type Event struct {
	Frame      *Frame
	DataPoints []DataPoint
}

// Pipeline drives the decode chain for one direction of the link: bytes in,
// decoded events out. It owns an Assembler and a Scanner and applies the
// data point parser to qualifying frames.
//
// A Pipeline is not safe for concurrent use. Captures with both directions
// run two pipelines and merge their events afterwards.
type Pipeline struct {
	dir        Direction
	asm        *Assembler
	scanner    Scanner
	dpCommands CommandSet

	frames  int64
	badSums int64
	dropped int64
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithDPCommands overrides the set of commands whose payloads are parsed as
// data point records. Send DP Ack stays excluded regardless.
func WithDPCommands(set CommandSet) Option {
	return func(p *Pipeline) {
		p.dpCommands = set
	}
}

// WithMaxFrameSize overrides the scanner's sanity ceiling on total frame
// size.
func WithMaxFrameSize(n int) Option {
	return func(p *Pipeline) {
		p.scanner.MaxFrameSize = n
	}
}

// NewPipeline returns a pipeline for one direction with the default data
// point command set.
func NewPipeline(dir Direction, opts ...Option) *Pipeline {
	p := &Pipeline{
		dir:        dir,
		asm:        NewAssembler(dir),
		dpCommands: DefaultDPCommands(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Direction returns the direction this pipeline decodes.
func (p *Pipeline) Direction() Direction {
	return p.dir
}

// Feed appends one chunk of bytes stamped with arrival time t and returns
// the events completed by it, in stream order. It returns nil when the
// bytes complete no frame yet; the pipeline keeps them buffered.
func (p *Pipeline) Feed(t time.Time, data []byte) []Event {
	p.asm.Append(t, data)
	return p.drain()
}

func (p *Pipeline) drain() []Event {
	var events []Event
	for {
		consumed, raw := p.scanner.Scan(p.asm.Window())
		if consumed == 0 {
			return events
		}
		if raw == nil {
			p.dropped += int64(consumed)
			p.asm.Advance(consumed)
			continue
		}
		noise := consumed - len(raw)
		p.dropped += int64(noise)

		// Stamp the frame with the arrival time of its first header byte
		// and copy it out before the window moves.
		t := p.asm.TimeAt(noise)
		buf := append([]byte(nil), raw...)
		p.asm.Advance(consumed)

		frame, err := DecodeFrame(p.dir, t, buf)
		if err != nil {
			// The scanner only hands over structurally complete frames.
			p.dropped += int64(len(buf))
			continue
		}
		p.frames++
		if !frame.ChecksumValid {
			p.badSums++
		}
		ev := Event{Frame: frame}
		if frame.ChecksumValid && p.dpCommands.CarriesDataPoints(frame.Command) {
			ev.DataPoints = ParseDataPoints(frame.Payload)
		}
		events = append(events, ev)
	}
}

// Flush discards whatever incomplete tail is still buffered at end of
// stream and returns its size. Call it once after the last Feed; the tail
// counts toward Dropped.
func (p *Pipeline) Flush() (tail int) {
	tail = p.asm.Pending()
	if tail > 0 {
		p.dropped += int64(tail)
		p.asm.Advance(tail)
	}
	return tail
}

// Pending returns the number of buffered bytes not yet part of a complete
// frame.
func (p *Pipeline) Pending() int {
	return p.asm.Pending()
}

// BytesFed returns the total number of bytes appended over the pipeline's
// lifetime.
func (p *Pipeline) BytesFed() int64 {
	return p.asm.BytesAppended()
}

// Frames returns the number of frames decoded.
func (p *Pipeline) Frames() int64 {
	return p.frames
}

// ChecksumFailures returns the number of decoded frames whose checksum did
// not verify.
func (p *Pipeline) ChecksumFailures() int64 {
	return p.badSums
}

// Dropped returns the number of bytes discarded as noise, corrupt headers,
// or flushed tail.
func (p *Pipeline) Dropped() int64 {
	return p.dropped
}

// MergeEvents interleaves two per-direction event sequences into one,
// ordered by frame timestamp. Both inputs must already be in timestamp
// order, which pipelines guarantee for their own output. Ties and untimed
// frames keep a's events first, so the merge is stable.
func MergeEvents(a, b []Event) []Event {
	if len(a) == 0 {
		return b
	}
	if len(b) == 0 {
		return a
	}
	out := make([]Event, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if b[j].Frame.Time.Before(a[i].Frame.Time) {
			out = append(out, b[j])
			j++
		} else {
			out = append(out, a[i])
			i++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}
