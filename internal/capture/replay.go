package capture

import (
	"context"
	"time"

	"github.com/muurk/tuyatap/internal/protocol"
)

// Sink receives replayed chunks in file order with their original
// timestamps.
type Sink func(dir protocol.Direction, t time.Time, data []byte)

// Replayer feeds a session's chunks to a sink. By default it runs as fast
// as the sink accepts; WithPacing makes it sleep between chunks to
// reproduce the original arrival rhythm, which is what the live view uses
// when re-watching a capture.
type Replayer struct {
	session *Session
	pace    bool
	maxGap  time.Duration
}

// NewReplayer returns a replayer over session.
func NewReplayer(session *Session) *Replayer {
	return &Replayer{session: session}
}

// WithPacing enables inter-chunk sleeps matching the recorded gaps. Gaps
// longer than maxGap are clamped so a capture with a long idle stretch does
// not stall the replay; maxGap <= 0 means no clamp.
func (r *Replayer) WithPacing(maxGap time.Duration) *Replayer {
	r.pace = true
	r.maxGap = maxGap
	return r
}

// Replay sends every decodable chunk to sink in file order. Records that no
// longer decode (hand-edited files) are skipped and counted in the returned
// value. Replay returns early with ctx.Err() when the context is cancelled.
func (r *Replayer) Replay(ctx context.Context, sink Sink) (skipped int, err error) {
	var prev time.Time
	for _, rec := range r.session.Records {
		chunk, cerr := rec.Chunk()
		if cerr != nil {
			skipped++
			continue
		}

		if r.pace && !prev.IsZero() {
			gap := chunk.Time.Sub(prev)
			if r.maxGap > 0 && gap > r.maxGap {
				gap = r.maxGap
			}
			if gap > 0 {
				timer := time.NewTimer(gap)
				select {
				case <-ctx.Done():
					timer.Stop()
					return skipped, ctx.Err()
				case <-timer.C:
				}
			}
		} else if err := ctx.Err(); err != nil {
			return skipped, err
		}
		prev = chunk.Time

		sink(chunk.Direction, chunk.Time, chunk.Data)
	}
	return skipped, nil
}
