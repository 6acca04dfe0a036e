package analysis

import (
	"github.com/muurk/tuyatap/internal/capture"
	"github.com/muurk/tuyatap/internal/protocol"
)

// Analyze runs a capture session through a fresh pipeline per direction and
// returns the merged, timestamp-ordered event sequence with its summary.
// Records that no longer decode are counted, never fatal.
func Analyze(session *capture.Session, opts ...protocol.Option) (*Summary, []protocol.Event) {
	pipes := map[protocol.Direction]*protocol.Pipeline{
		protocol.DirModule: protocol.NewPipeline(protocol.DirModule, opts...),
		protocol.DirMCU:    protocol.NewPipeline(protocol.DirMCU, opts...),
	}

	c := NewCollector()
	c.SetSession(session.Info.SessionID, session.Info.Started)

	perDir := make(map[protocol.Direction][]protocol.Event, len(pipes))
	for _, rec := range session.Records {
		chunk, err := rec.Chunk()
		if err != nil {
			c.AddBadRecord()
			continue
		}
		c.AddChunk(chunk.Direction, len(chunk.Data))
		events := pipes[chunk.Direction].Feed(chunk.Time, chunk.Data)
		perDir[chunk.Direction] = append(perDir[chunk.Direction], events...)
	}

	for dir, p := range pipes {
		p.Flush()
		c.SetDropped(dir, p.Dropped())
	}

	merged := protocol.MergeEvents(perDir[protocol.DirModule], perDir[protocol.DirMCU])
	c.AddEvents(merged)
	return c.Summary(), merged
}
