package analysis

import (
	"sort"
	"time"

	"github.com/muurk/tuyatap/internal/protocol"
)

// maxDistinctValues bounds how many distinct renderings are kept per data
// point. A sensor DP can take thousands of values over a long capture; past
// the cap only the occurrence count grows.
const maxDistinctValues = 64

// DirectionStats accumulates one side's traffic counters.
type DirectionStats struct {
	Chunks           int64
	Bytes            int64
	Frames           int64
	ChecksumFailures int64
	DroppedBytes     int64
	Commands         map[protocol.Command]int64
}

// IntervalStats summarises a series of durations.
type IntervalStats struct {
	Count int64
	Min   time.Duration
	Max   time.Duration
	Total time.Duration
}

// Mean returns the average observed duration, or zero before the first
// observation.
func (s IntervalStats) Mean() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Count)
}

func (s *IntervalStats) observe(d time.Duration) {
	if s.Count == 0 || d < s.Min {
		s.Min = d
	}
	if d > s.Max {
		s.Max = d
	}
	s.Total += d
	s.Count++
}

// ExchangeStats measures one request/response command pairing. A request
// becomes pending until a frame with the response command arrives from the
// opposite direction; a second request before that counts the first as
// unmatched.
type ExchangeStats struct {
	Request   protocol.Command
	Response  protocol.Command
	Matched   int64
	Unmatched int64
	Latency   IntervalStats
}

// DPObservation aggregates everything seen for one data point id over a
// session.
type DPObservation struct {
	ID        byte
	Count     int64
	FirstSeen time.Time
	LastSeen  time.Time
	LastValue protocol.Value
	LastRaw   []byte

	// Types counts records per declared type tag. More than one entry
	// means the id changed type mid-session, which is worth noticing.
	Types map[protocol.DPType]int64

	// Values counts occurrences per rendered value, capped at
	// maxDistinctValues distinct entries.
	Values          map[string]int64
	ValuesTruncated bool

	// MinSigned and MaxSigned track the range of Value records under the
	// signed interpretation. Nil until the first Value record.
	MinSigned *int64
	MaxSigned *int64

	// Sources counts records per reporting direction.
	Sources map[string]int64
}

// Summary is the complete result of collecting a session.
type Summary struct {
	SessionID  string
	Started    time.Time
	FirstFrame time.Time
	LastFrame  time.Time

	Module DirectionStats
	MCU    DirectionStats

	// Heartbeat is the cadence of module-side heartbeats, measured as the
	// gap between consecutive polls.
	Heartbeat IntervalStats

	Exchanges []ExchangeStats

	// DataPoints is sorted by id.
	DataPoints []DPObservation

	// BadRecords counts capture records that no longer decoded.
	BadRecords int
}

// Span returns the time between the first and last decoded frame.
func (s *Summary) Span() time.Duration {
	if s.FirstFrame.IsZero() || s.LastFrame.IsZero() {
		return 0
	}
	return s.LastFrame.Sub(s.FirstFrame)
}

// pendingRequest tracks an exchange awaiting its response.
type pendingRequest struct {
	at  time.Time
	dir protocol.Direction
	set bool
}

// Collector folds chunks and decoded events into a Summary. Feed events in
// chronological order across both directions; MergeEvents produces exactly
// that.
type Collector struct {
	summary Summary

	dps           map[byte]*DPObservation
	exchanges     []*ExchangeStats
	pending       []pendingRequest
	lastHeartbeat time.Time
}

// NewCollector returns an empty collector with the standard exchange
// pairings: heartbeat polls, DP status reports and DP sends, each matched
// against its acknowledgement from the other side.
func NewCollector() *Collector {
	c := &Collector{
		dps: make(map[byte]*DPObservation),
	}
	c.summary.Module.Commands = make(map[protocol.Command]int64)
	c.summary.MCU.Commands = make(map[protocol.Command]int64)
	for _, pair := range [][2]protocol.Command{
		{protocol.CmdHeartbeat, protocol.CmdHeartbeat},
		{protocol.CmdReportDPStatus, protocol.CmdDPStatusAck},
		{protocol.CmdSendDP, protocol.CmdSendDPAck},
	} {
		c.exchanges = append(c.exchanges, &ExchangeStats{Request: pair[0], Response: pair[1]})
		c.pending = append(c.pending, pendingRequest{})
	}
	return c
}

// SetSession records the capture header metadata.
func (c *Collector) SetSession(id string, started time.Time) {
	c.summary.SessionID = id
	c.summary.Started = started
}

// AddChunk counts one raw read.
func (c *Collector) AddChunk(dir protocol.Direction, n int) {
	stats := c.direction(dir)
	stats.Chunks++
	stats.Bytes += int64(n)
}

// AddBadRecord counts a capture record that failed to decode.
func (c *Collector) AddBadRecord() {
	c.summary.BadRecords++
}

// SetDropped records a pipeline's final dropped-byte count for one
// direction.
func (c *Collector) SetDropped(dir protocol.Direction, n int64) {
	c.direction(dir).DroppedBytes = n
}

// AddEvents folds a batch of decoded events, in order.
func (c *Collector) AddEvents(events []protocol.Event) {
	for _, ev := range events {
		c.AddEvent(ev)
	}
}

// AddEvent folds one decoded event.
func (c *Collector) AddEvent(ev protocol.Event) {
	frame := ev.Frame
	stats := c.direction(frame.Direction)
	stats.Frames++
	if !frame.ChecksumValid {
		stats.ChecksumFailures++
	}
	stats.Commands[frame.Command]++

	if c.summary.FirstFrame.IsZero() || frame.Time.Before(c.summary.FirstFrame) {
		c.summary.FirstFrame = frame.Time
	}
	if frame.Time.After(c.summary.LastFrame) {
		c.summary.LastFrame = frame.Time
	}

	if frame.Direction == protocol.DirModule && frame.Command == protocol.CmdHeartbeat {
		if !c.lastHeartbeat.IsZero() {
			c.summary.Heartbeat.observe(frame.Time.Sub(c.lastHeartbeat))
		}
		c.lastHeartbeat = frame.Time
	}

	c.observeExchanges(frame)

	for _, dp := range ev.DataPoints {
		c.observeDataPoint(frame, dp)
	}
}

func (c *Collector) observeExchanges(frame *protocol.Frame) {
	for i, ex := range c.exchanges {
		p := &c.pending[i]

		// Response check first so a command that is its own response
		// (heartbeat) pairs instead of replacing the pending request.
		if p.set && frame.Command == ex.Response && frame.Direction != p.dir {
			ex.Matched++
			ex.Latency.observe(frame.Time.Sub(p.at))
			p.set = false
			continue
		}
		if frame.Command == ex.Request {
			if p.set {
				ex.Unmatched++
			}
			*p = pendingRequest{at: frame.Time, dir: frame.Direction, set: true}
		}
	}
}

func (c *Collector) observeDataPoint(frame *protocol.Frame, dp protocol.DataPoint) {
	obs, ok := c.dps[dp.ID]
	if !ok {
		obs = &DPObservation{
			ID:        dp.ID,
			FirstSeen: frame.Time,
			Types:     make(map[protocol.DPType]int64),
			Values:    make(map[string]int64),
			Sources:   make(map[string]int64),
		}
		c.dps[dp.ID] = obs
	}
	obs.Count++
	obs.LastSeen = frame.Time
	obs.LastValue = dp.Value
	obs.LastRaw = dp.Raw
	obs.Types[dp.Type]++
	obs.Sources[frame.Direction.String()]++

	if iv, ok := dp.Value.(protocol.Integer); ok {
		if obs.MinSigned == nil || iv.Signed < *obs.MinSigned {
			v := iv.Signed
			obs.MinSigned = &v
		}
		if obs.MaxSigned == nil || iv.Signed > *obs.MaxSigned {
			v := iv.Signed
			obs.MaxSigned = &v
		}
	}

	key := renderValue(dp.Value)
	if _, seen := obs.Values[key]; seen || len(obs.Values) < maxDistinctValues {
		obs.Values[key]++
	} else {
		obs.ValuesTruncated = true
	}
}

func renderValue(v protocol.Value) string {
	if v == nil {
		return "(none)"
	}
	return v.String()
}

// Summary finalises and returns the collected result. Pending unanswered
// requests count as unmatched. The collector can keep absorbing events
// afterwards; Summary may be called repeatedly.
func (c *Collector) Summary() *Summary {
	s := c.summary

	s.Exchanges = make([]ExchangeStats, len(c.exchanges))
	for i, ex := range c.exchanges {
		s.Exchanges[i] = *ex
		if c.pending[i].set {
			s.Exchanges[i].Unmatched++
		}
	}

	s.DataPoints = make([]DPObservation, 0, len(c.dps))
	for _, obs := range c.dps {
		s.DataPoints = append(s.DataPoints, *obs)
	}
	sort.Slice(s.DataPoints, func(i, j int) bool {
		return s.DataPoints[i].ID < s.DataPoints[j].ID
	})

	return &s
}

func (c *Collector) direction(dir protocol.Direction) *DirectionStats {
	if dir == protocol.DirModule {
		return &c.summary.Module
	}
	return &c.summary.MCU
}
