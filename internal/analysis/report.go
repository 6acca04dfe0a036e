package analysis

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/muurk/tuyatap/internal/profile"
	"github.com/muurk/tuyatap/internal/protocol"
)

const clockLayout = "15:04:05.000"

// WriteReport renders the session summary as text. A profile, when not nil,
// annotates data point values with the user's labels and scales; it has no
// effect on any counted quantity.
func WriteReport(w io.Writer, s *Summary, prof *profile.Profile) {
	fmt.Fprintf(w, "=== tuyatap session report ===\n")
	if s.SessionID != "" {
		fmt.Fprintf(w, "Session:  %s\n", s.SessionID)
	}
	if !s.Started.IsZero() {
		fmt.Fprintf(w, "Started:  %s\n", s.Started.Format(time.RFC3339))
	}
	if s.FirstFrame.IsZero() {
		fmt.Fprintf(w, "\nNo frames decoded.\n")
		return
	}
	fmt.Fprintf(w, "Frames:   %s .. %s (span %s)\n",
		s.FirstFrame.Format(clockLayout), s.LastFrame.Format(clockLayout), fmtDuration(s.Span()))
	if s.BadRecords > 0 {
		fmt.Fprintf(w, "Warning:  %d capture records failed to decode\n", s.BadRecords)
	}

	fmt.Fprintf(w, "\nTraffic:\n")
	fmt.Fprintf(w, "  %-8s %8s %10s %8s %10s %9s\n", "source", "chunks", "bytes", "frames", "bad cksum", "dropped")
	writeDirectionRow(w, "module", s.Module)
	writeDirectionRow(w, "mcu", s.MCU)

	fmt.Fprintf(w, "\nCommands:\n")
	fmt.Fprintf(w, "  %-5s %-26s %8s %8s\n", "code", "name", "module", "mcu")
	for _, cmd := range sortedCommands(s) {
		fmt.Fprintf(w, "  0x%02X  %-26s %8d %8d\n",
			byte(cmd), cmd.String(), s.Module.Commands[cmd], s.MCU.Commands[cmd])
	}

	if s.Heartbeat.Count > 0 {
		fmt.Fprintf(w, "\nHeartbeat cadence: %d intervals, min/mean/max %s/%s/%s\n",
			s.Heartbeat.Count, fmtDuration(s.Heartbeat.Min), fmtDuration(s.Heartbeat.Mean()), fmtDuration(s.Heartbeat.Max))
	}

	fmt.Fprintf(w, "\nExchanges:\n")
	for _, ex := range s.Exchanges {
		if ex.Matched == 0 && ex.Unmatched == 0 {
			continue
		}
		fmt.Fprintf(w, "  %-42s %d matched, %d unmatched",
			fmt.Sprintf("%s -> %s", ex.Request, ex.Response), ex.Matched, ex.Unmatched)
		if ex.Latency.Count > 0 {
			fmt.Fprintf(w, ", latency min/mean/max %s/%s/%s",
				fmtDuration(ex.Latency.Min), fmtDuration(ex.Latency.Mean()), fmtDuration(ex.Latency.Max))
		}
		fmt.Fprintln(w)
	}

	if len(s.DataPoints) > 0 {
		fmt.Fprintf(w, "\nData points: %d ids observed\n", len(s.DataPoints))
		fmt.Fprintf(w, "  %-4s %-18s %7s  %-12s %-12s %s\n", "dp", "type", "count", "first", "last", "last value")
		for _, obs := range s.DataPoints {
			fmt.Fprintf(w, "  %-4d %-18s %7d  %-12s %-12s %s\n",
				obs.ID, dominantType(obs), obs.Count,
				obs.FirstSeen.Format(clockLayout), obs.LastSeen.Format(clockLayout),
				renderLastValue(obs, prof))
		}
	}
}

// renderLastValue applies profile display hints when both a value and a
// matching profile entry exist.
func renderLastValue(obs DPObservation, prof *profile.Profile) string {
	if obs.LastValue == nil {
		return renderValue(obs.LastValue)
	}
	return prof.Describe(obs.ID, obs.LastValue)
}

// WriteFrameLog renders the decoded event sequence, one frame per line, with
// data point sub-lines when showDPs is set.
func WriteFrameLog(w io.Writer, events []protocol.Event, showDPs bool) {
	for _, ev := range events {
		frame := ev.Frame
		status := "ok"
		if !frame.ChecksumValid {
			status = "BAD CHECKSUM"
		}
		fmt.Fprintf(w, "%s  %-8s %-26s v%d len=%-4d %-12s %s\n",
			frame.Time.Format(clockLayout), "["+frame.Direction.String()+"]",
			frame.Command, frame.Version, len(frame.Payload), status, payloadPreview(frame.Payload))
		if showDPs {
			for _, dp := range ev.DataPoints {
				fmt.Fprintf(w, "              %s\n", dp)
			}
		}
	}
}

// WriteDataPoints renders the full per-id registry including distinct value
// counts, the view used when hunting for what a DP means. Profile entries,
// when present, add the user's label and a described reading per id.
func WriteDataPoints(w io.Writer, s *Summary, prof *profile.Profile) {
	fmt.Fprintf(w, "=== data points ===\n")
	if len(s.DataPoints) == 0 {
		fmt.Fprintf(w, "No data points observed.\n")
		return
	}
	for _, obs := range s.DataPoints {
		fmt.Fprintf(w, "\nDP %d", obs.ID)
		meta := prof.Meta(obs.ID)
		if meta != nil && meta.Label != "" {
			fmt.Fprintf(w, " %q", meta.Label)
		}
		fmt.Fprintf(w, "  %s  (%d records", dominantType(obs), obs.Count)
		for _, src := range []string{"module", "mcu"} {
			if n := obs.Sources[src]; n > 0 {
				fmt.Fprintf(w, ", %s %d", src, n)
			}
		}
		fmt.Fprintf(w, ")\n")
		fmt.Fprintf(w, "  first %s  last %s  raw % X\n",
			obs.FirstSeen.Format(clockLayout), obs.LastSeen.Format(clockLayout), obs.LastRaw)
		if obs.MinSigned != nil {
			fmt.Fprintf(w, "  range: %d .. %d (signed reading)\n", *obs.MinSigned, *obs.MaxSigned)
		}
		if meta != nil && obs.LastValue != nil {
			fmt.Fprintf(w, "  reading: %s\n", prof.Describe(obs.ID, obs.LastValue))
		}
		if len(obs.Types) > 1 {
			fmt.Fprintf(w, "  type changed mid-session: %s\n", typeHistogram(obs))
		}
		parts := make([]string, 0, len(obs.Values))
		for _, vc := range sortedValues(obs) {
			parts = append(parts, fmt.Sprintf("%s x%d", vc.value, vc.count))
		}
		fmt.Fprintf(w, "  values: %s\n", strings.Join(parts, ", "))
		if obs.ValuesTruncated {
			fmt.Fprintf(w, "  (further distinct values not tracked)\n")
		}
	}
}

func writeDirectionRow(w io.Writer, name string, d DirectionStats) {
	fmt.Fprintf(w, "  %-8s %8d %10d %8d %10d %9d\n",
		name, d.Chunks, d.Bytes, d.Frames, d.ChecksumFailures, d.DroppedBytes)
}

func sortedCommands(s *Summary) []protocol.Command {
	seen := make(map[protocol.Command]struct{})
	var cmds []protocol.Command
	for _, stats := range []DirectionStats{s.Module, s.MCU} {
		for cmd := range stats.Commands {
			if _, ok := seen[cmd]; !ok {
				seen[cmd] = struct{}{}
				cmds = append(cmds, cmd)
			}
		}
	}
	sort.Slice(cmds, func(i, j int) bool { return cmds[i] < cmds[j] })
	return cmds
}

// dominantType names the most frequent declared type for a DP.
func dominantType(obs DPObservation) string {
	var best protocol.DPType
	bestCount := int64(-1)
	for typ, n := range obs.Types {
		if n > bestCount || (n == bestCount && typ < best) {
			best, bestCount = typ, n
		}
	}
	if bestCount < 0 {
		return "?"
	}
	return best.String()
}

func typeHistogram(obs DPObservation) string {
	types := make([]protocol.DPType, 0, len(obs.Types))
	for typ := range obs.Types {
		types = append(types, typ)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	out := ""
	for i, typ := range types {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%s x%d", typ, obs.Types[typ])
	}
	return out
}

type valueCount struct {
	value string
	count int64
}

func sortedValues(obs DPObservation) []valueCount {
	out := make([]valueCount, 0, len(obs.Values))
	for v, n := range obs.Values {
		out = append(out, valueCount{v, n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].value < out[j].value
	})
	return out
}

func payloadPreview(payload []byte) string {
	const maxPreview = 24
	if len(payload) == 0 {
		return ""
	}
	if len(payload) > maxPreview {
		return fmt.Sprintf("% X ..", payload[:maxPreview])
	}
	return fmt.Sprintf("% X", payload)
}

func fmtDuration(d time.Duration) string {
	switch {
	case d >= time.Minute:
		return d.Round(time.Second).String()
	case d >= time.Second:
		return d.Round(time.Millisecond).String()
	default:
		return d.Round(10 * time.Microsecond).String()
	}
}
