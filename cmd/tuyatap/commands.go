package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/muurk/tuyatap/internal/analysis"
	"github.com/muurk/tuyatap/internal/capture"
	"github.com/muurk/tuyatap/internal/logging"
	"github.com/muurk/tuyatap/internal/monitor"
	"github.com/muurk/tuyatap/internal/profile"
	"github.com/muurk/tuyatap/internal/protocol"
	"github.com/muurk/tuyatap/internal/tap"
	"github.com/muurk/tuyatap/internal/tui"
)

// eventBuffer is the decode-to-view channel depth for the watch dashboard.
const eventBuffer = 64

// Command flags
var (
	modulePort  string
	mcuPort     string
	baudRate    int
	outDir      string
	logLevel    string
	replayPath  string
	profilePath string
	listenAddr  string
	enableMDNS  bool
	reportJSON  bool
	frameSource string
	invalidOnly bool
	rawHex      bool
	dpID        int
)

// captureCmd implements the 'capture' command
var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Record serial traffic to a session file",
	Long: `Record raw serial traffic from one or both tapped lines to a JSONL
session file.

Every read is stored with its arrival time, direction, hex bytes and a lossy
ASCII rendering, so the file stays greppable without a decoder. Decoded
frames are logged to the console as they arrive.

The capture flushes after every record: interrupting it with ctrl+c keeps
everything up to the last complete read.`,
	Example: `  # Capture both directions at the protocol default 9600 baud
  tuyatap capture --module-port /dev/ttyUSB0 --mcu-port /dev/ttyUSB1

  # Single-direction capture at 115200
  tuyatap capture --mcu-port /dev/ttyUSB1 --baud 115200

  # Write captures into a session directory, with chunk-level debug logging
  tuyatap capture --module-port /dev/ttyUSB0 --mcu-port /dev/ttyUSB1 \
    --out-dir ./captures --log-level debug`,
	RunE: runCapture,
}

func init() {
	captureCmd.Flags().StringVar(&modulePort, "module-port", "", "Serial port tapping the module TX line")
	captureCmd.Flags().StringVar(&mcuPort, "mcu-port", "", "Serial port tapping the MCU TX line")
	captureCmd.Flags().IntVar(&baudRate, "baud", tap.DefaultBaud, "Line baud rate")
	captureCmd.Flags().StringVar(&outDir, "out-dir", ".", "Directory the capture file is written into")
	captureCmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
}

func runCapture(cmd *cobra.Command, args []string) error {
	// Suppress usage on execution errors (we're past argument parsing)
	cmd.SilenceUsage = true

	cfgs, err := portConfigs()
	if err != nil {
		return err
	}

	if err := logging.Initialize(logLevel); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer logging.Sync()

	info := capture.NewSessionInfo(modulePort, mcuPort, baudRate)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	path := filepath.Join(outDir, capture.DefaultFileName(info.Started))
	w, err := capture.Create(path, info)
	if err != nil {
		return err
	}

	taps, err := openTaps(cfgs)
	if err != nil {
		w.Close()
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	fmt.Printf("Capturing to %s (ctrl+c to stop)\n", path)

	// The first write failure aborts the capture; everything before it is
	// already flushed to disk.
	var writeErr error
	var writeOnce sync.Once
	chunkSink := func(dir protocol.Direction, t time.Time, data []byte) {
		if err := w.WriteChunk(dir, t, data); err != nil {
			writeOnce.Do(func() {
				writeErr = err
				cancel()
			})
		}
	}

	var frames int64
	eventSink := func(ev protocol.Event) {
		atomic.AddInt64(&frames, 1)
		frame := ev.Frame
		logging.LogFrame(frame.Direction.String(), frame.Command.String(),
			len(frame.Payload), frame.ChecksumValid)
	}

	runErr := runTaps(ctx, taps, chunkSink, eventSink)
	closeErr := w.Close()

	switch {
	case writeErr != nil:
		return fmt.Errorf("capture aborted: %w", writeErr)
	case runErr != nil:
		return runErr
	case closeErr != nil:
		return closeErr
	}

	fmt.Printf("Capture complete: %d chunks, %d frames decoded, %s\n",
		w.Records(), atomic.LoadInt64(&frames), path)
	return nil
}

// watchCmd implements the 'watch' command
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch decoded traffic in a terminal dashboard",
	Long: `Watch decoded frames live in a full-screen terminal dashboard: a scrolling
frame log, a per-id data point table and traffic counters.

The dashboard runs from live serial taps or from a recorded session with
--replay, which plays the capture back at its original pace (long idle
stretches are shortened).

With a device profile loaded, data points show your labels and scaled
values next to the raw readings.`,
	Example: `  # Watch both directions live
  tuyatap watch --module-port /dev/ttyUSB0 --mcu-port /dev/ttyUSB1

  # Re-watch a recorded session
  tuyatap watch --replay capture-20260822-140102.jsonl

  # Watch with device-specific labels
  tuyatap watch --replay boiler.jsonl --profile boiler.yaml`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&modulePort, "module-port", "", "Serial port tapping the module TX line")
	watchCmd.Flags().StringVar(&mcuPort, "mcu-port", "", "Serial port tapping the MCU TX line")
	watchCmd.Flags().IntVar(&baudRate, "baud", tap.DefaultBaud, "Line baud rate")
	watchCmd.Flags().StringVar(&replayPath, "replay", "", "Replay a recorded session file instead of tapping live")
	watchCmd.Flags().StringVar(&profilePath, "profile", "", "Device profile for data point labels (default: the standard profile location)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	// Suppress usage on execution errors (we're past argument parsing)
	cmd.SilenceUsage = true

	live := modulePort != "" || mcuPort != ""
	if replayPath != "" && live {
		return fmt.Errorf("--replay and the live port flags are mutually exclusive")
	}
	if replayPath == "" && !live {
		return fmt.Errorf("either --replay or at least one of --module-port/--mcu-port is required")
	}
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("watch needs an interactive terminal; use 'tuyatap report' or 'tuyatap frames' for plain output")
	}

	prof, err := loadProfile()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan protocol.Event, eventBuffer)
	var session capture.SessionInfo
	var feedErr error

	if replayPath != "" {
		sess, err := capture.ReadFile(replayPath)
		if err != nil {
			return err
		}
		session = sess.Info
		go func() {
			defer close(events)
			_, err := replayFeed(ctx, sess, true, func(ev protocol.Event) { events <- ev })
			if err != nil && !errors.Is(err, context.Canceled) {
				feedErr = err
			}
		}()
	} else {
		cfgs, err := portConfigs()
		if err != nil {
			return err
		}
		taps, err := openTaps(cfgs)
		if err != nil {
			return err
		}
		session = capture.NewSessionInfo(modulePort, mcuPort, baudRate)
		go func() {
			defer close(events)
			if err := runTaps(ctx, taps, nil, func(ev protocol.Event) { events <- ev }); err != nil {
				feedErr = err
			}
		}()
	}

	model := tui.New(events, &session, prof)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, runErr := p.Run()

	// Unblock the feeder so it notices the cancelled context, then wait for
	// it to finish by draining until the channel closes.
	cancel()
	for range events {
	}

	if runErr != nil {
		return fmt.Errorf("dashboard error: %w", runErr)
	}
	return feedErr
}

// serveCmd implements the 'serve' command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Stream decoded frames to WebSocket clients",
	Long: `Decode live or recorded traffic and fan it out to WebSocket clients as
JSON events, one per frame.

Clients connect to /ws and first receive the session header, then every
decoded frame with its command name, payload hex, checksum state and data
points. A /healthz endpoint reports the client count. Replayed sessions are
paced to their original rhythm; the server keeps serving after the replay
ends so clients can catch up.

The monitor binds to loopback by default and has no authentication. Think
before exposing it wider.`,
	Example: `  # Stream a live tap to ws://127.0.0.1:8867/ws
  tuyatap serve --module-port /dev/ttyUSB0 --mcu-port /dev/ttyUSB1

  # Rebroadcast a recorded session, discoverable over mDNS
  tuyatap serve --replay capture-20260822-140102.jsonl --mdns

  # Custom listen address with profile annotations
  tuyatap serve --replay boiler.jsonl --listen 0.0.0.0:9000 --profile boiler.yaml`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&modulePort, "module-port", "", "Serial port tapping the module TX line")
	serveCmd.Flags().StringVar(&mcuPort, "mcu-port", "", "Serial port tapping the MCU TX line")
	serveCmd.Flags().IntVar(&baudRate, "baud", tap.DefaultBaud, "Line baud rate")
	serveCmd.Flags().StringVar(&replayPath, "replay", "", "Replay a recorded session file instead of tapping live")
	serveCmd.Flags().StringVar(&listenAddr, "listen", monitor.DefaultAddr, "Listen address for the WebSocket monitor")
	serveCmd.Flags().BoolVar(&enableMDNS, "mdns", false, "Advertise the monitor endpoint over mDNS")
	serveCmd.Flags().StringVar(&profilePath, "profile", "", "Device profile for data point labels (default: the standard profile location)")
	serveCmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
}

func runServe(cmd *cobra.Command, args []string) error {
	// Suppress usage on execution errors (we're past argument parsing)
	cmd.SilenceUsage = true

	live := modulePort != "" || mcuPort != ""
	if replayPath != "" && live {
		return fmt.Errorf("--replay and the live port flags are mutually exclusive")
	}
	if replayPath == "" && !live {
		return fmt.Errorf("either --replay or at least one of --module-port/--mcu-port is required")
	}

	if err := logging.Initialize(logLevel); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer logging.Sync()

	prof, err := loadProfile()
	if err != nil {
		return err
	}

	var sess *capture.Session
	var taps []*tap.Tap
	var session capture.SessionInfo
	if replayPath != "" {
		sess, err = capture.ReadFile(replayPath)
		if err != nil {
			return err
		}
		session = sess.Info
	} else {
		cfgs, err := portConfigs()
		if err != nil {
			return err
		}
		taps, err = openTaps(cfgs)
		if err != nil {
			return err
		}
		session = capture.NewSessionInfo(modulePort, mcuPort, baudRate)
	}

	srv, err := monitor.New(monitor.Config{
		Addr:    listenAddr,
		MDNS:    enableMDNS,
		Session: &session,
		Profile: prof,
	})
	if err != nil {
		for _, t := range taps {
			t.Close()
		}
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Monitor listening on ws://%s/ws (ctrl+c to stop)\n", srv.Addr())

	var feedErr error
	go func() {
		if sess != nil {
			skipped, err := replayFeed(ctx, sess, true, srv.Publish)
			if err != nil && !errors.Is(err, context.Canceled) {
				feedErr = err
				stop()
				return
			}
			logging.Info("Replay finished",
				zap.Int("records", len(sess.Records)),
				zap.Int("skipped", skipped),
			)
			return
		}
		if err := runTaps(ctx, taps, nil, srv.Publish); err != nil {
			feedErr = err
			stop()
		}
	}()

	if err := srv.Run(ctx); err != nil {
		return err
	}
	return feedErr
}

// reportCmd implements the 'report' command
var reportCmd = &cobra.Command{
	Use:   "report <capture.jsonl>",
	Short: "Analyse a recorded session",
	Long: `Run a recorded session through the decoder and print a full analysis:
traffic and integrity counters per direction, command histogram, heartbeat
cadence, request/response latencies and the data point registry.

With --json the summary is printed as a machine-readable document instead
of text. A profile annotates data point rows with labels and scaled values;
it never changes any counted quantity.`,
	Example: `  # Text report
  tuyatap report capture-20260822-140102.jsonl

  # Annotated with device labels
  tuyatap report capture-20260822-140102.jsonl --profile boiler.yaml

  # Machine-readable
  tuyatap report capture-20260822-140102.jsonl --json | jq .DataPoints`,
	Args: cobra.ExactArgs(1),
	RunE: runReport,
}

func init() {
	reportCmd.Flags().StringVar(&profilePath, "profile", "", "Device profile for data point labels (default: the standard profile location)")
	reportCmd.Flags().BoolVar(&reportJSON, "json", false, "Print the summary as JSON")
}

func runReport(cmd *cobra.Command, args []string) error {
	// Suppress usage on execution errors (we're past argument parsing)
	cmd.SilenceUsage = true

	session, err := readSession(args[0])
	if err != nil {
		return err
	}
	prof, err := loadProfile()
	if err != nil {
		return err
	}

	summary, _ := analysis.Analyze(session)
	if reportJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}
	analysis.WriteReport(os.Stdout, summary, prof)
	return nil
}

// framesCmd implements the 'frames' command
var framesCmd = &cobra.Command{
	Use:   "frames <capture.jsonl>",
	Short: "Dump decoded frames from a session",
	Long: `Decode a recorded session and print one line per frame: timestamp,
direction, command, version, length, checksum state and a payload preview,
with data point sub-lines where the payload carries them.

--hex switches to raw complete-frame hex, handy for diffing against another
decoder or for frames the parser does not understand.`,
	Example: `  # All frames with data point sub-lines
  tuyatap frames capture-20260822-140102.jsonl

  # Only MCU-side frames
  tuyatap frames capture-20260822-140102.jsonl --direction mcu

  # Corrupted frames, as raw hex
  tuyatap frames capture-20260822-140102.jsonl --invalid-only --hex`,
	Args: cobra.ExactArgs(1),
	RunE: runFrames,
}

func init() {
	framesCmd.Flags().StringVar(&frameSource, "direction", "", "Only frames from one side (module or mcu)")
	framesCmd.Flags().BoolVar(&invalidOnly, "invalid-only", false, "Only frames whose checksum failed")
	framesCmd.Flags().BoolVar(&rawHex, "hex", false, "Print complete frames as raw hex")
}

func runFrames(cmd *cobra.Command, args []string) error {
	// Suppress usage on execution errors (we're past argument parsing)
	cmd.SilenceUsage = true

	session, err := readSession(args[0])
	if err != nil {
		return err
	}
	_, events := analysis.Analyze(session)

	if frameSource != "" {
		dir, err := protocol.ParseDirection(frameSource)
		if err != nil {
			return err
		}
		events = filterEvents(events, func(ev protocol.Event) bool {
			return ev.Frame.Direction == dir
		})
	}
	if invalidOnly {
		events = filterEvents(events, func(ev protocol.Event) bool {
			return !ev.Frame.ChecksumValid
		})
	}

	if rawHex {
		for _, ev := range events {
			fmt.Printf("%s  %-8s % X\n", ev.Frame.Time.Format("15:04:05.000"),
				"["+ev.Frame.Direction.String()+"]", ev.Frame.Raw)
		}
		return nil
	}
	analysis.WriteFrameLog(os.Stdout, events, true)
	return nil
}

// filterEvents keeps the events the predicate accepts, in order.
func filterEvents(events []protocol.Event, keep func(protocol.Event) bool) []protocol.Event {
	out := events[:0]
	for _, ev := range events {
		if keep(ev) {
			out = append(out, ev)
		}
	}
	return out
}

// dpsCmd implements the 'dps' command
var dpsCmd = &cobra.Command{
	Use:   "dps <capture.jsonl>",
	Short: "Show the data point registry of a session",
	Long: `Decode a recorded session and print everything observed per data point id:
declared types, occurrence counts, first/last times, distinct values, the
signed value range and the reporting directions.

This is the view for working out what an unlabelled DP means: watch which id
moves when you press a button, then record what you learned in a profile.`,
	Example: `  # Every observed data point
  tuyatap dps capture-20260822-140102.jsonl

  # One id, with your labels applied
  tuyatap dps capture-20260822-140102.jsonl --id 2 --profile boiler.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runDPs,
}

func init() {
	dpsCmd.Flags().StringVar(&profilePath, "profile", "", "Device profile for data point labels (default: the standard profile location)")
	dpsCmd.Flags().IntVar(&dpID, "id", -1, "Only this data point id")
}

func runDPs(cmd *cobra.Command, args []string) error {
	// Suppress usage on execution errors (we're past argument parsing)
	cmd.SilenceUsage = true

	session, err := readSession(args[0])
	if err != nil {
		return err
	}
	prof, err := loadProfile()
	if err != nil {
		return err
	}

	summary, _ := analysis.Analyze(session)
	if dpID >= 0 {
		kept := summary.DataPoints[:0]
		for _, obs := range summary.DataPoints {
			if int(obs.ID) == dpID {
				kept = append(kept, obs)
			}
		}
		if len(kept) == 0 {
			return fmt.Errorf("DP %d was not observed in this session", dpID)
		}
		summary.DataPoints = kept
	}
	analysis.WriteDataPoints(os.Stdout, summary, prof)
	return nil
}

// portsCmd implements the 'ports' command
var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports on this machine",
	Example: `  # Find the USB-serial adapters
  tuyatap ports`,
	RunE: runPorts,
}

func runPorts(cmd *cobra.Command, args []string) error {
	// Suppress usage on execution errors (we're past argument parsing)
	cmd.SilenceUsage = true

	ports, err := tap.ListPorts()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Println("No serial ports found.")
		return nil
	}
	for _, p := range ports {
		fmt.Println(p)
	}
	return nil
}

// profileCmd groups profile management subcommands
var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage device profiles",
	Long: `Manage the YAML profiles that give data points human meaning.

A profile maps DP ids to labels, units, scales and enum value names. It is
purely advisory display metadata: decoding never consults it, so a wrong
profile can mislabel a value but never corrupt one.`,
}

func init() {
	profileCmd.AddCommand(profileInitCmd)
}

// profileInitCmd implements the 'profile init' command
var profileInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a starter profile to edit",
	Long: `Write a commented starter profile with example entries for the common
data point shapes: a boolean switch, a scaled temperature, an enum mode and
a fault bitmap.

Without a path the profile goes to the standard location, where watch,
report and dps pick it up automatically.`,
	Example: `  # Starter profile at the standard location
  tuyatap profile init

  # Per-device profile next to its captures
  tuyatap profile init ./boiler.yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runProfileInit,
}

func runProfileInit(cmd *cobra.Command, args []string) error {
	// Suppress usage on execution errors (we're past argument parsing)
	cmd.SilenceUsage = true

	var path string
	if len(args) == 1 {
		path = args[0]
	} else {
		p, err := profile.DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("profile already exists: %s (edit it, or pass a different path)", path)
	}
	if err := profile.CreateStarter(path); err != nil {
		return err
	}

	fmt.Printf("Starter profile written to %s\n", path)
	fmt.Println("Edit the labels, units and scales to match your device, then pass it")
	fmt.Println("to watch/report/dps with --profile (the standard location is picked up")
	fmt.Println("automatically).")
	return nil
}

// exportPcapCmd implements the 'export-pcap' command
var exportPcapCmd = &cobra.Command{
	Use:   "export-pcap <capture.jsonl> <out.pcap>",
	Short: "Convert a session to pcap for Wireshark",
	Long: `Convert a recorded session to a pcap file. Each captured chunk becomes one
packet on a user-defined link type, prefixed with a direction byte (0x00
module, 0x01 mcu), so a Wireshark dissector can tell the sides apart.`,
	Example: `  # Convert and open in Wireshark
  tuyatap export-pcap capture-20260822-140102.jsonl session.pcap`,
	Args: cobra.ExactArgs(2),
	RunE: runExportPcap,
}

func runExportPcap(cmd *cobra.Command, args []string) error {
	// Suppress usage on execution errors (we're past argument parsing)
	cmd.SilenceUsage = true

	session, err := readSession(args[0])
	if err != nil {
		return err
	}
	skipped, err := capture.ExportPcap(args[1], session)
	if err != nil {
		return err
	}

	fmt.Printf("Wrote %d packets to %s\n", len(session.Records)-skipped, args[1])
	if skipped > 0 {
		fmt.Printf("Skipped %d records that no longer decode\n", skipped)
	}
	return nil
}

// readSession loads a capture file, surfacing skipped lines as a warning
// rather than a failure so a torn capture still analyses.
func readSession(path string) (*capture.Session, error) {
	session, err := capture.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if session.Skipped > 0 {
		fmt.Fprintf(os.Stderr, "warning: %d unusable lines skipped in %s\n", session.Skipped, path)
	}
	return session, nil
}
