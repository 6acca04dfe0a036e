// Tuyatap is a passive decoder for the serial link between a Tuya WiFi
// module and the appliance MCU it controls.
//
// Tap the module and MCU TX lines with USB-serial adapters and tuyatap will
// record, decode and analyse the frames flowing between them:
//
//   - Record sessions to replayable JSONL capture files
//   - Watch decoded traffic live in a terminal dashboard
//   - Stream decoded frames to WebSocket clients
//   - Analyse captures: traffic stats, command histograms, heartbeat
//     cadence, request/response latency, per-DP value registry
//   - Export captures to pcap for Wireshark
//
// Tuyatap never transmits on the line. It observes, it does not control.
//
// See 'tuyatap --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/tuyatap/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "tuyatap",
	Short: "Tuya module/MCU serial protocol tap",
	Long: `Passive decoder for the serial link between a Tuya WiFi module and the
appliance MCU it controls.

Wire one USB-serial adapter per TX line (module TX and MCU TX), then capture,
watch, or analyse the conversation. Tuyatap never writes to the serial line.

A device profile (see 'tuyatap profile init') adds your own labels, units and
scales to the data points a device reports. Profiles only change how values
are displayed; decoding never depends on them.`,
	Version: version.Version,
	Example: `  # See which serial ports exist
  tuyatap ports

  # Record both directions to a capture file
  tuyatap capture --module-port /dev/ttyUSB0 --mcu-port /dev/ttyUSB1

  # Watch live traffic in the terminal dashboard
  tuyatap watch --module-port /dev/ttyUSB0 --mcu-port /dev/ttyUSB1

  # Re-watch a recorded session at its original pace
  tuyatap watch --replay capture-20260822-140102.jsonl

  # Full offline analysis of a capture
  tuyatap report capture-20260822-140102.jsonl

  # Stream decoded frames to WebSocket clients
  tuyatap serve --replay capture-20260822-140102.jsonl --mdns`,
}

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(captureCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(framesCmd)
	rootCmd.AddCommand(dpsCmd)
	rootCmd.AddCommand(portsCmd)
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(exportPcapCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("tuyatap %s (commit: %s)\n", version.Version, version.Commit)
	},
}
