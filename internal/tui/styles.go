package tui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Color palette for the watch dashboard
var (
	// Primary colors
	PrimaryColor = lipgloss.Color("#7D56F4") // Purple - headers, module traffic
	SuccessColor = lipgloss.Color("#43BF6D") // Green - mcu traffic, valid checksums
	ErrorColor   = lipgloss.Color("#FF5555") // Red - checksum failures
	WarningColor = lipgloss.Color("#FFA500") // Orange - stream ended notice
	MutedColor   = lipgloss.Color("#626262") // Gray - timestamps, secondary info
	TextColor    = lipgloss.Color("#FFFFFF") // White - main content
)

// Layout constants
const (
	MinTerminalWidth = 60 // Minimum supported terminal width
	MaxContentWidth  = 120
)

// Shared styles for the watch dashboard
var (
	// TitleStyle is for the dashboard title
	TitleStyle = lipgloss.NewStyle().
			Foreground(PrimaryColor).
			Bold(true)

	// SubtitleStyle is for port and session info next to the title
	SubtitleStyle = lipgloss.NewStyle().
			Foreground(MutedColor)

	// ModuleStyle marks frames sent by the WiFi module
	ModuleStyle = lipgloss.NewStyle().
			Foreground(PrimaryColor)

	// MCUStyle marks frames sent by the MCU
	MCUStyle = lipgloss.NewStyle().
			Foreground(SuccessColor)

	// TimeStyle is for frame timestamps
	TimeStyle = lipgloss.NewStyle().
			Foreground(MutedColor)

	// OKStyle is for valid checksum markers
	OKStyle = lipgloss.NewStyle().
			Foreground(SuccessColor)

	// BadChecksumStyle is for checksum failure markers
	BadChecksumStyle = lipgloss.NewStyle().
				Foreground(ErrorColor).
				Bold(true)

	// DPLineStyle is for data point sub-lines in the frame log
	DPLineStyle = lipgloss.NewStyle().
			Foreground(TextColor)

	// TableTitleStyle is for the data point table heading
	TableTitleStyle = lipgloss.NewStyle().
			Foreground(PrimaryColor).
			Bold(true)

	// StatusBarStyle is for the counters row
	StatusBarStyle = lipgloss.NewStyle().
			Foreground(MutedColor)

	// EndedStyle is for the stream-ended notice
	EndedStyle = lipgloss.NewStyle().
			Foreground(WarningColor).
			Bold(true)

	// SpinnerStyle is for the waiting spinner
	SpinnerStyle = lipgloss.NewStyle().
			Foreground(PrimaryColor)
)

// GetTerminalSize returns the current terminal size, with fallbacks for
// non-tty output. Used to seed the layout before the first window size
// message arrives.
func GetTerminalSize() (int, int) {
	width, height, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return MinTerminalWidth, 24 // Default fallback
	}
	if width < MinTerminalWidth {
		width = MinTerminalWidth
	}
	if width > MaxContentWidth {
		width = MaxContentWidth
	}
	return width, height
}
