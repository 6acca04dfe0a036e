// Package tap reads raw bytes from the serial lines between a Tuya module
// and its MCU. One Tap owns one port, so watching both directions means two
// taps, usually on two USB-serial adapters wired to the same UART pair.
package tap

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.bug.st/serial"

	"github.com/muurk/tuyatap/internal/logging"
	"github.com/muurk/tuyatap/internal/protocol"
)

// DefaultBaud is the line rate Tuya modules ship with. Some MCUs negotiate
// 115200 but 9600 is what boots talk.
const DefaultBaud = 9600

const (
	readBufSize = 4096
	// readTimeout bounds each blocking read so the loop can notice a
	// cancelled context on an idle line.
	readTimeout = 100 * time.Millisecond
)

// Config describes one tapped line.
type Config struct {
	Port      string
	Baud      int // DefaultBaud when zero
	Direction protocol.Direction
}

// Tap is an open serial port delivering timestamped reads.
type Tap struct {
	cfg  Config
	port serial.Port
}

// Open opens the configured port at 8N1 and prepares it for reading.
func Open(cfg Config) (*Tap, error) {
	if cfg.Baud <= 0 {
		cfg.Baud = DefaultBaud
	}
	mode := &serial.Mode{
		BaudRate: cfg.Baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", cfg.Port, err)
	}
	if err := port.SetReadTimeout(readTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("configuring %s: %w", cfg.Port, err)
	}
	logging.LogPortEvent(cfg.Port, "opened")
	return &Tap{cfg: cfg, port: port}, nil
}

// Direction returns which side of the link this tap listens to.
func (t *Tap) Direction() protocol.Direction {
	return t.cfg.Direction
}

// Port returns the device path the tap reads from.
func (t *Tap) Port() string {
	return t.cfg.Port
}

// Run reads the port until ctx is cancelled, calling handler with every
// non-empty read and its arrival time. Chunk boundaries are whatever the OS
// delivered; the decoder reassembles frames across them. Run returns nil on
// cancellation and the port error otherwise.
func (t *Tap) Run(ctx context.Context, handler func(time.Time, []byte)) error {
	buf := make([]byte, readBufSize)
	for {
		if ctx.Err() != nil {
			return nil
		}
		n, err := t.port.Read(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("reading %s: %w", t.cfg.Port, err)
		}
		if n == 0 {
			// Read timeout on an idle line.
			continue
		}
		ts := time.Now()
		data := make([]byte, n)
		copy(data, buf[:n])
		logging.LogChunk(t.cfg.Direction.String(), data)
		handler(ts, data)
	}
}

// Close releases the port.
func (t *Tap) Close() error {
	logging.LogPortEvent(t.cfg.Port, "closed")
	return t.port.Close()
}

// ListPorts returns the serial ports present on this machine, sorted.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("listing serial ports: %w", err)
	}
	sort.Strings(ports)
	return ports, nil
}
