// Package capture reads and writes tuyatap session files.
//
// A session file is JSON lines: one session header followed by one record
// per serial read, in arrival order. Both directions of the link share the
// file; each record names its source. The format is append-only so a capture
// interrupted by a crash or unplugged adapter loses at most its final line,
// and the reader tolerates that.
//
// # File Layout
//
//	{"type":"session","session_id":"5f0c...","started":"2025-03-14T09:26:53.1Z","module_port":"/dev/ttyUSB0","mcu_port":"/dev/ttyUSB1","baud":9600}
//	{"type":"chunk","time":"2025-03-14T09:26:53.2Z","time_ms":1741944413200,"source":"module","len":7,"hex":"55aa00000000ff","ascii":"U......"}
//	{"type":"chunk","time":"2025-03-14T09:26:53.3Z","time_ms":1741944413300,"source":"mcu","len":8,"hex":"55aa030000010104","ascii":"U......."}
//
// Chunk boundaries are whatever the serial layer delivered; records are raw
// reads, not frames. Decoding happens on replay so a session captured once
// can be re-analysed as the decoder improves.
//
// # Replay
//
// Replayer feeds a session's chunks to a sink in file order with original
// timestamps, optionally pacing output to reproduce the original gaps.
// WritePcap exports a session for Wireshark.
package capture
