// Package protocol implements the Tuya MCU serial protocol spoken between a
// Tuya WiFi module and the appliance microcontroller it is paired with.
//
// The two chips exchange frames over a plain UART link. Both directions use
// the same framing, so a single decoder serves taps on either line.
//
// # Frame Format
//
// Every frame has a fixed six byte header followed by a payload and a one
// byte checksum:
//
//	Offset  Size  Field
//	0       2     Marker bytes 0x55 0xAA
//	2       1     Protocol version
//	3       1     Command code
//	4       2     Payload length, big-endian
//	6       n     Payload
//	6+n     1     Checksum: sum of all preceding bytes modulo 256
//
// A checksum mismatch does not make a frame undecodable. Mismatches are
// common in real captures (glitched reads, bit errors on long wires) and are
// worth reporting, so Frame records validity as data instead of failing.
//
// # Reassembly
//
// Serial taps deliver arbitrary fragments: a frame may arrive across several
// reads, and one read may carry several frames plus boot noise. Assembler
// accumulates timestamped chunks per direction and Scanner walks the byte
// window, discarding noise, waiting on incomplete frames, and resynchronising
// past corrupt length fields. Pipeline ties the two together and emits
// decoded frames in arrival order.
//
// The module and MCU lines are independent byte streams. Interleaving bytes
// from both into one buffer produces garbage frames, so each direction gets
// its own Pipeline; MergeEvents interleaves the decoded output by timestamp
// when a single sequence is wanted.
//
// # Data Points
//
// Most commands that matter carry data point records: typed key-value units
// through which the MCU reports state and the module issues commands. A
// record is a four byte header (id, type, big-endian value length) followed
// by the value bytes. ParseDataPoints decodes the record list found in
// ReportDpStatus, DpStatusAck, QueryDpStatus and SendDp payloads.
//
// Numeric data points do not declare signedness on the wire, so Integer
// carries both the signed and unsigned reading and leaves the choice to the
// caller. The raw value bytes are preserved on every data point regardless
// of type.
//
// # Usage
//
//	p := protocol.NewPipeline(protocol.DirMCU)
//	for chunk := range reads {
//		for _, ev := range p.Feed(chunk.Time, chunk.Data) {
//			fmt.Println(ev.Frame)
//		}
//	}
//	tail, dropped := p.Flush()
//
// Pipeline and Assembler are not safe for concurrent use. Run one per
// direction and merge downstream.
package protocol
