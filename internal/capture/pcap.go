package capture

import (
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// linkTypeUser0 is DLT_USER0, the libpcap link type reserved for private
// encapsulations. Wireshark dissects it with a user DLT table entry.
const linkTypeUser0 = layers.LinkType(147)

const pcapSnapLen = 65536

// WritePcap exports capture records as a pcap file. Each chunk becomes one
// packet: a single direction byte (0x00 module, 0x01 mcu) followed by the
// raw serial bytes, so Wireshark filters can split the two sides. Records
// that no longer decode are skipped and counted.
func WritePcap(w io.Writer, records []Record) (skipped int, err error) {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(pcapSnapLen, linkTypeUser0); err != nil {
		return 0, fmt.Errorf("writing pcap header: %w", err)
	}

	for _, rec := range records {
		chunk, cerr := rec.Chunk()
		if cerr != nil {
			skipped++
			continue
		}
		pkt := make([]byte, 0, len(chunk.Data)+1)
		pkt = append(pkt, byte(chunk.Direction))
		pkt = append(pkt, chunk.Data...)
		ci := gopacket.CaptureInfo{
			Timestamp:     chunk.Time,
			CaptureLength: len(pkt),
			Length:        len(pkt),
		}
		if err := pw.WritePacket(ci, pkt); err != nil {
			return skipped, fmt.Errorf("writing pcap packet: %w", err)
		}
	}
	return skipped, nil
}

// ExportPcap writes the session's records to a pcap file at path.
func ExportPcap(path string, session *Session) (skipped int, err error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("creating pcap file: %w", err)
	}
	skipped, err = WritePcap(f, session.Records)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("closing pcap file: %w", cerr)
	}
	return skipped, err
}
