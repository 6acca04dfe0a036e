package protocol

import "fmt"

// Command is the one byte command code in a frame header.
type Command byte

// Command codes observed on the module/MCU link. The set is the common
// Tuya serial protocol; vendor firmware occasionally adds codes beyond it,
// which decode fine and render with their numeric value.
const (
	CmdHeartbeat           Command = 0x00
	CmdQueryProductInfo    Command = 0x01
	CmdQueryMCUConfig      Command = 0x02
	CmdReportNetworkStatus Command = 0x03
	CmdResetWiFiSmart      Command = 0x04
	CmdResetWiFiAP         Command = 0x05
	CmdReportDPStatus      Command = 0x06
	CmdDPStatusAck         Command = 0x07
	CmdQueryDPStatus       Command = 0x08
	CmdOTAUpgrade          Command = 0x09
	CmdGetLocalTime        Command = 0x0A
	CmdSendDP              Command = 0x22
	CmdSendDPAck           Command = 0x23
)

var commandNames = map[Command]string{
	CmdHeartbeat:           "Heartbeat",
	CmdQueryProductInfo:    "Query Product Info",
	CmdQueryMCUConfig:      "Query MCU Config",
	CmdReportNetworkStatus: "Report Network Status",
	CmdResetWiFiSmart:      "Reset WiFi (SmartConfig)",
	CmdResetWiFiAP:         "Reset WiFi (AP Mode)",
	CmdReportDPStatus:      "Report DP Status",
	CmdDPStatusAck:         "DP Status Ack",
	CmdQueryDPStatus:       "Query DP Status",
	CmdOTAUpgrade:          "OTA Upgrade",
	CmdGetLocalTime:        "Get Local Time",
	CmdSendDP:              "Send DP",
	CmdSendDPAck:           "Send DP Ack",
}

// String returns the human readable command name, or a generic label with
// the numeric code for commands outside the known set.
func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Unknown (0x%02X)", byte(c))
}

// CommandSet is a set of command codes.
type CommandSet map[Command]struct{}

// NewCommandSet builds a set from the given codes.
func NewCommandSet(cmds ...Command) CommandSet {
	s := make(CommandSet, len(cmds))
	for _, c := range cmds {
		s[c] = struct{}{}
	}
	return s
}

// Contains reports whether c is in the set.
func (s CommandSet) Contains(c Command) bool {
	_, ok := s[c]
	return ok
}

// CarriesDataPoints reports whether a frame with command c should have its
// payload parsed as data point records. Send DP Ack is a bare
// acknowledgement with an empty payload and never qualifies, whatever the
// set says.
func (s CommandSet) CarriesDataPoints(c Command) bool {
	if c == CmdSendDPAck {
		return false
	}
	return s.Contains(c)
}

// DefaultDPCommands returns the commands whose payloads carry data point
// records in standard firmware.
func DefaultDPCommands() CommandSet {
	return NewCommandSet(CmdReportDPStatus, CmdDPStatusAck, CmdQueryDPStatus, CmdSendDP)
}
