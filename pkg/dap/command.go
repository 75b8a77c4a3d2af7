package dap

import "fmt"

// CommandID is a CMSIS-DAP command byte. The set is fixed by the protocol;
// use ParseCommandID to convert untrusted bytes.
type CommandID byte

// CMSIS-DAP Command IDs
const (
	CmdInfo          CommandID = 0x00
	CmdHostStatus    CommandID = 0x01
	CmdConnect       CommandID = 0x02
	CmdDisconnect    CommandID = 0x03
	CmdDelay         CommandID = 0x09
	CmdResetTarget   CommandID = 0x0A
	CmdSWJPins       CommandID = 0x10
	CmdSWJClock      CommandID = 0x11
	CmdSWJSequence   CommandID = 0x12
	CmdSWDConfigure  CommandID = 0x13
	CmdJTAGSequence  CommandID = 0x14
	CmdJTAGConfigure CommandID = 0x15
	CmdJTAGIDCODE    CommandID = 0x16
	CmdSWDSequence   CommandID = 0x1D
)

var commandNames = map[CommandID]string{
	CmdInfo:          "DAP_Info",
	CmdHostStatus:    "DAP_HostStatus",
	CmdConnect:       "DAP_Connect",
	CmdDisconnect:    "DAP_Disconnect",
	CmdDelay:         "DAP_Delay",
	CmdResetTarget:   "DAP_ResetTarget",
	CmdSWJPins:       "DAP_SWJ_Pins",
	CmdSWJClock:      "DAP_SWJ_Clock",
	CmdSWJSequence:   "DAP_SWJ_Sequence",
	CmdSWDConfigure:  "DAP_SWD_Configure",
	CmdJTAGSequence:  "DAP_JTAG_Sequence",
	CmdJTAGConfigure: "DAP_JTAG_Configure",
	CmdJTAGIDCODE:    "DAP_JTAG_IDCODE",
	CmdSWDSequence:   "DAP_SWD_Sequence",
}

// ParseCommandID converts a wire byte into a CommandID, failing for bytes that
// are not part of the supported command set.
func ParseCommandID(b byte) (CommandID, error) {
	id := CommandID(b)
	if _, ok := commandNames[id]; !ok {
		return 0, fmt.Errorf("%w: 0x%02X", ErrUnknownCommand, b)
	}
	return id, nil
}

// Byte returns the wire representation of the command.
func (c CommandID) Byte() byte {
	return byte(c)
}

func (c CommandID) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Command(0x%02X)", byte(c))
}

// DAP_Info Info IDs
const (
	InfoVendorName      byte = 0x01
	InfoProductName     byte = 0x02
	InfoSerialNumber    byte = 0x03
	InfoProtocolVersion byte = 0x04
	InfoTargetVendor    byte = 0x05
	InfoTargetName      byte = 0x06
	InfoBoardVendor     byte = 0x07
	InfoBoardName       byte = 0x08
	InfoFirmwareVersion byte = 0x09
	InfoCapabilities    byte = 0xF0
	InfoTestDomainTimer byte = 0xF1
	InfoSWOTraceSize    byte = 0xFD
	InfoPacketCount     byte = 0xFE
	InfoPacketSize      byte = 0xFF
)

// Capability bits reported by InfoCapabilities (first byte).
const (
	CapSWD           byte = 1 << 0
	CapJTAG          byte = 1 << 1
	CapSWOUART       byte = 1 << 2
	CapSWOManchester byte = 1 << 3
	CapAtomic        byte = 1 << 4
	CapTestDomain    byte = 1 << 5
	CapSWOStreaming  byte = 1 << 6
	CapUART          byte = 1 << 7
)

// Port selects the debug port for DAP_Connect.
type Port byte

// Connection ports
const (
	PortDefault Port = 0
	PortSWD     Port = 1
	PortJTAG    Port = 2
)

func (p Port) String() string {
	switch p {
	case PortDefault:
		return "default"
	case PortSWD:
		return "swd"
	case PortJTAG:
		return "jtag"
	default:
		return fmt.Sprintf("Port(%d)", byte(p))
	}
}

// ParsePort maps a user-facing mode name to a Port.
func ParsePort(s string) (Port, error) {
	switch s {
	case "", "default", "auto":
		return PortDefault, nil
	case "swd", "SWD":
		return PortSWD, nil
	case "jtag", "JTAG":
		return PortJTAG, nil
	}
	return 0, fmt.Errorf("%w: unknown port %q", ErrInvalidArgument, s)
}

// HostStatusType selects the LED driven by DAP_HostStatus.
type HostStatusType byte

// Host status types
const (
	HostStatusConnect HostStatusType = 0
	HostStatusRunning HostStatusType = 1
)

// Status codes
const (
	StatusOK     byte = 0x00
	StatusFailed byte = 0xFF
)

// SWD_Configure bits
const (
	SWDTurnaroundMask byte = 0x03 // turnaround period - 1
	SWDDataPhase      byte = 0x04 // always generate data phase
)
