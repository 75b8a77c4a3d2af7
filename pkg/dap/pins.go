package dap

import "strings"

// PinMask is a set of SWJ lines, laid out as in DAP_SWJ_Pins. Bits 4 and 6
// are reserved and always zero.
type PinMask uint8

// SWJ pins
const (
	PinSWCLK  PinMask = 1 << 0 // SWCLK/TCK
	PinSWDIO  PinMask = 1 << 1 // SWDIO/TMS
	PinTDI    PinMask = 1 << 2
	PinTDO    PinMask = 1 << 3
	PinNTRST  PinMask = 1 << 5
	PinNRESET PinMask = 1 << 7

	PinTCK = PinSWCLK
	PinTMS = PinSWDIO

	// PinsAll is every defined line.
	PinsAll = PinSWCLK | PinSWDIO | PinTDI | PinTDO | PinNTRST | PinNRESET
)

var pinNames = []struct {
	pin  PinMask
	name string
}{
	{PinSWCLK, "SWCLK"},
	{PinSWDIO, "SWDIO"},
	{PinTDI, "TDI"},
	{PinTDO, "TDO"},
	{PinNTRST, "nTRST"},
	{PinNRESET, "nRESET"},
}

// Pins builds a mask from individual lines.
func Pins(pins ...PinMask) PinMask {
	var m PinMask
	for _, p := range pins {
		m |= p
	}
	return m & PinsAll
}

// PinMaskFromByte parses the pin byte of a DAP_SWJ_Pins exchange. Reserved
// bits are cleared.
func PinMaskFromByte(b byte) PinMask {
	return PinMask(b) & PinsAll
}

// Byte renders the mask for the wire.
func (m PinMask) Byte() byte {
	return byte(m & PinsAll)
}

// Has reports whether every line in p is set in m.
func (m PinMask) Has(p PinMask) bool {
	return m&p == p && p != 0
}

// Union returns the lines set in either mask.
func (m PinMask) Union(o PinMask) PinMask {
	return (m | o) & PinsAll
}

// Intersect returns the lines set in both masks.
func (m PinMask) Intersect(o PinMask) PinMask {
	return m & o & PinsAll
}

// Without returns m with the lines in o cleared.
func (m PinMask) Without(o PinMask) PinMask {
	return m &^ o & PinsAll
}

func (m PinMask) String() string {
	var names []string
	for _, p := range pinNames {
		if m&p.pin != 0 {
			names = append(names, p.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// ParsePin maps a line name (case-insensitive, JTAG aliases accepted) to its
// mask bit.
func ParsePin(name string) (PinMask, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "swclk", "tck", "clk":
		return PinSWCLK, true
	case "swdio", "tms", "dio":
		return PinSWDIO, true
	case "tdi":
		return PinTDI, true
	case "tdo":
		return PinTDO, true
	case "ntrst", "trst":
		return PinNTRST, true
	case "nreset", "reset", "srst", "nsrst":
		return PinNRESET, true
	}
	return 0, false
}
