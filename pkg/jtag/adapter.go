// Package jtag drives JTAG scan chains through a CMSIS-DAP probe: raw TMS/TDI
// shifting, TAP navigation, IDCODE decoding and chain discovery.
package jtag

import (
	"errors"
	"fmt"
)

// AdapterInfo describes the probe behind an Adapter.
type AdapterInfo struct {
	Name         string
	Vendor       string
	Model        string
	SerialNumber string
	Firmware     string
	Protocol     string
	PacketSize   int
	MinFrequency int // Hertz
	MaxFrequency int // Hertz
	SupportsSRST bool
	SupportsTRST bool
}

// Adapter shifts raw TMS/TDI vectors (LSB first) and returns TDO. ShiftIR and
// ShiftDR differ only in intent; the TMS vector alone decides the path through
// the TAP. ResetTAP leaves every TAP in Test-Logic-Reset.
type Adapter interface {
	Info() (AdapterInfo, error)
	ShiftIR(tms, tdi []byte, bits int) (tdo []byte, err error)
	ShiftDR(tms, tdi []byte, bits int) (tdo []byte, err error)
	ResetTAP(hard bool) error
	SetSpeed(hz int) error
}

// ErrNotImplemented lets backends signal that a requested capability is not
// available.
var ErrNotImplemented = errors.New("jtag: not implemented")

// ValidateShiftBuffers ensures TMS/TDI buffers cover bits and returns the
// number of bytes required for that many bits. Empty buffers are allowed and
// mean all zeros.
func ValidateShiftBuffers(tms, tdi []byte, bits int) (int, error) {
	if bits <= 0 {
		return 0, fmt.Errorf("jtag: bits must be positive, got %d", bits)
	}
	required := (bits + 7) / 8
	if len(tms) > 0 && len(tms) < required {
		return 0, fmt.Errorf("jtag: tms buffer too short, need %d bytes", required)
	}
	if len(tdi) > 0 && len(tdi) < required {
		return 0, fmt.Errorf("jtag: tdi buffer too short, need %d bytes", required)
	}
	return required, nil
}
