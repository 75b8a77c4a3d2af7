package jtag

import (
	"errors"
	"fmt"

	"github.com/OpenTraceLab/OpenTraceDAP/pkg/tap"
)

// MaxChainDevices bounds chain discovery.
const MaxChainDevices = 32

// ErrChainBroken is returned when TDO never shows the ones driven on TDI,
// which means the chain is open or longer than the scan allowed.
var ErrChainBroken = errors.New("jtag: chain end not found")

// ChainDevice is one TAP found by a chain scan, index 0 nearest TDO.
type ChainDevice struct {
	Index    int
	IDCode   IDCode
	HasID    bool // false for TAPs that power up in BYPASS
	IRLength int  // 0 when it could not be inferred
}

func (d ChainDevice) String() string {
	ir := "?"
	if d.IRLength > 0 {
		ir = fmt.Sprint(d.IRLength)
	}
	if !d.HasID {
		return fmt.Sprintf("#%d: BYPASS (no IDCODE), IR %s", d.Index, ir)
	}
	return fmt.Sprintf("#%d: %s, IR %s", d.Index, d.IDCode, ir)
}

// ChainInfo is the result of ScanChain.
type ChainInfo struct {
	Devices       []ChainDevice
	TotalIRLength int
}

// IRLengths returns per-device IR lengths, or nil if any is unknown.
func (ci ChainInfo) IRLengths() []int {
	out := make([]int, len(ci.Devices))
	for i, d := range ci.Devices {
		if d.IRLength == 0 {
			return nil
		}
		out[i] = d.IRLength
	}
	return out
}

// ScanIDCodes resets the chain and reads the IDCODE/BYPASS path that every
// TAP selects after reset. TDI is held high so the first all-ones word marks
// the end of the chain.
func ScanIDCodes(c *Controller, maxDevices int) ([]ChainDevice, error) {
	if maxDevices <= 0 || maxDevices > MaxChainDevices {
		maxDevices = MaxChainDevices
	}
	if err := c.Reset(false); err != nil {
		return nil, err
	}

	bits := (maxDevices + 1) * 32
	ones := make([]byte, (bits+7)/8)
	for i := range ones {
		ones[i] = 0xFF
	}
	tdo, err := c.ScanDR(ones, bits, tap.StateRunTestIdle)
	if err != nil {
		return nil, err
	}

	var devices []ChainDevice
	for pos := 0; pos < bits; {
		if !bitAt(tdo, pos) {
			devices = append(devices, ChainDevice{Index: len(devices)})
			pos++
			continue
		}
		if pos+32 > bits {
			break
		}
		raw := uint32(0)
		for i := 0; i < 32; i++ {
			if bitAt(tdo, pos+i) {
				raw |= 1 << i
			}
		}
		if raw == 0xFFFFFFFF {
			return devices, nil
		}
		devices = append(devices, ChainDevice{Index: len(devices), IDCode: ParseIDCode(raw), HasID: true})
		pos += 32
	}
	return devices, fmt.Errorf("%w: no end marker after %d devices", ErrChainBroken, len(devices))
}

// MeasureIR returns the total IR length of the chain and the bits each
// instruction register captured. It flushes zeros through Shift-IR, then
// counts how many ones it takes to see a one on TDO. All devices are left in
// BYPASS.
func MeasureIR(c *Controller, maxBits int) (int, []bool, error) {
	if maxBits <= 0 {
		maxBits = MaxChainDevices * 32
	}
	bits := 2 * maxBits
	tdi := make([]byte, (bits+7)/8)
	for i := maxBits; i < bits; i++ {
		tdi[i/8] |= 1 << (i % 8)
	}
	tdo, err := c.ScanIR(tdi, bits, tap.StateRunTestIdle)
	if err != nil {
		return 0, nil, err
	}
	for i := maxBits; i < bits; i++ {
		if bitAt(tdo, i) {
			total := i - maxBits
			captured := make([]bool, total)
			for j := range captured {
				captured[j] = bitAt(tdo, j)
			}
			return total, captured, nil
		}
	}
	return 0, nil, fmt.Errorf("%w: IR longer than %d bits", ErrChainBroken, maxBits)
}

// splitIR infers per-device IR lengths from the captured IR pattern. Every
// instruction register captures ...01, so each device starts with a one. The
// split is only trusted when the number of ones matches the device count.
func splitIR(captured []bool, devices int) ([]int, bool) {
	var starts []int
	for i, b := range captured {
		if b {
			starts = append(starts, i)
		}
	}
	if devices == 0 || len(starts) != devices || (len(starts) > 0 && starts[0] != 0) {
		return nil, false
	}
	lens := make([]int, devices)
	for i := range starts {
		end := len(captured)
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		lens[i] = end - starts[i]
		if lens[i] < 2 {
			return nil, false
		}
	}
	return lens, true
}

// ScanChain discovers the devices on the chain and, where the capture
// pattern or the part table allows it, their IR lengths.
func ScanChain(c *Controller, maxDevices int) (ChainInfo, error) {
	devices, err := ScanIDCodes(c, maxDevices)
	if err != nil {
		return ChainInfo{Devices: devices}, err
	}
	info := ChainInfo{Devices: devices}
	if len(devices) == 0 {
		return info, nil
	}

	total, captured, err := MeasureIR(c, 0)
	if err != nil {
		return info, err
	}
	info.TotalIRLength = total
	lens, ok := splitIR(captured, len(devices))
	if !ok {
		lens, ok = knownIRLengths(devices, total)
	}
	if ok {
		for i := range info.Devices {
			info.Devices[i].IRLength = lens[i]
		}
	}
	return info, nil
}
