package dapsim

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/OpenTraceLab/OpenTraceDAP/pkg/tap"
)

// Device is one TAP in a simulated scan chain.
type Device struct {
	Name     string
	IDCode   uint32 // 0 means the device has no IDCODE register
	IRLength int

	// IDCodeInstr is the instruction that selects IDCODE. Zero selects 1.
	IDCodeInstr uint32
}

func (d Device) idcodeInstr() uint32 {
	if d.IDCodeInstr == 0 {
		return 1
	}
	return d.IDCodeInstr
}

func (d Device) bypassInstr() uint32 {
	return uint32(1)<<d.IRLength - 1
}

// device is the live register state of a Device.
type device struct {
	Device
	ir   uint32 // latched instruction
	irSR []bool // instruction shift register, LSB first
	drSR []bool // data shift register selected by ir
}

// Chain simulates TAP controllers sharing TCK and TMS, with TDI feeding the
// last device and TDO driven by device 0. The device nearest TDO is index 0,
// matching DAP_JTAG_Configure ordering.
type Chain struct {
	devices []*device
	sm      *tap.StateMachine
	clocks  int
}

// NewChain builds a chain and resets every TAP.
func NewChain(devs ...Device) (*Chain, error) {
	c := &Chain{sm: tap.NewStateMachine()}
	for i, d := range devs {
		if d.IRLength < 2 || d.IRLength > 32 {
			return nil, fmt.Errorf("dapsim: device %d: IR length %d outside 2..32", i, d.IRLength)
		}
		c.devices = append(c.devices, &device{Device: d})
	}
	c.Reset()
	return c, nil
}

// MustChain is NewChain for fixed test fixtures.
func MustChain(devs ...Device) *Chain {
	c, err := NewChain(devs...)
	if err != nil {
		panic(err)
	}
	return c
}

// Devices returns the configured devices, nearest TDO first.
func (c *Chain) Devices() []Device {
	out := make([]Device, len(c.devices))
	for i, d := range c.devices {
		out[i] = d.Device
	}
	return out
}

// IRLengths returns each device's IR length, nearest TDO first.
func (c *Chain) IRLengths() []int {
	out := make([]int, len(c.devices))
	for i, d := range c.devices {
		out[i] = d.IRLength
	}
	return out
}

// State reports the shared TAP state.
func (c *Chain) State() tap.State {
	return c.sm.State()
}

// Clocks reports how many TCK cycles the chain has seen.
func (c *Chain) Clocks() int {
	return c.clocks
}

// Reset forces every TAP into Test-Logic-Reset, as nTRST would.
func (c *Chain) Reset() {
	c.sm.Set(tap.StateTestLogicReset)
	for _, d := range c.devices {
		d.resetIR()
	}
}

// Instruction returns the latched instruction of device i.
func (c *Chain) Instruction(i int) uint32 {
	return c.devices[i].ir
}

func (d *device) resetIR() {
	if d.IDCode != 0 {
		d.ir = d.idcodeInstr()
	} else {
		d.ir = d.bypassInstr()
	}
}

func (d *device) captureIR() {
	// IEEE 1149.1 requires the two LSBs to capture 01.
	d.irSR = make([]bool, d.IRLength)
	d.irSR[0] = true
}

func (d *device) captureDR() {
	if d.IDCode != 0 && d.ir == d.idcodeInstr() {
		d.drSR = make([]bool, 32)
		for i := range d.drSR {
			d.drSR[i] = d.IDCode&(1<<i) != 0
		}
		return
	}
	// Every other instruction selects the one-bit bypass register.
	d.drSR = []bool{false}
}

func (d *device) updateIR() {
	var v uint32
	for i, bit := range d.irSR {
		if bit {
			v |= 1 << i
		}
	}
	d.ir = v
}

// shift moves every register in the path one bit toward TDO and returns the
// bit that leaves device 0.
func shift(regs [][]bool, tdi bool) bool {
	in := tdi
	for i := len(regs) - 1; i >= 0; i-- {
		reg := regs[i]
		if len(reg) == 0 {
			continue
		}
		out := reg[0]
		copy(reg, reg[1:])
		reg[len(reg)-1] = in
		in = out
	}
	return in
}

// Clock applies one TCK cycle and returns the TDO level sampled during it.
func (c *Chain) Clock(tms, tdi bool) bool {
	c.clocks++
	tdo := false
	switch c.sm.State() {
	case tap.StateCaptureIR:
		for _, d := range c.devices {
			d.captureIR()
		}
	case tap.StateCaptureDR:
		for _, d := range c.devices {
			d.captureDR()
		}
	case tap.StateShiftIR:
		regs := make([][]bool, len(c.devices))
		for i, d := range c.devices {
			regs[i] = d.irSR
		}
		tdo = shift(regs, tdi)
	case tap.StateShiftDR:
		regs := make([][]bool, len(c.devices))
		for i, d := range c.devices {
			regs[i] = d.drSR
		}
		tdo = shift(regs, tdi)
	}

	switch c.sm.Clock(tms) {
	case tap.StateTestLogicReset:
		for _, d := range c.devices {
			d.resetIR()
		}
	case tap.StateUpdateIR:
		for _, d := range c.devices {
			d.updateIR()
		}
	}
	if len(c.devices) == 0 {
		// TDO is pulled up on an empty chain.
		return true
	}
	return tdo
}

// ParseDevices parses a comma-separated chain description, nearest TDO
// first. Each entry is IDCODE[:IRLEN], e.g. "0x4BA00477:4,0x06413041:5".
// IR length defaults to 4.
func ParseDevices(s string) ([]Device, error) {
	var devs []Device
	for i, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		idPart, irPart, hasIR := strings.Cut(field, ":")
		id, err := strconv.ParseUint(idPart, 0, 32)
		if err != nil {
			return nil, fmt.Errorf("dapsim: device %d: bad IDCODE %q: %w", i, idPart, err)
		}
		ir := 4
		if hasIR {
			ir, err = strconv.Atoi(irPart)
			if err != nil {
				return nil, fmt.Errorf("dapsim: device %d: bad IR length %q: %w", i, irPart, err)
			}
		}
		devs = append(devs, Device{Name: fmt.Sprintf("dev%d", i), IDCode: uint32(id), IRLength: ir})
	}
	if len(devs) == 0 {
		return nil, fmt.Errorf("dapsim: empty device list")
	}
	return devs, nil
}
