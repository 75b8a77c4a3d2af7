// Package dapsim provides an in-memory CMSIS-DAP probe for tests and for
// running dapctl without hardware. The probe answers every command the dap
// package issues and drives a simulated JTAG scan chain.
package dapsim

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/OpenTraceLab/OpenTraceDAP/pkg/dap"
	"github.com/OpenTraceLab/OpenTraceDAP/pkg/tap"
)

// ErrNoResponse is returned by Receive when no command is pending.
var ErrNoResponse = errors.New("dapsim: no response pending")

// invalidCommand is the firmware's answer to an unsupported command byte.
const invalidCommand = 0xFF

// Options configures the identity a Probe reports through DAP_Info.
type Options struct {
	Vendor       string
	Product      string
	Serial       string
	Protocol     string
	Firmware     string
	Capabilities byte
	PacketSize   int
	PacketCount  byte
	Logger       *slog.Logger
}

// DefaultOptions describes a JTAG- and SWD-capable v2 probe.
func DefaultOptions() Options {
	return Options{
		Vendor:       "OpenTraceLab",
		Product:      "CMSIS-DAP Simulator",
		Serial:       "SIM0001",
		Protocol:     "2.1.0",
		Firmware:     "sim-1.0",
		Capabilities: dap.CapSWD | dap.CapJTAG,
		PacketSize:   dap.DefaultMaxFrame,
		PacketCount:  4,
	}
}

// Hook may replace or inspect a response before it is queued. Returning an
// error makes the next Receive fail with it.
type Hook func(req, resp []byte) ([]byte, error)

// Probe is a simulated CMSIS-DAP probe. It implements dap.Transport.
type Probe struct {
	opts  Options
	chain *Chain

	OnCommand Hook

	mu       sync.Mutex
	pending  []pendingResp
	requests [][]byte
	closed   bool

	port     dap.Port
	pins     dap.PinMask
	clockHz  uint32
	swdCfg   byte
	irConfig []int
	leds     [2]bool
}

type pendingResp struct {
	resp []byte
	err  error
}

// NewProbe creates a probe attached to chain. A nil chain behaves like an
// empty one.
func NewProbe(chain *Chain, opts Options) *Probe {
	def := DefaultOptions()
	if opts.PacketSize <= 0 {
		opts.PacketSize = def.PacketSize
	}
	if opts.PacketCount == 0 {
		opts.PacketCount = def.PacketCount
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if chain == nil {
		chain = MustChain()
	}
	return &Probe{
		opts:    opts,
		chain:   chain,
		pins:    dap.PinNTRST | dap.PinNRESET | dap.PinTDO,
		clockHz: 1000000,
	}
}

// Chain returns the simulated scan chain.
func (p *Probe) Chain() *Chain {
	return p.chain
}

// Send processes one command frame.
func (p *Probe) Send(frame []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return fmt.Errorf("dapsim: probe closed")
	}
	if len(frame) > p.opts.PacketSize {
		return fmt.Errorf("dapsim: %d byte frame exceeds packet size %d", len(frame), p.opts.PacketSize)
	}
	p.requests = append(p.requests, append([]byte(nil), frame...))

	resp := p.handle(frame)
	var err error
	if p.OnCommand != nil {
		resp, err = p.OnCommand(frame, resp)
	}
	p.pending = append(p.pending, pendingResp{resp: resp, err: err})
	return nil
}

// Receive returns the response to the oldest unanswered command.
func (p *Probe) Receive() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.pending) == 0 {
		return nil, ErrNoResponse
	}
	r := p.pending[0]
	p.pending = p.pending[1:]
	return r.resp, r.err
}

// PacketSize reports the simulated DAP packet size.
func (p *Probe) PacketSize() int {
	return p.opts.PacketSize
}

// Close rejects further commands.
func (p *Probe) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Requests returns a copy of every frame received so far.
func (p *Probe) Requests() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]byte, len(p.requests))
	for i, r := range p.requests {
		out[i] = append([]byte(nil), r...)
	}
	return out
}

// Port reports the port selected by the last DAP_Connect.
func (p *Probe) Port() dap.Port {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.port
}

// Pins reports the current pin levels.
func (p *Probe) Pins() dap.PinMask {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pins
}

// ClockHz reports the last SWJ clock setting.
func (p *Probe) ClockHz() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clockHz
}

func (p *Probe) handle(frame []byte) []byte {
	if len(frame) == 0 {
		return []byte{invalidCommand}
	}
	cmd, err := dap.ParseCommandID(frame[0])
	if err != nil {
		p.opts.Logger.Debug("dapsim: unsupported command", "cmd", fmt.Sprintf("0x%02X", frame[0]))
		return []byte{invalidCommand}
	}
	body := frame[1:]

	switch cmd {
	case dap.CmdInfo:
		if len(body) != 1 {
			return status(cmd, dap.StatusFailed)
		}
		return p.info(body[0])
	case dap.CmdHostStatus:
		if len(body) != 2 || body[0] > 1 {
			return status(cmd, dap.StatusFailed)
		}
		p.leds[body[0]] = body[1]&1 != 0
		return status(cmd, dap.StatusOK)
	case dap.CmdConnect:
		return p.connect(body)
	case dap.CmdDisconnect:
		p.port = dap.PortDefault
		return status(cmd, dap.StatusOK)
	case dap.CmdDelay:
		if len(body) != 2 {
			return status(cmd, dap.StatusFailed)
		}
		return status(cmd, dap.StatusOK)
	case dap.CmdResetTarget:
		return []byte{byte(cmd), dap.StatusOK, 0}
	case dap.CmdSWJPins:
		return p.swjPins(body)
	case dap.CmdSWJClock:
		if len(body) != 4 {
			return status(cmd, dap.StatusFailed)
		}
		hz := binary.LittleEndian.Uint32(body)
		if hz == 0 {
			return status(cmd, dap.StatusFailed)
		}
		p.clockHz = hz
		return status(cmd, dap.StatusOK)
	case dap.CmdSWJSequence:
		return p.swjSequence(body)
	case dap.CmdSWDConfigure:
		if len(body) != 1 {
			return status(cmd, dap.StatusFailed)
		}
		p.swdCfg = body[0]
		return status(cmd, dap.StatusOK)
	case dap.CmdSWDSequence:
		return p.swdSequence(body)
	case dap.CmdJTAGSequence:
		return p.jtagSequence(body)
	case dap.CmdJTAGConfigure:
		return p.jtagConfigure(body)
	case dap.CmdJTAGIDCODE:
		return p.jtagIDCode(body)
	}
	return []byte{invalidCommand}
}

func status(cmd dap.CommandID, st byte) []byte {
	return []byte{byte(cmd), st}
}

func (p *Probe) info(id byte) []byte {
	str := func(s string) []byte {
		if s == "" {
			return []byte{byte(dap.CmdInfo), 0}
		}
		// Strings are NUL terminated and the length includes the NUL.
		out := []byte{byte(dap.CmdInfo), byte(len(s) + 1)}
		out = append(out, s...)
		return append(out, 0)
	}
	switch id {
	case dap.InfoVendorName:
		return str(p.opts.Vendor)
	case dap.InfoProductName:
		return str(p.opts.Product)
	case dap.InfoSerialNumber:
		return str(p.opts.Serial)
	case dap.InfoProtocolVersion:
		return str(p.opts.Protocol)
	case dap.InfoFirmwareVersion:
		return str(p.opts.Firmware)
	case dap.InfoCapabilities:
		return []byte{byte(dap.CmdInfo), 1, p.opts.Capabilities}
	case dap.InfoPacketCount:
		return []byte{byte(dap.CmdInfo), 1, p.opts.PacketCount}
	case dap.InfoPacketSize:
		out := []byte{byte(dap.CmdInfo), 2, 0, 0}
		binary.LittleEndian.PutUint16(out[2:], uint16(p.opts.PacketSize))
		return out
	}
	return []byte{byte(dap.CmdInfo), 0}
}

func (p *Probe) connect(body []byte) []byte {
	fail := []byte{byte(dap.CmdConnect), 0}
	if len(body) != 1 {
		return fail
	}
	port := dap.Port(body[0])
	if port == dap.PortDefault {
		port = dap.PortSWD
		if p.opts.Capabilities&dap.CapJTAG != 0 && len(p.chain.devices) > 0 {
			port = dap.PortJTAG
		}
	}
	switch {
	case port == dap.PortSWD && p.opts.Capabilities&dap.CapSWD != 0,
		port == dap.PortJTAG && p.opts.Capabilities&dap.CapJTAG != 0:
		p.port = port
		return []byte{byte(dap.CmdConnect), byte(port)}
	}
	return fail
}

func (p *Probe) swjPins(body []byte) []byte {
	if len(body) != 6 {
		return status(dap.CmdSWJPins, dap.StatusFailed)
	}
	out := dap.PinMaskFromByte(body[0])
	sel := dap.PinMaskFromByte(body[1])
	prev := p.pins
	p.pins = p.pins.Without(sel).Union(out.Intersect(sel))

	if sel.Has(dap.PinNTRST) && !p.pins.Has(dap.PinNTRST) {
		p.chain.Reset()
	}
	// A rising TCK edge with TMS and TDI as set clocks the chain once.
	if sel.Has(dap.PinTCK) && !prev.Has(dap.PinTCK) && p.pins.Has(dap.PinTCK) {
		p.setTDO(p.chain.Clock(p.pins.Has(dap.PinTMS), p.pins.Has(dap.PinTDI)))
	}
	return []byte{byte(dap.CmdSWJPins), p.pins.Byte()}
}

func (p *Probe) setTDO(level bool) {
	if level {
		p.pins = p.pins.Union(dap.PinTDO)
	} else {
		p.pins = p.pins.Without(dap.PinTDO)
	}
}

func (p *Probe) swjSequence(body []byte) []byte {
	bits, data, err := dap.UnpackSWJ(body)
	if err != nil {
		return status(dap.CmdSWJSequence, dap.StatusFailed)
	}
	// SWJ sequences drive SWDIO/TMS. In JTAG mode they walk the TAP.
	if p.port == dap.PortJTAG {
		tdi := p.pins.Has(dap.PinTDI)
		for i := 0; i < bits; i++ {
			p.setTDO(p.chain.Clock(data[i/8]&(1<<(i%8)) != 0, tdi))
		}
	}
	return status(dap.CmdSWJSequence, dap.StatusOK)
}

func (p *Probe) swdSequence(body []byte) []byte {
	if p.port != dap.PortSWD {
		return status(dap.CmdSWDSequence, dap.StatusFailed)
	}
	segs, err := dap.UnpackSWD(body)
	if err != nil {
		return status(dap.CmdSWDSequence, dap.StatusFailed)
	}
	// No SWD target is modelled; SWDIO floats high.
	resp := status(dap.CmdSWDSequence, dap.StatusOK)
	for _, seg := range segs {
		if !seg.Input {
			continue
		}
		in := make([]byte, seg.ByteLen())
		for i := 0; i < seg.Bits; i++ {
			in[i/8] |= 1 << (i % 8)
		}
		resp = append(resp, in...)
	}
	return resp
}

func (p *Probe) jtagSequence(body []byte) []byte {
	segs, err := dap.UnpackJTAG(body)
	if err != nil {
		return status(dap.CmdJTAGSequence, dap.StatusFailed)
	}
	resp := status(dap.CmdJTAGSequence, dap.StatusOK)
	for _, seg := range segs {
		var tdo []byte
		if seg.Capture {
			tdo = make([]byte, seg.ByteLen())
		}
		for i := 0; i < seg.Bits; i++ {
			bit := p.chain.Clock(seg.TMS, seg.Data[i/8]&(1<<(i%8)) != 0)
			if bit && tdo != nil {
				tdo[i/8] |= 1 << (i % 8)
			}
		}
		resp = append(resp, tdo...)
	}
	return resp
}

func (p *Probe) jtagConfigure(body []byte) []byte {
	if len(body) < 1 || int(body[0]) != len(body)-1 || body[0] == 0 {
		return status(dap.CmdJTAGConfigure, dap.StatusFailed)
	}
	p.irConfig = p.irConfig[:0]
	for _, n := range body[1:] {
		p.irConfig = append(p.irConfig, int(n))
	}
	return status(dap.CmdJTAGConfigure, dap.StatusOK)
}

// jtagIDCodeInstr is the instruction the firmware loads before reading an
// IDCODE. It is the ARM JTAG-DP opcode, so other TAPs usually answer with a
// one-bit data register.
const jtagIDCodeInstr uint32 = 0x0E

// jtagIDCode loads jtagIDCodeInstr into the addressed device and BYPASS into
// the others, using the configured IR lengths, then reads 32 DR bits after
// skipping one bypass bit per device nearer TDO. The TAP ends in
// Run-Test/Idle.
func (p *Probe) jtagIDCode(body []byte) []byte {
	fail := []byte{byte(dap.CmdJTAGIDCODE), dap.StatusFailed, 0, 0, 0, 0}
	if p.port != dap.PortJTAG || len(body) != 1 || int(body[0]) >= len(p.irConfig) {
		return fail
	}
	index := int(body[0])

	if !p.walk(tap.StateShiftIR) {
		return fail
	}
	total := 0
	for _, n := range p.irConfig {
		total += n
	}
	shifted := 0
	for d, n := range p.irConfig {
		for i := 0; i < n; i++ {
			shifted++
			tdi := d != index || (i < 32 && jtagIDCodeInstr>>i&1 != 0)
			p.chain.Clock(shifted == total, tdi)
		}
	}
	p.chain.Clock(true, false) // Update-IR

	if !p.walk(tap.StateShiftDR) {
		return fail
	}
	for i := 0; i < index; i++ {
		p.chain.Clock(false, false)
	}
	var id uint32
	for i := 0; i < 32; i++ {
		if p.chain.Clock(i == 31, false) {
			id |= 1 << i
		}
	}
	p.chain.Clock(true, false)  // Update-DR
	p.chain.Clock(false, false) // Run-Test/Idle

	resp := []byte{byte(dap.CmdJTAGIDCODE), dap.StatusOK, 0, 0, 0, 0}
	binary.LittleEndian.PutUint32(resp[2:], id)
	return resp
}

// walk clocks the chain along the shortest TMS path to target.
func (p *Probe) walk(target tap.State) bool {
	path, err := tap.Path(p.chain.State(), target)
	if err != nil {
		return false
	}
	for _, tms := range path.TMS {
		p.chain.Clock(tms, false)
	}
	return true
}
