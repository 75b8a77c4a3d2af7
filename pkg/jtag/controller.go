package jtag

import (
	"errors"
	"fmt"

	"github.com/OpenTraceLab/OpenTraceDAP/pkg/tap"
)

// Controller tracks the TAP state of a chain and turns register scans into
// single raw shifts on an Adapter: TMS navigation, data and the exit path go
// out together.
type Controller struct {
	adapter Adapter
	tap     *tap.StateMachine
}

// NewController wraps adapter. Call Reset before the first scan; until then
// the tracked state is assumed to be Test-Logic-Reset.
func NewController(adapter Adapter) *Controller {
	return &Controller{adapter: adapter, tap: tap.NewStateMachine()}
}

// Adapter returns the wrapped adapter.
func (c *Controller) Adapter() Adapter {
	return c.adapter
}

// State reports the tracked TAP state.
func (c *Controller) State() tap.State {
	return c.tap.State()
}

// Reset puts every TAP in Test-Logic-Reset.
func (c *Controller) Reset(hard bool) error {
	err := c.adapter.ResetTAP(hard)
	if errors.Is(err, ErrNotImplemented) && hard {
		err = c.adapter.ResetTAP(false)
	}
	if err != nil {
		return err
	}
	c.tap.Set(tap.StateTestLogicReset)
	return nil
}

// GoTo walks the TAP to a target state with TDI held low.
func (c *Controller) GoTo(target tap.State) error {
	path, err := tap.Path(c.tap.State(), target)
	if err != nil {
		return err
	}
	if path.Len() == 0 {
		return nil
	}
	var v bitVec
	v.appendTMS(path.TMS)
	if _, err := c.dispatch(target.IsIR(), v); err != nil {
		return err
	}
	c.tap.Set(target)
	return nil
}

// Idle clocks n cycles in Run-Test/Idle.
func (c *Controller) Idle(n int) error {
	if err := c.GoTo(tap.StateRunTestIdle); err != nil {
		return err
	}
	if n <= 0 {
		return nil
	}
	var v bitVec
	v.appendConst(n, false, false)
	_, err := c.dispatch(false, v)
	return err
}

// ScanIR shifts bits of tdi through the instruction registers, ends in end,
// and returns the bits captured on TDO.
func (c *Controller) ScanIR(tdi []byte, bits int, end tap.State) ([]byte, error) {
	return c.scan(tap.StateShiftIR, tdi, bits, end)
}

// ScanDR shifts bits of tdi through the selected data registers, ends in end,
// and returns the bits captured on TDO.
func (c *Controller) ScanDR(tdi []byte, bits int, end tap.State) ([]byte, error) {
	return c.scan(tap.StateShiftDR, tdi, bits, end)
}

func (c *Controller) scan(shift tap.State, tdi []byte, bits int, end tap.State) ([]byte, error) {
	if _, err := ValidateShiftBuffers(nil, tdi, bits); err != nil {
		return nil, err
	}
	if !end.Stable() {
		return nil, fmt.Errorf("jtag: scan must end in a stable state, not %s", end)
	}

	enter, err := tap.Path(c.tap.State(), shift)
	if err != nil {
		return nil, err
	}
	// The last data bit is clocked with TMS=1 and leaves the TAP in Exit1.
	exit1 := tap.NextState(shift, true)
	leave, err := tap.Path(exit1, end)
	if err != nil {
		return nil, err
	}

	var v bitVec
	v.appendTMS(enter.TMS)
	start := v.n
	for i := 0; i < bits; i++ {
		v.append(i == bits-1, bitAt(tdi, i))
	}
	v.appendTMS(leave.TMS)

	tdo, err := c.dispatch(shift.IsIR(), v)
	if err != nil {
		return nil, err
	}
	c.tap.Set(end)

	out := make([]byte, (bits+7)/8)
	for i := 0; i < bits; i++ {
		if bitAt(tdo, start+i) {
			out[i/8] |= 1 << (i % 8)
		}
	}
	return out, nil
}

func (c *Controller) dispatch(ir bool, v bitVec) ([]byte, error) {
	if ir {
		return c.adapter.ShiftIR(v.tms, v.tdi, v.n)
	}
	return c.adapter.ShiftDR(v.tms, v.tdi, v.n)
}

// bitVec accumulates parallel LSB-first TMS and TDI vectors.
type bitVec struct {
	tms, tdi []byte
	n        int
}

func (v *bitVec) append(tms, tdi bool) {
	if v.n%8 == 0 {
		v.tms = append(v.tms, 0)
		v.tdi = append(v.tdi, 0)
	}
	if tms {
		v.tms[v.n/8] |= 1 << (v.n % 8)
	}
	if tdi {
		v.tdi[v.n/8] |= 1 << (v.n % 8)
	}
	v.n++
}

func (v *bitVec) appendTMS(bits []bool) {
	for _, b := range bits {
		v.append(b, false)
	}
}

func (v *bitVec) appendConst(n int, tms, tdi bool) {
	for i := 0; i < n; i++ {
		v.append(tms, tdi)
	}
}

func bitAt(buf []byte, i int) bool {
	if i/8 >= len(buf) {
		return false
	}
	return buf[i/8]&(1<<(i%8)) != 0
}
