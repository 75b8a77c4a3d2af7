// Package tap models the IEEE 1149.1 TAP controller so that TMS patterns can
// be computed on the host and the target's state tracked without reading it
// back.
package tap

import (
	"fmt"
	"strings"
)

// State represents one of the 16 defined IEEE 1149.1 TAP controller states.
type State uint8

const (
	StateTestLogicReset State = iota
	StateRunTestIdle
	StateSelectDRScan
	StateCaptureDR
	StateShiftDR
	StateExit1DR
	StatePauseDR
	StateExit2DR
	StateUpdateDR
	StateSelectIRScan
	StateCaptureIR
	StateShiftIR
	StateExit1IR
	StatePauseIR
	StateExit2IR
	StateUpdateIR

	numStates
)

var stateNames = [numStates]string{
	"TestLogicReset",
	"RunTestIdle",
	"SelectDRScan",
	"CaptureDR",
	"ShiftDR",
	"Exit1DR",
	"PauseDR",
	"Exit2DR",
	"UpdateDR",
	"SelectIRScan",
	"CaptureIR",
	"ShiftIR",
	"Exit1IR",
	"PauseIR",
	"Exit2IR",
	"UpdateIR",
}

func (s State) String() string {
	if s.Valid() {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", s)
}

// Valid reports whether s is one of the 16 controller states.
func (s State) Valid() bool {
	return s < numStates
}

// Stable reports whether the controller can stay in s with TMS held constant.
func (s State) Stable() bool {
	switch s {
	case StateTestLogicReset, StateRunTestIdle, StateShiftDR, StatePauseDR, StateShiftIR, StatePauseIR:
		return true
	}
	return false
}

// IsIR reports whether s belongs to the instruction register column.
func (s State) IsIR() bool {
	return s >= StateSelectIRScan && s <= StateUpdateIR
}

// IsDR reports whether s belongs to the data register column.
func (s State) IsDR() bool {
	return s >= StateSelectDRScan && s <= StateUpdateDR
}

// ParseState accepts state names case-insensitively, with or without
// separators ("shift-dr", "ShiftDR", "run_test_idle", "idle", "reset").
func ParseState(name string) (State, error) {
	key := strings.NewReplacer("-", "", "_", "", " ", "", "/", "").Replace(strings.ToLower(name))
	switch key {
	case "reset", "tlr":
		return StateTestLogicReset, nil
	case "idle", "rti":
		return StateRunTestIdle, nil
	}
	for i, n := range stateNames {
		if strings.ToLower(n) == key {
			return State(i), nil
		}
	}
	return 0, fmt.Errorf("tap: unknown state %q", name)
}

// transitions[s][0] is the next state on TMS=0, [1] on TMS=1.
var transitions = [numStates][2]State{
	StateTestLogicReset: {StateRunTestIdle, StateTestLogicReset},
	StateRunTestIdle:    {StateRunTestIdle, StateSelectDRScan},
	StateSelectDRScan:   {StateCaptureDR, StateSelectIRScan},
	StateCaptureDR:      {StateShiftDR, StateExit1DR},
	StateShiftDR:        {StateShiftDR, StateExit1DR},
	StateExit1DR:        {StatePauseDR, StateUpdateDR},
	StatePauseDR:        {StatePauseDR, StateExit2DR},
	StateExit2DR:        {StateShiftDR, StateUpdateDR},
	StateUpdateDR:       {StateRunTestIdle, StateSelectDRScan},
	StateSelectIRScan:   {StateCaptureIR, StateTestLogicReset},
	StateCaptureIR:      {StateShiftIR, StateExit1IR},
	StateShiftIR:        {StateShiftIR, StateExit1IR},
	StateExit1IR:        {StatePauseIR, StateUpdateIR},
	StatePauseIR:        {StatePauseIR, StateExit2IR},
	StateExit2IR:        {StateShiftIR, StateUpdateIR},
	StateUpdateIR:       {StateRunTestIdle, StateSelectDRScan},
}

// NextState returns the state after one TCK with the given TMS level. Invalid
// states fall back to Test-Logic-Reset, which is where five TMS=1 clocks
// would leave a real controller anyway.
func NextState(current State, tms bool) State {
	if !current.Valid() {
		return StateTestLogicReset
	}
	if tms {
		return transitions[current][1]
	}
	return transitions[current][0]
}

// Sequence is a TMS pattern and the states visited while applying it.
// States[0] is the starting state, so len(States) == len(TMS)+1.
type Sequence struct {
	TMS    []bool
	States []State
}

// Len is the number of TCK cycles in the sequence.
func (s Sequence) Len() int {
	return len(s.TMS)
}

// End returns the state reached after the last cycle.
func (s Sequence) End() State {
	if len(s.States) == 0 {
		return StateTestLogicReset
	}
	return s.States[len(s.States)-1]
}

// Bytes packs the TMS pattern LSB first, the bit order used on the wire.
func (s Sequence) Bytes() []byte {
	out := make([]byte, (len(s.TMS)+7)/8)
	for i, bit := range s.TMS {
		if bit {
			out[i/8] |= 1 << (i % 8)
		}
	}
	return out
}

// StateMachine tracks the TAP controller state locally. It performs no I/O;
// callers forward the TMS patterns it produces to an adapter.
type StateMachine struct {
	state State
}

// NewStateMachine creates a TAP state machine initialized to Test-Logic-Reset.
func NewStateMachine() *StateMachine {
	return &StateMachine{state: StateTestLogicReset}
}

// State reports the current TAP state tracked by the machine.
func (m *StateMachine) State() State {
	return m.state
}

// Set overrides the tracked state, for example after a hardware nTRST pulse.
func (m *StateMachine) Set(s State) {
	if s.Valid() {
		m.state = s
	}
}

// Clock advances the machine one TCK cycle with the provided TMS bit and
// returns the new state.
func (m *StateMachine) Clock(tms bool) State {
	m.state = NextState(m.state, tms)
	return m.state
}

// ClockBits applies n TMS bits taken LSB first from tms.
func (m *StateMachine) ClockBits(tms []byte, n int) State {
	for i := 0; i < n; i++ {
		var bit bool
		if i/8 < len(tms) {
			bit = tms[i/8]&(1<<(i%8)) != 0
		}
		m.Clock(bit)
	}
	return m.state
}

// Reset clocks five consecutive TMS=1 cycles, which reaches Test-Logic-Reset
// from any state. The sequence is returned so it can be sent to an adapter.
func (m *StateMachine) Reset() Sequence {
	seq := Sequence{
		TMS:    make([]bool, 5),
		States: make([]State, 6),
	}
	seq.States[0] = m.state
	for i := range seq.TMS {
		seq.TMS[i] = true
		seq.States[i+1] = m.Clock(true)
	}
	return seq
}

// GoTo computes the shortest TMS sequence from the current state to target
// and advances the machine along it.
func (m *StateMachine) GoTo(target State) (Sequence, error) {
	path, err := Path(m.state, target)
	if err != nil {
		return Sequence{}, err
	}
	m.state = path.End()
	return path, nil
}

// Path finds the shortest TMS sequence between two states by breadth-first
// search over the state diagram.
func Path(from, to State) (Sequence, error) {
	if !from.Valid() {
		return Sequence{}, fmt.Errorf("tap: invalid start state %d", from)
	}
	if !to.Valid() {
		return Sequence{}, fmt.Errorf("tap: invalid target state %d", to)
	}
	if from == to {
		return Sequence{States: []State{from}}, nil
	}

	// prev[s] records how s was first reached.
	type edge struct {
		from State
		tms  bool
		seen bool
	}
	var prev [numStates]edge
	prev[from].seen = true

	queue := []State{from}
	for len(queue) > 0 && !prev[to].seen {
		cur := queue[0]
		queue = queue[1:]
		for _, bit := range [2]bool{false, true} {
			next := NextState(cur, bit)
			if prev[next].seen {
				continue
			}
			prev[next] = edge{from: cur, tms: bit, seen: true}
			queue = append(queue, next)
		}
	}
	if !prev[to].seen {
		return Sequence{}, fmt.Errorf("tap: no path from %s to %s", from, to)
	}

	var rev []edge
	for s := to; s != from; s = prev[s].from {
		rev = append(rev, edge{from: s, tms: prev[s].tms})
	}
	seq := Sequence{
		TMS:    make([]bool, len(rev)),
		States: make([]State, len(rev)+1),
	}
	seq.States[0] = from
	for i := range rev {
		e := rev[len(rev)-1-i]
		seq.TMS[i] = e.tms
		seq.States[i+1] = e.from
	}
	return seq, nil
}
