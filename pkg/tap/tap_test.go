package tap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextStateTable(t *testing.T) {
	cases := []struct {
		start State
		tms   bool
		end   State
	}{
		{StateTestLogicReset, false, StateRunTestIdle},
		{StateTestLogicReset, true, StateTestLogicReset},
		{StateRunTestIdle, true, StateSelectDRScan},
		{StateSelectDRScan, false, StateCaptureDR},
		{StateShiftDR, true, StateExit1DR},
		{StateExit2DR, false, StateShiftDR},
		{StateSelectIRScan, true, StateTestLogicReset},
		{StateCaptureIR, false, StateShiftIR},
		{StatePauseIR, true, StateExit2IR},
		{StateExit2IR, true, StateUpdateIR},
		{State(42), false, StateTestLogicReset},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.end, NextState(tc.start, tc.tms), "NextState(%s, %v)", tc.start, tc.tms)
	}
}

func TestFiveOnesResetFromAnyState(t *testing.T) {
	for s := StateTestLogicReset; s.Valid(); s++ {
		m := NewStateMachine()
		m.Set(s)
		seq := m.Reset()
		assert.Equal(t, StateTestLogicReset, m.State(), "from %s", s)
		assert.Equal(t, s, seq.States[0])
		assert.Equal(t, []byte{0x1F}, seq.Bytes())
	}
}

func TestGoToProducesExpectedPattern(t *testing.T) {
	m := NewStateMachine()
	m.Clock(false) // -> Run-Test/Idle

	path, err := m.GoTo(StateShiftIR)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, true, false, false}, path.TMS)
	assert.Equal(t, []State{StateRunTestIdle, StateSelectDRScan, StateSelectIRScan, StateCaptureIR, StateShiftIR}, path.States)
	assert.Equal(t, StateShiftIR, m.State())
	assert.Equal(t, []byte{0x03}, path.Bytes())

	path, err = m.GoTo(StateRunTestIdle)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, true, false}, path.TMS)
	assert.Equal(t, StateRunTestIdle, m.State())

	path, err = m.GoTo(StateRunTestIdle)
	require.NoError(t, err)
	assert.Zero(t, path.Len())
	assert.Equal(t, StateRunTestIdle, path.End())
}

func TestPathReplaysToTarget(t *testing.T) {
	for from := StateTestLogicReset; from.Valid(); from++ {
		for to := StateTestLogicReset; to.Valid(); to++ {
			path, err := Path(from, to)
			require.NoError(t, err)
			require.Len(t, path.States, path.Len()+1)
			assert.LessOrEqual(t, path.Len(), 8, "%s -> %s", from, to)

			m := NewStateMachine()
			m.Set(from)
			assert.Equal(t, to, m.ClockBits(path.Bytes(), path.Len()), "%s -> %s", from, to)
		}
	}

	_, err := Path(State(99), StateShiftDR)
	assert.Error(t, err)
	_, err = Path(StateShiftDR, State(99))
	assert.Error(t, err)
}

func TestParseState(t *testing.T) {
	tests := map[string]State{
		"ShiftDR":       StateShiftDR,
		"shift-ir":      StateShiftIR,
		"run_test_idle": StateRunTestIdle,
		"idle":          StateRunTestIdle,
		"reset":         StateTestLogicReset,
		"Pause DR":      StatePauseDR,
	}
	for in, want := range tests {
		got, err := ParseState(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseState("shift-xr")
	assert.Error(t, err)
}

func TestStateClasses(t *testing.T) {
	assert.True(t, StateShiftDR.Stable())
	assert.True(t, StatePauseIR.Stable())
	assert.False(t, StateCaptureDR.Stable())
	assert.True(t, StateUpdateIR.IsIR())
	assert.False(t, StateUpdateIR.IsDR())
	assert.True(t, StateSelectDRScan.IsDR())
	assert.False(t, StateRunTestIdle.IsDR() || StateRunTestIdle.IsIR())
	assert.Equal(t, "State(20)", State(20).String())
}
