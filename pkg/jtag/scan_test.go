package jtag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenTraceLab/OpenTraceDAP/pkg/dapsim"
	"github.com/OpenTraceLab/OpenTraceDAP/pkg/tap"
)

func newSimController(t *testing.T, devs ...dapsim.Device) (*Controller, *dapsim.Probe) {
	t.Helper()
	a, probe := newSimAdapter(t, dapsim.DefaultOptions(), devs...)
	return NewController(a), probe
}

func TestControllerScanDRReadsIDCodes(t *testing.T) {
	c, probe := newSimController(t, dapsim.ARMJTAGDP, dapsim.STM32F4)
	require.NoError(t, c.Reset(false))

	tdo, err := c.ScanDR(nil, 64, tap.StateRunTestIdle)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x77, 0x04, 0xA0, 0x4B, 0x41, 0x30, 0x41, 0x06}, tdo)
	assert.Equal(t, tap.StateRunTestIdle, c.State())
	assert.Equal(t, tap.StateRunTestIdle, probe.Chain().State())
}

func TestControllerScanIRLoadsInstruction(t *testing.T) {
	c, probe := newSimController(t, dapsim.ARMJTAGDP, dapsim.STM32F4)
	require.NoError(t, c.Reset(true))

	// Device 0 (nearest TDO) gets BYPASS, device 1 keeps IDCODE (00001).
	// The first bits shifted end up in device 0.
	ir := []byte{0x1F, 0x00}
	captured, err := c.ScanIR(ir, 9, tap.StateRunTestIdle)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x11, 0x00}, captured)
	assert.Equal(t, uint32(0xF), probe.Chain().Instruction(0))
	assert.Equal(t, uint32(0x1), probe.Chain().Instruction(1))

	// One bypass bit, then the STM32 IDCODE.
	tdo, err := c.ScanDR(nil, 33, tap.StateRunTestIdle)
	require.NoError(t, err)
	var id uint32
	for i := 0; i < 32; i++ {
		if bitAt(tdo, i+1) {
			id |= 1 << i
		}
	}
	assert.False(t, bitAt(tdo, 0))
	assert.Equal(t, uint32(0x06413041), id)
}

func TestControllerScanEndStates(t *testing.T) {
	c, probe := newSimController(t, dapsim.ARMJTAGDP)
	require.NoError(t, c.Reset(false))

	_, err := c.ScanDR(nil, 8, tap.StatePauseDR)
	require.NoError(t, err)
	assert.Equal(t, tap.StatePauseDR, probe.Chain().State())

	_, err = c.ScanDR(nil, 8, tap.StateUpdateDR)
	assert.Error(t, err)

	_, err = c.ScanDR(nil, 0, tap.StateRunTestIdle)
	assert.Error(t, err)

	require.NoError(t, c.GoTo(tap.StateShiftIR))
	assert.Equal(t, tap.StateShiftIR, probe.Chain().State())

	require.NoError(t, c.Idle(10))
	assert.Equal(t, tap.StateRunTestIdle, probe.Chain().State())
}

func TestScanIDCodes(t *testing.T) {
	tests := []struct {
		name string
		devs []dapsim.Device
		want []uint32 // 0 for a BYPASS-only TAP
	}{
		{"single", []dapsim.Device{dapsim.ARMJTAGDP}, []uint32{0x4BA00477}},
		{"stm32", []dapsim.Device{dapsim.ARMJTAGDP, dapsim.STM32F4}, []uint32{0x4BA00477, 0x06413041}},
		{"bypass", []dapsim.Device{dapsim.ARMJTAGDP, dapsim.NoIDCode, dapsim.XC7A35T}, []uint32{0x4BA00477, 0, 0x0362D093}},
		{"empty", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newSimController(t, tt.devs...)
			devices, err := ScanIDCodes(c, 8)
			require.NoError(t, err)
			require.Len(t, devices, len(tt.want))
			for i, want := range tt.want {
				assert.Equal(t, i, devices[i].Index)
				assert.Equal(t, want != 0, devices[i].HasID)
				if want != 0 {
					assert.Equal(t, want, devices[i].IDCode.Raw)
				}
			}
		})
	}
}

func TestScanIDCodesTooManyDevices(t *testing.T) {
	c, _ := newSimController(t, dapsim.ARMJTAGDP, dapsim.STM32F4, dapsim.XC7A35T)
	_, err := ScanIDCodes(c, 1)
	assert.ErrorIs(t, err, ErrChainBroken)
}

func TestScanChain(t *testing.T) {
	c, probe := newSimController(t, dapsim.ARMJTAGDP, dapsim.STM32F4, dapsim.LFE5U25, dapsim.XC7A35T)

	info, err := ScanChain(c, 0)
	require.NoError(t, err)
	require.Len(t, info.Devices, 4)
	assert.Equal(t, 4+5+8+6, info.TotalIRLength)
	assert.Equal(t, []int{4, 5, 8, 6}, info.IRLengths())
	assert.Equal(t, "Lattice Semiconductor", info.Devices[2].IDCode.ManufacturerName())

	// MeasureIR leaves everything in BYPASS.
	for i := range info.Devices {
		assert.Equal(t, uint32(1)<<probe.Chain().IRLengths()[i]-1, probe.Chain().Instruction(i))
	}
}

func TestSplitIR(t *testing.T) {
	bits := func(s string) []bool {
		out := make([]bool, len(s))
		for i, c := range s {
			out[i] = c == '1'
		}
		return out
	}
	tests := []struct {
		pattern string
		devices int
		want    []int
		ok      bool
	}{
		{"1000" + "10000", 2, []int{4, 5}, true},
		{"100010000", 1, nil, false},
		{"1100", 2, nil, false},
		{"0100", 1, nil, false},
		{"", 0, nil, false},
	}
	for _, tt := range tests {
		got, ok := splitIR(bits(tt.pattern), tt.devices)
		assert.Equal(t, tt.ok, ok, tt.pattern)
		assert.Equal(t, tt.want, got, tt.pattern)
	}
}

func TestChainDeviceString(t *testing.T) {
	d := ChainDevice{Index: 1, IDCode: ParseIDCode(0x06413041), HasID: true, IRLength: 5}
	assert.Equal(t, "#1: 0x06413041 (Mfg: STMicroelectronics, Part: 0x6413, Ver: 0), IR 5", d.String())
	assert.Equal(t, "#0: BYPASS (no IDCODE), IR ?", ChainDevice{}.String())
}
