package jtag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupPart(t *testing.T) {
	tests := []struct {
		raw  uint32
		name string
		ir   int
	}{
		{0x4BA00477, "JTAG-DP", 4},
		{0x06413041, "STM32F405/407", 5},
		{0x06438041, "STM32F303x6/8, F334", 5},
		{0x0362D093, "XC7A35T", 6},
		{0x41111043, "LFE5U-25", 8},
	}
	for _, tt := range tests {
		p, ok := LookupPart(ParseIDCode(tt.raw))
		require.True(t, ok, "0x%08X", tt.raw)
		assert.Equal(t, tt.name, p.Name)
		assert.Equal(t, tt.ir, p.IRLength)
	}

	_, ok := LookupPart(ParseIDCode(0x12345A01))
	assert.False(t, ok)
}

func TestKnownIRLengths(t *testing.T) {
	dev := func(raw uint32) ChainDevice {
		return ChainDevice{IDCode: ParseIDCode(raw), HasID: true}
	}
	chain := []ChainDevice{dev(0x4BA00477), dev(0x06413041)}

	lens, ok := knownIRLengths(chain, 9)
	require.True(t, ok)
	assert.Equal(t, []int{4, 5}, lens)

	_, ok = knownIRLengths(chain, 10)
	assert.False(t, ok, "total mismatch")

	_, ok = knownIRLengths(append(chain, ChainDevice{}), 9)
	assert.False(t, ok, "bypass device")

	_, ok = knownIRLengths([]ChainDevice{dev(0x12345A01)}, 4)
	assert.False(t, ok, "unknown part")

	_, ok = knownIRLengths(nil, 0)
	assert.False(t, ok)
}
