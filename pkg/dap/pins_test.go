package dap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPinMaskRoundTrip(t *testing.T) {
	for b := 0; b < 256; b++ {
		m := PinMaskFromByte(byte(b))
		assert.Zero(t, m.Byte()&0x50, "reserved bits leak for 0x%02X", b)
		if byte(b)&0x50 == 0 {
			assert.Equal(t, byte(b), m.Byte(), "valid mask 0x%02X", b)
		}
		assert.Equal(t, m, PinMaskFromByte(m.Byte()))
	}
}

func TestPinMaskOps(t *testing.T) {
	m := Pins(PinSWCLK, PinNRESET)
	assert.Equal(t, byte(0x81), m.Byte())
	assert.True(t, m.Has(PinNRESET))
	assert.True(t, m.Has(PinSWCLK|PinNRESET))
	assert.False(t, m.Has(PinTDI))
	assert.False(t, m.Has(0))

	assert.Equal(t, PinSWCLK|PinNRESET|PinTDO, m.Union(PinTDO))
	assert.Equal(t, PinNRESET, m.Intersect(PinNRESET|PinTDI))
	assert.Equal(t, PinSWCLK, m.Without(PinNRESET))
	assert.Equal(t, PinsAll, PinMask(0xFF).Union(0))
}

func TestPinMaskString(t *testing.T) {
	tests := []struct {
		mask PinMask
		want string
	}{
		{0, "none"},
		{PinNRESET, "nRESET"},
		{PinSWCLK | PinSWDIO, "SWCLK|SWDIO"},
		{PinsAll, "SWCLK|SWDIO|TDI|TDO|nTRST|nRESET"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.mask.String())
	}
}

func TestParsePin(t *testing.T) {
	tests := []struct {
		name string
		want PinMask
		ok   bool
	}{
		{"SWCLK", PinSWCLK, true},
		{"tck", PinTCK, true},
		{"TMS", PinSWDIO, true},
		{"tdi", PinTDI, true},
		{" tdo ", PinTDO, true},
		{"nTRST", PinNTRST, true},
		{"srst", PinNRESET, true},
		{"nRESET", PinNRESET, true},
		{"vref", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParsePin(tt.name)
		assert.Equal(t, tt.ok, ok, tt.name)
		assert.Equal(t, tt.want, got, tt.name)
	}
}
