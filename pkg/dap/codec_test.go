package dap

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommandID(t *testing.T) {
	for id, name := range commandNames {
		got, err := ParseCommandID(byte(id))
		require.NoError(t, err)
		assert.Equal(t, id, got)
		assert.Equal(t, name, got.String())
	}

	for _, b := range []byte{0x04, 0x17, 0x80, 0xFF} {
		_, err := ParseCommandID(b)
		assert.ErrorIs(t, err, ErrUnknownCommand, "0x%02X", b)
	}
	assert.Equal(t, "Command(0x7F)", CommandID(0x7F).String())
}

func TestParsePort(t *testing.T) {
	for in, want := range map[string]Port{"": PortDefault, "auto": PortDefault, "swd": PortSWD, "JTAG": PortJTAG} {
		got, err := ParsePort(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParsePort("spi")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestEncode(t *testing.T) {
	c := NewCodec(0)
	tests := []struct {
		name   string
		encode func() ([]byte, error)
		want   []byte
	}{
		{"info", func() ([]byte, error) { return c.EncodeInfo(InfoPacketSize) }, []byte{0x00, 0xFF}},
		{"host status", func() ([]byte, error) { return c.EncodeHostStatus(HostStatusRunning, true) }, []byte{0x01, 0x01, 0x01}},
		{"connect jtag", func() ([]byte, error) { return c.EncodeConnect(PortJTAG) }, []byte{0x02, 0x02}},
		{"disconnect", c.EncodeDisconnect, []byte{0x03}},
		{"delay", func() ([]byte, error) { return c.EncodeDelay(0x1234) }, []byte{0x09, 0x34, 0x12}},
		{"reset target", c.EncodeResetTarget, []byte{0x0A}},
		{"swj pins assert reset", func() ([]byte, error) { return c.EncodeSWJPins(PinNRESET, PinNRESET, 0) }, []byte{0x10, 0x80, 0x80, 0, 0, 0, 0}},
		{"swj pins wait", func() ([]byte, error) { return c.EncodeSWJPins(0, PinNTRST, 1000) }, []byte{0x10, 0x00, 0x20, 0xE8, 0x03, 0, 0}},
		{"swj clock", func() ([]byte, error) { return c.EncodeSWJClock(1000000) }, []byte{0x11, 0x40, 0x42, 0x0F, 0x00}},
		{"swj sequence", func() ([]byte, error) { return c.EncodeSWJSequence(5, []byte{0xFF}) }, []byte{0x12, 0x05, 0x1F}},
		{"swd configure", func() ([]byte, error) { return c.EncodeSWDConfigure(0x04) }, []byte{0x13, 0x04}},
		{"jtag sequence tms 64", func() ([]byte, error) {
			return c.EncodeJTAGSequence([]Segment{{Bits: 64, TMS: true, Data: []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}}})
		}, []byte{0x14, 0x01, 0x40, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}},
		{"jtag configure", func() ([]byte, error) { return c.EncodeJTAGConfigure([]byte{4, 5}) }, []byte{0x15, 0x02, 0x04, 0x05}},
		{"jtag idcode", func() ([]byte, error) { return c.EncodeJTAGIDCODE(1) }, []byte{0x16, 0x01}},
		{"swd sequence", func() ([]byte, error) {
			return c.EncodeSWDSequence([]SWDSegment{{Bits: 8, Data: []byte{0xA5}}, {Bits: 2, Input: true}})
		}, []byte{0x1D, 0x02, 0x08, 0xA5, 0x82}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.encode()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncodeJTAGSequenceCaptureAll(t *testing.T) {
	c := NewCodec(0)
	frame, err := c.EncodeJTAGSequence([]Segment{{Bits: 64, TMS: true, Capture: true, Data: make([]byte, 8)}})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x14, 0x01, 0xC0}, frame[:3])
	assert.Len(t, frame, 11)
}

func TestEncodeFrameLimits(t *testing.T) {
	c := NewCodec(16)

	// Request too large: two 64-bit segments need 2+2*9 bytes.
	segs := []Segment{{Bits: 64}, {Bits: 64}}
	_, err := c.EncodeJTAGSequence(segs)
	assert.ErrorIs(t, err, ErrFrameTooLarge)
	assert.ErrorIs(t, err, ErrSegmentCountOverflow)

	// Response too large: 15 captured bytes plus command and status.
	capture := []Segment{{Bits: 60, Capture: true}, {Bits: 60, Capture: true}}
	_, err = c.EncodeJTAGSequence(capture)
	assert.ErrorIs(t, err, ErrFrameTooLarge)

	_, err = c.EncodeSWDSequence([]SWDSegment{{Bits: 64, Input: true}, {Bits: 64, Input: true}})
	assert.ErrorIs(t, err, ErrFrameTooLarge)

	_, err = c.EncodeJTAGConfigure(make([]byte, 20))
	assert.ErrorIs(t, err, ErrFrameTooLarge)
	var fe *FrameSizeError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, CmdJTAGConfigure, fe.Command)
	assert.Equal(t, 22, fe.Size)

	_, err = c.EncodeJTAGConfigure(nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestDecodeValidationOrder(t *testing.T) {
	c := NewCodec(0)
	tests := []struct {
		name string
		resp []byte
		want error
	}{
		{"empty", nil, ErrMalformedResponse},
		{"wrong echo", []byte{0x11, 0x00}, ErrUnexpectedCommandEcho},
		{"wrong echo and length", []byte{0x11}, ErrUnexpectedCommandEcho},
		{"short", []byte{0x12}, ErrMalformedResponse},
		{"long", []byte{0x12, 0x00, 0x00}, ErrMalformedResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.DecodeSWJSequence(tt.resp)
			assert.ErrorIs(t, err, tt.want)
			assert.False(t, IsStatusError(err))
		})
	}

	err := c.DecodeSWJSequence([]byte{0x12, 0xFF})
	assert.True(t, IsStatusError(err))
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, CmdSWJSequence, se.Command)
	assert.Equal(t, byte(0xFF), se.Status)
}

func TestDecodeInfo(t *testing.T) {
	c := NewCodec(0)

	s, err := c.DecodeInfoString([]byte{0x00, 0x05, 'A', 'R', 'M', 0x00, 0x00})
	require.NoError(t, err)
	assert.Equal(t, "ARM", s)

	s, err = c.DecodeInfoString([]byte{0x00, 0x00})
	require.NoError(t, err)
	assert.Empty(t, s)

	b, err := c.DecodeInfoByte([]byte{0x00, 0x01, 0x13})
	require.NoError(t, err)
	assert.Equal(t, byte(0x13), b)

	n, err := c.DecodeInfoUint16([]byte{0x00, 0x02, 0x00, 0x02})
	require.NoError(t, err)
	assert.Equal(t, uint16(512), n)

	v, err := c.DecodeInfoUint32([]byte{0x00, 0x04, 0x78, 0x56, 0x34, 0x12})
	require.NoError(t, err)
	assert.Equal(t, uint32(0x12345678), v)

	_, err = c.DecodeInfo([]byte{0x00, 0x04, 'A'})
	assert.ErrorIs(t, err, ErrMalformedResponse)
	_, err = c.DecodeInfo([]byte{0x00})
	assert.ErrorIs(t, err, ErrMalformedResponse)
	_, err = c.DecodeInfo([]byte{0x02, 0x01, 0x01})
	assert.ErrorIs(t, err, ErrUnexpectedCommandEcho)
	_, err = c.DecodeInfoUint16([]byte{0x00, 0x01, 0x40})
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestDecodeResponses(t *testing.T) {
	c := NewCodec(0)

	port, err := c.DecodeConnect([]byte{0x02, 0x02})
	require.NoError(t, err)
	assert.Equal(t, PortJTAG, port)
	_, err = c.DecodeConnect([]byte{0x02, 0x00})
	assert.True(t, IsStatusError(err))

	pins, err := c.DecodeSWJPins([]byte{0x10, 0xFF})
	require.NoError(t, err)
	assert.Equal(t, PinsAll, pins)

	executed, err := c.DecodeResetTarget([]byte{0x0A, 0x00, 0x01})
	require.NoError(t, err)
	assert.True(t, executed)

	id, err := c.DecodeJTAGIDCODE([]byte{0x16, 0x00, 0x77, 0x04, 0xA0, 0x4B})
	require.NoError(t, err)
	assert.Equal(t, uint32(0x4BA00477), id)
	_, err = c.DecodeJTAGIDCODE([]byte{0x16, 0x00, 0x77, 0x04})
	assert.ErrorIs(t, err, ErrMalformedResponse)

	segs := []Segment{{Bits: 8, Capture: true}, {Bits: 3}, {Bits: 3, Capture: true}}
	tdo, err := c.DecodeJTAGSequence([]byte{0x14, 0x00, 0x5A, 0xFF}, segs)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{{0x5A}, {0x07}}, tdo)
	_, err = c.DecodeJTAGSequence([]byte{0x14, 0x00, 0x5A}, segs)
	assert.ErrorIs(t, err, ErrMalformedResponse)

	swd := []SWDSegment{{Bits: 8, Data: []byte{0}}, {Bits: 4, Input: true}}
	in, err := c.DecodeSWDSequence([]byte{0x1D, 0x00, 0x0C}, swd)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{{0x0C}}, in)

	for _, decode := range []func([]byte) error{
		c.DecodeHostStatus, c.DecodeDisconnect, c.DecodeDelay, c.DecodeSWJClock,
		c.DecodeSWDConfigure, c.DecodeJTAGConfigure,
	} {
		assert.ErrorIs(t, decode([]byte{0x7F, 0x00}), ErrUnexpectedCommandEcho)
	}
}
