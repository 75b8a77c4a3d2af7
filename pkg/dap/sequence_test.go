package dap

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSegmentInfo(t *testing.T) {
	tests := []struct {
		seg  Segment
		want byte
	}{
		{Segment{Bits: 1}, 0x01},
		{Segment{Bits: 8, TMS: true}, 0x48},
		{Segment{Bits: 63, Capture: true}, 0xBF},
		{Segment{Bits: 64}, 0x00},
		{Segment{Bits: 64, TMS: true, Capture: true}, 0xC0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.seg.Info(), "bits=%d", tt.seg.Bits)
		back := segmentFromInfo(tt.want)
		assert.Equal(t, tt.seg.Bits, back.Bits)
		assert.Equal(t, tt.seg.TMS, back.TMS)
		assert.Equal(t, tt.seg.Capture, back.Capture)
	}
}

func TestPackJTAGRoundTrip(t *testing.T) {
	segs := []Segment{
		NewSegment(5, true, false, []byte{0x1F}),
		NewSegment(3, false, false, []byte{0x05}),
		NewSegment(64, false, true, []byte{1, 2, 3, 4, 5, 6, 7, 8}),
		NewSegment(12, true, true, []byte{0xAB, 0x0C}),
	}
	payload, err := PackJTAG(segs)
	require.NoError(t, err)
	assert.Equal(t, byte(4), payload[0])
	assert.Len(t, payload, 1+(1+1)+(1+1)+(1+8)+(1+2))

	back, err := UnpackJTAG(payload)
	require.NoError(t, err)
	assert.Equal(t, segs, back)
}

func TestPackJTAGRoundTripRandom(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for iter := 0; iter < 500; iter++ {
		n := 1 + rng.Intn(MaxSegments)
		if iter == 0 {
			n = 64
		}
		segs := make([]Segment, n)
		for i := range segs {
			bits := 1 + rng.Intn(64)
			if iter == 0 {
				bits = i + 1
			}
			data := make([]byte, byteLen(bits))
			rng.Read(data)
			if r := bits % 8; r != 0 {
				data[len(data)-1] &= byte(1<<r) - 1
			}
			segs[i] = NewSegment(bits, rng.Intn(2) == 1, rng.Intn(2) == 1, data)
		}

		payload, err := PackJTAG(segs)
		require.NoError(t, err)
		back, err := UnpackJTAG(payload)
		require.NoError(t, err)
		require.Equal(t, segs, back, "iteration %d", iter)
	}
}

func TestPackJTAGNilDataClocksZeros(t *testing.T) {
	payload, err := PackJTAG([]Segment{{Bits: 10, TMS: true}})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x4A, 0x00, 0x00}, payload)
}

func TestPackJTAGMasksHighBits(t *testing.T) {
	payload, err := PackJTAG([]Segment{{Bits: 3, Data: []byte{0xFF}}})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x03, 0x07}, payload)
}

func TestPackJTAGSegmentLimit(t *testing.T) {
	segs := make([]Segment, MaxSegments)
	for i := range segs {
		segs[i] = Segment{Bits: 1}
	}
	payload, err := PackJTAG(segs)
	require.NoError(t, err)
	assert.Equal(t, byte(255), payload[0])

	_, err = PackJTAG(append(segs, Segment{Bits: 1}))
	assert.ErrorIs(t, err, ErrSegmentCountOverflow)
}

func TestPackJTAGInvalid(t *testing.T) {
	tests := []struct {
		name string
		segs []Segment
	}{
		{"empty", nil},
		{"zero bits", []Segment{{Bits: 0}}},
		{"too many bits", []Segment{{Bits: 65}}},
		{"short data", []Segment{{Bits: 9, Data: []byte{0xFF}}}},
		{"long data", []Segment{{Bits: 8, Data: []byte{0xFF, 0x00}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := PackJTAG(tt.segs)
			assert.ErrorIs(t, err, ErrInvalidArgument)
		})
	}
}

func TestUnpackJTAGMalformed(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{"empty", nil},
		{"zero count", []byte{0x00}},
		{"missing info", []byte{0x02, 0x01, 0x00}},
		{"short data", []byte{0x01, 0x10, 0xFF}},
		{"trailing", []byte{0x01, 0x01, 0x01, 0x00}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := UnpackJTAG(tt.payload)
			assert.ErrorIs(t, err, ErrMalformedResponse)
		})
	}
}

func TestUnpackCaptured(t *testing.T) {
	segs := []Segment{
		{Bits: 4, Capture: true},
		{Bits: 8},
		{Bits: 12, Capture: true},
	}
	assert.Equal(t, 3, CapturedLen(segs))

	out, err := UnpackCaptured(segs, []byte{0xFA, 0x34, 0xF2})
	require.NoError(t, err)
	assert.Equal(t, [][]byte{{0x0A}, {0x34, 0x02}}, out)

	_, err = UnpackCaptured(segs, []byte{0x00})
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestPackSWJ(t *testing.T) {
	payload, err := PackSWJ(51, []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF})
	require.NoError(t, err)
	assert.Equal(t, []byte{51, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x07}, payload)

	payload, err = PackSWJ(256, nil)
	require.NoError(t, err)
	assert.Equal(t, byte(0), payload[0])
	assert.Len(t, payload, 33)

	bits, data, err := UnpackSWJ(payload)
	require.NoError(t, err)
	assert.Equal(t, 256, bits)
	assert.Len(t, data, 32)

	for _, n := range []int{0, 257} {
		_, err = PackSWJ(n, nil)
		assert.ErrorIs(t, err, ErrInvalidArgument, "bits=%d", n)
	}
}

func TestPackSWDRoundTrip(t *testing.T) {
	segs := []SWDSegment{
		{Bits: 8, Data: []byte{0xA5}},
		{Bits: 3, Input: true},
		{Bits: 33, Input: true},
		{Bits: 64, Data: []byte{1, 2, 3, 4, 5, 6, 7, 8}},
	}
	payload, err := PackSWD(segs)
	require.NoError(t, err)
	assert.Equal(t, []byte{4, 0x08, 0xA5, 0x83, 0xA1, 0x00, 1, 2, 3, 4, 5, 6, 7, 8}, payload)

	back, err := UnpackSWD(payload)
	require.NoError(t, err)
	assert.Equal(t, segs, back)

	assert.Equal(t, 1+5, SWDInputLen(segs))
	in, err := UnpackSWDInput(segs, []byte{0xFF, 1, 2, 3, 4, 0xFF})
	require.NoError(t, err)
	assert.Equal(t, [][]byte{{0x07}, {1, 2, 3, 4, 0x01}}, in)

	_, err = PackSWD([]SWDSegment{{Bits: 4, Input: true, Data: []byte{1}}})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestSplitShift(t *testing.T) {
	// Five TMS-high bits, then 70 bits low: a 64+6 split, then a final TMS-high bit.
	bits := 76
	tms := make([]byte, 10)
	tms[0] = 0x1F
	tms[75/8] |= 1 << (75 % 8)
	tdi := make([]byte, 10)
	for i := range tdi {
		tdi[i] = 0xFF
	}

	segs, err := SplitShift(tms, tdi, bits, true)
	require.NoError(t, err)
	require.Len(t, segs, 4)

	assert.Equal(t, 5, segs[0].Bits)
	assert.True(t, segs[0].TMS)
	assert.Equal(t, []byte{0x1F}, segs[0].Data)
	assert.Equal(t, 64, segs[1].Bits)
	assert.False(t, segs[1].TMS)
	assert.Equal(t, 6, segs[2].Bits)
	assert.Equal(t, []byte{0x3F}, segs[2].Data)
	assert.Equal(t, 1, segs[3].Bits)
	assert.True(t, segs[3].TMS)

	total := 0
	for _, s := range segs {
		assert.True(t, s.Capture)
		total += s.Bits
	}
	assert.Equal(t, bits, total)
}

func TestSplitShiftErrors(t *testing.T) {
	_, err := SplitShift(nil, nil, 0, false)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = SplitShift([]byte{0}, nil, 16, false)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = SplitShift(nil, []byte{0}, 9, false)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestJoinCaptured(t *testing.T) {
	segs := []Segment{
		{Bits: 4, Capture: true},
		{Bits: 2},
		{Bits: 6, Capture: true},
	}
	out := JoinCaptured(segs, [][]byte{{0x05}, {0x3F}})
	// 0101 followed by 111111
	assert.Equal(t, []byte{0xF5, 0x03}, out)
}

func TestBatches(t *testing.T) {
	segs := make([]Segment, 300)
	for i := range segs {
		segs[i] = Segment{Bits: 1}
	}
	batches, err := Batches(segs, 4096)
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Len(t, batches[0], MaxSegments)
	assert.Len(t, batches[1], 45)

	// Each 64-bit capture segment adds 9 request and 8 response bytes.
	big := make([]Segment, 10)
	for i := range big {
		big[i] = Segment{Bits: 64, Capture: true}
	}
	batches, err = Batches(big, 64)
	require.NoError(t, err)
	for _, b := range batches {
		payload, err := PackJTAG(b)
		require.NoError(t, err)
		assert.LessOrEqual(t, 1+len(payload), 64)
		assert.LessOrEqual(t, 2+CapturedLen(b), 64)
	}
	n := 0
	for _, b := range batches {
		n += len(b)
	}
	assert.Equal(t, len(big), n)

	_, err = Batches(big, 8)
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}
