package dap

import "fmt"

// JTAG Sequence info flags
const (
	JTAGSeqTCKMask = 0x3F // Bits [5:0] = TCK count (1-63, 0 means 64)
	JTAGSeqTMS     = 0x40 // Bit [6] = TMS value
	JTAGSeqTDO     = 0x80 // Bit [7] = Capture TDO
)

// SWD Sequence info flags
const (
	SWDSeqCountMask = 0x3F // Bits [5:0] = clock count (0 means 64)
	SWDSeqInput     = 0x80 // Bit [7] = read SWDIO
)

// Sequence limits
const (
	MaxSegmentBits = 64
	MaxSegments    = 255
	MaxSWJBits     = 256
)

// Segment is one DAP_JTAG_Sequence entry: Bits TCK cycles with a constant TMS
// level, shifting Data out on TDI LSB first.
type Segment struct {
	Bits    int
	TMS     bool
	Capture bool   // capture TDO for this segment
	Data    []byte // ceil(Bits/8) bytes; nil clocks zeros
}

// NewSegment creates a sequence descriptor.
func NewSegment(bits int, tms, capture bool, data []byte) Segment {
	return Segment{Bits: bits, TMS: tms, Capture: capture, Data: data}
}

// ByteLen is the number of data bytes the segment occupies on the wire.
func (s Segment) ByteLen() int {
	return byteLen(s.Bits)
}

// Info returns the wire info byte. Bits must already be validated.
func (s Segment) Info() byte {
	info := byte(s.Bits) & JTAGSeqTCKMask
	if s.TMS {
		info |= JTAGSeqTMS
	}
	if s.Capture {
		info |= JTAGSeqTDO
	}
	return info
}

func (s Segment) validate(i int) error {
	if s.Bits < 1 || s.Bits > MaxSegmentBits {
		return fmt.Errorf("%w: segment %d: bit count %d outside 1..%d", ErrInvalidArgument, i, s.Bits, MaxSegmentBits)
	}
	if s.Data != nil && len(s.Data) != s.ByteLen() {
		return fmt.Errorf("%w: segment %d: %d data bytes for %d bits, want %d",
			ErrInvalidArgument, i, len(s.Data), s.Bits, s.ByteLen())
	}
	return nil
}

// segmentFromInfo decodes an info byte back into bit count and flags.
func segmentFromInfo(info byte) Segment {
	bits := int(info & JTAGSeqTCKMask)
	if bits == 0 {
		bits = MaxSegmentBits
	}
	return Segment{
		Bits:    bits,
		TMS:     info&JTAGSeqTMS != 0,
		Capture: info&JTAGSeqTDO != 0,
	}
}

// PackJTAG serializes segments into a DAP_JTAG_Sequence payload (everything
// after the command byte).
func PackJTAG(segments []Segment) ([]byte, error) {
	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: empty sequence", ErrInvalidArgument)
	}
	if len(segments) > MaxSegments {
		return nil, fmt.Errorf("%w: %d segments, max %d", ErrSegmentCountOverflow, len(segments), MaxSegments)
	}

	size := 1
	for i, seg := range segments {
		if err := seg.validate(i); err != nil {
			return nil, err
		}
		size += 1 + seg.ByteLen()
	}

	buf := make([]byte, 0, size)
	buf = append(buf, byte(len(segments)))
	for _, seg := range segments {
		buf = append(buf, seg.Info())
		buf = appendBits(buf, seg.Data, seg.Bits)
	}
	return buf, nil
}

// UnpackJTAG parses a DAP_JTAG_Sequence payload produced by PackJTAG.
func UnpackJTAG(payload []byte) ([]Segment, error) {
	if len(payload) < 1 {
		return nil, fmt.Errorf("%w: missing segment count", ErrMalformedResponse)
	}
	count := int(payload[0])
	if count == 0 {
		return nil, fmt.Errorf("%w: zero segments", ErrMalformedResponse)
	}

	segments := make([]Segment, 0, count)
	offset := 1
	for i := 0; i < count; i++ {
		if offset >= len(payload) {
			return nil, fmt.Errorf("%w: segment %d: missing info byte", ErrMalformedResponse, i)
		}
		seg := segmentFromInfo(payload[offset])
		offset++
		n := seg.ByteLen()
		if offset+n > len(payload) {
			return nil, fmt.Errorf("%w: segment %d: incomplete TDI data", ErrMalformedResponse, i)
		}
		seg.Data = maskBits(payload[offset:offset+n], seg.Bits)
		offset += n
		segments = append(segments, seg)
	}
	if offset != len(payload) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformedResponse, len(payload)-offset)
	}
	return segments, nil
}

// CapturedLen is the number of TDO bytes a probe returns for segments.
func CapturedLen(segments []Segment) int {
	n := 0
	for _, seg := range segments {
		if seg.Capture {
			n += seg.ByteLen()
		}
	}
	return n
}

// UnpackCaptured splits TDO data into one slice per capture-enabled segment,
// in the order the segments were sent. Unused high bits are cleared.
func UnpackCaptured(segments []Segment, data []byte) ([][]byte, error) {
	if want := CapturedLen(segments); len(data) != want {
		return nil, fmt.Errorf("%w: %d TDO bytes, want %d", ErrMalformedResponse, len(data), want)
	}
	result := make([][]byte, 0, len(segments))
	offset := 0
	for _, seg := range segments {
		if !seg.Capture {
			continue
		}
		n := seg.ByteLen()
		result = append(result, maskBits(data[offset:offset+n], seg.Bits))
		offset += n
	}
	return result, nil
}

// PackSWJ serializes a DAP_SWJ_Sequence payload. The count byte carries the
// raw bit count, with 256 encoded as 0.
func PackSWJ(bits int, data []byte) ([]byte, error) {
	if bits < 1 || bits > MaxSWJBits {
		return nil, fmt.Errorf("%w: SWJ bit count %d outside 1..%d", ErrInvalidArgument, bits, MaxSWJBits)
	}
	if data != nil && len(data) != byteLen(bits) {
		return nil, fmt.Errorf("%w: %d data bytes for %d bits, want %d", ErrInvalidArgument, len(data), bits, byteLen(bits))
	}
	buf := make([]byte, 0, 1+byteLen(bits))
	buf = append(buf, byte(bits))
	return appendBits(buf, data, bits), nil
}

// UnpackSWJ is the inverse of PackSWJ.
func UnpackSWJ(payload []byte) (int, []byte, error) {
	if len(payload) < 1 {
		return 0, nil, fmt.Errorf("%w: missing bit count", ErrMalformedResponse)
	}
	bits := int(payload[0])
	if bits == 0 {
		bits = MaxSWJBits
	}
	if len(payload) != 1+byteLen(bits) {
		return 0, nil, fmt.Errorf("%w: %d data bytes for %d bits", ErrMalformedResponse, len(payload)-1, bits)
	}
	return bits, maskBits(payload[1:], bits), nil
}

// SWDSegment is one DAP_SWD_Sequence entry. Output segments drive Data on
// SWDIO; input segments sample SWDIO and carry no request data.
type SWDSegment struct {
	Bits  int
	Input bool
	Data  []byte
}

// ByteLen is the number of data bytes the segment occupies on the wire.
func (s SWDSegment) ByteLen() int {
	return byteLen(s.Bits)
}

// Info returns the wire info byte.
func (s SWDSegment) Info() byte {
	info := byte(s.Bits) & SWDSeqCountMask
	if s.Input {
		info |= SWDSeqInput
	}
	return info
}

// PackSWD serializes a DAP_SWD_Sequence payload.
func PackSWD(segments []SWDSegment) ([]byte, error) {
	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: empty sequence", ErrInvalidArgument)
	}
	if len(segments) > MaxSegments {
		return nil, fmt.Errorf("%w: %d segments, max %d", ErrSegmentCountOverflow, len(segments), MaxSegments)
	}
	buf := []byte{byte(len(segments))}
	for i, seg := range segments {
		if seg.Bits < 1 || seg.Bits > MaxSegmentBits {
			return nil, fmt.Errorf("%w: segment %d: bit count %d outside 1..%d", ErrInvalidArgument, i, seg.Bits, MaxSegmentBits)
		}
		buf = append(buf, seg.Info())
		if seg.Input {
			if len(seg.Data) != 0 {
				return nil, fmt.Errorf("%w: segment %d: input segment carries data", ErrInvalidArgument, i)
			}
			continue
		}
		if seg.Data != nil && len(seg.Data) != seg.ByteLen() {
			return nil, fmt.Errorf("%w: segment %d: %d data bytes for %d bits, want %d",
				ErrInvalidArgument, i, len(seg.Data), seg.Bits, seg.ByteLen())
		}
		buf = appendBits(buf, seg.Data, seg.Bits)
	}
	return buf, nil
}

// UnpackSWD parses a DAP_SWD_Sequence payload produced by PackSWD.
func UnpackSWD(payload []byte) ([]SWDSegment, error) {
	if len(payload) < 1 || payload[0] == 0 {
		return nil, fmt.Errorf("%w: missing segment count", ErrMalformedResponse)
	}
	count := int(payload[0])
	segments := make([]SWDSegment, 0, count)
	offset := 1
	for i := 0; i < count; i++ {
		if offset >= len(payload) {
			return nil, fmt.Errorf("%w: segment %d: missing info byte", ErrMalformedResponse, i)
		}
		info := payload[offset]
		offset++
		seg := SWDSegment{Bits: int(info & SWDSeqCountMask), Input: info&SWDSeqInput != 0}
		if seg.Bits == 0 {
			seg.Bits = MaxSegmentBits
		}
		if !seg.Input {
			n := seg.ByteLen()
			if offset+n > len(payload) {
				return nil, fmt.Errorf("%w: segment %d: incomplete data", ErrMalformedResponse, i)
			}
			seg.Data = maskBits(payload[offset:offset+n], seg.Bits)
			offset += n
		}
		segments = append(segments, seg)
	}
	if offset != len(payload) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformedResponse, len(payload)-offset)
	}
	return segments, nil
}

// SWDInputLen is the number of SWDIO bytes a probe returns for segments.
func SWDInputLen(segments []SWDSegment) int {
	n := 0
	for _, seg := range segments {
		if seg.Input {
			n += seg.ByteLen()
		}
	}
	return n
}

// UnpackSWDInput splits sampled SWDIO data per input segment.
func UnpackSWDInput(segments []SWDSegment, data []byte) ([][]byte, error) {
	if want := SWDInputLen(segments); len(data) != want {
		return nil, fmt.Errorf("%w: %d SWDIO bytes, want %d", ErrMalformedResponse, len(data), want)
	}
	var result [][]byte
	offset := 0
	for _, seg := range segments {
		if !seg.Input {
			continue
		}
		n := seg.ByteLen()
		result = append(result, maskBits(data[offset:offset+n], seg.Bits))
		offset += n
	}
	return result, nil
}

// SplitShift turns per-bit TMS and TDI vectors (LSB first) into JTAG
// segments. A new segment starts whenever TMS changes or a segment reaches 64
// bits. A nil tms holds TMS low; a nil tdi shifts zeros.
func SplitShift(tms, tdi []byte, bits int, capture bool) ([]Segment, error) {
	if bits <= 0 {
		return nil, fmt.Errorf("%w: bits must be positive, got %d", ErrInvalidArgument, bits)
	}
	need := byteLen(bits)
	if len(tms) > 0 && len(tms) < need {
		return nil, fmt.Errorf("%w: tms buffer too short, need %d bytes", ErrInvalidArgument, need)
	}
	if len(tdi) > 0 && len(tdi) < need {
		return nil, fmt.Errorf("%w: tdi buffer too short, need %d bytes", ErrInvalidArgument, need)
	}

	var segments []Segment
	for pos := 0; pos < bits; {
		level := bitAt(tms, pos)
		n := 0
		for pos+n < bits && n < MaxSegmentBits && bitAt(tms, pos+n) == level {
			n++
		}
		data := make([]byte, byteLen(n))
		for j := 0; j < n; j++ {
			if bitAt(tdi, pos+j) {
				data[j/8] |= 1 << (j % 8)
			}
		}
		segments = append(segments, Segment{Bits: n, TMS: level, Capture: capture, Data: data})
		pos += n
	}
	return segments, nil
}

// JoinCaptured concatenates the TDO bits of capture-enabled segments into one
// LSB-first vector.
func JoinCaptured(segments []Segment, captured [][]byte) []byte {
	total := 0
	for _, seg := range segments {
		if seg.Capture {
			total += seg.Bits
		}
	}
	out := make([]byte, byteLen(total))
	pos, idx := 0, 0
	for _, seg := range segments {
		if !seg.Capture {
			continue
		}
		var chunk []byte
		if idx < len(captured) {
			chunk = captured[idx]
		}
		idx++
		for j := 0; j < seg.Bits; j++ {
			if bitAt(chunk, j) {
				out[pos/8] |= 1 << (pos % 8)
			}
			pos++
		}
	}
	return out
}

// Batches groups segments so that each DAP_JTAG_Sequence command and its
// response fit in maxFrame bytes and carry at most 255 segments.
func Batches(segments []Segment, maxFrame int) ([][]Segment, error) {
	var (
		batches [][]Segment
		current []Segment
		reqLen  = 2 // command + count
		respLen = 2 // command + status
	)
	for i, seg := range segments {
		if err := seg.validate(i); err != nil {
			return nil, err
		}
		segReq := 1 + seg.ByteLen()
		segResp := 0
		if seg.Capture {
			segResp = seg.ByteLen()
		}
		if 2+segReq > maxFrame || 2+segResp > maxFrame {
			return nil, &FrameSizeError{Command: CmdJTAGSequence, Size: 2 + segReq, Max: maxFrame}
		}
		if len(current) == MaxSegments || reqLen+segReq > maxFrame || respLen+segResp > maxFrame {
			batches = append(batches, current)
			current, reqLen, respLen = nil, 2, 2
		}
		current = append(current, seg)
		reqLen += segReq
		respLen += segResp
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches, nil
}

func byteLen(bits int) int {
	return (bits + 7) / 8
}

func bitAt(buf []byte, i int) bool {
	if i/8 >= len(buf) {
		return false
	}
	return buf[i/8]&(1<<(i%8)) != 0
}

// appendBits appends ceil(bits/8) bytes of data with the unused high bits of
// the last byte cleared. Missing data is zero-filled.
func appendBits(buf, data []byte, bits int) []byte {
	start := len(buf)
	n := byteLen(bits)
	buf = append(buf, make([]byte, n)...)
	copy(buf[start:], data)
	if rem := bits % 8; rem != 0 {
		buf[start+n-1] &= byte(1<<rem) - 1
	}
	return buf
}

// maskBits returns a copy of data with bits beyond the given count cleared.
func maskBits(data []byte, bits int) []byte {
	out := make([]byte, len(data))
	copy(out, data)
	if rem := bits % 8; rem != 0 && len(out) > 0 {
		out[len(out)-1] &= byte(1<<rem) - 1
	}
	return out
}
