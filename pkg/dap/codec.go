package dap

import (
	"encoding/binary"
	"fmt"
)

// DefaultMaxFrame is the largest command or response frame accepted when the
// transport does not report its own packet size.
const DefaultMaxFrame = 512

// Codec encodes CMSIS-DAP commands and validates their responses. Its only
// state is the frame size bound.
type Codec struct {
	MaxFrame int
}

// NewCodec creates a codec bounded by maxFrame bytes per frame. Values below 2
// select DefaultMaxFrame.
func NewCodec(maxFrame int) *Codec {
	if maxFrame < 2 {
		maxFrame = DefaultMaxFrame
	}
	return &Codec{MaxFrame: maxFrame}
}

// frame prepends the command byte and enforces the frame size bound.
func (c *Codec) frame(cmd CommandID, payload ...byte) ([]byte, error) {
	if size := 1 + len(payload); size > c.MaxFrame {
		return nil, &FrameSizeError{Command: cmd, Size: size, Max: c.MaxFrame}
	}
	buf := make([]byte, 0, 1+len(payload))
	buf = append(buf, byte(cmd))
	return append(buf, payload...), nil
}

// check validates a response in order: non-empty, command echo, exact length.
// It returns the bytes following the command byte.
func (c *Codec) check(cmd CommandID, resp []byte, want int) ([]byte, error) {
	if len(resp) == 0 {
		return nil, &LengthError{Command: cmd, Want: want}
	}
	if resp[0] != byte(cmd) {
		return nil, &EchoError{Want: cmd, Got: resp[0]}
	}
	if len(resp) != want {
		return nil, &LengthError{Command: cmd, Want: want, Got: len(resp)}
	}
	return resp[1:], nil
}

// checkStatus validates a [cmd, status, ...] response of the given length and
// fails on DAP_ERROR.
func (c *Codec) checkStatus(cmd CommandID, resp []byte, want int) ([]byte, error) {
	body, err := c.check(cmd, resp, want)
	if err != nil {
		return nil, err
	}
	if body[0] != StatusOK {
		return nil, &StatusError{Command: cmd, Status: body[0]}
	}
	return body[1:], nil
}

// EncodeInfo builds a DAP_Info command
func (c *Codec) EncodeInfo(infoID byte) ([]byte, error) {
	return c.frame(CmdInfo, infoID)
}

// DecodeInfo parses a DAP_Info response and returns the info bytes.
func (c *Codec) DecodeInfo(resp []byte) ([]byte, error) {
	if len(resp) >= 2 && resp[0] == byte(CmdInfo) {
		body, err := c.check(CmdInfo, resp, 2+int(resp[1]))
		if err != nil {
			return nil, err
		}
		return append([]byte(nil), body[1:]...), nil
	}
	// Empty, wrong echo, or missing length byte.
	_, err := c.check(CmdInfo, resp, 2)
	if err == nil {
		err = &LengthError{Command: CmdInfo, Want: 2, Got: len(resp)}
	}
	return nil, err
}

// DecodeInfoString parses a DAP_Info string response. Probes may include the
// terminating NUL in the length.
func (c *Codec) DecodeInfoString(resp []byte) (string, error) {
	data, err := c.DecodeInfo(resp)
	if err != nil {
		return "", err
	}
	for len(data) > 0 && data[len(data)-1] == 0 {
		data = data[:len(data)-1]
	}
	return string(data), nil
}

// DecodeInfoByte parses a one-byte DAP_Info response.
func (c *Codec) DecodeInfoByte(resp []byte) (byte, error) {
	data, err := c.DecodeInfo(resp)
	if err != nil {
		return 0, err
	}
	if len(data) < 1 {
		return 0, &LengthError{Command: CmdInfo, Want: 3, Got: len(resp)}
	}
	return data[0], nil
}

// DecodeInfoUint16 parses a two-byte little-endian DAP_Info response
// (packet size).
func (c *Codec) DecodeInfoUint16(resp []byte) (uint16, error) {
	data, err := c.DecodeInfo(resp)
	if err != nil {
		return 0, err
	}
	if len(data) != 2 {
		return 0, &LengthError{Command: CmdInfo, Want: 4, Got: len(resp)}
	}
	return binary.LittleEndian.Uint16(data), nil
}

// DecodeInfoUint32 parses a four-byte little-endian DAP_Info response
// (test domain timer, SWO trace buffer size).
func (c *Codec) DecodeInfoUint32(resp []byte) (uint32, error) {
	data, err := c.DecodeInfo(resp)
	if err != nil {
		return 0, err
	}
	if len(data) != 4 {
		return 0, &LengthError{Command: CmdInfo, Want: 6, Got: len(resp)}
	}
	return binary.LittleEndian.Uint32(data), nil
}

// EncodeHostStatus builds a DAP_HostStatus command
func (c *Codec) EncodeHostStatus(typ HostStatusType, on bool) ([]byte, error) {
	var status byte
	if on {
		status = 1
	}
	return c.frame(CmdHostStatus, byte(typ), status)
}

// DecodeHostStatus parses response
func (c *Codec) DecodeHostStatus(resp []byte) error {
	_, err := c.checkStatus(CmdHostStatus, resp, 2)
	return err
}

// EncodeConnect builds a DAP_Connect command
func (c *Codec) EncodeConnect(port Port) ([]byte, error) {
	return c.frame(CmdConnect, byte(port))
}

// DecodeConnect parses a DAP_Connect response and returns the port the probe
// selected. Port 0 means the connection failed.
func (c *Codec) DecodeConnect(resp []byte) (Port, error) {
	body, err := c.check(CmdConnect, resp, 2)
	if err != nil {
		return 0, err
	}
	if body[0] == 0 {
		return 0, &StatusError{Command: CmdConnect, Status: body[0]}
	}
	return Port(body[0]), nil
}

// EncodeDisconnect builds a DAP_Disconnect command
func (c *Codec) EncodeDisconnect() ([]byte, error) {
	return c.frame(CmdDisconnect)
}

// DecodeDisconnect parses a DAP_Disconnect response
func (c *Codec) DecodeDisconnect(resp []byte) error {
	_, err := c.checkStatus(CmdDisconnect, resp, 2)
	return err
}

// EncodeDelay builds a DAP_Delay command
func (c *Codec) EncodeDelay(us uint16) ([]byte, error) {
	var payload [2]byte
	binary.LittleEndian.PutUint16(payload[:], us)
	return c.frame(CmdDelay, payload[:]...)
}

// DecodeDelay parses response
func (c *Codec) DecodeDelay(resp []byte) error {
	_, err := c.checkStatus(CmdDelay, resp, 2)
	return err
}

// EncodeResetTarget builds a DAP_ResetTarget command
func (c *Codec) EncodeResetTarget() ([]byte, error) {
	return c.frame(CmdResetTarget)
}

// DecodeResetTarget parses response and reports whether a device-specific
// reset sequence was executed.
func (c *Codec) DecodeResetTarget(resp []byte) (bool, error) {
	body, err := c.checkStatus(CmdResetTarget, resp, 3)
	if err != nil {
		return false, err
	}
	return body[0] == 1, nil
}

// EncodeSWJPins builds a DAP_SWJ_Pins command: output levels, the lines to
// change, and a wait time in microseconds.
func (c *Codec) EncodeSWJPins(output, sel PinMask, waitUS uint32) ([]byte, error) {
	payload := make([]byte, 6)
	payload[0] = output.Byte()
	payload[1] = sel.Byte()
	binary.LittleEndian.PutUint32(payload[2:], waitUS)
	return c.frame(CmdSWJPins, payload...)
}

// DecodeSWJPins parses response and returns the pin state after the change.
func (c *Codec) DecodeSWJPins(resp []byte) (PinMask, error) {
	body, err := c.check(CmdSWJPins, resp, 2)
	if err != nil {
		return 0, err
	}
	return PinMaskFromByte(body[0]), nil
}

// EncodeSWJClock builds a DAP_SWJ_Clock command
func (c *Codec) EncodeSWJClock(hz uint32) ([]byte, error) {
	var payload [4]byte
	binary.LittleEndian.PutUint32(payload[:], hz)
	return c.frame(CmdSWJClock, payload[:]...)
}

// DecodeSWJClock parses response
func (c *Codec) DecodeSWJClock(resp []byte) error {
	_, err := c.checkStatus(CmdSWJClock, resp, 2)
	return err
}

// EncodeSWJSequence builds a DAP_SWJ_Sequence command
func (c *Codec) EncodeSWJSequence(bits int, data []byte) ([]byte, error) {
	payload, err := PackSWJ(bits, data)
	if err != nil {
		return nil, err
	}
	return c.frame(CmdSWJSequence, payload...)
}

// DecodeSWJSequence parses response
func (c *Codec) DecodeSWJSequence(resp []byte) error {
	_, err := c.checkStatus(CmdSWJSequence, resp, 2)
	return err
}

// EncodeSWDConfigure builds a DAP_SWD_Configure command
func (c *Codec) EncodeSWDConfigure(cfg byte) ([]byte, error) {
	return c.frame(CmdSWDConfigure, cfg)
}

// DecodeSWDConfigure parses response
func (c *Codec) DecodeSWDConfigure(resp []byte) error {
	_, err := c.checkStatus(CmdSWDConfigure, resp, 2)
	return err
}

// EncodeSWDSequence builds a DAP_SWD_Sequence command
func (c *Codec) EncodeSWDSequence(segments []SWDSegment) ([]byte, error) {
	payload, err := PackSWD(segments)
	if err != nil {
		return nil, err
	}
	if resp := 2 + SWDInputLen(segments); resp > c.MaxFrame {
		return nil, fmt.Errorf("%w: %w", ErrSegmentCountOverflow,
			&FrameSizeError{Command: CmdSWDSequence, Size: resp, Max: c.MaxFrame})
	}
	frame, err := c.frame(CmdSWDSequence, payload...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSegmentCountOverflow, err)
	}
	return frame, nil
}

// DecodeSWDSequence parses response and returns SWDIO data per input segment.
func (c *Codec) DecodeSWDSequence(resp []byte, segments []SWDSegment) ([][]byte, error) {
	body, err := c.checkStatus(CmdSWDSequence, resp, 2+SWDInputLen(segments))
	if err != nil {
		return nil, err
	}
	return UnpackSWDInput(segments, body)
}

// EncodeJTAGSequence builds a DAP_JTAG_Sequence command. Each segment is
// [info_byte][tdi_data...]. Both the command and the expected response must
// fit in one frame.
func (c *Codec) EncodeJTAGSequence(segments []Segment) ([]byte, error) {
	payload, err := PackJTAG(segments)
	if err != nil {
		return nil, err
	}
	if resp := 2 + CapturedLen(segments); resp > c.MaxFrame {
		return nil, fmt.Errorf("%w: %w", ErrSegmentCountOverflow,
			&FrameSizeError{Command: CmdJTAGSequence, Size: resp, Max: c.MaxFrame})
	}
	frame, err := c.frame(CmdJTAGSequence, payload...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSegmentCountOverflow, err)
	}
	return frame, nil
}

// DecodeJTAGSequence parses response and extracts TDO data for each
// capture-enabled segment.
func (c *Codec) DecodeJTAGSequence(resp []byte, segments []Segment) ([][]byte, error) {
	body, err := c.checkStatus(CmdJTAGSequence, resp, 2+CapturedLen(segments))
	if err != nil {
		return nil, err
	}
	return UnpackCaptured(segments, body)
}

// EncodeJTAGConfigure builds a DAP_JTAG_Configure command
func (c *Codec) EncodeJTAGConfigure(irLengths []byte) ([]byte, error) {
	if len(irLengths) == 0 || len(irLengths) > MaxSegments {
		return nil, fmt.Errorf("%w: %d devices in chain", ErrInvalidArgument, len(irLengths))
	}
	payload := make([]byte, 0, 1+len(irLengths))
	payload = append(payload, byte(len(irLengths)))
	payload = append(payload, irLengths...)
	return c.frame(CmdJTAGConfigure, payload...)
}

// DecodeJTAGConfigure parses response
func (c *Codec) DecodeJTAGConfigure(resp []byte) error {
	_, err := c.checkStatus(CmdJTAGConfigure, resp, 2)
	return err
}

// EncodeJTAGIDCODE builds a DAP_JTAG_IDCODE command
func (c *Codec) EncodeJTAGIDCODE(deviceIndex byte) ([]byte, error) {
	return c.frame(CmdJTAGIDCODE, deviceIndex)
}

// DecodeJTAGIDCODE parses response and extracts IDCODE
func (c *Codec) DecodeJTAGIDCODE(resp []byte) (uint32, error) {
	body, err := c.checkStatus(CmdJTAGIDCODE, resp, 6)
	if err != nil {
		return 0, err
	}
	// IDCODE is 32-bit little-endian
	return binary.LittleEndian.Uint32(body), nil
}
