package dap

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Transport is a half-duplex byte channel to a probe. Each call is bounded by
// the transport's own timeout.
type Transport interface {
	Send(frame []byte) error
	Receive() ([]byte, error)
}

// PacketSizer is implemented by transports that know their packet size.
type PacketSizer interface {
	PacketSize() int
}

// PacketSizeSetter is implemented by transports whose read size follows the
// probe's packet size.
type PacketSizeSetter interface {
	SetPacketSize(n int)
}

// State is the logical connection state of a Session.
type State int

const (
	StateDisconnected State = iota
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type sessionConfig struct {
	maxFrame int
	logger   *slog.Logger
	tracer   Tracer
}

// Option configures a Session.
type Option func(*sessionConfig)

// WithMaxFrame overrides the frame size bound. By default the transport's
// packet size is used, or DefaultMaxFrame if it reports none.
func WithMaxFrame(n int) Option {
	return func(c *sessionConfig) {
		c.maxFrame = n
	}
}

// WithLogger sets the logger used for state transitions.
func WithLogger(logger *slog.Logger) Option {
	return func(c *sessionConfig) {
		c.logger = logger
	}
}

// WithTracer installs a hook called after every exchange.
func WithTracer(t Tracer) Option {
	return func(c *sessionConfig) {
		c.tracer = t
	}
}

// Session drives one probe through its Transport. It owns the transport
// exclusively; operations are serialized so that exactly one command is in
// flight at a time.
type Session struct {
	transport Transport
	codec     *Codec
	logger    *slog.Logger
	tracer    Tracer

	state State
	port  Port

	mu sync.Mutex // one command in flight
}

// NewSession wraps an already open transport. The session starts
// disconnected.
func NewSession(t Transport, opts ...Option) *Session {
	cfg := sessionConfig{}
	if ps, ok := t.(PacketSizer); ok {
		cfg.maxFrame = ps.PacketSize()
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	return &Session{
		transport: t,
		codec:     NewCodec(cfg.maxFrame),
		logger:    cfg.logger,
		tracer:    cfg.tracer,
	}
}

// State reports the connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Port reports the port selected by the last successful Connect.
func (s *Session) Port() Port {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// MaxFrame reports the frame size bound in use.
func (s *Session) MaxFrame() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.codec.MaxFrame
}

// NegotiatePacketSize reads DAP_Info(PacketSize) and adopts it as the frame
// bound for this session and, where supported, for the transport.
func (s *Session) NegotiatePacketSize() (int, error) {
	n, err := s.InfoUint16(InfoPacketSize)
	if err != nil {
		return 0, err
	}
	if n < 2 {
		return 0, fmt.Errorf("%w: probe reports packet size %d", ErrMalformedResponse, n)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.codec.MaxFrame = int(n)
	if ps, ok := s.transport.(PacketSizeSetter); ok {
		ps.SetPacketSize(int(n))
	}
	s.logger.Debug("dap packet size", "bytes", n)
	return int(n), nil
}

// exchange sends one command and returns its raw response. Caller holds mu.
func (s *Session) exchange(cmd CommandID, req []byte) ([]byte, error) {
	if err := s.transport.Send(req); err != nil {
		return nil, fmt.Errorf("%s: send: %w", cmd, err)
	}
	resp, err := s.transport.Receive()
	if err != nil {
		return nil, fmt.Errorf("%s: receive: %w", cmd, err)
	}
	return resp, nil
}

// do runs encode, one exchange, and decode under the session lock.
func (s *Session) do(cmd CommandID, encode func() ([]byte, error), decode func([]byte) error) error {
	if s.state == StateClosed {
		return ErrClosed
	}
	req, err := encode()
	if err != nil {
		return err
	}
	start := time.Now()
	resp, err := s.exchange(cmd, req)
	if err == nil {
		err = decode(resp)
	}
	if s.tracer != nil {
		s.tracer(Event{
			Command:  cmd,
			Request:  req,
			Response: resp,
			Elapsed:  time.Since(start),
			Err:      err,
		})
	}
	return err
}

// requireConnected gates commands the protocol only accepts with a connected
// target. A non-default port additionally requires that port to be selected.
func (s *Session) requireConnected(cmd CommandID, port Port) error {
	switch {
	case s.state == StateClosed:
		return ErrClosed
	case s.state != StateConnected:
		return fmt.Errorf("%w: %s requires a connected target", ErrNotConnected, cmd)
	case port != PortDefault && s.port != port:
		return fmt.Errorf("%w: %s requires %s port, connected to %s", ErrNotConnected, cmd, port, s.port)
	}
	return nil
}

// Info issues DAP_Info and returns the raw info bytes.
func (s *Session) Info(id byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var data []byte
	err := s.do(CmdInfo,
		func() ([]byte, error) { return s.codec.EncodeInfo(id) },
		func(resp []byte) (err error) {
			data, err = s.codec.DecodeInfo(resp)
			return err
		})
	return data, err
}

// InfoString issues DAP_Info for a string-valued ID.
func (s *Session) InfoString(id byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var str string
	err := s.do(CmdInfo,
		func() ([]byte, error) { return s.codec.EncodeInfo(id) },
		func(resp []byte) (err error) {
			str, err = s.codec.DecodeInfoString(resp)
			return err
		})
	return str, err
}

// InfoByte issues DAP_Info for a byte-valued ID such as InfoCapabilities.
func (s *Session) InfoByte(id byte) (byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var b byte
	err := s.do(CmdInfo,
		func() ([]byte, error) { return s.codec.EncodeInfo(id) },
		func(resp []byte) (err error) {
			b, err = s.codec.DecodeInfoByte(resp)
			return err
		})
	return b, err
}

// InfoUint16 issues DAP_Info for a short-valued ID (InfoPacketSize).
func (s *Session) InfoUint16(id byte) (uint16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var v uint16
	err := s.do(CmdInfo,
		func() ([]byte, error) { return s.codec.EncodeInfo(id) },
		func(resp []byte) (err error) {
			v, err = s.codec.DecodeInfoUint16(resp)
			return err
		})
	return v, err
}

// HostStatus drives the probe's connect or running LED.
func (s *Session) HostStatus(typ HostStatusType, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.do(CmdHostStatus,
		func() ([]byte, error) { return s.codec.EncodeHostStatus(typ, on) },
		s.codec.DecodeHostStatus)
}

// Connect selects the debug port. On success the session is Connected; on any
// failure the state is left unchanged. Connecting again is allowed and simply
// re-selects the port.
func (s *Session) Connect(port Port) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var got Port
	err := s.do(CmdConnect,
		func() ([]byte, error) { return s.codec.EncodeConnect(port) },
		func(resp []byte) (err error) {
			got, err = s.codec.DecodeConnect(resp)
			return err
		})
	if err != nil {
		return err
	}
	if port != PortDefault && got != port {
		return fmt.Errorf("connect %s: %w", port, &StatusError{Command: CmdConnect, Status: byte(got)})
	}

	s.state = StateConnected
	s.port = got
	s.logger.Debug("dap connected", "port", got)
	return nil
}

// Disconnect releases the debug port and ends the session. If the
// DAP_Disconnect exchange fails the session stays connected so the caller may
// retry. The transport itself is not closed.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return ErrClosed
	}
	if s.state == StateConnected {
		err := s.do(CmdDisconnect, s.codec.EncodeDisconnect, s.codec.DecodeDisconnect)
		if err != nil {
			return err
		}
	}
	s.state = StateClosed
	s.logger.Debug("dap session closed")
	return nil
}

// Close ends the session even if DAP_Disconnect fails, returning that error.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if s.state == StateConnected {
		err = s.do(CmdDisconnect, s.codec.EncodeDisconnect, s.codec.DecodeDisconnect)
	}
	s.state = StateClosed
	return err
}

// Delay asks the probe to wait the given number of microseconds.
func (s *Session) Delay(us uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.do(CmdDelay,
		func() ([]byte, error) { return s.codec.EncodeDelay(us) },
		s.codec.DecodeDelay)
}

// ResetTarget runs the probe's device-specific reset sequence. It requires a
// connected target and reports whether a sequence was implemented.
func (s *Session) ResetTarget() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireConnected(CmdResetTarget, PortDefault); err != nil {
		return false, err
	}
	var executed bool
	err := s.do(CmdResetTarget, s.codec.EncodeResetTarget,
		func(resp []byte) (err error) {
			executed, err = s.codec.DecodeResetTarget(resp)
			return err
		})
	return executed, err
}

// SetPins drives the lines selected by sel to the levels in output, waits up
// to waitUS microseconds for them to settle and returns the pin state read
// back afterwards.
func (s *Session) SetPins(output, sel PinMask, waitUS uint32) (PinMask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pins PinMask
	err := s.do(CmdSWJPins,
		func() ([]byte, error) { return s.codec.EncodeSWJPins(output, sel, waitUS) },
		func(resp []byte) (err error) {
			pins, err = s.codec.DecodeSWJPins(resp)
			return err
		})
	return pins, err
}

// ReadPins returns the current pin state without changing any line.
func (s *Session) ReadPins() (PinMask, error) {
	return s.SetPins(0, 0, 0)
}

// SetClock sets the SWJ clock frequency.
func (s *Session) SetClock(hz uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if hz == 0 {
		return fmt.Errorf("%w: clock must be positive", ErrInvalidArgument)
	}
	return s.do(CmdSWJClock,
		func() ([]byte, error) { return s.codec.EncodeSWJClock(hz) },
		s.codec.DecodeSWJClock)
}

// SWJSequence clocks bits of data out on SWDIO/TMS.
func (s *Session) SWJSequence(bits int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.do(CmdSWJSequence,
		func() ([]byte, error) { return s.codec.EncodeSWJSequence(bits, data) },
		s.codec.DecodeSWJSequence)
}

// SWDConfigure sets the SWD turnaround period (1..4 clocks) and data phase
// behaviour.
func (s *Session) SWDConfigure(turnaround int, dataPhase bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if turnaround < 1 || turnaround > 4 {
		return fmt.Errorf("%w: turnaround %d outside 1..4", ErrInvalidArgument, turnaround)
	}
	cfg := byte(turnaround-1) & SWDTurnaroundMask
	if dataPhase {
		cfg |= SWDDataPhase
	}
	return s.do(CmdSWDConfigure,
		func() ([]byte, error) { return s.codec.EncodeSWDConfigure(cfg) },
		s.codec.DecodeSWDConfigure)
}

// SWDSequence runs a DAP_SWD_Sequence and returns data sampled by input
// segments. Requires an SWD connection.
func (s *Session) SWDSequence(segments []SWDSegment) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireConnected(CmdSWDSequence, PortSWD); err != nil {
		return nil, err
	}
	var data [][]byte
	err := s.do(CmdSWDSequence,
		func() ([]byte, error) { return s.codec.EncodeSWDSequence(segments) },
		func(resp []byte) (err error) {
			data, err = s.codec.DecodeSWDSequence(resp, segments)
			return err
		})
	return data, err
}

// JTAGSequence runs a multi-segment DAP_JTAG_Sequence in one frame and returns
// captured TDO data per capture-enabled segment, in order.
func (s *Session) JTAGSequence(segments []Segment) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var tdo [][]byte
	err := s.do(CmdJTAGSequence,
		func() ([]byte, error) { return s.codec.EncodeJTAGSequence(segments) },
		func(resp []byte) (err error) {
			tdo, err = s.codec.DecodeJTAGSequence(resp, segments)
			return err
		})
	return tdo, err
}

// JTAGConfigure tells the probe the IR length of each device in the chain.
// Requires a JTAG connection.
func (s *Session) JTAGConfigure(irLengths []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireConnected(CmdJTAGConfigure, PortJTAG); err != nil {
		return err
	}
	return s.do(CmdJTAGConfigure,
		func() ([]byte, error) { return s.codec.EncodeJTAGConfigure(irLengths) },
		s.codec.DecodeJTAGConfigure)
}

// JTAGIDCODE reads the IDCODE of one device in a configured chain. Requires
// a JTAG connection.
func (s *Session) JTAGIDCODE(deviceIndex byte) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireConnected(CmdJTAGIDCODE, PortJTAG); err != nil {
		return 0, err
	}
	var id uint32
	err := s.do(CmdJTAGIDCODE,
		func() ([]byte, error) { return s.codec.EncodeJTAGIDCODE(deviceIndex) },
		func(resp []byte) (err error) {
			id, err = s.codec.DecodeJTAGIDCODE(resp)
			return err
		})
	return id, err
}

// ProbeInfo summarizes the DAP_Info values of a probe. Strings the probe does
// not provide are empty.
type ProbeInfo struct {
	Vendor       string
	Product      string
	Serial       string
	Protocol     string
	Firmware     string
	Capabilities byte
	PacketSize   uint16
	PacketCount  byte
}

// QueryInfo reads the common DAP_Info values.
func (s *Session) QueryInfo() (ProbeInfo, error) {
	var info ProbeInfo
	strs := []struct {
		id  byte
		dst *string
	}{
		{InfoVendorName, &info.Vendor},
		{InfoProductName, &info.Product},
		{InfoSerialNumber, &info.Serial},
		{InfoProtocolVersion, &info.Protocol},
		{InfoFirmwareVersion, &info.Firmware},
	}
	for _, q := range strs {
		v, err := s.InfoString(q.id)
		if err != nil {
			return info, fmt.Errorf("info 0x%02X: %w", q.id, err)
		}
		*q.dst = v
	}

	var err error
	if info.Capabilities, err = s.InfoByte(InfoCapabilities); err != nil {
		return info, fmt.Errorf("capabilities: %w", err)
	}
	if info.PacketSize, err = s.InfoUint16(InfoPacketSize); err != nil {
		return info, fmt.Errorf("packet size: %w", err)
	}
	if info.PacketCount, err = s.InfoByte(InfoPacketCount); err != nil {
		return info, fmt.Errorf("packet count: %w", err)
	}
	return info, nil
}
