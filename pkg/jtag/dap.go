package jtag

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/OpenTraceLab/OpenTraceDAP/pkg/dap"
)

// Clock limits assumed for CMSIS-DAP probes.
const (
	DefaultSpeedHz = 1_000_000
	MinSpeedHz     = 1_000
	MaxSpeedHz     = 50_000_000
)

// DAPAdapter implements Adapter on top of a dap.Session connected to the JTAG
// port. Shifts are split into DAP_JTAG_Sequence segments and batched so that
// each command and response fits in one packet.
type DAPAdapter struct {
	session *dap.Session
	logger  *slog.Logger
	info    AdapterInfo
	speedHz int

	mu sync.Mutex
}

// DAPOption configures a DAPAdapter.
type DAPOption func(*DAPAdapter)

// WithSpeed sets the TCK frequency programmed when the adapter is created.
func WithSpeed(hz int) DAPOption {
	return func(a *DAPAdapter) {
		a.speedHz = hz
	}
}

// WithAdapterLogger sets the adapter's logger.
func WithAdapterLogger(l *slog.Logger) DAPOption {
	return func(a *DAPAdapter) {
		a.logger = l
	}
}

// NewDAPAdapter reads the probe's identity, selects the JTAG port if the
// session is not already on it, and programs the TCK frequency.
func NewDAPAdapter(s *dap.Session, opts ...DAPOption) (*DAPAdapter, error) {
	a := &DAPAdapter{
		session: s,
		logger:  slog.Default(),
		speedHz: DefaultSpeedHz,
	}
	for _, opt := range opts {
		opt(a)
	}

	pi, err := s.QueryInfo()
	if err != nil {
		return nil, fmt.Errorf("jtag: query probe info: %w", err)
	}
	if pi.Capabilities&dap.CapJTAG == 0 {
		return nil, fmt.Errorf("jtag: probe %q does not support JTAG", pi.Product)
	}
	a.info = AdapterInfo{
		Name:         "CMSIS-DAP",
		Vendor:       pi.Vendor,
		Model:        pi.Product,
		SerialNumber: pi.Serial,
		Firmware:     pi.Firmware,
		Protocol:     pi.Protocol,
		PacketSize:   int(pi.PacketSize),
		MinFrequency: MinSpeedHz,
		MaxFrequency: MaxSpeedHz,
		SupportsSRST: true,
		SupportsTRST: true,
	}

	if s.State() != dap.StateConnected || s.Port() != dap.PortJTAG {
		if err := s.Connect(dap.PortJTAG); err != nil {
			return nil, fmt.Errorf("jtag: connect: %w", err)
		}
	}
	if err := a.SetSpeed(a.speedHz); err != nil {
		return nil, err
	}
	a.logger.Debug("jtag adapter ready", "probe", a.info.Model, "speed_hz", a.speedHz)
	return a, nil
}

// Session returns the underlying DAP session.
func (a *DAPAdapter) Session() *dap.Session {
	return a.session
}

// Info returns adapter capabilities
func (a *DAPAdapter) Info() (AdapterInfo, error) {
	return a.info, nil
}

// ShiftIR shifts bits with the given TMS and TDI vectors and returns TDO.
func (a *DAPAdapter) ShiftIR(tms, tdi []byte, bits int) ([]byte, error) {
	return a.shift(tms, tdi, bits)
}

// ShiftDR shifts bits with the given TMS and TDI vectors and returns TDO.
func (a *DAPAdapter) ShiftDR(tms, tdi []byte, bits int) ([]byte, error) {
	return a.shift(tms, tdi, bits)
}

func (a *DAPAdapter) shift(tms, tdi []byte, bits int) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, err := ValidateShiftBuffers(tms, tdi, bits); err != nil {
		return nil, err
	}
	segments, err := dap.SplitShift(tms, tdi, bits, true)
	if err != nil {
		return nil, err
	}
	batches, err := dap.Batches(segments, a.session.MaxFrame())
	if err != nil {
		return nil, err
	}

	captured := make([][]byte, 0, len(segments))
	for _, batch := range batches {
		tdo, err := a.session.JTAGSequence(batch)
		if err != nil {
			return nil, fmt.Errorf("jtag: shift %d bits: %w", bits, err)
		}
		captured = append(captured, tdo...)
	}
	return dap.JoinCaptured(segments, captured), nil
}

// ResetTAP clocks five TMS=1 cycles. A hard reset first pulses nTRST.
func (a *DAPAdapter) ResetTAP(hard bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if hard {
		if _, err := a.session.SetPins(0, dap.PinNTRST, 0); err != nil {
			return fmt.Errorf("jtag: assert nTRST: %w", err)
		}
		if _, err := a.session.SetPins(dap.PinNTRST, dap.PinNTRST, 100); err != nil {
			return fmt.Errorf("jtag: release nTRST: %w", err)
		}
	}
	_, err := a.session.JTAGSequence([]dap.Segment{{Bits: 5, TMS: true, Data: []byte{0x1F}}})
	if err != nil {
		return fmt.Errorf("jtag: TAP reset: %w", err)
	}
	return nil
}

// SetSpeed sets the TCK frequency
func (a *DAPAdapter) SetSpeed(hz int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if hz < MinSpeedHz || hz > MaxSpeedHz {
		return fmt.Errorf("jtag: frequency %d Hz out of range [%d, %d]", hz, MinSpeedHz, MaxSpeedHz)
	}
	if err := a.session.SetClock(uint32(hz)); err != nil {
		return fmt.Errorf("jtag: set speed: %w", err)
	}
	a.speedHz = hz
	return nil
}

// Speed reports the last programmed TCK frequency.
func (a *DAPAdapter) Speed() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.speedHz
}

// ConfigureChain tells the probe the IR length of each device, nearest TDO
// first, as DAP_JTAG_IDCODE requires.
func (a *DAPAdapter) ConfigureChain(irLengths []int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	lens := make([]byte, len(irLengths))
	for i, n := range irLengths {
		if n < 1 || n > 255 {
			return fmt.Errorf("jtag: device %d: IR length %d", i, n)
		}
		lens[i] = byte(n)
	}
	return a.session.JTAGConfigure(lens)
}

// ReadIDCode issues DAP_JTAG_IDCODE for one configured device. The probe
// loads the ARM JTAG-DP IDCODE instruction into that device and BYPASS into
// the others, so the IR lengths given to ConfigureChain must be right.
func (a *DAPAdapter) ReadIDCode(index int) (IDCode, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if index < 0 || index > 255 {
		return IDCode{}, fmt.Errorf("jtag: device index %d", index)
	}
	raw, err := a.session.JTAGIDCODE(byte(index))
	if err != nil {
		return IDCode{}, err
	}
	return ParseIDCode(raw), nil
}

// Close disconnects the session. The transport stays open.
func (a *DAPAdapter) Close() error {
	return a.session.Close()
}
