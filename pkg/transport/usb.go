package transport

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/gousb"
)

const (
	// Raspberry Pi debugprobe / picoprobe USB identifiers
	VendorIDRaspberryPi = 0x2E8A
	ProductIDCMSISDAP   = 0x000C

	// DefaultPacketSize is the DAP packet size assumed for high-speed bulk
	// probes until the probe reports its own.
	DefaultPacketSize = 512
	DefaultTimeout    = 1000 * time.Millisecond
)

// Option configures a USB transport.
type Option func(*USB)

// WithTimeout bounds every write and read.
func WithTimeout(d time.Duration) Option {
	return func(t *USB) {
		if d > 0 {
			t.timeout = d
		}
	}
}

// WithSerial selects the probe with the given serial number when several
// share a VID:PID.
func WithSerial(serial string) Option {
	return func(t *USB) {
		t.serial = serial
	}
}

// WithPacketSize overrides the DAP packet size.
func WithPacketSize(n int) Option {
	return func(t *USB) {
		if n > 0 {
			t.packetSize = n
		}
	}
}

// WithLogger sets the logger used while claiming the device.
func WithLogger(l *slog.Logger) Option {
	return func(t *USB) {
		t.logger = l
	}
}

// USB is a CMSIS-DAP v2 transport over vendor-class bulk endpoints.
type USB struct {
	ctx  *gousb.Context
	dev  *gousb.Device
	cfg  *gousb.Config
	intf *gousb.Interface

	epOut *gousb.OutEndpoint
	epIn  *gousb.InEndpoint

	packetSize int
	timeout    time.Duration
	serial     string
	logger     *slog.Logger

	vid uint16
	pid uint16
}

// OpenUSB opens the probe with the given VID:PID and claims its CMSIS-DAP
// interface.
func OpenUSB(vid, pid uint16, opts ...Option) (*USB, error) {
	t := &USB{
		packetSize: DefaultPacketSize,
		timeout:    DefaultTimeout,
		logger:     slog.Default(),
		vid:        vid,
		pid:        pid,
	}
	for _, opt := range opts {
		opt(t)
	}

	t.ctx = gousb.NewContext()
	dev, err := t.openDevice()
	if err != nil {
		t.ctx.Close()
		return nil, err
	}
	t.dev = dev

	// Not supported on every platform.
	if err := dev.SetAutoDetach(true); err != nil {
		t.logger.Debug("auto-detach unavailable", "err", err)
	}

	if err := t.claimInterface(); err != nil {
		dev.Close()
		t.ctx.Close()
		return nil, err
	}
	return t, nil
}

// openDevice finds the device by VID:PID and, if requested, serial number.
func (t *USB) openDevice() (*gousb.Device, error) {
	devs, err := t.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return uint16(desc.Vendor) == t.vid && uint16(desc.Product) == t.pid
	})
	if err != nil && len(devs) == 0 {
		return nil, fmt.Errorf("USB error: %w", err)
	}

	var found *gousb.Device
	for _, dev := range devs {
		if found != nil {
			dev.Close()
			continue
		}
		if t.serial != "" {
			serial, _ := dev.SerialNumber()
			if serial != t.serial {
				dev.Close()
				continue
			}
		}
		found = dev
	}
	if found == nil {
		if t.serial != "" {
			return nil, fmt.Errorf("device not found (VID:0x%04X PID:0x%04X serial %q)", t.vid, t.pid, t.serial)
		}
		return nil, fmt.Errorf("device not found (VID:0x%04X PID:0x%04X)", t.vid, t.pid)
	}
	return found, nil
}

// claimInterface finds and claims the CMSIS-DAP vendor interface
func (t *USB) claimInterface() error {
	cfgNum, err := t.dev.ActiveConfigNum()
	if err != nil {
		cfgNum = 1
	}
	cfg, err := t.dev.Config(cfgNum)
	if err != nil {
		return fmt.Errorf("failed to get config: %w", err)
	}

	// CMSIS-DAP v2 uses a vendor-specific class interface with two or three
	// bulk endpoints.
	intfNum := -1
	for _, intf := range cfg.Desc.Interfaces {
		if len(intf.AltSettings) == 0 {
			continue
		}
		alt := intf.AltSettings[0]
		if alt.Class == gousb.ClassVendorSpec && len(alt.Endpoints) >= 2 {
			intfNum = intf.Number
			break
		}
	}
	if intfNum == -1 {
		cfg.Close()
		return fmt.Errorf("no CMSIS-DAP vendor interface on %04X:%04X", t.vid, t.pid)
	}

	intf, err := cfg.Interface(intfNum, 0)
	if err != nil {
		cfg.Close()
		return fmt.Errorf("failed to claim interface %d: %w", intfNum, err)
	}
	t.cfg, t.intf = cfg, intf

	if err := t.findEndpoints(); err != nil {
		intf.Close()
		cfg.Close()
		t.cfg, t.intf = nil, nil
		return err
	}
	t.logger.Debug("claimed CMSIS-DAP interface",
		"vid", fmt.Sprintf("%04x", t.vid), "pid", fmt.Sprintf("%04x", t.pid), "interface", intfNum)
	return nil
}

// findEndpoints opens the first bulk OUT and bulk IN endpoints. A third bulk
// endpoint, if present, carries SWO and is left alone.
func (t *USB) findEndpoints() error {
	outNum, inNum := -1, -1
	for _, ep := range t.intf.Setting.Endpoints {
		if ep.TransferType != gousb.TransferTypeBulk {
			continue
		}
		switch {
		case ep.Direction == gousb.EndpointDirectionOut && (outNum == -1 || ep.Number < outNum):
			outNum = ep.Number
		case ep.Direction == gousb.EndpointDirectionIn && (inNum == -1 || ep.Number < inNum):
			inNum = ep.Number
		}
	}
	if outNum == -1 {
		return fmt.Errorf("bulk OUT endpoint not found")
	}
	if inNum == -1 {
		return fmt.Errorf("bulk IN endpoint not found")
	}

	epOut, err := t.intf.OutEndpoint(outNum)
	if err != nil {
		return fmt.Errorf("failed to open OUT endpoint: %w", err)
	}
	epIn, err := t.intf.InEndpoint(inNum)
	if err != nil {
		return fmt.Errorf("failed to open IN endpoint: %w", err)
	}
	t.epOut, t.epIn = epOut, epIn
	return nil
}

// Send writes one command frame.
func (t *USB) Send(frame []byte) error {
	if t.epOut == nil {
		return &Error{Op: "write", Kind: ErrDeviceGone}
	}
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	n, err := t.epOut.WriteContext(ctx, frame)
	if err != nil {
		return classify("write", err)
	}
	if n != len(frame) {
		return &Error{Op: "write", Kind: ErrIO, Err: fmt.Errorf("short write %d/%d", n, len(frame))}
	}
	return nil
}

// Receive reads one response frame.
func (t *USB) Receive() ([]byte, error) {
	if t.epIn == nil {
		return nil, &Error{Op: "read", Kind: ErrDeviceGone}
	}
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	buf := make([]byte, t.readSize())
	n, err := t.epIn.ReadContext(ctx, buf)
	if err != nil {
		return nil, classify("read", err)
	}
	return buf[:n], nil
}

func (t *USB) readSize() int {
	n := t.packetSize
	if mps := t.epIn.Desc.MaxPacketSize; mps > n {
		n = mps
	}
	return n
}

// PacketSize returns the DAP packet size.
func (t *USB) PacketSize() int {
	return t.packetSize
}

// SetPacketSize updates the packet size, typically after DAP_Info(0xFF).
func (t *USB) SetPacketSize(n int) {
	if n > 0 {
		t.packetSize = n
	}
}

// Close releases USB resources
func (t *USB) Close() error {
	t.epOut, t.epIn = nil, nil
	if t.intf != nil {
		t.intf.Close()
		t.intf = nil
	}
	if t.cfg != nil {
		t.cfg.Close()
		t.cfg = nil
	}
	var err error
	if t.dev != nil {
		err = t.dev.Close()
		t.dev = nil
	}
	if t.ctx != nil {
		if cerr := t.ctx.Close(); err == nil {
			err = cerr
		}
		t.ctx = nil
	}
	return err
}
