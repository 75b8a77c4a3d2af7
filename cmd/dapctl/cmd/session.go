package cmd

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/OpenTraceLab/OpenTraceDAP/pkg/dap"
	"github.com/OpenTraceLab/OpenTraceDAP/pkg/dapsim"
	"github.com/OpenTraceLab/OpenTraceDAP/pkg/transport"
)

// defaultSimChain is used by --sim when --sim-ids is not given.
const defaultSimChain = "stm32"

// target is an open session plus the transport underneath it.
type target struct {
	*dap.Session
	closer io.Closer
	label  string
}

// Close disconnects the session and releases the transport.
func (t *target) Close() error {
	return errors.Join(t.Session.Close(), t.closer.Close())
}

// openTarget opens the probe selected by the global flags.
func openTarget() (*target, error) {
	return openProbe(vendorID, productID, serial)
}

// openProbe opens one probe, real or simulated, and negotiates its packet
// size.
func openProbe(vid, pid uint16, serialNumber string) (*target, error) {
	logger := slog.Default()

	var (
		tr     dap.Transport
		closer io.Closer
		label  string
	)
	if simulate {
		chain, err := simChain()
		if err != nil {
			return nil, err
		}
		opts := dapsim.DefaultOptions()
		opts.Logger = logger
		if serialNumber != "" {
			opts.Serial = serialNumber
		}
		probe := dapsim.NewProbe(chain, opts)
		tr, closer, label = probe, probe, "simulator"
	} else {
		usb, err := transport.OpenUSB(vid, pid,
			transport.WithTimeout(timeout),
			transport.WithSerial(serialNumber),
			transport.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("open probe %04X:%04X: %w", vid, pid, err)
		}
		tr, closer, label = usb, usb, fmt.Sprintf("%04X:%04X", vid, pid)
	}

	s := dap.NewSession(tr, dap.WithLogger(logger), dap.WithTracer(dap.SlogTracer(logger)))
	if n, err := s.NegotiatePacketSize(); err != nil {
		logger.Warn("packet size query failed, keeping transport default", "err", err)
	} else {
		logger.Debug("probe opened", "probe", label, "packet_size", n)
	}
	return &target{Session: s, closer: closer, label: label}, nil
}

func simChain() (*dapsim.Chain, error) {
	spec := strings.Join(simIDs, ",")
	if spec == "" {
		spec = defaultSimChain
	}
	chain, err := dapsim.ChainFromSpec(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid --sim-ids: %w", err)
	}
	return chain, nil
}

// parseUint accepts decimal or 0x-prefixed hex.
func parseUint(s string, bits int) (uint64, error) {
	return strconv.ParseUint(strings.TrimSpace(s), 0, bits)
}

// parseHex decodes a hex byte string in transmit order. A 0x prefix,
// spaces and underscores are ignored; an odd digit count gets a leading zero.
func parseHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	s = strings.NewReplacer(" ", "", "_", "").Replace(s)
	if len(s)%2 == 1 {
		s = "0" + s
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex data %q: %w", s, err)
	}
	return b, nil
}

// fitBits pads or checks data against the byte length of a bit count.
func fitBits(data []byte, bits int) ([]byte, error) {
	n := (bits + 7) / 8
	if len(data) > n {
		return nil, fmt.Errorf("%d bytes of data for %d bits", len(data), bits)
	}
	out := make([]byte, n)
	copy(out, data)
	return out, nil
}

// parsePins turns a list of pin names into a mask.
func parsePins(names []string) (dap.PinMask, error) {
	var m dap.PinMask
	for _, name := range names {
		p, ok := dap.ParsePin(name)
		if !ok {
			return 0, fmt.Errorf("unknown pin %q (want swclk/tck, swdio/tms, tdi, tdo, ntrst, nreset)", name)
		}
		m = m.Union(p)
	}
	return m, nil
}

func capabilityNames(caps byte) string {
	names := []struct {
		bit  byte
		name string
	}{
		{dap.CapSWD, "SWD"},
		{dap.CapJTAG, "JTAG"},
		{dap.CapSWOUART, "SWO-UART"},
		{dap.CapSWOManchester, "SWO-Manchester"},
		{dap.CapAtomic, "Atomic"},
		{dap.CapTestDomain, "TestDomainTimer"},
		{dap.CapSWOStreaming, "SWO-Streaming"},
		{dap.CapUART, "UART"},
	}
	var out []string
	for _, n := range names {
		if caps&n.bit != 0 {
			out = append(out, n.name)
		}
	}
	if len(out) == 0 {
		return "none"
	}
	return strings.Join(out, ", ")
}

// withTarget opens the selected probe, runs fn and closes the probe again.
func withTarget(fn func(t *target) error) (err error) {
	t, err := openTarget()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := t.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close probe: %w", cerr)
		}
	}()
	return fn(t)
}
