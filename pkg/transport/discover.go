package transport

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/gousb"
)

// ProbeInfo describes a connected USB device that looks like a CMSIS-DAP
// probe.
type ProbeInfo struct {
	VendorID     uint16
	ProductID    uint16
	Serial       string
	Manufacturer string
	Product      string
	Bus          int
	Address      int
	Description  string
}

// Label returns a user-friendly description for the probe.
func (p ProbeInfo) Label() string {
	if p.Product != "" {
		return strings.TrimSpace(p.Manufacturer + " " + p.Product)
	}
	if p.Description != "" {
		return p.Description
	}
	return fmt.Sprintf("Probe %04X:%04X", p.VendorID, p.ProductID)
}

type knownUSBDevice struct {
	VendorID    uint16
	ProductID   uint16
	Description string
}

// KnownProbes lists VID:PID pairs of common CMSIS-DAP v2 probes.
var KnownProbes = []knownUSBDevice{
	{VendorID: VendorIDRaspberryPi, ProductID: ProductIDCMSISDAP, Description: "Raspberry Pi Debug Probe"},
	{VendorID: 0x0d28, ProductID: 0x0204, Description: "DAPLink CMSIS-DAP"},
	{VendorID: 0x1366, ProductID: 0x0101, Description: "SEGGER J-Link CMSIS-DAP"},
	{VendorID: 0x03eb, ProductID: 0x2175, Description: "Microchip nEDBG"},
	{VendorID: 0xc251, ProductID: 0xf001, Description: "Keil ULINKplus"},
}

func knownProbe(vid, pid uint16) (knownUSBDevice, bool) {
	for _, k := range KnownProbes {
		if k.VendorID == vid && k.ProductID == pid {
			return k, true
		}
	}
	return knownUSBDevice{}, false
}

// Enumerate lists connected probes matching KnownProbes plus any extra
// VID:PID pairs given as [2]uint16{vid, pid}. Devices that cannot be opened
// are still listed from their descriptors.
func Enumerate(ctx context.Context, extra ...[2]uint16) ([]ProbeInfo, error) {
	usb := gousb.NewContext()
	defer usb.Close()

	var results []ProbeInfo
	devs, err := usb.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}

		vid, pid := uint16(desc.Vendor), uint16(desc.Product)
		known, ok := knownProbe(vid, pid)
		if !ok {
			for _, e := range extra {
				if e[0] == vid && e[1] == pid {
					ok = true
					known = knownUSBDevice{VendorID: vid, ProductID: pid}
					break
				}
			}
		}
		if !ok {
			return false
		}
		results = append(results, ProbeInfo{
			VendorID:    vid,
			ProductID:   pid,
			Bus:         desc.Bus,
			Address:     desc.Address,
			Description: known.Description,
		})
		return true
	})
	defer func() {
		for _, d := range devs {
			d.Close()
		}
	}()

	// Fill in strings for the devices we could open.
	for _, dev := range devs {
		for i := range results {
			if results[i].Bus != dev.Desc.Bus || results[i].Address != dev.Desc.Address {
				continue
			}
			results[i].Serial, _ = dev.SerialNumber()
			results[i].Manufacturer, _ = dev.Manufacturer()
			results[i].Product, _ = dev.Product()
		}
	}

	if err != nil && err != gousb.ErrorAccess {
		return results, fmt.Errorf("enumerate USB devices: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}
