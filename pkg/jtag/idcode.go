package jtag

import "fmt"

// IDCode is a decoded IEEE 1149.1 device identification register.
//
//	bits 31..28  version
//	bits 27..12  part number
//	bits 11..1   JEP106 manufacturer (bank in 11..8, code in 7..1)
//	bit  0       always 1
type IDCode struct {
	Raw          uint32
	Version      uint8
	PartNumber   uint16
	Manufacturer uint16 // bank<<7 | code
}

// ParseIDCode splits a raw IDCODE into its fields.
func ParseIDCode(raw uint32) IDCode {
	return IDCode{
		Raw:          raw,
		Version:      uint8(raw >> 28),
		PartNumber:   uint16(raw >> 12),
		Manufacturer: uint16(raw>>1) & 0x7FF,
	}
}

// Valid reports whether the value can be an IDCODE: bit 0 set, not all ones,
// and not the reserved JEP106 code 0x7F.
func (id IDCode) Valid() bool {
	return id.Raw&1 == 1 && id.Raw != 0xFFFFFFFF && id.Manufacturer&0x7F != 0x7F
}

// Bank returns the JEP106 bank (number of continuation codes).
func (id IDCode) Bank() int {
	return int(id.Manufacturer >> 7)
}

// ManufacturerName returns the JEP106 name, or "Unknown (bank N, 0xXX)".
func (id IDCode) ManufacturerName() string {
	if name, ok := jep106[id.Manufacturer]; ok {
		return name
	}
	return fmt.Sprintf("Unknown (bank %d, 0x%02X)", id.Bank(), id.Manufacturer&0x7F)
}

func (id IDCode) String() string {
	return fmt.Sprintf("0x%08X (Mfg: %s, Part: 0x%04X, Ver: %d)",
		id.Raw, id.ManufacturerName(), id.PartNumber, id.Version)
}

// jep106 maps bank<<7|code to manufacturer names for vendors commonly seen on
// debug chains.
var jep106 = map[uint16]string{
	0<<7 | 0x01: "AMD",
	0<<7 | 0x04: "Fujitsu",
	0<<7 | 0x07: "Hitachi",
	0<<7 | 0x09: "Intel",
	0<<7 | 0x0E: "Freescale (Motorola)",
	0<<7 | 0x0F: "National Semiconductor",
	0<<7 | 0x10: "NEC",
	0<<7 | 0x15: "NXP (Philips)",
	0<<7 | 0x17: "Texas Instruments",
	0<<7 | 0x18: "Toshiba",
	0<<7 | 0x1C: "Mitsubishi",
	0<<7 | 0x1F: "Atmel",
	0<<7 | 0x20: "STMicroelectronics",
	0<<7 | 0x21: "Lattice Semiconductor",
	0<<7 | 0x29: "Microchip Technology",
	0<<7 | 0x2C: "Micron Technology",
	0<<7 | 0x34: "Cypress",
	0<<7 | 0x41: "Infineon",
	0<<7 | 0x49: "Xilinx",
	0<<7 | 0x4E: "Samsung",
	0<<7 | 0x65: "Analog Devices",
	0<<7 | 0x6E: "Altera",
	4<<7 | 0x3B: "ARM Ltd",
	4<<7 | 0x44: "Nordic Semiconductor",
	8<<7 | 0x0D: "Gowin Semiconductor",
	9<<7 | 0x09: "SiFive",
}
