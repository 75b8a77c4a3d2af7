package jtag

// Part describes a known TAP, looked up by manufacturer and part number.
type Part struct {
	Name        string // "XC7A35T"
	Family      string // "Artix-7"
	Description string
	IRLength    int // 0 if unknown
}

type partKey struct {
	manufacturer uint16
	part         uint16
}

const (
	mfgARM     = 4<<7 | 0x3B
	mfgST      = 0x20
	mfgXilinx  = 0x49
	mfgLattice = 0x21
)

var parts = map[partKey]Part{
	// ARM debug ports
	{mfgARM, 0xBA00}: {Name: "JTAG-DP", Family: "ARM CoreSight", Description: "ADIv5 JTAG debug port", IRLength: 4},
	{mfgARM, 0xBA01}: {Name: "SW-DP", Family: "ARM CoreSight", Description: "ADIv5 serial wire debug port"},
	{mfgARM, 0xBB11}: {Name: "SW-DP (Cortex-M0)", Family: "ARM CoreSight", Description: "ADIv5 serial wire debug port"},
	{mfgARM, 0xBC11}: {Name: "MINDP (Cortex-M0+)", Family: "ARM CoreSight", Description: "ADIv5 minimal debug port"},

	// STM32 boundary-scan TAPs
	{mfgST, 0x6410}: {Name: "STM32F10x medium-density", Family: "STM32F1", Description: "Cortex-M3 MCU boundary scan", IRLength: 5},
	{mfgST, 0x6412}: {Name: "STM32F10x low-density", Family: "STM32F1", Description: "Cortex-M3 MCU boundary scan", IRLength: 5},
	{mfgST, 0x6414}: {Name: "STM32F10x high-density", Family: "STM32F1", Description: "Cortex-M3 MCU boundary scan", IRLength: 5},
	{mfgST, 0x6418}: {Name: "STM32F105/107", Family: "STM32F1", Description: "Cortex-M3 MCU boundary scan", IRLength: 5},
	{mfgST, 0x6411}: {Name: "STM32F2xx", Family: "STM32F2", Description: "Cortex-M3 MCU boundary scan", IRLength: 5},
	{mfgST, 0x6422}: {Name: "STM32F30x", Family: "STM32F3", Description: "Cortex-M4 MCU boundary scan", IRLength: 5},
	{mfgST, 0x6438}: {Name: "STM32F303x6/8, F334", Family: "STM32F3", Description: "Cortex-M4 MCU boundary scan", IRLength: 5},
	{mfgST, 0x6413}: {Name: "STM32F405/407", Family: "STM32F4", Description: "Cortex-M4 MCU boundary scan", IRLength: 5},
	{mfgST, 0x6419}: {Name: "STM32F42x/43x", Family: "STM32F4", Description: "Cortex-M4 MCU boundary scan", IRLength: 5},
	{mfgST, 0x6431}: {Name: "STM32F411", Family: "STM32F4", Description: "Cortex-M4 MCU boundary scan", IRLength: 5},

	// Xilinx 7 series
	{mfgXilinx, 0x362D}: {Name: "XC7A35T", Family: "Artix-7", Description: "FPGA", IRLength: 6},
	{mfgXilinx, 0x362C}: {Name: "XC7A50T", Family: "Artix-7", Description: "FPGA", IRLength: 6},
	{mfgXilinx, 0x3631}: {Name: "XC7A100T", Family: "Artix-7", Description: "FPGA", IRLength: 6},
	{mfgXilinx, 0x3636}: {Name: "XC7A200T", Family: "Artix-7", Description: "FPGA", IRLength: 6},

	// Lattice ECP5
	{mfgLattice, 0x1111}: {Name: "LFE5U-25", Family: "ECP5", Description: "FPGA", IRLength: 8},
	{mfgLattice, 0x1112}: {Name: "LFE5U-45", Family: "ECP5", Description: "FPGA", IRLength: 8},
	{mfgLattice, 0x1113}: {Name: "LFE5U-85", Family: "ECP5", Description: "FPGA", IRLength: 8},
}

// LookupPart returns what is known about the device behind id.
func LookupPart(id IDCode) (Part, bool) {
	p, ok := parts[partKey{id.Manufacturer, id.PartNumber}]
	return p, ok
}

// knownIRLengths fills IR lengths from the part table. It only succeeds when
// every device is known and the lengths add up to the measured total.
func knownIRLengths(devices []ChainDevice, total int) ([]int, bool) {
	lens := make([]int, len(devices))
	sum := 0
	for i, d := range devices {
		if !d.HasID {
			return nil, false
		}
		p, ok := LookupPart(d.IDCode)
		if !ok || p.IRLength == 0 {
			return nil, false
		}
		lens[i] = p.IRLength
		sum += p.IRLength
	}
	if len(devices) == 0 || sum != total {
		return nil, false
	}
	return lens, true
}
