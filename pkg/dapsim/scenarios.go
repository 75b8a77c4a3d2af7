package dapsim

import (
	"fmt"
	"sort"
	"strings"
)

// Well-known TAPs used by the preset scenarios.
var (
	ARMJTAGDP = Device{Name: "ARM JTAG-DP", IDCode: 0x4BA00477, IRLength: 4, IDCodeInstr: 0xE}
	STM32F4   = Device{Name: "STM32F4 BSC", IDCode: 0x06413041, IRLength: 5, IDCodeInstr: 0x1}
	XC7A35T   = Device{Name: "Xilinx XC7A35T", IDCode: 0x0362D093, IRLength: 6, IDCodeInstr: 0x9}
	LFE5U25   = Device{Name: "Lattice LFE5U-25", IDCode: 0x41111043, IRLength: 8, IDCodeInstr: 0xE0}
	NoIDCode  = Device{Name: "bypass-only TAP", IRLength: 3}
)

var scenarios = map[string][]Device{
	"stm32":  {ARMJTAGDP, STM32F4},
	"fpga":   {XC7A35T},
	"mixed":  {ARMJTAGDP, STM32F4, LFE5U25, XC7A35T},
	"bypass": {ARMJTAGDP, NoIDCode, XC7A35T},
	"single": {ARMJTAGDP},
	"empty":  nil,
}

// Scenarios lists the preset chain names.
func Scenarios() []string {
	names := make([]string, 0, len(scenarios))
	for name := range scenarios {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Scenario builds a preset chain by name.
func Scenario(name string) (*Chain, error) {
	devs, ok := scenarios[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("dapsim: unknown scenario %q (have %s)", name, strings.Join(Scenarios(), ", "))
	}
	return NewChain(devs...)
}

// ChainFromSpec accepts either a scenario name or an IDCODE list understood
// by ParseDevices.
func ChainFromSpec(spec string) (*Chain, error) {
	if _, ok := scenarios[strings.ToLower(spec)]; ok {
		return Scenario(spec)
	}
	devs, err := ParseDevices(spec)
	if err != nil {
		return nil, err
	}
	return NewChain(devs...)
}
