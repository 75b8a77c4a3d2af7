package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceDAP/pkg/dap"
)

var (
	pinsOutput []string
	pinsSelect []string
	pinsWait   uint32
)

var pinsCmd = &cobra.Command{
	Use:   "pins",
	Short: "Read or drive the SWJ pins",
	Long: `Drive the pins named by --select to the levels given by --output (a pin in
--output is driven high, a selected pin not in --output is driven low) and print
the pin levels read back. Without --select the pins are only read.

Pin names: swclk/tck, swdio/tms, tdi, tdo, ntrst, nreset.

Examples:
  dapctl pins
  dapctl pins --select nreset                   # assert target reset
  dapctl pins --select nreset --output nreset   # release it
  dapctl pins --select tck,tms --output tms --wait 100`,
	Args: cobra.NoArgs,
	RunE: runPins,
}

func init() {
	rootCmd.AddCommand(pinsCmd)
	pinsCmd.Flags().StringSliceVarP(&pinsOutput, "output", "o", nil, "pins to drive high")
	pinsCmd.Flags().StringSliceVar(&pinsSelect, "select", nil, "pins to change")
	pinsCmd.Flags().Uint32VarP(&pinsWait, "wait", "w", 0, "settle time in microseconds")
}

func runPins(cmd *cobra.Command, args []string) error {
	output, err := parsePins(pinsOutput)
	if err != nil {
		return err
	}
	sel, err := parsePins(pinsSelect)
	if err != nil {
		return err
	}
	if extra := output.Without(sel); extra != 0 {
		return fmt.Errorf("--output pins %s are not in --select", extra)
	}

	return withTarget(func(t *target) error {
		pins, err := t.SetPins(output, sel, pinsWait)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Pins: %s\n", pins)
		for _, p := range []dap.PinMask{dap.PinSWCLK, dap.PinSWDIO, dap.PinTDI, dap.PinTDO, dap.PinNTRST, dap.PinNRESET} {
			level := 0
			if pins.Has(p) {
				level = 1
			}
			fmt.Fprintf(out, "  %-6s %d\n", p, level)
		}
		return nil
	})
}
