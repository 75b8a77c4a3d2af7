package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceDAP/pkg/dap"
)

var (
	resetPin  bool
	resetHold uint16
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset the target",
	Long: `Connect on the default port and run the probe's DAP_ResetTarget sequence.
With --pin the nRESET line is pulsed low instead.

Examples:
  dapctl reset
  dapctl reset --pin --hold 10000`,
	Args: cobra.NoArgs,
	RunE: runReset,
}

func init() {
	rootCmd.AddCommand(resetCmd)
	resetCmd.Flags().BoolVar(&resetPin, "pin", false, "pulse nRESET instead of DAP_ResetTarget")
	resetCmd.Flags().Uint16Var(&resetHold, "hold", 1000, "nRESET low time in microseconds (with --pin)")
}

func runReset(cmd *cobra.Command, args []string) error {
	return withTarget(func(t *target) error {
		out := cmd.OutOrStdout()
		if resetPin {
			if _, err := t.SetPins(0, dap.PinNRESET, 0); err != nil {
				return fmt.Errorf("assert nRESET: %w", err)
			}
			if err := t.Delay(resetHold); err != nil {
				return err
			}
			pins, err := t.SetPins(dap.PinNRESET, dap.PinNRESET, 0)
			if err != nil {
				return fmt.Errorf("release nRESET: %w", err)
			}
			fmt.Fprintf(out, "nRESET pulsed for %d us, pins now %s\n", resetHold, pins)
			return nil
		}

		if err := t.Connect(dap.PortDefault); err != nil {
			return err
		}
		executed, err := t.ResetTarget()
		if err != nil {
			return err
		}
		if executed {
			fmt.Fprintln(out, "Target reset sequence executed.")
		} else {
			fmt.Fprintln(out, "Probe has no target reset sequence.")
		}
		return nil
	})
}
