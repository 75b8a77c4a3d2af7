package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var clockHz uint32

var clockCmd = &cobra.Command{
	Use:   "clock",
	Short: "Set the SWJ clock frequency",
	Long: `Program the SWCLK/TCK frequency with DAP_SWJ_Clock.

Example:
  dapctl clock --hz 4000000`,
	Args: cobra.NoArgs,
	RunE: runClock,
}

func init() {
	rootCmd.AddCommand(clockCmd)
	clockCmd.Flags().Uint32Var(&clockHz, "hz", 1_000_000, "clock frequency in Hz")
}

func runClock(cmd *cobra.Command, args []string) error {
	return withTarget(func(t *target) error {
		if err := t.SetClock(clockHz); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Clock: %d Hz\n", clockHz)
		return nil
	})
}
