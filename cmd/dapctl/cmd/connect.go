package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceDAP/pkg/dap"
)

var connectMode string

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Select the debug port",
	Long: `Issue DAP_Connect with the requested mode and report the port the probe
selected. The probe is disconnected again when the command exits.

Examples:
  dapctl connect --mode jtag
  dapctl connect            # let the probe pick its default port`,
	Args: cobra.NoArgs,
	RunE: runConnect,
}

func init() {
	rootCmd.AddCommand(connectCmd)
	connectCmd.Flags().StringVarP(&connectMode, "mode", "m", "default", "debug port: default, swd, jtag")
}

func runConnect(cmd *cobra.Command, args []string) error {
	port, err := dap.ParsePort(connectMode)
	if err != nil {
		return err
	}
	return withTarget(func(t *target) error {
		if err := t.Connect(port); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Connected: %s\n", t.Port())
		return nil
	})
}
