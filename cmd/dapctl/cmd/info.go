package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceDAP/pkg/dap"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show DAP_Info of the probe",
	Long: `Open the probe and print the identity and capability values it reports
through DAP_Info, along with the current pin levels.`,
	Args: cobra.NoArgs,
	RunE: runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	return withTarget(func(t *target) error {
		info, err := t.QueryInfo()
		if err != nil {
			return fmt.Errorf("query probe info: %w", err)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Probe: %s\n", t.label)
		fmt.Fprintf(out, "  Vendor:       %s\n", info.Vendor)
		fmt.Fprintf(out, "  Product:      %s\n", info.Product)
		fmt.Fprintf(out, "  Serial:       %s\n", info.Serial)
		fmt.Fprintf(out, "  Protocol:     %s\n", info.Protocol)
		fmt.Fprintf(out, "  Firmware:     %s\n", info.Firmware)
		fmt.Fprintf(out, "  Capabilities: %s (0x%02X)\n", capabilityNames(info.Capabilities), info.Capabilities)
		fmt.Fprintf(out, "  Packet size:  %d bytes\n", info.PacketSize)
		fmt.Fprintf(out, "  Packet count: %d\n", info.PacketCount)

		if verbose {
			for _, q := range []struct {
				id   byte
				name string
			}{
				{dap.InfoTargetVendor, "Target vendor"},
				{dap.InfoTargetName, "Target name"},
				{dap.InfoBoardVendor, "Board vendor"},
				{dap.InfoBoardName, "Board name"},
			} {
				if v, err := t.InfoString(q.id); err == nil && v != "" {
					fmt.Fprintf(out, "  %-13s %s\n", q.name+":", v)
				}
			}
		}

		pins, err := t.ReadPins()
		if err != nil {
			return fmt.Errorf("read pins: %w", err)
		}
		fmt.Fprintf(out, "  Pins:         %s\n", pins)
		return nil
	})
}
