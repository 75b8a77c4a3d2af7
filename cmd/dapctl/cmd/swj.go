package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	swjBits int
	swjData string
)

var swjCmd = &cobra.Command{
	Use:   "swj",
	Short: "Clock a raw sequence out on SWDIO/TMS",
	Long: `Send DAP_SWJ_Sequence. --data is hex in transmit order, LSB of the first
byte first; without --data every bit is a one.

Examples:
  dapctl swj --bits 51                          # line reset
  dapctl swj --bits 16 --data 9EE7              # JTAG-to-SWD switch`,
	Args: cobra.NoArgs,
	RunE: runSWJ,
}

func init() {
	rootCmd.AddCommand(swjCmd)
	swjCmd.Flags().IntVarP(&swjBits, "bits", "n", 51, "number of bits (1-256)")
	swjCmd.Flags().StringVarP(&swjData, "data", "d", "", "bit data as hex")
}

func runSWJ(cmd *cobra.Command, args []string) error {
	data, err := swjPayload(swjBits, swjData)
	if err != nil {
		return err
	}
	return withTarget(func(t *target) error {
		if err := t.SWJSequence(swjBits, data); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Sent %d bit(s): %X\n", swjBits, data)
		return nil
	})
}

func swjPayload(bits int, hexData string) ([]byte, error) {
	if bits < 1 || bits > 256 {
		return nil, fmt.Errorf("--bits must be 1-256, got %d", bits)
	}
	if hexData == "" {
		data := make([]byte, (bits+7)/8)
		for i := range data {
			data[i] = 0xFF
		}
		return data, nil
	}
	data, err := parseHex(hexData)
	if err != nil {
		return nil, err
	}
	return fitBits(data, bits)
}
