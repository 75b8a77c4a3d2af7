package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/OpenTraceLab/OpenTraceDAP/pkg/dap"
	"github.com/OpenTraceLab/OpenTraceDAP/pkg/transport"
)

var probesInfo bool

var probesCmd = &cobra.Command{
	Use:   "probes",
	Short: "List attached CMSIS-DAP probes",
	Long: `Scan USB for known CMSIS-DAP v2 probes, plus the --vid/--pid pair, and print
one line per probe. With --info every probe is opened in parallel and its
DAP_Info values are printed as well.`,
	Args: cobra.NoArgs,
	RunE: runProbes,
}

func init() {
	rootCmd.AddCommand(probesCmd)
	probesCmd.Flags().BoolVarP(&probesInfo, "info", "i", false, "open each probe and query DAP_Info")
}

// probeReport is the outcome of querying one probe.
type probeReport struct {
	info dap.ProbeInfo
	err  error
}

func runProbes(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 5*timeout)
	defer cancel()

	probes, err := listProbes(ctx)
	if err != nil {
		return fmt.Errorf("discover probes: %w", err)
	}
	out := cmd.OutOrStdout()
	if len(probes) == 0 {
		fmt.Fprintln(out, "No probes found.")
		return nil
	}

	var reports []probeReport
	if probesInfo {
		if reports, err = queryProbes(ctx, probes); err != nil {
			return err
		}
	}

	fmt.Fprintf(out, "Found %d probe(s):\n", len(probes))
	for i, p := range probes {
		fmt.Fprintf(out, "  [%d] %s (VID:PID %04X:%04X", i, p.Label(), p.VendorID, p.ProductID)
		if p.Serial != "" {
			fmt.Fprintf(out, ", serial %s", p.Serial)
		}
		fmt.Fprintln(out, ")")
		if reports == nil {
			continue
		}
		r := reports[i]
		if r.err != nil {
			fmt.Fprintf(out, "      error: %v\n", r.err)
			continue
		}
		fmt.Fprintf(out, "      %s %s, firmware %s, protocol %s\n", r.info.Vendor, r.info.Product, r.info.Firmware, r.info.Protocol)
		fmt.Fprintf(out, "      capabilities: %s\n", capabilityNames(r.info.Capabilities))
		fmt.Fprintf(out, "      packets: %d x %d bytes\n", r.info.PacketCount, r.info.PacketSize)
	}
	return nil
}

func listProbes(ctx context.Context) ([]transport.ProbeInfo, error) {
	if simulate {
		return []transport.ProbeInfo{{
			VendorID:    vendorID,
			ProductID:   productID,
			Serial:      serial,
			Description: "CMSIS-DAP simulator",
		}}, nil
	}
	return transport.Enumerate(ctx, [2]uint16{vendorID, productID})
}

// queryProbes opens every probe concurrently, one session each, and reads
// its DAP_Info. A probe that fails is recorded in its report and does not
// stop the others; only cancellation of ctx aborts the query.
func queryProbes(ctx context.Context, probes []transport.ProbeInfo) ([]probeReport, error) {
	reports := make([]probeReport, len(probes))
	var g errgroup.Group
	for i, p := range probes {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("query %s: %w", p.Label(), err)
			}
			t, err := openProbe(p.VendorID, p.ProductID, p.Serial)
			if err != nil {
				reports[i].err = err
				return nil
			}
			defer func() {
				if err := t.Close(); err != nil {
					slog.Debug("close probe", "probe", p.Label(), "err", err)
				}
			}()
			reports[i].info, reports[i].err = t.QueryInfo()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}
