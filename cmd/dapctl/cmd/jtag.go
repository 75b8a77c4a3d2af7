package cmd

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceDAP/pkg/dap"
	"github.com/OpenTraceLab/OpenTraceDAP/pkg/jtag"
)

var (
	jtagSpeed  int
	idcodeN    int
	idcodeIR   []int
	scanMax    int
	seqConnect bool
)

var jtagCmd = &cobra.Command{
	Use:   "jtag",
	Short: "JTAG operations on the probe's JTAG port",
}

var jtagSeqCmd = &cobra.Command{
	Use:   "seq SEGMENT...",
	Short: "Run a raw DAP_JTAG_Sequence",
	Long: `Send one DAP_JTAG_Sequence built from the given segments and print the TDO
bits of every capturing segment.

A segment is BITS[:OPT,...] with BITS in 1-64 and options
  tms       hold TMS high for the whole segment
  capture   capture TDO (also: c)
  HEX       TDI data in transmit order (zero-padded, default all zeros)

Examples:
  dapctl jtag seq 5:tms 1                       # Test-Logic-Reset, then Run-Test/Idle
  dapctl jtag seq 5:tms 1 1:tms 2 32:capture    # read the first IDCODE`,
	Args: cobra.MinimumNArgs(1),
	RunE: runJTAGSeq,
}

var jtagIDCodeCmd = &cobra.Command{
	Use:   "idcode",
	Short: "Read IDCODEs with DAP_JTAG_IDCODE",
	Long: `Configure the chain with DAP_JTAG_Configure and read each device's IDCODE
with DAP_JTAG_IDCODE. Without --ir the IR lengths are discovered with a chain
scan first. The probe selects the ARM JTAG-DP IDCODE instruction, so other
TAPs usually report no IDCODE here; use "jtag scan" for those.

Examples:
  dapctl jtag idcode --ir 4,5
  dapctl jtag idcode --count 1`,
	Args: cobra.NoArgs,
	RunE: runJTAGIDCode,
}

var jtagScanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Discover the devices on the JTAG chain",
	Long: `Reset the chain, read the IDCODE/BYPASS register of every TAP and measure
the instruction register lengths.`,
	Args: cobra.NoArgs,
	RunE: runJTAGScan,
}

func init() {
	rootCmd.AddCommand(jtagCmd)
	jtagCmd.AddCommand(jtagSeqCmd, jtagIDCodeCmd, jtagScanCmd)

	jtagCmd.PersistentFlags().IntVar(&jtagSpeed, "speed", jtag.DefaultSpeedHz, "TCK speed in Hz")
	jtagSeqCmd.Flags().BoolVar(&seqConnect, "connect", true, "select the JTAG port first")
	jtagIDCodeCmd.Flags().IntVarP(&idcodeN, "count", "c", 0, "number of devices to read (0 = all)")
	jtagIDCodeCmd.Flags().IntSliceVar(&idcodeIR, "ir", nil, "IR length of each device, nearest TDO first")
	jtagScanCmd.Flags().IntVar(&scanMax, "max", jtag.MaxChainDevices, "maximum devices to look for")
}

// parseSegment parses one BITS[:OPT,...] argument.
func parseSegment(arg string) (dap.Segment, error) {
	bitsStr, opts, _ := strings.Cut(arg, ":")
	bits, err := strconv.Atoi(bitsStr)
	if err != nil || bits < 1 || bits > 64 {
		return dap.Segment{}, fmt.Errorf("segment %q: bit count must be 1-64", arg)
	}
	seg := dap.Segment{Bits: bits}
	var data []byte
	if opts != "" {
		for _, opt := range strings.Split(opts, ",") {
			switch strings.ToLower(opt) {
			case "tms":
				seg.TMS = true
			case "capture", "c":
				seg.Capture = true
			default:
				if data, err = parseHex(opt); err != nil {
					return dap.Segment{}, fmt.Errorf("segment %q: %w", arg, err)
				}
			}
		}
	}
	if seg.Data, err = fitBits(data, bits); err != nil {
		return dap.Segment{}, fmt.Errorf("segment %q: %w", arg, err)
	}
	return seg, nil
}

func runJTAGSeq(cmd *cobra.Command, args []string) error {
	segs := make([]dap.Segment, len(args))
	for i, arg := range args {
		seg, err := parseSegment(arg)
		if err != nil {
			return err
		}
		segs[i] = seg
	}

	return withTarget(func(t *target) error {
		if seqConnect {
			if err := t.Connect(dap.PortJTAG); err != nil {
				return err
			}
			if err := t.SetClock(uint32(jtagSpeed)); err != nil {
				return err
			}
		}
		captured, err := t.JTAGSequence(segs)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Sent %d segment(s)\n", len(segs))
		c := 0
		for i, seg := range segs {
			if !seg.Capture {
				continue
			}
			fmt.Fprintf(out, "  segment %d: TDO %X (%d bits)\n", i, captured[c], seg.Bits)
			c++
		}
		return nil
	})
}

// withAdapter opens the probe as a JTAG adapter.
func withAdapter(fn func(a *jtag.DAPAdapter) error) error {
	return withTarget(func(t *target) error {
		a, err := jtag.NewDAPAdapter(t.Session,
			jtag.WithSpeed(jtagSpeed),
			jtag.WithAdapterLogger(slog.Default()))
		if err != nil {
			return err
		}
		return fn(a)
	})
}

func runJTAGIDCode(cmd *cobra.Command, args []string) error {
	return withAdapter(func(a *jtag.DAPAdapter) error {
		irLens := idcodeIR
		if len(irLens) == 0 {
			info, err := jtag.ScanChain(jtag.NewController(a), 0)
			if err != nil {
				return fmt.Errorf("scan chain: %w", err)
			}
			if len(info.Devices) == 0 {
				return fmt.Errorf("no devices on the chain")
			}
			if irLens = info.IRLengths(); irLens == nil {
				return fmt.Errorf("cannot infer IR lengths of %d device(s) (total %d bits), pass --ir",
					len(info.Devices), info.TotalIRLength)
			}
		}
		if err := a.ConfigureChain(irLens); err != nil {
			return err
		}

		n := len(irLens)
		if idcodeN > 0 && idcodeN < n {
			n = idcodeN
		}
		out := cmd.OutOrStdout()
		for i := 0; i < n; i++ {
			id, err := a.ReadIDCode(i)
			if err != nil {
				return fmt.Errorf("device %d: %w", i, err)
			}
			if !id.Valid() {
				fmt.Fprintf(out, "Device %d: no IDCODE (read 0x%08X)\n", i, id.Raw)
				continue
			}
			fmt.Fprintf(out, "Device %d: %s\n", i, id)
		}
		return nil
	})
}

func runJTAGScan(cmd *cobra.Command, args []string) error {
	return withAdapter(func(a *jtag.DAPAdapter) error {
		info, err := jtag.ScanChain(jtag.NewController(a), scanMax)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Found %d device(s), nearest TDO first:\n", len(info.Devices))
		for _, d := range info.Devices {
			fmt.Fprintf(out, "  %s\n", d)
			if !d.HasID {
				continue
			}
			if p, ok := jtag.LookupPart(d.IDCode); ok {
				fmt.Fprintf(out, "      %s (%s, %s)\n", p.Name, p.Family, p.Description)
			}
		}
		if len(info.Devices) > 0 {
			fmt.Fprintf(out, "Total IR length: %d bits\n", info.TotalIRLength)
		}
		return nil
	})
}
