package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceDAP/pkg/dapsim"
	"github.com/OpenTraceLab/OpenTraceDAP/pkg/transport"
)

var (
	// Global flags
	verbose   bool
	logLevel  string
	vendorID  uint16
	productID uint16
	serial    string
	timeout   time.Duration
	simulate  bool
	simIDs    []string
)

var rootCmd = &cobra.Command{
	Use:   "dapctl",
	Short: "CMSIS-DAP probe control",
	Long: `Talk to CMSIS-DAP v2 debug probes over USB: query the probe, select the
debug port, drive the SWJ pins and run raw SWJ and JTAG sequences.

Every command can run against a simulated probe with --sim. --sim-ids picks
the simulated JTAG chain, either a preset (` + strings.Join(dapsim.Scenarios(), ", ") + `)
or a list of IDCODE[:irlen] entries.

Examples:
  dapctl probes --info                          # List attached probes
  dapctl info                                   # Show DAP_Info of the default probe
  dapctl --sim --sim-ids mixed jtag scan        # Scan a simulated 4-device chain
  dapctl pins --output nreset --select nreset   # Release target reset`,
	Version:           "0.1.0",
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&verbose, "verbose", "v", false, "verbose output (same as --log-level debug)")
	pf.StringVar(&logLevel, "log-level", envStr("DAPCTL_LOG_LEVEL", "warn"),
		"log level: debug, info, warn, error")
	pf.Uint16Var(&vendorID, "vid", envUint16("DAPCTL_VID", transport.VendorIDRaspberryPi), "probe USB vendor ID")
	pf.Uint16Var(&productID, "pid", envUint16("DAPCTL_PID", transport.ProductIDCMSISDAP), "probe USB product ID")
	pf.StringVarP(&serial, "serial", "s", os.Getenv("DAPCTL_SERIAL"), "probe serial number (if multiple probes)")
	pf.DurationVar(&timeout, "timeout", transport.DefaultTimeout, "USB transfer timeout")
	pf.BoolVar(&simulate, "sim", os.Getenv("DAPCTL_SIM") != "", "use a simulated probe instead of USB")
	pf.StringSliceVar(&simIDs, "sim-ids", nil,
		"simulator: chain preset or IDCODE[:irlen] list (e.g. 0x4BA00477:4,0x06413041:5)")
}

func setupLogging(cmd *cobra.Command, args []string) error {
	level, err := parseLogLevel(logLevel)
	if err != nil {
		return err
	}
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
	return nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envUint16(key string, fallback uint16) uint16 {
	if v := os.Getenv(key); v != "" {
		if n, err := parseUint(v, 16); err == nil {
			return uint16(n)
		}
	}
	return fallback
}
