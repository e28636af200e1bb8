package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
	version = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "hammertime-demo [PID]",
	Short: "Drive the hammertime flip pipeline against a target",
	Long: `hammertime-demo wires a memory system, fliptable and predictor
together and runs the appropriate flip loop against a target: a running
process by PID, a freshly launched program (-e), or the whole system
via /dev/mem (-s).

This driver is peripheral, not one of hammertime's core interfaces; it
exists to show the pipeline wired end to end.`,
	Version:      version,
	Args:         cobra.ArbitraryArgs,
	RunE:         runDemo,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")

	rootCmd.Flags().StringP("exec", "e", "", "launch PROGRAM [ARGS] and attach to it instead of an existing PID")
	rootCmd.Flags().BoolP("system", "s", false, "run system-wide against /dev/mem instead of a single process")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
