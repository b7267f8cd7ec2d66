package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "weft",
	Short: "Weft - distributed signed command graph daemon",
	Long: `Weft maintains an append-only graph of signed commands shared by a
fleet of devices.

Each device:
  - Seals local actions into signed, content-addressed envelopes
  - Evaluates every command against a deterministic policy
  - Derives queryable fact state from accepted commands
  - Synchronizes with peers over UDP so partitioned devices converge`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
