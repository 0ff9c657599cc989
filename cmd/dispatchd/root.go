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
	Use:   "dispatchd",
	Short: "dispatchd - resilient multi-provider completion dispatch",
	Long: `Dispatchd routes AI completion requests across a pool of upstream
providers, tracking each provider's health with a circuit breaker and
failing over automatically when a provider degrades.

It provides:
  - Health-aware candidate ordering with per-provider circuit breakers
  - Automatic failover across providers within one request
  - Per-attempt cost estimation with hot-reloadable pricing
  - Prometheus metrics and an optional persisted audit trail`,
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
