package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/colmeta/copilot-dispatch/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Load and validate a configuration file without starting the server.

The command applies defaults and environment overrides exactly as the run
command would, then reports the effective provider set.

Examples:
  # Validate the default config file
  dispatchd validate

  # Validate a specific file
  dispatchd validate --config /etc/dispatchd/config.yaml`,
	RunE: validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func validateConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return err
	}

	fmt.Printf("✓ Configuration valid: %s\n", cfgFile)
	fmt.Printf("  Listen address: %s\n", cfg.Server.ListenAddress)
	fmt.Printf("  Providers:      %d\n", len(cfg.Providers))
	for _, p := range cfg.Providers {
		fmt.Printf("    - %s (priority %d, model %s, timeout %s)\n",
			p.ID, p.Priority, p.Model, p.Timeout)
	}
	fmt.Printf("  Max attempts:   %d\n", cfg.Dispatch.MaxAttempts)
	fmt.Printf("  Deadline:       %s\n", cfg.Dispatch.OverallDeadline)
	if cfg.Audit.Enabled {
		fmt.Printf("  Audit trail:    %s (driver %s)\n", cfg.Audit.Path, cfg.Audit.Driver)
	} else {
		fmt.Println("  Audit trail:    disabled")
	}

	return nil
}
