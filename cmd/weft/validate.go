package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"weftlabs/weft/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	Long: `Load and validate the configuration file without starting the daemon.

Examples:
  # Validate the default config
  weft validate

  # Validate a specific file
  weft validate --config /etc/weft/config.yaml`,
	RunE: validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func validateConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		var verr config.ValidationError
		if errors.As(err, &verr) {
			fmt.Printf("✗ Configuration invalid (%d problem(s)):\n", len(verr.Errors))
			for _, field := range verr.Errors {
				fmt.Printf("  - %s: %s\n", field.Field, field.Message)
			}
			return fmt.Errorf("validation failed")
		}
		return err
	}

	fmt.Println("✓ Configuration valid")
	fmt.Printf("  Device:        %s\n", cfg.Device.Name)
	fmt.Printf("  Graph store:   %s\n", cfg.Storage.Graph.Backend)
	fmt.Printf("  Fact store:    %s\n", cfg.Storage.Facts.Backend)
	fmt.Printf("  Sync listen:   %s\n", cfg.Sync.ListenAddress)
	fmt.Printf("  Sync peers:    %d\n", len(cfg.Sync.Peers))
	fmt.Printf("  Sync schedule: %s\n", cfg.Sync.Schedule)
	return nil
}
