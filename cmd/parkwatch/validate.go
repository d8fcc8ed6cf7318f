package main

import (
	"fmt"
	"time"

	"github.com/jpalmerr/parkwatch/config"
	"github.com/spf13/cobra"
)

// validateCmd validates a config file without logging in.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a parkwatch configuration file without touching the portal.

This command parses the YAML, expands environment variables, validates all
fields and compiles the portal selectors. Credentials are not checked.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  parkwatch validate -c parkwatch.yaml`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// constructing the driver compiles its date templates
	if _, err := config.BuildPortal(cfg.Portal, nil); err != nil {
		return fmt.Errorf("invalid config: portal: %w", err)
	}

	target := "(none, pass DATE to watch)"
	if cfg.TargetDate != "" {
		resolved, err := cfg.ResolveTarget("", time.Now())
		if err != nil {
			return fmt.Errorf("invalid config: target_date: %w", err)
		}
		target = resolved.String()
	}

	unit := cfg.TimeUnit.Duration()
	matchMode := cfg.MatchMode
	if matchMode == "" {
		matchMode = "lenient"
	}
	port := "disabled"
	if cfg.Server.Port > 0 {
		port = fmt.Sprintf("%d", cfg.Server.Port)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Target date: %s\n", target)
	fmt.Fprintf(out, "  Portal:      %s\n", cfg.Portal.Driver)
	fmt.Fprintf(out, "  Match mode:  %s\n", matchMode)
	fmt.Fprintf(out, "  Delays:      sold out %s, not found %s, stale %s\n",
		scaled(cfg.Delays.SoldOut, unit), scaled(cfg.Delays.NotFound, unit), scaled(cfg.Delays.StaleRefetch, unit))
	fmt.Fprintf(out, "  Server port: %s\n", port)
	fmt.Fprintf(out, "  History:     %t\n", cfg.History.DatabaseURL != "")

	return nil
}

func scaled(n float64, unit time.Duration) time.Duration {
	return time.Duration(n * float64(unit))
}
