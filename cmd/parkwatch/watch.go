package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/parkwatch"
	"github.com/jpalmerr/parkwatch/config"
	"github.com/spf13/cobra"
)

// watchCmd runs the monitor for one date.
var watchCmd = &cobra.Command{
	Use:   "watch [DATE]",
	Short: "Watch a date until a parking spot is available",
	Long: `Log in to the portal and poll the calendar for DATE until a spot opens.

DATE is MM/DD (current year) or MM/DD/YYYY. Without DATE the config's
target_date is used. Credentials are read from the environment variables
named in the config (CRYSTAL_USERNAME and CRYSTAL_PASSWORD by default),
loading .env first if it exists.

The watch ends when:
  - a spot is available: the bell rings and the session stays open until
    Ctrl+C so you can finish the booking
  - setup fails (bad date, missing credentials, login refused, date not
    offered): exit code 1
  - you press Ctrl+C: clean exit, no alert

Example:
  parkwatch watch 03/29
  parkwatch watch 03/29/2026 -c parkwatch.yaml --log-format json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringP("config", "c", "", "path to config file (defaults are used when omitted)")
}

// loadConfig loads the config file named by --config, or the defaults.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configFile, _ := cmd.Flags().GetString("config")
	if configFile == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(cmd, os.Stderr)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	var arg string
	if len(args) > 0 {
		arg = args[0]
	}
	target, err := cfg.ResolveTarget(arg, time.Now())
	if err != nil {
		return err
	}

	creds, err := config.LoadCredentials(cfg.Credentials)
	if err != nil {
		return err
	}

	opts, err := config.BuildOptions(cfg, target, creds, logger)
	if err != nil {
		return fmt.Errorf("failed to build watcher: %w", err)
	}

	w, err := parkwatch.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	logger.Info("config loaded",
		"target", target.String(),
		"driver", cfg.Portal.Driver,
		"match_mode", cfg.MatchMode,
		"time_unit", cfg.TimeUnit.Duration().String(),
		"port", cfg.Server.Port,
	)

	// set up context with signal handling - cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	outcome, err := w.Start(ctx)
	switch outcome.State {
	case parkwatch.StateSuccess:
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (after %d attempts, %s)\n",
			target, outcome.Result.Text, outcome.Attempts, outcome.Elapsed.Round(time.Second))
		return nil
	case parkwatch.StateCancelled:
		logger.Info("shutdown complete")
		return nil
	default:
		return fmt.Errorf("watch failed: %w", err)
	}
}
