// Package main is the entry point for the parkwatch CLI.
//
// parkwatch can be used as a library (SDK) or as a standalone binary with
// YAML configuration. This CLI provides the standalone binary approach.
//
// Usage:
//
//	parkwatch watch 3/29 -c parkwatch.yaml # Watch a date until a spot opens
//	parkwatch resolve 3/29                 # Show how a date is resolved
//	parkwatch validate -c parkwatch.yaml   # Validate configuration
//	parkwatch history RUN_ID -c parkwatch.yaml # Show a run's recorded events
//	parkwatch version                      # Show version info
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// Version information - set by GoReleaser at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "parkwatch",
	Short: "Watch a parking reservation portal for an open spot",
	Long: `parkwatch logs in to the parking reservation portal, opens the calendar
on one date and keeps checking until a spot is available. Sold out pages,
timeouts and half-rendered pages are retried. When a spot opens it rings the
terminal bell and keeps the session open so you can finish the booking.

Quick start:
  1. Put CRYSTAL_USERNAME and CRYSTAL_PASSWORD in .env
  2. Run: parkwatch watch 03/29
  3. Wait for the bell

Example config:
  target_date: "03/29"
  match_mode: lenient
  portal:
    driver: browser
    headless: false
  server:
    port: 8080`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("log-format", "text", "log format: text or json")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn or error")

	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
// This is the main entry point called from main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this parkwatch binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "parkwatch %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

// newLogger creates the CLI logger from the persistent log flags.
func newLogger(cmd *cobra.Command, w io.Writer) (*slog.Logger, error) {
	format, _ := cmd.Flags().GetString("log-format")
	levelName, _ := cmd.Flags().GetString("log-level")

	var level slog.Level
	if err := level.UnmarshalText([]byte(levelName)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q", levelName)
	}
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(format) {
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid --log-format %q (expected text or json)", format)
	}
}
