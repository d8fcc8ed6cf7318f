package main

import (
	"fmt"
	"time"

	"github.com/jpalmerr/parkwatch"
	"github.com/spf13/cobra"
)

// resolveCmd shows how a date argument is resolved without logging in.
var resolveCmd = &cobra.Command{
	Use:   "resolve [DATE]",
	Short: "Resolve a target date",
	Long: `Resolve DATE the way watch does and print the result.

MM/DD implies the current year. Dates before today, malformed input and
impossible dates such as 02/30 are rejected with exit code 1. Without DATE
the config's target_date is resolved.

Example:
  parkwatch resolve 3/29
  parkwatch resolve -c parkwatch.yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runResolve,
}

func init() {
	rootCmd.AddCommand(resolveCmd)

	resolveCmd.Flags().StringP("config", "c", "", "path to config file")
}

func runResolve(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	var arg string
	if len(args) > 0 {
		arg = args[0]
	}

	now := time.Now()
	target, err := cfg.ResolveTarget(arg, now)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s (%s, in %d days)\n",
		target, target.Time(time.UTC).Weekday(), daysUntil(target, now))
	return nil
}

// daysUntil counts calendar days from now's day to target. UTC midnights
// keep DST shifts out of the count.
func daysUntil(target parkwatch.TargetDate, now time.Time) int {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return int(target.Time(time.UTC).Sub(today) / (24 * time.Hour))
}
