package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jpalmerr/parkwatch/internal/history"
	"github.com/jpalmerr/parkwatch/internal/store"
	"github.com/spf13/cobra"
)

// historyCmd prints the recorded transitions of one run.
var historyCmd = &cobra.Command{
	Use:   "history RUN_ID",
	Short: "Show the recorded events of a watch run",
	Long: `Print the state transitions of a run from the Postgres event log.

The run id is logged as run_id on every line of a watch. The database is
the config's history.database_url.

Example:
  parkwatch history 4f1c2a9e-0b5d-4c38-9e61-2d7a1f3b8c40 -c parkwatch.yaml --limit 20`,
	Args: cobra.ExactArgs(1),
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	historyCmd.Flags().Int("limit", 50, "maximum number of events to print")
	_ = historyCmd.MarkFlagRequired("config")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.History.DatabaseURL == "" {
		return errors.New("history.database_url is not set in the config")
	}
	limit, _ := cmd.Flags().GetInt("limit")

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	rec, err := history.Open(ctx, cfg.History.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}
	defer rec.Close()

	events, err := rec.Recent(ctx, args[0], limit)
	if err != nil {
		return fmt.Errorf("failed to read history: %w", err)
	}
	if len(events) == 0 {
		return fmt.Errorf("no events recorded for run %s", args[0])
	}

	printEvents(cmd.OutOrStdout(), events)
	return nil
}

// printEvents writes one line per transition.
func printEvents(w io.Writer, events []store.Event) {
	for _, e := range events {
		line := fmt.Sprintf("%s  %-9s -> %-9s attempt=%d",
			e.At.Local().Format("2006-01-02 15:04:05"), e.From, e.State, e.Attempt)
		if e.Result != "" {
			line += fmt.Sprintf(" result=%s", e.Result)
		}
		if e.Text != "" {
			line += fmt.Sprintf(" text=%q", e.Text)
		}
		if e.Reason != "" {
			line += fmt.Sprintf(" reason=%s delay=%s", e.Reason, time.Duration(e.DelayMs)*time.Millisecond)
		}
		if e.Error != nil {
			line += fmt.Sprintf(" error=%q", *e.Error)
		}
		fmt.Fprintln(w, line)
	}
}
