package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/parkwatch"
	"github.com/jpalmerr/parkwatch/example/mockportal"
	"github.com/jpalmerr/parkwatch/internal/alert"
	"github.com/jpalmerr/parkwatch/internal/portal/web"
)

func main() {
	// start mock portal: sold out for 6 page loads, then 3 spots left
	mock := mockportal.New(6, 0.2, slog.Default())
	go func() {
		if err := http.ListenAndServe(":9999", mock.Handler()); err != nil {
			slog.Error("mock portal error", "error", err)
			os.Exit(1)
		}
	}()
	time.Sleep(100 * time.Millisecond)

	// watch a date three days out
	date, err := parkwatch.ResolveDate(time.Now().AddDate(0, 0, 3).Format("01/02/2006"), time.Now())
	if err != nil {
		slog.Error("failed to resolve date", "error", err)
		os.Exit(1)
	}

	portal, err := web.New(web.Config{
		LoginURL:         "http://localhost:9999/login",
		LoggedInSelector: "#account",
		DateURL:          "http://localhost:9999/book?date={{.ISO}}",
		RateLimit:        5,
		Burst:            1,
	}, slog.Default())
	if err != nil {
		slog.Error("failed to create portal", "error", err)
		os.Exit(1)
	}

	w, err := parkwatch.New(
		parkwatch.WithPortal(portal),
		parkwatch.WithCredentials(parkwatch.Credentials{Username: "demo", Password: "demo"}),
		parkwatch.WithTarget(date),
		// half-second unit: sold out waits 2.5s, glitches 1s
		parkwatch.WithTimeUnit(500*time.Millisecond),
		parkwatch.WithAlertSink(alert.NewBell(os.Stdout, 3, 300*time.Millisecond)),
		parkwatch.WithPort(8080),
		parkwatch.WithTitle("parkwatch demo"),
		parkwatch.WithStatusCallback(func(e parkwatch.Event) {
			if e.State == parkwatch.StateRetrying {
				fmt.Printf("  attempt %d: %s, next check in %s\n", e.Attempt, e.Result, e.Delay)
			}
		}),
	)
	if err != nil {
		slog.Error("failed to create watcher", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════════════════╗")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   parkwatch demo                                      ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Open http://localhost:8080 in your browser          ║")
	fmt.Println("  ║                                                       ║")
	fmt.Printf("  ║   Watching %s on a mock portal (:9999)        ║\n", date)
	fmt.Println("  ║   Sold out for 6 checks, then 3 spots left            ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Press Ctrl+C to stop                                ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ╚═══════════════════════════════════════════════════════╝")
	fmt.Println()

	// set up context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	outcome, err := w.Start(ctx)
	if outcome.State == parkwatch.StateFatal {
		slog.Error("watch failed", "error", err)
		os.Exit(1)
	}
}
