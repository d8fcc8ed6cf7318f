// Package parkwatch watches a parking reservation portal for one date and
// alerts the moment a spot becomes available.
//
// The portal is unreliable: pages time out, status elements go stale while
// being read, and the calendar for a month may not be open yet. parkwatch
// polls through all of it. Every failure short of a date the portal will
// never offer is retried with a fixed delay until availability is found or
// the caller cancels.
//
// # Quick Start
//
//	date, err := parkwatch.ResolveDate("3/29", time.Now())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	w, err := parkwatch.New(
//	    parkwatch.WithPortal(portal),
//	    parkwatch.WithCredentials(parkwatch.Credentials{Username: user, Password: pass}),
//	    parkwatch.WithTarget(date),
//	    parkwatch.WithAlertSink(sink),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	outcome, err := w.Start(ctx)
//
// # Dates
//
// [ResolveDate] accepts "MM/DD", which implies the current year, and
// "MM/DD/YYYY". Dates before today are rejected with [ErrPastDate].
//
// # Classification
//
// Status text is classified by [Classifier]. In the default lenient mode any
// non-empty text that does not say "SOLD OUT" counts as availability. Strict
// mode requires a positive marker such as "SPOTS LEFT" and retries anything
// else.
//
// # Retry policy
//
// Delays are expressed in a time unit (default one second):
//
//   - sold out: wait 5 units, then refresh the page
//   - status element missing, timeout or unexpected fault: refresh, then wait 2 units
//   - stale element: re-read after 1 unit; the third stale reading in a row
//     is handled like a missing element
//
// # Architecture
//
// The root package holds the public types and the [Watcher] orchestrator.
// Machinery lives under internal/:
//
//   - internal/poller: the polling state machine
//   - internal/portal/browser and internal/portal/web: [Portal] drivers
//   - internal/alert: terminal bell, webhook and fan-out sinks
//   - internal/store, internal/server, internal/metrics: optional status dashboard
//   - internal/history: optional Postgres event log
//
// The config package builds Watcher options from a YAML file, and
// cmd/parkwatch is the command-line front end.
package parkwatch
