// Package server provides the optional HTTP status server of a watcher.
//
// It serves:
//
//   - Dashboard: the embedded single-page UI at "/"
//   - REST API: the latest event at "/api/status" and the bounded history at "/api/events"
//   - Server-Sent Events: live monitor transitions at "/api/sse"
//   - Metrics: Prometheus collectors at "/metrics"
//   - Liveness: "/healthz"
//
// The server shuts down gracefully on context cancellation, with a 5-second
// timeout for in-flight requests. Watchers start it when a port is configured.
package server
