// Package poller implements the transient-fault-tolerant polling loop used by
// the parkwatch monitor.
//
// The main components are:
//
//   - [Monitor]: drives a [Prober] through a small state machine until it
//     reports availability, fails fatally or is cancelled
//   - [Prober]: the probe, re-read and refresh actions the loop calls
//   - [Result]: a classified reading, expressed with plain string kinds
//   - [PollState]: the point-in-time view exposed by [Monitor.Snapshot]
//
// Users of the parkwatch library should not need to interact with this
// package directly. Configuration is done through the main parkwatch package.
package poller
