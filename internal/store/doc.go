// Package store provides storage and pub/sub functionality for monitor events.
//
// The main components are:
//
//   - [Store]: Interface defining storage and subscription operations
//   - [MemoryStore]: In-memory implementation with a bounded event history
//   - [Event]: Storage representation of one monitor state transition
//
// Subscribers receive updates via channels with non-blocking sends (slow
// subscribers will miss updates rather than block the monitor).
package store
