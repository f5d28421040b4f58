// Package command implements the command dispatch and retry engine.
//
// A Command is a persisted intent to act on a device. The Dispatcher owns
// its state machine:
//
//	pending -> processing -> confirmed | failed | timeout | cancelled
//
// A failed attempt with budget remaining returns the command to pending
// with an exponentially growing retry delay; only when the attempt budget
// is exhausted does a command settle as failed. The interim failure is
// recorded in the audit trail rather than exposed on the command itself.
//
// Dispatch routing is by device ID shape: domain-prefixed entity IDs
// (light.kitchen) go through the device adapter, bare IDs are published
// to the broker as fire-and-forget payloads.
//
// The Scheduler scans the store on a fixed tick, expires stale scheduled
// commands, and drains due commands through a bounded worker pool. The
// claim that moves a command to processing is a compare-and-set in the
// store, so overlapping workers and ticks never attempt one command
// twice concurrently.
package command
