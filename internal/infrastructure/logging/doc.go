// Package logging provides structured logging for HomeHub Core.
//
// This package manages:
//   - JSON or text output via log/slog
//   - Level-based filtering (debug, info, warn, error)
//   - Default attributes (service name, version) on every record
//
// Usage:
//
//	log := logging.New(cfg.Logging, version)
//	log.Info("command dispatched", "command_id", id, "attempt", n)
//
//	dispatcherLog := log.With("component", "dispatcher")
package logging
