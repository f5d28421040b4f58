package command

import "errors"

// Domain errors for the command package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, command.ErrNotFound) {
//	    // handle not found case
//	}
var (
	// ErrNotFound is returned when a command ID does not exist.
	ErrNotFound = errors.New("command: not found")

	// ErrInvalidDependency is returned when a submitted command references
	// a dependency ID that does not exist.
	ErrInvalidDependency = errors.New("command: invalid dependency")

	// ErrInvalidCommand is returned when submission validation fails
	// (missing device or action, unknown type or priority).
	ErrInvalidCommand = errors.New("command: invalid")

	// ErrNotPending is returned when an attempt is made on a command that
	// is not in the pending state. Also covers the concurrent case: two
	// workers racing to attempt the same command, where the loser sees
	// the status already claimed.
	ErrNotPending = errors.New("command: not pending")

	// ErrNotProcessing is returned when a settle write finds the command
	// no longer in the processing state: another writer, typically a
	// cancellation, settled it first.
	ErrNotProcessing = errors.New("command: not processing")

	// ErrNotDue is returned when a command's scheduled time has not yet
	// arrived or its retry backoff has not elapsed.
	ErrNotDue = errors.New("command: not due")

	// ErrDependenciesNotMet is returned when an attempt precondition fails
	// because one or more dependencies are not yet confirmed.
	ErrDependenciesNotMet = errors.New("command: dependencies not met")

	// ErrExpired is returned when a scheduled command has passed its
	// expiry window and has been forced to timeout.
	ErrExpired = errors.New("command: expired")
)
