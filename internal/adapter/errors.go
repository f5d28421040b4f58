package adapter

import "errors"

// Domain-specific errors for device control.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrUnsupportedDomain is returned for a domain with no action allow-list.
	ErrUnsupportedDomain = errors.New("adapter: unsupported domain")

	// ErrUnsupportedAction is returned when an action is not in the
	// allow-list for its domain. Validation errors are never retried.
	ErrUnsupportedAction = errors.New("adapter: unsupported action for domain")

	// ErrMissingParameter is returned when a domain requires a parameter the
	// caller did not supply (e.g. climate with no temperature/hvac_mode/fan_mode).
	ErrMissingParameter = errors.New("adapter: missing required parameter")

	// ErrTransport wraps connectivity and HTTP failures against the live
	// backend. Transport errors drive the command retry path.
	ErrTransport = errors.New("adapter: transport error")
)
