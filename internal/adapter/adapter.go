package adapter

import (
	"context"

	"github.com/homehub-dev/homehub-core/internal/infrastructure/config"
)

// Adapter translates logical (domain, action, parameters) invocations into
// control calls against a device backend.
//
// Two implementations exist: Live (HTTP against the configured backend) and
// Simulated (deterministic stand-in). The choice is made once at startup by
// configuration presence; the two are never mixed within one process
// lifetime.
type Adapter interface {
	// ListDevices returns normalised snapshots of all known entities.
	ListDevices(ctx context.Context) ([]DeviceSnapshot, error)

	// Invoke performs a control call. The action is validated against the
	// domain allow-list before any transport activity.
	Invoke(ctx context.Context, domain, action, entityID string, params map[string]any) (*Result, error)

	// TestConnectivity probes the backend. It never returns an error; a
	// failed probe reports false and flips the advisory state to
	// disconnected.
	TestConnectivity(ctx context.Context) bool

	// State returns the advisory connectivity state.
	State() ConnState
}

// Logger is the logging interface used by adapters.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// New constructs the adapter selected by configuration: a live backend when
// a base URL and token are present, the simulated backend otherwise.
func New(cfg config.HomeAssistantConfig, logger Logger) Adapter {
	if logger == nil {
		logger = noopLogger{}
	}
	if cfg.Token == "" || cfg.BaseURL == "" {
		logger.Info("no device backend configured, using simulated adapter")
		return NewSimulated()
	}
	return NewLive(cfg, logger)
}
