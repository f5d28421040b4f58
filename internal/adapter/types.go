package adapter

import "encoding/json"

// DeviceSnapshot is the normalised view of a backend entity.
//
// Live mode maps the backend's native attribute bag into this shape;
// simulated mode returns a fixed fixture set. Callers never see the
// backend's raw entity format.
type DeviceSnapshot struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	State      string         `json:"state"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Result is the outcome of a control invocation.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`

	// Raw is the transport response body (or the synthetic ack in
	// simulated mode), kept for audit and debugging.
	Raw json.RawMessage `json:"raw,omitempty"`
}

// ConnState is the advisory connectivity state of the adapter.
// It reflects the last probe or call outcome and is not authoritative.
type ConnState string

const (
	StateConnected    ConnState = "connected"
	StateDisconnected ConnState = "disconnected"
	StateSimulated    ConnState = "simulated"
)
