package command

import (
	"encoding/json"
	"time"
)

// Command represents a persisted intent to act on a device, tracked
// through an execution state machine.
//
// A command is created pending (optionally with a future ScheduledFor),
// moves to processing when an attempt begins, and ends in one of the
// terminal states: confirmed, failed, timeout, or cancelled. A failed
// attempt with budget remaining flips the command back to pending with a
// RetryAfter in the future; callers only ever observe a terminal failed
// once the attempt budget is exhausted.
type Command struct {
	// Identity
	ID     string `json:"id"`
	Type   Type   `json:"type"`
	Source string `json:"source"`

	// Target and origin
	DeviceID string `json:"device_id"`
	UserID   string `json:"user_id,omitempty"`

	// What to do
	Action     string         `json:"action"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Priority   Priority       `json:"priority"`

	// Raw text the command was parsed from (AI/voice paths); optional.
	OriginalInput string `json:"original_input,omitempty"`

	Execution Execution `json:"execution"`
	Response  Response  `json:"response"`

	// Batch membership (optional)
	BatchID        string   `json:"batch_id,omitempty"`
	SequenceNumber *int     `json:"sequence_number,omitempty"`
	DependsOn      []string `json:"depends_on,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Execution tracks the attempt lifecycle of a command.
type Execution struct {
	Status      Status     `json:"status"`
	StartTime   *time.Time `json:"start_time,omitempty"`
	EndTime     *time.Time `json:"end_time,omitempty"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"max_attempts"`
	RetryAfter  *time.Time `json:"retry_after,omitempty"`

	// ScheduledFor defers the first attempt. A scheduled command left
	// unattempted for more than the configured window past this instant
	// is forced to timeout, never retried.
	ScheduledFor *time.Time `json:"scheduled_for,omitempty"`
}

// Response records the outcome of the most recent attempt.
type Response struct {
	Success   bool            `json:"success"`
	Message   string          `json:"message,omitempty"`
	ErrorCode string          `json:"error_code,omitempty"`
	Raw       json.RawMessage `json:"raw,omitempty"`
}

// Status is the execution state of a command.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusConfirmed  Status = "confirmed"
	StatusFailed     Status = "failed"
	StatusTimeout    Status = "timeout"
	StatusCancelled  Status = "cancelled"
)

// IsTerminal reports whether the status permits no further transitions.
// A failed command with attempt budget remaining is not terminal; the
// dispatcher re-enters pending before the record is observable as failed.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusConfirmed, StatusFailed, StatusTimeout, StatusCancelled:
		return true
	default:
		return false
	}
}

// Type classifies how a command was originated.
type Type string

const (
	TypeManual     Type = "manual"
	TypeAI         Type = "ai"
	TypeAutomation Type = "automation"
	TypeScene      Type = "scene"
	TypeSchedule   Type = "schedule"
)

// Valid reports whether the type is one of the known origination kinds.
func (t Type) Valid() bool {
	switch t {
	case TypeManual, TypeAI, TypeAutomation, TypeScene, TypeSchedule:
		return true
	default:
		return false
	}
}

// Priority orders commands competing for dispatch within one tick.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Rank returns the numeric dispatch tier; higher is dispatched first.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 3
	case PriorityHigh:
		return 2
	case PriorityNormal:
		return 1
	case PriorityLow:
		return 0
	default:
		return 1
	}
}

// Valid reports whether the priority is one of the known tiers.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityCritical:
		return true
	default:
		return false
	}
}

// SubmitRequest is the shape accepted by Dispatcher.Submit. Optional
// fields default during submission: priority to normal, max attempts to
// the configured budget.
type SubmitRequest struct {
	Type          Type           `json:"type"`
	Source        string         `json:"source"`
	DeviceID      string         `json:"device_id"`
	UserID        string         `json:"user_id,omitempty"`
	Action        string         `json:"action"`
	Parameters    map[string]any `json:"parameters,omitempty"`
	Priority      Priority       `json:"priority,omitempty"`
	OriginalInput string         `json:"original_input,omitempty"`
	ScheduledFor  *time.Time     `json:"scheduled_for,omitempty"`
	BatchID       string         `json:"batch_id,omitempty"`
	SequenceNum   *int           `json:"sequence_number,omitempty"`
	DependsOn     []string       `json:"depends_on,omitempty"`
	MaxAttempts   int            `json:"max_attempts,omitempty"`
}

// Outcome summarises a single dispatch attempt for the caller.
type Outcome struct {
	CommandID string `json:"command_id"`
	Status    Status `json:"status"`
	Attempts  int    `json:"attempts"`
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`

	// Retrying is true when the attempt failed but the command was
	// returned to pending with a backoff delay.
	Retrying   bool       `json:"retrying"`
	RetryAfter *time.Time `json:"retry_after,omitempty"`
}

// Filter controls which commands List returns.
type Filter struct {
	Status   Status // optional
	DeviceID string // optional
	BatchID  string // optional
	Limit    int    // default 50, max 200
	Offset   int    // pagination offset
}

// ListResult contains paginated command query results.
type ListResult struct {
	Commands []Command `json:"commands"`
	Total    int       `json:"total"`
	Limit    int       `json:"limit"`
	Offset   int       `json:"offset"`
}
