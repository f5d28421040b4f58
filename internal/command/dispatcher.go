package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/homehub-dev/homehub-core/internal/adapter"
	"github.com/homehub-dev/homehub-core/internal/audit"
)

// DeviceInvoker is the interface the dispatcher needs from the device
// adapter: a single validated control call.
type DeviceInvoker interface {
	Invoke(ctx context.Context, domain, action, entityID string, params map[string]any) (*adapter.Result, error)
}

// BrokerPublisher publishes fire-and-forget command payloads for devices
// addressed directly over the broker rather than the device backend.
type BrokerPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Notifier receives command status transitions for fan-out to observers
// (WebSocket clients, logs). May be nil.
type Notifier interface {
	CommandUpdated(cmd *Command)
}

// Logger is the logging interface used by the dispatcher and scheduler.
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

// Config holds the dispatch policy knobs.
type Config struct {
	// MaxAttempts is the default attempt budget for new commands.
	MaxAttempts int

	// RetryBase is the backoff base: after attempt n the next try is
	// scheduled at now + RetryBase * 2^n.
	RetryBase time.Duration

	// AttemptTimeout bounds a single device call. An attempt that
	// exceeds it is treated the same as a transport failure.
	AttemptTimeout time.Duration

	// ScheduledWindow is how long past its scheduled time a pending
	// command may sit before it is forced to timeout.
	ScheduledWindow time.Duration
}

// Dispatcher owns the command state machine.
//
// It decides when a command may be attempted, claims it exclusively for
// the duration of the attempt, routes the call to the device adapter or
// the broker, and applies the retry/backoff policy to the outcome.
//
// Thread Safety: all methods are safe for concurrent use. A single
// command is never attempted twice concurrently; the claim is a
// compare-and-set on status in the store.
type Dispatcher struct {
	repo     Repository
	trail    audit.Repository
	devices  DeviceInvoker
	broker   BrokerPublisher
	notifier Notifier
	logger   Logger
	cfg      Config

	// now is replaceable for tests.
	now func() time.Time
}

// NewDispatcher creates a dispatcher.
//
// Parameters:
//   - repo: Command store
//   - trail: Per-attempt audit trail (may be nil to disable)
//   - devices: Device adapter for domain-addressed commands
//   - broker: Broker client for topic-addressed commands (may be nil)
//   - notifier: Status transition observer (may be nil)
//   - logger: Logger instance
//   - cfg: Dispatch policy
func NewDispatcher(repo Repository, trail audit.Repository, devices DeviceInvoker, broker BrokerPublisher, notifier Notifier, logger Logger, cfg Config) *Dispatcher {
	if logger == nil {
		logger = noopLogger{}
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = time.Second
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 10 * time.Second
	}
	if cfg.ScheduledWindow <= 0 {
		cfg.ScheduledWindow = 5 * time.Minute
	}
	return &Dispatcher{
		repo:     repo,
		trail:    trail,
		devices:  devices,
		broker:   broker,
		notifier: notifier,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
}

// SetNotifier installs the status transition observer. The API server is
// constructed after the dispatcher, so wiring happens in two steps. Call
// before any command is attempted.
func (d *Dispatcher) SetNotifier(n Notifier) {
	d.notifier = n
}

// Submit validates a request and stores a new pending command.
//
// Returns:
//   - *Command: The stored command with its generated ID
//   - error: ErrInvalidCommand on validation failure, ErrInvalidDependency
//     when a referenced dependency ID is unknown
func (d *Dispatcher) Submit(ctx context.Context, req SubmitRequest) (*Command, error) {
	if req.DeviceID == "" {
		return nil, fmt.Errorf("%w: device_id is required", ErrInvalidCommand)
	}
	if req.Action == "" {
		return nil, fmt.Errorf("%w: action is required", ErrInvalidCommand)
	}
	if req.Type == "" {
		req.Type = TypeManual
	}
	if !req.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidCommand, req.Type)
	}
	if req.Priority == "" {
		req.Priority = PriorityNormal
	}
	if !req.Priority.Valid() {
		return nil, fmt.Errorf("%w: unknown priority %q", ErrInvalidCommand, req.Priority)
	}
	if req.MaxAttempts <= 0 {
		req.MaxAttempts = d.cfg.MaxAttempts
	}

	ok, err := d.repo.AllExist(ctx, req.DependsOn)
	if err != nil {
		return nil, fmt.Errorf("checking dependencies: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: one or more depends_on ids are unknown", ErrInvalidDependency)
	}

	now := d.now().UTC()
	cmd := &Command{
		ID:            "cmd-" + uuid.NewString(),
		Type:          req.Type,
		Source:        req.Source,
		DeviceID:      req.DeviceID,
		UserID:        req.UserID,
		Action:        req.Action,
		Parameters:    req.Parameters,
		Priority:      req.Priority,
		OriginalInput: req.OriginalInput,
		Execution: Execution{
			Status:       StatusPending,
			MaxAttempts:  req.MaxAttempts,
			ScheduledFor: req.ScheduledFor,
		},
		BatchID:        req.BatchID,
		SequenceNumber: req.SequenceNum,
		DependsOn:      req.DependsOn,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := d.repo.Create(ctx, cmd); err != nil {
		return nil, fmt.Errorf("storing command: %w", err)
	}

	d.logger.Info("command submitted",
		"command_id", cmd.ID, "device_id", cmd.DeviceID,
		"action", cmd.Action, "priority", string(cmd.Priority))
	d.notify(cmd)

	return cmd, nil
}

// Attempt claims a pending command and performs one dispatch attempt.
//
// Preconditions checked before the claim: the command exists and is
// pending, its scheduled time and retry backoff have elapsed, it has not
// expired, and every dependency is confirmed. A precondition failure
// returns an error without touching the transport.
//
// Returns:
//   - *Outcome: The attempt result, including the retry decision
//   - error: ErrNotFound, ErrNotPending, ErrNotDue, ErrExpired,
//     ErrDependenciesNotMet, or a validation error from the adapter
func (d *Dispatcher) Attempt(ctx context.Context, id string) (*Outcome, error) {
	cmd, err := d.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	now := d.now().UTC()

	if d.isExpired(cmd, now) {
		if cmd.Execution.Status == StatusPending {
			d.forceTimeout(ctx, cmd, now)
		}
		return nil, ErrExpired
	}
	if cmd.Execution.Status != StatusPending {
		return nil, fmt.Errorf("%w: status is %s", ErrNotPending, cmd.Execution.Status)
	}
	if sf := cmd.Execution.ScheduledFor; sf != nil && now.Before(*sf) {
		return nil, fmt.Errorf("%w: scheduled for %s", ErrNotDue, sf.Format(time.RFC3339))
	}
	if ra := cmd.Execution.RetryAfter; ra != nil && now.Before(*ra) {
		return nil, fmt.Errorf("%w: retry after %s", ErrNotDue, ra.Format(time.RFC3339))
	}

	if len(cmd.DependsOn) > 0 {
		unmet, err := d.repo.UnconfirmedDependencies(ctx, cmd.DependsOn)
		if err != nil {
			return nil, fmt.Errorf("checking dependencies: %w", err)
		}
		if len(unmet) > 0 {
			return nil, fmt.Errorf("%w: waiting on %s", ErrDependenciesNotMet, strings.Join(unmet, ", "))
		}
	}

	// Exclusive claim; a concurrent worker loses with ErrNotPending.
	cmd, err = d.repo.MarkProcessing(ctx, id, now)
	if err != nil {
		return nil, err
	}
	d.notify(cmd)

	return d.execute(ctx, cmd)
}

// execute performs the transport call for a claimed command and applies
// the outcome to its state.
func (d *Dispatcher) execute(ctx context.Context, cmd *Command) (*Outcome, error) {
	callCtx, cancel := context.WithTimeout(ctx, d.cfg.AttemptTimeout)
	defer cancel()

	var result *adapter.Result
	var callErr error

	if domain, entityID, ok := splitEntityID(cmd.DeviceID); ok {
		result, callErr = d.devices.Invoke(callCtx, domain, cmd.Action, entityID, cmd.Parameters)
	} else {
		result, callErr = d.publishToBroker(cmd)
	}

	// A response arriving after cancellation is discarded.
	current, err := d.repo.Get(ctx, cmd.ID)
	if err != nil {
		return nil, err
	}
	if current.Execution.Status != StatusProcessing {
		d.logger.Warn("discarding transport response for settled command",
			"command_id", cmd.ID, "status", string(current.Execution.Status))
		return &Outcome{
			CommandID: cmd.ID,
			Status:    current.Execution.Status,
			Attempts:  current.Execution.Attempts,
		}, nil
	}
	cmd = current

	switch {
	case callErr == nil:
		return d.finishConfirmed(ctx, cmd, result)
	case isValidationError(callErr):
		return d.finishInvalid(ctx, cmd, callErr)
	default:
		return d.finishFailed(ctx, cmd, callErr)
	}
}

// publishToBroker routes a topic-addressed command as a fire-and-forget
// publish. Delivery confirmation is the publish handshake only.
func (d *Dispatcher) publishToBroker(cmd *Command) (*adapter.Result, error) {
	if d.broker == nil {
		return nil, fmt.Errorf("%w: no broker configured", adapter.ErrTransport)
	}

	payload, err := json.Marshal(map[string]any{
		"action":     cmd.Action,
		"parameters": cmd.Parameters,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding broker payload: %w", err)
	}

	topic := "devices/" + cmd.DeviceID + "/set"
	if err := d.broker.Publish(topic, payload, 1, false); err != nil {
		return nil, fmt.Errorf("%w: publishing to %s: %w", adapter.ErrTransport, topic, err)
	}

	return &adapter.Result{
		Success: true,
		Message: fmt.Sprintf("published %s to %s", cmd.Action, topic),
	}, nil
}

// settle persists a processing command's outcome. The write is
// conditional on the claim: when a cancel lands between the transport
// call and this write, the cancelled state wins and a discard outcome
// is returned instead.
func (d *Dispatcher) settle(ctx context.Context, cmd *Command) (*Outcome, error) {
	err := d.repo.Settle(ctx, cmd)
	if err == nil {
		return nil, nil
	}
	if !errors.Is(err, ErrNotProcessing) {
		return nil, err
	}

	current, getErr := d.repo.Get(ctx, cmd.ID)
	if getErr != nil {
		return nil, getErr
	}
	d.logger.Warn("discarding attempt outcome for settled command",
		"command_id", cmd.ID, "status", string(current.Execution.Status))
	return &Outcome{
		CommandID: cmd.ID,
		Status:    current.Execution.Status,
		Attempts:  current.Execution.Attempts,
	}, nil
}

// finishConfirmed settles a successful attempt.
func (d *Dispatcher) finishConfirmed(ctx context.Context, cmd *Command, result *adapter.Result) (*Outcome, error) {
	now := d.now().UTC()
	cmd.Execution.Status = StatusConfirmed
	cmd.Execution.EndTime = &now
	cmd.Execution.RetryAfter = nil
	cmd.Response = Response{
		Success: true,
		Message: result.Message,
		Raw:     result.Raw,
	}

	if discarded, err := d.settle(ctx, cmd); err != nil {
		return nil, err
	} else if discarded != nil {
		return discarded, nil
	}
	d.record(ctx, cmd, string(StatusConfirmed), "", result.Message)
	d.notify(cmd)

	d.logger.Info("command confirmed",
		"command_id", cmd.ID, "device_id", cmd.DeviceID, "attempts", cmd.Execution.Attempts)

	return &Outcome{
		CommandID: cmd.ID,
		Status:    StatusConfirmed,
		Attempts:  cmd.Execution.Attempts,
		Success:   true,
		Message:   result.Message,
	}, nil
}

// finishInvalid settles a validation failure. Validation errors are
// permanent and consume the whole budget: the command is terminally
// failed regardless of attempts remaining, and the error is surfaced to
// the caller.
func (d *Dispatcher) finishInvalid(ctx context.Context, cmd *Command, callErr error) (*Outcome, error) {
	now := d.now().UTC()
	code := errorCode(callErr)

	cmd.Execution.Status = StatusFailed
	cmd.Execution.EndTime = &now
	cmd.Execution.RetryAfter = nil
	cmd.Response = Response{
		Success:   false,
		Message:   callErr.Error(),
		ErrorCode: code,
	}

	if discarded, err := d.settle(ctx, cmd); err != nil {
		return nil, err
	} else if discarded != nil {
		return discarded, nil
	}
	d.record(ctx, cmd, string(StatusFailed), code, callErr.Error())
	d.notify(cmd)

	d.logger.Warn("command rejected",
		"command_id", cmd.ID, "device_id", cmd.DeviceID, "error", callErr)

	return nil, callErr
}

// finishFailed settles a transport failure, applying the retry policy.
func (d *Dispatcher) finishFailed(ctx context.Context, cmd *Command, callErr error) (*Outcome, error) {
	now := d.now().UTC()
	timedOut := errors.Is(callErr, context.DeadlineExceeded)

	code := "TRANSPORT_ERROR"
	terminal := StatusFailed
	if timedOut {
		code = "TIMEOUT"
		terminal = StatusTimeout
	}

	cmd.Response = Response{
		Success:   false,
		Message:   callErr.Error(),
		ErrorCode: code,
	}

	if cmd.Execution.Attempts < cmd.Execution.MaxAttempts {
		// Budget remains: back to pending with exponential backoff. The
		// failed observation lives only in the audit trail.
		retryAt := now.Add(d.backoff(cmd.Execution.Attempts))
		cmd.Execution.Status = StatusPending
		cmd.Execution.EndTime = nil
		cmd.Execution.RetryAfter = &retryAt

		if discarded, err := d.settle(ctx, cmd); err != nil {
			return nil, err
		} else if discarded != nil {
			return discarded, nil
		}
		d.record(ctx, cmd, "retrying", code, callErr.Error())
		d.notify(cmd)

		d.logger.Warn("command attempt failed, retrying",
			"command_id", cmd.ID, "attempt", cmd.Execution.Attempts,
			"max_attempts", cmd.Execution.MaxAttempts,
			"retry_after", retryAt.Format(time.RFC3339), "error", callErr)

		return &Outcome{
			CommandID:  cmd.ID,
			Status:     StatusPending,
			Attempts:   cmd.Execution.Attempts,
			Message:    callErr.Error(),
			ErrorCode:  code,
			Retrying:   true,
			RetryAfter: &retryAt,
		}, nil
	}

	cmd.Execution.Status = terminal
	cmd.Execution.EndTime = &now
	cmd.Execution.RetryAfter = nil

	if discarded, err := d.settle(ctx, cmd); err != nil {
		return nil, err
	} else if discarded != nil {
		return discarded, nil
	}
	d.record(ctx, cmd, string(terminal), code, callErr.Error())
	d.notify(cmd)

	d.logger.Error("command failed terminally",
		"command_id", cmd.ID, "attempts", cmd.Execution.Attempts, "error", callErr)

	return &Outcome{
		CommandID: cmd.ID,
		Status:    terminal,
		Attempts:  cmd.Execution.Attempts,
		Message:   callErr.Error(),
		ErrorCode: code,
	}, nil
}

// Cancel moves a command to cancelled from any non-terminal state.
// Cancelling an already-terminal command is a no-op, not an error; the
// stored end time and status are untouched.
func (d *Dispatcher) Cancel(ctx context.Context, id, reason string) (*Command, error) {
	cmd, err := d.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if cmd.Execution.Status.IsTerminal() {
		return cmd, nil
	}

	now := d.now().UTC()
	cmd.Execution.Status = StatusCancelled
	cmd.Execution.EndTime = &now
	cmd.Execution.RetryAfter = nil
	if reason != "" {
		cmd.Response.Message = reason
	}
	cmd.Response.Success = false

	if err := d.repo.Update(ctx, cmd); err != nil {
		return nil, err
	}
	d.record(ctx, cmd, string(StatusCancelled), "", reason)
	d.notify(cmd)

	d.logger.Info("command cancelled", "command_id", cmd.ID, "reason", reason)
	return cmd, nil
}

// Get returns a command by ID.
func (d *Dispatcher) Get(ctx context.Context, id string) (*Command, error) {
	return d.repo.Get(ctx, id)
}

// List returns commands matching the filter.
func (d *Dispatcher) List(ctx context.Context, filter Filter) (*ListResult, error) {
	return d.repo.List(ctx, filter)
}

// History returns a command's per-attempt audit trail.
func (d *Dispatcher) History(ctx context.Context, id string) ([]audit.Entry, error) {
	if _, err := d.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	if d.trail == nil {
		return []audit.Entry{}, nil
	}
	return d.trail.ListByCommand(ctx, id)
}

// IsRetryEligible reports whether a failed command still has attempt
// budget and has not expired.
func (d *Dispatcher) IsRetryEligible(cmd *Command) bool {
	return cmd.Execution.Status == StatusFailed &&
		cmd.Execution.Attempts < cmd.Execution.MaxAttempts &&
		!d.isExpired(cmd, d.now().UTC())
}

// isExpired reports whether a scheduled command has outlived its window.
func (d *Dispatcher) isExpired(cmd *Command, now time.Time) bool {
	sf := cmd.Execution.ScheduledFor
	return sf != nil && now.After(sf.Add(d.cfg.ScheduledWindow))
}

// forceTimeout settles an expired pending command as timeout.
func (d *Dispatcher) forceTimeout(ctx context.Context, cmd *Command, now time.Time) {
	cmd.Execution.Status = StatusTimeout
	cmd.Execution.EndTime = &now
	cmd.Execution.RetryAfter = nil
	cmd.Response = Response{
		Success:   false,
		Message:   "scheduled command expired before dispatch",
		ErrorCode: "EXPIRED",
	}
	if err := d.repo.Update(ctx, cmd); err != nil {
		d.logger.Error("failed to expire command", "command_id", cmd.ID, "error", err)
		return
	}
	d.record(ctx, cmd, string(StatusTimeout), "EXPIRED", "scheduled command expired before dispatch")
	d.notify(cmd)
	d.logger.Warn("command expired", "command_id", cmd.ID)
}

// backoff returns the retry delay after the given attempt count.
func (d *Dispatcher) backoff(attempts int) time.Duration {
	return time.Duration(float64(d.cfg.RetryBase) * math.Pow(2, float64(attempts)))
}

// record writes an audit trail entry, best-effort.
func (d *Dispatcher) record(ctx context.Context, cmd *Command, outcome, code, message string) {
	if d.trail == nil {
		return
	}
	entry := &audit.Entry{
		CommandID: cmd.ID,
		Attempt:   cmd.Execution.Attempts,
		Outcome:   outcome,
		ErrorCode: code,
		Message:   message,
	}
	if err := d.trail.Record(ctx, entry); err != nil {
		d.logger.Warn("failed to record audit entry", "command_id", cmd.ID, "error", err)
	}
}

// notify pushes a status transition to the observer, if any.
func (d *Dispatcher) notify(cmd *Command) {
	if d.notifier != nil {
		d.notifier.CommandUpdated(cmd)
	}
}

// splitEntityID splits a backend entity ID into domain and entity parts.
// IDs without a domain prefix are broker-addressed.
func splitEntityID(deviceID string) (domain, entityID string, ok bool) {
	idx := strings.Index(deviceID, ".")
	if idx <= 0 || idx == len(deviceID)-1 {
		return "", "", false
	}
	return deviceID[:idx], deviceID, true
}

// isValidationError reports whether the adapter rejected the call before
// any transport activity. These failures are permanent.
func isValidationError(err error) bool {
	return errors.Is(err, adapter.ErrUnsupportedDomain) ||
		errors.Is(err, adapter.ErrUnsupportedAction) ||
		errors.Is(err, adapter.ErrMissingParameter)
}

// errorCode maps a validation error to its stored code.
func errorCode(err error) string {
	switch {
	case errors.Is(err, adapter.ErrUnsupportedDomain):
		return "UNSUPPORTED_DOMAIN"
	case errors.Is(err, adapter.ErrUnsupportedAction):
		return "UNSUPPORTED_ACTION"
	case errors.Is(err, adapter.ErrMissingParameter):
		return "MISSING_PARAMETER"
	default:
		return "TRANSPORT_ERROR"
	}
}
