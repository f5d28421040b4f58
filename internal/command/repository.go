package command

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// timeFormat is the storage format for all timestamp columns. Times are
// stored UTC so lexicographic comparison in SQL matches chronological
// order.
const timeFormat = time.RFC3339

// priorityRankExpr orders rows by dispatch tier in SQL, mirroring
// Priority.Rank.
const priorityRankExpr = `CASE priority
	WHEN 'critical' THEN 3
	WHEN 'high' THEN 2
	WHEN 'normal' THEN 1
	ELSE 0
END`

// Repository defines the persistence interface for commands.
type Repository interface {
	Create(ctx context.Context, cmd *Command) error
	Get(ctx context.Context, id string) (*Command, error)
	List(ctx context.Context, filter Filter) (*ListResult, error)

	// MarkProcessing atomically claims a pending command for an attempt:
	// status moves to processing and the attempt counter increments in a
	// single compare-and-set. Returns ErrNotPending when the command is
	// not pending, which includes losing a race to another worker.
	MarkProcessing(ctx context.Context, id string, now time.Time) (*Command, error)

	// Update persists the execution and response sub-records.
	Update(ctx context.Context, cmd *Command) error

	// Settle persists an attempt outcome for a command still in the
	// processing state. Returns ErrNotProcessing when another writer
	// settled it first; the stored state wins and the attempt's outcome
	// must be discarded.
	Settle(ctx context.Context, cmd *Command) error

	// ListDue returns pending commands whose scheduled time and retry
	// backoff have both elapsed, ordered by priority tier (descending),
	// then creation time, then batch sequence number.
	ListDue(ctx context.Context, now time.Time, limit int) ([]Command, error)

	// ExpireStale forces pending commands whose scheduled time is more
	// than window in the past to timeout. Returns the IDs expired.
	ExpireStale(ctx context.Context, now time.Time, window time.Duration) ([]string, error)

	// AllExist reports whether every ID in the list names a stored command.
	AllExist(ctx context.Context, ids []string) (bool, error)

	// UnconfirmedDependencies returns the subset of ids whose commands are
	// not in the confirmed state.
	UnconfirmedDependencies(ctx context.Context, ids []string) ([]string, error)
}

// SQLiteRepository persists commands in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new command repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const commandColumns = `id, type, source, device_id, user_id, action, parameters, priority, original_input,
	status, start_time, end_time, attempts, max_attempts, retry_after, scheduled_for,
	response_success, response_message, response_error_code, response_raw,
	batch_id, sequence_number, depends_on, created_at, updated_at`

// Create inserts a new command record.
func (r *SQLiteRepository) Create(ctx context.Context, cmd *Command) error {
	params, err := json.Marshal(paramsOrEmpty(cmd.Parameters))
	if err != nil {
		return fmt.Errorf("marshalling parameters: %w", err)
	}
	deps, err := json.Marshal(depsOrEmpty(cmd.DependsOn))
	if err != nil {
		return fmt.Errorf("marshalling dependencies: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO commands (`+commandColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cmd.ID, string(cmd.Type), cmd.Source, cmd.DeviceID, nullableString(cmd.UserID),
		cmd.Action, string(params), string(cmd.Priority), nullableString(cmd.OriginalInput),
		string(cmd.Execution.Status), nullableTime(cmd.Execution.StartTime), nullableTime(cmd.Execution.EndTime),
		cmd.Execution.Attempts, cmd.Execution.MaxAttempts,
		nullableTime(cmd.Execution.RetryAfter), nullableTime(cmd.Execution.ScheduledFor),
		boolToInt(cmd.Response.Success), nullableString(cmd.Response.Message),
		nullableString(cmd.Response.ErrorCode), nullableRaw(cmd.Response.Raw),
		nullableString(cmd.BatchID), cmd.SequenceNumber, string(deps),
		cmd.CreatedAt.UTC().Format(timeFormat), cmd.UpdatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting command: %w", err)
	}
	return nil
}

// Get returns a single command by ID.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Command, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+commandColumns+` FROM commands WHERE id = ?`, id)

	cmd, err := scanCommand(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying command: %w", err)
	}
	return cmd, nil
}

// MarkProcessing claims a pending command for an attempt.
func (r *SQLiteRepository) MarkProcessing(ctx context.Context, id string, now time.Time) (*Command, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE commands
		 SET status = ?, attempts = attempts + 1, start_time = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(StatusProcessing), now.UTC().Format(timeFormat), now.UTC().Format(timeFormat),
		id, string(StatusPending),
	)
	if err != nil {
		return nil, fmt.Errorf("claiming command: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("claiming command: %w", err)
	}
	if n == 0 {
		// Distinguish missing from already-claimed for the caller.
		if _, getErr := r.Get(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrNotPending
	}

	return r.Get(ctx, id)
}

// Update persists the mutable execution and response fields.
func (r *SQLiteRepository) Update(ctx context.Context, cmd *Command) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE commands
		 SET status = ?, start_time = ?, end_time = ?, attempts = ?, retry_after = ?,
		     response_success = ?, response_message = ?, response_error_code = ?, response_raw = ?,
		     updated_at = ?
		 WHERE id = ?`,
		string(cmd.Execution.Status),
		nullableTime(cmd.Execution.StartTime), nullableTime(cmd.Execution.EndTime),
		cmd.Execution.Attempts, nullableTime(cmd.Execution.RetryAfter),
		boolToInt(cmd.Response.Success), nullableString(cmd.Response.Message),
		nullableString(cmd.Response.ErrorCode), nullableRaw(cmd.Response.Raw),
		time.Now().UTC().Format(timeFormat),
		cmd.ID,
	)
	if err != nil {
		return fmt.Errorf("updating command: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating command: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Settle persists the outcome of an attempt, conditional on the command
// still being claimed. The WHERE clause guards against a concurrent
// cancel: once the status has left processing, this write loses.
func (r *SQLiteRepository) Settle(ctx context.Context, cmd *Command) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE commands
		 SET status = ?, start_time = ?, end_time = ?, attempts = ?, retry_after = ?,
		     response_success = ?, response_message = ?, response_error_code = ?, response_raw = ?,
		     updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(cmd.Execution.Status),
		nullableTime(cmd.Execution.StartTime), nullableTime(cmd.Execution.EndTime),
		cmd.Execution.Attempts, nullableTime(cmd.Execution.RetryAfter),
		boolToInt(cmd.Response.Success), nullableString(cmd.Response.Message),
		nullableString(cmd.Response.ErrorCode), nullableRaw(cmd.Response.Raw),
		time.Now().UTC().Format(timeFormat),
		cmd.ID, string(StatusProcessing),
	)
	if err != nil {
		return fmt.Errorf("settling command: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("settling command: %w", err)
	}
	if n == 0 {
		if _, getErr := r.Get(ctx, cmd.ID); getErr != nil {
			return getErr
		}
		return ErrNotProcessing
	}
	return nil
}

// ListDue returns dispatchable pending commands in dispatch order.
func (r *SQLiteRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]Command, error) {
	if limit <= 0 {
		limit = 50
	}
	nowStr := now.UTC().Format(timeFormat)

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+commandColumns+` FROM commands
		 WHERE status = ?
		   AND (scheduled_for IS NULL OR scheduled_for <= ?)
		   AND (retry_after IS NULL OR retry_after <= ?)
		 ORDER BY `+priorityRankExpr+` DESC, created_at ASC, sequence_number ASC
		 LIMIT ?`,
		string(StatusPending), nowStr, nowStr, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying due commands: %w", err)
	}
	defer rows.Close()

	return collectCommands(rows)
}

// ExpireStale forces stale scheduled commands to timeout.
func (r *SQLiteRepository) ExpireStale(ctx context.Context, now time.Time, window time.Duration) ([]string, error) {
	cutoff := now.Add(-window).UTC().Format(timeFormat)
	nowStr := now.UTC().Format(timeFormat)

	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM commands
		 WHERE status = ? AND scheduled_for IS NOT NULL AND scheduled_for < ?`,
		string(StatusPending), cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("querying stale commands: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning stale command id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating stale commands: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	_, err = r.db.ExecContext(ctx,
		`UPDATE commands
		 SET status = ?, end_time = ?, response_error_code = 'EXPIRED',
		     response_message = 'scheduled command expired before dispatch', updated_at = ?
		 WHERE status = ? AND scheduled_for IS NOT NULL AND scheduled_for < ?`,
		string(StatusTimeout), nowStr, nowStr, string(StatusPending), cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("expiring stale commands: %w", err)
	}
	return ids, nil
}

// AllExist reports whether every ID names a stored command.
func (r *SQLiteRepository) AllExist(ctx context.Context, ids []string) (bool, error) {
	if len(ids) == 0 {
		return true, nil
	}

	query := fmt.Sprintf(
		"SELECT COUNT(*) FROM commands WHERE id IN (%s)",
		placeholders(len(ids)),
	)
	var count int
	if err := r.db.QueryRowContext(ctx, query, idArgs(ids)...).Scan(&count); err != nil {
		return false, fmt.Errorf("counting dependencies: %w", err)
	}
	return count == len(ids), nil
}

// UnconfirmedDependencies returns the ids not in the confirmed state.
func (r *SQLiteRepository) UnconfirmedDependencies(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(
		"SELECT id FROM commands WHERE id IN (%s) AND status = ?",
		placeholders(len(ids)),
	)
	args := append(idArgs(ids), string(StatusConfirmed))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying dependencies: %w", err)
	}
	defer rows.Close()

	confirmed := make(map[string]bool, len(ids))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning dependency id: %w", err)
		}
		confirmed[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating dependencies: %w", err)
	}

	var unconfirmed []string
	for _, id := range ids {
		if !confirmed[id] {
			unconfirmed = append(unconfirmed, id)
		}
	}
	return unconfirmed, nil
}

// List returns commands matching the filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	// Clamp limit.
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 200 {
		filter.Limit = 200
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any

	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.DeviceID != "" {
		conditions = append(conditions, "device_id = ?")
		args = append(args, filter.DeviceID)
	}
	if filter.BatchID != "" {
		conditions = append(conditions, "batch_id = ?")
		args = append(args, filter.BatchID)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM commands %s", where)
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting commands: %w", err)
	}

	query := fmt.Sprintf(
		"SELECT %s FROM commands %s ORDER BY created_at DESC LIMIT ? OFFSET ?",
		commandColumns, where,
	)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying commands: %w", err)
	}
	defer rows.Close()

	commands, err := collectCommands(rows)
	if err != nil {
		return nil, err
	}
	if commands == nil {
		commands = []Command{}
	}

	return &ListResult{
		Commands: commands,
		Total:    total,
		Limit:    filter.Limit,
		Offset:   filter.Offset,
	}, nil
}

// scanner abstracts *sql.Row and *sql.Rows for scanCommand.
type scanner interface {
	Scan(dest ...any) error
}

// scanCommand reads one command row.
func scanCommand(s scanner) (*Command, error) {
	var cmd Command
	var userID, originalInput, startTime, endTime, retryAfter, scheduledFor sql.NullString
	var respMessage, respErrorCode, respRaw, batchID sql.NullString
	var seqNum sql.NullInt64
	var paramsJSON, depsJSON, createdAt, updatedAt string
	var cmdType, priority, status string
	var respSuccess int

	err := s.Scan(
		&cmd.ID, &cmdType, &cmd.Source, &cmd.DeviceID, &userID, &cmd.Action,
		&paramsJSON, &priority, &originalInput,
		&status, &startTime, &endTime, &cmd.Execution.Attempts, &cmd.Execution.MaxAttempts,
		&retryAfter, &scheduledFor,
		&respSuccess, &respMessage, &respErrorCode, &respRaw,
		&batchID, &seqNum, &depsJSON, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	cmd.Type = Type(cmdType)
	cmd.Priority = Priority(priority)
	cmd.Execution.Status = Status(status)
	cmd.Response.Success = respSuccess != 0

	if userID.Valid {
		cmd.UserID = userID.String
	}
	if originalInput.Valid {
		cmd.OriginalInput = originalInput.String
	}
	if respMessage.Valid {
		cmd.Response.Message = respMessage.String
	}
	if respErrorCode.Valid {
		cmd.Response.ErrorCode = respErrorCode.String
	}
	if respRaw.Valid && respRaw.String != "" {
		cmd.Response.Raw = json.RawMessage(respRaw.String)
	}
	if batchID.Valid {
		cmd.BatchID = batchID.String
	}
	if seqNum.Valid {
		n := int(seqNum.Int64)
		cmd.SequenceNumber = &n
	}

	if paramsJSON != "" {
		if err := json.Unmarshal([]byte(paramsJSON), &cmd.Parameters); err != nil {
			return nil, fmt.Errorf("parsing command parameters: %w", err)
		}
	}
	if depsJSON != "" {
		if err := json.Unmarshal([]byte(depsJSON), &cmd.DependsOn); err != nil {
			return nil, fmt.Errorf("parsing command dependencies: %w", err)
		}
	}

	var parseErr error
	if cmd.Execution.StartTime, parseErr = parseNullableTime(startTime); parseErr != nil {
		return nil, parseErr
	}
	if cmd.Execution.EndTime, parseErr = parseNullableTime(endTime); parseErr != nil {
		return nil, parseErr
	}
	if cmd.Execution.RetryAfter, parseErr = parseNullableTime(retryAfter); parseErr != nil {
		return nil, parseErr
	}
	if cmd.Execution.ScheduledFor, parseErr = parseNullableTime(scheduledFor); parseErr != nil {
		return nil, parseErr
	}
	if cmd.CreatedAt, parseErr = parseTime(createdAt); parseErr != nil {
		return nil, parseErr
	}
	if cmd.UpdatedAt, parseErr = parseTime(updatedAt); parseErr != nil {
		return nil, parseErr
	}

	return &cmd, nil
}

// collectCommands drains a result set into a slice.
func collectCommands(rows *sql.Rows) ([]Command, error) {
	var commands []Command
	for rows.Next() {
		cmd, err := scanCommand(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning command: %w", err)
		}
		commands = append(commands, *cmd)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating commands: %w", err)
	}
	return commands, nil
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing command timestamp %q: %w", s, err)
	}
	return t, nil
}

func parseNullableTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// nullableString returns nil for empty strings, for nullable TEXT columns.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(timeFormat)
}

func nullableRaw(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func paramsOrEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func depsOrEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func idArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
