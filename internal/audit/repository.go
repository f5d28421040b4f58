// Package audit records the per-attempt history of command dispatch.
//
// When a failed attempt leaves retry budget the command silently returns
// to pending; the audit trail is the only place that attempt remains
// visible. One entry is written per completed attempt, terminal or not.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Entry represents a single dispatch attempt outcome.
type Entry struct {
	ID        string    `json:"id"`
	CommandID string    `json:"command_id"`
	Attempt   int       `json:"attempt"`
	Outcome   string    `json:"outcome"` // confirmed, failed, timeout, cancelled, retrying
	ErrorCode string    `json:"error_code,omitempty"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Repository defines the interface for audit trail operations.
type Repository interface {
	Record(ctx context.Context, entry *Entry) error
	ListByCommand(ctx context.Context, commandID string) ([]Entry, error)
}

// SQLiteRepository stores audit entries in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new audit trail repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Record inserts an attempt entry. The ID and CreatedAt are generated if empty.
func (r *SQLiteRepository) Record(ctx context.Context, entry *Entry) error {
	if entry.ID == "" {
		entry.ID = "aud-" + uuid.NewString()[:8]
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO command_audit (id, command_id, attempt, outcome, error_code, message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.CommandID, entry.Attempt, entry.Outcome,
		nullableString(entry.ErrorCode), nullableString(entry.Message),
		entry.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}
	return nil
}

// ListByCommand returns a command's attempt history in attempt order.
func (r *SQLiteRepository) ListByCommand(ctx context.Context, commandID string) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, command_id, attempt, outcome, error_code, message, created_at
		 FROM command_audit WHERE command_id = ? ORDER BY attempt ASC, created_at ASC`,
		commandID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying audit entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var errorCode, message sql.NullString
		var createdAt string

		if err := rows.Scan(&e.ID, &e.CommandID, &e.Attempt, &e.Outcome, &errorCode, &message, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		if errorCode.Valid {
			e.ErrorCode = errorCode.String
		}
		if message.Valid {
			e.Message = message.String
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing audit timestamp %q: %w", createdAt, err)
		}
		e.CreatedAt = t

		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit entries: %w", err)
	}

	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}

// nullableString returns nil for empty strings, or the string otherwise.
// Used for nullable TEXT columns in SQLite.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
