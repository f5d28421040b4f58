package audit

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}

	schema := `
		CREATE TABLE command_audit (
			id          TEXT PRIMARY KEY,
			command_id  TEXT NOT NULL,
			attempt     INTEGER NOT NULL,
			outcome     TEXT NOT NULL,
			error_code  TEXT,
			message     TEXT,
			created_at  TEXT NOT NULL
		) STRICT;`

	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("creating schema: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

func TestRecordGeneratesID(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))

	entry := &Entry{
		CommandID: "cmd-1",
		Attempt:   1,
		Outcome:   "retrying",
		ErrorCode: "TRANSPORT_ERROR",
		Message:   "backend unreachable",
	}
	if err := repo.Record(context.Background(), entry); err != nil {
		t.Fatalf("recording: %v", err)
	}
	if entry.ID == "" {
		t.Error("expected generated ID")
	}
	if entry.CreatedAt.IsZero() {
		t.Error("expected generated timestamp")
	}
}

func TestListByCommandOrdersByAttempt(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	for attempt, outcome := range map[int]string{2: "retrying", 1: "retrying", 3: "failed"} {
		if err := repo.Record(ctx, &Entry{
			CommandID: "cmd-1",
			Attempt:   attempt,
			Outcome:   outcome,
		}); err != nil {
			t.Fatalf("recording attempt %d: %v", attempt, err)
		}
	}
	// Unrelated command must not leak into the listing.
	if err := repo.Record(ctx, &Entry{CommandID: "cmd-2", Attempt: 1, Outcome: "confirmed"}); err != nil {
		t.Fatalf("recording: %v", err)
	}

	entries, err := repo.ListByCommand(ctx, "cmd-1")
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i, want := range []int{1, 2, 3} {
		if entries[i].Attempt != want {
			t.Errorf("position %d: expected attempt %d, got %d", i, want, entries[i].Attempt)
		}
	}
	if entries[2].Outcome != "failed" {
		t.Errorf("expected terminal failed last, got %q", entries[2].Outcome)
	}
}

func TestListByCommandEmpty(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))

	entries, err := repo.ListByCommand(context.Background(), "cmd-none")
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	if entries == nil || len(entries) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", entries)
	}
}
