// Package audit persists routing telemetry to a local SQLite database.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"roleroute/internal/domain"
)

// SQLiteStore records every routed invocation. It implements
// domain.TelemetrySink.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and runs
// the schema migration.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	// WAL mode for better concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate audit db: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS invocations (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL DEFAULT '',
			role       TEXT NOT NULL,
			tool       TEXT NOT NULL,
			provider   TEXT NOT NULL,
			status     TEXT NOT NULL,
			elapsed_ms INTEGER NOT NULL,
			error      TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_invocations_user ON invocations(user_id, created_at);
	`)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Record implements domain.TelemetrySink.
func (s *SQLiteStore) Record(ctx context.Context, t domain.Telemetry) error {
	at := t.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO invocations (id, user_id, role, tool, provider, status, elapsed_ms, error, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		t.RequestID, t.UserID, t.Role, t.Tool, t.Provider, string(t.Status),
		t.Elapsed.Milliseconds(), t.Err, at.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert invocation: %w", err)
	}
	return nil
}

// Entry is one persisted invocation record.
type Entry struct {
	RequestID string
	UserID    string
	Role      string
	Tool      string
	Provider  string
	Status    domain.Status
	Elapsed   time.Duration
	Err       string
	At        time.Time
}

// ListByUser returns the most recent invocations for a user, newest first.
func (s *SQLiteStore) ListByUser(ctx context.Context, userID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, user_id, role, tool, provider, status, elapsed_ms, error, created_at FROM invocations WHERE user_id = ? ORDER BY created_at DESC LIMIT ?",
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query invocations: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var status, createdAt string
		var elapsedMS int64
		if err := rows.Scan(&e.RequestID, &e.UserID, &e.Role, &e.Tool, &e.Provider,
			&status, &elapsedMS, &e.Err, &createdAt); err != nil {
			return nil, fmt.Errorf("scan invocation: %w", err)
		}
		e.Status = domain.Status(status)
		e.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		e.At, _ = time.Parse(time.RFC3339Nano, createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CountByStatus returns invocation counts grouped by status.
func (s *SQLiteStore) CountByStatus(ctx context.Context) (map[domain.Status]int, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT status, COUNT(*) FROM invocations GROUP BY status",
	)
	if err != nil {
		return nil, fmt.Errorf("count invocations: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[domain.Status(status)] = n
	}
	return counts, rows.Err()
}

var _ domain.TelemetrySink = (*SQLiteStore)(nil)
