// Package journal is a durable log of optimistic mutation outcomes. The
// caches themselves are in-memory and rebuilt from the server on startup;
// the journal exists so confirmed and rolled-back mutations can be
// inspected after the fact.
package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Entry is one journaled mutation outcome.
type Entry struct {
	ID      int64     `json:"id"`
	At      time.Time `json:"at"`
	Op      string    `json:"op"`
	Target  string    `json:"target"`
	Outcome string    `json:"outcome"`
	Message string    `json:"message,omitempty"`
}

// Journal writes mutation outcomes to SQLite. It implements the stores'
// Recorder interface; Record is fire-and-forget, so a write failure is
// logged rather than surfaced into the mutation path.
type Journal struct {
	db  *sql.DB
	log *slog.Logger
	now func() time.Time
}

// Option configures a Journal.
type Option func(*Journal)

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(j *Journal) { j.log = log }
}

// WithNow overrides the wall clock (tests).
func WithNow(now func() time.Time) Option {
	return func(j *Journal) { j.now = now }
}

// Open creates or opens the journal database at path. Use ":memory:" for
// an ephemeral journal.
//
// SQLite is configured with WAL mode for concurrent reads, NORMAL
// synchronous mode, and a 5-second busy timeout. The connection pool is
// capped at one: SQLite only supports one writer and the stores record
// sequentially anyway.
func Open(path string, opts ...Option) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to journal database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply journal schema: %w", err)
	}

	j := &Journal{db: db, log: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Record writes one mutation outcome. Implements the stores' Recorder.
func (j *Journal) Record(op, target, outcome, message string) {
	at := j.now().UTC().Format(time.RFC3339Nano)
	_, err := j.db.Exec(
		`INSERT INTO mutations (at, op, target, outcome, message) VALUES (?, ?, ?, ?, ?)`,
		at, op, target, outcome, message,
	)
	if err != nil {
		j.log.Error("journal write failed", "op", op, "target", target, "error", err)
	}
}

// Recent returns the latest n entries, newest first.
func (j *Journal) Recent(ctx context.Context, n int) ([]Entry, error) {
	if n < 1 {
		n = 20
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, at, op, target, outcome, message FROM mutations ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, n)
	for rows.Next() {
		var e Entry
		var at string
		if err := rows.Scan(&e.ID, &at, &e.Op, &e.Target, &e.Outcome, &e.Message); err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, at); err == nil {
			e.At = t
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal rows: %w", err)
	}
	return entries, nil
}

// CountByOutcome returns how many entries carry each outcome label.
func (j *Journal) CountByOutcome(ctx context.Context) (map[string]int, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT outcome, COUNT(*) FROM mutations GROUP BY outcome`)
	if err != nil {
		return nil, fmt.Errorf("count journal outcomes: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("scan outcome count: %w", err)
		}
		counts[outcome] = n
	}
	return counts, rows.Err()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}
