// Package ledger records slot-transition events to a local SQLite
// database for post-hoc inspection. It is a passive audit trail, not
// the system of record: the pool's in-memory slot map is authoritative
// for everything the daemon actually decides on, and a ledger write
// failure never blocks a pool operation.
package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// isBusyLock reports whether err indicates SQLITE_BUSY, wrapped or not.
func isBusyLock(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "database is locked") || strings.Contains(s, "SQLITE_BUSY")
}

// retryOnBusy runs fn and retries on SQLITE_BUSY with backoff, the
// same shape the daemon's teacher uses for its own SQLite store.
func retryOnBusy(fn func() error) error {
	const maxAttempts = 4
	backoff := 25 * time.Millisecond
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil || !isBusyLock(lastErr) {
			return lastErr
		}
		if attempt < maxAttempts-1 {
			time.Sleep(backoff)
			backoff *= 2
		}
	}
	return lastErr
}

// dsnWithPragmas applies WAL and a generous busy timeout per
// connection, since refill goroutines and the control server can both
// be writing concurrently.
func dsnWithPragmas(dbPath string) string {
	return dbPath + "?_pragma=busy_timeout(15000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)"
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS events (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	slot_id TEXT NOT NULL,
	kind    TEXT NOT NULL,
	detail  TEXT NOT NULL DEFAULT '',
	at      DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_slot_id ON events(slot_id);
CREATE INDEX IF NOT EXISTS idx_events_at ON events(at);
`

// Event kinds emitted by the pool and runner.
const (
	KindSlotCreated = "slot_created"
	KindSlotWarm    = "slot_warm"
	KindSlotActive  = "slot_active"
	KindSlotDead    = "slot_dead"
	KindBootFailed  = "boot_failed"
)

// DefaultMaxOpenConns bounds the connection pool; WAL allows many
// readers alongside the single writer.
const DefaultMaxOpenConns = 4

// Ledger is a handle on the audit database.
type Ledger struct {
	db *sql.DB
}

// Open creates or attaches to the ledger database at dbPath.
func Open(dbPath string) (*Ledger, error) {
	dsn := dsnWithPragmas(dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("ledger: open database: %w", err)
	}
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxOpenConns)

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: run migrations: %w", err)
	}

	return &Ledger{db: db}, nil
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

// Event is one recorded slot-state transition.
type Event struct {
	ID     int64
	SlotID string
	Kind   string
	Detail string
	At     time.Time
}

// Record appends one slot-transition event. Errors are returned for
// the caller to log; they are never the reason a pool operation fails.
func (l *Ledger) Record(slotID, kind, detail string) error {
	if slotID == "" {
		return errEmptySlotID
	}
	err := retryOnBusy(func() error {
		_, e := l.db.Exec(
			`INSERT INTO events (slot_id, kind, detail, at) VALUES (?, ?, ?, ?)`,
			slotID, kind, detail, time.Now().UTC(),
		)
		return e
	})
	if err != nil {
		return fmt.Errorf("ledger: record event: %w", err)
	}
	return nil
}

// EventsForSlot returns every recorded event for one slot, oldest
// first.
func (l *Ledger) EventsForSlot(slotID string) ([]Event, error) {
	rows, err := l.db.Query(
		`SELECT id, slot_id, kind, detail, at FROM events WHERE slot_id = ? ORDER BY id ASC`,
		slotID,
	)
	if err != nil {
		return nil, fmt.Errorf("ledger: query events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// Recent returns the most recently recorded events, newest first,
// capped at limit.
func (l *Ledger) Recent(limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := l.db.Query(
		`SELECT id, slot_id, kind, detail, at FROM events ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("ledger: query recent events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.SlotID, &e.Kind, &e.Detail, &e.At); err != nil {
			return nil, fmt.Errorf("ledger: scan event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: iterate events: %w", err)
	}
	return events, nil
}

var errEmptySlotID = errors.New("ledger: slot id is required")
