package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"snapcal/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id         TEXT PRIMARY KEY,
	calendar   TEXT NOT NULL,
	title      TEXT NOT NULL,
	location   TEXT NOT NULL DEFAULT '',
	notes      TEXT NOT NULL DEFAULT '',
	start_at   TEXT NOT NULL,
	end_at     TEXT NOT NULL,
	all_day    INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_calendar_start ON events (calendar, start_at);
`

// SQLiteStore is a CalendarStore backed by a local SQLite database.
type SQLiteStore struct {
	db       *sql.DB
	migrated bool
}

// OpenSQLite opens (or creates) the database at dsn. The schema is applied
// on the first RequestAccess, not here, so opening never writes.
func OpenSQLite(dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		return nil, errors.New("sqlite: dsn is empty")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", dsn, err)
	}
	// modernc's driver is not safe for concurrent writers on one file.
	db.SetMaxOpenConns(1)
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// RequestAccess applies the schema and reports whether the store is
// writable. A false grant (or error) means no Write may follow.
func (s *SQLiteStore) RequestAccess(ctx context.Context) (bool, error) {
	if s.migrated {
		return true, nil
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return false, fmt.Errorf("sqlite: migrate: %w", err)
	}
	s.migrated = true
	return true, nil
}

// Write inserts one event row. Every write gets a fresh ID; there is no
// upsert, keeping each write independent and all-or-nothing.
func (s *SQLiteStore) Write(ctx context.Context, ev model.MaterializedEvent, calendar string) error {
	if !s.migrated {
		return errors.New("sqlite: RequestAccess has not granted")
	}

	allDay := 0
	if ev.AllDay {
		allDay = 1
	}

	const q = `
		INSERT INTO events (id, calendar, title, location, notes, start_at, end_at, all_day, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, q,
		uuid.NewString(),
		calendar,
		ev.Title,
		ev.Location,
		ev.Notes,
		ev.Start.Format(time.RFC3339),
		ev.End.Format(time.RFC3339),
		allDay,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert event %q: %w", ev.Title, err)
	}
	return nil
}

// StoredEvent is a read-back row, mainly for listing and verification.
type StoredEvent struct {
	ID       string
	Calendar string
	Title    string
	Location string
	Notes    string
	Start    time.Time
	End      time.Time
	AllDay   bool
}

// List returns all events in a calendar ordered by start time.
func (s *SQLiteStore) List(ctx context.Context, calendar string) ([]StoredEvent, error) {
	const q = `
		SELECT id, calendar, title, location, notes, start_at, end_at, all_day
		FROM events WHERE calendar = ? ORDER BY start_at, id
	`
	rows, err := s.db.QueryContext(ctx, q, calendar)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list events: %w", err)
	}
	defer rows.Close()

	var out []StoredEvent
	for rows.Next() {
		var ev StoredEvent
		var startAt, endAt string
		var allDay int
		if err := rows.Scan(&ev.ID, &ev.Calendar, &ev.Title, &ev.Location, &ev.Notes, &startAt, &endAt, &allDay); err != nil {
			return nil, fmt.Errorf("sqlite: scan event: %w", err)
		}
		if ev.Start, err = time.Parse(time.RFC3339, startAt); err != nil {
			return nil, fmt.Errorf("sqlite: bad start_at %q: %w", startAt, err)
		}
		if ev.End, err = time.Parse(time.RFC3339, endAt); err != nil {
			return nil, fmt.Errorf("sqlite: bad end_at %q: %w", endAt, err)
		}
		ev.AllDay = allDay != 0
		out = append(out, ev)
	}
	return out, rows.Err()
}
