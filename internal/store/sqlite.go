package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Ashfaaq98/reconpipe/internal/event"
)

// Store persists the pipeline's event DAG in SQLite. The dedup ledgers and
// fetch caches stay in memory; only findings and their provenance links are
// written here.
type Store struct {
	db *sql.DB
}

// NewStore opens (and if needed creates) the database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			data TEXT NOT NULL,
			module TEXT NOT NULL,
			parent_id TEXT,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_type ON events(type)`,
		`CREATE INDEX IF NOT EXISTS idx_events_parent ON events(parent_id)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// SaveEvent inserts one event. Replaying an already-stored event is a
// no-op rather than an error.
func (s *Store) SaveEvent(ctx context.Context, ev *event.Event) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO events (id, type, data, module, parent_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		ev.ID, string(ev.Type), ev.Data, ev.Module, ev.ParentID, ev.Timestamp.Unix())
	if err != nil {
		return fmt.Errorf("failed to save event %s: %w", ev.ID, err)
	}
	return nil
}

// EventByID fetches a single event, or nil when absent.
func (s *Store) EventByID(ctx context.Context, id string) (*event.Event, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, type, data, module, parent_id, created_at FROM events WHERE id = ?`, id)
	ev, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return ev, err
}

// EventsByType returns all stored events of one type, oldest first.
func (s *Store) EventsByType(ctx context.Context, t event.Type) ([]*event.Event, error) {
	return s.queryEvents(ctx,
		`SELECT id, type, data, module, parent_id, created_at FROM events
		 WHERE type = ? ORDER BY created_at`, string(t))
}

// Children returns the events derived from the given event.
func (s *Store) Children(ctx context.Context, parentID string) ([]*event.Event, error) {
	return s.queryEvents(ctx,
		`SELECT id, type, data, module, parent_id, created_at FROM events
		 WHERE parent_id = ? ORDER BY created_at`, parentID)
}

// CountEvents returns the number of stored events.
func (s *Store) CountEvents(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n)
	return n, err
}

func (s *Store) queryEvents(ctx context.Context, query string, args ...interface{}) ([]*event.Event, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []*event.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row scanner) (*event.Event, error) {
	var ev event.Event
	var t string
	var parentID sql.NullString
	var createdAt int64
	if err := row.Scan(&ev.ID, &t, &ev.Data, &ev.Module, &parentID, &createdAt); err != nil {
		return nil, err
	}
	ev.Type = event.Type(t)
	ev.ParentID = parentID.String
	ev.Timestamp = time.Unix(createdAt, 0).UTC()
	return &ev, nil
}
