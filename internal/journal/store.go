package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"

	"capstan/internal/api"
)

// Store records received events in a local SQLite journal. A file lock
// prevents two processes from appending to the same journal concurrently.
type Store struct {
	db   *sql.DB
	path string
	lock *flock.Flock
}

// Entry is one journaled event with its assigned sequence number.
type Entry struct {
	Seq        int64
	Event      api.Event
	ReceivedAt time.Time
}

// Open initializes or connects to the journal database at path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("journal: path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("journal: create directory: %w", err)
	}

	lock := flock.New(path + ".lock")
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("journal: acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("journal: %s is in use by another process", path)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("journal: open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			_ = lock.Unlock()
			return nil, fmt.Errorf("journal: apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path, lock: lock}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, err
	}
	return store, nil
}

// Append records one event and returns its sequence number.
func (s *Store) Append(ctx context.Context, event api.Event) (int64, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO events (type, payload, timestamp, correlation_id, received_at)
		 VALUES (?, ?, ?, ?, ?)`,
		event.Type,
		string(event.Payload),
		event.Timestamp.UTC().Format(time.RFC3339Nano),
		event.CorrelationID,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("journal: append: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("journal: last insert id: %w", err)
	}
	return seq, nil
}

// List returns journaled entries in sequence order. An empty eventType
// matches everything; limit <= 0 means no limit.
func (s *Store) List(ctx context.Context, eventType string, limit int) ([]Entry, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	query := "SELECT seq, type, payload, timestamp, correlation_id, received_at FROM events"
	var args []any
	if eventType != "" {
		query += " WHERE type = ?"
		args = append(args, eventType)
	}
	query += " ORDER BY seq"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("journal: list: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		var payload, timestamp, receivedAt string
		if err := rows.Scan(&entry.Seq, &entry.Event.Type, &payload, &timestamp, &entry.Event.CorrelationID, &receivedAt); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		entry.Event.Payload = []byte(payload)
		if ts, err := time.Parse(time.RFC3339Nano, timestamp); err == nil {
			entry.Event.Timestamp = ts
		}
		if ts, err := time.Parse(time.RFC3339Nano, receivedAt); err == nil {
			entry.ReceivedAt = ts
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: iterate: %w", err)
	}
	return entries, nil
}

// Count returns the number of journaled events.
func (s *Store) Count(ctx context.Context) (int64, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var count int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM events").Scan(&count); err != nil {
		return 0, fmt.Errorf("journal: count: %w", err)
	}
	return count, nil
}

// Path returns the journal database location.
func (s *Store) Path() string {
	return s.path
}

// Close releases the database and the file lock.
func (s *Store) Close() error {
	err := s.db.Close()
	if unlockErr := s.lock.Unlock(); err == nil {
		err = unlockErr
	}
	return err
}
