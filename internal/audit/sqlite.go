// Package audit persists conversation snapshots for later inspection.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dyluth/parley/pkg/conversation"
	_ "modernc.org/sqlite"
)

// Sink receives conversation snapshots.
type Sink interface {
	WriteSnapshot(ctx context.Context, snap conversation.Snapshot) error
}

// Entry is a stored snapshot with its write time.
type Entry struct {
	Snapshot  conversation.Snapshot
	UpdatedAt time.Time
}

// SQLiteSink keeps the latest snapshot of each conversation in a SQLite table.
type SQLiteSink struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteSink opens (or creates) the database at path.
func NewSQLiteSink(path string) (*SQLiteSink, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create audit directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}
	// Single connection keeps ":memory:" databases alive and serializes writers
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping audit database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to exec %s: %w", p, err)
		}
	}

	s := &SQLiteSink{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate audit database: %w", err)
	}
	return s, nil
}

func (s *SQLiteSink) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS conversation_snapshots (
		conversation_id TEXT PRIMARY KEY,
		topic           TEXT NOT NULL,
		message_count   INTEGER NOT NULL,
		body            TEXT NOT NULL,
		updated_at      DATETIME NOT NULL
	)`)
	return err
}

// Close closes the database.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}

// WriteSnapshot upserts the snapshot row for its conversation.
func (s *SQLiteSink) WriteSnapshot(ctx context.Context, snap conversation.Snapshot) error {
	if snap.ConversationID == "" {
		return fmt.Errorf("snapshot conversation_id cannot be empty")
	}
	if snap.Messages == nil {
		snap.Messages = []conversation.Message{}
	}
	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversation_snapshots (conversation_id, topic, message_count, body, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(conversation_id) DO UPDATE SET
			topic = excluded.topic,
			message_count = excluded.message_count,
			body = excluded.body,
			updated_at = excluded.updated_at`,
		snap.ConversationID, snap.Topic, len(snap.Messages), string(body), s.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to write snapshot for %s: %w", snap.ConversationID, err)
	}
	return nil
}

// Snapshot returns the stored snapshot for id, or conversation.ErrNotFound.
func (s *SQLiteSink) Snapshot(ctx context.Context, id string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT body, updated_at FROM conversation_snapshots WHERE conversation_id = ?`, id)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("snapshot %s: %w", id, conversation.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Snapshots returns every stored snapshot, most recently updated first.
func (s *SQLiteSink) Snapshots(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT body, updated_at FROM conversation_snapshots ORDER BY updated_at DESC, conversation_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate snapshots: %w", err)
	}
	return entries, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*Entry, error) {
	var body string
	var updated time.Time
	if err := row.Scan(&body, &updated); err != nil {
		return nil, err
	}
	var snap conversation.Snapshot
	if err := json.Unmarshal([]byte(body), &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &Entry{Snapshot: snap, UpdatedAt: updated}, nil
}

var _ Sink = (*SQLiteSink)(nil)
