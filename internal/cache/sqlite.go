package cache

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sawmapp/claspsync/internal/message"
)

// SQLite is the Store implementation backed by a per-device SQLite file.
type SQLite struct {
	db *sql.DB
}

// Open opens or creates the message cache under dir.
func Open(dir string) (*SQLite, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return open(filepath.Join(dir, "messages.db"))
}

// OpenMemory opens a throwaway in-memory cache.
func OpenMemory() (*SQLite, error) {
	return open(":memory:")
}

func open(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	// One connection: keeps :memory: databases coherent and serializes
	// writers the way a local cache needs anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure cache: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS messages (
			id        TEXT PRIMARY KEY,
			room      TEXT NOT NULL,
			client_id TEXT NOT NULL DEFAULT '',
			sender    TEXT NOT NULL DEFAULT '',
			content   TEXT NOT NULL DEFAULT '',
			timestamp INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS messages_room_ts ON messages (room, timestamp);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create messages table: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (s *SQLite) Put(ctx context.Context, room string, msg message.Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO messages (id, room, client_id, sender, content, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`, msg.ID, room, msg.ClientID, msg.Sender, msg.Content, msg.Timestamp)
	if err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

// QueryByRoom returns up to limit of the newest messages for room, in
// ascending timestamp order.
func (s *SQLite) QueryByRoom(ctx context.Context, room string, limit int) ([]message.Message, error) {
	if limit <= 0 {
		limit = DefaultQueryLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, client_id, sender, content, timestamp
		FROM messages
		WHERE room = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, room, limit)
	if err != nil {
		return nil, fmt.Errorf("cache query: %w", err)
	}
	defer rows.Close()

	var msgs []message.Message
	for rows.Next() {
		var msg message.Message
		if err := rows.Scan(&msg.ID, &msg.ClientID, &msg.Sender, &msg.Content, &msg.Timestamp); err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Selected newest-first for the LIMIT; flip to ascending for callers.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (s *SQLite) DeleteOlderThan(ctx context.Context, cutoff time.Time) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE timestamp < ?`, cutoff.UnixMilli())
	if err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
