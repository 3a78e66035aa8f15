// ABOUTME: SQLite persistence for blocklist entries and command metrics using modernc.org/sqlite
// ABOUTME: Provides automatic schema creation and WAL mode for concurrent access

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists blocklist membership and command metrics.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS blocklist (
			subject_id INTEGER PRIMARY KEY
		);

		CREATE TABLE IF NOT EXISTS command_metrics (
			id TEXT PRIMARY KEY,
			command TEXT NOT NULL,
			group_id INTEGER NOT NULL,
			succeeded INTEGER NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_command_metrics_command
			ON command_metrics(command);

		CREATE TABLE IF NOT EXISTS request_counter (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			count INTEGER NOT NULL
		);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// AddBlocked inserts a subject into the blocklist. Inserting an existing
// subject is idempotent.
func (s *SQLiteStore) AddBlocked(ctx context.Context, subjectID uint64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO blocklist (subject_id) VALUES (?)`, int64(subjectID))
	if err != nil {
		return fmt.Errorf("inserting blocklist entry: %w", err)
	}
	return nil
}

// RemoveBlocked deletes a subject from the blocklist.
func (s *SQLiteStore) RemoveBlocked(ctx context.Context, subjectID uint64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM blocklist WHERE subject_id = ?`, int64(subjectID))
	if err != nil {
		return fmt.Errorf("deleting blocklist entry: %w", err)
	}
	return nil
}

// ListBlocked returns all blocked subject ids.
func (s *SQLiteStore) ListBlocked(ctx context.Context) ([]uint64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT subject_id FROM blocklist`)
	if err != nil {
		return nil, fmt.Errorf("querying blocklist: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []uint64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning blocklist row: %w", err)
		}
		ids = append(ids, uint64(id))
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating blocklist rows: %w", err)
	}
	return ids, nil
}
