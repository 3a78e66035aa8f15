// ABOUTME: SQLite implementation for command and request metric recording
// ABOUTME: Stores per-command execution rows and the global request counter

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CommandMetric is one recorded command execution.
type CommandMetric struct {
	ID        string
	Command   string
	GroupID   uint64
	Succeeded bool
	CreatedAt time.Time
}

// CommandStats aggregates executions for a single command name.
type CommandStats struct {
	Command   string
	Total     int64
	Succeeded int64
}

// RecordCommand stores a command execution row.
func (s *SQLiteStore) RecordCommand(ctx context.Context, command string, groupID uint64, succeeded bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO command_metrics (id, command, group_id, succeeded, created_at)
		VALUES (?, ?, ?, ?, ?)
	`,
		uuid.New().String(),
		command,
		int64(groupID),
		succeeded,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting command metric: %w", err)
	}

	s.logger.Debug("recorded command metric",
		"command", command,
		"group_id", groupID,
		"succeeded", succeeded,
	)
	return nil
}

// RecordRequest increments the global request counter.
func (s *SQLiteStore) RecordRequest(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO request_counter (id, count) VALUES (1, 1)
		ON CONFLICT(id) DO UPDATE SET count = count + 1
	`)
	if err != nil {
		return fmt.Errorf("incrementing request counter: %w", err)
	}
	return nil
}

// RequestCount returns the total number of recorded requests.
func (s *SQLiteStore) RequestCount(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT count FROM request_counter WHERE id = 1`).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("querying request counter: %w", err)
	}
	return count, nil
}

// GetCommandStats returns aggregated execution counts per command name.
func (s *SQLiteStore) GetCommandStats(ctx context.Context) ([]*CommandStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT command,
		       COUNT(*) as total,
		       COALESCE(SUM(succeeded), 0) as succeeded
		FROM command_metrics
		GROUP BY command
		ORDER BY total DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying command stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var stats []*CommandStats
	for rows.Next() {
		var cs CommandStats
		if err := rows.Scan(&cs.Command, &cs.Total, &cs.Succeeded); err != nil {
			return nil, fmt.Errorf("scanning command stats row: %w", err)
		}
		stats = append(stats, &cs)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating command stats rows: %w", err)
	}
	return stats, nil
}
