// ABOUTME: Process-wide counters for groups, requests, and command executions.
// ABOUTME: Metric writes are best-effort; failures are logged and never retried.

package stats

import (
	"context"
	"log/slog"
	"sync"
)

// MetricsStore persists request and command counters.
// *store.SQLiteStore satisfies it.
type MetricsStore interface {
	RecordRequest(ctx context.Context) error
	RecordCommand(ctx context.Context, command string, groupID uint64, succeeded bool) error
}

// Tracker maintains the live group count and forwards metric events to the
// store when tracking is enabled. It is safe for concurrent use.
type Tracker struct {
	mu      sync.RWMutex
	servers uint64

	enabled bool
	metrics MetricsStore
	logger  *slog.Logger
}

// NewTracker creates a Tracker. Tracking is disabled when metrics is nil.
func NewTracker(metrics MetricsStore, enabled bool, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		enabled: enabled && metrics != nil,
		metrics: metrics,
		logger:  logger.With("component", "stats"),
	}
}

// Enabled reports whether metric tracking is on.
func (t *Tracker) Enabled() bool {
	return t.enabled
}

// SetBootCount initializes the live group count from the readiness
// barrier's cumulative sum.
func (t *Tracker) SetBootCount(groups uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.servers = groups
}

// GroupJoined increments the live group count and returns it.
func (t *Tracker) GroupJoined() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.servers++
	return t.servers
}

// GroupLeft decrements the live group count and returns it.
func (t *Tracker) GroupLeft() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.servers > 0 {
		t.servers--
	}
	return t.servers
}

// ServerCount returns the current live group count.
func (t *Tracker) ServerCount() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.servers
}

// PostRequest records one inbound command request. No-op when tracking is
// disabled; store failures are logged only.
func (t *Tracker) PostRequest(ctx context.Context) {
	if !t.enabled {
		return
	}
	if err := t.metrics.RecordRequest(ctx); err != nil {
		t.logger.Warn("failed to record request metric", "error", err)
	}
}

// CommandExecuted records one command execution tagged with its name and
// originating group.
func (t *Tracker) CommandExecuted(ctx context.Context, command string, groupID uint64, succeeded bool) {
	if !t.enabled {
		return
	}
	if err := t.metrics.RecordCommand(ctx, command, groupID, succeeded); err != nil {
		t.logger.Warn("failed to record command metric",
			"command", command,
			"error", err,
		)
	}
}
