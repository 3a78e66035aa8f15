// Package store provides persistent storage for forgebot using SQLite.
//
// # Schema
//
//   - blocklist: blocked user/group ids, one row per subject
//   - command_metrics: one row per command execution with outcome
//   - request_counter: single-row global request count
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//
// Use NewSQLiteStore(":memory:") for tests.
//
// All methods accept context.Context for cancellation support. The
// blocklist methods back the blocklist.Guard; the metric methods back
// the stats.Tracker.
package store
