// Package gateway orchestrates the forgebot event-coordination core.
//
// # Overview
//
// The gateway package owns component construction and lifecycle: the
// SQLite store, shared state, message-history cache, shard readiness
// aggregator, blocklist guard, confirmation coordinator, command chain,
// and the event dispatcher that ties them together.
//
// # Event Flow
//
// A transport binding feeds events through Submit (or the Dispatcher
// directly). Each event runs on its own goroutine because confirmation
// sessions block for their collection window:
//
//	gw, err := gateway.New(cfg, deps, logger)
//	gw.Submit(ctx, events.ShardReady{ShardIndex: 0, GroupCount: 42})
//	gw.Submit(ctx, events.MessageCreated{Message: msg})
//
// # HTTP API
//
//   - GET /health - liveness check
//   - GET /health/ready - readiness; 200 once every shard has reported
//   - GET /api/stats/commands - per-command execution totals
//
// # Lifecycle
//
// Run blocks until the context is canceled, then shuts down the HTTP
// server, stops the stats cron, and closes the store:
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT)
//	defer cancel()
//	err := gw.Run(ctx)
package gateway
