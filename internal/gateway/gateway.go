// ABOUTME: Gateway orchestrator that wires the store, caches, aggregator, and dispatcher
// ABOUTME: Manages the health HTTP server, stats cron, and graceful shutdown

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/forgebot/gateway/internal/blocklist"
	"github.com/forgebot/gateway/internal/command"
	"github.com/forgebot/gateway/internal/config"
	"github.com/forgebot/gateway/internal/confirm"
	"github.com/forgebot/gateway/internal/events"
	"github.com/forgebot/gateway/internal/msgcache"
	"github.com/forgebot/gateway/internal/platform"
	"github.com/forgebot/gateway/internal/shards"
	"github.com/forgebot/gateway/internal/state"
	"github.com/forgebot/gateway/internal/stats"
	"github.com/forgebot/gateway/internal/store"
)

// Deps are the platform-side collaborators a transport binding supplies.
// The core never implements these itself.
type Deps struct {
	Messenger platform.Messenger
	Renderer  platform.Renderer
	Executor  confirm.Executor
	Resolver  confirm.Resolver
}

// Gateway owns the event-coordination core: shared state, readiness
// barrier, history cache, confirmation sessions, command chain, and the
// dispatcher that ties them to inbound events.
type Gateway struct {
	config     *config.Config
	store      *store.SQLiteStore
	shared     *state.Store
	cache      *msgcache.Cache
	aggregator *shards.Aggregator
	tracker    *stats.Tracker
	guard      *blocklist.Guard
	chain      *command.Chain
	sessions   *confirm.Coordinator
	dispatcher *events.Dispatcher
	httpServer *http.Server
	cron       *cron.Cron
	logger     *slog.Logger

	// serverID identifies this gateway instance
	serverID string
}

// New creates a Gateway from configuration and transport collaborators.
func New(cfg *config.Config, deps Deps, logger *slog.Logger) (*Gateway, error) {
	if deps.Messenger == nil || deps.Renderer == nil {
		return nil, errors.New("gateway requires a messenger and a renderer")
	}
	if deps.Executor == nil || deps.Resolver == nil {
		return nil, errors.New("gateway requires an executor and a resolver")
	}

	sqlStore, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}

	shared := state.New()
	if cfg.Notices.JoinLogChannel != 0 {
		shared.SetUint64(state.KeyJoinLog, cfg.Notices.JoinLogChannel)
	}
	if cfg.Confirm.MarkerEmojiID != 0 {
		shared.SetUint64(state.KeyMarkerEmojiID, cfg.Confirm.MarkerEmojiID)
		shared.Set(state.KeyMarkerEmojiName, cfg.Confirm.MarkerEmojiName)
	}

	cache := msgcache.New(cfg.Cache.MaxSize)
	aggregator := shards.New(cfg.Shards.Expected)
	tracker := stats.NewTracker(sqlStore, true, logger)

	guard := blocklist.New(sqlStore)
	if err := guard.Load(context.Background()); err != nil {
		_ = sqlStore.Close()
		return nil, fmt.Errorf("loading blocklist: %w", err)
	}

	var publisher stats.Publisher
	if cfg.Stats.Enabled {
		publisher = stats.NewHTTPPublisher(cfg.Stats.Endpoint, cfg.Stats.Token)
	}

	sessions := confirm.New(confirm.Config{
		Messenger: deps.Messenger,
		Renderer:  deps.Renderer,
		Executor:  deps.Executor,
		Resolver:  deps.Resolver,
		Cache:     cache,
		Shared:    shared,
		Window:    cfg.Confirm.Window,
		Logger:    logger,
	})

	chain := command.NewDefault(command.Deps{
		Tracker:   tracker,
		Guard:     guard,
		Gate:      command.NewRateGate(cfg.Rate.PerSecond, cfg.Rate.Burst),
		Messenger: deps.Messenger,
		Renderer:  deps.Renderer,
		Cache:     cache,
		Logger:    logger,
	})

	dispatcher := events.New(events.Config{
		Aggregator: aggregator,
		Tracker:    tracker,
		Publisher:  publisher,
		Sessions:   sessions,
		Cache:      cache,
		Messenger:  deps.Messenger,
		Renderer:   deps.Renderer,
		Shared:     shared,
		Logger:     logger,
	})

	g := &Gateway{
		config:     cfg,
		store:      sqlStore,
		shared:     shared,
		cache:      cache,
		aggregator: aggregator,
		tracker:    tracker,
		guard:      guard,
		chain:      chain,
		sessions:   sessions,
		dispatcher: dispatcher,
		logger:     logger.With("component", "gateway"),
		serverID:   "forgebot-" + uuid.New().String()[:8],
	}

	if publisher != nil {
		g.cron = cron.New()
		if _, err := g.cron.AddFunc(cfg.Stats.Schedule, g.republishCounts); err != nil {
			_ = sqlStore.Close()
			return nil, fmt.Errorf("scheduling stats republication %q: %w", cfg.Stats.Schedule, err)
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", g.handleHealth)
	mux.HandleFunc("/health/ready", g.handleReady)
	mux.HandleFunc("/api/stats/commands", g.handleCommandStats)

	g.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return g, nil
}

// Submit routes one transport event on its own goroutine. Confirmation
// sessions block for their collection window, so events never share one.
func (g *Gateway) Submit(ctx context.Context, evt events.Event) {
	go g.dispatcher.Dispatch(ctx, evt)
}

// Dispatcher exposes the event dispatcher for transports that manage
// their own goroutines.
func (g *Gateway) Dispatcher() *events.Dispatcher {
	return g.dispatcher
}

// Chain exposes the command middleware chain for command frontends.
func (g *Gateway) Chain() *command.Chain {
	return g.chain
}

// Blocklist exposes the blocklist guard for admin surfaces.
func (g *Gateway) Blocklist() *blocklist.Guard {
	return g.guard
}

// ServerID returns this instance's identifier.
func (g *Gateway) ServerID() string {
	return g.serverID
}

// Run starts the health server and the stats cron and blocks until the
// context is canceled. Returns nil on graceful shutdown, or an error if
// the HTTP server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	if g.cron != nil {
		g.cron.Start()
		g.logger.Info("stats republication scheduled", "schedule", g.config.Stats.Schedule)
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String(), "server_id", g.serverID)
		if err := g.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// Shutdown stops the HTTP server and cron and releases the store.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	if err := g.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
	}

	if g.cron != nil {
		cronCtx := g.cron.Stop()
		select {
		case <-cronCtx.Done():
		case <-ctx.Done():
		}
	}

	if err := g.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store close: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// republishCounts is the cron body: bot-list endpoints expect a periodic
// refresh even when membership has not changed.
func (g *Gateway) republishCounts() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	g.dispatcher.PublishCounts(ctx)
}

// handleHealth returns 200 OK if the process is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK once every expected shard has reported.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	snap := g.aggregator.State()
	if !snap.AllReady {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = fmt.Fprintf(w, "waiting for shards (%d/%d ready)", snap.ReportsReceived, snap.ExpectedTotal)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d shards, %d groups)", snap.ReportsReceived, snap.CumulativeGroups)
}

// handleCommandStats returns per-command execution totals as JSON.
func (g *Gateway) handleCommandStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	commandStats, err := g.store.GetCommandStats(r.Context())
	if err != nil {
		g.logger.Error("failed to load command stats", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	type statRow struct {
		Command   string `json:"command"`
		Total     int64  `json:"total"`
		Succeeded int64  `json:"succeeded"`
	}
	rows := make([]statRow, 0, len(commandStats))
	for _, cs := range commandStats {
		rows = append(rows, statRow{Command: cs.Command, Total: cs.Total, Succeeded: cs.Succeeded})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(rows); err != nil {
		g.logger.Error("failed to encode command stats", "error", err)
	}
}
