// ABOUTME: Entry point for the forgebot gateway core
// ABOUTME: Coordinates shard events, confirmation sessions, and the command chain

package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/forgebot/gateway/internal/compile"
	"github.com/forgebot/gateway/internal/config"
	"github.com/forgebot/gateway/internal/gateway"
	"github.com/forgebot/gateway/internal/platform"
	"github.com/forgebot/gateway/internal/render"
	"github.com/forgebot/gateway/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
  __                        _           _
 / _| ___  _ __ __ _  ___  | |__   ___ | |_
| |_ / _ \| '__/ _' |/ _ \ | '_ \ / _ \| __|
|  _| (_) | | | (_| |  __/ | |_) | (_) | |_
|_|  \___/|_|  \__, |\___| |_.__/ \___/ \__|
               |___/
`

// getConfigPath returns the path to the forgebot config file.
// Priority: FORGEBOT_CONFIG env var > XDG_CONFIG_HOME/forgebot/forgebot.yaml > ~/.config/forgebot/forgebot.yaml
func getConfigPath() string {
	if envPath := os.Getenv("FORGEBOT_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "forgebot.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "forgebot", "forgebot.yaml")
}

// getDataPath returns the path to the forgebot data directory.
// Priority: XDG_DATA_HOME/forgebot > ~/.local/share/forgebot
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "forgebot")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: forgebot <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve         Start the gateway core")
		fmt.Println("  init          Create a new config file interactively")
		fmt.Println("  health        Check gateway health")
		fmt.Println("  block ID      Add a user or group to the blocklist")
		fmt.Println("  unblock ID    Remove a user or group from the blocklist")
		fmt.Println("  blocked       List blocklist entries")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "health":
		err = runHealth(ctx)
	case "block":
		err = runBlock(ctx, true)
	case "unblock":
		err = runBlock(ctx, false)
	case "blocked":
		err = runBlocked(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)

	// Startup info
	green := color.New(color.FgGreen)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Shards:    %d\n", cfg.Shards.Expected)
	if cfg.Compiler.Endpoint != "" {
		green.Print("    ▶ ")
		fmt.Printf("Compiler:  %s\n", cfg.Compiler.Endpoint)
	}
	if cfg.Stats.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Stats:     %s (%s)\n", cfg.Stats.Endpoint, cfg.Stats.Schedule)
	}

	fmt.Println()

	logger.Info("starting forgebot",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"shards", cfg.Shards.Expected,
	)

	// Platform bindings link against the gateway package and supply their
	// own messenger; the standalone binary logs outbound traffic.
	deps := gateway.Deps{
		Messenger: &logMessenger{logger: logger.With("component", "messenger")},
		Renderer:  render.New(),
		Executor:  compile.NewExecutor(cfg.Compiler.Endpoint),
		Resolver:  compile.NewResolver(cfg.Compiler.Languages),
	}

	gw, err := gateway.New(cfg, deps, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	// Format timestamp
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	// Colorize level
	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	// Print message
	buf.WriteString(r.Message)

	// Print handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	// Print record attrs
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

// logMessenger logs outbound platform traffic instead of sending it. It
// backs the standalone binary; embedded deployments supply a real one.
type logMessenger struct {
	mu     sync.Mutex
	nextID uint64
	logger *slog.Logger
}

func (m *logMessenger) Send(_ context.Context, channelID uint64, payload platform.Payload) (platform.Message, error) {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.mu.Unlock()

	m.logger.Info("send", "channel_id", channelID, "title", payload.Title, "description", payload.Description)
	return platform.Message{ID: id, ChannelID: channelID, Content: payload.Description, SentAt: time.Now()}, nil
}

func (m *logMessenger) Delete(_ context.Context, channelID, messageID uint64) error {
	m.logger.Info("delete", "channel_id", channelID, "message_id", messageID)
	return nil
}

func (m *logMessenger) Edit(_ context.Context, channelID, messageID uint64, payload platform.Payload) error {
	m.logger.Info("edit", "channel_id", channelID, "message_id", messageID, "title", payload.Title)
	return nil
}

func (m *logMessenger) React(_ context.Context, channelID, messageID uint64, reaction platform.Reaction) error {
	m.logger.Info("react", "channel_id", channelID, "message_id", messageID, "emoji", reaction.Name)
	return nil
}

func (m *logMessenger) ClearReactions(_ context.Context, channelID, messageID uint64) error {
	m.logger.Info("clear reactions", "channel_id", channelID, "message_id", messageID)
	return nil
}

func (m *logMessenger) UpdatePresence(_ context.Context, groupCount uint64) error {
	m.logger.Info("presence", "groups", groupCount)
	return nil
}

func runHealth(ctx context.Context) error {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Make HTTP request to health endpoint with context
	url := fmt.Sprintf("http://%s/health", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

// openStore loads config and opens the SQLite store for admin commands.
func openStore() (*store.SQLiteStore, error) {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return s, nil
}

func runBlock(ctx context.Context, block bool) error {
	if len(os.Args) < 3 {
		return fmt.Errorf("an id argument is required")
	}
	id, err := strconv.ParseUint(os.Args[2], 10, 64)
	if err != nil {
		return fmt.Errorf("parsing id %q: %w", os.Args[2], err)
	}
	if id == 0 {
		return fmt.Errorf("id 0 is reserved and cannot be blocked")
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	if block {
		if err := s.AddBlocked(ctx, id); err != nil {
			return fmt.Errorf("adding blocklist entry: %w", err)
		}
		fmt.Printf("blocked %d\n", id)
		return nil
	}

	if err := s.RemoveBlocked(ctx, id); err != nil {
		return fmt.Errorf("removing blocklist entry: %w", err)
	}
	fmt.Printf("unblocked %d\n", id)
	return nil
}

func runBlocked(ctx context.Context) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	entries, err := s.ListBlocked(ctx)
	if err != nil {
		return fmt.Errorf("listing blocklist: %w", err)
	}

	if len(entries) == 0 {
		fmt.Println("blocklist is empty")
		return nil
	}
	for _, id := range entries {
		fmt.Println(id)
	}
	return nil
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("forgebot configuration setup")
	fmt.Println("============================")
	fmt.Println()

	// Default paths
	defaultConfigPath := getConfigPath()
	defaultDataPath := getDataPath()
	defaultDbPath := filepath.Join(defaultDataPath, "forgebot.db")

	// Output filename
	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	// Check if file exists
	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	// Server configuration
	fmt.Println("\n--- Server Configuration ---")
	httpAddr := prompt(reader, "HTTP address", "localhost:8080")
	shardCount := prompt(reader, "Expected shard count", "1")

	// Database
	fmt.Println("\n--- Database Configuration ---")
	dbPath := prompt(reader, "SQLite database path", defaultDbPath)

	// Compiler
	fmt.Println("\n--- Compiler Configuration ---")
	compilerEndpoint := prompt(reader, "Compile service endpoint (leave empty to disable)", "")

	// Stats
	fmt.Println("\n--- Stats Configuration ---")
	enableStats := prompt(reader, "Publish counts to a bot list?", "no")
	statsEnabled := strings.ToLower(enableStats) == "yes" || strings.ToLower(enableStats) == "y"

	var statsEndpoint, statsToken string
	if statsEnabled {
		statsEndpoint = prompt(reader, "Stats endpoint", "")
		statsToken = prompt(reader, "Stats token", "")
	}

	// Logging
	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	// Generate config
	var cfg strings.Builder
	cfg.WriteString("# forgebot configuration\n")
	cfg.WriteString("# Generated by forgebot init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: \"%s\"\n", httpAddr))
	cfg.WriteString("\n")

	cfg.WriteString("shards:\n")
	cfg.WriteString(fmt.Sprintf("  expected: %s\n", shardCount))
	cfg.WriteString("\n")

	cfg.WriteString("database:\n")
	cfg.WriteString(fmt.Sprintf("  path: \"%s\"\n", dbPath))
	cfg.WriteString("\n")

	cfg.WriteString("confirm:\n")
	cfg.WriteString("  window: \"30s\"\n")
	cfg.WriteString("\n")

	if compilerEndpoint != "" {
		cfg.WriteString("compiler:\n")
		cfg.WriteString(fmt.Sprintf("  endpoint: \"%s\"\n", compilerEndpoint))
		cfg.WriteString("\n")
	}

	cfg.WriteString("stats:\n")
	cfg.WriteString(fmt.Sprintf("  enabled: %t\n", statsEnabled))
	if statsEnabled {
		cfg.WriteString(fmt.Sprintf("  endpoint: \"%s\"\n", statsEndpoint))
		cfg.WriteString(fmt.Sprintf("  token: \"%s\"\n", statsToken))
		cfg.WriteString("  schedule: \"@every 30m\"\n")
	}
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: \"%s\"\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: \"%s\"\n", logFormat))

	// Ensure config directory exists
	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// Write config file
	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	// Ensure data directory exists
	dataDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Printf("Data directory: %s\n", dataDir)
	fmt.Println("\nTo start the server:")
	fmt.Printf("  forgebot serve\n")

	return nil
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
