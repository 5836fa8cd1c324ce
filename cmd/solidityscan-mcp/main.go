// ABOUTME: Entry point for the SolidityScan MCP server
// ABOUTME: Wires config, store, scanning client, directory, and the HTTP front door

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"

	"github.com/credshields/solidityscan-mcp/internal/config"
	"github.com/credshields/solidityscan-mcp/internal/directory"
	"github.com/credshields/solidityscan-mcp/internal/mcp"
	"github.com/credshields/solidityscan-mcp/internal/scanner"
	"github.com/credshields/solidityscan-mcp/internal/server"
	"github.com/credshields/solidityscan-mcp/internal/session"
	"github.com/credshields/solidityscan-mcp/internal/store"
	"github.com/credshields/solidityscan-mcp/internal/tools"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
           _ _     _ _ _
  ___  ___ | (_) __| (_) |_ _   _ ___  ___ __ _ _ __        _ __ ___   ___ _ __
 / __|/ _ \| | |/ _' | | __| | | / __|/ __/ _' | '_ \ _____| '_ ' _ \ / __| '_ \
 \__ \ (_) | | | (_| | | |_| |_| \__ \ (_| (_| | | | |_____| | | | | | (__| |_) |
 |___/\___/|_|_|\__,_|_|\__|\__, |___/\___\__,_|_| |_|     |_| |_| |_|\___| .__/
                            |___/                                         |_|
`

// getConfigPath returns the path to the server config file.
// Priority: SOLIDITYSCAN_MCP_CONFIG env var > XDG_CONFIG_HOME/solidityscan/mcp.yaml > ~/.config/solidityscan/mcp.yaml
func getConfigPath() string {
	if envPath := os.Getenv("SOLIDITYSCAN_MCP_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "mcp.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "solidityscan", "mcp.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: solidityscan-mcp <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve      Start the MCP server")
		fmt.Println("  health     Check server health")
		fmt.Println("  version    Print the version")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "health":
		err = runHealth(ctx)
	case "version":
		fmt.Println(version)
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

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("API:       %s\n", cfg.API.BaseURL)
	if cfg.Server.DisableStreaming {
		yellow := color.New(color.FgYellow)
		yellow.Print("    ▶ ")
		fmt.Println("Streaming: disabled")
	}
	fmt.Println()

	logger.Info("starting solidityscan-mcp",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"version", version,
	)

	var historyStore store.Store
	if cfg.Database.Path != "" {
		s, err := store.NewSQLiteStore(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("opening scan history database: %w", err)
		}
		defer s.Close()
		historyStore = s
	}

	deps := &tools.Deps{
		Scanner:       scanner.New(cfg.API.BaseURL, cfg.API.Timeout, logger),
		Directory:     directory.New(cfg.Directory.URL, cfg.Directory.Timeout, logger),
		Store:         historyStore,
		Logger:        logger,
		DefaultAPIKey: cfg.API.Key,
	}
	toolSet := tools.All(deps)

	factory := func(sessionID string, creds mcp.CredentialSource) *mcp.Engine {
		return mcp.NewEngine(mcp.Config{
			Tools:       toolSet,
			Credentials: creds,
			Logger:      logger,
			Version:     version,
			SessionID:   sessionID,
		})
	}
	registry := session.NewRegistry(factory, logger)

	srv := server.New(server.Config{
		Addr:             cfg.Server.HTTPAddr,
		DisableStreaming: cfg.Server.DisableStreaming,
		EventLogSize:     cfg.Server.EventLogSize,
		KeepAlive:        cfg.Server.SSEKeepAlive,
		Dev:              cfg.Dev,
	}, registry, logger)

	return srv.Run(ctx)
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

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

	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

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

	buf.WriteString(r.Message)

	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

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
