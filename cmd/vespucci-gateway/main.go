// ABOUTME: Entry point for the vespucci-gateway server
// ABOUTME: Forwards user queries to the hosted LLM with MCP tool support

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/vespucci-ai/vespucci-gateway/internal/config"
	"github.com/vespucci-ai/vespucci-gateway/internal/gateway"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                                             _
__   _____  ___ _ __  _   _  ___ ___ - ----| |
\ \ / / _ \/ __| '_ \| | | |/ __/ __| |____| |
 \ V /  __/\__ \ |_) | |_| | (_| (__| |____|_|
  \_/ \___||___/ .__/ \__,_|\___\___|_|    (_)
               |_|
`

// getConfigPath returns the path to the gateway config file.
// Priority: VESPUCCI_CONFIG env var > XDG_CONFIG_HOME/vespucci/gateway.yaml > ~/.config/vespucci/gateway.yaml
func getConfigPath() string {
	if envPath := os.Getenv("VESPUCCI_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "vespucci", "gateway.yaml")
}

// gatewayURL returns the base URL used by the health and tools subcommands.
func gatewayURL() string {
	if url := os.Getenv("VESPUCCI_GATEWAY_URL"); url != "" {
		return strings.TrimSuffix(url, "/")
	}
	return "http://localhost:8000"
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: vespucci-gateway <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve     Start the gateway server")
		fmt.Println("  health    Check gateway health")
		fmt.Println("  tools     List available MCP tools")
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
	case "tools":
		err = runTools(ctx)
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
	fmt.Printf("Config:  %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:    %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Model:   %s\n", cfg.LLM.Model)
	green.Print("    ▶ ")
	fmt.Printf("MCP:     %s %s\n", cfg.MCP.Command, strings.Join(cfg.MCP.Args, " "))

	fmt.Println()

	logger.Info("starting vespucci-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"model", cfg.LLM.Model,
	)

	// Create and run gateway
	gw, err := gateway.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

func runHealth(ctx context.Context) error {
	url := gatewayURL() + "/healthz"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("gateway unreachable at %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}

	var health struct {
		Status string `json:"status"`
		Tools  int    `json:"tools"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Print("● ")
	fmt.Printf("gateway healthy (%d tools available)\n", health.Tools)
	return nil
}

func runTools(ctx context.Context) error {
	url := gatewayURL() + "/api/tools"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("gateway unreachable at %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}

	var toolList struct {
		Tools []struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		} `json:"tools"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&toolList); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	if len(toolList.Tools) == 0 {
		fmt.Println("No tools available")
		return nil
	}

	bold := color.New(color.Bold)
	for _, tool := range toolList.Tools {
		bold.Printf("%s\n", tool.Name)
		fmt.Printf("    %s\n", tool.Description)
	}
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
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
