// ABOUTME: Entry point for vespucci-discord bridge
// ABOUTME: Connects Discord channels to the research gateway API

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
)

const banner = `
    ╭────────────────────────────────────╮
    │                                    │
    │   ╻ ╻┏━╸┏━┓┏━┓╻ ╻┏━╸┏━╸╻           │
    │   ┃┏┛┣╸ ┗━┓┣━┛┃ ┃┃  ┃  ┃           │
    │   ┗┛ ┗━╸┗━┛╹  ┗━┛┗━╸┗━╸╹           │
    │                                    │
    │        vespucci-discord bridge     │
    │                                    │
    ╰────────────────────────────────────╯
`

// getConfigPath returns the path to the discord bridge config file.
// Priority: VESPUCCI_DISCORD_CONFIG env var > XDG_CONFIG_HOME/vespucci/discord-bridge.toml > ~/.config/vespucci/discord-bridge.toml
func getConfigPath() string {
	if envPath := os.Getenv("VESPUCCI_DISCORD_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "discord-bridge.toml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "vespucci", "discord-bridge.toml")
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	configPath := getConfigPath()

	// Load config
	cfg, err := Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config from %s: %w", configPath, err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging.Level)

	// Print startup info
	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:  %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Gateway: %s\n", cfg.Gateway.URL)
	if len(cfg.Bridge.AllowedChannels) > 0 {
		green.Print("    ▶ ")
		fmt.Printf("Channels: %d allowed\n", len(cfg.Bridge.AllowedChannels))
	}
	fmt.Println()

	// Create bridge
	bridge, err := NewBridge(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}

	// Setup graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Run bridge
	logger.Info("starting bridge")
	return bridge.Run(ctx)
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
