// ABOUTME: Gateway wires config, store, LLM client, MCP client and HTTP server together
// ABOUTME: Owns startup, route registration, and graceful shutdown

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/vespucci-ai/vespucci-gateway/internal/config"
	"github.com/vespucci-ai/vespucci-gateway/internal/conversation"
	"github.com/vespucci-ai/vespucci-gateway/internal/llm"
	"github.com/vespucci-ai/vespucci-gateway/internal/mcp"
	"github.com/vespucci-ai/vespucci-gateway/internal/store"
)

// Gateway is the top-level server object.
// service and tools are interfaces so handler tests can substitute fakes.
type Gateway struct {
	config     *config.Config
	logger     *slog.Logger
	store      store.Store
	mcpClient  *mcp.Client
	service    queryProcessor
	tools      toolProvider
	httpServer *http.Server
}

// New creates a gateway: opens the store, spawns and connects the MCP tool
// server, builds the LLM client and the conversation service, and prepares
// the HTTP server. Call Run to start serving.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	sqlStore, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}

	mcpClient, err := mcp.Connect(ctx, cfg.MCP)
	if err != nil {
		sqlStore.Close()
		return nil, fmt.Errorf("connecting to MCP server: %w", err)
	}

	llmClient, err := llm.New(cfg.LLM)
	if err != nil {
		mcpClient.Close()
		sqlStore.Close()
		return nil, fmt.Errorf("creating LLM client: %w", err)
	}

	g := &Gateway{
		config:    cfg,
		logger:    logger.With("component", "gateway"),
		store:     sqlStore,
		mcpClient: mcpClient,
		service:   conversation.New(sqlStore, llmClient, mcpClient, cfg.LLM.MaxToolRounds, logger),
		tools:     mcpClient,
	}

	mux := http.NewServeMux()
	g.registerRoutes(mux)

	g.httpServer = &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: mux,
	}

	return g, nil
}

// registerRoutes wires the HTTP API onto the mux.
func (g *Gateway) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/query", g.handleQuery)
	mux.HandleFunc("/api/tools", g.handleTools)
	mux.HandleFunc("/api/conversations", g.handleListConversations)
	mux.HandleFunc("/api/conversations/", g.handleGetConversation)
	mux.HandleFunc("/healthz", g.handleHealth)

	// Legacy unprefixed routes kept for clients of the original API.
	mux.HandleFunc("/query", g.handleQuery)
	mux.HandleFunc("/tools", g.handleTools)
}

// Run starts the HTTP server and blocks until the context is cancelled or
// the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", g.httpServer.Addr)
		if err := g.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
			return
		}
		errCh <- nil
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("shutdown signal received")
	case serverErr = <-errCh:
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

// Shutdown stops the HTTP server, the MCP subprocess, and the store.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))
	errs = appendCloseError(errs, "MCP close", g.mcpClient.Close())
	errs = appendCloseError(errs, "store close", g.store.Close())

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// appendCloseError appends a labeled error to errs if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}
