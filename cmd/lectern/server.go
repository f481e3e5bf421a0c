package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/avoskov/lectern/internal/api"
	"github.com/avoskov/lectern/internal/config"
	"github.com/avoskov/lectern/internal/docs"
	"github.com/avoskov/lectern/internal/engine"
	"github.com/avoskov/lectern/internal/index"
	"github.com/avoskov/lectern/internal/orchestrator"
	"github.com/avoskov/lectern/internal/session"
	"github.com/avoskov/lectern/internal/storage"
	"github.com/avoskov/lectern/internal/tools"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the lectern server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "lectern version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Detect and check local inference engine readiness.
	eng, err := engine.Detect(engine.DetectConfig{OllamaBaseURL: cfg.Ollama.BaseURL})
	if err != nil {
		return fmt.Errorf("detecting inference engine: %w", err)
	}
	if err := engine.EnsureReady(ctx, eng, cfg.Ollama.ChatModel, cfg.Ollama.EmbedModel, os.Stderr); err != nil {
		return err
	}

	// Open storage.
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	// Build the index and load the docs folder.
	embedder := index.NewEmbedder(eng, cfg.Ollama.EmbedModel)
	ix := index.New(store.DB(), embedder, cfg.Retrieval.TopK)

	processor := docs.NewProcessor(cfg.Chunking.Size, cfg.Chunking.Overlap)
	loader := docs.NewLoader(ix, processor)
	courses, chunks, err := loader.LoadFolder(ctx, cfg.Storage.DocsDir)
	if err != nil {
		return fmt.Errorf("loading docs folder: %w", err)
	}
	if courses > 0 {
		slog.Info("docs folder loaded", "courses_added", courses, "chunks_added", chunks)
	}

	// Wire tools, sessions, and the orchestrator.
	registry := tools.NewRegistry()
	registry.Register(tools.NewSearchTool(ix))
	registry.Register(tools.NewOutlineTool(ix))

	sessions := session.NewStore(cfg.Session.MaxHistory)
	orch := orchestrator.New(eng, cfg.Ollama.ChatModel, registry, sessions)

	// Build HTTP handler and server.
	handler := api.NewHandler(api.Deps{
		Answerer: orch,
		Sessions: sessions,
		Catalog:  ix,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// Build and start MCP server (stdio transport in a goroutine).
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Tools:   registry,
		Version: version,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "lectern listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
