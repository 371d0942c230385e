package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"skydeck/internal/aggregator"
	"skydeck/internal/auth"
	"skydeck/internal/cache"
	"skydeck/internal/connectors"
	"skydeck/internal/database"
	"skydeck/internal/endpoints"
	"skydeck/internal/overlay"
	"skydeck/internal/server"
	"skydeck/internal/store"

	"github.com/joho/godotenv"
)

func main() {
	// Load .env before anything reads the environment
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	// Initialize structured logging
	jsonHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(jsonHandler))

	// Get port from environment or use default
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	db, err := database.Connect()
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	if err := database.Migrate(db); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Response cache is optional; a dead Valkey only costs cache hits
	responseCache, err := cache.New(ctx)
	if err != nil {
		slog.Warn("Cache unavailable, continuing without it", "error", err)
		responseCache = nil
	}

	users := store.NewUserStore(db)
	accounts := store.NewAccountStore(db)
	metadata := store.NewMetadataStore(db)

	googleCfg := auth.GoogleOAuthConfig()
	dropboxCfg := auth.DropboxOAuthConfig()
	refresher := auth.NewRefresher(accounts, googleCfg, dropboxCfg)
	factory := connectors.NewFactory(refresher)
	overlaySvc := overlay.NewService(metadata, accounts, factory)

	deps := endpoints.Deps{
		Auth: endpoints.AuthDeps{
			Users:     users,
			Accounts:  accounts,
			Refresher: refresher,
			Google:    googleCfg,
			Dropbox:   dropboxCfg,
		},
		Files: endpoints.FileDeps{
			Accounts:   accounts,
			Aggregator: aggregator.New(factory),
			Factory:    factory,
			Overlay:    overlaySvc,
			Cache:      responseCache,
		},
		Metadata: endpoints.MetadataDeps{
			Overlay: overlaySvc,
		},
		Accounts:  accounts,
		Refresher: refresher,
	}

	// Create HTTP server
	srv := server.NewServer(port, deps)

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server failed to start", "error", err)
			cancel()
		}
	}()

	slog.Info("SkyDeck HTTP server started", "port", port)

	// Wait for shutdown signal
	select {
	case sig := <-sigChan:
		slog.Info("Received shutdown signal", "signal", sig)
	case <-ctx.Done():
		slog.Info("Context cancelled")
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	} else {
		slog.Info("Server exited gracefully")
	}
}
