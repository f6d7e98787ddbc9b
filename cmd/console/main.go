// Command console is the powerdata administrative console.
//
// Usage:
//
//	powerdata-console
//	CONSOLE_PORT=8080 powerdata-console
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"

	"github.com/albapepper/powerdata/internal/app"
	"github.com/albapepper/powerdata/internal/config"
	"github.com/albapepper/powerdata/internal/console"
	"github.com/albapepper/powerdata/internal/console/handler"
	"github.com/albapepper/powerdata/internal/fixture"
)

func main() {
	logger := app.NewLogger("info")
	slog.SetDefault(logger)

	// Load .env if present
	_ = godotenv.Load(".env")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger = app.NewLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	// Context with signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	logger.Info("Wiring components...", "store", cfg.StoreDriver, "ledger", cfg.LedgerBackend)
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to start", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	// Background scrape runner
	runner, err := handler.NewRunner(ctx, func(ctx context.Context, runID string, only []string, progress fixture.Progress) fixture.RunResult {
		return a.Scheduler.RunAll(ctx, runID, only, progress)
	}, logger)
	if err != nil {
		logger.Error("Failed to create scrape runner", "error", err)
		os.Exit(1)
	}

	router := console.NewRouter(handler.New(a.Store, a.Ledger, runner, logger), cfg.CORSAllowOrigins)

	addr := fmt.Sprintf("%s:%d", cfg.ConsoleHost, cfg.ConsolePort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	go func() {
		logger.Info("Starting powerdata console", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt
	<-ctx.Done()
	logger.Info("Shutting down...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", "error", err)
	}
	if err := runner.Close(30 * time.Second); err != nil {
		logger.Warn("Scrape runner did not stop cleanly", "error", err)
	}
	logger.Info("Server stopped")
}
