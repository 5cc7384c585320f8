// Command api is the Burrito League API server.
//
// Usage:
//
//	burrito-api
//	API_PORT=8080 burrito-api

// @title Burrito League API
// @version 1.0.0
// @description Strava local-legend leaderboards for Burrito League chapters. Cron endpoints poll Strava and geocode new cities; dashboard endpoints serve chapter cards, global stats and map coordinates.
// @host localhost:8000
// @BasePath /
// @schemes http https
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/albapepper/burrito-league/internal/api"
	"github.com/albapepper/burrito-league/internal/api/handler"
	"github.com/albapepper/burrito-league/internal/cache"
	"github.com/albapepper/burrito-league/internal/config"
	"github.com/albapepper/burrito-league/internal/dashboard"
	"github.com/albapepper/burrito-league/internal/db"
	"github.com/albapepper/burrito-league/internal/geocode"
	"github.com/albapepper/burrito-league/internal/listener"
	"github.com/albapepper/burrito-league/internal/maintenance"
	"github.com/albapepper/burrito-league/internal/poll"
	"github.com/albapepper/burrito-league/internal/provider/strava"
	"github.com/albapepper/burrito-league/internal/segments"
	"github.com/albapepper/burrito-league/internal/sentry"
	"github.com/albapepper/burrito-league/internal/sheet"
	"github.com/albapepper/burrito-league/internal/store"

	_ "github.com/albapepper/burrito-league/docs" // swagger docs
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// Load .env if present
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if cfg.Debug {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
		slog.SetDefault(logger)
	}

	if err := sentry.Init(sentry.Config{
		DSN:         cfg.SentryDSN,
		Environment: cfg.Environment,
		ServerName:  "burrito-api",
	}, logger); err != nil {
		logger.Warn("Sentry initialization failed", "error", err)
	}
	defer sentry.Flush(2 * time.Second)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info("Connecting to database...")
	pool, err := db.New(ctx, cfg)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("Database connected",
		"min_conns", cfg.DBPoolMinConns,
		"max_conns", cfg.DBPoolMaxConns)

	st := store.New(pool.Pool)

	resolver, err := segments.NewResolver(cfg.SegmentTablesFile, logger)
	if err != nil {
		logger.Error("Failed to load segment tables", "error", err)
		os.Exit(1)
	}
	go func() {
		if err := resolver.Watch(ctx); err != nil {
			logger.Warn("Segment tables watcher stopped", "error", err)
		}
	}()

	sheetClient := sheet.NewClient(cfg.SheetCSVURL, logger)
	fetcher := strava.FromConfig(ctx, cfg, logger)
	orchestrator := poll.New(sheetClient, resolver, fetcher, st, logger)
	prePoller := geocode.NewPrePoller(sheetClient, resolver,
		geocode.NewClient(cfg.NominatimBaseURL, cfg.GeocodeUserAgent, logger), st, logger)

	dash, err := dashboard.NewService(st, sheetClient, resolver, logger)
	if err != nil {
		logger.Error("Failed to load fallback dashboard", "error", err)
		os.Exit(1)
	}

	appCache := cache.New(cfg.CacheEnabled)
	defer appCache.Close()
	logger.Info("Cache initialized", "enabled", cfg.CacheEnabled)

	h := handler.New(handler.Deps{
		Config:    cfg,
		Cache:     appCache,
		Store:     st,
		Health:    pool,
		Dashboard: dash,
		Poller:    orchestrator,
		PrePoller: prePoller,
		Fetcher:   fetcher,
		Logger:    logger,
	})

	// LISTEN/NOTIFY consumer: runs finished elsewhere invalidate this cache.
	go listener.Start(ctx, cfg.DatabaseURL, h, logger)

	go maintenance.Start(ctx, maintenance.Config{
		PollInterval:    cfg.PollInterval,
		GeocodeInterval: cfg.GeocodeInterval,
		Timeout:         cfg.PollTimeout,
	}, orchestrator, prePoller, logger)

	if cfg.BootstrapOnStart {
		go bootstrap(ctx, cfg, orchestrator, h, logger)
	}

	router := api.NewRouter(h, cfg)

	addr := fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort)
	srv := &http.Server{
		Addr:        addr,
		Handler:     router,
		ReadTimeout: 10 * time.Second,
		// The poll endpoint holds the connection for a whole run.
		WriteTimeout: cfg.PollTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Starting Burrito League API",
			"addr", addr,
			"environment", cfg.Environment,
			"docs", fmt.Sprintf("http://localhost:%d/docs/", cfg.APIPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", "error", err)
	}
	logger.Info("Server stopped")
}

// bootstrap runs a first poll when the database has none, so a fresh
// deployment serves real data without waiting for the scheduler.
func bootstrap(ctx context.Context, cfg *config.Config, o *poll.Orchestrator, h *handler.Handler, logger *slog.Logger) {
	defer sentry.RecoverAndCapture(logger)

	ctx, cancel := context.WithTimeout(ctx, cfg.PollTimeout)
	defer cancel()

	ran, err := o.BootstrapIfEmpty(ctx)
	if err != nil {
		logger.Error("Bootstrap poll failed", "error", err)
		sentry.CaptureException(err, map[string]string{"op": "bootstrap"}, logger)
		return
	}
	if ran {
		h.InvalidateDashboard()
	}
}
