package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"strava-club-sync/internal/config"
	"strava-club-sync/internal/database"
	"strava-club-sync/internal/handlers"
	"strava-club-sync/internal/metrics"
	"strava-club-sync/internal/middleware"
	"strava-club-sync/internal/scheduler"
	"strava-club-sync/internal/strava"
	"strava-club-sync/internal/sync"
	"strava-club-sync/internal/trophy"
)

func main() {
	// Define CLI flags
	syncNow := flag.Bool("sync-now", false, "Run one activity sync cycle for all active users and exit")
	calcTrophies := flag.Bool("calc-trophies", false, "Run one trophy calculation and exit")

	flag.Parse()

	if *syncNow || *calcTrophies {
		runCLI(*syncNow, *calcTrophies)
		return
	}

	runServer()
}

func runCLI(syncNow, calcTrophies bool) {
	// Plain text logging for CLI use
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	db, err := openDatabase(cfg.DatabasePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx := context.Background()

	if syncNow {
		client := strava.NewClient(cfg.StravaClientID, cfg.StravaClientSecret, slog.Default())
		syncer := sync.NewSyncer(db, client)

		stats, err := syncer.SyncAll(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: Sync failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Synced %d/%d users, %d new activities\n",
			stats.Successful, stats.TotalUsers, stats.NewActivities)
		for _, e := range stats.Errors {
			fmt.Fprintf(os.Stderr, "  %s\n", e)
		}
		if stats.Failed > 0 {
			os.Exit(1)
		}
	}

	if calcTrophies {
		calculator := trophy.NewCalculator(db, cfg.TrophyEpoch)

		stats, err := calculator.Run(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: Trophy calculation failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Processed %d weeks (%d already awarded), %d trophies awarded\n",
			stats.WeeksProcessed, stats.WeeksSkipped, stats.TrophiesAwarded)
	}
}

func openDatabase(path string) (*database.DB, error) {
	db, err := database.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Init(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := db.VerifySchemaVersion(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func runServer() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Set up logger
	logLevel := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Starting strava-club-sync server",
		"host", cfg.Host,
		"port", cfg.Port,
		"database", cfg.DatabasePath,
		"sync_schedule", cfg.SyncSchedule,
		"trophy_schedule", cfg.TrophySchedule,
		"trophy_epoch", cfg.TrophyEpoch.Format("2006-01-02"),
		"log_level", cfg.LogLevel)

	db, err := openDatabase(cfg.DatabasePath)
	if err != nil {
		logger.Error("Failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	logger.Info("Database opened successfully")

	stravaClient := strava.NewClient(cfg.StravaClientID, cfg.StravaClientSecret, logger)
	syncer := sync.NewSyncer(db, stravaClient)
	calculator := trophy.NewCalculator(db, cfg.TrophyEpoch)

	// Schedule the background jobs
	sched := scheduler.New()
	if err := sched.AddJob(cfg.SyncSchedule, "activity-sync", func(ctx context.Context) {
		if _, err := syncer.SyncAll(ctx); err != nil {
			logger.Error("Scheduled sync failed", "error", err)
		}
	}); err != nil {
		logger.Error("Invalid sync schedule", "spec", cfg.SyncSchedule, "error", err)
		os.Exit(1)
	}
	if err := sched.AddJob(cfg.TrophySchedule, "trophy-calc", func(ctx context.Context) {
		if _, err := calculator.Run(ctx); err != nil {
			logger.Error("Scheduled trophy calculation failed", "error", err)
		}
	}); err != nil {
		logger.Error("Invalid trophy schedule", "spec", cfg.TrophySchedule, "error", err)
		os.Exit(1)
	}
	sched.Start()

	// Set up HTTP routes
	leaderboardsHandler := handlers.NewLeaderboardsHandler(db, cfg)

	mux := http.NewServeMux()
	mux.Handle("/leaderboards/trophies", middleware.WrapHandler(metrics.EndpointTrophyLeaderboard, leaderboardsHandler.HandleTrophyLeaderboard))
	mux.Handle("/leaderboards/trophies/recent", middleware.WrapHandler(metrics.EndpointRecentWinners, leaderboardsHandler.HandleRecentWinners))
	mux.Handle("/leaderboards/kudos/weekly", middleware.WrapHandler(metrics.EndpointWeeklyKudos, leaderboardsHandler.HandleWeeklyKudos))
	mux.Handle("/leaderboards/kudos/all-time", middleware.WrapHandler(metrics.EndpointAllTimeKudos, leaderboardsHandler.HandleAllTimeKudos))
	mux.Handle("/leaderboards/kudos/top-activity", middleware.WrapHandler(metrics.EndpointTopActivity, leaderboardsHandler.HandleTopActivity))
	mux.Handle("/sync-runs", middleware.WrapHandler(metrics.EndpointSyncRuns, leaderboardsHandler.HandleSyncRuns))

	// Health check endpoint
	mux.Handle("/health", middleware.WrapHandler(metrics.EndpointHealth, func(w http.ResponseWriter, r *http.Request) {
		if err := db.Health(); err != nil {
			http.Error(w, "Unhealthy", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}))

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	collectorCtx, collectorCancel := context.WithCancel(context.Background())
	defer collectorCancel()

	// Start metrics server if enabled
	var metricsServer *http.Server
	if cfg.MetricsEnabled {
		go func() {
			logger.Info("Starting store stats collector")
			metrics.StartStoreStatsCollector(collectorCtx, db, 15*time.Second)
		}()

		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())

		metricsAddr := fmt.Sprintf("%s:%d", cfg.MetricsHost, cfg.MetricsPort)
		metricsServer = &http.Server{
			Addr:    metricsAddr,
			Handler: metricsMux,
		}

		go func() {
			logger.Info("Metrics server listening", "addr", metricsAddr)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("Metrics server failed", "error", err)
			}
		}()
	}

	// Start HTTP server in background
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down gracefully...")

	// Let in-flight scheduled jobs finish before closing the database
	stopCtx := sched.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(60 * time.Second):
		logger.Warn("Timed out waiting for scheduled jobs to finish")
	}

	collectorCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Metrics server shutdown failed", "error", err)
		}
	}

	logger.Info("Server stopped")
}
