package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lysyi3m/site-watch/app/api"
	"github.com/lysyi3m/site-watch/app/cfg"
	"github.com/lysyi3m/site-watch/app/database"
	"github.com/lysyi3m/site-watch/app/site"
	"github.com/lysyi3m/site-watch/app/tasks"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if appCfg == nil {
		// help requested
		return
	}

	level := slog.LevelInfo
	if appCfg.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	slog.Info("Starting Site Watch", "version", appCfg.Version, "db", appCfg.DBPath)

	db, err := database.NewConnection(appCfg.DBPath)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("Database ready", "migration_version", version, "dirty", dirty)

	websiteRepo := database.NewWebsiteRepository(db)
	resultRepo := database.NewResultRepository(db)
	notificationRepo := database.NewNotificationRepository(db)

	selectors := site.NewSelectorCache(appCfg.SelectorsDir)
	if err := selectors.Run(); err != nil {
		slog.Error("Failed to load selector overrides", "dir", appCfg.SelectorsDir, "error", err)
		os.Exit(1)
	}
	slog.Info("Selector overrides loaded", "dir", appCfg.SelectorsDir, "count", selectors.Count())

	fetcher := site.NewFetcher(site.FetcherOptions{
		UserAgent:    appCfg.UserAgent,
		Timeout:      appCfg.FetchTimeoutDuration(),
		Retries:      appCfg.FetchRetries,
		HostInterval: appCfg.ScrapeDelayDuration(),
	})

	engine := tasks.NewEngine(websiteRepo, resultRepo, fetcher, site.NewExtractor(selectors), site.NewSummarizer(),
		tasks.EngineOptions{DiffMode: tasks.ParseDiffMode(appCfg.DiffMode)})

	scheduler := tasks.NewScheduler(engine, websiteRepo, tasks.SchedulerOptions{
		Interval: appCfg.SchedulerIntervalDuration(),
		Delay:    appCfg.ScrapeDelayDuration(),
		Workers:  appCfg.ScrapeWorkers,
		Lease:    appCfg.LeaseDurationValue(),
	})
	scheduler.Start()
	defer scheduler.Stop()

	handler := api.NewHandler(websiteRepo, resultRepo, notificationRepo, engine, scheduler, selectors)
	router := api.NewServer(handler, appCfg.APIAccessKey)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", appCfg.Port, "api_enabled", appCfg.APIAccessKey != "")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErr:
		slog.Error("HTTP server error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Site Watch stopped")
}
