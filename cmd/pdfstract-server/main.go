// Package main provides the long-lived HTTP server for pdfstract.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raphaelgruber/pdfstract-go/internal/archive"
	"github.com/raphaelgruber/pdfstract-go/internal/batch"
	"github.com/raphaelgruber/pdfstract-go/internal/compare"
	"github.com/raphaelgruber/pdfstract-go/internal/config"
	"github.com/raphaelgruber/pdfstract-go/internal/engine"
	"github.com/raphaelgruber/pdfstract-go/internal/metrics"
	"github.com/raphaelgruber/pdfstract-go/internal/server"
)

func main() {
	// Parse flags
	port := flag.String("port", "", "listen port (default from PDFSTRACT_SERVER_PORT)")
	wipeDB := flag.Bool("wipe", false, "wipe all archived results on startup (testing only)")
	flag.Parse()

	// Load configuration
	cfg := config.Load()
	if *port != "" {
		cfg.ServerPort = *port
	}

	// Initialize logging
	logger, closeLogs := config.SetupLogger(cfg)
	slog.SetDefault(logger)
	defer func() {
		if err := closeLogs(); err != nil {
			slog.Error("failed to close log file", "error", err)
		}
	}()

	slog.Info("starting pdfstract-server", "port", cfg.ServerPort)

	// Build and probe the engine catalog
	overrides, err := config.LoadEngineOverrides(cfg.EnginesFile)
	if err != nil {
		slog.Error("failed to load engine overrides", "error", err)
		os.Exit(1)
	}

	collector := metrics.NewCollector()
	registry := engine.NewRegistry(engine.Catalog(cfg, overrides, logger), logger, collector)
	coordinator := engine.NewCoordinator(registry, logger, collector)

	probeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	registry.ProbeAll(probeCtx)
	cancel()

	// Optional result archive, enabled when a DB URL is configured
	var compareArchive compare.ArchiveFunc
	var batchArchive batch.ArchiveFunc
	if cfg.DBURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		archiveClient, err := archive.NewClient(ctx, archive.Config{
			URL:       cfg.DBURL,
			Namespace: cfg.DBNamespace,
			Database:  cfg.DBDatabase,
			Username:  cfg.DBUser,
			Password:  cfg.DBPass,
		}, logger)
		if err != nil {
			cancel()
			slog.Error("failed to connect to archive database", "error", err)
			os.Exit(1)
		}
		if err := archiveClient.InitSchema(ctx); err != nil {
			cancel()
			slog.Error("failed to initialize archive schema", "error", err)
			os.Exit(1)
		}
		if *wipeDB || os.Getenv("PDFSTRACT_WIPE_DB") == "true" {
			if err := archiveClient.WipeData(ctx); err != nil {
				cancel()
				slog.Error("failed to wipe archive", "error", err)
				os.Exit(1)
			}
			slog.Warn("archive wiped on startup")
		}
		cancel()
		defer func() {
			if err := archiveClient.Close(context.Background()); err != nil {
				slog.Error("failed to close archive client", "error", err)
			}
		}()

		compareArchive = func(t compare.Task) {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := archiveClient.SaveComparison(ctx, t); err != nil && !errors.Is(err, archive.ErrAlreadySaved) {
				slog.Error("failed to archive comparison", "task_id", t.ID, "error", err)
			}
		}
		batchArchive = func(rep batch.Report) {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := archiveClient.SaveBatch(ctx, rep); err != nil && !errors.Is(err, archive.ErrAlreadySaved) {
				slog.Error("failed to archive batch report", "job_id", rep.JobID, "error", err)
			}
		}
	}

	store := compare.NewStore()
	srv := server.New(server.Dependencies{
		Registry:    registry,
		Coordinator: coordinator,
		Store:       store,
		Runner:      compare.NewRunner(store, registry, logger, collector, compareArchive),
		Batch:       batch.NewRunner(registry, logger, collector, batchArchive),
		Collector:   collector,
		Logger:      logger,
		UploadDir:   cfg.DataDir,
	}, ":"+cfg.ServerPort)

	// Start server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped")
}
