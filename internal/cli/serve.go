package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/pdfstract-go/internal/batch"
	"github.com/raphaelgruber/pdfstract-go/internal/compare"
	"github.com/raphaelgruber/pdfstract-go/internal/server"
)

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server in the foreground",
	Long: `Run the pdfstract HTTP API in the foreground until interrupted.

For a long-lived deployment with the SurrealDB result archive, use the
pdfstract-server binary instead.

Examples:
  pdfstract serve
  pdfstract serve --port 9090`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&servePort, "port", "", "listen port (default from PDFSTRACT_SERVER_PORT)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if err := initEngines(ctx); err != nil {
		return err
	}

	store := compare.NewStore()
	srv := server.New(server.Dependencies{
		Registry:    registry,
		Coordinator: coordinator,
		Store:       store,
		Runner:      compare.NewRunner(store, registry, slog.Default(), collector, nil),
		Batch:       batch.NewRunner(registry, slog.Default(), collector, nil),
		Collector:   collector,
		Logger:      slog.Default(),
		UploadDir:   cfg.DataDir,
	}, ":"+port())

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	fmt.Printf("Listening on :%s (Ctrl+C to stop)\n", port())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		slog.Info("shutting down", "signal", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func port() string {
	if servePort != "" {
		return servePort
	}
	return cfg.ServerPort
}
