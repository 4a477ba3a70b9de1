// Package cli provides the command-line interface for pdfstract.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/pdfstract-go/internal/config"
	"github.com/raphaelgruber/pdfstract-go/internal/engine"
	"github.com/raphaelgruber/pdfstract-go/internal/metrics"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose bool

	// Global config and logging teardown
	cfg       config.Config
	closeLogs func() error

	// Lazy-initialized engine runtime
	registry    *engine.Registry
	coordinator *engine.Coordinator
	collector   *metrics.Collector
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "pdfstract",
	Short: "Document conversion across multiple extraction engines",
	Long: `Pdfstract converts PDFs and office documents to Markdown, text, JSON
or HTML using whichever extraction engines are installed on this machine.

Run the same document through several engines side by side to compare
their output, batch-convert whole directories, and split results into
retrieval-sized chunks.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip setup for version and help commands
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		cfg = config.Load()
		if verbose {
			cfg.LogLevel = slog.LevelDebug
		}

		logger, cleanup := config.SetupLogger(cfg)
		slog.SetDefault(logger)
		closeLogs = cleanup

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if closeLogs != nil {
			if err := closeLogs(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", err)
			}
		}
	},
}

// initEngines builds and probes the engine catalog once. Commands that
// convert documents call it on first use; text-only commands stay fast.
func initEngines(ctx context.Context) error {
	if registry != nil {
		return nil
	}

	overrides, err := config.LoadEngineOverrides(cfg.EnginesFile)
	if err != nil {
		return fmt.Errorf("load engine overrides: %w", err)
	}

	collector = metrics.NewCollector()
	registry = engine.NewRegistry(engine.Catalog(cfg, overrides, slog.Default()), slog.Default(), collector)
	coordinator = engine.NewCoordinator(registry, slog.Default(), collector)

	probeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	registry.ProbeAll(probeCtx)

	return nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Add subcommands
	rootCmd.AddCommand(enginesCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(convertCmd)
	rootCmd.AddCommand(compareCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(batchCompareCmd)
	rootCmd.AddCommand(chunkersCmd)
	rootCmd.AddCommand(chunkCmd)
	rootCmd.AddCommand(convertChunkCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the pdfstract version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("pdfstract %s\n", Version)
	},
}
