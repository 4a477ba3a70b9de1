package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/pdfstract-go/internal/engine"
)

var downloadAll bool

var downloadCmd = &cobra.Command{
	Use:   "download [engine]",
	Short: "Download models for an engine",
	Long: `Download the models an engine needs before it can convert documents.
The download runs in the foreground; large vision models can take a
while.

Examples:
  pdfstract download marker
  pdfstract download docling
  pdfstract download --all`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDownload,
}

func init() {
	downloadCmd.Flags().BoolVar(&downloadAll, "all", false, "download models for every engine that needs them")
}

func runDownload(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if err := initEngines(ctx); err != nil {
		return err
	}

	if downloadAll {
		return downloadEverything(ctx)
	}
	if len(args) != 1 {
		return fmt.Errorf("engine name required (or use --all)")
	}
	return downloadOne(ctx, args[0])
}

func downloadOne(ctx context.Context, name string) error {
	fmt.Printf("Downloading models for %s...\n", name)

	desc, err := coordinator.Trigger(ctx, name)
	switch {
	case errors.Is(err, engine.ErrNotApplicable):
		fmt.Printf("%s needs no model download.\n", name)
		return nil
	case errors.Is(err, engine.ErrDownloadInProgress):
		fmt.Printf("A download for %s is already running.\n", name)
		return nil
	case err != nil:
		return fmt.Errorf("download %s: %w", name, err)
	}

	switch desc.DownloadStatus {
	case engine.DownloadReady:
		fmt.Printf("%s models ready.\n", name)
	case engine.DownloadFailed:
		return fmt.Errorf("download %s: %s", name, desc.DownloadError)
	default:
		fmt.Printf("%s download status: %s\n", name, desc.DownloadStatus)
	}
	return nil
}

func downloadEverything(ctx context.Context) error {
	var failed int
	for _, d := range registry.Snapshot() {
		if !d.RequiresDownload {
			continue
		}
		if d.DownloadStatus == engine.DownloadReady {
			fmt.Printf("%s models already downloaded.\n", d.Name)
			continue
		}
		if err := downloadOne(ctx, d.Name); err != nil {
			fmt.Printf("Warning: %v\n", err)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d downloads failed", failed)
	}
	return nil
}
