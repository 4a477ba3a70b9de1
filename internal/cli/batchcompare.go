package cli

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/pdfstract-go/internal/compare"
	"github.com/raphaelgruber/pdfstract-go/internal/engine"
)

var (
	batchCompareEngines  []string
	batchCompareMaxFiles int
	batchComparePattern  string
	batchCompareFormat   string
)

var batchCompareCmd = &cobra.Command{
	Use:   "batch-compare <dir>",
	Short: "Compare engines across every document in a directory",
	Long: `Run a full engine comparison for every matched document in a
directory, one document at a time, and aggregate how each engine did
across the whole set.

Useful for picking the right engine for a corpus before committing to
a large batch run.

Examples:
  pdfstract batch-compare ./samples --engines poppler,mupdf
  pdfstract batch-compare ./samples --engines poppler,marker --max-files 5`,
	Args: cobra.ExactArgs(1),
	RunE: runBatchCompare,
}

func init() {
	batchCompareCmd.Flags().StringSliceVarP(&batchCompareEngines, "engines", "e", nil, "engines to compare (comma-separated)")
	batchCompareCmd.Flags().IntVar(&batchCompareMaxFiles, "max-files", 10, "cap on documents to compare")
	batchCompareCmd.Flags().StringVar(&batchComparePattern, "pattern", "*.pdf", "glob for matching files")
	batchCompareCmd.Flags().StringVarP(&batchCompareFormat, "format", "f", "", "output format (markdown, text, json, html)")
}

func runBatchCompare(cmd *cobra.Command, args []string) error {
	dir := args[0]
	ctx := cmd.Context()

	if len(batchCompareEngines) == 0 {
		return fmt.Errorf("at least one engine required (--engines)")
	}

	format, err := engine.ParseFormat(batchCompareFormat)
	if err != nil {
		return err
	}

	files, err := collectInputs([]string{dir}, batchComparePattern)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Println("No matching files found.")
		return nil
	}
	if batchCompareMaxFiles > 0 && len(files) > batchCompareMaxFiles {
		fmt.Printf("Limiting to first %d of %d files\n", batchCompareMaxFiles, len(files))
		files = files[:batchCompareMaxFiles]
	}

	if err := initEngines(ctx); err != nil {
		return err
	}

	store := compare.NewStore()
	runner := compare.NewRunner(store, registry, slog.Default(), collector, nil)

	// One task per document, run to completion before the next. The
	// fan-out inside each task is concurrency enough.
	type engineTally struct {
		succeeded int
		failed    int
		totalMS   int64
	}
	tallies := make(map[string]*engineTally, len(batchCompareEngines))
	for _, name := range batchCompareEngines {
		tallies[name] = &engineTally{}
	}

	fmt.Printf("Comparing %d engines across %d files\n\n", len(batchCompareEngines), len(files))
	fmt.Printf("%-32s", "FILE")
	for _, name := range batchCompareEngines {
		fmt.Printf(" %-14s", name)
	}
	fmt.Println()

	for _, file := range files {
		taskID, err := runner.Submit(ctx, file, batchCompareEngines, format)
		if err != nil {
			return fmt.Errorf("submit %s: %w", file, err)
		}
		task, err := awaitTask(store, taskID, false)
		if err != nil {
			return err
		}

		name := filepath.Base(file)
		if len(name) > 32 {
			name = name[:29] + "..."
		}
		fmt.Printf("%-32s", name)
		for _, engineName := range batchCompareEngines {
			oc := task.Outcomes[engineName]
			tally := tallies[engineName]
			if oc.Status == compare.OutcomeSuccess {
				tally.succeeded++
				tally.totalMS += oc.ElapsedMS
				fmt.Printf(" %-14s", fmt.Sprintf("ok %dms", oc.ElapsedMS))
			} else {
				tally.failed++
				fmt.Printf(" %-14s", "failed")
			}
		}
		fmt.Println()
	}

	names := make([]string, 0, len(tallies))
	for name := range tallies {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Printf("\n%-12s %-10s %-10s %s\n", "ENGINE", "SUCCEEDED", "FAILED", "AVG")
	fmt.Println("----------------------------------------------")
	for _, name := range names {
		tally := tallies[name]
		avg := "-"
		if tally.succeeded > 0 {
			avg = fmt.Sprintf("%dms", tally.totalMS/int64(tally.succeeded))
		}
		fmt.Printf("%-12s %-10d %-10d %s\n", name, tally.succeeded, tally.failed, avg)
	}

	return nil
}
