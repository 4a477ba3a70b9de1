package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/pdfstract-go/internal/batch"
	"github.com/raphaelgruber/pdfstract-go/internal/engine"
)

var (
	batchEngine    string
	batchParallel  int
	batchPattern   string
	batchFormat    string
	batchOutputDir string
)

var batchCmd = &cobra.Command{
	Use:   "batch <dir|files...>",
	Short: "Convert many documents with one engine",
	Long: `Convert a directory or an explicit list of documents with one engine
through a bounded worker pool. A single document's failure never stops
the run; the final report accounts for every input.

Examples:
  pdfstract batch ./invoices --engine poppler
  pdfstract batch ./scans --engine tesseract --parallel 4 -d out/
  pdfstract batch a.pdf b.pdf c.pdf --engine mupdf --format text`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBatch,
}

func init() {
	batchCmd.Flags().StringVarP(&batchEngine, "engine", "e", "poppler", "extraction engine")
	batchCmd.Flags().IntVarP(&batchParallel, "parallel", "p", 2, "concurrent conversions (1-16)")
	batchCmd.Flags().StringVar(&batchPattern, "pattern", "*.pdf", "glob for matching files inside directories")
	batchCmd.Flags().StringVarP(&batchFormat, "format", "f", "", "output format (markdown, text, json, html)")
	batchCmd.Flags().StringVarP(&batchOutputDir, "output-dir", "d", "", "write converted outputs here")
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	format, err := engine.ParseFormat(batchFormat)
	if err != nil {
		return err
	}

	inputs, err := collectInputs(args, batchPattern)
	if err != nil {
		return err
	}
	if len(inputs) == 0 {
		fmt.Println("No matching files found.")
		return nil
	}

	if err := initEngines(ctx); err != nil {
		return err
	}

	var sink func(input, content string) error
	if batchOutputDir != "" {
		if err := os.MkdirAll(batchOutputDir, 0755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
		ext := outputExt(format)
		sink = func(input, content string) error {
			stem := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
			return os.WriteFile(filepath.Join(batchOutputDir, stem+ext), []byte(content), 0644)
		}
	}

	fmt.Printf("Converting %d files with %s (parallelism %d)\n", len(inputs), batchEngine, batchParallel)

	runner := batch.NewRunner(registry, slog.Default(), collector, nil)
	report, err := runner.Run(ctx, batch.Request{
		Inputs:      inputs,
		Engine:      batchEngine,
		Parallelism: batchParallel,
		Format:      format,
		Sink:        sink,
	})
	if err != nil {
		return err
	}

	printBatchReport(report)
	return writeBatchReport(report)
}

// collectInputs expands directory arguments with the glob pattern and
// passes file arguments through. Inputs keep a stable sorted order per
// directory so reports are reproducible.
func collectInputs(args []string, pattern string) ([]string, error) {
	var inputs []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid input %s: %w", arg, err)
		}
		if !info.IsDir() {
			inputs = append(inputs, arg)
			continue
		}

		matches, err := filepath.Glob(filepath.Join(arg, pattern))
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
		}
		sort.Strings(matches)
		inputs = append(inputs, matches...)
	}
	return inputs, nil
}

// printBatchReport displays the per-input table and totals.
func printBatchReport(report batch.Report) {
	fmt.Printf("\n%-40s %-10s %-10s %s\n", "INPUT", "STATUS", "ELAPSED", "ERROR")
	fmt.Println("--------------------------------------------------------------------------------")
	for _, rec := range report.Records {
		name := rec.Input
		if len(name) > 40 {
			name = "..." + name[len(name)-37:]
		}
		fmt.Printf("%-40s %-10s %-10s %s\n", name, rec.Status, fmt.Sprintf("%dms", rec.ElapsedMS), rec.Error)
	}

	fmt.Printf("\nTotal: %d, succeeded: %d, failed: %d (%dms)\n",
		report.Total, report.Succeeded, report.Failed, report.ElapsedMS)
}

// writeBatchReport saves the full report next to the outputs, or in the
// working directory when no output directory was given.
func writeBatchReport(report batch.Report) error {
	file := "batch_report.json"
	if batchOutputDir != "" {
		file = filepath.Join(batchOutputDir, file)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(file, data, 0644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	fmt.Printf("Report written to %s\n", file)
	return nil
}
