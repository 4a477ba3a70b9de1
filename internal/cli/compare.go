package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/raphaelgruber/pdfstract-go/internal/compare"
	"github.com/raphaelgruber/pdfstract-go/internal/engine"
)

var (
	compareEngines   []string
	compareFormat    string
	compareOutputDir string
)

var compareCmd = &cobra.Command{
	Use:   "compare <file>",
	Short: "Convert one document with several engines side by side",
	Long: `Run the same document through several extraction engines concurrently
and collect every result, successes and failures alike.

With --output-dir, per-engine outputs are written as separate files
next to a comparison_summary.json; otherwise only the summary table is
printed.

Examples:
  pdfstract compare report.pdf --engines poppler,mupdf
  pdfstract compare report.pdf --engines poppler,marker --format markdown
  pdfstract compare report.pdf --engines poppler,mupdf,markitdown -d out/`,
	Args: cobra.ExactArgs(1),
	RunE: runCompare,
}

func init() {
	compareCmd.Flags().StringSliceVarP(&compareEngines, "engines", "e", nil, "engines to compare (comma-separated)")
	compareCmd.Flags().StringVarP(&compareFormat, "format", "f", "", "output format (markdown, text, json, html)")
	compareCmd.Flags().StringVarP(&compareOutputDir, "output-dir", "d", "", "write per-engine outputs and summary here")
}

func runCompare(cmd *cobra.Command, args []string) error {
	path := args[0]
	ctx := cmd.Context()

	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("invalid input: %w", err)
	}
	if len(compareEngines) == 0 {
		return fmt.Errorf("at least one engine required (--engines)")
	}

	format, err := engine.ParseFormat(compareFormat)
	if err != nil {
		return err
	}

	if err := initEngines(ctx); err != nil {
		return err
	}

	store := compare.NewStore()
	runner := compare.NewRunner(store, registry, slog.Default(), collector, nil)

	taskID, err := runner.Submit(ctx, path, compareEngines, format)
	if err != nil {
		return err
	}
	task, err := store.Get(taskID)
	if err != nil {
		return err
	}

	fmt.Printf("Comparing %s across %d engines\n", filepath.Base(path), len(compareEngines))

	if term.IsTerminal(int(os.Stdout.Fd())) {
		last, detached, err := RunCompareProgress(store, task)
		if err != nil {
			return err
		}
		task = last
		if detached {
			if task, err = awaitTask(store, taskID, false); err != nil {
				return err
			}
		}
	} else {
		if task, err = awaitTask(store, taskID, true); err != nil {
			return err
		}
	}

	return writeCompareResults(path, task)
}

// awaitTask polls the store until the task completes. With announce set,
// each engine is printed once as it reaches a terminal state.
func awaitTask(store *compare.Store, taskID string, announce bool) (compare.Task, error) {
	printed := make(map[string]bool)
	for {
		task, err := store.Get(taskID)
		if err != nil {
			return compare.Task{}, err
		}

		if announce {
			for name, oc := range task.Outcomes {
				if oc.Status.Terminal() && !printed[name] {
					printed[name] = true
					fmt.Printf("  %s: %s (%dms)\n", name, oc.Status, oc.ElapsedMS)
				}
			}
		}

		if task.Completed() {
			return task, nil
		}
		time.Sleep(pollInterval)
	}
}

type engineSummary struct {
	Status     compare.OutcomeStatus `json:"status"`
	Error      string                `json:"error,omitempty"`
	ElapsedMS  int64                 `json:"elapsed_ms"`
	OutputFile string                `json:"output_file,omitempty"`
	Bytes      int                   `json:"bytes"`
}

type compareSummary struct {
	TaskID   string                   `json:"task_id"`
	Document string                   `json:"document"`
	Format   engine.OutputFormat      `json:"format"`
	Engines  map[string]engineSummary `json:"engines"`
}

// writeCompareResults prints the outcome table and, when an output
// directory was given, writes per-engine files plus the summary JSON.
func writeCompareResults(inputPath string, task compare.Task) error {
	summary := compareSummary{
		TaskID:   task.ID,
		Document: task.DocumentRef,
		Format:   task.Format,
		Engines:  make(map[string]engineSummary, len(task.Outcomes)),
	}

	stem := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	ext := outputExt(task.Format)

	if compareOutputDir != "" {
		if err := os.MkdirAll(compareOutputDir, 0755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}

	names := make([]string, 0, len(task.Outcomes))
	for name := range task.Outcomes {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Printf("\n%-12s %-10s %-10s %s\n", "ENGINE", "STATUS", "ELAPSED", "OUTPUT")
	fmt.Println("------------------------------------------------------------")

	for _, name := range names {
		oc := task.Outcomes[name]
		es := engineSummary{
			Status:    oc.Status,
			Error:     oc.Error,
			ElapsedMS: oc.ElapsedMS,
			Bytes:     len(oc.Content),
		}

		detail := oc.Error
		if oc.Status == compare.OutcomeSuccess && compareOutputDir != "" {
			file := filepath.Join(compareOutputDir, fmt.Sprintf("%s.%s%s", stem, name, ext))
			if err := os.WriteFile(file, []byte(oc.Content), 0644); err != nil {
				fmt.Printf("Warning: failed to write %s: %v\n", file, err)
			} else {
				es.OutputFile = file
				detail = file
			}
		} else if oc.Status == compare.OutcomeSuccess {
			detail = fmt.Sprintf("%d bytes", len(oc.Content))
		}

		summary.Engines[name] = es
		fmt.Printf("%-12s %-10s %-10s %s\n", name, oc.Status, fmt.Sprintf("%dms", oc.ElapsedMS), detail)
	}

	if compareOutputDir != "" {
		summaryFile := filepath.Join(compareOutputDir, "comparison_summary.json")
		data, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal summary: %w", err)
		}
		if err := os.WriteFile(summaryFile, data, 0644); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
		fmt.Printf("\nSummary written to %s\n", summaryFile)
	}

	return nil
}

// outputExt maps a format to the file extension for written outputs.
func outputExt(format engine.OutputFormat) string {
	switch format {
	case engine.FormatMarkdown:
		return ".md"
	case engine.FormatText:
		return ".txt"
	case engine.FormatJSON:
		return ".json"
	case engine.FormatHTML:
		return ".html"
	default:
		return ".out"
	}
}
