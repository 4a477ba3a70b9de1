package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/pdfstract-go/internal/engine"
)

var enginesJSON bool

var enginesCmd = &cobra.Command{
	Use:   "engines",
	Short: "List extraction engines and their availability",
	Long: `Probe all known extraction engines and show which of them are usable
on this machine, which output formats they support, and whether they
need a model download before first use.

Examples:
  pdfstract engines
  pdfstract engines --json`,
	RunE: runEngines,
}

func init() {
	enginesCmd.Flags().BoolVar(&enginesJSON, "json", false, "print raw descriptors as JSON")
}

func runEngines(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if err := initEngines(ctx); err != nil {
		return err
	}
	descs := registry.Snapshot()

	if enginesJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(descs)
	}

	fmt.Printf("%-12s %-12s %-28s %s\n", "ENGINE", "AVAILABLE", "FORMATS", "DOWNLOAD")
	fmt.Println("----------------------------------------------------------------------")

	for _, d := range descs {
		avail := defaultTheme.errorStyle().Render("no")
		if d.Available {
			avail = defaultTheme.completedStyle().Render("yes")
		}

		download := "-"
		if d.RequiresDownload {
			download = string(d.DownloadStatus)
		}

		// Styled cells carry ANSI escapes, so pad the plain text by hand.
		pad := 12 - len(plainAvail(d.Available))
		fmt.Printf("%-12s %s%s %-28s %s\n",
			d.Name, avail, strings.Repeat(" ", pad), formatList(d.Formats), download)

		if verbose && d.Error != "" {
			fmt.Printf("  %s\n", defaultTheme.hintStyle().Render(d.Error))
		}
		if verbose && d.DownloadError != "" {
			fmt.Printf("  %s\n", defaultTheme.hintStyle().Render("download: "+d.DownloadError))
		}
	}

	return nil
}

func plainAvail(available bool) string {
	if available {
		return "yes"
	}
	return "no"
}

func formatList(formats []engine.OutputFormat) string {
	parts := make([]string, len(formats))
	for i, f := range formats {
		parts[i] = string(f)
	}
	return strings.Join(parts, ",")
}
