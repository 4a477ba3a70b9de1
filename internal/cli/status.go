package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/pdfstract-go/internal/client"
	"github.com/raphaelgruber/pdfstract-go/internal/metrics"
)

var statusServer string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show a running server's health, engines and statistics",
	Long: `Query a running pdfstract server for its health, engine availability
and runtime statistics.

Examples:
  pdfstract status
  pdfstract status --server http://pdfstract.internal:8090`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusServer, "server", "", "server URL (default from PDFSTRACT_SERVER_URL)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	c := client.New(statusServer)

	if err := c.Health(ctx); err != nil {
		return fmt.Errorf("server unreachable: %w", err)
	}
	fmt.Println("Server: ok")

	descs, err := c.Engines(ctx)
	if err != nil {
		return fmt.Errorf("list engines: %w", err)
	}

	fmt.Printf("\nEngines (%d):\n", len(descs))
	for _, d := range descs {
		state := "unavailable"
		if d.Available {
			state = "available"
		}
		fmt.Printf("  %-12s %s", d.Name, state)
		if d.RequiresDownload {
			fmt.Printf(" (models: %s)", d.DownloadStatus)
		}
		fmt.Println()
		if verbose && d.Error != "" {
			fmt.Printf("    %s\n", d.Error)
		}
	}

	snap, err := c.Metrics(ctx)
	if err != nil {
		return fmt.Errorf("get metrics: %w", err)
	}
	fmt.Println()
	printMetrics(snap)

	return nil
}

// printMetrics displays server runtime statistics.
func printMetrics(snap metrics.Snapshot) {
	fmt.Printf("Server Statistics (in-memory, since restart)\n")
	fmt.Printf("═══════════════════════════════════════════════\n")
	fmt.Printf("Uptime: %.1f seconds\n", snap.UptimeSeconds)

	if len(snap.Operations) == 0 {
		fmt.Println("\nNo operations recorded yet.")
		return
	}

	names := make([]string, 0, len(snap.Operations))
	for name := range snap.Operations {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		op := snap.Operations[name]
		fmt.Printf("\n%s:\n", name)
		fmt.Printf("  Calls: %d, Errors: %d, Total: %dms\n", op.Count, op.Errors, op.TotalTimeMs)
		fmt.Printf("  Time: avg %.1fms, min %dms, max %dms\n", op.AvgTimeMs, op.MinTimeMs, op.MaxTimeMs)
	}
}
