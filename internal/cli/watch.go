package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/pdfstract-go/internal/client"
	"github.com/raphaelgruber/pdfstract-go/internal/compare"
)

var watchServer string

var watchCmd = &cobra.Command{
	Use:   "watch <task-id>",
	Short: "Stream a remote comparison task's progress",
	Long: `Attach to a comparison task on a running server and stream its
progress until every engine finishes.

Examples:
  pdfstract watch 6f1c2a...
  pdfstract watch 6f1c2a... --server http://pdfstract.internal:8090`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchServer, "server", "", "server URL (default from PDFSTRACT_SERVER_URL)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	taskID := args[0]
	ctx := cmd.Context()
	c := client.New(watchServer)

	var last compare.Task
	printed := make(map[string]bool)

	err := c.WatchCompare(ctx, taskID, func(task compare.Task) error {
		last = task
		for name, oc := range task.Outcomes {
			if oc.Status.Terminal() && !printed[name] {
				printed[name] = true
				detail := fmt.Sprintf("%dms", oc.ElapsedMS)
				if oc.Status == compare.OutcomeError {
					detail = oc.Error
				}
				fmt.Printf("  %s: %s (%s)\n", name, oc.Status, detail)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("watch task: %w", err)
	}

	if last.Completed() {
		fmt.Printf("Task %s completed.\n", taskID)
	} else {
		fmt.Printf("Stream for task %s closed before completion.\n", taskID)
	}
	return nil
}
