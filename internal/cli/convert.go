package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/pdfstract-go/internal/engine"
)

var (
	convertEngine string
	convertFormat string
	convertOutput string
)

var convertCmd = &cobra.Command{
	Use:   "convert <file>",
	Short: "Convert a document with one engine",
	Long: `Convert a single document with the chosen extraction engine.

Output goes to stdout unless --output names a file.

Examples:
  pdfstract convert report.pdf
  pdfstract convert report.pdf --engine mupdf --format text
  pdfstract convert report.pdf --engine marker -o report.md`,
	Args: cobra.ExactArgs(1),
	RunE: runConvert,
}

func init() {
	convertCmd.Flags().StringVarP(&convertEngine, "engine", "e", "poppler", "extraction engine")
	convertCmd.Flags().StringVarP(&convertFormat, "format", "f", "", "output format (markdown, text, json, html)")
	convertCmd.Flags().StringVarP(&convertOutput, "output", "o", "", "write output to file")
}

func runConvert(cmd *cobra.Command, args []string) error {
	path := args[0]
	ctx := cmd.Context()

	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("invalid input: %w", err)
	}

	format, err := engine.ParseFormat(convertFormat)
	if err != nil {
		return err
	}

	if err := initEngines(ctx); err != nil {
		return err
	}

	conv, err := engine.RunConversion(ctx, registry, collector, convertEngine, path, format)
	if err != nil {
		return err
	}

	if convertOutput != "" {
		if err := os.WriteFile(convertOutput, []byte(conv.Content), 0644); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		fmt.Printf("Wrote %s (%d bytes, %dms)\n", convertOutput, len(conv.Content), conv.ElapsedMS)
		return nil
	}

	fmt.Print(conv.Content)
	return nil
}
