package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/pdfstract-go/internal/chunk"
	"github.com/raphaelgruber/pdfstract-go/internal/engine"
)

var (
	chunkerName     string
	chunkTargetSize int
	chunkOverlap    int
	chunkThreshold  int
	chunkJSON       bool

	convertChunkEngine string
	convertChunkFormat string
)

var chunkersCmd = &cobra.Command{
	Use:   "chunkers",
	Short: "List available chunking strategies",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults := chunk.DefaultOptions()
		fmt.Println("Chunkers:")
		for _, c := range chunk.Registry() {
			fmt.Printf("  - %s\n", c.Name())
		}
		fmt.Printf("\nDefaults: threshold %d, target size %d, min %d, max %d, overlap %d\n",
			defaults.Threshold, defaults.TargetSize, defaults.MinSize, defaults.MaxSize, defaults.Overlap)
		return nil
	},
}

var chunkCmd = &cobra.Command{
	Use:   "chunk <file>",
	Short: "Split a text file into retrieval-sized chunks",
	Long: `Split an already converted text or Markdown file into chunks sized
for embedding or retrieval pipelines.

Examples:
  pdfstract chunk report.md
  pdfstract chunk report.md --chunker sentence --target-size 500
  pdfstract chunk report.txt --chunker fixed --overlap 50 --json`,
	Args: cobra.ExactArgs(1),
	RunE: runChunk,
}

var convertChunkCmd = &cobra.Command{
	Use:   "convert-chunk <file>",
	Short: "Convert a document and chunk the result in one step",
	Long: `Convert a document with an extraction engine, then split the output
into chunks. Equivalent to running convert followed by chunk without
the intermediate file.

Examples:
  pdfstract convert-chunk report.pdf --engine poppler
  pdfstract convert-chunk report.pdf --engine marker --chunker sentence --json`,
	Args: cobra.ExactArgs(1),
	RunE: runConvertChunk,
}

func init() {
	for _, cmd := range []*cobra.Command{chunkCmd, convertChunkCmd} {
		cmd.Flags().StringVarP(&chunkerName, "chunker", "c", "recursive", "chunking strategy (recursive, sentence, fixed)")
		cmd.Flags().IntVar(&chunkTargetSize, "target-size", 0, "target chunk size in characters (0 = default)")
		cmd.Flags().IntVar(&chunkOverlap, "overlap", 0, "overlap between chunks in characters (0 = default, -1 disables)")
		cmd.Flags().IntVar(&chunkThreshold, "threshold", 0, "minimum text length before splitting (0 = default)")
		cmd.Flags().BoolVar(&chunkJSON, "json", false, "print chunks as JSON")
	}

	convertChunkCmd.Flags().StringVarP(&convertChunkEngine, "engine", "e", "poppler", "extraction engine")
	convertChunkCmd.Flags().StringVarP(&convertChunkFormat, "format", "f", "", "output format (markdown, text, json, html)")
}

func runChunk(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	return chunkAndPrint(string(data))
}

func runConvertChunk(cmd *cobra.Command, args []string) error {
	path := args[0]
	ctx := cmd.Context()

	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("invalid input: %w", err)
	}

	format, err := engine.ParseFormat(convertChunkFormat)
	if err != nil {
		return err
	}

	if err := initEngines(ctx); err != nil {
		return err
	}

	conv, err := engine.RunConversion(ctx, registry, collector, convertChunkEngine, path, format)
	if err != nil {
		return err
	}

	return chunkAndPrint(conv.Content)
}

func chunkAndPrint(text string) error {
	chunker, err := chunk.Get(chunkerName)
	if err != nil {
		return err
	}

	chunks := chunker.Chunk(text, chunk.Options{
		TargetSize: chunkTargetSize,
		Overlap:    chunkOverlap,
		Threshold:  chunkThreshold,
	})

	if chunkJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(chunks)
	}

	fmt.Printf("%d chunks (%s):\n", len(chunks), chunker.Name())
	for _, c := range chunks {
		fmt.Printf("\n--- chunk %d (%d chars) ---\n%s\n", c.Index+1, c.Chars, c.Text)
	}
	return nil
}
