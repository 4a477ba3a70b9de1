package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// renderPages rasterizes a document into PNG page images for the OCR and
// vision engines. Plain image files pass through as a single page.
// maxPages <= 0 renders everything.
func renderPages(ctx context.Context, path string, maxPages int) ([][]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", ".jpg", ".jpeg", ".tif", ".tiff", ".bmp":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read image: %w", err)
		}
		return [][]byte{data}, nil
	}

	dir, err := os.MkdirTemp("", "pdfstract-pages-")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	args := []string{"-png", "-r", "150"}
	if maxPages > 0 {
		args = append(args, "-f", "1", "-l", strconv.Itoa(maxPages))
	}
	args = append(args, path, filepath.Join(dir, "page"))
	if _, err := runCommand(ctx, "pdftoppm", args...); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list rendered pages: %w", err)
	}

	var pages [][]byte
	for _, ent := range entries {
		if ent.IsDir() || !strings.HasSuffix(ent.Name(), ".png") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, ent.Name()))
		if err != nil {
			return nil, fmt.Errorf("read page %s: %w", ent.Name(), err)
		}
		pages = append(pages, data)
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("no pages rendered from %s", filepath.Base(path))
	}
	return pages, nil
}

// visionPrompt is the instruction sent ahead of page images to the vision
// model engines.
func visionPrompt(format OutputFormat) string {
	if format == FormatText {
		return "Transcribe all text in these document pages in reading order. " +
			"Output plain text only, no commentary."
	}
	f := string(format)
	return "Transcribe these document pages into clean " + f + ". " +
		"Preserve headings, lists and tables. Output " + f + " only, no commentary."
}
