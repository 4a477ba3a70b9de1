//go:build cgo

package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// tesseractEngine OCRs rasterized pages through libtesseract (gosseract).
// A fresh client is created per conversion; gosseract clients are not safe
// for concurrent use.
type tesseractEngine struct {
	lang     string
	maxPages int
}

func newTesseractEngine(lang string, maxPages int) *tesseractEngine {
	if lang == "" {
		lang = "eng"
	}
	return &tesseractEngine{lang: lang, maxPages: maxPages}
}

func (e *tesseractEngine) Name() string            { return "tesseract" }
func (e *tesseractEngine) Formats() []OutputFormat { return []OutputFormat{FormatText} }

func (e *tesseractEngine) Probe(ctx context.Context) ProbeResult {
	if res := lookPathProbe(false, "pdftoppm"); !res.Available {
		return res
	}
	client := gosseract.NewClient()
	defer client.Close()
	if client.Version() == "" {
		return ProbeResult{Err: "libtesseract not usable"}
	}
	return ProbeResult{Available: true}
}

func (e *tesseractEngine) Convert(ctx context.Context, path string, format OutputFormat) (string, error) {
	pages, err := renderPages(ctx, path, e.maxPages)
	if err != nil {
		return "", err
	}

	client := gosseract.NewClient()
	defer client.Close()
	if err := client.SetLanguage(e.lang); err != nil {
		return "", fmt.Errorf("set language %q: %w", e.lang, err)
	}

	parts := make([]string, 0, len(pages))
	for i, page := range pages {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}
		if err := client.SetImageFromBytes(page); err != nil {
			return "", fmt.Errorf("set page %d: %w", i+1, err)
		}
		text, err := client.Text()
		if err != nil {
			return "", fmt.Errorf("recognize page %d: %w", i+1, err)
		}
		parts = append(parts, strings.TrimSpace(text))
	}
	return strings.Join(parts, "\n\n"), nil
}
