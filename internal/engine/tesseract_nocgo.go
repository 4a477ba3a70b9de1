//go:build !cgo

package engine

import (
	"context"
	"fmt"
)

// tesseractEngine needs cgo for the gosseract libtesseract bindings; a build
// without cgo can only report the engine as unavailable.
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
	return ProbeResult{Err: "built without cgo: libtesseract bindings unavailable"}
}

func (e *tesseractEngine) Convert(ctx context.Context, path string, format OutputFormat) (string, error) {
	return "", fmt.Errorf("tesseract engine requires a cgo-enabled build")
}
