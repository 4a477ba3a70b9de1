package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/raphaelgruber/pdfstract-go/internal/config"
)

// doclingEngine drives the docling CLI. Its layout models are fetched
// separately with docling-tools, so the engine advertises a download.
type doclingEngine struct {
	binary    string
	extraArgs []string
	download  []string
}

func newDoclingEngine() *doclingEngine {
	return &doclingEngine{
		binary:   "docling",
		download: []string{"docling-tools", "models", "download"},
	}
}

func (e *doclingEngine) Name() string { return "docling" }

func (e *doclingEngine) Formats() []OutputFormat {
	return []OutputFormat{FormatMarkdown, FormatJSON, FormatHTML, FormatText}
}

func (e *doclingEngine) Probe(ctx context.Context) ProbeResult {
	return lookPathProbe(true, e.binary)
}

func (e *doclingEngine) Convert(ctx context.Context, path string, format OutputFormat) (string, error) {
	dir, err := os.MkdirTemp("", "pdfstract-docling-")
	if err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	args := append([]string{}, e.extraArgs...)
	args = append(args, path, "--to", doclingTarget(format), "--output", dir)
	if _, err := runCommand(ctx, e.binary, args...); err != nil {
		return "", err
	}

	ext := "." + formatExt(format)
	out := filepath.Join(dir, documentStem(path)+ext)
	data, err := os.ReadFile(out)
	if err != nil {
		// docling derives output names from its own stem rules; fall back
		// to the first matching file.
		found, ferr := findFirstFile(dir, ext)
		if ferr != nil {
			return "", fmt.Errorf("read converted output: %w", err)
		}
		data, err = os.ReadFile(found)
		if err != nil {
			return "", fmt.Errorf("read converted output: %w", err)
		}
	}
	return string(data), nil
}

func (e *doclingEngine) Download(ctx context.Context) error {
	return runDownloadArgv(ctx, e.download)
}

func (e *doclingEngine) applyOverride(ov config.EngineOverride) {
	if ov.Binary != "" {
		e.binary = ov.Binary
	}
	if len(ov.Args) > 0 {
		e.extraArgs = ov.Args
	}
	if len(ov.Download) > 0 {
		e.download = ov.Download
	}
}

func doclingTarget(format OutputFormat) string {
	switch format {
	case FormatMarkdown:
		return "md"
	case FormatJSON:
		return "json"
	case FormatHTML:
		return "html"
	default:
		return "text"
	}
}
