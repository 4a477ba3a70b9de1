package engine

import (
	"context"
	"fmt"
	"os"

	"github.com/raphaelgruber/pdfstract-go/internal/config"
)

// markerEngine drives the marker_single CLI. Marker pulls its detection and
// recognition models from the hub on first use; the download command warms
// that cache up front.
type markerEngine struct {
	binary    string
	extraArgs []string
	download  []string
}

func newMarkerEngine() *markerEngine {
	return &markerEngine{
		binary: "marker_single",
		download: []string{
			"python3", "-c",
			"from marker.models import create_model_dict; create_model_dict()",
		},
	}
}

func (e *markerEngine) Name() string { return "marker" }

func (e *markerEngine) Formats() []OutputFormat {
	return []OutputFormat{FormatMarkdown, FormatJSON, FormatHTML}
}

func (e *markerEngine) Probe(ctx context.Context) ProbeResult {
	return lookPathProbe(true, e.binary)
}

func (e *markerEngine) Convert(ctx context.Context, path string, format OutputFormat) (string, error) {
	dir, err := os.MkdirTemp("", "pdfstract-marker-")
	if err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	args := append([]string{}, e.extraArgs...)
	args = append(args, path, "--output_dir", dir, "--output_format", string(format))
	if _, err := runCommand(ctx, e.binary, args...); err != nil {
		return "", err
	}

	// marker writes output_dir/<stem>/<stem>.<ext>
	out, err := findFirstFile(dir, "."+formatExt(format))
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(out)
	if err != nil {
		return "", fmt.Errorf("read converted output: %w", err)
	}
	return string(data), nil
}

func (e *markerEngine) Download(ctx context.Context) error {
	return runDownloadArgv(ctx, e.download)
}

func (e *markerEngine) applyOverride(ov config.EngineOverride) {
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
