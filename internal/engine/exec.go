package engine

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/raphaelgruber/pdfstract-go/internal/config"
)

// customizable is implemented by handles that accept engines-file overrides.
type customizable interface {
	applyOverride(ov config.EngineOverride)
}

// lookPathProbe reports availability based on the presence of binaries in
// PATH. The first missing binary becomes the descriptor error.
func lookPathProbe(requiresDownload bool, binaries ...string) ProbeResult {
	for _, bin := range binaries {
		if _, err := exec.LookPath(bin); err != nil {
			return ProbeResult{
				Err:              fmt.Sprintf("%s not found in PATH", bin),
				RequiresDownload: requiresDownload,
			}
		}
	}
	return ProbeResult{Available: true, RequiresDownload: requiresDownload}
}

// runCommand executes a binary and returns its stdout. On failure the
// trimmed tail of stderr is folded into the error message.
func runCommand(ctx context.Context, binary string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, binary, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := tailOf(stderr.String()); msg != "" {
			return "", fmt.Errorf("%s: %w: %s", binary, err, msg)
		}
		return "", fmt.Errorf("%s: %w", binary, err)
	}
	return stdout.String(), nil
}

const stderrTailLimit = 400

// tailOf collapses tool stderr into a single line, keeping the tail where
// CLI tools put the actual failure reason.
func tailOf(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > stderrTailLimit {
		s = "..." + s[len(s)-stderrTailLimit:]
	}
	return s
}

// runDownloadArgv executes a configured model-download command.
func runDownloadArgv(ctx context.Context, argv []string) error {
	if len(argv) == 0 {
		return fmt.Errorf("no download command configured")
	}
	if _, err := exec.LookPath(argv[0]); err != nil {
		return fmt.Errorf("%s not found in PATH", argv[0])
	}
	if _, err := runCommand(ctx, argv[0], argv[1:]...); err != nil {
		return err
	}
	return nil
}

// formatExt maps an output format to the file extension CLI tools produce.
func formatExt(format OutputFormat) string {
	switch format {
	case FormatMarkdown:
		return "md"
	case FormatJSON:
		return "json"
	case FormatHTML:
		return "html"
	default:
		return "txt"
	}
}

// findFirstFile locates the first file with the given extension under root.
// Tools like marker nest their output one directory per document.
func findFirstFile(root, ext string) (string, error) {
	var found string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(p, ext) {
			found = p
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("scan %s: %w", root, err)
	}
	if found == "" {
		return "", fmt.Errorf("no *%s output found under %s", ext, root)
	}
	return found, nil
}

func documentStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// popplerEngine extracts plain text through the poppler pdftotext CLI.
type popplerEngine struct {
	binary    string
	extraArgs []string
}

func newPopplerEngine() *popplerEngine {
	return &popplerEngine{binary: "pdftotext"}
}

func (e *popplerEngine) Name() string            { return "poppler" }
func (e *popplerEngine) Formats() []OutputFormat { return []OutputFormat{FormatText} }

func (e *popplerEngine) Probe(ctx context.Context) ProbeResult {
	return lookPathProbe(false, e.binary)
}

func (e *popplerEngine) Convert(ctx context.Context, path string, format OutputFormat) (string, error) {
	args := append([]string{"-layout", "-enc", "UTF-8"}, e.extraArgs...)
	args = append(args, path, "-")
	return runCommand(ctx, e.binary, args...)
}

func (e *popplerEngine) applyOverride(ov config.EngineOverride) {
	if ov.Binary != "" {
		e.binary = ov.Binary
	}
	if len(ov.Args) > 0 {
		e.extraArgs = ov.Args
	}
}

// mupdfEngine converts documents through the MuPDF mutool CLI, which picks
// its output format from the target file extension.
type mupdfEngine struct {
	binary    string
	extraArgs []string
}

func newMupdfEngine() *mupdfEngine {
	return &mupdfEngine{binary: "mutool"}
}

func (e *mupdfEngine) Name() string            { return "mupdf" }
func (e *mupdfEngine) Formats() []OutputFormat { return []OutputFormat{FormatText, FormatHTML} }

func (e *mupdfEngine) Probe(ctx context.Context) ProbeResult {
	return lookPathProbe(false, e.binary)
}

func (e *mupdfEngine) Convert(ctx context.Context, path string, format OutputFormat) (string, error) {
	dir, err := os.MkdirTemp("", "pdfstract-mupdf-")
	if err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	out := filepath.Join(dir, "out."+formatExt(format))
	args := append([]string{"convert", "-o", out}, e.extraArgs...)
	args = append(args, path)
	if _, err := runCommand(ctx, e.binary, args...); err != nil {
		return "", err
	}

	data, err := os.ReadFile(out)
	if err != nil {
		return "", fmt.Errorf("read converted output: %w", err)
	}
	return string(data), nil
}

func (e *mupdfEngine) applyOverride(ov config.EngineOverride) {
	if ov.Binary != "" {
		e.binary = ov.Binary
	}
	if len(ov.Args) > 0 {
		e.extraArgs = ov.Args
	}
}

// markitdownEngine shells out to the markitdown CLI, which prints markdown
// to stdout.
type markitdownEngine struct {
	binary    string
	extraArgs []string
}

func newMarkitdownEngine() *markitdownEngine {
	return &markitdownEngine{binary: "markitdown"}
}

func (e *markitdownEngine) Name() string            { return "markitdown" }
func (e *markitdownEngine) Formats() []OutputFormat { return []OutputFormat{FormatMarkdown} }

func (e *markitdownEngine) Probe(ctx context.Context) ProbeResult {
	return lookPathProbe(false, e.binary)
}

func (e *markitdownEngine) Convert(ctx context.Context, path string, format OutputFormat) (string, error) {
	args := append([]string{}, e.extraArgs...)
	args = append(args, path)
	return runCommand(ctx, e.binary, args...)
}

func (e *markitdownEngine) applyOverride(ov config.EngineOverride) {
	if ov.Binary != "" {
		e.binary = ov.Binary
	}
	if len(ov.Args) > 0 {
		e.extraArgs = ov.Args
	}
}
