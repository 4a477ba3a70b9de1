// Package engine defines the extraction engine abstraction: a catalog of
// interchangeable conversion backends, a registry that tracks which of them
// are usable right now, and a coordinator that serializes model downloads.
package engine

import "context"

// OutputFormat is a conversion target format.
type OutputFormat string

const (
	FormatMarkdown OutputFormat = "markdown"
	FormatText     OutputFormat = "text"
	FormatJSON     OutputFormat = "json"
	FormatHTML     OutputFormat = "html"
)

// ParseFormat validates a format string. Empty input defaults to markdown.
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case "":
		return FormatMarkdown, nil
	case FormatMarkdown, FormatText, FormatJSON, FormatHTML:
		return OutputFormat(s), nil
	default:
		return "", validationf("unknown output format %q (expected markdown, text, json or html)", s)
	}
}

// DownloadStatus tracks model-fetch state for engines that need one.
type DownloadStatus string

const (
	DownloadNotRequired DownloadStatus = "not_required"
	DownloadNotStarted  DownloadStatus = "not_started"
	Downloading         DownloadStatus = "downloading"
	DownloadReady       DownloadStatus = "ready"
	DownloadFailed      DownloadStatus = "failed"
)

// ProbeResult is what a handle reports about its own usability.
type ProbeResult struct {
	Available        bool
	Err              string
	RequiresDownload bool
}

// Descriptor is the externally visible state of one engine. Values are
// snapshots; the registry owns the live copies. Error explains why the
// engine is unavailable; DownloadError carries the last failed model fetch.
type Descriptor struct {
	Name             string         `json:"name"`
	Available        bool           `json:"available"`
	Error            string         `json:"error,omitempty"`
	RequiresDownload bool           `json:"requires_download"`
	DownloadStatus   DownloadStatus `json:"download_status"`
	DownloadError    string         `json:"download_error,omitempty"`
	Formats          []OutputFormat `json:"formats"`
}

// SupportsFormat reports whether the engine advertises the given format.
func (d Descriptor) SupportsFormat(format OutputFormat) bool {
	for _, f := range d.Formats {
		if f == format {
			return true
		}
	}
	return false
}

// Handle wraps one extraction engine. Probe and Convert must be safe for
// concurrent use; Convert is treated as an opaque, potentially long-running
// external call.
type Handle interface {
	Name() string
	Formats() []OutputFormat
	Probe(ctx context.Context) ProbeResult
	Convert(ctx context.Context, path string, format OutputFormat) (string, error)
}

// Downloader is implemented by handles whose models must be fetched before
// first use. Only the DownloadCoordinator calls it.
type Downloader interface {
	Download(ctx context.Context) error
}
