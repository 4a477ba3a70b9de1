// Package batch implements the batch pipeline: many documents against one
// engine through a bounded worker pool, yielding one aggregate report. The
// pipeline never fails fast; it exists to complete the maximum number of
// inputs.
package batch

import "github.com/raphaelgruber/pdfstract-go/internal/engine"

// Per-record statuses.
const (
	RecordSuccess = "success"
	RecordError   = "error"
)

// Record is the terminal outcome for one input document.
type Record struct {
	Input     string `json:"input"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	ElapsedMS int64  `json:"elapsed_ms"`
}

// Report aggregates one batch run. Records appear in original input order
// regardless of which worker finished first, and
// Succeeded+Failed == Total == len(inputs).
type Report struct {
	JobID     string              `json:"job_id"`
	Engine    string              `json:"engine"`
	Format    engine.OutputFormat `json:"format"`
	Total     int                 `json:"total"`
	Succeeded int                 `json:"succeeded"`
	Failed    int                 `json:"failed"`
	ElapsedMS int64               `json:"elapsed_ms"`
	Records   []Record            `json:"records"`
}
