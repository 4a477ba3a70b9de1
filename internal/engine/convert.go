package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/raphaelgruber/pdfstract-go/internal/metrics"
)

// Conversion is the result of one single-document conversion.
type Conversion struct {
	Engine    string       `json:"engine"`
	Format    OutputFormat `json:"format"`
	Content   string       `json:"content"`
	ElapsedMS int64        `json:"elapsed_ms"`
}

// RunConversion converts one document with one engine. Unknown engines fail
// with ErrNotFound; an unavailable engine or unsupported format fails with
// ErrValidation. The conversion call itself is the only error source beyond
// that, returned verbatim for the caller to record.
func RunConversion(ctx context.Context, reg *Registry, collector *metrics.Collector, name, path string, format OutputFormat) (Conversion, error) {
	desc, err := reg.Get(name)
	if err != nil {
		return Conversion{}, err
	}
	if !desc.Available {
		return Conversion{}, validationf("engine %q is not available: %s", name, desc.Error)
	}
	if !desc.SupportsFormat(format) {
		return Conversion{}, validationf("engine %q does not support format %q", name, format)
	}

	handle, err := reg.Handle(name)
	if err != nil {
		return Conversion{}, err
	}

	start := time.Now()
	content, err := safeConvert(ctx, handle, path, format)
	elapsed := time.Since(start)
	collector.Record(metrics.OpConvert+"."+name, elapsed, err != nil)

	if err != nil {
		return Conversion{}, fmt.Errorf("convert with %s: %w", name, err)
	}
	return Conversion{
		Engine:    name,
		Format:    format,
		Content:   content,
		ElapsedMS: elapsed.Milliseconds(),
	}, nil
}

// safeConvert shields callers from a panicking engine; the conversion call
// is opaque external code.
func safeConvert(ctx context.Context, h Handle, path string, format OutputFormat) (content string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("conversion panic: %v", rec)
		}
	}()
	return h.Convert(ctx, path, format)
}
