package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/pdfstract-go/internal/engine"
	"github.com/raphaelgruber/pdfstract-go/internal/metrics"
)

// Parallelism bounds for a batch run.
const (
	MinParallelism = 1
	MaxParallelism = 16
)

// Request describes one batch run.
type Request struct {
	Inputs      []string
	Engine      string
	Parallelism int
	Format      engine.OutputFormat

	// Sink receives each successful conversion, e.g. to write output
	// files. A sink error marks that record as failed. Nil discards
	// content for report-only runs.
	Sink func(input, content string) error
}

// ArchiveFunc receives every finished report.
type ArchiveFunc func(Report)

// Runner drives batch jobs against the engine registry.
type Runner struct {
	registry  *engine.Registry
	logger    *slog.Logger
	collector *metrics.Collector
	archive   ArchiveFunc
}

// NewRunner creates a batch runner. collector and archive may be nil.
func NewRunner(registry *engine.Registry, logger *slog.Logger, collector *metrics.Collector, archive ArchiveFunc) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		registry:  registry,
		logger:    logger,
		collector: collector,
		archive:   archive,
	}
}

// Run validates the request, then drives a fixed pool of workers over the
// shared input queue. It returns only once every input has a terminal
// record. A single input's failure is recorded and never aborts the run;
// context cancellation drains the queue into canceled records rather than
// leaving inputs unaccounted for.
func (r *Runner) Run(ctx context.Context, req Request) (Report, error) {
	if len(req.Inputs) == 0 {
		return Report{}, fmt.Errorf("%w: no inputs given", engine.ErrValidation)
	}
	if req.Parallelism < MinParallelism || req.Parallelism > MaxParallelism {
		return Report{}, fmt.Errorf("%w: parallelism %d outside [%d,%d]",
			engine.ErrValidation, req.Parallelism, MinParallelism, MaxParallelism)
	}

	desc, err := r.registry.Get(req.Engine)
	if err != nil {
		return Report{}, fmt.Errorf("%w: unknown engine %q", engine.ErrValidation, req.Engine)
	}
	if !desc.Available {
		return Report{}, fmt.Errorf("%w: engine %q is not available: %s",
			engine.ErrValidation, req.Engine, desc.Error)
	}
	if !desc.SupportsFormat(req.Format) {
		return Report{}, fmt.Errorf("%w: engine %q does not support format %q",
			engine.ErrValidation, req.Engine, req.Format)
	}

	jobID := uuid.NewString()
	r.logger.Info("batch started",
		"job_id", jobID,
		"engine", req.Engine,
		"inputs", len(req.Inputs),
		"parallelism", req.Parallelism,
		"format", req.Format)

	start := time.Now()
	records := make([]Record, len(req.Inputs))
	indexChan := make(chan int, len(req.Inputs))

	var succeeded, failed atomic.Int32
	var wg sync.WaitGroup

	for w := 0; w < req.Parallelism; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for idx := range indexChan {
				rec := r.processOne(ctx, req, req.Inputs[idx])
				// Each index is claimed by exactly one worker, so the
				// slot write needs no lock.
				records[idx] = rec
				if rec.Status == RecordSuccess {
					succeeded.Add(1)
				} else {
					failed.Add(1)
				}
				r.logger.Debug("batch input finished",
					"job_id", jobID,
					"worker", workerID,
					"input", rec.Input,
					"status", rec.Status)
			}
		}(w)
	}

	for i := range req.Inputs {
		indexChan <- i
	}
	close(indexChan)
	wg.Wait()

	report := Report{
		JobID:     jobID,
		Engine:    req.Engine,
		Format:    req.Format,
		Total:     len(req.Inputs),
		Succeeded: int(succeeded.Load()),
		Failed:    int(failed.Load()),
		ElapsedMS: time.Since(start).Milliseconds(),
		Records:   records,
	}

	r.logger.Info("batch finished",
		"job_id", jobID,
		"total", report.Total,
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"elapsed", time.Since(start))

	if r.archive != nil {
		r.archive(report)
	}
	return report, nil
}

// processOne converts a single input and always produces a terminal record.
func (r *Runner) processOne(ctx context.Context, req Request, input string) Record {
	start := time.Now()
	content, err := r.convert(ctx, req.Engine, input, req.Format)
	elapsed := time.Since(start)
	r.collector.Record(metrics.OpConvert+"."+req.Engine, elapsed, err != nil)

	if err == nil && req.Sink != nil {
		if serr := req.Sink(input, content); serr != nil {
			err = fmt.Errorf("write output: %w", serr)
		}
	}

	rec := Record{Input: input, ElapsedMS: elapsed.Milliseconds()}
	if err != nil {
		rec.Status = RecordError
		rec.Error = err.Error()
	} else {
		rec.Status = RecordSuccess
	}
	return rec
}

// convert shields the worker from a panicking engine.
func (r *Runner) convert(ctx context.Context, engineName, input string, format engine.OutputFormat) (content string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("conversion panic: %v", rec)
		}
	}()

	handle, err := r.registry.Handle(engineName)
	if err != nil {
		return "", err
	}
	return handle.Convert(ctx, input, format)
}
