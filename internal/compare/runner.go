package compare

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/pdfstract-go/internal/engine"
	"github.com/raphaelgruber/pdfstract-go/internal/metrics"
)

// ArchiveFunc receives the finished snapshot of every completed task.
type ArchiveFunc func(Task)

// Runner validates submissions and fans one conversion goroutine per engine
// out against the task store. Engines run independently: one failing never
// cancels the others, and the task completes once the last outcome lands.
type Runner struct {
	store     *Store
	registry  *engine.Registry
	logger    *slog.Logger
	collector *metrics.Collector
	archive   ArchiveFunc
}

// NewRunner creates a comparison runner. collector and archive may be nil.
func NewRunner(store *Store, registry *engine.Registry, logger *slog.Logger, collector *metrics.Collector, archive ArchiveFunc) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		store:     store,
		registry:  registry,
		logger:    logger,
		collector: collector,
		archive:   archive,
	}
}

// Submit validates the request, creates the task and starts one worker per
// engine. It returns the task ID immediately; callers poll Store.Get until
// the task completes. Workers outlive the submit call on purpose, so they
// run on their own background context.
func (r *Runner) Submit(ctx context.Context, documentRef string, engines []string, format engine.OutputFormat) (string, error) {
	if documentRef == "" {
		return "", fmt.Errorf("%w: no document given", engine.ErrValidation)
	}
	if len(engines) == 0 {
		return "", fmt.Errorf("%w: no engines selected", engine.ErrValidation)
	}

	seen := make(map[string]bool, len(engines))
	for _, name := range engines {
		if seen[name] {
			return "", fmt.Errorf("%w: engine %q selected twice", engine.ErrValidation, name)
		}
		seen[name] = true

		desc, err := r.registry.Get(name)
		if err != nil {
			return "", fmt.Errorf("%w: unknown engine %q", engine.ErrValidation, name)
		}
		if !desc.Available {
			return "", fmt.Errorf("%w: engine %q is not available: %s", engine.ErrValidation, name, desc.Error)
		}
		if !desc.SupportsFormat(format) {
			return "", fmt.Errorf("%w: engine %q does not support format %q", engine.ErrValidation, name, format)
		}
	}

	t := r.store.Create(documentRef, engines, format)
	r.logger.Info("comparison task created",
		"task_id", t.ID,
		"document", documentRef,
		"engines", engines,
		"format", format)

	for _, name := range engines {
		go r.runEngine(t.ID, documentRef, name, format)
	}
	return t.ID, nil
}

// runEngine is one unit of work: exactly one engine within one task. All
// writes go through the store by task ID so a deleted task swallows the
// result instead of crashing anything.
func (r *Runner) runEngine(taskID, documentRef, engineName string, format engine.OutputFormat) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("comparison worker panicked",
				"task_id", taskID, "engine", engineName, "panic", rec)
		}
	}()

	if !r.store.markRunning(taskID, engineName) {
		r.logger.Debug("task gone before engine start", "task_id", taskID, "engine", engineName)
		return
	}

	start := time.Now()
	content, err := r.convert(context.Background(), engineName, documentRef, format)
	elapsed := time.Since(start)
	r.collector.Record(metrics.OpConvert+"."+engineName, elapsed, err != nil)

	oc := Outcome{ElapsedMS: elapsed.Milliseconds()}
	if err != nil {
		oc.Status = OutcomeError
		oc.Error = err.Error()
	} else {
		oc.Status = OutcomeSuccess
		oc.Content = content
	}

	written, completed := r.store.finishOutcome(taskID, engineName, oc)
	if !written {
		r.logger.Debug("discarding result for deleted task", "task_id", taskID, "engine", engineName)
		return
	}

	r.logger.Info("engine finished",
		"task_id", taskID,
		"engine", engineName,
		"status", oc.Status,
		"elapsed", elapsed)

	if completed && r.archive != nil {
		if snap, err := r.store.Get(taskID); err == nil {
			r.archive(snap)
		}
	}
}

// convert shields the worker from a panicking engine.
func (r *Runner) convert(ctx context.Context, engineName, documentRef string, format engine.OutputFormat) (content string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("conversion panic: %v", rec)
		}
	}()

	handle, err := r.registry.Handle(engineName)
	if err != nil {
		return "", err
	}
	return handle.Convert(ctx, documentRef, format)
}
