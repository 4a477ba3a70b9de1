package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/raphaelgruber/pdfstract-go/internal/metrics"
)

// Coordinator serializes model downloads. It is the single writer of the
// registry's download status field: for any engine at most one download
// execution is in flight at a time.
type Coordinator struct {
	registry  *Registry
	logger    *slog.Logger
	collector *metrics.Collector

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewCoordinator creates a download coordinator over the registry.
// The collector may be nil.
func NewCoordinator(registry *Registry, logger *slog.Logger, collector *metrics.Collector) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		registry:  registry,
		logger:    logger,
		collector: collector,
		inFlight:  make(map[string]struct{}),
	}
}

// Trigger runs the model download for one engine synchronously and returns
// the engine's descriptor as it stands afterwards.
//
// Caller-input failures are returned as errors: ErrNotFound for an unknown
// engine, ErrNotApplicable when the engine needs no download,
// ErrDownloadInProgress when another download for the same engine is
// running. A failure of the download itself is not an error here; it lands
// on the descriptor as download_status=failed with the captured message.
// Triggering an engine whose models are already ready is a no-op.
func (c *Coordinator) Trigger(ctx context.Context, name string) (Descriptor, error) {
	desc, err := c.registry.Get(name)
	if err != nil {
		return Descriptor{}, err
	}
	if !desc.RequiresDownload {
		return desc, fmt.Errorf("%w: %q", ErrNotApplicable, name)
	}

	c.mu.Lock()
	if _, busy := c.inFlight[name]; busy {
		c.mu.Unlock()
		return desc, fmt.Errorf("%w: %q", ErrDownloadInProgress, name)
	}
	c.inFlight[name] = struct{}{}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.inFlight, name)
		c.mu.Unlock()
	}()

	// Re-read under the claim; an earlier holder may have finished.
	desc, err = c.registry.Get(name)
	if err != nil {
		return Descriptor{}, err
	}
	if desc.DownloadStatus == DownloadReady {
		c.logger.Debug("models already downloaded", "engine", name)
		return desc, nil
	}

	handle, err := c.registry.Handle(name)
	if err != nil {
		return Descriptor{}, err
	}
	dl, ok := handle.(Downloader)
	if !ok {
		c.registry.setDownloadStatus(name, DownloadFailed, "engine advertises a download but implements none")
		return c.mustGet(name), nil
	}

	c.registry.setDownloadStatus(name, Downloading, "")
	c.logger.Info("starting model download", "engine", name)

	start := time.Now()
	dlErr := safeDownload(ctx, dl)
	elapsed := time.Since(start)
	c.collector.Record(metrics.OpDownload+"."+name, elapsed, dlErr != nil)

	if dlErr != nil {
		c.registry.setDownloadStatus(name, DownloadFailed, dlErr.Error())
		c.logger.Warn("model download failed", "engine", name, "error", dlErr, "elapsed", elapsed)
	} else {
		c.registry.setDownloadStatus(name, DownloadReady, "")
		c.logger.Info("model download finished", "engine", name, "elapsed", elapsed)
	}

	return c.mustGet(name), nil
}

func (c *Coordinator) mustGet(name string) Descriptor {
	desc, err := c.registry.Get(name)
	if err != nil {
		return Descriptor{Name: name}
	}
	return desc
}

func safeDownload(ctx context.Context, dl Downloader) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("download panic: %v", rec)
		}
	}()
	return dl.Download(ctx)
}
