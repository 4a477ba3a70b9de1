package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/raphaelgruber/pdfstract-go/internal/metrics"
)

// Registry owns the set of known engines and their descriptors. Descriptors
// are created by ProbeAll and afterwards mutated only through
// setDownloadStatus (called by the DownloadCoordinator) or a re-probe.
type Registry struct {
	mu        sync.RWMutex
	order     []string
	handles   map[string]Handle
	state     map[string]Descriptor
	logger    *slog.Logger
	collector *metrics.Collector
}

// NewRegistry creates a registry over the given handles. Registration order
// is preserved in snapshots. Duplicate names keep the first handle. The
// collector may be nil.
func NewRegistry(handles []Handle, logger *slog.Logger, collector *metrics.Collector) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		handles:   make(map[string]Handle, len(handles)),
		state:     make(map[string]Descriptor, len(handles)),
		logger:    logger,
		collector: collector,
	}
	for _, h := range handles {
		name := h.Name()
		if _, ok := r.handles[name]; ok {
			logger.Warn("duplicate engine registration ignored", "engine", name)
			continue
		}
		r.handles[name] = h
		r.order = append(r.order, name)
	}
	return r
}

// ProbeAll probes every known engine and (re)builds its descriptor. A probe
// failure or panic never fails the call; it is captured on the descriptor as
// available=false with the reason. Safe to call again for an on-demand
// re-probe; an engine's download status survives re-probing.
func (r *Registry) ProbeAll(ctx context.Context) map[string]Descriptor {
	type probed struct {
		name string
		res  ProbeResult
	}

	results := make(chan probed, len(r.order))
	var wg sync.WaitGroup
	for _, name := range r.order {
		wg.Add(1)
		go func(name string, h Handle) {
			defer wg.Done()
			start := time.Now()
			res := safeProbe(ctx, h)
			r.collector.Record(metrics.OpProbe+"."+name, time.Since(start), !res.Available)
			results <- probed{name: name, res: res}
		}(name, r.handles[name])
	}
	wg.Wait()
	close(results)

	out := make(map[string]Descriptor, len(r.order))

	r.mu.Lock()
	for p := range results {
		h := r.handles[p.name]
		status, downloadErr := r.nextDownloadStatus(p.name, p.res.RequiresDownload)
		desc := Descriptor{
			Name:             p.name,
			Available:        p.res.Available,
			Error:            p.res.Err,
			RequiresDownload: p.res.RequiresDownload,
			DownloadStatus:   status,
			DownloadError:    downloadErr,
			Formats:          h.Formats(),
		}
		if !desc.Available && desc.Error == "" {
			desc.Error = "engine reported unavailable"
		}
		r.state[p.name] = desc
		out[p.name] = desc
	}
	r.mu.Unlock()

	for _, name := range r.order {
		d := out[name]
		r.logger.Debug("engine probed",
			"engine", name,
			"available", d.Available,
			"requires_download", d.RequiresDownload,
			"error", d.Error)
	}
	return out
}

// nextDownloadStatus decides the post-probe download status. Caller holds the
// write lock. Statuses already driven by the coordinator are preserved.
func (r *Registry) nextDownloadStatus(name string, requiresDownload bool) (DownloadStatus, string) {
	if !requiresDownload {
		return DownloadNotRequired, ""
	}
	prev, ok := r.state[name]
	if ok && prev.RequiresDownload {
		switch prev.DownloadStatus {
		case Downloading, DownloadReady, DownloadFailed:
			return prev.DownloadStatus, prev.DownloadError
		}
	}
	return DownloadNotStarted, ""
}

func safeProbe(ctx context.Context, h Handle) (res ProbeResult) {
	defer func() {
		if rec := recover(); rec != nil {
			res = ProbeResult{Available: false, Err: fmt.Sprintf("probe panic: %v", rec)}
		}
	}()
	return h.Probe(ctx)
}

// Snapshot returns the current descriptors in registration order.
func (r *Registry) Snapshot() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		if desc, ok := r.state[name]; ok {
			out = append(out, desc)
		}
	}
	return out
}

// Get returns the descriptor for one engine.
func (r *Registry) Get(name string) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	desc, ok := r.state[name]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return desc, nil
}

// Handle returns the underlying handle for one engine.
func (r *Registry) Handle(name string) (Handle, error) {
	h, ok := r.handles[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return h, nil
}

// Names returns the known engine names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// setDownloadStatus atomically updates one engine's download status and the
// associated download error. Only the DownloadCoordinator calls this.
func (r *Registry) setDownloadStatus(name string, status DownloadStatus, errMsg string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	desc, ok := r.state[name]
	if !ok {
		return
	}
	desc.DownloadStatus = status
	desc.DownloadError = ""
	if status == DownloadFailed {
		desc.DownloadError = errMsg
	}
	r.state[name] = desc
}
