package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func newDownloadFixture(t *testing.T, h Handle) (*Registry, *Coordinator) {
	t.Helper()
	reg := NewRegistry([]Handle{h}, testLogger(), nil)
	reg.ProbeAll(context.Background())
	return reg, NewCoordinator(reg, testLogger(), nil)
}

func TestTrigger_SingleFlight(t *testing.T) {
	h := &fakeDownloadHandle{
		fakeHandle: fakeHandle{name: "model", probe: ProbeResult{Available: true, RequiresDownload: true}},
		delay:      200 * time.Millisecond,
	}
	_, coord := newDownloadFixture(t, h)

	const callers = 8
	start := make(chan struct{})
	errs := make(chan error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := coord.Trigger(context.Background(), "model")
			errs <- err
		}()
	}
	close(start)
	wg.Wait()
	close(errs)

	var succeeded, rejected int
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrDownloadInProgress):
			rejected++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}

	if got := h.downloads.Load(); got != 1 {
		t.Errorf("download executed %d times, want exactly 1", got)
	}
	if succeeded != 1 || rejected != callers-1 {
		t.Errorf("got %d successes and %d rejections, want 1 and %d", succeeded, rejected, callers-1)
	}

	// Once ready, another trigger is a no-op.
	desc, err := coord.Trigger(context.Background(), "model")
	if err != nil {
		t.Fatalf("re-trigger: %v", err)
	}
	if desc.DownloadStatus != DownloadReady {
		t.Errorf("expected ready, got %s", desc.DownloadStatus)
	}
	if got := h.downloads.Load(); got != 1 {
		t.Errorf("re-trigger ran the download again (%d executions)", got)
	}
}

func TestTrigger_NotApplicable(t *testing.T) {
	h := &fakeHandle{name: "plain", probe: ProbeResult{Available: true}}
	_, coord := newDownloadFixture(t, h)

	_, err := coord.Trigger(context.Background(), "plain")
	if !errors.Is(err, ErrNotApplicable) {
		t.Errorf("expected ErrNotApplicable, got %v", err)
	}
}

func TestTrigger_Unknown(t *testing.T) {
	_, coord := newDownloadFixture(t, &fakeHandle{name: "other"})

	_, err := coord.Trigger(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestTrigger_FailureLandsOnDescriptor(t *testing.T) {
	h := &fakeDownloadHandle{
		fakeHandle: fakeHandle{name: "model", probe: ProbeResult{Available: true, RequiresDownload: true}},
	}
	h.failOnce.Store(true)
	_, coord := newDownloadFixture(t, h)

	desc, err := coord.Trigger(context.Background(), "model")
	if err != nil {
		t.Fatalf("a failing download must not fail the trigger: %v", err)
	}
	if desc.DownloadStatus != DownloadFailed {
		t.Fatalf("expected failed, got %s", desc.DownloadStatus)
	}
	if desc.DownloadError == "" {
		t.Error("expected the failure message on the descriptor")
	}

	// A failed download can be retried.
	desc, err = coord.Trigger(context.Background(), "model")
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if desc.DownloadStatus != DownloadReady {
		t.Errorf("retry: expected ready, got %s", desc.DownloadStatus)
	}
	if desc.DownloadError != "" {
		t.Errorf("retry: stale download error %q", desc.DownloadError)
	}
	if got := h.downloads.Load(); got != 2 {
		t.Errorf("expected 2 executions after retry, got %d", got)
	}
}

func TestTrigger_MissingDownloaderImplementation(t *testing.T) {
	// Advertises a download requirement but implements no Downloader.
	h := &fakeHandle{name: "model", probe: ProbeResult{Available: true, RequiresDownload: true}}
	_, coord := newDownloadFixture(t, h)

	desc, err := coord.Trigger(context.Background(), "model")
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if desc.DownloadStatus != DownloadFailed {
		t.Errorf("expected failed, got %s", desc.DownloadStatus)
	}
	if desc.DownloadError == "" {
		t.Error("expected an explanation on the descriptor")
	}
}
