package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/raphaelgruber/pdfstract-go/internal/metrics"
)

// fakeHandle is a scriptable engine for registry and coordinator tests.
type fakeHandle struct {
	name       string
	probe      ProbeResult
	probePanic bool
	content    string
}

func (f *fakeHandle) Name() string            { return f.name }
func (f *fakeHandle) Formats() []OutputFormat { return []OutputFormat{FormatText} }

func (f *fakeHandle) Probe(ctx context.Context) ProbeResult {
	if f.probePanic {
		panic("probe exploded")
	}
	return f.probe
}

func (f *fakeHandle) Convert(ctx context.Context, path string, format OutputFormat) (string, error) {
	return f.content, nil
}

// fakeDownloadHandle additionally implements Downloader.
type fakeDownloadHandle struct {
	fakeHandle
	delay     time.Duration
	failOnce  atomic.Bool
	downloads atomic.Int32
}

func (f *fakeDownloadHandle) Download(ctx context.Context) error {
	f.downloads.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.failOnce.CompareAndSwap(true, false) {
		return errors.New("registry timed out")
	}
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestProbeAll_Invariants(t *testing.T) {
	handles := []Handle{
		&fakeHandle{name: "good", probe: ProbeResult{Available: true}},
		&fakeHandle{name: "missing", probe: ProbeResult{Available: false, Err: "binary not found in PATH"}},
		&fakeHandle{name: "model", probe: ProbeResult{Available: true, RequiresDownload: true}},
		&fakeHandle{name: "broken", probePanic: true},
		&fakeHandle{name: "silent", probe: ProbeResult{Available: false}},
	}
	collector := metrics.NewCollector()
	reg := NewRegistry(handles, testLogger(), collector)

	reg.ProbeAll(context.Background())
	snap := reg.Snapshot()

	if len(snap) != len(handles) {
		t.Fatalf("expected %d descriptors, got %d", len(handles), len(snap))
	}
	for i, h := range handles {
		if snap[i].Name != h.Name() {
			t.Errorf("descriptor %d: got %q, want registration order %q", i, snap[i].Name, h.Name())
		}
	}

	byName := make(map[string]Descriptor, len(snap))
	for _, d := range snap {
		byName[d.Name] = d
	}

	if d := byName["good"]; !d.Available || d.Error != "" || d.DownloadStatus != DownloadNotRequired {
		t.Errorf("good: unexpected descriptor %+v", d)
	}
	if d := byName["missing"]; d.Available || d.Error != "binary not found in PATH" {
		t.Errorf("missing: unexpected descriptor %+v", d)
	}
	if d := byName["model"]; !d.RequiresDownload || d.DownloadStatus != DownloadNotStarted {
		t.Errorf("model: unexpected descriptor %+v", d)
	}
	if d := byName["broken"]; d.Available || !strings.Contains(d.Error, "probe panic") {
		t.Errorf("broken: panic not captured, descriptor %+v", d)
	}
	if d := byName["silent"]; d.Available || d.Error == "" {
		t.Errorf("silent: unavailable engine must carry a reason, descriptor %+v", d)
	}

	ops := collector.Snapshot().Operations
	if op, ok := ops[metrics.OpProbe+".good"]; !ok || op.Count != 1 || op.Errors != 0 {
		t.Errorf("probe.good: expected one clean probe, got %+v", op)
	}
	if op, ok := ops[metrics.OpProbe+".broken"]; !ok || op.Errors != 1 {
		t.Errorf("probe.broken: failed probe not counted as error, got %+v", op)
	}
}

func TestProbeAll_PreservesDownloadStatus(t *testing.T) {
	h := &fakeDownloadHandle{fakeHandle: fakeHandle{
		name:  "model",
		probe: ProbeResult{Available: true, RequiresDownload: true},
	}}
	reg := NewRegistry([]Handle{h}, testLogger(), nil)
	reg.ProbeAll(context.Background())

	coord := NewCoordinator(reg, testLogger(), nil)
	desc, err := coord.Trigger(context.Background(), "model")
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if desc.DownloadStatus != DownloadReady {
		t.Fatalf("expected ready after download, got %s", desc.DownloadStatus)
	}

	// A re-probe must not reset coordinator-driven state.
	reg.ProbeAll(context.Background())
	desc, err = reg.Get("model")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if desc.DownloadStatus != DownloadReady {
		t.Errorf("re-probe reset download status to %s", desc.DownloadStatus)
	}
}

func TestRegistry_DuplicateName(t *testing.T) {
	first := &fakeHandle{name: "dup", probe: ProbeResult{Available: true}, content: "first"}
	second := &fakeHandle{name: "dup", probe: ProbeResult{Available: true}, content: "second"}
	reg := NewRegistry([]Handle{first, second}, testLogger(), nil)
	reg.ProbeAll(context.Background())

	if got := len(reg.Snapshot()); got != 1 {
		t.Fatalf("expected 1 descriptor, got %d", got)
	}

	h, err := reg.Handle("dup")
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	content, _ := h.Convert(context.Background(), "x", FormatText)
	if content != "first" {
		t.Errorf("duplicate registration replaced the first handle")
	}
}

func TestRegistry_Unknown(t *testing.T) {
	reg := NewRegistry(nil, testLogger(), nil)

	if _, err := reg.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get: expected ErrNotFound, got %v", err)
	}
	if _, err := reg.Handle("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Handle: expected ErrNotFound, got %v", err)
	}
}

func TestNames_RegistrationOrder(t *testing.T) {
	reg := NewRegistry([]Handle{
		&fakeHandle{name: "c"},
		&fakeHandle{name: "a"},
		&fakeHandle{name: "b"},
	}, testLogger(), nil)

	want := []string{"c", "a", "b"}
	got := reg.Names()
	if len(got) != len(want) {
		t.Fatalf("expected %d names, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
