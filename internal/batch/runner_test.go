package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/raphaelgruber/pdfstract-go/internal/engine"
)

// fakeEngine fails inputs containing "bad" and tracks how many conversions
// run at the same time.
type fakeEngine struct {
	name        string
	available   bool
	delay       time.Duration
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (f *fakeEngine) Name() string                   { return f.name }
func (f *fakeEngine) Formats() []engine.OutputFormat { return []engine.OutputFormat{engine.FormatText} }

func (f *fakeEngine) Probe(ctx context.Context) engine.ProbeResult {
	if !f.available {
		return engine.ProbeResult{Available: false, Err: "binary not found in PATH"}
	}
	return engine.ProbeResult{Available: true}
}

func (f *fakeEngine) Convert(ctx context.Context, path string, format engine.OutputFormat) (string, error) {
	current := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		peak := f.maxInFlight.Load()
		if current <= peak || f.maxInFlight.CompareAndSwap(peak, current) {
			break
		}
	}

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.Contains(path, "bad") {
		return "", errors.New("conversion failed")
	}
	return "content of " + path, nil
}

func newBatchFixture(t *testing.T, available bool) (*fakeEngine, *Runner) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	fake := &fakeEngine{name: "fake", available: available, delay: 2 * time.Millisecond}
	reg := engine.NewRegistry([]engine.Handle{fake}, logger, nil)
	reg.ProbeAll(context.Background())
	return fake, NewRunner(reg, logger, nil, nil)
}

func TestRun_ReportInvariants(t *testing.T) {
	_, runner := newBatchFixture(t, true)

	inputs := []string{"a.pdf", "bad.pdf", "c.pdf", "d.pdf"}
	report, err := runner.Run(context.Background(), Request{
		Inputs:      inputs,
		Engine:      "fake",
		Parallelism: 2,
		Format:      engine.FormatText,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if report.JobID == "" {
		t.Error("expected a job ID")
	}
	if report.Total != 4 || report.Succeeded != 3 || report.Failed != 1 {
		t.Errorf("counts total=%d succeeded=%d failed=%d, want 4/3/1",
			report.Total, report.Succeeded, report.Failed)
	}
	if report.Succeeded+report.Failed != report.Total {
		t.Error("succeeded+failed must equal total")
	}
	if len(report.Records) != len(inputs) {
		t.Fatalf("expected %d records, got %d", len(inputs), len(report.Records))
	}

	// Records keep input order regardless of which worker finished first.
	for i, rec := range report.Records {
		if rec.Input != inputs[i] {
			t.Errorf("record %d is %q, want %q", i, rec.Input, inputs[i])
		}
	}

	for _, rec := range report.Records {
		if rec.Input == "bad.pdf" {
			if rec.Status != RecordError || rec.Error == "" {
				t.Errorf("bad.pdf: unexpected record %+v", rec)
			}
		} else if rec.Status != RecordSuccess || rec.Error != "" {
			t.Errorf("%s: unexpected record %+v", rec.Input, rec)
		}
	}
}

func TestRun_Validation(t *testing.T) {
	_, runner := newBatchFixture(t, true)
	_, unavailableRunner := newBatchFixture(t, false)

	tests := []struct {
		name   string
		runner *Runner
		req    Request
	}{
		{name: "no inputs", runner: runner, req: Request{Engine: "fake", Parallelism: 2, Format: engine.FormatText}},
		{name: "parallelism too low", runner: runner, req: Request{Inputs: []string{"a"}, Engine: "fake", Parallelism: 0, Format: engine.FormatText}},
		{name: "parallelism too high", runner: runner, req: Request{Inputs: []string{"a"}, Engine: "fake", Parallelism: 17, Format: engine.FormatText}},
		{name: "unknown engine", runner: runner, req: Request{Inputs: []string{"a"}, Engine: "nope", Parallelism: 2, Format: engine.FormatText}},
		{name: "unavailable engine", runner: unavailableRunner, req: Request{Inputs: []string{"a"}, Engine: "fake", Parallelism: 2, Format: engine.FormatText}},
		{name: "unsupported format", runner: runner, req: Request{Inputs: []string{"a"}, Engine: "fake", Parallelism: 2, Format: engine.FormatHTML}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.runner.Run(context.Background(), tt.req)
			if !errors.Is(err, engine.ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestRun_ParallelismBound(t *testing.T) {
	fake, runner := newBatchFixture(t, true)
	fake.delay = 20 * time.Millisecond

	inputs := make([]string, 6)
	for i := range inputs {
		inputs[i] = fmt.Sprintf("doc%d.pdf", i)
	}

	_, err := runner.Run(context.Background(), Request{
		Inputs:      inputs,
		Engine:      "fake",
		Parallelism: 2,
		Format:      engine.FormatText,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if got := fake.maxInFlight.Load(); got > 2 {
		t.Errorf("observed %d concurrent conversions, parallelism was 2", got)
	}
}

func TestRun_SinkErrorMarksRecordFailed(t *testing.T) {
	_, runner := newBatchFixture(t, true)

	report, err := runner.Run(context.Background(), Request{
		Inputs:      []string{"a.pdf", "c.pdf"},
		Engine:      "fake",
		Parallelism: 1,
		Format:      engine.FormatText,
		Sink: func(input, content string) error {
			if input == "c.pdf" {
				return errors.New("disk full")
			}
			return nil
		},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if report.Succeeded != 1 || report.Failed != 1 {
		t.Errorf("counts succeeded=%d failed=%d, want 1/1", report.Succeeded, report.Failed)
	}
	rec := report.Records[1]
	if rec.Status != RecordError || !strings.Contains(rec.Error, "write output") {
		t.Errorf("sink failure not surfaced on the record: %+v", rec)
	}
}

func TestRun_CanceledContext(t *testing.T) {
	_, runner := newBatchFixture(t, true)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := runner.Run(ctx, Request{
		Inputs:      []string{"a.pdf", "b.pdf", "c.pdf"},
		Engine:      "fake",
		Parallelism: 2,
		Format:      engine.FormatText,
	})
	if err != nil {
		t.Fatalf("run must account for every input even when canceled: %v", err)
	}

	if report.Total != 3 || report.Failed != 3 {
		t.Errorf("counts total=%d failed=%d, want every input failed", report.Total, report.Failed)
	}
	for _, rec := range report.Records {
		if rec.Status != RecordError {
			t.Errorf("%s: status %s, want error", rec.Input, rec.Status)
		}
	}
}

func TestRun_ArchiveReceivesReport(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	fake := &fakeEngine{name: "fake", available: true}
	reg := engine.NewRegistry([]engine.Handle{fake}, logger, nil)
	reg.ProbeAll(context.Background())

	var got atomic.Value
	runner := NewRunner(reg, logger, nil, func(rep Report) {
		got.Store(rep)
	})

	report, err := runner.Run(context.Background(), Request{
		Inputs:      []string{"a.pdf"},
		Engine:      "fake",
		Parallelism: 1,
		Format:      engine.FormatText,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	archived, ok := got.Load().(Report)
	if !ok {
		t.Fatal("archive hook never ran")
	}
	if archived.JobID != report.JobID {
		t.Errorf("archived job %s, want %s", archived.JobID, report.JobID)
	}
}
