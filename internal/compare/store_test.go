package compare

import (
	"errors"
	"testing"
	"time"

	"github.com/raphaelgruber/pdfstract-go/internal/engine"
)

func TestCreateAndGet(t *testing.T) {
	store := NewStore()

	created := store.Create("doc.pdf", []string{"poppler", "mupdf"}, engine.FormatText)
	if created.ID == "" {
		t.Fatal("expected a task ID")
	}
	if created.Status != StatusPending {
		t.Errorf("new task status = %s, want pending", created.Status)
	}
	if created.CreatedAt.IsZero() {
		t.Error("expected a creation timestamp")
	}

	got, err := store.Get(created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.DocumentRef != "doc.pdf" || got.Format != engine.FormatText {
		t.Errorf("unexpected task %+v", got)
	}
	assertOutcomeKeys(t, got, "poppler", "mupdf")
	for name, oc := range got.Outcomes {
		if oc.Status != OutcomePending {
			t.Errorf("outcome %s starts as %s, want pending", name, oc.Status)
		}
	}
}

func TestGet_Unknown(t *testing.T) {
	store := NewStore()
	if _, err := store.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStatusTransitions(t *testing.T) {
	store := NewStore()
	task := store.Create("doc.pdf", []string{"a", "b"}, engine.FormatText)

	if !store.markRunning(task.ID, "a") {
		t.Fatal("markRunning rejected a pending outcome")
	}
	snap := mustGet(t, store, task.ID)
	if snap.Status != StatusRunning {
		t.Errorf("after one engine starts: status %s, want running", snap.Status)
	}

	store.finishOutcome(task.ID, "a", Outcome{Status: OutcomeSuccess, Content: "text"})
	snap = mustGet(t, store, task.ID)
	if snap.Status != StatusRunning {
		t.Errorf("with one engine pending: status %s, want running", snap.Status)
	}
	assertOutcomeKeys(t, snap, "a", "b")

	store.markRunning(task.ID, "b")
	store.finishOutcome(task.ID, "b", Outcome{Status: OutcomeError, Error: "conversion failed"})
	snap = mustGet(t, store, task.ID)
	if snap.Status != StatusCompleted {
		t.Errorf("all terminal: status %s, want completed", snap.Status)
	}
	if !snap.Completed() {
		t.Error("Completed() disagrees with status")
	}
	assertOutcomeKeys(t, snap, "a", "b")
}

func TestFinishOutcome_TerminalImmutable(t *testing.T) {
	store := NewStore()
	task := store.Create("doc.pdf", []string{"a"}, engine.FormatText)

	written, completed := store.finishOutcome(task.ID, "a", Outcome{Status: OutcomeSuccess, Content: "first"})
	if !written || !completed {
		t.Fatalf("first write: written=%v completed=%v", written, completed)
	}

	written, completed = store.finishOutcome(task.ID, "a", Outcome{Status: OutcomeError, Error: "late"})
	if written || completed {
		t.Errorf("terminal outcome was overwritten: written=%v completed=%v", written, completed)
	}

	snap := mustGet(t, store, task.ID)
	if snap.Outcomes["a"].Content != "first" {
		t.Errorf("outcome content changed to %q", snap.Outcomes["a"].Content)
	}
}

func TestFinishOutcome_UnknownEngine(t *testing.T) {
	store := NewStore()
	task := store.Create("doc.pdf", []string{"a"}, engine.FormatText)

	if written, _ := store.finishOutcome(task.ID, "other", Outcome{Status: OutcomeSuccess}); written {
		t.Error("write for an engine outside the task was accepted")
	}
	assertOutcomeKeys(t, mustGet(t, store, task.ID), "a")
}

func TestDelete(t *testing.T) {
	store := NewStore()
	task := store.Create("doc.pdf", []string{"a"}, engine.FormatText)

	if err := store.Delete(task.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(task.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := store.Delete(task.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: expected ErrNotFound, got %v", err)
	}

	// Late worker writes land nowhere and report so.
	if store.markRunning(task.ID, "a") {
		t.Error("markRunning succeeded on a deleted task")
	}
	if written, completed := store.finishOutcome(task.ID, "a", Outcome{Status: OutcomeSuccess}); written || completed {
		t.Error("finishOutcome succeeded on a deleted task")
	}
}

func TestList_NewestFirst(t *testing.T) {
	store := NewStore()

	var ids []string
	for i := 0; i < 3; i++ {
		task := store.Create("doc.pdf", []string{"a"}, engine.FormatText)
		ids = append(ids, task.ID)
		time.Sleep(2 * time.Millisecond)
	}

	list := store.List()
	if len(list) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(list))
	}
	for i, task := range list {
		if want := ids[len(ids)-1-i]; task.ID != want {
			t.Errorf("list[%d] = %s, want %s", i, task.ID, want)
		}
	}
}

func TestSnapshot_Isolated(t *testing.T) {
	store := NewStore()
	task := store.Create("doc.pdf", []string{"a"}, engine.FormatText)

	snap := mustGet(t, store, task.ID)
	snap.Outcomes["a"] = Outcome{Status: OutcomeError, Error: "mutated"}
	snap.Engines[0] = "mutated"

	fresh := mustGet(t, store, task.ID)
	if fresh.Outcomes["a"].Status != OutcomePending || fresh.Engines[0] != "a" {
		t.Error("mutating a snapshot leaked into the store")
	}
}

func mustGet(t *testing.T, store *Store, id string) Task {
	t.Helper()
	task, err := store.Get(id)
	if err != nil {
		t.Fatalf("get %s: %v", id, err)
	}
	return task
}

func assertOutcomeKeys(t *testing.T, task Task, engines ...string) {
	t.Helper()
	if len(task.Outcomes) != len(engines) {
		t.Fatalf("outcome key set has %d entries, want %d", len(task.Outcomes), len(engines))
	}
	for _, name := range engines {
		if _, ok := task.Outcomes[name]; !ok {
			t.Errorf("outcome for %q missing", name)
		}
	}
}
