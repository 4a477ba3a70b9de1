package compare

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/pdfstract-go/internal/engine"
)

// ErrNotFound means the task ID is not (or no longer) in the store.
var ErrNotFound = errors.New("task not found")

// task is the live, mutable form. The store map is guarded by the store
// lock; task fields are guarded by the task lock, which also serializes the
// aggregate status recomputation.
type task struct {
	id          string
	documentRef string
	engines     []string
	format      engine.OutputFormat
	createdAt   time.Time

	mu       sync.Mutex
	status   Status
	outcomes map[string]Outcome
}

// Store owns the lifecycle of comparison tasks. Workers write outcomes
// through the store by task ID, so a deleted task simply swallows late
// results; readers always get deep-copied snapshots.
type Store struct {
	mu    sync.RWMutex
	tasks map[string]*task
}

// NewStore creates an empty task store.
func NewStore() *Store {
	return &Store{tasks: make(map[string]*task)}
}

// Create registers a new pending task with one pending outcome per engine.
func (s *Store) Create(documentRef string, engines []string, format engine.OutputFormat) Task {
	t := &task{
		id:          uuid.NewString(),
		documentRef: documentRef,
		engines:     slices.Clone(engines),
		format:      format,
		createdAt:   time.Now(),
		status:      StatusPending,
		outcomes:    make(map[string]Outcome, len(engines)),
	}
	for _, name := range engines {
		t.outcomes[name] = Outcome{Status: OutcomePending}
	}

	s.mu.Lock()
	s.tasks[t.id] = t
	s.mu.Unlock()

	return t.snapshot()
}

// Get returns a snapshot of one task.
func (s *Store) Get(id string) (Task, error) {
	t := s.lookup(id)
	if t == nil {
		return Task{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return t.snapshot(), nil
}

// List returns snapshots of all tasks, most recent first.
func (s *Store) List() []Task {
	s.mu.RLock()
	live := make([]*task, 0, len(s.tasks))
	for _, t := range s.tasks {
		live = append(live, t)
	}
	s.mu.RUnlock()

	slices.SortFunc(live, func(a, b *task) int {
		return b.createdAt.Compare(a.createdAt)
	})

	out := make([]Task, 0, len(live))
	for _, t := range live {
		out = append(out, t.snapshot())
	}
	return out
}

// Delete removes a task. Safe to call while its workers are in flight;
// their subsequent writes find no entry and are discarded.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[id]; !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	delete(s.tasks, id)
	return nil
}

func (s *Store) lookup(id string) *task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tasks[id]
}

// markRunning flips one outcome from pending to running. Reports false when
// the task no longer exists.
func (s *Store) markRunning(id, engineName string) bool {
	t := s.lookup(id)
	if t == nil {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	oc, ok := t.outcomes[engineName]
	if !ok || oc.Status.Terminal() {
		return false
	}
	oc.Status = OutcomeRunning
	t.outcomes[engineName] = oc
	t.recomputeStatusLocked()
	return true
}

// finishOutcome writes one engine's terminal outcome and recomputes the
// aggregate status. written reports whether the result was accepted;
// completed reports whether this write was the one that finished the task.
func (s *Store) finishOutcome(id, engineName string, oc Outcome) (written, completed bool) {
	t := s.lookup(id)
	if t == nil {
		return false, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	prev, ok := t.outcomes[engineName]
	if !ok || prev.Status.Terminal() {
		// Terminal outcomes are immutable.
		return false, false
	}

	wasCompleted := t.status == StatusCompleted
	t.outcomes[engineName] = oc
	t.recomputeStatusLocked()
	return true, !wasCompleted && t.status == StatusCompleted
}

// recomputeStatusLocked derives the aggregate status from the outcomes.
// Caller holds the task lock. Because terminal outcomes never change, the
// derived status is monotonic.
func (t *task) recomputeStatusLocked() {
	allTerminal := true
	anyStarted := false
	for _, oc := range t.outcomes {
		if !oc.Status.Terminal() {
			allTerminal = false
		}
		if oc.Status != OutcomePending {
			anyStarted = true
		}
	}
	switch {
	case allTerminal:
		t.status = StatusCompleted
	case anyStarted:
		t.status = StatusRunning
	default:
		t.status = StatusPending
	}
}

// snapshot returns a deep copy safe to hand to readers.
func (t *task) snapshot() Task {
	t.mu.Lock()
	defer t.mu.Unlock()

	outcomes := make(map[string]Outcome, len(t.outcomes))
	for name, oc := range t.outcomes {
		outcomes[name] = oc
	}
	return Task{
		ID:          t.id,
		DocumentRef: t.documentRef,
		Engines:     slices.Clone(t.engines),
		Format:      t.format,
		Status:      t.status,
		CreatedAt:   t.createdAt,
		Outcomes:    outcomes,
	}
}
