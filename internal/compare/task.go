// Package compare implements the comparison task subsystem: one document
// fanned out to several engines concurrently, with a pollable task state
// that advances as per-engine outcomes land.
package compare

import (
	"time"

	"github.com/raphaelgruber/pdfstract-go/internal/engine"
)

// Status is the aggregate state of a comparison task. It only ever moves
// forward: pending -> running -> completed.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
)

// OutcomeStatus is the state of one engine within one task.
type OutcomeStatus string

const (
	OutcomePending OutcomeStatus = "pending"
	OutcomeRunning OutcomeStatus = "running"
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeError   OutcomeStatus = "error"
)

// Terminal reports whether the outcome can no longer change.
func (s OutcomeStatus) Terminal() bool {
	return s == OutcomeSuccess || s == OutcomeError
}

// Outcome is the progress or result of one engine within one task.
type Outcome struct {
	Status    OutcomeStatus `json:"status"`
	Content   string        `json:"content,omitempty"`
	Error     string        `json:"error,omitempty"`
	ElapsedMS int64         `json:"elapsed_ms,omitempty"`
}

// Task is a read-only snapshot of a comparison task. The outcome map keys
// are exactly the requested engines, fixed at creation.
type Task struct {
	ID          string              `json:"task_id"`
	DocumentRef string              `json:"document"`
	Engines     []string            `json:"engines"`
	Format      engine.OutputFormat `json:"format"`
	Status      Status              `json:"status"`
	CreatedAt   time.Time           `json:"created_at"`
	Outcomes    map[string]Outcome  `json:"outcomes"`
}

// Completed reports whether every outcome is terminal.
func (t Task) Completed() bool {
	return t.Status == StatusCompleted
}
