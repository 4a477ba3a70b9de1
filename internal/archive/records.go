package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go"

	"github.com/raphaelgruber/pdfstract-go/internal/batch"
	"github.com/raphaelgruber/pdfstract-go/internal/compare"
)

// OutcomeRecord is one engine's result inside an archived comparison.
type OutcomeRecord struct {
	Engine    string `json:"engine"`
	Status    string `json:"status"`
	Content   string `json:"content,omitempty"`
	Error     string `json:"error,omitempty"`
	ElapsedMS int64  `json:"elapsed_ms"`
}

// ComparisonRecord is an archived comparison task.
type ComparisonRecord struct {
	TaskID   string          `json:"task_id"`
	Document string          `json:"document"`
	Format   string          `json:"format"`
	Engines  []string        `json:"engines"`
	Outcomes []OutcomeRecord `json:"outcomes"`
	Created  time.Time       `json:"created,omitempty"`
}

// ComparisonSummary is a comparison row without the outcome payloads.
type ComparisonSummary struct {
	TaskID   string    `json:"task_id"`
	Document string    `json:"document"`
	Format   string    `json:"format"`
	Engines  []string  `json:"engines"`
	Created  time.Time `json:"created,omitempty"`
}

// BatchEntry is one input's result inside an archived batch report.
type BatchEntry struct {
	Input     string `json:"input"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	ElapsedMS int64  `json:"elapsed_ms"`
}

// BatchRecord is an archived batch report.
type BatchRecord struct {
	JobID     string       `json:"job_id"`
	Engine    string       `json:"engine"`
	Format    string       `json:"format"`
	Total     int          `json:"total"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	ElapsedMS int64        `json:"elapsed_ms"`
	Records   []BatchEntry `json:"records"`
	Created   time.Time    `json:"created,omitempty"`
}

// SaveComparison archives a completed comparison task. Saving the same task
// twice returns ErrAlreadySaved.
func (c *Client) SaveComparison(ctx context.Context, t compare.Task) error {
	outcomes := make([]OutcomeRecord, 0, len(t.Engines))
	for _, name := range t.Engines {
		oc := t.Outcomes[name]
		outcomes = append(outcomes, OutcomeRecord{
			Engine:    name,
			Status:    string(oc.Status),
			Content:   oc.Content,
			Error:     oc.Error,
			ElapsedMS: oc.ElapsedMS,
		})
	}

	_, err := surrealdb.Query[any](ctx, c.db, `
		CREATE comparison SET
			task_id = $task_id,
			document = $document,
			format = $format,
			engines = $engines,
			outcomes = $outcomes
	`, map[string]any{
		"task_id":  t.ID,
		"document": t.DocumentRef,
		"format":   string(t.Format),
		"engines":  t.Engines,
		"outcomes": outcomes,
	})
	if err != nil {
		return fmt.Errorf("save comparison: %w", wrapQueryError(err))
	}
	return nil
}

// GetComparison retrieves an archived comparison by task ID.
func (c *Client) GetComparison(ctx context.Context, taskID string) (*ComparisonRecord, error) {
	results, err := surrealdb.Query[[]ComparisonRecord](ctx, c.db, `
		SELECT task_id, document, format, engines, outcomes, created
		FROM comparison WHERE task_id = $task_id LIMIT 1
	`, map[string]any{"task_id": taskID})
	if err != nil {
		return nil, fmt.Errorf("get comparison: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("%w: comparison %s", ErrNotFound, taskID)
	}
	return &(*results)[0].Result[0], nil
}

// ListComparisons returns the newest archived comparisons without their
// outcome payloads.
func (c *Client) ListComparisons(ctx context.Context, limit int) ([]ComparisonSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	results, err := surrealdb.Query[[]ComparisonSummary](ctx, c.db, `
		SELECT task_id, document, format, engines, created
		FROM comparison ORDER BY created DESC LIMIT $limit
	`, map[string]any{"limit": limit})
	if err != nil {
		return nil, fmt.Errorf("list comparisons: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 {
		return []ComparisonSummary{}, nil
	}
	return (*results)[0].Result, nil
}

// SaveBatch archives a finished batch report. Saving the same job twice
// returns ErrAlreadySaved.
func (c *Client) SaveBatch(ctx context.Context, rep batch.Report) error {
	records := make([]BatchEntry, 0, len(rep.Records))
	for _, rec := range rep.Records {
		records = append(records, BatchEntry{
			Input:     rec.Input,
			Status:    rec.Status,
			Error:     rec.Error,
			ElapsedMS: rec.ElapsedMS,
		})
	}

	_, err := surrealdb.Query[any](ctx, c.db, `
		CREATE batch_report SET
			job_id = $job_id,
			engine = $engine,
			format = $format,
			total = $total,
			succeeded = $succeeded,
			failed = $failed,
			elapsed_ms = $elapsed_ms,
			records = $records
	`, map[string]any{
		"job_id":     rep.JobID,
		"engine":     rep.Engine,
		"format":     string(rep.Format),
		"total":      rep.Total,
		"succeeded":  rep.Succeeded,
		"failed":     rep.Failed,
		"elapsed_ms": rep.ElapsedMS,
		"records":    records,
	})
	if err != nil {
		return fmt.Errorf("save batch report: %w", wrapQueryError(err))
	}
	return nil
}

// GetBatch retrieves an archived batch report by job ID.
func (c *Client) GetBatch(ctx context.Context, jobID string) (*BatchRecord, error) {
	results, err := surrealdb.Query[[]BatchRecord](ctx, c.db, `
		SELECT job_id, engine, format, total, succeeded, failed, elapsed_ms, records, created
		FROM batch_report WHERE job_id = $job_id LIMIT 1
	`, map[string]any{"job_id": jobID})
	if err != nil {
		return nil, fmt.Errorf("get batch report: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("%w: batch report %s", ErrNotFound, jobID)
	}
	return &(*results)[0].Result[0], nil
}

// ListBatches returns the newest archived batch reports without their
// per-input records.
func (c *Client) ListBatches(ctx context.Context, limit int) ([]BatchRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	results, err := surrealdb.Query[[]BatchRecord](ctx, c.db, `
		SELECT job_id, engine, format, total, succeeded, failed, elapsed_ms, created
		FROM batch_report ORDER BY created DESC LIMIT $limit
	`, map[string]any{"limit": limit})
	if err != nil {
		return nil, fmt.Errorf("list batch reports: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 {
		return []BatchRecord{}, nil
	}
	return (*results)[0].Result, nil
}
