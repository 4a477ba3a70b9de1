// Package client provides a typed HTTP client for the pdfstract server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/raphaelgruber/pdfstract-go/internal/batch"
	"github.com/raphaelgruber/pdfstract-go/internal/compare"
	"github.com/raphaelgruber/pdfstract-go/internal/engine"
	"github.com/raphaelgruber/pdfstract-go/internal/metrics"
)

// Client is an HTTP client for the pdfstract server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a new client.
// If baseURL is empty, uses PDFSTRACT_SERVER_URL env var or defaults to localhost:8090.
// Timeout can be configured via PDFSTRACT_CLIENT_TIMEOUT env var (default 10m for batch operations).
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("PDFSTRACT_SERVER_URL")
	}
	if baseURL == "" {
		baseURL = "http://localhost:8090"
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	timeout := 10 * time.Minute // batch conversions are slow
	if t := os.Getenv("PDFSTRACT_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// do sends a request and decodes the JSON response into result.
func (c *Client) do(ctx context.Context, method, path string, contentType string, body io.Reader, result any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server error (%d): %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server error: %s - %s", resp.Status, string(data))
	}

	if result != nil && len(data) > 0 {
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, result any) error {
	return c.do(ctx, http.MethodGet, path, "", nil, result)
}

func (c *Client) postJSON(ctx context.Context, path string, payload, result any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, "application/json", bytes.NewReader(body), result)
}

// Health checks server liveness.
func (c *Client) Health(ctx context.Context) error {
	var status struct {
		Status string `json:"status"`
	}
	if err := c.getJSON(ctx, "/health", &status); err != nil {
		return err
	}
	if status.Status != "ok" {
		return fmt.Errorf("unexpected health status %q", status.Status)
	}
	return nil
}

// Engines returns all engine descriptors in catalog order.
func (c *Client) Engines(ctx context.Context) ([]engine.Descriptor, error) {
	var descs []engine.Descriptor
	if err := c.getJSON(ctx, "/api/engines", &descs); err != nil {
		return nil, err
	}
	return descs, nil
}

// Engine returns one engine descriptor.
func (c *Client) Engine(ctx context.Context, name string) (engine.Descriptor, error) {
	var desc engine.Descriptor
	err := c.getJSON(ctx, "/api/engines/"+name, &desc)
	return desc, err
}

// TriggerDownload starts a model download on the server. The returned
// descriptor reflects the state at trigger time; poll Engine for progress.
func (c *Client) TriggerDownload(ctx context.Context, name string) (engine.Descriptor, error) {
	var desc engine.Descriptor
	err := c.do(ctx, http.MethodPost, "/api/engines/"+name+"/download", "", nil, &desc)
	return desc, err
}

// Convert uploads a file and converts it with the given engine.
func (c *Client) Convert(ctx context.Context, filePath, engineName string, format engine.OutputFormat) (engine.Conversion, error) {
	var conv engine.Conversion

	file, err := os.Open(filePath)
	if err != nil {
		return conv, fmt.Errorf("open input: %w", err)
	}
	defer file.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("engine", engineName); err != nil {
		return conv, fmt.Errorf("build form: %w", err)
	}
	if err := mw.WriteField("format", string(format)); err != nil {
		return conv, fmt.Errorf("build form: %w", err)
	}
	fw, err := mw.CreateFormFile("file", filepath.Base(filePath))
	if err != nil {
		return conv, fmt.Errorf("build form: %w", err)
	}
	if _, err := io.Copy(fw, file); err != nil {
		return conv, fmt.Errorf("build form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return conv, fmt.Errorf("build form: %w", err)
	}

	err = c.do(ctx, http.MethodPost, "/api/convert", mw.FormDataContentType(), &buf, &conv)
	return conv, err
}

// SubmitCompare creates a comparison task for a server-local document and
// returns its task ID.
func (c *Client) SubmitCompare(ctx context.Context, document string, engines []string, format engine.OutputFormat) (string, error) {
	var created struct {
		TaskID string `json:"task_id"`
	}
	err := c.postJSON(ctx, "/api/compare", map[string]any{
		"document": document,
		"engines":  engines,
		"format":   string(format),
	}, &created)
	return created.TaskID, err
}

// GetCompare returns a comparison task snapshot.
func (c *Client) GetCompare(ctx context.Context, taskID string) (compare.Task, error) {
	var task compare.Task
	err := c.getJSON(ctx, "/api/compare/"+taskID, &task)
	return task, err
}

// ListCompare returns all live comparison tasks, newest first.
func (c *Client) ListCompare(ctx context.Context) ([]compare.Task, error) {
	var tasks []compare.Task
	if err := c.getJSON(ctx, "/api/compare", &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// DeleteCompare removes a comparison task.
func (c *Client) DeleteCompare(ctx context.Context, taskID string) error {
	return c.do(ctx, http.MethodDelete, "/api/compare/"+taskID, "", nil, nil)
}

// WatchCompare subscribes to task snapshots over a websocket. The onUpdate
// callback is invoked for each pushed snapshot; return an error from
// onUpdate to abort. Returns nil once the server closes the stream after
// the terminal snapshot.
func (c *Client) WatchCompare(ctx context.Context, taskID string, onUpdate func(compare.Task) error) error {
	wsURL := c.baseURL
	wsURL = strings.Replace(wsURL, "http://", "ws://", 1)
	wsURL = strings.Replace(wsURL, "https://", "wss://", 1)
	wsURL += "/api/compare/" + taskID + "/ws"

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	conn, resp, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return fmt.Errorf("websocket connect: %w", err)
	}

	// Track connection state for proper cleanup
	var mu sync.Mutex
	closed := false
	closeConn := func() {
		mu.Lock()
		defer mu.Unlock()
		if !closed {
			closed = true
			conn.Close()
		}
	}
	defer closeConn()

	// Handle context cancellation in a separate goroutine
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			closeConn()
		case <-done:
		}
	}()

	for {
		var task compare.Task
		if err := conn.ReadJSON(&task); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read snapshot: %w", err)
		}
		if err := onUpdate(task); err != nil {
			return err
		}
	}
}

// RunBatch runs a batch conversion of server-local inputs and returns the
// full report. Blocks until the batch finishes.
func (c *Client) RunBatch(ctx context.Context, inputs []string, engineName string, parallelism int, format engine.OutputFormat) (batch.Report, error) {
	var report batch.Report
	err := c.postJSON(ctx, "/api/batch", map[string]any{
		"inputs":      inputs,
		"engine":      engineName,
		"parallelism": parallelism,
		"format":      string(format),
	}, &report)
	return report, err
}

// Metrics returns the server's runtime statistics.
func (c *Client) Metrics(ctx context.Context) (metrics.Snapshot, error) {
	var snap metrics.Snapshot
	err := c.getJSON(ctx, "/api/metrics", &snap)
	return snap, err
}
