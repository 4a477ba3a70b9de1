package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/pdfstract-go/internal/batch"
	"github.com/raphaelgruber/pdfstract-go/internal/chunk"
	"github.com/raphaelgruber/pdfstract-go/internal/compare"
	"github.com/raphaelgruber/pdfstract-go/internal/engine"
	"github.com/raphaelgruber/pdfstract-go/internal/metrics"
	"github.com/raphaelgruber/pdfstract-go/internal/server"
)

// fakeEngine is a controllable Handle for handler tests.
type fakeEngine struct {
	name      string
	available bool
	requires  bool
	fail      bool
	delay     time.Duration
	downloads atomic.Int32
}

func (f *fakeEngine) Name() string { return f.name }

func (f *fakeEngine) Formats() []engine.OutputFormat {
	return []engine.OutputFormat{engine.FormatMarkdown, engine.FormatText}
}

func (f *fakeEngine) Probe(context.Context) engine.ProbeResult {
	if !f.available {
		return engine.ProbeResult{Err: "binary not found in PATH"}
	}
	return engine.ProbeResult{Available: true, RequiresDownload: f.requires}
}

func (f *fakeEngine) Convert(ctx context.Context, path string, format engine.OutputFormat) (string, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.fail || strings.Contains(path, "bad") {
		return "", errors.New("conversion failed")
	}
	return "content of " + path, nil
}

func (f *fakeEngine) Download(context.Context) error {
	f.downloads.Add(1)
	return nil
}

type testEnv struct {
	ts    *httptest.Server
	store *compare.Store
	gamma *fakeEngine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gamma := &fakeEngine{name: "gamma", available: true, requires: true}
	handles := []engine.Handle{
		&fakeEngine{name: "alpha", available: true},
		&fakeEngine{name: "beta"},
		gamma,
		&fakeEngine{name: "delta", available: true, fail: true},
	}

	collector := metrics.NewCollector()
	reg := engine.NewRegistry(handles, logger, collector)
	reg.ProbeAll(context.Background())

	store := compare.NewStore()

	srv := server.New(server.Dependencies{
		Registry:    reg,
		Coordinator: engine.NewCoordinator(reg, logger, collector),
		Store:       store,
		Runner:      compare.NewRunner(store, reg, logger, collector, nil),
		Batch:       batch.NewRunner(reg, logger, collector, nil),
		Collector:   collector,
		Logger:      logger,
		UploadDir:   t.TempDir(),
	}, "")

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, store: store, gamma: gamma}
}

func (e *testEnv) getJSON(t *testing.T, path string, out any) int {
	t.Helper()
	resp, err := http.Get(e.ts.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

// tryGetJSON never fails the test; for use inside Eventually conditions.
func (e *testEnv) tryGetJSON(path string, out any) int {
	resp, err := http.Get(e.ts.URL + path)
	if err != nil {
		return 0
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		_ = json.NewDecoder(resp.Body).Decode(out)
	}
	return resp.StatusCode
}

func (e *testEnv) postJSON(t *testing.T, path string, body any, out any) int {
	t.Helper()
	buf, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(e.ts.URL+path, "application/json", bytes.NewReader(buf))
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	var body map[string]string
	status := env.getJSON(t, "/health", &body)

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}

func TestListEngines(t *testing.T) {
	env := newTestEnv(t)

	var descs []engine.Descriptor
	status := env.getJSON(t, "/api/engines", &descs)

	require.Equal(t, http.StatusOK, status)
	require.Len(t, descs, 4)

	// Catalog order is preserved
	assert.Equal(t, "alpha", descs[0].Name)
	assert.Equal(t, "beta", descs[1].Name)

	assert.True(t, descs[0].Available)
	assert.False(t, descs[1].Available)
	assert.NotEmpty(t, descs[1].Error, "unavailable engine must carry an error")
	assert.Equal(t, engine.DownloadNotRequired, descs[0].DownloadStatus)
	assert.Equal(t, engine.DownloadNotStarted, descs[2].DownloadStatus)
}

func TestGetEngine(t *testing.T) {
	env := newTestEnv(t)

	var desc engine.Descriptor
	status := env.getJSON(t, "/api/engines/alpha", &desc)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "alpha", desc.Name)

	status = env.getJSON(t, "/api/engines/nope", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestTriggerDownload(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Post(env.ts.URL+"/api/engines/gamma/download", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	// The download runs detached from the request
	require.Eventually(t, func() bool {
		var desc engine.Descriptor
		env.tryGetJSON("/api/engines/gamma", &desc)
		return desc.DownloadStatus == engine.DownloadReady
	}, 2*time.Second, 20*time.Millisecond)

	assert.Equal(t, int32(1), env.gamma.downloads.Load())
}

func TestTriggerDownload_NotApplicable(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Post(env.ts.URL+"/api/engines/alpha/download", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, err = http.Post(env.ts.URL+"/api/engines/nope/download", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func postMultipart(t *testing.T, url string, fields map[string]string, filename, content string) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(url, mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	return resp
}

func TestConvert(t *testing.T) {
	env := newTestEnv(t)

	resp := postMultipart(t, env.ts.URL+"/api/convert",
		map[string]string{"engine": "alpha", "format": "text"}, "doc.pdf", "%PDF-1.4")
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var conv engine.Conversion
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&conv))
	assert.Equal(t, "alpha", conv.Engine)
	assert.Equal(t, engine.FormatText, conv.Format)
	assert.Contains(t, conv.Content, "content of ")
}

func TestConvert_Errors(t *testing.T) {
	env := newTestEnv(t)

	// Unknown engine
	resp := postMultipart(t, env.ts.URL+"/api/convert",
		map[string]string{"engine": "nope"}, "doc.pdf", "x")
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Unavailable engine
	resp = postMultipart(t, env.ts.URL+"/api/convert",
		map[string]string{"engine": "beta"}, "doc.pdf", "x")
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Bad format
	resp = postMultipart(t, env.ts.URL+"/api/convert",
		map[string]string{"engine": "alpha", "format": "docx"}, "doc.pdf", "x")
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Missing file field
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("engine", "alpha"))
	require.NoError(t, mw.Close())
	resp2, err := http.Post(env.ts.URL+"/api/convert", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp2.StatusCode)
}

func TestCompareLifecycle(t *testing.T) {
	env := newTestEnv(t)

	var created map[string]string
	status := env.postJSON(t, "/api/compare", map[string]any{
		"document": "report.pdf",
		"engines":  []string{"alpha", "delta"},
		"format":   "text",
	}, &created)
	require.Equal(t, http.StatusAccepted, status)
	taskID := created["task_id"]
	require.NotEmpty(t, taskID)

	// Poll until both outcomes land
	var task compare.Task
	require.Eventually(t, func() bool {
		code := env.tryGetJSON("/api/compare/"+taskID, &task)
		return code == http.StatusOK && task.Status == compare.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	require.Len(t, task.Outcomes, 2)
	assert.Equal(t, compare.OutcomeSuccess, task.Outcomes["alpha"].Status)
	assert.Equal(t, compare.OutcomeError, task.Outcomes["delta"].Status)
	assert.NotEmpty(t, task.Outcomes["delta"].Error)

	// List includes the task
	var tasks []compare.Task
	status = env.getJSON(t, "/api/compare", &tasks)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, tasks, 1)
	assert.Equal(t, taskID, tasks[0].ID)

	// Delete, then the task is gone
	req, err := http.NewRequest(http.MethodDelete, env.ts.URL+"/api/compare/"+taskID, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	status = env.getJSON(t, "/api/compare/"+taskID, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestCompare_ValidationErrors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"no engines", map[string]any{"document": "a.pdf", "engines": []string{}}},
		{"no document", map[string]any{"engines": []string{"alpha"}}},
		{"unknown engine", map[string]any{"document": "a.pdf", "engines": []string{"nope"}}},
		{"unavailable engine", map[string]any{"document": "a.pdf", "engines": []string{"beta"}}},
		{"duplicate engine", map[string]any{"document": "a.pdf", "engines": []string{"alpha", "alpha"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := env.postJSON(t, "/api/compare", tt.body, nil)
			assert.Equal(t, http.StatusBadRequest, status)
		})
	}
}

func TestWatchCompare(t *testing.T) {
	env := newTestEnv(t)

	var created map[string]string
	status := env.postJSON(t, "/api/compare", map[string]any{
		"document": "watched.pdf",
		"engines":  []string{"alpha"},
	}, &created)
	require.Equal(t, http.StatusAccepted, status)

	wsURL := strings.Replace(env.ts.URL, "http", "ws", 1) +
		"/api/compare/" + created["task_id"] + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	// Read snapshots until the server closes after the terminal state
	var last compare.Task
	for {
		var task compare.Task
		if err := conn.ReadJSON(&task); err != nil {
			break
		}
		last = task
	}
	assert.Equal(t, compare.StatusCompleted, last.Status)
	assert.Equal(t, compare.OutcomeSuccess, last.Outcomes["alpha"].Status)
}

func TestWatchCompare_UnknownTask(t *testing.T) {
	env := newTestEnv(t)

	wsURL := strings.Replace(env.ts.URL, "http", "ws", 1) + "/api/compare/nope/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestBatch(t *testing.T) {
	env := newTestEnv(t)

	var report batch.Report
	status := env.postJSON(t, "/api/batch", map[string]any{
		"inputs":      []string{"a.pdf", "bad.pdf", "c.pdf"},
		"engine":      "alpha",
		"parallelism": 2,
	}, &report)

	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Records, 3)

	// Records stay in input order
	assert.Equal(t, "a.pdf", report.Records[0].Input)
	assert.Equal(t, "bad.pdf", report.Records[1].Input)
	assert.Equal(t, batch.RecordError, report.Records[1].Status)
	assert.Equal(t, "c.pdf", report.Records[2].Input)
}

func TestBatch_ValidationErrors(t *testing.T) {
	env := newTestEnv(t)

	status := env.postJSON(t, "/api/batch", map[string]any{
		"inputs": []string{}, "engine": "alpha",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status = env.postJSON(t, "/api/batch", map[string]any{
		"inputs": []string{"a.pdf"}, "engine": "alpha", "parallelism": 32,
	}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestChunkers(t *testing.T) {
	env := newTestEnv(t)

	var body struct {
		Chunkers []string      `json:"chunkers"`
		Defaults chunk.Options `json:"defaults"`
	}
	status := env.getJSON(t, "/api/chunkers", &body)

	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []string{"recursive", "sentence", "fixed"}, body.Chunkers)
	assert.Equal(t, chunk.DefaultOptions(), body.Defaults)
}

func TestChunk(t *testing.T) {
	env := newTestEnv(t)

	text := strings.Repeat("A sentence that fills the request body with text. ", 60)
	var body struct {
		Chunker string        `json:"chunker"`
		Count   int           `json:"count"`
		Chunks  []chunk.Chunk `json:"chunks"`
	}
	status := env.postJSON(t, "/api/chunk", map[string]any{
		"text":    text,
		"chunker": "sentence",
	}, &body)

	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "sentence", body.Chunker)
	assert.Greater(t, body.Count, 1)
	assert.Len(t, body.Chunks, body.Count)

	status = env.postJSON(t, "/api/chunk", map[string]any{
		"text": "x", "chunker": "semantic",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestMetrics(t *testing.T) {
	env := newTestEnv(t)

	resp := postMultipart(t, env.ts.URL+"/api/convert",
		map[string]string{"engine": "alpha"}, "doc.pdf", "x")
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snap metrics.Snapshot
	status := env.getJSON(t, "/api/metrics", &snap)
	require.Equal(t, http.StatusOK, status)

	op, ok := snap.Operations[fmt.Sprintf("%s.alpha", metrics.OpConvert)]
	require.True(t, ok, "convert.alpha should be recorded, have %v", snap.Operations)
	assert.Equal(t, int64(1), op.Count)
}
