package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/raphaelgruber/pdfstract-go/internal/batch"
	"github.com/raphaelgruber/pdfstract-go/internal/chunk"
	"github.com/raphaelgruber/pdfstract-go/internal/compare"
	"github.com/raphaelgruber/pdfstract-go/internal/engine"
)

// maxUploadBytes caps multipart uploads at 100 MiB.
const maxUploadBytes = 100 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the error taxonomy onto HTTP status codes and emits the
// JSON error body.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrValidation) || errors.Is(err, chunk.ErrUnknown):
		status = http.StatusBadRequest
	case errors.Is(err, engine.ErrNotFound) || errors.Is(err, compare.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrNotApplicable):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, engine.ErrDownloadInProgress):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		s.deps.Logger.Error("request error", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// handleEngines handles GET /api/engines.
func (s *Server) handleEngines(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Registry.Snapshot())
}

// handleEngineAction handles /api/engines/{name}/download.
func (s *Server) handleEngineAction(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/engines/")
	parts := strings.Split(path, "/")

	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "engine name required", http.StatusBadRequest)
		return
	}

	name := parts[0]
	action := ""
	if len(parts) > 1 {
		action = parts[1]
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		s.getEngine(w, r, name)
	case action == "download" && r.Method == http.MethodPost:
		s.triggerDownload(w, r, name)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

func (s *Server) getEngine(w http.ResponseWriter, _ *http.Request, name string) {
	desc, err := s.deps.Registry.Get(name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, desc)
}

// triggerDownload starts a model download in the background and responds
// 202 with the current descriptor. Known failure modes (unknown engine, no
// download needed, one already running) are rejected up front.
func (s *Server) triggerDownload(w http.ResponseWriter, _ *http.Request, name string) {
	desc, err := s.deps.Registry.Get(name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !desc.RequiresDownload {
		s.writeError(w, fmt.Errorf("%w: engine %s has no model download", engine.ErrNotApplicable, name))
		return
	}
	if desc.DownloadStatus == engine.Downloading {
		s.writeError(w, fmt.Errorf("%w: engine %s", engine.ErrDownloadInProgress, name))
		return
	}

	go func() {
		// Detached from the request; the download outlives the response.
		if _, err := s.deps.Coordinator.Trigger(context.Background(), name); err != nil {
			s.deps.Logger.Warn("background download rejected", "engine", name, "error", err)
		}
	}()

	writeJSON(w, http.StatusAccepted, desc)
}

// handleConvert handles POST /api/convert: multipart upload with `file`,
// `engine` and optional `format` fields, converted synchronously.
func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path, cleanup, err := s.saveUpload(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	defer cleanup()

	format, err := engine.ParseFormat(r.FormValue("format"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	result, err := engine.RunConversion(r.Context(), s.deps.Registry, s.deps.Collector,
		r.FormValue("engine"), path, format)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// saveUpload stores the multipart `file` field under the upload directory,
// keeping the original extension so engines can detect the input type.
func (s *Server) saveUpload(r *http.Request) (string, func(), error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return "", nil, fmt.Errorf("%w: parse multipart form: %v", engine.ErrValidation, err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return "", nil, fmt.Errorf("%w: missing file field", engine.ErrValidation)
	}
	defer file.Close()

	ext := filepath.Ext(filepath.Base(header.Filename))
	tmp, err := os.CreateTemp(s.deps.UploadDir, "upload-*"+ext)
	if err != nil {
		return "", nil, fmt.Errorf("create upload file: %w", err)
	}

	if _, err := io.Copy(tmp, file); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", nil, fmt.Errorf("store upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", nil, fmt.Errorf("store upload: %w", err)
	}

	return tmp.Name(), func() { os.Remove(tmp.Name()) }, nil
}

type compareRequest struct {
	Document string   `json:"document"`
	Engines  []string `json:"engines"`
	Format   string   `json:"format,omitempty"`
}

// handleCompare handles POST /api/compare (create) and GET /api/compare
// (list). Create accepts either a JSON body referencing a server-local
// document or a multipart upload.
func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createCompare(w, r)
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.deps.Store.List())
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) createCompare(w http.ResponseWriter, r *http.Request) {
	var req compareRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		path, _, err := s.saveUpload(r)
		if err != nil {
			s.writeError(w, err)
			return
		}
		// Upload stays on disk: comparison workers read it after this
		// request returns.
		req = compareRequest{
			Document: path,
			Engines:  splitList(r.FormValue("engines")),
			Format:   r.FormValue("format"),
		}
	} else {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, fmt.Errorf("%w: invalid json", engine.ErrValidation))
			return
		}
	}

	format, err := engine.ParseFormat(req.Format)
	if err != nil {
		s.writeError(w, err)
		return
	}

	id, err := s.deps.Runner.Submit(r.Context(), req.Document, req.Engines, format)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"task_id": id})
}

// handleCompareByID handles /api/compare/{id} and /api/compare/{id}/ws.
func (s *Server) handleCompareByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/compare/")
	parts := strings.Split(path, "/")

	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "task id required", http.StatusBadRequest)
		return
	}

	taskID := parts[0]
	action := ""
	if len(parts) > 1 {
		action = parts[1]
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		s.getCompare(w, r, taskID)
	case action == "" && r.Method == http.MethodDelete:
		s.deleteCompare(w, r, taskID)
	case action == "ws" && r.Method == http.MethodGet:
		s.watchCompare(w, r, taskID)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

func (s *Server) getCompare(w http.ResponseWriter, _ *http.Request, taskID string) {
	task, err := s.deps.Store.Get(taskID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) deleteCompare(w http.ResponseWriter, _ *http.Request, taskID string) {
	if err := s.deps.Store.Delete(taskID); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type batchRequest struct {
	Inputs      []string `json:"inputs"`
	Engine      string   `json:"engine"`
	Parallelism int      `json:"parallelism,omitempty"`
	Format      string   `json:"format,omitempty"`
}

// handleBatch handles POST /api/batch. The run is synchronous; the response
// is the full report.
func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, fmt.Errorf("%w: invalid json", engine.ErrValidation))
		return
	}

	format, err := engine.ParseFormat(req.Format)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if req.Parallelism == 0 {
		req.Parallelism = 2
	}

	report, err := s.deps.Batch.Run(r.Context(), batch.Request{
		Inputs:      req.Inputs,
		Engine:      req.Engine,
		Parallelism: req.Parallelism,
		Format:      format,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type chunkersResponse struct {
	Chunkers []string      `json:"chunkers"`
	Defaults chunk.Options `json:"defaults"`
}

// handleChunkers handles GET /api/chunkers.
func (s *Server) handleChunkers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	names := make([]string, 0, 3)
	for _, c := range chunk.Registry() {
		names = append(names, c.Name())
	}
	writeJSON(w, http.StatusOK, chunkersResponse{
		Chunkers: names,
		Defaults: chunk.DefaultOptions(),
	})
}

type chunkRequest struct {
	Text    string        `json:"text"`
	Chunker string        `json:"chunker,omitempty"`
	Options chunk.Options `json:"options,omitempty"`
}

type chunkResponse struct {
	Chunker string        `json:"chunker"`
	Count   int           `json:"count"`
	Chunks  []chunk.Chunk `json:"chunks"`
}

// handleChunk handles POST /api/chunk.
func (s *Server) handleChunk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req chunkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, fmt.Errorf("%w: invalid json", engine.ErrValidation))
		return
	}
	if req.Chunker == "" {
		req.Chunker = "recursive"
	}

	chunker, err := chunk.Get(req.Chunker)
	if err != nil {
		s.writeError(w, err)
		return
	}

	chunks := chunker.Chunk(req.Text, req.Options)
	writeJSON(w, http.StatusOK, chunkResponse{
		Chunker: chunker.Name(),
		Count:   len(chunks),
		Chunks:  chunks,
	})
}

// handleMetrics handles GET /api/metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Collector.Snapshot())
}

// splitList splits a comma-separated form value into trimmed parts.
func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
