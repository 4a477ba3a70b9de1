// Package server provides the HTTP JSON API over the orchestration core.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/raphaelgruber/pdfstract-go/internal/batch"
	"github.com/raphaelgruber/pdfstract-go/internal/compare"
	"github.com/raphaelgruber/pdfstract-go/internal/engine"
	"github.com/raphaelgruber/pdfstract-go/internal/metrics"
)

// Dependencies holds the orchestration core the server exposes.
type Dependencies struct {
	Registry    *engine.Registry
	Coordinator *engine.Coordinator
	Store       *compare.Store
	Runner      *compare.Runner
	Batch       *batch.Runner
	Collector   *metrics.Collector
	Logger      *slog.Logger
	// UploadDir receives multipart uploads. Defaults to os.TempDir().
	UploadDir string
}

// Server provides the HTTP API for pdfstract.
type Server struct {
	deps   Dependencies
	addr   string
	server *http.Server
}

// New creates a new HTTP server.
func New(deps Dependencies, addr string) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.UploadDir == "" {
		deps.UploadDir = os.TempDir()
	}
	return &Server{
		deps: deps,
		addr: addr,
	}
}

// Handler returns the full route table wrapped in request logging.
// Exposed separately from Start so tests can mount it on httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Engine endpoints
	mux.HandleFunc("/api/engines", s.handleEngines)
	mux.HandleFunc("/api/engines/", s.handleEngineAction)

	// Conversion endpoints
	mux.HandleFunc("/api/convert", s.handleConvert)
	mux.HandleFunc("/api/compare", s.handleCompare)
	mux.HandleFunc("/api/compare/", s.handleCompareByID)
	mux.HandleFunc("/api/batch", s.handleBatch)

	// Chunking endpoints
	mux.HandleFunc("/api/chunkers", s.handleChunkers)
	mux.HandleFunc("/api/chunk", s.handleChunk)

	mux.HandleFunc("/api/metrics", s.handleMetrics)

	return LoggingMiddleware(s.deps.Logger)(mux)
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Minute, // batch runs respond synchronously
		IdleTimeout:  120 * time.Second,
	}

	s.deps.Logger.Info("starting pdfstract server", "addr", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
