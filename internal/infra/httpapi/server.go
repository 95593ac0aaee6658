// Package httpapi exposes the analysis pipeline over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/thomassthus-stack/Tommytiger/internal/domain/analysis"
	"github.com/thomassthus-stack/Tommytiger/internal/observability"
	"github.com/thomassthus-stack/Tommytiger/internal/ports"
)

const defaultMaxUploadBytes = 32 << 20

// Orchestrator answers a question about a dataset with a generated program.
type Orchestrator interface {
	Run(ctx context.Context, prompt string, dataset analysis.Dataset, lang analysis.Language) (analysis.Report, error)
}

// Analyzer executes a caller supplied program.
type Analyzer interface {
	Analyze(ctx context.Context, request analysis.Request) analysis.Report
}

// Config holds the HTTP server settings.
type Config struct {
	Addr            string
	MaxUploadBytes  int64
	ShutdownTimeout time.Duration
}

// Server serves the analysis endpoints.
type Server struct {
	cfg          Config
	orchestrator Orchestrator
	analyzer     Analyzer
	loader       ports.DatasetLoader
	log          logrus.FieldLogger
}

// NewServer wires the handlers. orchestrator may be nil when no code generator
// is configured; /run_analysis then answers 503.
func NewServer(cfg Config, orchestrator Orchestrator, analyzer Analyzer, loader ports.DatasetLoader, log logrus.FieldLogger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{cfg: cfg, orchestrator: orchestrator, analyzer: analyzer, loader: loader, log: log}
}

// Handler returns the routed handler wrapped in recovery, CORS and metrics middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /run_analysis", s.handleRunAnalysis)
	mux.HandleFunc("POST /execute", s.handleExecute)
	mux.Handle("GET /metrics", promhttp.Handler())

	return observability.MetricsMiddleware(s.recoverer(cors(mux)))
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", s.cfg.Addr).Info("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
	Logs  string `json:"logs,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeReportError maps a core error to a 500 carrying its stable code.
func writeReportError(w http.ResponseWriter, report analysis.Report) {
	writeJSON(w, http.StatusInternalServerError, errorResponse{
		Error: report.Err.Error(),
		Code:  analysis.ErrorCode(report.Err),
		Logs:  report.Outcome.Logs,
	})
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.WithFields(logrus.Fields{
					"path":  r.URL.Path,
					"panic": rec,
				}).Error("handler panic")
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "*")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
