package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/thomassthus-stack/Tommytiger/internal/app/orchestrator"
	"github.com/thomassthus-stack/Tommytiger/internal/domain/analysis"
)

func (s *Server) handleRunAnalysis(w http.ResponseWriter, r *http.Request) {
	if s.orchestrator == nil {
		writeError(w, http.StatusServiceUnavailable, "code generation is not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}

	prompt := r.FormValue("prompt")
	if strings.TrimSpace(prompt) == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}
	lang, err := parseLanguage(r.FormValue("language"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	dataset, err := s.loader.Load(header.Filename, file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read file: "+err.Error())
		return
	}

	report, err := s.orchestrator.Run(r.Context(), prompt, dataset, lang)
	if err != nil {
		if errors.Is(err, orchestrator.ErrEmptyPrompt) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.log.WithError(err).Error("analysis failed before execution")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error(), Code: analysis.ErrorCode(err)})
		return
	}
	if report.Err != nil {
		writeReportError(w, report)
		return
	}
	writeJSON(w, http.StatusOK, report.Result)
}

type executeRequest struct {
	ID       string `json:"id"`
	Language string `json:"language"`
	Source   string `json:"source"`
	Limits   *struct {
		DeadlineMs       int64 `json:"deadline_ms"`
		MemoryLimitBytes int64 `json:"memory_limit_bytes"`
	} `json:"limits,omitempty"`
	Dataset struct {
		Columns []string `json:"columns"`
		Rows    [][]any  `json:"rows"`
	} `json:"dataset"`
}

type executeResponse struct {
	ID         string           `json:"id"`
	Result     *analysis.Result `json:"result"`
	Logs       string           `json:"logs,omitempty"`
	DurationMs int64            `json:"duration_ms"`
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes))
	decoder.UseNumber()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	request, err := req.toRequest()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	report := s.analyzer.Analyze(r.Context(), request)
	if report.Err != nil {
		writeReportError(w, report)
		return
	}
	writeJSON(w, http.StatusOK, executeResponse{
		ID:         request.ID,
		Result:     report.Result,
		Logs:       report.Outcome.Logs,
		DurationMs: report.Outcome.Duration.Milliseconds(),
	})
}

func (req executeRequest) toRequest() (analysis.Request, error) {
	if strings.TrimSpace(req.Source) == "" {
		return analysis.Request{}, errors.New("source is required")
	}
	lang, err := parseLanguage(req.Language)
	if err != nil {
		return analysis.Request{}, err
	}

	dataset := analysis.Dataset{Columns: req.Dataset.Columns, Rows: make([][]any, len(req.Dataset.Rows))}
	for r, row := range req.Dataset.Rows {
		cells := make([]any, len(row))
		for c, raw := range row {
			cell, err := analysis.CellFromJSON(raw)
			if err != nil {
				return analysis.Request{}, fmt.Errorf("dataset row %d column %d: %w", r, c, err)
			}
			cells[c] = cell
		}
		dataset.Rows[r] = cells
	}
	if err := dataset.Validate(); err != nil {
		return analysis.Request{}, err
	}

	var limits analysis.Limits
	if req.Limits != nil {
		limits.Deadline = time.Duration(req.Limits.DeadlineMs) * time.Millisecond
		limits.MemoryLimitBytes = req.Limits.MemoryLimitBytes
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	return analysis.Request{
		ID:      id,
		Dataset: dataset,
		Program: analysis.Program{ID: id, Language: lang, Source: req.Source, Limits: limits.Normalize()},
	}, nil
}

func parseLanguage(raw string) (analysis.Language, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return "", nil
	}
	lang, ok := analysis.ParseLanguage(raw)
	if !ok {
		return "", fmt.Errorf("unsupported language %q", raw)
	}
	return lang, nil
}
