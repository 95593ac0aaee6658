package kafka

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/thomassthus-stack/Tommytiger/internal/domain/analysis"
)

const (
	messageTypeAnalysis = "analysis"
	messageTypeDone     = "done"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

type requestEnvelope struct {
	Type     string           `json:"type"`
	ID       string           `json:"id"`
	Language string           `json:"language"`
	Source   string           `json:"source"`
	Limits   *requestLimits   `json:"limits,omitempty"`
	Dataset  *datasetEnvelope `json:"dataset,omitempty"`
}

type requestLimits struct {
	DeadlineMs       int64 `json:"deadline_ms"`
	MemoryLimitBytes int64 `json:"memory_limit_bytes"`
}

type datasetEnvelope struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

type reportEnvelope struct {
	ID         string           `json:"id"`
	Status     string           `json:"status"`
	Result     *analysis.Result `json:"result,omitempty"`
	Error      string           `json:"error,omitempty"`
	ErrorCode  string           `json:"error_code,omitempty"`
	DurationMs *int64           `json:"duration_ms,omitempty"`
	Logs       string           `json:"logs,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
}

func decodeRequestMessage(msg kafkago.Message) (analysis.Request, error) {
	var envelope requestEnvelope
	decoder := json.NewDecoder(bytes.NewReader(msg.Value))
	decoder.UseNumber()
	if err := decoder.Decode(&envelope); err != nil {
		return analysis.Request{}, fmt.Errorf("decode message: %w", err)
	}

	msgType := envelope.Type
	if msgType == "" {
		msgType = messageTypeAnalysis
	}

	switch msgType {
	case messageTypeAnalysis:
		return envelope.toRequest(msg)
	case messageTypeDone:
		return analysis.Request{}, io.EOF
	default:
		return analysis.Request{}, fmt.Errorf("unknown message type %q", msgType)
	}
}

func (e requestEnvelope) toRequest(msg kafkago.Message) (analysis.Request, error) {
	if strings.TrimSpace(e.Source) == "" {
		return analysis.Request{}, errors.New("analysis message missing source")
	}
	if e.Dataset == nil {
		return analysis.Request{}, errors.New("analysis message missing dataset")
	}

	var lang analysis.Language
	if e.Language != "" {
		parsed, ok := analysis.ParseLanguage(e.Language)
		if !ok {
			return analysis.Request{}, fmt.Errorf("analysis message has unsupported language %q", e.Language)
		}
		lang = parsed
	}

	dataset, err := e.Dataset.toDataset()
	if err != nil {
		return analysis.Request{}, err
	}

	requestID := e.ID
	if requestID == "" {
		requestID = string(msg.Key)
	}
	if requestID == "" {
		requestID = fmt.Sprintf("%s:%d", msg.Topic, msg.Offset)
	}

	return analysis.Request{
		ID:      requestID,
		Dataset: dataset,
		Program: analysis.Program{
			ID:       requestID,
			Language: lang,
			Source:   e.Source,
			Limits:   e.toLimits(),
		},
	}, nil
}

func (e requestEnvelope) toLimits() analysis.Limits {
	if e.Limits == nil {
		return analysis.Limits{}
	}

	var limits analysis.Limits
	if e.Limits.DeadlineMs > 0 {
		limits.Deadline = time.Duration(e.Limits.DeadlineMs) * time.Millisecond
	}
	if e.Limits.MemoryLimitBytes > 0 {
		limits.MemoryLimitBytes = e.Limits.MemoryLimitBytes
	}
	return limits
}

func (d datasetEnvelope) toDataset() (analysis.Dataset, error) {
	dataset := analysis.Dataset{
		Columns: append([]string(nil), d.Columns...),
		Rows:    make([][]any, len(d.Rows)),
	}
	for r, row := range d.Rows {
		cells := make([]any, len(row))
		for c, raw := range row {
			cell, err := analysis.CellFromJSON(raw)
			if err != nil {
				return analysis.Dataset{}, fmt.Errorf("dataset row %d column %d: %w", r, c, err)
			}
			cells[c] = cell
		}
		dataset.Rows[r] = cells
	}
	if err := dataset.Validate(); err != nil {
		return analysis.Dataset{}, err
	}
	return dataset, nil
}

func encodeReport(report analysis.Report) ([]byte, error) {
	payload, err := json.Marshal(makeReportEnvelope(report))
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	return payload, nil
}

func makeReportEnvelope(report analysis.Report) reportEnvelope {
	envelope := reportEnvelope{
		ID:        report.Request.ID,
		Status:    statusSuccess,
		Result:    report.Result,
		Logs:      report.Outcome.Logs,
		Timestamp: time.Now().UTC(),
	}

	if report.Outcome.Kind != "" {
		dur := report.Outcome.Duration.Milliseconds()
		envelope.DurationMs = &dur
	}

	if report.Err != nil {
		code := analysis.ErrorCode(report.Err)
		envelope.Error = report.Err.Error()
		envelope.ErrorCode = code
		envelope.Result = nil
		envelope.Status, _, _ = strings.Cut(code, ":")
		if envelope.Status == "internal" {
			envelope.Status = statusError
		}
	}

	return envelope
}
