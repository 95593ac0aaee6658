package script

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"runtime/debug"
	"time"

	"github.com/thomassthus-stack/Tommytiger/internal/domain/analysis"
)

// workerRequest is what the host writes to a worker's stdin.
type workerRequest struct {
	ID               string       `json:"id"`
	Source           string       `json:"source"`
	DeadlineMS       int64        `json:"deadline_ms"`
	MemoryLimitBytes int64        `json:"memory_limit_bytes"`
	Columns          []string     `json:"columns"`
	Rows             [][]wireCell `json:"rows"`
}

// wireCell keeps the int64/float64 distinction of a dataset cell across JSON.
// All fields empty is a null cell.
type wireCell struct {
	Int    *int64   `json:"i,omitempty"`
	Float  *float64 `json:"f,omitempty"`
	String *string  `json:"s,omitempty"`
	Bool   *bool    `json:"b,omitempty"`
}

// workerResponse is what a worker writes to stdout. Error is set when the
// worker could not run the program at all.
type workerResponse struct {
	Kind    analysis.OutcomeKind `json:"kind"`
	Message string               `json:"message,omitempty"`
	Logs    string               `json:"logs,omitempty"`
	Payload *workerPayload       `json:"payload,omitempty"`
	Error   string               `json:"error,omitempty"`
}

type workerPayload struct {
	Kind   string         `json:"kind"`
	Text   string         `json:"text,omitempty"`
	Fields map[string]any `json:"fields,omitempty"`
	Value  any            `json:"value,omitempty"`
}

func encodeWorkerRequest(program analysis.Program, dataset analysis.Dataset) ([]byte, error) {
	req := workerRequest{
		ID:               program.ID,
		Source:           program.Source,
		DeadlineMS:       program.Limits.Deadline.Milliseconds(),
		MemoryLimitBytes: program.Limits.MemoryLimitBytes,
		Columns:          dataset.Columns,
		Rows:             make([][]wireCell, len(dataset.Rows)),
	}
	for i, row := range dataset.Rows {
		cells := make([]wireCell, len(row))
		for j, v := range row {
			cell, err := toWireCell(v)
			if err != nil {
				return nil, fmt.Errorf("row %d column %d: %w", i, j, err)
			}
			cells[j] = cell
		}
		req.Rows[i] = cells
	}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode worker request: %w", err)
	}
	return data, nil
}

func toWireCell(v any) (wireCell, error) {
	switch x := v.(type) {
	case nil:
		return wireCell{}, nil
	case int64:
		return wireCell{Int: &x}, nil
	case int:
		n := int64(x)
		return wireCell{Int: &n}, nil
	case float64:
		return wireCell{Float: &x}, nil
	case string:
		return wireCell{String: &x}, nil
	case bool:
		return wireCell{Bool: &x}, nil
	default:
		return wireCell{}, fmt.Errorf("unsupported cell type %T", v)
	}
}

func (c wireCell) value() any {
	switch {
	case c.Int != nil:
		return *c.Int
	case c.Float != nil:
		return *c.Float
	case c.String != nil:
		return *c.String
	case c.Bool != nil:
		return *c.Bool
	default:
		return nil
	}
}

func (r workerRequest) program() analysis.Program {
	return analysis.Program{
		ID:       r.ID,
		Language: analysis.LanguageJavaScript,
		Source:   r.Source,
		Limits: analysis.Limits{
			Deadline:         time.Duration(r.DeadlineMS) * time.Millisecond,
			MemoryLimitBytes: r.MemoryLimitBytes,
		},
	}
}

func (r workerRequest) dataset() analysis.Dataset {
	ds := analysis.Dataset{Columns: r.Columns, Rows: make([][]any, len(r.Rows))}
	for i, row := range r.Rows {
		cells := make([]any, len(row))
		for j, cell := range row {
			cells[j] = cell.value()
		}
		ds.Rows[i] = cells
	}
	return ds
}

// Serve is the worker side of Process: it reads one request from r, bounds its
// own memory, runs the program in-process and writes the outcome to w.
func Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	var req workerRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return fmt.Errorf("decode worker request: %w", err)
	}

	if req.MemoryLimitBytes > 0 {
		debug.SetMemoryLimit(req.MemoryLimitBytes)
		if err := limitAddressSpace(req.MemoryLimitBytes); err != nil {
			return fmt.Errorf("limit worker memory: %w", err)
		}
	}

	program := req.program()
	module := New(Config{Limits: program.Limits})
	outcome, err := module.Execute(ctx, program, req.dataset())

	resp := encodeWorkerResponse(outcome, err)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		return fmt.Errorf("encode worker response: %w", err)
	}
	return nil
}

func encodeWorkerResponse(outcome analysis.Outcome, err error) workerResponse {
	if err != nil {
		return workerResponse{Error: err.Error()}
	}
	resp := workerResponse{Kind: outcome.Kind, Message: outcome.Message, Logs: outcome.Logs}
	payload := outcome.Payload
	switch payload.Kind() {
	case analysis.PayloadText:
		text, _ := payload.Text()
		resp.Payload = &workerPayload{Kind: payload.Kind().String(), Text: text}
	case analysis.PayloadStructured:
		fields, _ := payload.Structured()
		resp.Payload = &workerPayload{Kind: payload.Kind().String(), Fields: fields}
	case analysis.PayloadOther:
		value := payload.Value()
		if _, err := json.Marshal(value); err != nil {
			value = fmt.Sprintf("%T", value)
		}
		resp.Payload = &workerPayload{Kind: payload.Kind().String(), Value: value}
	}
	if _, err := json.Marshal(resp); err != nil {
		return workerResponse{Kind: analysis.OutcomeRuntimeFailure, Message: fmt.Sprintf("result is not serialisable: %v", err), Logs: outcome.Logs}
	}
	return resp
}

func decodeWorkerResponse(data []byte) (analysis.Outcome, error) {
	var resp workerResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return analysis.Outcome{}, fmt.Errorf("decode worker response: %w", err)
	}
	if resp.Error != "" {
		return analysis.Outcome{}, fmt.Errorf("worker: %s", resp.Error)
	}

	var outcome analysis.Outcome
	switch resp.Kind {
	case analysis.OutcomeSuccess:
		outcome = analysis.Succeeded(resp.Payload.raw())
	case analysis.OutcomeTimeout:
		outcome = analysis.TimedOut()
	case analysis.OutcomeRuntimeFailure:
		outcome = analysis.Failed(resp.Message)
	default:
		return analysis.Outcome{}, fmt.Errorf("worker returned unknown outcome %q", resp.Kind)
	}
	outcome.Logs = resp.Logs
	return outcome, nil
}

func (p *workerPayload) raw() analysis.RawPayload {
	if p == nil {
		return analysis.NoPayload()
	}
	switch p.Kind {
	case analysis.PayloadText.String():
		return analysis.TextPayload(p.Text)
	case analysis.PayloadStructured.String():
		return analysis.StructuredPayload(p.Fields)
	case analysis.PayloadOther.String():
		return analysis.OtherPayload(p.Value)
	default:
		return analysis.NoPayload()
	}
}
