package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/thomassthus-stack/Tommytiger/internal/app/analyzer"
	"github.com/thomassthus-stack/Tommytiger/internal/app/orchestrator"
	"github.com/thomassthus-stack/Tommytiger/internal/domain/analysis"
	"github.com/thomassthus-stack/Tommytiger/internal/infra/dataset"
	"github.com/thomassthus-stack/Tommytiger/internal/runtime/script"
)

type staticGenerator struct {
	source string
}

func (g staticGenerator) Generate(context.Context, string, string, analysis.Language) (string, error) {
	return g.source, nil
}

type panickingAnalyzer struct{}

func (panickingAnalyzer) Analyze(context.Context, analysis.Request) analysis.Report {
	panic("boom")
}

func newTestServer(t *testing.T, source string) http.Handler {
	t.Helper()

	log, _ := logtest.NewNullLogger()
	svc := analyzer.NewService(script.New(script.Config{Limits: analysis.Limits{Deadline: time.Second}}), log)
	orch := orchestrator.New(staticGenerator{source: source}, svc, orchestrator.Config{}, log)
	return NewServer(Config{}, orch, svc, dataset.Loader{}, log).Handler()
}

func multipartRequest(t *testing.T, fields map[string]string, filename, content string) *http.Request {
	t.Helper()

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	for key, value := range fields {
		if err := form.WriteField(key, value); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if filename != "" {
		part, err := form.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		_, _ = part.Write([]byte(content))
	}
	if err := form.Close(); err != nil {
		t.Fatalf("close form: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/run_analysis", &body)
	req.Header.Set("Content-Type", form.FormDataContentType())
	return req
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return out
}

const sumProgram = `result = json.dumps({text: "sum=" + df.sum("b"), tables: [], charts: []});`

func TestHealth(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	newTestServer(t, sumProgram).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK || decodeBody(t, rec)["status"] != "ok" {
		t.Fatalf("unexpected health response %d %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("expected CORS header")
	}
}

func TestRunAnalysisSuccess(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	req := multipartRequest(t, map[string]string{"prompt": "sum of b"}, "data.csv", "a,b\n1,2\n3,4\n5,6\n")
	newTestServer(t, sumProgram).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["text"] != "sum=12" {
		t.Fatalf("unexpected result %v", body)
	}
	if tables, ok := body["tables"].([]any); !ok || len(tables) != 0 {
		t.Fatalf("expected empty tables array, got %v", body["tables"])
	}
}

func TestRunAnalysisBadRequests(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		fields   map[string]string
		filename string
		content  string
		match    string
	}{
		{name: "missing prompt", filename: "data.csv", content: "a\n1\n", match: "prompt is required"},
		{name: "missing file", fields: map[string]string{"prompt": "q"}, match: "file is required"},
		{name: "unsupported file", fields: map[string]string{"prompt": "q"}, filename: "data.txt", content: "x", match: "unsupported file format"},
		{name: "unknown language", fields: map[string]string{"prompt": "q", "language": "ruby"}, filename: "data.csv", content: "a\n1\n", match: "unsupported language"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			rec := httptest.NewRecorder()
			newTestServer(t, sumProgram).ServeHTTP(rec, multipartRequest(t, tc.fields, tc.filename, tc.content))
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
			if msg, _ := decodeBody(t, rec)["error"].(string); !strings.Contains(msg, tc.match) {
				t.Fatalf("expected error containing %q, got %q", tc.match, msg)
			}
		})
	}
}

func TestRunAnalysisCoreErrorsAre500(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		source string
		code   string
	}{
		{name: "malformed payload", source: `result = "{oops";`, code: "normalization_failure:invalid-encoding"},
		{name: "timeout", source: `while (true) {}`, code: "timeout"},
		{name: "denied capability", source: `result = process.env;`, code: "runtime_failure"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			rec := httptest.NewRecorder()
			req := multipartRequest(t, map[string]string{"prompt": "q"}, "data.csv", "a,b\n1,2\n")
			newTestServer(t, tc.source).ServeHTTP(rec, req)

			if rec.Code != http.StatusInternalServerError {
				t.Fatalf("expected 500, got %d: %s", rec.Code, rec.Body.String())
			}
			if code := decodeBody(t, rec)["code"]; code != tc.code {
				t.Fatalf("expected code %q, got %v", tc.code, code)
			}
		})
	}
}

func TestRunAnalysisWithoutGenerator(t *testing.T) {
	t.Parallel()

	log, _ := logtest.NewNullLogger()
	handler := NewServer(Config{}, nil, panickingAnalyzer{}, dataset.Loader{}, log).Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, multipartRequest(t, map[string]string{"prompt": "q"}, "data.csv", "a\n1\n"))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestExecute(t *testing.T) {
	t.Parallel()

	payload := `{"id": "job-1", "source": "print('hi'); result = {text: 'rows=' + df.length};",
		"dataset": {"columns": ["a"], "rows": [[1], [2.5], [null]]}}`
	rec := httptest.NewRecorder()
	newTestServer(t, "").ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/execute", strings.NewReader(payload)))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["id"] != "job-1" || !strings.Contains(body["logs"].(string), "hi") {
		t.Fatalf("unexpected response %v", body)
	}
	if result := body["result"].(map[string]any); result["text"] != "rows=3" {
		t.Fatalf("unexpected result %v", result)
	}
}

func TestExecuteRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"not json":       `{`,
		"missing source": `{"dataset": {"columns": ["a"], "rows": []}}`,
		"ragged dataset": `{"source": "result = '{}'", "dataset": {"columns": ["a"], "rows": [[1, 2]]}}`,
		"nested cell":    `{"source": "result = '{}'", "dataset": {"columns": ["a"], "rows": [[[1]]]}}`,
	}
	for name, payload := range cases {
		rec := httptest.NewRecorder()
		newTestServer(t, "").ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/execute", strings.NewReader(payload)))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d: %s", name, rec.Code, rec.Body.String())
		}
	}
}

func TestPanicsAreRecovered(t *testing.T) {
	t.Parallel()

	log, hook := logtest.NewNullLogger()
	handler := NewServer(Config{}, nil, panickingAnalyzer{}, dataset.Loader{}, log).Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/execute", strings.NewReader(`{"source": "x"}`)))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if entry := hook.LastEntry(); entry == nil || entry.Message != "handler panic" {
		t.Fatalf("expected panic to be logged")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	handler := newTestServer(t, sumProgram)
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "tabrun_http_requests_total") {
		t.Fatalf("expected http metrics to be exposed, got %d", rec.Code)
	}
}

func TestPreflight(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	newTestServer(t, "").ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/run_analysis", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", rec.Code)
	}
}
