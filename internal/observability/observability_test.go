package observability

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRegistered(t *testing.T) {
	ExecutionsTotal.WithLabelValues("javascript", "success").Inc()
	ExecutionDuration.WithLabelValues("javascript").Observe(0.01)
	NormalizationFailuresTotal.WithLabelValues("invalid-encoding").Inc()
	HTTPRequestsTotal.WithLabelValues("/health", "2xx").Inc()

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("unexpected gather error: %v", err)
	}

	expected := map[string]bool{
		"tabrun_executions_total":             false,
		"tabrun_execution_duration_seconds":   false,
		"tabrun_normalization_failures_total": false,
		"tabrun_http_requests_total":          false,
	}
	for _, mf := range families {
		if _, ok := expected[mf.GetName()]; ok {
			expected[mf.GetName()] = true
		}
	}
	for name, found := range expected {
		if !found {
			t.Errorf("metric %q not found in default registry", name)
		}
	}
}

func TestMetricsMiddlewareCountsStatusClass(t *testing.T) {
	handler := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	counter := HTTPRequestsTotal.WithLabelValues("/middleware-test", "4xx")
	before := testutil.ToFloat64(counter)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/middleware-test", nil))

	if rec.Code != http.StatusTeapot {
		t.Fatalf("expected status to pass through, got %d", rec.Code)
	}
	if got := testutil.ToFloat64(counter); got != before+1 {
		t.Fatalf("expected counter to increase by one, got %v -> %v", before, got)
	}
}

func TestNewLoggerFormats(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log, err := newLogger(&buf, "debug", "json")
	if err != nil {
		t.Fatalf("newLogger returned error: %v", err)
	}
	log.WithField("request_id", "abc").Debug("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log line, got %q: %v", buf.String(), err)
	}
	if entry["msg"] != "hello" || entry["request_id"] != "abc" {
		t.Fatalf("unexpected entry: %v", entry)
	}

	if _, err := newLogger(&buf, "loud", "text"); err == nil {
		t.Fatalf("expected invalid level error")
	}
	if _, err := newLogger(&buf, "info", "xml"); err == nil {
		t.Fatalf("expected invalid format error")
	}
}

func TestPreview(t *testing.T) {
	t.Parallel()

	if got := Preview("  short  ", 10); got != "short" {
		t.Fatalf("unexpected preview: %q", got)
	}
	if got := Preview("abcdefghij", 4); got != "abcd..." {
		t.Fatalf("unexpected truncated preview: %q", got)
	}
}
