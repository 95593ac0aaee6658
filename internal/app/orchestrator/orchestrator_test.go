package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"

	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/thomassthus-stack/Tommytiger/internal/app/analyzer"
	"github.com/thomassthus-stack/Tommytiger/internal/domain/analysis"
	"github.com/thomassthus-stack/Tommytiger/internal/runtime/script"
)

type fakeGenerator struct {
	source  string
	err     error
	prompt  string
	preview string
	lang    analysis.Language
	calls   int
}

func (g *fakeGenerator) Generate(_ context.Context, prompt, preview string, lang analysis.Language) (string, error) {
	g.calls++
	g.prompt = prompt
	g.preview = preview
	g.lang = lang
	return g.source, g.err
}

type recordingAnalyzer struct {
	request analysis.Request
	report  analysis.Report
}

func (a *recordingAnalyzer) Analyze(_ context.Context, request analysis.Request) analysis.Report {
	a.request = request
	a.report.Request = request
	return a.report
}

func sampleDataset() analysis.Dataset {
	return analysis.Dataset{
		Columns: []string{"a", "b"},
		Rows:    [][]any{{int64(1), int64(2)}, {int64(3), int64(4)}, {int64(5), int64(6)}},
	}
}

func newAnalyzer(t *testing.T) *analyzer.Service {
	t.Helper()
	log, _ := logtest.NewNullLogger()
	return analyzer.NewService(script.New(script.Config{}), log)
}

func TestAnalyzeEndToEndWithScriptEngine(t *testing.T) {
	t.Parallel()

	generator := &fakeGenerator{source: `result = json.dumps({text: "sum=" + df.sum("b"), tables: [], charts: []});`}
	log, _ := logtest.NewNullLogger()
	orch := New(generator, newAnalyzer(t), Config{}, log)

	result, err := orch.Analyze(context.Background(), "what is the sum of b?", sampleDataset(), "")
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}
	if result.Text != "sum=12" {
		t.Fatalf("expected sum=12, got %q", result.Text)
	}
	if len(result.Tables) != 0 || len(result.Charts) != 0 {
		t.Fatalf("expected empty collections, got %+v", result)
	}
	if generator.lang != analysis.LanguageJavaScript {
		t.Fatalf("expected default language, got %q", generator.lang)
	}
	if !strings.Contains(generator.preview, "a") || !strings.Contains(generator.preview, "6") {
		t.Fatalf("preview does not describe the dataset:\n%s", generator.preview)
	}
}

func TestAnalyzeSurfacesTypedErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		source   string
		wantCode string
	}{
		{name: "malformed payload", source: `result = "{not json";`, wantCode: "normalization_failure:invalid-encoding"},
		{name: "unbound result", source: `const x = 1;`, wantCode: "runtime_failure"},
		{name: "denied capability", source: `require("fs");`, wantCode: "runtime_failure"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			log, _ := logtest.NewNullLogger()
			orch := New(&fakeGenerator{source: tc.source}, newAnalyzer(t), Config{}, log)
			_, err := orch.Analyze(context.Background(), "question", sampleDataset(), analysis.LanguageJavaScript)
			if got := analysis.ErrorCode(err); got != tc.wantCode {
				t.Fatalf("expected %q, got %q (%v)", tc.wantCode, got, err)
			}
		})
	}
}

func TestRunAppliesConfiguredLimitsAndIDs(t *testing.T) {
	t.Parallel()

	result := analysis.NewResult("ok")
	fake := &recordingAnalyzer{report: analysis.Report{Result: &result}}
	limits := analysis.Limits{Deadline: 3e9, MemoryLimitBytes: 1 << 20}
	orch := New(&fakeGenerator{source: "result = '{}'"}, fake, Config{Language: analysis.LanguagePython, Limits: limits}, nil)

	report, err := orch.Run(context.Background(), "question", sampleDataset(), "")
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if report.Request.ID == "" || fake.request.Program.ID != fake.request.ID {
		t.Fatalf("expected matching request and program IDs, got %+v", fake.request)
	}
	if fake.request.Program.Language != analysis.LanguagePython {
		t.Fatalf("expected configured language, got %q", fake.request.Program.Language)
	}
	if fake.request.Program.Limits != limits {
		t.Fatalf("expected limits %+v, got %+v", limits, fake.request.Program.Limits)
	}
}

func TestAnalyzeRejectsBeforeGenerating(t *testing.T) {
	t.Parallel()

	generator := &fakeGenerator{}
	orch := New(generator, &recordingAnalyzer{}, Config{}, nil)

	if _, err := orch.Analyze(context.Background(), "   ", sampleDataset(), ""); !errors.Is(err, ErrEmptyPrompt) {
		t.Fatalf("expected ErrEmptyPrompt, got %v", err)
	}
	bad := analysis.Dataset{Columns: []string{"a"}, Rows: [][]any{{1, 2}}}
	if _, err := orch.Analyze(context.Background(), "question", bad, ""); err == nil {
		t.Fatalf("expected dataset validation error")
	}
	if generator.calls != 0 {
		t.Fatalf("generator should not be called, got %d calls", generator.calls)
	}
}

func TestAnalyzeWrapsGeneratorError(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("model unavailable")
	orch := New(&fakeGenerator{err: wantErr}, &recordingAnalyzer{}, Config{}, nil)

	_, err := orch.Analyze(context.Background(), "question", sampleDataset(), "")
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected wrapped generator error, got %v", err)
	}
	if analysis.ErrorCode(err) != "internal" {
		t.Fatalf("expected internal code, got %q", analysis.ErrorCode(err))
	}
}
