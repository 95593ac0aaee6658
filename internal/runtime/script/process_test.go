package script

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	goruntime "runtime"
	"strings"
	"testing"
	"time"

	"github.com/thomassthus-stack/Tommytiger/internal/domain/analysis"
)

// workerModeEnv turns the test binary into a worker stand-in.
const workerModeEnv = "TABRUN_SCRIPT_TEST_WORKER"

func TestMain(m *testing.M) {
	switch os.Getenv(workerModeEnv) {
	case "":
		os.Exit(m.Run())
	case "serve":
		if err := Serve(context.Background(), os.Stdin, os.Stdout); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	case "hang":
		time.Sleep(time.Hour)
	case "oom":
		fmt.Fprintln(os.Stderr, "fatal error: out of memory")
		os.Exit(2)
	case "crash":
		fmt.Fprintln(os.Stderr, "panic: boom\n\ngoroutine 1 [running]:")
		os.Exit(2)
	}
	os.Exit(0)
}

func workerProcess(t *testing.T, mode string, cfg ProcessConfig) *Process {
	t.Helper()

	cfg.Command = []string{os.Args[0]}
	cfg.Env = append(cfg.Env, workerModeEnv+"="+mode)
	p, err := NewProcess(cfg)
	if err != nil {
		t.Fatalf("NewProcess returned error: %v", err)
	}
	return p
}

func TestProcessExecuteSumScenario(t *testing.T) {
	t.Parallel()

	p := workerProcess(t, "serve", ProcessConfig{})
	outcome, err := p.Execute(context.Background(), program(`
print("rows", len(df));
result = json.dumps({text: "sum=" + sum(df.col("b")), tables: [], charts: []});
`, 5*time.Second), sampleDataset())
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if outcome.Kind != analysis.OutcomeSuccess {
		t.Fatalf("expected success, got %s: %s", outcome.Kind, outcome.Message)
	}
	text, ok := outcome.Payload.Text()
	if !ok || !strings.Contains(text, `"text":"sum=12"`) {
		t.Fatalf("unexpected payload %s %q", outcome.Payload.Kind(), text)
	}
	if outcome.Logs != "rows 3\n" {
		t.Fatalf("unexpected logs %q", outcome.Logs)
	}
	if outcome.Duration <= 0 {
		t.Fatalf("expected duration to be recorded")
	}
}

func TestProcessStructuredAndFailureOutcomes(t *testing.T) {
	t.Parallel()

	p := workerProcess(t, "serve", ProcessConfig{})
	tests := []struct {
		name    string
		source  string
		kind    analysis.OutcomeKind
		payload analysis.PayloadKind
		message string
	}{
		{name: "structured", source: `result = {text: "ok", tables: [], charts: []};`, kind: analysis.OutcomeSuccess, payload: analysis.PayloadStructured},
		{name: "other", source: `result = 42;`, kind: analysis.OutcomeSuccess, payload: analysis.PayloadOther},
		{name: "unbound", source: `var x = 1;`, kind: analysis.OutcomeRuntimeFailure, message: "did not bind 'result'"},
		{name: "throws", source: `throw new Error("bad input");`, kind: analysis.OutcomeRuntimeFailure, message: "bad input"},
		{name: "spins", source: `for (;;) {}`, kind: analysis.OutcomeTimeout},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			outcome, err := p.Execute(context.Background(), program(tt.source, 200*time.Millisecond), sampleDataset())
			if err != nil {
				t.Fatalf("Execute returned error: %v", err)
			}
			if outcome.Kind != tt.kind {
				t.Fatalf("expected %s, got %s: %s", tt.kind, outcome.Kind, outcome.Message)
			}
			if tt.kind == analysis.OutcomeSuccess && outcome.Payload.Kind() != tt.payload {
				t.Fatalf("expected %s payload, got %s", tt.payload, outcome.Payload.Kind())
			}
			if !strings.Contains(outcome.Message, tt.message) {
				t.Fatalf("expected message containing %q, got %q", tt.message, outcome.Message)
			}
		})
	}
}

func TestProcessSurvivesMemoryExhaustion(t *testing.T) {
	if goruntime.GOOS != "linux" {
		t.Skip("address space limits are only applied on linux")
	}
	t.Parallel()

	p := workerProcess(t, "serve", ProcessConfig{Limits: analysis.Limits{MemoryLimitBytes: 64 << 20}})
	bomb := `var s = "ab"; for (var i = 0; i < 40; i++) { s = s + s; } result = "{}";`

	outcome, err := p.Execute(context.Background(), program(bomb, 10*time.Second), sampleDataset())
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if outcome.Kind != analysis.OutcomeRuntimeFailure || outcome.Message != "memory limit exceeded" {
		t.Fatalf("expected memory failure, got %s: %q", outcome.Kind, outcome.Message)
	}

	follow, err := p.Execute(context.Background(), program(`result = "{}";`, time.Second), sampleDataset())
	if err != nil || follow.Kind != analysis.OutcomeSuccess {
		t.Fatalf("engine unusable after memory failure: %v %s", err, follow.Kind)
	}
}

func TestProcessKillsUnresponsiveWorker(t *testing.T) {
	t.Parallel()

	p := workerProcess(t, "hang", ProcessConfig{KillGrace: 100 * time.Millisecond})
	start := time.Now()
	outcome, err := p.Execute(context.Background(), program(`result = "{}";`, 50*time.Millisecond), sampleDataset())
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if outcome.Kind != analysis.OutcomeTimeout {
		t.Fatalf("expected timeout, got %s: %s", outcome.Kind, outcome.Message)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("worker was not killed promptly: %v", elapsed)
	}
}

func TestProcessClampsCallerDeadline(t *testing.T) {
	t.Parallel()

	p := workerProcess(t, "hang", ProcessConfig{
		Limits:    analysis.Limits{Deadline: 50 * time.Millisecond},
		KillGrace: 100 * time.Millisecond,
	})
	start := time.Now()
	outcome, err := p.Execute(context.Background(), program(`result = "{}";`, 24*time.Hour), sampleDataset())
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if outcome.Kind != analysis.OutcomeTimeout {
		t.Fatalf("expected timeout, got %s", outcome.Kind)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("caller deadline was not capped: %v", elapsed)
	}
}

func TestProcessMapsAbnormalExit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		mode    string
		message string
	}{
		{mode: "oom", message: "memory limit exceeded"},
		{mode: "crash", message: "panic: boom"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.mode, func(t *testing.T) {
			t.Parallel()

			p := workerProcess(t, tt.mode, ProcessConfig{})
			outcome, err := p.Execute(context.Background(), program(`result = "{}";`, time.Second), sampleDataset())
			if err != nil {
				t.Fatalf("Execute returned error: %v", err)
			}
			if outcome.Kind != analysis.OutcomeRuntimeFailure || !strings.Contains(outcome.Message, tt.message) {
				t.Fatalf("expected failure containing %q, got %s: %q", tt.message, outcome.Kind, outcome.Message)
			}
		})
	}
}

func TestProcessContextCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	p := workerProcess(t, "serve", ProcessConfig{})
	_, err := p.Execute(ctx, program(`for (;;) {}`, 10*time.Second), sampleDataset())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation error, got %v", err)
	}
}

func TestProcessRejectsOtherLanguages(t *testing.T) {
	t.Parallel()

	p := workerProcess(t, "serve", ProcessConfig{})
	_, err := p.Execute(context.Background(), analysis.Program{Language: analysis.LanguagePython, Source: "result = '{}'"}, sampleDataset())
	if err == nil {
		t.Fatalf("expected language mismatch error")
	}
}

func TestWorkerRequestKeepsCellTypes(t *testing.T) {
	t.Parallel()

	dataset := analysis.Dataset{
		Columns: []string{"i", "f", "s", "b", "n"},
		Rows:    [][]any{{int64(2), 2.0, "x", true, nil}},
	}
	data, err := encodeWorkerRequest(program(`result = "{}";`, 3*time.Second), dataset)
	if err != nil {
		t.Fatalf("encodeWorkerRequest returned error: %v", err)
	}

	var req workerRequest
	if err := json.Unmarshal(data, &req); err != nil {
		t.Fatalf("decode request: %v", err)
	}
	row := req.dataset().Rows[0]
	if _, ok := row[0].(int64); !ok {
		t.Fatalf("expected int64 cell, got %T", row[0])
	}
	if _, ok := row[1].(float64); !ok {
		t.Fatalf("expected float64 cell, got %T", row[1])
	}
	if row[2] != "x" || row[3] != true || row[4] != nil {
		t.Fatalf("unexpected cells %v", row)
	}
	if got := req.program().Limits.Deadline; got != 3*time.Second {
		t.Fatalf("expected deadline to survive, got %v", got)
	}

	if _, err := encodeWorkerRequest(program("", time.Second), analysis.Dataset{Columns: []string{"t"}, Rows: [][]any{{time.Now()}}}); err == nil {
		t.Fatalf("expected unsupported cell to be rejected")
	}
}

func TestWorkerResponseCarriesInfrastructureErrors(t *testing.T) {
	t.Parallel()

	data, _ := json.Marshal(encodeWorkerResponse(analysis.Outcome{}, errors.New("language mismatch")))
	if _, err := decodeWorkerResponse(data); err == nil || !strings.Contains(err.Error(), "language mismatch") {
		t.Fatalf("expected worker error to surface, got %v", err)
	}

	unencodable := analysis.Succeeded(analysis.OtherPayload(func() {}))
	data, _ = json.Marshal(encodeWorkerResponse(unencodable, nil))
	outcome, err := decodeWorkerResponse(data)
	if err != nil {
		t.Fatalf("decodeWorkerResponse returned error: %v", err)
	}
	if outcome.Kind != analysis.OutcomeSuccess || outcome.Payload.Kind() != analysis.PayloadOther {
		t.Fatalf("unexpected outcome %s %s", outcome.Kind, outcome.Payload.Kind())
	}
}
