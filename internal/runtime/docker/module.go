package docker

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/thomassthus-stack/Tommytiger/internal/capability"
	"github.com/thomassthus-stack/Tommytiger/internal/domain/analysis"
	runtimex "github.com/thomassthus-stack/Tommytiger/internal/runtime"
)

// Module runs Python programs in throwaway containers.
type Module struct {
	runtime *languageRuntime
	client  dockerClient
	harness string
}

var _ runtimex.Module = (*Module)(nil)

func newModule(cli dockerClient, cfg Config) (*Module, error) {
	cfg = cfg.withDefaults()
	runtime, err := newLanguageRuntime(cfg, newContainerEngine(cli, cfg))
	if err != nil {
		return nil, err
	}
	return &Module{
		runtime: runtime,
		client:  cli,
		harness: renderHarness(cfg.Capabilities),
	}, nil
}

func (m *Module) Language() analysis.Language {
	return analysis.LanguagePython
}

// Execute runs program inside a new container. Infrastructure faults are
// returned as errors; everything the program does maps to the Outcome.
func (m *Module) Execute(ctx context.Context, program analysis.Program, dataset analysis.Dataset) (analysis.Outcome, error) {
	if program.Language != "" && program.Language != analysis.LanguagePython {
		return analysis.Outcome{}, fmt.Errorf("docker runtime: program language %q does not match module %q", program.Language, analysis.LanguagePython)
	}

	if err := m.runtime.ensureImage(ctx); err != nil {
		return analysis.Outcome{}, err
	}

	data, err := encodeDataset(dataset)
	if err != nil {
		return analysis.Outcome{}, fmt.Errorf("docker runtime: encode dataset: %w", err)
	}

	run, err := m.runtime.engine.runProgram(ctx, m.runtime, program.Limits, pythonCommand, []fileSpec{
		{Name: harnessFilename, Data: []byte(m.harness)},
		{Name: programFilename, Data: []byte(program.Source)},
		{Name: datasetFilename, Data: data},
	}, reportFilename)
	if err != nil {
		return analysis.Outcome{}, err
	}

	return m.outcome(run), nil
}

func (m *Module) outcome(run *containerRun) analysis.Outcome {
	var outcome analysis.Outcome
	switch {
	case run.TimedOut:
		outcome = analysis.TimedOut()
	case run.OOMKilled:
		outcome = analysis.Failed("memory limit exceeded")
	case len(run.Report) == 0:
		outcome = analysis.Failed(fmt.Sprintf("program exited with code %d without a report: %s", run.ExitCode, tail(run.Stderr, 512)))
	default:
		outcome = decodeReport(run.Report)
	}
	outcome.Duration = run.Duration
	outcome.Logs = tail(run.Stdout, m.runtime.config.MaxLogBytes)
	return outcome
}

// Bindings lists the names the harness exposes to a program, including the
// output slot.
func (m *Module) Bindings() []string {
	builtins, libraries := pythonBindings(m.runtime.config.Capabilities)
	names := append(append(builtins, libraries...), capability.DatasetName, capability.ResultName)
	sort.Strings(names)
	return names
}

// Close releases the Docker client.
func (m *Module) Close() error {
	if err := m.client.Close(); err != nil {
		return fmt.Errorf("docker client: %w", err)
	}
	return nil
}

func tail(s string, limit int) string {
	s = strings.TrimSpace(s)
	if limit <= 0 || len(s) <= limit {
		return s
	}
	return "..." + s[len(s)-limit:]
}
