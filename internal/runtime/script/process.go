package script

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/thomassthus-stack/Tommytiger/internal/domain/analysis"
	runtimex "github.com/thomassthus-stack/Tommytiger/internal/runtime"
)

// WorkerCommand is the hidden sub-command that turns the binary into a
// script worker reading one request from stdin.
const WorkerCommand = "script-worker"

const (
	defaultProcessMemory = 512 << 20
	// defaultKillGrace is added to the deadline before the worker is killed,
	// leaving the worker time to interrupt the program and report a timeout
	// itself.
	defaultKillGrace = interruptGrace + time.Second
	maxWorkerStderr  = 8 << 10
)

// ProcessConfig tunes the process-isolated script engine.
type ProcessConfig struct {
	// Command starts a worker that calls Serve. Defaults to the running
	// executable with WorkerCommand.
	Command []string
	// Env is appended to the host environment of the worker.
	Env []string
	// Limits apply when a program carries none. A zero memory limit uses 512MiB.
	Limits analysis.Limits
	// MaxLimits caps program supplied limits. Zero fields fall back to Limits.
	MaxLimits analysis.Limits
	KillGrace time.Duration
}

func (c ProcessConfig) withDefaults() (ProcessConfig, error) {
	if len(c.Command) == 0 {
		exe, err := os.Executable()
		if err != nil {
			return c, fmt.Errorf("locate worker executable: %w", err)
		}
		c.Command = []string{exe, WorkerCommand}
	}
	c.Limits = c.Limits.Merge(analysis.Limits{Deadline: analysis.DefaultDeadline, MemoryLimitBytes: defaultProcessMemory})
	c.MaxLimits = c.MaxLimits.Ceiling(c.Limits)
	if c.KillGrace <= 0 {
		c.KillGrace = defaultKillGrace
	}
	return c, nil
}

// Process runs each JavaScript program in a short-lived worker process with
// its own address space limit, so a program that exhausts memory takes down
// the worker instead of the host.
type Process struct {
	cfg ProcessConfig
}

var _ runtimex.Module = (*Process)(nil)

// NewProcess constructs a process-isolated script module.
func NewProcess(cfg ProcessConfig) (*Process, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	return &Process{cfg: cfg}, nil
}

func (p *Process) Language() analysis.Language {
	return analysis.LanguageJavaScript
}

// Execute hands program to a fresh worker. The worker enforces the deadline
// itself; the host kills it once the deadline plus KillGrace has passed.
func (p *Process) Execute(ctx context.Context, program analysis.Program, dataset analysis.Dataset) (analysis.Outcome, error) {
	if program.Language != "" && program.Language != analysis.LanguageJavaScript {
		return analysis.Outcome{}, fmt.Errorf("script runtime: program language %q does not match module %q", program.Language, analysis.LanguageJavaScript)
	}
	if err := ctx.Err(); err != nil {
		return analysis.Outcome{}, err
	}

	limits := program.Limits.Merge(p.cfg.Limits).Clamp(p.cfg.MaxLimits)
	program.Limits = limits
	request, err := encodeWorkerRequest(program, dataset)
	if err != nil {
		return analysis.Outcome{}, fmt.Errorf("script runtime: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, limits.Deadline+p.cfg.KillGrace)
	defer cancel()

	cmd := exec.CommandContext(runCtx, p.cfg.Command[0], p.cfg.Command[1:]...)
	cmd.Env = append(os.Environ(), p.cfg.Env...)
	cmd.Stdin = bytes.NewReader(request)
	var stdout bytes.Buffer
	stderr := &headBuffer{max: maxWorkerStderr}
	cmd.Stdout = &stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = time.Second

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	if err := ctx.Err(); err != nil {
		return analysis.Outcome{}, err
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		outcome := analysis.TimedOut()
		outcome.Duration = elapsed
		return outcome, nil
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		outcome := workerFailure(exitErr, stderr.String())
		outcome.Duration = elapsed
		return outcome, nil
	}
	if runErr != nil {
		return analysis.Outcome{}, fmt.Errorf("script runtime: start worker: %w", runErr)
	}

	outcome, err := decodeWorkerResponse(stdout.Bytes())
	if err != nil {
		return analysis.Outcome{}, fmt.Errorf("script runtime: %w", err)
	}
	outcome.Duration = elapsed
	return outcome, nil
}

// workerFailure maps an abnormal worker exit onto a runtime failure. Running
// into the address space limit aborts the Go runtime with an out of memory
// error; the kernel OOM killer leaves a SIGKILL.
func workerFailure(exitErr *exec.ExitError, stderr string) analysis.Outcome {
	if memoryExhausted(exitErr, stderr) {
		return analysis.Failed("memory limit exceeded")
	}
	detail := firstLine(stderr)
	if detail == "" {
		return analysis.Failed(fmt.Sprintf("script worker %s", exitErr.ProcessState))
	}
	return analysis.Failed(fmt.Sprintf("script worker %s: %s", exitErr.ProcessState, detail))
}

func memoryExhausted(exitErr *exec.ExitError, stderr string) bool {
	if strings.Contains(stderr, "out of memory") || strings.Contains(stderr, "cannot allocate memory") {
		return true
	}
	return strings.Contains(exitErr.ProcessState.String(), "signal: killed")
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return s
}

// Bindings lists the names a worker exposes to a program.
func (p *Process) Bindings() ([]string, error) {
	return New(Config{}).Bindings()
}

func (p *Process) Close() error {
	return nil
}

// headBuffer keeps the first max bytes written to it and discards the rest.
type headBuffer struct {
	buf bytes.Buffer
	max int
}

func (h *headBuffer) Write(b []byte) (int, error) {
	if room := h.max - h.buf.Len(); room > 0 {
		if len(b) > room {
			h.buf.Write(b[:room])
		} else {
			h.buf.Write(b)
		}
	}
	return len(b), nil
}

func (h *headBuffer) String() string {
	return h.buf.String()
}
