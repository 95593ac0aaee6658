// Package script runs JavaScript analysis programs in an in-process goja
// runtime restricted to the capability allow-list.
//
// Every execution gets a fresh runtime. Deadlines are enforced preemptively by
// interrupting the runtime, so a program that never yields still returns
// control to the host.
package script

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/thomassthus-stack/Tommytiger/internal/capability"
	"github.com/thomassthus-stack/Tommytiger/internal/domain/analysis"
	runtimex "github.com/thomassthus-stack/Tommytiger/internal/runtime"
)

const (
	defaultMaxElements      = 1_000_000
	defaultMaxCallStackSize = 512
	defaultMaxLogBytes      = 64 << 10
	// interruptGrace bounds how long Execute waits for an interrupted runtime
	// to unwind before abandoning it.
	interruptGrace = 2 * time.Second
)

var errDeadlineExceeded = errors.New("deadline exceeded")

// Config tunes the script engine.
type Config struct {
	// Limits.Deadline applies when a program does not carry its own. Memory
	// limits are not enforced in-process; see Process.
	Limits analysis.Limits
	// MaxLimits caps program supplied limits. Zero fields fall back to Limits.
	MaxLimits        analysis.Limits
	MaxElements      int
	MaxCallStackSize int
	MaxLogBytes      int
	Capabilities     *capability.List
}

func (c Config) withDefaults() Config {
	c.Limits = c.Limits.Merge(analysis.Limits{Deadline: analysis.DefaultDeadline})
	c.MaxLimits = c.MaxLimits.Ceiling(c.Limits)
	if c.MaxElements <= 0 {
		c.MaxElements = defaultMaxElements
	}
	if c.MaxCallStackSize <= 0 {
		c.MaxCallStackSize = defaultMaxCallStackSize
	}
	if c.MaxLogBytes <= 0 {
		c.MaxLogBytes = defaultMaxLogBytes
	}
	if c.Capabilities == nil {
		c.Capabilities = capability.Default()
	}
	return c
}

// Module implements runtime.Module for JavaScript.
type Module struct {
	cfg Config
}

var _ runtimex.Module = (*Module)(nil)

// New constructs a script module.
func New(cfg Config) *Module {
	return &Module{cfg: cfg.withDefaults()}
}

func (m *Module) Language() analysis.Language {
	return analysis.LanguageJavaScript
}

// Execute runs program against a private copy of dataset.
func (m *Module) Execute(ctx context.Context, program analysis.Program, dataset analysis.Dataset) (analysis.Outcome, error) {
	if program.Language != "" && program.Language != analysis.LanguageJavaScript {
		return analysis.Outcome{}, fmt.Errorf("script runtime: program language %q does not match module %q", program.Language, analysis.LanguageJavaScript)
	}
	if err := ctx.Err(); err != nil {
		return analysis.Outcome{}, err
	}

	limits := program.Limits.Merge(m.cfg.Limits).Clamp(m.cfg.MaxLimits)
	sess, err := newSession(m.cfg, dataset.Clone())
	if err != nil {
		return analysis.Outcome{}, fmt.Errorf("script runtime: %w", err)
	}

	start := time.Now()
	done := make(chan analysis.Outcome, 1)
	go func() {
		done <- sess.run(program.Source)
	}()

	timer := time.NewTimer(limits.Deadline)
	defer timer.Stop()

	select {
	case outcome := <-done:
		outcome.Duration = time.Since(start)
		outcome.Logs = sess.output()
		return outcome, nil
	case <-timer.C:
		sess.interrupt(errDeadlineExceeded)
		awaitUnwind(done)
		outcome := analysis.TimedOut()
		outcome.Duration = time.Since(start)
		outcome.Logs = sess.output()
		return outcome, nil
	case <-ctx.Done():
		sess.interrupt(ctx.Err())
		awaitUnwind(done)
		return analysis.Outcome{}, ctx.Err()
	}
}

func awaitUnwind(done <-chan analysis.Outcome) {
	grace := time.NewTimer(interruptGrace)
	defer grace.Stop()
	select {
	case <-done:
	case <-grace.C:
	}
}

// Bindings lists every name a program can resolve at global scope, including
// the output slot.
func (m *Module) Bindings() ([]string, error) {
	sess, err := newSession(m.cfg, analysis.Dataset{})
	if err != nil {
		return nil, err
	}
	names, err := sess.globals()
	if err != nil {
		return nil, err
	}
	names = append(names, capability.ResultName)
	sort.Strings(names)
	return names, nil
}

func (m *Module) Close() error {
	return nil
}
