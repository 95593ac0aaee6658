// Package orchestrator ties the pieces of one analysis together: it describes the
// dataset to a code generator, runs the generated program and returns the
// normalized result.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/thomassthus-stack/Tommytiger/internal/domain/analysis"
	"github.com/thomassthus-stack/Tommytiger/internal/ports"
)

// PreviewRows is the number of rows shown to the code generator.
const PreviewRows = 5

// ErrEmptyPrompt is returned when the question is blank.
var ErrEmptyPrompt = errors.New("prompt must not be empty")

// Analyzer runs a single request through the sandbox and normalizer.
type Analyzer interface {
	Analyze(ctx context.Context, request analysis.Request) analysis.Report
}

// Config carries the per-request knobs applied to generated programs.
type Config struct {
	Language analysis.Language
	Limits   analysis.Limits
}

// Orchestrator answers questions about datasets with generated programs.
type Orchestrator struct {
	generator ports.CodeGenerator
	analyzer  Analyzer
	cfg       Config
	log       logrus.FieldLogger
}

// New wires an orchestrator from its collaborators.
func New(generator ports.CodeGenerator, analyzer Analyzer, cfg Config, log logrus.FieldLogger) *Orchestrator {
	if cfg.Language == "" {
		cfg.Language = analysis.LanguageJavaScript
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Orchestrator{generator: generator, analyzer: analyzer, cfg: cfg, log: log}
}

// Analyze generates a program for prompt, executes it against dataset and
// returns the normalized result. An empty lang selects the configured default.
func (o *Orchestrator) Analyze(ctx context.Context, prompt string, dataset analysis.Dataset, lang analysis.Language) (analysis.Result, error) {
	report, err := o.Run(ctx, prompt, dataset, lang)
	if err != nil {
		return analysis.Result{}, err
	}
	if report.Err != nil {
		return analysis.Result{}, report.Err
	}
	return *report.Result, nil
}

// Run is Analyze returning the full report, including logs and timings.
// The error return covers failures before the program ran.
func (o *Orchestrator) Run(ctx context.Context, prompt string, dataset analysis.Dataset, lang analysis.Language) (analysis.Report, error) {
	if strings.TrimSpace(prompt) == "" {
		return analysis.Report{}, ErrEmptyPrompt
	}
	if lang == "" {
		lang = o.cfg.Language
	}
	if err := dataset.Validate(); err != nil {
		return analysis.Report{}, err
	}

	id := uuid.NewString()
	entry := o.log.WithFields(logrus.Fields{"request_id": id, "language": string(lang)})

	source, err := o.generator.Generate(ctx, prompt, dataset.Preview(PreviewRows), lang)
	if err != nil {
		entry.WithError(err).Warn("code generation failed")
		return analysis.Report{}, fmt.Errorf("generate program: %w", err)
	}
	entry.WithField("source_bytes", len(source)).Debug("program generated")

	return o.analyzer.Analyze(ctx, analysis.Request{
		ID:      id,
		Dataset: dataset,
		Program: analysis.Program{
			ID:       id,
			Language: lang,
			Source:   source,
			Limits:   o.cfg.Limits,
		},
	}), nil
}
