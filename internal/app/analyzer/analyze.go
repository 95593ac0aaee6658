package analyzer

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/thomassthus-stack/Tommytiger/internal/domain/analysis"
	"github.com/thomassthus-stack/Tommytiger/internal/normalize"
	"github.com/thomassthus-stack/Tommytiger/internal/observability"
)

const sourcePreviewLen = 120

// Analyze executes one request and normalizes its payload. Every failure is
// reported through Report.Err; Analyze itself never panics on program input.
func (s *Service) Analyze(ctx context.Context, request analysis.Request) analysis.Report {
	report := analysis.Report{Request: request}
	program := request.Program
	if program.ID == "" {
		program.ID = request.ID
	}

	entry := s.log.WithFields(logrus.Fields{
		"request_id": request.ID,
		"language":   string(program.Language),
	})

	if err := request.Dataset.Validate(); err != nil {
		report.Err = fmt.Errorf("invalid request: %w", err)
		entry.WithError(err).Warn("rejecting request")
		return report
	}

	entry.WithField("source", observability.Preview(program.Source, sourcePreviewLen)).Debug("executing program")

	outcome, err := s.sandbox.Execute(ctx, program, request.Dataset)
	if err != nil {
		report.Err = fmt.Errorf("execute program: %w", err)
		observability.ExecutionsTotal.WithLabelValues(languageLabel(program.Language), "error").Inc()
		entry.WithError(err).Error("sandbox failure")
		return report
	}
	report.Outcome = outcome

	observability.ExecutionsTotal.WithLabelValues(languageLabel(program.Language), string(outcome.Kind)).Inc()
	observability.ExecutionDuration.WithLabelValues(languageLabel(program.Language)).Observe(outcome.Duration.Seconds())

	entry = entry.WithFields(logrus.Fields{
		"outcome":     string(outcome.Kind),
		"duration_ms": outcome.Duration.Milliseconds(),
	})

	if err := outcome.Err(); err != nil {
		report.Err = err
		entry.WithField("message", outcome.Message).Info("program did not succeed")
		return report
	}

	result, err := normalize.Normalize(outcome.Payload)
	if err != nil {
		var normErr *analysis.NormalizationError
		if errors.As(err, &normErr) {
			observability.NormalizationFailuresTotal.WithLabelValues(string(normErr.Kind)).Inc()
		}
		report.Err = err
		entry.WithError(err).Info("payload rejected")
		return report
	}

	report.Result = &result
	entry.WithFields(logrus.Fields{
		"tables": len(result.Tables),
		"charts": len(result.Charts),
	}).Info("analysis complete")
	return report
}

func languageLabel(lang analysis.Language) string {
	if lang == "" {
		return "default"
	}
	return string(lang)
}
