package ports

import (
	"context"

	"github.com/thomassthus-stack/Tommytiger/internal/domain/analysis"
)

// ReportPublisher publishes analysis reports to an external system.
type ReportPublisher interface {
	PublishReport(ctx context.Context, report analysis.Report) error
	Close() error
}
