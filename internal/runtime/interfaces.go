package runtime

import (
	"context"

	"github.com/thomassthus-stack/Tommytiger/internal/domain/analysis"
)

// Engine executes analysis programs by delegating to language-specific modules.
type Engine interface {
	Execute(ctx context.Context, program analysis.Program, dataset analysis.Dataset) (analysis.Outcome, error)
	Close() error
}

// Module provides sandboxed execution for a single language.
type Module interface {
	Language() analysis.Language
	Execute(ctx context.Context, program analysis.Program, dataset analysis.Dataset) (analysis.Outcome, error)
	Close() error
}
