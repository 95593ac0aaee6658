package ports

import (
	"context"

	"github.com/thomassthus-stack/Tommytiger/internal/domain/analysis"
)

// Sandbox executes untrusted analysis programs against a dataset.
//
// Everything the program does, including hanging, crashing or touching a name
// outside the allow-list, is reported through the Outcome. The error return is
// reserved for infrastructure faults such as a missing engine.
type Sandbox interface {
	Execute(ctx context.Context, program analysis.Program, dataset analysis.Dataset) (analysis.Outcome, error)
	Close() error
}
