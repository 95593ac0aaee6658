package ports

import (
	"context"

	"github.com/thomassthus-stack/Tommytiger/internal/domain/analysis"
)

// CodeGenerator turns a natural-language question and a dataset preview into
// program source. The returned text is untrusted.
type CodeGenerator interface {
	Generate(ctx context.Context, prompt, preview string, lang analysis.Language) (string, error)
}
