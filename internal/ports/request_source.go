package ports

import (
	"context"

	"github.com/thomassthus-stack/Tommytiger/internal/domain/analysis"
)

// RequestSource provides analysis requests to a worker loop. Implementations
// return io.EOF once no further requests will arrive.
type RequestSource interface {
	NextRequest(ctx context.Context) (analysis.Request, error)
}
