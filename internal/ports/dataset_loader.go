package ports

import (
	"io"

	"github.com/thomassthus-stack/Tommytiger/internal/domain/analysis"
)

// DatasetLoader decodes an uploaded file into a Dataset. The filename selects
// the format.
type DatasetLoader interface {
	Load(filename string, r io.Reader) (analysis.Dataset, error)
}
