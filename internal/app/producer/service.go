package producer

import (
	"context"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/thomassthus-stack/Tommytiger/internal/domain/analysis"
	"github.com/thomassthus-stack/Tommytiger/internal/ports"
)

// Service implements ports.RequestSource over an in-memory catalogue.
type Service struct {
	mu       sync.Mutex
	requests []analysis.Request
	index    int
}

var _ ports.RequestSource = (*Service)(nil)

// SampleDataset is the small frame used by the built-in catalogue.
func SampleDataset() analysis.Dataset {
	return analysis.Dataset{
		Columns: []string{"a", "b"},
		Rows: [][]any{
			{int64(1), int64(2)},
			{int64(3), int64(4)},
			{int64(5), int64(6)},
		},
	}
}

// NewService builds a producer seeded with a default catalogue of sample analyses.
func NewService() *Service {
	dataset := SampleDataset()
	return &Service{
		requests: []analysis.Request{
			{
				ID:      "sum",
				Dataset: dataset,
				Program: analysis.Program{
					Language: analysis.LanguageJavaScript,
					Source:   "result = json.dumps({text: 'sum=' + df.sum('b'), tables: [], charts: []});\n",
				},
			},
			{
				ID:      "describe",
				Dataset: dataset,
				Program: analysis.Program{
					Language: analysis.LanguageJavaScript,
					Source: "result = {\n" +
						"  text: 'rows=' + df.length,\n" +
						"  tables: [{name: 'Summary', data: [df.describe('b')]}],\n" +
						"  charts: [plt.bar('a vs b', 'b by a')],\n" +
						"};\n",
				},
			},
		},
	}
}

// NewServiceFrom builds a producer that serves exactly the given requests.
func NewServiceFrom(requests ...analysis.Request) *Service {
	s := &Service{}
	for _, request := range requests {
		s.Add(request)
	}
	return s
}

// NextRequest returns the next queued request or io.EOF once the catalogue is drained.
func (s *Service) NextRequest(ctx context.Context) (analysis.Request, error) {
	select {
	case <-ctx.Done():
		return analysis.Request{}, ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.index >= len(s.requests) {
		return analysis.Request{}, io.EOF
	}

	request := s.requests[s.index]
	s.index++

	return request, nil
}

// Add extends the catalogue at runtime. Requests without an ID get a random one.
func (s *Service) Add(request analysis.Request) {
	if request.ID == "" {
		request.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, request)
}
