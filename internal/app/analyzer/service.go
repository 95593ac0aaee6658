package analyzer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/thomassthus-stack/Tommytiger/internal/domain/analysis"
	"github.com/thomassthus-stack/Tommytiger/internal/ports"
)

// Service runs analysis programs through a sandbox and normalizes their output.
type Service struct {
	sandbox ports.Sandbox
	log     logrus.FieldLogger
}

// NewService constructs a Service. A nil logger falls back to the logrus
// standard logger.
func NewService(sandbox ports.Sandbox, log logrus.FieldLogger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{sandbox: sandbox, log: log}
}

// ExecuteFromProducer pulls requests from the supplied source and analyzes them with bounded parallelism.
//
// If maxRequests is greater than zero the loop stops after that many requests
// have been processed. Otherwise it keeps consuming until the context is
// cancelled or the source signals completion via io.EOF.
//
// When onReport is provided it is invoked after every request with the
// corresponding report.
func (s *Service) ExecuteFromProducer(
	ctx context.Context,
	source ports.RequestSource,
	maxRequests int,
	maxParallel int,
	onReport func(analysis.Report),
) error {
	if maxParallel <= 0 {
		maxParallel = 1
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, maxParallel)
	processed := 0

	finish := func(err error) error {
		wg.Wait()
		return err
	}

	for {
		if maxRequests > 0 && processed >= maxRequests {
			return finish(nil)
		}

		request, err := source.NextRequest(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.EOF) {
				return finish(nil)
			}

			return finish(fmt.Errorf("get next request: %w", err))
		}

		sem <- struct{}{}
		wg.Add(1)
		processed++
		go func(request analysis.Request) {
			defer wg.Done()
			defer func() { <-sem }()

			report := s.Analyze(ctx, request)
			if onReport != nil {
				onReport(report)
			}
		}(request)
	}
}

// Close releases any resources owned by the underlying sandbox.
func (s *Service) Close() error {
	return s.sandbox.Close()
}
