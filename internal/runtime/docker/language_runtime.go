package docker

import (
	"context"
	"fmt"
	"sync"
)

type languageRuntime struct {
	config Config
	engine *containerEngine

	pullOnce sync.Once
	pullErr  error
}

func newLanguageRuntime(cfg Config, engine *containerEngine) (*languageRuntime, error) {
	if cfg.Image == "" {
		return nil, fmt.Errorf("docker runtime: missing image configuration")
	}
	return &languageRuntime{
		config: cfg,
		engine: engine,
	}, nil
}

func (l *languageRuntime) ensureImage(ctx context.Context) error {
	l.pullOnce.Do(func() {
		l.pullErr = l.engine.pullImage(ctx, l.config.Image)
	})
	return l.pullErr
}
