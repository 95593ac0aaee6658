package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/thomassthus-stack/Tommytiger/internal/domain/analysis"
)

// Registry wires language modules into a single Engine implementation.
type Registry struct {
	mu       sync.RWMutex
	modules  map[analysis.Language]Module
	fallback analysis.Language
}

// NewRegistry constructs a registry from the supplied modules. Programs that do
// not name a language run on the first module.
func NewRegistry(mods ...Module) (*Registry, error) {
	reg := &Registry{
		modules: make(map[analysis.Language]Module, len(mods)),
	}

	for _, module := range mods {
		if module == nil {
			return nil, fmt.Errorf("runtime module cannot be nil")
		}

		lang := module.Language()
		if lang == "" {
			return nil, fmt.Errorf("runtime module missing language identifier")
		}
		if _, exists := reg.modules[lang]; exists {
			return nil, fmt.Errorf("duplicate runtime module for language %q", lang)
		}
		if reg.fallback == "" {
			reg.fallback = lang
		}

		reg.modules[lang] = module
	}

	if len(reg.modules) == 0 {
		return nil, fmt.Errorf("at least one runtime module must be registered")
	}

	return reg, nil
}

// Execute dispatches the program to the module responsible for its language.
func (r *Registry) Execute(ctx context.Context, program analysis.Program, dataset analysis.Dataset) (analysis.Outcome, error) {
	lang := program.Language
	if lang == "" {
		lang = r.fallback
		program.Language = lang
	}
	module, err := r.moduleFor(lang)
	if err != nil {
		return analysis.Outcome{}, err
	}
	return module.Execute(ctx, program, dataset)
}

// Languages lists the registered languages, default first.
func (r *Registry) Languages() []analysis.Language {
	r.mu.RLock()
	defer r.mu.RUnlock()

	langs := []analysis.Language{r.fallback}
	for lang := range r.modules {
		if lang != r.fallback {
			langs = append(langs, lang)
		}
	}
	return langs
}

// Close releases resources held by each module.
func (r *Registry) Close() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var errs []error
	for lang, module := range r.modules {
		if err := module.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", lang, err))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

func (r *Registry) moduleFor(lang analysis.Language) (Module, error) {
	r.mu.RLock()
	module, ok := r.modules[lang]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no runtime module registered for language %q", lang)
	}
	return module, nil
}
