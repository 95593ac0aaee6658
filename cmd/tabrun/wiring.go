package main

import (
	"fmt"

	"github.com/thomassthus-stack/Tommytiger/internal/app/analyzer"
	"github.com/thomassthus-stack/Tommytiger/internal/app/orchestrator"
	"github.com/thomassthus-stack/Tommytiger/internal/infra/openai"
	"github.com/thomassthus-stack/Tommytiger/internal/runtime"
	"github.com/thomassthus-stack/Tommytiger/internal/runtime/docker"
	"github.com/thomassthus-stack/Tommytiger/internal/runtime/script"
)

// buildRegistry registers the script engine first so it serves programs that
// name no language. The python engine is added when enabled.
func (a *app) buildRegistry() (*runtime.Registry, error) {
	js, err := a.scriptModule()
	if err != nil {
		return nil, err
	}
	modules := []runtime.Module{js}

	if a.cfg.Python.Enabled {
		python, err := docker.New(dockerConfig(a.cfg))
		if err != nil {
			return nil, fmt.Errorf("initialize python engine: %w", err)
		}
		modules = append(modules, python)
	}

	registry, err := runtime.NewRegistry(modules...)
	if err != nil {
		return nil, err
	}
	a.log.WithField("languages", registry.Languages()).Info("execution engines ready")
	return registry, nil
}

// scriptModule runs every JavaScript program in a worker process unless
// in-process execution was asked for.
func (a *app) scriptModule() (runtime.Module, error) {
	if a.cfg.Script.InProcess {
		a.log.Warn("javascript runs in-process; memory is not bounded")
		return script.New(script.Config{Limits: a.cfg.Limits, MaxLimits: a.cfg.MaxLimits}), nil
	}
	js, err := script.NewProcess(script.ProcessConfig{Limits: a.cfg.Limits, MaxLimits: a.cfg.MaxLimits})
	if err != nil {
		return nil, fmt.Errorf("initialize script engine: %w", err)
	}
	return js, nil
}

func (a *app) buildAnalyzer() (*analyzer.Service, error) {
	registry, err := a.buildRegistry()
	if err != nil {
		return nil, err
	}
	return analyzer.NewService(registry, a.log), nil
}

// buildOrchestrator returns nil when no API key is configured.
func (a *app) buildOrchestrator(svc *analyzer.Service) (*orchestrator.Orchestrator, error) {
	if a.cfg.OpenAI.APIKey == "" {
		return nil, nil
	}
	generator, err := openai.New(openai.Config{
		APIKey:      a.cfg.OpenAI.APIKey,
		BaseURL:     a.cfg.OpenAI.BaseURL,
		Model:       a.cfg.OpenAI.Model,
		Temperature: a.cfg.OpenAI.Temperature,
	})
	if err != nil {
		return nil, err
	}
	return orchestrator.New(generator, svc, orchestrator.Config{Limits: a.cfg.Limits}, a.log), nil
}

func (a *app) closeService(svc *analyzer.Service) {
	if err := svc.Close(); err != nil {
		a.log.WithError(err).Warn("failed to close execution engines")
	}
}
