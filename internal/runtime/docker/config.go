package docker

import (
	"github.com/thomassthus-stack/Tommytiger/internal/capability"
	"github.com/thomassthus-stack/Tommytiger/internal/domain/analysis"
)

const (
	// DefaultImage ships pandas, numpy and matplotlib.
	DefaultImage     = "jupyter/scipy-notebook:python-3.11"
	defaultWorkdir   = "/tmp"
	defaultPidsLimit = 64
	defaultNanoCPUs  = 1_000_000_000
	defaultMaxLogs   = 64 << 10
)

// Config describes how to create the Docker-backed Python engine.
type Config struct {
	Image   string
	Workdir string
	// DefaultLimits apply when a program carries no limits of its own.
	DefaultLimits analysis.Limits
	// MaxLimits bounds caller supplied limits. Zero fields fall back to DefaultLimits.
	MaxLimits    analysis.Limits
	PidsLimit    int64
	NanoCPUs     int64
	MaxLogBytes  int
	Capabilities *capability.List
}

func (c Config) withDefaults() Config {
	if c.Image == "" {
		c.Image = DefaultImage
	}
	if c.Workdir == "" {
		c.Workdir = defaultWorkdir
	}
	if c.PidsLimit <= 0 {
		c.PidsLimit = defaultPidsLimit
	}
	if c.NanoCPUs <= 0 {
		c.NanoCPUs = defaultNanoCPUs
	}
	if c.MaxLogBytes <= 0 {
		c.MaxLogBytes = defaultMaxLogs
	}
	if c.Capabilities == nil {
		c.Capabilities = capability.Default()
	}
	return c
}
