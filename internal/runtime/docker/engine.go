package docker

import (
	"fmt"

	"github.com/docker/docker/client"
)

// New constructs the Python module backed by the Docker daemon found in the
// environment.
func New(cfg Config) (*Module, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker runtime: create client: %w", err)
	}

	module, err := newModule(cli, cfg)
	if err != nil {
		_ = cli.Close()
		return nil, err
	}

	return module, nil
}
