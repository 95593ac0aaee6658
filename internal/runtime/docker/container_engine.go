package docker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/docker/docker/api/types/container"
	typesimage "github.com/docker/docker/api/types/image"

	"github.com/thomassthus-stack/Tommytiger/internal/domain/analysis"
)

// containerRun is the raw record of one container execution.
type containerRun struct {
	Stdout    string
	Stderr    string
	ExitCode  int64
	OOMKilled bool
	TimedOut  bool
	Duration  time.Duration
	// Report holds the harness report file, nil when the program never wrote one.
	Report []byte
}

type containerEngine struct {
	cli           dockerClient
	defaultLimits analysis.Limits
	maxLimits     analysis.Limits
	pidsLimit     int64
	nanoCPUs      int64
}

func newContainerEngine(cli dockerClient, cfg Config) *containerEngine {
	return &containerEngine{
		cli:           cli,
		defaultLimits: cfg.DefaultLimits.Normalize(),
		maxLimits:     cfg.MaxLimits.Ceiling(analysis.Limits{}.Merge(cfg.DefaultLimits)),
		pidsLimit:     cfg.PidsLimit,
		nanoCPUs:      cfg.NanoCPUs,
	}
}

func (c *containerEngine) pullImage(ctx context.Context, ref string) error {
	reader, err := c.cli.ImagePull(ctx, ref, typesimage.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image %s: %w", ref, err)
	}
	defer reader.Close()
	_, err = io.Copy(io.Discard, reader)
	if err != nil {
		return fmt.Errorf("consume pull output for %s: %w", ref, err)
	}
	return nil
}

func (c *containerEngine) effectiveLimits(request analysis.Limits) analysis.Limits {
	return request.Merge(c.defaultLimits).Clamp(c.maxLimits)
}

// runProgram executes command in a fresh container holding files and collects
// the report file named reportName from the workdir. The container is always
// removed.
func (c *containerEngine) runProgram(
	ctx context.Context,
	runtime *languageRuntime,
	limits analysis.Limits,
	command []string,
	files []fileSpec,
	reportName string,
) (*containerRun, error) {
	effectiveLimits := c.effectiveLimits(limits)

	containerID, cleanup, err := c.createContainer(ctx, runtime, effectiveLimits, command)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	if err := c.stageFiles(ctx, containerID, runtime.config.Workdir, files); err != nil {
		return nil, fmt.Errorf("copy files: %w", err)
	}

	start := time.Now()
	if err := c.cli.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("start container: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, effectiveLimits.Deadline)
	status, err := c.waitForExit(waitCtx, containerID)
	cancel()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return c.reapTimedOut(containerID, start)
		}
		if ctx.Err() != nil {
			_ = c.kill(containerID)
		}
		return nil, err
	}
	duration := time.Since(start)

	inspect, err := c.cli.ContainerInspect(detached(ctx), containerID)
	if err != nil {
		return nil, fmt.Errorf("inspect container: %w", err)
	}

	stdout, stderr, err := c.collectOutput(detached(ctx), containerID)
	if err != nil {
		return nil, err
	}

	report, err := c.readReport(detached(ctx), containerID, path.Join(runtime.config.Workdir, reportName))
	if err != nil {
		return nil, err
	}

	run := &containerRun{
		Stdout:   stdout,
		Stderr:   stderr,
		ExitCode: status.StatusCode,
		Duration: duration,
		Report:   report,
	}
	if inspect.ContainerJSONBase != nil && inspect.State != nil && inspect.State.OOMKilled {
		run.OOMKilled = true
	}

	return run, nil
}

// createContainer builds a container with no network, no capabilities and
// bounded memory, CPU and process count.
func (c *containerEngine) createContainer(ctx context.Context, runtime *languageRuntime, limits analysis.Limits, cmd []string) (string, func(), error) {
	pids := c.pidsLimit
	hostConfig := &container.HostConfig{
		NetworkMode: "none",
		CapDrop:     []string{"ALL"},
		SecurityOpt: []string{"no-new-privileges"},
		Resources: container.Resources{
			NanoCPUs:  c.nanoCPUs,
			PidsLimit: &pids,
		},
	}
	if limits.MemoryLimitBytes > 0 {
		hostConfig.Resources.Memory = limits.MemoryLimitBytes
		hostConfig.Resources.MemorySwap = limits.MemoryLimitBytes
	}

	resp, err := c.cli.ContainerCreate(
		ctx,
		&container.Config{
			Image:           runtime.config.Image,
			Cmd:             cmd,
			AttachStdout:    true,
			AttachStderr:    true,
			WorkingDir:      runtime.config.Workdir,
			NetworkDisabled: true,
			Env:             []string{"MPLBACKEND=Agg", "PYTHONDONTWRITEBYTECODE=1"},
		},
		hostConfig,
		nil,
		nil,
		"",
	)
	if err != nil {
		return "", nil, fmt.Errorf("create container: %w", err)
	}

	cleanup := func() {
		_ = c.cli.ContainerRemove(context.Background(), resp.ID, container.RemoveOptions{Force: true})
	}

	return resp.ID, cleanup, nil
}

// detached keeps follow-up calls working after ctx was cancelled.
func detached(ctx context.Context) context.Context {
	if ctx.Err() != nil {
		return context.Background()
	}
	return ctx
}
