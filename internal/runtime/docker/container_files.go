package docker

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// maxReportBytes bounds the harness report read back from a container.
const maxReportBytes = 32 << 20

var errReportTooLarge = errors.New("harness report too large")

// fileSpec is one file staged into the container workdir: the harness, the
// program source or the dataset.
type fileSpec struct {
	Name string
	Mode int64
	Data []byte
}

// stageFiles copies files into workdir as a single tar archive before the
// container starts.
func (c *containerEngine) stageFiles(ctx context.Context, containerID, workdir string, files []fileSpec) error {
	if len(files) == 0 {
		return nil
	}
	archive, err := archiveFiles(files, time.Now())
	if err != nil {
		return err
	}
	return c.cli.CopyToContainer(ctx, containerID, workdir, archive, container.CopyToContainerOptions{AllowOverwriteDirWithFile: true})
}

// archiveFiles packs files as world-readable regular files so the
// unprivileged notebook user can open them.
func archiveFiles(files []fileSpec, modTime time.Time) (io.Reader, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, file := range files {
		mode := file.Mode
		if mode == 0 {
			mode = 0o644
		}
		header := &tar.Header{
			Typeflag: tar.TypeReg,
			Name:     file.Name,
			Mode:     mode,
			Size:     int64(len(file.Data)),
			ModTime:  modTime,
		}
		if err := tw.WriteHeader(header); err != nil {
			return nil, fmt.Errorf("archive %s: %w", file.Name, err)
		}
		if _, err := tw.Write(file.Data); err != nil {
			return nil, fmt.Errorf("archive %s: %w", file.Name, err)
		}
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("close archive: %w", err)
	}
	return &buf, nil
}

// readReport fetches the report the harness wrote at reportPath. A missing
// report is not an error: the program may have been killed or crashed before
// the harness got to write it, and the caller falls back to stderr.
func (c *containerEngine) readReport(ctx context.Context, containerID, reportPath string) ([]byte, error) {
	reader, _, err := c.cli.CopyFromContainer(ctx, containerID, reportPath)
	if client.IsErrNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("copy %s from container: %w", reportPath, err)
	}
	defer reader.Close()

	tr := tar.NewReader(reader)
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read report archive: %w", err)
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}
		if header.Size > maxReportBytes {
			return nil, fmt.Errorf("%w: %d bytes", errReportTooLarge, header.Size)
		}
		data, err := io.ReadAll(io.LimitReader(tr, maxReportBytes))
		if err != nil {
			return nil, fmt.Errorf("read report: %w", err)
		}
		return data, nil
	}
}

// collectOutput demultiplexes what the program printed. Stdout becomes the
// outcome logs; stderr explains a run that left no report behind.
func (c *containerEngine) collectOutput(ctx context.Context, containerID string) (stdout, stderr string, err error) {
	logs, err := c.cli.ContainerLogs(ctx, containerID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return "", "", fmt.Errorf("container logs: %w", err)
	}
	defer logs.Close()

	var out, errOut bytes.Buffer
	if _, err := stdcopy.StdCopy(&out, &errOut, logs); err != nil {
		return "", "", fmt.Errorf("demultiplex logs: %w", err)
	}
	return out.String(), errOut.String(), nil
}

// reapTimedOut kills a container that outlived its deadline and records the
// run as timed out with whatever output it produced so far.
func (c *containerEngine) reapTimedOut(containerID string, start time.Time) (*containerRun, error) {
	if err := c.kill(containerID); err != nil {
		return nil, fmt.Errorf("kill container after deadline: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	status, err := c.waitForExit(waitCtx, containerID)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) && !client.IsErrNotFound(err) {
		return nil, fmt.Errorf("wait for killed container: %w", err)
	}

	stdout, stderr, err := c.collectOutput(context.Background(), containerID)
	if err != nil {
		return nil, err
	}

	run := &containerRun{
		Stdout:   stdout,
		Stderr:   stderr,
		ExitCode: -1,
		TimedOut: true,
		Duration: time.Since(start),
	}
	if status != nil {
		run.ExitCode = status.StatusCode
	}
	return run, nil
}

// kill sends SIGKILL with no grace period. A container that is already gone
// counts as killed.
func (c *containerEngine) kill(containerID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	grace := 0
	err := c.cli.ContainerStop(ctx, containerID, container.StopOptions{Signal: "SIGKILL", Timeout: &grace})
	if client.IsErrNotFound(err) {
		return nil
	}
	return err
}

func (c *containerEngine) waitForExit(ctx context.Context, containerID string) (*container.WaitResponse, error) {
	statusCh, errCh := c.cli.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
	select {
	case status := <-statusCh:
		if status.Error != nil {
			return nil, fmt.Errorf("container error: %s", status.Error.Message)
		}
		return &status, nil
	case err := <-errCh:
		return nil, fmt.Errorf("wait for container: %w", err)
	case <-ctx.Done():
		return nil, fmt.Errorf("wait for container: %w", ctx.Err())
	}
}
