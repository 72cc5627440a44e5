package substrate

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	units "github.com/docker/go-units"

	"github.com/pipelinedk/pdk/pkg/pdkerrors"
)

// DockerBackend is the container-based Backend, grounded on the Docker
// Engine API client the same way internal Docker helper packages across the
// pack use it: a thin wrapper around *client.Client.
type DockerBackend struct {
	cli *client.Client
}

// NewDockerBackend connects to the local Docker engine via the standard
// environment-derived configuration (DOCKER_HOST, DOCKER_CERT_PATH, …).
func NewDockerBackend() (*DockerBackend, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, pdkerrors.New(pdkerrors.EngineUnavailable).
			Message("failed to construct docker client").
			Suggest("ensure Docker is installed and DOCKER_HOST is reachable").
			Cause(err).Build()
	}
	return &DockerBackend{cli: cli}, nil
}

// Available pings the engine with a short timeout.
func (d *DockerBackend) Available(ctx context.Context) bool {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_, err := d.cli.Ping(pingCtx)
	return err == nil
}

// Start creates and starts a long-lived sandbox container mounting
// spec.WorkspaceHost at spec.WorkspaceGuest, pulling the image on demand.
func (d *DockerBackend) Start(ctx context.Context, spec StartSpec) (string, error) {
	if !d.Available(ctx) {
		return "", pdkerrors.New(pdkerrors.EngineUnavailable).
			Message("docker engine is not reachable").
			Suggest("start Docker Desktop or the docker daemon, or switch runner.backend to host").
			Build()
	}

	env := make([]string, 0, len(spec.Env))
	for k, v := range spec.Env {
		env = append(env, k+"="+v)
	}

	cfg := &container.Config{
		Image:      spec.Image,
		Env:        env,
		WorkingDir: spec.WorkspaceGuest,
		Cmd:        []string{"sleep", "infinity"},
		Tty:        false,
	}

	resources := container.Resources{}
	if spec.MemoryLimit != "" {
		bytesLimit, err := units.RAMInBytes(spec.MemoryLimit)
		if err != nil {
			return "", pdkerrors.New(pdkerrors.ConfigurationInvalid).
				Messagef("invalid memory limit %q", spec.MemoryLimit).Cause(err).Build()
		}
		resources.Memory = bytesLimit
	}
	if spec.CPULimit > 0 {
		resources.NanoCPUs = int64(spec.CPULimit * 1e9)
	}

	hostCfg := &container.HostConfig{
		Binds:       []string{spec.WorkspaceHost + ":" + spec.WorkspaceGuest},
		Resources:   resources,
		NetworkMode: container.NetworkMode(spec.NetworkMode),
	}

	id, err := d.createContainer(ctx, cfg, hostCfg, spec.Name)
	if err != nil {
		if client.IsErrNotFound(err) {
			if pullErr := d.pullImage(ctx, spec.Image); pullErr != nil {
				return "", pullErr
			}
			id, err = d.createContainer(ctx, cfg, hostCfg, spec.Name)
		}
		if err != nil {
			return "", pdkerrors.New(pdkerrors.ContainerCreateFailed).
				Messagef("creating container for image %q", spec.Image).Cause(err).Build()
		}
	}

	if err := d.cli.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return "", pdkerrors.New(pdkerrors.ContainerCreateFailed).
			Messagef("starting container %s", id).Cause(err).Build()
	}
	return id, nil
}

func (d *DockerBackend) createContainer(ctx context.Context, cfg *container.Config, hostCfg *container.HostConfig, name string) (string, error) {
	resp, err := d.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, name)
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (d *DockerBackend) pullImage(ctx context.Context, image string) error {
	reader, err := d.cli.ImagePull(ctx, image, types.ImagePullOptions{})
	if err != nil {
		return pdkerrors.New(pdkerrors.ImagePullFailed).
			Messagef("pulling image %q", image).Cause(err).Build()
	}
	defer reader.Close()
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return pdkerrors.New(pdkerrors.ImagePullFailed).
			Messagef("reading pull stream for %q", image).Cause(err).Build()
	}
	return nil
}

// Exec runs spec.Command via `sh -c` inside the container, capturing stdout
// and stderr separately while also streaming both live to spec.Stream.
func (d *DockerBackend) Exec(ctx context.Context, handle string, spec ExecSpec) (ExecResult, error) {
	start := time.Now()
	sink := spec.Stream
	if sink == nil {
		sink = NopSink
	}

	env := make([]string, 0, len(spec.Env))
	for k, v := range spec.Env {
		env = append(env, k+"="+v)
	}

	execResp, err := d.cli.ContainerExecCreate(ctx, handle, types.ExecConfig{
		AttachStdout: true,
		AttachStderr: true,
		Cmd:          []string{"sh", "-c", spec.Command},
		Env:          env,
		WorkingDir:   spec.WorkingDir,
	})
	if err != nil {
		return ExecResult{}, pdkerrors.New(pdkerrors.ExecFailed).
			Messagef("creating exec in container %s", handle).Cause(err).Build()
	}

	attach, err := d.cli.ContainerExecAttach(ctx, execResp.ID, types.ExecStartCheck{})
	if err != nil {
		return ExecResult{}, pdkerrors.New(pdkerrors.ExecFailed).
			Messagef("attaching exec in container %s", handle).Cause(err).Build()
	}
	defer attach.Close()

	var stdoutBuf, stderrBuf bytes.Buffer
	stdoutW := io.MultiWriter(&stdoutBuf, sinkWriter{sink: sink, stderr: false})
	stderrW := io.MultiWriter(&stderrBuf, sinkWriter{sink: sink, stderr: true})

	if _, err := stdcopy.StdCopy(stdoutW, stderrW, attach.Reader); err != nil && err != io.EOF {
		return ExecResult{}, pdkerrors.New(pdkerrors.ExecFailed).
			Messagef("streaming exec output from container %s", handle).Cause(err).Build()
	}

	inspect, err := d.cli.ContainerExecInspect(ctx, execResp.ID)
	if err != nil {
		return ExecResult{}, pdkerrors.New(pdkerrors.ExecFailed).
			Messagef("inspecting exec in container %s", handle).Cause(err).Build()
	}

	return ExecResult{
		ExitCode: inspect.ExitCode,
		Stdout:   stdoutBuf.String(),
		Stderr:   stderrBuf.String(),
		Duration: time.Since(start),
	}, nil
}

type sinkWriter struct {
	sink   StreamSink
	stderr bool
}

func (w sinkWriter) Write(p []byte) (int, error) {
	if w.stderr {
		w.sink.WriteStderr(p)
	} else {
		w.sink.WriteStdout(p)
	}
	return len(p), nil
}

// CopyIn tars hostPath (a file or directory) and streams it into the
// container at guestPath, preserving structure and mode.
func (d *DockerBackend) CopyIn(ctx context.Context, handle, hostPath, guestPath string) error {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	err := filepath.Walk(hostPath, func(p string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, relErr := filepath.Rel(hostPath, p)
		if relErr != nil {
			return relErr
		}
		hdr, hdrErr := tar.FileInfoHeader(info, "")
		if hdrErr != nil {
			return hdrErr
		}
		hdr.Name = filepath.ToSlash(rel)
		if info.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		f, openErr := os.Open(p)
		if openErr != nil {
			return openErr
		}
		defer f.Close()
		_, err := io.Copy(tw, f)
		return err
	})
	if err != nil {
		return err
	}
	if err := tw.Close(); err != nil {
		return err
	}

	return d.cli.CopyToContainer(ctx, handle, guestPath, &buf, types.CopyToContainerOptions{
		AllowOverwriteDirWithFile: true,
	})
}

// CopyOut streams guestPath out of the container as a tar archive and
// extracts it under hostPath.
func (d *DockerBackend) CopyOut(ctx context.Context, handle, guestPath, hostPath string) error {
	reader, _, err := d.cli.CopyFromContainer(ctx, handle, guestPath)
	if err != nil {
		return err
	}
	defer reader.Close()

	tr := tar.NewReader(reader)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		target := filepath.Join(hostPath, strings.TrimPrefix(hdr.Name, filepath.Base(guestPath)+"/"))
		if hdr.Typeflag == tar.TypeDir {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode))
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, tr); err != nil {
			out.Close()
			return err
		}
		out.Close()
	}
}

// Stop gracefully stops then force-removes the container. Idempotent: a
// "no such container" error from either call is treated as success.
func (d *DockerBackend) Stop(ctx context.Context, handle string, deadline time.Duration) error {
	seconds := int(deadline.Seconds())
	stopErr := d.cli.ContainerStop(ctx, handle, container.StopOptions{Timeout: &seconds})
	if stopErr != nil && !client.IsErrNotFound(stopErr) {
		return fmt.Errorf("stopping container %s: %w", handle, stopErr)
	}

	removeErr := d.cli.ContainerRemove(ctx, handle, container.RemoveOptions{Force: true, RemoveVolumes: true})
	if removeErr != nil && !client.IsErrNotFound(removeErr) {
		return fmt.Errorf("removing container %s: %w", handle, removeErr)
	}
	return nil
}
