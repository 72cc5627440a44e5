package substrate

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"github.com/pipelinedk/pdk/pkg/pdkerrors"
)

// HostBackend runs steps as native subprocesses directly on the developer's
// machine. The "sandbox" is simply the chosen workspace directory; the
// environment is merged on top of the parent process environment.
type HostBackend struct{}

// NewHostBackend constructs a HostBackend. There is no engine to connect to.
func NewHostBackend() *HostBackend { return &HostBackend{} }

// Available is always true: the host backend has no external dependency.
func (h *HostBackend) Available(ctx context.Context) bool { return true }

// Start ensures the workspace directory exists and returns it as the handle.
func (h *HostBackend) Start(ctx context.Context, spec StartSpec) (string, error) {
	if err := os.MkdirAll(spec.WorkspaceHost, 0o755); err != nil {
		return "", pdkerrors.New(pdkerrors.ContainerCreateFailed).
			Messagef("preparing host workspace %s", spec.WorkspaceHost).Cause(err).Build()
	}
	return spec.WorkspaceHost, nil
}

// platformShell returns the native shell invocation for this OS: `cmd /c`
// on Windows, `sh -c` on Unix-likes.
func platformShell() (name string, flag string) {
	if runtime.GOOS == "windows" {
		return "cmd", "/c"
	}
	return "sh", "-c"
}

// Exec runs spec.Command through the platform's native shell, capturing
// stdout/stderr separately while streaming both live to spec.Stream.
func (h *HostBackend) Exec(ctx context.Context, handle string, spec ExecSpec) (ExecResult, error) {
	start := time.Now()
	sink := spec.Stream
	if sink == nil {
		sink = NopSink
	}

	shellName, shellFlag := platformShell()
	cmd := exec.CommandContext(ctx, shellName, shellFlag, spec.Command)

	workingDir := spec.WorkingDir
	if workingDir == "" {
		workingDir = handle
	} else if !filepath.IsAbs(workingDir) {
		workingDir = filepath.Join(handle, workingDir)
	}
	cmd.Dir = workingDir

	env := os.Environ()
	for k, v := range spec.Env {
		env = append(env, k+"="+v)
	}
	cmd.Env = env

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = io.MultiWriter(&stdoutBuf, sinkWriter{sink: sink, stderr: false})
	cmd.Stderr = io.MultiWriter(&stderrBuf, sinkWriter{sink: sink, stderr: true})

	runErr := cmd.Run()
	duration := time.Since(start)

	if ctx.Err() != nil {
		return ExecResult{ExitCode: -1, Stdout: stdoutBuf.String(), Stderr: stderrBuf.String(), Duration: duration},
			pdkerrors.New(pdkerrors.Cancelled).
				Message("step execution was cancelled").Build()
	}

	var exitErr *exec.ExitError
	if runErr != nil && !errors.As(runErr, &exitErr) {
		return ExecResult{}, pdkerrors.New(pdkerrors.ExecFailed).
			Messagef("spawning command in %s", handle).Cause(runErr).Build()
	}

	return ExecResult{
		ExitCode: cmd.ProcessState.ExitCode(),
		Stdout:   stdoutBuf.String(),
		Stderr:   stderrBuf.String(),
		Duration: duration,
	}, nil
}

// CopyIn copies a file or directory tree from hostPath into guestPath,
// which for the host backend is just another path on the same filesystem.
func (h *HostBackend) CopyIn(ctx context.Context, handle, hostPath, guestPath string) error {
	return copyTree(hostPath, guestPath)
}

// CopyOut mirrors CopyIn: both paths already live on the host filesystem.
func (h *HostBackend) CopyOut(ctx context.Context, handle, guestPath, hostPath string) error {
	return copyTree(guestPath, hostPath)
}

func copyTree(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return copyFile(src, dst, info.Mode())
	}
	return filepath.Walk(src, func(p string, fi os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, relErr := filepath.Rel(src, p)
		if relErr != nil {
			return relErr
		}
		target := filepath.Join(dst, rel)
		if fi.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(p, target, fi.Mode())
	})
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

// Stop is a no-op for the host backend: there is no sandbox process to tear
// down, only the workspace directory, which the job orchestrator decides
// whether to retain.
func (h *HostBackend) Stop(ctx context.Context, handle string, deadline time.Duration) error {
	return nil
}
