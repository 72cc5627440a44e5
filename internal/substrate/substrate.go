// Package substrate implements two interchangeable execution providers:
// a container backend (create/exec/cleanup via the local Docker engine)
// and a host backend (native subprocess spawn).
// Both satisfy the same Backend interface so the orchestrator can select
// either one without caring which is underneath.
package substrate

import (
	"context"
	"time"
)

// StreamSink receives stdout/stderr bytes live, as they are produced, in
// addition to the buffered copy returned in ExecResult.
type StreamSink interface {
	WriteStdout(p []byte)
	WriteStderr(p []byte)
}

// nopSink discards streamed output; used when a caller has no live sink.
type nopSink struct{}

func (nopSink) WriteStdout([]byte) {}
func (nopSink) WriteStderr([]byte) {}

// NopSink is the zero-value StreamSink.
var NopSink StreamSink = nopSink{}

// StartSpec describes a sandbox to bring up.
type StartSpec struct {
	Image          string
	Name           string
	WorkspaceHost  string
	WorkspaceGuest string
	Env            map[string]string
	MemoryLimit    string // e.g. "512m"; parsed via docker/go-units
	CPULimit       float64
	NetworkMode    string
}

// ExecSpec describes one command invocation inside a running sandbox.
type ExecSpec struct {
	Command    string
	WorkingDir string
	Env        map[string]string
	Stream     StreamSink
}

// ExecResult is the outcome of one Exec call.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Backend is the shape both the container and host providers implement.
type Backend interface {
	// Available reports whether the engine backing this provider is
	// reachable, used by the orchestrator to decide on fallback.
	Available(ctx context.Context) bool

	// Start brings up a sandbox and returns an opaque handle (container id,
	// or host workspace path) used by subsequent calls.
	Start(ctx context.Context, spec StartSpec) (handle string, err error)

	// Exec runs a command inside the sandbox identified by handle.
	Exec(ctx context.Context, handle string, spec ExecSpec) (ExecResult, error)

	// CopyIn streams a tar archive from hostPath into the sandbox at
	// guestPath, preserving directory structure and file mode.
	CopyIn(ctx context.Context, handle, hostPath, guestPath string) error

	// CopyOut streams a tar archive from guestPath in the sandbox to
	// hostPath on the host filesystem.
	CopyOut(ctx context.Context, handle, guestPath, hostPath string) error

	// Stop gracefully stops the sandbox, forcing removal if it does not
	// exit within deadline. Idempotent.
	Stop(ctx context.Context, handle string, deadline time.Duration) error
}

