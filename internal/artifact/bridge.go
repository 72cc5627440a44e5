package artifact

import (
	"context"
	"os"

	"github.com/spf13/afero"

	"github.com/pipelinedk/pdk/internal/substrate"
	"github.com/pipelinedk/pdk/pkg/pdkmodel"
)

// StepBridge adapts a Store plus the active sandbox Backend to the narrow
// UploadStep/DownloadStep contract internal/executor needs, so the
// executors never have to know about afero, staging paths, or how a
// container's filesystem gets bridged to the host's.
//
// Backend resolves the concrete substrate.Backend for a step's ExecContext.
// A single pipeline run can mix jobs across the Docker and host backends
// (fallback after Docker becomes unavailable mid-run), so the bridge looks the right one up per call instead of
// pinning one at construction time.
type StepBridge struct {
	Store   *Store
	Backend func(pdkmodel.Backend) substrate.Backend
}

// UploadStep resolves def against the step's sandbox (copying the container
// workspace out to a host temp directory first when the backend is
// container-based) and stages matched files.
func (b *StepBridge) UploadStep(ctx context.Context, ec pdkmodel.ExecContext, def pdkmodel.ArtifactDefinition) (int, error) {
	sourceFS, sourceRoot, cleanup, err := b.materializeSandboxView(ctx, ec)
	if err != nil {
		return 0, err
	}
	defer cleanup()

	meta, err := b.Store.Upload(ctx, ec.Artifact, sourceFS, sourceRoot, def)
	if err != nil {
		return 0, err
	}
	return meta.FileCount, nil
}

// DownloadStep materializes a staged artifact into the step's workspace,
// copying into the container when the backend is container-based.
func (b *StepBridge) DownloadStep(ctx context.Context, ec pdkmodel.ExecContext, def pdkmodel.ArtifactDefinition) (int, error) {
	if ec.Backend == pdkmodel.BackendHost {
		meta, err := b.Store.Download(ctx, ec.Artifact, afero.NewOsFs(), ec.WorkspaceHost, def)
		if err != nil {
			return 0, err
		}
		return meta.FileCount, nil
	}

	tmp, err := os.MkdirTemp("", "pdk-download-*")
	if err != nil {
		return 0, err
	}
	defer os.RemoveAll(tmp)

	meta, err := b.Store.Download(ctx, ec.Artifact, afero.NewOsFs(), tmp, def)
	if err != nil {
		return 0, err
	}

	target := def.TargetPath
	if target == "" {
		target = "artifacts/" + def.Name
	}
	if err := b.Backend(ec.Backend).CopyIn(ctx, ec.SandboxHandle, tmp+"/"+target, ec.WorkspaceGuest+"/"+target); err != nil {
		return 0, err
	}
	return meta.FileCount, nil
}

// materializeSandboxView returns an afero filesystem rooted such that glob
// patterns resolve against the step's actual sandbox contents. For the host
// backend this is simply the OS filesystem at the workspace path; for a
// container backend the workspace is copied out to a host temp directory
// first, since glob resolution runs on the host side of the bridge.
func (b *StepBridge) materializeSandboxView(ctx context.Context, ec pdkmodel.ExecContext) (fs afero.Fs, root string, cleanup func(), err error) {
	if ec.Backend == pdkmodel.BackendHost {
		return afero.NewOsFs(), ec.WorkspaceHost, func() {}, nil
	}

	tmp, err := os.MkdirTemp("", "pdk-upload-*")
	if err != nil {
		return nil, "", nil, err
	}
	if err := b.Backend(ec.Backend).CopyOut(ctx, ec.SandboxHandle, ec.WorkspaceGuest, tmp); err != nil {
		os.RemoveAll(tmp)
		return nil, "", nil, err
	}
	return afero.NewOsFs(), tmp, func() { os.RemoveAll(tmp) }, nil
}
