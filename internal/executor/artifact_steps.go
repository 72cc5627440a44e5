package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/pipelinedk/pdk/pkg/pdkmodel"
)

type uploadArtifactExecutor struct {
	deps  Deps
	store ArtifactStore
}

func (e *uploadArtifactExecutor) Kind() pdkmodel.StepKind { return pdkmodel.KindUploadArtifact }

func (e *uploadArtifactExecutor) Execute(ctx context.Context, step pdkmodel.Step, ec pdkmodel.ExecContext) pdkmodel.StepResult {
	start := time.Now()
	if step.Artifact == nil {
		return failResult(step.Name, start, "upload-artifact step requires an artifact definition")
	}
	if step.Artifact.Operation != pdkmodel.OperationUpload {
		return failResult(step.Name, start, fmt.Sprintf("step artifact operation %q does not match upload-artifact executor", step.Artifact.Operation))
	}

	count, err := e.store.UploadStep(ctx, ec, *step.Artifact)
	if err != nil {
		return failResult(step.Name, start, err.Error())
	}
	return pdkmodel.StepResult{
		Name:      step.Name,
		Success:   true,
		ExitCode:  0,
		Stdout:    fmt.Sprintf("staged %d file(s) for artifact %q", count, step.Artifact.Name),
		StartedAt: start,
		EndedAt:   time.Now(),
	}
}

type downloadArtifactExecutor struct {
	deps  Deps
	store ArtifactStore
}

func (e *downloadArtifactExecutor) Kind() pdkmodel.StepKind { return pdkmodel.KindDownloadArtifact }

func (e *downloadArtifactExecutor) Execute(ctx context.Context, step pdkmodel.Step, ec pdkmodel.ExecContext) pdkmodel.StepResult {
	start := time.Now()
	if step.Artifact == nil {
		return failResult(step.Name, start, "download-artifact step requires an artifact definition")
	}
	if step.Artifact.Operation != pdkmodel.OperationDownload {
		return failResult(step.Name, start, fmt.Sprintf("step artifact operation %q does not match download-artifact executor", step.Artifact.Operation))
	}

	count, err := e.store.DownloadStep(ctx, ec, *step.Artifact)
	if err != nil {
		return failResult(step.Name, start, err.Error())
	}
	return pdkmodel.StepResult{
		Name:      step.Name,
		Success:   true,
		ExitCode:  0,
		Stdout:    fmt.Sprintf("materialized %d file(s) from artifact %q", count, step.Artifact.Name),
		StartedAt: start,
		EndedAt:   time.Now(),
	}
}
