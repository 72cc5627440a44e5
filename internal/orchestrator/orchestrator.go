// Package orchestrator sequences job and step execution: for
// each job it resolves a runner image, selects a backend with fallback,
// brings up a sandbox, runs steps in order honoring continue-on-error, and
// tears the sandbox down on every exit path.
package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pipelinedk/pdk/internal/executor"
	"github.com/pipelinedk/pdk/internal/substrate"
	"github.com/pipelinedk/pdk/internal/variables"
	"github.com/pipelinedk/pdk/pkg/pdkerrors"
	"github.com/pipelinedk/pdk/pkg/pdkmodel"
)

// sensitiveEnvName matches process-environment variable names that are never
// copied into a job's baseline environment, the same masking heuristic
// pdklog uses for log fields applied here to names instead of values.
var sensitiveEnvName = regexp.MustCompile(`(?i)password|token|secret|key|credential`)

// SandboxDeadline bounds how long Stop waits for a sandbox to exit gracefully
// before forcing removal.
const SandboxDeadline = 10 * time.Second

// BackendFactory constructs the two interchangeable substrate.Backend
// implementations on demand, so Engine never imports internal/substrate's
// concrete constructors directly and tests can substitute fakes.
type BackendFactory interface {
	Docker() (substrate.Backend, error)
	Host() substrate.Backend
}

// dockerBackendFactory is the production BackendFactory, wrapping
// substrate.NewDockerBackend/NewHostBackend, optionally serializing
// concurrent execs per sandbox handle when container reuse is enabled.
type dockerBackendFactory struct {
	serialize bool
}

// NewBackendFactory builds the production BackendFactory. When
// containerReuse is true, the returned Docker backend serializes concurrent
// Exec calls against one container.
func NewBackendFactory(containerReuse bool) BackendFactory {
	return &dockerBackendFactory{serialize: containerReuse}
}

func (f *dockerBackendFactory) Docker() (substrate.Backend, error) {
	backend, err := substrate.NewDockerBackend()
	if err != nil {
		return nil, err
	}
	if f.serialize {
		return substrate.NewSerializing(backend), nil
	}
	return backend, nil
}

func (f *dockerBackendFactory) Host() substrate.Backend {
	return substrate.NewHostBackend()
}

// Engine runs Jobs against a Configuration, wiring together the substrate,
// executor registry, and variable resolver for each one.
type Engine struct {
	Config    pdkmodel.Configuration
	Backends  BackendFactory
	Store     executor.ArtifactStore
	Resolver  *variables.Resolver
	Logger    Logger
	workspace string // host-side root all job workspaces nest under

	// KeepContainers disables the deferred sandbox teardown in RunJob, for
	// --keep-containers debugging runs.
	KeepContainers bool
}

// Logger is the narrow slice of structured logging Engine needs; satisfied
// by internal/pdklog's logger, and by a no-op in tests.
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

// NopLogger discards every record.
type NopLogger struct{}

func (NopLogger) Info(string, map[string]interface{})  {}
func (NopLogger) Warn(string, map[string]interface{})  {}
func (NopLogger) Error(string, map[string]interface{}) {}

// NewEngine builds an Engine. workspace is the host directory job sandboxes
// are created under (one subdirectory per run/job).
func NewEngine(cfg pdkmodel.Configuration, backends BackendFactory, store executor.ArtifactStore, resolver *variables.Resolver, logger Logger, workspace string) *Engine {
	if logger == nil {
		logger = NopLogger{}
	}
	return &Engine{Config: cfg, Backends: backends, Store: store, Resolver: resolver, Logger: logger, workspace: workspace}
}

// baselineEnv builds a job's starting environment: the process environment
// with sensitive-looking names stripped, overlayed with pipeline.Env,
// overlayed with job.Env, plus the built-in PDK_* variables as literal
// entries so a step can read them via native shell syntax ($PDK_JOB) and
// not just ${PDK_JOB} expansion. PDK_STEP is set per step, not here.
func (e *Engine) baselineEnv(pipeline pdkmodel.Pipeline, job pdkmodel.Job) map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		idx := strings.IndexByte(kv, '=')
		if idx < 0 {
			continue
		}
		name := kv[:idx]
		if sensitiveEnvName.MatchString(name) {
			continue
		}
		env[name] = kv[idx+1:]
	}
	for k, v := range pipeline.Env {
		env[k] = v
	}
	for k, v := range job.Env {
		env[k] = v
	}

	builtins := e.Resolver.Builtins()
	env["PDK_VERSION"] = builtins.PDKVersion
	env["PDK_WORKSPACE"] = builtins.Workspace
	env["PDK_RUNNER"] = builtins.Runner
	env["PDK_JOB"] = job.Name
	env["PDK_STEP"] = ""
	return env
}

// cloneEnv returns a shallow copy of env so per-step overrides (PDK_STEP)
// never leak back into the job's shared baseline map.
func cloneEnv(env map[string]string) map[string]string {
	out := make(map[string]string, len(env))
	for k, v := range env {
		out[k] = v
	}
	return out
}

// selectBackend implements backend selection-with-fallback:
// every job uses the configuration default (there is no per-job override);
// when the chosen backend is Docker and unavailable, fall back to host if
// the configuration allows it.
func (e *Engine) selectBackend(ctx context.Context, job pdkmodel.Job) (substrate.Backend, pdkmodel.Backend, error) {
	want := e.Config.Runner.Backend
	if want == "" {
		want = pdkmodel.RunnerAuto
	}

	tryDocker := want == pdkmodel.RunnerDocker || want == pdkmodel.RunnerAuto
	if tryDocker {
		backend, err := e.Backends.Docker()
		if err == nil && backend.Available(ctx) {
			return backend, pdkmodel.BackendDocker, nil
		}
		if want == pdkmodel.RunnerDocker && e.Config.Runner.Fallback == pdkmodel.FallbackNone {
			if err == nil {
				err = pdkerrors.New(pdkerrors.EngineUnavailable).
					Message("docker backend requested but engine is unreachable").
					At("job", job.Name).Build()
			}
			return nil, "", err
		}
	}
	return e.Backends.Host(), pdkmodel.BackendHost, nil
}

// RunJob executes one Job start to finish: sandbox up, steps in sequence,
// sandbox torn down on every exit path (including panics propagated as
// ordinary Go panics, which the deferred Stop still runs ahead of). pipeline
// supplies the pipeline-level Env overlay that sits beneath job.Env in the
// job's baseline environment.
func (e *Engine) RunJob(ctx context.Context, runID string, pipeline pdkmodel.Pipeline, job pdkmodel.Job) pdkmodel.JobResult {
	start := time.Now()
	backend, backendKind, err := e.selectBackend(ctx, job)
	if err != nil {
		return pdkmodel.JobResult{JobName: job.Name, Success: false, StartedAt: start, EndedAt: time.Now(), Error: err.Error()}
	}

	image := substrate.ResolveImage(job.Runner)
	if override, ok := e.Config.Runner.ImageOverride[job.Runner]; ok {
		image = override
	}

	hostWorkspace := filepath.Join(e.workspace, runID, job.Name)
	guestWorkspace := "/workspace"
	if backendKind == pdkmodel.BackendHost {
		guestWorkspace = hostWorkspace
	}

	sandboxName := "pdk-" + runID + "-" + job.Name + "-" + uuid.NewString()[:8]
	handle, err := backend.Start(ctx, substrate.StartSpec{
		Image:          image,
		Name:           sandboxName,
		WorkspaceHost:  hostWorkspace,
		WorkspaceGuest: guestWorkspace,
		Env:            job.Env,
		MemoryLimit:    e.Config.Runner.MemoryLimit,
		CPULimit:       e.Config.Runner.CPULimit,
		NetworkMode:    e.Config.Runner.NetworkMode,
	})
	if err != nil {
		e.Logger.Error("job sandbox failed to start", map[string]interface{}{"job": job.Name, "error": err.Error()})
		return pdkmodel.JobResult{JobName: job.Name, Success: false, StartedAt: start, EndedAt: time.Now(), Error: err.Error()}
	}
	defer func() {
		if e.KeepContainers {
			e.Logger.Info("sandbox left running", map[string]interface{}{"job": job.Name, "handle": handle})
			return
		}
		stopCtx, cancel := context.WithTimeout(context.Background(), SandboxDeadline+5*time.Second)
		defer cancel()
		if stopErr := backend.Stop(stopCtx, handle, SandboxDeadline); stopErr != nil {
			e.Logger.Warn("sandbox cleanup failed", map[string]interface{}{"job": job.Name, "error": stopErr.Error()})
		}
	}()

	registry := executor.NewRegistry(executor.Deps{Backend: backend, Resolver: e.Resolver}, e.Store)

	baseEnv := e.baselineEnv(pipeline, job)

	ec := pdkmodel.ExecContext{
		Backend:        backendKind,
		SandboxHandle:  handle,
		WorkspaceHost:  hostWorkspace,
		WorkspaceGuest: guestWorkspace,
		Env:            baseEnv,
		Job:            pdkmodel.JobMetadata{Name: job.Name, ID: job.ID, Runner: job.Runner},
		Artifact:       pdkmodel.ArtifactContext{RunID: runID, JobName: job.Name},
	}

	results := make([]pdkmodel.StepResult, 0, len(job.Steps))
	effectiveContinue := make([]bool, 0, len(job.Steps))
	jobSucceeded := true

	for i, step := range job.Steps {
		stepCtx := ec
		stepCtx.Env = cloneEnv(baseEnv)
		stepCtx.Env["PDK_STEP"] = step.Name
		stepCtx.Artifact.StepName = step.Name
		stepCtx.Artifact.StepIndex = i

		e.Logger.Info("step started", map[string]interface{}{"job": job.Name, "step": step.Name, "kind": string(step.Kind)})
		res := registry.Dispatch(ctx, step, stepCtx)
		cont := step.EffectiveContinueOnError(job)

		results = append(results, res)
		effectiveContinue = append(effectiveContinue, cont)

		if !res.Success {
			e.Logger.Warn("step failed", map[string]interface{}{"job": job.Name, "step": step.Name, "exitCode": res.ExitCode, "continueOnError": cont})
			if !cont {
				jobSucceeded = false
				break
			}
		} else {
			e.Logger.Info("step completed", map[string]interface{}{"job": job.Name, "step": step.Name, "durationMs": res.Duration().Milliseconds()})
		}

		if ctx.Err() != nil {
			jobSucceeded = false
			break
		}
	}

	if jobSucceeded {
		jobSucceeded = pdkmodel.ComputeSuccess(job, results, effectiveContinue)
	}

	jobErr := ""
	if ctx.Err() != nil {
		jobErr = ctx.Err().Error()
	}

	return pdkmodel.JobResult{
		JobName:   job.Name,
		Success:   jobSucceeded,
		Steps:     results,
		StartedAt: start,
		EndedAt:   time.Now(),
		Error:     jobErr,
	}
}
