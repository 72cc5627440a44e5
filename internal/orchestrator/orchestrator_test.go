package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipelinedk/pdk/internal/substrate"
	"github.com/pipelinedk/pdk/internal/variables"
	"github.com/pipelinedk/pdk/pkg/pdkmodel"
)

type scriptedBackend struct {
	available bool
	exitCodes map[string]int // step script -> exit code, default 0
	lastEnv   map[string]string
}

func (b *scriptedBackend) Available(ctx context.Context) bool { return b.available }
func (b *scriptedBackend) Start(ctx context.Context, spec substrate.StartSpec) (string, error) {
	return "handle-" + spec.Name, nil
}
func (b *scriptedBackend) Exec(ctx context.Context, handle string, spec substrate.ExecSpec) (substrate.ExecResult, error) {
	b.lastEnv = spec.Env
	code := b.exitCodes[spec.Command]
	return substrate.ExecResult{ExitCode: code, Stdout: "ran: " + spec.Command}, nil
}
func (b *scriptedBackend) CopyIn(ctx context.Context, handle, hostPath, guestPath string) error  { return nil }
func (b *scriptedBackend) CopyOut(ctx context.Context, handle, guestPath, hostPath string) error { return nil }
func (b *scriptedBackend) Stop(ctx context.Context, handle string, deadline time.Duration) error { return nil }

type fakeFactory struct {
	docker    substrate.Backend
	dockerErr error
	host      substrate.Backend
}

func (f *fakeFactory) Docker() (substrate.Backend, error) { return f.docker, f.dockerErr }
func (f *fakeFactory) Host() substrate.Backend            { return f.host }

type noopArtifactStore struct{}

func (noopArtifactStore) UploadStep(ctx context.Context, ec pdkmodel.ExecContext, def pdkmodel.ArtifactDefinition) (int, error) {
	return 0, nil
}
func (noopArtifactStore) DownloadStep(ctx context.Context, ec pdkmodel.ExecContext, def pdkmodel.ArtifactDefinition) (int, error) {
	return 0, nil
}

func newTestEngine(t *testing.T, backend substrate.Backend, cfg pdkmodel.Configuration) *Engine {
	t.Helper()
	resolver := variables.NewResolver(nil, map[string]string{}, nil, variables.Builtins{}, variables.NewMasker(false))
	factory := &fakeFactory{host: backend, docker: backend}
	return NewEngine(cfg, factory, noopArtifactStore{}, resolver, NopLogger{}, t.TempDir())
}

func TestRunJob_AllStepsSucceed(t *testing.T) {
	backend := &scriptedBackend{available: true, exitCodes: map[string]int{}}
	engine := newTestEngine(t, backend, pdkmodel.Configuration{Runner: pdkmodel.RunnerConfig{Backend: pdkmodel.RunnerHost}})

	job := pdkmodel.Job{
		Name: "build",
		Steps: []pdkmodel.Step{
			{Name: "one", Kind: pdkmodel.KindScript, Script: "echo one"},
			{Name: "two", Kind: pdkmodel.KindScript, Script: "echo two"},
		},
	}
	res := engine.RunJob(context.Background(), "run-1", pdkmodel.Pipeline{}, job)
	require.True(t, res.Success)
	assert.Len(t, res.Steps, 2)
}

func TestRunJob_FailureStopsJobWithoutContinueOnError(t *testing.T) {
	backend := &scriptedBackend{available: true, exitCodes: map[string]int{"bash -c 'exit 1'": 1}}
	engine := newTestEngine(t, backend, pdkmodel.Configuration{Runner: pdkmodel.RunnerConfig{Backend: pdkmodel.RunnerHost}})

	job := pdkmodel.Job{
		Name: "build",
		Steps: []pdkmodel.Step{
			{Name: "fails", Kind: pdkmodel.KindScript, Script: "exit 1"},
			{Name: "never-runs", Kind: pdkmodel.KindScript, Script: "echo after"},
		},
	}
	res := engine.RunJob(context.Background(), "run-1", pdkmodel.Pipeline{}, job)
	assert.False(t, res.Success)
	assert.Len(t, res.Steps, 1)
}

func TestRunJob_ContinueOnErrorKeepsGoing(t *testing.T) {
	backend := &scriptedBackend{available: true, exitCodes: map[string]int{"bash -c 'exit 1'": 1}}
	engine := newTestEngine(t, backend, pdkmodel.Configuration{Runner: pdkmodel.RunnerConfig{Backend: pdkmodel.RunnerHost}})

	cont := true
	job := pdkmodel.Job{
		Name: "build",
		Steps: []pdkmodel.Step{
			{Name: "fails", Kind: pdkmodel.KindScript, Script: "exit 1", ContinueOnError: &cont},
			{Name: "still-runs", Kind: pdkmodel.KindScript, Script: "echo after"},
		},
	}
	res := engine.RunJob(context.Background(), "run-1", pdkmodel.Pipeline{}, job)
	require.True(t, res.Success)
	assert.Len(t, res.Steps, 2)
}

func TestRunJob_BaselineEnvMergesPipelineJobAndBuiltins(t *testing.T) {
	t.Setenv("PDK_TEST_PASSTHROUGH", "from-process")
	t.Setenv("PDK_TEST_API_TOKEN", "shh")

	backend := &scriptedBackend{available: true, exitCodes: map[string]int{}}
	factory := &fakeFactory{host: backend, docker: backend}
	resolver := variables.NewResolver(nil, map[string]string{}, nil, variables.Builtins{
		PDKVersion: "1.2.3",
		Workspace:  "/ws",
		Runner:     "host",
	}, variables.NewMasker(false))
	engine := NewEngine(pdkmodel.Configuration{Runner: pdkmodel.RunnerConfig{Backend: pdkmodel.RunnerHost}}, factory, noopArtifactStore{}, resolver, NopLogger{}, t.TempDir())

	pipeline := pdkmodel.Pipeline{
		Name: "ci",
		Env:  map[string]string{"SHARED": "pipeline", "FROM_PIPELINE": "yes"},
	}
	job := pdkmodel.Job{
		Name: "build",
		Env:  map[string]string{"SHARED": "job"},
		Steps: []pdkmodel.Step{
			{Name: "one", Kind: pdkmodel.KindScript, Script: "echo one"},
		},
	}

	res := engine.RunJob(context.Background(), "run-1", pipeline, job)
	require.True(t, res.Success)

	env := backend.lastEnv
	assert.Equal(t, "job", env["SHARED"], "job env overlays pipeline env")
	assert.Equal(t, "yes", env["FROM_PIPELINE"])
	assert.Equal(t, "from-process", env["PDK_TEST_PASSTHROUGH"], "non-sensitive process env passes through")
	assert.NotContains(t, env, "PDK_TEST_API_TOKEN", "sensitive-named process env is stripped")
	assert.Equal(t, "1.2.3", env["PDK_VERSION"])
	assert.Equal(t, "/ws", env["PDK_WORKSPACE"])
	assert.Equal(t, "host", env["PDK_RUNNER"])
	assert.Equal(t, "build", env["PDK_JOB"])
	assert.Equal(t, "one", env["PDK_STEP"])
}

func TestSelectBackend_FallsBackToHostWhenDockerUnavailable(t *testing.T) {
	backend := &scriptedBackend{available: false}
	host := &scriptedBackend{available: true}
	resolver := variables.NewResolver(nil, map[string]string{}, nil, variables.Builtins{}, variables.NewMasker(false))
	factory := &fakeFactory{docker: backend, host: host}
	engine := NewEngine(pdkmodel.Configuration{Runner: pdkmodel.RunnerConfig{Backend: pdkmodel.RunnerAuto, Fallback: pdkmodel.FallbackHost}}, factory, noopArtifactStore{}, resolver, NopLogger{}, t.TempDir())

	_, kind, err := engine.selectBackend(context.Background(), pdkmodel.Job{Name: "j"})
	require.NoError(t, err)
	assert.Equal(t, pdkmodel.BackendHost, kind)
}

func TestSelectBackend_NoFallbackErrorsWhenDockerUnavailable(t *testing.T) {
	backend := &scriptedBackend{available: false}
	resolver := variables.NewResolver(nil, map[string]string{}, nil, variables.Builtins{}, variables.NewMasker(false))
	factory := &fakeFactory{docker: backend, host: backend}
	engine := NewEngine(pdkmodel.Configuration{Runner: pdkmodel.RunnerConfig{Backend: pdkmodel.RunnerDocker, Fallback: pdkmodel.FallbackNone}}, factory, noopArtifactStore{}, resolver, NopLogger{}, t.TempDir())

	_, _, err := engine.selectBackend(context.Background(), pdkmodel.Job{Name: "j"})
	assert.Error(t, err)
}

func TestRunPipeline_SkipsJobAfterFailedDependency(t *testing.T) {
	backend := &scriptedBackend{available: true, exitCodes: map[string]int{"bash -c 'exit 1'": 1}}
	engine := newTestEngine(t, backend, pdkmodel.Configuration{
		Runner:      pdkmodel.RunnerConfig{Backend: pdkmodel.RunnerHost},
		Performance: pdkmodel.PerformanceConfig{ParallelSteps: true, MaxParallelism: 2},
	})

	pipeline := pdkmodel.Pipeline{
		Name: "ci",
		Jobs: []pdkmodel.Job{
			{Name: "build", Steps: []pdkmodel.Step{{Name: "fail", Kind: pdkmodel.KindScript, Script: "exit 1"}}},
			{Name: "deploy", Needs: []string{"build"}, Steps: []pdkmodel.Step{{Name: "ship", Kind: pdkmodel.KindScript, Script: "echo ship"}}},
		},
	}
	res, err := engine.RunPipeline(context.Background(), "run-1", pipeline)
	require.NoError(t, err)
	assert.False(t, res.Success)
	require.Len(t, res.Jobs, 2)
	assert.False(t, res.Jobs[0].Success)
	assert.False(t, res.Jobs[1].Success)
	assert.Contains(t, res.Jobs[1].Error, "skipped")
}

func TestRunPipeline_IndependentJobsAllSucceed(t *testing.T) {
	backend := &scriptedBackend{available: true, exitCodes: map[string]int{}}
	engine := newTestEngine(t, backend, pdkmodel.Configuration{
		Runner:      pdkmodel.RunnerConfig{Backend: pdkmodel.RunnerHost},
		Performance: pdkmodel.PerformanceConfig{ParallelSteps: true, MaxParallelism: 4},
	})

	pipeline := pdkmodel.Pipeline{
		Name: "ci",
		Jobs: []pdkmodel.Job{
			{Name: "lint", Steps: []pdkmodel.Step{{Name: "lint", Kind: pdkmodel.KindScript, Script: "echo lint"}}},
			{Name: "test", Steps: []pdkmodel.Step{{Name: "test", Kind: pdkmodel.KindScript, Script: "echo test"}}},
		},
	}
	res, err := engine.RunPipeline(context.Background(), "run-1", pipeline)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Len(t, res.Jobs, 2)
}
