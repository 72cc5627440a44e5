// Package executor implements the step executor registry and one
// executor per step kind: a flat kind→executor
// map dispatched in O(1) by lowercased kind, shared across every kind by the
// universal obligations (env merge, working-directory resolution, variable
// expansion, output capture) implemented once in this file.
package executor

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/pipelinedk/pdk/internal/substrate"
	"github.com/pipelinedk/pdk/internal/variables"
	"github.com/pipelinedk/pdk/pkg/pdkmodel"
)

// Executor is the shared contract every step-kind implementation satisfies.
type Executor interface {
	Kind() pdkmodel.StepKind
	Execute(ctx context.Context, step pdkmodel.Step, ec pdkmodel.ExecContext) pdkmodel.StepResult
}

// Deps bundles the collaborators every executor needs: the sandbox backend
// to run commands in, and the variable resolver to expand script bodies,
// `with` values, env values, and working directories before execution.
type Deps struct {
	Backend  substrate.Backend
	Resolver *variables.Resolver
}

// Registry holds at most one executor per kind per backend: the
// orchestrator constructs one Registry per backend (container, host) and
// selects between them.
type Registry struct {
	executors map[pdkmodel.StepKind]Executor
}

// NewRegistry builds the full registry of step-kind executors for one
// backend.
func NewRegistry(deps Deps, store ArtifactStore) *Registry {
	r := &Registry{executors: make(map[pdkmodel.StepKind]Executor)}
	r.register(&checkoutExecutor{deps})
	r.register(&scriptExecutor{deps})
	r.register(&dotnetExecutor{deps})
	r.register(&npmExecutor{deps})
	r.register(&dockerExecutor{deps})
	r.register(&uploadArtifactExecutor{deps, store})
	r.register(&downloadArtifactExecutor{deps, store})
	return r
}

func (r *Registry) register(e Executor) {
	r.executors[normalizeKind(e.Kind())] = e
}

// Dispatch looks an executor up by the step's lowercased kind and runs it.
// An unknown kind yields a failed result with exit code -1 rather than an
// error: unknown-kind handling is itself part of the contract, not an
// exceptional condition.
func (r *Registry) Dispatch(ctx context.Context, step pdkmodel.Step, ec pdkmodel.ExecContext) pdkmodel.StepResult {
	start := time.Now()
	ex, ok := r.executors[normalizeKind(step.Kind)]
	if !ok {
		return pdkmodel.StepResult{
			Name:      step.Name,
			Success:   false,
			ExitCode:  pdkmodel.PreExecFailure,
			Stderr:    fmt.Sprintf("unknown step kind %q", step.Kind),
			StartedAt: start,
			EndedAt:   time.Now(),
		}
	}
	return ex.Execute(ctx, step, ec)
}

func normalizeKind(k pdkmodel.StepKind) pdkmodel.StepKind {
	return pdkmodel.StepKind(strings.ToLower(string(k)))
}

// ArtifactStore is the subset of internal/artifact.Store the artifact-step
// executors need; declared here (rather than imported directly) so this
// package does not need to know about afero or staging-path layout.
type ArtifactStore interface {
	UploadStep(ctx context.Context, ec pdkmodel.ExecContext, def pdkmodel.ArtifactDefinition) (fileCount int, err error)
	DownloadStep(ctx context.Context, ec pdkmodel.ExecContext, def pdkmodel.ArtifactDefinition) (fileCount int, err error)
}

// failResult builds a pre-execution failure result: exit code -1 and a
// diagnostic naming what went wrong, for the missing-required-input case.
func failResult(name string, start time.Time, reason string) pdkmodel.StepResult {
	return pdkmodel.StepResult{
		Name:      name,
		Success:   false,
		ExitCode:  pdkmodel.PreExecFailure,
		Stderr:    reason,
		StartedAt: start,
		EndedAt:   time.Now(),
	}
}

// mergeEnv applies the universal ordering: context env, then step env
// overriding it.
func mergeEnv(ec pdkmodel.ExecContext, step pdkmodel.Step) map[string]string {
	merged := make(map[string]string, len(ec.Env)+len(step.Env))
	for k, v := range ec.Env {
		merged[k] = v
	}
	for k, v := range step.Env {
		merged[k] = v
	}
	return merged
}

// resolveWorkingDir joins a relative step working directory onto the
// backend-appropriate workspace root; an absolute working directory is used
// as-is.
func resolveWorkingDir(step pdkmodel.Step, ec pdkmodel.ExecContext) string {
	root := ec.WorkspaceGuest
	if ec.Backend == pdkmodel.BackendHost {
		root = ec.WorkspaceHost
	}
	if step.WorkingDir == "" {
		return root
	}
	if filepath.IsAbs(step.WorkingDir) {
		return step.WorkingDir
	}
	return filepath.Join(root, step.WorkingDir)
}

// prepared holds the expanded surfaces every command-building executor
// needs: the resolved `with` inputs, merged+expanded environment, and
// resolved+expanded working directory. Building this once keeps the four
// expansion surfaces (script, with, env, working dir) in one place.
type prepared struct {
	With    map[string]string
	Env     map[string]string
	WorkDir string
}

func prepareExec(deps Deps, step pdkmodel.Step, ec pdkmodel.ExecContext) (prepared, error) {
	lookup := deps.Resolver.Lookup
	warn := func(string) {}

	with := make(map[string]string, len(step.With))
	for k, v := range step.With {
		exp, err := variables.Expand(v, lookup, warn)
		if err != nil {
			return prepared{}, err
		}
		with[k] = exp
	}

	env := make(map[string]string, len(ec.Env)+len(step.Env))
	for k, v := range mergeEnv(ec, step) {
		exp, err := variables.Expand(v, lookup, warn)
		if err != nil {
			return prepared{}, err
		}
		env[k] = exp
	}

	workDir, err := variables.Expand(resolveWorkingDir(step, ec), lookup, warn)
	if err != nil {
		return prepared{}, err
	}

	return prepared{With: with, Env: env, WorkDir: workDir}, nil
}

// expandScript applies variable expansion to a step's script body.
func expandScript(deps Deps, step pdkmodel.Step) (string, error) {
	warn := func(string) {}
	return variables.Expand(step.Script, deps.Resolver.Lookup, warn)
}

// runCommand invokes the backend with an already-built command string and
// the prepared env/working directory, translating the result into a
// StepResult.
func runCommand(ctx context.Context, deps Deps, step pdkmodel.Step, ec pdkmodel.ExecContext, p prepared, command string) pdkmodel.StepResult {
	start := time.Now()

	res, err := deps.Backend.Exec(ctx, ec.SandboxHandle, substrate.ExecSpec{
		Command:    command,
		WorkingDir: p.WorkDir,
		Env:        p.Env,
	})
	if err != nil {
		return failResult(step.Name, start, err.Error())
	}

	return pdkmodel.StepResult{
		Name:      step.Name,
		Success:   res.ExitCode == 0,
		ExitCode:  res.ExitCode,
		Stdout:    res.Stdout,
		Stderr:    res.Stderr,
		StartedAt: start,
		EndedAt:   start.Add(res.Duration),
	}
}

// joinNonEmpty joins parts with sep, skipping empty strings.
func joinNonEmpty(sep string, parts ...string) string {
	var kept []string
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}

// splitCSV splits a comma-separated list, trimming whitespace per element
// and dropping empties.
func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
