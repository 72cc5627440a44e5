// Package validate implements the dry-run pass: without invoking any
// executor or allocating any sandbox, confirm that a pipeline is
// well-formed and emit a per-job execution plan. It accumulates every
// defect found across the whole pipeline rather than stopping at the
// first error, since a dry run's point is to report everything wrong in
// one pass.
package validate

import (
	"strings"

	"github.com/pipelinedk/pdk/internal/substrate"
	"github.com/pipelinedk/pdk/internal/variables"
	"github.com/pipelinedk/pdk/pkg/pdkerrors"
	"github.com/pipelinedk/pdk/pkg/pdkmodel"
)

// knownKinds are the step kinds a Registry built by internal/executor would
// resolve; kept here as a static list so the validation pass never builds
// an executor Registry.
var knownKinds = map[pdkmodel.StepKind]bool{
	pdkmodel.KindCheckout:         true,
	pdkmodel.KindScript:           true,
	pdkmodel.KindDotnet:           true,
	pdkmodel.KindNpm:              true,
	pdkmodel.KindDocker:           true,
	pdkmodel.KindUploadArtifact:   true,
	pdkmodel.KindDownloadArtifact: true,
}

// requiredWithKeys mirrors each executor's own "missing required input"
// checks (internal/executor/dotnet.go, docker_step.go), so a dry run can surface the
// same complaint before any sandbox is allocated.
var requiredWithKeys = map[pdkmodel.StepKind][]string{
	pdkmodel.KindDotnet: {"command"},
	pdkmodel.KindDocker: {"command"},
}

// PlannedStep is one step's entry in an execution plan.
type PlannedStep struct {
	Name       string
	Executor   pdkmodel.StepKind
	WorkingDir string
	Shell      pdkmodel.Shell
	With       map[string]string
	Condition  string
}

// PlannedJob is one job's entry in an execution plan.
type PlannedJob struct {
	Name  string
	Image string
	Env   map[string]string
	Steps []PlannedStep
}

// ExecutionPlan is the machine-readable artifact a dry run produces.
type ExecutionPlan struct {
	Jobs []PlannedJob
}

// Result is the outcome of validating one pipeline: every defect found,
// accumulated rather than stopping at the first, plus the plan built from
// whatever was well-formed enough to describe.
type Result struct {
	Errors []*pdkerrors.PDKError
	Plan   ExecutionPlan
}

// Valid reports whether the dry run found zero defects.
func (r Result) Valid() bool {
	return len(r.Errors) == 0
}

// Validate runs the full dry-run pass against pipeline under cfg, using a
// resolver only to detect missing/circular variable references (Expand is
// never asked to run a command).
func Validate(pipeline pdkmodel.Pipeline, cfg pdkmodel.Configuration, resolver *variables.Resolver) Result {
	var result Result

	byName := make(map[string]pdkmodel.Job, len(pipeline.Jobs))
	for _, job := range pipeline.Jobs {
		byName[job.Name] = job
	}

	result.Errors = append(result.Errors, validateDependencyGraph(pipeline, byName)...)

	for _, job := range pipeline.Jobs {
		plannedJob := PlannedJob{
			Name:  job.Name,
			Image: resolveImage(job, cfg),
			Env:   job.Env,
		}
		for _, step := range job.Steps {
			result.Errors = append(result.Errors, validateStep(job, step, resolver)...)
			plannedJob.Steps = append(plannedJob.Steps, PlannedStep{
				Name:       step.Name,
				Executor:   pdkmodel.StepKind(normalizeKind(step.Kind)),
				WorkingDir: step.WorkingDir,
				Shell:      step.Shell,
				With:       step.With,
				Condition:  step.Condition,
			})
		}
		result.Plan.Jobs = append(result.Plan.Jobs, plannedJob)
	}

	return result
}

func normalizeKind(k pdkmodel.StepKind) string {
	return strings.ToLower(string(k))
}

func validateStep(job pdkmodel.Job, step pdkmodel.Step, resolver *variables.Resolver) []*pdkerrors.PDKError {
	var errs []*pdkerrors.PDKError

	kind := pdkmodel.StepKind(normalizeKind(step.Kind))
	if !knownKinds[kind] {
		errs = append(errs, pdkerrors.New(pdkerrors.ConfigurationInvalid).
			Messagef("step kind %q does not resolve to a registered executor", step.Kind).
			At("job", job.Name).
			At("step", step.Name).
			Build())
	}

	for _, key := range requiredWithKeys[kind] {
		if step.With[key] == "" {
			errs = append(errs, pdkerrors.New(pdkerrors.ConfigurationInvalid).
				Messagef("step requires a %q input", key).
				At("job", job.Name).
				At("step", step.Name).
				Build())
		}
	}

	if kind == pdkmodel.KindUploadArtifact || kind == pdkmodel.KindDownloadArtifact {
		if step.Artifact == nil {
			errs = append(errs, pdkerrors.New(pdkerrors.ConfigurationInvalid).
				Messagef("%s step requires an artifact definition", kind).
				At("job", job.Name).
				At("step", step.Name).
				Build())
		}
	}

	if resolver != nil {
		warn := func(string) {}
		surfaces := []string{step.Script, step.WorkingDir}
		for _, v := range step.With {
			surfaces = append(surfaces, v)
		}
		for _, v := range step.Env {
			surfaces = append(surfaces, v)
		}
		for _, surface := range surfaces {
			if surface == "" {
				continue
			}
			if _, err := variables.Expand(surface, resolver.Lookup, warn); err != nil {
				if pe, ok := err.(*pdkerrors.PDKError); ok {
					pe.Where["job"] = job.Name
					pe.Where["step"] = step.Name
					errs = append(errs, pe)
				}
			}
		}
	}

	return errs
}

// validateDependencyGraph confirms every Needs reference exists and the
// graph is acyclic.
func validateDependencyGraph(pipeline pdkmodel.Pipeline, byName map[string]pdkmodel.Job) []*pdkerrors.PDKError {
	var errs []*pdkerrors.PDKError

	for _, job := range pipeline.Jobs {
		for _, need := range job.Needs {
			if _, ok := byName[need]; !ok {
				errs = append(errs, pdkerrors.New(pdkerrors.ConfigurationInvalid).
					Messagef("job %q needs undefined job %q", job.Name, need).
					At("job", job.Name).
					Build())
			}
		}
	}

	const (
		unvisited = 0
		visiting  = 1
		visited   = 2
	)
	state := make(map[string]int, len(pipeline.Jobs))
	var cyclic []string

	var visit func(name string) bool
	visit = func(name string) bool {
		switch state[name] {
		case visited:
			return false
		case visiting:
			return true
		}
		state[name] = visiting
		job, ok := byName[name]
		if ok {
			for _, need := range job.Needs {
				if _, exists := byName[need]; exists && visit(need) {
					return true
				}
			}
		}
		state[name] = visited
		return false
	}

	for _, job := range pipeline.Jobs {
		if state[job.Name] == unvisited && visit(job.Name) {
			cyclic = append(cyclic, job.Name)
		}
	}

	if len(cyclic) > 0 {
		errs = append(errs, pdkerrors.New(pdkerrors.ConfigurationInvalid).
			Messagef("job dependency graph has a cycle reachable from: %v", cyclic).
			Build())
	}

	return errs
}

func resolveImage(job pdkmodel.Job, cfg pdkmodel.Configuration) string {
	if override, ok := cfg.Runner.ImageOverride[job.Runner]; ok && override != "" {
		return override
	}
	return substrate.ResolveImage(job.Runner)
}
