package filter

import "github.com/pipelinedk/pdk/pkg/pdkmodel"

// SkippedStep is one step Apply removed from the executable pipeline, kept
// so the caller can surface a human-readable reason for it.
type SkippedStep struct {
	JobName  string
	StepName string
	Reason   string
}

// Apply runs Preview against pipeline and f, then builds the pipeline that
// should actually execute: every Included step, plus every
// DependencyDropped step unless requireDependencies is set (the CLI logs a
// warning for each such step it still runs). Jobs are kept even when every one of
// their steps is filtered out, so Needs-based scheduling still sees them;
// their Steps slice is simply empty.
func Apply(pipeline pdkmodel.Pipeline, f *Filter, requireDependencies bool) (pdkmodel.Pipeline, []SkippedStep) {
	verdicts := Preview(pipeline, f)

	byJobStep := make(map[string]map[string]StepVerdict, len(pipeline.Jobs))
	for _, v := range verdicts {
		if byJobStep[v.JobName] == nil {
			byJobStep[v.JobName] = make(map[string]StepVerdict)
		}
		byJobStep[v.JobName][v.StepName] = v
	}

	var skipped []SkippedStep
	jobs := make([]pdkmodel.Job, len(pipeline.Jobs))
	for i, job := range pipeline.Jobs {
		steps := make([]pdkmodel.Step, 0, len(job.Steps))
		for _, step := range job.Steps {
			v := byJobStep[job.Name][step.Name]
			keep := v.Verdict == VerdictIncluded || (v.Verdict == VerdictDependencyDropped && !requireDependencies)
			if keep {
				steps = append(steps, step)
				continue
			}
			skipped = append(skipped, SkippedStep{JobName: job.Name, StepName: step.Name, Reason: v.Reason})
		}
		jobs[i] = job
		jobs[i].Steps = steps
	}

	return pdkmodel.Pipeline{Name: pipeline.Name, Jobs: jobs, Env: pipeline.Env, Vars: pipeline.Vars}, skipped
}
