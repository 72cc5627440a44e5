package filter

import (
	"fmt"

	"github.com/pipelinedk/pdk/pkg/pdkmodel"
)

// Verdict is the human-facing outcome of filtering one step.
type Verdict string

const (
	VerdictIncluded          Verdict = "Included"
	VerdictFilteredOut       Verdict = "FilteredOut"
	VerdictDependencyDropped Verdict = "DependencyDropped"
)

// StepVerdict is one row of a filter preview.
type StepVerdict struct {
	JobName   string
	StepName  string
	StepIndex int
	Verdict   Verdict
	Reason    string
}

// ConfirmFunc asks an interactive caller to approve a preview before
// dispatch.
type ConfirmFunc func(verdicts []StepVerdict) (bool, error)

// Preview evaluates f against every job and step of pipeline and returns one
// StepVerdict per step, resolving DependencyDropped: a step that would
// otherwise be Included is downgraded when the job it belongs to depends
// (directly or transitively, via Job.Needs) on a job that has no included
// steps of its own.
func Preview(pipeline pdkmodel.Pipeline, f *Filter) []StepVerdict {
	jobsByName := make(map[string]pdkmodel.Job, len(pipeline.Jobs))
	perJobDecisions := make(map[string][]Decision, len(pipeline.Jobs))
	jobActive := make(map[string]bool, len(pipeline.Jobs))

	for _, job := range pipeline.Jobs {
		jobsByName[job.Name] = job
		decisions := f.Evaluate(job)
		perJobDecisions[job.Name] = decisions
		for _, d := range decisions {
			if d.Include {
				jobActive[job.Name] = true
				break
			}
		}
	}

	var verdicts []StepVerdict
	for _, job := range pipeline.Jobs {
		decisions := perJobDecisions[job.Name]
		dependencyDropped := jobActive[job.Name] && hasInactiveDependency(job, jobActive, jobsByName)
		for i, step := range job.Steps {
			d := decisions[i]
			v := StepVerdict{JobName: job.Name, StepName: step.Name, StepIndex: i + 1}
			switch {
			case !d.Include:
				v.Verdict = VerdictFilteredOut
				v.Reason = d.Reason
			case dependencyDropped:
				v.Verdict = VerdictDependencyDropped
				v.Reason = fmt.Sprintf("job %q depends on a job with no included steps", job.Name)
			default:
				v.Verdict = VerdictIncluded
				v.Reason = d.Reason
			}
			verdicts = append(verdicts, v)
		}
	}
	return verdicts
}

// hasInactiveDependency reports whether job transitively needs a job that
// has no steps surviving the filter.
func hasInactiveDependency(job pdkmodel.Job, active map[string]bool, byName map[string]pdkmodel.Job) bool {
	visited := map[string]bool{}
	var walk func(names []string) bool
	walk = func(names []string) bool {
		for _, name := range names {
			if visited[name] {
				continue
			}
			visited[name] = true
			if !active[name] {
				return true
			}
			if dep, ok := byName[name]; ok && walk(dep.Needs) {
				return true
			}
		}
		return false
	}
	return walk(job.Needs)
}
