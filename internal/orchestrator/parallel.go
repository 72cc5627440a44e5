package orchestrator

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/pipelinedk/pdk/pkg/pdkmodel"
)

// PipelineResult aggregates every JobResult produced while running one
// Pipeline, returned in declaration order for reporting.
type PipelineResult struct {
	Jobs    []pdkmodel.JobResult
	Success bool
}

// RunPipeline runs every job in pipeline, respecting each job's Needs
// dependency list and the configured MaxParallelism. Jobs with no
// unsatisfied dependency run concurrently up to the parallelism bound; a job
// whose dependency failed is recorded as skipped without starting its
// sandbox.
func (e *Engine) RunPipeline(ctx context.Context, runID string, pipeline pdkmodel.Pipeline) (PipelineResult, error) {
	maxParallel := e.Config.Performance.MaxParallelism
	if maxParallel <= 0 || !e.Config.Performance.ParallelSteps {
		maxParallel = 1
	}
	sem := semaphore.NewWeighted(int64(maxParallel))

	var mu sync.Mutex
	results := make(map[string]pdkmodel.JobResult, len(pipeline.Jobs))

	order := make([]string, len(pipeline.Jobs))
	pending := make(map[string]pdkmodel.Job, len(pipeline.Jobs))
	for i, job := range pipeline.Jobs {
		order[i] = job.Name
		pending[job.Name] = job
	}

	for len(pending) > 0 {
		ready, skipped := nextWave(pending, results)
		for name, res := range skipped {
			mu.Lock()
			results[name] = res
			mu.Unlock()
			delete(pending, name)
		}
		for _, job := range ready {
			delete(pending, job.Name)
		}
		if len(ready) == 0 {
			break // remaining jobs depend on something that neither ran nor was skipped: a cycle
		}

		group, groupCtx := errgroup.WithContext(ctx)
		for _, job := range ready {
			job := job
			if err := sem.Acquire(groupCtx, 1); err != nil {
				break
			}
			group.Go(func() error {
				defer sem.Release(1)
				res := e.RunJob(groupCtx, runID, pipeline, job)
				mu.Lock()
				results[job.Name] = res
				mu.Unlock()
				return nil
			})
		}
		_ = group.Wait() // RunJob never returns an error itself; failures live in JobResult
	}

	ordered := make([]pdkmodel.JobResult, 0, len(order))
	success := true
	for _, name := range order {
		res, ok := results[name]
		if !ok {
			res = pdkmodel.JobResult{JobName: name, Success: false, Error: "job never scheduled: unresolved or cyclic dependency"}
		}
		if !res.Success {
			success = false
		}
		ordered = append(ordered, res)
	}
	return PipelineResult{Jobs: ordered, Success: success}, nil
}

// nextWave partitions pending jobs into those whose dependencies have all
// succeeded (ready to run now) and those whose dependencies have all run but
// at least one failed (skipped, never started).
func nextWave(pending map[string]pdkmodel.Job, results map[string]pdkmodel.JobResult) (ready []pdkmodel.Job, skipped map[string]pdkmodel.JobResult) {
	skipped = make(map[string]pdkmodel.JobResult)
	for name, job := range pending {
		allRan, allSucceeded := true, true
		for _, need := range job.Needs {
			res, ok := results[need]
			if !ok {
				allRan = false
				break
			}
			if !res.Success {
				allSucceeded = false
			}
		}
		if !allRan {
			continue
		}
		if !allSucceeded {
			skipped[name] = pdkmodel.JobResult{JobName: name, Success: false, Error: "skipped: upstream dependency failed"}
			continue
		}
		ready = append(ready, job)
	}
	return ready, skipped
}
