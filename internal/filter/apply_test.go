package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipelinedk/pdk/pkg/pdkmodel"
)

func dependentPipeline() pdkmodel.Pipeline {
	return pdkmodel.Pipeline{
		Jobs: []pdkmodel.Job{
			{Name: "compile", Steps: []pdkmodel.Step{{Name: "Build"}}},
			{Name: "deploy", Needs: []string{"compile"}, Steps: []pdkmodel.Step{{Name: "Push"}}},
		},
	}
}

func TestApply_NoFilter_KeepsEverything(t *testing.T) {
	filtered, skipped := Apply(dependentPipeline(), &Filter{}, false)
	require.Len(t, filtered.Jobs, 2)
	assert.Len(t, filtered.Jobs[0].Steps, 1)
	assert.Len(t, filtered.Jobs[1].Steps, 1)
	assert.Empty(t, skipped)
}

func TestApply_DependencyDropped_RunsByDefault(t *testing.T) {
	f := &Filter{IncludeJobs: []string{"deploy"}}
	filtered, skipped := Apply(dependentPipeline(), f, false)

	var deploy pdkmodel.Job
	for _, j := range filtered.Jobs {
		if j.Name == "deploy" {
			deploy = j
		}
	}
	require.Len(t, deploy.Steps, 1, "dependency-dropped steps still run unless requireDependencies is set")
	assert.Equal(t, []SkippedStep{{JobName: "compile", StepName: "Build", Reason: "did not match any include expression"}}, skipped)
}

func TestApply_DependencyDropped_SkippedWhenRequired(t *testing.T) {
	f := &Filter{IncludeJobs: []string{"deploy"}}
	filtered, skipped := Apply(dependentPipeline(), f, true)

	var deploy pdkmodel.Job
	for _, j := range filtered.Jobs {
		if j.Name == "deploy" {
			deploy = j
		}
	}
	assert.Empty(t, deploy.Steps)
	require.Len(t, skipped, 2)
	assert.Equal(t, "Push", skipped[1].StepName)
}

func TestApply_FilteredOutStepAlwaysSkipped(t *testing.T) {
	f := &Filter{IncludeNames: []string{"Build"}}
	filtered, skipped := Apply(dependentPipeline(), f, false)

	var compile pdkmodel.Job
	for _, j := range filtered.Jobs {
		if j.Name == "compile" {
			compile = j
		}
	}
	assert.Len(t, compile.Steps, 1)
	assert.Equal(t, "Build", compile.Steps[0].Name)

	found := false
	for _, s := range skipped {
		if s.JobName == "deploy" && s.StepName == "Push" {
			found = true
		}
	}
	assert.True(t, found)
}
