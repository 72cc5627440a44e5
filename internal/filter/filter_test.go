package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipelinedk/pdk/pkg/pdkmodel"
)

func sampleJob() pdkmodel.Job {
	return pdkmodel.Job{
		Name: "build",
		Steps: []pdkmodel.Step{
			{Name: "Checkout"},
			{Name: "Build"},
			{Name: "Test"},
			{Name: "Publish"},
		},
	}
}

func TestFilter_NoIncludes_AllRun(t *testing.T) {
	f := &Filter{}
	decisions := f.Evaluate(sampleJob())
	for _, d := range decisions {
		assert.True(t, d.Include)
	}
}

func TestFilter_IncludeByName(t *testing.T) {
	f := &Filter{IncludeNames: []string{"build"}}
	decisions := f.Evaluate(sampleJob())
	assert.False(t, decisions[0].Include)
	assert.True(t, decisions[1].Include)
	assert.False(t, decisions[2].Include)
}

func TestFilter_IncludeByIndex(t *testing.T) {
	f := &Filter{IncludeIndexes: []int{1, 3}}
	decisions := f.Evaluate(sampleJob())
	assert.True(t, decisions[0].Include)
	assert.False(t, decisions[1].Include)
	assert.True(t, decisions[2].Include)
	assert.False(t, decisions[3].Include)
}

func TestFilter_IncludeByRange(t *testing.T) {
	f := &Filter{IncludeRanges: []NameRange{{From: "Build", To: "Test"}}}
	decisions := f.Evaluate(sampleJob())
	assert.False(t, decisions[0].Include)
	assert.True(t, decisions[1].Include)
	assert.True(t, decisions[2].Include)
	assert.False(t, decisions[3].Include)
}

func TestFilter_SkipBeatsInclude(t *testing.T) {
	f := &Filter{IncludeRanges: []NameRange{{From: "Build", To: "Publish"}}, SkipNames: []string{"Test"}}
	decisions := f.Evaluate(sampleJob())
	assert.True(t, decisions[1].Include)
	assert.False(t, decisions[2].Include, "skip beats include for Test")
	assert.True(t, decisions[3].Include)
}

func TestFilter_SkipByIndex(t *testing.T) {
	f := &Filter{SkipIndexes: []int{2}}
	decisions := f.Evaluate(sampleJob())
	assert.True(t, decisions[0].Include)
	assert.False(t, decisions[1].Include)
}

func TestFilter_FuzzyNameMatch(t *testing.T) {
	f := &Filter{IncludeNames: []string{"Buld"}, FuzzyThreshold: 1}
	decisions := f.Evaluate(sampleJob())
	assert.True(t, decisions[1].Include)
}

func TestFilter_FuzzyDisabledByDefault(t *testing.T) {
	f := &Filter{IncludeNames: []string{"Buld"}}
	decisions := f.Evaluate(sampleJob())
	assert.False(t, decisions[1].Include)
}

func TestFilter_IncludeByJob(t *testing.T) {
	f := &Filter{IncludeJobs: []string{"build"}}
	decisions := f.Evaluate(sampleJob())
	for _, d := range decisions {
		assert.True(t, d.Include)
	}
}

func TestParseIndexSpec(t *testing.T) {
	idx, err := ParseIndexSpec("2,4")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4}, idx)

	idx, err = ParseIndexSpec("2-5")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 4, 5}, idx)

	idx, err = ParseIndexSpec("1,3-4,3")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 4}, idx)

	_, err = ParseIndexSpec("x-2")
	assert.Error(t, err)
}

func TestParseNameRange(t *testing.T) {
	r, err := ParseNameRange("Build-Test")
	require.NoError(t, err)
	assert.Equal(t, NameRange{From: "Build", To: "Test"}, r)

	_, err = ParseNameRange("NoHyphen")
	assert.Error(t, err)
}
