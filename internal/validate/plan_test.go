package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipelinedk/pdk/internal/variables"
	"github.com/pipelinedk/pdk/pkg/pdkerrors"
	"github.com/pipelinedk/pdk/pkg/pdkmodel"
)

func newResolver(config map[string]string) *variables.Resolver {
	return variables.NewResolver(nil, nil, config, variables.Builtins{}, variables.NewMasker(false))
}

func TestValidate_HealthyPipelineProducesPlanWithNoErrors(t *testing.T) {
	pipeline := pdkmodel.Pipeline{
		Jobs: []pdkmodel.Job{
			{
				Name:   "build",
				Runner: "ubuntu-latest",
				Steps: []pdkmodel.Step{
					{Name: "Build", Kind: pdkmodel.KindScript, Script: "echo hi"},
				},
			},
		},
	}

	result := Validate(pipeline, pdkmodel.Configuration{}, newResolver(nil))
	require.True(t, result.Valid())
	require.Len(t, result.Plan.Jobs, 1)
	assert.Equal(t, "Build", result.Plan.Jobs[0].Steps[0].Name)
	assert.NotEmpty(t, result.Plan.Jobs[0].Image)
}

func TestValidate_UnknownStepKind(t *testing.T) {
	pipeline := pdkmodel.Pipeline{
		Jobs: []pdkmodel.Job{
			{Name: "build", Steps: []pdkmodel.Step{{Name: "Mystery", Kind: "teleport"}}},
		},
	}

	result := Validate(pipeline, pdkmodel.Configuration{}, newResolver(nil))
	require.False(t, result.Valid())
	assert.Equal(t, pdkerrors.ConfigurationInvalid, result.Errors[0].Kind)
}

func TestValidate_MissingRequiredWithKey(t *testing.T) {
	pipeline := pdkmodel.Pipeline{
		Jobs: []pdkmodel.Job{
			{Name: "build", Steps: []pdkmodel.Step{{Name: "Restore", Kind: pdkmodel.KindDotnet}}},
		},
	}

	result := Validate(pipeline, pdkmodel.Configuration{}, newResolver(nil))
	require.False(t, result.Valid())
	found := false
	for _, e := range result.Errors {
		if e.Where["step"] == "Restore" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestValidate_MissingArtifactDefinition(t *testing.T) {
	pipeline := pdkmodel.Pipeline{
		Jobs: []pdkmodel.Job{
			{Name: "build", Steps: []pdkmodel.Step{{Name: "Upload", Kind: pdkmodel.KindUploadArtifact}}},
		},
	}

	result := Validate(pipeline, pdkmodel.Configuration{}, newResolver(nil))
	require.False(t, result.Valid())
}

func TestValidate_UndefinedNeed(t *testing.T) {
	pipeline := pdkmodel.Pipeline{
		Jobs: []pdkmodel.Job{
			{Name: "deploy", Needs: []string{"missing"}},
		},
	}

	result := Validate(pipeline, pdkmodel.Configuration{}, newResolver(nil))
	require.False(t, result.Valid())
	assert.Contains(t, result.Errors[0].Message, "missing")
}

func TestValidate_DependencyCycle(t *testing.T) {
	pipeline := pdkmodel.Pipeline{
		Jobs: []pdkmodel.Job{
			{Name: "a", Needs: []string{"b"}},
			{Name: "b", Needs: []string{"a"}},
		},
	}

	result := Validate(pipeline, pdkmodel.Configuration{}, newResolver(nil))
	require.False(t, result.Valid())
	found := false
	for _, e := range result.Errors {
		if e.Kind == pdkerrors.ConfigurationInvalid {
			found = true
		}
	}
	assert.True(t, found)
}

func TestValidate_MissingRequiredVariable(t *testing.T) {
	pipeline := pdkmodel.Pipeline{
		Jobs: []pdkmodel.Job{
			{Name: "build", Steps: []pdkmodel.Step{
				{Name: "Build", Kind: pdkmodel.KindScript, Script: "echo ${API_KEY:?API_KEY is required}"},
			}},
		},
	}

	result := Validate(pipeline, pdkmodel.Configuration{}, newResolver(nil))
	require.False(t, result.Valid())
	assert.Equal(t, pdkerrors.MissingRequiredVariable, result.Errors[0].Kind)
}

func TestValidate_CircularVariableReference(t *testing.T) {
	pipeline := pdkmodel.Pipeline{
		Jobs: []pdkmodel.Job{
			{Name: "build", Steps: []pdkmodel.Step{
				{Name: "Build", Kind: pdkmodel.KindScript, Script: "echo ${A}"},
			}},
		},
	}

	resolver := newResolver(map[string]string{"A": "${B}", "B": "${A}"})
	result := Validate(pipeline, pdkmodel.Configuration{}, resolver)
	require.False(t, result.Valid())
	assert.Equal(t, pdkerrors.CircularVariableReference, result.Errors[0].Kind)
}
