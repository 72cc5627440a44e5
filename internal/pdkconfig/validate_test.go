package pdkconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pipelinedk/pdk/pkg/pdkmodel"
)

func TestValidate_DefaultsArePasses(t *testing.T) {
	errs := Validate(defaults())
	assert.Empty(t, errs)
}

func TestValidate_AccumulatesMultipleErrors(t *testing.T) {
	cfg := pdkmodel.Configuration{
		Version:   "9.9",
		Variables: map[string]string{"bad-name": "x"},
		Runner:    pdkmodel.RunnerConfig{Backend: "weird", Fallback: "weird", CPULimit: 0.01},
		Artifacts: pdkmodel.ArtifactsConfig{RetentionDays: -1},
		Logging:   pdkmodel.LoggingConfig{Level: "unknown"},
	}

	errs := Validate(cfg)
	assert.GreaterOrEqual(t, len(errs), 5)
}

func TestValidate_CPULimitFloor(t *testing.T) {
	cfg := defaults()
	cfg.Runner.CPULimit = 0.05
	errs := Validate(cfg)
	assert.NotEmpty(t, errs)
}
