// Package pdkpipeline loads a provider-neutral pipeline document from disk.
// Parsers for specific CI file formats (GitHub/Azure YAML -> neutral
// model) are out of scope — the engine consumes an already-parsed
// pdkmodel.Pipeline. This package is the minimal external collaborator
// the CLI needs to get one: it decodes the PDK's own neutral JSON
// representation of a Pipeline, the same wire-shape idea internal/pdkconfig
// already uses for the configuration file, rather than translating an
// upstream provider's workflow syntax.
package pdkpipeline

import (
	"encoding/json"
	"os"
	"time"

	homedir "github.com/mitchellh/go-homedir"

	"github.com/pipelinedk/pdk/pkg/pdkerrors"
	"github.com/pipelinedk/pdk/pkg/pdkmodel"
)

type rawPipeline struct {
	Name string            `json:"name"`
	Env  map[string]string `json:"env"`
	Vars map[string]string `json:"vars"`
	Jobs []rawJob          `json:"jobs"`
}

type rawJob struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	Runner          string            `json:"runner"`
	Steps           []rawStep         `json:"steps"`
	Env             map[string]string `json:"env"`
	Needs           []string          `json:"needs"`
	TimeoutSeconds  int               `json:"timeoutSeconds"`
	ContinueOnError bool              `json:"continueOnError"`
}

type rawStep struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	Kind            string            `json:"kind"`
	Script          string            `json:"script"`
	Shell           string            `json:"shell"`
	With            map[string]string `json:"with"`
	Env             map[string]string `json:"env"`
	WorkingDir      string            `json:"workingDir"`
	ContinueOnError *bool             `json:"continueOnError"`
	Condition       string            `json:"condition"`
	Artifact        *rawArtifact      `json:"artifact"`
}

type rawArtifact struct {
	Name       string   `json:"name"`
	Operation  string   `json:"operation"`
	Include    []string `json:"include"`
	Exclude    []string `json:"exclude"`
	TargetPath string   `json:"targetPath"`
	Options    struct {
		Compression    string `json:"compression"`
		IfNoFilesFound string `json:"ifNoFilesFound"`
		RetentionDays  int    `json:"retentionDays"`
		Overwrite      bool   `json:"overwrite"`
		Conflict       string `json:"conflict"`
	} `json:"options"`
}

// Load reads and decodes the pipeline document at path into a
// pdkmodel.Pipeline.
func Load(path string) (pdkmodel.Pipeline, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return pdkmodel.Pipeline{}, pdkerrors.New(pdkerrors.ConfigFileNotFound).
			Messagef("expanding pipeline path %q", path).
			Cause(err).
			Build()
	}

	data, err := os.ReadFile(expanded)
	if err != nil {
		return pdkmodel.Pipeline{}, pdkerrors.New(pdkerrors.ConfigFileNotFound).
			Messagef("reading pipeline file %q", expanded).
			At("pipelineFile", expanded).
			Cause(err).
			Build()
	}

	var raw rawPipeline
	if err := json.Unmarshal(data, &raw); err != nil {
		return pdkmodel.Pipeline{}, pdkerrors.New(pdkerrors.ConfigInvalidJSON).
			Messagef("parsing pipeline file %q", expanded).
			At("pipelineFile", expanded).
			Cause(err).
			Build()
	}

	return toPipeline(raw), nil
}

func toPipeline(raw rawPipeline) pdkmodel.Pipeline {
	jobs := make([]pdkmodel.Job, len(raw.Jobs))
	for i, j := range raw.Jobs {
		jobs[i] = pdkmodel.Job{
			ID:              j.ID,
			Name:            j.Name,
			Runner:          j.Runner,
			Steps:           toSteps(j.Steps),
			Env:             j.Env,
			Needs:           j.Needs,
			Timeout:         time.Duration(j.TimeoutSeconds) * time.Second,
			ContinueOnError: j.ContinueOnError,
		}
	}
	return pdkmodel.Pipeline{Name: raw.Name, Jobs: jobs, Env: raw.Env, Vars: raw.Vars}
}

func toSteps(raw []rawStep) []pdkmodel.Step {
	steps := make([]pdkmodel.Step, len(raw))
	for i, s := range raw {
		steps[i] = pdkmodel.Step{
			ID:              s.ID,
			Name:            s.Name,
			Kind:            pdkmodel.StepKind(s.Kind),
			Script:          s.Script,
			Shell:           pdkmodel.Shell(s.Shell),
			With:            s.With,
			Env:             s.Env,
			WorkingDir:      s.WorkingDir,
			ContinueOnError: s.ContinueOnError,
			Condition:       s.Condition,
			Artifact:        toArtifact(s.Artifact),
		}
	}
	return steps
}

func toArtifact(raw *rawArtifact) *pdkmodel.ArtifactDefinition {
	if raw == nil {
		return nil
	}
	return &pdkmodel.ArtifactDefinition{
		Name:       raw.Name,
		Operation:  pdkmodel.ArtifactOperation(raw.Operation),
		Include:    raw.Include,
		Exclude:    raw.Exclude,
		TargetPath: raw.TargetPath,
		Options: pdkmodel.ArtifactOptions{
			Compression:    pdkmodel.Compression(raw.Options.Compression),
			IfNoFilesFound: pdkmodel.IfNoFilesFound(raw.Options.IfNoFilesFound),
			RetentionDays:  raw.Options.RetentionDays,
			Overwrite:      raw.Options.Overwrite,
			Conflict:       pdkmodel.ConflictPolicy(raw.Options.Conflict),
		},
	}
}
