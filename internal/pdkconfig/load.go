// Package pdkconfig assembles the engine's pdkmodel.Configuration from a
// JSON configuration file: load, validate against a schema, apply defaults.
package pdkconfig

import (
	"encoding/json"
	"fmt"
	"os"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/xeipuuv/gojsonschema"

	"github.com/pipelinedk/pdk/pkg/pdkerrors"
	"github.com/pipelinedk/pdk/pkg/pdkmodel"
)

// rawConfig mirrors the JSON configuration file's shape exactly; Load
// converts it into the engine's pdkmodel.Configuration once it passes
// schema and field validation.
type rawConfig struct {
	Version       string            `json:"version"`
	Variables     map[string]string `json:"variables"`
	Secrets       map[string]string `json:"secrets"`
	Runner        rawRunner         `json:"runner"`
	Artifacts     rawArtifacts      `json:"artifacts"`
	Logging       rawLogging        `json:"logging"`
	Features      rawFeatures       `json:"features"`
	Performance   rawPerformance    `json:"performance"`
	StepFiltering rawStepFiltering  `json:"stepFiltering"`
}

type rawRunner struct {
	Backend       string            `json:"backend"`
	Fallback      string            `json:"fallback"`
	MemoryLimit   string            `json:"memoryLimit"`
	CPULimit      float64           `json:"cpuLimit"`
	NetworkMode   string            `json:"networkMode"`
	ImageOverride map[string]string `json:"imageOverride"`
}

type rawArtifacts struct {
	Root          string `json:"root"`
	RetentionDays int    `json:"retentionDays"`
}

type rawLogging struct {
	Level      string `json:"level"`
	Console    bool   `json:"console"`
	File       string `json:"file"`
	JSON       string `json:"json"`
	MaxSizeMB  int    `json:"maxSizeMB"`
	MaxBackups int    `json:"maxBackups"`
	MaxAgeDays int    `json:"maxAgeDays"`
	NoRedact   bool   `json:"noRedact"`
}

type rawFeatures struct {
	RequireDependencies bool `json:"requireDependencies"`
	ConfirmBeforeRun    bool `json:"confirmBeforeRun"`
	HostModeWarnings    bool `json:"hostModeWarnings"`
}

type rawPerformance struct {
	ContainerReuse bool              `json:"containerReuse"`
	ImageCache     bool              `json:"imageCache"`
	ParallelSteps  bool              `json:"parallelSteps"`
	MaxParallelism int               `json:"maxParallelism"`
	CacheMounts    map[string]string `json:"cacheMounts"`
}

type rawStepFiltering struct {
	Presets        map[string]string `json:"presets"`
	FuzzyThreshold int               `json:"fuzzyThreshold"`
}

// Load reads, schema-validates, and field-validates the configuration file
// at path, returning a fully-resolved pdkmodel.Configuration. An empty path
// yields the documented defaults (version "1.0", runner backend "auto").
func Load(path string) (pdkmodel.Configuration, error) {
	if path == "" {
		return defaults(), nil
	}

	expanded, err := homedir.Expand(path)
	if err != nil {
		return pdkmodel.Configuration{}, pdkerrors.New(pdkerrors.ConfigFileNotFound).
			Messagef("expanding configuration path %q", path).
			Cause(err).
			Build()
	}

	data, err := os.ReadFile(expanded)
	if err != nil {
		return pdkmodel.Configuration{}, pdkerrors.New(pdkerrors.ConfigFileNotFound).
			Messagef("reading configuration file %q", expanded).
			At("configFile", expanded).
			Cause(err).
			Build()
	}

	if err := validateSchema(data); err != nil {
		return pdkmodel.Configuration{}, err
	}

	var raw rawConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return pdkmodel.Configuration{}, pdkerrors.New(pdkerrors.ConfigInvalidJSON).
			Messagef("parsing configuration file %q", expanded).
			At("configFile", expanded).
			Cause(err).
			Build()
	}

	cfg, err := toConfiguration(raw)
	if err != nil {
		return pdkmodel.Configuration{}, err
	}

	if errs := Validate(cfg); len(errs) > 0 {
		return pdkmodel.Configuration{}, errs[0]
	}

	return cfg, nil
}

func defaults() pdkmodel.Configuration {
	return pdkmodel.Configuration{
		Version: "1.0",
		Runner: pdkmodel.RunnerConfig{
			Backend:  pdkmodel.RunnerAuto,
			Fallback: pdkmodel.FallbackHost,
		},
		Logging: pdkmodel.LoggingConfig{Level: "Information", Console: true},
	}
}

func validateSchema(data []byte) error {
	schemaLoader := gojsonschema.NewStringLoader(schemaJSON)
	docLoader := gojsonschema.NewBytesLoader(data)

	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return pdkerrors.New(pdkerrors.ConfigInvalidJSON).
			Message("configuration file is not valid JSON").
			Cause(err).
			Build()
	}
	if !result.Valid() {
		b := pdkerrors.New(pdkerrors.ConfigurationInvalid).
			Message("configuration file failed schema validation")
		for _, re := range result.Errors() {
			b = b.Suggest(fmt.Sprintf("%s: %s", re.Field(), re.Description()))
		}
		return b.Build()
	}
	return nil
}

func toConfiguration(raw rawConfig) (pdkmodel.Configuration, error) {
	artifactRoot, err := expandPath(raw.Artifacts.Root)
	if err != nil {
		return pdkmodel.Configuration{}, err
	}
	logFile, err := expandPath(raw.Logging.File)
	if err != nil {
		return pdkmodel.Configuration{}, err
	}
	logJSON, err := expandPath(raw.Logging.JSON)
	if err != nil {
		return pdkmodel.Configuration{}, err
	}

	backend := pdkmodel.RunnerBackend(raw.Runner.Backend)
	if backend == "" {
		backend = pdkmodel.RunnerAuto
	}
	fallback := pdkmodel.RunnerFallback(raw.Runner.Fallback)
	if fallback == "" {
		fallback = pdkmodel.FallbackHost
	}
	level := raw.Logging.Level
	if level == "" {
		level = "Information"
	}

	return pdkmodel.Configuration{
		Version:   raw.Version,
		Variables: raw.Variables,
		Secrets:   raw.Secrets,
		Runner: pdkmodel.RunnerConfig{
			Backend:       backend,
			Fallback:      fallback,
			MemoryLimit:   raw.Runner.MemoryLimit,
			CPULimit:      raw.Runner.CPULimit,
			NetworkMode:   raw.Runner.NetworkMode,
			ImageOverride: raw.Runner.ImageOverride,
		},
		Artifacts: pdkmodel.ArtifactsConfig{
			Root:          artifactRoot,
			RetentionDays: raw.Artifacts.RetentionDays,
		},
		Logging: pdkmodel.LoggingConfig{
			Level:      level,
			Console:    raw.Logging.Console,
			File:       logFile,
			JSON:       logJSON,
			MaxSizeMB:  raw.Logging.MaxSizeMB,
			MaxBackups: raw.Logging.MaxBackups,
			MaxAgeDays: raw.Logging.MaxAgeDays,
			NoRedact:   raw.Logging.NoRedact,
		},
		Features: pdkmodel.FeaturesConfig{
			RequireDependencies: raw.Features.RequireDependencies,
			ConfirmBeforeRun:    raw.Features.ConfirmBeforeRun,
			HostModeWarnings:    raw.Features.HostModeWarnings,
		},
		Performance: pdkmodel.PerformanceConfig{
			ContainerReuse: raw.Performance.ContainerReuse,
			ImageCache:     raw.Performance.ImageCache,
			ParallelSteps:  raw.Performance.ParallelSteps,
			MaxParallelism: raw.Performance.MaxParallelism,
			CacheMounts:    raw.Performance.CacheMounts,
		},
		StepFiltering: pdkmodel.StepFilteringConfig{
			Presets:        raw.StepFiltering.Presets,
			FuzzyThreshold: raw.StepFiltering.FuzzyThreshold,
		},
	}, nil
}

// expandPath expands a leading "~" to the current user's home directory.
// An empty path is left empty.
func expandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return "", pdkerrors.New(pdkerrors.ConfigurationInvalid).
			Messagef("expanding path %q", path).
			Cause(err).
			Build()
	}
	return expanded, nil
}
