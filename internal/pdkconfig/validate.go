package pdkconfig

import (
	"regexp"
	"strings"

	"github.com/pipelinedk/pdk/pkg/pdkerrors"
	"github.com/pipelinedk/pdk/pkg/pdkmodel"
)

var variableNameRe = regexp.MustCompile(`^[A-Z_][A-Z0-9_]*$`)
var memoryLimitRe = regexp.MustCompile(`(?i)^[0-9]+(k|m|g)$`)

// Validate runs every per-field check against cfg and accumulates every
// defect found instead of stopping at the first failure. Load reports only
// the first of them.
func Validate(cfg pdkmodel.Configuration) []*pdkerrors.PDKError {
	var errs []*pdkerrors.PDKError
	errs = append(errs, validateVersion(cfg)...)
	errs = append(errs, validateVariableNames(cfg)...)
	errs = append(errs, validateRunner(cfg)...)
	errs = append(errs, validateArtifacts(cfg)...)
	errs = append(errs, validateLogging(cfg)...)
	return errs
}

func validateVersion(cfg pdkmodel.Configuration) []*pdkerrors.PDKError {
	if cfg.Version != "1.0" {
		return []*pdkerrors.PDKError{
			pdkerrors.New(pdkerrors.ConfigurationInvalid).
				Messagef("unsupported configuration version %q, want \"1.0\"", cfg.Version).
				Build(),
		}
	}
	return nil
}

func validateVariableNames(cfg pdkmodel.Configuration) []*pdkerrors.PDKError {
	var errs []*pdkerrors.PDKError
	for name := range cfg.Variables {
		if !variableNameRe.MatchString(name) {
			errs = append(errs, pdkerrors.New(pdkerrors.ConfigurationInvalid).
				Messagef("variable name %q does not match ^[A-Z_][A-Z0-9_]*$", name).
				At("variable", name).
				Build())
		}
	}
	return errs
}

func validateRunner(cfg pdkmodel.Configuration) []*pdkerrors.PDKError {
	var errs []*pdkerrors.PDKError
	r := cfg.Runner

	switch r.Backend {
	case pdkmodel.RunnerAuto, pdkmodel.RunnerDocker, pdkmodel.RunnerHost:
	default:
		errs = append(errs, pdkerrors.New(pdkerrors.ConfigurationInvalid).
			Messagef("runner.backend must be auto, docker, or host, got %q", r.Backend).
			Build())
	}

	switch r.Fallback {
	case pdkmodel.FallbackHost, pdkmodel.FallbackNone:
	default:
		errs = append(errs, pdkerrors.New(pdkerrors.ConfigurationInvalid).
			Messagef("runner.fallback must be host or none, got %q", r.Fallback).
			Build())
	}

	if r.MemoryLimit != "" && !memoryLimitRe.MatchString(r.MemoryLimit) {
		errs = append(errs, pdkerrors.New(pdkerrors.ConfigurationInvalid).
			Messagef("runner.memoryLimit %q does not match ^[0-9]+(k|m|g)$", r.MemoryLimit).
			Build())
	}

	if r.CPULimit != 0 && r.CPULimit < 0.1 {
		errs = append(errs, pdkerrors.New(pdkerrors.ConfigurationInvalid).
			Messagef("runner.cpuLimit must be >= 0.1, got %v", r.CPULimit).
			Build())
	}

	return errs
}

func validateArtifacts(cfg pdkmodel.Configuration) []*pdkerrors.PDKError {
	if cfg.Artifacts.RetentionDays < 0 {
		return []*pdkerrors.PDKError{
			pdkerrors.New(pdkerrors.ConfigurationInvalid).
				Messagef("artifacts.retentionDays must be >= 0, got %d", cfg.Artifacts.RetentionDays).
				Build(),
		}
	}
	return nil
}

var validLogLevels = map[string]bool{
	"error": true, "warning": true, "information": true, "debug": true, "trace": true,
}

func validateLogging(cfg pdkmodel.Configuration) []*pdkerrors.PDKError {
	if !validLogLevels[strings.ToLower(cfg.Logging.Level)] {
		return []*pdkerrors.PDKError{
			pdkerrors.New(pdkerrors.ConfigurationInvalid).
				Messagef("logging.level must be one of Error|Warning|Information|Debug|Trace, got %q", cfg.Logging.Level).
				Build(),
		}
	}
	return nil
}
