// Package pdkmodel holds the provider-neutral pipeline model the engine
// consumes. Values here are immutable once produced by a parser; nothing in
// the engine mutates a Pipeline, Job, or Step in place.
package pdkmodel

import "time"

// Pipeline is the top-level unit submitted to the engine.
type Pipeline struct {
	Name string
	Jobs []Job
	Env  map[string]string
	Vars map[string]string
}

// Job is one unit of sandboxed execution within a Pipeline.
type Job struct {
	ID               string
	Name             string
	Runner           string
	Steps            []Step
	Env              map[string]string
	Needs            []string
	Timeout          time.Duration
	ContinueOnError  bool
}

// StepKind tags which executor handles a Step.
type StepKind string

const (
	KindCheckout        StepKind = "checkout"
	KindScript          StepKind = "script"
	KindDotnet          StepKind = "dotnet"
	KindNpm             StepKind = "npm"
	KindDocker          StepKind = "docker"
	KindUploadArtifact  StepKind = "upload-artifact"
	KindDownloadArtifact StepKind = "download-artifact"
	KindUnknown         StepKind = "unknown"
)

// Shell selects the interpreter a Script step runs under.
type Shell string

const (
	ShellBash       Shell = "bash"
	ShellSh         Shell = "sh"
	ShellPwsh       Shell = "pwsh"
	ShellPowerShell Shell = "powershell"
)

// Step is a single instruction within a Job.
type Step struct {
	ID              string
	Name            string
	Kind            StepKind
	Script          string
	Shell           Shell
	With            map[string]string
	Env             map[string]string
	WorkingDir      string
	ContinueOnError *bool // nil means "inherit job's flag"
	Condition       string
	Artifact        *ArtifactDefinition
}

// EffectiveContinueOnError computes the step's continue-on-error flag:
// an explicit step-level value always wins; an unset step value inherits the
// job's flag.
func (s Step) EffectiveContinueOnError(job Job) bool {
	if s.ContinueOnError != nil {
		return *s.ContinueOnError
	}
	return job.ContinueOnError
}

// ArtifactOperation is Upload or Download.
type ArtifactOperation string

const (
	OperationUpload   ArtifactOperation = "Upload"
	OperationDownload ArtifactOperation = "Download"
)

// Compression selects how an uploaded artifact tree is bundled.
type Compression string

const (
	CompressionNone  Compression = "None"
	CompressionGzip  Compression = "Gzip"
	CompressionZip   Compression = "Zip"
)

// IfNoFilesFound selects behavior when an upload's glob matches nothing.
type IfNoFilesFound string

const (
	IfNoFilesError  IfNoFilesFound = "Error"
	IfNoFilesWarn   IfNoFilesFound = "Warn"
	IfNoFilesIgnore IfNoFilesFound = "Ignore"
)

// ConflictPolicy selects behavior when a download target file already exists.
type ConflictPolicy string

const (
	ConflictError     ConflictPolicy = "Error"
	ConflictSkip      ConflictPolicy = "Skip"
	ConflictOverwrite ConflictPolicy = "Overwrite"
)

// ArtifactOptions are the tunable knobs on an ArtifactDefinition.
type ArtifactOptions struct {
	Compression    Compression
	IfNoFilesFound IfNoFilesFound
	RetentionDays  int
	Overwrite      bool
	Conflict       ConflictPolicy
}

// ArtifactDefinition describes the artifact operation attached to a Step.
type ArtifactDefinition struct {
	Name       string // must match [A-Za-z0-9_-]{1,100}
	Operation  ArtifactOperation
	Include    []string
	Exclude    []string
	TargetPath string
	Options    ArtifactOptions
}
