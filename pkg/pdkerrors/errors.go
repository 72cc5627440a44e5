// Package pdkerrors implements the engine's stable error-kind system.
// Every user-visible error carries three components: what happened,
// where, and suggested next steps.
package pdkerrors

import (
	"fmt"
	"time"
)

// Kind is one of the stable, abstract error kinds the engine reports.
type Kind string

const (
	ConfigurationInvalid     Kind = "ConfigurationInvalid"
	ConfigFileNotFound       Kind = "ConfigFileNotFound"
	ConfigInvalidJSON        Kind = "ConfigInvalidJson"
	MissingRequiredVariable  Kind = "MissingRequiredVariable"
	CircularVariableReference Kind = "CircularVariableReference"
	EngineUnavailable        Kind = "EngineUnavailable"
	ImagePullFailed          Kind = "ImagePullFailed"
	ContainerCreateFailed    Kind = "ContainerCreateFailed"
	ExecFailed               Kind = "ExecFailed"
	ToolNotFound             Kind = "ToolNotFound"
	UnsupportedShell         Kind = "UnsupportedShell"
	UnsupportedCommand       Kind = "UnsupportedCommand"
	ArtifactExists           Kind = "ArtifactExists"
	ArtifactNotFound         Kind = "ArtifactNotFound"
	ArtifactCorrupt          Kind = "ArtifactCorrupt"
	DiskSpaceLow             Kind = "DiskSpaceLow"
	GlobNoMatch              Kind = "GlobNoMatch"
	Cancelled                Kind = "Cancelled"
	Timeout                  Kind = "Timeout"
)

// PDKError is a user-facing error carrying what/where/next-steps.
type PDKError struct {
	Kind        Kind
	Message     string                 // what happened
	Where       map[string]string      // pipeline file / job / step index
	Suggestions []string                // actionable next steps
	Context     map[string]interface{}
	Timestamp   time.Time
	Cause       error
}

// Error implements the error interface.
func (e *PDKError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	}
	return string(e.Kind)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *PDKError) Unwrap() error {
	return e.Cause
}

// Builder constructs a PDKError fluently.
type Builder struct {
	err *PDKError
}

// New starts building an error of the given kind.
func New(kind Kind) *Builder {
	return &Builder{err: &PDKError{
		Kind:      kind,
		Where:     make(map[string]string),
		Context:   make(map[string]interface{}),
		Timestamp: time.Now(),
	}}
}

func (b *Builder) Message(msg string) *Builder {
	b.err.Message = msg
	return b
}

func (b *Builder) Messagef(format string, args ...interface{}) *Builder {
	b.err.Message = fmt.Sprintf(format, args...)
	return b
}

// At records where the error happened (pipeline file, job name, step index, ...).
func (b *Builder) At(key, value string) *Builder {
	b.err.Where[key] = value
	return b
}

func (b *Builder) Suggest(suggestion string) *Builder {
	b.err.Suggestions = append(b.err.Suggestions, suggestion)
	return b
}

func (b *Builder) Context(key string, value interface{}) *Builder {
	b.err.Context[key] = value
	return b
}

func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

func (b *Builder) Build() *PDKError {
	return b.err
}

// ToolNotFoundError is a convenience constructor for the common
// "binary missing" failure, carrying a remedial hint naming an image or
// install step.
func ToolNotFoundError(tool, imageOrHost, suggestion string) *PDKError {
	return New(ToolNotFound).
		Messagef("required tool %q was not found", tool).
		At("substrate", imageOrHost).
		Suggest(suggestion).
		Context("tool", tool).
		Build()
}
