package cli

import (
	"github.com/spf13/cobra"
)

// Options collects every CLI flag in one struct so run() never has to
// reach back into a *cobra.Command for a value.
type Options struct {
	File       string
	ConfigPath string

	Vars    []string
	VarFile string
	Secrets []string

	Watch           bool
	WatchDebounceMS int
	WatchClear      bool

	DryRun         bool
	DryRunJSONPath string

	Verbose bool
	Trace   bool
	Quiet   bool
	Silent  bool

	LogFile  string
	LogJSON  string
	NoRedact bool

	Steps               []string
	StepIndex           string
	StepRange           string
	SkipSteps           []string
	Jobs                []string
	IncludeDependencies bool
	PreviewFilter       bool
	Confirm             bool

	Host           bool
	KeepContainers bool
}

// registerFlags binds every pdk flag onto cmd and returns the struct they
// populate once cmd.Execute parses argv.
func registerFlags(cmd *cobra.Command) *Options {
	opts := &Options{}

	flags := cmd.Flags()
	flags.StringVar(&opts.File, "file", "", "pipeline file to run")
	flags.StringVar(&opts.ConfigPath, "config", "", "configuration file")

	flags.StringArrayVar(&opts.Vars, "var", nil, "variable override KEY=VALUE (repeatable)")
	flags.StringVar(&opts.VarFile, "var-file", "", "JSON file of variable overrides")
	flags.StringArrayVar(&opts.Secrets, "secret", nil, "secret override KEY=VALUE (repeatable)")

	flags.BoolVar(&opts.Watch, "watch", false, "re-run the pipeline on file changes")
	flags.IntVar(&opts.WatchDebounceMS, "watch-debounce", 500, "watch debounce window in milliseconds")
	flags.BoolVar(&opts.WatchClear, "watch-clear", false, "clear the terminal before each watch-triggered run")

	flags.BoolVar(&opts.DryRun, "dry-run", false, "validate the pipeline without executing it")
	flags.StringVar(&opts.DryRunJSONPath, "dry-run-json", "", "write the dry-run execution plan as JSON to this path")

	flags.BoolVar(&opts.Verbose, "verbose", false, "Debug-level logging")
	flags.BoolVar(&opts.Trace, "trace", false, "Trace-level logging")
	flags.BoolVar(&opts.Quiet, "quiet", false, "Warning-level logging")
	flags.BoolVar(&opts.Silent, "silent", false, "Error-level logging")
	flags.StringVar(&opts.LogFile, "log-file", "", "rotating text log file path")
	flags.StringVar(&opts.LogJSON, "log-json", "", "rotating JSON log file path")
	flags.BoolVar(&opts.NoRedact, "no-redact", false, "disable secret masking in logs (loud warning every run)")

	flags.StringArrayVar(&opts.Steps, "step", nil, "include step by name (repeatable)")
	flags.StringVar(&opts.StepIndex, "step-index", "", "include steps by 1-based index spec, e.g. 2,4-6")
	flags.StringVar(&opts.StepRange, "step-range", "", "include steps by inclusive name range, e.g. Build-Test")
	flags.StringArrayVar(&opts.SkipSteps, "skip-step", nil, "skip step by name (repeatable)")
	flags.StringArrayVar(&opts.Jobs, "job", nil, "include only this job (repeatable)")
	flags.BoolVar(&opts.IncludeDependencies, "include-dependencies", false, "skip, instead of running with a warning, an included step whose job depends on a job with no included steps")
	flags.BoolVar(&opts.PreviewFilter, "preview-filter", false, "print the filter's per-step verdicts and exit")
	flags.BoolVar(&opts.Confirm, "confirm", false, "ask for confirmation before running the filtered step set")

	flags.BoolVar(&opts.Host, "host", false, "force the host backend regardless of configuration")
	flags.BoolVar(&opts.KeepContainers, "keep-containers", false, "do not remove containers on exit (debugging)")

	return opts
}
