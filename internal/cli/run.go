package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/pipelinedk/pdk/internal/artifact"
	"github.com/pipelinedk/pdk/internal/filter"
	"github.com/pipelinedk/pdk/internal/orchestrator"
	"github.com/pipelinedk/pdk/internal/pdkconfig"
	"github.com/pipelinedk/pdk/internal/pdklog"
	"github.com/pipelinedk/pdk/internal/pdkpipeline"
	"github.com/pipelinedk/pdk/internal/substrate"
	"github.com/pipelinedk/pdk/internal/validate"
	"github.com/pipelinedk/pdk/internal/variables"
	"github.com/pipelinedk/pdk/pkg/pdkmodel"
)

// runtime bundles everything a run needs once config, pipeline, logging, and
// variable resolution have been assembled, so the individual mode functions
// (run/dry-run/watch/preview) take one argument instead of six.
type runtime struct {
	ctx      context.Context
	opts     *Options
	cfg      pdkmodel.Configuration
	pipeline pdkmodel.Pipeline
	resolver *variables.Resolver
	masker   *variables.Masker
	logger   *pdklog.Logger
	filter   *filter.Filter
	version  string
}

func runRoot(ctx context.Context, opts *Options, version string) error {
	cfg, err := pdkconfig.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	applyVerbosityOverrides(&cfg, opts)

	masker := variables.NewMasker(cfg.Logging.NoRedact)
	for _, v := range cfg.Secrets {
		masker.Register(v)
	}
	secretOverrides, err := parseKeyValuePairs(opts.Secrets)
	if err != nil {
		return fmt.Errorf("parsing --secret: %w", err)
	}
	for _, v := range secretOverrides {
		masker.Register(v)
	}

	logger, err := pdklog.New(cfg.Logging, masker)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer logger.Sync()
	logger = logger.With(map[string]interface{}{"correlationId": pdklog.NewCorrelationID()})

	if cfg.Logging.NoRedact {
		logger.Warn("secret masking is disabled (--no-redact): log output may contain plaintext secrets", nil)
	}

	if opts.File == "" {
		return fmt.Errorf("--file is required")
	}
	pipeline, err := pdkpipeline.Load(opts.File)
	if err != nil {
		return fmt.Errorf("loading pipeline: %w", err)
	}

	resolver, err := buildResolver(cfg, pipeline, opts, masker, version)
	if err != nil {
		return err
	}

	f, err := buildFilter(cfg, opts)
	if err != nil {
		return fmt.Errorf("parsing filter flags: %w", err)
	}

	rt := &runtime{ctx: ctx, opts: opts, cfg: cfg, pipeline: pipeline, resolver: resolver, masker: masker, logger: logger, filter: f, version: version}

	if opts.PreviewFilter {
		return rt.previewFilter()
	}
	if opts.DryRun || opts.DryRunJSONPath != "" {
		return rt.dryRun()
	}
	if opts.Watch {
		return rt.watchRun()
	}
	return rt.singleRun()
}

// applyVerbosityOverrides maps the four verbosity flags onto the
// configuration's logging level, most-verbose flag winning when more than
// one is passed.
func applyVerbosityOverrides(cfg *pdkmodel.Configuration, opts *Options) {
	if opts.Silent {
		cfg.Logging.Level = "Error"
	}
	if opts.Quiet {
		cfg.Logging.Level = "Warning"
	}
	if opts.Verbose {
		cfg.Logging.Level = "Debug"
	}
	if opts.Trace {
		cfg.Logging.Level = "Trace"
	}
	if opts.LogFile != "" {
		cfg.Logging.File = opts.LogFile
	}
	if opts.LogJSON != "" {
		cfg.Logging.JSON = opts.LogJSON
	}
	if opts.NoRedact {
		cfg.Logging.NoRedact = true
	}
	if opts.Host {
		cfg.Runner.Backend = pdkmodel.RunnerHost
	}
}

func buildResolver(cfg pdkmodel.Configuration, pipeline pdkmodel.Pipeline, opts *Options, masker *variables.Masker, version string) (*variables.Resolver, error) {
	fileVars, err := loadVarFile(opts.VarFile)
	if err != nil {
		return nil, fmt.Errorf("loading --var-file: %w", err)
	}
	cliOverrides, err := parseKeyValuePairs(opts.Vars)
	if err != nil {
		return nil, fmt.Errorf("parsing --var: %w", err)
	}
	secretOverrides, err := parseKeyValuePairs(opts.Secrets)
	if err != nil {
		return nil, fmt.Errorf("parsing --secret: %w", err)
	}

	cli := mergeStringMaps(mergeStringMaps(fileVars, cliOverrides), secretOverrides)
	config := mergeStringMaps(pipeline.Vars, cfg.Variables)

	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}
	builtins := variables.Builtins{
		PDKVersion: version,
		Workspace:  wd,
		Runner:     string(cfg.Runner.Backend),
	}

	return variables.NewResolver(cli, variables.EnvSnapshot(), config, builtins, masker), nil
}

func buildFilter(cfg pdkmodel.Configuration, opts *Options) (*filter.Filter, error) {
	f := &filter.Filter{
		IncludeNames:   opts.Steps,
		SkipNames:      opts.SkipSteps,
		IncludeJobs:    opts.Jobs,
		FuzzyThreshold: cfg.StepFiltering.FuzzyThreshold,
	}
	if opts.StepIndex != "" {
		idx, err := filter.ParseIndexSpec(opts.StepIndex)
		if err != nil {
			return nil, err
		}
		f.IncludeIndexes = idx
	}
	if opts.StepRange != "" {
		r, err := filter.ParseNameRange(opts.StepRange)
		if err != nil {
			return nil, err
		}
		f.IncludeRanges = []filter.NameRange{r}
	}
	return f, nil
}

func (rt *runtime) previewFilter() error {
	verdicts := filter.Preview(rt.pipeline, rt.filter)
	for _, v := range verdicts {
		fmt.Printf("%-10s %-20s step %-3d %-18s %s\n", v.JobName, v.StepName, v.StepIndex, v.Verdict, v.Reason)
	}
	return nil
}

func (rt *runtime) dryRun() error {
	result := validate.Validate(rt.pipeline, rt.cfg, rt.resolver)

	if rt.opts.DryRunJSONPath != "" {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling dry-run plan: %w", err)
		}
		if err := os.WriteFile(rt.opts.DryRunJSONPath, data, 0o644); err != nil {
			return fmt.Errorf("writing dry-run plan: %w", err)
		}
	} else {
		for _, job := range result.Plan.Jobs {
			fmt.Printf("job %s (image %s)\n", job.Name, job.Image)
			for _, step := range job.Steps {
				fmt.Printf("  - %s [%s]\n", step.Name, step.Executor)
			}
		}
	}

	for _, e := range result.Errors {
		fmt.Fprintln(os.Stderr, e.Error())
	}
	if !result.Valid() {
		return fmt.Errorf("%d validation error(s)", len(result.Errors))
	}
	return nil
}

func (rt *runtime) singleRun() error {
	filtered, skipped, err := rt.filteredPipeline()
	if err != nil {
		return err
	}
	for _, s := range skipped {
		fmt.Printf("skip: job %s step %s: %s\n", s.JobName, s.StepName, s.Reason)
	}

	if rt.opts.Confirm {
		ok, err := rt.confirmRun()
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("run cancelled")
		}
	}

	engine, err := rt.buildEngine()
	if err != nil {
		return err
	}

	runID := pdklog.NewCorrelationID()
	result, err := engine.RunPipeline(rt.ctx, runID, filtered)
	if err != nil {
		return err
	}
	for _, jr := range result.Jobs {
		status := "ok"
		if !jr.Success {
			status = "FAILED: " + jr.Error
		}
		fmt.Printf("job %s: %s\n", jr.JobName, status)
	}
	if !result.Success {
		return fmt.Errorf("pipeline failed")
	}
	return nil
}

func (rt *runtime) watchRun() error {
	roots := []string{filepath.Dir(rt.opts.File)}
	loopLogger := rt.logger
	run := func(ctx context.Context) (bool, error) {
		if rt.opts.WatchClear {
			fmt.Print("\033[H\033[2J")
		}
		inner := *rt
		inner.ctx = ctx
		if err := inner.singleRun(); err != nil {
			loopLogger.Warn("watch-triggered run failed", map[string]interface{}{"error": err.Error()})
			return false, nil
		}
		return true, nil
	}

	loop := newWatchLoop(roots, rt.opts, loopLogger, run)
	summary, err := loop.Start(rt.ctx)
	if err != nil {
		return err
	}
	fmt.Printf("watch summary: %d runs, %d successes, %d failures, %s elapsed\n",
		summary.TotalRuns, summary.Successes, summary.Failures, summary.WallTime)
	return nil
}

func (rt *runtime) filteredPipeline() (pdkmodel.Pipeline, []filter.SkippedStep, error) {
	requireDeps := rt.opts.IncludeDependencies || rt.cfg.Features.RequireDependencies
	filtered, skipped := filter.Apply(rt.pipeline, rt.filter, requireDeps)
	if !requireDeps {
		for _, v := range filter.Preview(rt.pipeline, rt.filter) {
			if v.Verdict == filter.VerdictDependencyDropped {
				rt.logger.Warn("step runs although a job it depends on has no included steps", map[string]interface{}{"job": v.JobName, "step": v.StepName})
			}
		}
	}
	return filtered, skipped, nil
}

func (rt *runtime) confirmRun() (bool, error) {
	verdicts := filter.Preview(rt.pipeline, rt.filter)
	fmt.Println("the following steps will run:")
	for _, v := range verdicts {
		if v.Verdict == filter.VerdictIncluded {
			fmt.Printf("  %s / %s\n", v.JobName, v.StepName)
		}
	}
	fmt.Print("proceed? [y/N] ")
	var answer string
	fmt.Scanln(&answer)
	return answer == "y" || answer == "Y", nil
}

func (rt *runtime) buildEngine() (*orchestrator.Engine, error) {
	fs := afero.NewOsFs()
	store := artifact.NewStore(fs, rt.cfg.Artifacts.Root, artifactLogAdapter{rt.logger})

	if _, err := store.Sweep(rt.ctx, rt.cfg.Artifacts.RetentionDays); err != nil {
		rt.logger.Warn("artifact retention sweep failed", map[string]interface{}{"error": err.Error()})
	}

	factory := orchestrator.NewBackendFactory(rt.cfg.Performance.ContainerReuse)
	bridge := &artifact.StepBridge{
		Store: store,
		Backend: func(kind pdkmodel.Backend) substrate.Backend {
			if kind == pdkmodel.BackendHost {
				return factory.Host()
			}
			backend, err := factory.Docker()
			if err != nil {
				return factory.Host()
			}
			return backend
		},
	}

	workspace := filepath.Join(os.TempDir(), "pdk-workspaces")
	engine := orchestrator.NewEngine(rt.cfg, factory, bridge, rt.resolver, rt.logger, workspace)
	engine.KeepContainers = rt.opts.KeepContainers
	return engine, nil
}
