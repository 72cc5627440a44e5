package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/pipelinedk/pdk/pkg/pdkmodel"
)

var dotnetCommands = map[string]bool{
	"restore": true, "build": true, "test": true, "publish": true,
	"run": true, "pack": true, "clean": true,
}

type dotnetExecutor struct{ deps Deps }

func (e *dotnetExecutor) Kind() pdkmodel.StepKind { return pdkmodel.KindDotnet }

// Execute implements the Dotnet contract: build
// `dotnet <command> [<projects>] [--configuration X] [--output Y] [arguments]`.
func (e *dotnetExecutor) Execute(ctx context.Context, step pdkmodel.Step, ec pdkmodel.ExecContext) pdkmodel.StepResult {
	start := time.Now()
	p, err := prepareExec(e.deps, step, ec)
	if err != nil {
		return failResult(step.Name, start, err.Error())
	}

	command := p.With["command"]
	if command == "" {
		return failResult(step.Name, start, "dotnet step requires a \"command\" input")
	}
	if !dotnetCommands[command] {
		return failResult(step.Name, start, fmt.Sprintf("unsupported dotnet command %q", command))
	}

	parts := []string{"dotnet", command}
	if projects := p.With["projects"]; projects != "" {
		parts = append(parts, projects)
	}
	if configuration := p.With["configuration"]; configuration != "" {
		parts = append(parts, "--configuration", configuration)
	}
	if outputPath := p.With["outputPath"]; outputPath != "" {
		parts = append(parts, "--output", outputPath)
	}
	if arguments := p.With["arguments"]; arguments != "" {
		parts = append(parts, arguments)
	}

	res := runCommand(ctx, e.deps, step, ec, p, joinArgs(parts))
	return withToolNotFoundIfMissing(res, "dotnet", ec)
}

func joinArgs(parts []string) string {
	return joinNonEmpty(" ", parts...)
}
