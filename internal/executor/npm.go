package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/pipelinedk/pdk/pkg/pdkmodel"
)

var npmCommands = map[string]bool{
	"install": true, "ci": true, "build": true, "test": true,
	"start": true, "publish": true, "run": true,
}

type npmExecutor struct{ deps Deps }

func (e *npmExecutor) Kind() pdkmodel.StepKind { return pdkmodel.KindNpm }

// Execute implements the Npm contract.
func (e *npmExecutor) Execute(ctx context.Context, step pdkmodel.Step, ec pdkmodel.ExecContext) pdkmodel.StepResult {
	start := time.Now()
	p, err := prepareExec(e.deps, step, ec)
	if err != nil {
		return failResult(step.Name, start, err.Error())
	}

	command := p.With["command"]
	if command == "" {
		command = "install"
	}
	if !npmCommands[command] {
		return failResult(step.Name, start, fmt.Sprintf("unsupported npm command %q", command))
	}

	var parts []string
	switch command {
	case "build":
		parts = []string{"npm", "run", "build"}
	case "test":
		parts = []string{"npm", "test"}
	case "run":
		script := p.With["script"]
		if script == "" {
			return failResult(step.Name, start, "npm run requires a \"script\" input")
		}
		parts = []string{"npm", "run", script}
		if arguments := p.With["arguments"]; arguments != "" {
			parts = append(parts, "--", arguments)
		}
		res := runCommand(ctx, e.deps, step, ec, p, joinArgs(parts))
		return withToolNotFoundIfMissing(res, "npm (or node)", ec)
	default:
		parts = []string{"npm", command}
	}

	if arguments := p.With["arguments"]; arguments != "" {
		parts = append(parts, arguments)
	}

	res := runCommand(ctx, e.deps, step, ec, p, joinArgs(parts))
	return withToolNotFoundIfMissing(res, "npm (or node)", ec)
}
