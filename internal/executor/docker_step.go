package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/pipelinedk/pdk/pkg/pdkmodel"
)

var dockerCommands = map[string]bool{"build": true, "tag": true, "run": true, "push": true}

type dockerExecutor struct{ deps Deps }

func (e *dockerExecutor) Kind() pdkmodel.StepKind { return pdkmodel.KindDocker }

// Execute implements the Docker contract for build/tag/run/push.
func (e *dockerExecutor) Execute(ctx context.Context, step pdkmodel.Step, ec pdkmodel.ExecContext) pdkmodel.StepResult {
	start := time.Now()
	p, err := prepareExec(e.deps, step, ec)
	if err != nil {
		return failResult(step.Name, start, err.Error())
	}

	command := p.With["command"]
	if !dockerCommands[command] {
		return failResult(step.Name, start, fmt.Sprintf("unsupported docker command %q", command))
	}

	var parts []string
	switch command {
	case "build":
		dockerfile := p.With["dockerfile"]
		if dockerfile == "" {
			dockerfile = "Dockerfile"
		}
		ctxDir := p.With["context"]
		if ctxDir == "" {
			ctxDir = "."
		}
		parts = []string{"docker", "build", "-f", dockerfile}
		for _, tag := range splitCSV(p.With["tags"]) {
			parts = append(parts, "-t", tag)
		}
		for _, arg := range splitCSV(p.With["buildArgs"]) {
			parts = append(parts, "--build-arg", arg)
		}
		if target := p.With["target"]; target != "" {
			parts = append(parts, "--target", target)
		}
		parts = append(parts, ctxDir)

	case "tag":
		source, target := p.With["sourceImage"], p.With["targetTag"]
		if source == "" || target == "" {
			return failResult(step.Name, start, "docker tag requires \"sourceImage\" and \"targetTag\" inputs")
		}
		parts = []string{"docker", "tag", source, target}

	case "run", "push":
		image := p.With["image"]
		if image == "" {
			return failResult(step.Name, start, fmt.Sprintf("docker %s requires an \"image\" input", command))
		}
		parts = []string{"docker", command, image}
	}

	res := runCommand(ctx, e.deps, step, ec, p, joinArgs(parts))
	return withToolNotFoundIfMissing(res, "docker", ec)
}
