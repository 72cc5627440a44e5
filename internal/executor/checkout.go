package executor

import (
	"context"
	"time"

	"github.com/pipelinedk/pdk/pkg/pdkerrors"
	"github.com/pipelinedk/pdk/pkg/pdkmodel"
)

const commandNotFoundExitCode = 127

type checkoutExecutor struct{ deps Deps }

func (e *checkoutExecutor) Kind() pdkmodel.StepKind { return pdkmodel.KindCheckout }

// Execute implements the Checkout contract: `self`/absent repo
// verifies an existing git tree; otherwise clone-or-pull, then checkout a
// ref/branch/tag if one was given.
func (e *checkoutExecutor) Execute(ctx context.Context, step pdkmodel.Step, ec pdkmodel.ExecContext) pdkmodel.StepResult {
	start := time.Now()
	p, err := prepareExec(e.deps, step, ec)
	if err != nil {
		return failResult(step.Name, start, err.Error())
	}

	repo := p.With["repository"]
	ref := firstNonEmpty(p.With["ref"], p.With["branch"], p.With["tag"])

	if repo == "" || repo == "self" {
		res := runCommand(ctx, e.deps, step, ec, p, "git rev-parse --is-inside-work-tree")
		if !res.Success {
			return withToolNotFoundIfMissing(res, "git", ec)
		}
		if ref != "" {
			return runCommand(ctx, e.deps, step, ec, p, "git checkout "+ref)
		}
		return res
	}

	hasTree := runCommand(ctx, e.deps, step, ec, p, "test -d .git")
	var op pdkmodel.StepResult
	if hasTree.Success {
		op = runCommand(ctx, e.deps, step, ec, p, "git pull")
	} else {
		op = runCommand(ctx, e.deps, step, ec, p, "git clone "+repo+" .")
	}
	if !op.Success {
		return withToolNotFoundIfMissing(op, "git", ec)
	}

	if ref != "" {
		return runCommand(ctx, e.deps, step, ec, p, "git checkout "+ref)
	}
	return op
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// withToolNotFoundIfMissing re-labels a failed result as ToolNotFound when
// the shell's own "command not found" exit code (127) indicates the tool
// itself is absent, rather than the git sub-operation failing on its own
// terms.
func withToolNotFoundIfMissing(res pdkmodel.StepResult, tool string, ec pdkmodel.ExecContext) pdkmodel.StepResult {
	if res.ExitCode != commandNotFoundExitCode {
		return res
	}
	where := string(ec.Backend)
	toolErr := pdkerrors.ToolNotFoundError(tool, where, "install "+tool+" in the runner image, or switch to a runner/host image that provides it")
	res.Stderr = toolErr.Error() + "\n" + res.Stderr
	return res
}
