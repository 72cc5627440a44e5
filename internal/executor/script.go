package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pipelinedk/pdk/pkg/pdkmodel"
)

type scriptExecutor struct{ deps Deps }

func (e *scriptExecutor) Kind() pdkmodel.StepKind { return pdkmodel.KindScript }

// Execute implements the Script contract. Single-line bodies run
// directly through the shell's `-c`; multi-line bodies are written to a
// temporary file in the sandbox, made executable, invoked by path, and
// removed afterward on every exit path. `pwsh`/`powershell` are rejected:
// there is no dedicated PowerShell executor in this registry.
func (e *scriptExecutor) Execute(ctx context.Context, step pdkmodel.Step, ec pdkmodel.ExecContext) pdkmodel.StepResult {
	start := time.Now()

	if step.Shell == pdkmodel.ShellPwsh || step.Shell == pdkmodel.ShellPowerShell {
		return pdkmodel.StepResult{
			Name:      step.Name,
			Success:   false,
			ExitCode:  pdkmodel.PreExecFailure,
			Stderr:    fmt.Sprintf("unsupported shell %q: the script executor only runs bash/sh", step.Shell),
			StartedAt: start,
			EndedAt:   time.Now(),
		}
	}

	p, err := prepareExec(e.deps, step, ec)
	if err != nil {
		return failResult(step.Name, start, err.Error())
	}

	script, err := expandScript(e.deps, step)
	if err != nil {
		return failResult(step.Name, start, err.Error())
	}
	if script == "" {
		return failResult(step.Name, start, "script step has an empty script body")
	}

	shell := string(step.Shell)
	if shell == "" {
		shell = string(pdkmodel.ShellBash)
	}

	if !isMultiline(script) {
		return runCommand(ctx, e.deps, step, ec, p, shell+" -c "+shellQuote(script))
	}

	scriptPath := fmt.Sprintf("%s/pdk-script-%s.sh", p.WorkDir, uuid.NewString())
	command := fmt.Sprintf(
		"cat > %s <<'PDK_SCRIPT_EOF'\n%s\nPDK_SCRIPT_EOF\nchmod +x %s\n%s %s\nrv=$?\nrm -f %s\nexit $rv",
		scriptPath, script, scriptPath, shell, scriptPath, scriptPath,
	)
	return runCommand(ctx, e.deps, step, ec, p, command)
}

func isMultiline(s string) bool {
	for _, r := range s {
		if r == '\n' {
			return true
		}
	}
	return false
}

// shellQuote wraps s in single quotes, escaping any embedded single quote
// the POSIX-shell way: close, escaped quote, reopen.
func shellQuote(s string) string {
	out := "'"
	for _, r := range s {
		if r == '\'' {
			out += `'\''`
		} else {
			out += string(r)
		}
	}
	return out + "'"
}
