package runtime

import (
	"bytes"
	"os/exec"
)

// execResult carries a finished process back to the tick thread.
type execResult struct {
	exitCode int
	output   string
	errText  string
}

func runCommand(command string, args []string) execResult {
	cmd := exec.Command(command, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	result := execResult{exitCode: -1}
	if err := cmd.Run(); err != nil {
		if cmd.ProcessState != nil {
			result.exitCode = cmd.ProcessState.ExitCode()
		}
		if stderr.Len() == 0 {
			result.errText = err.Error()
		}
	} else {
		result.exitCode = cmd.ProcessState.ExitCode()
	}

	result.output = stdout.String()
	if result.errText == "" {
		result.errText = stderr.String()
	}
	return result
}

// Exec spawns a process on the executor and returns a promise that
// resolves, on a later tick, with { exitCode, output, error }.
func (r *Runtime) Exec(command string, args []string) *Promise {
	promise := NewPromise(r.reportContinuationError)

	r.executor.Post("exec "+command, func() func() {
		result := runCommand(command, args)
		return func() {
			obj := r.vm.NewObject()
			obj.Set("exitCode", result.exitCode)
			obj.Set("output", result.output)
			obj.Set("error", result.errText)
			promise.Resolve(obj)
		}
	})

	return promise
}
