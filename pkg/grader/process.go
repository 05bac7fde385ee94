package grader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ProcessRunner spawns the grading script directly on the host.
type ProcessRunner struct {
	Interpreter string
	Script      string
	Dir         string
	// WaitDelay bounds how long pipes are drained after the process is killed.
	WaitDelay time.Duration
}

// Args builds the argument vector passed to the interpreter.
func (r ProcessRunner) Args(inv Invocation) []string {
	args := make([]string, 0, 3)
	if r.Script != "" {
		args = append(args, r.Script)
	}
	return append(args, strings.Join(inv.Files, ","), inv.AnswerKey)
}

// Run executes the grader and waits for it to exit or for ctx to end.
func (r ProcessRunner) Run(ctx context.Context, inv Invocation) (Output, error) {
	interpreter := r.Interpreter
	if interpreter == "" {
		interpreter = "python3"
	}

	cmd := exec.CommandContext(ctx, interpreter, r.Args(inv)...)
	cmd.Dir = r.Dir
	cmd.WaitDelay = r.WaitDelay
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = 5 * time.Second
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	output := Output{Stdout: stdout.String(), Stderr: stderr.String()}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		output.TimedOut = true
		output.ExitCode = -1
		return output, nil
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			output.ExitCode = exitErr.ExitCode()
			return output, nil
		}
		return output, fmt.Errorf("start grader: %w", err)
	}

	return output, nil
}
