package grader

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	dockerexec "github.com/noah-isme/edumark-api/pkg/docker"
)

// ContainerRunner runs the grading script inside a container image that ships
// the script and its model dependencies. Input files are copied into a
// private workspace that is mounted read-only.
type ContainerRunner struct {
	Executor    dockerexec.Executor
	Image       string
	Interpreter string
	Script      string
	WorkingDir  string
	ScratchDir  string
	MemoryMB    int64
	CPUShares   int64
}

// Run stages the inputs and executes the container.
func (r ContainerRunner) Run(ctx context.Context, inv Invocation) (Output, error) {
	workspace, err := os.MkdirTemp(r.ScratchDir, "grader-")
	if err != nil {
		return Output{}, fmt.Errorf("create grader workspace: %w", err)
	}
	defer os.RemoveAll(workspace)

	workingDir := r.WorkingDir
	if workingDir == "" {
		workingDir = "/workspace"
	}

	staged := make([]string, 0, len(inv.Files))
	for index, file := range inv.Files {
		name := fmt.Sprintf("%03d%s", index, strings.ToLower(filepath.Ext(file)))
		if err := copyFile(file, filepath.Join(workspace, name)); err != nil {
			return Output{}, fmt.Errorf("stage %s: %w", file, err)
		}
		staged = append(staged, path.Join(workingDir, name))
	}

	interpreter := r.Interpreter
	if interpreter == "" {
		interpreter = "python3"
	}
	cmd := ProcessRunner{Interpreter: interpreter, Script: r.Script}.Args(Invocation{Files: staged, AnswerKey: inv.AnswerKey})

	result, err := r.Executor.Run(ctx, dockerexec.ExecutionRequest{
		Image:         r.Image,
		Cmd:           append([]string{interpreter}, cmd...),
		Workspace:     workspace,
		MemoryLimitMB: r.MemoryMB,
		CPUShares:     r.CPUShares,
	})

	output := Output{
		Stdout:   result.Stdout,
		Stderr:   result.Stderr,
		ExitCode: result.ExitCode,
		TimedOut: result.TimedOut,
	}
	return output, err
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}

	return out.Close()
}
