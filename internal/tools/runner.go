package tools

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"

	"golang.org/x/crypto/ssh"
)

// Result is the captured outcome of one command.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int32
}

// Runner executes commands for service adapters. Cancelling ctx terminates
// the command.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Result, error)
	Stream(ctx context.Context, name string, args []string, stdout, stderr io.Writer) error
}

// LocalRunner executes commands on the local host.
type LocalRunner struct {
	Dir string
	Env []string
}

func (r LocalRunner) command(ctx context.Context, name string, args []string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = r.Dir
	if len(r.Env) > 0 {
		cmd.Env = append(cmd.Environ(), r.Env...)
	}
	return cmd
}

func (r LocalRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	cmd := r.command(ctx, name, args)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: ExitCode(err),
	}, err
}

func (r LocalRunner) Stream(ctx context.Context, name string, args []string, stdout, stderr io.Writer) error {
	cmd := r.command(ctx, name, args)
	if stdout != nil {
		cmd.Stdout = stdout
	}
	if stderr != nil {
		cmd.Stderr = stderr
	}
	return cmd.Run()
}

// ExitCode maps a runner error to a process exit status: 0 on success, 127
// when the binary cannot be found, 1 when no status is known.
func ExitCode(err error) int32 {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return int32(exitErr.ExitCode())
	}
	var sshErr *ssh.ExitError
	if errors.As(err, &sshErr) {
		return int32(sshErr.ExitStatus())
	}
	var execErr *exec.Error
	if errors.As(err, &execErr) {
		return 127
	}
	return 1
}
