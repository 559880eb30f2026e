// Package extproc runs the external client tools (schema dump, SQL shell,
// create/drop database) without going through a shell.
package extproc

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"

	"github.com/lance6716/plan-replayer/pkg/util"
	"github.com/pingcap/errors"
	"go.uber.org/zap"
)

// Command is one invocation of an external tool.
type Command struct {
	Name string
	Args []string
	// Env is appended to the environment of the current process.
	Env []string
}

func (c Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Result is the outcome of a finished Command.
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

// Runner executes Commands. A non-zero exit code is reported in Result, the
// returned error is only for commands that could not run at all.
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// ExecRunner is the Runner backed by os/exec.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, cmd Command) (*Result, error) {
	path, err := exec.LookPath(cmd.Name)
	if err != nil {
		return nil, util.WrapKind(util.KindMissingExternalTool, errors.Annotatef(err, "tool %s", cmd.Name))
	}
	c := exec.CommandContext(ctx, path, cmd.Args...)
	c.Env = append(os.Environ(), cmd.Env...)
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	util.Logger.Debug("run external tool", zap.Stringer("command", cmd))
	err = c.Run()
	res := &Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return nil, errors.Annotatef(err, "run %s", cmd.Name)
	}
	return res, nil
}

// RunExpect runs cmd and requires it to exit with expectedExitCode. Otherwise
// the error is of KindSubprocessFailure and carries the captured stderr.
func RunExpect(ctx context.Context, r Runner, cmd Command, expectedExitCode int) (*Result, error) {
	res, err := r.Run(ctx, cmd)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if res.ExitCode != expectedExitCode {
		return res, util.WrapKind(util.KindSubprocessFailure, errors.Errorf(
			"%s exited with code %d, expected %d, stderr: %s",
			cmd.Name, res.ExitCode, expectedExitCode, strings.TrimSpace(string(res.Stderr)),
		))
	}
	return res, nil
}

// CheckTools makes sure all the named tools are in PATH.
func CheckTools(names ...string) error {
	for _, name := range names {
		if _, err := exec.LookPath(name); err != nil {
			return util.WrapKind(util.KindMissingExternalTool, errors.Annotatef(err, "tool %s", name))
		}
	}
	return nil
}
