package runtime

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"cvectl/pkg/logging"
)

// Command describes one external command to run to completion.
type Command struct {
	Step string
	Dir  string
	Name string
	Args []string
	Env  []string // Appended to the current environment

	// Stream, if set, receives output while the command runs.
	Stream io.Writer
}

// Argv returns the command line as a slice.
func (c Command) Argv() []string {
	return append([]string{c.Name}, c.Args...)
}

// Executor runs external commands. Tests replace it with a fake.
type Executor interface {
	Run(ctx context.Context, c Command) Result
	LookPath(name string) (string, error)
}

// ExecExecutor runs commands with os/exec.
type ExecExecutor struct{}

// Run executes c and collects its combined output. Cancelling ctx kills the
// process.
func (ExecExecutor) Run(ctx context.Context, c Command) Result {
	logging.Debug("Exec", "Running %s", strings.Join(c.Argv(), " "))
	start := time.Now()

	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}

	var buf bytes.Buffer
	var out io.Writer = &buf
	if c.Stream != nil {
		out = io.MultiWriter(&buf, c.Stream)
	}
	cmd.Stdout = out
	cmd.Stderr = out

	err := cmd.Run()
	res := Result{
		Step:     c.Step,
		Command:  c.Argv(),
		Output:   buf.String(),
		Duration: time.Since(start),
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		} else {
			res.ExitCode = -1
			res.Err = err
		}
		if ctx.Err() != nil {
			res.Err = ctx.Err()
		}
	}

	logging.Debug("Exec", "%s finished in %s (exit %d)", c.Step, res.Duration.Round(time.Millisecond), res.ExitCode)
	return res
}

// LookPath searches PATH for name.
func (ExecExecutor) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}
