// Package runtime executes the side effects of a deployment: docker compose
// invocations in docker mode and detached processes in local mode.
//
// Every external command produces a Result value; a non-zero exit is reported
// there rather than as an error.
package runtime

import (
	"fmt"
	"strings"
	"time"
)

// Result is the outcome of a single command execution.
type Result struct {
	Step     string
	Command  []string
	ExitCode int
	Output   string
	Duration time.Duration
	Err      error
}

// OK reports whether the command ran and exited zero.
func (r Result) OK() bool {
	return r.Err == nil && r.ExitCode == 0
}

// Failure returns an error describing a failed result, or nil if it succeeded.
// The last few lines of output are included for diagnostics.
func (r Result) Failure() error {
	if r.OK() {
		return nil
	}
	msg := fmt.Sprintf("%s failed", r.Step)
	if len(r.Command) > 0 {
		msg = fmt.Sprintf("%s: %s exited %d", msg, strings.Join(r.Command, " "), r.ExitCode)
	}
	if out := lastLines(r.Output, 5); out != "" {
		msg += "\n" + out
	}
	if r.Err != nil {
		return fmt.Errorf("%s: %w", msg, r.Err)
	}
	return fmt.Errorf("%s", msg)
}

func lastLines(s string, n int) string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

// ServiceStatus is the observed state of one running (or exited) service.
type ServiceStatus struct {
	Service string `json:"service" yaml:"service"`
	State   string `json:"state" yaml:"state"`
	Detail  string `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// Running reports whether the service is up.
func (s ServiceStatus) Running() bool {
	return s.State == StateRunning
}

// Observed service states.
const (
	StateRunning = "running"
	StateExited  = "exited"
)

// MissingToolError reports a required external tool that could not be found.
type MissingToolError struct {
	Tool string
	Hint string
	Err  error
}

func (e *MissingToolError) Error() string {
	msg := e.Tool + " is not available"
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Hint != "" {
		msg += " (" + e.Hint + ")"
	}
	return msg
}

func (e *MissingToolError) Unwrap() error {
	return e.Err
}
