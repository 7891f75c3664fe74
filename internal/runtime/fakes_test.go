package runtime

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"syscall"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"
)

// fakeExecutor records commands and answers them from a table keyed by the
// joined command line prefix.
type fakeExecutor struct {
	commands []Command
	results  map[string]Result
	paths    map[string]bool
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{
		results: make(map[string]Result),
		paths:   map[string]bool{"docker": true, "python3": true},
	}
}

func (f *fakeExecutor) Run(_ context.Context, c Command) Result {
	f.commands = append(f.commands, c)
	line := strings.Join(c.Argv(), " ")
	for prefix, res := range f.results {
		if strings.HasPrefix(line, prefix) {
			res.Step = c.Step
			res.Command = c.Argv()
			return res
		}
	}
	return Result{Step: c.Step, Command: c.Argv()}
}

func (f *fakeExecutor) LookPath(name string) (string, error) {
	if f.paths[name] {
		return "/usr/bin/" + name, nil
	}
	return "", errors.New("executable file not found in $PATH")
}

func (f *fakeExecutor) lines() []string {
	var out []string
	for _, c := range f.commands {
		out = append(out, strings.Join(c.Argv(), " "))
	}
	return out
}

// fakeContainerAPI serves a fixed container list and per-container logs.
type fakeContainerAPI struct {
	pingErr    error
	containers []container.Summary
	logs       map[string]string
	lastList   container.ListOptions
	lastLogs   container.LogsOptions
}

func (f *fakeContainerAPI) Ping(context.Context) (types.Ping, error) {
	return types.Ping{}, f.pingErr
}

func (f *fakeContainerAPI) ContainerList(_ context.Context, options container.ListOptions) ([]container.Summary, error) {
	f.lastList = options
	var out []container.Summary
	for _, c := range f.containers {
		match := true
		for _, label := range options.Filters.Get("label") {
			k, v, _ := strings.Cut(label, "=")
			if c.Labels[k] != v {
				match = false
			}
		}
		if match {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeContainerAPI) ContainerLogs(_ context.Context, id string, options container.LogsOptions) (io.ReadCloser, error) {
	f.lastLogs = options
	var buf bytes.Buffer
	w := stdcopy.NewStdWriter(&buf, stdcopy.Stdout)
	_, _ = w.Write([]byte(f.logs[id]))
	return io.NopCloser(&buf), nil
}

func (f *fakeContainerAPI) Close() error { return nil }

// fakeProcesses stands in for process spawning and signalling. Processes
// exit on SIGTERM unless listed in ignoreTerm, and on SIGKILL unless listed
// in unkillable.
type fakeProcesses struct {
	next       int
	alive      map[int]bool
	ignoreTerm map[int]bool
	unkillable map[int]bool
	spawned    []Process
	signals    []syscall.Signal
}

func newFakeProcesses() *fakeProcesses {
	return &fakeProcesses{
		next:       1000,
		alive:      make(map[int]bool),
		ignoreTerm: make(map[int]bool),
		unkillable: make(map[int]bool),
	}
}

func (f *fakeProcesses) spawn(p Process) (int, error) {
	f.next++
	f.alive[f.next] = true
	f.spawned = append(f.spawned, p)
	return f.next, nil
}

func (f *fakeProcesses) signal(pid int, sig syscall.Signal) error {
	if pid < 0 {
		pid = -pid
	}
	if !f.alive[pid] {
		return syscall.ESRCH
	}
	if sig != 0 {
		f.signals = append(f.signals, sig)
	}
	switch {
	case sig == syscall.SIGTERM && !f.ignoreTerm[pid]:
		f.alive[pid] = false
	case sig == syscall.SIGKILL && !f.unkillable[pid]:
		f.alive[pid] = false
	}
	return nil
}
