package runtime

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"cvectl/internal/config"
	"cvectl/internal/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocal(t *testing.T) (*LocalRuntime, *fakeExecutor, *fakeProcesses) {
	t.Helper()
	exec := newFakeExecutor()
	procs := newFakeProcesses()
	l := NewLocal(exec, config.Defaults(), t.TempDir())
	l.spawn = procs.spawn
	l.signal = procs.signal
	l.stopTimeout = 50 * time.Millisecond
	l.pollInterval = 5 * time.Millisecond
	return l, exec, procs
}

func TestLocalRuntime_StartStopIsIdempotent(t *testing.T) {
	ctx := context.Background()
	l, _, procs := newTestLocal(t)
	group := bindDefault(t, l.cfg)
	require.NoError(t, l.Prepare(ctx, group))

	res := l.Start(ctx, group)
	require.True(t, res.OK(), res.Output)
	assert.Len(t, procs.spawned, 3)

	// Running services are not spawned twice.
	res = l.Start(ctx, group)
	require.True(t, res.OK())
	assert.Len(t, procs.spawned, 3)
	assert.Contains(t, res.Output, "api already running")

	status, err := l.Status(ctx)
	require.NoError(t, err)
	require.Len(t, status, 3)
	for _, st := range status {
		assert.True(t, st.Running(), st.Service)
	}

	require.True(t, l.Stop(ctx).OK())
	require.True(t, l.Stop(ctx).OK())

	// Stopped services stay listed until the state is removed.
	status, err = l.Status(ctx)
	require.NoError(t, err)
	require.Len(t, status, 3)
	for _, st := range status {
		assert.Equal(t, StateExited, st.State, st.Service)
	}

	require.True(t, l.RemoveVolumes(ctx).OK())
	status, err = l.Status(ctx)
	require.NoError(t, err)
	assert.Empty(t, status)

	// Starting again after a stop spawns fresh processes.
	require.True(t, l.Start(ctx, group).OK())
	assert.Len(t, procs.spawned, 6)
}

func TestLocalRuntime_StopKillsAfterGracePeriod(t *testing.T) {
	ctx := context.Background()
	l, _, procs := newTestLocal(t)
	api, err := registry.Default().Lookup(registry.ServiceAPI, l.cfg)
	require.NoError(t, err)

	require.True(t, l.Start(ctx, []registry.Binding{api}).OK())
	pid, ok := l.readPid("api")
	require.True(t, ok)
	procs.ignoreTerm[pid] = true

	res := l.Stop(ctx)

	require.True(t, res.OK(), res.Output)
	assert.Equal(t, []syscall.Signal{syscall.SIGTERM, syscall.SIGKILL}, procs.signals)
	assert.False(t, procs.alive[pid])
	assert.FileExists(t, l.pidPath("api"))
}

func TestLocalRuntime_StopReportsSurvivors(t *testing.T) {
	ctx := context.Background()
	l, _, procs := newTestLocal(t)
	api, err := registry.Default().Lookup(registry.ServiceAPI, l.cfg)
	require.NoError(t, err)

	require.True(t, l.Start(ctx, []registry.Binding{api}).OK())
	pid, _ := l.readPid("api")
	procs.ignoreTerm[pid] = true
	procs.unkillable[pid] = true

	res := l.Stop(ctx)

	assert.False(t, res.OK())
	require.Error(t, res.Failure())
	assert.Contains(t, res.Failure().Error(), "still running")

	// The survivor is still tracked.
	status, err := l.Status(ctx)
	require.NoError(t, err)
	require.Len(t, status, 1)
	assert.True(t, status[0].Running())
}

func TestLocalRuntime_StopCancelledStillKills(t *testing.T) {
	l, _, procs := newTestLocal(t)
	l.stopTimeout = time.Hour
	api, err := registry.Default().Lookup(registry.ServiceAPI, l.cfg)
	require.NoError(t, err)

	require.True(t, l.Start(context.Background(), []registry.Binding{api}).OK())
	pid, _ := l.readPid("api")
	procs.ignoreTerm[pid] = true

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := l.Stop(ctx)

	assert.True(t, res.OK())
	assert.Equal(t, []syscall.Signal{syscall.SIGTERM, syscall.SIGKILL}, procs.signals)
}

func TestLocalRuntime_SpawnEnvironment(t *testing.T) {
	ctx := context.Background()
	l, _, procs := newTestLocal(t)
	ui, err := registry.Default().Lookup(registry.ServiceUI, l.cfg)
	require.NoError(t, err)

	require.True(t, l.Start(ctx, []registry.Binding{ui}).OK())
	require.Len(t, procs.spawned, 1)

	p := procs.spawned[0]
	assert.Equal(t, ui.LocalArgs, p.Args)
	assert.Equal(t, filepath.Join(l.projectDir, "logs", "ui.log"), p.LogPath)
	// Host overrides come after the container values so they win.
	assert.Equal(t, "API_URL=http://localhost:8000", lastWith(p.Env, "API_URL="))
	assert.Equal(t, "DATA_DIR="+filepath.Join(l.projectDir, "cve_data"), lastWith(p.Env, "DATA_DIR="))
}

func lastWith(env []string, prefix string) string {
	var out string
	for _, kv := range env {
		if strings.HasPrefix(kv, prefix) {
			out = kv
		}
	}
	return out
}

func TestLocalRuntime_StopWithoutState(t *testing.T) {
	l, _, _ := newTestLocal(t)

	res := l.Stop(context.Background())
	assert.True(t, res.OK())
}

func TestLocalRuntime_StaleProcessReportedExited(t *testing.T) {
	ctx := context.Background()
	l, _, _ := newTestLocal(t)
	require.NoError(t, l.writePid("api", 4242))

	status, err := l.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, []ServiceStatus{{Service: "api", State: StateExited, Detail: "pid 4242"}}, status)

	assert.True(t, l.Stop(ctx).OK())
	assert.FileExists(t, l.pidPath("api"))

	assert.True(t, l.RemoveVolumes(ctx).OK())
	assert.NoFileExists(t, l.pidPath("api"))
}

func TestLocalRuntime_Build(t *testing.T) {
	ctx := context.Background()
	l, exec, _ := newTestLocal(t)
	api, err := registry.Default().Lookup(registry.ServiceAPI, l.cfg)
	require.NoError(t, err)
	ui, err := registry.Default().Lookup(registry.ServiceUI, l.cfg)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(l.projectDir, "requirements.txt"), []byte("fastapi\n"), 0o644))

	assert.True(t, l.Build(ctx, api).OK())
	assert.True(t, l.Build(ctx, ui).OK())
	require.Len(t, exec.commands, 1, "requirements are installed once")
	assert.Equal(t, []string{"-m", "pip", "install", "-r", filepath.Join(l.projectDir, ".", "requirements.txt")}, exec.commands[0].Args)

	db, err := registry.Default().Lookup(registry.ServiceDB, l.cfg)
	require.NoError(t, err)
	res := l.Build(ctx, db)
	assert.False(t, res.OK())
	assert.Contains(t, res.Failure().Error(), "no local command")
}

func TestLocalRuntime_CheckPrerequisites(t *testing.T) {
	l, exec, _ := newTestLocal(t)
	require.NoError(t, l.CheckPrerequisites(context.Background()))

	exec.results["python3 -m pip"] = Result{ExitCode: 1, Output: "No module named pip"}
	err := l.CheckPrerequisites(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pip is not available")
}

func TestLocalRuntime_Logs(t *testing.T) {
	ctx := context.Background()
	l, _, _ := newTestLocal(t)
	require.NoError(t, l.Prepare(ctx, nil))
	require.NoError(t, os.WriteFile(filepath.Join(l.logsDir(), "api.log"), []byte("one\ntwo\nthree\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(l.logsDir(), "ui.log"), []byte("ready\n"), 0o644))

	var buf bytes.Buffer
	require.NoError(t, l.Logs(ctx, "api", 2, &buf))
	assert.Equal(t, "two\nthree\n", buf.String())

	buf.Reset()
	require.NoError(t, l.Logs(ctx, "", 1, &buf))
	assert.Equal(t, "==> api <==\nthree\n==> ui <==\nready\n", buf.String())

	assert.Error(t, l.Logs(ctx, "scheduler", 10, &buf))
}

func TestLocalRuntime_Bootstrap(t *testing.T) {
	l, exec, _ := newTestLocal(t)

	res := l.Bootstrap(context.Background(), 30)
	assert.True(t, res.OK())
	assert.Equal(t, []string{"python3 cli/main.py scrape --days 30"}, exec.lines())
	assert.Equal(t, l.projectDir, exec.commands[0].Dir)
}

func TestResult_Failure(t *testing.T) {
	assert.NoError(t, Result{Step: "build api"}.Failure())

	res := Result{Step: "build api", Command: []string{"docker", "compose", "build"}, ExitCode: 2, Output: "a\nb\nc\nd\ne\nf\n"}
	err := res.Failure()
	require.Error(t, err)
	assert.Equal(t, "build api failed: docker compose build exited 2\nb\nc\nd\ne\nf", err.Error())
}
