package runtime

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"cvectl/internal/config"
	"cvectl/internal/registry"

	"github.com/docker/docker/api/types/container"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bindDefault(t *testing.T, cfg config.Config) []registry.Binding {
	t.Helper()
	group, err := registry.Default().Select(registry.Selection{})
	require.NoError(t, err)
	bindings, err := registry.BindAll(group, cfg)
	require.NoError(t, err)
	return bindings
}

func TestDockerRuntime_CheckPrerequisites(t *testing.T) {
	ctx := context.Background()
	cfg := config.Defaults()

	t.Run("docker missing", func(t *testing.T) {
		exec := newFakeExecutor()
		exec.paths = map[string]bool{}
		d := NewDocker(exec, &fakeContainerAPI{}, cfg, t.TempDir())

		err := d.CheckPrerequisites(ctx)
		var missing *MissingToolError
		require.True(t, errors.As(err, &missing))
		assert.Equal(t, "docker", missing.Tool)
	})

	t.Run("falls back to docker-compose", func(t *testing.T) {
		exec := newFakeExecutor()
		exec.paths["docker-compose"] = true
		exec.results["docker compose version"] = Result{ExitCode: 1}
		d := NewDocker(exec, &fakeContainerAPI{}, cfg, t.TempDir())

		require.NoError(t, d.CheckPrerequisites(ctx))
		d.Stop(ctx)
		assert.Equal(t, "docker-compose", exec.commands[len(exec.commands)-1].Name)
	})

	t.Run("v1 only host without prerequisite check", func(t *testing.T) {
		exec := newFakeExecutor()
		exec.paths["docker-compose"] = true
		exec.results["docker compose version"] = Result{ExitCode: 1}
		d := NewDocker(exec, &fakeContainerAPI{}, cfg, t.TempDir())

		assert.True(t, d.Stop(ctx).OK())
		assert.True(t, d.Start(ctx, nil).OK())
		assert.Equal(t, []string{"docker compose version"}, exec.lines()[:1])
		for _, c := range exec.commands[1:] {
			assert.Equal(t, "docker-compose", c.Name, "compose is detected once and reused")
		}
		assert.Len(t, exec.commands, 3)
	})

	t.Run("no compose at all", func(t *testing.T) {
		exec := newFakeExecutor()
		exec.results["docker compose version"] = Result{ExitCode: 1}
		d := NewDocker(exec, &fakeContainerAPI{}, cfg, t.TempDir())

		err := d.CheckPrerequisites(ctx)
		var missing *MissingToolError
		require.True(t, errors.As(err, &missing))
		assert.Equal(t, "docker compose", missing.Tool)
	})

	t.Run("daemon unreachable", func(t *testing.T) {
		d := NewDocker(newFakeExecutor(), &fakeContainerAPI{pingErr: errors.New("connection refused")}, cfg, t.TempDir())

		err := d.CheckPrerequisites(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection refused")
	})
}

func TestDockerRuntime_ComposeCommands(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cfg := config.Defaults()
	exec := newFakeExecutor()
	d := NewDocker(exec, &fakeContainerAPI{}, cfg, dir)

	// Without a compose file the project name alone is used.
	d.Stop(ctx)
	assert.Equal(t, "docker compose version", exec.lines()[0])
	assert.Equal(t, "docker compose -p cve-analyst --project-directory "+dir+" stop", exec.lines()[1])

	group := bindDefault(t, cfg)
	require.NoError(t, d.Prepare(ctx, group))
	assert.FileExists(t, ComposePath(dir))

	assert.True(t, d.Build(ctx, group[0]).OK())
	assert.True(t, d.Start(ctx, group).OK())
	assert.True(t, d.Bootstrap(ctx, 7).OK())
	assert.True(t, d.RemoveVolumes(ctx).OK())

	base := "docker compose -p cve-analyst --project-directory " + dir + " -f " + ComposePath(dir)
	assert.Equal(t, []string{
		base + " build api",
		base + " up -d api ui scheduler",
		base + " exec -T api python cli/main.py scrape --days 7",
		base + " down -v --remove-orphans",
	}, exec.lines()[2:])
}

func TestDockerRuntime_BuildPullsImageServices(t *testing.T) {
	ctx := context.Background()
	cfg := config.Defaults()
	exec := newFakeExecutor()
	d := NewDocker(exec, &fakeContainerAPI{}, cfg, t.TempDir())

	db, err := registry.Default().Lookup(registry.ServiceDB, cfg)
	require.NoError(t, err)

	exec.results["docker compose"] = Result{ExitCode: 18, Output: "pull access denied"}
	res := d.Build(ctx, db)

	assert.False(t, res.OK())
	lines := exec.lines()
	assert.Contains(t, lines[len(lines)-1], " pull db")
	require.Error(t, res.Failure())
	assert.Contains(t, res.Failure().Error(), "pull access denied")
}

func TestDockerRuntime_StatusAndLogs(t *testing.T) {
	ctx := context.Background()
	cfg := config.Defaults()
	api := &fakeContainerAPI{
		containers: []container.Summary{
			{ID: "c2", Names: []string{"/cve-analyst-ui-1"}, State: "exited", Status: "Exited (1) 2 minutes ago",
				Labels: map[string]string{LabelProject: "cve-analyst", LabelService: "ui"}},
			{ID: "c1", Names: []string{"/cve-analyst-api-1"}, State: "running", Status: "Up 5 minutes",
				Labels: map[string]string{LabelProject: "cve-analyst", LabelService: "api"}},
			{ID: "x", Names: []string{"/other"}, State: "running",
				Labels: map[string]string{LabelProject: "other", LabelService: "api"}},
		},
		logs: map[string]string{"c1": "api line\n", "c2": "ui line\n"},
	}
	d := NewDocker(newFakeExecutor(), api, cfg, t.TempDir())

	status, err := d.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, []ServiceStatus{
		{Service: "api", State: StateRunning, Detail: "Up 5 minutes"},
		{Service: "ui", State: StateExited, Detail: "Exited (1) 2 minutes ago"},
	}, status)
	assert.True(t, api.lastList.All)

	var buf bytes.Buffer
	require.NoError(t, d.Logs(ctx, "api", 50, &buf))
	assert.Equal(t, "api line\n", buf.String())
	assert.Equal(t, "50", api.lastLogs.Tail)

	buf.Reset()
	require.NoError(t, d.Logs(ctx, "", 0, &buf))
	assert.Equal(t, "==> api <==\napi line\n==> ui <==\nui line\n", buf.String())
	assert.Equal(t, "all", api.lastLogs.Tail)

	err = d.Logs(ctx, "proxy", 10, &buf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no containers for service proxy")
}

func TestDockerRuntime_NoClient(t *testing.T) {
	d := NewDocker(newFakeExecutor(), nil, config.Defaults(), t.TempDir())

	_, err := d.Status(context.Background())
	assert.Error(t, err)
}
