package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"cvectl/internal/compose"
	"cvectl/internal/config"
	"cvectl/internal/registry"
	"cvectl/pkg/logging"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"
)

// StateDir is the per-project directory for files cvectl generates.
const StateDir = ".cvectl"

// ComposePath returns where the generated compose file lives.
func ComposePath(projectDir string) string {
	return filepath.Join(projectDir, StateDir, "compose.yaml")
}

// DockerRuntime drives the deployment with docker compose. Status and logs go
// through the Engine API directly.
type DockerRuntime struct {
	exec       Executor
	api        ContainerAPI
	projectDir string
	project    string
	file       string

	// compose is the compose entry point: "docker compose" (v2) or
	// "docker-compose" (v1). Resolved on first use.
	compose []string
}

// NewDocker returns a docker-mode runtime. api may be nil when the daemon
// client could not be created; status and logs then report an error.
func NewDocker(exec Executor, api ContainerAPI, cfg config.Config, projectDir string) *DockerRuntime {
	return &DockerRuntime{
		exec:       exec,
		api:        api,
		projectDir: projectDir,
		project:    cfg.ProjectName,
		file:       ComposePath(projectDir),
	}
}

func (d *DockerRuntime) Name() string { return "docker" }

// CheckPrerequisites verifies docker, a compose implementation and a
// reachable daemon.
func (d *DockerRuntime) CheckPrerequisites(ctx context.Context) error {
	if _, err := d.exec.LookPath("docker"); err != nil {
		return &MissingToolError{Tool: "docker", Hint: "install Docker from https://docs.docker.com/get-docker/", Err: err}
	}

	if _, err := d.resolveCompose(ctx); err != nil {
		return err
	}

	if d.api == nil {
		return &MissingToolError{Tool: "docker daemon", Hint: "check DOCKER_HOST", Err: errors.New("no client")}
	}
	if _, err := d.api.Ping(ctx); err != nil {
		return &MissingToolError{Tool: "docker daemon", Hint: "is Docker running?", Err: err}
	}
	return nil
}

// Prepare renders the group into the compose file.
func (d *DockerRuntime) Prepare(_ context.Context, group []registry.Binding) error {
	if err := compose.Write(d.file, compose.FromBindings(d.project, group)); err != nil {
		return err
	}
	logging.Debug("DockerRuntime", "Wrote %s", d.file)
	return nil
}

// resolveCompose picks the compose plugin when "docker compose version"
// works and docker-compose otherwise. The choice is cached.
func (d *DockerRuntime) resolveCompose(ctx context.Context) ([]string, error) {
	if d.compose != nil {
		return d.compose, nil
	}
	res := d.exec.Run(ctx, Command{Step: "compose version", Dir: d.projectDir, Name: "docker", Args: []string{"compose", "version"}})
	if res.OK() {
		d.compose = []string{"docker", "compose"}
		return d.compose, nil
	}
	if _, err := d.exec.LookPath("docker-compose"); err != nil {
		return nil, &MissingToolError{Tool: "docker compose", Hint: "install the compose plugin or docker-compose", Err: err}
	}
	logging.Debug("DockerRuntime", "Compose plugin unavailable, using docker-compose")
	d.compose = []string{"docker-compose"}
	return d.compose, nil
}

// composeCommand builds a compose invocation. The -f flag is only passed once
// the file exists, so stop and reset still work by project name alone.
func (d *DockerRuntime) composeCommand(ctx context.Context, step string, args ...string) Command {
	bin, err := d.resolveCompose(ctx)
	if err != nil {
		logging.WarnErr("DockerRuntime", err, "No compose implementation found")
		bin = []string{"docker", "compose"}
	}
	argv := append([]string{}, bin...)
	argv = append(argv, "-p", d.project, "--project-directory", d.projectDir)
	if _, err := os.Stat(d.file); err == nil {
		argv = append(argv, "-f", d.file)
	}
	argv = append(argv, args...)
	return Command{Step: step, Dir: d.projectDir, Name: argv[0], Args: argv[1:]}
}

// Build builds a service image, or pulls it for image-only services.
func (d *DockerRuntime) Build(ctx context.Context, b registry.Binding) Result {
	if b.Build == "" {
		return d.exec.Run(ctx, d.composeCommand(ctx, "pull "+b.Name, "pull", b.Name))
	}
	return d.exec.Run(ctx, d.composeCommand(ctx, "build "+b.Name, "build", b.Name))
}

// Start brings the group up detached.
func (d *DockerRuntime) Start(ctx context.Context, group []registry.Binding) Result {
	args := []string{"up", "-d"}
	for _, b := range group {
		args = append(args, b.Name)
	}
	return d.exec.Run(ctx, d.composeCommand(ctx, "start", args...))
}

// Stop stops the project's containers and keeps them, so the deployment is
// still reported as stopped. Compose treats an already stopped project as
// success.
func (d *DockerRuntime) Stop(ctx context.Context) Result {
	return d.exec.Run(ctx, d.composeCommand(ctx, "stop", "stop"))
}

// RemoveVolumes removes the project's containers and named volumes.
func (d *DockerRuntime) RemoveVolumes(ctx context.Context) Result {
	return d.exec.Run(ctx, d.composeCommand(ctx, "remove volumes", "down", "-v", "--remove-orphans"))
}

// Bootstrap runs the scrape command inside the API container.
func (d *DockerRuntime) Bootstrap(ctx context.Context, days int) Result {
	args := append([]string{"exec", "-T", registry.ServiceAPI}, ScrapeArgs("python", days)...)
	return d.exec.Run(ctx, d.composeCommand(ctx, "bootstrap data", args...))
}

// Status lists the project's containers, one entry per service.
func (d *DockerRuntime) Status(ctx context.Context) ([]ServiceStatus, error) {
	containers, err := d.list(ctx, "")
	if err != nil {
		return nil, err
	}

	out := make([]ServiceStatus, 0, len(containers))
	for _, c := range containers {
		state := c.State
		if state != StateRunning {
			state = StateExited
		}
		out = append(out, ServiceStatus{
			Service: c.Labels[LabelService],
			State:   state,
			Detail:  c.Status,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Service < out[j].Service })
	return out, nil
}

// Logs writes the last tail lines of each matching container to w.
func (d *DockerRuntime) Logs(ctx context.Context, service string, tail int, w io.Writer) error {
	containers, err := d.list(ctx, service)
	if err != nil {
		return err
	}
	if len(containers) == 0 {
		if service != "" {
			return fmt.Errorf("no containers for service %s in project %s", service, d.project)
		}
		return fmt.Errorf("no containers in project %s", d.project)
	}
	sort.Slice(containers, func(i, j int) bool {
		return containers[i].Labels[LabelService] < containers[j].Labels[LabelService]
	})

	opts := container.LogsOptions{ShowStdout: true, ShowStderr: true, Tail: "all"}
	if tail > 0 {
		opts.Tail = strconv.Itoa(tail)
	}
	for _, c := range containers {
		if len(containers) > 1 {
			fmt.Fprintf(w, "==> %s <==\n", c.Labels[LabelService])
		}
		rc, err := d.api.ContainerLogs(ctx, c.ID, opts)
		if err != nil {
			return fmt.Errorf("failed to read logs of %s: %w", strings.TrimPrefix(firstName(c.Names), "/"), err)
		}
		_, err = stdcopy.StdCopy(w, w, rc)
		rc.Close()
		if err != nil {
			return fmt.Errorf("failed to copy logs of %s: %w", c.Labels[LabelService], err)
		}
	}
	return nil
}

func (d *DockerRuntime) list(ctx context.Context, service string) ([]container.Summary, error) {
	if d.api == nil {
		return nil, errors.New("docker client unavailable")
	}
	containers, err := d.api.ContainerList(ctx, container.ListOptions{All: true, Filters: projectFilter(d.project, service)})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}
	return containers, nil
}

func firstName(names []string) string {
	if len(names) == 0 {
		return ""
	}
	return names[0]
}
