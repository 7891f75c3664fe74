package runtime

import (
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
)

// Compose labels set on every container of a project.
const (
	LabelProject = "com.docker.compose.project"
	LabelService = "com.docker.compose.service"
)

// ContainerAPI is the part of the Docker Engine client cvectl uses.
// *client.Client satisfies it.
type ContainerAPI interface {
	Ping(ctx context.Context) (types.Ping, error)
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
	ContainerLogs(ctx context.Context, container string, options container.LogsOptions) (io.ReadCloser, error)
	Close() error
}

// NewDockerClient connects to the daemon configured by DOCKER_HOST and friends.
func NewDockerClient() (ContainerAPI, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return cli, nil
}

// projectFilter selects the containers of one compose project, optionally
// narrowed to a single service.
func projectFilter(project, service string) filters.Args {
	args := filters.NewArgs(filters.Arg("label", LabelProject+"="+project))
	if service != "" {
		args.Add("label", LabelService+"="+service)
	}
	return args
}
